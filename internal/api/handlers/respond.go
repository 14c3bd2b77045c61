package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sellerpulse/backend/pkg/apperr"
)

func statusForCode(code apperr.Code) int {
	switch code {
	case apperr.CodeAuthRequired:
		return fiber.StatusUnauthorized
	case apperr.CodeValidation:
		return fiber.StatusBadRequest
	case apperr.CodeQuotaExceeded:
		return fiber.StatusForbidden
	case apperr.CodeNotFound:
		return fiber.StatusNotFound
	case apperr.CodeGenerationFailed:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// writeError renders the error envelope every endpoint shares. The
// taxonomy code picks the status; unexpected errors surface as internal
// without leaking their cause.
func writeError(c *fiber.Ctx, err error) error {
	ae := apperr.AsError(err)
	return c.Status(statusForCode(ae.Code)).JSON(fiber.Map{
		"error": fiber.Map{
			"code":      ae.Code,
			"message":   ae.Message,
			"retryable": ae.Retryable,
		},
	})
}
