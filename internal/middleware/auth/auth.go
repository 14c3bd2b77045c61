// Package auth resolves bearer tokens to user ids. Sessions live in
// Redis and are written by the account service; this middleware only
// reads them and never mints tokens itself.
package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sellerpulse/backend/pkg/apperr"
)

// UserIDKey is the fiber locals key downstream handlers read the
// authenticated user id from.
const UserIDKey = "user_id"

type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (string, bool, error)
}

type Config struct {
	Sessions SessionResolver
	Logger   *zap.Logger
}

func Middleware(cfg Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c.Get("Authorization"))
		if token == "" {
			return unauthorized(c, "missing bearer token")
		}

		userID, found, err := cfg.Sessions.ResolveSession(c.UserContext(), token)
		if err != nil {
			cfg.Logger.Error("Session lookup failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": fiber.Map{
					"code":      apperr.CodeInternal,
					"message":   "session lookup failed",
					"retryable": true,
				},
			})
		}
		if !found {
			return unauthorized(c, "invalid or expired session")
		}

		c.Locals(UserIDKey, userID)
		return c.Next()
	}
}

// UserID returns the authenticated user id set by Middleware, or ""
// when the request never passed through it.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(UserIDKey).(string)
	return id
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": fiber.Map{
			"code":      apperr.CodeAuthRequired,
			"message":   message,
			"retryable": false,
		},
	})
}
