package validation

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/assistant"
	"github.com/sellerpulse/backend/internal/capability"
	"github.com/sellerpulse/backend/pkg/apperr"
)

// RequestKey is the fiber locals key the validated assistant request is
// stored under for the handler.
const RequestKey = "assistant_request"

type Config struct {
	MaxMessageLength int
	MaxMarketplaces  int
	Logger           *zap.Logger
}

func (cfg Config) withDefaults() Config {
	if cfg.MaxMessageLength == 0 {
		cfg.MaxMessageLength = 4000
	}
	if cfg.MaxMarketplaces == 0 {
		cfg.MaxMarketplaces = 10
	}
	return cfg
}

// Validate checks an assistant request against the boundary rules and
// normalizes the message in place. Every transport that accepts a
// request goes through it, not just the HTTP body path.
func Validate(req *assistant.Request, cfg Config) error {
	cfg = cfg.withDefaults()

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return errors.New("message is required")
	}
	if utf8.RuneCountInString(req.Message) > cfg.MaxMessageLength {
		return errors.New("message exceeds maximum length")
	}

	if req.Capability != "" && !capability.Valid(req.Capability) {
		return errors.New("unknown capability: " + req.Capability)
	}

	if len(req.Context.Marketplaces) > cfg.MaxMarketplaces {
		return errors.New("too many marketplaces")
	}
	for _, m := range req.Context.Marketplaces {
		if strings.TrimSpace(m) == "" {
			return errors.New("marketplace ids must be non-empty")
		}
	}

	if tr := req.Context.TimeRange; tr != nil {
		if tr.From.IsZero() || tr.To.IsZero() {
			return errors.New("time range requires both from and to")
		}
		if tr.To.Before(tr.From) {
			return errors.New("time range end precedes start")
		}
	}

	if req.Options.MaxTokens < 0 {
		return errors.New("maxTokens must be non-negative")
	}
	if req.Options.Temperature < 0 || req.Options.Temperature > 2 {
		return errors.New("temperature must be between 0 and 2")
	}

	return nil
}

// Middleware parses and validates the assistant message body. Handlers
// behind it read a typed request from locals and never touch the raw
// payload.
func Middleware(cfg Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req assistant.Request
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON body")
		}

		if err := Validate(&req, cfg); err != nil {
			return badRequest(c, err.Error())
		}

		c.Locals(RequestKey, &req)
		return c.Next()
	}
}

// Request returns the validated request stored by Middleware.
func Request(c *fiber.Ctx) *assistant.Request {
	req, _ := c.Locals(RequestKey).(*assistant.Request)
	return req
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": fiber.Map{
			"code":      apperr.CodeValidation,
			"message":   message,
			"retryable": false,
		},
	})
}
