package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/assistant"
	"github.com/sellerpulse/backend/internal/metrics"
	"github.com/sellerpulse/backend/internal/middleware/auth"
	"github.com/sellerpulse/backend/internal/middleware/validation"
	"github.com/sellerpulse/backend/pkg/apperr"
	"github.com/sellerpulse/backend/pkg/logger"
	"github.com/sellerpulse/backend/pkg/utils"
)

// answerCacheTTL bounds the duplicate-submit window. A client retrying
// the same message within it gets the already-computed answer instead of
// burning quota twice.
const answerCacheTTL = 30 * time.Second

type AnswerCache interface {
	GetAnswer(ctx context.Context, requestHash string, response interface{}) (bool, error)
	SetAnswer(ctx context.Context, requestHash string, response interface{}, ttl time.Duration) error
}

type AssistantHandler struct {
	orchestrator *assistant.Orchestrator
	cache        AnswerCache
}

func NewAssistantHandler(orchestrator *assistant.Orchestrator, cache AnswerCache) *AssistantHandler {
	return &AssistantHandler{
		orchestrator: orchestrator,
		cache:        cache,
	}
}

// HandleMessage serves POST /api/v1/assistant/message. The body has
// already been validated; auth has already resolved the user.
func (h *AssistantHandler) HandleMessage(c *fiber.Ctx) error {
	userID := auth.UserID(c)
	if userID == "" {
		return writeError(c, apperr.New(apperr.CodeAuthRequired, "authentication required"))
	}

	req := validation.Request(c)
	if req == nil {
		return writeError(c, apperr.New(apperr.CodeValidation, "missing request body"))
	}

	start := time.Now()

	requestHash := utils.HashString(userID + "|" + req.ThreadID + "|" + req.Message)
	if h.cache != nil {
		var cached assistant.Response
		hit, err := h.cache.GetAnswer(c.UserContext(), requestHash, &cached)
		if err != nil {
			logger.Warn("Answer cache lookup failed", zap.Error(err))
		}
		if hit {
			metrics.CacheHits.WithLabelValues("answer").Inc()
			return c.JSON(cached)
		}
		metrics.CacheMisses.WithLabelValues("answer").Inc()
	}

	resp, err := h.orchestrator.ProcessMessage(c.UserContext(), userID, *req)
	if err != nil {
		metrics.RequestTotal.WithLabelValues(string(apperr.CodeOf(err))).Inc()
		logger.Error("Assistant request failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return writeError(c, err)
	}

	metrics.RequestTotal.WithLabelValues("ok").Inc()
	metrics.RequestDuration.WithLabelValues(resp.Capability).Observe(time.Since(start).Seconds())

	if h.cache != nil {
		if err := h.cache.SetAnswer(c.UserContext(), requestHash, resp, answerCacheTTL); err != nil {
			logger.Warn("Answer cache write failed", zap.Error(err))
		}
	}

	return c.JSON(resp)
}
