package handlers

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/sellerpulse/backend/internal/assistant"
	"github.com/sellerpulse/backend/internal/middleware/auth"
	"github.com/sellerpulse/backend/internal/storage/models"
	"github.com/sellerpulse/backend/pkg/apperr"
)

const defaultHistoryPageSize = 50

type ThreadReader interface {
	EnsureThread(ctx context.Context, userID, threadID, newID string) (*models.Thread, error)
	ListMessages(ctx context.Context, threadID string, limit int) ([]models.Message, error)
}

type ThreadHandler struct {
	store ThreadReader
}

func NewThreadHandler(store ThreadReader) *ThreadHandler {
	return &ThreadHandler{store: store}
}

type messageView struct {
	ID         string          `json:"id"`
	Role       string          `json:"role"`
	Content    string          `json:"content"`
	Capability string          `json:"capability,omitempty"`
	Sources    json.RawMessage `json:"sources,omitempty"`
	Flags      assistant.Flags `json:"flags"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// HandleGetMessages serves GET /api/v1/assistant/threads/:id/messages.
// Ownership is enforced before any rows are read; a foreign thread is
// indistinguishable from a missing one.
func (h *ThreadHandler) HandleGetMessages(c *fiber.Ctx) error {
	userID := auth.UserID(c)
	if userID == "" {
		return writeError(c, apperr.New(apperr.CodeAuthRequired, "authentication required"))
	}

	threadID := c.Params("id")
	if threadID == "" {
		return writeError(c, apperr.New(apperr.CodeValidation, "thread id is required"))
	}

	limit := defaultHistoryPageSize
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 200 {
			return writeError(c, apperr.New(apperr.CodeValidation, "limit must be between 1 and 200"))
		}
		limit = parsed
	}

	thread, err := h.store.EnsureThread(c.UserContext(), userID, threadID, "")
	if err != nil {
		return writeError(c, err)
	}

	msgs, err := h.store.ListMessages(c.UserContext(), thread.ID, limit)
	if err != nil {
		return writeError(c, err)
	}

	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, toMessageView(m))
	}

	return c.JSON(fiber.Map{
		"threadId": thread.ID,
		"title":    thread.Title,
		"messages": views,
	})
}

func toMessageView(m models.Message) messageView {
	view := messageView{
		ID:         m.ID,
		Role:       m.Role,
		Content:    m.Content,
		Capability: m.Capability,
		Flags: assistant.Flags{
			UsedRAG:             m.UsedRAG,
			FallbackToGeneric:   m.FallbackToGeneric,
			InsufficientContext: m.InsufficientContext,
		},
		CreatedAt: m.CreatedAt,
	}
	if m.SourcesJSON != "" {
		view.Sources = json.RawMessage(m.SourcesJSON)
	}
	return view
}
