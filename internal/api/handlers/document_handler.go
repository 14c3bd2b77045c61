package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/ingestion"
	"github.com/sellerpulse/backend/internal/middleware/auth"
	"github.com/sellerpulse/backend/pkg/apperr"
	"github.com/sellerpulse/backend/pkg/logger"
)

type DocumentHandler struct {
	processor *ingestion.Processor
}

func NewDocumentHandler(processor *ingestion.Processor) *DocumentHandler {
	return &DocumentHandler{processor: processor}
}

// HandleIngest serves POST /api/v1/docs: a support document submitted as
// raw HTML, cleaned and chunked into the retrieval corpus.
func (h *DocumentHandler) HandleIngest(c *fiber.Ctx) error {
	if auth.UserID(c) == "" {
		return writeError(c, apperr.New(apperr.CodeAuthRequired, "authentication required"))
	}

	var req struct {
		Title   string `json:"title"`
		Market  string `json:"market,omitempty"`
		Topic   string `json:"topic,omitempty"`
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, apperr.New(apperr.CodeValidation, "invalid JSON body"))
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return writeError(c, apperr.New(apperr.CodeValidation, "title is required"))
	}
	if strings.TrimSpace(req.Content) == "" {
		return writeError(c, apperr.New(apperr.CodeValidation, "content is required"))
	}

	docID, err := h.processor.ProcessDocument(c.UserContext(), req.Title, req.Market, req.Topic, req.Content)
	if err != nil {
		logger.Error("Document ingestion failed", zap.String("title", req.Title), zap.Error(err))
		return writeError(c, apperr.Internal("document ingestion failed", err))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"docId":  docID,
		"status": "ingested",
	})
}
