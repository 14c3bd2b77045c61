package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/assistant"
	"github.com/sellerpulse/backend/internal/middleware/auth"
	"github.com/sellerpulse/backend/internal/middleware/validation"
	"github.com/sellerpulse/backend/pkg/apperr"
	"github.com/sellerpulse/backend/pkg/logger"
)

// MessageProcessor runs the full answer cycle for one user message.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, userID string, req assistant.Request) (*assistant.Response, error)
}

// wsConn is the slice of the websocket connection the streaming side
// writes to.
type wsConn interface {
	WriteJSON(v interface{}) error
}

type wsMessage struct {
	Type       string                   `json:"type"`
	Message    string                   `json:"message"`
	ThreadID   string                   `json:"threadId,omitempty"`
	Capability string                   `json:"capability,omitempty"`
	Context    assistant.RequestContext `json:"context,omitempty"`
}

type WebSocketHandler struct {
	processor MessageProcessor
	rules     validation.Config
}

// NewWebSocketHandler takes the same validation rules the HTTP body
// middleware runs with, so both transports enforce one boundary.
func NewWebSocketHandler(processor MessageProcessor, rules validation.Config) *WebSocketHandler {
	return &WebSocketHandler{
		processor: processor,
		rules:     rules,
	}
}

// HandleConnection serves GET /api/v1/assistant/ws. The upgrade request
// passed through auth, so the user id is in connection locals. All
// in-flight processing is cancelled when the read loop exits.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	userID, _ := c.Locals(auth.UserIDKey).(string)
	if userID == "" {
		h.sendError(c, apperr.CodeAuthRequired, "authentication required")
		c.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	logger.Info("WebSocket connection established", zap.String("user_id", userID))

	defer func() {
		cancel()
		c.Close()
		logger.Info("WebSocket connection closed", zap.String("user_id", userID))
	}()

	for {
		var msg wsMessage
		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "message" {
			continue
		}

		h.handleMessage(ctx, c, userID, msg)
	}
}

// handleMessage validates one inbound frame and streams the answer.
// Invalid frames get an error frame and never reach the processor.
func (h *WebSocketHandler) handleMessage(ctx context.Context, conn wsConn, userID string, msg wsMessage) {
	req := assistant.Request{
		Message:    msg.Message,
		ThreadID:   msg.ThreadID,
		Capability: msg.Capability,
		Context:    msg.Context,
	}

	if err := validation.Validate(&req, h.rules); err != nil {
		h.sendError(conn, apperr.CodeValidation, err.Error())
		return
	}

	if err := h.streamResponse(ctx, conn, userID, req); err != nil {
		logger.Error("Failed to stream response", zap.Error(err))
	}
}

func (h *WebSocketHandler) streamResponse(ctx context.Context, conn wsConn, userID string, req assistant.Request) error {
	h.sendChunk(conn, "status", "Working on it...")

	resp, err := h.processor.ProcessMessage(ctx, userID, req)
	if err != nil {
		ae := apperr.AsError(err)
		h.sendError(conn, ae.Code, ae.Message)
		return err
	}

	words := splitIntoWords(resp.Answer)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 {
			chunk += " "
		}

		if err := h.sendChunk(conn, "chunk", chunk); err != nil {
			return err
		}
	}

	return h.sendComplete(conn, resp)
}

func (h *WebSocketHandler) sendChunk(conn wsConn, msgType, content string) error {
	return conn.WriteJSON(map[string]interface{}{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendComplete(conn wsConn, resp *assistant.Response) error {
	return conn.WriteJSON(map[string]interface{}{
		"type":       "complete",
		"threadId":   resp.ThreadID,
		"messageId":  resp.MessageID,
		"capability": resp.Capability,
		"sources":    resp.Sources,
		"flags":      resp.Flags,
		"model":      resp.Model,
	})
}

func (h *WebSocketHandler) sendError(conn wsConn, code apperr.Code, message string) {
	conn.WriteJSON(map[string]interface{}{
		"type": "error",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	})
}

func splitIntoWords(text string) []string {
	words := []string{}
	currentWord := ""

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if currentWord != "" {
				words = append(words, currentWord)
				currentWord = ""
			}
			if char == '\n' {
				words = append(words, "\n")
			}
		} else {
			currentWord += string(char)
		}
	}

	if currentWord != "" {
		words = append(words, currentWord)
	}

	return words
}
