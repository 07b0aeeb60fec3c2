package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	apperrors "coinpulse/pkg/errors"
)

const (
	msgMissingChatID = "Invalid request: Missing chatId."
	msgChatIDStored  = "chatId received and stored."
	msgProcessFailed = "Sentiment processing failed."
)

type registerResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// parseChatID accepts a JSON string or number. Telegram chat ids are often
// sent as numbers.
func parseChatID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func (s *Server) handleReceiveChatID(c echo.Context) error {
	var body struct {
		ChatID json.RawMessage `json:"chatId"`
	}
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
		return c.String(http.StatusBadRequest, msgMissingChatID)
	}

	chatID := parseChatID(body.ChatID)
	if chatID == "" {
		return c.String(http.StatusBadRequest, msgMissingChatID)
	}

	s.recipients.Set(chatID)
	s.metrics.ObserveRegistration()
	s.logger.InfoContext(c.Request().Context(), "Recipient registered")

	return c.JSON(http.StatusOK, registerResponse{Success: true, Message: msgChatIDStored})
}

func (s *Server) handleSentiment(c echo.Context) error {
	var body struct {
		WorkspaceID string `json:"workspaceId"`
	}
	if c.Request().ContentLength != 0 {
		if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body."})
		}
	}
	ws := strings.TrimSpace(body.WorkspaceID)
	if ws == "" {
		ws = s.cfg.DefaultWorkspaceID
	}

	out, err := s.invoker.Run(c.Request().Context(), ws)
	if err != nil {
		resp := map[string]string{"error": msgProcessFailed}
		if e, ok := apperrors.As(err); ok {
			resp["type"] = string(e.Type)
			if e.Type == apperrors.TypeValidation {
				resp["error"] = e.Message
			}
		}
		return c.JSON(apperrors.StatusOf(err), resp)
	}
	return c.JSON(http.StatusOK, map[string]string{"result": out})
}
