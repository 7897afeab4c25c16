package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/finchat/internal/ai"
	"github.com/suPer8Hu/finchat/internal/chat"
	"github.com/suPer8Hu/finchat/internal/common"
	"go.uber.org/zap"
)

// GetHistory answers with `[[text, isUser], ...]`, oldest first.
func (h *Handler) GetHistory(c *gin.Context) {
	sessionID := c.Query("session_id")

	msgs, err := h.ChatSvc.History(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, chat.ErrSessionIDRequired) {
			common.Fail(c, http.StatusBadRequest, 10002, "session_id required")
			return
		}
		h.Logger.Error("list history failed", zap.String("session_id", sessionID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}

	pairs := make([][2]any, len(msgs))
	for i, m := range msgs {
		pairs[i] = [2]any{m.Content, m.Role == ai.RoleUser}
	}
	c.JSON(http.StatusOK, pairs)
}

type sendMessageReq struct {
	SessionID string `json:"session_id" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

func (h *Handler) SendChatMessage(c *gin.Context) {
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	reply, _, err := h.ChatSvc.SendMessage(c.Request.Context(), req.SessionID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrSessionIDRequired):
			common.Fail(c, http.StatusBadRequest, 10003, err.Error())
		case errors.Is(err, chat.ErrProvider):
			h.Logger.Warn("provider failed", zap.String("session_id", req.SessionID), zap.Error(err))
			common.Fail(c, http.StatusBadGateway, 50201, "failed to get response")
		default:
			h.Logger.Error("send message failed", zap.String("session_id", req.SessionID), zap.Error(err))
			common.Fail(c, http.StatusInternalServerError, 50001, "failed to send message")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"response": reply})
}
