package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/finchat/internal/chat"
	"github.com/suPer8Hu/finchat/internal/common"
	"go.uber.org/zap"
)

// RefreshPublisher hands index refresh jobs to the worker.
type RefreshPublisher interface {
	PublishRefresh(ctx context.Context, jobID string) error
}

type Handler struct {
	ChatSvc *chat.Service
	// Publisher is nil when refreshes run inline.
	Publisher RefreshPublisher
	Logger    *zap.Logger
}

func NewHandler(svc *chat.Service, publisher RefreshPublisher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{ChatSvc: svc, Publisher: publisher, Logger: logger}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, "pong")
}

// NotFound and MethodNotAllowed keep gin's fallbacks inside the envelope.
func (h *Handler) NotFound(c *gin.Context) {
	common.Fail(c, http.StatusNotFound, 40400, "route not found")
}

func (h *Handler) MethodNotAllowed(c *gin.Context) {
	common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
}
