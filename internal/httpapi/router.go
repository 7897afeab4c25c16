package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/finchat/internal/httpapi/handlers"
	"github.com/suPer8Hu/finchat/internal/httpapi/middleware"
	"go.uber.org/zap"
)

func NewRouter(h *handlers.Handler, logger *zap.Logger, allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(allowedOrigins))

	r.NoRoute(h.NotFound)
	r.NoMethod(h.MethodNotAllowed)

	r.GET("/ping", h.Ping)

	api := r.Group("/api")
	// consumed by the chat client
	api.GET("/get-history", h.GetHistory)
	api.POST("/chat", h.SendChatMessage)
	api.POST("/refresh-index", h.RefreshIndex)

	// knowledge base maintenance
	api.POST("/documents", h.CreateDocument)
	api.GET("/index-jobs/:job_id", h.GetIndexJob)
	return r
}
