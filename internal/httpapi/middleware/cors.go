package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS lets browser front ends on allowedOrigins call the API; "*" allows any
// origin. With no origins configured cross-origin requests are not answered
// with CORS headers at all.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", RequestIDHeader},
		ExposeHeaders: []string{RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}

	for _, o := range allowedOrigins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cors.New(cfg)
		}
	}
	if len(allowedOrigins) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	cfg.AllowOrigins = allowedOrigins
	return cors.New(cfg)
}
