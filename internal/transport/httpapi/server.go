// Package httpapi exposes the WebSocket bridge and read-only diagnostics over
// HTTP.
package httpapi

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/relay-server/internal/config"
	"github.com/vovakirdan/relay-server/internal/core"
)

// NewServer builds the HTTP server: health check, room snapshot, ws bridge.
func NewServer(registry *core.Registry, sessCfg core.SessionConfig, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(LoggerMiddleware(logger), gin.Recovery())

	router.GET("/health", healthHandler)
	router.GET("/rooms", roomsHandler(registry))
	router.GET("/ws", gin.WrapH(NewWSHandler(registry, sessCfg, logger)))

	return &stdhttp.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}

// roomsHandler serves a best-effort snapshot of room codes and member counts.
// The counts may be stale by the time the response is read.
func roomsHandler(registry *core.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(stdhttp.StatusOK, gin.H{"rooms": registry.List()})
	}
}

// LoggerMiddleware logs HTTP requests through zerolog.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}
