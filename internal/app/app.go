// Package app wires configuration, the room registry and the transports into
// one runnable server.
package app

import (
	"context"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/relay-server/internal/config"
	"github.com/vovakirdan/relay-server/internal/core"
	"github.com/vovakirdan/relay-server/internal/transport/httpapi"
	"github.com/vovakirdan/relay-server/internal/transport/tcp"
)

// App owns the shared registry and both listeners.
type App struct {
	tcpServer       *tcp.Server
	httpServer      *stdhttp.Server
	registry        *core.Registry
	shutdownTimeout time.Duration
	log             *zerolog.Logger
}

// New constructs the application with provided configuration. The registry is
// created here and passed by handle into every transport; there is no global.
func New(cfg config.Config, logger *zerolog.Logger) *App {
	registry := core.NewRegistry()
	sessCfg := core.SessionConfig{
		RoomCapacity: cfg.RoomCapacity,
		CodeLength:   cfg.CodeLength,
	}

	return &App{
		tcpServer:       tcp.NewServer(cfg.TCPAddr, registry, sessCfg, logger),
		httpServer:      httpapi.NewServer(registry, sessCfg, cfg, logger),
		registry:        registry,
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             logger,
	}
}

// Run starts both servers and blocks until context cancellation or a fatal
// listener error. Per-connection failures never surface here.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 2)

	go func() {
		serverErr <- a.tcpServer.Run(ctx)
	}()
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-serverErr
	}
}
