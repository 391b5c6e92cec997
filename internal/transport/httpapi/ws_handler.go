package httpapi

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/relay-server/internal/core"
)

// WSHandler upgrades HTTP connections and bridges them to a session. Each
// WebSocket text message carries one protocol line, so WebSocket clients
// speak the exact same command language as raw TCP ones.
type WSHandler struct {
	registry *core.Registry
	cfg      core.SessionConfig
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(registry *core.Registry, cfg core.SessionConfig, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{registry: registry, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	logger := h.log.With().
		Str("session_id", uuid.NewString()).
		Str("peer", r.RemoteAddr).
		Logger()
	logger.Info().Msg("ws client connected")

	sess := core.NewSession(&wsLineConn{ctx: ctx, conn: conn}, h.registry, h.cfg, logger)
	if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn().Err(err).Msg("ws session ended with error")
		conn.Close(websocket.StatusInternalError, "session error")
		return
	}

	logger.Info().Msg("ws session closed")
	conn.Close(websocket.StatusNormalClosure, "closing")
}

// wsLineConn adapts a WebSocket connection to the session's line view: one
// text message per line, no terminators on the wire.
type wsLineConn struct {
	ctx  context.Context
	conn *websocket.Conn
}

func (c *wsLineConn) ReadLine() (string, error) {
	_, data, err := c.conn.Read(c.ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return "", io.EOF
		}
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		return "", err
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func (c *wsLineConn) WriteLine(line string) error {
	return c.conn.Write(c.ctx, websocket.MessageText, []byte(line))
}
