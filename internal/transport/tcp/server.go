// Package tcp accepts raw TCP connections and runs one session per client.
package tcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/relay-server/internal/core"
)

// Server owns the listening socket. Each accepted connection gets its own
// goroutine and a handle to the shared registry; nothing else is shared.
type Server struct {
	addr     string
	registry *core.Registry
	cfg      core.SessionConfig
	log      *zerolog.Logger
	ln       net.Listener
}

// NewServer builds a TCP server for the given listen address.
func NewServer(addr string, registry *core.Registry, cfg core.SessionConfig, logger *zerolog.Logger) *Server {
	return &Server{
		addr:     addr,
		registry: registry,
		cfg:      cfg,
		log:      logger,
	}
}

// Listen binds the listening socket. Run calls it implicitly; tests call it
// first to learn the bound address.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address. Only valid after Listen.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Run accepts connections until ctx is cancelled. Per-connection failures are
// logged and never propagate; only listener-level errors are returned.
func (s *Server) Run(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.log.Info().Str("addr", s.ln.Addr().String()).Msg("tcp server listening")

	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	logger := s.log.With().
		Str("session_id", uuid.NewString()).
		Str("peer", conn.RemoteAddr().String()).
		Logger()
	logger.Info().Msg("client connected")

	sess := core.NewSession(newLineConn(conn), s.registry, s.cfg, logger)
	if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn().Err(err).Msg("session ended with error")
		return
	}
	logger.Info().Msg("session closed")
}

// lineConn adapts a net.Conn to the session's newline-delimited view.
type lineConn struct {
	conn net.Conn
	r    *bufio.Reader
}

func newLineConn(conn net.Conn) *lineConn {
	return &lineConn{conn: conn, r: bufio.NewReader(conn)}
}

func (c *lineConn) ReadLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		// Deliver a final unterminated line before reporting EOF.
		if len(line) > 0 && errors.Is(err, io.EOF) {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *lineConn) WriteLine(line string) error {
	_, err := c.conn.Write([]byte(line + "\n"))
	return err
}
