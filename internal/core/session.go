package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/relay-server/internal/codegen"
)

// LineConn is the transport seen by a session: one newline-delimited text
// stream. The TCP and WebSocket transports both implement it.
type LineConn interface {
	// ReadLine blocks until the next input line (without terminator) or an
	// error; io.EOF means the client hung up.
	ReadLine() (string, error)
	// WriteLine writes one terminated output line.
	WriteLine(line string) error
}

// SessionConfig carries the tunables a session needs from server config.
type SessionConfig struct {
	// RoomCapacity is the per-subscriber backlog of rooms this session
	// creates. Zero means DefaultRoomCapacity.
	RoomCapacity int
	// CodeLength is the room code length. Zero means codegen.DefaultLength.
	CodeLength int
}

// Session is the per-connection state machine. It owns the client's nickname
// and room membership and is touched by exactly one goroutine; only the
// registry and rooms are shared.
type Session struct {
	conn     LineConn
	registry *Registry
	cfg      SessionConfig
	log      zerolog.Logger

	nick string
	code string
	room *Room
	sub  *Subscription
}

// errQuit signals a controlled exit from the session loop.
var errQuit = errors.New("quit")

// NewSession wires a connection to the shared registry.
func NewSession(conn LineConn, registry *Registry, cfg SessionConfig, logger zerolog.Logger) *Session {
	if cfg.RoomCapacity <= 0 {
		cfg.RoomCapacity = DefaultRoomCapacity
	}
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = codegen.DefaultLength
	}
	return &Session{
		conn:     conn,
		registry: registry,
		cfg:      cfg,
		log:      logger,
	}
}

// Run drives the session until the client quits, disconnects, the transport
// fails or ctx is cancelled. Room membership is always released on the way
// out. The returned error is nil for quit and clean disconnect.
func (s *Session) Run(ctx context.Context) error {
	defer s.leaveRoom()

	if err := s.write("Welcome to Relay!"); err != nil {
		return err
	}
	if err := s.write("Type HELP for commands."); err != nil {
		return err
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		for {
			line, err := s.conn.ReadLine()
			if err != nil {
				readErr <- err
				close(lines)
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		// While roomless there is no subscription; a nil channel keeps that
		// select arm permanently blocked.
		var events <-chan string
		if s.sub != nil {
			events = s.sub.C()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case line, ok := <-lines:
			if !ok {
				err := <-readErr
				if isDisconnect(err) {
					s.log.Debug().Msg("client disconnected")
					return nil
				}
				return fmt.Errorf("read line: %w", err)
			}
			if err := s.handleLine(line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				return err
			}

		case msg, ok := <-events:
			if !ok {
				// The room was reaped while we held a subscription.
				s.clearRoom()
				if err := s.write("[server] room closed."); err != nil {
					return err
				}
				continue
			}
			if n := s.sub.TakeSkipped(); n > 0 {
				warn := fmt.Sprintf("[server] warning: %d message(s) skipped, you are receiving too slowly", n)
				if err := s.write(warn); err != nil {
					return err
				}
			}
			if err := s.write(msg); err != nil {
				return err
			}
		}
	}
}

func (s *Session) handleLine(line string) error {
	cmd, err := ParseCommand(line)
	if err != nil {
		return s.writeError(err.Error())
	}

	switch cmd.Kind {
	case CommandHelp:
		return s.writeHelp()
	case CommandQuit:
		if err := s.write("Goodbye."); err != nil {
			return err
		}
		return errQuit
	case CommandNick:
		s.nick = cmd.Arg
		return s.write("[ok] nickname set: " + s.nick)
	case CommandCreate:
		return s.handleCreate()
	case CommandJoin:
		return s.handleJoin(cmd.Arg)
	case CommandMsg:
		return s.handleMsg(cmd.Arg)
	default:
		return s.writeError("unknown command")
	}
}

func (s *Session) handleCreate() error {
	if s.nick == "" {
		return s.writeError("set a nickname first")
	}

	code := codegen.Unique(s.registry, s.cfg.CodeLength)
	room := NewRoom(s.cfg.RoomCapacity)
	s.registry.Insert(code, room)

	room.Increment()
	s.sub = room.Subscribe()
	s.room = room
	s.code = code
	room.Broadcast("[server] " + s.nick + " joined.")

	s.log.Info().Str("room", code).Str("nick", s.nick).Msg("room created")
	return s.write("[ok] room created: " + code)
}

func (s *Session) handleJoin(code string) error {
	if s.nick == "" {
		return s.writeError("set a nickname first")
	}

	room, ok := s.registry.Get(code)
	if !ok {
		return s.writeError("no such room: " + code)
	}
	if code == s.code {
		// Re-joining the current room would unbalance the member counter;
		// confirm membership instead.
		return s.write("[ok] already in room: " + code)
	}

	if s.room != nil {
		s.leaveRoom()
	}

	s.sub = room.Subscribe()
	room.Increment()
	s.room = room
	s.code = code
	room.Broadcast("[server] " + s.nick + " joined.")

	s.log.Info().Str("room", code).Str("nick", s.nick).Msg("joined room")
	return s.write("[ok] joined room: " + code)
}

func (s *Session) handleMsg(text string) error {
	if s.nick == "" {
		return s.writeError("set a nickname first")
	}
	if s.room == nil {
		return s.writeError("join a room first")
	}

	room, ok := s.registry.Get(s.code)
	if !ok {
		// Reaped out from under us; the closed subscription notice may still
		// be in flight.
		s.clearRoom()
		return s.writeError("room no longer exists")
	}

	room.Broadcast(s.nick + ": " + text)
	return nil
}

// leaveRoom releases the current membership: decrement, announce, then give
// the registry a chance to reap the now-possibly-empty room. Ordered,
// individually-atomic steps; see the reap race note on RemoveIfEmpty.
func (s *Session) leaveRoom() {
	if s.room == nil {
		return
	}
	room, code := s.room, s.code
	room.Unsubscribe(s.sub)
	room.Decrement()
	if s.nick != "" {
		room.Broadcast("[server] " + s.nick + " left.")
	}
	s.clearRoom()
	s.registry.RemoveIfEmpty(code)
	s.log.Info().Str("room", code).Str("nick", s.nick).Msg("left room")
}

func (s *Session) clearRoom() {
	s.room = nil
	s.sub = nil
	s.code = ""
}

func (s *Session) write(line string) error {
	if err := s.conn.WriteLine(line); err != nil {
		return fmt.Errorf("write line: %w", err)
	}
	return nil
}

func (s *Session) writeError(msg string) error {
	return s.write("[error] " + msg)
}

func (s *Session) writeHelp() error {
	help := []string{
		"[server] commands:",
		"[server]   HELP           show this help",
		"[server]   NICK <name>    set your nickname",
		"[server]   CREATE         create a new room",
		"[server]   JOIN <CODE>    join a room by its code",
		"[server]   MSG <text>     send a message to your room",
		"[server]   QUIT           disconnect",
	}
	for _, line := range help {
		if err := s.write(line); err != nil {
			return err
		}
	}
	return nil
}

// isDisconnect reports whether a read error just means the peer went away.
func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
