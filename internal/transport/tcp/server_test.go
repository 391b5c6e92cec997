package tcp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/relay-server/internal/core"
)

func startServer(t *testing.T) (*core.Registry, string) {
	t.Helper()

	logger := zerolog.Nop()
	reg := core.NewRegistry()
	srv := NewServer("127.0.0.1:0", reg, core.SessionConfig{}, &logger)
	if err := srv.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		if err := srv.Run(ctx); err != nil {
			t.Errorf("server run: %v", err)
		}
	}()

	return reg, srv.Addr().String()
}

type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) send(line string) {
	c.t.Helper()
	if _, err := fmt.Fprintf(c.conn, "%s\n", line); err != nil {
		c.t.Fatalf("send %q: %v", line, err)
	}
}

// await reads lines until one equals want, skipping everything else.
func (c *client) await(want string) {
	c.t.Helper()
	c.awaitMatch(func(line string) bool { return line == want }, want)
}

// awaitPrefix reads lines until one starts with prefix, returning the rest.
func (c *client) awaitPrefix(prefix string) string {
	c.t.Helper()
	line := c.awaitMatch(func(line string) bool { return strings.HasPrefix(line, prefix) }, prefix+"...")
	return strings.TrimPrefix(line, prefix)
}

func (c *client) awaitMatch(match func(string) bool, desc string) string {
	c.t.Helper()
	if err := c.conn.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		c.t.Fatal(err)
	}
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			c.t.Fatalf("waiting for %q: %v", desc, err)
		}
		line = strings.TrimRight(line, "\r\n")
		if match(line) {
			return line
		}
	}
}

func eventually(t *testing.T, cond func() bool, desc string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not reached: %s", desc)
}

func TestRelayEndToEnd(t *testing.T) {
	reg, addr := startServer(t)

	alice := dial(t, addr)
	alice.await("Welcome to Relay!")
	alice.await("Type HELP for commands.")

	alice.send("NICK Alice")
	alice.await("[ok] nickname set: Alice")
	alice.send("CREATE")
	code := alice.awaitPrefix("[ok] room created: ")
	if len(code) != 8 {
		t.Fatalf("room code %q is not 8 characters", code)
	}

	bob := dial(t, addr)
	bob.send("NICK Bob")
	bob.send("JOIN " + code)
	bob.await("[ok] joined room: " + code)
	alice.await("[server] Bob joined.")

	bob.send("MSG hi")
	alice.await("Bob: hi")

	// Bob drops the connection: Alice sees the departure and the room, still
	// at one member, survives.
	bob.conn.Close()
	alice.await("[server] Bob left.")
	room, ok := reg.Get(code)
	if !ok {
		t.Fatal("room reaped while occupied")
	}
	eventually(t, func() bool { return room.Members() == 1 }, "member count back to one")

	// Alice quits: the room empties and becomes eligible for reaping.
	alice.send("QUIT")
	alice.await("Goodbye.")
	eventually(t, func() bool { return !reg.Contains(code) }, "empty room reaped")
}

func TestPreconditionErrorsOverTCP(t *testing.T) {
	_, addr := startServer(t)

	c := dial(t, addr)
	c.send("MSG hello")
	c.await("[error] set a nickname first")
	c.send("bogus")
	c.await("[error] unknown command: BOGUS")
	c.send("HELP")
	c.await("[server] commands:")
}

func TestConcurrentClientsInSeparateRooms(t *testing.T) {
	reg, addr := startServer(t)

	a := dial(t, addr)
	a.send("NICK A")
	a.send("CREATE")
	first := a.awaitPrefix("[ok] room created: ")

	b := dial(t, addr)
	b.send("NICK B")
	b.send("CREATE")
	second := b.awaitPrefix("[ok] room created: ")

	if first == second {
		t.Fatalf("two rooms share the code %q", first)
	}

	// Messages stay inside their room.
	a.send("MSG only for room one")
	b.send("MSG only for room two")
	a.await("A: only for room one")
	b.await("B: only for room two")

	if n := len(reg.List()); n != 2 {
		t.Fatalf("registry holds %d rooms, expected 2", n)
	}
}
