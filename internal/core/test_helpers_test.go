package core

import (
	"io"
	"strings"
	"testing"
	"time"
)

// pipeConn is an in-memory LineConn for driving sessions from tests.
type pipeConn struct {
	in  chan string
	out chan string
}

func newPipeConn() *pipeConn {
	return &pipeConn{
		in:  make(chan string),
		out: make(chan string, 256),
	}
}

func (c *pipeConn) ReadLine() (string, error) {
	line, ok := <-c.in
	if !ok {
		return "", io.EOF
	}
	return line, nil
}

func (c *pipeConn) WriteLine(line string) error {
	c.out <- line
	return nil
}

// send feeds one input line to the session.
func (c *pipeConn) send(line string) { c.in <- line }

// hangup simulates the client disconnecting.
func (c *pipeConn) hangup() { close(c.in) }

// awaitLine waits for an output line exactly equal to want, skipping
// unrelated lines (banners, join echoes).
func awaitLine(t *testing.T, c *pipeConn, want string) {
	t.Helper()
	awaitMatch(t, c, func(line string) bool { return line == want }, want)
}

// awaitPrefix waits for an output line starting with prefix and returns the
// remainder.
func awaitPrefix(t *testing.T, c *pipeConn, prefix string) string {
	t.Helper()
	line := awaitMatch(t, c, func(line string) bool { return strings.HasPrefix(line, prefix) }, prefix+"...")
	return strings.TrimPrefix(line, prefix)
}

func awaitMatch(t *testing.T, c *pipeConn, match func(string) bool, desc string) string {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case line := <-c.out:
			if match(line) {
				return line
			}
		case <-deadline:
			t.Fatalf("expected output line %q not received", desc)
			return ""
		}
	}
}

// eventually polls cond until it holds or the deadline passes.
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
