// Command relay_client is a small interactive TCP client for manual testing.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if err := run(); err != nil {
		log.Printf("relay_client: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "localhost:7000", "relay server address")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	fmt.Printf("Connected to %s. Type commands, Ctrl+C to exit.\n", *addr)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	done := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			fmt.Println(scanner.Text())
		}
		done <- scanner.Err()
	}()

	go func() {
		stdin := bufio.NewScanner(os.Stdin)
		for stdin.Scan() {
			if _, err := fmt.Fprintf(conn, "%s\n", stdin.Text()); err != nil {
				return
			}
		}
	}()

	if err := <-done; err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("read: %w", err)
	}
	fmt.Println("disconnected")
	return nil
}
