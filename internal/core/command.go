package core

import (
	"errors"
	"fmt"
	"strings"
)

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandHelp asks for the command list.
	CommandHelp CommandKind = iota
	// CommandQuit ends the session.
	CommandQuit
	// CommandNick sets or overwrites the nickname.
	CommandNick
	// CommandCreate creates a fresh room and joins it.
	CommandCreate
	// CommandJoin joins an existing room by code.
	CommandJoin
	// CommandMsg sends a message to the current room.
	CommandMsg
)

// Command is the parsed form of one input line. Arg holds the nickname for
// CommandNick, the uppercased room code for CommandJoin and the message text
// for CommandMsg.
type Command struct {
	Kind CommandKind
	Arg  string
}

// ParseCommand turns a raw input line into a Command. It is pure: the trimmed
// line is split on the first space into an uppercased keyword and an optional
// trimmed remainder, and no shared state is touched. Errors are protocol
// replies for the client, not internal failures.
func ParseCommand(line string) (Command, error) {
	word, rest, hasRest := strings.Cut(strings.TrimSpace(line), " ")
	word = strings.ToUpper(word)
	rest = strings.TrimSpace(rest)

	switch word {
	case "HELP":
		return Command{Kind: CommandHelp}, nil
	case "QUIT":
		return Command{Kind: CommandQuit}, nil
	case "NICK":
		if !hasRest {
			return Command{}, errors.New("usage: NICK <name>")
		}
		if rest == "" {
			return Command{}, errors.New("nickname cannot be empty")
		}
		return Command{Kind: CommandNick, Arg: rest}, nil
	case "CREATE":
		return Command{Kind: CommandCreate}, nil
	case "JOIN":
		if !hasRest {
			return Command{}, errors.New("usage: JOIN <CODE>")
		}
		return Command{Kind: CommandJoin, Arg: strings.ToUpper(rest)}, nil
	case "MSG":
		if !hasRest {
			return Command{}, errors.New("usage: MSG <text>")
		}
		return Command{Kind: CommandMsg, Arg: rest}, nil
	default:
		return Command{}, fmt.Errorf("unknown command: %s", word)
	}
}
