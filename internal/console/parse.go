// Package console is the line-oriented front end: it turns typed lines
// into coordinator commands and prints state changes as they happen.
//
// Lines starting with "/" are commands; anything else is sent to the
// server as-is.  A leading "//" sends a literal "/".
package console

import (
	"fmt"
	"strings"

	"tcplink/config"
)

// Kind identifies what a parsed line asks for.
type Kind int

const (
	KindNone Kind = iota // blank line
	KindSend
	KindConnect
	KindDisconnect
	KindClear
	KindPickup
	KindStatus
	KindHistory
	KindStats
	KindHelp
	KindQuit
)

var kindNames = map[Kind]string{
	KindNone:       "none",
	KindSend:       "send",
	KindConnect:    "connect",
	KindDisconnect: "disconnect",
	KindClear:      "clear",
	KindPickup:     "pickup",
	KindStatus:     "status",
	KindHistory:    "history",
	KindStats:      "stats",
	KindHelp:       "help",
	KindQuit:       "quit",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Command is one parsed input line.
type Command struct {
	Kind Kind
	Text string // KindSend: the message
	Host string // KindConnect
	Port int    // KindConnect
	Code string // KindPickup: the 4-digit code
}

// commands maps every accepted spelling to its kind and arity.
var commands = map[string]struct {
	kind Kind
	args int
}{
	"connect":    {KindConnect, 2},
	"c":          {KindConnect, 2},
	"disconnect": {KindDisconnect, 0},
	"d":          {KindDisconnect, 0},
	"clear":      {KindClear, 0},
	"pickup":     {KindPickup, 1},
	"p":          {KindPickup, 1},
	"status":     {KindStatus, 0},
	"history":    {KindHistory, 0},
	"stats":      {KindStats, 0},
	"help":       {KindHelp, 0},
	"?":          {KindHelp, 0},
	"quit":       {KindQuit, 0},
	"exit":       {KindQuit, 0},
}

// ParseLine parses one line of input.
func ParseLine(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return Command{Kind: KindNone}, nil
	}

	trimmed := strings.TrimLeft(line, " \t")
	if strings.HasPrefix(trimmed, "//") {
		return Command{Kind: KindSend, Text: trimmed[1:]}, nil
	}
	if !strings.HasPrefix(trimmed, "/") {
		return Command{Kind: KindSend, Text: line}, nil
	}

	fields := strings.Fields(trimmed[1:])
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("empty command (try /help)")
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	spec, ok := commands[name]
	if !ok {
		return Command{}, fmt.Errorf("unknown command /%s (try /help)", name)
	}
	if len(args) != spec.args {
		return Command{}, fmt.Errorf("/%s takes %d argument(s), got %d", name, spec.args, len(args))
	}

	cmd := Command{Kind: spec.kind}
	switch spec.kind {
	case KindConnect:
		port, err := config.ParsePort(args[1])
		if err != nil {
			return Command{}, fmt.Errorf("/%s: %w", name, err)
		}
		cmd.Host, cmd.Port = args[0], port
	case KindPickup:
		if err := ValidatePickupCode(args[0]); err != nil {
			return Command{}, err
		}
		cmd.Code = args[0]
	}
	return cmd, nil
}

// Help lists the console commands.
const Help = `Commands:
  /connect <host> <port>   connect (drops any current connection)
  /disconnect              close the connection
  /pickup <code>           send PICKUP:<code> (4 digits)
  /clear                   clear sent and received history
  /history                 show sent and received messages
  /status                  show the connection status
  /stats                   show traffic counters
  /help                    show this help
  /quit                    exit
Any other line is sent to the server; start it with // to send a leading /.`
