package console

import (
	"fmt"
	"io"
	"sync"

	"tcplink/internal/state"
)

// Renderer prints the difference between successive state snapshots:
// status changes, newly received and sent messages, and clears.
type Renderer struct {
	mu    sync.Mutex
	out   io.Writer
	prev  state.Snapshot
	first bool
}

// NewRenderer returns a Renderer writing to out.  The first Render
// prints the status line only.
func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out, first: true}
}

// Render prints what changed since the previous call.
func (r *Renderer) Render(s state.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.first {
		r.first = false
		fmt.Fprintf(r.out, "* %s\n", s.StatusMessage)
		r.prev = s
		return
	}

	cleared := len(s.ReceivedMessages) < len(r.prev.ReceivedMessages) ||
		len(s.SentMessages) < len(r.prev.SentMessages)
	if cleared {
		fmt.Fprintln(r.out, "* history cleared")
		r.prev.ReceivedMessages = nil
		r.prev.SentMessages = nil
	}

	for _, m := range s.SentMessages[len(r.prev.SentMessages):] {
		fmt.Fprintf(r.out, "> %s\n", m)
	}
	for _, m := range s.ReceivedMessages[len(r.prev.ReceivedMessages):] {
		fmt.Fprintf(r.out, "< %s\n", m)
	}
	if s.StatusMessage != r.prev.StatusMessage {
		fmt.Fprintf(r.out, "* %s\n", s.StatusMessage)
	}
	r.prev = s
}

// Status prints a one-line summary of the connection.
func (r *Renderer) Status(s state.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn := "disconnected"
	if s.Connected {
		conn = fmt.Sprintf("connected to %s:%d", s.ServerAddress, s.ServerPort)
	} else if s.ServerAddress != "" {
		conn = fmt.Sprintf("disconnected (last server %s:%d)", s.ServerAddress, s.ServerPort)
	}
	fmt.Fprintf(r.out, "%s | status: %s | sent %d, received %d\n",
		conn, s.StatusMessage, len(s.SentMessages), len(s.ReceivedMessages))
}

// History prints both message logs.
func (r *Renderer) History(s state.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.out, "sent (%d):\n", len(s.SentMessages))
	for _, m := range s.SentMessages {
		fmt.Fprintf(r.out, "  %s\n", m)
	}
	fmt.Fprintf(r.out, "received (%d):\n", len(s.ReceivedMessages))
	for _, m := range s.ReceivedMessages {
		fmt.Fprintf(r.out, "  %s\n", m)
	}
}

// Printf writes a free-form line, serialised with the other output.
func (r *Renderer) Printf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format+"\n", args...)
}
