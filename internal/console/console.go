package console

import (
	"errors"

	ncerr "tcplink/internal/errors"
	"tcplink/internal/metrics"
	"tcplink/internal/state"
)

// Driver is the command surface the console needs.  *core.Coordinator
// satisfies it.
type Driver interface {
	Connect(address string, port int) error
	Disconnect() error
	Send(message string) error
	ClearMessages() error
	State() state.View
	Metrics() *metrics.Collector
	SessionID() string // "" while disconnected
}

// ErrQuit is returned by Execute for /quit.
var ErrQuit = errors.New("quit")

// Console applies parsed commands to a Driver and prints local
// replies (help, status, history, stats) through a Renderer.
type Console struct {
	drv Driver
	r   *Renderer
}

// New returns a Console for drv that prints through r.
func New(drv Driver, r *Renderer) *Console {
	return &Console{drv: drv, r: r}
}

// HandleLine parses and executes one input line.  Parse errors are
// printed, not returned; the only error is ErrQuit or one from the
// driver (ErrReleased).
func (c *Console) HandleLine(line string) error {
	cmd, err := ParseLine(line)
	if err != nil {
		c.r.Printf("! %v", err)
		return nil
	}
	return c.Execute(cmd)
}

// Execute runs cmd.
func (c *Console) Execute(cmd Command) error {
	switch cmd.Kind {
	case KindNone:
		return nil
	case KindSend:
		return c.drv.Send(cmd.Text)
	case KindConnect:
		return c.drv.Connect(cmd.Host, cmd.Port)
	case KindDisconnect:
		return c.drv.Disconnect()
	case KindClear:
		return c.drv.ClearMessages()
	case KindPickup:
		// Same gate as the keypad: a code is only sent while connected.
		if !c.drv.State().Connected().Get() {
			c.r.Printf("! %v: connect before sending a pickup code", ncerr.ErrNotConnected)
			return nil
		}
		msg, err := PickupMessage(cmd.Code)
		if err != nil {
			c.r.Printf("! %v", err)
			return nil
		}
		return c.drv.Send(msg)
	case KindStatus:
		c.r.Status(c.drv.State().Snapshot())
		if id := c.drv.SessionID(); id != "" {
			c.r.Printf("session %s", id)
		}
	case KindHistory:
		c.r.History(c.drv.State().Snapshot())
	case KindStats:
		if m := c.drv.Metrics(); m != nil {
			c.r.Printf("%s", m.JSON())
		} else {
			c.r.Printf("! metrics are disabled")
		}
	case KindHelp:
		c.r.Printf("%s", Help)
	case KindQuit:
		return ErrQuit
	}
	return nil
}
