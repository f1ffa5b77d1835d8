package core

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"tcplink/internal/console"
	"tcplink/internal/state"
	"tcplink/util"
)

// InteractiveMode reads console lines and prints state changes until
// /quit, end of input, or cancellation.
type InteractiveMode struct {
	Coordinator *Coordinator
	Host        string // connect on start when set
	Port        int
	Banner      bool // print a short greeting (stdin is a terminal)
	Logger      *util.Logger

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	// Override in tests for deterministic I/O.
	Stdin  io.Reader
	Stdout io.Writer
}

func (m *InteractiveMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *InteractiveMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run drives the console.  The coordinator is released on return.
func (m *InteractiveMode) Run(ctx context.Context) error {
	view := m.Coordinator.State()
	r := console.NewRenderer(m.stdout())
	con := console.New(m.Coordinator, r)

	defer func() {
		m.Coordinator.Release()
		r.Render(view.Snapshot())
	}()

	changes, unwatch := watch(view)
	defer unwatch()

	if m.Banner {
		r.Printf("tcplink: type /help for commands")
	}
	if m.Host != "" {
		if err := m.Coordinator.Connect(m.Host, m.Port); err != nil {
			return err
		}
	}

	lines, scanErr := readLines(ctx, m.stdin())

	for {
		select {
		case <-ctx.Done():
			m.Logger.Verbose("interrupted")
			return nil

		case <-changes:
			r.Render(view.Snapshot())

		case line, ok := <-lines:
			if !ok {
				// End of input: let queued commands finish first.
				if err := m.Coordinator.Sync(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				r.Render(view.Snapshot())
				return <-scanErr
			}
			if err := con.HandleLine(line); err != nil {
				if errors.Is(err, console.ErrQuit) {
					return nil
				}
				return err
			}
		}
	}
}

// readLines scans r on its own goroutine.  The line channel is closed
// at end of input; the scanner's error (nil at EOF) is then sent on
// the second channel.
//
// A Read cannot be interrupted, so after ctx ends the goroutine stays
// parked in Scan until r yields a line or fails.  For os.Stdin that
// lasts until the process exits; callers passing their own reader
// should close it once Run returns.
func readLines(ctx context.Context, r io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				errc <- nil
				return
			}
		}
		if err := sc.Err(); err != nil {
			errc <- fmt.Errorf("reading input: %w", err)
			return
		}
		errc <- nil
	}()
	return lines, errc
}

// watch merges change notifications from every observable field into
// one conflated channel.
func watch(view state.View) (<-chan struct{}, func()) {
	changes := make(chan struct{}, 1)
	var cancels []func()

	cancels = append(cancels, forward(view.Connected(), changes))
	cancels = append(cancels, forward(view.StatusMessage(), changes))
	cancels = append(cancels, forward(view.ReceivedMessages(), changes))
	cancels = append(cancels, forward(view.SentMessages(), changes))

	return changes, func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

func forward[T any](o state.Observable[T], changes chan<- struct{}) func() {
	ch, cancel := o.Subscribe()
	go func() {
		for range ch {
			select {
			case changes <- struct{}{}:
			default:
			}
		}
	}()
	return cancel
}
