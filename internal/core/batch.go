package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"tcplink/util"
)

// BatchMode connects, sends a fixed list of messages, collects replies
// for a while and prints them, one per line.
type BatchMode struct {
	Coordinator *Coordinator
	Host        string
	Port        int
	Messages    []string
	Linger      time.Duration // how long to wait for replies after the last send
	Logger      *util.Logger

	// Stdout defaults to os.Stdout when nil.
	Stdout io.Writer
}

func (m *BatchMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run fails if the connection cannot be made or any message could not
// be sent.  Replies received before the failure are still printed.
func (m *BatchMode) Run(ctx context.Context) error {
	defer m.Coordinator.Release()
	view := m.Coordinator.State()

	if err := m.Coordinator.Connect(m.Host, m.Port); err != nil {
		return err
	}
	if err := m.Coordinator.Sync(ctx); err != nil {
		return err
	}
	if !view.Connected().Get() {
		return fmt.Errorf("%s", view.StatusMessage().Get())
	}

	var attempted, failed int
	for _, msg := range m.Messages {
		if strings.TrimSpace(msg) == "" {
			continue
		}
		attempted++
		before := len(view.SentMessages().Get())
		if err := m.Coordinator.Send(msg); err != nil {
			return err
		}
		if err := m.Coordinator.Sync(ctx); err != nil {
			return err
		}
		if len(view.SentMessages().Get()) == before {
			failed++
			m.Logger.Warn("%s", view.StatusMessage().Get())
		}
	}

	m.linger(ctx)

	out := m.stdout()
	for _, msg := range view.ReceivedMessages().Get() {
		fmt.Fprintln(out, msg)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d message(s) not sent", failed, attempted)
	}
	return nil
}

// linger waits for replies until the linger time is up, the peer
// closes, or ctx ends.
func (m *BatchMode) linger(ctx context.Context) {
	if m.Linger <= 0 {
		return
	}
	connected, cancel := m.Coordinator.State().Connected().Subscribe()
	defer cancel()

	timer := time.NewTimer(m.Linger)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case up := <-connected:
			if !up {
				m.Logger.Verbose("peer closed before linger expired")
				return
			}
		}
	}
}
