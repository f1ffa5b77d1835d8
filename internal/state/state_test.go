package state

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return v
	case <-time.After(time.Second):
		t.Fatal("no value delivered")
	}
	var zero T
	return zero
}

// TestValue_SubscribePrimed verifies a new subscriber sees the current
// value straight away.
func TestValue_SubscribePrimed(t *testing.T) {
	v := NewValue("a")
	v.Set("b")

	ch, cancel := v.Subscribe()
	defer cancel()

	if got := recv(t, ch); got != "b" {
		t.Errorf("first value = %q, want %q", got, "b")
	}
}

// TestValue_Conflation verifies a slow subscriber only sees the newest
// value and writers never block on it.
func TestValue_Conflation(t *testing.T) {
	v := NewValue(0)
	ch, cancel := v.Subscribe()
	defer cancel()

	for i := 1; i <= 100; i++ {
		v.Set(i)
	}

	if got := recv(t, ch); got != 100 {
		t.Errorf("got %d, want latest value 100", got)
	}
	select {
	case extra := <-ch:
		t.Errorf("unexpected extra value %d", extra)
	default:
	}
}

// TestValue_Version verifies every write bumps the version.
func TestValue_Version(t *testing.T) {
	v := NewValue(1)
	if v.Version() != 0 {
		t.Fatalf("initial version = %d", v.Version())
	}
	v.Set(2)
	v.Update(func(n int) int { return n * 10 })
	if v.Version() != 2 {
		t.Errorf("version = %d, want 2", v.Version())
	}
	if v.Get() != 20 {
		t.Errorf("Get = %d, want 20", v.Get())
	}
}

// TestValue_Cancel verifies cancel closes the channel and is
// idempotent.
func TestValue_Cancel(t *testing.T) {
	v := NewValue(0)
	ch, cancel := v.Subscribe()
	<-ch

	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	v.Set(5) // must not panic on a closed channel
}

// TestValue_ConcurrentUpdate verifies Update is atomic.
func TestValue_ConcurrentUpdate(t *testing.T) {
	v := NewValue(0)
	ch, cancel := v.Subscribe()
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v.Update(func(n int) int { return n + 1 })
		}()
	}
	wg.Wait()

	if v.Get() != 50 {
		t.Errorf("Get = %d, want 50", v.Get())
	}
	if got := recv(t, ch); got != 50 {
		t.Errorf("subscriber saw %d, want 50", got)
	}
}

// ── State ────────────────────────────────────────────────────────────

func TestState_Initial(t *testing.T) {
	s := New().Snapshot()
	if s.Connected || s.ServerAddress != "" || s.ServerPort != 0 {
		t.Errorf("unexpected connection fields: %+v", s)
	}
	if len(s.ReceivedMessages) != 0 || len(s.SentMessages) != 0 {
		t.Errorf("logs should start empty: %+v", s)
	}
	if s.StatusMessage != InitialStatus {
		t.Errorf("status = %q", s.StatusMessage)
	}
}

func TestState_UpdateConnectionState(t *testing.T) {
	tests := []struct {
		connected bool
		want      string
	}{
		{true, "connected to 10.0.0.5:8080"},
		{false, "disconnected"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.connected), func(t *testing.T) {
			s := New()
			s.SetServerInfo("10.0.0.5", 8080)
			s.UpdateConnectionState(tt.connected)

			if got := s.Connected().Get(); got != tt.connected {
				t.Errorf("Connected = %v", got)
			}
			if got := s.StatusMessage().Get(); got != tt.want {
				t.Errorf("status = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestState_AppendDoesNotAlias(t *testing.T) {
	s := New()
	s.AppendReceivedMessage("one")
	before := s.ReceivedMessages().Get()

	s.AppendReceivedMessage("two")
	s.AppendSentMessage("out")

	if len(before) != 1 || before[0] != "one" {
		t.Errorf("published slice changed: %v", before)
	}
	snap := s.Snapshot()
	if fmt.Sprint(snap.ReceivedMessages) != "[one two]" {
		t.Errorf("received = %v", snap.ReceivedMessages)
	}
	if fmt.Sprint(snap.SentMessages) != "[out]" {
		t.Errorf("sent = %v", snap.SentMessages)
	}

	// Mutating a snapshot must not leak back.
	snap.ReceivedMessages[0] = "tampered"
	if s.ReceivedMessages().Get()[0] != "one" {
		t.Error("snapshot aliases internal state")
	}
}

// TestState_ClearKeepsConnection verifies ClearMessages only touches
// the logs.
func TestState_ClearKeepsConnection(t *testing.T) {
	s := New()
	s.SetServerInfo("host", 9000)
	s.UpdateConnectionState(true)
	s.AppendReceivedMessage("in")
	s.AppendSentMessage("out")
	s.UpdateStatusMessage("message sent")

	s.ClearMessages()

	snap := s.Snapshot()
	if len(snap.ReceivedMessages) != 0 || len(snap.SentMessages) != 0 {
		t.Errorf("logs not cleared: %+v", snap)
	}
	if !snap.Connected || snap.ServerAddress != "host" || snap.ServerPort != 9000 {
		t.Errorf("connection fields changed: %+v", snap)
	}
	if snap.StatusMessage != "message sent" {
		t.Errorf("status changed: %q", snap.StatusMessage)
	}
}

// TestState_ViewSubscription verifies a View subscriber is pushed the
// status line.
func TestState_ViewSubscription(t *testing.T) {
	s := New()
	var view View = s

	ch, cancel := view.StatusMessage().Subscribe()
	defer cancel()
	if got := recv(t, ch); got != InitialStatus {
		t.Fatalf("primed value = %q", got)
	}

	s.UpdateStatusMessage("sending message...")
	if got := recv(t, ch); got != "sending message..." {
		t.Errorf("got %q", got)
	}
}
