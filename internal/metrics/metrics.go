// Package metrics provides lightweight, lock-free counters and gauges
// for tracking runtime statistics of a tcplink coordinator.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for one coordinator and its session.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	sessionsActive   atomic.Int64
	sessionsTotal    atomic.Int64
	connectFailures  atomic.Int64
	peerDrops        atomic.Int64
	bytesIn          atomic.Int64
	bytesOut         atomic.Int64
	messagesIn       atomic.Int64
	messagesOut      atomic.Int64
	sendFailures     atomic.Int64
	receiversActive  atomic.Int64
	receiversPeak    atomic.Int64
	receiversStarted atomic.Int64
	errorsTotal      atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Session metrics ──────────────────────────────────────────────────

// SessionOpened increments both the active and total session counters.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionClosed decrements the active session counter.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
}

// ConnectFailed records a failed connect attempt.
func (c *Collector) ConnectFailed(msg string) {
	if c == nil {
		return
	}
	c.connectFailures.Add(1)
	c.RecordError(msg)
}

// PeerDropped records a connection closed by the remote side.
func (c *Collector) PeerDropped() {
	if c == nil {
		return
	}
	c.peerDrops.Add(1)
}

// ActiveSessions returns the number of open sessions (0 or 1).
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// TotalSessions returns the lifetime count of successful connects.
func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsTotal.Load()
}

// ConnectFailures returns the number of failed connect attempts.
func (c *Collector) ConnectFailures() int64 {
	if c == nil {
		return 0
	}
	return c.connectFailures.Load()
}

// PeerDrops returns how many sessions the peer closed.
func (c *Collector) PeerDrops() int64 {
	if c == nil {
		return 0
	}
	return c.peerDrops.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from the network.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to the network.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// MessageReceived counts one message appended to the received log.
func (c *Collector) MessageReceived() {
	if c == nil {
		return
	}
	c.messagesIn.Add(1)
}

// MessageSent counts one message appended to the sent log.
func (c *Collector) MessageSent() {
	if c == nil {
		return
	}
	c.messagesOut.Add(1)
}

// SendFailed records a failed send.
func (c *Collector) SendFailed(msg string) {
	if c == nil {
		return
	}
	c.sendFailures.Add(1)
	c.RecordError(msg)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// MessagesReceived returns the number of received messages logged.
func (c *Collector) MessagesReceived() int64 {
	if c == nil {
		return 0
	}
	return c.messagesIn.Load()
}

// MessagesSent returns the number of sent messages logged.
func (c *Collector) MessagesSent() int64 {
	if c == nil {
		return 0
	}
	return c.messagesOut.Load()
}

// SendFailures returns the number of failed sends.
func (c *Collector) SendFailures() int64 {
	if c == nil {
		return 0
	}
	return c.sendFailures.Load()
}

// ── Receive loop metrics ─────────────────────────────────────────────

// ReceiverStarted marks a receive loop as running and updates the peak.
func (c *Collector) ReceiverStarted() {
	if c == nil {
		return
	}
	c.receiversStarted.Add(1)
	n := c.receiversActive.Add(1)
	for {
		peak := c.receiversPeak.Load()
		if n <= peak || c.receiversPeak.CompareAndSwap(peak, n) {
			return
		}
	}
}

// ReceiverStopped marks a receive loop as finished.
func (c *Collector) ReceiverStopped() {
	if c == nil {
		return
	}
	c.receiversActive.Add(-1)
}

// ActiveReceivers returns the number of receive loops running now.
func (c *Collector) ActiveReceivers() int64 {
	if c == nil {
		return 0
	}
	return c.receiversActive.Load()
}

// PeakReceivers returns the highest number of receive loops ever
// observed running at the same time.
func (c *Collector) PeakReceivers() int64 {
	if c == nil {
		return 0
	}
	return c.receiversPeak.Load()
}

// ReceiversStarted returns how many receive loops have been started.
func (c *Collector) ReceiversStarted() int64 {
	if c == nil {
		return 0
	}
	return c.receiversStarted.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	SessionsActive   int64  `json:"sessions_active"`
	SessionsTotal    int64  `json:"sessions_total"`
	ConnectFailures  int64  `json:"connect_failures"`
	PeerDrops        int64  `json:"peer_drops"`
	BytesIn          int64  `json:"bytes_in"`
	BytesOut         int64  `json:"bytes_out"`
	MessagesIn       int64  `json:"messages_in"`
	MessagesOut      int64  `json:"messages_out"`
	SendFailures     int64  `json:"send_failures"`
	ReceiversActive  int64  `json:"receivers_active"`
	ReceiversPeak    int64  `json:"receivers_peak"`
	ErrorsTotal      int64  `json:"errors_total"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:          time.Since(c.startTime).Truncate(time.Second).String(),
		SessionsActive:  c.sessionsActive.Load(),
		SessionsTotal:   c.sessionsTotal.Load(),
		ConnectFailures: c.connectFailures.Load(),
		PeerDrops:       c.peerDrops.Load(),
		BytesIn:         c.bytesIn.Load(),
		BytesOut:        c.bytesOut.Load(),
		MessagesIn:      c.messagesIn.Load(),
		MessagesOut:     c.messagesOut.Load(),
		SendFailures:    c.sendFailures.Load(),
		ReceiversActive: c.receiversActive.Load(),
		ReceiversPeak:   c.receiversPeak.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
