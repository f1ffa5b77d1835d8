// Package state holds the observable connection state: the connected
// flag, the server endpoint, both message logs and a status line.
//
// Each field is a Value that can be read at any time and subscribed
// to.  Only the coordinator writes; everything else sees a View.
package state

import (
	"fmt"
	"slices"
	"sync"
)

// InitialStatus is the status line before anything has happened.
const InitialStatus = "not connected"

// View is the read-only face of a State.
type View interface {
	Connected() Observable[bool]
	ServerAddress() Observable[string]
	ServerPort() Observable[int]
	ReceivedMessages() Observable[[]string]
	SentMessages() Observable[[]string]
	StatusMessage() Observable[string]

	// Snapshot copies every field at once.
	Snapshot() Snapshot
}

// Snapshot is a consistent copy of all fields.
type Snapshot struct {
	Connected        bool     `json:"connected"`
	ServerAddress    string   `json:"server_address"`
	ServerPort       int      `json:"server_port"`
	ReceivedMessages []string `json:"received_messages"`
	SentMessages     []string `json:"sent_messages"`
	StatusMessage    string   `json:"status_message"`
}

// State is the writable connection state.
type State struct {
	// mu makes multi-field mutators and Snapshot atomic with respect
	// to each other; single-field reads go straight to the Value.
	mu sync.Mutex

	connected *Value[bool]
	address   *Value[string]
	port      *Value[int]
	received  *Value[[]string]
	sent      *Value[[]string]
	status    *Value[string]
}

// New returns a disconnected State with empty logs.
func New() *State {
	return &State{
		connected: NewValue(false),
		address:   NewValue(""),
		port:      NewValue(0),
		received:  NewValue([]string{}),
		sent:      NewValue([]string{}),
		status:    NewValue(InitialStatus),
	}
}

func (s *State) Connected() Observable[bool]            { return s.connected }
func (s *State) ServerAddress() Observable[string]      { return s.address }
func (s *State) ServerPort() Observable[int]            { return s.port }
func (s *State) ReceivedMessages() Observable[[]string] { return s.received }
func (s *State) SentMessages() Observable[[]string]     { return s.sent }
func (s *State) StatusMessage() Observable[string]      { return s.status }

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Connected:        s.connected.Get(),
		ServerAddress:    s.address.Get(),
		ServerPort:       s.port.Get(),
		ReceivedMessages: slices.Clone(s.received.Get()),
		SentMessages:     slices.Clone(s.sent.Get()),
		StatusMessage:    s.status.Get(),
	}
}

// ── mutators ─────────────────────────────────────────────────────────

// SetServerInfo records the endpoint the client is (or will be)
// connected to.
func (s *State) SetServerInfo(address string, port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.address.Set(address)
	s.port.Set(port)
}

// UpdateConnectionState sets the connected flag and rewrites the
// status line to match.
func (s *State) UpdateConnectionState(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected.Set(connected)
	if connected {
		s.status.Set(fmt.Sprintf("connected to %s:%d", s.address.Get(), s.port.Get()))
	} else {
		s.status.Set("disconnected")
	}
}

func (s *State) AppendReceivedMessage(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received.Update(func(old []string) []string { return appendCopy(old, msg) })
}

func (s *State) AppendSentMessage(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent.Update(func(old []string) []string { return appendCopy(old, msg) })
}

func (s *State) UpdateStatusMessage(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Set(text)
}

// ClearMessages empties both logs.  The connection fields are left
// alone.
func (s *State) ClearMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received.Set([]string{})
	s.sent.Set([]string{})
}

// appendCopy never writes into old: readers may still hold it.
func appendCopy(old []string, msg string) []string {
	out := make([]string, len(old), len(old)+1)
	copy(out, old)
	return append(out, msg)
}
