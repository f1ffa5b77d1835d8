// Package session owns the single TCP connection a client talks over.
//
// A Session has no goroutines of its own: the caller drives it with
// Connect, Send, Receive and Disconnect.  Receive polls with a short
// read deadline so a background loop can check for cancellation
// between polls.
package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	ncerr "tcplink/internal/errors"
	"tcplink/internal/metrics"
	"tcplink/internal/transport"
	"tcplink/util"
)

const (
	DefaultPollWait       = time.Millisecond
	DefaultSendTimeout    = 5 * time.Second
	DefaultConnectTimeout = 10 * time.Second
)

// Options tunes a Session.  Zero values select the defaults.
type Options struct {
	ConnectTimeout time.Duration
	SendTimeout    time.Duration
	PollWait       time.Duration // read deadline per Receive
	ChunkSize      int           // max bytes per Receive

	Logger  *util.Logger
	Metrics *metrics.Collector // may be nil
}

// Session is one client connection.  It is safe for concurrent use;
// reads and writes are serialised separately so a send never waits
// on a poll.
type Session struct {
	dialer  transport.Dialer
	opts    Options
	logger  *util.Logger
	metrics *metrics.Collector

	mu        sync.Mutex // guards the fields below
	conn      net.Conn
	w         *bufio.Writer
	out       *lineWriter
	addr      string
	id        string
	connected bool
	broken    bool

	rmu sync.Mutex // one reader at a time
	wmu sync.Mutex // one writer at a time
}

// New returns a disconnected Session that dials through dialer.
func New(dialer transport.Dialer, opts Options) *Session {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.PollWait <= 0 {
		opts.PollWait = DefaultPollWait
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = util.DefaultChunkSize
	}
	if opts.Logger == nil {
		opts.Logger = util.NewLogger(0)
	}
	return &Session{
		dialer:  dialer,
		opts:    opts,
		logger:  opts.Logger.Named("session"),
		metrics: opts.Metrics,
	}
}

// ── lifecycle ────────────────────────────────────────────────────────

// Connect closes any existing connection and dials address:port.  A nil
// return means the session is connected; on error it is left
// disconnected.
func (s *Session) Connect(ctx context.Context, address string, port int) error {
	s.Disconnect()

	addr, err := util.ResolveAddr(address, port)
	if err != nil {
		s.metrics.ConnectFailed(err.Error())
		return ncerr.Wrap("connect", fmt.Sprintf("%s:%d", address, port), err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	s.logger.Verbose("dialing %s", addr)
	conn, err := s.dialer.Dial(ctx, "tcp", addr)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("%w after %s", ncerr.ErrTimeout, s.opts.ConnectTimeout)
		}
		s.metrics.ConnectFailed(err.Error())
		return ncerr.Wrap("connect", addr, err)
	}

	id := uuid.NewString()

	s.mu.Lock()
	s.conn = conn
	s.out = &lineWriter{w: conn}
	s.w = bufio.NewWriter(s.out)
	s.addr = addr
	s.id = id
	s.connected = true
	s.broken = false
	s.mu.Unlock()

	s.metrics.SessionOpened()
	s.logger.Verbose("[%s] connected to %s", shortID(id), addr)
	return nil
}

// Disconnect closes the connection, if any.  It never fails and may be
// called any number of times.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn, id := s.detach()
	s.mu.Unlock()

	if conn != nil {
		s.close(conn, id)
	}
}

// teardown drops conn only if it is still the current connection, so a
// late error from a superseded connection cannot close its successor.
func (s *Session) teardown(conn net.Conn) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	_, id := s.detach()
	s.mu.Unlock()

	s.close(conn, id)
}

// detach clears the connection fields.  s.mu must be held.
func (s *Session) detach() (net.Conn, string) {
	conn, id := s.conn, s.id
	s.conn = nil
	s.w = nil
	s.out = nil
	s.connected = false
	s.broken = false
	s.id = ""
	return conn, id
}

// close half-closes write, then read, then closes conn.  Errors are
// only worth a debug line: the connection is going away regardless.
func (s *Session) close(conn net.Conn, id string) {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			s.logger.Debug("[%s] close write: %v", shortID(id), err)
		}
	}
	if cr, ok := conn.(interface{ CloseRead() error }); ok {
		if err := cr.CloseRead(); err != nil {
			s.logger.Debug("[%s] close read: %v", shortID(id), err)
		}
	}
	if err := conn.Close(); err != nil {
		s.logger.Debug("[%s] close: %v", shortID(id), err)
	}
	s.metrics.SessionClosed()
	s.logger.Verbose("[%s] disconnected", shortID(id))
}

// ── I/O ──────────────────────────────────────────────────────────────

// lineWriter counts the bytes that reached the connection so a send
// cut off part-way can be detected.  Guarded by Session.wmu.
type lineWriter struct {
	w    io.Writer
	n    int64
	torn bool // the last line on the wire has no terminating newline
}

func (l *lineWriter) Write(p []byte) (int, error) {
	n, err := l.w.Write(p)
	l.n += int64(n)
	return n, err
}

// Send writes message followed by a newline.  The write is bounded by
// the send timeout and abandoned as soon as ctx is cancelled.  A failed
// write leaves the session in place, but if the peer is gone the
// session is marked broken and IsConnected reports false from then on.
//
// If a failed write got part of the line out, the next message starts
// with a newline so it is not glued onto the fragment.
func (s *Session) Send(ctx context.Context, message string) error {
	s.mu.Lock()
	conn, w, out, addr := s.conn, s.w, s.out, s.addr
	live := s.connected && conn != nil && !s.broken
	s.mu.Unlock()

	if !live {
		return ncerr.ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return ncerr.Wrap("send", addr, err)
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	payload := message + "\n"
	if out.torn {
		payload = "\n" + payload
	}
	if err := conn.SetWriteDeadline(time.Now().Add(s.opts.SendTimeout)); err != nil {
		return s.sendFailed(conn, addr, err)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetWriteDeadline(time.Now()) //nolint:errcheck
	})
	defer stop()

	before := out.n
	_, err := w.WriteString(payload)
	if err == nil {
		err = w.Flush()
	}
	if err != nil {
		// Drop whatever is left in the buffer; the next send starts clean.
		w.Reset(out)
		out.torn = out.n > before
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		return s.sendFailed(conn, addr, err)
	}
	out.torn = false

	s.metrics.BytesSent(int64(len(payload)))
	s.metrics.MessageSent()
	return nil
}

func (s *Session) sendFailed(conn net.Conn, addr string, err error) error {
	if ncerr.IsConnClosed(err) {
		s.mu.Lock()
		if s.conn == conn {
			s.broken = true
		}
		s.mu.Unlock()
		s.logger.Verbose("send to %s: connection lost: %v", addr, err)
	}
	s.metrics.SendFailed(err.Error())
	return ncerr.Wrap("send", addr, err)
}

// Receive returns the next chunk of bytes from the peer.  It waits at
// most the poll wait; ok is false when nothing arrived or the session
// is not connected.  A closed connection is torn down as a side effect.
func (s *Session) Receive() (msg string, ok bool) {
	s.mu.Lock()
	conn, id := s.conn, s.id
	live := s.connected && conn != nil && !s.broken
	s.mu.Unlock()

	if !live {
		return "", false
	}

	s.rmu.Lock()
	defer s.rmu.Unlock()

	if err := conn.SetReadDeadline(time.Now().Add(s.opts.PollWait)); err != nil {
		if ncerr.IsConnClosed(err) {
			s.teardown(conn)
		}
		return "", false
	}

	buf := util.GetChunk(s.opts.ChunkSize)
	defer util.PutChunk(buf)

	n, err := conn.Read(*buf)
	if n > 0 {
		msg, ok = string((*buf)[:n]), true
		s.metrics.BytesReceived(int64(n))
		s.metrics.MessageReceived()
	}

	switch {
	case err == nil, ncerr.IsTimeout(err):
	case ncerr.IsConnClosed(err):
		s.logger.Verbose("[%s] connection closed by peer", shortID(id))
		s.teardown(conn)
	default:
		s.logger.Warn("[%s] read: %v", shortID(id), err)
		s.metrics.RecordError(err.Error())
	}
	return msg, ok
}

// ── accessors ────────────────────────────────────────────────────────

// IsConnected reports whether a live, unbroken connection is held.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected && s.conn != nil && !s.broken
}

// ID returns the current connection's identifier, or "" when
// disconnected.  Every successful Connect gets a fresh one.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// RemoteAddr returns the dialled host:port, or "" when disconnected.
func (s *Session) RemoteAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ""
	}
	return s.addr
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
