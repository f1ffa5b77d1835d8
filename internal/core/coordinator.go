package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ncerr "tcplink/internal/errors"
	"tcplink/internal/metrics"
	"tcplink/internal/session"
	"tcplink/internal/state"
	"tcplink/internal/transport"
	"tcplink/util"
)

// DefaultPollInterval is the pause between two receive polls.
const DefaultPollInterval = 50 * time.Millisecond

// Status lines written by the coordinator.  UpdateConnectionState
// supplies "connected to ..." and "disconnected".
const (
	statusSending     = "sending message..."
	statusSent        = "message sent"
	statusReceived    = "message received"
	statusPeerClosed  = "connection closed by peer"
	statusConnecting  = "connecting to %s:%d..."
	statusConnectFail = "connection to %s:%d failed: %s"
	statusSendFailed  = "message send failed: %s"
)

// CoordinatorOptions configures a Coordinator.
type CoordinatorOptions struct {
	PollInterval time.Duration
	Session      session.Options

	Logger  *util.Logger
	Metrics *metrics.Collector // may be nil
}

// Coordinator drives one Session on behalf of a user interface.
//
// Commands (Connect, Disconnect, Send, ClearMessages) return at once;
// a single worker goroutine applies them in submission order.  While
// connected, a receive loop polls the session and appends incoming
// chunks to the state.  Callers observe the outcome through State().
type Coordinator struct {
	sess    *session.Session
	dialer  transport.Dialer
	state   *state.State
	opts    CoordinatorOptions
	logger  *util.Logger
	metrics *metrics.Collector

	ctx    context.Context // lifetime; cancelled by Release
	cancel context.CancelFunc
	queue  *commandQueue

	mu          sync.Mutex // guards released; held while enqueueing
	released    bool
	workerDone  chan struct{}
	releaseDone chan struct{}

	// recv is only touched by the worker, and by Release once the
	// worker has exited.
	recv *receiver
}

// NewCoordinator creates a Coordinator that dials through dialer and
// starts its worker.  Call Release when done.
func NewCoordinator(dialer transport.Dialer, opts CoordinatorOptions) *Coordinator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = util.NewLogger(0)
	}
	if opts.Session.Logger == nil {
		opts.Session.Logger = opts.Logger
	}
	if opts.Session.Metrics == nil {
		opts.Session.Metrics = opts.Metrics
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		sess:        session.New(dialer, opts.Session),
		dialer:      dialer,
		state:       state.New(),
		opts:        opts,
		logger:      opts.Logger.Named("coordinator"),
		metrics:     opts.Metrics,
		ctx:         ctx,
		cancel:      cancel,
		queue:       newCommandQueue(),
		workerDone:  make(chan struct{}),
		releaseDone: make(chan struct{}),
	}
	go c.work()
	return c
}

// State returns a read-only view for rendering and subscriptions.
func (c *Coordinator) State() state.View { return c.state }

// Metrics returns the collector the coordinator reports to, or nil.
func (c *Coordinator) Metrics() *metrics.Collector { return c.metrics }

// SessionID identifies the current connection in logs and /status; it is
// empty while disconnected.
func (c *Coordinator) SessionID() string { return c.sess.ID() }

// ── commands ─────────────────────────────────────────────────────────

// Connect records the endpoint, shows a "connecting" status and queues
// the dial.  Any existing connection is dropped first.
func (c *Coordinator) Connect(address string, port int) error {
	return c.submit("connect", func() {
		c.state.SetServerInfo(address, port)
		c.state.UpdateStatusMessage(fmt.Sprintf(statusConnecting, address, port))
	}, func(ctx context.Context) {
		c.doConnect(ctx, address, port)
	})
}

// Disconnect queues a teardown.  It is harmless when already
// disconnected.
func (c *Coordinator) Disconnect() error {
	return c.submit("disconnect", nil, func(context.Context) {
		c.doDisconnect()
	})
}

// Send queues message for delivery.  Whitespace-only messages are
// dropped without touching the socket.
func (c *Coordinator) Send(message string) error {
	if strings.TrimSpace(message) == "" {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.released {
			return ncerr.ErrReleased
		}
		c.logger.Debug("dropping blank message")
		return nil
	}
	return c.submit("send", nil, func(ctx context.Context) {
		c.doSend(ctx, message)
	})
}

// ClearMessages queues the emptying of both message logs.
func (c *Coordinator) ClearMessages() error {
	return c.submit("clear", nil, func(context.Context) {
		c.state.ClearMessages()
	})
}

// Sync blocks until every command submitted before it has run.
func (c *Coordinator) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if err := c.submit("sync", nil, func(context.Context) { close(done) }); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-c.workerDone:
		return ncerr.ErrReleased
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release stops the coordinator for good: queued commands are dropped,
// an in-flight dial or send is aborted, the receive loop is stopped, the
// connection is closed and the dialer released.  Later commands fail
// with ErrReleased.  Release may be called more than once; every call
// returns after teardown has finished.
func (c *Coordinator) Release() {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		<-c.releaseDone
		return
	}
	c.released = true
	dropped := c.queue.close()
	c.mu.Unlock()

	if dropped > 0 {
		c.logger.Verbose("release: dropped %d queued command(s)", dropped)
	}

	c.cancel()
	<-c.workerDone

	c.stopReceive()
	c.sess.Disconnect()
	c.state.UpdateConnectionState(false)
	if err := c.dialer.Close(); err != nil {
		c.logger.Debug("closing dialer: %v", err)
	}
	close(c.releaseDone)
}

// submit runs pre synchronously and queues fn, both under c.mu so that
// nothing reaches the state after Release has begun.
func (c *Coordinator) submit(name string, pre func(), fn func(context.Context)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return ncerr.ErrReleased
	}
	if pre != nil {
		pre()
	}
	c.queue.push(command{name: name, run: fn})
	return nil
}

// ── worker ───────────────────────────────────────────────────────────

func (c *Coordinator) work() {
	defer close(c.workerDone)
	for {
		cmd, ok := c.queue.pop(c.ctx)
		if !ok {
			return
		}
		c.logger.Debug("running %s (%d queued)", cmd.name, c.queue.pending())
		cmd.run(c.ctx)
	}
}

func (c *Coordinator) doConnect(ctx context.Context, address string, port int) {
	c.stopReceive()

	if err := c.sess.Connect(ctx, address, port); err != nil {
		c.logger.Verbose("connect %s:%d: %v", address, port, err)
		c.state.UpdateConnectionState(false)
		c.state.UpdateStatusMessage(fmt.Sprintf(statusConnectFail, address, port, reason(err)))
		return
	}

	c.state.UpdateConnectionState(true)
	c.logger.Verbose("[%.8s] connected to %s:%d", c.sess.ID(), address, port)
	if ctx.Err() == nil {
		c.startReceive()
	}
}

func (c *Coordinator) doDisconnect() {
	c.stopReceive()
	c.sess.Disconnect()
	c.state.UpdateConnectionState(false)
}

func (c *Coordinator) doSend(ctx context.Context, message string) {
	c.state.UpdateStatusMessage(statusSending)
	if err := c.sess.Send(ctx, message); err != nil {
		c.logger.Verbose("send: %v", err)
		c.state.UpdateStatusMessage(fmt.Sprintf(statusSendFailed, reason(err)))
		return
	}
	c.state.AppendSentMessage(message)
	c.state.UpdateStatusMessage(statusSent)
}

// reason strips the operation and address from a NetworkError; the
// status line already names the endpoint.
func reason(err error) string {
	var netErr *ncerr.NetworkError
	if ncerr.As(err, &netErr) && netErr.Err != nil {
		return netErr.Err.Error()
	}
	return err.Error()
}
