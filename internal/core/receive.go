package core

import (
	"context"
	"strings"
	"time"
)

// receiver is the handle of a running receive loop.
type receiver struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// startReceive replaces any running loop with a new one.
func (c *Coordinator) startReceive() {
	c.stopReceive()

	ctx, cancel := context.WithCancel(c.ctx)
	r := &receiver{cancel: cancel, done: make(chan struct{})}
	c.recv = r

	c.metrics.ReceiverStarted()
	go c.receiveLoop(ctx, r.done)
}

// stopReceive cancels the running loop, if any, and waits for it,
// including its peer-close cleanup.
func (c *Coordinator) stopReceive() {
	if c.recv == nil {
		return
	}
	c.recv.cancel()
	<-c.recv.done
	c.recv = nil
}

// receiveLoop polls the session until cancelled or the connection is
// lost.  Cancellation is noticed within one poll interval plus one
// poll wait.
func (c *Coordinator) receiveLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer c.metrics.ReceiverStopped()

	id := c.sess.ID()
	c.logger.Debug("[%.8s] receive loop started", id)

	for ctx.Err() == nil && c.sess.IsConnected() {
		if msg, ok := c.sess.Receive(); ok {
			c.deliver(msg)
		}
		if ctx.Err() != nil || !c.sess.IsConnected() {
			break
		}

		wait := time.NewTimer(c.opts.PollInterval)
		select {
		case <-ctx.Done():
			wait.Stop()
		case <-wait.C:
		}
	}

	if !c.sess.IsConnected() {
		c.logger.Verbose("[%.8s] connection closed by peer", id)
		c.sess.Disconnect()
		c.state.UpdateConnectionState(false)
		c.state.UpdateStatusMessage(statusPeerClosed)
		c.metrics.PeerDropped()
	}
	c.logger.Debug("[%.8s] receive loop stopped", id)
}

// deliver records one received chunk.  Trailing line endings are
// trimmed; a chunk that was nothing but a line ending is skipped.
func (c *Coordinator) deliver(chunk string) {
	msg := strings.TrimRight(chunk, "\r\n")
	if msg == "" {
		return
	}
	c.state.AppendReceivedMessage(msg)
	c.state.UpdateStatusMessage(statusReceived)
}
