package core

import (
	"context"
	"sync"
)

// command is one unit of work for the coordinator's worker.
type command struct {
	name string
	run  func(ctx context.Context)
}

// commandQueue is an unbounded FIFO.  push never blocks, so UI callers
// are never held up by a slow dial; pop blocks the single worker until
// there is work, the queue is closed, or ctx ends.
type commandQueue struct {
	mu     sync.Mutex
	items  []command
	closed bool
	notify chan struct{} // capacity 1: "something changed"
}

func newCommandQueue() *commandQueue {
	return &commandQueue{notify: make(chan struct{}, 1)}
}

// push appends cmd.  It reports false once the queue is closed.
func (q *commandQueue) push(cmd command) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, cmd)
	q.mu.Unlock()

	q.wake()
	return true
}

func (q *commandQueue) pop(ctx context.Context) (command, bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return command{}, false
		}
		if len(q.items) > 0 {
			cmd := q.items[0]
			q.items[0] = command{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return cmd, true
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return command{}, false
		}
	}
}

// close rejects further pushes and drops anything still pending.  It
// returns the number of dropped commands.
func (q *commandQueue) close() int {
	q.mu.Lock()
	dropped := len(q.items)
	q.items = nil
	q.closed = true
	q.mu.Unlock()

	q.wake()
	return dropped
}

func (q *commandQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *commandQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
