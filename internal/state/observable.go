package state

import "sync"

// Observable is the read side of a Value.
type Observable[T any] interface {
	// Get returns the current value.
	Get() T
	// Version counts writes; it starts at 0 and only grows.
	Version() uint64
	// Subscribe returns a channel that holds the latest value.  The
	// channel is primed with the current value, and a slow reader only
	// ever sees the newest one: intermediate values are dropped.
	// cancel unregisters and closes the channel.
	Subscribe() (updates <-chan T, cancel func())
}

// Value is a goroutine-safe cell that notifies subscribers on every
// write.  Slice values must be treated as immutable once stored.
type Value[T any] struct {
	mu      sync.RWMutex
	v       T
	version uint64
	subs    map[uint64]chan T
	nextSub uint64
}

// NewValue returns a Value holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{v: initial, subs: make(map[uint64]chan T)}
}

func (c *Value[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v
}

func (c *Value[T]) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Set stores v and notifies subscribers.
func (c *Value[T]) Set(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(v)
}

// Update replaces the value with fn(current) as one atomic step.
func (c *Value[T]) Update(fn func(T) T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(fn(c.v))
}

func (c *Value[T]) store(v T) {
	c.v = v
	c.version++
	for _, ch := range c.subs {
		push(ch, v)
	}
}

func (c *Value[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, 1)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.v
	c.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// push replaces whatever ch holds with v.  Only writers holding the
// Value's lock send, so after the drain the buffer has room.
func push[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
