package transport

import (
	"context"
	"sync"

	"github.com/roach88/storebridge/internal/protocol"
)

// DefaultBufferSize is the per-instance queue capacity used when none is
// given.
const DefaultBufferSize = 256

type queue struct {
	mu     sync.Mutex
	ch     chan protocol.Envelope
	closed bool
}

func (q *queue) send(env protocol.Envelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrDisconnected
	}
	select {
	case q.ch <- env:
		return nil
	default:
		return ErrBufferFull
	}
}

func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// Channel is an in-process transport with one FIFO queue per instance.
// Post never blocks; a full queue drops the envelope with ErrBufferFull.
//
// DISCONNECT is consumed here: it closes the instance's queue, and
// receivers see ErrDisconnected once the queue is drained.
//
// Thread-safety: all methods are safe for concurrent use.
type Channel struct {
	mu         sync.Mutex
	queues     map[int]*queue
	bufferSize int
	closed     bool
}

// NewChannel creates a channel transport. bufferSize <= 0 uses
// DefaultBufferSize.
func NewChannel(bufferSize int) *Channel {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Channel{
		queues:     make(map[int]*queue),
		bufferSize: bufferSize,
	}
}

func (c *Channel) queue(id int) (*queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	q, ok := c.queues[id]
	if !ok {
		q = &queue{ch: make(chan protocol.Envelope, c.bufferSize)}
		c.queues[id] = q
	}
	return q, nil
}

// Post enqueues env on its instance's queue.
func (c *Channel) Post(env protocol.Envelope) error {
	q, err := c.queue(env.Instance())
	if err != nil {
		return err
	}
	if !protocol.ForwardedToMonitors(env) {
		q.close()
		return nil
	}
	return q.send(env)
}

// Receive waits for the next envelope of instance id.
func (c *Channel) Receive(ctx context.Context, id int) (protocol.Envelope, error) {
	q, err := c.queue(id)
	if err != nil {
		return nil, err
	}
	select {
	case env, ok := <-q.ch:
		if !ok {
			return nil, ErrDisconnected
		}
		return env, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryReceive returns the next envelope of instance id without waiting.
func (c *Channel) TryReceive(id int) (protocol.Envelope, bool) {
	q, err := c.queue(id)
	if err != nil {
		return nil, false
	}
	select {
	case env, ok := <-q.ch:
		return env, ok
	default:
		return nil, false
	}
}

// Drain returns every envelope queued for instance id.
func (c *Channel) Drain(id int) []protocol.Envelope {
	var out []protocol.Envelope
	for {
		env, ok := c.TryReceive(id)
		if !ok {
			return out
		}
		out = append(out, env)
	}
}

// QueueLength returns the number of envelopes waiting for instance id.
func (c *Channel) QueueLength(id int) int {
	q, err := c.queue(id)
	if err != nil {
		return 0
	}
	return len(q.ch)
}

// Close disconnects every instance. Later posts fail with ErrClosed.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, q := range c.queues {
		q.close()
	}
}
