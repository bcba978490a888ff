package transport

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Receive and Write after the port has been closed.
var ErrClosed = errors.New("transport closed")

// DefaultInboxDepth is the number of inbound notifications buffered before
// the producer blocks.
const DefaultInboxDepth = 64

// Port is a byte-oriented link to the target bootloader.
//
// Write sends bytes as one atomic link-layer write; callers keep each write
// within MaxWriteSize. Inbound bytes arrive asynchronously and are handed out
// in arrival order by Receive, which blocks until data is available, the
// context is done or the port is closed.
type Port interface {
	// Write sends p to the target
	Write(p []byte) (int, error)

	// Receive returns the next inbound byte slice
	Receive(ctx context.Context) ([]byte, error)

	// ResetInput drops any inbound bytes not yet returned by Receive
	ResetInput() error

	// MaxWriteSize is the largest atomic write, or 0 when unlimited
	MaxWriteSize() int

	// Close releases the link
	Close() error
}

// Inbox is a bounded channel of inbound byte slices shared by Port
// implementations. Push is called from the backend's notification callback
// or reader goroutine; Receive is called by the single consumer.
type Inbox struct {
	ch        chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// NewInbox creates an Inbox buffering up to depth slices.
// depth <= 0 means DefaultInboxDepth.
func NewInbox(depth int) *Inbox {
	if depth <= 0 {
		depth = DefaultInboxDepth
	}
	return &Inbox{
		ch:     make(chan []byte, depth),
		closed: make(chan struct{}),
	}
}

// Push queues a copy of p. It blocks while the inbox is full and returns
// false if the inbox is closed. Empty slices are ignored.
func (b *Inbox) Push(p []byte) bool {
	if len(p) == 0 {
		return true
	}
	buf := make([]byte, len(p))
	copy(buf, p)

	select {
	case <-b.closed:
		return false
	default:
	}

	select {
	case b.ch <- buf:
		return true
	case <-b.closed:
		return false
	}
}

// Receive returns the next queued slice.
func (b *Inbox) Receive(ctx context.Context) ([]byte, error) {
	select {
	case buf := <-b.ch:
		return buf, nil
	default:
	}

	select {
	case buf := <-b.ch:
		return buf, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.closed:
		return nil, ErrClosed
	}
}

// Reset discards every queued slice without blocking.
func (b *Inbox) Reset() {
	for {
		select {
		case <-b.ch:
		default:
			return
		}
	}
}

// Close wakes any blocked Push or Receive. Safe to call more than once.
func (b *Inbox) Close() {
	b.closeOnce.Do(func() { close(b.closed) })
}

// Closed returns a channel that is closed when the inbox is closed.
func (b *Inbox) Closed() <-chan struct{} {
	return b.closed
}
