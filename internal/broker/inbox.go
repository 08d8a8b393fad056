package broker

import (
	"context"
	"sync"
	"time"

	"github.com/nextlevelbuilder/swarmd/internal/store"
)

// Inbox is an unbounded FIFO queue with a single consumer and many
// producers. Push never blocks; Pop blocks until an item, a timeout, or
// cancellation.
type Inbox struct {
	mu     sync.Mutex
	items  []*store.Message
	ready  chan struct{} // 1-buffered wake signal for the consumer
	closed bool
}

func newInbox() *Inbox {
	return &Inbox{ready: make(chan struct{}, 1)}
}

func (in *Inbox) push(msg *store.Message) {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	in.items = append(in.items, msg)
	in.mu.Unlock()
	select {
	case in.ready <- struct{}{}:
	default:
	}
}

// Pop removes the oldest message. timeout 0 waits indefinitely. A timeout
// returns (nil, nil); cancellation returns ctx.Err().
func (in *Inbox) Pop(ctx context.Context, timeout time.Duration) (*store.Message, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}
	for {
		in.mu.Lock()
		if len(in.items) > 0 {
			msg := in.items[0]
			in.items = in.items[1:]
			// Re-arm the signal if more items remain so the single
			// consumer is not left sleeping on a non-empty queue.
			if len(in.items) > 0 {
				select {
				case in.ready <- struct{}{}:
				default:
				}
			}
			in.mu.Unlock()
			return msg, nil
		}
		closed := in.closed
		in.mu.Unlock()
		if closed {
			return nil, nil
		}

		select {
		case <-in.ready:
		case <-deadline:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Size returns the number of queued messages.
func (in *Inbox) Size() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.items)
}

// close wakes the consumer and makes further pushes no-ops.
func (in *Inbox) close() {
	in.mu.Lock()
	in.closed = true
	in.mu.Unlock()
	select {
	case in.ready <- struct{}{}:
	default:
	}
}
