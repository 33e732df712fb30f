package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// DefaultBufferSize is the channel buffer for each subscriber.
const DefaultBufferSize = 64

// Topic is a typed fan-out event stream.
type Topic[T any] struct {
	name   string
	buffer int
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[string]chan T
	closed      bool

	published atomic.Int64
	dropped   atomic.Int64
}

// NewTopic creates a topic. Pass nil logger for default.
func NewTopic[T any](name string, logger *slog.Logger) *Topic[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Topic[T]{
		name:        name,
		buffer:      DefaultBufferSize,
		logger:      logger,
		subscribers: make(map[string]chan T),
	}
}

// Name returns the topic name.
func (t *Topic[T]) Name() string {
	return t.name
}

// Subscribe registers a subscriber and returns its channel and ID.
// The subscription is removed when ctx is cancelled or Unsubscribe is called.
// Subscribing to a closed topic returns an already-closed channel.
func (t *Topic[T]) Subscribe(ctx context.Context) (<-chan T, string) {
	id := uuid.NewString()
	ch := make(chan T, t.buffer)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		close(ch)
		return ch, id
	}
	t.subscribers[id] = ch
	t.mu.Unlock()

	t.logger.Debug("subscriber added", "topic", t.name, "sub_id", id)

	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			t.Unsubscribe(id)
		}()
	}

	return ch, id
}

// Unsubscribe removes a subscription and closes its channel.
func (t *Topic[T]) Unsubscribe(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, ok := t.subscribers[id]
	if !ok {
		return
	}
	delete(t.subscribers, id)
	close(ch)
}

// Publish delivers ev to every subscriber without blocking.
func (t *Topic[T]) Publish(ev T) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return
	}
	t.published.Add(1)

	for id, ch := range t.subscribers {
		select {
		case ch <- ev:
		default:
			t.dropped.Add(1)
			t.logger.Warn("dropped event for slow subscriber",
				"topic", t.name,
				"sub_id", id,
			)
		}
	}
}

// Subscribers returns the current subscriber count.
func (t *Topic[T]) Subscribers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subscribers)
}

// Stats returns published and dropped counts.
func (t *Topic[T]) Stats() (published, dropped int64) {
	return t.published.Load(), t.dropped.Load()
}

// Close closes every subscriber channel. Later publishes are ignored.
func (t *Topic[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	for id, ch := range t.subscribers {
		close(ch)
		delete(t.subscribers, id)
	}
}
