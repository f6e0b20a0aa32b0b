// Package notify delivers domain events to subscribers: an in-process hub
// for server-sent events, a PostgreSQL NOTIFY relay for multi-instance
// deployments, and small adapters around them.
package notify

import (
	"context"
	"sync"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Event is a published message.
type Event struct {
	Channel string
	Name    string
	Payload []byte
}

// Publisher matches the publisher contracts of the domain packages.
type Publisher interface {
	Publish(ctx context.Context, channel, event string, payload []byte)
}

type subscriber struct {
	ch     chan Event
	closed bool
}

// Hub fans events out to in-process subscribers. Events on one channel reach
// each subscriber in publish order. A subscriber whose buffer is full misses
// the event instead of blocking the publisher.
type Hub struct {
	buffer int

	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	closed bool
}

var _ Publisher = (*Hub)(nil)

// NewHub creates a Hub with the given per-subscriber buffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		buffer: buffer,
		subs:   make(map[string]map[*subscriber]struct{}),
	}
}

// Subscribe registers interest in channel. The returned cancel function
// unsubscribes and closes the event channel; it is safe to call twice.
func (h *Hub) Subscribe(channel string) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	set, ok := h.subs[channel]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[channel] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, channel)
			}
			if !s.closed {
				s.closed = true
				close(s.ch)
			}
		})
	}
}

// Subscribers returns the number of subscribers of channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[channel])
}

// Publish implements Publisher.
func (h *Hub) Publish(ctx context.Context, channel, event string, payload []byte) {
	ev := Event{Channel: channel, Name: event, Payload: payload}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[channel] {
		select {
		case s.ch <- ev:
		default:
			zctx.From(ctx).Warn("Dropping event for slow subscriber",
				zap.String("channel", channel),
				zap.String("event", event),
			)
		}
	}
}

// Close ends every subscription and rejects new ones. Streams reading from
// the hub observe a closed channel and finish.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for channel, set := range h.subs {
		for s := range set {
			s.closed = true
			close(s.ch)
		}
		delete(h.subs, channel)
	}
}
