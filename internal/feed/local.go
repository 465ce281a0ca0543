package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/mmynk/tableside/internal/metrics"
)

// DefaultBuffer is the per-subscriber queue length used by NewLocalBus.
const DefaultBuffer = 256

// ErrClosed is returned by a closed bus.
var ErrClosed = errors.New("feed closed")

// LocalBus is an in-process Bus. A subscriber whose queue is full is
// dropped rather than allowed to stall publishers; its channel is closed so
// it can resubscribe and resnapshot.
type LocalBus struct {
	buffer int

	mu     sync.Mutex
	subs   map[string]map[*subscription]struct{}
	closed bool
}

type subscription struct {
	ch   chan Event
	once sync.Once
}

func (s *subscription) close() {
	s.once.Do(func() {
		close(s.ch)
		metrics.FeedSubscribers.Dec()
	})
}

// NewLocalBus creates a LocalBus with the given per-subscriber buffer.
func NewLocalBus(buffer int) *LocalBus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &LocalBus{
		buffer: buffer,
		subs:   make(map[string]map[*subscription]struct{}),
	}
}

// Publish delivers event to every current subscriber of its venue.
func (b *LocalBus) Publish(ctx context.Context, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	for sub := range b.subs[event.VenueID] {
		select {
		case sub.ch <- event:
		default:
			slog.Warn("Dropping slow feed subscriber", "venue_id", event.VenueID)
			delete(b.subs[event.VenueID], sub)
			sub.close()
		}
	}
	metrics.FeedEvents.WithLabelValues(string(event.Entity)).Inc()
	return nil
}

// Subscribe registers a subscriber for venueID until ctx is done.
func (b *LocalBus) Subscribe(ctx context.Context, venueID string) (<-chan Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	sub := &subscription{ch: make(chan Event, b.buffer)}
	if b.subs[venueID] == nil {
		b.subs[venueID] = make(map[*subscription]struct{})
	}
	b.subs[venueID][sub] = struct{}{}
	metrics.FeedSubscribers.Inc()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[venueID], sub)
		if len(b.subs[venueID]) == 0 {
			delete(b.subs, venueID)
		}
		b.mu.Unlock()
		sub.close()
	}()

	return sub.ch, nil
}

// Close drops every subscriber. Later calls to Publish and Subscribe fail.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for venueID, subs := range b.subs {
		for sub := range subs {
			sub.close()
		}
		delete(b.subs, venueID)
	}
	return nil
}
