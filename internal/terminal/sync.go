package terminal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mmynk/tableside/internal/feed"
	"github.com/mmynk/tableside/internal/models"
)

// ErrFeedClosed is returned by Sync.Once when the transport drops the
// subscription.
var ErrFeedClosed = errors.New("feed closed")

// DefaultReconnect is the pause between sync rounds.
const DefaultReconnect = 2 * time.Second

// Snapshotter reads the full state of a venue.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]*models.Order, []*models.Table, error)
}

// Sync keeps a View in step with the server.
type Sync struct {
	View    *View
	Source  Snapshotter
	Feed    feed.Subscriber
	VenueID string

	Reconnect time.Duration

	// OnSnapshot, if set, is called after each snapshot is loaded.
	OnSnapshot func()

	// OnEvent, if set, is called after each event that changed the view.
	OnEvent func(feed.Event)
}

// Run syncs until ctx is done, starting a new round whenever the feed
// drops or a snapshot fails.
func (s *Sync) Run(ctx context.Context) error {
	reconnect := s.Reconnect
	if reconnect <= 0 {
		reconnect = DefaultReconnect
	}
	for {
		err := s.Once(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("Feed sync interrupted, reconnecting", "venue_id", s.VenueID, "error", err, "in", reconnect)
		select {
		case <-time.After(reconnect):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Once runs one round: subscribe, load a snapshot, then apply events until
// the subscription ends. Subscribing first means no change made during the
// snapshot is missed; the view's version rule drops whichever copy is older.
func (s *Sync) Once(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	events, err := s.Feed.Subscribe(gctx, s.VenueID)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	g.Go(func() error {
		orders, tables, err := s.Source.Snapshot(gctx)
		if err != nil {
			return fmt.Errorf("failed to load snapshot: %w", err)
		}
		s.View.Load(orders, tables)
		slog.Info("Snapshot loaded", "venue_id", s.VenueID, "orders", len(orders), "tables", len(tables))
		if s.OnSnapshot != nil {
			s.OnSnapshot()
		}
		return nil
	})

	g.Go(func() error {
		for ev := range events {
			changed, err := s.View.Apply(ev)
			if err != nil {
				slog.Error("Failed to apply feed event", "entity", ev.Entity, "id", ev.ID, "error", err)
				continue
			}
			if changed && s.OnEvent != nil {
				s.OnEvent(ev)
			}
		}
		if gctx.Err() != nil {
			return gctx.Err()
		}
		return ErrFeedClosed
	})

	return g.Wait()
}
