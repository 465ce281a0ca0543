// Package service implements the Connect handlers for orders and tables.
//
// Every mutation follows the same path: read the authoritative record,
// validate, apply, recompute derived fields, write with a version check and
// publish the full record on the venue's change feed. Intent-based
// mutations ("refund item X") are re-read and re-applied when a concurrent
// writer wins; a request that pins ExpectedVersion fails instead.
package service

import (
	"context"
	"errors"
	"log/slog"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"

	"github.com/mmynk/tableside/internal/calculator"
	"github.com/mmynk/tableside/internal/feed"
	"github.com/mmynk/tableside/internal/middleware"
	"github.com/mmynk/tableside/internal/models"
	"github.com/mmynk/tableside/internal/storage"
)

// DefaultMaxConflictRetries bounds how often a mutation is re-applied after
// losing a version race.
const DefaultMaxConflictRetries = 3

// Options configures the services.
type Options struct {
	// TaxRate is copied onto each new order. Zero means calculator.DefaultTaxRate.
	TaxRate decimal.Decimal

	// MaxConflictRetries is the number of re-applies after a conflict.
	// Zero means DefaultMaxConflictRetries; negative disables retries.
	MaxConflictRetries int
}

func (o Options) taxRate() decimal.Decimal {
	if o.TaxRate.IsZero() {
		return calculator.DefaultTaxRate
	}
	return o.TaxRate
}

func (o Options) retries() int {
	switch {
	case o.MaxConflictRetries == 0:
		return DefaultMaxConflictRetries
	case o.MaxConflictRetries < 0:
		return 0
	}
	return o.MaxConflictRetries
}

// base holds what both services share.
type base struct {
	store storage.Store
	feed  feed.Publisher
	opts  Options
}

// actorFrom returns the authenticated terminal or an Unauthenticated error.
func actorFrom(ctx context.Context) (models.Actor, error) {
	actor, ok := middleware.GetActor(ctx)
	if !ok || actor.VenueID == "" {
		return models.Actor{}, connect.NewError(connect.CodeUnauthenticated, errors.New("terminal identity required"))
	}
	return actor, nil
}

// connectError maps the storage error taxonomy onto Connect codes.
func connectError(err error) error {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return connectErr
	}
	switch {
	case errors.Is(err, models.ErrValidation):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, models.ErrConflict):
		return connect.NewError(connect.CodeAborted, err)
	case errors.Is(err, models.ErrUnavailable):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, models.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}

// shouldRetry reports whether a failed write may be re-applied.
func (b *base) shouldRetry(err error, expectedVersion int64, attempt int) bool {
	return errors.Is(err, models.ErrConflict) && expectedVersion == 0 && attempt < b.opts.retries()
}

// publish sends the full record on the venue feed. A failed publish is
// logged and does not fail the request: the write is already durable and
// terminals converge on their next snapshot.
func (b *base) publish(ctx context.Context, venueID string, entity feed.Entity, op feed.Op, id string, version int64, record any) {
	if b.feed == nil {
		return
	}
	event, err := feed.NewEvent(venueID, entity, op, id, version, record)
	if err != nil {
		slog.Error("Failed to build feed event", "entity", entity, "id", id, "error", err)
		return
	}
	if err := b.feed.Publish(ctx, event); err != nil {
		slog.Error("Failed to publish feed event", "entity", entity, "id", id, "error", err)
	}
}

func (b *base) publishOrder(ctx context.Context, op feed.Op, order *models.Order) {
	b.publish(ctx, order.VenueID, feed.EntityOrders, op, order.ID, order.Version, order)
}

func (b *base) publishTable(ctx context.Context, op feed.Op, table *models.Table) {
	b.publish(ctx, table.VenueID, feed.EntityTables, op, table.ID, table.Version, table)
}

// tableByNumber finds a venue's table by its number.
func (b *base) tableByNumber(ctx context.Context, venueID string, number int) (*models.Table, error) {
	tables, err := b.store.ListTables(ctx, venueID)
	if err != nil {
		return nil, err
	}
	for _, t := range tables {
		if t.Number == number {
			return t, nil
		}
	}
	return nil, models.Invalid("table_number", "venue has no table %d", number)
}

// signalTable republishes the table an order sits at, so terminals re-derive
// its occupancy.
func (b *base) signalTable(ctx context.Context, order *models.Order) {
	if order.TableNumber == nil {
		return
	}
	table, err := b.tableByNumber(ctx, order.VenueID, *order.TableNumber)
	if err != nil {
		slog.Warn("Failed to signal table", "order_id", order.ID, "table_number", *order.TableNumber, "error", err)
		return
	}
	b.publishTable(ctx, feed.OpUpdate, table)
}
