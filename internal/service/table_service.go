package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/tableside/internal/calculator"
	"github.com/mmynk/tableside/internal/feed"
	"github.com/mmynk/tableside/internal/metrics"
	"github.com/mmynk/tableside/internal/models"
	"github.com/mmynk/tableside/internal/storage"
	"github.com/mmynk/tableside/pkg/api"
	"github.com/mmynk/tableside/pkg/api/apiconnect"
)

var _ apiconnect.TableServiceHandler = (*TableService)(nil)

// TableService implements the Connect TableService.
type TableService struct {
	base
}

// NewTableService creates a new TableService with the given storage backend
// and change feed.
func NewTableService(store storage.Store, pub feed.Publisher, opts Options) *TableService {
	return &TableService{base{store: store, feed: pub, opts: opts}}
}

func (s *TableService) loadTable(ctx context.Context, actor models.Actor, tableID string) (*models.Table, error) {
	if tableID == "" {
		return nil, models.Invalid("table_id", "required")
	}
	table, err := s.store.GetTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if table.VenueID != actor.VenueID {
		return nil, models.NotFound("table", tableID)
	}
	return table, nil
}

func (s *TableService) activeOrders(ctx context.Context, table *models.Table) ([]*models.Order, error) {
	number := table.Number
	return s.store.ListOrders(ctx, table.VenueID, storage.OrderFilter{
		ActiveOnly:  true,
		TableNumber: &number,
	})
}

// view attaches the derived status to a table.
func (s *TableService) view(ctx context.Context, table *models.Table) (*api.Table, error) {
	orders, err := s.activeOrders(ctx, table)
	if err != nil {
		return nil, err
	}
	return tableView(table, orders), nil
}

func tableView(table *models.Table, orders []*models.Order) *api.Table {
	active := calculator.ActiveOrdersFor(table, orders)
	return &api.Table{
		Table:        *table,
		Status:       calculator.DeriveTableStatus(table, active),
		ActiveOrders: len(active),
	}
}

// tableMutation changes a freshly read table. active holds the table's
// active orders at the time of the read.
type tableMutation func(t *models.Table, active []*models.Order) error

// mutateTable runs fn against the stored table and writes it, re-reading
// and re-applying on conflict.
func (s *TableService) mutateTable(ctx context.Context, actor models.Actor, tableID string, expectedVersion int64, fn tableMutation) (*api.Table, error) {
	for attempt := 0; ; attempt++ {
		table, err := s.loadTable(ctx, actor, tableID)
		if err != nil {
			return nil, err
		}
		if expectedVersion != 0 && table.Version != expectedVersion {
			return nil, fmt.Errorf("table %s is at version %d, not %d: %w", tableID, table.Version, expectedVersion, models.ErrConflict)
		}
		orders, err := s.activeOrders(ctx, table)
		if err != nil {
			return nil, err
		}

		if err := fn(table, calculator.ActiveOrdersFor(table, orders)); err != nil {
			return nil, err
		}

		err = s.store.UpdateTable(ctx, table)
		if s.shouldRetry(err, expectedVersion, attempt) {
			metrics.ConflictRetries.Inc()
			slog.Info("Table changed concurrently, re-applying", "table_id", tableID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, err
		}

		s.publishTable(ctx, feed.OpUpdate, table)
		return tableView(table, orders), nil
	}
}

// CreateTable adds a table to the caller's venue.
func (s *TableService) CreateTable(ctx context.Context, req *connect.Request[api.CreateTableRequest]) (*connect.Response[api.TableResponse], error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("CreateTable request received", "venue_id", actor.VenueID, "number", req.Msg.Number)

	if req.Msg.Number <= 0 {
		return nil, connectError(models.Invalid("number", "must be positive, got %d", req.Msg.Number))
	}
	if req.Msg.Capacity < 0 {
		return nil, connectError(models.Invalid("capacity", "must not be negative"))
	}

	table := &models.Table{
		VenueID:        actor.VenueID,
		Number:         req.Msg.Number,
		Capacity:       req.Msg.Capacity,
		Section:        req.Msg.Section,
		ExplicitStatus: models.TableAvailable,
	}
	if err := s.store.CreateTable(ctx, table); err != nil {
		slog.Error("CreateTable failed", "error", err)
		return nil, connectError(err)
	}

	slog.Info("Table created", "table_id", table.ID, "number", table.Number)
	s.publishTable(ctx, feed.OpInsert, table)
	return connect.NewResponse(&api.TableResponse{Table: tableView(table, nil)}), nil
}

// GetTable retrieves a table with its derived status.
func (s *TableService) GetTable(ctx context.Context, req *connect.Request[api.GetTableRequest]) (*connect.Response[api.TableResponse], error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	table, err := s.loadTable(ctx, actor, req.Msg.TableID)
	if err != nil {
		slog.Error("GetTable failed", "table_id", req.Msg.TableID, "error", err)
		return nil, connectError(err)
	}
	view, err := s.view(ctx, table)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&api.TableResponse{Table: view}), nil
}

// ListTables retrieves the caller's venue tables with derived statuses.
func (s *TableService) ListTables(ctx context.Context, req *connect.Request[api.ListTablesRequest]) (*connect.Response[api.ListTablesResponse], error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	tables, err := s.store.ListTables(ctx, actor.VenueID)
	if err != nil {
		slog.Error("ListTables failed", "venue_id", actor.VenueID, "error", err)
		return nil, connectError(err)
	}
	orders, err := s.store.ListOrders(ctx, actor.VenueID, storage.OrderFilter{ActiveOnly: true})
	if err != nil {
		return nil, connectError(err)
	}

	views := make([]*api.Table, 0, len(tables))
	for _, table := range tables {
		views = append(views, tableView(table, orders))
	}

	slog.Info("ListTables successful", "venue_id", actor.VenueID, "count", len(views))
	return connect.NewResponse(&api.ListTablesResponse{Tables: views}), nil
}

// SeatTable records guests sitting down.
func (s *TableService) SeatTable(ctx context.Context, req *connect.Request[api.SeatTableRequest]) (*connect.Response[api.TableResponse], error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if req.Msg.GuestCount <= 0 {
		return nil, connectError(models.Invalid("guest_count", "must be positive, got %d", req.Msg.GuestCount))
	}

	view, err := s.mutateTable(ctx, actor, req.Msg.TableID, req.Msg.ExpectedVersion, func(t *models.Table, _ []*models.Order) error {
		t.CurrentGuests = req.Msg.GuestCount
		if req.Msg.CustomerName != "" {
			t.CustomerName = req.Msg.CustomerName
		}
		t.SeatedAt = time.Now().Unix()
		t.ExplicitStatus = models.TableAvailable
		return nil
	})
	if err != nil {
		slog.Error("SeatTable failed", "table_id", req.Msg.TableID, "error", err)
		return nil, connectError(err)
	}

	slog.Info("Table seated", "table_id", view.ID, "guests", view.CurrentGuests)
	return connect.NewResponse(&api.TableResponse{Table: view}), nil
}

// ClearTable releases a table for cleaning once its orders are closed.
func (s *TableService) ClearTable(ctx context.Context, req *connect.Request[api.ClearTableRequest]) (*connect.Response[api.TableResponse], error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	view, err := s.mutateTable(ctx, actor, req.Msg.TableID, req.Msg.ExpectedVersion, func(t *models.Table, active []*models.Order) error {
		if len(active) > 0 && !req.Msg.Force {
			return models.Invalid("table_id", "table %d has %d active orders", t.Number, len(active))
		}
		t.CurrentGuests = 0
		t.CustomerName = ""
		t.SeatedAt = 0
		t.ExplicitStatus = models.TableCleaning
		return nil
	})
	if err != nil {
		slog.Error("ClearTable failed", "table_id", req.Msg.TableID, "error", err)
		return nil, connectError(err)
	}

	slog.Info("Table cleared", "table_id", view.ID, "forced", req.Msg.Force, "status", view.Status)
	return connect.NewResponse(&api.TableResponse{Table: view}), nil
}

// SetTableStatus sets the operator-controlled status. Occupancy is derived
// and cannot be set.
func (s *TableService) SetTableStatus(ctx context.Context, req *connect.Request[api.SetTableStatusRequest]) (*connect.Response[api.TableResponse], error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	status := req.Msg.Status
	if !status.Explicit() {
		return nil, connectError(models.Invalid("status", "%q cannot be set explicitly", status))
	}

	view, err := s.mutateTable(ctx, actor, req.Msg.TableID, req.Msg.ExpectedVersion, func(t *models.Table, _ []*models.Order) error {
		t.ExplicitStatus = status
		switch {
		case status == models.TableReserved:
			t.CustomerName = req.Msg.CustomerName
		case t.CurrentGuests == 0:
			t.CustomerName = ""
		}
		return nil
	})
	if err != nil {
		slog.Error("SetTableStatus failed", "table_id", req.Msg.TableID, "error", err)
		return nil, connectError(err)
	}

	slog.Info("Table status set", "table_id", view.ID, "explicit_status", status, "status", view.Status)
	return connect.NewResponse(&api.TableResponse{Table: view}), nil
}
