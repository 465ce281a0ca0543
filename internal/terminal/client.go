package terminal

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/mmynk/tableside/internal/models"
	"github.com/mmynk/tableside/pkg/api"
	"github.com/mmynk/tableside/pkg/api/apiconnect"
)

const (
	// DefaultMaxAttempts bounds calls per request, the first one included.
	DefaultMaxAttempts = 3

	// DefaultBackoff is the wait before the second attempt; it doubles after.
	DefaultBackoff = 200 * time.Millisecond
)

// Client calls the Tableside services on behalf of one terminal.
//
// Calls that fail with CodeUnavailable are repeated unchanged, so a payment
// keeps its idempotency key and lands in the ledger at most once. Status
// changes and payments are also repeated after CodeAborted unless the
// request pins an ExpectedVersion: the server re-reads the order and treats
// a status it already has, or a key it already holds, as done. Calls that
// are not safe to repeat (CreateOrder, AddItems, RefundItem, CreateTable)
// are made once.
type Client struct {
	Orders *apiconnect.OrderServiceClient
	Tables *apiconnect.TableServiceClient

	MaxAttempts int
	Backoff     time.Duration
}

// NewClient creates a client for the server at baseURL that authenticates
// with token.
func NewClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *Client {
	opts = append(opts, connect.WithInterceptors(bearer(token)))
	return &Client{
		Orders:      apiconnect.NewOrderServiceClient(httpClient, baseURL, opts...),
		Tables:      apiconnect.NewTableServiceClient(httpClient, baseURL, opts...),
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     DefaultBackoff,
	}
}

func bearer(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient {
				req.Header().Set("Authorization", "Bearer "+token)
			}
			return next(ctx, req)
		}
	}
}

var (
	transient    = []connect.Code{connect.CodeUnavailable}
	reapplicable = []connect.Code{connect.CodeUnavailable, connect.CodeAborted}
)

// onConflict picks the codes a status change may be repeated on. A pinned
// version that lost the race will never match again.
func onConflict(expectedVersion int64) []connect.Code {
	if expectedVersion != 0 {
		return transient
	}
	return reapplicable
}

// retry calls fn until it succeeds, fails with a code outside codes, or
// runs out of attempts.
func retry[Res any](ctx context.Context, c *Client, procedure string, codes []connect.Code, fn func() (*connect.Response[Res], error)) (*Res, error) {
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	backoff := c.Backoff

	var err error
	for attempt := 1; ; attempt++ {
		var resp *connect.Response[Res]
		resp, err = fn()
		if err == nil {
			return resp.Msg, nil
		}
		if !slices.Contains(codes, connect.CodeOf(err)) || attempt >= attempts {
			return nil, err
		}

		slog.Warn("Call failed, retrying", "procedure", procedure, "attempt", attempt, "code", connect.CodeOf(err), "error", err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
}

func once[Res any](resp *connect.Response[Res], err error) (*Res, error) {
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Snapshot reads every order and table of the terminal's venue.
func (c *Client) Snapshot(ctx context.Context) ([]*models.Order, []*models.Table, error) {
	orders, err := c.ListOrders(ctx, &api.ListOrdersRequest{})
	if err != nil {
		return nil, nil, err
	}
	tables, err := c.ListTables(ctx)
	if err != nil {
		return nil, nil, err
	}
	plain := make([]*models.Table, 0, len(tables.Tables))
	for _, t := range tables.Tables {
		table := t.Table
		plain = append(plain, &table)
	}
	return orders.Orders, plain, nil
}

func (c *Client) CreateOrder(ctx context.Context, req *api.CreateOrderRequest) (*models.Order, error) {
	resp, err := once(c.Orders.CreateOrder(ctx, connect.NewRequest(req)))
	if err != nil {
		return nil, err
	}
	return resp.Order, nil
}

func (c *Client) AddItems(ctx context.Context, req *api.AddItemsRequest) (*models.Order, error) {
	resp, err := once(c.Orders.AddItems(ctx, connect.NewRequest(req)))
	if err != nil {
		return nil, err
	}
	return resp.Order, nil
}

func (c *Client) RefundItem(ctx context.Context, req *api.RefundItemRequest) (*models.Order, error) {
	resp, err := once(c.Orders.RefundItem(ctx, connect.NewRequest(req)))
	if err != nil {
		return nil, err
	}
	return resp.Order, nil
}

func (c *Client) ListOrders(ctx context.Context, req *api.ListOrdersRequest) (*api.ListOrdersResponse, error) {
	return retry(ctx, c, apiconnect.OrderServiceListOrdersProcedure, transient, func() (*connect.Response[api.ListOrdersResponse], error) {
		return c.Orders.ListOrders(ctx, connect.NewRequest(req))
	})
}

func (c *Client) SetItemStatus(ctx context.Context, req *api.SetItemStatusRequest) (*models.Order, error) {
	resp, err := retry(ctx, c, apiconnect.OrderServiceSetItemStatusProcedure, onConflict(req.ExpectedVersion), func() (*connect.Response[api.OrderResponse], error) {
		return c.Orders.SetItemStatus(ctx, connect.NewRequest(req))
	})
	if err != nil {
		return nil, err
	}
	return resp.Order, nil
}

func (c *Client) StartOrder(ctx context.Context, orderID string) (*models.Order, error) {
	resp, err := retry(ctx, c, apiconnect.OrderServiceStartOrderProcedure, reapplicable, func() (*connect.Response[api.OrderResponse], error) {
		return c.Orders.StartOrder(ctx, connect.NewRequest(&api.StartOrderRequest{OrderID: orderID}))
	})
	if err != nil {
		return nil, err
	}
	return resp.Order, nil
}

func (c *Client) CompleteOrder(ctx context.Context, orderID string) (*models.Order, error) {
	resp, err := retry(ctx, c, apiconnect.OrderServiceCompleteOrderProcedure, reapplicable, func() (*connect.Response[api.OrderResponse], error) {
		return c.Orders.CompleteOrder(ctx, connect.NewRequest(&api.CompleteOrderRequest{OrderID: orderID}))
	})
	if err != nil {
		return nil, err
	}
	return resp.Order, nil
}

func (c *Client) UpdateOrderStatus(ctx context.Context, req *api.UpdateOrderStatusRequest) (*models.Order, error) {
	resp, err := retry(ctx, c, apiconnect.OrderServiceUpdateOrderStatusProcedure, transient, func() (*connect.Response[api.OrderResponse], error) {
		return c.Orders.UpdateOrderStatus(ctx, connect.NewRequest(req))
	})
	if err != nil {
		return nil, err
	}
	return resp.Order, nil
}

func (c *Client) ApplyDiscount(ctx context.Context, req *api.ApplyDiscountRequest) (*models.Order, error) {
	resp, err := retry(ctx, c, apiconnect.OrderServiceApplyDiscountProcedure, transient, func() (*connect.Response[api.OrderResponse], error) {
		return c.Orders.ApplyDiscount(ctx, connect.NewRequest(req))
	})
	if err != nil {
		return nil, err
	}
	return resp.Order, nil
}

// RecordPayment records a ledger entry. An empty IdempotencyKey is filled
// with a fresh UUID and written back to req before the first attempt, so
// sending the same req again after a failure cannot pay twice.
func (c *Client) RecordPayment(ctx context.Context, req *api.RecordPaymentRequest) (*api.RecordPaymentResponse, error) {
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}
	msg := *req
	return retry(ctx, c, apiconnect.OrderServiceRecordPaymentProcedure, reapplicable, func() (*connect.Response[api.RecordPaymentResponse], error) {
		return c.Orders.RecordPayment(ctx, connect.NewRequest(&msg))
	})
}

func (c *Client) ComputeSplit(ctx context.Context, req *api.ComputeSplitRequest) (*api.ComputeSplitResponse, error) {
	return retry(ctx, c, apiconnect.OrderServiceComputeSplitProcedure, transient, func() (*connect.Response[api.ComputeSplitResponse], error) {
		return c.Orders.ComputeSplit(ctx, connect.NewRequest(req))
	})
}

func (c *Client) CreateTable(ctx context.Context, req *api.CreateTableRequest) (*api.Table, error) {
	resp, err := once(c.Tables.CreateTable(ctx, connect.NewRequest(req)))
	if err != nil {
		return nil, err
	}
	return resp.Table, nil
}

func (c *Client) ListTables(ctx context.Context) (*api.ListTablesResponse, error) {
	return retry(ctx, c, apiconnect.TableServiceListTablesProcedure, transient, func() (*connect.Response[api.ListTablesResponse], error) {
		return c.Tables.ListTables(ctx, connect.NewRequest(&api.ListTablesRequest{}))
	})
}

func (c *Client) SeatTable(ctx context.Context, req *api.SeatTableRequest) (*api.Table, error) {
	resp, err := retry(ctx, c, apiconnect.TableServiceSeatTableProcedure, transient, func() (*connect.Response[api.TableResponse], error) {
		return c.Tables.SeatTable(ctx, connect.NewRequest(req))
	})
	if err != nil {
		return nil, err
	}
	return resp.Table, nil
}

func (c *Client) ClearTable(ctx context.Context, req *api.ClearTableRequest) (*api.Table, error) {
	resp, err := retry(ctx, c, apiconnect.TableServiceClearTableProcedure, transient, func() (*connect.Response[api.TableResponse], error) {
		return c.Tables.ClearTable(ctx, connect.NewRequest(req))
	})
	if err != nil {
		return nil, err
	}
	return resp.Table, nil
}

func (c *Client) SetTableStatus(ctx context.Context, req *api.SetTableStatusRequest) (*api.Table, error) {
	resp, err := retry(ctx, c, apiconnect.TableServiceSetTableStatusProcedure, transient, func() (*connect.Response[api.TableResponse], error) {
		return c.Tables.SetTableStatus(ctx, connect.NewRequest(req))
	})
	if err != nil {
		return nil, err
	}
	return resp.Table, nil
}
