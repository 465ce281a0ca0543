// Package apiconnect binds the Tableside services to Connect handlers and
// clients.
package apiconnect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/tableside/pkg/api"
)

const (
	// OrderServiceName is the fully-qualified name of the order service.
	OrderServiceName = "tableside.v1.OrderService"
	// TableServiceName is the fully-qualified name of the table service.
	TableServiceName = "tableside.v1.TableService"
)

// Procedure paths.
const (
	OrderServiceCreateOrderProcedure       = "/" + OrderServiceName + "/CreateOrder"
	OrderServiceGetOrderProcedure          = "/" + OrderServiceName + "/GetOrder"
	OrderServiceListOrdersProcedure        = "/" + OrderServiceName + "/ListOrders"
	OrderServiceAddItemsProcedure          = "/" + OrderServiceName + "/AddItems"
	OrderServiceSetItemStatusProcedure     = "/" + OrderServiceName + "/SetItemStatus"
	OrderServiceStartOrderProcedure        = "/" + OrderServiceName + "/StartOrder"
	OrderServiceCompleteOrderProcedure     = "/" + OrderServiceName + "/CompleteOrder"
	OrderServiceUpdateOrderStatusProcedure = "/" + OrderServiceName + "/UpdateOrderStatus"
	OrderServiceApplyDiscountProcedure     = "/" + OrderServiceName + "/ApplyDiscount"
	OrderServiceRefundItemProcedure        = "/" + OrderServiceName + "/RefundItem"
	OrderServiceRecordPaymentProcedure     = "/" + OrderServiceName + "/RecordPayment"
	OrderServiceListPaymentsProcedure      = "/" + OrderServiceName + "/ListPayments"
	OrderServiceComputeSplitProcedure      = "/" + OrderServiceName + "/ComputeSplit"
	OrderServiceChangeDueProcedure         = "/" + OrderServiceName + "/ChangeDue"

	TableServiceCreateTableProcedure    = "/" + TableServiceName + "/CreateTable"
	TableServiceGetTableProcedure       = "/" + TableServiceName + "/GetTable"
	TableServiceListTablesProcedure     = "/" + TableServiceName + "/ListTables"
	TableServiceSeatTableProcedure      = "/" + TableServiceName + "/SeatTable"
	TableServiceClearTableProcedure     = "/" + TableServiceName + "/ClearTable"
	TableServiceSetTableStatusProcedure = "/" + TableServiceName + "/SetTableStatus"
)

// OrderServiceHandler is implemented by the order service.
type OrderServiceHandler interface {
	CreateOrder(context.Context, *connect.Request[api.CreateOrderRequest]) (*connect.Response[api.OrderResponse], error)
	GetOrder(context.Context, *connect.Request[api.GetOrderRequest]) (*connect.Response[api.OrderResponse], error)
	ListOrders(context.Context, *connect.Request[api.ListOrdersRequest]) (*connect.Response[api.ListOrdersResponse], error)
	AddItems(context.Context, *connect.Request[api.AddItemsRequest]) (*connect.Response[api.OrderResponse], error)
	SetItemStatus(context.Context, *connect.Request[api.SetItemStatusRequest]) (*connect.Response[api.OrderResponse], error)
	StartOrder(context.Context, *connect.Request[api.StartOrderRequest]) (*connect.Response[api.OrderResponse], error)
	CompleteOrder(context.Context, *connect.Request[api.CompleteOrderRequest]) (*connect.Response[api.OrderResponse], error)
	UpdateOrderStatus(context.Context, *connect.Request[api.UpdateOrderStatusRequest]) (*connect.Response[api.OrderResponse], error)
	ApplyDiscount(context.Context, *connect.Request[api.ApplyDiscountRequest]) (*connect.Response[api.OrderResponse], error)
	RefundItem(context.Context, *connect.Request[api.RefundItemRequest]) (*connect.Response[api.OrderResponse], error)
	RecordPayment(context.Context, *connect.Request[api.RecordPaymentRequest]) (*connect.Response[api.RecordPaymentResponse], error)
	ListPayments(context.Context, *connect.Request[api.ListPaymentsRequest]) (*connect.Response[api.ListPaymentsResponse], error)
	ComputeSplit(context.Context, *connect.Request[api.ComputeSplitRequest]) (*connect.Response[api.ComputeSplitResponse], error)
	ChangeDue(context.Context, *connect.Request[api.ChangeDueRequest]) (*connect.Response[api.ChangeDueResponse], error)
}

// TableServiceHandler is implemented by the table service.
type TableServiceHandler interface {
	CreateTable(context.Context, *connect.Request[api.CreateTableRequest]) (*connect.Response[api.TableResponse], error)
	GetTable(context.Context, *connect.Request[api.GetTableRequest]) (*connect.Response[api.TableResponse], error)
	ListTables(context.Context, *connect.Request[api.ListTablesRequest]) (*connect.Response[api.ListTablesResponse], error)
	SeatTable(context.Context, *connect.Request[api.SeatTableRequest]) (*connect.Response[api.TableResponse], error)
	ClearTable(context.Context, *connect.Request[api.ClearTableRequest]) (*connect.Response[api.TableResponse], error)
	SetTableStatus(context.Context, *connect.Request[api.SetTableStatusRequest]) (*connect.Response[api.TableResponse], error)
}

// withCodec prepends the JSON codec to opts.
func withCodec[T any](opts []T, codec T) []T {
	return append([]T{codec}, opts...)
}

// NewOrderServiceHandler builds an HTTP handler for svc and returns the
// path it should be mounted on.
func NewOrderServiceHandler(svc OrderServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = withCodec(opts, connect.HandlerOption(connect.WithCodec(api.Codec{})))
	mux := http.NewServeMux()
	mux.Handle(OrderServiceCreateOrderProcedure, connect.NewUnaryHandler(OrderServiceCreateOrderProcedure, svc.CreateOrder, opts...))
	mux.Handle(OrderServiceGetOrderProcedure, connect.NewUnaryHandler(OrderServiceGetOrderProcedure, svc.GetOrder, opts...))
	mux.Handle(OrderServiceListOrdersProcedure, connect.NewUnaryHandler(OrderServiceListOrdersProcedure, svc.ListOrders, opts...))
	mux.Handle(OrderServiceAddItemsProcedure, connect.NewUnaryHandler(OrderServiceAddItemsProcedure, svc.AddItems, opts...))
	mux.Handle(OrderServiceSetItemStatusProcedure, connect.NewUnaryHandler(OrderServiceSetItemStatusProcedure, svc.SetItemStatus, opts...))
	mux.Handle(OrderServiceStartOrderProcedure, connect.NewUnaryHandler(OrderServiceStartOrderProcedure, svc.StartOrder, opts...))
	mux.Handle(OrderServiceCompleteOrderProcedure, connect.NewUnaryHandler(OrderServiceCompleteOrderProcedure, svc.CompleteOrder, opts...))
	mux.Handle(OrderServiceUpdateOrderStatusProcedure, connect.NewUnaryHandler(OrderServiceUpdateOrderStatusProcedure, svc.UpdateOrderStatus, opts...))
	mux.Handle(OrderServiceApplyDiscountProcedure, connect.NewUnaryHandler(OrderServiceApplyDiscountProcedure, svc.ApplyDiscount, opts...))
	mux.Handle(OrderServiceRefundItemProcedure, connect.NewUnaryHandler(OrderServiceRefundItemProcedure, svc.RefundItem, opts...))
	mux.Handle(OrderServiceRecordPaymentProcedure, connect.NewUnaryHandler(OrderServiceRecordPaymentProcedure, svc.RecordPayment, opts...))
	mux.Handle(OrderServiceListPaymentsProcedure, connect.NewUnaryHandler(OrderServiceListPaymentsProcedure, svc.ListPayments, opts...))
	mux.Handle(OrderServiceComputeSplitProcedure, connect.NewUnaryHandler(OrderServiceComputeSplitProcedure, svc.ComputeSplit, opts...))
	mux.Handle(OrderServiceChangeDueProcedure, connect.NewUnaryHandler(OrderServiceChangeDueProcedure, svc.ChangeDue, opts...))
	return "/" + OrderServiceName + "/", mux
}

// NewTableServiceHandler builds an HTTP handler for svc and returns the
// path it should be mounted on.
func NewTableServiceHandler(svc TableServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = withCodec(opts, connect.HandlerOption(connect.WithCodec(api.Codec{})))
	mux := http.NewServeMux()
	mux.Handle(TableServiceCreateTableProcedure, connect.NewUnaryHandler(TableServiceCreateTableProcedure, svc.CreateTable, opts...))
	mux.Handle(TableServiceGetTableProcedure, connect.NewUnaryHandler(TableServiceGetTableProcedure, svc.GetTable, opts...))
	mux.Handle(TableServiceListTablesProcedure, connect.NewUnaryHandler(TableServiceListTablesProcedure, svc.ListTables, opts...))
	mux.Handle(TableServiceSeatTableProcedure, connect.NewUnaryHandler(TableServiceSeatTableProcedure, svc.SeatTable, opts...))
	mux.Handle(TableServiceClearTableProcedure, connect.NewUnaryHandler(TableServiceClearTableProcedure, svc.ClearTable, opts...))
	mux.Handle(TableServiceSetTableStatusProcedure, connect.NewUnaryHandler(TableServiceSetTableStatusProcedure, svc.SetTableStatus, opts...))
	return "/" + TableServiceName + "/", mux
}

// OrderServiceClient calls the order service.
type OrderServiceClient struct {
	createOrder       *connect.Client[api.CreateOrderRequest, api.OrderResponse]
	getOrder          *connect.Client[api.GetOrderRequest, api.OrderResponse]
	listOrders        *connect.Client[api.ListOrdersRequest, api.ListOrdersResponse]
	addItems          *connect.Client[api.AddItemsRequest, api.OrderResponse]
	setItemStatus     *connect.Client[api.SetItemStatusRequest, api.OrderResponse]
	startOrder        *connect.Client[api.StartOrderRequest, api.OrderResponse]
	completeOrder     *connect.Client[api.CompleteOrderRequest, api.OrderResponse]
	updateOrderStatus *connect.Client[api.UpdateOrderStatusRequest, api.OrderResponse]
	applyDiscount     *connect.Client[api.ApplyDiscountRequest, api.OrderResponse]
	refundItem        *connect.Client[api.RefundItemRequest, api.OrderResponse]
	recordPayment     *connect.Client[api.RecordPaymentRequest, api.RecordPaymentResponse]
	listPayments      *connect.Client[api.ListPaymentsRequest, api.ListPaymentsResponse]
	computeSplit      *connect.Client[api.ComputeSplitRequest, api.ComputeSplitResponse]
	changeDue         *connect.Client[api.ChangeDueRequest, api.ChangeDueResponse]
}

// NewOrderServiceClient creates a client for the order service at baseURL.
func NewOrderServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *OrderServiceClient {
	opts = withCodec(opts, connect.ClientOption(connect.WithCodec(api.Codec{})))
	return &OrderServiceClient{
		createOrder:       connect.NewClient[api.CreateOrderRequest, api.OrderResponse](httpClient, baseURL+OrderServiceCreateOrderProcedure, opts...),
		getOrder:          connect.NewClient[api.GetOrderRequest, api.OrderResponse](httpClient, baseURL+OrderServiceGetOrderProcedure, opts...),
		listOrders:        connect.NewClient[api.ListOrdersRequest, api.ListOrdersResponse](httpClient, baseURL+OrderServiceListOrdersProcedure, opts...),
		addItems:          connect.NewClient[api.AddItemsRequest, api.OrderResponse](httpClient, baseURL+OrderServiceAddItemsProcedure, opts...),
		setItemStatus:     connect.NewClient[api.SetItemStatusRequest, api.OrderResponse](httpClient, baseURL+OrderServiceSetItemStatusProcedure, opts...),
		startOrder:        connect.NewClient[api.StartOrderRequest, api.OrderResponse](httpClient, baseURL+OrderServiceStartOrderProcedure, opts...),
		completeOrder:     connect.NewClient[api.CompleteOrderRequest, api.OrderResponse](httpClient, baseURL+OrderServiceCompleteOrderProcedure, opts...),
		updateOrderStatus: connect.NewClient[api.UpdateOrderStatusRequest, api.OrderResponse](httpClient, baseURL+OrderServiceUpdateOrderStatusProcedure, opts...),
		applyDiscount:     connect.NewClient[api.ApplyDiscountRequest, api.OrderResponse](httpClient, baseURL+OrderServiceApplyDiscountProcedure, opts...),
		refundItem:        connect.NewClient[api.RefundItemRequest, api.OrderResponse](httpClient, baseURL+OrderServiceRefundItemProcedure, opts...),
		recordPayment:     connect.NewClient[api.RecordPaymentRequest, api.RecordPaymentResponse](httpClient, baseURL+OrderServiceRecordPaymentProcedure, opts...),
		listPayments:      connect.NewClient[api.ListPaymentsRequest, api.ListPaymentsResponse](httpClient, baseURL+OrderServiceListPaymentsProcedure, opts...),
		computeSplit:      connect.NewClient[api.ComputeSplitRequest, api.ComputeSplitResponse](httpClient, baseURL+OrderServiceComputeSplitProcedure, opts...),
		changeDue:         connect.NewClient[api.ChangeDueRequest, api.ChangeDueResponse](httpClient, baseURL+OrderServiceChangeDueProcedure, opts...),
	}
}

func (c *OrderServiceClient) CreateOrder(ctx context.Context, req *connect.Request[api.CreateOrderRequest]) (*connect.Response[api.OrderResponse], error) {
	return c.createOrder.CallUnary(ctx, req)
}

func (c *OrderServiceClient) GetOrder(ctx context.Context, req *connect.Request[api.GetOrderRequest]) (*connect.Response[api.OrderResponse], error) {
	return c.getOrder.CallUnary(ctx, req)
}

func (c *OrderServiceClient) ListOrders(ctx context.Context, req *connect.Request[api.ListOrdersRequest]) (*connect.Response[api.ListOrdersResponse], error) {
	return c.listOrders.CallUnary(ctx, req)
}

func (c *OrderServiceClient) AddItems(ctx context.Context, req *connect.Request[api.AddItemsRequest]) (*connect.Response[api.OrderResponse], error) {
	return c.addItems.CallUnary(ctx, req)
}

func (c *OrderServiceClient) SetItemStatus(ctx context.Context, req *connect.Request[api.SetItemStatusRequest]) (*connect.Response[api.OrderResponse], error) {
	return c.setItemStatus.CallUnary(ctx, req)
}

func (c *OrderServiceClient) StartOrder(ctx context.Context, req *connect.Request[api.StartOrderRequest]) (*connect.Response[api.OrderResponse], error) {
	return c.startOrder.CallUnary(ctx, req)
}

func (c *OrderServiceClient) CompleteOrder(ctx context.Context, req *connect.Request[api.CompleteOrderRequest]) (*connect.Response[api.OrderResponse], error) {
	return c.completeOrder.CallUnary(ctx, req)
}

func (c *OrderServiceClient) UpdateOrderStatus(ctx context.Context, req *connect.Request[api.UpdateOrderStatusRequest]) (*connect.Response[api.OrderResponse], error) {
	return c.updateOrderStatus.CallUnary(ctx, req)
}

func (c *OrderServiceClient) ApplyDiscount(ctx context.Context, req *connect.Request[api.ApplyDiscountRequest]) (*connect.Response[api.OrderResponse], error) {
	return c.applyDiscount.CallUnary(ctx, req)
}

func (c *OrderServiceClient) RefundItem(ctx context.Context, req *connect.Request[api.RefundItemRequest]) (*connect.Response[api.OrderResponse], error) {
	return c.refundItem.CallUnary(ctx, req)
}

func (c *OrderServiceClient) RecordPayment(ctx context.Context, req *connect.Request[api.RecordPaymentRequest]) (*connect.Response[api.RecordPaymentResponse], error) {
	return c.recordPayment.CallUnary(ctx, req)
}

func (c *OrderServiceClient) ListPayments(ctx context.Context, req *connect.Request[api.ListPaymentsRequest]) (*connect.Response[api.ListPaymentsResponse], error) {
	return c.listPayments.CallUnary(ctx, req)
}

func (c *OrderServiceClient) ComputeSplit(ctx context.Context, req *connect.Request[api.ComputeSplitRequest]) (*connect.Response[api.ComputeSplitResponse], error) {
	return c.computeSplit.CallUnary(ctx, req)
}

func (c *OrderServiceClient) ChangeDue(ctx context.Context, req *connect.Request[api.ChangeDueRequest]) (*connect.Response[api.ChangeDueResponse], error) {
	return c.changeDue.CallUnary(ctx, req)
}

// TableServiceClient calls the table service.
type TableServiceClient struct {
	createTable    *connect.Client[api.CreateTableRequest, api.TableResponse]
	getTable       *connect.Client[api.GetTableRequest, api.TableResponse]
	listTables     *connect.Client[api.ListTablesRequest, api.ListTablesResponse]
	seatTable      *connect.Client[api.SeatTableRequest, api.TableResponse]
	clearTable     *connect.Client[api.ClearTableRequest, api.TableResponse]
	setTableStatus *connect.Client[api.SetTableStatusRequest, api.TableResponse]
}

// NewTableServiceClient creates a client for the table service at baseURL.
func NewTableServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *TableServiceClient {
	opts = withCodec(opts, connect.ClientOption(connect.WithCodec(api.Codec{})))
	return &TableServiceClient{
		createTable:    connect.NewClient[api.CreateTableRequest, api.TableResponse](httpClient, baseURL+TableServiceCreateTableProcedure, opts...),
		getTable:       connect.NewClient[api.GetTableRequest, api.TableResponse](httpClient, baseURL+TableServiceGetTableProcedure, opts...),
		listTables:     connect.NewClient[api.ListTablesRequest, api.ListTablesResponse](httpClient, baseURL+TableServiceListTablesProcedure, opts...),
		seatTable:      connect.NewClient[api.SeatTableRequest, api.TableResponse](httpClient, baseURL+TableServiceSeatTableProcedure, opts...),
		clearTable:     connect.NewClient[api.ClearTableRequest, api.TableResponse](httpClient, baseURL+TableServiceClearTableProcedure, opts...),
		setTableStatus: connect.NewClient[api.SetTableStatusRequest, api.TableResponse](httpClient, baseURL+TableServiceSetTableStatusProcedure, opts...),
	}
}

func (c *TableServiceClient) CreateTable(ctx context.Context, req *connect.Request[api.CreateTableRequest]) (*connect.Response[api.TableResponse], error) {
	return c.createTable.CallUnary(ctx, req)
}

func (c *TableServiceClient) GetTable(ctx context.Context, req *connect.Request[api.GetTableRequest]) (*connect.Response[api.TableResponse], error) {
	return c.getTable.CallUnary(ctx, req)
}

func (c *TableServiceClient) ListTables(ctx context.Context, req *connect.Request[api.ListTablesRequest]) (*connect.Response[api.ListTablesResponse], error) {
	return c.listTables.CallUnary(ctx, req)
}

func (c *TableServiceClient) SeatTable(ctx context.Context, req *connect.Request[api.SeatTableRequest]) (*connect.Response[api.TableResponse], error) {
	return c.seatTable.CallUnary(ctx, req)
}

func (c *TableServiceClient) ClearTable(ctx context.Context, req *connect.Request[api.ClearTableRequest]) (*connect.Response[api.TableResponse], error) {
	return c.clearTable.CallUnary(ctx, req)
}

func (c *TableServiceClient) SetTableStatus(ctx context.Context, req *connect.Request[api.SetTableStatusRequest]) (*connect.Response[api.TableResponse], error) {
	return c.setTableStatus.CallUnary(ctx, req)
}
