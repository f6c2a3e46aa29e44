package services

import (
	"context"
	"time"

	domain "github.com/pazaryeri/api/internal/domain"
	"github.com/pazaryeri/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	SortOrder          = domain.SortOrder
	Order              = domain.Order
	OrderStatus        = domain.OrderStatus
	OrderAmounts       = domain.OrderAmounts
	OrderLineItem      = domain.OrderLineItem
	OrderAudit         = domain.OrderAudit
	ProductStock       = domain.ProductStock
	LedgerEntry        = domain.LedgerEntry
	LedgerEntryType    = domain.LedgerEntryType
	Notification       = domain.Notification
	SystemHealthReport = domain.SystemHealthReport
)

// OrderService drives the order lifecycle for the admin dashboard, including
// the inventory and ledger side effects tied to the delivered status.
type OrderService interface {
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	Reject(ctx context.Context, cmd RejectOrderCommand) (Order, error)
	Trash(ctx context.Context, cmd TrashOrderCommand) (Order, error)
	Restore(ctx context.Context, cmd RestoreOrderCommand) (Order, error)
	SetShippingFee(ctx context.Context, cmd SetShippingFeeCommand) (Order, error)
	RequestExtraFee(ctx context.Context, cmd RequestExtraFeeCommand) (Order, error)
	NotifyCustomer(ctx context.Context, cmd NotifyCustomerCommand) (Notification, error)
}

// LedgerService exposes the admin finance surface over the income/expense ledger.
type LedgerService interface {
	ListEntries(ctx context.Context, filter LedgerListFilter) (domain.CursorPage[LedgerEntry], error)
	RecordExpense(ctx context.Context, cmd RecordExpenseCommand) (LedgerEntry, error)
}

// InventoryService surfaces the stock projection maintained by the lifecycle engine.
type InventoryService interface {
	ListLowStock(ctx context.Context, filter LowStockFilter) (domain.CursorPage[ProductStock], error)
}

// SystemService aggregates utility endpoints (health checks, readiness).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// OrderEventPublisher publishes order lifecycle events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEventMessage) (string, error)
}

// OrderEventMessage captures metadata for emitted order lifecycle events.
type OrderEventMessage struct {
	EventID     string    `json:"eventId"`
	Type        string    `json:"type"`
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	FromStatus  string    `json:"fromStatus,omitempty"`
	ToStatus    string    `json:"toStatus,omitempty"`
	Trashed     *bool     `json:"trashed,omitempty"`
	ActorID     string    `json:"actorId,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

type OrderListFilter = repositories.OrderListFilter

type LedgerListFilter = repositories.LedgerListFilter

type OrderStatusTransitionCommand struct {
	OrderID         string
	TargetStatus    OrderStatus
	PrepTimeMinutes *int
	ActorID         string
}

type RejectOrderCommand struct {
	OrderID string
	Reason  string
	ActorID string
}

type TrashOrderCommand struct {
	OrderID string
	ActorID string
}

type RestoreOrderCommand struct {
	OrderID string
	ActorID string
}

type SetShippingFeeCommand struct {
	OrderID string
	Fee     int64
	ActorID string
}

type RequestExtraFeeCommand struct {
	OrderID string
	Fee     int64
	Reason  string
	ActorID string
}

type NotifyCustomerCommand struct {
	OrderID string
	Title   string
	Message string
	ActorID string
}

type RecordExpenseCommand struct {
	Amount      int64
	Description string
	ActorID     string
}

type LowStockFilter struct {
	Threshold *int64
	Pager     Pagination
}
