package repositories

import (
	"context"
	"time"

	domain "github.com/pazaryeri/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderRepository persists order headers and applies lifecycle transitions with their
// financial side effects in a single transactional boundary.
type OrderRepository interface {
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	ApplyTransition(ctx context.Context, req OrderTransitionRequest) (OrderTransitionResult, error)
}

// StockRepository reads inventory projections owned by the lifecycle engine.
type StockRepository interface {
	ListLowStock(ctx context.Context, query LowStockQuery) (domain.CursorPage[domain.ProductStock], error)
}

// LedgerRepository stores income and expense entries for financial reporting.
type LedgerRepository interface {
	Insert(ctx context.Context, entry domain.LedgerEntry) error
	List(ctx context.Context, filter LedgerListFilter) (domain.CursorPage[domain.LedgerEntry], error)
}

// NotificationRepository stores customer-facing notifications recorded by admin actions.
type NotificationRepository interface {
	Insert(ctx context.Context, notification domain.Notification) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// OrderTransitionRequest describes an atomic order mutation: the status and flag
// patch together with the stock and ledger side effects it entails. The expected
// fields guard against concurrent writers.
type OrderTransitionRequest struct {
	OrderID         string
	ExpectedStatus  domain.OrderStatus
	ExpectedTrashed *bool
	Patch           OrderPatch
	StockDeltas     []StockDelta
	Ledger          LedgerOp
	Now             time.Time
}

// OrderPatch lists the order fields mutated by a transition. Nil pointers leave
// the stored value untouched.
type OrderPatch struct {
	Status          *domain.OrderStatus
	Trashed         *bool
	RejectionReason *string
	PrepTimeMinutes *int
	ShippingFee     *int64
	ExtraFee        *int64
	Total           *int64
	ExtraFeeAskedAt *time.Time
	DeliveredAt     *time.Time
	RejectedAt      *time.Time
	TrashedAt       *time.Time
	ClearTrashedAt  bool
	UpdatedBy       *string
}

// StockDelta adjusts a product's tracked quantity as part of a transition.
type StockDelta struct {
	ProductID string
	Delta     int64
}

// LedgerOp describes the ledger side effect of a transition. At most one of the
// fields is set.
type LedgerOp struct {
	Insert           *domain.LedgerEntry
	RemoveForOrderID string
}

// OrderTransitionResult reports the order after the transition along with any
// products whose stock document was absent and therefore skipped.
type OrderTransitionResult struct {
	Order           domain.Order
	MissingProducts []string
}

// Filter DTOs shared across repositories ------------------------------------

type OrderListFilter struct {
	UserID     string
	Number     string
	Status     []domain.OrderStatus
	Trashed    *bool
	DateRange  domain.RangeQuery[time.Time]
	SortBy     string
	SortOrder  domain.SortOrder
	Pagination domain.Pagination
}

type LedgerListFilter struct {
	Types      []domain.LedgerEntryType
	OrderID    string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// LowStockQuery controls pagination and threshold filtering for low stock listings.
type LowStockQuery struct {
	Threshold  int64
	Pagination domain.Pagination
}
