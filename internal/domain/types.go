package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was placed by checkout and awaits confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates an operator accepted the order.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusPreparing indicates the order is being prepared.
	OrderStatusPreparing OrderStatus = "preparing"
	// OrderStatusReady indicates preparation finished and the order awaits courier pickup.
	OrderStatusReady OrderStatus = "ready"
	// OrderStatusInDelivery indicates the order is out with a courier.
	OrderStatusInDelivery OrderStatus = "in_delivery"
	// OrderStatusDelivered indicates the order reached the customer. Entering this
	// state commits stock and writes the income ledger entry.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusRejected indicates an operator rejected the order.
	OrderStatusRejected OrderStatus = "rejected"
)

// Order captures an order header together with its line items. Amounts are in
// kuruş, the smallest currency unit.
type Order struct {
	ID              string
	Number          string
	UserID          string
	Status          OrderStatus
	Trashed         bool
	CouponCode      string
	Amounts         OrderAmounts
	Items           []OrderLineItem
	RejectionReason *string
	PrepTimeMinutes *int
	// ExtraFeeRequestedAt is stamped when an operator requests an additional
	// charge from the customer.
	ExtraFeeRequestedAt *time.Time
	Audit               OrderAudit
	CreatedAt           time.Time
	UpdatedAt           time.Time
	DeliveredAt         *time.Time
	RejectedAt          *time.Time
	TrashedAt           *time.Time
}

// OrderAmounts holds rolled-up monetary fields. Total is authoritative when
// set; a zero Total with non-empty items means it must be derived from the
// line items plus fees minus discount.
type OrderAmounts struct {
	Subtotal int64
	Discount int64
	Shipping int64
	ExtraFee int64
	Total    int64
}

// OrderLineItem snapshots one product line at the time of checkout.
type OrderLineItem struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice int64
	Total     int64
}

// OrderAudit records the actors responsible for creating/updating the order.
type OrderAudit struct {
	CreatedBy *string
	UpdatedBy *string
}

// LineItemsTotal returns the sum of unit price times quantity over all items.
func (o Order) LineItemsTotal() int64 {
	var sum int64
	for _, item := range o.Items {
		sum += item.UnitPrice * int64(item.Quantity)
	}
	return sum
}

// IncomeAmount returns the amount an income ledger entry for this order must
// carry: the authoritative total when present, otherwise the line item sum
// plus shipping and extra fees minus the discount.
func (o Order) IncomeAmount() int64 {
	if o.Amounts.Total > 0 {
		return o.Amounts.Total
	}
	derived := o.LineItemsTotal() + o.Amounts.Shipping + o.Amounts.ExtraFee - o.Amounts.Discount
	if derived < 0 {
		return 0
	}
	return derived
}

// LedgerEntryType distinguishes income from expense ledger entries.
type LedgerEntryType string

const (
	// LedgerEntryIncome marks revenue entries; at most one exists per order.
	LedgerEntryIncome LedgerEntryType = "income"
	// LedgerEntryExpense marks cost entries recorded by finance staff.
	LedgerEntryExpense LedgerEntryType = "expense"
)

// LedgerEntry is an append-style financial record, optionally tied to an order.
type LedgerEntry struct {
	ID          string
	Type        LedgerEntryType
	Amount      int64
	Description string
	OrderRef    *string
	CreatedBy   *string
	CreatedAt   time.Time
}

// Notification is a message queued for a storefront user. The admin API only
// ever inserts notifications; it never updates or deletes them.
type Notification struct {
	ID        string
	UserID    string
	Title     string
	Body      string
	OrderRef  *string
	ReadAt    *time.Time
	CreatedAt time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
