package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/pazaryeri/api/internal/domain"
	"github.com/pazaryeri/api/internal/platform/textutil"
	"github.com/pazaryeri/api/internal/repositories"
)

const (
	orderEventStatusChanged = "order.status.changed"
	orderEventTrashed       = "order.trashed"
	orderEventRestored      = "order.restored"
	orderEventFeeUpdated    = "order.fee.updated"

	ledgerEntryIDPrefix  = "led_"
	notificationIDPrefix = "ntf_"
	orderEventIDPrefix   = "evt_"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates a concurrent writer changed the order first.
	ErrOrderConflict = errors.New("order: conflict")
)

func knownOrderStatus(status domain.OrderStatus) bool {
	switch status {
	case domain.OrderStatusPending, domain.OrderStatusConfirmed, domain.OrderStatusPreparing,
		domain.OrderStatusReady, domain.OrderStatusInDelivery, domain.OrderStatusDelivered,
		domain.OrderStatusRejected:
		return true
	}
	return false
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders        repositories.OrderRepository
	Notifications repositories.NotificationRepository
	Clock         func() time.Time
	IDGenerator   func() string
	Events        OrderEventPublisher
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders        repositories.OrderRepository
	notifications repositories.NotificationRepository
	clock         func() time.Time
	newID         func() string
	events        OrderEventPublisher
	logger        func(context.Context, string, map[string]any)
	sanitizer     *bluemonday.Policy
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Notifications == nil {
		return nil, errors.New("order service: notification repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:        deps.Orders,
		notifications: deps.Notifications,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		events:    deps.Events,
		logger:    logger,
		sanitizer: bluemonday.StrictPolicy(),
	}, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	// Order numbers are stored upper-cased; fold the lookup the same way so
	// dotted and dotless i variants match.
	filter.Number = textutil.NormalizeCode(filter.Number)

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	target := domain.OrderStatus(strings.TrimSpace(string(cmd.TargetStatus)))

	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if target == "" {
		return Order{}, fmt.Errorf("%w: target status is required", ErrOrderInvalidInput)
	}
	if !knownOrderStatus(target) {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, target)
	}
	if cmd.PrepTimeMinutes != nil && *cmd.PrepTimeMinutes < 0 {
		return Order{}, fmt.Errorf("%w: prep time must not be negative", ErrOrderInvalidInput)
	}
	if target == domain.OrderStatusRejected {
		return Order{}, fmt.Errorf("%w: use the reject operation to reject an order", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if order.Trashed {
		return Order{}, fmt.Errorf("%w: trashed orders cannot change status", ErrOrderInvalidState)
	}
	if order.Status == target {
		return order, nil
	}

	now := s.now()
	prevStatus := order.Status
	actor := strings.TrimSpace(cmd.ActorID)

	patch := repositories.OrderPatch{
		Status:          &target,
		PrepTimeMinutes: cmd.PrepTimeMinutes,
	}
	if actor != "" {
		patch.UpdatedBy = &actor
	}

	// Operators may skip stages; side effects key off the previous status,
	// not the path taken to reach the target.
	var (
		deltas []repositories.StockDelta
		ledger repositories.LedgerOp
	)
	switch {
	case target == domain.OrderStatusDelivered:
		patch.DeliveredAt = &now
		deltas = stockDeltas(order, -1)
		entry := s.incomeEntry(order, actor, now)
		ledger.Insert = &entry
	case prevStatus == domain.OrderStatusDelivered:
		deltas = stockDeltas(order, +1)
		ledger.RemoveForOrderID = order.ID
	}

	notTrashed := false
	result, err := s.orders.ApplyTransition(ctx, repositories.OrderTransitionRequest{
		OrderID:         order.ID,
		ExpectedStatus:  prevStatus,
		ExpectedTrashed: &notTrashed,
		Patch:           patch,
		StockDeltas:     deltas,
		Ledger:          ledger,
		Now:             now,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	s.reportMissingStocks(ctx, result)

	s.publishEvent(ctx, OrderEventMessage{
		Type:        orderEventStatusChanged,
		OrderID:     result.Order.ID,
		OrderNumber: result.Order.Number,
		FromStatus:  string(prevStatus),
		ToStatus:    string(target),
		ActorID:     actor,
		OccurredAt:  now,
	})

	return result.Order, nil
}

func (s *orderService) Reject(ctx context.Context, cmd RejectOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	reason := s.sanitizeText(cmd.Reason)

	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if reason == "" {
		return Order{}, fmt.Errorf("%w: rejection reason is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if order.Trashed {
		return Order{}, fmt.Errorf("%w: trashed orders cannot change status", ErrOrderInvalidState)
	}
	if order.Status == domain.OrderStatusRejected {
		return Order{}, fmt.Errorf("%w: order is already rejected", ErrOrderInvalidState)
	}

	now := s.now()
	prevStatus := order.Status
	actor := strings.TrimSpace(cmd.ActorID)
	rejected := domain.OrderStatusRejected

	patch := repositories.OrderPatch{
		Status:          &rejected,
		RejectionReason: &reason,
		RejectedAt:      &now,
	}
	if actor != "" {
		patch.UpdatedBy = &actor
	}

	var (
		deltas []repositories.StockDelta
		ledger repositories.LedgerOp
	)
	if prevStatus == domain.OrderStatusDelivered {
		deltas = stockDeltas(order, +1)
		ledger.RemoveForOrderID = order.ID
	}

	notTrashed := false
	result, err := s.orders.ApplyTransition(ctx, repositories.OrderTransitionRequest{
		OrderID:         order.ID,
		ExpectedStatus:  prevStatus,
		ExpectedTrashed: &notTrashed,
		Patch:           patch,
		StockDeltas:     deltas,
		Ledger:          ledger,
		Now:             now,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	s.reportMissingStocks(ctx, result)

	s.publishEvent(ctx, OrderEventMessage{
		Type:        orderEventStatusChanged,
		OrderID:     result.Order.ID,
		OrderNumber: result.Order.Number,
		FromStatus:  string(prevStatus),
		ToStatus:    string(rejected),
		ActorID:     actor,
		OccurredAt:  now,
	})

	return result.Order, nil
}

// Trash hides an order from the dashboard without touching its status. Trashing
// a delivered order retracts the delivered fact: stock returns and the income
// entry is deleted even though the status still reads delivered.
func (s *orderService) Trash(ctx context.Context, cmd TrashOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if order.Trashed {
		return order, nil
	}

	now := s.now()
	actor := strings.TrimSpace(cmd.ActorID)
	trashed := true

	patch := repositories.OrderPatch{
		Trashed:   &trashed,
		TrashedAt: &now,
	}
	if actor != "" {
		patch.UpdatedBy = &actor
	}

	var (
		deltas []repositories.StockDelta
		ledger repositories.LedgerOp
	)
	if order.Status == domain.OrderStatusDelivered {
		deltas = stockDeltas(order, +1)
		ledger.RemoveForOrderID = order.ID
	}

	notTrashed := false
	result, err := s.orders.ApplyTransition(ctx, repositories.OrderTransitionRequest{
		OrderID:         order.ID,
		ExpectedStatus:  order.Status,
		ExpectedTrashed: &notTrashed,
		Patch:           patch,
		StockDeltas:     deltas,
		Ledger:          ledger,
		Now:             now,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	s.reportMissingStocks(ctx, result)

	s.publishEvent(ctx, OrderEventMessage{
		Type:        orderEventTrashed,
		OrderID:     result.Order.ID,
		OrderNumber: result.Order.Number,
		Trashed:     &trashed,
		ActorID:     actor,
		OccurredAt:  now,
	})

	return result.Order, nil
}

// Restore clears the trashed flag. A restored delivered order gets its side
// effects re-applied so the ledger and stocks match the visible record again.
func (s *orderService) Restore(ctx context.Context, cmd RestoreOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if !order.Trashed {
		return order, nil
	}

	now := s.now()
	actor := strings.TrimSpace(cmd.ActorID)
	restored := false

	patch := repositories.OrderPatch{
		Trashed:        &restored,
		ClearTrashedAt: true,
	}
	if actor != "" {
		patch.UpdatedBy = &actor
	}

	var (
		deltas []repositories.StockDelta
		ledger repositories.LedgerOp
	)
	if order.Status == domain.OrderStatusDelivered {
		deltas = stockDeltas(order, -1)
		entry := s.incomeEntry(order, actor, now)
		ledger.Insert = &entry
	}

	wasTrashed := true
	result, err := s.orders.ApplyTransition(ctx, repositories.OrderTransitionRequest{
		OrderID:         order.ID,
		ExpectedStatus:  order.Status,
		ExpectedTrashed: &wasTrashed,
		Patch:           patch,
		StockDeltas:     deltas,
		Ledger:          ledger,
		Now:             now,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	s.reportMissingStocks(ctx, result)

	s.publishEvent(ctx, OrderEventMessage{
		Type:        orderEventRestored,
		OrderID:     result.Order.ID,
		OrderNumber: result.Order.Number,
		Trashed:     &restored,
		ActorID:     actor,
		OccurredAt:  now,
	})

	return result.Order, nil
}

func (s *orderService) SetShippingFee(ctx context.Context, cmd SetShippingFeeCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if cmd.Fee < 0 {
		return Order{}, fmt.Errorf("%w: shipping fee must not be negative", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	now := s.now()
	actor := strings.TrimSpace(cmd.ActorID)
	fee := cmd.Fee

	patch := repositories.OrderPatch{ShippingFee: &fee}
	if actor != "" {
		patch.UpdatedBy = &actor
	}

	result, err := s.orders.ApplyTransition(ctx, repositories.OrderTransitionRequest{
		OrderID:        order.ID,
		ExpectedStatus: order.Status,
		Patch:          patch,
		Now:            now,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEventMessage{
		Type:        orderEventFeeUpdated,
		OrderID:     result.Order.ID,
		OrderNumber: result.Order.Number,
		ActorID:     actor,
		OccurredAt:  now,
	})

	return result.Order, nil
}

func (s *orderService) RequestExtraFee(ctx context.Context, cmd RequestExtraFeeCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	reason := s.sanitizeText(cmd.Reason)

	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if cmd.Fee <= 0 {
		return Order{}, fmt.Errorf("%w: extra fee must be positive", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	now := s.now()
	actor := strings.TrimSpace(cmd.ActorID)
	fee := cmd.Fee

	patch := repositories.OrderPatch{
		ExtraFee:        &fee,
		ExtraFeeAskedAt: &now,
	}
	if actor != "" {
		patch.UpdatedBy = &actor
	}

	result, err := s.orders.ApplyTransition(ctx, repositories.OrderTransitionRequest{
		OrderID:        order.ID,
		ExpectedStatus: order.Status,
		Patch:          patch,
		Now:            now,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	body := fmt.Sprintf("An additional charge of %s was requested for order %s.",
		formatKurus(fee), result.Order.Number)
	if reason != "" {
		body = fmt.Sprintf("%s Reason: %s", body, reason)
	}
	s.notifyOwner(ctx, result.Order, "Additional charge requested", body, now)

	s.publishEvent(ctx, OrderEventMessage{
		Type:        orderEventFeeUpdated,
		OrderID:     result.Order.ID,
		OrderNumber: result.Order.Number,
		ActorID:     actor,
		OccurredAt:  now,
	})

	return result.Order, nil
}

func (s *orderService) NotifyCustomer(ctx context.Context, cmd NotifyCustomerCommand) (Notification, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	title := s.sanitizeText(cmd.Title)
	message := s.sanitizeText(cmd.Message)

	if orderID == "" {
		return Notification{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if title == "" {
		return Notification{}, fmt.Errorf("%w: title is required", ErrOrderInvalidInput)
	}
	if message == "" {
		return Notification{}, fmt.Errorf("%w: message is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Notification{}, s.mapRepositoryError(err)
	}

	now := s.now()
	notification := domain.Notification{
		ID:        s.nextNotificationID(),
		UserID:    order.UserID,
		Title:     title,
		Body:      message,
		OrderRef:  &order.ID,
		CreatedAt: now,
	}
	if err := s.notifications.Insert(ctx, notification); err != nil {
		return Notification{}, s.mapRepositoryError(err)
	}
	return notification, nil
}

func (s *orderService) incomeEntry(order domain.Order, actor string, now time.Time) domain.LedgerEntry {
	entry := domain.LedgerEntry{
		ID:          s.nextLedgerEntryID(),
		Type:        domain.LedgerEntryIncome,
		Amount:      order.IncomeAmount(),
		Description: fmt.Sprintf("Order income %s", order.Number),
		OrderRef:    &order.ID,
		CreatedAt:   now,
	}
	if actor != "" {
		entry.CreatedBy = &actor
	}
	return entry
}

func stockDeltas(order domain.Order, sign int64) []repositories.StockDelta {
	deltas := make([]repositories.StockDelta, 0, len(order.Items))
	for _, item := range order.Items {
		if item.ProductID == "" || item.Quantity <= 0 {
			continue
		}
		deltas = append(deltas, repositories.StockDelta{
			ProductID: item.ProductID,
			Delta:     sign * int64(item.Quantity),
		})
	}
	return deltas
}

// notifyOwner records a customer notification after the transaction committed.
// Failures are logged, never surfaced: the financial state is already durable.
func (s *orderService) notifyOwner(ctx context.Context, order domain.Order, title string, body string, now time.Time) {
	if order.UserID == "" {
		return
	}
	notification := domain.Notification{
		ID:        s.nextNotificationID(),
		UserID:    order.UserID,
		Title:     title,
		Body:      body,
		OrderRef:  &order.ID,
		CreatedAt: now,
	}
	if err := s.notifications.Insert(ctx, notification); err != nil {
		s.logger(ctx, "order.notification.failed", map[string]any{
			"order": order.ID,
			"user":  order.UserID,
			"error": err.Error(),
		})
	}
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEventMessage) {
	if s.events == nil {
		return
	}
	event.EventID = orderEventIDPrefix + s.newID()
	if _, err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

func (s *orderService) reportMissingStocks(ctx context.Context, result repositories.OrderTransitionResult) {
	if len(result.MissingProducts) == 0 {
		return
	}
	s.logger(ctx, "order.stock.missing", map[string]any{
		"order":    result.Order.ID,
		"products": result.MissingProducts,
	})
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) sanitizeText(value string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(value))
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextLedgerEntryID() string {
	return ledgerEntryIDPrefix + s.newID()
}

func (s *orderService) nextNotificationID() string {
	return notificationIDPrefix + s.newID()
}

func formatKurus(amount int64) string {
	return fmt.Sprintf("%d.%02d TRY", amount/100, amount%100)
}
