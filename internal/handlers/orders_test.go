package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/pazaryeri/api/internal/domain"
	"github.com/pazaryeri/api/internal/platform/auth"
	"github.com/pazaryeri/api/internal/services"
)

type stubOrderService struct {
	listFn        func(context.Context, services.OrderListFilter) (domain.CursorPage[services.Order], error)
	getFn         func(context.Context, string) (services.Order, error)
	transitionFn  func(context.Context, services.OrderStatusTransitionCommand) (services.Order, error)
	rejectFn      func(context.Context, services.RejectOrderCommand) (services.Order, error)
	trashFn       func(context.Context, services.TrashOrderCommand) (services.Order, error)
	restoreFn     func(context.Context, services.RestoreOrderCommand) (services.Order, error)
	shippingFeeFn func(context.Context, services.SetShippingFeeCommand) (services.Order, error)
	extraFeeFn    func(context.Context, services.RequestExtraFeeCommand) (services.Order, error)
	notifyFn      func(context.Context, services.NotifyCustomerCommand) (services.Notification, error)
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Reject(ctx context.Context, cmd services.RejectOrderCommand) (services.Order, error) {
	if s.rejectFn != nil {
		return s.rejectFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Trash(ctx context.Context, cmd services.TrashOrderCommand) (services.Order, error) {
	if s.trashFn != nil {
		return s.trashFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Restore(ctx context.Context, cmd services.RestoreOrderCommand) (services.Order, error) {
	if s.restoreFn != nil {
		return s.restoreFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) SetShippingFee(ctx context.Context, cmd services.SetShippingFeeCommand) (services.Order, error) {
	if s.shippingFeeFn != nil {
		return s.shippingFeeFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) RequestExtraFee(ctx context.Context, cmd services.RequestExtraFeeCommand) (services.Order, error) {
	if s.extraFeeFn != nil {
		return s.extraFeeFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) NotifyCustomer(ctx context.Context, cmd services.NotifyCustomerCommand) (services.Notification, error) {
	if s.notifyFn != nil {
		return s.notifyFn(ctx, cmd)
	}
	return services.Notification{}, errors.New("not implemented")
}

var _ services.OrderService = (*stubOrderService)(nil)

func newOrderRouter(service services.OrderService) chi.Router {
	handler := NewAdminOrderHandlers(nil, service)
	router := chi.NewRouter()
	handler.Routes(router)
	return router
}

func withAdminIdentity(req *http.Request) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}}))
}

func TestAdminOrderHandlersListOrders(t *testing.T) {
	now := time.Date(2025, 8, 14, 9, 30, 0, 0, time.UTC)
	fromExpected := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)

	var capturedFilter services.OrderListFilter
	service := &stubOrderService{
		listFn: func(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			capturedFilter = filter
			return domain.CursorPage[services.Order]{
				Items: []services.Order{
					{
						ID:     "order-1",
						Number: "PZR-2025-000042",
						UserID: "user-1",
						Status: domain.OrderStatusDelivered,
						Amounts: domain.OrderAmounts{
							Subtotal: 4500,
							Shipping: 500,
							Total:    5000,
						},
						CreatedAt: now,
					},
				},
				NextPageToken: "tok-next",
			}, nil
		},
	}

	router := newOrderRouter(service)
	req := httptest.NewRequest(http.MethodGet, "/orders?status=delivered,rejected&trashed=false&number=PZR-2025-000042&page_size=10&page_token=tok123&created_after=2025-08-01T00:00:00Z", nil)
	req = withAdminIdentity(req)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	if len(capturedFilter.Status) != 2 {
		t.Fatalf("expected 2 status filters, got %d", len(capturedFilter.Status))
	}
	if capturedFilter.Number != "PZR-2025-000042" {
		t.Fatalf("expected number filter, got %q", capturedFilter.Number)
	}
	if capturedFilter.Trashed == nil || *capturedFilter.Trashed {
		t.Fatalf("expected trashed=false filter, got %v", capturedFilter.Trashed)
	}
	if capturedFilter.DateRange.From == nil || !capturedFilter.DateRange.From.Equal(fromExpected) {
		t.Fatalf("expected date range from %s, got %#v", fromExpected, capturedFilter.DateRange.From)
	}
	if capturedFilter.Pagination.PageSize != 10 || capturedFilter.Pagination.PageToken != "tok123" {
		t.Fatalf("unexpected pagination %+v", capturedFilter.Pagination)
	}

	var resp orderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 order, got %d", len(resp.Items))
	}
	if resp.Items[0].Number != "PZR-2025-000042" || resp.Items[0].Total != 5000 {
		t.Fatalf("unexpected summary %+v", resp.Items[0])
	}
	if resp.NextPageToken != "tok-next" {
		t.Fatalf("expected next page token tok-next, got %s", resp.NextPageToken)
	}
}

func TestAdminOrderHandlersListOrdersRejectsUnknownStatus(t *testing.T) {
	router := newOrderRouter(&stubOrderService{})
	req := withAdminIdentity(httptest.NewRequest(http.MethodGet, "/orders?status=shipped", nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAdminOrderHandlersGetOrderNotFound(t *testing.T) {
	service := &stubOrderService{
		getFn: func(ctx context.Context, orderID string) (services.Order, error) {
			return services.Order{}, services.ErrOrderNotFound
		},
	}
	router := newOrderRouter(service)
	req := withAdminIdentity(httptest.NewRequest(http.MethodGet, "/orders/missing", nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestAdminOrderHandlersTransition(t *testing.T) {
	var captured services.OrderStatusTransitionCommand
	service := &stubOrderService{
		transitionFn: func(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
			captured = cmd
			return services.Order{ID: cmd.OrderID, Status: cmd.TargetStatus}, nil
		},
	}
	router := newOrderRouter(service)

	body := bytes.NewBufferString(`{"status":"confirmed","prep_time_minutes":25}`)
	req := withAdminIdentity(httptest.NewRequest(http.MethodPost, "/orders/order-1:transition", body))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "order-1" {
		t.Fatalf("expected order-1, got %s", captured.OrderID)
	}
	if captured.TargetStatus != domain.OrderStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", captured.TargetStatus)
	}
	if captured.PrepTimeMinutes == nil || *captured.PrepTimeMinutes != 25 {
		t.Fatalf("expected prep time 25, got %v", captured.PrepTimeMinutes)
	}
	if captured.ActorID != "admin-1" {
		t.Fatalf("expected actor admin-1, got %s", captured.ActorID)
	}
}

func TestAdminOrderHandlersTransitionRejectsUnknownStatus(t *testing.T) {
	router := newOrderRouter(&stubOrderService{})
	body := bytes.NewBufferString(`{"status":"shipped"}`)
	req := withAdminIdentity(httptest.NewRequest(http.MethodPost, "/orders/order-1:transition", body))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAdminOrderHandlersTransitionConflict(t *testing.T) {
	service := &stubOrderService{
		transitionFn: func(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderConflict
		},
	}
	router := newOrderRouter(service)
	body := bytes.NewBufferString(`{"status":"delivered"}`)
	req := withAdminIdentity(httptest.NewRequest(http.MethodPost, "/orders/order-1:transition", body))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestAdminOrderHandlersReject(t *testing.T) {
	var captured services.RejectOrderCommand
	service := &stubOrderService{
		rejectFn: func(ctx context.Context, cmd services.RejectOrderCommand) (services.Order, error) {
			captured = cmd
			return services.Order{ID: cmd.OrderID, Status: domain.OrderStatusRejected}, nil
		},
	}
	router := newOrderRouter(service)
	body := bytes.NewBufferString(`{"reason":"address unreachable"}`)
	req := withAdminIdentity(httptest.NewRequest(http.MethodPost, "/orders/order-1:reject", body))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Reason != "address unreachable" {
		t.Fatalf("expected reason forwarded, got %q", captured.Reason)
	}

	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Order.Status != "rejected" {
		t.Fatalf("expected rejected, got %s", resp.Order.Status)
	}
}

func TestAdminOrderHandlersTrashAcceptsEmptyBody(t *testing.T) {
	var captured services.TrashOrderCommand
	service := &stubOrderService{
		trashFn: func(ctx context.Context, cmd services.TrashOrderCommand) (services.Order, error) {
			captured = cmd
			return services.Order{ID: cmd.OrderID, Trashed: true}, nil
		},
	}
	router := newOrderRouter(service)
	req := withAdminIdentity(httptest.NewRequest(http.MethodPost, "/orders/order-1:trash", nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "order-1" {
		t.Fatalf("expected order-1, got %s", captured.OrderID)
	}

	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.Order.Trashed {
		t.Fatalf("expected trashed order in response")
	}
}

func TestAdminOrderHandlersRestore(t *testing.T) {
	service := &stubOrderService{
		restoreFn: func(ctx context.Context, cmd services.RestoreOrderCommand) (services.Order, error) {
			return services.Order{ID: cmd.OrderID, Trashed: false}, nil
		},
	}
	router := newOrderRouter(service)
	req := withAdminIdentity(httptest.NewRequest(http.MethodPost, "/orders/order-1:restore", nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestAdminOrderHandlersSetShippingFee(t *testing.T) {
	var captured services.SetShippingFeeCommand
	service := &stubOrderService{
		shippingFeeFn: func(ctx context.Context, cmd services.SetShippingFeeCommand) (services.Order, error) {
			captured = cmd
			return services.Order{ID: cmd.OrderID, Amounts: domain.OrderAmounts{Shipping: cmd.Fee}}, nil
		},
	}
	router := newOrderRouter(service)
	body := bytes.NewBufferString(`{"fee":750}`)
	req := withAdminIdentity(httptest.NewRequest(http.MethodPut, "/orders/order-1/shipping-fee", body))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Fee != 750 {
		t.Fatalf("expected fee 750, got %d", captured.Fee)
	}
}

func TestAdminOrderHandlersSetShippingFeeRequiresFee(t *testing.T) {
	router := newOrderRouter(&stubOrderService{})
	body := bytes.NewBufferString(`{}`)
	req := withAdminIdentity(httptest.NewRequest(http.MethodPut, "/orders/order-1/shipping-fee", body))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAdminOrderHandlersRequestExtraFeeInvalidInput(t *testing.T) {
	service := &stubOrderService{
		extraFeeFn: func(ctx context.Context, cmd services.RequestExtraFeeCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderInvalidInput
		},
	}
	router := newOrderRouter(service)
	body := bytes.NewBufferString(`{"fee":-5,"reason":"oversized"}`)
	req := withAdminIdentity(httptest.NewRequest(http.MethodPost, "/orders/order-1/extra-fee", body))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAdminOrderHandlersNotifyCustomer(t *testing.T) {
	now := time.Date(2025, 8, 14, 16, 0, 0, 0, time.UTC)
	orderRef := "order-1"
	service := &stubOrderService{
		notifyFn: func(ctx context.Context, cmd services.NotifyCustomerCommand) (services.Notification, error) {
			return services.Notification{
				ID:        "ntf_001",
				UserID:    "user-1",
				Title:     cmd.Title,
				Body:      cmd.Message,
				OrderRef:  &orderRef,
				CreatedAt: now,
			}, nil
		},
	}
	router := newOrderRouter(service)
	body := bytes.NewBufferString(`{"title":"Delay","message":"Courier is running late."}`)
	req := withAdminIdentity(httptest.NewRequest(http.MethodPost, "/orders/order-1:notify", body))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp notificationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Notification.ID != "ntf_001" || resp.Notification.OrderRef != "order-1" {
		t.Fatalf("unexpected notification payload %+v", resp.Notification)
	}
}
