package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/pazaryeri/api/internal/domain"
	"github.com/pazaryeri/api/internal/platform/auth"
	"github.com/pazaryeri/api/internal/platform/httpx"
	"github.com/pazaryeri/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderBodySize     = 4 * 1024
)

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

var validOrderStatuses = map[domain.OrderStatus]struct{}{
	domain.OrderStatusPending:    {},
	domain.OrderStatusConfirmed:  {},
	domain.OrderStatusPreparing:  {},
	domain.OrderStatusReady:      {},
	domain.OrderStatusInDelivery: {},
	domain.OrderStatusDelivered:  {},
	domain.OrderStatusRejected:   {},
}

type transitionOrderRequest struct {
	Status          string `json:"status"`
	PrepTimeMinutes *int   `json:"prep_time_minutes"`
}

type rejectOrderRequest struct {
	Reason string `json:"reason"`
}

type shippingFeeRequest struct {
	Fee *int64 `json:"fee"`
}

type extraFeeRequest struct {
	Fee    *int64 `json:"fee"`
	Reason string `json:"reason"`
}

type notifyCustomerRequest struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// AdminOrderHandlers exposes the order lifecycle endpoints for dashboard staff.
type AdminOrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewAdminOrderHandlers constructs a new AdminOrderHandlers instance.
func NewAdminOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *AdminOrderHandlers {
	return &AdminOrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /admin/orders endpoints.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/orders", func(group chi.Router) {
		if h.authn != nil {
			group.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
		}
		group.Get("/", h.listOrders)
		group.Get("/{orderID}", h.getOrder)
		group.Post("/{orderID}:transition", h.transitionOrder)
		group.Post("/{orderID}:reject", h.rejectOrder)
		group.Post("/{orderID}:trash", h.trashOrder)
		group.Post("/{orderID}:restore", h.restoreOrder)
		group.Post("/{orderID}:notify", h.notifyCustomer)
		group.Put("/{orderID}/shipping-fee", h.setShippingFee)
		group.Post("/{orderID}/extra-fee", h.requestExtraFee)
	})
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()

	statuses := make([]domain.OrderStatus, 0)
	for _, raw := range parseFilterValues(query["status"]) {
		status, ok := parseOrderStatus(raw)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("unknown status %q", raw), http.StatusBadRequest))
			return
		}
		statuses = append(statuses, status)
	}

	var trashed *bool
	if raw := strings.TrimSpace(query.Get("trashed")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "trashed must be a boolean", http.StatusBadRequest))
			return
		}
		trashed = &value
	}

	var dateRange domain.RangeQuery[time.Time]
	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		dateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_before must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		dateRange.To = &ts
	}

	pageSize, err := parsePageSize(query.Get("page_size"), defaultOrderPageSize, maxOrderPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		return
	}

	sortOrder := domain.SortDesc
	if raw := strings.TrimSpace(query.Get("sort_order")); strings.EqualFold(raw, "asc") {
		sortOrder = domain.SortAsc
	}

	filter := services.OrderListFilter{
		UserID:    strings.TrimSpace(query.Get("user_id")),
		Number:    strings.TrimSpace(query.Get("number")),
		Status:    statuses,
		Trashed:   trashed,
		DateRange: dateRange,
		SortOrder: sortOrder,
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}

	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.requireOrder(ctx, w, r)
	if !ok {
		return
	}

	var req transitionOrderRequest
	if !decodeOrderBody(ctx, w, r, &req, true) {
		return
	}

	status, ok := parseOrderStatus(req.Status)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID:         orderID,
		TargetStatus:    status,
		PrepTimeMinutes: req.PrepTimeMinutes,
		ActorID:         actorID(ctx),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) rejectOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.requireOrder(ctx, w, r)
	if !ok {
		return
	}

	var req rejectOrderRequest
	if !decodeOrderBody(ctx, w, r, &req, true) {
		return
	}

	order, err := h.orders.Reject(ctx, services.RejectOrderCommand{
		OrderID: orderID,
		Reason:  req.Reason,
		ActorID: actorID(ctx),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) trashOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.requireOrder(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.orders.Trash(ctx, services.TrashOrderCommand{
		OrderID: orderID,
		ActorID: actorID(ctx),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) restoreOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.requireOrder(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.orders.Restore(ctx, services.RestoreOrderCommand{
		OrderID: orderID,
		ActorID: actorID(ctx),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) setShippingFee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.requireOrder(ctx, w, r)
	if !ok {
		return
	}

	var req shippingFeeRequest
	if !decodeOrderBody(ctx, w, r, &req, true) {
		return
	}
	if req.Fee == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "fee is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.SetShippingFee(ctx, services.SetShippingFeeCommand{
		OrderID: orderID,
		Fee:     *req.Fee,
		ActorID: actorID(ctx),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) requestExtraFee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.requireOrder(ctx, w, r)
	if !ok {
		return
	}

	var req extraFeeRequest
	if !decodeOrderBody(ctx, w, r, &req, true) {
		return
	}
	if req.Fee == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "fee is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.RequestExtraFee(ctx, services.RequestExtraFeeCommand{
		OrderID: orderID,
		Fee:     *req.Fee,
		Reason:  req.Reason,
		ActorID: actorID(ctx),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) notifyCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.requireOrder(ctx, w, r)
	if !ok {
		return
	}

	var req notifyCustomerRequest
	if !decodeOrderBody(ctx, w, r, &req, true) {
		return
	}

	notification, err := h.orders.NotifyCustomer(ctx, services.NotifyCustomerCommand{
		OrderID: orderID,
		Title:   req.Title,
		Message: req.Message,
		ActorID: actorID(ctx),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, notificationResponse{
		Notification: buildNotificationPayload(notification),
	})
}

func (h *AdminOrderHandlers) requireOrder(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return "", false
	}
	return orderID, true
}

// decodeOrderBody reads and unmarshals a bounded JSON body. When required is
// false a missing body leaves dst untouched.
func decodeOrderBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any, required bool) bool {
	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errEmptyBody):
			if !required {
				return true
			}
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID        string `json:"id"`
	Number    string `json:"number"`
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
	Trashed   bool   `json:"trashed"`
	Total     int64  `json:"total"`
	CreatedAt string `json:"created_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID                  string              `json:"id"`
	Number              string              `json:"number"`
	UserID              string              `json:"user_id"`
	Status              string              `json:"status"`
	Trashed             bool                `json:"trashed"`
	CouponCode          string              `json:"coupon_code,omitempty"`
	Amounts             orderAmountsPayload `json:"amounts"`
	Items               []orderItemPayload  `json:"items"`
	RejectionReason     *string             `json:"rejection_reason,omitempty"`
	PrepTimeMinutes     *int                `json:"prep_time_minutes,omitempty"`
	ExtraFeeRequestedAt string              `json:"extra_fee_requested_at,omitempty"`
	Audit               *orderAuditPayload  `json:"audit,omitempty"`
	CreatedAt           string              `json:"created_at"`
	UpdatedAt           string              `json:"updated_at,omitempty"`
	DeliveredAt         string              `json:"delivered_at,omitempty"`
	RejectedAt          string              `json:"rejected_at,omitempty"`
	TrashedAt           string              `json:"trashed_at,omitempty"`
}

type orderAmountsPayload struct {
	Subtotal int64 `json:"subtotal"`
	Discount int64 `json:"discount"`
	Shipping int64 `json:"shipping"`
	ExtraFee int64 `json:"extra_fee"`
	Total    int64 `json:"total"`
}

type orderItemPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Total     int64  `json:"total"`
}

type orderAuditPayload struct {
	CreatedBy *string `json:"created_by,omitempty"`
	UpdatedBy *string `json:"updated_by,omitempty"`
}

type notificationResponse struct {
	Notification notificationPayload `json:"notification"`
}

type notificationPayload struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	OrderRef  string `json:"order_ref,omitempty"`
	CreatedAt string `json:"created_at"`
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:        strings.TrimSpace(order.ID),
		Number:    strings.TrimSpace(order.Number),
		UserID:    strings.TrimSpace(order.UserID),
		Status:    strings.TrimSpace(string(order.Status)),
		Trashed:   order.Trashed,
		Total:     order.Amounts.Total,
		CreatedAt: formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:         strings.TrimSpace(order.ID),
		Number:     strings.TrimSpace(order.Number),
		UserID:     strings.TrimSpace(order.UserID),
		Status:     strings.TrimSpace(string(order.Status)),
		Trashed:    order.Trashed,
		CouponCode: strings.TrimSpace(order.CouponCode),
		Amounts: orderAmountsPayload{
			Subtotal: order.Amounts.Subtotal,
			Discount: order.Amounts.Discount,
			Shipping: order.Amounts.Shipping,
			ExtraFee: order.Amounts.ExtraFee,
			Total:    order.Amounts.Total,
		},
		Items:               make([]orderItemPayload, 0, len(order.Items)),
		RejectionReason:     cloneStringPointer(order.RejectionReason),
		PrepTimeMinutes:     order.PrepTimeMinutes,
		ExtraFeeRequestedAt: formatTime(pointerTime(order.ExtraFeeRequestedAt)),
		CreatedAt:           formatTime(order.CreatedAt),
		UpdatedAt:           formatTime(order.UpdatedAt),
		DeliveredAt:         formatTime(pointerTime(order.DeliveredAt)),
		RejectedAt:          formatTime(pointerTime(order.RejectedAt)),
		TrashedAt:           formatTime(pointerTime(order.TrashedAt)),
	}

	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      strings.TrimSpace(item.Name),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.Total,
		})
	}

	if order.Audit.CreatedBy != nil || order.Audit.UpdatedBy != nil {
		payload.Audit = &orderAuditPayload{
			CreatedBy: cloneStringPointer(order.Audit.CreatedBy),
			UpdatedBy: cloneStringPointer(order.Audit.UpdatedBy),
		}
	}

	return payload
}

func buildNotificationPayload(notification services.Notification) notificationPayload {
	payload := notificationPayload{
		ID:        notification.ID,
		UserID:    notification.UserID,
		Title:     notification.Title,
		Body:      notification.Body,
		CreatedAt: formatTime(notification.CreatedAt),
	}
	if notification.OrderRef != nil {
		payload.OrderRef = strings.TrimSpace(*notification.OrderRef)
	}
	return payload
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func actorID(ctx context.Context) string {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil {
		return ""
	}
	return strings.TrimSpace(identity.UID)
}

func parseOrderStatus(raw string) (domain.OrderStatus, bool) {
	status := domain.OrderStatus(strings.TrimSpace(strings.ToLower(raw)))
	if _, ok := validOrderStatuses[status]; !ok {
		return "", false
	}
	return status, true
}

func parsePageSize(raw string, fallback int, ceiling int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	size, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	switch {
	case size <= 0:
		return fallback, nil
	case size > ceiling:
		return ceiling, nil
	default:
		return size, nil
	}
}

func parseFilterValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	filters := make([]string, 0, len(values))
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			trimmed := strings.ToLower(strings.TrimSpace(part))
			if trimmed == "" {
				continue
			}
			if _, exists := seen[trimmed]; exists {
				continue
			}
			seen[trimmed] = struct{}{}
			filters = append(filters, trimmed)
		}
	}
	return filters
}

func parseTimeParam(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("must be RFC3339 timestamp")
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxOrderBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func pointerTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func cloneStringPointer(value *string) *string {
	if value == nil {
		return nil
	}
	copy := *value
	return &copy
}
