package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pazaryeri/api/internal/platform/auth"
	"github.com/pazaryeri/api/internal/platform/httpx"
	"github.com/pazaryeri/api/internal/services"
)

const (
	defaultLowStockPageSize = 50
	maxLowStockPageSize     = 200
)

// InventoryHandlers exposes the stock projection maintained by the order lifecycle.
type InventoryHandlers struct {
	authn     *auth.Authenticator
	inventory services.InventoryService
}

// NewInventoryHandlers constructs a new InventoryHandlers instance.
func NewInventoryHandlers(authn *auth.Authenticator, inventory services.InventoryService) *InventoryHandlers {
	return &InventoryHandlers{
		authn:     authn,
		inventory: inventory,
	}
}

// Routes registers the /admin/inventory endpoints.
func (h *InventoryHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/inventory", func(group chi.Router) {
		if h.authn != nil {
			group.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
		}
		group.Get("/low-stock", h.listLowStock)
	})
}

func (h *InventoryHandlers) listLowStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()

	var threshold *int64
	if raw := strings.TrimSpace(query.Get("threshold")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "threshold must be an integer", http.StatusBadRequest))
			return
		}
		threshold = &value
	}

	pageSize, err := parsePageSize(query.Get("page_size"), defaultLowStockPageSize, maxLowStockPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		return
	}

	page, err := h.inventory.ListLowStock(ctx, services.LowStockFilter{
		Threshold: threshold,
		Pager: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		if errors.Is(err, services.ErrInventoryInvalidInput) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("inventory_error", "failed to list low stock products", http.StatusInternalServerError))
		return
	}

	items := make([]productStockPayload, 0, len(page.Items))
	for _, stock := range page.Items {
		items = append(items, buildProductStockPayload(stock))
	}

	writeJSONResponse(w, http.StatusOK, lowStockListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

type lowStockListResponse struct {
	Items         []productStockPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type productStockPayload struct {
	ProductID string `json:"product_id"`
	Quantity  *int64 `json:"quantity,omitempty"`
	Status    string `json:"status"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func buildProductStockPayload(stock services.ProductStock) productStockPayload {
	payload := productStockPayload{
		ProductID: stock.ProductID,
		Status:    string(stock.Status),
		UpdatedAt: formatTime(stock.UpdatedAt),
	}
	if stock.Quantity != nil {
		quantity := *stock.Quantity
		payload.Quantity = &quantity
	}
	return payload
}
