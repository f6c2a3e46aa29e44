package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/pazaryeri/api/internal/domain"
	"github.com/pazaryeri/api/internal/platform/auth"
	"github.com/pazaryeri/api/internal/platform/httpx"
	"github.com/pazaryeri/api/internal/services"
)

const (
	defaultLedgerPageSize = 50
	maxLedgerPageSize     = 200
)

var validLedgerTypes = map[domain.LedgerEntryType]struct{}{
	domain.LedgerEntryIncome:  {},
	domain.LedgerEntryExpense: {},
}

type recordExpenseRequest struct {
	Amount      *int64 `json:"amount"`
	Description string `json:"description"`
}

// LedgerHandlers exposes the admin finance endpoints over the income/expense ledger.
type LedgerHandlers struct {
	authn  *auth.Authenticator
	ledger services.LedgerService
}

// NewLedgerHandlers constructs a new LedgerHandlers instance.
func NewLedgerHandlers(authn *auth.Authenticator, ledger services.LedgerService) *LedgerHandlers {
	return &LedgerHandlers{
		authn:  authn,
		ledger: ledger,
	}
}

// Routes registers the /admin/ledger endpoints.
func (h *LedgerHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/ledger", func(group chi.Router) {
		if h.authn != nil {
			group.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
		}
		group.Get("/", h.listEntries)
		group.Post("/expenses", h.recordExpense)
	})
}

func (h *LedgerHandlers) listEntries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ledger == nil {
		httpx.WriteError(ctx, w, httpx.NewError("ledger_service_unavailable", "ledger service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()

	types := make([]domain.LedgerEntryType, 0)
	for _, raw := range parseFilterValues(query["type"]) {
		entryType := domain.LedgerEntryType(raw)
		if _, ok := validLedgerTypes[entryType]; !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("unknown ledger type %q", raw), http.StatusBadRequest))
			return
		}
		types = append(types, entryType)
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

	pageSize, err := parsePageSize(query.Get("page_size"), defaultLedgerPageSize, maxLedgerPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		return
	}

	filter := services.LedgerListFilter{
		Types:     types,
		OrderID:   strings.TrimSpace(query.Get("order_id")),
		DateRange: dateRange,
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}

	page, err := h.ledger.ListEntries(ctx, filter)
	if err != nil {
		writeLedgerError(ctx, w, err)
		return
	}

	items := make([]ledgerEntryPayload, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, buildLedgerEntryPayload(entry))
	}

	writeJSONResponse(w, http.StatusOK, ledgerListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *LedgerHandlers) recordExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ledger == nil {
		httpx.WriteError(ctx, w, httpx.NewError("ledger_service_unavailable", "ledger service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req recordExpenseRequest
	if !decodeOrderBody(ctx, w, r, &req, true) {
		return
	}
	if req.Amount == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "amount is required", http.StatusBadRequest))
		return
	}

	entry, err := h.ledger.RecordExpense(ctx, services.RecordExpenseCommand{
		Amount:      *req.Amount,
		Description: req.Description,
		ActorID:     actorID(ctx),
	})
	if err != nil {
		writeLedgerError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, ledgerEntryResponse{Entry: buildLedgerEntryPayload(entry)})
}

type ledgerListResponse struct {
	Items         []ledgerEntryPayload `json:"items"`
	NextPageToken string               `json:"next_page_token,omitempty"`
}

type ledgerEntryResponse struct {
	Entry ledgerEntryPayload `json:"entry"`
}

type ledgerEntryPayload struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	Amount      int64   `json:"amount"`
	Description string  `json:"description"`
	OrderRef    string  `json:"order_ref,omitempty"`
	CreatedBy   *string `json:"created_by,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

func buildLedgerEntryPayload(entry services.LedgerEntry) ledgerEntryPayload {
	payload := ledgerEntryPayload{
		ID:          entry.ID,
		Type:        string(entry.Type),
		Amount:      entry.Amount,
		Description: entry.Description,
		CreatedBy:   cloneStringPointer(entry.CreatedBy),
		CreatedAt:   formatTime(entry.CreatedAt),
	}
	if entry.OrderRef != nil {
		payload.OrderRef = strings.TrimSpace(*entry.OrderRef)
	}
	return payload
}

func writeLedgerError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrLedgerInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrLedgerNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("ledger_entry_not_found", "ledger entry not found", http.StatusNotFound))
	case errors.Is(err, services.ErrLedgerConflict):
		httpx.WriteError(ctx, w, httpx.NewError("ledger_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("ledger_error", "failed to process ledger request", http.StatusInternalServerError))
	}
}
