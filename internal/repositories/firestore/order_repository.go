package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/pazaryeri/api/internal/domain"
	pfirestore "github.com/pazaryeri/api/internal/platform/firestore"
	"github.com/pazaryeri/api/internal/platform/pagination"
	"github.com/pazaryeri/api/internal/repositories"
)

const (
	ordersCollection       = "orders"
	productStockCollection = "productStocks"
	ledgerCollection       = "ledgerEntries"
)

// OrderRepository persists orders and applies lifecycle transitions together
// with their stock and ledger side effects in one Firestore transaction.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	stocks   *pfirestore.BaseRepository[stockDocument]
}

func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	orders := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection)
	stocks := pfirestore.NewBaseRepository[stockDocument](provider, productStockCollection)
	return &OrderRepository{provider: provider, orders: orders, stocks: stocks}, nil
}

// Insert creates the order document. Orders originate from the storefront
// writer; the admin surface mutates them only through ApplyTransition.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order insert: id is required")
	}
	ref, err := r.orders.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, newOrderDocument(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order find: id is required")
	}
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		var repoErr *pfirestore.Error
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), err)
		}
		return domain.Order{}, pfirestore.WrapError("orders.find", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
	}

	query := client.Collection(ordersCollection).Query
	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		query = query.Where("userRef", "==", userID)
	}
	if number := strings.TrimSpace(filter.Number); number != "" {
		query = query.Where("number", "==", number)
	}
	if len(filter.Status) == 1 {
		query = query.Where("status", "==", string(filter.Status[0]))
	} else if len(filter.Status) > 1 {
		statuses := make([]string, 0, len(filter.Status))
		for _, s := range filter.Status {
			statuses = append(statuses, string(s))
		}
		query = query.Where("status", "in", statuses)
	}
	if filter.Trashed != nil {
		query = query.Where("trashed", "==", *filter.Trashed)
	}
	if filter.DateRange.From != nil {
		query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("createdAt", "<=", filter.DateRange.To.UTC())
	}

	direction := firestore.Desc
	if filter.SortOrder == domain.SortAsc {
		direction = firestore.Asc
	}
	query = query.OrderBy("createdAt", direction).OrderBy(firestore.DocumentID, firestore.Asc).Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		var decoded orderPageToken
		if err := pagination.DecodeToken(token, &decoded); err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		query = query.StartAfter(decoded.CreatedAt, decoded.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(orders) > pageSize
	if hasMore {
		orders = orders[:pageSize]
	}
	var nextToken string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		encoded, err := pagination.EncodeToken(orderPageToken{ID: last.ID, CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Order]{Items: orders, NextPageToken: nextToken}, nil
}

// ApplyTransition mutates the order, adjusts product stock, and inserts or
// removes the income ledger entry inside one transaction. The expected status
// guard turns concurrent modifications into a conflict instead of lost updates.
func (r *OrderRepository) ApplyTransition(ctx context.Context, req repositories.OrderTransitionRequest) (repositories.OrderTransitionResult, error) {
	if r == nil || r.provider == nil {
		return repositories.OrderTransitionResult{}, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return repositories.OrderTransitionResult{}, errors.New("order transition: order id is required")
	}

	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.OrderTransitionResult{}, pfirestore.WrapError("orders.transition", err)
	}

	var result repositories.OrderTransitionResult
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = repositories.OrderTransitionResult{}

		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), err)
			}
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}

		if req.ExpectedStatus != "" && doc.Status != string(req.ExpectedStatus) {
			return repositories.NewOrderError(repositories.OrderErrorStatusConflict,
				fmt.Sprintf("order %s is %s, expected %s", orderID, doc.Status, req.ExpectedStatus), nil)
		}
		if req.ExpectedTrashed != nil && doc.Trashed != *req.ExpectedTrashed {
			return repositories.NewOrderError(repositories.OrderErrorStatusConflict,
				fmt.Sprintf("order %s trashed flag changed concurrently", orderID), nil)
		}

		// All reads must happen before the first write.
		type stockWrite struct {
			ref *firestore.DocumentRef
			doc stockDocument
		}
		var stockWrites []stockWrite
		for _, delta := range req.StockDeltas {
			productID := strings.TrimSpace(delta.ProductID)
			if productID == "" || delta.Delta == 0 {
				continue
			}
			stockRef, err := r.stocks.DocumentRef(ctx, productID)
			if err != nil {
				return err
			}
			stockSnap, err := tx.Get(stockRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					result.MissingProducts = append(result.MissingProducts, productID)
					continue
				}
				return err
			}
			var sdoc stockDocument
			if err := stockSnap.DataTo(&sdoc); err != nil {
				return fmt.Errorf("decode product stock %s: %w", productID, err)
			}
			updated := domain.ApplyStockDelta(sdoc.toDomain(productID), delta.Delta, now)
			stockWrites = append(stockWrites, stockWrite{ref: stockRef, doc: newStockDocument(updated)})
		}

		var ledgerDeletes []*firestore.DocumentRef
		ledgerInsert := req.Ledger.Insert
		if ledgerInsert != nil {
			existing, err := findIncomeEntryRefs(tx, client, orderID, 1)
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				// An income entry already exists; the transition is replayed.
				ledgerInsert = nil
			}
		}
		if removeFor := strings.TrimSpace(req.Ledger.RemoveForOrderID); removeFor != "" {
			refs, err := findIncomeEntryRefs(tx, client, removeFor, 0)
			if err != nil {
				return err
			}
			ledgerDeletes = refs
		}

		applyOrderPatch(&doc, req.Patch, now)
		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}
		for _, write := range stockWrites {
			if err := tx.Set(write.ref, write.doc); err != nil {
				return err
			}
		}
		if ledgerInsert != nil {
			entry := *ledgerInsert
			if strings.TrimSpace(entry.ID) == "" {
				return errors.New("order transition: ledger entry id is required")
			}
			entryRef := client.Collection(ledgerCollection).Doc(entry.ID)
			if err := tx.Create(entryRef, newLedgerDocument(entry)); err != nil {
				if status.Code(err) == codes.AlreadyExists {
					return repositories.NewOrderError(repositories.OrderErrorLedgerExists,
						fmt.Sprintf("ledger entry %s already exists", entry.ID), err)
				}
				return err
			}
		}
		for _, ref := range ledgerDeletes {
			if err := tx.Delete(ref); err != nil {
				return err
			}
		}

		result.Order = doc.toDomain(orderID)
		return nil
	})
	if err != nil {
		var orderErr *repositories.OrderError
		if errors.As(err, &orderErr) {
			if orderErr.Op == "" {
				orderErr.Op = "orders.transition"
			}
			return repositories.OrderTransitionResult{}, orderErr
		}
		return repositories.OrderTransitionResult{}, pfirestore.WrapError("orders.transition", err)
	}
	return result, nil
}

func findIncomeEntryRefs(tx *firestore.Transaction, client *firestore.Client, orderID string, limit int) ([]*firestore.DocumentRef, error) {
	query := client.Collection(ledgerCollection).Query.
		Where("orderRef", "==", orderID).
		Where("type", "==", string(domain.LedgerEntryIncome))
	if limit > 0 {
		query = query.Limit(limit)
	}
	iter := tx.Documents(query)
	defer iter.Stop()

	var refs []*firestore.DocumentRef
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		refs = append(refs, snap.Ref)
	}
	return refs, nil
}

func applyOrderPatch(doc *orderDocument, patch repositories.OrderPatch, now time.Time) {
	if patch.Status != nil {
		doc.Status = string(*patch.Status)
	}
	if patch.Trashed != nil {
		doc.Trashed = *patch.Trashed
	}
	if patch.RejectionReason != nil {
		reason := strings.TrimSpace(*patch.RejectionReason)
		doc.RejectionReason = &reason
	}
	if patch.PrepTimeMinutes != nil {
		minutes := *patch.PrepTimeMinutes
		doc.PrepTimeMinutes = &minutes
	}
	if patch.ShippingFee != nil {
		doc.ShippingFee = *patch.ShippingFee
		doc.Total = doc.Subtotal - doc.Discount + doc.ShippingFee + doc.ExtraFee
	}
	if patch.ExtraFee != nil {
		doc.ExtraFee = *patch.ExtraFee
		doc.Total = doc.Subtotal - doc.Discount + doc.ShippingFee + doc.ExtraFee
	}
	if patch.Total != nil {
		doc.Total = *patch.Total
	}
	if patch.ExtraFeeAskedAt != nil {
		ts := patch.ExtraFeeAskedAt.UTC()
		doc.ExtraFeeRequestedAt = &ts
	}
	if patch.DeliveredAt != nil {
		ts := patch.DeliveredAt.UTC()
		doc.DeliveredAt = &ts
	}
	if patch.RejectedAt != nil {
		ts := patch.RejectedAt.UTC()
		doc.RejectedAt = &ts
	}
	if patch.TrashedAt != nil {
		ts := patch.TrashedAt.UTC()
		doc.TrashedAt = &ts
	}
	if patch.ClearTrashedAt {
		doc.TrashedAt = nil
	}
	if patch.UpdatedBy != nil {
		actor := strings.TrimSpace(*patch.UpdatedBy)
		doc.UpdatedBy = &actor
	}
	doc.UpdatedAt = now
}

// Document structures -------------------------------------------------------

type orderDocument struct {
	Number              string              `firestore:"number"`
	UserRef             string              `firestore:"userRef"`
	Status              string              `firestore:"status"`
	Trashed             bool                `firestore:"trashed"`
	CouponCode          string              `firestore:"couponCode,omitempty"`
	Subtotal            int64               `firestore:"subtotal"`
	Discount            int64               `firestore:"discount"`
	ShippingFee         int64               `firestore:"shippingFee"`
	ExtraFee            int64               `firestore:"extraFee"`
	Total               int64               `firestore:"total"`
	Items               []orderItemDocument `firestore:"items"`
	RejectionReason     *string             `firestore:"rejectionReason,omitempty"`
	PrepTimeMinutes     *int                `firestore:"prepTimeMinutes,omitempty"`
	ExtraFeeRequestedAt *time.Time          `firestore:"extraFeeRequestedAt,omitempty"`
	CreatedBy           *string             `firestore:"createdBy,omitempty"`
	UpdatedBy           *string             `firestore:"updatedBy,omitempty"`
	CreatedAt           time.Time           `firestore:"createdAt"`
	UpdatedAt           time.Time           `firestore:"updatedAt"`
	DeliveredAt         *time.Time          `firestore:"deliveredAt,omitempty"`
	RejectedAt          *time.Time          `firestore:"rejectedAt,omitempty"`
	TrashedAt           *time.Time          `firestore:"trashedAt,omitempty"`
}

type orderItemDocument struct {
	ProductRef string `firestore:"productRef"`
	Name       string `firestore:"name"`
	Quantity   int    `firestore:"qty"`
	UnitPrice  int64  `firestore:"unitPrice"`
	Total      int64  `firestore:"total"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, len(order.Items))
	for i, item := range order.Items {
		items[i] = orderItemDocument{
			ProductRef: strings.TrimSpace(item.ProductID),
			Name:       strings.TrimSpace(item.Name),
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Total:      item.Total,
		}
	}
	return orderDocument{
		Number:              strings.TrimSpace(order.Number),
		UserRef:             strings.TrimSpace(order.UserID),
		Status:              string(order.Status),
		Trashed:             order.Trashed,
		CouponCode:          strings.TrimSpace(order.CouponCode),
		Subtotal:            order.Amounts.Subtotal,
		Discount:            order.Amounts.Discount,
		ShippingFee:         order.Amounts.Shipping,
		ExtraFee:            order.Amounts.ExtraFee,
		Total:               order.Amounts.Total,
		Items:               items,
		RejectionReason:     order.RejectionReason,
		PrepTimeMinutes:     order.PrepTimeMinutes,
		ExtraFeeRequestedAt: order.ExtraFeeRequestedAt,
		CreatedBy:           order.Audit.CreatedBy,
		UpdatedBy:           order.Audit.UpdatedBy,
		CreatedAt:           order.CreatedAt.UTC(),
		UpdatedAt:           order.UpdatedAt.UTC(),
		DeliveredAt:         order.DeliveredAt,
		RejectedAt:          order.RejectedAt,
		TrashedAt:           order.TrashedAt,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderLineItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderLineItem{
			ProductID: item.ProductRef,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.Total,
		}
	}
	return domain.Order{
		ID:         id,
		Number:     d.Number,
		UserID:     d.UserRef,
		Status:     domain.OrderStatus(d.Status),
		Trashed:    d.Trashed,
		CouponCode: d.CouponCode,
		Amounts: domain.OrderAmounts{
			Subtotal: d.Subtotal,
			Discount: d.Discount,
			Shipping: d.ShippingFee,
			ExtraFee: d.ExtraFee,
			Total:    d.Total,
		},
		Items:               items,
		RejectionReason:     d.RejectionReason,
		PrepTimeMinutes:     d.PrepTimeMinutes,
		ExtraFeeRequestedAt: d.ExtraFeeRequestedAt,
		Audit: domain.OrderAudit{
			CreatedBy: d.CreatedBy,
			UpdatedBy: d.UpdatedBy,
		},
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		DeliveredAt: d.DeliveredAt,
		RejectedAt:  d.RejectedAt,
		TrashedAt:   d.TrashedAt,
	}
}

type orderPageToken struct {
	ID        string
	CreatedAt time.Time
}
