package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/pazaryeri/api/internal/domain"
	pfirestore "github.com/pazaryeri/api/internal/platform/firestore"
	"github.com/pazaryeri/api/internal/platform/pagination"
	"github.com/pazaryeri/api/internal/repositories"
)

// StockRepository reads the inventory projections maintained by order transitions.
type StockRepository struct {
	provider *pfirestore.Provider
	stocks   *pfirestore.BaseRepository[stockDocument]
}

func NewStockRepository(provider *pfirestore.Provider) (*StockRepository, error) {
	if provider == nil {
		return nil, errors.New("stock repository requires firestore provider")
	}
	stocks := pfirestore.NewBaseRepository[stockDocument](provider, productStockCollection)
	return &StockRepository{provider: provider, stocks: stocks}, nil
}

func (r *StockRepository) FindByProductID(ctx context.Context, productID string) (domain.ProductStock, error) {
	if r == nil || r.stocks == nil {
		return domain.ProductStock{}, errors.New("stock repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.ProductStock{}, errors.New("stock find: product id is required")
	}
	doc, err := r.stocks.Get(ctx, productID)
	if err != nil {
		return domain.ProductStock{}, pfirestore.WrapError("productStocks.find", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListLowStock returns tracked products at or below the threshold, lowest first.
// Untracked products never appear because null quantities do not match the
// range filter.
func (r *StockRepository) ListLowStock(ctx context.Context, query repositories.LowStockQuery) (domain.CursorPage[domain.ProductStock], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.ProductStock]{}, errors.New("stock repository not initialised")
	}

	pageSize := query.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}
	threshold := query.Threshold
	if threshold < 0 {
		threshold = 0
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.ProductStock]{}, pfirestore.WrapError("productStocks.lowStock", err)
	}

	firestoreQuery := client.Collection(productStockCollection).Query.
		Where("quantity", "<=", threshold).
		OrderBy("quantity", firestore.Asc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(query.Pagination.PageToken); token != "" {
		var decoded stockPageToken
		if err := pagination.DecodeToken(token, &decoded); err != nil {
			return domain.CursorPage[domain.ProductStock]{}, pfirestore.WrapError("productStocks.lowStock", err)
		}
		firestoreQuery = firestoreQuery.StartAfter(decoded.Quantity, decoded.ProductID)
	}

	iter := firestoreQuery.Documents(ctx)
	defer iter.Stop()

	var stocks []domain.ProductStock
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.ProductStock]{}, pfirestore.WrapError("productStocks.lowStock", err)
		}
		var doc stockDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.ProductStock]{}, fmt.Errorf("decode product stock %s: %w", snap.Ref.ID, err)
		}
		stocks = append(stocks, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(stocks) > pageSize
	if hasMore {
		stocks = stocks[:pageSize]
	}
	var nextToken string
	if hasMore && len(stocks) > 0 {
		last := stocks[len(stocks)-1]
		var quantity int64
		if last.Quantity != nil {
			quantity = *last.Quantity
		}
		encoded, err := pagination.EncodeToken(stockPageToken{ProductID: last.ProductID, Quantity: quantity})
		if err != nil {
			return domain.CursorPage[domain.ProductStock]{}, pfirestore.WrapError("productStocks.lowStock", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.ProductStock]{Items: stocks, NextPageToken: nextToken}, nil
}

type stockDocument struct {
	Quantity  *int64    `firestore:"quantity"`
	Status    string    `firestore:"status"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func newStockDocument(stock domain.ProductStock) stockDocument {
	return stockDocument{
		Quantity:  stock.Quantity,
		Status:    string(stock.Status),
		UpdatedAt: stock.UpdatedAt.UTC(),
	}
}

func (d stockDocument) toDomain(id string) domain.ProductStock {
	return domain.ProductStock{
		ProductID: id,
		Quantity:  d.Quantity,
		Status:    domain.StockStatus(d.Status),
		UpdatedAt: d.UpdatedAt,
	}
}

type stockPageToken struct {
	ProductID string
	Quantity  int64
}

