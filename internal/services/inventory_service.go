package services

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/pazaryeri/api/internal/domain"
	"github.com/pazaryeri/api/internal/repositories"
)

// ErrInventoryInvalidInput signals the caller provided invalid data.
var ErrInventoryInvalidInput = errors.New("inventory: invalid input")

// InventoryServiceDeps bundles collaborators required to construct the inventory service.
type InventoryServiceDeps struct {
	Stocks repositories.StockRepository
	// DefaultLowStockThreshold applies when a listing does not name its own threshold.
	DefaultLowStockThreshold int64
}

type inventoryService struct {
	stocks           repositories.StockRepository
	defaultThreshold int64
}

var _ InventoryService = (*inventoryService)(nil)

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Stocks == nil {
		return nil, errors.New("inventory service: stock repository is required")
	}

	threshold := deps.DefaultLowStockThreshold
	if threshold <= 0 {
		threshold = 5
	}

	return &inventoryService{
		stocks:           deps.Stocks,
		defaultThreshold: threshold,
	}, nil
}

func (s *inventoryService) ListLowStock(ctx context.Context, filter LowStockFilter) (domain.CursorPage[ProductStock], error) {
	threshold := s.defaultThreshold
	if filter.Threshold != nil {
		if *filter.Threshold < 0 {
			return domain.CursorPage[ProductStock]{}, fmt.Errorf("%w: threshold must not be negative", ErrInventoryInvalidInput)
		}
		threshold = *filter.Threshold
	}

	page, err := s.stocks.ListLowStock(ctx, repositories.LowStockQuery{
		Threshold:  threshold,
		Pagination: filter.Pager,
	})
	if err != nil {
		return domain.CursorPage[ProductStock]{}, err
	}
	return page, nil
}
