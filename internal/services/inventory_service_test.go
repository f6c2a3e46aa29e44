package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/pazaryeri/api/internal/domain"
	"github.com/pazaryeri/api/internal/repositories"
)

type stubStockRepository struct {
	lowStockFunc func(ctx context.Context, query repositories.LowStockQuery) (domain.CursorPage[domain.ProductStock], error)
}

func (s *stubStockRepository) ListLowStock(ctx context.Context, query repositories.LowStockQuery) (domain.CursorPage[domain.ProductStock], error) {
	if s.lowStockFunc == nil {
		return domain.CursorPage[domain.ProductStock]{}, errors.New("low stock not configured")
	}
	return s.lowStockFunc(ctx, query)
}

func int64Ptr(v int64) *int64 {
	return &v
}

func TestListLowStockUsesDefaultThreshold(t *testing.T) {
	var captured repositories.LowStockQuery
	repo := &stubStockRepository{
		lowStockFunc: func(ctx context.Context, query repositories.LowStockQuery) (domain.CursorPage[domain.ProductStock], error) {
			captured = query
			return domain.CursorPage[domain.ProductStock]{
				Items: []domain.ProductStock{
					{ProductID: "prod-1", Quantity: int64Ptr(2), Status: domain.StockStatusInStock, UpdatedAt: time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)},
				},
			}, nil
		},
	}

	svc, err := NewInventoryService(InventoryServiceDeps{Stocks: repo, DefaultLowStockThreshold: 10})
	if err != nil {
		t.Fatalf("NewInventoryService: %v", err)
	}

	page, err := svc.ListLowStock(context.Background(), LowStockFilter{})
	if err != nil {
		t.Fatalf("ListLowStock: %v", err)
	}
	if captured.Threshold != 10 {
		t.Fatalf("expected default threshold 10, got %d", captured.Threshold)
	}
	if len(page.Items) != 1 || page.Items[0].ProductID != "prod-1" {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestListLowStockOverridesThreshold(t *testing.T) {
	var captured repositories.LowStockQuery
	repo := &stubStockRepository{
		lowStockFunc: func(ctx context.Context, query repositories.LowStockQuery) (domain.CursorPage[domain.ProductStock], error) {
			captured = query
			return domain.CursorPage[domain.ProductStock]{}, nil
		},
	}

	svc, err := NewInventoryService(InventoryServiceDeps{Stocks: repo})
	if err != nil {
		t.Fatalf("NewInventoryService: %v", err)
	}

	if _, err := svc.ListLowStock(context.Background(), LowStockFilter{Threshold: int64Ptr(3)}); err != nil {
		t.Fatalf("ListLowStock: %v", err)
	}
	if captured.Threshold != 3 {
		t.Fatalf("expected threshold 3, got %d", captured.Threshold)
	}

	if _, err := svc.ListLowStock(context.Background(), LowStockFilter{Threshold: int64Ptr(-1)}); !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("expected ErrInventoryInvalidInput, got %v", err)
	}
}
