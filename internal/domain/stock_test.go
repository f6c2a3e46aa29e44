package domain

import (
	"testing"
	"time"
)

func int64Ptr(v int64) *int64 { return &v }

func TestApplyStockDeltaDecrementsAndFloorsAtZero(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	stock := ProductStock{ProductID: "prd_1", Quantity: int64Ptr(3), Status: StockStatusInStock}

	got := ApplyStockDelta(stock, -2, now)
	if got.Quantity == nil || *got.Quantity != 1 {
		t.Fatalf("expected quantity 1, got %v", got.Quantity)
	}
	if got.Status != StockStatusInStock {
		t.Fatalf("expected in_stock, got %s", got.Status)
	}

	got = ApplyStockDelta(got, -5, now)
	if got.Quantity == nil || *got.Quantity != 0 {
		t.Fatalf("expected floor at 0, got %v", got.Quantity)
	}
	if got.Status != StockStatusOutOfStock {
		t.Fatalf("expected out_of_stock at zero, got %s", got.Status)
	}
}

func TestApplyStockDeltaIncrementRestoresAvailability(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	stock := ProductStock{ProductID: "prd_1", Quantity: int64Ptr(0), Status: StockStatusOutOfStock}

	got := ApplyStockDelta(stock, 4, now)
	if got.Quantity == nil || *got.Quantity != 4 {
		t.Fatalf("expected quantity 4, got %v", got.Quantity)
	}
	if got.Status != StockStatusInStock {
		t.Fatalf("expected in_stock after restock, got %s", got.Status)
	}
	if !got.UpdatedAt.Equal(now) {
		t.Fatalf("expected UpdatedAt %v, got %v", now, got.UpdatedAt)
	}
}

func TestApplyStockDeltaUntrackedUnchanged(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	stock := ProductStock{ProductID: "prd_1", Status: StockStatusInStock}

	got := ApplyStockDelta(stock, -3, now)
	if got.Quantity != nil {
		t.Fatalf("expected untracked stock to stay untracked, got %v", got.Quantity)
	}
	if got.Status != StockStatusInStock {
		t.Fatalf("expected status unchanged, got %s", got.Status)
	}
}

func TestIncomeAmountPrefersStoredTotal(t *testing.T) {
	order := Order{
		Amounts: OrderAmounts{Total: 12500},
		Items: []OrderLineItem{
			{ProductID: "prd_1", Quantity: 2, UnitPrice: 1000, Total: 2000},
		},
	}
	if got := order.IncomeAmount(); got != 12500 {
		t.Fatalf("expected stored total 12500, got %d", got)
	}
}

func TestIncomeAmountFallsBackToLineItems(t *testing.T) {
	order := Order{
		Amounts: OrderAmounts{Shipping: 500, ExtraFee: 200, Discount: 300},
		Items: []OrderLineItem{
			{ProductID: "prd_1", Quantity: 2, UnitPrice: 1000, Total: 2000},
			{ProductID: "prd_2", Quantity: 1, UnitPrice: 4500, Total: 4500},
		},
	}
	if got := order.IncomeAmount(); got != 6900 {
		t.Fatalf("expected 6900 from line items and fees, got %d", got)
	}
}
