package domain

import "time"

// StockStatus mirrors the storefront's two-valued availability flag.
type StockStatus string

const (
	// StockStatusInStock marks a product as purchasable.
	StockStatusInStock StockStatus = "in_stock"
	// StockStatusOutOfStock marks a product as sold out.
	StockStatusOutOfStock StockStatus = "out_of_stock"
)

// ProductStock is the inventory projection of a product owned by the order
// lifecycle engine: only Quantity and Status are ever mutated here. A nil
// Quantity means the product is untracked and always in stock.
type ProductStock struct {
	ProductID string
	Quantity  *int64
	Status    StockStatus
	UpdatedAt time.Time
}

// Tracked reports whether stock quantity is tracked for this product.
func (s ProductStock) Tracked() bool {
	return s.Quantity != nil
}

// ApplyStockDelta returns the stock after adding delta to the tracked
// quantity. Decrements floor at zero, and Status is recomputed so that
// out_of_stock holds exactly when the tracked quantity is zero or less.
// Untracked stock is returned unchanged.
func ApplyStockDelta(stock ProductStock, delta int64, now time.Time) ProductStock {
	if !stock.Tracked() {
		return stock
	}
	quantity := *stock.Quantity + delta
	if quantity < 0 {
		quantity = 0
	}
	stock.Quantity = &quantity
	if quantity <= 0 {
		stock.Status = StockStatusOutOfStock
	} else {
		stock.Status = StockStatusInStock
	}
	stock.UpdatedAt = now.UTC()
	return stock
}
