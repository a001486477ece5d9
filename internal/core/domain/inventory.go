package domain

import "math"

// MaxQuantity is the largest balance the quantity column can hold.
const MaxQuantity = math.MaxInt32

type Inventory struct {
	ID       int64
	SkuCode  string
	Quantity int
	Version  int // optimistic locking, bumped only by authoritative writes
}

// StockView is the read model returned to callers. A missing row is
// reported as a zero view rather than an error.
type StockView struct {
	SkuCode  string `json:"skuCode"`
	InStock  bool   `json:"inStock"`
	Quantity int    `json:"quantity"`
	Version  int    `json:"version"`
}

type StockRequestItem struct {
	SkuCode  string `json:"skuCode"`
	Quantity *int   `json:"quantity"`
	Version  *int   `json:"version,omitempty"`
}

func NewStockView(inv Inventory) StockView {
	return StockView{
		SkuCode:  inv.SkuCode,
		InStock:  inv.Quantity > 0,
		Quantity: inv.Quantity,
		Version:  inv.Version,
	}
}

func EmptyStockView(sku string) StockView {
	return StockView{SkuCode: sku}
}

// Qty returns the requested quantity, treating a missing value as zero.
func (i StockRequestItem) Qty() int {
	if i.Quantity == nil {
		return 0
	}
	return *i.Quantity
}
