package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog document stored in the `catalog` collection.
type Product struct {
	ID         string
	Title      string
	Price      decimal.Decimal
	Category   string
	Attributes map[string]any
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type ProductRequest struct {
	Title      string           `json:"title"`
	Price      *decimal.Decimal `json:"price"`
	Quantity   *int             `json:"quantity"`
	Category   string           `json:"category"`
	Attributes map[string]any   `json:"attributes,omitempty"`
}

type ProductResponse struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Price      decimal.Decimal `json:"price"`
	Category   string          `json:"category"`
	Attributes map[string]any  `json:"attributes,omitempty"`
	Version    int64           `json:"version"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Validate reports every failing field at once.
func (r ProductRequest) Validate() error {
	v := NewValidationError()
	if strings.TrimSpace(r.Title) == "" {
		v.Add("title", "must not be blank")
	}
	if r.Price == nil {
		v.Add("price", "Price must be not null")
	} else if !r.Price.IsPositive() {
		v.Add("price", "Price must be positive")
	}
	if r.Quantity == nil {
		v.Add("quantity", "Quantity must be not null")
	} else if *r.Quantity < 0 {
		v.Add("quantity", "Quantity must be positive")
	}
	if strings.TrimSpace(r.Category) == "" {
		v.Add("category", "Category must be specified")
	}
	return v.OrNil()
}

// Apply copies the mutable request fields onto p. Identity, version and
// audit timestamps are left to the store.
func (r ProductRequest) Apply(p *Product) {
	p.Title = r.Title
	if r.Price != nil {
		p.Price = *r.Price
	}
	p.Category = r.Category
	p.Attributes = r.Attributes
}

func NewProductResponse(p Product) ProductResponse {
	return ProductResponse{
		ID:         p.ID,
		Title:      p.Title,
		Price:      p.Price,
		Category:   p.Category,
		Attributes: p.Attributes,
		Version:    p.Version,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}
