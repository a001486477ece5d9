package domain

import "encoding/json"

const (
	ProductExchange          = "product.exchange"
	ProductCreatedRoutingKey = "product.created"
	ProductCreatedQueue      = "product.created.queue"
)

type ProductCreatedEvent struct {
	SkuCode string `json:"sku"`
	Title   string `json:"title"`
}

// UnmarshalJSON also accepts the older "skuCode" field name used by
// earlier producers.
func (e *ProductCreatedEvent) UnmarshalJSON(data []byte) error {
	var raw struct {
		Sku     string `json:"sku"`
		SkuCode string `json:"skuCode"`
		Title   string `json:"title"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.SkuCode = raw.Sku
	if e.SkuCode == "" {
		e.SkuCode = raw.SkuCode
	}
	e.Title = raw.Title
	return nil
}
