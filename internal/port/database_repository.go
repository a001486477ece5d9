package port

import (
	"context"

	"github.com/rl1809/nexus-shop/internal/core/domain"
)

type TxOptions struct {
	ReadOnly bool
}

// StockRepository owns transaction scope. fn runs inside a single
// transaction that is committed when fn returns nil and rolled back
// otherwise, including on context cancellation.
type StockRepository interface {
	WithinTx(ctx context.Context, opts TxOptions, fn func(tx StockTx) error) error
}

// StockTx is the set of t_inventory operations available inside a transaction.
type StockTx interface {
	// FindBySku is a plain snapshot read, returns nil when absent
	FindBySku(ctx context.Context, sku string) (*domain.Inventory, error)

	// FindBySkuForUpdate locks the row until the transaction ends, returns nil when absent
	FindBySkuForUpdate(ctx context.Context, sku string) (*domain.Inventory, error)

	FindAllBySku(ctx context.Context, skus []string) ([]domain.Inventory, error)

	ExistsBySku(ctx context.Context, sku string) (bool, error)

	// Insert creates (sku, quantity, version 0); a second row for the same
	// sku fails with domain.ErrDuplicateKey from the unique index
	Insert(ctx context.Context, sku string, quantity int) (*domain.Inventory, error)

	// UpdateWithVersion writes inv.Quantity where (id, version) match and bumps
	// the version; returns domain.ErrConflict when nothing matched
	UpdateWithVersion(ctx context.Context, inv domain.Inventory) error

	// ApplyDelta adds delta in one conditional statement that keeps the
	// quantity within [0, domain.MaxQuantity]. Zero rows means the row is
	// missing or the delta would leave that range.
	ApplyDelta(ctx context.Context, sku string, delta int) (int64, error)

	DeleteBySku(ctx context.Context, sku string) (int64, error)
}

type ProductRepository interface {
	// Insert assigns id, version and audit timestamps
	Insert(ctx context.Context, product domain.Product) (*domain.Product, error)

	// FindByID returns domain.ErrNotFound when absent
	FindByID(ctx context.Context, id string) (*domain.Product, error)

	// Update matches on (id, product.Version); returns domain.ErrConflict on a stale version
	Update(ctx context.Context, product domain.Product) (*domain.Product, error)

	DeleteByID(ctx context.Context, id string) (bool, error)

	FindPage(ctx context.Context, req domain.PageRequest) ([]domain.Product, int64, error)
}
