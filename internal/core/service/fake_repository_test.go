package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rl1809/nexus-shop/internal/core/domain"
	"github.com/rl1809/nexus-shop/internal/port"
)

var errBoom = errors.New("boom")

// memStockRepo runs one transaction at a time against a copy of the rows
// and publishes the copy on commit. That is stricter than row locking but
// gives the same outcomes for single-row races.
type memStockRepo struct {
	mu     sync.Mutex
	rows   map[string]domain.Inventory
	nextID int64

	failDeltaFor string
}

func newMemStockRepo() *memStockRepo {
	return &memStockRepo{rows: make(map[string]domain.Inventory)}
}

func (r *memStockRepo) seed(sku string, quantity, version int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.rows[sku] = domain.Inventory{ID: r.nextID, SkuCode: sku, Quantity: quantity, Version: version}
}

func (r *memStockRepo) get(sku string) (domain.Inventory, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.rows[sku]
	return inv, ok
}

func (r *memStockRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func (r *memStockRepo) WithinTx(ctx context.Context, opts port.TxOptions, fn func(tx port.StockTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rows := make(map[string]domain.Inventory, len(r.rows))
	for k, v := range r.rows {
		rows[k] = v
	}
	tx := &memStockTx{repo: r, rows: rows, readOnly: opts.ReadOnly}

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if tx.readOnly && tx.wrote {
		return errors.New("write inside read-only transaction")
	}
	r.rows = tx.rows
	return nil
}

type memStockTx struct {
	repo     *memStockRepo
	rows     map[string]domain.Inventory
	readOnly bool
	wrote    bool
}

func (t *memStockTx) FindBySku(_ context.Context, sku string) (*domain.Inventory, error) {
	inv, ok := t.rows[sku]
	if !ok {
		return nil, nil
	}
	return &inv, nil
}

func (t *memStockTx) FindBySkuForUpdate(ctx context.Context, sku string) (*domain.Inventory, error) {
	return t.FindBySku(ctx, sku)
}

func (t *memStockTx) FindAllBySku(_ context.Context, skus []string) ([]domain.Inventory, error) {
	var out []domain.Inventory
	seen := make(map[string]bool)
	for _, sku := range skus {
		if inv, ok := t.rows[sku]; ok && !seen[sku] {
			seen[sku] = true
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memStockTx) ExistsBySku(_ context.Context, sku string) (bool, error) {
	_, ok := t.rows[sku]
	return ok, nil
}

func (t *memStockTx) Insert(_ context.Context, sku string, quantity int) (*domain.Inventory, error) {
	if _, ok := t.rows[sku]; ok {
		return nil, domain.ErrDuplicateKey
	}
	t.wrote = true
	t.repo.nextID++
	inv := domain.Inventory{ID: t.repo.nextID, SkuCode: sku, Quantity: quantity}
	t.rows[sku] = inv
	return &inv, nil
}

func (t *memStockTx) UpdateWithVersion(_ context.Context, inv domain.Inventory) error {
	for sku, row := range t.rows {
		if row.ID != inv.ID {
			continue
		}
		if row.Version != inv.Version {
			return domain.ErrConflict
		}
		t.wrote = true
		row.Quantity = inv.Quantity
		row.Version++
		t.rows[sku] = row
		return nil
	}
	return domain.ErrConflict
}

func (t *memStockTx) ApplyDelta(_ context.Context, sku string, delta int) (int64, error) {
	if sku == t.repo.failDeltaFor {
		return 0, errBoom
	}
	row, ok := t.rows[sku]
	if !ok || row.Quantity+delta < 0 || row.Quantity+delta > domain.MaxQuantity {
		return 0, nil
	}
	t.wrote = true
	row.Quantity += delta
	t.rows[sku] = row
	return 1, nil
}

func (t *memStockTx) DeleteBySku(_ context.Context, sku string) (int64, error) {
	if _, ok := t.rows[sku]; !ok {
		return 0, nil
	}
	t.wrote = true
	delete(t.rows, sku)
	return 1, nil
}
