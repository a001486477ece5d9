package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/nexus-shop/internal/core/domain"
	"github.com/rl1809/nexus-shop/internal/port"
)

const mysqlErrDuplicateEntry = 1062

const inventorySchema = `
CREATE TABLE IF NOT EXISTS t_inventory (
	id BIGINT NOT NULL AUTO_INCREMENT,
	sku_code VARCHAR(255) NOT NULL,
	quantity INT NOT NULL,
	version INT NOT NULL DEFAULT 0,
	PRIMARY KEY (id),
	UNIQUE KEY uk_inventory_sku_code (sku_code)
)`

// MySQLAdapter is the t_inventory store. The DSN must enable
// clientFoundRows so that RowsAffected counts matched rows.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, inventorySchema); err != nil {
		return fmt.Errorf("create t_inventory: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) WithinTx(ctx context.Context, opts port.TxOptions, fn func(tx port.StockTx) error) error {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: opts.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&mysqlStockTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type mysqlStockTx struct {
	tx *sql.Tx
}

func (t *mysqlStockTx) FindBySku(ctx context.Context, sku string) (*domain.Inventory, error) {
	return t.findOne(ctx, `
		SELECT id, sku_code, quantity, version
		FROM t_inventory WHERE sku_code = ?`, sku)
}

func (t *mysqlStockTx) FindBySkuForUpdate(ctx context.Context, sku string) (*domain.Inventory, error) {
	return t.findOne(ctx, `
		SELECT id, sku_code, quantity, version
		FROM t_inventory WHERE sku_code = ? FOR UPDATE`, sku)
}

func (t *mysqlStockTx) findOne(ctx context.Context, query, sku string) (*domain.Inventory, error) {
	var inv domain.Inventory
	err := t.tx.QueryRowContext(ctx, query, sku).
		Scan(&inv.ID, &inv.SkuCode, &inv.Quantity, &inv.Version)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	return &inv, nil
}

func (t *mysqlStockTx) FindAllBySku(ctx context.Context, skus []string) ([]domain.Inventory, error) {
	if len(skus) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(skus)), ",")
	args := make([]any, len(skus))
	for i, sku := range skus {
		args[i] = sku
	}

	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, sku_code, quantity, version
		FROM t_inventory WHERE sku_code IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query inventories: %w", err)
	}
	defer rows.Close()

	var out []domain.Inventory
	for rows.Next() {
		var inv domain.Inventory
		if err := rows.Scan(&inv.ID, &inv.SkuCode, &inv.Quantity, &inv.Version); err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventories: %w", err)
	}
	return out, nil
}

func (t *mysqlStockTx) ExistsBySku(ctx context.Context, sku string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM t_inventory WHERE sku_code = ?)`, sku,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query inventory existence: %w", err)
	}
	return exists, nil
}

func (t *mysqlStockTx) Insert(ctx context.Context, sku string, quantity int) (*domain.Inventory, error) {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO t_inventory (sku_code, quantity, version)
		VALUES (?, ?, 0)`, sku, quantity)
	if err != nil {
		if isDuplicateEntry(err) {
			return nil, fmt.Errorf("inventory %s: %w", sku, domain.ErrDuplicateKey)
		}
		return nil, fmt.Errorf("insert inventory: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert inventory id: %w", err)
	}
	return &domain.Inventory{ID: id, SkuCode: sku, Quantity: quantity}, nil
}

func (t *mysqlStockTx) UpdateWithVersion(ctx context.Context, inv domain.Inventory) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE t_inventory
		SET quantity = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		inv.Quantity, inv.ID, inv.Version,
	)
	if err != nil {
		return fmt.Errorf("update inventory: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update inventory rows: %w", err)
	}
	if rows == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (t *mysqlStockTx) ApplyDelta(ctx context.Context, sku string, delta int) (int64, error) {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE t_inventory
		SET quantity = quantity + ?
		WHERE sku_code = ? AND quantity + ? BETWEEN 0 AND ?`,
		delta, sku, delta, domain.MaxQuantity,
	)
	if err != nil {
		return 0, fmt.Errorf("adjust inventory: %w", err)
	}
	return result.RowsAffected()
}

func (t *mysqlStockTx) DeleteBySku(ctx context.Context, sku string) (int64, error) {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM t_inventory WHERE sku_code = ?`, sku)
	if err != nil {
		return 0, fmt.Errorf("delete inventory: %w", err)
	}
	return result.RowsAffected()
}

func isDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlErrDuplicateEntry
}
