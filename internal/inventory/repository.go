package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/br7tech/billdesk/internal/platform/db"
)

// TxRepository exposes the row level operations an adjustment needs. It is
// embedded by other modules' transactional repositories so billing can adjust
// stock in its own transaction.
type TxRepository interface {
	LockProduct(ctx context.Context, productID int64) (ProductStock, error)
	UpdateStock(ctx context.Context, productID int64, stock int) error
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
	LinkMovements(ctx context.Context, movementIDs []int64, refID int64) error
}

// Repository persists stock data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// StockCard lists movements of a product, newest first.
func (r *Repository) StockCard(ctx context.Context, productID int64, limit int) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, product_id, ref_module, COALESCE(ref_id, 0), qty_change, balance_after, note, created_at
FROM stock_movements
WHERE product_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.RefModule, &m.RefID, &m.QtyChange, &m.BalanceAfter, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

type txRepo struct {
	q db.DBTX
}

// NewTxRepository binds the stock operations to an open transaction.
func NewTxRepository(q db.DBTX) TxRepository {
	return &txRepo{q: q}
}

func (t *txRepo) LockProduct(ctx context.Context, productID int64) (ProductStock, error) {
	var p ProductStock
	err := t.q.QueryRow(ctx, `SELECT id, name, price, stock FROM products WHERE id = $1 FOR UPDATE`, productID).
		Scan(&p.ID, &p.Name, &p.Price, &p.Stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProductStock{}, ErrProductNotFound
	}
	return p, err
}

func (t *txRepo) UpdateStock(ctx context.Context, productID int64, stock int) error {
	tag, err := t.q.Exec(ctx, `UPDATE products SET stock = $2 WHERE id = $1`, productID, stock)
	if err != nil {
		if db.IsCheckViolation(err) {
			return ErrNegativeStock
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (t *txRepo) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	var refID any
	if m.RefID != 0 {
		refID = m.RefID
	}
	err := t.q.QueryRow(ctx, `
INSERT INTO stock_movements (product_id, ref_module, ref_id, qty_change, balance_after, note)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at`, m.ProductID, m.RefModule, refID, m.QtyChange, m.BalanceAfter, m.Note).
		Scan(&m.ID, &m.CreatedAt)
	return m, err
}

func (t *txRepo) LinkMovements(ctx context.Context, movementIDs []int64, refID int64) error {
	_, err := t.q.Exec(ctx, `UPDATE stock_movements SET ref_id = $2 WHERE id = ANY($1)`, movementIDs, refID)
	return err
}
