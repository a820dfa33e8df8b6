package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/br7tech/billdesk/internal/inventory"
	"github.com/br7tech/billdesk/internal/platform/db"
	"github.com/br7tech/billdesk/internal/shared"
)

// Repository persists products and services.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	ListProducts(ctx context.Context, filter ListFilter) ([]Product, int, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	UpdateProduct(ctx context.Context, id int64, name string, price decimal.Decimal) error
	DeleteProduct(ctx context.Context, id int64) error

	ListServices(ctx context.Context, filter ListFilter) ([]Service, int, error)
	GetService(ctx context.Context, id int64) (Service, error)
	CreateService(ctx context.Context, input ServiceInput) (Service, error)
	UpdateService(ctx context.Context, id int64, input ServiceInput) error
	DeleteService(ctx context.Context, id int64) error
}

// TxRepository inserts products next to the stock operations so a new
// product and its opening movement commit together.
type TxRepository interface {
	inventory.TxRepository

	InsertProduct(ctx context.Context, name string, price decimal.Decimal) (Product, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{TxRepository: inventory.NewTxRepository(tx), q: tx})
	})
}

func (r *repository) ListProducts(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	pattern := shared.LikePattern(filter.Search)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE name ILIKE $1 ESCAPE '\'`, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
SELECT id, name, price, stock, created_at FROM products
WHERE name ILIKE $1 ESCAPE '\'
ORDER BY name ASC, id ASC
LIMIT $2 OFFSET $3`, pattern, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.CreatedAt); err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

func (r *repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, name, price, stock, created_at FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

func (r *repository) UpdateProduct(ctx context.Context, id int64, name string, price decimal.Decimal) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET name = $2, price = $3 WHERE id = $1`, id, name, price)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *repository) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *repository) ListServices(ctx context.Context, filter ListFilter) ([]Service, int, error) {
	pattern := shared.LikePattern(filter.Search)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM services WHERE name ILIKE $1 ESCAPE '\'`, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
SELECT id, name, price, created_at FROM services
WHERE name ILIKE $1 ESCAPE '\'
ORDER BY name ASC, id ASC
LIMIT $2 OFFSET $3`, pattern, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	services := make([]Service, 0)
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.Name, &s.Price, &s.CreatedAt); err != nil {
			return nil, 0, err
		}
		services = append(services, s)
	}
	return services, total, rows.Err()
}

func (r *repository) GetService(ctx context.Context, id int64) (Service, error) {
	var s Service
	err := r.pool.QueryRow(ctx, `SELECT id, name, price, created_at FROM services WHERE id = $1`, id).
		Scan(&s.ID, &s.Name, &s.Price, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Service{}, ErrServiceNotFound
	}
	return s, err
}

func (r *repository) CreateService(ctx context.Context, input ServiceInput) (Service, error) {
	s := Service{Name: input.Name, Price: input.Price}
	err := r.pool.QueryRow(ctx, `INSERT INTO services (name, price) VALUES ($1, $2) RETURNING id, created_at`, input.Name, input.Price).
		Scan(&s.ID, &s.CreatedAt)
	return s, err
}

func (r *repository) UpdateService(ctx context.Context, id int64, input ServiceInput) error {
	tag, err := r.pool.Exec(ctx, `UPDATE services SET name = $2, price = $3 WHERE id = $1`, id, input.Name, input.Price)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrServiceNotFound
	}
	return nil
}

func (r *repository) DeleteService(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrServiceNotFound
	}
	return nil
}

type txRepo struct {
	inventory.TxRepository
	q db.DBTX
}

// InsertProduct inserts with zero stock; opening stock goes through the adjuster.
func (t *txRepo) InsertProduct(ctx context.Context, name string, price decimal.Decimal) (Product, error) {
	p := Product{Name: name, Price: price}
	err := t.q.QueryRow(ctx, `INSERT INTO products (name, price, stock) VALUES ($1, $2, 0) RETURNING id, created_at`, name, price).
		Scan(&p.ID, &p.CreatedAt)
	return p, err
}
