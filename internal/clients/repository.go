package clients

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/br7tech/billdesk/internal/platform/db"
	"github.com/br7tech/billdesk/internal/shared"
)

// Repository persists clients.
type Repository interface {
	Search(ctx context.Context, term string, limit int) ([]Client, error)
	List(ctx context.Context, limit, offset int) ([]Client, int, error)
	Get(ctx context.Context, id int64) (Client, error)
	Create(ctx context.Context, input Input) (Client, error)
	Update(ctx context.Context, id int64, input Input) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func scanClients(rows pgx.Rows) ([]Client, error) {
	defer rows.Close()
	clients := make([]Client, 0)
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.CreatedAt); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// Search matches name or phone, prefix matches first.
func (r *repository) Search(ctx context.Context, term string, limit int) ([]Client, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, name, phone, address, created_at FROM clients
WHERE name ILIKE $1 ESCAPE '\' OR phone ILIKE $1 ESCAPE '\'
ORDER BY (name ILIKE $2 ESCAPE '\') DESC, name ASC, id ASC
LIMIT $3`, shared.LikePattern(term), shared.PrefixPattern(term), limit)
	if err != nil {
		return nil, err
	}
	return scanClients(rows)
}

func (r *repository) List(ctx context.Context, limit, offset int) ([]Client, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM clients`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
SELECT id, name, phone, address, created_at FROM clients
ORDER BY created_at DESC, id DESC
LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	clients, err := scanClients(rows)
	return clients, total, err
}

func (r *repository) Get(ctx context.Context, id int64) (Client, error) {
	var c Client
	err := r.pool.QueryRow(ctx, `SELECT id, name, phone, address, created_at FROM clients WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Client{}, ErrClientNotFound
	}
	return c, err
}

func (r *repository) Create(ctx context.Context, input Input) (Client, error) {
	c := Client{Name: input.Name, Phone: input.Phone, Address: input.Address}
	err := r.pool.QueryRow(ctx, `INSERT INTO clients (name, phone, address) VALUES ($1, $2, $3) RETURNING id, created_at`,
		input.Name, input.Phone, input.Address).Scan(&c.ID, &c.CreatedAt)
	return c, err
}

func (r *repository) Update(ctx context.Context, id int64, input Input) error {
	tag, err := r.pool.Exec(ctx, `UPDATE clients SET name = $2, phone = $3, address = $4 WHERE id = $1`,
		id, input.Name, input.Phone, input.Address)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrClientNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrClientInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrClientNotFound
	}
	return nil
}
