package payments

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/br7tech/billdesk/internal/platform/db"
)

// TxRepository is used inside a payment mutation.
type TxRepository interface {
	ClientExists(ctx context.Context, clientID int64) (bool, error)
	BillClient(ctx context.Context, billID int64) (int64, error)
	Insert(ctx context.Context, p Payment) (Payment, error)
	Lock(ctx context.Context, id int64) (Payment, error)
	Update(ctx context.Context, p Payment) error
	Delete(ctx context.Context, id int64) error
	InsertHistory(ctx context.Context, p Payment, action Action) error
}

// Repository is the port the payment service depends on.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Payment, error)
	List(ctx context.Context, filter ListFilter) ([]Payment, int, error)
	History(ctx context.Context, paymentID int64) ([]HistoryEntry, error)
	ClientBills(ctx context.Context, clientID int64) ([]LedgerBill, error)
	ClientPayments(ctx context.Context, clientID int64) ([]Payment, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// WithTx runs fn in one transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

const paymentSelect = `
SELECT p.id, p.client_id, c.name, p.bill_id, p.total, p.paid, COALESCE(p.comment, ''), p.created_at
FROM payments p
JOIN clients c ON c.id = p.client_id`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.ClientID, &p.ClientName, &p.BillID, &p.Total, &p.Paid, &p.Comment, &p.CreatedAt)
	return p, err
}

// Get loads one payment.
func (r *PGRepository) Get(ctx context.Context, id int64) (Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, paymentSelect+` WHERE p.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrPaymentNotFound
	}
	return p, err
}

// List returns payments newest first.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Payment, int, error) {
	const where = ` WHERE ($1 = 0 OR p.client_id = $1) AND (NOT $2 OR p.bill_id IS NULL)`
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payments p`+where, filter.ClientID, filter.AdvanceOnly).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, paymentSelect+where+`
ORDER BY p.created_at DESC, p.id DESC
LIMIT $3 OFFSET $4`, filter.ClientID, filter.AdvanceOnly, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// History returns the snapshots of a payment, oldest first.
func (r *PGRepository) History(ctx context.Context, paymentID int64) ([]HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, payment_id, bill_id, client_id, total, paid, COALESCE(comment, ''), action, created_at
FROM payments_history
WHERE payment_id = $1
ORDER BY created_at, id`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]HistoryEntry, 0)
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.PaymentID, &h.BillID, &h.ClientID, &h.Total, &h.Paid, &h.Comment, &h.Action, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ClientPayments lists every payment of a client, newest first.
func (r *PGRepository) ClientPayments(ctx context.Context, clientID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, paymentSelect+`
WHERE p.client_id = $1
ORDER BY p.created_at DESC, p.id DESC`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ClientBills lists the bills of a client, newest first.
func (r *PGRepository) ClientBills(ctx context.Context, clientID int64) ([]LedgerBill, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, created_at, total, discount
FROM bills
WHERE client_id = $1
ORDER BY created_at DESC, id DESC`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]LedgerBill, 0)
	for rows.Next() {
		var b LedgerBill
		if err := rows.Scan(&b.BillID, &b.CreatedAt, &b.Total, &b.Discount); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type txRepo struct {
	q db.DBTX
}

func (t *txRepo) ClientExists(ctx context.Context, clientID int64) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM clients WHERE id = $1)`, clientID).Scan(&exists)
	return exists, err
}

func (t *txRepo) BillClient(ctx context.Context, billID int64) (int64, error) {
	var clientID int64
	err := t.q.QueryRow(ctx, `SELECT client_id FROM bills WHERE id = $1`, billID).Scan(&clientID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrBillNotFound
	}
	return clientID, err
}

func (t *txRepo) Insert(ctx context.Context, p Payment) (Payment, error) {
	err := t.q.QueryRow(ctx, `
INSERT INTO payments (client_id, bill_id, total, paid, comment)
VALUES ($1, $2, $3, $4, NULLIF($5, ''))
RETURNING id, created_at`, p.ClientID, p.BillID, p.Total, p.Paid, p.Comment).Scan(&p.ID, &p.CreatedAt)
	return p, err
}

func (t *txRepo) Lock(ctx context.Context, id int64) (Payment, error) {
	var p Payment
	err := t.q.QueryRow(ctx, `
SELECT id, client_id, bill_id, total, paid, COALESCE(comment, ''), created_at
FROM payments WHERE id = $1 FOR UPDATE`, id).
		Scan(&p.ID, &p.ClientID, &p.BillID, &p.Total, &p.Paid, &p.Comment, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrPaymentNotFound
	}
	return p, err
}

func (t *txRepo) Update(ctx context.Context, p Payment) error {
	_, err := t.q.Exec(ctx, `
UPDATE payments SET bill_id = $2, total = $3, paid = $4, comment = NULLIF($5, '')
WHERE id = $1`, p.ID, p.BillID, p.Total, p.Paid, p.Comment)
	return err
}

func (t *txRepo) Delete(ctx context.Context, id int64) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (t *txRepo) InsertHistory(ctx context.Context, p Payment, action Action) error {
	_, err := t.q.Exec(ctx, `
INSERT INTO payments_history (payment_id, bill_id, client_id, total, paid, comment, action)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)`,
		p.ID, p.BillID, p.ClientID, p.Total, p.Paid, p.Comment, string(action))
	return err
}

var _ Repository = (*PGRepository)(nil)
