package billing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/br7tech/billdesk/internal/inventory"
	"github.com/br7tech/billdesk/internal/platform/db"
	"github.com/br7tech/billdesk/internal/shared"
)

// BillHeader is the row written to bills.
type BillHeader struct {
	ClientID int64
	Total    decimal.Decimal
	Discount decimal.Decimal
}

// ServiceBillHeader is the row written to service_bills.
type ServiceBillHeader struct {
	ClientID  int64
	Total     decimal.Decimal
	Discount  decimal.Decimal
	Transport decimal.Decimal
	Advance   decimal.Decimal
}

// TxRepository is the transactional port used by the persister. Stock
// operations come from the inventory module so both share one transaction.
type TxRepository interface {
	inventory.TxRepository

	ClientExists(ctx context.Context, clientID int64) (bool, error)
	InsertBill(ctx context.Context, header BillHeader) (int64, error)
	InsertBillItem(ctx context.Context, billID int64, item BillItem) error
	LockBill(ctx context.Context, billID int64) (BillHeader, error)
	BillItems(ctx context.Context, billID int64) ([]BillItem, error)
	BillHasPayments(ctx context.Context, billID int64) (bool, error)
	DeleteBill(ctx context.Context, billID int64) error

	GetService(ctx context.Context, serviceID int64) (ServiceRef, error)
	InsertServiceBill(ctx context.Context, header ServiceBillHeader) (int64, error)
	LockServiceBill(ctx context.Context, id int64) (ServiceBillHeader, error)
	UpdateServiceBill(ctx context.Context, id int64, header ServiceBillHeader) error
	ServiceItems(ctx context.Context, serviceBillID int64) ([]ServiceBillItem, error)
	ReplaceServiceItems(ctx context.Context, serviceBillID int64, items []ServiceBillItem) error
	DeleteServiceBill(ctx context.Context, id int64) error
}

// Repository is the port the billing service depends on.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBill(ctx context.Context, id int64) (Bill, error)
	ListBills(ctx context.Context, filter ListFilter) ([]Bill, int, error)
	GetServiceBill(ctx context.Context, id int64) (ServiceBill, error)
	ListServiceBills(ctx context.Context, filter ListFilter) ([]ServiceBill, int, error)
	GetClient(ctx context.Context, id int64) (ClientRef, error)
	ProductSnapshot(ctx context.Context, id int64) (Sellable, error)
	ServiceSnapshot(ctx context.Context, id int64) (Sellable, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// WithTx runs fn inside one read-committed transaction. Stock and bill rows
// are locked FOR UPDATE, so each lock reads the latest committed row.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxIso(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{TxRepository: inventory.NewTxRepository(tx), q: tx})
	})
}

const billSelect = `
SELECT b.id, b.client_id, c.name, c.phone, c.address, b.created_at, b.total, b.discount
FROM bills b
JOIN clients c ON c.id = b.client_id`

// Listing filters share argument positions $1..$6; see filterArgs.
const billFilter = `
WHERE ($1::bigint = 0 OR b.client_id = $1)
  AND ($2::timestamptz IS NULL OR b.created_at >= $2)
  AND ($3::timestamptz IS NULL OR b.created_at < $3)
  AND ($4::text = '' OR c.name ILIKE $5 ESCAPE '\' OR b.id = $6)`

const serviceBillFilter = `
WHERE ($1::bigint = 0 OR sb.client_id = $1)
  AND ($2::timestamptz IS NULL OR sb.created_at >= $2)
  AND ($3::timestamptz IS NULL OR sb.created_at < $3)
  AND ($4::text = '' OR c.name ILIKE $5 ESCAPE '\' OR sb.id = $6)`

func filterArgs(f ListFilter) []any {
	return []any{f.ClientID, nullTime(f.Dates.From), nullTime(f.Dates.Until), f.Query, shared.LikePattern(f.Query), f.BillNumber()}
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func scanBill(row pgx.Row) (Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.ClientID, &b.Client.Name, &b.Client.Phone, &b.Client.Address, &b.CreatedAt, &b.Total, &b.Discount)
	b.Client.ID = b.ClientID
	return b, err
}

// GetBill reads a bill with client and item joins.
func (r *PGRepository) GetBill(ctx context.Context, id int64) (Bill, error) {
	bill, err := scanBill(r.pool.QueryRow(ctx, billSelect+` WHERE b.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Bill{}, ErrBillNotFound
	}
	if err != nil {
		return Bill{}, err
	}
	items, err := r.billItems(ctx, []int64{id})
	if err != nil {
		return Bill{}, err
	}
	bill.Items = items[id]
	return bill, nil
}

// ListBills returns bills newest first, each with its items.
func (r *PGRepository) ListBills(ctx context.Context, filter ListFilter) ([]Bill, int, error) {
	args := filterArgs(filter)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bills b JOIN clients c ON c.id = b.client_id`+billFilter, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, billSelect+billFilter+`
ORDER BY b.created_at DESC, b.id DESC
LIMIT $7 OFFSET $8`, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	bills := make([]Bill, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, 0, err
		}
		bills = append(bills, bill)
		ids = append(ids, bill.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return bills, total, nil
	}
	items, err := r.billItems(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range bills {
		bills[i].Items = items[bills[i].ID]
	}
	return bills, total, nil
}

func (r *PGRepository) billItems(ctx context.Context, billIDs []int64) (map[int64][]BillItem, error) {
	rows, err := r.pool.Query(ctx, `
SELECT bi.bill_id, bi.id, bi.product_id, p.name, p.price, bi.quantity, bi.price_at_time
FROM bill_items bi
JOIN products p ON p.id = bi.product_id
WHERE bi.bill_id = ANY($1)
ORDER BY bi.bill_id, bi.id`, billIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]BillItem, len(billIDs))
	for rows.Next() {
		var (
			billID int64
			item   BillItem
		)
		if err := rows.Scan(&billID, &item.ID, &item.ProductID, &item.ProductName, &item.CurrentPrice, &item.Quantity, &item.PriceAtTime); err != nil {
			return nil, err
		}
		out[billID] = append(out[billID], item)
	}
	return out, rows.Err()
}

const serviceBillSelect = `
SELECT sb.id, sb.client_id, c.name, c.phone, c.address, sb.created_at, sb.total, sb.discount, sb.transport, sb.advance
FROM service_bills sb
JOIN clients c ON c.id = sb.client_id`

func scanServiceBill(row pgx.Row) (ServiceBill, error) {
	var b ServiceBill
	err := row.Scan(&b.ID, &b.ClientID, &b.Client.Name, &b.Client.Phone, &b.Client.Address, &b.CreatedAt,
		&b.Total, &b.Discount, &b.Transport, &b.Advance)
	b.Client.ID = b.ClientID
	return b, err
}

// GetServiceBill reads a service bill with client and item joins.
func (r *PGRepository) GetServiceBill(ctx context.Context, id int64) (ServiceBill, error) {
	bill, err := scanServiceBill(r.pool.QueryRow(ctx, serviceBillSelect+` WHERE sb.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return ServiceBill{}, ErrServiceBillNotFound
	}
	if err != nil {
		return ServiceBill{}, err
	}
	items, err := r.serviceItems(ctx, []int64{id})
	if err != nil {
		return ServiceBill{}, err
	}
	bill.Items = items[id]
	return bill, nil
}

// ListServiceBills returns service bills newest first, each with its items.
func (r *PGRepository) ListServiceBills(ctx context.Context, filter ListFilter) ([]ServiceBill, int, error) {
	args := filterArgs(filter)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM service_bills sb JOIN clients c ON c.id = sb.client_id`+serviceBillFilter, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, serviceBillSelect+serviceBillFilter+`
ORDER BY sb.created_at DESC, sb.id DESC
LIMIT $7 OFFSET $8`, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	bills := make([]ServiceBill, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		bill, err := scanServiceBill(rows)
		if err != nil {
			return nil, 0, err
		}
		bills = append(bills, bill)
		ids = append(ids, bill.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return bills, total, nil
	}
	items, err := r.serviceItems(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range bills {
		bills[i].Items = items[bills[i].ID]
	}
	return bills, total, nil
}

func (r *PGRepository) serviceItems(ctx context.Context, billIDs []int64) (map[int64][]ServiceBillItem, error) {
	rows, err := r.pool.Query(ctx, `
SELECT si.service_bill_id, si.id, si.service_id, s.name, s.price, si.quantity, si.price_at_time
FROM service_items si
JOIN services s ON s.id = si.service_id
WHERE si.service_bill_id = ANY($1)
ORDER BY si.service_bill_id, si.id`, billIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]ServiceBillItem, len(billIDs))
	for rows.Next() {
		var (
			billID int64
			item   ServiceBillItem
		)
		if err := rows.Scan(&billID, &item.ID, &item.ServiceID, &item.ServiceName, &item.CurrentPrice, &item.Quantity, &item.PriceAtTime); err != nil {
			return nil, err
		}
		out[billID] = append(out[billID], item)
	}
	return out, rows.Err()
}

// GetClient loads the client fields printed on bills.
func (r *PGRepository) GetClient(ctx context.Context, id int64) (ClientRef, error) {
	c := ClientRef{ID: id}
	err := r.pool.QueryRow(ctx, `SELECT name, phone, address FROM clients WHERE id = $1`, id).Scan(&c.Name, &c.Phone, &c.Address)
	if errors.Is(err, pgx.ErrNoRows) {
		return ClientRef{}, ErrClientNotFound
	}
	return c, err
}

// ProductSnapshot reads a product without locking it.
func (r *PGRepository) ProductSnapshot(ctx context.Context, id int64) (Sellable, error) {
	s := Sellable{ID: id, Kind: KindProduct}
	err := r.pool.QueryRow(ctx, `SELECT name, price, stock FROM products WHERE id = $1`, id).Scan(&s.Name, &s.Price, &s.Stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sellable{}, inventory.ErrProductNotFound
	}
	return s, err
}

// ServiceSnapshot reads a service.
func (r *PGRepository) ServiceSnapshot(ctx context.Context, id int64) (Sellable, error) {
	s := Sellable{ID: id, Kind: KindService}
	err := r.pool.QueryRow(ctx, `SELECT name, price FROM services WHERE id = $1`, id).Scan(&s.Name, &s.Price)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sellable{}, ErrServiceNotFound
	}
	return s, err
}

type txRepo struct {
	inventory.TxRepository
	q db.DBTX
}

func (t *txRepo) ClientExists(ctx context.Context, clientID int64) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM clients WHERE id = $1)`, clientID).Scan(&exists)
	return exists, err
}

func (t *txRepo) InsertBill(ctx context.Context, header BillHeader) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `INSERT INTO bills (client_id, total, discount, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		header.ClientID, header.Total, header.Discount, time.Now().UTC()).Scan(&id)
	return id, err
}

func (t *txRepo) InsertBillItem(ctx context.Context, billID int64, item BillItem) error {
	_, err := t.q.Exec(ctx, `INSERT INTO bill_items (bill_id, product_id, quantity, price_at_time) VALUES ($1, $2, $3, $4)`,
		billID, item.ProductID, item.Quantity, item.PriceAtTime)
	return err
}

func (t *txRepo) LockBill(ctx context.Context, billID int64) (BillHeader, error) {
	var h BillHeader
	err := t.q.QueryRow(ctx, `SELECT client_id, total, discount FROM bills WHERE id = $1 FOR UPDATE`, billID).
		Scan(&h.ClientID, &h.Total, &h.Discount)
	if errors.Is(err, pgx.ErrNoRows) {
		return BillHeader{}, ErrBillNotFound
	}
	return h, err
}

func (t *txRepo) BillItems(ctx context.Context, billID int64) ([]BillItem, error) {
	rows, err := t.q.Query(ctx, `SELECT id, product_id, quantity, price_at_time FROM bill_items WHERE bill_id = $1 ORDER BY id`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BillItem
	for rows.Next() {
		var item BillItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Quantity, &item.PriceAtTime); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (t *txRepo) BillHasPayments(ctx context.Context, billID int64) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE bill_id = $1)`, billID).Scan(&exists)
	return exists, err
}

func (t *txRepo) DeleteBill(ctx context.Context, billID int64) error {
	if _, err := t.q.Exec(ctx, `DELETE FROM bill_items WHERE bill_id = $1`, billID); err != nil {
		return err
	}
	tag, err := t.q.Exec(ctx, `DELETE FROM bills WHERE id = $1`, billID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrBillHasPayments
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBillNotFound
	}
	return nil
}

func (t *txRepo) GetService(ctx context.Context, serviceID int64) (ServiceRef, error) {
	s := ServiceRef{ID: serviceID}
	err := t.q.QueryRow(ctx, `SELECT name, price FROM services WHERE id = $1`, serviceID).Scan(&s.Name, &s.Price)
	if errors.Is(err, pgx.ErrNoRows) {
		return ServiceRef{}, ErrServiceNotFound
	}
	return s, err
}

func (t *txRepo) InsertServiceBill(ctx context.Context, h ServiceBillHeader) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `
INSERT INTO service_bills (client_id, total, discount, transport, advance, created_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		h.ClientID, h.Total, h.Discount, h.Transport, h.Advance, time.Now().UTC()).Scan(&id)
	return id, err
}

func (t *txRepo) LockServiceBill(ctx context.Context, id int64) (ServiceBillHeader, error) {
	var h ServiceBillHeader
	err := t.q.QueryRow(ctx, `SELECT client_id, total, discount, transport, advance FROM service_bills WHERE id = $1 FOR UPDATE`, id).
		Scan(&h.ClientID, &h.Total, &h.Discount, &h.Transport, &h.Advance)
	if errors.Is(err, pgx.ErrNoRows) {
		return ServiceBillHeader{}, ErrServiceBillNotFound
	}
	return h, err
}

func (t *txRepo) UpdateServiceBill(ctx context.Context, id int64, h ServiceBillHeader) error {
	_, err := t.q.Exec(ctx, `
UPDATE service_bills SET client_id = $2, total = $3, discount = $4, transport = $5, advance = $6
WHERE id = $1`, id, h.ClientID, h.Total, h.Discount, h.Transport, h.Advance)
	return err
}

func (t *txRepo) ServiceItems(ctx context.Context, serviceBillID int64) ([]ServiceBillItem, error) {
	rows, err := t.q.Query(ctx, `SELECT id, service_id, quantity, price_at_time FROM service_items WHERE service_bill_id = $1 ORDER BY id`, serviceBillID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ServiceBillItem
	for rows.Next() {
		var item ServiceBillItem
		if err := rows.Scan(&item.ID, &item.ServiceID, &item.Quantity, &item.PriceAtTime); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (t *txRepo) ReplaceServiceItems(ctx context.Context, serviceBillID int64, items []ServiceBillItem) error {
	if _, err := t.q.Exec(ctx, `DELETE FROM service_items WHERE service_bill_id = $1`, serviceBillID); err != nil {
		return err
	}
	for _, item := range items {
		if _, err := t.q.Exec(ctx, `INSERT INTO service_items (service_bill_id, service_id, quantity, price_at_time) VALUES ($1, $2, $3, $4)`,
			serviceBillID, item.ServiceID, item.Quantity, item.PriceAtTime); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) DeleteServiceBill(ctx context.Context, id int64) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM service_bills WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrServiceBillNotFound
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
