package billing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/br7tech/billdesk/internal/platform/httpx"
	"github.com/br7tech/billdesk/internal/shared"
)

// ItemKind separates stock tracked products from labour services.
type ItemKind string

const (
	KindProduct ItemKind = "product"
	KindService ItemKind = "service"
)

// ClientRef is the denormalised client shown on a bill.
type ClientRef struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// BillItemInput is one requested product line.
type BillItemInput struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

// SubmitBillInput is everything needed to persist a product bill.
type SubmitBillInput struct {
	ClientID       int64           `json:"client_id" validate:"required,gt=0"`
	Items          []BillItemInput `json:"items" validate:"required,min=1,dive"`
	Discount       decimal.Decimal `json:"discount"`
	IdempotencyKey string          `json:"idempotency_key" validate:"max=100"`
	ActorID        int64           `json:"-"`
}

// Bill is a persisted product bill read back with its joins.
type Bill struct {
	ID        int64           `json:"id"`
	ClientID  int64           `json:"client_id"`
	Client    ClientRef       `json:"client"`
	CreatedAt time.Time       `json:"created_at"`
	Total     decimal.Decimal `json:"total"`
	Discount  decimal.Decimal `json:"discount"`
	Items     []BillItem      `json:"items"`
}

// Payable is the amount due after discount.
func (b Bill) Payable() decimal.Decimal {
	return shared.RoundCents(b.Total.Sub(b.Discount))
}

// BillItem is one persisted line with the product name joined in.
type BillItem struct {
	ID           int64           `json:"id"`
	ProductID    int64           `json:"product_id"`
	ProductName  string          `json:"product_name"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Quantity     int             `json:"quantity"`
	PriceAtTime  decimal.Decimal `json:"price_at_time"`
}

// Extension is quantity times the captured price.
func (i BillItem) Extension() decimal.Decimal {
	return shared.Extension(i.Quantity, i.PriceAtTime)
}

// ServiceItemInput is one requested service line.
type ServiceItemInput struct {
	ServiceID int64 `json:"service_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

// SubmitServiceBillInput is everything needed to persist a service bill.
type SubmitServiceBillInput struct {
	ClientID       int64              `json:"client_id" validate:"required,gt=0"`
	Items          []ServiceItemInput `json:"items" validate:"required,min=1,dive"`
	Discount       decimal.Decimal    `json:"discount"`
	Transport      decimal.Decimal    `json:"transport"`
	Advance        decimal.Decimal    `json:"advance"`
	IdempotencyKey string             `json:"idempotency_key" validate:"max=100"`
	ActorID        int64              `json:"-"`
}

// ServiceBill is a persisted service bill read back with its joins.
type ServiceBill struct {
	ID        int64             `json:"id"`
	ClientID  int64             `json:"client_id"`
	Client    ClientRef         `json:"client"`
	CreatedAt time.Time         `json:"created_at"`
	Total     decimal.Decimal   `json:"total"`
	Discount  decimal.Decimal   `json:"discount"`
	Transport decimal.Decimal   `json:"transport"`
	Advance   decimal.Decimal   `json:"advance"`
	Items     []ServiceBillItem `json:"items"`
}

// GrandTotal is the item total plus transport.
func (b ServiceBill) GrandTotal() decimal.Decimal {
	return shared.RoundCents(b.Total.Add(b.Transport))
}

// Balance is what the client still owes. Negative means overpaid.
func (b ServiceBill) Balance() decimal.Decimal {
	return shared.RoundCents(b.Total.Add(b.Transport).Sub(b.Advance).Sub(b.Discount))
}

// ServiceBillItem is one persisted service line with the service name joined in.
type ServiceBillItem struct {
	ID           int64           `json:"id"`
	ServiceID    int64           `json:"service_id"`
	ServiceName  string          `json:"service_name"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Quantity     int             `json:"quantity"`
	PriceAtTime  decimal.Decimal `json:"price_at_time"`
}

// Extension is quantity times the captured price.
func (i ServiceBillItem) Extension() decimal.Decimal {
	return shared.Extension(i.Quantity, i.PriceAtTime)
}

// ServiceRef is the priced view of a service used while billing.
type ServiceRef struct {
	ID    int64
	Name  string
	Price decimal.Decimal
}

// ListFilter narrows bill listings. Query matches the client name, or the
// bill number when it is numeric.
type ListFilter struct {
	ClientID int64
	Dates    shared.DateRange
	Query    string
	Limit    int
	Offset   int
}

// BillNumber reads Query as a bill id. The printed INV- and SRV- forms are
// accepted. Zero means Query is not a number.
func (f ListFilter) BillNumber() int64 {
	q := strings.ToUpper(strings.TrimSpace(f.Query))
	q = strings.TrimPrefix(q, "#")
	q = strings.TrimPrefix(strings.TrimPrefix(q, "INV-"), "SRV-")
	id, err := strconv.ParseInt(q, 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

var (
	// ErrNoClient is returned when a bill has no client.
	ErrNoClient = fmt.Errorf("%w: please select a client", httpx.ErrValidation)
	// ErrNoItems is returned when a bill has no lines.
	ErrNoItems = fmt.Errorf("%w: please add at least one item", httpx.ErrValidation)
	// ErrNoItemSelected is returned when adding a line without an item.
	ErrNoItemSelected = fmt.Errorf("%w: please select an item", httpx.ErrValidation)
	// ErrInvalidQuantity is returned for zero or negative quantities.
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be a positive whole number", httpx.ErrValidation)
	// ErrInvalidDiscount is returned for negative or over-precise discounts.
	ErrInvalidDiscount = fmt.Errorf("%w: discount must be non-negative with at most 2 decimals", httpx.ErrValidation)
	// ErrInvalidCharge is returned for malformed transport or advance amounts.
	ErrInvalidCharge = fmt.Errorf("%w: charges must be non-negative with at most 2 decimals", httpx.ErrValidation)
	// ErrDiscountExceedsTotal keeps the payable amount from going negative.
	ErrDiscountExceedsTotal = fmt.Errorf("%w: discount exceeds bill total", httpx.ErrValidation)
	// ErrMixedItems is returned when products and services meet in one draft.
	ErrMixedItems = fmt.Errorf("%w: products and services are billed separately", httpx.ErrValidation)
	// ErrIdempotencyKeyRequired is returned when a submission carries no key.
	ErrIdempotencyKeyRequired = fmt.Errorf("%w: idempotency key required", httpx.ErrValidation)
	// ErrDuplicateSubmission is returned when the same submission arrives twice.
	ErrDuplicateSubmission = fmt.Errorf("%w: bill already submitted", httpx.ErrConflict)
	// ErrBillHasPayments blocks deleting a bill that payments point at.
	ErrBillHasPayments = fmt.Errorf("%w: bill has payments", httpx.ErrConflict)
	// ErrBillNotFound is returned when no bill row matches.
	ErrBillNotFound = fmt.Errorf("%w: bill", httpx.ErrNotFound)
	// ErrServiceBillNotFound is returned when no service bill row matches.
	ErrServiceBillNotFound = fmt.Errorf("%w: service bill", httpx.ErrNotFound)
	// ErrClientNotFound is returned when the bill client does not exist.
	ErrClientNotFound = fmt.Errorf("%w: client", httpx.ErrNotFound)
	// ErrServiceNotFound is returned when a service line points nowhere.
	ErrServiceNotFound = fmt.Errorf("%w: service", httpx.ErrNotFound)
)
