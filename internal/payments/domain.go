// Package payments records what clients paid against their bills, keeping an
// append-only history of every change.
package payments

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/br7tech/billdesk/internal/platform/httpx"
	"github.com/br7tech/billdesk/internal/shared"
)

// Status is derived from paid and total, never stored.
type Status string

const (
	StatusUnpaid        Status = "Unpaid"
	StatusPartiallyPaid Status = "Partially Paid"
	StatusPaid          Status = "Paid"
)

// Action labels a history row.
type Action string

const (
	ActionInsert Action = "INSERT"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// Payment is money received from a client. A nil BillID marks an advance.
type Payment struct {
	ID         int64           `json:"id"`
	ClientID   int64           `json:"client_id"`
	ClientName string          `json:"client_name,omitempty"`
	BillID     *int64          `json:"bill_id"`
	Total      decimal.Decimal `json:"total"`
	Paid       decimal.Decimal `json:"paid"`
	Comment    string          `json:"comment"`
	CreatedAt  time.Time       `json:"created_at"`
	Due        decimal.Decimal `json:"due"`
	Status     Status          `json:"status"`
}

// Derive fills Due and Status from Total and Paid.
func (p Payment) Derive() Payment {
	p.Due = DueOf(p.Total, p.Paid)
	p.Status = StatusOf(p.Total, p.Paid)
	return p
}

// IsAdvance reports whether the payment is not tied to a bill.
func (p Payment) IsAdvance() bool {
	return p.BillID == nil
}

// DueOf is total minus paid, floored at zero.
func DueOf(total, paid decimal.Decimal) decimal.Decimal {
	due := shared.RoundCents(total.Sub(paid))
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}

// StatusOf classifies a payment.
func StatusOf(total, paid decimal.Decimal) Status {
	switch {
	case !paid.IsPositive():
		return StatusUnpaid
	case paid.LessThan(total):
		return StatusPartiallyPaid
	default:
		return StatusPaid
	}
}

// HistoryEntry is one append-only snapshot of a payment.
type HistoryEntry struct {
	ID        int64           `json:"id"`
	PaymentID int64           `json:"payment_id"`
	BillID    *int64          `json:"bill_id"`
	ClientID  int64           `json:"client_id"`
	Total     decimal.Decimal `json:"total"`
	Paid      decimal.Decimal `json:"paid"`
	Comment   string          `json:"comment"`
	Action    Action          `json:"action"`
	CreatedAt time.Time       `json:"created_at"`
}

// CreateInput records a new payment.
type CreateInput struct {
	ClientID int64           `json:"client_id" validate:"required,gt=0"`
	BillID   *int64          `json:"bill_id" validate:"omitempty,gt=0"`
	Total    decimal.Decimal `json:"total"`
	Paid     decimal.Decimal `json:"paid"`
	Comment  string          `json:"comment" validate:"max=500"`
	ActorID  int64           `json:"-"`
}

// UpdateInput changes the fields that are set.
type UpdateInput struct {
	BillID  *int64           `json:"bill_id" validate:"omitempty,gt=0"`
	Total   *decimal.Decimal `json:"total"`
	Paid    *decimal.Decimal `json:"paid"`
	Comment *string          `json:"comment" validate:"omitempty,max=500"`
	ActorID int64            `json:"-"`
}

// ListFilter narrows payment listings.
type ListFilter struct {
	ClientID    int64
	AdvanceOnly bool
	Limit       int
	Offset      int
}

// LedgerFilter narrows the bills shown in a ledger. Invoice matches part of
// the bill number, with or without the printed INV- prefix.
type LedgerFilter struct {
	Dates   shared.DateRange
	Invoice string
}

func (f LedgerFilter) matches(b LedgerBill) bool {
	if !f.Dates.Contains(b.CreatedAt) {
		return false
	}
	q := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(f.Invoice)), "INV-")
	q = strings.TrimLeft(q, "0")
	if q == "" {
		return true
	}
	return strings.Contains(strconv.FormatInt(b.BillID, 10), q)
}

// LedgerBill is a bill of the client with the payment recorded against it.
type LedgerBill struct {
	BillID    int64           `json:"bill_id"`
	CreatedAt time.Time       `json:"created_at"`
	Total     decimal.Decimal `json:"total"`
	Discount  decimal.Decimal `json:"discount"`
	Payable   decimal.Decimal `json:"payable"`
	Payment   *Payment        `json:"payment,omitempty"`
}

// Ledger is everything a client owes and paid. Billed, Paid and Balance
// always cover the whole account, whatever filter narrowed Bills.
type Ledger struct {
	ClientID int64           `json:"client_id"`
	Bills    []LedgerBill    `json:"bills"`
	Advances []Payment       `json:"advances"`
	Billed   decimal.Decimal `json:"billed"`
	Paid     decimal.Decimal `json:"paid"`
	Balance  decimal.Decimal `json:"balance"`
}

var (
	// ErrPaymentNotFound is returned when no payment row matches.
	ErrPaymentNotFound = fmt.Errorf("%w: payment", httpx.ErrNotFound)
	// ErrClientNotFound is returned when the payment client does not exist.
	ErrClientNotFound = fmt.Errorf("%w: client", httpx.ErrNotFound)
	// ErrBillNotFound is returned when the referenced bill does not exist.
	ErrBillNotFound = fmt.Errorf("%w: bill", httpx.ErrNotFound)
	// ErrBillOtherClient is returned when a bill belongs to someone else.
	ErrBillOtherClient = fmt.Errorf("%w: bill belongs to another client", httpx.ErrValidation)
	// ErrInvalidAmount is returned for negative or over-precise amounts.
	ErrInvalidAmount = fmt.Errorf("%w: %s", httpx.ErrValidation, shared.ErrInvalidAmount)
	// ErrNoClient is returned when a payment has no client.
	ErrNoClient = fmt.Errorf("%w: please select a client", httpx.ErrValidation)
)
