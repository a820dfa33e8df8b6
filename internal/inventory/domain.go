package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/br7tech/billdesk/internal/platform/httpx"
)

// RefModule names the flow that produced a stock movement.
type RefModule string

const (
	RefBill     RefModule = "bill"
	RefBillVoid RefModule = "bill_void"
	RefManual   RefModule = "manual"
	RefOpening  RefModule = "opening"
)

// Ref ties a movement back to the document that caused it.
type Ref struct {
	Module RefModule
	ID     int64
	Note   string
}

// ProductStock is the locked view of a product row used while adjusting stock.
type ProductStock struct {
	ID    int64
	Name  string
	Price decimal.Decimal
	Stock int
}

// Movement is one stock ledger line.
type Movement struct {
	ID           int64     `json:"id"`
	ProductID    int64     `json:"product_id"`
	RefModule    RefModule `json:"ref_module"`
	RefID        int64     `json:"ref_id,omitempty"`
	QtyChange    int       `json:"qty_change"`
	BalanceAfter int       `json:"balance_after"`
	Note         string    `json:"note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

var (
	// ErrInsufficientStock marks a decrement that would drive stock below zero.
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", httpx.ErrConflict)
	// ErrInvalidQuantity is returned for zero or negative quantities.
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be a positive whole number", httpx.ErrValidation)
	// ErrNegativeStock is returned when a manual edit asks for stock below zero.
	ErrNegativeStock = fmt.Errorf("%w: stock cannot be negative", httpx.ErrValidation)
	// ErrProductNotFound is returned when the product row does not exist.
	ErrProductNotFound = fmt.Errorf("%w: product", httpx.ErrNotFound)
)

// InsufficientStockError carries the numbers behind an ErrInsufficientStock.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: %d available, %d requested", e.Name, e.Available, e.Requested)
}

// Unwrap lets errors.Is match ErrInsufficientStock.
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// IsInsufficientStock reports whether err was caused by a stock shortfall.
func IsInsufficientStock(err error) bool {
	return errors.Is(err, ErrInsufficientStock)
}
