package catalog

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/br7tech/billdesk/internal/platform/httpx"
)

// Product is a stock tracked item sold on bills.
type Product struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int       `json:"stock"`
	CreatedAt time.Time `json:"created_at"`
}

// Service is labour or repair work sold on service bills. It has no stock.
type Service struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// ProductInput carries the fields for a new product.
type ProductInput struct {
	Name  string          `json:"name" validate:"required,max=200"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock" validate:"gte=0"`
}

// ProductPatch carries a partial product update. Nil fields are untouched.
type ProductPatch struct {
	Name  *string          `json:"name" validate:"omitempty,max=200"`
	Price *decimal.Decimal `json:"price"`
	Stock *int             `json:"stock" validate:"omitempty,gte=0"`
	Note  string           `json:"note" validate:"max=500"`
}

// ServiceInput carries the fields for a new or edited service.
type ServiceInput struct {
	Name  string          `json:"name" validate:"required,max=200"`
	Price decimal.Decimal `json:"price"`
}

// ListFilter narrows catalog listings.
type ListFilter struct {
	Search string
	Limit  int
	Offset int
}

var (
	// ErrProductNotFound is returned when no product row matches.
	ErrProductNotFound = fmt.Errorf("%w: product", httpx.ErrNotFound)
	// ErrServiceNotFound is returned when no service row matches.
	ErrServiceNotFound = fmt.Errorf("%w: service", httpx.ErrNotFound)
	// ErrInUse is returned when deleting an item that bills still reference.
	ErrInUse = fmt.Errorf("%w: item is referenced by bills", httpx.ErrConflict)
	// ErrInvalidName is returned for blank names.
	ErrInvalidName = fmt.Errorf("%w: name is required", httpx.ErrValidation)
	// ErrInvalidPrice is returned for negative or over-precise prices.
	ErrInvalidPrice = fmt.Errorf("%w: price must be non-negative with at most 2 decimals", httpx.ErrValidation)
)
