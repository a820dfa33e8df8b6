package clients

import (
	"fmt"
	"time"

	"github.com/br7tech/billdesk/internal/platform/httpx"
)

// Client is a customer of the shop.
type Client struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

// Input carries the editable client fields.
type Input struct {
	Name    string `json:"name" validate:"required,max=200"`
	Phone   string `json:"phone" validate:"max=50"`
	Address string `json:"address" validate:"max=500"`
}

var (
	// ErrClientNotFound is returned when no client row matches.
	ErrClientNotFound = fmt.Errorf("%w: client", httpx.ErrNotFound)
	// ErrClientInUse is returned when deleting a client with bills or payments.
	ErrClientInUse = fmt.Errorf("%w: client has bills or payments", httpx.ErrConflict)
	// ErrInvalidName is returned for blank names.
	ErrInvalidName = fmt.Errorf("%w: client name is required", httpx.ErrValidation)
)
