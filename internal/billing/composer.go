package billing

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/br7tech/billdesk/internal/inventory"
	"github.com/br7tech/billdesk/internal/shared"
)

// Sellable is a product or service as the operator saw it when picking it.
// Stock is a snapshot and only consulted for products.
type Sellable struct {
	ID    int64
	Kind  ItemKind
	Name  string
	Price decimal.Decimal
	Stock int
}

// DraftItem is one line of a draft bill.
type DraftItem struct {
	Item        Sellable        `json:"-"`
	ItemID      int64           `json:"item_id"`
	Name        string          `json:"name"`
	Quantity    int             `json:"quantity"`
	PriceAtTime decimal.Decimal `json:"price_at_time"`
}

// Extension is quantity times the captured price.
func (d DraftItem) Extension() decimal.Decimal {
	return shared.Extension(d.Quantity, d.PriceAtTime)
}

// Composer collects a client and line items into a bill draft. It checks
// quantities against the stock snapshot it was given; the persister checks
// again against locked rows.
type Composer struct {
	kind     ItemKind
	client   ClientRef
	items    []DraftItem
	discount decimal.Decimal
	key      string
}

// NewComposer starts an empty draft for products or services. Each draft gets
// its own idempotency key so resubmitting the same draft is detected.
func NewComposer(kind ItemKind) *Composer {
	return &Composer{kind: kind, key: uuid.NewString()}
}

// SetClient selects the billed client.
func (c *Composer) SetClient(client ClientRef) error {
	if client.ID <= 0 {
		return ErrNoClient
	}
	c.client = client
	return nil
}

// Client returns the selected client.
func (c *Composer) Client() ClientRef {
	return c.client
}

// AddItem appends a line. A rejected add leaves the draft unchanged.
func (c *Composer) AddItem(item Sellable, qty int) error {
	if item.ID <= 0 {
		return ErrNoItemSelected
	}
	if item.Kind != c.kind {
		return ErrMixedItems
	}
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if c.kind == KindProduct {
		already := 0
		for _, existing := range c.items {
			if existing.ItemID == item.ID {
				already += existing.Quantity
			}
		}
		if already+qty > item.Stock {
			return &inventory.InsufficientStockError{
				ProductID: item.ID,
				Name:      item.Name,
				Available: item.Stock - already,
				Requested: qty,
			}
		}
	}
	c.items = append(c.items, DraftItem{
		Item:        item,
		ItemID:      item.ID,
		Name:        item.Name,
		Quantity:    qty,
		PriceAtTime: shared.RoundCents(item.Price),
	})
	return nil
}

// RemoveItem drops the line at index i.
func (c *Composer) RemoveItem(i int) error {
	if i < 0 || i >= len(c.items) {
		return errors.New("billing: line index out of range")
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	return nil
}

// SetDiscount parses free text such as "50" or "12.50".
func (c *Composer) SetDiscount(raw string) error {
	discount, err := shared.ParseAmount(raw)
	if err != nil {
		return ErrInvalidDiscount
	}
	c.discount = discount
	return nil
}

// Discount returns the parsed discount.
func (c *Composer) Discount() decimal.Decimal {
	return c.discount
}

// Items returns a copy of the lines in the order they were added.
func (c *Composer) Items() []DraftItem {
	out := make([]DraftItem, len(c.items))
	copy(out, c.items)
	return out
}

// Total is the sum of line extensions before discount.
func (c *Composer) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.items {
		total = total.Add(item.Extension())
	}
	return total
}

// Payable is Total minus the discount.
func (c *Composer) Payable() decimal.Decimal {
	return shared.RoundCents(c.Total().Sub(c.discount))
}

// IdempotencyKey identifies this draft across resubmissions.
func (c *Composer) IdempotencyKey() string {
	return c.key
}

func (c *Composer) check(ceiling decimal.Decimal) error {
	if c.client.ID <= 0 {
		return ErrNoClient
	}
	if len(c.items) == 0 {
		return ErrNoItems
	}
	if c.discount.GreaterThan(ceiling) {
		return ErrDiscountExceedsTotal
	}
	return nil
}

// Draft yields the submission for a product draft.
func (c *Composer) Draft() (SubmitBillInput, error) {
	if c.kind != KindProduct {
		return SubmitBillInput{}, ErrMixedItems
	}
	if err := c.check(c.Total()); err != nil {
		return SubmitBillInput{}, err
	}
	in := SubmitBillInput{ClientID: c.client.ID, Discount: c.discount, IdempotencyKey: c.key}
	for _, item := range c.items {
		in.Items = append(in.Items, BillItemInput{ProductID: item.ItemID, Quantity: item.Quantity})
	}
	return in, nil
}

// ServiceDraft yields the submission for a service draft.
func (c *Composer) ServiceDraft(transport, advance decimal.Decimal) (SubmitServiceBillInput, error) {
	if c.kind != KindService {
		return SubmitServiceBillInput{}, ErrMixedItems
	}
	if !shared.ValidAmount(transport) || !shared.ValidAmount(advance) {
		return SubmitServiceBillInput{}, ErrInvalidCharge
	}
	if err := c.check(c.Total().Add(transport)); err != nil {
		return SubmitServiceBillInput{}, err
	}
	in := SubmitServiceBillInput{
		ClientID:       c.client.ID,
		Discount:       c.discount,
		Transport:      transport,
		Advance:        advance,
		IdempotencyKey: c.key,
	}
	for _, item := range c.items {
		in.Items = append(in.Items, ServiceItemInput{ServiceID: item.ItemID, Quantity: item.Quantity})
	}
	return in, nil
}
