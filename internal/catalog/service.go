package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/br7tech/billdesk/internal/inventory"
	"github.com/br7tech/billdesk/internal/shared"
)

// StockSetter records stock edits, either in its own transaction or in the
// caller's.
type StockSetter interface {
	Set(ctx context.Context, productID int64, stock int, ref inventory.Ref) (inventory.Movement, error)
	SetTx(ctx context.Context, tx inventory.TxRepository, productID int64, stock int, ref inventory.Ref) (inventory.Movement, error)
}

// Catalog coordinates product and service maintenance.
type Catalog struct {
	repo   Repository
	stock  StockSetter
	logger *slog.Logger
}

// NewCatalog builds the catalog service.
func NewCatalog(repo Repository, stock StockSetter, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{repo: repo, stock: stock, logger: logger}
}

func normaliseFilter(filter ListFilter) ListFilter {
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Limit = shared.ClampLimit(filter.Limit, 20, 200)
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return filter
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}
	return name, nil
}

func cleanPrice(price decimal.Decimal) (decimal.Decimal, error) {
	if !shared.ValidAmount(price) {
		return decimal.Zero, ErrInvalidPrice
	}
	return shared.RoundCents(price), nil
}

// ListProducts returns a page of products ordered by name.
func (c *Catalog) ListProducts(ctx context.Context, filter ListFilter) ([]Product, shared.Pagination, error) {
	filter = normaliseFilter(filter)
	products, total, err := c.repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("catalog: list products: %w", err)
	}
	return products, shared.NewPagination(filter.Limit, filter.Offset, total), nil
}

// GetProduct loads a single product.
func (c *Catalog) GetProduct(ctx context.Context, id int64) (Product, error) {
	return c.repo.GetProduct(ctx, id)
}

// CreateProduct inserts a product and books its opening stock in one
// transaction.
func (c *Catalog) CreateProduct(ctx context.Context, input ProductInput) (Product, error) {
	name, err := cleanName(input.Name)
	if err != nil {
		return Product{}, err
	}
	price, err := cleanPrice(input.Price)
	if err != nil {
		return Product{}, err
	}
	if input.Stock < 0 {
		return Product{}, inventory.ErrNegativeStock
	}
	var product Product
	err = c.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err = tx.InsertProduct(ctx, name, price)
		if err != nil {
			return err
		}
		if input.Stock == 0 {
			return nil
		}
		ref := inventory.Ref{Module: inventory.RefOpening, Note: "opening stock"}
		if _, err := c.stock.SetTx(ctx, tx, product.ID, input.Stock, ref); err != nil {
			return err
		}
		product.Stock = input.Stock
		return nil
	})
	if err != nil {
		return Product{}, fmt.Errorf("catalog: create product: %w", err)
	}
	return product, nil
}

// UpdateProduct applies a partial update. A stock change is booked as a
// manual movement rather than written directly.
func (c *Catalog) UpdateProduct(ctx context.Context, id int64, patch ProductPatch) (Product, error) {
	current, err := c.repo.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	name, price := current.Name, current.Price
	if patch.Name != nil {
		if name, err = cleanName(*patch.Name); err != nil {
			return Product{}, err
		}
	}
	if patch.Price != nil {
		if price, err = cleanPrice(*patch.Price); err != nil {
			return Product{}, err
		}
	}
	if name != current.Name || !price.Equal(current.Price) {
		if err := c.repo.UpdateProduct(ctx, id, name, price); err != nil {
			return Product{}, err
		}
	}
	if patch.Stock != nil && *patch.Stock != current.Stock {
		note := patch.Note
		if note == "" {
			note = "manual edit"
		}
		if _, err := c.stock.Set(ctx, id, *patch.Stock, inventory.Ref{Module: inventory.RefManual, Note: note}); err != nil {
			return Product{}, err
		}
	}
	return c.repo.GetProduct(ctx, id)
}

// DeleteProduct removes a product that no bill references.
func (c *Catalog) DeleteProduct(ctx context.Context, id int64) error {
	return c.repo.DeleteProduct(ctx, id)
}

// ListServices returns a page of services ordered by name.
func (c *Catalog) ListServices(ctx context.Context, filter ListFilter) ([]Service, shared.Pagination, error) {
	filter = normaliseFilter(filter)
	services, total, err := c.repo.ListServices(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("catalog: list services: %w", err)
	}
	return services, shared.NewPagination(filter.Limit, filter.Offset, total), nil
}

// GetService loads a single service.
func (c *Catalog) GetService(ctx context.Context, id int64) (Service, error) {
	return c.repo.GetService(ctx, id)
}

// CreateService inserts a service.
func (c *Catalog) CreateService(ctx context.Context, input ServiceInput) (Service, error) {
	input, err := cleanServiceInput(input)
	if err != nil {
		return Service{}, err
	}
	return c.repo.CreateService(ctx, input)
}

// UpdateService replaces name and price of a service.
func (c *Catalog) UpdateService(ctx context.Context, id int64, input ServiceInput) (Service, error) {
	input, err := cleanServiceInput(input)
	if err != nil {
		return Service{}, err
	}
	if err := c.repo.UpdateService(ctx, id, input); err != nil {
		return Service{}, err
	}
	return c.repo.GetService(ctx, id)
}

// DeleteService removes a service that no service bill references.
func (c *Catalog) DeleteService(ctx context.Context, id int64) error {
	return c.repo.DeleteService(ctx, id)
}

func cleanServiceInput(input ServiceInput) (ServiceInput, error) {
	name, err := cleanName(input.Name)
	if err != nil {
		return ServiceInput{}, err
	}
	price, err := cleanPrice(input.Price)
	if err != nil {
		return ServiceInput{}, err
	}
	return ServiceInput{Name: name, Price: price}, nil
}
