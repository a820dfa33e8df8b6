package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/br7tech/billdesk/internal/shared"
)

// RepositoryPort abstracts repository usage for the adjuster.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	StockCard(ctx context.Context, productID int64, limit int) ([]Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Adjuster is the only writer of product stock.
type Adjuster struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
}

// NewAdjuster builds an Adjuster. audit may be nil.
func NewAdjuster(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Adjuster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adjuster{repo: repo, audit: audit, logger: logger}
}

// Adjustment is the result of one stock change inside a transaction.
type Adjustment struct {
	Before   ProductStock
	Movement Movement
}

// Decrement takes qty units of a product inside the caller's transaction. The
// returned Before holds the locked row as it was, including its price.
func (a *Adjuster) Decrement(ctx context.Context, tx TxRepository, productID int64, qty int, ref Ref) (Adjustment, error) {
	if qty <= 0 {
		return Adjustment{}, ErrInvalidQuantity
	}
	product, err := tx.LockProduct(ctx, productID)
	if err != nil {
		return Adjustment{}, err
	}
	newStock := product.Stock - qty
	if newStock < 0 {
		return Adjustment{}, &InsufficientStockError{
			ProductID: product.ID,
			Name:      product.Name,
			Available: product.Stock,
			Requested: qty,
		}
	}
	movement, err := a.apply(ctx, tx, product, newStock, ref)
	if err != nil {
		return Adjustment{}, err
	}
	return Adjustment{Before: product, Movement: movement}, nil
}

// Restore puts qty units back, used when a bill is voided.
func (a *Adjuster) Restore(ctx context.Context, tx TxRepository, productID int64, qty int, ref Ref) (Adjustment, error) {
	if qty <= 0 {
		return Adjustment{}, ErrInvalidQuantity
	}
	product, err := tx.LockProduct(ctx, productID)
	if err != nil {
		return Adjustment{}, err
	}
	movement, err := a.apply(ctx, tx, product, product.Stock+qty, ref)
	if err != nil {
		return Adjustment{}, err
	}
	return Adjustment{Before: product, Movement: movement}, nil
}

// Link stamps refID on movements booked before their document had an id.
func (a *Adjuster) Link(ctx context.Context, tx TxRepository, refID int64, adjustments []Adjustment) error {
	ids := make([]int64, 0, len(adjustments))
	for _, adj := range adjustments {
		if adj.Movement.ID != 0 {
			ids = append(ids, adj.Movement.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return tx.LinkMovements(ctx, ids, refID)
}

// Set overwrites the stock of a product in its own transaction. The
// difference is recorded as a movement so the stock card stays complete.
func (a *Adjuster) Set(ctx context.Context, productID int64, stock int, ref Ref) (Movement, error) {
	var movement Movement
	err := a.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movement, err = a.SetTx(ctx, tx, productID, stock, ref)
		return err
	})
	if err != nil {
		return Movement{}, fmt.Errorf("inventory: set stock: %w", err)
	}
	a.auditSet(ctx, movement, ref)
	return movement, nil
}

// SetTx overwrites the stock of a product inside the caller's transaction.
// An unchanged stock books no movement and returns one with a zero ID.
func (a *Adjuster) SetTx(ctx context.Context, tx TxRepository, productID int64, stock int, ref Ref) (Movement, error) {
	if stock < 0 {
		return Movement{}, ErrNegativeStock
	}
	if ref.Module == "" {
		ref.Module = RefManual
	}
	product, err := tx.LockProduct(ctx, productID)
	if err != nil {
		return Movement{}, err
	}
	if product.Stock == stock {
		return Movement{ProductID: productID, RefModule: ref.Module, BalanceAfter: stock}, nil
	}
	return a.apply(ctx, tx, product, stock, ref)
}

func (a *Adjuster) auditSet(ctx context.Context, movement Movement, ref Ref) {
	if movement.ID == 0 || a.audit == nil {
		return
	}
	if err := a.audit.Record(ctx, shared.AuditLog{
		Action:   "stock.set",
		Entity:   "product",
		EntityID: strconv.FormatInt(movement.ProductID, 10),
		Meta:     map[string]any{"qty_change": movement.QtyChange, "balance_after": movement.BalanceAfter, "note": ref.Note},
	}); err != nil {
		a.logger.Warn("audit stock set", slog.Any("error", err))
	}
}

// StockCard lists the movements of a product, newest first.
func (a *Adjuster) StockCard(ctx context.Context, productID int64, limit int) ([]Movement, error) {
	if productID <= 0 {
		return nil, ErrProductNotFound
	}
	return a.repo.StockCard(ctx, productID, shared.ClampLimit(limit, 50, 500))
}

func (a *Adjuster) apply(ctx context.Context, tx TxRepository, product ProductStock, newStock int, ref Ref) (Movement, error) {
	if err := tx.UpdateStock(ctx, product.ID, newStock); err != nil {
		return Movement{}, err
	}
	return tx.InsertMovement(ctx, Movement{
		ProductID:    product.ID,
		RefModule:    ref.Module,
		RefID:        ref.ID,
		QtyChange:    newStock - product.Stock,
		BalanceAfter: newStock,
		Note:         ref.Note,
	})
}
