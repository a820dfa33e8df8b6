package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/br7tech/billdesk/internal/inventory"
	"github.com/br7tech/billdesk/internal/shared"
)

const (
	idempotencyModuleBill        = "billing"
	idempotencyModuleServiceBill = "service_bill"
)

// IdempotencyPort claims and releases submission keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Metrics receives billing counters.
type Metrics interface {
	BillSubmitted(kind string)
	StockRejected()
}

type noopMetrics struct{}

func (noopMetrics) BillSubmitted(string) {}
func (noopMetrics) StockRejected()       {}

// Service persists bills and reads them back.
type Service struct {
	repo        Repository
	adjuster    *inventory.Adjuster
	idempotency IdempotencyPort
	audit       AuditPort
	metrics     Metrics
	logger      *slog.Logger
}

// NewService wires the billing service. idempotency, audit and metrics may be nil.
func NewService(repo Repository, adjuster *inventory.Adjuster, idempotency IdempotencyPort, audit AuditPort, metrics Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Service{
		repo:        repo,
		adjuster:    adjuster,
		idempotency: idempotency,
		audit:       audit,
		metrics:     metrics,
		logger:      logger,
	}
}

func validateBill(in SubmitBillInput) error {
	if in.ClientID <= 0 {
		return ErrNoClient
	}
	if len(in.Items) == 0 {
		return ErrNoItems
	}
	for _, item := range in.Items {
		if item.ProductID <= 0 {
			return ErrNoItemSelected
		}
		if item.Quantity <= 0 {
			return ErrInvalidQuantity
		}
	}
	if !shared.ValidAmount(in.Discount) {
		return ErrInvalidDiscount
	}
	return nil
}

func validateServiceBill(in SubmitServiceBillInput) error {
	if in.ClientID <= 0 {
		return ErrNoClient
	}
	if len(in.Items) == 0 {
		return ErrNoItems
	}
	for _, item := range in.Items {
		if item.ServiceID <= 0 {
			return ErrNoItemSelected
		}
		if item.Quantity <= 0 {
			return ErrInvalidQuantity
		}
	}
	if !shared.ValidAmount(in.Discount) {
		return ErrInvalidDiscount
	}
	if !shared.ValidAmount(in.Transport) || !shared.ValidAmount(in.Advance) {
		return ErrInvalidCharge
	}
	return nil
}

func (s *Service) claim(ctx context.Context, key, module string) error {
	if s.idempotency == nil {
		return nil
	}
	if key == "" {
		return ErrIdempotencyKeyRequired
	}
	if err := s.idempotency.CheckAndInsert(ctx, key, module); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return ErrDuplicateSubmission
		}
		return err
	}
	return nil
}

func (s *Service) release(ctx context.Context, key, module string) {
	if s.idempotency == nil || key == "" {
		return
	}
	if err := s.idempotency.Delete(ctx, key, module); err != nil {
		s.logger.Warn("release idempotency key", slog.String("module", module), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

// SubmitBill persists a product bill. Stock for every line is taken from
// locked rows, and the header, lines and stock changes commit together or
// not at all.
func (s *Service) SubmitBill(ctx context.Context, in SubmitBillInput) (Bill, error) {
	if err := validateBill(in); err != nil {
		return Bill{}, err
	}
	if err := s.claim(ctx, in.IdempotencyKey, idempotencyModuleBill); err != nil {
		return Bill{}, err
	}

	var billID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.ClientExists(ctx, in.ClientID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrClientNotFound
		}

		items := make([]BillItem, 0, len(in.Items))
		adjustments := make([]inventory.Adjustment, 0, len(in.Items))
		total := decimal.Zero
		for _, line := range in.Items {
			adj, err := s.adjuster.Decrement(ctx, tx, line.ProductID, line.Quantity, inventory.Ref{Module: inventory.RefBill})
			if err != nil {
				return err
			}
			price := shared.RoundCents(adj.Before.Price)
			items = append(items, BillItem{
				ProductID:   line.ProductID,
				ProductName: adj.Before.Name,
				Quantity:    line.Quantity,
				PriceAtTime: price,
			})
			adjustments = append(adjustments, adj)
			total = total.Add(shared.Extension(line.Quantity, price))
		}
		if in.Discount.GreaterThan(total) {
			return ErrDiscountExceedsTotal
		}

		billID, err = tx.InsertBill(ctx, BillHeader{ClientID: in.ClientID, Total: total, Discount: in.Discount})
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := tx.InsertBillItem(ctx, billID, item); err != nil {
				return err
			}
		}
		return s.adjuster.Link(ctx, tx, billID, adjustments)
	})
	if err != nil {
		s.release(ctx, in.IdempotencyKey, idempotencyModuleBill)
		if inventory.IsInsufficientStock(err) {
			s.metrics.StockRejected()
		}
		return Bill{}, err
	}

	s.metrics.BillSubmitted(string(KindProduct))
	s.record(ctx, in.ActorID, "bill.submit", "bill", billID, map[string]any{"client_id": in.ClientID, "lines": len(in.Items)})
	s.logger.Info("bill submitted", slog.Int64("bill_id", billID), slog.Int64("client_id", in.ClientID))

	bill, err := s.repo.GetBill(ctx, billID)
	if err != nil {
		return Bill{}, fmt.Errorf("billing: read back bill %d: %w", billID, err)
	}
	return bill, nil
}

// GetBill returns a bill with its client and items.
func (s *Service) GetBill(ctx context.Context, id int64) (Bill, error) {
	if id <= 0 {
		return Bill{}, ErrBillNotFound
	}
	return s.repo.GetBill(ctx, id)
}

func normaliseFilter(filter ListFilter) ListFilter {
	filter.Query = strings.TrimSpace(filter.Query)
	filter.Limit = shared.ClampLimit(filter.Limit, 20, 100)
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return filter
}

// ListBills returns bills newest first, narrowed by client, day range and a
// client name or bill number search.
func (s *Service) ListBills(ctx context.Context, filter ListFilter) ([]Bill, shared.Pagination, error) {
	filter = normaliseFilter(filter)
	bills, total, err := s.repo.ListBills(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return bills, shared.NewPagination(filter.Limit, filter.Offset, total), nil
}

// DeleteBill removes a bill and puts its stock back.
func (s *Service) DeleteBill(ctx context.Context, id, actorID int64) error {
	if id <= 0 {
		return ErrBillNotFound
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockBill(ctx, id); err != nil {
			return err
		}
		paid, err := tx.BillHasPayments(ctx, id)
		if err != nil {
			return err
		}
		if paid {
			return ErrBillHasPayments
		}
		items, err := tx.BillItems(ctx, id)
		if err != nil {
			return err
		}
		ref := inventory.Ref{Module: inventory.RefBillVoid, ID: id}
		for _, item := range items {
			if _, err := s.adjuster.Restore(ctx, tx, item.ProductID, item.Quantity, ref); err != nil {
				return err
			}
		}
		return tx.DeleteBill(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "bill.delete", "bill", id, nil)
	return nil
}

// Preview prices a draft against current stock without writing anything.
func (s *Service) Preview(ctx context.Context, in SubmitBillInput) (*Composer, error) {
	c := NewComposer(KindProduct)
	if in.ClientID > 0 {
		client, err := s.repo.GetClient(ctx, in.ClientID)
		if err != nil {
			return nil, err
		}
		if err := c.SetClient(client); err != nil {
			return nil, err
		}
	}
	for _, line := range in.Items {
		item, err := s.repo.ProductSnapshot(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		if err := c.AddItem(item, line.Quantity); err != nil {
			return nil, err
		}
	}
	if !in.Discount.IsZero() {
		if err := c.SetDiscount(in.Discount.String()); err != nil {
			return nil, err
		}
	}
	if c.Discount().GreaterThan(c.Total()) {
		return nil, ErrDiscountExceedsTotal
	}
	return c, nil
}

// SubmitServiceBill persists a service bill. Services carry no stock.
func (s *Service) SubmitServiceBill(ctx context.Context, in SubmitServiceBillInput) (ServiceBill, error) {
	if err := validateServiceBill(in); err != nil {
		return ServiceBill{}, err
	}
	if err := s.claim(ctx, in.IdempotencyKey, idempotencyModuleServiceBill); err != nil {
		return ServiceBill{}, err
	}

	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.ClientExists(ctx, in.ClientID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrClientNotFound
		}
		items, total, err := priceServiceItems(ctx, tx, in.Items, nil)
		if err != nil {
			return err
		}
		if in.Discount.GreaterThan(total.Add(in.Transport)) {
			return ErrDiscountExceedsTotal
		}
		id, err = tx.InsertServiceBill(ctx, ServiceBillHeader{
			ClientID:  in.ClientID,
			Total:     total,
			Discount:  in.Discount,
			Transport: in.Transport,
			Advance:   in.Advance,
		})
		if err != nil {
			return err
		}
		return tx.ReplaceServiceItems(ctx, id, items)
	})
	if err != nil {
		s.release(ctx, in.IdempotencyKey, idempotencyModuleServiceBill)
		return ServiceBill{}, err
	}

	s.metrics.BillSubmitted(string(KindService))
	s.record(ctx, in.ActorID, "service_bill.submit", "service_bill", id, map[string]any{"client_id": in.ClientID, "lines": len(in.Items)})
	s.logger.Info("service bill submitted", slog.Int64("service_bill_id", id), slog.Int64("client_id", in.ClientID))
	return s.repo.GetServiceBill(ctx, id)
}

// UpdateServiceBill replaces the lines and charges of a service bill. Lines
// for services already on the bill keep the price they were billed at.
func (s *Service) UpdateServiceBill(ctx context.Context, id int64, in SubmitServiceBillInput) (ServiceBill, error) {
	if id <= 0 {
		return ServiceBill{}, ErrServiceBillNotFound
	}
	if err := validateServiceBill(in); err != nil {
		return ServiceBill{}, err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockServiceBill(ctx, id); err != nil {
			return err
		}
		exists, err := tx.ClientExists(ctx, in.ClientID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrClientNotFound
		}
		current, err := tx.ServiceItems(ctx, id)
		if err != nil {
			return err
		}
		billed := make(map[int64]decimal.Decimal, len(current))
		for _, item := range current {
			billed[item.ServiceID] = item.PriceAtTime
		}
		items, total, err := priceServiceItems(ctx, tx, in.Items, billed)
		if err != nil {
			return err
		}
		if in.Discount.GreaterThan(total.Add(in.Transport)) {
			return ErrDiscountExceedsTotal
		}
		if err := tx.UpdateServiceBill(ctx, id, ServiceBillHeader{
			ClientID:  in.ClientID,
			Total:     total,
			Discount:  in.Discount,
			Transport: in.Transport,
			Advance:   in.Advance,
		}); err != nil {
			return err
		}
		return tx.ReplaceServiceItems(ctx, id, items)
	})
	if err != nil {
		return ServiceBill{}, err
	}
	s.record(ctx, in.ActorID, "service_bill.update", "service_bill", id, map[string]any{"lines": len(in.Items)})
	return s.repo.GetServiceBill(ctx, id)
}

func priceServiceItems(ctx context.Context, tx TxRepository, lines []ServiceItemInput, billed map[int64]decimal.Decimal) ([]ServiceBillItem, decimal.Decimal, error) {
	items := make([]ServiceBillItem, 0, len(lines))
	total := decimal.Zero
	for _, line := range lines {
		price, ok := billed[line.ServiceID]
		name := ""
		if !ok {
			svc, err := tx.GetService(ctx, line.ServiceID)
			if err != nil {
				return nil, decimal.Zero, err
			}
			price = shared.RoundCents(svc.Price)
			name = svc.Name
		}
		items = append(items, ServiceBillItem{
			ServiceID:   line.ServiceID,
			ServiceName: name,
			Quantity:    line.Quantity,
			PriceAtTime: price,
		})
		total = total.Add(shared.Extension(line.Quantity, price))
	}
	return items, total, nil
}

// GetServiceBill returns a service bill with its client and items.
func (s *Service) GetServiceBill(ctx context.Context, id int64) (ServiceBill, error) {
	if id <= 0 {
		return ServiceBill{}, ErrServiceBillNotFound
	}
	return s.repo.GetServiceBill(ctx, id)
}

// ListServiceBills returns service bills newest first, filtered like ListBills.
func (s *Service) ListServiceBills(ctx context.Context, filter ListFilter) ([]ServiceBill, shared.Pagination, error) {
	filter = normaliseFilter(filter)
	bills, total, err := s.repo.ListServiceBills(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return bills, shared.NewPagination(filter.Limit, filter.Offset, total), nil
}

// DeleteServiceBill removes a service bill and its lines.
func (s *Service) DeleteServiceBill(ctx context.Context, id, actorID int64) error {
	if id <= 0 {
		return ErrServiceBillNotFound
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteServiceBill(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "service_bill.delete", "service_bill", id, nil)
	return nil
}
