package payments

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/br7tech/billdesk/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages payments.
type Service struct {
	repo   Repository
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds the payment service. audit may be nil.
func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

func validAmounts(values ...decimal.Decimal) error {
	for _, v := range values {
		if !shared.ValidAmount(v) {
			return ErrInvalidAmount
		}
	}
	return nil
}

func checkBill(ctx context.Context, tx TxRepository, billID *int64, clientID int64) error {
	if billID == nil {
		return nil
	}
	owner, err := tx.BillClient(ctx, *billID)
	if err != nil {
		return err
	}
	if owner != clientID {
		return ErrBillOtherClient
	}
	return nil
}

// Create records a payment and its INSERT history row together.
func (s *Service) Create(ctx context.Context, in CreateInput) (Payment, error) {
	if in.ClientID <= 0 {
		return Payment{}, ErrNoClient
	}
	if err := validAmounts(in.Total, in.Paid); err != nil {
		return Payment{}, err
	}
	var created Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.ClientExists(ctx, in.ClientID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrClientNotFound
		}
		if err := checkBill(ctx, tx, in.BillID, in.ClientID); err != nil {
			return err
		}
		created, err = tx.Insert(ctx, Payment{
			ClientID: in.ClientID,
			BillID:   in.BillID,
			Total:    shared.RoundCents(in.Total),
			Paid:     shared.RoundCents(in.Paid),
			Comment:  in.Comment,
		})
		if err != nil {
			return err
		}
		return tx.InsertHistory(ctx, created, ActionInsert)
	})
	if err != nil {
		return Payment{}, err
	}
	s.record(ctx, in.ActorID, "payment.create", created.ID)
	return s.Get(ctx, created.ID)
}

// Update changes a payment, for example to link an advance to a bill.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (Payment, error) {
	if id <= 0 {
		return Payment{}, ErrPaymentNotFound
	}
	if in.Total != nil {
		if err := validAmounts(*in.Total); err != nil {
			return Payment{}, err
		}
	}
	if in.Paid != nil {
		if err := validAmounts(*in.Paid); err != nil {
			return Payment{}, err
		}
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if in.BillID != nil {
			if err := checkBill(ctx, tx, in.BillID, p.ClientID); err != nil {
				return err
			}
			p.BillID = in.BillID
		}
		if in.Total != nil {
			p.Total = shared.RoundCents(*in.Total)
		}
		if in.Paid != nil {
			p.Paid = shared.RoundCents(*in.Paid)
		}
		if in.Comment != nil {
			p.Comment = *in.Comment
		}
		if err := tx.Update(ctx, p); err != nil {
			return err
		}
		return tx.InsertHistory(ctx, p, ActionUpdate)
	})
	if err != nil {
		return Payment{}, err
	}
	s.record(ctx, in.ActorID, "payment.update", id)
	return s.Get(ctx, id)
}

// Delete removes a payment. Its history stays.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	if id <= 0 {
		return ErrPaymentNotFound
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.InsertHistory(ctx, p, ActionDelete); err != nil {
			return err
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "payment.delete", id)
	return nil
}

// Get returns one payment with due and status filled.
func (s *Service) Get(ctx context.Context, id int64) (Payment, error) {
	if id <= 0 {
		return Payment{}, ErrPaymentNotFound
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Payment{}, err
	}
	return p.Derive(), nil
}

// List returns payments newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Payment, shared.Pagination, error) {
	filter.Limit = shared.ClampLimit(filter.Limit, 50, 500)
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	for i := range items {
		items[i] = items[i].Derive()
	}
	return items, shared.NewPagination(filter.Limit, filter.Offset, total), nil
}

// ListByClient returns the payments of one client.
func (s *Service) ListByClient(ctx context.Context, clientID int64, limit, offset int) ([]Payment, shared.Pagination, error) {
	if clientID <= 0 {
		return nil, shared.Pagination{}, ErrNoClient
	}
	return s.List(ctx, ListFilter{ClientID: clientID, Limit: limit, Offset: offset})
}

// ListAdvance returns payments not yet tied to a bill.
func (s *Service) ListAdvance(ctx context.Context, limit, offset int) ([]Payment, shared.Pagination, error) {
	return s.List(ctx, ListFilter{AdvanceOnly: true, Limit: limit, Offset: offset})
}

// History returns the snapshots of one payment, oldest first.
func (s *Service) History(ctx context.Context, paymentID int64) ([]HistoryEntry, error) {
	if paymentID <= 0 {
		return nil, ErrPaymentNotFound
	}
	return s.repo.History(ctx, paymentID)
}

// ClientLedger joins the bills of a client with its payments. The filter
// only narrows the bills listed; totals cover every bill and payment.
func (s *Service) ClientLedger(ctx context.Context, clientID int64, filter LedgerFilter) (Ledger, error) {
	if clientID <= 0 {
		return Ledger{}, ErrNoClient
	}
	var (
		bills    []LedgerBill
		payments []Payment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bills, err = s.repo.ClientBills(gctx, clientID)
		return err
	})
	g.Go(func() error {
		var err error
		payments, err = s.repo.ClientPayments(gctx, clientID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Ledger{}, err
	}

	ledger := Ledger{
		ClientID: clientID,
		Bills:    make([]LedgerBill, 0, len(bills)),
		Advances: make([]Payment, 0),
		Billed:   decimal.Zero,
		Paid:     decimal.Zero,
	}
	byBill := make(map[int64]Payment, len(payments))
	for _, p := range payments {
		p = p.Derive()
		ledger.Paid = ledger.Paid.Add(p.Paid)
		if p.IsAdvance() {
			ledger.Advances = append(ledger.Advances, p)
			continue
		}
		if _, seen := byBill[*p.BillID]; !seen {
			byBill[*p.BillID] = p
		}
	}
	for _, b := range bills {
		b.Payable = shared.RoundCents(b.Total.Sub(b.Discount))
		ledger.Billed = ledger.Billed.Add(b.Payable)
		if !filter.matches(b) {
			continue
		}
		if p, ok := byBill[b.BillID]; ok {
			b.Payment = &p
		}
		ledger.Bills = append(ledger.Bills, b)
	}
	ledger.Balance = shared.RoundCents(ledger.Billed.Sub(ledger.Paid))
	return ledger, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "payment",
		EntityID: strconv.FormatInt(id, 10),
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
