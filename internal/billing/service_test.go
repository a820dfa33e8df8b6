package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/br7tech/billdesk/internal/inventory"
	"github.com/br7tech/billdesk/internal/shared"
)

type storedBill struct {
	header    BillHeader
	items     []BillItem
	createdAt time.Time
}

type storedServiceBill struct {
	header    ServiceBillHeader
	items     []ServiceBillItem
	createdAt time.Time
}

type memoryState struct {
	products     map[int64]inventory.ProductStock
	services     map[int64]ServiceRef
	clients      map[int64]ClientRef
	bills        map[int64]storedBill
	serviceBills map[int64]storedServiceBill
	paidBills    map[int64]bool
	movements    []inventory.Movement
	nextID       int64
}

func (s *memoryState) clone() *memoryState {
	out := &memoryState{
		products:     make(map[int64]inventory.ProductStock, len(s.products)),
		services:     s.services,
		clients:      s.clients,
		bills:        make(map[int64]storedBill, len(s.bills)),
		serviceBills: make(map[int64]storedServiceBill, len(s.serviceBills)),
		paidBills:    s.paidBills,
		movements:    append([]inventory.Movement(nil), s.movements...),
		nextID:       s.nextID,
	}
	for id, p := range s.products {
		out.products[id] = p
	}
	for id, b := range s.bills {
		b.items = append([]BillItem(nil), b.items...)
		out.bills[id] = b
	}
	for id, b := range s.serviceBills {
		b.items = append([]ServiceBillItem(nil), b.items...)
		out.serviceBills[id] = b
	}
	return out
}

func (s *memoryState) id() int64 {
	s.nextID++
	return s.nextID
}

type memoryRepo struct {
	mu    sync.Mutex
	state *memoryState
}

type memoryTx struct {
	s *memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: &memoryState{
		products: map[int64]inventory.ProductStock{
			1: {ID: 1, Name: "LED Bulb", Price: dec("150"), Stock: 10},
			2: {ID: 2, Name: "Switch", Price: dec("80"), Stock: 1},
		},
		services: map[int64]ServiceRef{
			7: {ID: 7, Name: "Wiring", Price: dec("500")},
			8: {ID: 8, Name: "Fan Repair", Price: dec("350")},
		},
		clients: map[int64]ClientRef{
			1: asad,
			2: {ID: 2, Name: "Karakoram Builders", Phone: "05811-450012"},
		},
		bills:        map[int64]storedBill{},
		serviceBills: map[int64]storedServiceBill{},
		paidBills:    map[int64]bool{},
		nextID:       100,
	}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	staged := r.state.clone()
	if err := fn(ctx, &memoryTx{s: staged}); err != nil {
		return err
	}
	r.state = staged
	return nil
}

func (r *memoryRepo) bill(id int64) (Bill, bool) {
	stored, ok := r.state.bills[id]
	if !ok {
		return Bill{}, false
	}
	bill := Bill{
		ID:        id,
		ClientID:  stored.header.ClientID,
		Client:    r.state.clients[stored.header.ClientID],
		CreatedAt: stored.createdAt,
		Total:     stored.header.Total,
		Discount:  stored.header.Discount,
	}
	for _, item := range stored.items {
		p := r.state.products[item.ProductID]
		item.ProductName = p.Name
		item.CurrentPrice = p.Price
		bill.Items = append(bill.Items, item)
	}
	return bill, true
}

func (r *memoryRepo) GetBill(ctx context.Context, id int64) (Bill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bill, ok := r.bill(id)
	if !ok {
		return Bill{}, ErrBillNotFound
	}
	return bill, nil
}

// matchesFilter mirrors the WHERE clause shared by both bill listings.
func matchesFilter(filter ListFilter, id int64, client ClientRef, createdAt time.Time) bool {
	if filter.ClientID != 0 && client.ID != filter.ClientID {
		return false
	}
	if !filter.Dates.Contains(createdAt) {
		return false
	}
	if filter.Query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(client.Name), strings.ToLower(filter.Query)) || id == filter.BillNumber()
}

func (r *memoryRepo) ListBills(ctx context.Context, filter ListFilter) ([]Bill, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Bill
	for id, stored := range r.state.bills {
		if !matchesFilter(filter, id, r.state.clients[stored.header.ClientID], stored.createdAt) {
			continue
		}
		bill, _ := r.bill(id)
		out = append(out, bill)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)
	if filter.Offset < len(out) {
		out = out[filter.Offset:]
	} else {
		out = nil
	}
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

func (r *memoryRepo) serviceBill(id int64) (ServiceBill, bool) {
	stored, ok := r.state.serviceBills[id]
	if !ok {
		return ServiceBill{}, false
	}
	bill := ServiceBill{
		ID:        id,
		ClientID:  stored.header.ClientID,
		Client:    r.state.clients[stored.header.ClientID],
		CreatedAt: stored.createdAt,
		Total:     stored.header.Total,
		Discount:  stored.header.Discount,
		Transport: stored.header.Transport,
		Advance:   stored.header.Advance,
	}
	for _, item := range stored.items {
		svc := r.state.services[item.ServiceID]
		item.ServiceName = svc.Name
		item.CurrentPrice = svc.Price
		bill.Items = append(bill.Items, item)
	}
	return bill, true
}

func (r *memoryRepo) GetServiceBill(ctx context.Context, id int64) (ServiceBill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bill, ok := r.serviceBill(id)
	if !ok {
		return ServiceBill{}, ErrServiceBillNotFound
	}
	return bill, nil
}

func (r *memoryRepo) ListServiceBills(ctx context.Context, filter ListFilter) ([]ServiceBill, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ServiceBill
	for id, stored := range r.state.serviceBills {
		if !matchesFilter(filter, id, r.state.clients[stored.header.ClientID], stored.createdAt) {
			continue
		}
		bill, _ := r.serviceBill(id)
		out = append(out, bill)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)
	if filter.Offset < len(out) {
		out = out[filter.Offset:]
	} else {
		out = nil
	}
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

func (r *memoryRepo) GetClient(ctx context.Context, id int64) (ClientRef, error) {
	c, ok := r.state.clients[id]
	if !ok {
		return ClientRef{}, ErrClientNotFound
	}
	return c, nil
}

func (r *memoryRepo) ProductSnapshot(ctx context.Context, id int64) (Sellable, error) {
	p, ok := r.state.products[id]
	if !ok {
		return Sellable{}, inventory.ErrProductNotFound
	}
	return Sellable{ID: p.ID, Kind: KindProduct, Name: p.Name, Price: p.Price, Stock: p.Stock}, nil
}

func (r *memoryRepo) ServiceSnapshot(ctx context.Context, id int64) (Sellable, error) {
	s, ok := r.state.services[id]
	if !ok {
		return Sellable{}, ErrServiceNotFound
	}
	return Sellable{ID: s.ID, Kind: KindService, Name: s.Name, Price: s.Price}, nil
}

func (tx *memoryTx) LockProduct(ctx context.Context, productID int64) (inventory.ProductStock, error) {
	p, ok := tx.s.products[productID]
	if !ok {
		return inventory.ProductStock{}, inventory.ErrProductNotFound
	}
	return p, nil
}

func (tx *memoryTx) UpdateStock(ctx context.Context, productID int64, stock int) error {
	p := tx.s.products[productID]
	p.Stock = stock
	tx.s.products[productID] = p
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m inventory.Movement) (inventory.Movement, error) {
	m.ID = tx.s.id()
	tx.s.movements = append(tx.s.movements, m)
	return m, nil
}

func (tx *memoryTx) LinkMovements(ctx context.Context, ids []int64, refID int64) error {
	for _, id := range ids {
		for i := range tx.s.movements {
			if tx.s.movements[i].ID == id {
				tx.s.movements[i].RefID = refID
			}
		}
	}
	return nil
}

func (tx *memoryTx) ClientExists(ctx context.Context, clientID int64) (bool, error) {
	_, ok := tx.s.clients[clientID]
	return ok, nil
}

func (tx *memoryTx) InsertBill(ctx context.Context, header BillHeader) (int64, error) {
	id := tx.s.id()
	tx.s.bills[id] = storedBill{header: header, createdAt: time.Now().UTC()}
	return id, nil
}

func (tx *memoryTx) InsertBillItem(ctx context.Context, billID int64, item BillItem) error {
	stored := tx.s.bills[billID]
	item.ID = tx.s.id()
	stored.items = append(stored.items, item)
	tx.s.bills[billID] = stored
	return nil
}

func (tx *memoryTx) LockBill(ctx context.Context, billID int64) (BillHeader, error) {
	stored, ok := tx.s.bills[billID]
	if !ok {
		return BillHeader{}, ErrBillNotFound
	}
	return stored.header, nil
}

func (tx *memoryTx) BillItems(ctx context.Context, billID int64) ([]BillItem, error) {
	return tx.s.bills[billID].items, nil
}

func (tx *memoryTx) BillHasPayments(ctx context.Context, billID int64) (bool, error) {
	return tx.s.paidBills[billID], nil
}

func (tx *memoryTx) DeleteBill(ctx context.Context, billID int64) error {
	if _, ok := tx.s.bills[billID]; !ok {
		return ErrBillNotFound
	}
	delete(tx.s.bills, billID)
	return nil
}

func (tx *memoryTx) GetService(ctx context.Context, serviceID int64) (ServiceRef, error) {
	s, ok := tx.s.services[serviceID]
	if !ok {
		return ServiceRef{}, ErrServiceNotFound
	}
	return s, nil
}

func (tx *memoryTx) InsertServiceBill(ctx context.Context, header ServiceBillHeader) (int64, error) {
	id := tx.s.id()
	tx.s.serviceBills[id] = storedServiceBill{header: header, createdAt: time.Now().UTC()}
	return id, nil
}

func (tx *memoryTx) LockServiceBill(ctx context.Context, id int64) (ServiceBillHeader, error) {
	stored, ok := tx.s.serviceBills[id]
	if !ok {
		return ServiceBillHeader{}, ErrServiceBillNotFound
	}
	return stored.header, nil
}

func (tx *memoryTx) UpdateServiceBill(ctx context.Context, id int64, header ServiceBillHeader) error {
	stored := tx.s.serviceBills[id]
	stored.header = header
	tx.s.serviceBills[id] = stored
	return nil
}

func (tx *memoryTx) ServiceItems(ctx context.Context, id int64) ([]ServiceBillItem, error) {
	return tx.s.serviceBills[id].items, nil
}

func (tx *memoryTx) ReplaceServiceItems(ctx context.Context, id int64, items []ServiceBillItem) error {
	stored := tx.s.serviceBills[id]
	stored.items = nil
	for _, item := range items {
		item.ID = tx.s.id()
		stored.items = append(stored.items, item)
	}
	tx.s.serviceBills[id] = stored
	return nil
}

func (tx *memoryTx) DeleteServiceBill(ctx context.Context, id int64) error {
	if _, ok := tx.s.serviceBills[id]; !ok {
		return ErrServiceBillNotFound
	}
	delete(tx.s.serviceBills, id)
	return nil
}

type memoryKeys struct {
	keys map[string]bool
}

func (m *memoryKeys) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys[module+":"+key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[module+":"+key] = true
	return nil
}

func (m *memoryKeys) Delete(ctx context.Context, key, module string) error {
	delete(m.keys, module+":"+key)
	return nil
}

type countingMetrics struct {
	submitted map[string]int
	rejected  int
}

func (m *countingMetrics) BillSubmitted(kind string) { m.submitted[kind]++ }
func (m *countingMetrics) StockRejected()            { m.rejected++ }

type fixture struct {
	repo    *memoryRepo
	keys    *memoryKeys
	metrics *countingMetrics
	service *Service
}

func newFixture() *fixture {
	repo := newMemoryRepo()
	keys := &memoryKeys{keys: map[string]bool{}}
	metrics := &countingMetrics{submitted: map[string]int{}}
	adjuster := inventory.NewAdjuster(nil, nil, nil)
	return &fixture{
		repo:    repo,
		keys:    keys,
		metrics: metrics,
		service: NewService(repo, adjuster, keys, nil, metrics, nil),
	}
}

func TestSubmitBillPersistsAndDecrementsStock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	c := NewComposer(KindProduct)
	require.NoError(t, c.SetClient(asad))
	item, err := f.repo.ProductSnapshot(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, c.AddItem(item, 3))
	require.NoError(t, c.SetDiscount("50"))
	draft, err := c.Draft()
	require.NoError(t, err)

	bill, err := f.service.SubmitBill(ctx, draft)
	require.NoError(t, err)
	requireMoney(t, "450.00", bill.Total)
	requireMoney(t, "50.00", bill.Discount)
	requireMoney(t, "400.00", bill.Payable())
	require.Equal(t, "Asad", bill.Client.Name)
	require.Len(t, bill.Items, 1)
	require.Equal(t, "LED Bulb", bill.Items[0].ProductName)
	requireMoney(t, "150.00", bill.Items[0].PriceAtTime)
	require.False(t, bill.CreatedAt.IsZero())

	require.Equal(t, 7, f.repo.state.products[1].Stock)
	require.Len(t, f.repo.state.movements, 1)
	require.Equal(t, bill.ID, f.repo.state.movements[0].RefID)
	require.Equal(t, inventory.RefBill, f.repo.state.movements[0].RefModule)
	require.Equal(t, 1, f.metrics.submitted["product"])
}

func TestSubmitBillKeepsPriceAtTime(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	bill, err := f.service.SubmitBill(ctx, SubmitBillInput{
		ClientID:       1,
		Items:          []BillItemInput{{ProductID: 1, Quantity: 1}},
		IdempotencyKey: "k1",
	})
	require.NoError(t, err)

	p := f.repo.state.products[1]
	p.Price = dec("175")
	f.repo.state.products[1] = p

	bill, err = f.service.GetBill(ctx, bill.ID)
	require.NoError(t, err)
	requireMoney(t, "150.00", bill.Items[0].PriceAtTime)
	requireMoney(t, "175.00", bill.Items[0].CurrentPrice)
}

func TestSubmitBillRollsBackOnShortfall(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.service.SubmitBill(ctx, SubmitBillInput{
		ClientID: 1,
		Items: []BillItemInput{
			{ProductID: 1, Quantity: 4},
			{ProductID: 2, Quantity: 5},
		},
		IdempotencyKey: "k1",
	})
	require.True(t, inventory.IsInsufficientStock(err))
	require.Contains(t, err.Error(), "Switch")
	require.Equal(t, 10, f.repo.state.products[1].Stock)
	require.Equal(t, 1, f.repo.state.products[2].Stock)
	require.Empty(t, f.repo.state.bills)
	require.Empty(t, f.repo.state.movements)
	require.Equal(t, 1, f.metrics.rejected)
	require.Empty(t, f.keys.keys)
}

func TestSubmitBillRejectsDiscountAboveTotal(t *testing.T) {
	f := newFixture()
	_, err := f.service.SubmitBill(context.Background(), SubmitBillInput{
		ClientID:       1,
		Items:          []BillItemInput{{ProductID: 1, Quantity: 1}},
		Discount:       dec("151"),
		IdempotencyKey: "k1",
	})
	require.ErrorIs(t, err, ErrDiscountExceedsTotal)
	require.Equal(t, 10, f.repo.state.products[1].Stock)
}

func TestSubmitBillValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	cases := []struct {
		name string
		in   SubmitBillInput
		want error
	}{
		{"no client", SubmitBillInput{Items: []BillItemInput{{ProductID: 1, Quantity: 1}}}, ErrNoClient},
		{"no items", SubmitBillInput{ClientID: 1}, ErrNoItems},
		{"zero quantity", SubmitBillInput{ClientID: 1, Items: []BillItemInput{{ProductID: 1}}}, ErrInvalidQuantity},
		{"fractional discount", SubmitBillInput{ClientID: 1, Items: []BillItemInput{{ProductID: 1, Quantity: 1}}, Discount: dec("1.005")}, ErrInvalidDiscount},
		{"no key", SubmitBillInput{ClientID: 1, Items: []BillItemInput{{ProductID: 1, Quantity: 1}}}, ErrIdempotencyKeyRequired},
		{"unknown client", SubmitBillInput{ClientID: 9, Items: []BillItemInput{{ProductID: 1, Quantity: 1}}, IdempotencyKey: "x"}, ErrClientNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.service.SubmitBill(ctx, tc.in)
			require.ErrorIs(t, err, tc.want)
		})
	}
	require.Equal(t, 10, f.repo.state.products[1].Stock)
}

func TestSubmitBillDetectsDuplicate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	in := SubmitBillInput{ClientID: 1, Items: []BillItemInput{{ProductID: 1, Quantity: 1}}, IdempotencyKey: "draft-1"}

	_, err := f.service.SubmitBill(ctx, in)
	require.NoError(t, err)
	_, err = f.service.SubmitBill(ctx, in)
	require.ErrorIs(t, err, ErrDuplicateSubmission)
	require.Equal(t, 9, f.repo.state.products[1].Stock)
	require.Len(t, f.repo.state.bills, 1)
}

func TestDeleteBillRestoresStock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	bill, err := f.service.SubmitBill(ctx, SubmitBillInput{
		ClientID:       1,
		Items:          []BillItemInput{{ProductID: 1, Quantity: 3}},
		IdempotencyKey: "k1",
	})
	require.NoError(t, err)
	require.Equal(t, 7, f.repo.state.products[1].Stock)

	f.repo.state.paidBills[bill.ID] = true
	require.ErrorIs(t, f.service.DeleteBill(ctx, bill.ID, 0), ErrBillHasPayments)
	require.Equal(t, 7, f.repo.state.products[1].Stock)

	f.repo.state.paidBills[bill.ID] = false
	require.NoError(t, f.service.DeleteBill(ctx, bill.ID, 0))
	require.Equal(t, 10, f.repo.state.products[1].Stock)
	last := f.repo.state.movements[len(f.repo.state.movements)-1]
	require.Equal(t, inventory.RefBillVoid, last.RefModule)
	require.Equal(t, bill.ID, last.RefID)

	_, err = f.service.GetBill(ctx, bill.ID)
	require.ErrorIs(t, err, ErrBillNotFound)
}

func TestListBillsNewestFirst(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for _, key := range []string{"a", "b", "c"} {
		_, err := f.service.SubmitBill(ctx, SubmitBillInput{
			ClientID:       1,
			Items:          []BillItemInput{{ProductID: 1, Quantity: 1}},
			IdempotencyKey: key,
		})
		require.NoError(t, err)
	}
	bills, page, err := f.service.ListBills(ctx, ListFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, bills, 2)
	require.Greater(t, bills[0].ID, bills[1].ID)
	require.Equal(t, 3, page.Total)
}

func (f *fixture) submitFor(t *testing.T, clientID int64, key string, createdAt time.Time) Bill {
	t.Helper()
	bill, err := f.service.SubmitBill(context.Background(), SubmitBillInput{
		ClientID:       clientID,
		Items:          []BillItemInput{{ProductID: 1, Quantity: 1}},
		IdempotencyKey: key,
	})
	require.NoError(t, err)
	stored := f.repo.state.bills[bill.ID]
	stored.createdAt = createdAt
	f.repo.state.bills[bill.ID] = stored
	return bill
}

func TestListBillsFiltersByDayAndSearch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	today := time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)

	first := f.submitFor(t, 1, "a", today)
	f.submitFor(t, 1, "b", yesterday)
	builders := f.submitFor(t, 2, "c", today.Add(2*time.Hour))

	bills, page, err := f.service.ListBills(ctx, ListFilter{Dates: shared.Day(today, time.UTC)})
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)
	require.Equal(t, builders.ID, bills[0].ID)

	bills, _, err = f.service.ListBills(ctx, ListFilter{Query: "  karak "})
	require.NoError(t, err)
	require.Len(t, bills, 1)
	require.Equal(t, "Karakoram Builders", bills[0].Client.Name)

	bills, _, err = f.service.ListBills(ctx, ListFilter{Query: "INV-" + strconv.FormatInt(first.ID, 10)})
	require.NoError(t, err)
	require.Len(t, bills, 1)
	require.Equal(t, first.ID, bills[0].ID)

	bills, _, err = f.service.ListBills(ctx, ListFilter{Query: "asad", Dates: shared.DateRange{Until: today.Truncate(24 * time.Hour)}})
	require.NoError(t, err)
	require.Len(t, bills, 1)

	bills, _, err = f.service.ListBills(ctx, ListFilter{Query: "nobody"})
	require.NoError(t, err)
	require.Empty(t, bills)
}

func TestListServiceBillsFiltersBySearch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for i, clientID := range []int64{1, 2, 2} {
		_, err := f.service.SubmitServiceBill(ctx, SubmitServiceBillInput{
			ClientID:       clientID,
			Items:          []ServiceItemInput{{ServiceID: 8, Quantity: 1}},
			IdempotencyKey: "s" + strconv.Itoa(i),
		})
		require.NoError(t, err)
	}
	bills, page, err := f.service.ListServiceBills(ctx, ListFilter{Query: "builders", Limit: 1})
	require.NoError(t, err)
	require.Len(t, bills, 1)
	require.Equal(t, 2, page.Total)

	bills, _, err = f.service.ListServiceBills(ctx, ListFilter{Dates: shared.Day(time.Now().AddDate(0, 0, -3), time.UTC)})
	require.NoError(t, err)
	require.Empty(t, bills)
}

func TestListFilterBillNumber(t *testing.T) {
	cases := map[string]int64{
		"42":         42,
		"#42":        42,
		"inv-000042": 42,
		"SRV-000007": 7,
		"asad":       0,
		"-3":         0,
		"":           0,
	}
	for q, want := range cases {
		require.Equal(t, want, ListFilter{Query: q}.BillNumber(), q)
	}
}

func TestPreviewDoesNotWrite(t *testing.T) {
	f := newFixture()
	draft, err := f.service.Preview(context.Background(), SubmitBillInput{
		ClientID: 1,
		Items:    []BillItemInput{{ProductID: 1, Quantity: 3}},
		Discount: dec("50"),
	})
	require.NoError(t, err)
	requireMoney(t, "400.00", draft.Payable())
	require.Equal(t, 10, f.repo.state.products[1].Stock)

	_, err = f.service.Preview(context.Background(), SubmitBillInput{Items: []BillItemInput{{ProductID: 2, Quantity: 2}}})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
}

func TestServiceBillLifecycle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	bill, err := f.service.SubmitServiceBill(ctx, SubmitServiceBillInput{
		ClientID:       1,
		Items:          []ServiceItemInput{{ServiceID: 7, Quantity: 2}},
		Transport:      dec("200"),
		Advance:        dec("300"),
		Discount:       dec("100"),
		IdempotencyKey: "s1",
	})
	require.NoError(t, err)
	requireMoney(t, "1000.00", bill.Total)
	requireMoney(t, "800.00", bill.Balance())
	require.Equal(t, "Wiring", bill.Items[0].ServiceName)
	require.Equal(t, 1, f.metrics.submitted["service"])

	svc := f.repo.state.services[7]
	svc.Price = dec("600")
	f.repo.state.services[7] = svc

	bill, err = f.service.UpdateServiceBill(ctx, bill.ID, SubmitServiceBillInput{
		ClientID: 1,
		Items: []ServiceItemInput{
			{ServiceID: 7, Quantity: 3},
			{ServiceID: 8, Quantity: 1},
		},
		Transport: dec("200"),
	})
	require.NoError(t, err)
	require.Len(t, bill.Items, 2)
	requireMoney(t, "500.00", bill.Items[0].PriceAtTime)
	requireMoney(t, "350.00", bill.Items[1].PriceAtTime)
	requireMoney(t, "1850.00", bill.Total)
	requireMoney(t, "2050.00", bill.Balance())

	_, err = f.service.UpdateServiceBill(ctx, bill.ID, SubmitServiceBillInput{
		ClientID: 1,
		Items:    []ServiceItemInput{{ServiceID: 99, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrServiceNotFound)
	bill, err = f.service.GetServiceBill(ctx, bill.ID)
	require.NoError(t, err)
	require.Len(t, bill.Items, 2)

	require.NoError(t, f.service.DeleteServiceBill(ctx, bill.ID, 0))
	_, err = f.service.GetServiceBill(ctx, bill.ID)
	require.ErrorIs(t, err, ErrServiceBillNotFound)
}

func TestServiceBillDiscountCeilingIncludesTransport(t *testing.T) {
	f := newFixture()
	_, err := f.service.SubmitServiceBill(context.Background(), SubmitServiceBillInput{
		ClientID:       1,
		Items:          []ServiceItemInput{{ServiceID: 8, Quantity: 1}},
		Transport:      dec("100"),
		Discount:       dec("451"),
		IdempotencyKey: "s1",
	})
	require.ErrorIs(t, err, ErrDiscountExceedsTotal)
	require.Empty(t, f.keys.keys)
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/bills", h.MountBillRoutes)
	r.Route("/service-bills", h.MountServiceBillRoutes)
	return r
}

func TestHandlerSubmitUsesIdempotencyHeader(t *testing.T) {
	f := newFixture()
	router := newRouter(NewHandler(nil, f.service, time.UTC))

	body, _ := json.Marshal(map[string]any{
		"client_id": 1,
		"items":     []map[string]any{{"product_id": 1, "quantity": 3}},
		"discount":  50,
	})
	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/bills/", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(IdempotencyHeader, "draft-9")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := send()
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var bill Bill
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bill))
	requireMoney(t, "450.00", bill.Total)

	rec = send()
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerMapsShortfallToConflict(t *testing.T) {
	f := newFixture()
	router := newRouter(NewHandler(nil, f.service, time.UTC))

	body := `{"client_id":1,"items":[{"product_id":2,"quantity":5}],"idempotency_key":"x"}`
	req := httptest.NewRequest(http.MethodPost, "/bills/", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "Switch")

	req = httptest.NewRequest(http.MethodGet, "/bills/404", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerListBillsFilters(t *testing.T) {
	f := newFixture()
	router := newRouter(NewHandler(nil, f.service, time.UTC))
	now := time.Now().UTC()
	f.submitFor(t, 1, "a", now)
	f.submitFor(t, 2, "b", now)
	f.submitFor(t, 2, "c", now.AddDate(0, 0, -2))

	get := func(target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		return rec
	}

	rec := get("/bills/?date=today&q=karakoram")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Bills      []Bill            `json:"bills"`
		Pagination shared.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Bills, 1)
	require.Equal(t, "Karakoram Builders", body.Bills[0].Client.Name)

	rec = get("/bills/?from=" + now.AddDate(0, 0, -2).Format(shared.DateLayout) + "&to=" + now.Format(shared.DateLayout))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 3, body.Pagination.Total)

	require.Equal(t, http.StatusBadRequest, get("/bills/?date=10-03-2024").Code)
	require.Equal(t, http.StatusBadRequest, get("/service-bills/?from=2024-03-05&to=2024-03-01").Code)
}

func TestHandlerValidationFailure(t *testing.T) {
	f := newFixture()
	router := newRouter(NewHandler(nil, f.service, time.UTC))

	req := httptest.NewRequest(http.MethodPost, "/service-bills/", bytes.NewBufferString(`{"client_id":1,"items":[]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
