package invoice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/br7tech/billdesk/internal/billing"
	"github.com/br7tech/billdesk/report"
)

var shop = Shop{
	Name:     "Ali Electronics",
	Address:  "Punial Road, Gilgit",
	Phone:    "0346-540706-8",
	Currency: "Rs.",
	Location: time.UTC,
}

var created = time.Date(2024, time.March, 5, 10, 30, 0, 0, time.UTC)

func sampleBill() billing.Bill {
	return billing.Bill{
		ID:        42,
		ClientID:  1,
		Client:    billing.ClientRef{ID: 1, Name: "Asad", Phone: "0300-1234567"},
		CreatedAt: created,
		Total:     decimal.NewFromInt(450),
		Discount:  decimal.NewFromInt(50),
		Items: []billing.BillItem{
			{ID: 1, ProductID: 1, ProductName: "LED Bulb", Quantity: 3, PriceAtTime: decimal.NewFromInt(150), CurrentPrice: decimal.NewFromInt(175)},
		},
	}
}

func sampleServiceBill() billing.ServiceBill {
	return billing.ServiceBill{
		ID:        7,
		Client:    billing.ClientRef{ID: 1, Name: "Asad"},
		CreatedAt: created,
		Total:     decimal.NewFromInt(1000),
		Transport: decimal.NewFromInt(200),
		Advance:   decimal.NewFromInt(300),
		Discount:  decimal.NewFromInt(100),
		Items: []billing.ServiceBillItem{
			{ServiceID: 7, ServiceName: "Wiring", Quantity: 2, PriceAtTime: decimal.NewFromInt(500)},
		},
	}
}

func TestFormatMoney(t *testing.T) {
	require.Equal(t, "Rs. 400.00", FormatMoney("Rs.", decimal.NewFromInt(400)))
	require.Equal(t, "Rs. 1,250.00", FormatMoney("Rs.", decimal.NewFromInt(1250)))
	require.Equal(t, "Rs. 0.50", FormatMoney("Rs.", decimal.RequireFromString("0.5")))
	require.Equal(t, "12.30", FormatMoney("", decimal.RequireFromString("12.3")))
	require.Equal(t, "Rs. 1,234,567.89", FormatMoney("Rs.", decimal.RequireFromString("1234567.885")))
	require.Equal(t, "1.00", FormatMoney("", decimal.RequireFromString("0.999")))
	require.Equal(t, "-250.00", FormatMoney("", decimal.NewFromInt(-250)))
}

func TestNewBillView(t *testing.T) {
	view := NewBillView(shop, sampleBill())
	require.Equal(t, "INV-000042", view.Number)
	require.Equal(t, "March 5, 2024", view.Date)
	require.Equal(t, "Rs. 450.00", view.Subtotal)
	require.Equal(t, "Rs. 50.00", view.Discount)
	require.Equal(t, "Rs. 400.00", view.Total)
	require.Len(t, view.Rows, 1)
	require.Equal(t, "Rs. 150.00", view.Rows[0].UnitPrice)
	require.Equal(t, "Rs. 450.00", view.Rows[0].Amount)
}

func TestNewServiceBillViewPadsRows(t *testing.T) {
	view := NewServiceBillView(shop, sampleServiceBill())
	require.Equal(t, "SRV-000007", view.Number)
	require.Equal(t, "Mar 5, 2024", view.Date)
	require.Equal(t, "Rs. 1,200.00", view.GrandTotal)
	require.Equal(t, "Rs. 800.00", view.Balance)
	require.Len(t, view.Rows, MinServiceRows)
	require.False(t, view.Rows[0].Blank)
	require.True(t, view.Rows[MinServiceRows-1].Blank)
}

func TestRendererBillHTML(t *testing.T) {
	r, err := NewRenderer(nil)
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, r.Bill(&sb, NewBillView(shop, sampleBill())))
	html := sb.String()
	require.Contains(t, html, "Ali Electronics")
	require.Contains(t, html, "INV-000042")
	require.Contains(t, html, "LED Bulb")
	require.Contains(t, html, "Rs. 400.00")
	require.Contains(t, html, "@media print")

	_, err = r.BillPDF(context.Background(), NewBillView(shop, sampleBill()))
	require.ErrorIs(t, err, ErrPDFUnavailable)
}

func TestRendererServiceBillHTML(t *testing.T) {
	r, err := NewRenderer(nil)
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, r.ServiceBill(&sb, NewServiceBillView(shop, sampleServiceBill())))
	html := sb.String()
	require.Contains(t, html, "Transport Charges:")
	require.Contains(t, html, "Rs. 800.00")
	require.Equal(t, MinServiceRows-1, strings.Count(html, `class="blank"`))
}

type stubSource struct{}

func (stubSource) GetBill(ctx context.Context, id int64) (billing.Bill, error) {
	if id != 42 {
		return billing.Bill{}, billing.ErrBillNotFound
	}
	return sampleBill(), nil
}

func (stubSource) GetServiceBill(ctx context.Context, id int64) (billing.ServiceBill, error) {
	if id != 7 {
		return billing.ServiceBill{}, billing.ErrServiceBillNotFound
	}
	return sampleServiceBill(), nil
}

type stubPDF struct {
	html string
}

func (s *stubPDF) RenderHTML(ctx context.Context, html []byte, paper report.Paper) ([]byte, error) {
	s.html = string(html)
	return []byte("%PDF-1.7"), nil
}

func TestHandlerServesInvoices(t *testing.T) {
	pdf := &stubPDF{}
	renderer, err := NewRenderer(pdf)
	require.NoError(t, err)
	h := NewHandler(nil, stubSource{}, renderer, shop)

	router := chi.NewRouter()
	router.Route("/bills", h.MountBillRoutes)
	router.Route("/service-bills", h.MountServiceBillRoutes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bills/42/invoice", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	require.Contains(t, rec.Body.String(), "Asad")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/service-bills/7/invoice.pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "SRV-000007.pdf")
	require.Contains(t, pdf.html, "SRV-000007")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bills/9/invoice", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
