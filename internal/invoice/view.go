// Package invoice turns persisted bills into printable documents.
package invoice

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/br7tech/billdesk/internal/billing"
)

// MinServiceRows is the height of the service bill item table.
const MinServiceRows = 14

const (
	billDateLayout    = "January 2, 2006"
	serviceDateLayout = "Jan 2, 2006"
)

// Shop is the letterhead printed on every invoice.
type Shop struct {
	Name     string
	Address  string
	Phone    string
	Currency string
	// Location dates are printed in. Nil means the server's local zone.
	Location *time.Location
}

var printer = message.NewPrinter(language.English)

// FormatMoney renders an amount with thousands separators and two decimals.
func FormatMoney(currency string, amount decimal.Decimal) string {
	cents := amount.Abs().Round(2)
	fixed := cents.StringFixed(2)
	text := printer.Sprintf("%d.%s", cents.IntPart(), fixed[len(fixed)-2:])
	if amount.Round(2).IsNegative() {
		text = "-" + text
	}
	if currency == "" {
		return text
	}
	return currency + " " + text
}

// Row is one printed line. Blank rows pad the table.
type Row struct {
	No        int
	Name      string
	Quantity  int
	UnitPrice string
	Amount    string
	Blank     bool
}

// BillView is the data a product invoice template needs.
type BillView struct {
	Shop     Shop
	Number   string
	Date     string
	Customer billing.ClientRef
	Rows     []Row
	Subtotal string
	Discount string
	Total    string
}

// ServiceBillView is the data a service invoice template needs.
type ServiceBillView struct {
	Shop       Shop
	Number     string
	Date       string
	Customer   billing.ClientRef
	Rows       []Row
	ItemTotal  string
	Transport  string
	GrandTotal string
	Advance    string
	Discount   string
	Balance    string
}

// BillNumber formats a product invoice number.
func BillNumber(id int64) string {
	return fmt.Sprintf("INV-%06d", id)
}

// ServiceBillNumber formats a service invoice number.
func ServiceBillNumber(id int64) string {
	return fmt.Sprintf("SRV-%06d", id)
}

func (s Shop) date(t time.Time, layout string) string {
	if t.IsZero() {
		return ""
	}
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(layout)
}

// NewBillView lays out a product bill.
func NewBillView(shop Shop, bill billing.Bill) BillView {
	money := func(v decimal.Decimal) string { return FormatMoney(shop.Currency, v) }
	view := BillView{
		Shop:     shop,
		Number:   BillNumber(bill.ID),
		Date:     shop.date(bill.CreatedAt, billDateLayout),
		Customer: bill.Client,
		Subtotal: money(bill.Total),
		Discount: money(bill.Discount),
		Total:    money(bill.Payable()),
	}
	for i, item := range bill.Items {
		view.Rows = append(view.Rows, Row{
			No:        i + 1,
			Name:      item.ProductName,
			Quantity:  item.Quantity,
			UnitPrice: money(item.PriceAtTime),
			Amount:    money(item.Extension()),
		})
	}
	return view
}

// NewServiceBillView lays out a service bill, padding the table to MinServiceRows.
func NewServiceBillView(shop Shop, bill billing.ServiceBill) ServiceBillView {
	money := func(v decimal.Decimal) string { return FormatMoney(shop.Currency, v) }
	view := ServiceBillView{
		Shop:       shop,
		Number:     ServiceBillNumber(bill.ID),
		Date:       shop.date(bill.CreatedAt, serviceDateLayout),
		Customer:   bill.Client,
		ItemTotal:  money(bill.Total),
		Transport:  money(bill.Transport),
		GrandTotal: money(bill.GrandTotal()),
		Advance:    money(bill.Advance),
		Discount:   money(bill.Discount),
		Balance:    money(bill.Balance()),
	}
	for i, item := range bill.Items {
		view.Rows = append(view.Rows, Row{
			No:        i + 1,
			Name:      item.ServiceName,
			Quantity:  item.Quantity,
			UnitPrice: money(item.PriceAtTime),
			Amount:    money(item.Extension()),
		})
	}
	for len(view.Rows) < MinServiceRows {
		view.Rows = append(view.Rows, Row{Blank: true})
	}
	return view
}
