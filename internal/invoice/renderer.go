package invoice

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"io/fs"

	"github.com/br7tech/billdesk/report"
	"github.com/br7tech/billdesk/web"
)

const (
	billTemplate        = "bill.html"
	serviceBillTemplate = "service_bill.html"
)

// PDFClient converts a self contained HTML document to PDF.
type PDFClient interface {
	RenderHTML(ctx context.Context, html []byte, paper report.Paper) ([]byte, error)
}

// Renderer executes the embedded invoice templates.
type Renderer struct {
	templates *template.Template
	css       template.CSS
	pdf       PDFClient
}

type page struct {
	CSS     template.CSS
	Invoice any
}

// NewRenderer parses the invoice templates. pdf may be nil when PDF export is
// not configured.
func NewRenderer(pdf PDFClient) (*Renderer, error) {
	tpl, err := template.ParseFS(web.Templates, "templates/invoices/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse invoice templates: %w", err)
	}
	css, err := fs.ReadFile(web.Static, web.PrintCSS)
	if err != nil {
		return nil, fmt.Errorf("read print css: %w", err)
	}
	return &Renderer{templates: tpl, css: template.CSS(css), pdf: pdf}, nil
}

// Bill writes the printable HTML of a product invoice.
func (r *Renderer) Bill(w io.Writer, view BillView) error {
	return r.templates.ExecuteTemplate(w, billTemplate, page{CSS: r.css, Invoice: view})
}

// ServiceBill writes the printable HTML of a service invoice.
func (r *Renderer) ServiceBill(w io.Writer, view ServiceBillView) error {
	return r.templates.ExecuteTemplate(w, serviceBillTemplate, page{CSS: r.css, Invoice: view})
}

// BillPDF renders a product invoice to PDF.
func (r *Renderer) BillPDF(ctx context.Context, view BillView) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Bill(&buf, view); err != nil {
		return nil, err
	}
	return r.PDF(ctx, buf.Bytes())
}

// ServiceBillPDF renders a service invoice to PDF.
func (r *Renderer) ServiceBillPDF(ctx context.Context, view ServiceBillView) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.ServiceBill(&buf, view); err != nil {
		return nil, err
	}
	return r.PDF(ctx, buf.Bytes())
}

// PDF converts rendered HTML on A4 paper.
func (r *Renderer) PDF(ctx context.Context, html []byte) ([]byte, error) {
	if r.pdf == nil {
		return nil, ErrPDFUnavailable
	}
	return r.pdf.RenderHTML(ctx, html, report.A4)
}
