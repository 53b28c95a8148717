// Package billing aggregates approved production runs into customer invoices.
package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/printhouse/textile-erp/internal/pricing"
	"github.com/printhouse/textile-erp/internal/shared"
)

// Status represents invoice lifecycle.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusIssued    Status = "ISSUED"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusIssued, StatusPaid, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks if status can transition to target.
func (s Status) CanTransitionTo(to Status) bool {
	switch s {
	case StatusDraft:
		return to == StatusIssued
	case StatusIssued:
		return to == StatusPaid || to == StatusCancelled
	default:
		return false
	}
}

// Domain errors for invoices.
var (
	ErrInvoiceNotFound   = fmt.Errorf("invoice %w", shared.ErrNotFound)
	ErrInvalidPercent    = fmt.Errorf("%w: percentages must be between 0 and 100", shared.ErrValidation)
	ErrInvalidPeriod     = fmt.Errorf("%w: period end precedes start", shared.ErrValidation)
	ErrNothingToBill     = fmt.Errorf("%w: no approved runs in period", shared.ErrValidation)
	ErrUnknownStatus     = fmt.Errorf("%w: unknown invoice status", shared.ErrValidation)
	ErrInvalidTransition = fmt.Errorf("invoice status %w", shared.ErrInvalidState)
	ErrInvoicePaid       = fmt.Errorf("paid invoices cannot be deleted: %w", shared.ErrInvalidState)
	ErrRunsClaimed       = fmt.Errorf("runs were billed by another invoice: %w", shared.ErrConcurrentModification)
	ErrInvoiceChanged    = fmt.Errorf("invoice changed concurrently: %w", shared.ErrConcurrentModification)
)

// Totals holds the computed money figures of an invoice.
type Totals struct {
	Subtotal       pricing.Money   `json:"subtotal"`
	DiscountPct    decimal.Decimal `json:"discount_pct"`
	DiscountAmount pricing.Money   `json:"discount_amount"`
	AfterDiscount  pricing.Money   `json:"after_discount"`
	VatPct         decimal.Decimal `json:"vat_pct"`
	VatAmount      pricing.Money   `json:"vat_amount"`
	Total          pricing.Money   `json:"total"`
}

// Line is one billed production run.
type Line struct {
	ID            int64           `json:"id,omitempty"`
	InvoiceID     int64           `json:"invoice_id,omitempty"`
	RunID         int64           `json:"run_id"`
	OrderID       int64           `json:"order_id"`
	DesignRef     string          `json:"design_ref"`
	Fabric        string          `json:"fabric"`
	TotalMeters   decimal.Decimal `json:"total_meters"`
	PricePerMeter pricing.Money   `json:"price_per_meter"`
	LineTotal     pricing.Money   `json:"line_total"`
}

// Invoice is a customer bill over a period.
type Invoice struct {
	ID               int64     `json:"id"`
	CustomerEntityID int64     `json:"customer_entity_id"`
	CustomerName     string    `json:"customer_name"`
	BillNumber       int64     `json:"bill_number"`
	PeriodStart      time.Time `json:"period_start"`
	PeriodEnd        time.Time `json:"period_end"`
	Lines            []Line    `json:"lines"`
	Totals
	Status    Status    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ref is the human facing invoice reference stamped on linked orders.
func (inv Invoice) Ref() string {
	return InvoiceRef(inv.CustomerEntityID, inv.BillNumber)
}

// InvoiceRef formats an invoice reference.
func InvoiceRef(customerEntityID, billNumber int64) string {
	return fmt.Sprintf("INV-%d-%04d", customerEntityID, billNumber)
}

// RunIDs lists the runs the invoice bills.
func (inv Invoice) RunIDs() []int64 {
	ids := make([]int64, 0, len(inv.Lines))
	for _, l := range inv.Lines {
		ids = append(ids, l.RunID)
	}
	return ids
}

// OrderIDs lists distinct orders behind the invoice lines, in first-seen order.
func (inv Invoice) OrderIDs() []int64 {
	seen := make(map[int64]struct{}, len(inv.Lines))
	var ids []int64
	for _, l := range inv.Lines {
		if _, ok := seen[l.OrderID]; ok {
			continue
		}
		seen[l.OrderID] = struct{}{}
		ids = append(ids, l.OrderID)
	}
	return ids
}

// DraftParams selects the runs and rates of an invoice.
type DraftParams struct {
	CustomerEntityID int64
	PeriodStart      time.Time
	PeriodEnd        time.Time
	DiscountPct      decimal.Decimal
	VatPct           decimal.Decimal
}

// CreateParams describes an invoice to persist.
type CreateParams struct {
	DraftParams
	AsDraft bool
	Notes   string
}

// ListFilter narrows invoice queries.
type ListFilter struct {
	CustomerEntityID int64
	Status           Status
	Limit            int
}

// Summary is the receivables dashboard figure set.
type Summary struct {
	Receivables pricing.Money `json:"receivables"`
	Collected   pricing.Money `json:"collected"`
}
