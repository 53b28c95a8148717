// Package orders owns storefront orders and quotation requests.
package orders

import (
	"encoding/json"
	"time"

	"github.com/printhouse/textile-erp/internal/pricing"
)

// Status represents the lifecycle of an order.
type Status string

const (
	StatusSubmitted      Status = "SUBMITTED"
	StatusInvoicePending Status = "INVOICE_PENDING"
	StatusInvoiced       Status = "INVOICED"
	StatusPaymentPending Status = "PAYMENT_PENDING"
	StatusPaid           Status = "PAID"
	StatusInProduction   Status = "IN_PRODUCTION"
	StatusReady          Status = "READY"
	StatusCompleted      Status = "COMPLETED"
	StatusCancelled      Status = "CANCELLED"
)

// forward lists the single allowed successor of every non-terminal status.
var forward = map[Status]Status{
	StatusSubmitted:      StatusInvoicePending,
	StatusInvoicePending: StatusInvoiced,
	StatusInvoiced:       StatusPaymentPending,
	StatusPaymentPending: StatusPaid,
	StatusPaid:           StatusInProduction,
	StatusInProduction:   StatusReady,
	StatusReady:          StatusCompleted,
}

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	_, ok := forward[s]
	return ok || s == StatusCompleted || s == StatusCancelled
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Next returns the forward successor, if any.
func (s Status) Next() (Status, bool) {
	next, ok := forward[s]
	return next, ok
}

// CanTransitionTo allows the next forward step, or cancellation from any
// non-terminal status.
func (s Status) CanTransitionTo(to Status) bool {
	if s.IsTerminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	next, ok := forward[s]
	return ok && next == to
}

// Kind separates firm orders from quotation requests awaiting a manual price.
type Kind string

const (
	KindOrder     Kind = "ORDER"
	KindQuotation Kind = "QUOTATION"
)

// PaymentMethod is how the customer settles the order.
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentInstapay     PaymentMethod = "instapay"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
)

// IsValid reports whether m is a supported payment method.
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentCash, PaymentInstapay, PaymentBankTransfer:
		return true
	default:
		return false
	}
}

// RequiresProof reports whether a payment proof must accompany the order.
func (m PaymentMethod) RequiresProof() bool {
	return m == PaymentInstapay
}

// Order is a customer order or quotation request.
type Order struct {
	ID              int64         `json:"id"`
	UserID          int64         `json:"user_id"`
	CustomerType    string        `json:"customer_type"`
	Kind            Kind          `json:"kind"`
	Status          Status        `json:"status"`
	PaymentMethod   PaymentMethod `json:"payment_method,omitempty"`
	PaymentProofRef *string       `json:"payment_proof_ref,omitempty"`
	InvoiceRef      *string       `json:"invoice_ref,omitempty"`
	Notes           string        `json:"notes,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	Lines           []Line        `json:"lines"`
}

// Total sums the line totals.
func (o Order) Total() pricing.Money {
	var total pricing.Money
	for _, l := range o.Lines {
		total += l.TotalPrice
	}
	return total
}

// Line is one design on one fabric. TotalPrice always equals UnitPrice * Quantity.
type Line struct {
	ID         int64                `json:"id"`
	OrderID    int64                `json:"order_id"`
	LineNo     int                  `json:"line_no"`
	Design     pricing.DesignChoice `json:"-"`
	Fabric     pricing.FabricChoice `json:"-"`
	Quantity   int                  `json:"quantity"`
	UnitPrice  pricing.Money        `json:"unit_price"`
	TotalPrice pricing.Money        `json:"total_price"`
	Notes      string               `json:"notes,omitempty"`
}

// SetPrice sets the unit price and derives the total.
func (l *Line) SetPrice(unit pricing.Money) {
	l.UnitPrice = unit
	l.TotalPrice = unit * pricing.Money(l.Quantity)
}

// MarshalJSON renders the choices in their flat tagged form.
func (l Line) MarshalJSON() ([]byte, error) {
	type plain Line
	out := struct {
		plain
		Design *pricing.DesignInput `json:"design"`
		Fabric pricing.FabricInput  `json:"fabric"`
	}{plain: plain(l), Fabric: pricing.EncodeFabric(l.Fabric)}
	if l.Design != nil {
		d := pricing.EncodeDesign(l.Design)
		out.Design = &d
	}
	return json.Marshal(out)
}
