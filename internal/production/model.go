// Package production turns firm orders into production runs and tracks their approval.
package production

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/printhouse/textile-erp/internal/pricing"
	"github.com/printhouse/textile-erp/internal/shared"
)

// Status represents the lifecycle of a production run.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusBilled   Status = "BILLED"
	StatusRejected Status = "REJECTED"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusBilled, StatusRejected:
		return true
	default:
		return false
	}
}

// CanDecide reports whether an approval decision may still be taken.
func (s Status) CanDecide() bool {
	return s == StatusPending
}

// Domain errors for production runs.
var (
	ErrRunNotFound       = fmt.Errorf("production run %w", shared.ErrNotFound)
	ErrNotProducible     = fmt.Errorf("only firm, active orders produce runs: %w", shared.ErrInvalidState)
	ErrInvalidTransition = fmt.Errorf("production run %w", shared.ErrInvalidState)
	ErrUnknownStatus     = fmt.Errorf("%w: unknown production run status", shared.ErrValidation)
	ErrRunChanged        = fmt.Errorf("production run changed concurrently: %w", shared.ErrConcurrentModification)
)

// Run is one unit of factory work derived from one order line.
type Run struct {
	ID               int64           `json:"id"`
	OrderID          int64           `json:"order_id"`
	OrderLineID      int64           `json:"order_line_id"`
	SourceKey        uuid.UUID       `json:"source_key"`
	CustomerEntityID int64           `json:"customer_entity_id"`
	DesignRef        string          `json:"design_ref"`
	Fabric           string          `json:"fabric"`
	TotalMeters      decimal.Decimal `json:"total_meters"`
	PricePerMeter    pricing.Money   `json:"price_per_meter"`
	Status           Status          `json:"status"`
	InvoiceID        *int64          `json:"invoice_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// LineTotal is the billable amount of the run.
func (r Run) LineTotal() pricing.Money {
	return pricing.LineTotal(r.PricePerMeter, r.TotalMeters)
}

// RunSourceKey derives the idempotency key of the run for one order line.
func RunSourceKey(orderID, lineID int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("RUN:%d:%d", orderID, lineID)))
}

// ListFilter narrows run queries.
type ListFilter struct {
	Status           Status
	CustomerEntityID int64
	OrderID          int64
	Limit            int
}
