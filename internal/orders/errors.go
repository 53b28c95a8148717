package orders

import (
	"fmt"

	"github.com/printhouse/textile-erp/internal/shared"
)

// Domain errors for orders.
var (
	ErrOrderNotFound = fmt.Errorf("order %w", shared.ErrNotFound)
	ErrNotOwner      = fmt.Errorf("order belongs to another customer: %w", shared.ErrForbidden)

	// Validation errors.
	ErrNoLines              = fmt.Errorf("%w: at least one line is required", shared.ErrValidation)
	ErrDesignRequired       = fmt.Errorf("%w: a resolved design is required", shared.ErrValidation)
	ErrQuotationRequired    = fmt.Errorf("%w: customer or undecided fabric needs a quotation request", shared.ErrValidation)
	ErrFactoryNotQuotable   = fmt.Errorf("%w: factory fabric lines are priced directly", shared.ErrValidation)
	ErrInvalidPayment       = fmt.Errorf("%w: unsupported payment method", shared.ErrValidation)
	ErrPaymentProofRequired = fmt.Errorf("%w: instapay orders need a payment proof", shared.ErrValidation)
	ErrBelowMinimum         = fmt.Errorf("%w: quantity below minimum", shared.ErrValidation)
	ErrUnknownPreset        = fmt.Errorf("%w: unknown preset design", shared.ErrValidation)
	ErrUnknownFabric        = fmt.Errorf("%w: unknown factory fabric", shared.ErrValidation)
	ErrInvalidQuotePrice    = fmt.Errorf("%w: quoted prices must cover every line and be non-negative", shared.ErrValidation)

	// Status errors.
	ErrInvalidTransition = fmt.Errorf("order status %w", shared.ErrInvalidState)
	ErrNotOpenQuotation  = fmt.Errorf("order is not an open quotation: %w", shared.ErrInvalidState)
	ErrStatusChanged     = fmt.Errorf("order changed concurrently: %w", shared.ErrConcurrentModification)
)
