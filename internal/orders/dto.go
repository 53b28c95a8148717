package orders

import "github.com/printhouse/textile-erp/internal/pricing"

// LineInput is one requested line, in flat wire form.
type LineInput struct {
	Design   *pricing.DesignInput `json:"design"`
	Fabric   pricing.FabricInput  `json:"fabric"`
	Quantity int                  `json:"quantity" validate:"gte=0,lte=100000"`
	Notes    string               `json:"notes" validate:"max=1000"`
}

// CreateOrderRequest is the storefront order payload.
type CreateOrderRequest struct {
	CustomerType    string        `json:"customer_type" validate:"required,max=50"`
	PaymentMethod   PaymentMethod `json:"payment_method" validate:"required"`
	PaymentProofRef string        `json:"payment_proof_ref" validate:"max=500"`
	Notes           string        `json:"notes" validate:"max=2000"`
	Lines           []LineInput   `json:"lines" validate:"required,min=1,max=50,dive"`
}

// CreateOrderInput is CreateOrderRequest bound to the caller.
type CreateOrderInput struct {
	UserID         int64
	IdempotencyKey string
	CreateOrderRequest
}

// QuotationRequest asks the factory for a manual price.
type QuotationRequest struct {
	CustomerType string      `json:"customer_type" validate:"required,max=50"`
	Notes        string      `json:"notes" validate:"max=2000"`
	Lines        []LineInput `json:"lines" validate:"required,min=1,max=50,dive"`
}

// QuotationInput is QuotationRequest bound to the caller.
type QuotationInput struct {
	UserID         int64
	IdempotencyKey string
	QuotationRequest
}

// RepeatOrderRequest clones a previous order.
type RepeatOrderRequest struct {
	CustomerType string `json:"customer_type" validate:"required,max=50"`
}

// QuotedLine is the admin's price for one quotation line.
type QuotedLine struct {
	LineID    int64                `json:"line_id" validate:"required,gt=0"`
	UnitPrice pricing.Money        `json:"unit_price" validate:"gte=0"`
	Quantity  *int                 `json:"quantity" validate:"omitempty,gte=1"`
	Design    *pricing.DesignInput `json:"design"`
}

// FinalizeQuotationRequest converts a quotation into a firm order.
type FinalizeQuotationRequest struct {
	PaymentMethod PaymentMethod `json:"payment_method" validate:"required"`
	Lines         []QuotedLine  `json:"lines" validate:"required,min=1,dive"`
}

// UpdateStatusRequest moves an order through its lifecycle.
type UpdateStatusRequest struct {
	Status Status `json:"status" validate:"required"`
}

// ListFilter narrows the admin order list.
type ListFilter struct {
	Status Status
	Kind   Kind
	UserID int64
	Limit  int
}

// PriceQuote is a live price for a possibly incomplete line.
type PriceQuote struct {
	Complete        bool          `json:"complete"`
	Deferred        bool          `json:"deferred"`
	UnitPrice       pricing.Money `json:"unit_price"`
	TotalPrice      pricing.Money `json:"total_price"`
	MinimumQuantity int           `json:"minimum_quantity"`
}
