// Package catalog owns the preset design and factory fabric price lists.
package catalog

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/printhouse/textile-erp/internal/shared"
)

// Domain errors for the catalog.
var (
	ErrPresetNotFound = fmt.Errorf("preset design %w", shared.ErrNotFound)
	ErrFabricNotFound = fmt.Errorf("factory fabric %w", shared.ErrNotFound)
	ErrNegativePrice  = fmt.Errorf("%w: price cannot be negative", shared.ErrValidation)
)

// PresetDesign is a ready-made print design sold at a fixed base price per unit.
// A non-nil SolePropertyClientID marks the design as exclusive to one client.
type PresetDesign struct {
	ID                     int64           `json:"id"`
	Name                   string          `json:"name"`
	Description            string          `json:"description"`
	BasePricePerUnit       decimal.Decimal `json:"base_price_per_unit"`
	ImageURL               string          `json:"image_url"`
	SolePropertyClientID   *int64          `json:"sole_property_client_id,omitempty"`
	SolePropertyClientName *string         `json:"sole_property_client_name,omitempty"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// IsSoleProperty reports whether the design is licensed to a single client.
func (p PresetDesign) IsSoleProperty() bool {
	return p.SolePropertyClientID != nil
}

// FactoryFabric is a fabric SKU supplied by the factory.
type FactoryFabric struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Type            string          `json:"type"`
	PricePerMeter   decimal.Decimal `json:"price_per_meter"`
	MinimumQuantity int             `json:"minimum_quantity"`
	CreatedAt       time.Time       `json:"created_at"`
}

// PresetDesignInput carries the editable preset design fields.
type PresetDesignInput struct {
	Name                   string          `json:"name" validate:"required,max=200"`
	Description            string          `json:"description" validate:"max=2000"`
	BasePricePerUnit       decimal.Decimal `json:"base_price_per_unit"`
	ImageURL               string          `json:"image_url" validate:"omitempty,url"`
	SolePropertyClientID   *int64          `json:"sole_property_client_id" validate:"omitempty,gt=0"`
	SolePropertyClientName *string         `json:"sole_property_client_name" validate:"omitempty,max=200"`
}

// FactoryFabricInput carries the fields for a new factory fabric.
type FactoryFabricInput struct {
	Name            string          `json:"name" validate:"required,max=200"`
	Type            string          `json:"type" validate:"required,oneof=sublimation natural"`
	PricePerMeter   decimal.Decimal `json:"price_per_meter"`
	MinimumQuantity int             `json:"minimum_quantity" validate:"gte=1"`
}
