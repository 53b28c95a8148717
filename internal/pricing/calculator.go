package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/printhouse/textile-erp/internal/catalog"
)

// Selection is a design and fabric choice with catalog rows already resolved.
// Preset must match an ExistingDesign and FactoryFabric a FactorySource;
// anything unresolved prices as zero.
type Selection struct {
	Design        DesignChoice
	Preset        *catalog.PresetDesign
	Fabric        FabricChoice
	FactoryFabric *catalog.FactoryFabric
}

// Calculator prices order lines.
type Calculator struct {
	// UploadBasePrice is the baseline unit price for uploaded and repeated designs.
	UploadBasePrice decimal.Decimal
}

// NewCalculator builds a calculator with the given upload/repeat baseline.
func NewCalculator(uploadBasePrice decimal.Decimal) Calculator {
	return Calculator{UploadBasePrice: uploadBasePrice}
}

// UnitPrice returns the rounded unit price for a selection. Zero means the
// selection is incomplete or the price is deferred to a manual quotation.
func (c Calculator) UnitPrice(sel Selection) Money {
	if sel.Design == nil || !sel.Fabric.Complete() {
		return 0
	}
	if sel.Fabric.PriceDeferred() {
		return 0
	}

	var base decimal.Decimal
	switch d := sel.Design.(type) {
	case ExistingDesign:
		if sel.Preset == nil || sel.Preset.ID != d.PresetID {
			return 0
		}
		base = sel.Preset.BasePricePerUnit
	case UploadedDesign, RepeatDesign:
		base = c.UploadBasePrice
	default:
		return 0
	}

	src, ok := sel.Fabric.Source.(FactorySource)
	if !ok || sel.FactoryFabric == nil || sel.FactoryFabric.ID != src.FabricID {
		return 0
	}
	return RoundMoney(base.Add(sel.FactoryFabric.PricePerMeter))
}

// LinePrice returns the unit price and the line total for quantity units.
func (c Calculator) LinePrice(sel Selection, quantity int) (unit, total Money) {
	unit = c.UnitPrice(sel)
	return unit, LineTotal(unit, decimal.NewFromInt(int64(quantity)))
}

// MinimumQuantity returns the smallest orderable quantity in meters.
// factory is consulted only for full orders on factory fabric.
func MinimumQuantity(fabric FabricChoice, factory *catalog.FactoryFabric) int {
	if fabric.OrderType == OrderSample {
		switch fabric.Type {
		case FabricSublimation:
			return 1
		case FabricNatural:
			return 5
		}
		return 1
	}
	if fabric.OrderType == OrderFull {
		if _, ok := fabric.Source.(FactorySource); ok && factory != nil && factory.MinimumQuantity > 0 {
			return factory.MinimumQuantity
		}
	}
	return 1
}
