package billing

import (
	"github.com/shopspring/decimal"

	"github.com/printhouse/textile-erp/internal/pricing"
	"github.com/printhouse/textile-erp/internal/production"
)

var hundred = decimal.NewFromInt(100)

func validPercent(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThanOrEqual(hundred)
}

// LineFromRun converts an approved run into an invoice line.
func LineFromRun(run production.Run) Line {
	return Line{
		RunID:         run.ID,
		OrderID:       run.OrderID,
		DesignRef:     run.DesignRef,
		Fabric:        run.Fabric,
		TotalMeters:   run.TotalMeters,
		PricePerMeter: run.PricePerMeter,
		LineTotal:     run.LineTotal(),
	}
}

// ComputeTotals derives invoice figures from its lines. Each step rounds once,
// so subtotal - discount + vat always equals total.
func ComputeTotals(lines []Line, discountPct, vatPct decimal.Decimal) Totals {
	var subtotal pricing.Money
	for _, l := range lines {
		subtotal += l.LineTotal
	}
	discount := pricing.Percent(subtotal, discountPct)
	after := subtotal - discount
	vat := pricing.Percent(after, vatPct)
	return Totals{
		Subtotal:       subtotal,
		DiscountPct:    discountPct,
		DiscountAmount: discount,
		AfterDiscount:  after,
		VatPct:         vatPct,
		VatAmount:      vat,
		Total:          after + vat,
	}
}
