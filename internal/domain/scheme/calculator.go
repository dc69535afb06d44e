package scheme

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var zero = decimal.Zero

// OverriddenPrefix starts the description of every manually overridden benefit.
const OverriddenPrefix = "[Overridden] "

// basket is the part of the cart a single scheme applies to.
type basket struct {
	lines    []CartLine
	total    decimal.Decimal
	quantity int
}

// benefit is the outcome of one scheme rule before it becomes an AppliedScheme.
type benefit struct {
	discount     decimal.Decimal
	freeQuantity int
	freeProducts []FreeProduct
	description  string
}

func (b benefit) empty() bool {
	return !b.discount.IsPositive() && b.freeQuantity <= 0 && len(b.freeProducts) == 0
}

// Calculate evaluates every candidate scheme against the cart in order and
// aggregates the benefits. Overrides take precedence over computed benefits;
// overrides may be nil. Malformed schemes contribute nothing. Inputs are not
// modified and no rounding is applied.
func Calculate(candidates []Scheme, lines []CartLine, overrides Overrides) Result {
	res := Result{
		AppliedSchemes: []AppliedScheme{},
		TotalDiscount:  zero,
		TotalFreeGoods: []FreeProduct{},
		OriginalTotal:  zero,
	}

	for _, sc := range candidates {
		b := newBasket(sc, lines)
		if len(b.lines) == 0 {
			continue
		}

		var out benefit
		if manual, reason, ok := lookup(overrides, sc.ID); ok {
			out = overridden(manual, reason)
		} else {
			out = evaluate(sc, b, lines)
		}
		if out.empty() {
			continue
		}

		res.AppliedSchemes = append(res.AppliedSchemes, applied(sc, b, out))
		res.TotalDiscount = res.TotalDiscount.Add(out.discount)
		res.TotalFreeGoods = append(res.TotalFreeGoods, out.freeProducts...)
	}

	for _, line := range lines {
		res.OriginalTotal = res.OriginalTotal.Add(line.LineTotal)
	}
	res.DiscountedTotal = res.OriginalTotal.Sub(res.TotalDiscount)

	return res
}

func newBasket(sc Scheme, lines []CartLine) basket {
	b := basket{lines: relevantLines(sc, lines), total: zero}
	for _, line := range b.lines {
		b.total = b.total.Add(line.LineTotal)
		b.quantity += line.Quantity
	}
	return b
}

func lookup(overrides Overrides, schemeID string) (BenefitOverride, string, bool) {
	if overrides == nil {
		return BenefitOverride{}, "", false
	}
	return overrides.Lookup(schemeID)
}

func overridden(manual BenefitOverride, reason string) benefit {
	out := benefit{discount: zero, description: OverriddenPrefix + reason}
	if manual.DiscountAmount != nil {
		out.discount = *manual.DiscountAmount
	}
	if manual.FreeQuantity != nil {
		out.freeQuantity = *manual.FreeQuantity
	}
	return out
}

// evaluate dispatches on the scheme type. The switch is checked for
// exhaustiveness by the linter; unknown types produce no benefit.
func evaluate(sc Scheme, b basket, cart []CartLine) benefit {
	switch sc.Type {
	case TypeSlab:
		return slab(sc, b)
	case TypeBuyXGetY:
		return buyXGetY(sc, b)
	case TypeBillWise:
		return billWise(sc, b)
	case TypeVolume:
		return volume(sc, b)
	case TypeProduct:
		return percentOff(sc, b, "%s%% off")
	case TypeCombo:
		return combo(sc, b, cart)
	case TypeDisplay:
		return percentOff(sc, b, "%s%% display discount")
	case TypeOpening:
		return percentOff(sc, b, "%s%% opening discount")
	default:
		return benefit{discount: zero}
	}
}

func slab(sc Scheme, b basket) benefit {
	for _, band := range sc.SlabConfig {
		if b.quantity < band.MinQty || b.quantity > band.MaxQty {
			continue
		}
		switch sc.BenefitType {
		case BenefitDiscount:
			return benefit{
				discount:    percentOf(b.total, band.BenefitValue),
				description: fmt.Sprintf("%s%% off on %d units", band.BenefitValue, b.quantity),
			}
		case BenefitFreeQty:
			qty := int(band.BenefitValue.IntPart())
			return benefit{
				discount:     zero,
				freeQuantity: qty,
				description:  fmt.Sprintf("%d free units on %d units", qty, b.quantity),
			}
		case BenefitCashback, BenefitPoints, BenefitCoupon:
		}
		// First matching band wins even when its benefit type is unsupported.
		break
	}
	return benefit{discount: zero}
}

func buyXGetY(sc Scheme, b basket) benefit {
	minQty := sc.MinQuantity
	if minQty <= 0 {
		minQty = 1
	}
	if b.quantity < minQty || sc.FreeQuantity <= 0 {
		return benefit{discount: zero}
	}

	sets := b.quantity / minQty
	qty := sets * sc.FreeQuantity
	first := b.lines[0]

	return benefit{
		discount:     zero,
		freeQuantity: qty,
		freeProducts: []FreeProduct{{
			ProductID:   first.ProductID,
			ProductName: first.ProductName,
			Quantity:    qty,
		}},
		description: fmt.Sprintf("Buy %d get %d free (%d sets)", minQty, sc.FreeQuantity, sets),
	}
}

func billWise(sc Scheme, b basket) benefit {
	if b.total.LessThan(sc.MinOrderValue) {
		return benefit{discount: zero}
	}

	switch sc.BenefitType {
	case BenefitDiscount:
		if sc.DiscountPercent.IsZero() {
			return benefit{discount: zero}
		}
		amount := percentOf(b.total, sc.DiscountPercent)
		// A zero cap means uncapped.
		if sc.MaxBenefit.IsPositive() && amount.GreaterThan(sc.MaxBenefit) {
			amount = sc.MaxBenefit
		}
		return benefit{
			discount:    amount,
			description: fmt.Sprintf("%s%% off on bill value %s", sc.DiscountPercent, b.total),
		}
	case BenefitCashback:
		return benefit{
			discount:    sc.MaxBenefit,
			description: fmt.Sprintf("%s cashback on bill value %s", sc.MaxBenefit, b.total),
		}
	case BenefitFreeQty, BenefitPoints, BenefitCoupon:
	}
	return benefit{discount: zero}
}

func volume(sc Scheme, b basket) benefit {
	if b.quantity < sc.MinQuantity || sc.DiscountPercent.IsZero() {
		return benefit{discount: zero}
	}
	return benefit{
		discount:    percentOf(b.total, sc.DiscountPercent),
		description: fmt.Sprintf("%s%% volume discount on %d units", sc.DiscountPercent, b.quantity),
	}
}

// combo requires every applicable product somewhere in the whole cart, while
// the discount is computed on the scheme's relevant lines only. A combo with
// no applicable products is malformed.
func combo(sc Scheme, b basket, cart []CartLine) benefit {
	if len(sc.ApplicableProducts) == 0 {
		return benefit{discount: zero}
	}
	present := make(map[string]struct{}, len(cart))
	for _, line := range cart {
		present[line.ProductID] = struct{}{}
	}
	for _, id := range sc.ApplicableProducts {
		if _, ok := present[id]; !ok {
			return benefit{discount: zero}
		}
	}
	return percentOff(sc, b, "Combo offer: %s%% off")
}

func percentOff(sc Scheme, b basket, format string) benefit {
	if sc.DiscountPercent.IsZero() {
		return benefit{discount: zero}
	}
	return benefit{
		discount:    percentOf(b.total, sc.DiscountPercent),
		description: fmt.Sprintf(format, sc.DiscountPercent),
	}
}

// percentOf returns amount * percent / 100 without rounding.
func percentOf(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Shift(-2)
}

func applied(sc Scheme, b basket, out benefit) AppliedScheme {
	products := make([]string, len(b.lines))
	for i, line := range b.lines {
		products[i] = line.ProductID
	}
	free := out.freeProducts
	if free == nil {
		free = []FreeProduct{}
	}
	return AppliedScheme{
		SchemeID:          sc.ID,
		SchemeName:        sc.Name,
		SchemeCode:        sc.Code,
		SchemeType:        sc.Type,
		BenefitType:       sc.BenefitType,
		DiscountAmount:    out.discount,
		FreeQuantity:      out.freeQuantity,
		FreeProducts:      free,
		AppliedToProducts: products,
		Description:       out.description,
	}
}
