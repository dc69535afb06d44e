// Package scheme holds the trade promotion model together with the pure
// selection and benefit calculation rules applied to a cart.
package scheme

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type enumerates the supported promotion mechanics.
type Type string

const (
	// TypeSlab grants the benefit of the quantity band the cart falls into.
	TypeSlab Type = "slab"
	// TypeBuyXGetY grants free units for every full set of purchased units.
	TypeBuyXGetY Type = "buy_x_get_y"
	// TypeCombo discounts the cart when every listed product is present.
	TypeCombo Type = "combo"
	// TypeBillWise discounts the cart once its value reaches a threshold.
	TypeBillWise Type = "bill_wise"
	// TypeDisplay is a merchandising display incentive.
	TypeDisplay Type = "display"
	// TypeVolume discounts the cart once its quantity reaches a threshold.
	TypeVolume Type = "volume"
	// TypeProduct is a flat product-level percentage discount.
	TypeProduct Type = "product"
	// TypeOpening is an outlet opening incentive.
	TypeOpening Type = "opening"
)

// Types returns every known scheme type in declaration order.
func Types() []Type {
	return []Type{
		TypeSlab, TypeBuyXGetY, TypeCombo, TypeBillWise,
		TypeDisplay, TypeVolume, TypeProduct, TypeOpening,
	}
}

// BenefitType enumerates what a scheme grants.
type BenefitType string

const (
	BenefitDiscount BenefitType = "discount"
	BenefitFreeQty  BenefitType = "free_qty"
	BenefitCashback BenefitType = "cashback"
	BenefitPoints   BenefitType = "points"
	BenefitCoupon   BenefitType = "coupon"
)

// Applicability enumerates which customers a scheme targets.
type Applicability string

const (
	ApplicableAllOutlets  Applicability = "all_outlets"
	ApplicableDistributor Applicability = "distributor"
	ApplicableRetailer    Applicability = "retailer"
	ApplicableSegment     Applicability = "segment"
	ApplicableArea        Applicability = "area"
	ApplicableZone        Applicability = "zone"
)

// StatusActive is the only status under which a scheme may be selected.
const StatusActive = "active"

// Slab is one quantity band of a slab scheme. Bands of a scheme must not
// overlap; the first matching band wins.
type Slab struct {
	MinQty       int             `json:"minQty"`
	MaxQty       int             `json:"maxQty"`
	BenefitValue decimal.Decimal `json:"benefitValue"`
}

// Scheme is an operator-authored promotion definition. Zero values of the
// scalar parameters mean "not set".
type Scheme struct {
	ID            string        `json:"id"`
	Code          string        `json:"code,omitempty"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	Type          Type          `json:"type"`
	BenefitType   BenefitType   `json:"benefitType"`
	Applicability Applicability `json:"applicability"`
	Status        string        `json:"status"`
	StartDate     time.Time     `json:"startDate"`
	EndDate       time.Time     `json:"endDate"`

	// EligibleSKUs restricts the scheme to these product ids. Empty means
	// every cart line is relevant.
	EligibleSKUs []string `json:"eligibleSkus"`
	SlabConfig   []Slab   `json:"slabConfig"`

	MinQuantity     int             `json:"minQuantity"`
	FreeQuantity    int             `json:"freeQuantity"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	MinOrderValue   decimal.Decimal `json:"minOrderValue"`
	// MaxBenefit caps monetary benefit. Zero means uncapped.
	MaxBenefit         decimal.Decimal `json:"maxBenefit"`
	ApplicableProducts []string        `json:"applicableProducts"`
}

// CartLine is one item of the cart under evaluation.
type CartLine struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
	SKU         string          `json:"sku"`
	Category    string          `json:"category,omitempty"`
}

// CustomerType distinguishes the two kinds of buying outlets.
type CustomerType string

const (
	CustomerDistributor CustomerType = "distributor"
	CustomerRetailer    CustomerType = "retailer"
)

// Customer is the buyer context a cart is evaluated for.
type Customer struct {
	Type CustomerType `json:"type"`
	// Category is an optional free-text segment label.
	Category string `json:"category,omitempty"`
}

// FreeProduct is a zero-priced addition granted by a scheme.
type FreeProduct struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
}

// AppliedScheme records the benefit one scheme produced for the cart.
type AppliedScheme struct {
	SchemeID          string          `json:"schemeId"`
	SchemeName        string          `json:"schemeName"`
	SchemeCode        string          `json:"schemeCode,omitempty"`
	SchemeType        Type            `json:"schemeType"`
	BenefitType       BenefitType     `json:"benefitType"`
	DiscountAmount    decimal.Decimal `json:"discountAmount"`
	FreeQuantity      int             `json:"freeQuantity"`
	FreeProducts      []FreeProduct   `json:"freeProducts"`
	AppliedToProducts []string        `json:"appliedToProducts"`
	Description       string          `json:"description"`
}

// Result aggregates every applied scheme for one cart evaluation.
type Result struct {
	AppliedSchemes  []AppliedScheme `json:"appliedSchemes"`
	TotalDiscount   decimal.Decimal `json:"totalDiscount"`
	TotalFreeGoods  []FreeProduct   `json:"totalFreeGoods"`
	OriginalTotal   decimal.Decimal `json:"originalTotal"`
	DiscountedTotal decimal.Decimal `json:"discountedTotal"`
}

// BenefitOverride is a manually entered replacement benefit. Nil fields are
// treated as zero when the override is applied.
type BenefitOverride struct {
	DiscountAmount *decimal.Decimal `json:"discountAmount,omitempty"`
	FreeQuantity   *int             `json:"freeQuantity,omitempty"`
}

// Overrides is a read-only view of the manual overrides active for a
// calculation, keyed by scheme id.
type Overrides interface {
	Lookup(schemeID string) (benefit BenefitOverride, reason string, ok bool)
}
