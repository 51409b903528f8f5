package domain

import "time"

// DiscountKind distinguishes the two slots a cart can hold.
type DiscountKind string

const (
	DiscountKindCoupon  DiscountKind = "coupon"
	DiscountKindVoucher DiscountKind = "voucher"
)

// DiscountType selects the calculation applied by a discount.
type DiscountType string

const (
	// DiscountTypePercentage takes Value percent of the subtotal.
	DiscountTypePercentage DiscountType = "percentage"
	// DiscountTypeFixed takes Value minor units off the subtotal.
	DiscountTypeFixed DiscountType = "fixed"
	// DiscountTypeBuyXGetY gives the cheapest eligible units away for free.
	DiscountTypeBuyXGetY DiscountType = "buyXgetY"
)

// Discount is a coupon or voucher definition together with its usage counters.
type Discount struct {
	ID                   string
	Code                 string
	Description          string
	Kind                 DiscountKind
	Type                 DiscountType
	Value                float64
	MinPurchase          *int64
	MaxDiscount          *int64
	BuyX                 int
	GetY                 int
	ApplicableCategories []string
	ExcludedProducts     []string
	ValidFrom            time.Time
	ValidUntil           time.Time
	UsageLimit           *int
	UsedCount            int
	UsedBy               []string
	Active               bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// AppliedDiscount is the denormalized snapshot of a discount computation stored on carts and orders.
type AppliedDiscount struct {
	DiscountID string
	Code       string
	Kind       DiscountKind
	Type       DiscountType
	Amount     int64
}

// PricedLine is a cart line joined with its live product data.
type PricedLine struct {
	ItemID      string
	ProductID   string
	ProductName string
	ProductCode string
	CategoryID  string
	Image       string
	Color       string
	Size        string
	Quantity    int
	UnitPrice   int64
	LineTotal   int64
	Available   int
	Active      bool
}

// PricingBreakdown captures the aggregated monetary results of pricing a cart.
type PricingBreakdown struct {
	Currency string
	Subtotal int64
	Coupon   int64
	Voucher  int64
	Discount int64
	Shipping int64
	Tax      int64
	Total    int64
}
