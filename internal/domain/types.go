package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Product is a catalog entry with per color and size stock.
type Product struct {
	ID            string
	Code          string
	Name          string
	Price         int64
	OriginalPrice int64
	Currency      string
	CategoryID    string
	Images        []string
	Colors        []ColorVariant
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ColorVariant is a purchasable appearance of a product with its own size stock.
type ColorVariant struct {
	Name   string
	Hex    string
	Images []string
	Sizes  []SizeStock
}

// SizeStock records the on-hand units for a single size.
type SizeStock struct {
	Size  string
	Stock int
}

// Color returns the named variant, or the first variant when name is empty.
func (p Product) Color(name string) (ColorVariant, bool) {
	if len(p.Colors) == 0 {
		return ColorVariant{}, false
	}
	if name == "" {
		return p.Colors[0], true
	}
	for _, c := range p.Colors {
		if c.Name == name {
			return c, true
		}
	}
	return ColorVariant{}, false
}

// Stock returns the units on hand for size, and whether the size exists.
func (c ColorVariant) Stock(size string) (int, bool) {
	for _, s := range c.Sizes {
		if s.Size == size {
			return s.Stock, true
		}
	}
	return 0, false
}

// PrimaryImage returns the first image of the color, falling back to the product images.
func (p Product) PrimaryImage(color string) string {
	if variant, ok := p.Color(color); ok && len(variant.Images) > 0 {
		return variant.Images[0]
	}
	if len(p.Images) > 0 {
		return p.Images[0]
	}
	return ""
}

// CartOwner identifies who a cart belongs to. Exactly one field is set.
type CartOwner struct {
	UserID    string
	SessionID string
}

// IsGuest reports whether the owner is an anonymous session.
func (o CartOwner) IsGuest() bool {
	return o.UserID == "" && o.SessionID != ""
}

// Key returns the storage key of the owner's cart.
func (o CartOwner) Key() string {
	if o.UserID != "" {
		return "user:" + o.UserID
	}
	if o.SessionID != "" {
		return "session:" + o.SessionID
	}
	return ""
}

// Cart is the mutable pre-purchase basket.
type Cart struct {
	ID        string
	Owner     CartOwner
	Currency  string
	Items     []CartItem
	Coupon    *AppliedDiscount
	Voucher   *AppliedDiscount
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem is one (product, color, size) line of a cart.
type CartItem struct {
	ID        string
	ProductID string
	Color     string
	Size      string
	Quantity  int
	AddedAt   time.Time
	UpdatedAt *time.Time
}

// LineKey returns the identity used to merge identical lines.
func (i CartItem) LineKey() string {
	return i.ProductID + "|" + i.Color + "|" + i.Size
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending is the initial state of every order.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusProcessing means payment was secured or cash on delivery was chosen.
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	// OrderStatusCancelled is terminal.
	OrderStatusCancelled OrderStatus = "CANCELLED"
	// OrderStatusFailed marks a failed payment; the order may be retried back to pending.
	OrderStatusFailed OrderStatus = "FAILED"
	// OrderStatusReturned is terminal.
	OrderStatusReturned OrderStatus = "RETURNED"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered,
		OrderStatusCancelled, OrderStatusFailed, OrderStatusReturned:
		return true
	}
	return false
}

// Order is the immutable record created from a cart.
type Order struct {
	ID                string
	OrderNumber       string
	UserID            string
	Status            OrderStatus
	Currency          string
	Items             []OrderLine
	Totals            OrderTotals
	Coupon            *AppliedDiscount
	Voucher           *AppliedDiscount
	ShippingAddress   Address
	BillingAddress    Address
	PaymentMethod     string
	Notes             string
	EstimatedDelivery *time.Time
	TrackingNumber    string
	CancelReason      string
	ReturnReason      string
	StockReserved     bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ShippedAt         *time.Time
	DeliveredAt       *time.Time
	CancelledAt       *time.Time
	ReturnedAt        *time.Time
}

// OrderTotals holds rolled-up monetary fields in the smallest currency unit.
type OrderTotals struct {
	Subtotal int64
	Discount int64
	Shipping int64
	Tax      int64
	Total    int64
}

// OrderLine mirrors a cart line at the instant the order was placed.
type OrderLine struct {
	ProductID   string
	ProductName string
	ProductCode string
	Image       string
	Color       string
	Size        string
	Quantity    int
	UnitPrice   int64
	LineTotal   int64
	// Reserved is the number of units currently held against stock for this line.
	Reserved int
}

// ItemCount returns the total number of units in the order.
func (o Order) ItemCount() int {
	count := 0
	for _, line := range o.Items {
		count += line.Quantity
	}
	return count
}

// PaymentStatus enumerates gateway driven payment states.
type PaymentStatus string

const (
	PaymentStatusCreated           PaymentStatus = "CREATED"
	PaymentStatusPending           PaymentStatus = "PENDING"
	PaymentStatusCaptured          PaymentStatus = "CAPTURED"
	PaymentStatusFailed            PaymentStatus = "FAILED"
	PaymentStatusRefunded          PaymentStatus = "REFUNDED"
	PaymentStatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

// PaymentMethodCOD is the cash on delivery method that bypasses the gateway.
const PaymentMethodCOD = "cod"

// Payment tracks the gateway state of an order's payment.
type Payment struct {
	ID               string
	OrderID          string
	UserID           string
	GatewayOrderID   string
	GatewayPaymentID string
	Receipt          string
	ClientSecret     string
	Amount           int64
	Currency         string
	Method           string
	Status           PaymentStatus
	FailureReason    string
	// RefundRequired marks money captured for an order that was already closed.
	RefundRequired bool
	Refunds        []Refund
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CapturedAt     *time.Time
}

// RefundedAmount sums the amounts of all successful refunds.
func (p Payment) RefundedAmount() int64 {
	var total int64
	for _, r := range p.Refunds {
		if r.Status != RefundStatusFailed {
			total += r.Amount
		}
	}
	return total
}

// RefundStatus enumerates refund states reported by the gateway.
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "PENDING"
	RefundStatusSucceeded RefundStatus = "SUCCEEDED"
	RefundStatusFailed    RefundStatus = "FAILED"
)

// Refund is a single refund recorded against a payment.
type Refund struct {
	ID              string
	GatewayRefundID string
	Amount          int64
	Reason          string
	Status          RefundStatus
	CreatedAt       time.Time
}

// Address represents postal address structures shared by carts and orders.
type Address struct {
	Recipient  string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
}
