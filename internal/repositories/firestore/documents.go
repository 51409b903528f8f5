package firestore

import (
	"time"

	domain "github.com/Rohansunwar5/sweety-server-sub000/internal/domain"
)

// Persisted shapes. Conversions live next to the document types so repositories stay small.

type productDocument struct {
	Code          string          `firestore:"code"`
	Name          string          `firestore:"name"`
	Price         int64           `firestore:"price"`
	OriginalPrice int64           `firestore:"originalPrice"`
	Currency      string          `firestore:"currency"`
	CategoryID    string          `firestore:"categoryId"`
	Images        []string        `firestore:"images,omitempty"`
	Colors        []colorDocument `firestore:"colors"`
	Active        bool            `firestore:"active"`
	CreatedAt     time.Time       `firestore:"createdAt"`
	UpdatedAt     time.Time       `firestore:"updatedAt"`
}

type colorDocument struct {
	Name   string         `firestore:"name"`
	Hex    string         `firestore:"hex"`
	Images []string       `firestore:"images,omitempty"`
	Sizes  []sizeDocument `firestore:"sizes"`
}

type sizeDocument struct {
	Size  string `firestore:"size"`
	Stock int    `firestore:"stock"`
}

func newProductDocument(p domain.Product) productDocument {
	doc := productDocument{
		Code:          p.Code,
		Name:          p.Name,
		Price:         p.Price,
		OriginalPrice: p.OriginalPrice,
		Currency:      p.Currency,
		CategoryID:    p.CategoryID,
		Images:        p.Images,
		Active:        p.Active,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	for _, c := range p.Colors {
		color := colorDocument{Name: c.Name, Hex: c.Hex, Images: c.Images}
		for _, s := range c.Sizes {
			color.Sizes = append(color.Sizes, sizeDocument{Size: s.Size, Stock: s.Stock})
		}
		doc.Colors = append(doc.Colors, color)
	}
	return doc
}

func (d productDocument) toDomain(id string) domain.Product {
	p := domain.Product{
		ID:            id,
		Code:          d.Code,
		Name:          d.Name,
		Price:         d.Price,
		OriginalPrice: d.OriginalPrice,
		Currency:      d.Currency,
		CategoryID:    d.CategoryID,
		Images:        d.Images,
		Active:        d.Active,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	for _, c := range d.Colors {
		color := domain.ColorVariant{Name: c.Name, Hex: c.Hex, Images: c.Images}
		for _, s := range c.Sizes {
			color.Sizes = append(color.Sizes, domain.SizeStock{Size: s.Size, Stock: s.Stock})
		}
		p.Colors = append(p.Colors, color)
	}
	return p
}

// locate returns the indices of the color and size, defaulting to the first color when color is blank.
func (d productDocument) locate(color, size string) (int, int, bool) {
	for ci, c := range d.Colors {
		if color != "" && c.Name != color {
			continue
		}
		for si, s := range c.Sizes {
			if s.Size == size {
				return ci, si, true
			}
		}
		return 0, 0, false
	}
	return 0, 0, false
}

type appliedDiscountDocument struct {
	DiscountID string `firestore:"discountId"`
	Code       string `firestore:"code"`
	Kind       string `firestore:"kind"`
	Type       string `firestore:"type"`
	Amount     int64  `firestore:"amount"`
}

func newAppliedDiscountDocument(a *domain.AppliedDiscount) *appliedDiscountDocument {
	if a == nil {
		return nil
	}
	return &appliedDiscountDocument{
		DiscountID: a.DiscountID,
		Code:       a.Code,
		Kind:       string(a.Kind),
		Type:       string(a.Type),
		Amount:     a.Amount,
	}
}

func (d *appliedDiscountDocument) toDomain() *domain.AppliedDiscount {
	if d == nil {
		return nil
	}
	return &domain.AppliedDiscount{
		DiscountID: d.DiscountID,
		Code:       d.Code,
		Kind:       domain.DiscountKind(d.Kind),
		Type:       domain.DiscountType(d.Type),
		Amount:     d.Amount,
	}
}

type cartDocument struct {
	ID        string                   `firestore:"id"`
	UserID    string                   `firestore:"userId,omitempty"`
	SessionID string                   `firestore:"sessionId,omitempty"`
	Currency  string                   `firestore:"currency"`
	Items     []cartItemDocument       `firestore:"items"`
	Coupon    *appliedDiscountDocument `firestore:"coupon,omitempty"`
	Voucher   *appliedDiscountDocument `firestore:"voucher,omitempty"`
	CreatedAt time.Time                `firestore:"createdAt"`
	UpdatedAt time.Time                `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ID        string     `firestore:"id"`
	ProductID string     `firestore:"productId"`
	Color     string     `firestore:"color"`
	Size      string     `firestore:"size"`
	Quantity  int        `firestore:"quantity"`
	AddedAt   time.Time  `firestore:"addedAt"`
	UpdatedAt *time.Time `firestore:"updatedAt,omitempty"`
}

func newCartDocument(c domain.Cart) cartDocument {
	doc := cartDocument{
		ID:        c.ID,
		UserID:    c.Owner.UserID,
		SessionID: c.Owner.SessionID,
		Currency:  c.Currency,
		Items:     make([]cartItemDocument, 0, len(c.Items)),
		Coupon:    newAppliedDiscountDocument(c.Coupon),
		Voucher:   newAppliedDiscountDocument(c.Voucher),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	for _, item := range c.Items {
		doc.Items = append(doc.Items, cartItemDocument{
			ID:        item.ID,
			ProductID: item.ProductID,
			Color:     item.Color,
			Size:      item.Size,
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt,
			UpdatedAt: item.UpdatedAt,
		})
	}
	return doc
}

func (d cartDocument) toDomain() domain.Cart {
	cart := domain.Cart{
		ID:        d.ID,
		Owner:     domain.CartOwner{UserID: d.UserID, SessionID: d.SessionID},
		Currency:  d.Currency,
		Items:     make([]domain.CartItem, 0, len(d.Items)),
		Coupon:    d.Coupon.toDomain(),
		Voucher:   d.Voucher.toDomain(),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, item := range d.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:        item.ID,
			ProductID: item.ProductID,
			Color:     item.Color,
			Size:      item.Size,
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt,
			UpdatedAt: item.UpdatedAt,
		})
	}
	return cart
}

type discountDocument struct {
	Code                 string    `firestore:"code"`
	Description          string    `firestore:"description,omitempty"`
	Kind                 string    `firestore:"kind"`
	Type                 string    `firestore:"type"`
	Value                float64   `firestore:"value"`
	MinPurchase          *int64    `firestore:"minPurchase,omitempty"`
	MaxDiscount          *int64    `firestore:"maxDiscount,omitempty"`
	BuyX                 int       `firestore:"buyX,omitempty"`
	GetY                 int       `firestore:"getY,omitempty"`
	ApplicableCategories []string  `firestore:"applicableCategories,omitempty"`
	ExcludedProducts     []string  `firestore:"excludedProducts,omitempty"`
	ValidFrom            time.Time `firestore:"validFrom"`
	ValidUntil           time.Time `firestore:"validUntil"`
	UsageLimit           *int      `firestore:"usageLimit,omitempty"`
	UsedCount            int       `firestore:"usedCount"`
	UsedBy               []string  `firestore:"usedBy"`
	Active               bool      `firestore:"active"`
	CreatedAt            time.Time `firestore:"createdAt"`
	UpdatedAt            time.Time `firestore:"updatedAt"`
}

func newDiscountDocument(d domain.Discount) discountDocument {
	usedBy := d.UsedBy
	if usedBy == nil {
		usedBy = []string{}
	}
	return discountDocument{
		Code:                 d.Code,
		Description:          d.Description,
		Kind:                 string(d.Kind),
		Type:                 string(d.Type),
		Value:                d.Value,
		MinPurchase:          d.MinPurchase,
		MaxDiscount:          d.MaxDiscount,
		BuyX:                 d.BuyX,
		GetY:                 d.GetY,
		ApplicableCategories: d.ApplicableCategories,
		ExcludedProducts:     d.ExcludedProducts,
		ValidFrom:            d.ValidFrom,
		ValidUntil:           d.ValidUntil,
		UsageLimit:           d.UsageLimit,
		UsedCount:            d.UsedCount,
		UsedBy:               usedBy,
		Active:               d.Active,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}
}

func (d discountDocument) toDomain(id string) domain.Discount {
	return domain.Discount{
		ID:                   id,
		Code:                 d.Code,
		Description:          d.Description,
		Kind:                 domain.DiscountKind(d.Kind),
		Type:                 domain.DiscountType(d.Type),
		Value:                d.Value,
		MinPurchase:          d.MinPurchase,
		MaxDiscount:          d.MaxDiscount,
		BuyX:                 d.BuyX,
		GetY:                 d.GetY,
		ApplicableCategories: d.ApplicableCategories,
		ExcludedProducts:     d.ExcludedProducts,
		ValidFrom:            d.ValidFrom,
		ValidUntil:           d.ValidUntil,
		UsageLimit:           d.UsageLimit,
		UsedCount:            d.UsedCount,
		UsedBy:               d.UsedBy,
		Active:               d.Active,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}
}

type addressDocument struct {
	Recipient  string `firestore:"recipient"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	State      string `firestore:"state,omitempty"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
	Phone      string `firestore:"phone,omitempty"`
}

type orderLineDocument struct {
	ProductID   string `firestore:"productId"`
	ProductName string `firestore:"productName"`
	ProductCode string `firestore:"productCode"`
	Image       string `firestore:"image,omitempty"`
	Color       string `firestore:"color"`
	Size        string `firestore:"size"`
	Quantity    int    `firestore:"quantity"`
	UnitPrice   int64  `firestore:"unitPrice"`
	LineTotal   int64  `firestore:"lineTotal"`
	Reserved    int    `firestore:"reserved"`
}

type orderDocument struct {
	OrderNumber       string                   `firestore:"orderNumber"`
	UserID            string                   `firestore:"userId"`
	Status            string                   `firestore:"status"`
	Currency          string                   `firestore:"currency"`
	Items             []orderLineDocument      `firestore:"items"`
	Subtotal          int64                    `firestore:"subtotal"`
	Discount          int64                    `firestore:"discount"`
	Shipping          int64                    `firestore:"shipping"`
	Tax               int64                    `firestore:"tax"`
	Total             int64                    `firestore:"total"`
	Coupon            *appliedDiscountDocument `firestore:"coupon,omitempty"`
	Voucher           *appliedDiscountDocument `firestore:"voucher,omitempty"`
	ShippingAddress   addressDocument          `firestore:"shippingAddress"`
	BillingAddress    addressDocument          `firestore:"billingAddress"`
	PaymentMethod     string                   `firestore:"paymentMethod"`
	Notes             string                   `firestore:"notes,omitempty"`
	EstimatedDelivery *time.Time               `firestore:"estimatedDelivery,omitempty"`
	TrackingNumber    string                   `firestore:"trackingNumber,omitempty"`
	CancelReason      string                   `firestore:"cancelReason,omitempty"`
	ReturnReason      string                   `firestore:"returnReason,omitempty"`
	StockReserved     bool                     `firestore:"stockReserved"`
	CreatedAt         time.Time                `firestore:"createdAt"`
	UpdatedAt         time.Time                `firestore:"updatedAt"`
	ShippedAt         *time.Time               `firestore:"shippedAt,omitempty"`
	DeliveredAt       *time.Time               `firestore:"deliveredAt,omitempty"`
	CancelledAt       *time.Time               `firestore:"cancelledAt,omitempty"`
	ReturnedAt        *time.Time               `firestore:"returnedAt,omitempty"`
}

func newOrderDocument(o domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber:       o.OrderNumber,
		UserID:            o.UserID,
		Status:            string(o.Status),
		Currency:          o.Currency,
		Items:             make([]orderLineDocument, 0, len(o.Items)),
		Subtotal:          o.Totals.Subtotal,
		Discount:          o.Totals.Discount,
		Shipping:          o.Totals.Shipping,
		Tax:               o.Totals.Tax,
		Total:             o.Totals.Total,
		Coupon:            newAppliedDiscountDocument(o.Coupon),
		Voucher:           newAppliedDiscountDocument(o.Voucher),
		ShippingAddress:   addressDocument(o.ShippingAddress),
		BillingAddress:    addressDocument(o.BillingAddress),
		PaymentMethod:     o.PaymentMethod,
		Notes:             o.Notes,
		EstimatedDelivery: o.EstimatedDelivery,
		TrackingNumber:    o.TrackingNumber,
		CancelReason:      o.CancelReason,
		ReturnReason:      o.ReturnReason,
		StockReserved:     o.StockReserved,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
		ShippedAt:         o.ShippedAt,
		DeliveredAt:       o.DeliveredAt,
		CancelledAt:       o.CancelledAt,
		ReturnedAt:        o.ReturnedAt,
	}
	for _, line := range o.Items {
		doc.Items = append(doc.Items, orderLineDocument(line))
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:          id,
		OrderNumber: d.OrderNumber,
		UserID:      d.UserID,
		Status:      domain.OrderStatus(d.Status),
		Currency:    d.Currency,
		Items:       make([]domain.OrderLine, 0, len(d.Items)),
		Totals: domain.OrderTotals{
			Subtotal: d.Subtotal,
			Discount: d.Discount,
			Shipping: d.Shipping,
			Tax:      d.Tax,
			Total:    d.Total,
		},
		Coupon:            d.Coupon.toDomain(),
		Voucher:           d.Voucher.toDomain(),
		ShippingAddress:   domain.Address(d.ShippingAddress),
		BillingAddress:    domain.Address(d.BillingAddress),
		PaymentMethod:     d.PaymentMethod,
		Notes:             d.Notes,
		EstimatedDelivery: d.EstimatedDelivery,
		TrackingNumber:    d.TrackingNumber,
		CancelReason:      d.CancelReason,
		ReturnReason:      d.ReturnReason,
		StockReserved:     d.StockReserved,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
		ShippedAt:         d.ShippedAt,
		DeliveredAt:       d.DeliveredAt,
		CancelledAt:       d.CancelledAt,
		ReturnedAt:        d.ReturnedAt,
	}
	for _, line := range d.Items {
		order.Items = append(order.Items, domain.OrderLine(line))
	}
	return order
}

type refundDocument struct {
	ID              string    `firestore:"id"`
	GatewayRefundID string    `firestore:"gatewayRefundId,omitempty"`
	Amount          int64     `firestore:"amount"`
	Reason          string    `firestore:"reason,omitempty"`
	Status          string    `firestore:"status"`
	CreatedAt       time.Time `firestore:"createdAt"`
}

type paymentDocument struct {
	OrderID          string           `firestore:"orderId"`
	UserID           string           `firestore:"userId"`
	GatewayOrderID   string           `firestore:"gatewayOrderId,omitempty"`
	GatewayPaymentID string           `firestore:"gatewayPaymentId,omitempty"`
	Receipt          string           `firestore:"receipt"`
	Amount           int64            `firestore:"amount"`
	Currency         string           `firestore:"currency"`
	Method           string           `firestore:"method"`
	Status           string           `firestore:"status"`
	FailureReason    string           `firestore:"failureReason,omitempty"`
	RefundRequired   bool             `firestore:"refundRequired,omitempty"`
	Refunds          []refundDocument `firestore:"refunds"`
	CreatedAt        time.Time        `firestore:"createdAt"`
	UpdatedAt        time.Time        `firestore:"updatedAt"`
	CapturedAt       *time.Time       `firestore:"capturedAt,omitempty"`
}

// newPaymentDocument drops the client secret; it is handed to the shopper once and never stored.
func newPaymentDocument(p domain.Payment) paymentDocument {
	doc := paymentDocument{
		OrderID:          p.OrderID,
		UserID:           p.UserID,
		GatewayOrderID:   p.GatewayOrderID,
		GatewayPaymentID: p.GatewayPaymentID,
		Receipt:          p.Receipt,
		Amount:           p.Amount,
		Currency:         p.Currency,
		Method:           p.Method,
		Status:           string(p.Status),
		FailureReason:    p.FailureReason,
		RefundRequired:   p.RefundRequired,
		Refunds:          make([]refundDocument, 0, len(p.Refunds)),
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
		CapturedAt:       p.CapturedAt,
	}
	for _, r := range p.Refunds {
		doc.Refunds = append(doc.Refunds, refundDocument{
			ID:              r.ID,
			GatewayRefundID: r.GatewayRefundID,
			Amount:          r.Amount,
			Reason:          r.Reason,
			Status:          string(r.Status),
			CreatedAt:       r.CreatedAt,
		})
	}
	return doc
}

func (d paymentDocument) toDomain(id string) domain.Payment {
	p := domain.Payment{
		ID:               id,
		OrderID:          d.OrderID,
		UserID:           d.UserID,
		GatewayOrderID:   d.GatewayOrderID,
		GatewayPaymentID: d.GatewayPaymentID,
		Receipt:          d.Receipt,
		Amount:           d.Amount,
		Currency:         d.Currency,
		Method:           d.Method,
		Status:           domain.PaymentStatus(d.Status),
		FailureReason:    d.FailureReason,
		RefundRequired:   d.RefundRequired,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
		CapturedAt:       d.CapturedAt,
	}
	for _, r := range d.Refunds {
		p.Refunds = append(p.Refunds, domain.Refund{
			ID:              r.ID,
			GatewayRefundID: r.GatewayRefundID,
			Amount:          r.Amount,
			Reason:          r.Reason,
			Status:          domain.RefundStatus(r.Status),
			CreatedAt:       r.CreatedAt,
		})
	}
	return p
}
