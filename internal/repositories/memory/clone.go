package memory

import (
	"slices"

	domain "github.com/Rohansunwar5/sweety-server-sub000/internal/domain"
)

func cloneProduct(p domain.Product) domain.Product {
	p.Images = slices.Clone(p.Images)
	colors := make([]domain.ColorVariant, len(p.Colors))
	for i, c := range p.Colors {
		c.Images = slices.Clone(c.Images)
		c.Sizes = slices.Clone(c.Sizes)
		colors[i] = c
	}
	p.Colors = colors
	return p
}

func cloneApplied(a *domain.AppliedDiscount) *domain.AppliedDiscount {
	if a == nil {
		return nil
	}
	dup := *a
	return &dup
}

func cloneCart(c domain.Cart) domain.Cart {
	c.Items = slices.Clone(c.Items)
	c.Coupon = cloneApplied(c.Coupon)
	c.Voucher = cloneApplied(c.Voucher)
	return c
}

func cloneDiscount(d domain.Discount) domain.Discount {
	d.UsedBy = slices.Clone(d.UsedBy)
	d.ApplicableCategories = slices.Clone(d.ApplicableCategories)
	d.ExcludedProducts = slices.Clone(d.ExcludedProducts)
	return d
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = slices.Clone(o.Items)
	o.Coupon = cloneApplied(o.Coupon)
	o.Voucher = cloneApplied(o.Voucher)
	return o
}

func clonePayment(p domain.Payment) domain.Payment {
	p.Refunds = slices.Clone(p.Refunds)
	return p
}
