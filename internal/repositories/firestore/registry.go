package firestore

import (
	"context"
	"fmt"

	pfirestore "github.com/Rohansunwar5/sweety-server-sub000/internal/platform/firestore"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/repositories"
)

// Registry bundles every Firestore repository over a shared provider.
type Registry struct {
	provider  *pfirestore.Provider
	products  *ProductRepository
	inventory *InventoryRepository
	carts     *CartRepository
	discounts *DiscountRepository
	orders    *OrderRepository
	payments  *PaymentRepository
	counters  *CounterRepository
}

// NewRegistry constructs all repositories. Closing the registry closes the provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	reg := &Registry{provider: provider}
	var err error
	if reg.products, err = NewProductRepository(provider); err != nil {
		return nil, fmt.Errorf("products: %w", err)
	}
	if reg.inventory, err = NewInventoryRepository(provider); err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}
	if reg.carts, err = NewCartRepository(provider); err != nil {
		return nil, fmt.Errorf("carts: %w", err)
	}
	if reg.discounts, err = NewDiscountRepository(provider); err != nil {
		return nil, fmt.Errorf("discounts: %w", err)
	}
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, fmt.Errorf("orders: %w", err)
	}
	if reg.payments, err = NewPaymentRepository(provider); err != nil {
		return nil, fmt.Errorf("payments: %w", err)
	}
	if reg.counters, err = NewCounterRepository(provider); err != nil {
		return nil, fmt.Errorf("counters: %w", err)
	}
	return reg, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) Products() repositories.ProductRepository    { return r.products }
func (r *Registry) Inventory() repositories.InventoryRepository { return r.inventory }
func (r *Registry) Carts() repositories.CartRepository          { return r.carts }
func (r *Registry) Discounts() repositories.DiscountRepository  { return r.discounts }
func (r *Registry) Orders() repositories.OrderRepository        { return r.orders }
func (r *Registry) Payments() repositories.PaymentRepository    { return r.payments }
func (r *Registry) Counters() repositories.CounterRepository    { return r.counters }

var _ repositories.Registry = (*Registry)(nil)
