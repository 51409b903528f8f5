package repositories

import (
	"context"
	"time"

	domain "github.com/Rohansunwar5/sweety-server-sub000/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Inventory() InventoryRepository
	Carts() CartRepository
	Discounts() DiscountRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	Counters() CounterRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductRepository reads catalog entries. Writes happen through admin tooling outside this service.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
}

// StockKey addresses the stock counter of one size of one color of a product.
type StockKey struct {
	ProductID string
	Color     string
	Size      string
}

// InventoryRepository reads and conditionally mutates size level stock.
type InventoryRepository interface {
	// Available returns the authoritative stock count for key.
	Available(ctx context.Context, key StockKey) (int, error)
	// Adjust applies delta iff the resulting count is not negative and returns the new count.
	Adjust(ctx context.Context, key StockKey, delta int) (int, error)
}

// CartRepository persists carts keyed by their owner.
type CartRepository interface {
	Get(ctx context.Context, owner domain.CartOwner) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	Delete(ctx context.Context, owner domain.CartOwner) error
}

// DiscountRepository persists discount definitions and usage counters.
type DiscountRepository interface {
	Insert(ctx context.Context, discount domain.Discount) error
	Update(ctx context.Context, discount domain.Discount) error
	Delete(ctx context.Context, discountID string) error
	FindByID(ctx context.Context, discountID string) (domain.Discount, error)
	FindByCode(ctx context.Context, code string) (domain.Discount, error)
	List(ctx context.Context, filter DiscountListFilter) (domain.CursorPage[domain.Discount], error)
	// MarkUsed records userID against the code and increments the usage counter in one atomic step.
	MarkUsed(ctx context.Context, code string, userID string, now time.Time) (domain.Discount, error)
	// ReleaseUsage undoes MarkUsed for userID. It is a no-op when the user is not recorded.
	ReleaseUsage(ctx context.Context, code string, userID string, now time.Time) error
}

// OrderRepository persists orders. Insert must fail with a conflict when the order number is taken.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	// UpdateStatus writes order only while the stored status still equals expected; otherwise it
	// returns a conflict and leaves the stored order untouched.
	UpdateStatus(ctx context.Context, order domain.Order, expected domain.OrderStatus) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// PaymentRepository persists payment records for orders.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	Update(ctx context.Context, payment domain.Payment) error
	FindByID(ctx context.Context, paymentID string) (domain.Payment, error)
	FindByOrderID(ctx context.Context, orderID string) (domain.Payment, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (domain.Payment, error)
}

// CounterRepository allocates monotonic sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// Filter DTOs shared across repositories ------------------------------------

// OrderListFilter scopes order listings.
type OrderListFilter struct {
	UserID     string
	Status     []domain.OrderStatus
	Pagination domain.Pagination
}

// DiscountListFilter scopes discount listings.
type DiscountListFilter struct {
	Kind       domain.DiscountKind
	ActiveOnly bool
	Pagination domain.Pagination
}
