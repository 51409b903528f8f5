// Package memory holds mutex guarded repositories for local runs and tests. Every conditional
// write happens under the store lock, which gives the same check-then-set guarantees the
// Firestore transactions provide.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/Rohansunwar5/sweety-server-sub000/internal/domain"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/platform/pagination"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/repositories"
)

// Error classifies memory store failures. It satisfies repositories.RepositoryError.
type Error struct {
	op       string
	msg      string
	notFound bool
	conflict bool
}

func (e *Error) Error() string       { return fmt.Sprintf("memory %s: %s", e.op, e.msg) }
func (e *Error) IsNotFound() bool    { return e.notFound }
func (e *Error) IsConflict() bool    { return e.conflict }
func (e *Error) IsUnavailable() bool { return false }

func notFound(op, format string, args ...any) error {
	return &Error{op: op, msg: fmt.Sprintf(format, args...), notFound: true}
}

func conflict(op, format string, args ...any) error {
	return &Error{op: op, msg: fmt.Sprintf(format, args...), conflict: true}
}

// Store is an in-memory repositories.Registry.
type Store struct {
	mu        sync.Mutex
	products  map[string]domain.Product
	carts     map[string]domain.Cart
	discounts map[string]domain.Discount
	orders    map[string]domain.Order
	numbers   map[string]string
	payments  map[string]domain.Payment
	counters  map[string]int64

	// adjustHook lets tests inject a failure for a specific stock key.
	adjustHook func(key repositories.StockKey, delta int) error
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		products:  make(map[string]domain.Product),
		carts:     make(map[string]domain.Cart),
		discounts: make(map[string]domain.Discount),
		orders:    make(map[string]domain.Order),
		numbers:   make(map[string]string),
		payments:  make(map[string]domain.Payment),
		counters:  make(map[string]int64),
	}
}

// FailAdjust installs a hook consulted before every stock adjustment.
func (s *Store) FailAdjust(hook func(key repositories.StockKey, delta int) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjustHook = hook
}

// PutProduct seeds or replaces a product.
func (s *Store) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = cloneProduct(p)
}

// PutDiscount seeds or replaces a discount without uniqueness checks.
func (s *Store) PutDiscount(d domain.Discount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discounts[d.ID] = cloneDiscount(d)
}

func (s *Store) Close(context.Context) error { return nil }

func (s *Store) Products() repositories.ProductRepository    { return productRepo{s} }
func (s *Store) Inventory() repositories.InventoryRepository { return inventoryRepo{s} }
func (s *Store) Carts() repositories.CartRepository          { return cartRepo{s} }
func (s *Store) Discounts() repositories.DiscountRepository  { return discountRepo{s} }
func (s *Store) Orders() repositories.OrderRepository        { return orderRepo{s} }
func (s *Store) Payments() repositories.PaymentRepository    { return paymentRepo{s} }
func (s *Store) Counters() repositories.CounterRepository    { return counterRepo{s} }

type productRepo struct{ s *Store }

func (r productRepo) FindByID(_ context.Context, id string) (domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return domain.Product{}, notFound("products.find", "product %s", id)
	}
	return cloneProduct(p), nil
}

func (r productRepo) FindByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			out[id] = cloneProduct(p)
		}
	}
	return out, nil
}

type inventoryRepo struct{ s *Store }

func (r inventoryRepo) locate(key repositories.StockKey) (domain.Product, int, int, error) {
	p, ok := r.s.products[key.ProductID]
	if !ok {
		return domain.Product{}, 0, 0, repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, key, "product not found", nil)
	}
	for ci, c := range p.Colors {
		if key.Color != "" && c.Name != key.Color {
			continue
		}
		for si, size := range c.Sizes {
			if size.Size == key.Size {
				return p, ci, si, nil
			}
		}
		break
	}
	return domain.Product{}, 0, 0, repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, key,
		fmt.Sprintf("no stock entry for color %q size %q", key.Color, key.Size), nil)
}

func (r inventoryRepo) Available(_ context.Context, key repositories.StockKey) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ci, si, err := r.locate(key)
	if err != nil {
		return 0, err
	}
	return p.Colors[ci].Sizes[si].Stock, nil
}

func (r inventoryRepo) Adjust(_ context.Context, key repositories.StockKey, delta int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.adjustHook != nil {
		if err := r.s.adjustHook(key, delta); err != nil {
			return 0, err
		}
	}
	p, ci, si, err := r.locate(key)
	if err != nil {
		return 0, err
	}
	current := p.Colors[ci].Sizes[si].Stock
	if current+delta < 0 {
		invErr := repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, key,
			fmt.Sprintf("only %d left, %d requested", current, -delta), nil)
		invErr.Available = current
		return 0, invErr
	}
	p.Colors[ci].Sizes[si].Stock = current + delta
	r.s.products[key.ProductID] = p
	return current + delta, nil
}

type cartRepo struct{ s *Store }

func (r cartRepo) Get(_ context.Context, owner domain.CartOwner) (domain.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.carts[owner.Key()]
	if !ok {
		return domain.Cart{}, notFound("carts.get", "cart for %s", owner.Key())
	}
	return cloneCart(c), nil
}

func (r cartRepo) Save(_ context.Context, cart domain.Cart) (domain.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.carts[cart.Owner.Key()] = cloneCart(cart)
	return cloneCart(cart), nil
}

func (r cartRepo) Delete(_ context.Context, owner domain.CartOwner) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.carts, owner.Key())
	return nil
}

type discountRepo struct{ s *Store }

func (r discountRepo) codeTaken(code, exceptID string) bool {
	for id, d := range r.s.discounts {
		if d.Code == code && id != exceptID {
			return true
		}
	}
	return false
}

func (r discountRepo) Insert(_ context.Context, d domain.Discount) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.discounts[d.ID]; exists || r.codeTaken(d.Code, d.ID) {
		return conflict("discounts.insert", "code %s already exists", d.Code)
	}
	r.s.discounts[d.ID] = cloneDiscount(d)
	return nil
}

func (r discountRepo) Update(_ context.Context, d domain.Discount) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.discounts[d.ID]; !exists {
		return notFound("discounts.update", "discount %s", d.ID)
	}
	if r.codeTaken(d.Code, d.ID) {
		return conflict("discounts.update", "code %s already exists", d.Code)
	}
	r.s.discounts[d.ID] = cloneDiscount(d)
	return nil
}

func (r discountRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.discounts, id)
	return nil
}

func (r discountRepo) FindByID(_ context.Context, id string) (domain.Discount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.discounts[id]
	if !ok {
		return domain.Discount{}, notFound("discounts.find", "discount %s", id)
	}
	return cloneDiscount(d), nil
}

func (r discountRepo) FindByCode(_ context.Context, code string) (domain.Discount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, d := range r.s.discounts {
		if d.Code == code {
			return cloneDiscount(d), nil
		}
	}
	return domain.Discount{}, notFound("discounts.findByCode", "code %s", code)
}

func (r discountRepo) List(_ context.Context, filter repositories.DiscountListFilter) (domain.CursorPage[domain.Discount], error) {
	r.s.mu.Lock()
	items := make([]domain.Discount, 0, len(r.s.discounts))
	for _, d := range r.s.discounts {
		if filter.Kind != "" && d.Kind != filter.Kind {
			continue
		}
		if filter.ActiveOnly && !d.Active {
			continue
		}
		items = append(items, cloneDiscount(d))
	}
	r.s.mu.Unlock()
	return paginate(items, filter.Pagination, func(d domain.Discount) (time.Time, string) { return d.CreatedAt, d.ID })
}

func (r discountRepo) MarkUsed(_ context.Context, code, userID string, now time.Time) (domain.Discount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, d := range r.s.discounts {
		if d.Code != code {
			continue
		}
		if slices.Contains(d.UsedBy, userID) {
			return domain.Discount{}, repositories.NewDiscountError(repositories.DiscountErrorAlreadyUsed, "code "+code+" already used by user")
		}
		if d.UsageLimit != nil && d.UsedCount >= *d.UsageLimit {
			return domain.Discount{}, repositories.NewDiscountError(repositories.DiscountErrorUsageLimit, "code "+code+" reached its usage limit")
		}
		d.UsedCount++
		d.UsedBy = append(slices.Clone(d.UsedBy), userID)
		d.UpdatedAt = now
		r.s.discounts[id] = d
		return cloneDiscount(d), nil
	}
	return domain.Discount{}, repositories.NewDiscountError(repositories.DiscountErrorNotFound, "code "+code+" not found")
}

func (r discountRepo) ReleaseUsage(_ context.Context, code, userID string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, d := range r.s.discounts {
		if d.Code != code {
			continue
		}
		idx := slices.Index(d.UsedBy, userID)
		if idx < 0 {
			return nil
		}
		d.UsedBy = slices.Delete(slices.Clone(d.UsedBy), idx, idx+1)
		d.UsedCount = max(d.UsedCount-1, 0)
		d.UpdatedAt = now
		r.s.discounts[id] = d
		return nil
	}
	return repositories.NewDiscountError(repositories.DiscountErrorNotFound, "code "+code+" not found")
}

type orderRepo struct{ s *Store }

func (r orderRepo) Insert(_ context.Context, o domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, taken := r.s.numbers[o.OrderNumber]; taken {
		return conflict("orders.insert", "order number %s already exists", o.OrderNumber)
	}
	if _, exists := r.s.orders[o.ID]; exists {
		return conflict("orders.insert", "order %s already exists", o.ID)
	}
	r.s.numbers[o.OrderNumber] = o.ID
	r.s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r orderRepo) Update(_ context.Context, o domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.orders[o.ID]; !exists {
		return notFound("orders.update", "order %s", o.ID)
	}
	r.s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r orderRepo) UpdateStatus(_ context.Context, o domain.Order, expected domain.OrderStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, exists := r.s.orders[o.ID]
	if !exists {
		return notFound("orders.updateStatus", "order %s", o.ID)
	}
	if stored.Status != expected {
		return conflict("orders.updateStatus", "order %s is %s, expected %s", o.ID, stored.Status, expected)
	}
	r.s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r orderRepo) FindByID(_ context.Context, id string) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return domain.Order{}, notFound("orders.find", "order %s", id)
	}
	return cloneOrder(o), nil
}

func (r orderRepo) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	r.s.mu.Lock()
	items := make([]domain.Order, 0)
	for _, o := range r.s.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if len(filter.Status) > 0 && !slices.Contains(filter.Status, o.Status) {
			continue
		}
		items = append(items, cloneOrder(o))
	}
	r.s.mu.Unlock()
	return paginate(items, filter.Pagination, func(o domain.Order) (time.Time, string) { return o.CreatedAt, o.ID })
}

type paymentRepo struct{ s *Store }

func (r paymentRepo) Insert(_ context.Context, p domain.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.payments {
		if existing.OrderID == p.OrderID {
			return conflict("payments.insert", "order %s already has payment %s", p.OrderID, existing.ID)
		}
	}
	p.ClientSecret = ""
	r.s.payments[p.ID] = clonePayment(p)
	return nil
}

func (r paymentRepo) Update(_ context.Context, p domain.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.payments[p.ID]; !ok {
		return notFound("payments.update", "payment %s", p.ID)
	}
	p.ClientSecret = ""
	r.s.payments[p.ID] = clonePayment(p)
	return nil
}

func (r paymentRepo) FindByID(_ context.Context, id string) (domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return domain.Payment{}, notFound("payments.find", "payment %s", id)
	}
	return clonePayment(p), nil
}

func (r paymentRepo) FindByOrderID(_ context.Context, orderID string) (domain.Payment, error) {
	return r.findBy(func(p domain.Payment) bool { return p.OrderID == orderID }, "order "+orderID)
}

func (r paymentRepo) FindByGatewayOrderID(_ context.Context, gatewayOrderID string) (domain.Payment, error) {
	return r.findBy(func(p domain.Payment) bool { return p.GatewayOrderID == gatewayOrderID }, "gateway order "+gatewayOrderID)
}

func (r paymentRepo) findBy(match func(domain.Payment) bool, label string) (domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.payments {
		if match(p) {
			return clonePayment(p), nil
		}
	}
	return domain.Payment{}, notFound("payments.find", "no payment for %s", label)
}

type counterRepo struct{ s *Store }

func (r counterRepo) Next(_ context.Context, counterID string, step int64) (int64, error) {
	if strings.TrimSpace(counterID) == "" || step <= 0 {
		return 0, repositories.NewCounterError("counters.next", repositories.CounterErrorInvalidInput, "counter id and positive step are required", nil)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.counters[counterID] += step
	return r.s.counters[counterID], nil
}

// paginate orders items by creation time descending and slices the requested page.
func paginate[T any](items []T, page domain.Pagination, key func(T) (time.Time, string)) (domain.CursorPage[T], error) {
	cursor, err := pagination.DecodeToken(page.PageToken)
	if err != nil {
		return domain.CursorPage[T]{}, err
	}
	sort.Slice(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return idi > idj
	})

	start := 0
	if !cursor.IsZero() {
		start = len(items)
		for i, item := range items {
			t, id := key(item)
			if t.Before(cursor.CreatedAt) || (t.Equal(cursor.CreatedAt) && id < cursor.ID) {
				start = i
				break
			}
		}
	}
	size := pagination.Normalize(page.PageSize)
	end := min(start+size, len(items))

	out := domain.CursorPage[T]{Items: items[start:end]}
	if end < len(items) {
		t, id := key(items[end-1])
		out.NextPageToken = pagination.EncodeToken(pagination.Cursor{CreatedAt: t, ID: id})
	}
	return out, nil
}

var _ repositories.Registry = (*Store)(nil)
