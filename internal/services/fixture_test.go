package services

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/Rohansunwar5/sweety-server-sub000/internal/domain"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/payments"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/repositories"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/repositories/memory"
)

var fixtureNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store     *memory.Store
	now       time.Time
	inventory InventoryService
	catalog   CatalogService
	discounts DiscountService
	carts     CartService
	orders    OrderService
	payments  PaymentService
	gateway   *fakeGateway
	events    *recordingPublisher
	notifier  *recordingNotifier
	logs      *recordingLog
	receipts  *recordingArchiver
}

type fixtureConfig struct {
	wrapOrders func(repositories.OrderRepository) repositories.OrderRepository
	wrapCarts  func(repositories.CartRepository) repositories.CartRepository
}

type fixtureOption func(*fixtureConfig)

// withOrderRepository decorates the order repository seen by the order service.
func withOrderRepository(wrap func(repositories.OrderRepository) repositories.OrderRepository) fixtureOption {
	return func(c *fixtureConfig) { c.wrapOrders = wrap }
}

// withCartRepository decorates the cart repository seen by the cart service.
func withCartRepository(wrap func(repositories.CartRepository) repositories.CartRepository) fixtureOption {
	return func(c *fixtureConfig) { c.wrapCarts = wrap }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	var cfg fixtureConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	f := &fixture{
		store:    memory.NewStore(),
		now:      fixtureNow,
		gateway:  &fakeGateway{},
		events:   &recordingPublisher{},
		notifier: &recordingNotifier{},
		logs:     &recordingLog{},
		receipts: &recordingArchiver{},
	}
	var orderRepo repositories.OrderRepository = f.store.Orders()
	if cfg.wrapOrders != nil {
		orderRepo = cfg.wrapOrders(orderRepo)
	}
	var cartRepo repositories.CartRepository = f.store.Carts()
	if cfg.wrapCarts != nil {
		cartRepo = cfg.wrapCarts(cartRepo)
	}
	clock := func() time.Time { return f.now }
	seq := 0
	ids := func() string {
		seq++
		return fmt.Sprintf("%06d", seq)
	}

	var err error
	f.inventory, err = NewInventoryService(InventoryServiceDeps{Inventory: f.store.Inventory()})
	require.NoError(t, err)
	f.catalog, err = NewCatalogService(CatalogServiceDeps{Products: f.store.Products()})
	require.NoError(t, err)
	f.discounts, err = NewDiscountService(DiscountServiceDeps{Discounts: f.store.Discounts(), Clock: clock, IDGenerator: ids, Logger: f.logs.log})
	require.NoError(t, err)
	f.carts, err = NewCartService(CartServiceDeps{
		Carts:           cartRepo,
		Catalog:         f.catalog,
		Inventory:       f.inventory,
		Discounts:       f.discounts,
		DefaultCurrency: "INR",
		Clock:           clock,
		IDGenerator:     ids,
		Logger:          f.logs.log,
	})
	require.NoError(t, err)
	f.orders, err = NewOrderService(OrderServiceDeps{
		Orders:          orderRepo,
		Counters:        f.store.Counters(),
		Carts:           f.carts,
		Discounts:       f.discounts,
		Inventory:       f.inventory,
		Events:          f.events,
		TrackingNumbers: func() string { return "TRK0001" },
		Clock:           clock,
		IDGenerator:     ids,
		Logger:          f.logs.log,
	})
	require.NoError(t, err)
	f.payments, err = NewPaymentService(PaymentServiceDeps{
		Payments:    f.store.Payments(),
		Orders:      f.orders,
		Carts:       f.carts,
		Gateway:     f.gateway,
		Notifier:    f.notifier,
		Receipts:    f.receipts,
		Clock:       clock,
		IDGenerator: ids,
		Logger:      f.logs.log,
	})
	require.NoError(t, err)
	return f
}

// seedProduct stores an active product with one color "Red" and the given size stock.
func (f *fixture) seedProduct(id string, price int64, stock map[string]int) domain.Product {
	sizes := make([]domain.SizeStock, 0, len(stock))
	for _, size := range []string{"XS", "S", "M", "L", "XL"} {
		if qty, ok := stock[size]; ok {
			sizes = append(sizes, domain.SizeStock{Size: size, Stock: qty})
		}
	}
	product := domain.Product{
		ID:         id,
		Code:       "CODE-" + id,
		Name:       "Product " + id,
		Price:      price,
		Currency:   "INR",
		CategoryID: "tops",
		Images:     []string{"https://cdn.example.com/" + id + ".jpg"},
		Colors:     []domain.ColorVariant{{Name: "Red", Hex: "#ff0000", Sizes: sizes}},
		Active:     true,
		CreatedAt:  fixtureNow,
		UpdatedAt:  fixtureNow,
	}
	f.store.PutProduct(product)
	return product
}

func (f *fixture) seedDiscount(d domain.Discount) domain.Discount {
	if d.ID == "" {
		d.ID = "dsc_" + d.Code
	}
	if d.Kind == "" {
		d.Kind = domain.DiscountKindCoupon
	}
	d.Active = true
	d.CreatedAt = fixtureNow
	f.store.PutDiscount(d)
	return d
}

func (f *fixture) stock(t *testing.T, productID, size string) int {
	t.Helper()
	count, err := f.store.Inventory().Available(context.Background(), repositories.StockKey{ProductID: productID, Color: "Red", Size: size})
	require.NoError(t, err)
	return count
}

func (f *fixture) addToCart(t *testing.T, owner domain.CartOwner, productID, size string, qty int) CartResult {
	t.Helper()
	result, err := f.carts.AddItem(context.Background(), AddCartItemCommand{Owner: owner, ProductID: productID, Size: size, Quantity: qty})
	require.NoError(t, err)
	return result
}

func (f *fixture) placeOrder(t *testing.T, userID, method string) OrderResult {
	t.Helper()
	result, err := f.orders.CreateOrder(context.Background(), CreateOrderCommand{
		UserID:          userID,
		ShippingAddress: testAddress(),
		PaymentMethod:   method,
	})
	require.NoError(t, err)
	return result
}

func testAddress() domain.Address {
	return domain.Address{
		Recipient:  "Asha Rao",
		Line1:      "12 MG Road",
		City:       "Bengaluru",
		State:      "KA",
		PostalCode: "560001",
		Country:    "IN",
		Phone:      "+919999999999",
	}
}

func ptr[T any](v T) *T { return &v }

type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

type recordingLog struct {
	mu     sync.Mutex
	events []string
}

func (l *recordingLog) log(_ context.Context, event string, _ map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *recordingLog) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Contains(l.events, event)
}

type recordingArchiver struct {
	mu       sync.Mutex
	archived []string
}

func (a *recordingArchiver) ArchiveReceipt(_ context.Context, order domain.Order, payment domain.Payment) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archived = append(a.archived, payment.Receipt)
	return "orders/" + order.ID + "/receipts/" + payment.Receipt + ".json", nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []OrderConfirmation
	err  error
}

func (n *recordingNotifier) SendOrderConfirmation(_ context.Context, c OrderConfirmation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, c)
	return n.err
}

type fakeGateway struct {
	charges   []payments.ChargeRequest
	refunds   []payments.RefundRequest
	chargeErr error
	refundErr error
	event     payments.Event
	parseErr  error
}

func (g *fakeGateway) CreateCharge(_ context.Context, req payments.ChargeRequest) (payments.Charge, error) {
	if g.chargeErr != nil {
		return payments.Charge{}, g.chargeErr
	}
	g.charges = append(g.charges, req)
	return payments.Charge{
		GatewayOrderID: fmt.Sprintf("pi_%d", len(g.charges)),
		ClientSecret:   "secret",
		Receipt:        req.Receipt,
		Status:         "requires_payment_method",
	}, nil
}

func (g *fakeGateway) Refund(_ context.Context, req payments.RefundRequest) (payments.Refund, error) {
	if g.refundErr != nil {
		return payments.Refund{}, g.refundErr
	}
	g.refunds = append(g.refunds, req)
	return payments.Refund{GatewayRefundID: fmt.Sprintf("re_%d", len(g.refunds)), Succeeded: true}, nil
}

func (g *fakeGateway) ParseWebhook([]byte, string) (payments.Event, error) {
	return g.event, g.parseErr
}
