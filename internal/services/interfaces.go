package services

import (
	"context"
	"time"

	domain "github.com/Rohansunwar5/sweety-server-sub000/internal/domain"
)

// InventoryService reads and adjusts size level stock. Every call reads the authoritative store.
type InventoryService interface {
	AvailableStock(ctx context.Context, productID, color, size string) (int, error)
	AdjustStock(ctx context.Context, adj StockAdjustment) (int, error)
	ReserveLines(ctx context.Context, lines []StockLine) StockResult
	RestoreLines(ctx context.Context, lines []StockLine) StockResult
}

// CatalogService exposes read-only product lookups used by carts, orders and discounts.
type CatalogService interface {
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	GetProducts(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	AvailableSizes(ctx context.Context, productID, color string) ([]domain.SizeStock, error)
}

// DiscountService validates and prices coupons and vouchers and records their usage.
type DiscountService interface {
	Validate(discount domain.Discount, subtotal int64, now time.Time) error
	Calculate(discount domain.Discount, input CalculationInput) Calculation
	Evaluate(ctx context.Context, code string, input CalculationInput) (Calculation, error)
	MarkUsed(ctx context.Context, code string, userID string) (domain.Discount, error)
	ReleaseUsage(ctx context.Context, code string, userID string) error

	Create(ctx context.Context, input DiscountInput) (domain.Discount, error)
	Update(ctx context.Context, discountID string, input DiscountInput) (domain.Discount, error)
	Get(ctx context.Context, discountID string) (domain.Discount, error)
	List(ctx context.Context, filter DiscountListFilter) (domain.CursorPage[domain.Discount], error)
	Delete(ctx context.Context, discountID string) error
}

// CartService manages user and guest carts.
type CartService interface {
	GetOrCreate(ctx context.Context, owner domain.CartOwner) (domain.Cart, error)
	Materialize(ctx context.Context, owner domain.CartOwner) (CartView, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (CartResult, error)
	UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (CartResult, error)
	RemoveItem(ctx context.Context, owner domain.CartOwner, itemID string) (CartResult, error)
	Clear(ctx context.Context, owner domain.CartOwner) (CartResult, error)
	Delete(ctx context.Context, owner domain.CartOwner) error
	ApplyDiscount(ctx context.Context, owner domain.CartOwner, code string) (CartResult, error)
	RemoveDiscount(ctx context.Context, owner domain.CartOwner, kind domain.DiscountKind) (CartResult, error)
	MergeGuestIntoUser(ctx context.Context, sessionID, userID string) (CartResult, error)
	ValidateItems(ctx context.Context, owner domain.CartOwner) (CartValidation, error)
}

// OrderService converts carts into orders and drives the order lifecycle.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (OrderResult, error)
	GetOrder(ctx context.Context, orderID string, userID string) (domain.Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	TransitionStatus(ctx context.Context, cmd OrderTransitionCommand) (OrderTransitionResult, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (OrderTransitionResult, error)
	Return(ctx context.Context, cmd ReturnOrderCommand) (OrderTransitionResult, error)
}

// PaymentService coordinates the gateway with orders.
type PaymentService interface {
	InitiatePayment(ctx context.Context, cmd InitiatePaymentCommand) (domain.Payment, error)
	HandleSuccessfulPayment(ctx context.Context, gatewayOrderID, gatewayPaymentID string) (domain.Payment, error)
	HandleFailedPayment(ctx context.Context, gatewayOrderID, reason string) (domain.Payment, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	RefundPayment(ctx context.Context, cmd RefundPaymentCommand) (domain.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (domain.Payment, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	UserID         string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	Total          int64
	Currency       string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderNotifier delivers the order confirmation after payment capture.
type OrderNotifier interface {
	SendOrderConfirmation(ctx context.Context, confirmation OrderConfirmation) error
}

// OrderConfirmation is the payload handed to the notifier.
type OrderConfirmation struct {
	UserID  string
	Order   domain.Order
	Payment domain.Payment
}

// ReceiptArchiver stores a receipt document for a captured payment and returns its object path.
type ReceiptArchiver interface {
	ArchiveReceipt(ctx context.Context, order domain.Order, payment domain.Payment) (string, error)
}

// Inventory DTOs -------------------------------------------------------------

// StockAdjustment adds Delta units to one size. Negative deltas reserve.
type StockAdjustment struct {
	ProductID string
	Color     string
	Size      string
	Delta     int
}

// StockLine is a quantity of one size to reserve or restore.
type StockLine struct {
	ProductID string
	Color     string
	Size      string
	Quantity  int
}

// StockFailure records a line that could not be adjusted.
type StockFailure struct {
	Line StockLine
	Err  error
}

// StockResult reports a multi-line adjustment. Lines are independent: applied lines stay applied.
type StockResult struct {
	Applied  []StockLine
	Failures []StockFailure
}

// Discount DTOs --------------------------------------------------------------

// CalculationInput carries the cart state a discount is priced against.
type CalculationInput struct {
	Subtotal int64
	Lines    []domain.PricedLine
}

// Calculation is the outcome of pricing a discount.
type Calculation struct {
	Amount          int64
	DiscountedTotal int64
	Applied         domain.AppliedDiscount
}

// DiscountInput carries admin supplied discount fields.
type DiscountInput struct {
	Code                 string
	Description          string
	Kind                 domain.DiscountKind
	Type                 domain.DiscountType
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
	Active               bool
}

// DiscountListFilter scopes admin discount listings.
type DiscountListFilter struct {
	Kind       domain.DiscountKind
	ActiveOnly bool
	Pagination domain.Pagination
}

// Cart DTOs ------------------------------------------------------------------

// AddCartItemCommand adds units of a product variant to a cart.
type AddCartItemCommand struct {
	Owner     domain.CartOwner
	ProductID string
	Color     string
	Size      string
	Quantity  int
}

// UpdateCartItemCommand sets the quantity of a line. Zero removes the line.
type UpdateCartItemCommand struct {
	Owner    domain.CartOwner
	ItemID   string
	Quantity int
}

// CartView is a cart joined with live product prices.
type CartView struct {
	Cart    domain.Cart
	Lines   []domain.PricedLine
	Pricing domain.PricingBreakdown
}

// CartResult is returned by cart mutations together with any degradations applied along the way.
type CartResult struct {
	Cart     CartView
	Warnings []Warning
}

// CartValidation lists problems that would block checkout.
type CartValidation struct {
	Valid  bool
	Issues []CartIssue
}

// CartIssue describes one offending cart line.
type CartIssue struct {
	ItemID    string
	ProductID string
	Color     string
	Size      string
	Code      string
	Message   string
	Requested int
	Available int
}

// Order DTOs -----------------------------------------------------------------

// CreateOrderCommand places an order from the user's cart.
type CreateOrderCommand struct {
	UserID          string
	ShippingAddress domain.Address
	BillingAddress  *domain.Address
	PaymentMethod   string
	Notes           string
}

// OrderSummary is the compact result of order placement.
type OrderSummary struct {
	ID          string
	OrderNumber string
	Total       int64
	Currency    string
	ItemCount   int
	Status      domain.OrderStatus
}

// OrderResult bundles the placed order with non-fatal warnings.
type OrderResult struct {
	Summary  OrderSummary
	Order    domain.Order
	Warnings []Warning
}

// OrderListFilter scopes order listings.
type OrderListFilter struct {
	UserID     string
	Status     []domain.OrderStatus
	Pagination domain.Pagination
}

// OrderTransitionCommand moves an order along the status table.
type OrderTransitionCommand struct {
	OrderID        string
	TargetStatus   domain.OrderStatus
	ActorID        string
	Reason         string
	TrackingNumber string
}

// CancelOrderCommand cancels an order on behalf of its owner.
type CancelOrderCommand struct {
	OrderID string
	UserID  string
	Reason  string
}

// ReturnOrderCommand returns a delivered order on behalf of its owner.
type ReturnOrderCommand struct {
	OrderID string
	UserID  string
	Reason  string
}

// OrderTransitionResult carries the updated order and stock restoration warnings.
type OrderTransitionResult struct {
	Order    domain.Order
	Warnings []Warning
}

// Payment DTOs ---------------------------------------------------------------

// InitiatePaymentCommand opens the single payment of an order.
type InitiatePaymentCommand struct {
	OrderID string
	UserID  string
}

// RefundPaymentCommand refunds part or all of a captured payment. Zero amount refunds the remainder.
type RefundPaymentCommand struct {
	PaymentID string
	Amount    int64
	Reason    string
	ActorID   string
}
