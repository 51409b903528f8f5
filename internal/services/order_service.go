package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	nanoid "github.com/jaevor/go-nanoid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/Rohansunwar5/sweety-server-sub000/internal/domain"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"

	orderIDPrefix = "ord_"

	warnStockReserve = "stock_reserve_failed"
	warnStockRestore = "stock_restore_failed"
	warnCartClear    = "cart_clear_failed"

	defaultOrderNumberPrefix   = "SW"
	defaultOrderNumberAttempts = 3
	defaultDeliveryWindow      = 7 * 24 * time.Hour
	defaultTrackingLength      = 12

	trackingAlphabet = "0123456789ABCDEFGHJKLMNPQRSTUVWXYZ"
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusProcessing, domain.OrderStatusCancelled, domain.OrderStatusFailed},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered, domain.OrderStatusCancelled},
	domain.OrderStatusDelivered:  {domain.OrderStatusReturned},
	domain.OrderStatusFailed:     {domain.OrderStatusPending},
}

var customerCancellableStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusProcessing,
}

// ChargePolicy computes a shipping or tax amount for a priced cart.
type ChargePolicy func(ctx context.Context, view CartView, address domain.Address) int64

// ZeroShipping charges nothing for delivery.
func ZeroShipping(context.Context, CartView, domain.Address) int64 { return 0 }

// ZeroTax charges no tax.
func ZeroTax(context.Context, CartView, domain.Address) int64 { return 0 }

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders              repositories.OrderRepository
	Counters            repositories.CounterRepository
	Carts               CartService
	Discounts           DiscountService
	Inventory           InventoryService
	Events              OrderEventPublisher
	Shipping            ChargePolicy
	Tax                 ChargePolicy
	OrderNumberPrefix   string
	OrderNumberAttempts int
	DeliveryWindow      time.Duration
	TrackingLength      int
	TrackingNumbers     func() string
	Clock               func() time.Time
	IDGenerator         func() string
	Logger              func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders         repositories.OrderRepository
	counters       repositories.CounterRepository
	carts          CartService
	discounts      DiscountService
	inventory      InventoryService
	events         OrderEventPublisher
	shipping       ChargePolicy
	tax            ChargePolicy
	numberPrefix   string
	numberAttempts int
	deliveryWindow time.Duration
	tracking       func() string
	sanitizer      *bluemonday.Policy
	clock          func() time.Time
	newID          func() string
	logger         func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}
	if deps.Carts == nil || deps.Discounts == nil || deps.Inventory == nil {
		return nil, errors.New("order service: cart, discount and inventory services are required")
	}

	shipping := deps.Shipping
	if shipping == nil {
		shipping = ZeroShipping
	}
	tax := deps.Tax
	if tax == nil {
		tax = ZeroTax
	}

	prefix := strings.TrimSpace(deps.OrderNumberPrefix)
	if prefix == "" {
		prefix = defaultOrderNumberPrefix
	}
	attempts := deps.OrderNumberAttempts
	if attempts <= 0 {
		attempts = defaultOrderNumberAttempts
	}
	window := deps.DeliveryWindow
	if window <= 0 {
		window = defaultDeliveryWindow
	}

	tracking := deps.TrackingNumbers
	if tracking == nil {
		length := deps.TrackingLength
		if length <= 0 {
			length = defaultTrackingLength
		}
		gen, err := nanoid.CustomASCII(trackingAlphabet, length)
		if err != nil {
			return nil, fmt.Errorf("order service: tracking number generator: %w", err)
		}
		tracking = gen
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:         deps.Orders,
		counters:       deps.Counters,
		carts:          deps.Carts,
		discounts:      deps.Discounts,
		inventory:      deps.Inventory,
		events:         deps.Events,
		shipping:       shipping,
		tax:            tax,
		numberPrefix:   prefix,
		numberAttempts: attempts,
		deliveryWindow: window,
		tracking:       tracking,
		sanitizer:      bluemonday.StrictPolicy(),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// CreateOrder converts the user's cart into a PENDING order.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (OrderResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return OrderResult{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if err := validateAddress(cmd.ShippingAddress); err != nil {
		return OrderResult{}, err
	}
	method := strings.ToLower(strings.TrimSpace(cmd.PaymentMethod))
	if method == "" {
		return OrderResult{}, fmt.Errorf("%w: payment method is required", ErrInvalidInput)
	}
	owner := domain.CartOwner{UserID: userID}

	view, err := s.carts.Materialize(ctx, owner)
	if err != nil {
		return OrderResult{}, err
	}
	if len(view.Cart.Items) == 0 {
		return OrderResult{}, ErrEmptyCart
	}
	if err := s.revalidateLines(ctx, view); err != nil {
		return OrderResult{}, err
	}

	input := CalculationInput{Subtotal: view.Pricing.Subtotal, Lines: view.Lines}
	var discountTotal int64
	var applied []*domain.AppliedDiscount
	for _, snapshot := range []*domain.AppliedDiscount{view.Cart.Coupon, view.Cart.Voucher} {
		if snapshot == nil {
			applied = append(applied, nil)
			continue
		}
		calc, err := s.discounts.Evaluate(ctx, snapshot.Code, input)
		if err != nil {
			return OrderResult{}, err
		}
		discountTotal += calc.Amount
		applied = append(applied, &calc.Applied)
	}
	discountTotal = min(discountTotal, view.Pricing.Subtotal)

	now := s.clock()
	billing := cmd.ShippingAddress
	if cmd.BillingAddress != nil {
		billing = *cmd.BillingAddress
	}

	shipping := s.shipping(ctx, view, cmd.ShippingAddress)
	tax := s.tax(ctx, view, cmd.ShippingAddress)

	order := domain.Order{
		ID:              orderIDPrefix + s.newID(),
		UserID:          userID,
		Status:          domain.OrderStatusPending,
		Currency:        view.Cart.Currency,
		Items:           snapshotLines(view.Lines),
		Coupon:          applied[0],
		Voucher:         applied[1],
		ShippingAddress: cmd.ShippingAddress,
		BillingAddress:  billing,
		PaymentMethod:   method,
		Notes:           s.sanitize(cmd.Notes),
		CreatedAt:       now,
		UpdatedAt:       now,
		Totals: domain.OrderTotals{
			Subtotal: view.Pricing.Subtotal,
			Discount: discountTotal,
			Shipping: shipping,
			Tax:      tax,
			Total:    view.Pricing.Subtotal - discountTotal + shipping + tax,
		},
	}

	var marked []string
	for _, snapshot := range applied {
		if snapshot == nil {
			continue
		}
		if _, err := s.discounts.MarkUsed(ctx, snapshot.Code, userID); err != nil {
			s.releaseDiscounts(ctx, marked, userID)
			return OrderResult{}, err
		}
		marked = append(marked, snapshot.Code)
	}

	if err := s.insertWithNumber(ctx, &order, now); err != nil {
		s.logger(ctx, "order.create.failed", map[string]any{
			"orderId": order.ID,
			"userId":  userID,
			"error":   err.Error(),
		})
		s.releaseDiscounts(ctx, marked, userID)
		return OrderResult{}, err
	}

	var warnings []Warning
	reserved := s.inventory.ReserveLines(ctx, stockLines(order.Items, false))
	if len(reserved.Applied) > 0 {
		markReserved(&order, reserved.Applied)
		if err := s.orders.UpdateStatus(ctx, order, domain.OrderStatusPending); err != nil {
			s.logger(ctx, "order.reservation.persist.failed", map[string]any{"orderId": order.ID, "error": err.Error()})
			if isConflict(err) {
				// the order left PENDING before the hold was recorded, so nothing else will release it
				restored := s.inventory.RestoreLines(ctx, reserved.Applied)
				warnings = append(warnings, restored.Warnings(warnStockRestore)...)
			}
		}
	}
	warnings = append(warnings, reserved.Warnings(warnStockReserve)...)

	if _, err := s.carts.Clear(ctx, owner); err != nil {
		s.logger(ctx, "order.cart.clear.failed", map[string]any{"orderId": order.ID, "error": err.Error()})
		warnings = append(warnings, Warning{Code: warnCartClear, Message: err.Error()})
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		CurrentStatus: string(order.Status),
		ActorID:       userID,
		Total:         order.Totals.Total,
		Currency:      order.Currency,
		OccurredAt:    now,
		Metadata:      map[string]any{"paymentMethod": method, "itemCount": order.ItemCount()},
	})

	return OrderResult{
		Summary:  summarize(order),
		Order:    order,
		Warnings: warnings,
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, userID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, mapRepositoryError(err, ErrOrderNotFound, nil)
	}
	if userID = strings.TrimSpace(userID); userID != "" && order.UserID != userID {
		return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error) {
	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID:     strings.TrimSpace(filter.UserID),
		Status:     filter.Status,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, mapRepositoryError(err, nil, nil)
	}
	return page, nil
}

// TransitionStatus moves an order along the status table on behalf of staff or fulfilment.
func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderTransitionCommand) (OrderTransitionResult, error) {
	order, err := s.GetOrder(ctx, cmd.OrderID, "")
	if err != nil {
		return OrderTransitionResult{}, err
	}
	if tn := strings.TrimSpace(cmd.TrackingNumber); tn != "" && cmd.TargetStatus == domain.OrderStatusShipped {
		order.TrackingNumber = tn
	}
	return s.transition(ctx, order, cmd.TargetStatus, cmd.ActorID, cmd.Reason)
}

// Cancel is only available to the owner while the order has not shipped.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (OrderTransitionResult, error) {
	order, err := s.GetOrder(ctx, cmd.OrderID, cmd.UserID)
	if err != nil {
		return OrderTransitionResult{}, err
	}
	if !slices.Contains(customerCancellableStatuses, order.Status) {
		return OrderTransitionResult{}, fmt.Errorf("%w: order in status %s cannot be cancelled", ErrInvalidStatusTransition, order.Status)
	}
	return s.transition(ctx, order, domain.OrderStatusCancelled, cmd.UserID, cmd.Reason)
}

func (s *orderService) Return(ctx context.Context, cmd ReturnOrderCommand) (OrderTransitionResult, error) {
	order, err := s.GetOrder(ctx, cmd.OrderID, cmd.UserID)
	if err != nil {
		return OrderTransitionResult{}, err
	}
	if order.Status != domain.OrderStatusDelivered {
		return OrderTransitionResult{}, fmt.Errorf("%w: only delivered orders can be returned", ErrInvalidStatusTransition)
	}
	return s.transition(ctx, order, domain.OrderStatusReturned, cmd.UserID, cmd.Reason)
}

func (s *orderService) transition(ctx context.Context, order domain.Order, target domain.OrderStatus, actor, reason string) (OrderTransitionResult, error) {
	if !canTransition(order.Status, target) {
		return OrderTransitionResult{}, fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, order.Status, target)
	}

	now := s.clock()
	previous := order.Status
	order.Status = target
	order.UpdatedAt = now
	reason = s.sanitize(reason)

	switch target {
	case domain.OrderStatusProcessing:
		eta := now.Add(s.deliveryWindow)
		order.EstimatedDelivery = &eta
	case domain.OrderStatusShipped:
		if order.TrackingNumber == "" {
			order.TrackingNumber = s.tracking()
		}
		order.ShippedAt = &now
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &now
	case domain.OrderStatusCancelled:
		order.CancelledAt = &now
		order.CancelReason = reason
	case domain.OrderStatusReturned:
		order.ReturnedAt = &now
		order.ReturnReason = reason
	}

	// a concurrent transition that already moved the order wins; stock is restored only by the winner
	if err := s.orders.UpdateStatus(ctx, order, previous); err != nil {
		return OrderTransitionResult{}, mapRepositoryError(err, ErrOrderNotFound, ErrInvalidStatusTransition)
	}

	var warnings []Warning
	if target == domain.OrderStatusCancelled || target == domain.OrderStatusReturned {
		warnings = s.restoreStock(ctx, &order)
	}

	metadata := map[string]any{}
	if reason != "" {
		metadata["reason"] = reason
	}
	if order.TrackingNumber != "" && target == domain.OrderStatusShipped {
		metadata["trackingNumber"] = order.TrackingNumber
	}
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        strings.TrimSpace(actor),
		Total:          order.Totals.Total,
		Currency:       order.Currency,
		OccurredAt:     now,
		Metadata:       metadata,
	})

	return OrderTransitionResult{Order: order, Warnings: warnings}, nil
}

// restoreStock returns the units held by each line and clears the per-line reservation so a
// later transition cannot restore them twice.
func (s *orderService) restoreStock(ctx context.Context, order *domain.Order) []Warning {
	if !order.StockReserved {
		return nil
	}
	result := s.inventory.RestoreLines(ctx, stockLines(order.Items, true))
	for _, line := range result.Applied {
		for i := range order.Items {
			item := &order.Items[i]
			if item.ProductID == line.ProductID && item.Color == line.Color && item.Size == line.Size && item.Reserved == line.Quantity {
				item.Reserved = 0
				break
			}
		}
	}
	order.StockReserved = slices.ContainsFunc(order.Items, func(line domain.OrderLine) bool { return line.Reserved > 0 })
	if err := s.orders.Update(ctx, *order); err != nil {
		s.logger(ctx, "order.restore.persist.failed", map[string]any{"orderId": order.ID, "error": err.Error()})
	}
	return result.Warnings(warnStockRestore)
}

// releaseDiscounts returns the uses taken by an order that was never stored.
func (s *orderService) releaseDiscounts(ctx context.Context, codes []string, userID string) {
	for _, code := range codes {
		if err := s.discounts.ReleaseUsage(context.WithoutCancel(ctx), code, userID); err != nil {
			s.logger(ctx, "order.discount.release.failed", map[string]any{
				"code":   code,
				"userId": userID,
				"error":  err.Error(),
			})
		}
	}
}

// insertWithNumber allocates an order number and persists the order, retrying on number collisions.
func (s *orderService) insertWithNumber(ctx context.Context, order *domain.Order, now time.Time) error {
	var lastErr error
	for attempt := 1; attempt <= s.numberAttempts; attempt++ {
		number, err := s.generateOrderNumber(ctx, now)
		if err != nil {
			return fmt.Errorf("%w: order number: %v", ErrInternal, err)
		}
		order.OrderNumber = number

		err = s.orders.Insert(ctx, *order)
		if err == nil {
			return nil
		}
		var repoErr repositories.RepositoryError
		if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
			return mapRepositoryError(err, nil, nil)
		}
		lastErr = err
		s.logger(ctx, "order.number.collision", map[string]any{
			"orderNumber": number,
			"attempt":     attempt,
		})
	}
	return fmt.Errorf("%w: after %d attempts: %v", ErrOrderNumberExhausted, s.numberAttempts, lastErr)
}

func (s *orderService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, "orders", 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%04d-%06d", s.numberPrefix, now.Year(), seq), nil
}

// revalidateLines re-reads stock for every line; any shortfall fails the whole order.
func (s *orderService) revalidateLines(ctx context.Context, view CartView) error {
	if len(view.Lines) != len(view.Cart.Items) {
		for _, item := range view.Cart.Items {
			if !slices.ContainsFunc(view.Lines, func(line domain.PricedLine) bool { return line.ItemID == item.ID }) {
				return fmt.Errorf("%w: %s", ErrProductNotFound, item.ProductID)
			}
		}
	}
	for _, line := range view.Lines {
		if !line.Active {
			return fmt.Errorf("%w: %s", ErrProductInactive, line.ProductName)
		}
		available, err := s.inventory.AvailableStock(ctx, line.ProductID, line.Color, line.Size)
		if err != nil {
			return err
		}
		if available < line.Quantity {
			return fmt.Errorf("%w: %s (%s/%s) has %d left, %d requested",
				ErrInsufficientStock, line.ProductName, line.Color, line.Size, available, line.Quantity)
		}
	}
	return nil
}

func (s *orderService) sanitize(text string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(strings.TrimSpace(text)))
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

func canTransition(current, target domain.OrderStatus) bool {
	return slices.Contains(orderStateTransitions[current], target)
}

func snapshotLines(lines []domain.PricedLine) []domain.OrderLine {
	out := make([]domain.OrderLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, domain.OrderLine{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			ProductCode: line.ProductCode,
			Image:       line.Image,
			Color:       line.Color,
			Size:        line.Size,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			LineTotal:   line.LineTotal,
		})
	}
	return out
}

// stockLines converts order lines to stock lines; reserved selects the held quantity instead of the ordered one.
func stockLines(items []domain.OrderLine, reserved bool) []StockLine {
	out := make([]StockLine, 0, len(items))
	for _, item := range items {
		qty := item.Quantity
		if reserved {
			qty = item.Reserved
		}
		if qty <= 0 {
			continue
		}
		out = append(out, StockLine{ProductID: item.ProductID, Color: item.Color, Size: item.Size, Quantity: qty})
	}
	return out
}

func markReserved(order *domain.Order, applied []StockLine) {
	for _, line := range applied {
		for i := range order.Items {
			item := &order.Items[i]
			if item.Reserved == 0 && item.ProductID == line.ProductID && item.Color == line.Color && item.Size == line.Size {
				item.Reserved = line.Quantity
				break
			}
		}
	}
	order.StockReserved = true
}

func summarize(order domain.Order) OrderSummary {
	return OrderSummary{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		Total:       order.Totals.Total,
		Currency:    order.Currency,
		ItemCount:   order.ItemCount(),
		Status:      order.Status,
	}
}

func validateAddress(addr domain.Address) error {
	var missing []string
	for name, value := range map[string]string{
		"recipient":  addr.Recipient,
		"line1":      addr.Line1,
		"city":       addr.City,
		"postalCode": addr.PostalCode,
		"country":    addr.Country,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("%w: shipping address is missing %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}
