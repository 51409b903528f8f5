package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/Rohansunwar5/sweety-server-sub000/internal/domain"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/repositories"
)

const (
	cartIDPrefix     = "cart_"
	cartItemIDPrefix = "itm_"

	warnDiscountRemoved = "discount_removed"
	warnItemDropped     = "item_dropped"
	warnQuantityCapped  = "quantity_capped"
)

// CartServiceDeps bundles collaborators for the cart manager.
type CartServiceDeps struct {
	Carts           repositories.CartRepository
	Catalog         CatalogService
	Inventory       InventoryService
	Discounts       DiscountService
	DefaultCurrency string
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts     repositories.CartRepository
	catalog   CatalogService
	inventory InventoryService
	discounts DiscountService
	currency  string
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewCartService wires the cart manager.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("cart service: catalog service is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("cart service: inventory service is required")
	}
	if deps.Discounts == nil {
		return nil, errors.New("cart service: discount service is required")
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = "INR"
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

	return &cartService{
		carts:     deps.Carts,
		catalog:   deps.Catalog,
		inventory: deps.Inventory,
		discounts: deps.Discounts,
		currency:  currency,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *cartService) GetOrCreate(ctx context.Context, owner domain.CartOwner) (domain.Cart, error) {
	cart, found, err := s.load(ctx, owner)
	if err != nil {
		return domain.Cart{}, err
	}
	if found {
		return cart, nil
	}
	saved, err := s.carts.Save(ctx, cart)
	if err != nil {
		return domain.Cart{}, mapRepositoryError(err, ErrCartNotFound, nil)
	}
	return saved, nil
}

// Materialize prices the owner's cart from live product data. A missing cart reads as empty.
func (s *cartService) Materialize(ctx context.Context, owner domain.CartOwner) (CartView, error) {
	cart, _, err := s.load(ctx, owner)
	if err != nil {
		return CartView{}, err
	}
	return s.price(ctx, cart)
}

func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (CartResult, error) {
	if cmd.Quantity < 1 {
		return CartResult{}, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	}
	product, color, err := s.resolveVariant(ctx, cmd.ProductID, cmd.Color, cmd.Size)
	if err != nil {
		return CartResult{}, err
	}
	size := strings.TrimSpace(cmd.Size)

	cart, _, err := s.load(ctx, cmd.Owner)
	if err != nil {
		return CartResult{}, err
	}

	now := s.clock()
	key := domain.CartItem{ProductID: product.ID, Color: color, Size: size}.LineKey()
	idx := slices.IndexFunc(cart.Items, func(item domain.CartItem) bool { return item.LineKey() == key })

	requested := cmd.Quantity
	if idx >= 0 {
		requested += cart.Items[idx].Quantity
	}
	if err := s.ensureStock(ctx, product.ID, color, size, requested); err != nil {
		return CartResult{}, err
	}

	if idx >= 0 {
		cart.Items[idx].Quantity = requested
		cart.Items[idx].UpdatedAt = &now
	} else {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:        cartItemIDPrefix + s.newID(),
			ProductID: product.ID,
			Color:     color,
			Size:      size,
			Quantity:  requested,
			AddedAt:   now,
		})
	}
	return s.commit(ctx, cart, nil)
}

func (s *cartService) UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (CartResult, error) {
	if cmd.Quantity < 0 {
		return CartResult{}, fmt.Errorf("%w: quantity must not be negative", ErrInvalidInput)
	}
	if cmd.Quantity == 0 {
		return s.RemoveItem(ctx, cmd.Owner, cmd.ItemID)
	}

	cart, idx, err := s.loadItem(ctx, cmd.Owner, cmd.ItemID)
	if err != nil {
		return CartResult{}, err
	}
	item := cart.Items[idx]
	if _, _, err := s.resolveVariant(ctx, item.ProductID, item.Color, item.Size); err != nil {
		return CartResult{}, err
	}
	if err := s.ensureStock(ctx, item.ProductID, item.Color, item.Size, cmd.Quantity); err != nil {
		return CartResult{}, err
	}

	now := s.clock()
	cart.Items[idx].Quantity = cmd.Quantity
	cart.Items[idx].UpdatedAt = &now
	return s.commit(ctx, cart, nil)
}

func (s *cartService) RemoveItem(ctx context.Context, owner domain.CartOwner, itemID string) (CartResult, error) {
	cart, idx, err := s.loadItem(ctx, owner, itemID)
	if err != nil {
		return CartResult{}, err
	}
	cart.Items = slices.Delete(cart.Items, idx, idx+1)
	return s.commit(ctx, cart, nil)
}

// Clear empties the cart and drops any attached discounts.
func (s *cartService) Clear(ctx context.Context, owner domain.CartOwner) (CartResult, error) {
	cart, found, err := s.load(ctx, owner)
	if err != nil {
		return CartResult{}, err
	}
	if !found || (len(cart.Items) == 0 && cart.Coupon == nil && cart.Voucher == nil) {
		view, err := s.price(ctx, cart)
		return CartResult{Cart: view}, err
	}
	cart.Items = nil
	cart.Coupon = nil
	cart.Voucher = nil
	return s.save(ctx, cart, nil)
}

func (s *cartService) Delete(ctx context.Context, owner domain.CartOwner) error {
	if owner.Key() == "" {
		return fmt.Errorf("%w: cart owner is required", ErrInvalidInput)
	}
	if err := s.carts.Delete(ctx, owner); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return nil
		}
		return mapRepositoryError(err, ErrCartNotFound, nil)
	}
	return nil
}

func (s *cartService) ApplyDiscount(ctx context.Context, owner domain.CartOwner, code string) (CartResult, error) {
	cart, _, err := s.load(ctx, owner)
	if err != nil {
		return CartResult{}, err
	}
	if len(cart.Items) == 0 {
		return CartResult{}, fmt.Errorf("%w: add items before applying a discount", ErrEmptyCart)
	}

	view, err := s.price(ctx, cart)
	if err != nil {
		return CartResult{}, err
	}
	calc, err := s.discounts.Evaluate(ctx, code, CalculationInput{Subtotal: view.Pricing.Subtotal, Lines: view.Lines})
	if err != nil {
		return CartResult{}, err
	}

	applied := calc.Applied
	if applied.Kind == domain.DiscountKindVoucher {
		cart.Voucher = &applied
	} else {
		cart.Coupon = &applied
	}
	return s.save(ctx, cart, nil)
}

func (s *cartService) RemoveDiscount(ctx context.Context, owner domain.CartOwner, kind domain.DiscountKind) (CartResult, error) {
	cart, _, err := s.load(ctx, owner)
	if err != nil {
		return CartResult{}, err
	}
	switch kind {
	case domain.DiscountKindCoupon:
		cart.Coupon = nil
	case domain.DiscountKindVoucher:
		cart.Voucher = nil
	default:
		return CartResult{}, fmt.Errorf("%w: unknown discount kind %q", ErrInvalidInput, kind)
	}
	return s.save(ctx, cart, nil)
}

// MergeGuestIntoUser folds the guest cart into the user's cart. Lines that cannot be carried over
// are dropped with a warning; shared lines are summed and capped at current stock.
func (s *cartService) MergeGuestIntoUser(ctx context.Context, sessionID, userID string) (CartResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	userID = strings.TrimSpace(userID)
	if sessionID == "" || userID == "" {
		return CartResult{}, fmt.Errorf("%w: session id and user id are required", ErrInvalidInput)
	}
	guestOwner := domain.CartOwner{SessionID: sessionID}
	userOwner := domain.CartOwner{UserID: userID}

	guest, found, err := s.load(ctx, guestOwner)
	if err != nil {
		return CartResult{}, err
	}
	user, _, err := s.load(ctx, userOwner)
	if err != nil {
		return CartResult{}, err
	}
	if !found || len(guest.Items) == 0 {
		if found {
			if err := s.Delete(ctx, guestOwner); err != nil {
				s.logger(ctx, "cart.merge.guest_delete.failed", map[string]any{"sessionId": sessionID, "error": err.Error()})
			}
		}
		view, err := s.price(ctx, user)
		return CartResult{Cart: view}, err
	}

	now := s.clock()
	var warnings []Warning
	for _, item := range guest.Items {
		product, color, err := s.resolveVariant(ctx, item.ProductID, item.Color, item.Size)
		if err != nil {
			warnings = append(warnings, Warning{Code: warnItemDropped, ItemID: item.ID, Message: err.Error()})
			continue
		}
		available, err := s.inventory.AvailableStock(ctx, product.ID, color, item.Size)
		if err != nil {
			warnings = append(warnings, Warning{Code: warnItemDropped, ItemID: item.ID, Message: err.Error()})
			continue
		}

		key := domain.CartItem{ProductID: product.ID, Color: color, Size: item.Size}.LineKey()
		idx := slices.IndexFunc(user.Items, func(existing domain.CartItem) bool { return existing.LineKey() == key })
		requested := item.Quantity
		if idx >= 0 {
			requested += user.Items[idx].Quantity
		}
		quantity := min(requested, available)
		if quantity < requested {
			warnings = append(warnings, Warning{
				Code:    warnQuantityCapped,
				ItemID:  item.ID,
				Message: fmt.Sprintf("%s %s/%s capped at %d", product.Name, color, item.Size, available),
			})
		}

		switch {
		case idx >= 0 && quantity < 1:
			user.Items = slices.Delete(user.Items, idx, idx+1)
		case idx >= 0:
			user.Items[idx].Quantity = quantity
			user.Items[idx].UpdatedAt = &now
		case quantity >= 1:
			user.Items = append(user.Items, domain.CartItem{
				ID:        cartItemIDPrefix + s.newID(),
				ProductID: product.ID,
				Color:     color,
				Size:      item.Size,
				Quantity:  quantity,
				AddedAt:   now,
			})
		}
	}

	result, err := s.commit(ctx, user, warnings)
	if err != nil {
		return CartResult{}, err
	}
	if err := s.Delete(ctx, guestOwner); err != nil {
		s.logger(ctx, "cart.merge.guest_delete.failed", map[string]any{"sessionId": sessionID, "error": err.Error()})
	}
	s.logger(ctx, "cart.merged", map[string]any{"userId": userID, "warnings": len(result.Warnings)})
	return result, nil
}

func (s *cartService) ValidateItems(ctx context.Context, owner domain.CartOwner) (CartValidation, error) {
	cart, _, err := s.load(ctx, owner)
	if err != nil {
		return CartValidation{}, err
	}
	if len(cart.Items) == 0 {
		return CartValidation{Issues: []CartIssue{{Code: ErrEmptyCart.Code, Message: ErrEmptyCart.Message}}}, nil
	}

	issues := make([]CartIssue, 0)
	for _, item := range cart.Items {
		issue := CartIssue{
			ItemID:    item.ID,
			ProductID: item.ProductID,
			Color:     item.Color,
			Size:      item.Size,
			Requested: item.Quantity,
		}
		if _, _, err := s.resolveVariant(ctx, item.ProductID, item.Color, item.Size); err != nil {
			issue.Code, issue.Message = CodeOf(err), err.Error()
			issues = append(issues, issue)
			continue
		}
		available, err := s.inventory.AvailableStock(ctx, item.ProductID, item.Color, item.Size)
		if err != nil {
			issue.Code, issue.Message = CodeOf(err), err.Error()
			issues = append(issues, issue)
			continue
		}
		if available < item.Quantity {
			issue.Code = ErrInsufficientStock.Code
			issue.Message = fmt.Sprintf("only %d left", available)
			issue.Available = available
			issues = append(issues, issue)
		}
	}
	return CartValidation{Valid: len(issues) == 0, Issues: issues}, nil
}

// commit re-prices attached discounts against the new contents and persists the cart.
func (s *cartService) commit(ctx context.Context, cart domain.Cart, warnings []Warning) (CartResult, error) {
	return s.save(ctx, cart, append(warnings, s.reapplyDiscounts(ctx, &cart)...))
}

func (s *cartService) save(ctx context.Context, cart domain.Cart, warnings []Warning) (CartResult, error) {
	cart.UpdatedAt = s.clock()
	saved, err := s.carts.Save(ctx, cart)
	if err != nil {
		return CartResult{}, mapRepositoryError(err, ErrCartNotFound, nil)
	}
	view, err := s.price(ctx, saved)
	if err != nil {
		return CartResult{}, err
	}
	return CartResult{Cart: view, Warnings: warnings}, nil
}

// reapplyDiscounts recomputes every attached discount. A discount that no longer applies is
// removed from the cart and reported as a warning rather than failing the mutation.
func (s *cartService) reapplyDiscounts(ctx context.Context, cart *domain.Cart) []Warning {
	if cart.Coupon == nil && cart.Voucher == nil {
		return nil
	}

	var warnings []Warning
	drop := func(slot **domain.AppliedDiscount, err error) {
		code := (*slot).Code
		*slot = nil
		s.logger(ctx, "cart.discount.reapply.failed", map[string]any{
			"cartId": cart.ID,
			"code":   code,
			"error":  err.Error(),
		})
		warnings = append(warnings, Warning{
			Code:    warnDiscountRemoved,
			Message: fmt.Sprintf("discount %s was removed: %v", code, err),
		})
	}

	view, err := s.price(ctx, *cart)
	for _, slot := range []**domain.AppliedDiscount{&cart.Coupon, &cart.Voucher} {
		if *slot == nil {
			continue
		}
		if err != nil {
			drop(slot, err)
			continue
		}
		if len(cart.Items) == 0 {
			drop(slot, ErrEmptyCart)
			continue
		}
		calc, evalErr := s.discounts.Evaluate(ctx, (*slot).Code, CalculationInput{Subtotal: view.Pricing.Subtotal, Lines: view.Lines})
		if evalErr != nil {
			drop(slot, evalErr)
			continue
		}
		applied := calc.Applied
		*slot = &applied
	}
	return warnings
}

// price joins cart lines with live product data. Lines whose product no longer exists are skipped.
func (s *cartService) price(ctx context.Context, cart domain.Cart) (CartView, error) {
	ids := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return CartView{}, err
	}

	view := CartView{Cart: cart, Lines: make([]domain.PricedLine, 0, len(cart.Items))}
	var subtotal int64
	for _, item := range cart.Items {
		product, ok := products[item.ProductID]
		if !ok {
			continue
		}
		line := domain.PricedLine{
			ItemID:      item.ID,
			ProductID:   product.ID,
			ProductName: product.Name,
			ProductCode: product.Code,
			CategoryID:  product.CategoryID,
			Image:       product.PrimaryImage(item.Color),
			Color:       item.Color,
			Size:        item.Size,
			Quantity:    item.Quantity,
			UnitPrice:   product.Price,
			LineTotal:   product.Price * int64(item.Quantity),
			Active:      product.Active,
		}
		if variant, ok := product.Color(item.Color); ok {
			line.Available, _ = variant.Stock(item.Size)
		}
		subtotal += line.LineTotal
		view.Lines = append(view.Lines, line)
	}

	pricing := domain.PricingBreakdown{Currency: cart.Currency, Subtotal: subtotal}
	if cart.Coupon != nil {
		pricing.Coupon = cart.Coupon.Amount
	}
	if cart.Voucher != nil {
		pricing.Voucher = cart.Voucher.Amount
	}
	pricing.Discount = min(pricing.Coupon+pricing.Voucher, subtotal)
	pricing.Total = subtotal - pricing.Discount
	view.Pricing = pricing
	return view, nil
}

func (s *cartService) load(ctx context.Context, owner domain.CartOwner) (domain.Cart, bool, error) {
	if owner.Key() == "" {
		return domain.Cart{}, false, fmt.Errorf("%w: user id or session id is required", ErrInvalidInput)
	}
	cart, err := s.carts.Get(ctx, owner)
	if err == nil {
		return cart, true, nil
	}
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		return domain.Cart{}, false, mapRepositoryError(err, ErrCartNotFound, nil)
	}
	now := s.clock()
	return domain.Cart{
		ID:        cartIDPrefix + s.newID(),
		Owner:     owner,
		Currency:  s.currency,
		Items:     []domain.CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}, false, nil
}

func (s *cartService) loadItem(ctx context.Context, owner domain.CartOwner, itemID string) (domain.Cart, int, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return domain.Cart{}, -1, fmt.Errorf("%w: item id is required", ErrInvalidInput)
	}
	cart, found, err := s.load(ctx, owner)
	if err != nil {
		return domain.Cart{}, -1, err
	}
	if !found {
		return domain.Cart{}, -1, ErrCartNotFound
	}
	idx := slices.IndexFunc(cart.Items, func(item domain.CartItem) bool { return item.ID == itemID })
	if idx < 0 {
		return domain.Cart{}, -1, fmt.Errorf("%w: %s", ErrCartItemNotFound, itemID)
	}
	return cart, idx, nil
}

// resolveVariant loads an active product and resolves the color, defaulting to the first one.
func (s *cartService) resolveVariant(ctx context.Context, productID, color, size string) (domain.Product, string, error) {
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, "", err
	}
	if !product.Active {
		return domain.Product{}, "", fmt.Errorf("%w: %s", ErrProductInactive, product.Name)
	}
	variant, ok := product.Color(strings.TrimSpace(color))
	if !ok {
		return domain.Product{}, "", fmt.Errorf("%w: %s has no color %q", ErrVariantNotFound, product.Name, color)
	}
	if _, ok := variant.Stock(strings.TrimSpace(size)); !ok {
		return domain.Product{}, "", fmt.Errorf("%w: %s has no size %q in %s", ErrVariantNotFound, product.Name, size, variant.Name)
	}
	return product, variant.Name, nil
}

func (s *cartService) ensureStock(ctx context.Context, productID, color, size string, quantity int) error {
	available, err := s.inventory.AvailableStock(ctx, productID, color, size)
	if err != nil {
		return err
	}
	if available < quantity {
		return fmt.Errorf("%w: only %d left for %s/%s, %d requested", ErrInsufficientStock, available, color, size, quantity)
	}
	return nil
}
