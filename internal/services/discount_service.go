package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/Rohansunwar5/sweety-server-sub000/internal/domain"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/repositories"
)

const discountIDPrefix = "dsc_"

// DiscountServiceDeps bundles collaborators for the discount engine.
type DiscountServiceDeps struct {
	Discounts   repositories.DiscountRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type discountService struct {
	repo   repositories.DiscountRepository
	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewDiscountService wires the discount engine.
func NewDiscountService(deps DiscountServiceDeps) (DiscountService, error) {
	if deps.Discounts == nil {
		return nil, errors.New("discount service: discount repository is required")
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

	return &discountService{
		repo: deps.Discounts,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// NormalizeCode trims and upper-cases a discount code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks the preconditions in a fixed order so an expired discount always reports expiry.
func (s *discountService) Validate(discount domain.Discount, subtotal int64, now time.Time) error {
	switch {
	case !discount.Active:
		return fmt.Errorf("%w: %s", ErrDiscountInactive, discount.Code)
	case !discount.ValidFrom.IsZero() && now.Before(discount.ValidFrom):
		return fmt.Errorf("%w: %s starts at %s", ErrDiscountNotYetValid, discount.Code, discount.ValidFrom.Format(time.RFC3339))
	case !discount.ValidUntil.IsZero() && now.After(discount.ValidUntil):
		return fmt.Errorf("%w: %s ended at %s", ErrDiscountExpired, discount.Code, discount.ValidUntil.Format(time.RFC3339))
	case discount.UsageLimit != nil && discount.UsedCount >= *discount.UsageLimit:
		return fmt.Errorf("%w: %s", ErrDiscountUsageLimitReached, discount.Code)
	case discount.MinPurchase != nil && subtotal < *discount.MinPurchase:
		return fmt.Errorf("%w: requires %d, cart has %d", ErrMinPurchaseNotMet, *discount.MinPurchase, subtotal)
	}
	return nil
}

// Calculate prices discount against input. Amounts are rounded once, after capping.
func (s *discountService) Calculate(discount domain.Discount, input CalculationInput) Calculation {
	subtotal := input.Subtotal
	if subtotal < 0 {
		subtotal = 0
	}

	var raw float64
	switch discount.Type {
	case domain.DiscountTypePercentage:
		raw = float64(subtotal) * discount.Value / 100
		if discount.MaxDiscount != nil {
			raw = math.Min(raw, float64(*discount.MaxDiscount))
		}
	case domain.DiscountTypeFixed:
		raw = math.Min(discount.Value, float64(subtotal))
	case domain.DiscountTypeBuyXGetY:
		raw = float64(buyXGetYAmount(discount, input.Lines))
	}

	amount := int64(math.Round(math.Max(raw, 0)))
	if amount > subtotal {
		amount = subtotal
	}

	return Calculation{
		Amount:          amount,
		DiscountedTotal: subtotal - amount,
		Applied: domain.AppliedDiscount{
			DiscountID: discount.ID,
			Code:       discount.Code,
			Kind:       discount.Kind,
			Type:       discount.Type,
			Amount:     amount,
		},
	}
}

// buyXGetYAmount sums the cheapest eligible units that become free. Complete groups of
// BuyX+GetY units earn GetY free units each; a trailing partial group that reached BuyX
// earns min(GetY, remainder-BuyX) more.
func buyXGetYAmount(discount domain.Discount, lines []domain.PricedLine) int64 {
	group := discount.BuyX + discount.GetY
	if discount.BuyX <= 0 || discount.GetY <= 0 {
		return 0
	}

	var prices []int64
	for _, line := range lines {
		if !discountApplies(discount, line) {
			continue
		}
		for range line.Quantity {
			prices = append(prices, line.UnitPrice)
		}
	}

	n := len(prices)
	complete := n / group
	free := complete * discount.GetY
	if remainder := n - complete*group; remainder >= discount.BuyX {
		free += min(discount.GetY, remainder-discount.BuyX)
	}
	if free == 0 {
		return 0
	}

	sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })
	var amount int64
	for _, price := range prices[:min(free, n)] {
		amount += price
	}
	return amount
}

func discountApplies(discount domain.Discount, line domain.PricedLine) bool {
	if slices.Contains(discount.ExcludedProducts, line.ProductID) {
		return false
	}
	if len(discount.ApplicableCategories) > 0 && !slices.Contains(discount.ApplicableCategories, line.CategoryID) {
		return false
	}
	return true
}

func (s *discountService) Evaluate(ctx context.Context, code string, input CalculationInput) (Calculation, error) {
	code = NormalizeCode(code)
	if code == "" {
		return Calculation{}, fmt.Errorf("%w: discount code is required", ErrInvalidInput)
	}
	discount, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return Calculation{}, mapRepositoryError(err, ErrDiscountNotFound, nil)
	}
	if err := s.Validate(discount, input.Subtotal, s.clock()); err != nil {
		return Calculation{}, err
	}
	return s.Calculate(discount, input), nil
}

func (s *discountService) MarkUsed(ctx context.Context, code string, userID string) (domain.Discount, error) {
	code = NormalizeCode(code)
	userID = strings.TrimSpace(userID)
	if code == "" || userID == "" {
		return domain.Discount{}, fmt.Errorf("%w: code and user id are required", ErrInvalidInput)
	}

	discount, err := s.repo.MarkUsed(ctx, code, userID, s.clock())
	if err != nil {
		var discErr *repositories.DiscountError
		if errors.As(err, &discErr) {
			switch discErr.Code {
			case repositories.DiscountErrorAlreadyUsed:
				return domain.Discount{}, fmt.Errorf("%w: %s", ErrAlreadyUsedByUser, code)
			case repositories.DiscountErrorUsageLimit:
				return domain.Discount{}, fmt.Errorf("%w: %s", ErrDiscountUsageLimitReached, code)
			case repositories.DiscountErrorNotFound:
				return domain.Discount{}, fmt.Errorf("%w: %s", ErrDiscountNotFound, code)
			}
		}
		return domain.Discount{}, mapRepositoryError(err, ErrDiscountNotFound, nil)
	}

	s.logger(ctx, "discount.used", map[string]any{
		"code":      code,
		"userId":    userID,
		"usedCount": discount.UsedCount,
	})
	return discount, nil
}

// ReleaseUsage gives back a use recorded by MarkUsed when the order it was taken for is abandoned.
func (s *discountService) ReleaseUsage(ctx context.Context, code string, userID string) error {
	code = NormalizeCode(code)
	userID = strings.TrimSpace(userID)
	if code == "" || userID == "" {
		return fmt.Errorf("%w: code and user id are required", ErrInvalidInput)
	}
	if err := s.repo.ReleaseUsage(ctx, code, userID, s.clock()); err != nil {
		var discErr *repositories.DiscountError
		if errors.As(err, &discErr) && discErr.Code == repositories.DiscountErrorNotFound {
			return fmt.Errorf("%w: %s", ErrDiscountNotFound, code)
		}
		return mapRepositoryError(err, ErrDiscountNotFound, nil)
	}
	s.logger(ctx, "discount.released", map[string]any{"code": code, "userId": userID})
	return nil
}

func (s *discountService) Create(ctx context.Context, input DiscountInput) (domain.Discount, error) {
	if err := validateDiscountInput(&input); err != nil {
		return domain.Discount{}, err
	}

	now := s.clock()
	discount := applyDiscountInput(domain.Discount{
		ID:        discountIDPrefix + s.newID(),
		UsedBy:    []string{},
		CreatedAt: now,
	}, input)
	discount.UpdatedAt = now

	if err := s.repo.Insert(ctx, discount); err != nil {
		return domain.Discount{}, mapRepositoryError(err, nil, ErrDiscountCodeTaken)
	}
	return discount, nil
}

func (s *discountService) Update(ctx context.Context, discountID string, input DiscountInput) (domain.Discount, error) {
	if err := validateDiscountInput(&input); err != nil {
		return domain.Discount{}, err
	}
	current, err := s.Get(ctx, discountID)
	if err != nil {
		return domain.Discount{}, err
	}

	updated := applyDiscountInput(current, input)
	updated.UpdatedAt = s.clock()
	if err := s.repo.Update(ctx, updated); err != nil {
		return domain.Discount{}, mapRepositoryError(err, ErrDiscountNotFound, ErrDiscountCodeTaken)
	}
	return updated, nil
}

func (s *discountService) Get(ctx context.Context, discountID string) (domain.Discount, error) {
	discountID = strings.TrimSpace(discountID)
	if discountID == "" {
		return domain.Discount{}, fmt.Errorf("%w: discount id is required", ErrInvalidInput)
	}
	discount, err := s.repo.FindByID(ctx, discountID)
	if err != nil {
		return domain.Discount{}, mapRepositoryError(err, ErrDiscountNotFound, nil)
	}
	return discount, nil
}

func (s *discountService) List(ctx context.Context, filter DiscountListFilter) (domain.CursorPage[domain.Discount], error) {
	page, err := s.repo.List(ctx, repositories.DiscountListFilter{
		Kind:       filter.Kind,
		ActiveOnly: filter.ActiveOnly,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[domain.Discount]{}, mapRepositoryError(err, nil, nil)
	}
	return page, nil
}

// Delete refuses to remove a discount that has been consumed by an order.
func (s *discountService) Delete(ctx context.Context, discountID string) error {
	discount, err := s.Get(ctx, discountID)
	if err != nil {
		return err
	}
	if discount.UsedCount > 0 {
		return fmt.Errorf("%w: %s used %d times", ErrDiscountInUse, discount.Code, discount.UsedCount)
	}
	if err := s.repo.Delete(ctx, discount.ID); err != nil {
		return mapRepositoryError(err, ErrDiscountNotFound, nil)
	}
	return nil
}

func validateDiscountInput(input *DiscountInput) error {
	input.Code = NormalizeCode(input.Code)
	input.Description = strings.TrimSpace(input.Description)

	var problems []string
	if input.Code == "" {
		problems = append(problems, "code is required")
	} else if strings.ContainsFunc(input.Code, func(r rune) bool {
		return !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_')
	}) {
		problems = append(problems, "code may only contain letters, digits, '-' and '_'")
	}
	if input.Kind != domain.DiscountKindCoupon && input.Kind != domain.DiscountKindVoucher {
		problems = append(problems, "kind must be coupon or voucher")
	}
	switch input.Type {
	case domain.DiscountTypePercentage:
		if input.Value <= 0 || input.Value > 100 {
			problems = append(problems, "percentage value must be in (0, 100]")
		}
	case domain.DiscountTypeFixed:
		if input.Value <= 0 {
			problems = append(problems, "fixed value must be positive")
		}
	case domain.DiscountTypeBuyXGetY:
		if input.BuyX < 1 || input.GetY < 1 {
			problems = append(problems, "buyX and getY must be at least 1")
		}
	default:
		problems = append(problems, "type must be percentage, fixed or buyXgetY")
	}
	if input.MinPurchase != nil && *input.MinPurchase < 0 {
		problems = append(problems, "minPurchase must not be negative")
	}
	if input.MaxDiscount != nil && *input.MaxDiscount < 0 {
		problems = append(problems, "maxDiscount must not be negative")
	}
	if input.UsageLimit != nil && *input.UsageLimit < 0 {
		problems = append(problems, "usageLimit must not be negative")
	}
	if !input.ValidFrom.IsZero() && !input.ValidUntil.IsZero() && !input.ValidUntil.After(input.ValidFrom) {
		problems = append(problems, "validUntil must be after validFrom")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

func applyDiscountInput(d domain.Discount, input DiscountInput) domain.Discount {
	d.Code = input.Code
	d.Description = input.Description
	d.Kind = input.Kind
	d.Type = input.Type
	d.Value = input.Value
	d.MinPurchase = input.MinPurchase
	d.MaxDiscount = input.MaxDiscount
	d.BuyX = input.BuyX
	d.GetY = input.GetY
	d.ApplicableCategories = slices.Clone(input.ApplicableCategories)
	d.ExcludedProducts = slices.Clone(input.ExcludedProducts)
	d.ValidFrom = input.ValidFrom.UTC()
	d.ValidUntil = input.ValidUntil.UTC()
	d.UsageLimit = input.UsageLimit
	d.Active = input.Active
	return d
}
