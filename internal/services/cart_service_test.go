package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/Rohansunwar5/sweety-server-sub000/internal/domain"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/repositories"
)

func TestCartAddItemMergesIdenticalLines(t *testing.T) {
	f := newFixture(t)
	f.seedProduct("p1", 49900, map[string]int{"M": 3})
	owner := domain.CartOwner{UserID: "user-1"}

	f.addToCart(t, owner, "p1", "M", 1)
	result := f.addToCart(t, owner, "p1", "M", 2)

	require.Len(t, result.Cart.Cart.Items, 1)
	item := result.Cart.Cart.Items[0]
	assert.Equal(t, 3, item.Quantity)
	assert.Equal(t, "Red", item.Color, "color defaults to the first variant")
	assert.Equal(t, int64(3*49900), result.Cart.Pricing.Subtotal)
	assert.Equal(t, int64(3*49900), result.Cart.Pricing.Total)

	_, err := f.carts.AddItem(context.Background(), AddCartItemCommand{Owner: owner, ProductID: "p1", Size: "M", Quantity: 1})
	assert.ErrorIs(t, err, ErrInsufficientStock, "combined quantity is validated against stock")
}

func TestCartAddItemRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inactive := f.seedProduct("off", 1000, map[string]int{"M": 5})
	inactive.Active = false
	f.store.PutProduct(inactive)
	f.seedProduct("p1", 1000, map[string]int{"M": 1})
	owner := domain.CartOwner{SessionID: "sess-1"}

	_, err := f.carts.AddItem(ctx, AddCartItemCommand{Owner: owner, ProductID: "off", Size: "M", Quantity: 1})
	assert.ErrorIs(t, err, ErrProductInactive)

	_, err = f.carts.AddItem(ctx, AddCartItemCommand{Owner: owner, ProductID: "p1", Size: "M", Quantity: 2})
	assert.ErrorIs(t, err, ErrInsufficientStock)

	_, err = f.carts.AddItem(ctx, AddCartItemCommand{Owner: owner, ProductID: "p1", Size: "XXL", Quantity: 1})
	assert.ErrorIs(t, err, ErrVariantNotFound)

	_, err = f.carts.AddItem(ctx, AddCartItemCommand{Owner: owner, ProductID: "missing", Size: "M", Quantity: 1})
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = f.carts.AddItem(ctx, AddCartItemCommand{Owner: owner, ProductID: "p1", Size: "M", Quantity: 0})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCartApplyDiscountToEmptyCartFails(t *testing.T) {
	f := newFixture(t)
	f.seedDiscount(domain.Discount{Code: "TEN", Type: domain.DiscountTypePercentage, Value: 10})

	_, err := f.carts.ApplyDiscount(context.Background(), domain.CartOwner{UserID: "user-1"}, "TEN")
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, KindBadRequest, KindOf(err))
}

func TestCartApplyDiscountFillsSlotByKind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedProduct("p1", 10000, map[string]int{"M": 5})
	f.seedDiscount(domain.Discount{Code: "TEN", Type: domain.DiscountTypePercentage, Value: 10})
	f.seedDiscount(domain.Discount{Code: "GIFT", Kind: domain.DiscountKindVoucher, Type: domain.DiscountTypeFixed, Value: 500})
	owner := domain.CartOwner{UserID: "user-1"}
	f.addToCart(t, owner, "p1", "M", 2)

	_, err := f.carts.ApplyDiscount(ctx, owner, "ten")
	require.NoError(t, err)
	result, err := f.carts.ApplyDiscount(ctx, owner, "GIFT")
	require.NoError(t, err)

	pricing := result.Cart.Pricing
	assert.Equal(t, int64(20000), pricing.Subtotal)
	assert.Equal(t, int64(2000), pricing.Coupon)
	assert.Equal(t, int64(500), pricing.Voucher)
	assert.Equal(t, int64(17500), pricing.Total)

	result, err = f.carts.RemoveDiscount(ctx, owner, domain.DiscountKindVoucher)
	require.NoError(t, err)
	assert.Nil(t, result.Cart.Cart.Voucher)
	assert.NotNil(t, result.Cart.Cart.Coupon)
}

func TestCartMutationReappliesDiscount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedProduct("p1", 10000, map[string]int{"M": 5})
	f.seedDiscount(domain.Discount{Code: "TEN", Type: domain.DiscountTypePercentage, Value: 10})
	f.seedDiscount(domain.Discount{Code: "BIG", Kind: domain.DiscountKindVoucher, Type: domain.DiscountTypeFixed, Value: 500, MinPurchase: ptr[int64](20000)})
	owner := domain.CartOwner{UserID: "user-1"}

	f.addToCart(t, owner, "p1", "M", 2)
	_, err := f.carts.ApplyDiscount(ctx, owner, "TEN")
	require.NoError(t, err)
	_, err = f.carts.ApplyDiscount(ctx, owner, "BIG")
	require.NoError(t, err)

	result := f.addToCart(t, owner, "p1", "M", 1)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, int64(3000), result.Cart.Cart.Coupon.Amount, "coupon is re-priced on the new subtotal")

	itemID := result.Cart.Cart.Items[0].ID
	result, err = f.carts.UpdateItem(ctx, UpdateCartItemCommand{Owner: owner, ItemID: itemID, Quantity: 1})
	require.NoError(t, err)
	assert.Nil(t, result.Cart.Cart.Voucher, "voucher below its minimum purchase is dropped")
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, warnDiscountRemoved, result.Warnings[0].Code)
	assert.Equal(t, int64(1000), result.Cart.Cart.Coupon.Amount)

	result, err = f.carts.RemoveItem(ctx, owner, itemID)
	require.NoError(t, err)
	assert.Empty(t, result.Cart.Cart.Items)
	assert.Nil(t, result.Cart.Cart.Coupon)
	assert.Len(t, result.Warnings, 1)
}

func TestCartMaterializeUsesLivePrices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := f.seedProduct("p1", 1000, map[string]int{"S": 4})
	owner := domain.CartOwner{UserID: "user-1"}
	f.addToCart(t, owner, "p1", "S", 2)

	product.Price = 1500
	f.store.PutProduct(product)

	view, err := f.carts.Materialize(ctx, owner)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, int64(1500), view.Lines[0].UnitPrice)
	assert.Equal(t, int64(3000), view.Pricing.Subtotal)
	assert.Equal(t, 4, view.Lines[0].Available)

	empty, err := f.carts.Materialize(ctx, domain.CartOwner{SessionID: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, empty.Lines)
	assert.Equal(t, "INR", empty.Cart.Currency)
}

func TestCartMergeCapsAtStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedProduct("p1", 1000, map[string]int{"S": 2})
	f.seedProduct("p2", 2000, map[string]int{"M": 5})
	gone := f.seedProduct("p3", 3000, map[string]int{"L": 5})

	user := domain.CartOwner{UserID: "user-1"}
	guest := domain.CartOwner{SessionID: "sess-1"}
	f.addToCart(t, user, "p1", "S", 1)
	f.addToCart(t, guest, "p1", "S", 2)
	f.addToCart(t, guest, "p2", "M", 1)
	f.addToCart(t, guest, "p3", "L", 1)

	gone.Active = false
	f.store.PutProduct(gone)

	result, err := f.carts.MergeGuestIntoUser(ctx, "sess-1", "user-1")
	require.NoError(t, err)

	quantities := map[string]int{}
	for _, item := range result.Cart.Cart.Items {
		quantities[item.ProductID] = item.Quantity
	}
	assert.Equal(t, map[string]int{"p1": 2, "p2": 1}, quantities)

	codes := map[string]bool{}
	for _, w := range result.Warnings {
		codes[w.Code] = true
	}
	assert.True(t, codes[warnQuantityCapped])
	assert.True(t, codes[warnItemDropped])

	_, err = f.store.Carts().Get(ctx, guest)
	assert.Error(t, err, "guest cart is deleted after merge")
}

func TestCartMergeWithoutGuestCart(t *testing.T) {
	f := newFixture(t)
	f.seedProduct("p1", 1000, map[string]int{"S": 2})
	f.addToCart(t, domain.CartOwner{UserID: "user-1"}, "p1", "S", 1)

	result, err := f.carts.MergeGuestIntoUser(context.Background(), "sess-none", "user-1")
	require.NoError(t, err)
	require.Len(t, result.Cart.Cart.Items, 1)
	assert.Empty(t, result.Warnings)
}

func TestCartValidateItemsReportsIssues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedProduct("p1", 1000, map[string]int{"S": 3})
	f.seedProduct("p2", 1000, map[string]int{"M": 3})
	owner := domain.CartOwner{UserID: "user-1"}
	f.addToCart(t, owner, "p1", "S", 3)
	f.addToCart(t, owner, "p2", "M", 1)

	_, err := f.inventory.AdjustStock(ctx, StockAdjustment{ProductID: "p1", Color: "Red", Size: "S", Delta: -2})
	require.NoError(t, err)

	validation, err := f.carts.ValidateItems(ctx, owner)
	require.NoError(t, err)
	assert.False(t, validation.Valid)
	require.Len(t, validation.Issues, 1)
	assert.Equal(t, ErrInsufficientStock.Code, validation.Issues[0].Code)
	assert.Equal(t, 1, validation.Issues[0].Available)

	empty, err := f.carts.ValidateItems(ctx, domain.CartOwner{UserID: "user-2"})
	require.NoError(t, err)
	assert.False(t, empty.Valid)
}

func TestCartClearAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedProduct("p1", 1000, map[string]int{"S": 3})
	owner := domain.CartOwner{UserID: "user-1"}
	f.addToCart(t, owner, "p1", "S", 1)

	f.now = f.now.Add(time.Minute)
	result, err := f.carts.Clear(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, result.Cart.Cart.Items)
	assert.Equal(t, f.now, result.Cart.Cart.UpdatedAt)

	require.NoError(t, f.carts.Delete(ctx, owner))
	require.NoError(t, f.carts.Delete(ctx, owner))

	_, err = f.carts.RemoveItem(ctx, owner, "itm_missing")
	assert.ErrorIs(t, err, ErrCartNotFound)
}

// stickyCarts refuses to delete guest carts.
type stickyCarts struct {
	repositories.CartRepository
}

func (c stickyCarts) Delete(ctx context.Context, owner domain.CartOwner) error {
	if owner.SessionID != "" {
		return errors.New("delete rejected")
	}
	return c.CartRepository.Delete(ctx, owner)
}

func TestCartMergeEmptyGuestCartLogsDeleteFailure(t *testing.T) {
	f := newFixture(t, withCartRepository(func(repo repositories.CartRepository) repositories.CartRepository {
		return stickyCarts{CartRepository: repo}
	}))
	ctx := context.Background()
	f.seedProduct("p1", 1000, map[string]int{"S": 2})
	guest := domain.CartOwner{SessionID: "sess-1"}
	added := f.addToCart(t, guest, "p1", "S", 1)
	_, err := f.carts.RemoveItem(ctx, guest, added.Cart.Cart.Items[0].ID)
	require.NoError(t, err)
	f.addToCart(t, domain.CartOwner{UserID: "user-1"}, "p1", "S", 1)

	result, err := f.carts.MergeGuestIntoUser(ctx, "sess-1", "user-1")
	require.NoError(t, err)
	require.Len(t, result.Cart.Cart.Items, 1)
	assert.True(t, f.logs.has("cart.merge.guest_delete.failed"))
}
