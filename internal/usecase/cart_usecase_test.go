package usecase

import (
	"context"
	"net/http"
	"testing"

	"gaojie/internal/domain/model"
	"gaojie/internal/domain/pricing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCartFixture(t *testing.T) (*CartUsecase, *memStore, model.Product, model.Product) {
	t.Helper()
	store := newMemStore()
	uc := NewCartUsecase(newMemCartStore(), store.productRepo(), pricing.DefaultRules())
	serum := store.addProduct(model.Product{
		Name: "Hydra Serum", Slug: "hydra-serum", Price: dec("890"),
		StockQuantity: 3, TrackInventory: true, IsActive: true,
	})
	mask := store.addProduct(model.Product{
		Name: "Sheet Mask", Slug: "sheet-mask", Price: dec("120"),
		TrackInventory: false, IsActive: true,
	})
	return uc, store, serum, mask
}

func TestCart_AddMergesAndPrices(t *testing.T) {
	uc, _, serum, mask := newCartFixture(t)
	ctx := context.Background()

	_, err := uc.AddToCart(ctx, "s1", AddCartInput{ProductID: serum.ID, Quantity: 1})
	require.NoError(t, err)
	out, err := uc.AddToCart(ctx, "s1", AddCartInput{ProductID: serum.ID, Quantity: 1})
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	assert.Equal(t, int64(2), out.Items[0].Quantity)
	require.NotNil(t, out.Items[0].StockQuantity)
	assert.Equal(t, int64(3), *out.Items[0].StockQuantity)

	out, err = uc.AddToCart(ctx, "s1", AddCartInput{ProductID: mask.ID, Quantity: 1})
	require.NoError(t, err)
	assert.Nil(t, out.Items[1].StockQuantity)
	assert.Equal(t, int64(3), out.Summary.TotalItems)
	assert.Equal(t, "1900.00", out.Summary.Subtotal.StringFixed(2))
	assert.True(t, out.Summary.FreeShippingEligible)
	assert.Equal(t, "133.00", out.Summary.Tax.StringFixed(2))
	assert.Equal(t, "2033.00", out.Summary.Total.StringFixed(2))
	assert.Equal(t, "THB", out.Summary.Currency)

	withPromo, err := uc.GetCart(ctx, "s1", "save10")
	require.NoError(t, err)
	assert.Equal(t, "190.00", withPromo.Summary.Discount.StringFixed(2))

	n, err := uc.CartCount(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	n, err = uc.CartCount(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCart_StockAndAvailability(t *testing.T) {
	uc, store, serum, _ := newCartFixture(t)
	ctx := context.Background()

	_, err := uc.AddToCart(ctx, "s2", AddCartInput{ProductID: serum.ID, Quantity: 4})
	assert.Equal(t, http.StatusBadRequest, httpStatus(t, err))
	assert.ErrorIs(t, err, model.ErrOutOfStock)

	_, err = uc.AddToCart(ctx, "s2", AddCartInput{ProductID: serum.ID, Quantity: 3})
	require.NoError(t, err)
	_, err = uc.AddToCart(ctx, "s2", AddCartInput{ProductID: serum.ID, Quantity: 1})
	assert.ErrorIs(t, err, model.ErrOutOfStock)

	_, err = uc.AddToCart(ctx, "s2", AddCartInput{ProductID: 424242, Quantity: 1})
	assert.Equal(t, http.StatusNotFound, httpStatus(t, err))
	assert.ErrorIs(t, err, model.ErrProductUnavailable)

	_, err = uc.AddToCart(ctx, "s2", AddCartInput{ProductID: serum.ID, Quantity: 0})
	assert.Equal(t, http.StatusBadRequest, httpStatus(t, err))
	_, err = uc.AddToCart(ctx, "", AddCartInput{ProductID: serum.ID, Quantity: 1})
	assert.Equal(t, http.StatusBadRequest, httpStatus(t, err))

	// 非公開になった商品は表示から外れる
	p := store.product(serum.ID)
	p.IsActive = false
	store.addProduct(p)
	out, err := uc.GetCart(ctx, "s2", "")
	require.NoError(t, err)
	assert.Empty(t, out.Items)
	assert.True(t, out.Summary.Subtotal.IsZero())
}

func TestCart_PriceChangeIsFlagged(t *testing.T) {
	uc, store, serum, _ := newCartFixture(t)
	ctx := context.Background()
	_, err := uc.AddToCart(ctx, "s3", AddCartInput{ProductID: serum.ID, Quantity: 1})
	require.NoError(t, err)

	p := store.product(serum.ID)
	p.Price = dec("790")
	store.addProduct(p)

	out, err := uc.GetCart(ctx, "s3", "")
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	assert.True(t, out.Items[0].PriceChanged)
	assert.Equal(t, "890.00", out.Items[0].OriginalCartPrice.StringFixed(2))
	assert.Equal(t, "790.00", out.Items[0].ItemTotal.StringFixed(2))
}

func TestCart_UpdateRemoveClear(t *testing.T) {
	uc, _, serum, mask := newCartFixture(t)
	ctx := context.Background()
	_, err := uc.AddToCart(ctx, "s4", AddCartInput{ProductID: serum.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = uc.AddToCart(ctx, "s4", AddCartInput{ProductID: mask.ID, Quantity: 2})
	require.NoError(t, err)

	out, err := uc.UpdateCartItem(ctx, "s4", UpdateCartItemInput{ProductID: mask.ID, Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(6), out.Summary.TotalItems)

	_, err = uc.UpdateCartItem(ctx, "s4", UpdateCartItemInput{ProductID: serum.ID, Quantity: 9})
	assert.ErrorIs(t, err, model.ErrOutOfStock)

	out, err = uc.UpdateCartItem(ctx, "s4", UpdateCartItemInput{ProductID: mask.ID, Quantity: 0})
	require.NoError(t, err)
	assert.Len(t, out.Items, 1)

	_, err = uc.RemoveCartItem(ctx, "s4", mask.ID)
	assert.Equal(t, http.StatusNotFound, httpStatus(t, err))
	out, err = uc.RemoveCartItem(ctx, "s4", serum.ID)
	require.NoError(t, err)
	assert.Empty(t, out.Items)

	_, err = uc.AddToCart(ctx, "s4", AddCartInput{ProductID: mask.ID, Quantity: 1})
	require.NoError(t, err)
	require.NoError(t, uc.ClearCart(ctx, "s4"))
	n, err := uc.CartCount(ctx, "s4")
	require.NoError(t, err)
	assert.Zero(t, n)
}
