package cache

import (
	"context"
	"testing"
	"time"

	"gaojie/internal/domain/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*CartRedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCartRedisStore(client, time.Hour), mr
}

func TestCartRedisStore_GetMissingReturnsEmpty(t *testing.T) {
	s, _ := newStore(t)

	cart, err := s.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", cart.SessionID)
	assert.Empty(t, cart.Items)
}

func TestCartRedisStore_SaveAndGet(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	err := s.Save(ctx, model.Cart{
		SessionID: "sess-1",
		Items: []model.CartItem{
			{ProductID: 3, Quantity: 2, PriceSnapshot: decimal.RequireFromString("1290.00")},
			{ProductID: 1, Quantity: 1, PriceSnapshot: decimal.RequireFromString("450.50")},
		},
	})
	require.NoError(t, err)

	assert.True(t, mr.Exists("cart:session:sess-1"))
	assert.Equal(t, time.Hour, mr.TTL("cart:session:sess-1"))

	cart, err := s.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)
	assert.Equal(t, int64(3), cart.Items[0].ProductID)
	assert.True(t, decimal.RequireFromString("1290").Equal(cart.Items[0].PriceSnapshot))
	assert.False(t, cart.UpdatedAt.IsZero())
}

func TestCartRedisStore_SaveEmptyDeletes(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, model.Cart{SessionID: "s", Items: []model.CartItem{{ProductID: 1, Quantity: 1}}}))
	require.NoError(t, s.Save(ctx, model.Cart{SessionID: "s"}))

	assert.False(t, mr.Exists("cart:session:s"))
}

func TestCartRedisStore_Expires(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, model.Cart{SessionID: "s", Items: []model.CartItem{{ProductID: 1, Quantity: 1}}}))
	mr.FastForward(2 * time.Hour)

	cart, err := s.Get(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}
