package model_test

import (
	"sync"
	"testing"

	"gaojie/internal/domain/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

func TestOrderStatus_Transitions(t *testing.T) {
	assert.True(t, model.OrderStatusPending.CanTransitionTo(model.OrderStatusConfirmed))
	assert.True(t, model.OrderStatusConfirmed.CanTransitionTo(model.OrderStatusShipped))
	assert.True(t, model.OrderStatusShipped.CanTransitionTo(model.OrderStatusDelivered))
	assert.True(t, model.OrderStatusDelivered.CanTransitionTo(model.OrderStatusRefunded))

	assert.False(t, model.OrderStatusShipped.CanTransitionTo(model.OrderStatusCancelled))
	assert.False(t, model.OrderStatusPending.CanTransitionTo(model.OrderStatusDelivered))
	assert.False(t, model.OrderStatusCancelled.CanTransitionTo(model.OrderStatusPending))

	assert.True(t, model.OrderStatusCancelled.IsTerminal())
	assert.True(t, model.OrderStatusRefunded.IsTerminal())
	assert.False(t, model.OrderStatusPending.IsTerminal())
}

func TestParseOrderStatus(t *testing.T) {
	s, ok := model.ParseOrderStatus(" Shipped ")
	assert.True(t, ok)
	assert.Equal(t, model.OrderStatusShipped, s)

	_, ok = model.ParseOrderStatus("PAID")
	assert.False(t, ok)
}

func TestOrder_CanBeCancelled(t *testing.T) {
	o := model.Order{Status: model.OrderStatusPending, PaymentStatus: model.PaymentStatusPending}
	assert.True(t, o.CanBeCancelled())

	o.PaymentStatus = model.PaymentStatusCompleted
	assert.False(t, o.CanBeCancelled())

	o = model.Order{Status: model.OrderStatusShipped, PaymentStatus: model.PaymentStatusPending}
	assert.False(t, o.CanBeCancelled())

	// 課金済みで未確定のカード決済
	o = model.Order{Status: model.OrderStatusConfirmed, PaymentStatus: model.PaymentStatusProcessing, PaymentReference: "ch_1"}
	assert.True(t, o.HasCapturedCharge())
	assert.False(t, o.CanBeCancelled())

	// 手動の入金確認待ち
	o = model.Order{Status: model.OrderStatusPending, PaymentStatus: model.PaymentStatusProcessing}
	assert.False(t, o.HasCapturedCharge())
	assert.True(t, o.CanBeCancelled())
}

func TestOrder_CanBeRefunded(t *testing.T) {
	o := model.Order{Status: model.OrderStatusDelivered, PaymentStatus: model.PaymentStatusCompleted}
	assert.True(t, o.CanBeRefunded())

	o.Status = model.OrderStatusCancelled
	assert.False(t, o.CanBeRefunded())

	o = model.Order{Status: model.OrderStatusConfirmed, PaymentStatus: model.PaymentStatusProcessing}
	assert.False(t, o.CanBeRefunded())

	o.PaymentReference = "ch_1"
	assert.True(t, o.CanBeRefunded())
}

func TestOrder_ShippingAddressSkipsEmpty(t *testing.T) {
	o := model.Order{
		ShippingAddressLine1: "1 Sukhumvit Rd",
		ShippingCity:         "Bangkok",
		ShippingState:        "Bangkok",
		ShippingPostalCode:   "10110",
		ShippingCountry:      "Thailand",
	}
	assert.Equal(t, "1 Sukhumvit Rd, Bangkok, Bangkok, 10110, Thailand", o.ShippingAddress())
}

func TestProduct_Derived(t *testing.T) {
	p := model.Product{
		Price:             decimal.NewFromInt(750),
		OriginalPrice:     decimal.NewNullDecimal(decimal.NewFromInt(1000)),
		StockQuantity:     3,
		LowStockThreshold: 5,
		TrackInventory:    true,
	}
	assert.True(t, p.IsOnSale())
	assert.Equal(t, int64(25), p.DiscountPercentage())
	assert.True(t, p.IsLowStock())
	assert.True(t, p.CanFulfil(3))
	assert.False(t, p.CanFulfil(4))

	p.TrackInventory = false
	assert.True(t, p.CanFulfil(100))
	assert.False(t, p.IsLowStock())
}

func TestCart_RemoveAndCount(t *testing.T) {
	c := model.Cart{Items: []model.CartItem{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 3},
	}}
	assert.Equal(t, int64(5), c.Count())
	assert.True(t, c.Remove(1))
	assert.False(t, c.Remove(1))
	assert.Equal(t, int64(3), c.Count())
}

// migrationsのidx_orders_user_idemと同じ形
func TestOrder_IdempotencyIndexIsPerUser(t *testing.T) {
	sch, err := schema.Parse(&model.Order{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)

	var idx *schema.Index
	for _, i := range sch.ParseIndexes() {
		if i.Name == "idx_orders_user_idem" {
			idx = i
		}
	}
	require.NotNil(t, idx)
	assert.Equal(t, "UNIQUE", idx.Class)
	assert.Equal(t, "idempotency_key IS NOT NULL", idx.Where)
	require.Len(t, idx.Fields, 2)
	assert.Equal(t, "user_id", idx.Fields[0].DBName)
	assert.Equal(t, "idempotency_key", idx.Fields[1].DBName)
}
