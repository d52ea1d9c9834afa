package payment_test

import (
	"errors"
	"testing"

	"gaojie/internal/payment"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		amount   string
		currency string
		want     int64
	}{
		{"2760.60", "THB", 276060},
		{"0.07", "thb", 7},
		{"19.995", "THB", 2000},
		{"1063", "THB", 106300},
		{"1500", "JPY", 1500},
		{"1500.5", "JPY", 1501},
	}
	for _, c := range cases {
		got, err := payment.ToMinorUnits(decimal.RequireFromString(c.amount), c.currency)
		assert.NoError(t, err)
		assert.Equal(t, c.want, got, "%s %s", c.amount, c.currency)
	}
}

func TestToMinorUnits_Negative(t *testing.T) {
	_, err := payment.ToMinorUnits(decimal.RequireFromString("-1"), "THB")
	assert.Error(t, err)
}

func TestAsGatewayError(t *testing.T) {
	base := &payment.GatewayError{Reason: "Your card was declined.", Code: "card_declined"}
	wrapped := errors.Join(errors.New("charge"), base)

	ge, ok := payment.AsGatewayError(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "card_declined", ge.Code)
	assert.Contains(t, ge.Error(), "declined")

	_, ok = payment.AsGatewayError(errors.New("x"))
	assert.False(t, ok)
}
