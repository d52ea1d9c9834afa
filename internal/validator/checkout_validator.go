package validator

import (
	"fmt"

	"gaojie/internal/usecase"
)

type checkoutValidator struct {
	v *Validator
}

func NewCheckoutValidator(v *Validator) usecase.CheckoutValidator {
	return &checkoutValidator{v: v}
}

func (c *checkoutValidator) ValidatePlaceOrder(in usecase.PlaceOrderInput) error {
	// ゲストはemailで注文を紐付ける
	if in.UserID <= 0 && in.Email == "" {
		return fmt.Errorf("%w: email is required for guest checkout", ErrInvalidInput)
	}
	return c.v.Struct(in)
}
