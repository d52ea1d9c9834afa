package validator

import (
	"fmt"

	"gaojie/internal/usecase"
)

type catalogValidator struct {
	v *Validator
}

func NewCatalogValidator(v *Validator) usecase.CatalogValidator {
	return &catalogValidator{v: v}
}

func (c *catalogValidator) ValidateProduct(in usecase.ProductInput) error {
	if err := c.v.Struct(in); err != nil {
		return err
	}
	if in.OriginalPrice.Valid && in.OriginalPrice.Decimal.LessThan(in.Price) {
		return fmt.Errorf("%w: original_price must not be below price", ErrInvalidInput)
	}
	return nil
}

func (c *catalogValidator) ValidateBadge(in usecase.BadgeInput) error {
	return c.v.Struct(in)
}
