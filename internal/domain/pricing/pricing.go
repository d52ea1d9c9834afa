// Package pricing computes order totals from priced lines and a promo code.
// It never touches storage; callers pass products already loaded.
package pricing

import (
	"fmt"
	"strings"

	"gaojie/internal/domain/model"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

// 送料無料判定に使う金額
type ShippingBasis string

const (
	BasisDiscounted ShippingBasis = "discounted"
	BasisSubtotal   ShippingBasis = "subtotal"
)

func ParseShippingBasis(s string) (ShippingBasis, error) {
	switch ShippingBasis(strings.ToLower(strings.TrimSpace(s))) {
	case "", BasisDiscounted:
		return BasisDiscounted, nil
	case BasisSubtotal:
		return BasisSubtotal, nil
	}
	return "", fmt.Errorf("unknown shipping basis %q", s)
}

type Promo struct {
	Code         string
	Rate         decimal.Decimal
	FreeShipping bool
}

type Rules struct {
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	ShippingFee           decimal.Decimal
	Basis                 ShippingBasis
	Currency              string
	Promos                map[string]Promo
}

func DefaultPromos() map[string]Promo {
	return map[string]Promo{
		"welcome15":   {Code: "welcome15", Rate: decimal.RequireFromString("0.15")},
		"save10":      {Code: "save10", Rate: decimal.RequireFromString("0.10")},
		"newcustomer": {Code: "newcustomer", Rate: decimal.RequireFromString("0.20")},
		"freeship":    {Code: "freeship", Rate: decimal.Zero, FreeShipping: true},
	}
}

// VAT 7%、฿999以上で送料無料、それ以外は฿100
func DefaultRules() Rules {
	return Rules{
		TaxRate:               decimal.RequireFromString("0.07"),
		FreeShippingThreshold: decimal.NewFromInt(999),
		ShippingFee:           decimal.NewFromInt(100),
		Basis:                 BasisDiscounted,
		Currency:              "THB",
		Promos:                DefaultPromos(),
	}
}

var fold = cases.Fold()

// 大文字小文字を区別しない
func (r Rules) LookupPromo(code string) (Promo, bool) {
	key := fold.String(strings.TrimSpace(code))
	if key == "" {
		return Promo{}, false
	}
	p, ok := r.Promos[key]
	return p, ok
}

type Totals struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	Discount  decimal.Decimal `json:"discount_amount"`
	Tax       decimal.Decimal `json:"tax_amount"`
	Shipping  decimal.Decimal `json:"shipping_amount"`
	Total     decimal.Decimal `json:"total_amount"`
	PromoCode string          `json:"promo_code,omitempty"`
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// 在庫チェックなしで合計を出す（カート表示用）
func (r Rules) Totals(subtotal decimal.Decimal, promoCode string) Totals {
	t := Totals{Subtotal: round(subtotal), Discount: decimal.Zero}

	promo, ok := r.LookupPromo(promoCode)
	if ok {
		t.PromoCode = promo.Code
		t.Discount = round(t.Subtotal.Mul(promo.Rate))
	}
	taxable := t.Subtotal.Sub(t.Discount)

	basis := taxable
	if r.Basis == BasisSubtotal {
		basis = t.Subtotal
	}
	switch {
	case ok && promo.FreeShipping:
		t.Shipping = decimal.Zero
	case basis.GreaterThanOrEqual(r.FreeShippingThreshold):
		t.Shipping = decimal.Zero
	default:
		t.Shipping = round(r.ShippingFee)
	}

	t.Tax = round(taxable.Mul(r.TaxRate))
	t.Total = t.Subtotal.Sub(t.Discount).Add(t.Tax).Add(t.Shipping)
	return t
}

type Line struct {
	Product  model.Product
	Quantity int64
}

type QuotedLine struct {
	Product   model.Product
	Quantity  int64
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

type Quote struct {
	Lines []QuotedLine
	Totals
}

// LineError identifies the line that made a quote fail.
type LineError struct {
	ProductID int64
	Name      string
	Requested int64
	Available int64
	Err       error
}

func (e *LineError) Error() string {
	if e.Err == model.ErrOutOfStock {
		return fmt.Sprintf("insufficient stock for %s: only %d available", e.Name, e.Available)
	}
	if e.Err == model.ErrProductUnavailable {
		return fmt.Sprintf("product %s is no longer available", e.Name)
	}
	return fmt.Sprintf("invalid quantity %d for %s", e.Requested, e.Name)
}

func (e *LineError) Unwrap() error { return e.Err }

// Quote prices the lines in order. Inactive or deleted products and short
// tracked stock abort the whole quote.
func (r Rules) Quote(lines []Line, promoCode string) (Quote, error) {
	if len(lines) == 0 {
		return Quote{}, fmt.Errorf("%w: no items", model.ErrValidation)
	}

	q := Quote{Lines: make([]QuotedLine, 0, len(lines))}
	subtotal := decimal.Zero
	for _, l := range lines {
		p := l.Product
		if l.Quantity < 1 {
			return Quote{}, &LineError{ProductID: p.ID, Name: p.Name, Requested: l.Quantity, Err: model.ErrValidation}
		}
		if !p.IsActive || p.DeletedAt.Valid {
			return Quote{}, &LineError{ProductID: p.ID, Name: p.Name, Requested: l.Quantity, Err: model.ErrProductUnavailable}
		}
		if !p.CanFulfil(l.Quantity) {
			return Quote{}, &LineError{
				ProductID: p.ID,
				Name:      p.Name,
				Requested: l.Quantity,
				Available: p.StockQuantity,
				Err:       model.ErrOutOfStock,
			}
		}

		lineTotal := round(p.Price.Mul(decimal.NewFromInt(l.Quantity)))
		q.Lines = append(q.Lines, QuotedLine{
			Product:   p,
			Quantity:  l.Quantity,
			UnitPrice: p.Price,
			LineTotal: lineTotal,
		})
		subtotal = subtotal.Add(lineTotal)
	}

	q.Totals = r.Totals(subtotal, promoCode)
	return q, nil
}
