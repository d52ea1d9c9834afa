// Package payment defines the card-charge port used by checkout and refunds.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type ChargeRequest struct {
	//最小通貨単位（THBならサタン）
	AmountMinor int64
	Currency    string
	Token       string
	Description string
	//同じキーの再送は二重課金しない
	IdempotencyKey string
	Metadata       map[string]string
}

type ChargeResult struct {
	ID   string
	Paid bool
	//即時確定したか（falseならprocessing扱い）
	Settled bool
}

type RefundRequest struct {
	ChargeID string
	//0なら残額すべて
	AmountMinor int64
	//部分返金を重ねても別リクエストとして扱われるキー
	IdempotencyKey string
}

type RefundResult struct {
	ID          string
	ChargeID    string
	Status      string
	AmountMinor int64
}

type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
}

// GatewayError is returned for declines and for calls whose outcome is unknown.
// Transport is true when the request may have reached the gateway.
type GatewayError struct {
	Reason    string
	Code      string
	Transport bool
	Err       error
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment gateway: %s (%s)", e.Reason, e.Code)
	}
	return "payment gateway: " + e.Reason
}

func (e *GatewayError) Unwrap() error { return e.Err }

func AsGatewayError(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

var zeroDecimal = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true, "KMF": true,
	"KRW": true, "MGA": true, "PYG": true, "RWF": true, "UGX": true, "VND": true,
	"VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

// ToMinorUnits converts a major-unit amount without passing through float64.
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("negative amount %s", amount)
	}
	scaled := amount
	if !zeroDecimal[strings.ToUpper(currency)] {
		scaled = amount.Shift(2)
	}
	scaled = scaled.Round(0)
	if !scaled.IsInteger() || scaled.GreaterThan(decimal.NewFromInt(1<<53)) {
		return 0, fmt.Errorf("amount %s out of range", amount)
	}
	return scaled.IntPart(), nil
}
