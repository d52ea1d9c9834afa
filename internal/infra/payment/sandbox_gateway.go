package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"gaojie/internal/payment"
)

// SandboxGateway never touches the network. The same idempotency key always
// yields the same charge id.
//
// Tokens starting with tok_fail are declined, tok_pending are paid but unsettled.
type SandboxGateway struct {
	mu      sync.Mutex
	charges map[string]payment.ChargeRequest
}

func NewSandboxGateway() *SandboxGateway {
	return &SandboxGateway{charges: map[string]payment.ChargeRequest{}}
}

func sandboxID(prefix, key string) string {
	sum := sha256.Sum256([]byte(key))
	return prefix + hex.EncodeToString(sum[:])[:16]
}

func (g *SandboxGateway) Charge(ctx context.Context, req payment.ChargeRequest) (payment.ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return payment.ChargeResult{}, &payment.GatewayError{Reason: "payment request cancelled", Code: "cancelled", Transport: true, Err: err}
	}
	if req.AmountMinor <= 0 {
		return payment.ChargeResult{}, &payment.GatewayError{Reason: "invalid amount", Code: "invalid_amount"}
	}
	if strings.HasPrefix(req.Token, "tok_fail") {
		return payment.ChargeResult{}, &payment.GatewayError{Reason: "Your card was declined.", Code: "card_declined"}
	}

	key := req.IdempotencyKey
	if key == "" {
		key = req.Token + "|" + req.Description
	}
	id := sandboxID("sbx_ch_", key)

	g.mu.Lock()
	g.charges[id] = req
	g.mu.Unlock()

	return payment.ChargeResult{
		ID:      id,
		Paid:    true,
		Settled: !strings.HasPrefix(req.Token, "tok_pending"),
	}, nil
}

func (g *SandboxGateway) Refund(ctx context.Context, req payment.RefundRequest) (payment.RefundResult, error) {
	g.mu.Lock()
	charged, ok := g.charges[req.ChargeID]
	g.mu.Unlock()

	// 再起動後の返金も通す（sbx_ch_ならOK）
	if !ok && !strings.HasPrefix(req.ChargeID, "sbx_ch_") {
		return payment.RefundResult{}, &payment.GatewayError{Reason: "no such charge", Code: "resource_missing"}
	}
	if req.AmountMinor < 0 || (ok && req.AmountMinor > charged.AmountMinor) {
		return payment.RefundResult{}, &payment.GatewayError{Reason: "invalid amount", Code: "invalid_amount"}
	}
	amount := req.AmountMinor
	if amount == 0 {
		amount = charged.AmountMinor
	}
	key := req.IdempotencyKey
	if key == "" {
		key = fmt.Sprintf("%s|%d", req.ChargeID, req.AmountMinor)
	}
	return payment.RefundResult{
		ID:          sandboxID("sbx_re_", key),
		ChargeID:    req.ChargeID,
		Status:      "succeeded",
		AmountMinor: amount,
	}, nil
}

// 記録済みの課金（テスト用）
func (g *SandboxGateway) Charged(chargeID string) (payment.ChargeRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	req, ok := g.charges[chargeID]
	return req, ok
}
