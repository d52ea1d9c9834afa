package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gaojie/internal/payment"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"
	"github.com/stripe/stripe-go/v81/refund"
	"go.uber.org/zap"
)

type StripeConfig struct {
	SecretKey string
	Timeout   time.Duration
	//テスト時にhttptestのURLへ向ける
	BaseURL string
}

// StripeGateway charges cards through PaymentIntents confirmed in one call.
// Retries are disabled; the idempotency key is always sent.
type StripeGateway struct {
	intents paymentintent.Client
	refunds refund.Client
	logger  *zap.Logger
}

func NewStripeGateway(cfg StripeConfig, logger *zap.Logger) *StripeGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	bc := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
		EnableTelemetry:   stripe.Bool(false),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if cfg.BaseURL != "" {
		bc.URL = stripe.String(cfg.BaseURL)
	}
	b := stripe.GetBackendWithConfig(stripe.APIBackend, bc)

	return &StripeGateway{
		intents: paymentintent.Client{B: b, Key: cfg.SecretKey},
		refunds: refund.Client{B: b, Key: cfg.SecretKey},
		logger:  logger,
	}
}

func (g *StripeGateway) Charge(ctx context.Context, req payment.ChargeRequest) (payment.ChargeResult, error) {
	if req.AmountMinor <= 0 {
		return payment.ChargeResult{}, &payment.GatewayError{Reason: "invalid amount", Code: "invalid_amount"}
	}
	if strings.TrimSpace(req.Token) == "" {
		return payment.ChargeResult{}, &payment.GatewayError{Reason: "payment token is required", Code: "missing_token"}
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.AmountMinor),
		Currency:           stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod:      stripe.String(req.Token),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Confirm:            stripe.Bool(true),
		Description:        stripe.String(req.Description),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.intents.New(params)
	if err != nil {
		ge := mapStripeError(err)
		g.logger.Warn("stripe charge failed",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Int64("amount_minor", req.AmountMinor),
			zap.String("code", ge.Code),
			zap.Bool("transport", ge.Transport),
			zap.Error(err),
		)
		return payment.ChargeResult{}, ge
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return payment.ChargeResult{ID: pi.ID, Paid: true, Settled: true}, nil
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		return payment.ChargeResult{ID: pi.ID, Paid: true, Settled: false}, nil
	case stripe.PaymentIntentStatusRequiresAction:
		return payment.ChargeResult{ID: pi.ID}, &payment.GatewayError{
			Reason: "card requires additional authentication",
			Code:   "authentication_required",
		}
	default:
		return payment.ChargeResult{ID: pi.ID}, &payment.GatewayError{
			Reason: "payment was not completed",
			Code:   string(pi.Status),
		}
	}
}

func (g *StripeGateway) Refund(ctx context.Context, req payment.RefundRequest) (payment.RefundResult, error) {
	if req.ChargeID == "" {
		return payment.RefundResult{}, &payment.GatewayError{Reason: "missing charge id", Code: "missing_charge"}
	}
	if req.AmountMinor < 0 {
		return payment.RefundResult{}, &payment.GatewayError{Reason: "invalid amount", Code: "invalid_amount"}
	}

	params := &stripe.RefundParams{PaymentIntent: stripe.String(req.ChargeID)}
	if req.AmountMinor > 0 {
		params.Amount = stripe.Int64(req.AmountMinor)
	}
	params.Context = ctx
	key := req.IdempotencyKey
	if key == "" {
		key = fmt.Sprintf("refund-%s-%d", req.ChargeID, req.AmountMinor)
	}
	params.SetIdempotencyKey(key)

	r, err := g.refunds.New(params)
	if err != nil {
		ge := mapStripeError(err)
		g.logger.Warn("stripe refund failed", zap.String("charge_id", req.ChargeID), zap.Error(err))
		return payment.RefundResult{}, ge
	}
	if r.Status == stripe.RefundStatusFailed || r.Status == stripe.RefundStatusCanceled {
		return payment.RefundResult{}, &payment.GatewayError{Reason: "refund was not accepted", Code: string(r.Status)}
	}
	return payment.RefundResult{ID: r.ID, ChargeID: req.ChargeID, Status: string(r.Status), AmountMinor: r.Amount}, nil
}

// stripe.Errorは決済側の判定、それ以外は通信エラー（課金済みの可能性あり）
func mapStripeError(err error) *payment.GatewayError {
	var se *stripe.Error
	if errors.As(err, &se) {
		reason := se.Msg
		if reason == "" {
			reason = "payment was declined"
		}
		code := string(se.Code)
		if se.DeclineCode != "" {
			code = string(se.DeclineCode)
		}
		// 5xxは結果不明
		transport := se.HTTPStatusCode >= http.StatusInternalServerError
		return &payment.GatewayError{Reason: reason, Code: code, Transport: transport, Err: err}
	}
	return &payment.GatewayError{
		Reason:    "payment service unavailable",
		Code:      "gateway_unreachable",
		Transport: true,
		Err:       err,
	}
}
