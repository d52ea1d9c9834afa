package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gaojie/internal/domain/model"
	"gaojie/internal/payment"
	repo "gaojie/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type AdminOrderUsecase struct {
	tx             repo.TransactionManager
	audits         repo.AuditLogRepository
	recons         repo.ReconciliationRepository
	gateway        payment.Gateway
	currency       string
	paymentTimeout time.Duration
	logger         *zap.Logger
	now            func() time.Time
}

func NewAdminOrderUsecase(
	tx repo.TransactionManager,
	audits repo.AuditLogRepository,
	recons repo.ReconciliationRepository,
	gateway payment.Gateway,
	currency string,
	paymentTimeout time.Duration,
	logger *zap.Logger,
) *AdminOrderUsecase {
	if paymentTimeout <= 0 {
		paymentTimeout = 20 * time.Second
	}
	return &AdminOrderUsecase{
		tx:             tx,
		audits:         audits,
		recons:         recons,
		gateway:        gateway,
		currency:       currency,
		paymentTimeout: paymentTimeout,
		logger:         logger,
		now:            time.Now,
	}
}

type AdminUpdateOrderStatusInput struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

// Amountが空なら残額を全額返金
type AdminRefundInput struct {
	Amount *decimal.Decimal `json:"amount"`
	Note   string           `json:"note"`
}

type AdminUpdatePaymentStatusInput struct {
	PaymentStatus string `json:"payment_status"`
	Note          string `json:"note"`
}

// 管理画面では社内メモも返す
type AdminOrderOutput struct {
	OrderOutput
	AdminNotes     string          `json:"admin_notes"`
	RefundedAmount decimal.Decimal `json:"refunded_amount"`
	CanRefund      bool            `json:"can_refund"`
	Transitions    []string        `json:"allowed_transitions"`
}

type AdminOrderListOutput struct {
	Items []AdminOrderOutput `json:"items"`
	Total int64              `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}

var allStatuses = []model.OrderStatus{
	model.OrderStatusPending,
	model.OrderStatusConfirmed,
	model.OrderStatusProcessing,
	model.OrderStatusShipped,
	model.OrderStatusDelivered,
	model.OrderStatusCancelled,
	model.OrderStatusRefunded,
}

func toAdminOrderOutput(o model.Order, items []model.OrderItem) AdminOrderOutput {
	next := []string{}
	for _, s := range allStatuses {
		if o.Status.CanTransitionTo(s) {
			next = append(next, string(s))
		}
	}
	return AdminOrderOutput{
		OrderOutput:    toOrderOutput(o, items),
		AdminNotes:     o.AdminNotes,
		RefundedAmount: o.RefundedAmount,
		CanRefund:      o.CanBeRefunded(),
		Transitions:    next,
	}
}

type orderAudit struct {
	Status         model.OrderStatus   `json:"status"`
	PaymentStatus  model.PaymentStatus `json:"payment_status"`
	RefundedAmount string              `json:"refunded_amount,omitempty"`
}

func orderAuditJSON(o model.Order) string {
	a := orderAudit{Status: o.Status, PaymentStatus: o.PaymentStatus}
	if !o.RefundedAmount.IsZero() {
		a.RefundedAmount = o.RefundedAmount.StringFixed(2)
	}
	return auditJSON(a)
}

// 注文一覧
func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) (AdminOrderListOutput, error) {
	if f.Page < 1 {
		return AdminOrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return AdminOrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if f.Status != "" {
		if _, ok := model.ParseOrderStatus(f.Status); !ok {
			return AdminOrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		f.Status = strings.ToLower(strings.TrimSpace(f.Status))
	}

	out := AdminOrderListOutput{Page: f.Page, Limit: f.Limit}
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListAdmin(ctx, f)
		if err != nil {
			return dbError(err)
		}
		out.Total = total
		out.Items = make([]AdminOrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return dbError(err)
			}
			out.Items = append(out.Items, toAdminOrderOutput(o, items))
		}
		return nil
	})
	if err != nil {
		return AdminOrderListOutput{}, err
	}
	return out, nil
}

func (u *AdminOrderUsecase) Get(ctx context.Context, orderID int64) (AdminOrderOutput, error) {
	if orderID <= 0 {
		return AdminOrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var out AdminOrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err != nil {
			return mapRepoError(err)
		}
		items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return dbError(err)
		}
		out = toAdminOrderOutput(o, items)
		return nil
	})
	if err != nil {
		return AdminOrderOutput{}, err
	}
	return out, nil
}

func (u *AdminOrderUsecase) load(ctx context.Context, orderID int64) (model.Order, error) {
	var o model.Order
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		found, err := r.Orders().FindByID(ctx, orderID)
		if err != nil {
			return mapRepoError(err)
		}
		o = found
		return nil
	})
	return o, err
}

// 遷移表に従って更新。cancelledなら在庫戻し、決済済みなら先に返金する
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actorAdminUserID int64, orderID int64, in AdminUpdateOrderStatusInput) (AdminOrderOutput, error) {
	if actorAdminUserID <= 0 {
		return AdminOrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return AdminOrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	next, ok := model.ParseOrderStatus(in.Status)
	if !ok {
		return AdminOrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	note := strings.TrimSpace(in.Note)
	if len(note) > 1000 {
		return AdminOrderOutput{}, NewHTTPError(http.StatusBadRequest, "note too long")
	}
	if next == model.OrderStatusRefunded {
		return u.Refund(ctx, actorAdminUserID, orderID, AdminRefundInput{Note: note})
	}

	current, err := u.load(ctx, orderID)
	if err != nil {
		return AdminOrderOutput{}, err
	}
	// すでに同じなら何もしない
	if current.Status == next {
		return u.Get(ctx, orderID)
	}
	if !current.Status.CanTransitionTo(next) {
		return AdminOrderOutput{}, transitionError(current.Status, next)
	}

	refunded := false
	if next == model.OrderStatusCancelled && current.CanBeRefunded() {
		if _, err := u.refundCharge(ctx, current, current.RefundableAmount()); err != nil {
			return AdminOrderOutput{}, err
		}
		refunded = true
	}

	var out AdminOrderOutput
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return mapRepoError(err)
		}
		// 読み込み後に他の管理者が変更した
		if o.Status != current.Status {
			return wrapHTTPError(http.StatusConflict, "order was modified concurrently", model.ErrInvalidTransition)
		}
		before := orderAuditJSON(o)

		items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return dbError(err)
		}

		now := u.now()
		switch next {
		case model.OrderStatusShipped:
			o.ShippedAt = &now
		case model.OrderStatusDelivered:
			o.DeliveredAt = &now
		case model.OrderStatusCancelled:
			for _, it := range items {
				if err := r.Inventory().IncreaseStock(ctx, it.ProductID, it.Quantity); err != nil {
					return dbError(err)
				}
			}
			if refunded {
				o.PaymentStatus = model.PaymentStatusRefunded
				o.RefundedAmount = o.TotalAmount
			}
		}

		msg := fmt.Sprintf("Status changed from %s to %s", o.Status, next)
		if note != "" {
			msg += ": " + note
		}
		o.Status = next
		o.AdminNotes = appendNote(o.AdminNotes, now, msg)

		if err := r.Orders().UpdateState(ctx, o); err != nil {
			return mapRepoError(err)
		}
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  actorAdminUserID,
			Action:       model.AuditActionUpdateOrderStatus,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   o.ID,
			BeforeJSON:   before,
			AfterJSON:    orderAuditJSON(o),
		}); err != nil {
			return dbError(err)
		}

		out = toAdminOrderOutput(o, items)
		return nil
	})
	if err != nil {
		if refunded {
			u.logger.Error("order cancel failed after refund",
				zap.Int64("order_id", orderID),
				zap.String("charge_id", current.PaymentReference),
				zap.Error(err))
		}
		return AdminOrderOutput{}, err
	}
	return out, nil
}

func transitionError(from, to model.OrderStatus) error {
	return wrapHTTPError(http.StatusBadRequest,
		fmt.Sprintf("cannot change status from %s to %s", from, to), model.ErrInvalidTransition)
}

// 手動入金確認など
func (u *AdminOrderUsecase) UpdatePaymentStatus(ctx context.Context, actorAdminUserID int64, orderID int64, in AdminUpdatePaymentStatusInput) (AdminOrderOutput, error) {
	if actorAdminUserID <= 0 {
		return AdminOrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return AdminOrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	next := model.PaymentStatus(strings.ToLower(strings.TrimSpace(in.PaymentStatus)))
	switch next {
	case model.PaymentStatusPending, model.PaymentStatusProcessing, model.PaymentStatusCompleted, model.PaymentStatusFailed:
	case model.PaymentStatusRefunded:
		// 返金はゲートウェイ経由のみ
		return AdminOrderOutput{}, NewHTTPError(http.StatusBadRequest, "use the refund endpoint")
	default:
		return AdminOrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid payment status")
	}
	note := strings.TrimSpace(in.Note)

	var out AdminOrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return mapRepoError(err)
		}
		if o.PaymentStatus == next {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return dbError(err)
			}
			out = toAdminOrderOutput(o, items)
			return nil
		}
		if !o.PaymentStatus.CanTransitionTo(next) {
			return wrapHTTPError(http.StatusBadRequest,
				fmt.Sprintf("cannot change payment status from %s to %s", o.PaymentStatus, next), model.ErrInvalidTransition)
		}
		if o.Status.IsTerminal() {
			return wrapHTTPError(http.StatusBadRequest, "order is closed", model.ErrInvalidTransition)
		}
		before := orderAuditJSON(o)

		msg := fmt.Sprintf("Payment status changed from %s to %s", o.PaymentStatus, next)
		if note != "" {
			msg += ": " + note
		}
		o.PaymentStatus = next
		o.AdminNotes = appendNote(o.AdminNotes, u.now(), msg)
		if err := r.Orders().UpdateState(ctx, o); err != nil {
			return mapRepoError(err)
		}
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  actorAdminUserID,
			Action:       model.AuditActionUpdateOrderStatus,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   o.ID,
			BeforeJSON:   before,
			AfterJSON:    orderAuditJSON(o),
		}); err != nil {
			return dbError(err)
		}

		items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return dbError(err)
		}
		out = toAdminOrderOutput(o, items)
		return nil
	})
	if err != nil {
		return AdminOrderOutput{}, err
	}
	return out, nil
}

// 課金済みの注文をゲートウェイで返金する。
// 残額に達したら status / payment_status を refunded にし、部分返金なら状態はそのまま
func (u *AdminOrderUsecase) Refund(ctx context.Context, actorAdminUserID int64, orderID int64, in AdminRefundInput) (AdminOrderOutput, error) {
	if actorAdminUserID <= 0 {
		return AdminOrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return AdminOrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	note := strings.TrimSpace(in.Note)
	if len(note) > 1000 {
		return AdminOrderOutput{}, NewHTTPError(http.StatusBadRequest, "note too long")
	}
	current, err := u.load(ctx, orderID)
	if err != nil {
		return AdminOrderOutput{}, err
	}
	if !current.CanBeRefunded() {
		return AdminOrderOutput{}, wrapHTTPError(http.StatusBadRequest, "order cannot be refunded", model.ErrInvalidTransition)
	}

	remaining := current.RefundableAmount()
	amount := remaining
	if in.Amount != nil {
		amount = in.Amount.Round(2)
		if !amount.IsPositive() || amount.GreaterThan(remaining) {
			return AdminOrderOutput{}, wrapHTTPError(http.StatusBadRequest,
				fmt.Sprintf("refund amount must be between 0.01 and %s", remaining.StringFixed(2)), ErrValidation)
		}
	}
	refundID, err := u.refundCharge(ctx, current, amount)
	if err != nil {
		return AdminOrderOutput{}, err
	}

	var out AdminOrderOutput
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return mapRepoError(err)
		}
		// 読み込み後に別の返金が入った
		if !o.RefundedAmount.Equal(current.RefundedAmount) {
			return wrapHTTPError(http.StatusConflict, "order was modified concurrently", model.ErrInvalidTransition)
		}
		before := orderAuditJSON(o)

		o.RefundedAmount = o.RefundedAmount.Add(amount)
		var msg string
		if o.RefundableAmount().IsPositive() {
			msg = fmt.Sprintf("Partial refund %s %s (%s)", amount.StringFixed(2), u.currency, refundID)
		} else {
			msg = "Order refunded"
			o.Status = model.OrderStatusRefunded
			o.PaymentStatus = model.PaymentStatusRefunded
		}
		if note != "" {
			msg += ": " + note
		}
		o.AdminNotes = appendNote(o.AdminNotes, u.now(), msg)
		if err := r.Orders().UpdateState(ctx, o); err != nil {
			return mapRepoError(err)
		}
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  actorAdminUserID,
			Action:       model.AuditActionRefundOrder,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   o.ID,
			BeforeJSON:   before,
			AfterJSON:    orderAuditJSON(o),
		}); err != nil {
			return dbError(err)
		}

		items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return dbError(err)
		}
		out = toAdminOrderOutput(o, items)
		return nil
	})
	if err != nil {
		u.logger.Error("refund issued but order not updated",
			zap.Int64("order_id", orderID),
			zap.String("charge_id", current.PaymentReference),
			zap.String("refund_id", refundID),
			zap.String("amount", amount.StringFixed(2)),
			zap.Error(err))
		return AdminOrderOutput{}, err
	}
	return out, nil
}

// 残額すべてで未返金ならAmountMinor=0（ゲートウェイ側で全額）
func (u *AdminOrderUsecase) refundCharge(ctx context.Context, o model.Order, amount decimal.Decimal) (string, error) {
	if o.PaymentReference == "" {
		return "", wrapHTTPError(http.StatusBadRequest, "order has no payment reference", model.ErrInvalidTransition)
	}
	var minor int64
	if !(o.RefundedAmount.IsZero() && amount.Equal(o.TotalAmount)) {
		m, err := payment.ToMinorUnits(amount, u.currency)
		if err != nil {
			return "", wrapHTTPError(http.StatusBadRequest, "invalid refund amount", fmt.Errorf("%w: %w", ErrValidation, err))
		}
		minor = m
	}
	refundedMinor, err := payment.ToMinorUnits(o.RefundedAmount, u.currency)
	if err != nil {
		return "", wrapHTTPError(http.StatusInternalServerError, "internal server error", err)
	}

	rctx, cancel := context.WithTimeout(ctx, u.paymentTimeout)
	defer cancel()

	res, err := u.gateway.Refund(rctx, payment.RefundRequest{
		ChargeID:    o.PaymentReference,
		AmountMinor: minor,
		// 同じ残高からの再試行は同じ返金として扱われる
		IdempotencyKey: fmt.Sprintf("refund-%s-%d-%d", o.OrderNumber, refundedMinor, minor),
	})
	if err != nil {
		ge, ok := payment.AsGatewayError(err)
		if ok && !ge.Transport {
			u.logger.Info("refund declined", zap.String("order_number", o.OrderNumber), zap.String("reason", ge.Reason))
			return "", wrapHTTPError(http.StatusPaymentRequired, ge.Reason, fmt.Errorf("%w: %w", model.ErrPaymentFailed, err))
		}
		u.logger.Warn("refund outcome unknown", zap.String("order_number", o.OrderNumber), zap.Error(err))
		return "", wrapHTTPError(http.StatusBadGateway, "refund could not be confirmed", fmt.Errorf("%w: %w", model.ErrPaymentFailed, err))
	}
	u.logger.Info("refund issued",
		zap.String("order_number", o.OrderNumber),
		zap.String("refund_id", res.ID),
		zap.String("charge_id", o.PaymentReference),
		zap.String("amount", amount.StringFixed(2)))
	return res.ID, nil
}

type ReconciliationListOutput struct {
	Items []model.PaymentReconciliation `json:"items"`
	Total int64                         `json:"total"`
	Page  int                           `json:"page"`
	Limit int                           `json:"limit"`
}

func (u *AdminOrderUsecase) ListReconciliations(ctx context.Context, resolved *bool, page int, limit int) (ReconciliationListOutput, error) {
	page, limit = normalizePage(page, limit, 20)
	items, total, err := u.recons.List(ctx, resolved, page, limit)
	if err != nil {
		return ReconciliationListOutput{}, dbError(err)
	}
	return ReconciliationListOutput{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// 手動で返金 / 注文再作成を済ませた後に呼ぶ
func (u *AdminOrderUsecase) ResolveReconciliation(ctx context.Context, actorAdminUserID int64, id int64) (model.PaymentReconciliation, error) {
	if actorAdminUserID <= 0 {
		return model.PaymentReconciliation{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if id <= 0 {
		return model.PaymentReconciliation{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rec, err := u.recons.FindByID(ctx, id)
	if err != nil {
		return model.PaymentReconciliation{}, mapRepoError(err)
	}
	if rec.Resolved {
		return rec, nil
	}

	now := u.now()
	if err := u.recons.MarkResolved(ctx, id, now); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.PaymentReconciliation{}, notFound()
		}
		return model.PaymentReconciliation{}, dbError(err)
	}
	before := auditJSON(rec)
	rec.Resolved = true
	rec.ResolvedAt = &now

	if err := u.audits.Create(ctx, model.AuditLog{
		ActorUserID:  actorAdminUserID,
		Action:       model.AuditActionResolvePayment,
		ResourceType: model.AuditResourceReconciliation,
		ResourceID:   id,
		BeforeJSON:   before,
		AfterJSON:    auditJSON(rec),
	}); err != nil {
		u.logger.Warn("write audit log", zap.Int64("reconciliation_id", id), zap.Error(err))
	}
	return rec, nil
}

func (u *AdminOrderUsecase) ListAuditLogs(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, int64, error) {
	f.Page, f.Limit = normalizePage(f.Page, f.Limit, 20)
	logs, total, err := u.audits.List(ctx, f)
	if err != nil {
		return []model.AuditLog{}, 0, dbError(err)
	}
	return logs, total, nil
}
