package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gaojie/internal/domain/model"
	"gaojie/internal/domain/pricing"
	"gaojie/internal/payment"
	repo "gaojie/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 入力チェックはvalidatorパッケージで実装
type CheckoutValidator interface {
	ValidatePlaceOrder(in PlaceOrderInput) error
}

type OrderConfig struct {
	Rules          pricing.Rules
	DefaultCountry string
	PaymentTimeout time.Duration
}

type OrderUsecase struct {
	tx        repo.TransactionManager
	users     repo.UserRepository
	carts     repo.CartStore
	recons    repo.ReconciliationRepository
	gateway   payment.Gateway
	validator CheckoutValidator
	cfg       OrderConfig
	logger    *zap.Logger

	now         func() time.Time
	orderNumber func(time.Time) string
}

func NewOrderUsecase(
	tx repo.TransactionManager,
	users repo.UserRepository,
	carts repo.CartStore,
	recons repo.ReconciliationRepository,
	gateway payment.Gateway,
	validator CheckoutValidator,
	cfg OrderConfig,
	logger *zap.Logger,
) *OrderUsecase {
	if cfg.DefaultCountry == "" {
		cfg.DefaultCountry = "Thailand"
	}
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = 20 * time.Second
	}
	return &OrderUsecase{
		tx:          tx,
		users:       users,
		carts:       carts,
		recons:      recons,
		gateway:     gateway,
		validator:   validator,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
		orderNumber: NewOrderNumber,
	}
}

// 衝突時に作り直す回数
const maxOrderNumberAttempts = 5

const maxIdempotencyKeyLen = 128

// GJ + 日付 + ランダム8文字
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "GJ" + now.Format("20060102") + suffix[:8]
}

func (u *OrderUsecase) normalize(in PlaceOrderInput) PlaceOrderInput {
	s := &in.Shipping
	s.FirstName = strings.TrimSpace(s.FirstName)
	s.LastName = strings.TrimSpace(s.LastName)
	s.Company = strings.TrimSpace(s.Company)
	s.AddressLine1 = strings.TrimSpace(s.AddressLine1)
	s.AddressLine2 = strings.TrimSpace(s.AddressLine2)
	s.City = strings.TrimSpace(s.City)
	s.State = strings.TrimSpace(s.State)
	s.PostalCode = strings.TrimSpace(s.PostalCode)
	s.Country = strings.TrimSpace(s.Country)
	s.Phone = strings.TrimSpace(s.Phone)
	if s.Country == "" {
		s.Country = u.cfg.DefaultCountry
	}

	if b := in.Billing; b != nil {
		b.FirstName = strings.TrimSpace(b.FirstName)
		b.LastName = strings.TrimSpace(b.LastName)
		b.Company = strings.TrimSpace(b.Company)
		b.AddressLine1 = strings.TrimSpace(b.AddressLine1)
		b.AddressLine2 = strings.TrimSpace(b.AddressLine2)
		b.City = strings.TrimSpace(b.City)
		b.State = strings.TrimSpace(b.State)
		b.PostalCode = strings.TrimSpace(b.PostalCode)
		b.Country = strings.TrimSpace(b.Country)
		if b.Country == "" {
			b.Country = s.Country
		}
	}

	in.Email = model.NormalizeEmail(in.Email)
	in.PromoCode = strings.TrimSpace(in.PromoCode)
	in.Notes = strings.TrimSpace(in.Notes)
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)

	in.Payment.Method = strings.ToLower(strings.TrimSpace(in.Payment.Method))
	if in.Payment.Method == "" || in.Payment.Method == "credit_card" {
		in.Payment.Method = model.PaymentMethodCard
	}
	in.Payment.Token = strings.TrimSpace(in.Payment.Token)
	return in
}

// 同じ商品の行はまとめる（最初に出た順）
func mergeLines(items []OrderLineInput) []OrderLineInput {
	idx := make(map[int64]int, len(items))
	out := make([]OrderLineInput, 0, len(items))
	for _, it := range items {
		if i, ok := idx[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out
}

// 注文者（ログインユーザー or ゲスト）
type checkoutCustomer struct {
	UserID int64
	Email  string
	// 新規ゲストはTx内で作成
	NewGuest *model.User
	// 既存ゲストの情報更新
	RefreshGuest *model.User
}

func (c checkoutCustomer) id() string {
	if c.UserID > 0 {
		return strconv.FormatInt(c.UserID, 10)
	}
	return c.Email
}

// PlaceOrder runs checkout: price, charge, then persist in one transaction.
// A payment failure leaves nothing behind. A persistence failure after a
// successful charge is reported as ErrPersistenceInconsistency.
func (u *OrderUsecase) PlaceOrder(ctx context.Context, in PlaceOrderInput) (OrderOutput, error) {
	in = u.normalize(in)

	if len(in.Items) == 0 && in.SessionID != "" {
		cart, err := u.carts.Get(ctx, in.SessionID)
		if err != nil {
			u.logger.Error("load cart for checkout", zap.String("session_id", in.SessionID), zap.Error(err))
			return OrderOutput{}, wrapHTTPError(http.StatusInternalServerError, "cart error", err)
		}
		for _, it := range cart.Items {
			in.Items = append(in.Items, OrderLineInput{ProductID: it.ProductID, Quantity: it.Quantity})
		}
	}
	if len(in.Items) == 0 {
		return OrderOutput{}, wrapHTTPError(http.StatusBadRequest, "cart is empty", model.ErrValidation)
	}
	if err := u.validator.ValidatePlaceOrder(in); err != nil {
		return OrderOutput{}, validationError(err)
	}
	if len(in.IdempotencyKey) > maxIdempotencyKeyLen {
		return OrderOutput{}, wrapHTTPError(http.StatusBadRequest, "idempotency key too long", model.ErrValidation)
	}
	lines := mergeLines(in.Items)

	customer, err := u.resolveCustomer(ctx, in)
	if err != nil {
		return OrderOutput{}, err
	}
	in.IdempotencyKey = scopedIdempotencyKey(in)

	if in.IdempotencyKey != "" && customer.UserID > 0 {
		out, found, err := u.findByIdempotencyKey(ctx, customer.UserID, in.IdempotencyKey)
		if err != nil {
			return OrderOutput{}, err
		}
		if found {
			return out, nil
		}
	}

	quote, err := u.quote(ctx, lines, in.PromoCode)
	if err != nil {
		return OrderOutput{}, err
	}

	number, err := u.newUniqueOrderNumber(ctx)
	if err != nil {
		return OrderOutput{}, err
	}

	order := u.buildOrder(number, customer, in, quote)

	var charge *payment.ChargeResult
	if order.PaymentMethod == model.PaymentMethodCard {
		res, err := u.charge(ctx, order, customer, in)
		if err != nil {
			return OrderOutput{}, err
		}
		charge = &res
		order.Status = model.OrderStatusConfirmed
		order.PaymentReference = res.ID
		order.PaymentStatus = model.PaymentStatusProcessing
		if res.Settled {
			order.PaymentStatus = model.PaymentStatusCompleted
		}
	}

	items := snapshotItems(quote)
	chargeID := ""
	if charge != nil {
		chargeID = charge.ID
	}
	out, err := u.persist(ctx, order, items, customer, lines, chargeID)
	if err != nil {
		if charge != nil {
			return OrderOutput{}, u.reportInconsistency(ctx, order, customer, *charge, err)
		}
		return OrderOutput{}, err
	}

	if in.SessionID != "" {
		if err := u.carts.Delete(ctx, in.SessionID); err != nil {
			u.logger.Warn("clear cart after checkout", zap.String("session_id", in.SessionID), zap.Error(err))
		}
	}

	u.logger.Info("order placed",
		zap.String("order_number", out.OrderNumber),
		zap.Int64("user_id", out.UserID),
		zap.String("total", out.TotalAmount.StringFixed(2)),
		zap.String("payment_status", out.PaymentStatus),
	)
	return out, nil
}

// ログイン中ならそのユーザー、ゲストはemailで引き当て（ここでは書き込まない）
// 登録済みアカウントのemailはログインが必要
func (u *OrderUsecase) resolveCustomer(ctx context.Context, in PlaceOrderInput) (checkoutCustomer, error) {
	if in.UserID > 0 {
		user, err := u.users.FindByID(ctx, in.UserID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return checkoutCustomer{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}
			return checkoutCustomer{}, dbError(err)
		}
		return checkoutCustomer{UserID: user.ID, Email: user.Email}, nil
	}

	user, err := u.users.FindByEmail(ctx, in.Email)
	if errors.Is(err, repo.ErrNotFound) {
		return checkoutCustomer{
			Email: in.Email,
			NewGuest: &model.User{
				Email:     in.Email,
				FirstName: in.Shipping.FirstName,
				LastName:  in.Shipping.LastName,
				Phone:     in.Shipping.Phone,
				Role:      model.RoleUser,
				IsGuest:   true,
				IsActive:  true,
			},
		}, nil
	}
	if err != nil {
		return checkoutCustomer{}, dbError(err)
	}
	if !user.IsGuest {
		return checkoutCustomer{}, wrapHTTPError(http.StatusConflict,
			"an account with this email exists; please log in to place the order", ErrConflict)
	}

	user.FirstName = in.Shipping.FirstName
	user.LastName = in.Shipping.LastName
	if in.Shipping.Phone != "" {
		user.Phone = in.Shipping.Phone
	}
	return checkoutCustomer{UserID: user.ID, Email: user.Email, RefreshGuest: &user}, nil
}

// ゲストのキーはカートセッション内でだけ有効。セッションが無ければ使わない
func scopedIdempotencyKey(in PlaceOrderInput) string {
	if in.IdempotencyKey == "" || in.UserID > 0 {
		return in.IdempotencyKey
	}
	if in.SessionID == "" {
		return ""
	}
	return "guest:" + in.SessionID + ":" + in.IdempotencyKey
}

func (u *OrderUsecase) findByIdempotencyKey(ctx context.Context, userID int64, key string) (OrderOutput, bool, error) {
	var (
		out   OrderOutput
		found bool
	)
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, ok, err := r.Orders().FindByIdempotencyKey(ctx, userID, key)
		if err != nil {
			return dbError(err)
		}
		if !ok {
			return nil
		}
		items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return dbError(err)
		}
		out, found = toOrderOutput(o, items), true
		return nil
	})
	return out, found, err
}

func (u *OrderUsecase) quote(ctx context.Context, lines []OrderLineInput, promo string) (pricing.Quote, error) {
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}

	var products []model.Product
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		ps, err := r.Products().FindByIDs(ctx, ids)
		if err != nil {
			return dbError(err)
		}
		products = ps
		return nil
	})
	if err != nil {
		return pricing.Quote{}, err
	}

	byID := make(map[int64]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	priced := make([]pricing.Line, 0, len(lines))
	for _, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok {
			return pricing.Quote{}, wrapHTTPError(http.StatusBadRequest,
				fmt.Sprintf("product %d not found", l.ProductID), model.ErrProductUnavailable)
		}
		priced = append(priced, pricing.Line{Product: p, Quantity: l.Quantity})
	}

	q, err := u.cfg.Rules.Quote(priced, promo)
	if err != nil {
		return pricing.Quote{}, quoteError(err)
	}
	return q, nil
}

func quoteError(err error) error {
	switch {
	case errors.Is(err, model.ErrOutOfStock):
		return wrapHTTPError(http.StatusConflict, err.Error(), err)
	case errors.Is(err, model.ErrProductUnavailable), errors.Is(err, model.ErrValidation):
		return wrapHTTPError(http.StatusBadRequest, err.Error(), err)
	}
	return wrapHTTPError(http.StatusInternalServerError, "pricing error", err)
}

func (u *OrderUsecase) newUniqueOrderNumber(ctx context.Context) (string, error) {
	for i := 0; i < maxOrderNumberAttempts; i++ {
		number := u.orderNumber(u.now())
		var exists bool
		err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			ok, err := r.Orders().ExistsByOrderNumber(ctx, number)
			exists = ok
			return err
		})
		if err != nil {
			return "", dbError(err)
		}
		if !exists {
			return number, nil
		}
	}
	return "", wrapHTTPError(http.StatusInternalServerError, "could not allocate order number", repo.ErrOrderNumberTaken)
}

func (u *OrderUsecase) buildOrder(number string, c checkoutCustomer, in PlaceOrderInput, q pricing.Quote) model.Order {
	o := model.Order{
		OrderNumber:          number,
		UserID:               c.UserID,
		Status:               model.OrderStatusPending,
		PaymentStatus:        model.PaymentStatusPending,
		PaymentMethod:        in.Payment.Method,
		Subtotal:             q.Subtotal,
		DiscountAmount:       q.Discount,
		TaxAmount:            q.Tax,
		ShippingAmount:       q.Shipping,
		TotalAmount:          q.Total,
		PromoCode:            q.PromoCode,
		ShippingFirstName:    in.Shipping.FirstName,
		ShippingLastName:     in.Shipping.LastName,
		ShippingCompany:      in.Shipping.Company,
		ShippingAddressLine1: in.Shipping.AddressLine1,
		ShippingAddressLine2: in.Shipping.AddressLine2,
		ShippingCity:         in.Shipping.City,
		ShippingState:        in.Shipping.State,
		ShippingPostalCode:   in.Shipping.PostalCode,
		ShippingCountry:      in.Shipping.Country,
		ShippingPhone:        in.Shipping.Phone,
		OrderNotes:           in.Notes,

		BillingSameAsShipping: in.Billing == nil,
	}
	if b := in.Billing; b != nil {
		o.BillingFirstName = b.FirstName
		o.BillingLastName = b.LastName
		o.BillingCompany = b.Company
		o.BillingAddressLine1 = b.AddressLine1
		o.BillingAddressLine2 = b.AddressLine2
		o.BillingCity = b.City
		o.BillingState = b.State
		o.BillingPostalCode = b.PostalCode
		o.BillingCountry = b.Country
	}
	if in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		o.IdempotencyKey = &key
	}
	return o
}

func snapshotItems(q pricing.Quote) []model.OrderItem {
	items := make([]model.OrderItem, 0, len(q.Lines))
	for _, l := range q.Lines {
		items = append(items, model.OrderItem{
			ProductID:       l.Product.ID,
			ProductName:     l.Product.Name,
			ProductSlug:     l.Product.Slug,
			ProductCategory: l.Product.Category,
			ProductSize:     l.Product.Size,
			ProductImage:    l.Product.PrimaryImage,
			UnitPrice:       l.UnitPrice,
			Quantity:        l.Quantity,
			TotalPrice:      l.LineTotal,
		})
	}
	return items
}

// 決済キー。クライアントのキーがあれば注文者ごとに使う
func gatewayIdempotencyKey(c checkoutCustomer, in PlaceOrderInput, orderNumber string) string {
	switch {
	case in.IdempotencyKey == "":
		return orderNumber
	case in.UserID > 0:
		return "order-" + c.id() + "-" + in.IdempotencyKey
	default:
		// ゲストはセッション付きのキー
		return "order-" + in.IdempotencyKey
	}
}

func (u *OrderUsecase) charge(ctx context.Context, o model.Order, c checkoutCustomer, in PlaceOrderInput) (payment.ChargeResult, error) {
	currency := u.cfg.Rules.Currency
	amount, err := payment.ToMinorUnits(o.TotalAmount, currency)
	if err != nil {
		return payment.ChargeResult{}, wrapHTTPError(http.StatusInternalServerError, "invalid amount", err)
	}

	cctx, cancel := context.WithTimeout(ctx, u.cfg.PaymentTimeout)
	defer cancel()

	res, err := u.gateway.Charge(cctx, payment.ChargeRequest{
		AmountMinor:    amount,
		Currency:       currency,
		Token:          in.Payment.Token,
		Description:    "GAOJIE order " + o.OrderNumber,
		IdempotencyKey: gatewayIdempotencyKey(c, in, o.OrderNumber),
		Metadata: map[string]string{
			"order_number": o.OrderNumber,
			"email":        c.Email,
		},
	})
	if err != nil {
		ge, ok := payment.AsGatewayError(err)
		if !ok {
			ge = &payment.GatewayError{Reason: "payment error", Transport: true, Err: err}
		}
		fields := []zap.Field{
			zap.String("order_number", o.OrderNumber),
			zap.String("customer", c.id()),
			zap.String("reason", ge.Reason),
			zap.String("code", ge.Code),
			zap.Error(err),
		}
		if ge.Transport {
			// 課金されたか不明。ゲートウェイ側の確認が必要
			u.logger.Warn("payment outcome unknown", fields...)
			return payment.ChargeResult{}, wrapHTTPError(http.StatusBadGateway,
				"payment could not be confirmed", fmt.Errorf("%w: %w", model.ErrPaymentFailed, ge))
		}
		u.logger.Info("payment declined", fields...)
		return payment.ChargeResult{}, wrapHTTPError(http.StatusPaymentRequired,
			ge.Reason, fmt.Errorf("%w: %w", model.ErrPaymentFailed, ge))
	}
	if !res.Paid {
		return payment.ChargeResult{}, wrapHTTPError(http.StatusPaymentRequired, "payment was not completed", model.ErrPaymentFailed)
	}
	return res, nil
}

// 在庫確保・注文・明細を1トランザクションで保存
func (u *OrderUsecase) persist(ctx context.Context, order model.Order, items []model.OrderItem, c checkoutCustomer, lines []OrderLineInput, chargeID string) (OrderOutput, error) {
	var out OrderOutput
	for attempt := 0; ; attempt++ {
		err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			if c.NewGuest != nil {
				guest := *c.NewGuest
				if _, err := r.Users().CreateGuestIfAbsent(ctx, &guest); err != nil {
					return dbError(err)
				}
				// 引き当て後に同じemailで登録された
				if !guest.IsGuest {
					return wrapHTTPError(http.StatusConflict,
						"an account with this email exists; please log in to place the order", ErrConflict)
				}
				order.UserID = guest.ID
			}
			if c.RefreshGuest != nil {
				if err := r.Users().Update(ctx, *c.RefreshGuest); err != nil {
					return dbError(err)
				}
			}

			for _, l := range lines {
				ok, err := r.Inventory().ReserveStock(ctx, l.ProductID, l.Quantity)
				if err != nil {
					return dbError(err)
				}
				if !ok {
					return wrapHTTPError(http.StatusConflict,
						fmt.Sprintf("insufficient stock for product %d", l.ProductID), model.ErrOutOfStock)
				}
			}

			id, err := r.Orders().Create(ctx, order)
			if err != nil {
				return err
			}
			if err := r.OrderItems().CreateBulk(ctx, id, items); err != nil {
				return dbError(err)
			}

			created, err := r.Orders().FindByID(ctx, id)
			if err != nil {
				return dbError(err)
			}
			saved, err := r.OrderItems().ListByOrderID(ctx, id)
			if err != nil {
				return dbError(err)
			}
			out = toOrderOutput(created, saved)
			return nil
		})
		if err == nil {
			return out, nil
		}

		if errors.Is(err, repo.ErrOrderNumberTaken) && attempt+1 < maxOrderNumberAttempts {
			prev := order.OrderNumber
			order.OrderNumber = u.orderNumber(u.now())
			if chargeID != "" {
				// ゲートウェイ側の説明とメタデータは元の番号のまま
				u.logger.Warn("order renumbered after charge",
					zap.String("charge_id", chargeID),
					zap.String("charged_order_number", prev),
					zap.String("order_number", order.OrderNumber))
				order.AdminNotes = appendNote(order.AdminNotes, u.now(),
					fmt.Sprintf("Renumbered from %s after charge %s", prev, chargeID))
			}
			continue
		}
		if errors.Is(err, repo.ErrIdempotencyKeyTaken) && order.IdempotencyKey != nil {
			// 同じキーの注文が先に保存された
			existing, found, ferr := u.findByIdempotencyKey(ctx, order.UserID, *order.IdempotencyKey)
			if ferr == nil && found {
				return existing, nil
			}
			return OrderOutput{}, wrapHTTPError(http.StatusConflict, "idempotency conflict", err)
		}
		if _, ok := AsHTTPError(err); ok {
			return OrderOutput{}, err
		}
		return OrderOutput{}, dbError(err)
	}
}

// 決済後に保存できなかった。ログと照合レコードを残して500
func (u *OrderUsecase) reportInconsistency(ctx context.Context, o model.Order, c checkoutCustomer, charge payment.ChargeResult, cause error) error {
	currency := u.cfg.Rules.Currency
	u.logger.Error("order not persisted after successful charge",
		zap.String("charge_id", charge.ID),
		zap.String("order_number", o.OrderNumber),
		zap.String("amount", o.TotalAmount.StringFixed(2)),
		zap.String("currency", currency),
		zap.String("customer", c.id()),
		zap.Error(cause),
	)

	rec := &model.PaymentReconciliation{
		ChargeID:    charge.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		Email:       c.Email,
		Amount:      o.TotalAmount,
		Currency:    currency,
		Reason:      cause.Error(),
	}
	// リクエストが切れても記録は残す
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := u.recons.Create(rctx, rec); err != nil {
		u.logger.Error("record payment reconciliation", zap.String("charge_id", charge.ID), zap.Error(err))
	}

	return wrapHTTPError(http.StatusInternalServerError,
		"payment was taken but the order could not be saved; support has been notified",
		fmt.Errorf("%w: %w", model.ErrPersistenceInconsistency, cause))
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64, page int, limit int) (OrderListOutput, error) {
	if userID <= 0 {
		return OrderListOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	page, limit = normalizePage(page, limit, 10)

	out := OrderListOutput{Page: page, Limit: limit}
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListByUserID(ctx, userID, page, limit)
		if err != nil {
			return dbError(err)
		}
		out.Total = total
		out.Items = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return dbError(err)
			}
			out.Items = append(out.Items, toOrderOutput(o, items))
		}
		return nil
	})
	if err != nil {
		return OrderListOutput{}, err
	}
	return out, nil
}

func (u *OrderUsecase) GetMyOrder(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return u.getOwned(ctx, userID, func(r repo.TxRepos) (model.Order, error) {
		return r.Orders().FindByID(ctx, orderID)
	})
}

func (u *OrderUsecase) GetMyOrderByNumber(ctx context.Context, userID int64, number string) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	number = strings.ToUpper(strings.TrimSpace(number))
	if number == "" {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid order number")
	}
	return u.getOwned(ctx, userID, func(r repo.TxRepos) (model.Order, error) {
		return r.Orders().FindByOrderNumber(ctx, number)
	})
}

func (u *OrderUsecase) getOwned(ctx context.Context, userID int64, find func(r repo.TxRepos) (model.Order, error)) (OrderOutput, error) {
	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := find(r)
		if err != nil {
			return mapRepoError(err)
		}
		//他人の注文は「存在しない扱い」にする
		if o.UserID != userID {
			return notFound()
		}
		items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return dbError(err)
		}
		out = toOrderOutput(o, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// 未決済かつ出荷前ならキャンセル（在庫戻し）
func (u *OrderUsecase) CancelMyOrder(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return mapRepoError(err)
		}
		if o.UserID != userID {
			return notFound()
		}
		if !o.CanBeCancelled() {
			return wrapHTTPError(http.StatusBadRequest, "order cannot be cancelled", model.ErrInvalidTransition)
		}

		items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return dbError(err)
		}
		for _, it := range items {
			if err := r.Inventory().IncreaseStock(ctx, it.ProductID, it.Quantity); err != nil {
				return dbError(err)
			}
		}

		o.Status = model.OrderStatusCancelled
		o.AdminNotes = appendNote(o.AdminNotes, u.now(), "Cancelled by customer")
		if err := r.Orders().UpdateState(ctx, o); err != nil {
			return dbError(err)
		}
		out = toOrderOutput(o, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// "[2006-01-02 15:04:05] note" を改行区切りで追記
func appendNote(notes string, at time.Time, note string) string {
	line := "[" + at.UTC().Format("2006-01-02 15:04:05") + "] " + note
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}

func normalizePage(page, limit, def int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = def
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
