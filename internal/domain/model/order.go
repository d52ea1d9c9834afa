package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

const (
	PaymentMethodCard    = "card"
	PaymentMethodPending = "pending"
)

// 管理者が行える遷移。cancelled / refunded は終端
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusShipped, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  {OrderStatusRefunded},
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusProcessing: {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusFailed:     {PaymentStatusPending},
	PaymentStatusCompleted:  {PaymentStatusRefunded},
}

func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return st, true
	}
	return "", false
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, n := range orderTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, n := range paymentTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

type Order struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNumber string `gorm:"type:varchar(50);not null;uniqueIndex" json:"order_number"`
	UserID      int64  `gorm:"not null;index;uniqueIndex:idx_orders_user_idem,priority:1,where:idempotency_key IS NOT NULL" json:"user_id"`

	Status           OrderStatus   `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PaymentStatus    PaymentStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"payment_status"`
	PaymentMethod    string        `gorm:"type:varchar(50);not null" json:"payment_method"`
	PaymentReference string        `gorm:"type:varchar(100)" json:"payment_reference"`

	//金額（total = subtotal - discount + tax + shipping）
	Subtotal       decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"subtotal"`
	DiscountAmount decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0" json:"discount_amount"`
	TaxAmount      decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0" json:"tax_amount"`
	ShippingAmount decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0" json:"shipping_amount"`
	TotalAmount    decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"total_amount"`
	//返金済みの合計（部分返金を含む）
	RefundedAmount decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0" json:"refunded_amount"`
	PromoCode      string          `gorm:"type:varchar(50)" json:"promo_code"`

	//配送先
	ShippingFirstName    string `gorm:"type:varchar(50);not null" json:"shipping_first_name"`
	ShippingLastName     string `gorm:"type:varchar(50);not null" json:"shipping_last_name"`
	ShippingCompany      string `gorm:"type:varchar(100)" json:"shipping_company"`
	ShippingAddressLine1 string `gorm:"type:varchar(255);not null" json:"shipping_address_line1"`
	ShippingAddressLine2 string `gorm:"type:varchar(255)" json:"shipping_address_line2"`
	ShippingCity         string `gorm:"type:varchar(100);not null" json:"shipping_city"`
	ShippingState        string `gorm:"type:varchar(100);not null" json:"shipping_state"`
	ShippingPostalCode   string `gorm:"type:varchar(20);not null" json:"shipping_postal_code"`
	ShippingCountry      string `gorm:"type:varchar(100);not null" json:"shipping_country"`
	ShippingPhone        string `gorm:"type:varchar(20)" json:"shipping_phone"`

	//請求先（falseのときだけ下の項目を使う）
	BillingSameAsShipping bool   `gorm:"not null" json:"billing_same_as_shipping"`
	BillingFirstName      string `gorm:"type:varchar(50)" json:"billing_first_name"`
	BillingLastName       string `gorm:"type:varchar(50)" json:"billing_last_name"`
	BillingCompany        string `gorm:"type:varchar(100)" json:"billing_company"`
	BillingAddressLine1   string `gorm:"type:varchar(255)" json:"billing_address_line1"`
	BillingAddressLine2   string `gorm:"type:varchar(255)" json:"billing_address_line2"`
	BillingCity           string `gorm:"type:varchar(100)" json:"billing_city"`
	BillingState          string `gorm:"type:varchar(100)" json:"billing_state"`
	BillingPostalCode     string `gorm:"type:varchar(20)" json:"billing_postal_code"`
	BillingCountry        string `gorm:"type:varchar(100)" json:"billing_country"`

	OrderNotes string `gorm:"type:text" json:"order_notes"`
	AdminNotes string `gorm:"type:text" json:"-"`

	//同じユーザー・同じキーなら同じ注文を返す（任意）
	IdempotencyKey *string `gorm:"type:varchar(255);uniqueIndex:idx_orders_user_idem,priority:2" json:"-"`

	CreatedAt   time.Time  `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
	ShippedAt   *time.Time `json:"shipped_at"`
	DeliveredAt *time.Time `json:"delivered_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
}

// ゲートウェイで課金済み（未確定のprocessingも含む）
func (o Order) HasCapturedCharge() bool {
	return o.PaymentReference != "" &&
		(o.PaymentStatus == PaymentStatusProcessing || o.PaymentStatus == PaymentStatusCompleted)
}

// 顧客がキャンセルできるか。課金済みの注文は管理者の返金を通す
func (o Order) CanBeCancelled() bool {
	return (o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed) &&
		o.PaymentStatus != PaymentStatusCompleted && !o.HasCapturedCharge()
}

// 返金できるか
func (o Order) CanBeRefunded() bool {
	return (o.PaymentStatus == PaymentStatusCompleted || o.HasCapturedCharge()) &&
		o.Status != OrderStatusRefunded && o.Status != OrderStatusCancelled &&
		o.RefundableAmount().IsPositive()
}

// まだ返金できる残額
func (o Order) RefundableAmount() decimal.Decimal {
	return o.TotalAmount.Sub(o.RefundedAmount)
}

func (o Order) ShippingFullName() string {
	return strings.TrimSpace(o.ShippingFirstName + " " + o.ShippingLastName)
}

func (o Order) ShippingAddress() string {
	parts := []string{
		o.ShippingAddressLine1,
		o.ShippingAddressLine2,
		o.ShippingCity,
		o.ShippingState,
		o.ShippingPostalCode,
		o.ShippingCountry,
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

func (o Order) ItemCount() int64 {
	var n int64
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}
