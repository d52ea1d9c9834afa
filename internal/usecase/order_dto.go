package usecase

import (
	"strings"
	"time"

	"gaojie/internal/domain/model"

	"github.com/shopspring/decimal"
)

type OrderLineInput struct {
	ProductID int64 `json:"product_id" validate:"gt=0"`
	Quantity  int64 `json:"quantity" validate:"gte=1,lte=100"`
}

type ShippingInfo struct {
	FirstName    string `json:"first_name" validate:"required,max=50"`
	LastName     string `json:"last_name" validate:"required,max=50"`
	Company      string `json:"company" validate:"max=100"`
	AddressLine1 string `json:"address_line1" validate:"required,max=255"`
	AddressLine2 string `json:"address_line2" validate:"max=255"`
	City         string `json:"city" validate:"required,max=100"`
	State        string `json:"state" validate:"required,max=100"`
	PostalCode   string `json:"postal_code" validate:"required,max=20"`
	Country      string `json:"country" validate:"required,max=100"`
	Phone        string `json:"phone" validate:"max=20"`
}

// 省略時は配送先と同じ
type BillingInfo struct {
	FirstName    string `json:"first_name" validate:"required,max=50"`
	LastName     string `json:"last_name" validate:"required,max=50"`
	Company      string `json:"company" validate:"max=100"`
	AddressLine1 string `json:"address_line1" validate:"required,max=255"`
	AddressLine2 string `json:"address_line2" validate:"max=255"`
	City         string `json:"city" validate:"required,max=100"`
	State        string `json:"state" validate:"required,max=100"`
	PostalCode   string `json:"postal_code" validate:"required,max=20"`
	Country      string `json:"country" validate:"required,max=100"`
}

type PaymentInput struct {
	//card以外は決済を後回し（payment_status=pending）
	Method string `json:"method" validate:"required,oneof=card bank_transfer cod pending"`
	Token  string `json:"token" validate:"required_if=Method card,max=255"`
}

type PlaceOrderInput struct {
	// 0ならゲスト
	UserID    int64  `json:"-"`
	SessionID string `json:"-"`
	// ゲストのみ必須
	Email          string           `json:"email" validate:"omitempty,email,max=120"`
	Items          []OrderLineInput `json:"items" validate:"required,min=1,max=50,dive"`
	Shipping       ShippingInfo     `json:"shipping_info"`
	Billing        *BillingInfo     `json:"billing_info"`
	Payment        PaymentInput     `json:"payment"`
	PromoCode      string           `json:"promo_code" validate:"max=50"`
	Notes          string           `json:"notes" validate:"max=1000"`
	IdempotencyKey string           `json:"-" validate:"max=128"`
}

type OrderItemOutput struct {
	ProductID  int64           `json:"product_id"`
	Name       string          `json:"name"`
	Slug       string          `json:"slug"`
	Category   string          `json:"category"`
	Size       string          `json:"size"`
	Image      string          `json:"image"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int64           `json:"quantity"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

type ShippingOutput struct {
	Name         string `json:"name"`
	Company      string `json:"company,omitempty"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
	Phone        string `json:"phone,omitempty"`
}

type BillingOutput struct {
	Name         string `json:"name"`
	Company      string `json:"company,omitempty"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
}

type OrderOutput struct {
	ID               int64             `json:"id"`
	OrderNumber      string            `json:"order_number"`
	UserID           int64             `json:"user_id"`
	Status           string            `json:"status"`
	PaymentStatus    string            `json:"payment_status"`
	PaymentMethod    string            `json:"payment_method"`
	PaymentReference string            `json:"payment_reference,omitempty"`
	Subtotal         decimal.Decimal   `json:"subtotal"`
	DiscountAmount   decimal.Decimal   `json:"discount_amount"`
	TaxAmount        decimal.Decimal   `json:"tax_amount"`
	ShippingAmount   decimal.Decimal   `json:"shipping_amount"`
	TotalAmount      decimal.Decimal   `json:"total_amount"`
	PromoCode        string            `json:"promo_code,omitempty"`
	Notes            string            `json:"notes,omitempty"`
	Shipping         ShippingOutput    `json:"shipping"`
	BillingSame      bool              `json:"billing_same_as_shipping"`
	Billing          *BillingOutput    `json:"billing,omitempty"`
	ItemCount        int64             `json:"item_count"`
	CanCancel        bool              `json:"can_cancel"`
	CreatedAt        time.Time         `json:"created_at"`
	ShippedAt        *time.Time        `json:"shipped_at,omitempty"`
	DeliveredAt      *time.Time        `json:"delivered_at,omitempty"`
	Items            []OrderItemOutput `json:"items"`
}

type OrderListOutput struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	var count int64
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID:  it.ProductID,
			Name:       it.ProductName,
			Slug:       it.ProductSlug,
			Category:   it.ProductCategory,
			Size:       it.ProductSize,
			Image:      it.ProductImage,
			UnitPrice:  it.UnitPrice,
			Quantity:   it.Quantity,
			TotalPrice: it.TotalPrice,
		})
		count += it.Quantity
	}

	var billing *BillingOutput
	if !o.BillingSameAsShipping {
		billing = &BillingOutput{
			Name:         strings.TrimSpace(o.BillingFirstName + " " + o.BillingLastName),
			Company:      o.BillingCompany,
			AddressLine1: o.BillingAddressLine1,
			AddressLine2: o.BillingAddressLine2,
			City:         o.BillingCity,
			State:        o.BillingState,
			PostalCode:   o.BillingPostalCode,
			Country:      o.BillingCountry,
		}
	}

	return OrderOutput{
		ID:               o.ID,
		OrderNumber:      o.OrderNumber,
		UserID:           o.UserID,
		Status:           string(o.Status),
		PaymentStatus:    string(o.PaymentStatus),
		PaymentMethod:    o.PaymentMethod,
		PaymentReference: o.PaymentReference,
		Subtotal:         o.Subtotal,
		DiscountAmount:   o.DiscountAmount,
		TaxAmount:        o.TaxAmount,
		ShippingAmount:   o.ShippingAmount,
		TotalAmount:      o.TotalAmount,
		PromoCode:        o.PromoCode,
		Notes:            o.OrderNotes,
		Shipping: ShippingOutput{
			Name:         o.ShippingFullName(),
			Company:      o.ShippingCompany,
			AddressLine1: o.ShippingAddressLine1,
			AddressLine2: o.ShippingAddressLine2,
			City:         o.ShippingCity,
			State:        o.ShippingState,
			PostalCode:   o.ShippingPostalCode,
			Country:      o.ShippingCountry,
			Phone:        o.ShippingPhone,
		},
		BillingSame: o.BillingSameAsShipping,
		Billing:     billing,
		ItemCount:   count,
		CanCancel:   o.CanBeCancelled(),
		CreatedAt:   o.CreatedAt,
		ShippedAt:   o.ShippedAt,
		DeliveredAt: o.DeliveredAt,
		Items:       outItems,
	}
}
