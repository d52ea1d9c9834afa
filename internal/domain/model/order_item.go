package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 注文時点のスナップショット。作成後は更新しない
type OrderItem struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID         int64           `gorm:"not null;index" json:"order_id"`
	ProductID       int64           `gorm:"not null;index" json:"product_id"`
	ProductName     string          `gorm:"type:varchar(255);not null" json:"product_name"`
	ProductSlug     string          `gorm:"type:varchar(120)" json:"product_slug"`
	ProductCategory string          `gorm:"type:varchar(50)" json:"product_category"`
	ProductSize     string          `gorm:"type:varchar(20)" json:"product_size"`
	ProductImage    string          `gorm:"type:varchar(200)" json:"product_image"`
	UnitPrice       decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"unit_price"`
	Quantity        int64           `gorm:"not null" json:"quantity"`
	TotalPrice      decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"total_price"`
	CreatedAt       time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
}
