package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Slug             string          `gorm:"type:varchar(120);not null;uniqueIndex" json:"slug"`
	Name             string          `gorm:"type:varchar(100);not null;index" json:"name"`
	Description      string          `gorm:"type:text;not null" json:"description"`
	ShortDescription string          `gorm:"type:varchar(300)" json:"short_description"`
	Price            decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"price"`
	//セール表示用（nullなら通常価格）
	OriginalPrice decimal.NullDecimal `gorm:"type:numeric(10,2)" json:"original_price"`

	//在庫
	StockQuantity     int64 `gorm:"not null;default:0" json:"stock_quantity"`
	LowStockThreshold int64 `gorm:"not null;default:10" json:"low_stock_threshold"`
	//falseなら在庫チェックしない（無制限扱い）
	TrackInventory bool `gorm:"not null;default:true" json:"track_inventory"`

	Category    string `gorm:"type:varchar(50);not null;index" json:"category"`
	SkinType    string `gorm:"type:varchar(100)" json:"skin_type"`
	Ingredients string `gorm:"type:text" json:"ingredients"`
	Size        string `gorm:"type:varchar(20)" json:"size"`
	Tags        string `gorm:"type:varchar(500)" json:"tags"`

	PrimaryImage   string `gorm:"type:varchar(200)" json:"primary_image"`
	SecondaryImage string `gorm:"type:varchar(200)" json:"secondary_image"`

	IsActive     bool `gorm:"not null;default:true;index" json:"is_active"`
	IsFeatured   bool `gorm:"not null;default:false;index" json:"is_featured"`
	IsBestseller bool `gorm:"not null;default:false" json:"is_bestseller"`
	IsNew        bool `gorm:"not null;default:false" json:"is_new"`

	ViewCount  int64 `gorm:"not null;default:0" json:"view_count"`
	SalesCount int64 `gorm:"not null;default:0" json:"sales_count"`

	CreatedAt time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// 元値より安いときだけセール扱い
func (p Product) IsOnSale() bool {
	return p.OriginalPrice.Valid && p.Price.LessThan(p.OriginalPrice.Decimal)
}

// 割引率（%、切り捨て）
func (p Product) DiscountPercentage() int64 {
	if !p.IsOnSale() || p.OriginalPrice.Decimal.IsZero() {
		return 0
	}
	return p.OriginalPrice.Decimal.Sub(p.Price).
		Div(p.OriginalPrice.Decimal).
		Mul(decimal.NewFromInt(100)).
		Floor().
		IntPart()
}

func (p Product) IsInStock() bool {
	if !p.TrackInventory {
		return true
	}
	return p.StockQuantity > 0
}

func (p Product) IsLowStock() bool {
	if !p.TrackInventory {
		return false
	}
	return p.StockQuantity <= p.LowStockThreshold
}

// 指定数量を出せるか（在庫管理なしなら常にtrue）
func (p Product) CanFulfil(qty int64) bool {
	if !p.TrackInventory {
		return true
	}
	return p.StockQuantity >= qty
}
