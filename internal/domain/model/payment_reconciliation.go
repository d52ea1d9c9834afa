package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 決済は成功したのに注文が保存できなかったケース。手動で返金/再作成する
type PaymentReconciliation struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ChargeID    string          `gorm:"type:varchar(100);not null;index" json:"charge_id"`
	OrderNumber string          `gorm:"type:varchar(50);not null" json:"order_number"`
	UserID      int64           `gorm:"not null;index" json:"user_id"`
	Email       string          `gorm:"type:varchar(120)" json:"email"`
	Amount      decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"amount"`
	Currency    string          `gorm:"type:varchar(3);not null" json:"currency"`
	Reason      string          `gorm:"type:text;not null" json:"reason"`
	Resolved    bool            `gorm:"not null;default:false;index" json:"resolved"`
	ResolvedAt  *time.Time      `json:"resolved_at"`
	CreatedAt   time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
}
