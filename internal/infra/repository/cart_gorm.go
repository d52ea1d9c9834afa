package repository

import (
	"context"
	"time"

	"gaojie/internal/domain/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CART_STORE=db のときのカート行
type cartItemRow struct {
	ID            int64           `gorm:"primaryKey;autoIncrement"`
	SessionID     string          `gorm:"type:varchar(64);not null;index"`
	ProductID     int64           `gorm:"not null"`
	Quantity      int64           `gorm:"not null"`
	PriceSnapshot decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	AddedAt       time.Time       `gorm:"not null"`
	UpdatedAt     time.Time       `gorm:"not null"`
}

func (cartItemRow) TableName() string { return "cart_items" }

type CartGormStore struct {
	db *gorm.DB
}

// DI
func NewCartGormStore(db *gorm.DB) *CartGormStore {
	return &CartGormStore{db: db}
}

func (s *CartGormStore) Get(ctx context.Context, sessionID string) (model.Cart, error) {
	var rows []cartItemRow
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id asc").
		Find(&rows).Error; err != nil {
		return model.Cart{}, err
	}

	cart := model.Cart{SessionID: sessionID, Items: make([]model.CartItem, 0, len(rows))}
	for _, r := range rows {
		cart.Items = append(cart.Items, model.CartItem{
			ProductID:     r.ProductID,
			Quantity:      r.Quantity,
			PriceSnapshot: r.PriceSnapshot,
			AddedAt:       r.AddedAt,
		})
		if r.UpdatedAt.After(cart.UpdatedAt) {
			cart.UpdatedAt = r.UpdatedAt
		}
	}
	return cart, nil
}

// 明細を丸ごと入れ替える（並び順はidで保持）
func (s *CartGormStore) Save(ctx context.Context, cart model.Cart) error {
	now := time.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", cart.SessionID).Delete(&cartItemRow{}).Error; err != nil {
			return err
		}
		if len(cart.Items) == 0 {
			return nil
		}

		rows := make([]cartItemRow, 0, len(cart.Items))
		for _, it := range cart.Items {
			added := it.AddedAt
			if added.IsZero() {
				added = now
			}
			rows = append(rows, cartItemRow{
				SessionID:     cart.SessionID,
				ProductID:     it.ProductID,
				Quantity:      it.Quantity,
				PriceSnapshot: it.PriceSnapshot,
				AddedAt:       added,
				UpdatedAt:     now,
			})
		}
		return tx.Create(&rows).Error
	})
}

func (s *CartGormStore) Delete(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&cartItemRow{}).Error
}
