package repository

import (
	"context"

	"gaojie/internal/domain/model"
	repo "gaojie/internal/repository"

	"gorm.io/gorm"
)

type InventoryGormRepository struct {
	db *gorm.DB
}

func NewInventoryGormRepository(db *gorm.DB) *InventoryGormRepository {
	return &InventoryGormRepository{db: db}
}

// 在庫の現在値を設定
func (r *InventoryGormRepository) SetStock(ctx context.Context, productID int64, newStock int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ?", productID).
		Update("stock_quantity", newStock)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// コミット時点の在庫で判定する（読んだ値は信用しない）
func (r *InventoryGormRepository) ReserveStock(ctx context.Context, productID int64, qty int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ? AND is_active = ? AND (track_inventory = ? OR stock_quantity >= ?)", productID, true, false, qty).
		Updates(map[string]interface{}{
			"stock_quantity": gorm.Expr("CASE WHEN track_inventory THEN stock_quantity - ? ELSE stock_quantity END", qty),
			"sales_count":    gorm.Expr("sales_count + ?", qty),
		})

	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// 在庫戻し（キャンセル）。販売数も戻す
func (r *InventoryGormRepository) IncreaseStock(ctx context.Context, productID int64, qty int64) error {
	res := r.db.WithContext(ctx).
		Unscoped().
		Model(&model.Product{}).
		Where("id = ?", productID).
		Updates(map[string]interface{}{
			"stock_quantity": gorm.Expr("CASE WHEN track_inventory THEN stock_quantity + ? ELSE stock_quantity END", qty),
			"sales_count":    gorm.Expr("GREATEST(sales_count - ?, 0)", qty),
		})

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *InventoryGormRepository) CreateAdjustment(ctx context.Context, adj model.InventoryAdjustment) error {
	return r.db.WithContext(ctx).Create(&adj).Error
}
