package repository

import (
	"context"
	"strings"

	"gaojie/internal/domain/model"
	repo "gaojie/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderGormRepository struct {
	db *gorm.DB
}

func NewOrderGormRepository(db *gorm.DB) *OrderGormRepository {
	return &OrderGormRepository{db: db}
}

func (r *OrderGormRepository) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&o).Error
	if isNotFound(err) {
		return model.Order{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	return o, nil
}

func (r *OrderGormRepository) FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&o).Error
	if isNotFound(err) {
		return model.Order{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	return o, nil
}

func (r *OrderGormRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).Where("order_number = ?", orderNumber).First(&o).Error
	if isNotFound(err) {
		return model.Order{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	return o, nil
}

func (r *OrderGormRepository) ExistsByOrderNumber(ctx context.Context, orderNumber string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("order_number = ?", orderNumber).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *OrderGormRepository) ListByUserID(ctx context.Context, userID int64, p int, limit int) ([]model.Order, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return []model.Order{}, 0, err
	}

	offset, limit := page(p, limit)
	var items []model.Order
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").Order("id desc").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return []model.Order{}, 0, err
	}

	return items, total, nil
}

// 明細は別テーブル（OrderItemRepository）で保存する
func (r *OrderGormRepository) Create(ctx context.Context, order model.Order) (int64, error) {
	order.Items = nil
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(&order).Error; err != nil {
		if violates(err, "order_number") {
			return 0, repo.ErrOrderNumberTaken
		}
		if violates(err, "idem") {
			return 0, repo.ErrIdempotencyKeyTaken
		}
		return 0, err
	}
	return order.ID, nil
}

func (r *OrderGormRepository) UpdateState(ctx context.Context, o model.Order) error {
	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", o.ID).
		Updates(map[string]interface{}{
			"status":            o.Status,
			"payment_status":    o.PaymentStatus,
			"payment_reference": o.PaymentReference,
			"refunded_amount":   o.RefundedAmount,
			"admin_notes":       o.AdminNotes,
			"shipped_at":        o.ShippedAt,
			"delivered_at":      o.DeliveredAt,
		})

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *OrderGormRepository) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error) {
	var o model.Order
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&o).Error

	if isNotFound(err) {
		return model.Order{}, false, nil
	}
	if err != nil {
		return model.Order{}, false, err
	}
	return o, true, nil
}

func (r *OrderGormRepository) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Order{})

	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.PaymentStatus != "" {
		q = q.Where("payment_status = ?", f.PaymentStatus)
	}
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		q = q.Where("order_number ILIKE ?", "%"+s+"%")
	}

	//期間絞り込み
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return []model.Order{}, 0, err
	}

	offset, limit := page(f.Page, f.Limit)
	var items []model.Order
	if err := q.Order("created_at desc").Order("id desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return []model.Order{}, 0, err
	}

	return items, total, nil
}
