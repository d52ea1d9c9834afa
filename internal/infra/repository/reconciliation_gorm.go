package repository

import (
	"context"
	"time"

	"gaojie/internal/domain/model"
	repo "gaojie/internal/repository"

	"gorm.io/gorm"
)

type ReconciliationGormRepository struct {
	db *gorm.DB
}

func NewReconciliationGormRepository(db *gorm.DB) *ReconciliationGormRepository {
	return &ReconciliationGormRepository{db: db}
}

func (r *ReconciliationGormRepository) Create(ctx context.Context, rec *model.PaymentReconciliation) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *ReconciliationGormRepository) FindByID(ctx context.Context, id int64) (model.PaymentReconciliation, error) {
	var rec model.PaymentReconciliation
	err := r.db.WithContext(ctx).First(&rec, id).Error
	if isNotFound(err) {
		return model.PaymentReconciliation{}, repo.ErrNotFound
	}
	if err != nil {
		return model.PaymentReconciliation{}, err
	}
	return rec, nil
}

func (r *ReconciliationGormRepository) List(ctx context.Context, resolved *bool, p int, limit int) ([]model.PaymentReconciliation, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.PaymentReconciliation{})
	if resolved != nil {
		q = q.Where("resolved = ?", *resolved)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return []model.PaymentReconciliation{}, 0, err
	}

	offset, limit := page(p, limit)
	var recs []model.PaymentReconciliation
	if err := q.Order("id desc").Limit(limit).Offset(offset).Find(&recs).Error; err != nil {
		return []model.PaymentReconciliation{}, 0, err
	}
	return recs, total, nil
}

func (r *ReconciliationGormRepository) MarkResolved(ctx context.Context, id int64, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.PaymentReconciliation{}).
		Where("id = ? AND resolved = ?", id, false).
		Updates(map[string]interface{}{"resolved": true, "resolved_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
