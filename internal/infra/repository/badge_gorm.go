package repository

import (
	"context"
	"strings"

	"gaojie/internal/domain/model"
	repo "gaojie/internal/repository"

	"gorm.io/gorm"
)

type BadgeGormRepository struct {
	db *gorm.DB
}

func NewBadgeGormRepository(db *gorm.DB) *BadgeGormRepository {
	return &BadgeGormRepository{db: db}
}

func (r *BadgeGormRepository) List(ctx context.Context, f repo.BadgeListFilter) ([]model.Badge, error) {
	q := r.db.WithContext(ctx).Model(&model.Badge{})

	switch f.Status {
	case "active":
		q = q.Where("is_active = ?", true)
	case "inactive":
		q = q.Where("is_active = ?", false)
	}
	switch f.Type {
	case "category":
		q = q.Where("is_category_badge = ?", true)
	case "promo":
		q = q.Where("is_category_badge = ?", false)
	}

	var badges []model.Badge
	if err := q.Order("sort_order asc").Order("name asc").Find(&badges).Error; err != nil {
		return []model.Badge{}, err
	}
	return badges, nil
}

func (r *BadgeGormRepository) Counts(ctx context.Context) (repo.BadgeCounts, error) {
	var c repo.BadgeCounts
	err := r.db.WithContext(ctx).Model(&model.Badge{}).
		Select("COUNT(*) AS total, " +
			"COUNT(*) FILTER (WHERE is_active) AS active, " +
			"COUNT(*) FILTER (WHERE is_category_badge) AS category").
		Scan(&c).Error
	return c, err
}

func (r *BadgeGormRepository) FindByID(ctx context.Context, id int64) (model.Badge, error) {
	var b model.Badge
	err := r.db.WithContext(ctx).First(&b, id).Error
	if isNotFound(err) {
		return model.Badge{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Badge{}, err
	}
	return b, nil
}

// 名前は大文字小文字を区別せず重複扱い
func (r *BadgeGormRepository) NameExists(ctx context.Context, name string, excludeID int64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Badge{}).
		Where("LOWER(name) = ? AND id <> ?", strings.ToLower(strings.TrimSpace(name)), excludeID).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *BadgeGormRepository) SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Badge{}).
		Where("slug = ? AND id <> ?", slug, excludeID).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *BadgeGormRepository) Create(ctx context.Context, b *model.Badge) error {
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *BadgeGormRepository) Update(ctx context.Context, b model.Badge) error {
	res := r.db.WithContext(ctx).Model(&model.Badge{}).Where("id = ?", b.ID).Updates(map[string]interface{}{
		"name":              b.Name,
		"slug":              b.Slug,
		"background_color":  b.BackgroundColor,
		"text_color":        b.TextColor,
		"is_active":         b.IsActive,
		"is_category_badge": b.IsCategoryBadge,
		"sort_order":        b.SortOrder,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *BadgeGormRepository) Deactivate(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Model(&model.Badge{}).Where("id = ?", id).
		Updates(map[string]interface{}{"is_active": false, "updated_at": gorm.Expr("NOW()")})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
