package repository

import (
	"context"
	"strings"

	"gaojie/internal/domain/model"
	repo "gaojie/internal/repository"

	"gorm.io/gorm"
)

type ProductGormRepository struct {
	db *gorm.DB
}

// DI
func NewProductGormRepository(db *gorm.DB) *ProductGormRepository {
	return &ProductGormRepository{db: db}
}

// 絞り込み/検索/ソート/ページング
func (r *ProductGormRepository) List(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	var products []model.Product
	var total int64

	tx := r.db.WithContext(ctx).Model(&model.Product{})

	if !q.IncludeInactive {
		tx = tx.Where("is_active = ?", true)
	}
	if q.Category != "" {
		tx = tx.Where("category = ?", q.Category)
	}
	if q.Featured {
		tx = tx.Where("is_featured = ?", true)
	}
	if q.Bestseller {
		tx = tx.Where("is_bestseller = ?", true)
	}
	if q.New {
		tx = tx.Where("is_new = ?", true)
	}

	// name / description / tags
	if s := strings.TrimSpace(q.Q); s != "" {
		like := "%" + s + "%"
		tx = tx.Where("name ILIKE ? OR description ILIKE ? OR tags ILIKE ?", like, like, like)
	}

	if err := tx.Count(&total).Error; err != nil {
		return []model.Product{}, 0, err
	}

	switch q.Sort {
	case "price_asc":
		tx = tx.Order("price asc").Order("id asc")
	case "price_desc":
		tx = tx.Order("price desc").Order("id desc")
	case "bestseller":
		tx = tx.Order("sales_count desc").Order("id desc")
	case "name":
		tx = tx.Order("name asc").Order("id asc")
	default:
		tx = tx.Order("created_at desc").Order("id desc")
	}

	offset, limit := page(q.Page, q.Limit)
	if err := tx.Offset(offset).Limit(limit).Find(&products).Error; err != nil {
		return []model.Product{}, 0, err
	}

	return products, total, nil
}

// 非公開も返す（判定は呼び出し側）
func (r *ProductGormRepository) FindByID(ctx context.Context, id int64) (model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).First(&p, id).Error
	if isNotFound(err) {
		return model.Product{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Product{}, err
	}
	return p, nil
}

func (r *ProductGormRepository) FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	if len(ids) == 0 {
		return []model.Product{}, nil
	}
	var products []model.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return []model.Product{}, err
	}
	return products, nil
}

func (r *ProductGormRepository) FindBySlug(ctx context.Context, slug string) (model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&p).Error
	if isNotFound(err) {
		return model.Product{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Product{}, err
	}
	return p, nil
}

// 削除済みも含めて重複チェック（slugのunique制約は削除済みにも効く）
func (r *ProductGormRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Unscoped().Model(&model.Product{}).
		Where("slug = ?", slug).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *ProductGormRepository) Categories(ctx context.Context) ([]repo.CategoryCount, error) {
	var out []repo.CategoryCount
	err := r.db.WithContext(ctx).Model(&model.Product{}).
		Select("category, COUNT(*) AS count").
		Where("is_active = ?", true).
		Group("category").
		Order("category asc").
		Scan(&out).Error
	if err != nil {
		return []repo.CategoryCount{}, err
	}
	return out, nil
}

func (r *ProductGormRepository) IncrementViewCount(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&model.Product{}).
		Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error
}

func (r *ProductGormRepository) Create(ctx context.Context, p model.Product) (model.Product, error) {
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return model.Product{}, err
	}
	return p, nil
}

// 在庫はInventoryRepositoryで更新する
func (r *ProductGormRepository) Update(ctx context.Context, p model.Product) error {
	res := r.db.WithContext(ctx).Model(&model.Product{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
		"name":                p.Name,
		"description":         p.Description,
		"short_description":   p.ShortDescription,
		"price":               p.Price,
		"original_price":      p.OriginalPrice,
		"low_stock_threshold": p.LowStockThreshold,
		"track_inventory":     p.TrackInventory,
		"category":            p.Category,
		"skin_type":           p.SkinType,
		"ingredients":         p.Ingredients,
		"size":                p.Size,
		"tags":                p.Tags,
		"primary_image":       p.PrimaryImage,
		"secondary_image":     p.SecondaryImage,
		"is_active":           p.IsActive,
		"is_featured":         p.IsFeatured,
		"is_bestseller":       p.IsBestseller,
		"is_new":              p.IsNew,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *ProductGormRepository) SoftDelete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&model.Product{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
