package repository

import (
	"context"

	"gaojie/internal/domain/model"
)

var ErrNotFound = model.ErrNotFound

// 一覧検索
type ProductListQuery struct {
	Page       int
	Limit      int
	Category   string
	Featured   bool
	Bestseller bool
	New        bool
	//name / description / tags
	Q    string
	Sort string
	//管理画面用（非公開も含める）
	IncludeInactive bool
}

type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

type ProductRepository interface {
	List(ctx context.Context, q ProductListQuery) ([]model.Product, int64, error)
	FindByID(ctx context.Context, id int64) (model.Product, error)
	FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error)
	FindBySlug(ctx context.Context, slug string) (model.Product, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	Categories(ctx context.Context) ([]CategoryCount, error)
	IncrementViewCount(ctx context.Context, id int64) error

	Create(ctx context.Context, p model.Product) (model.Product, error)
	Update(ctx context.Context, p model.Product) error
	SoftDelete(ctx context.Context, id int64) error
}
