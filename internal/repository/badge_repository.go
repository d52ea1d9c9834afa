package repository

import (
	"context"

	"gaojie/internal/domain/model"
)

type BadgeListFilter struct {
	//active / inactive / 空なら全部
	Status string
	//category / promo / 空なら全部
	Type string
}

type BadgeCounts struct {
	Total    int64 `json:"total"`
	Active   int64 `json:"active"`
	Category int64 `json:"category"`
}

type BadgeRepository interface {
	List(ctx context.Context, f BadgeListFilter) ([]model.Badge, error)
	Counts(ctx context.Context) (BadgeCounts, error)
	FindByID(ctx context.Context, id int64) (model.Badge, error)
	NameExists(ctx context.Context, name string, excludeID int64) (bool, error)
	SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error)
	Create(ctx context.Context, b *model.Badge) error
	Update(ctx context.Context, b model.Badge) error
	// 論理削除（is_active=false）
	Deactivate(ctx context.Context, id int64) error
}
