package repository

import (
	"context"

	"gaojie/internal/domain/model"
)

// セッションカートの保存先（redis / DB）
type CartStore interface {
	// 無ければ空のカートを返す
	Get(ctx context.Context, sessionID string) (model.Cart, error)
	Save(ctx context.Context, cart model.Cart) error
	Delete(ctx context.Context, sessionID string) error
}
