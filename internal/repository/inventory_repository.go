package repository

import (
	"context"

	"gaojie/internal/domain/model"
)

type InventoryRepository interface {
	// 在庫の現在値を設定
	SetStock(ctx context.Context, productID int64, newStock int64) error

	// 公開中かつ在庫が足りるときだけ減算し販売数を加算。在庫管理なしの商品は常に成功
	ReserveStock(ctx context.Context, productID int64, qty int64) (bool, error)

	// 在庫戻し（キャンセル）
	IncreaseStock(ctx context.Context, productID int64, qty int64) error

	CreateAdjustment(ctx context.Context, adjustment model.InventoryAdjustment) error
}
