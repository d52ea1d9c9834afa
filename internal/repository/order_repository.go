package repository

import (
	"context"
	"errors"
	"time"

	"gaojie/internal/domain/model"
)

type AdminOrderListFilter struct {
	Page          int
	Limit         int
	Status        string
	PaymentStatus string
	UserID        *int64
	//注文番号の部分一致
	Search string
	From   *time.Time
	To     *time.Time
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	// 行ロック付き（状態変更用）
	FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (model.Order, error)
	ExistsByOrderNumber(ctx context.Context, orderNumber string) (bool, error)
	ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error)
	Create(ctx context.Context, order model.Order) (int64, error)
	// status / payment_status / 日時 / admin_notes / payment_reference を保存
	UpdateState(ctx context.Context, order model.Order) error

	//検索（同じキーなら同じ結果を返す）
	FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error)
	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)
}

var (
	// 注文番号の一意制約違反（番号を作り直して再試行）
	ErrOrderNumberTaken = errors.New("order number already exists")
	// 同じ冪等キーの注文が同時に作られた
	ErrIdempotencyKeyTaken = errors.New("idempotency key already used")
)
