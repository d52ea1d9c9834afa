package repository

import (
	"context"
	"errors"

	"gaojie/internal/domain/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	// 同じemailがあれば作らずにその行をuserへ読み込む。作成したらtrue
	CreateGuestIfAbsent(ctx context.Context, user *model.User) (bool, error)
	FindByID(ctx context.Context, userID int64) (model.User, error)
	// emailは小文字で渡す
	FindByEmail(ctx context.Context, email string) (model.User, error)
	Update(ctx context.Context, user model.User) error
	IncrementTokenVersion(ctx context.Context, userID int64) error
}

// emailの一意制約違反
var ErrEmailTaken = errors.New("email already registered")
