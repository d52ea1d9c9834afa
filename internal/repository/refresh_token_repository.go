package repository

import (
	"context"
	"time"

	"gaojie/internal/domain/model"
)

type RefreshTokenRepository interface {
	Create(ctx context.Context, token *model.RefreshToken) error
	FindByTokenHash(ctx context.Context, tokenHash string) (model.RefreshToken, error)
	MarkUsed(ctx context.Context, tokenID int64, usedAt time.Time) error
	Revoke(ctx context.Context, tokenID int64, revokedAt time.Time) error
	// 再利用検知時に全部失効
	RevokeAllByUserID(ctx context.Context, userID int64, revokedAt time.Time) error
}
