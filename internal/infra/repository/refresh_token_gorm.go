package repository

import (
	"context"
	"time"

	"gaojie/internal/domain/model"
	repo "gaojie/internal/repository"

	"gorm.io/gorm"
)

type refreshTokenGormRepository struct {
	db *gorm.DB
}

func NewRefreshTokenRepository(db *gorm.DB) repo.RefreshTokenRepository {
	return &refreshTokenGormRepository{db: db}
}

func (r *refreshTokenGormRepository) Create(ctx context.Context, token *model.RefreshToken) error {
	return r.db.WithContext(ctx).Create(token).Error
}

func (r *refreshTokenGormRepository) FindByTokenHash(ctx context.Context, tokenHash string) (model.RefreshToken, error) {
	var token model.RefreshToken
	err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&token).Error
	if isNotFound(err) {
		return model.RefreshToken{}, repo.ErrNotFound
	}
	if err != nil {
		return model.RefreshToken{}, err
	}
	return token, nil
}

// 未使用のものだけ使用済みにする。0件なら競合で先に使われた
func (r *refreshTokenGormRepository) MarkUsed(ctx context.Context, tokenID int64, usedAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&model.RefreshToken{}).
		Where("id = ? AND used_at IS NULL AND revoked_at IS NULL", tokenID).
		Update("used_at", usedAt)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *refreshTokenGormRepository) Revoke(ctx context.Context, tokenID int64, revokedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.RefreshToken{}).
		Where("id = ? AND revoked_at IS NULL", tokenID).
		Update("revoked_at", revokedAt).Error
}

func (r *refreshTokenGormRepository) RevokeAllByUserID(ctx context.Context, userID int64, revokedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", revokedAt).Error
}
