package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"gaojie/internal/config"
	"gaojie/internal/domain/model"
	repo "gaojie/internal/repository"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	//400 入力不足
	ErrValidation = model.ErrValidation
	//401 認証失敗
	ErrUnauthorized = errors.New("unauthorized")
	//403 停止ユーザー
	ErrForbidden = errors.New("forbidden")
	//401 使用済みrefreshの再利用
	ErrSecurityIncident = errors.New("security incident")
	//409 email重複
	ErrConflict = errors.New("conflict")
	//500
	ErrInternal = errors.New("internal error")
)

// usecaseがValidatorInterfaceに依存する約束
type AuthValidator interface {
	ValidateRegister(ctx context.Context, in RegisterInput) error
	ValidateLogin(ctx context.Context, email string, password string) error
	ValidateRefresh(ctx context.Context, refreshToken string) error
	ValidateProfile(ctx context.Context, in UpdateProfileInput) error
	ValidateChangePassword(ctx context.Context, in ChangePasswordInput) error
}

type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// nilの項目は変更しない
type UpdateProfileInput struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type UserDTO struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Phone        string     `json:"phone,omitempty"`
	Role         string     `json:"role"`
	TokenVersion int        `json:"token_version"`
	IsActive     bool       `json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

type JwtAccessTokenDTO struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenVersion int    `json:"token_version"`
}

type AuthLoginResponse struct {
	User  UserDTO           `json:"user"`
	Token JwtAccessTokenDTO `json:"token"`
}

// refreshの平文はcookieにだけ載せる
type LoginResult struct {
	Body              AuthLoginResponse
	RefreshTokenPlain string
	RefreshExpiresAt  time.Time
}

type RefreshResult struct {
	Body              JwtAccessTokenDTO
	RefreshTokenPlain string
	RefreshExpiresAt  time.Time
}

type AuthUsecase struct {
	cfg       config.Config
	users     repo.UserRepository
	rtRepo    repo.RefreshTokenRepository
	validator AuthValidator
	logger    *zap.Logger
	now       func() time.Time
}

func NewAuthUsecase(
	cfg config.Config,
	users repo.UserRepository,
	rtRepo repo.RefreshTokenRepository,
	validator AuthValidator,
	logger *zap.Logger,
) *AuthUsecase {
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 15 * time.Minute
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = 14 * 24 * time.Hour
	}
	return &AuthUsecase{
		cfg:       cfg,
		users:     users,
		rtRepo:    rtRepo,
		validator: validator,
		logger:    logger,
		now:       time.Now,
	}
}

// 同じemailのゲストがいれば会員に切り替える
func (u *AuthUsecase) Register(ctx context.Context, in RegisterInput) (UserDTO, error) {
	in.Email = model.NormalizeEmail(in.Email)
	if err := u.validator.ValidateRegister(ctx, in); err != nil {
		return UserDTO{}, err
	}

	//パスワードは必ずハッシュ化して保存（平文保存しない）
	pwHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return UserDTO{}, ErrInternal
	}

	existing, err := u.users.FindByEmail(ctx, in.Email)
	switch {
	case err == nil && !existing.IsGuest:
		return UserDTO{}, ErrConflict
	case err == nil:
		existing.PasswordHash = string(pwHash)
		existing.FirstName = in.FirstName
		existing.LastName = in.LastName
		if in.Phone != "" {
			existing.Phone = in.Phone
		}
		existing.IsGuest = false
		existing.IsActive = true
		if err := u.users.Update(ctx, existing); err != nil {
			return UserDTO{}, ErrInternal
		}
		u.logger.Info("guest converted to member", zap.Int64("user_id", existing.ID))
		return toUserDTO(existing), nil
	case !errors.Is(err, repo.ErrNotFound):
		return UserDTO{}, ErrInternal
	}

	user := &model.User{
		Email:        in.Email,
		PasswordHash: string(pwHash),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Phone:        in.Phone,
		Role:         model.RoleUser,
		IsActive:     true,
	}
	if err := u.users.Create(ctx, user); err != nil {
		if errors.Is(err, repo.ErrEmailTaken) {
			return UserDTO{}, ErrConflict
		}
		return UserDTO{}, ErrInternal
	}
	return toUserDTO(*user), nil
}

func (u *AuthUsecase) Login(ctx context.Context, email string, password string, userAgent string) (LoginResult, error) {
	email = model.NormalizeEmail(email)
	if err := u.validator.ValidateLogin(ctx, email, password); err != nil {
		return LoginResult{}, err
	}

	user, err := u.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return LoginResult{}, ErrUnauthorized
		}
		return LoginResult{}, ErrInternal
	}

	//ゲストはパスワードが無いのでログイン不可
	if user.IsGuest || user.PasswordHash == "" {
		return LoginResult{}, ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return LoginResult{}, ErrUnauthorized
	}
	//停止ユーザーはログイン不可
	if !user.CanLogin() {
		return LoginResult{}, ErrForbidden
	}

	now := u.now()
	user.LastLoginAt = &now
	if err := u.users.Update(ctx, user); err != nil {
		u.logger.Warn("update last login", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	token, err := u.issueAccessToken(user)
	if err != nil {
		return LoginResult{}, ErrInternal
	}
	plain, expiresAt, err := u.issueRefreshToken(ctx, user.ID, userAgent)
	if err != nil {
		return LoginResult{}, ErrInternal
	}

	return LoginResult{
		Body: AuthLoginResponse{
			User:  toUserDTO(user),
			Token: token,
		},
		RefreshTokenPlain: plain,
		RefreshExpiresAt:  expiresAt,
	}, nil
}

func (u *AuthUsecase) Me(ctx context.Context, userID int64) (UserDTO, error) {
	if userID <= 0 {
		return UserDTO{}, ErrUnauthorized
	}
	user, err := u.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return UserDTO{}, ErrUnauthorized
		}
		return UserDTO{}, ErrInternal
	}
	if !user.IsActive {
		return UserDTO{}, ErrForbidden
	}
	return toUserDTO(user), nil
}

func (u *AuthUsecase) UpdateProfile(ctx context.Context, userID int64, in UpdateProfileInput) (UserDTO, error) {
	if userID <= 0 {
		return UserDTO{}, ErrUnauthorized
	}
	in.FirstName = trimmedPtr(in.FirstName)
	in.LastName = trimmedPtr(in.LastName)
	in.Phone = trimmedPtr(in.Phone)
	if in.FirstName == nil && in.LastName == nil && in.Phone == nil {
		return UserDTO{}, wrapHTTPError(http.StatusBadRequest, "no data provided", ErrValidation)
	}
	if err := u.validator.ValidateProfile(ctx, in); err != nil {
		return UserDTO{}, err
	}

	user, err := u.activeUser(ctx, userID)
	if err != nil {
		return UserDTO{}, err
	}
	if in.FirstName != nil {
		user.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		user.LastName = *in.LastName
	}
	if in.Phone != nil {
		user.Phone = *in.Phone
	}
	if err := u.users.Update(ctx, user); err != nil {
		return UserDTO{}, ErrInternal
	}
	return toUserDTO(user), nil
}

// パスワード変更。他の端末のrefreshとaccess tokenは無効になり、呼び出し元には新しいセッションを返す
func (u *AuthUsecase) ChangePassword(ctx context.Context, userID int64, in ChangePasswordInput, userAgent string) (LoginResult, error) {
	if userID <= 0 {
		return LoginResult{}, ErrUnauthorized
	}
	if err := u.validator.ValidateChangePassword(ctx, in); err != nil {
		return LoginResult{}, err
	}

	user, err := u.activeUser(ctx, userID)
	if err != nil {
		return LoginResult{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.CurrentPassword)) != nil {
		return LoginResult{}, wrapHTTPError(http.StatusBadRequest, "current password is incorrect", ErrValidation)
	}
	if in.NewPassword == in.CurrentPassword {
		return LoginResult{}, wrapHTTPError(http.StatusBadRequest, "new password must be different from current password", ErrValidation)
	}

	pwHash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return LoginResult{}, ErrInternal
	}
	user.PasswordHash = string(pwHash)
	if err := u.users.Update(ctx, user); err != nil {
		return LoginResult{}, ErrInternal
	}
	if err := u.rtRepo.RevokeAllByUserID(ctx, userID, u.now()); err != nil {
		return LoginResult{}, ErrInternal
	}
	if err := u.users.IncrementTokenVersion(ctx, userID); err != nil {
		return LoginResult{}, ErrInternal
	}
	user, err = u.users.FindByID(ctx, userID)
	if err != nil {
		return LoginResult{}, ErrInternal
	}
	u.logger.Info("password changed", zap.Int64("user_id", userID), zap.Int("token_version", user.TokenVersion))

	token, err := u.issueAccessToken(user)
	if err != nil {
		return LoginResult{}, ErrInternal
	}
	plain, expiresAt, err := u.issueRefreshToken(ctx, user.ID, userAgent)
	if err != nil {
		return LoginResult{}, ErrInternal
	}
	return LoginResult{
		Body:              AuthLoginResponse{User: toUserDTO(user), Token: token},
		RefreshTokenPlain: plain,
		RefreshExpiresAt:  expiresAt,
	}, nil
}

// ログイン中の会員を取り直す（ゲストと停止ユーザーは弾く）
func (u *AuthUsecase) activeUser(ctx context.Context, userID int64) (model.User, error) {
	user, err := u.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.User{}, ErrUnauthorized
		}
		return model.User{}, ErrInternal
	}
	if !user.CanLogin() {
		return model.User{}, ErrForbidden
	}
	return user, nil
}

func trimmedPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// 使い捨てローテーション。使用済みが再提示されたら全セッションを失効
func (u *AuthUsecase) Refresh(ctx context.Context, refreshTokenPlain string, userAgent string) (RefreshResult, error) {
	if err := u.validator.ValidateRefresh(ctx, refreshTokenPlain); err != nil {
		return RefreshResult{}, err
	}

	rt, err := u.rtRepo.FindByTokenHash(ctx, hashToken(refreshTokenPlain))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return RefreshResult{}, ErrUnauthorized
		}
		return RefreshResult{}, ErrInternal
	}

	now := u.now()
	if rt.RevokedAt != nil {
		return RefreshResult{}, ErrUnauthorized
	}
	if rt.UsedAt != nil {
		u.logger.Warn("refresh token reuse detected", zap.Int64("user_id", rt.UserID), zap.Int64("token_id", rt.ID))
		if err := u.rtRepo.RevokeAllByUserID(ctx, rt.UserID, now); err != nil {
			return RefreshResult{}, ErrInternal
		}
		if err := u.users.IncrementTokenVersion(ctx, rt.UserID); err != nil {
			return RefreshResult{}, ErrInternal
		}
		return RefreshResult{}, ErrSecurityIncident
	}
	if !rt.IsActive(now) {
		return RefreshResult{}, ErrUnauthorized
	}

	user, err := u.users.FindByID(ctx, rt.UserID)
	if err != nil {
		return RefreshResult{}, ErrUnauthorized
	}
	if !user.CanLogin() {
		return RefreshResult{}, ErrForbidden
	}

	//旧tokenをusedにする
	if err := u.rtRepo.MarkUsed(ctx, rt.ID, now); err != nil {
		return RefreshResult{}, ErrInternal
	}

	plain, expiresAt, err := u.issueRefreshToken(ctx, user.ID, userAgent)
	if err != nil {
		return RefreshResult{}, ErrInternal
	}
	token, err := u.issueAccessToken(user)
	if err != nil {
		return RefreshResult{}, ErrInternal
	}

	return RefreshResult{
		Body:              token,
		RefreshTokenPlain: plain,
		RefreshExpiresAt:  expiresAt,
	}, nil
}

func (u *AuthUsecase) Logout(ctx context.Context, refreshTokenPlain string) error {
	if refreshTokenPlain == "" {
		return ErrUnauthorized
	}

	rt, err := u.rtRepo.FindByTokenHash(ctx, hashToken(refreshTokenPlain))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUnauthorized
		}
		return ErrInternal
	}
	if rt.RevokedAt != nil {
		return nil
	}
	if err := u.rtRepo.Revoke(ctx, rt.ID, u.now()); err != nil {
		return ErrInternal
	}
	return nil
}

// jwt発行
func (u *AuthUsecase) issueAccessToken(user model.User) (JwtAccessTokenDTO, error) {
	now := u.now()
	ttl := u.cfg.AccessTokenTTL

	claims := jwt.MapClaims{
		"sub":  user.ID,
		"role": string(user.Role),
		"tv":   user.TokenVersion,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := t.SignedString([]byte(u.cfg.JWTSecret))
	if err != nil {
		return JwtAccessTokenDTO{}, err
	}
	return JwtAccessTokenDTO{
		AccessToken:  signed,
		ExpiresIn:    int(ttl.Seconds()),
		TokenVersion: user.TokenVersion,
	}, nil
}

// DBにはhashだけ保存
func (u *AuthUsecase) issueRefreshToken(ctx context.Context, userID int64, userAgent string) (string, time.Time, error) {
	plain, hash, err := newRandomTokenAndHash()
	if err != nil {
		return "", time.Time{}, err
	}
	if len(userAgent) > 255 {
		userAgent = userAgent[:255]
	}
	expiresAt := u.now().Add(u.cfg.RefreshTokenTTL)
	rt := &model.RefreshToken{
		UserID:    userID,
		TokenHash: hash,
		UserAgent: userAgent,
		ExpiresAt: expiresAt,
	}
	if err := u.rtRepo.Create(ctx, rt); err != nil {
		return "", time.Time{}, err
	}
	return plain, expiresAt, nil
}

// refresh token生成（平文 + DB保存hash）
func newRandomTokenAndHash() (plain string, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	plain = base64.RawURLEncoding.EncodeToString(b)
	return plain, hashToken(plain), nil
}

func hashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// model.UserをAPI返却用DTOに変換。
func toUserDTO(u model.User) UserDTO {
	return UserDTO{
		ID:           u.ID,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Phone:        u.Phone,
		Role:         string(u.Role),
		TokenVersion: u.TokenVersion,
		IsActive:     u.IsActive,
		LastLoginAt:  u.LastLoginAt,
	}
}

type ForceLogoutOutput struct {
	UserID       int64 `json:"user_id"`
	TokenVersion int   `json:"token_version"`
}

// 管理者による強制ログアウト。refreshを全失効してtoken_versionを上げる
func (u *AuthUsecase) ForceLogout(ctx context.Context, userID int64) (ForceLogoutOutput, error) {
	if userID <= 0 {
		return ForceLogoutOutput{}, ErrValidation
	}
	if _, err := u.users.FindByID(ctx, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ForceLogoutOutput{}, notFound()
		}
		return ForceLogoutOutput{}, ErrInternal
	}
	if err := u.rtRepo.RevokeAllByUserID(ctx, userID, u.now()); err != nil {
		return ForceLogoutOutput{}, ErrInternal
	}
	if err := u.users.IncrementTokenVersion(ctx, userID); err != nil {
		return ForceLogoutOutput{}, ErrInternal
	}
	user, err := u.users.FindByID(ctx, userID)
	if err != nil {
		return ForceLogoutOutput{}, ErrInternal
	}
	u.logger.Info("force logout", zap.Int64("user_id", userID), zap.Int("token_version", user.TokenVersion))
	return ForceLogoutOutput{UserID: userID, TokenVersion: user.TokenVersion}, nil
}
