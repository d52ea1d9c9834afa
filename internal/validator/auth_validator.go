package validator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"gaojie/internal/domain/model"
	"gaojie/internal/usecase"
)

var (
	// 入力が不正
	ErrInvalidInput = model.ErrValidation

	// refresh tokenが不正
	ErrInvalidRefresh = errors.New("invalid refresh")
)

type registerRequest struct {
	Email     string `json:"email" validate:"required,email,max=120"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"required,max=50"`
	LastName  string `json:"last_name" validate:"required,max=50"`
	Phone     string `json:"phone" validate:"max=20"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type profileRequest struct {
	FirstName *string `json:"first_name" validate:"omitnil,min=2,max=50"`
	LastName  *string `json:"last_name" validate:"omitnil,min=2,max=50"`
	Phone     *string `json:"phone" validate:"omitnil,max=20"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

type authValidator struct {
	v *Validator
}

// Usecaseは interface を依存注入
func NewAuthValidator(v *Validator) usecase.AuthValidator {
	return &authValidator{v: v}
}

// サインアップの入力を検証（重複チェックはusecase）
func (a *authValidator) ValidateRegister(ctx context.Context, in usecase.RegisterInput) error {
	if err := a.v.Struct(registerRequest{
		Email:     strings.TrimSpace(in.Email),
		Password:  in.Password,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Phone:     strings.TrimSpace(in.Phone),
	}); err != nil {
		return err
	}
	if !hasLetterAndDigit(in.Password) {
		return fmt.Errorf("%w: password must contain a letter and a digit", ErrInvalidInput)
	}
	return nil
}

// ログインの入力を検証
func (a *authValidator) ValidateLogin(ctx context.Context, email string, password string) error {
	return a.v.Struct(loginRequest{Email: strings.TrimSpace(email), Password: password})
}

// refresh 入力を検証
func (a *authValidator) ValidateRefresh(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return ErrInvalidRefresh
	}
	return nil
}

// プロフィール更新（空でない項目だけ）
func (a *authValidator) ValidateProfile(ctx context.Context, in usecase.UpdateProfileInput) error {
	return a.v.Struct(profileRequest{FirstName: in.FirstName, LastName: in.LastName, Phone: in.Phone})
}

// 新パスワードは登録時と同じ強度
func (a *authValidator) ValidateChangePassword(ctx context.Context, in usecase.ChangePasswordInput) error {
	if err := a.v.Struct(changePasswordRequest{CurrentPassword: in.CurrentPassword, NewPassword: in.NewPassword}); err != nil {
		return err
	}
	if !hasLetterAndDigit(in.NewPassword) {
		return fmt.Errorf("%w: password must contain a letter and a digit", ErrInvalidInput)
	}
	return nil
}

func hasLetterAndDigit(s string) bool {
	var letter, digit bool
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return letter && digit
}
