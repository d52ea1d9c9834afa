package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type User struct {
	ID    int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Email string `gorm:"type:varchar(120);uniqueIndex;not null" json:"email"`
	//ゲストは空
	PasswordHash string `gorm:"column:password_hash;type:varchar(200);not null;default:''" json:"-"`
	FirstName    string `gorm:"type:varchar(50);not null" json:"first_name"`
	LastName     string `gorm:"type:varchar(50);not null" json:"last_name"`
	Phone        string `gorm:"type:varchar(20)" json:"phone"`
	Role         Role   `gorm:"type:varchar(20);not null;default:'USER'" json:"role"`
	//メールだけで作られたゲスト（ログイン不可）
	IsGuest      bool       `gorm:"not null;default:false" json:"is_guest"`
	IsActive     bool       `gorm:"not null;default:true" json:"is_active"`
	TokenVersion int        `gorm:"not null;default:0" json:"token_version"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ログインできるのは登録済みかつ有効なユーザーだけ
func (u User) CanLogin() bool {
	return !u.IsGuest && u.PasswordHash != "" && u.IsActive
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
