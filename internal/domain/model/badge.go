package model

import (
	"strings"
	"time"
)

// 商品ラベル（カテゴリ表示 / プロモ表示）
type Badge struct {
	ID   int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"type:varchar(50);not null;uniqueIndex" json:"name"`
	Slug string `gorm:"type:varchar(60);not null;uniqueIndex" json:"slug"`

	//#RRGGBB
	BackgroundColor string `gorm:"type:varchar(7);not null" json:"background_color"`
	TextColor       string `gorm:"type:varchar(7);not null" json:"text_color"`

	IsActive        bool  `gorm:"not null;default:true;index" json:"is_active"`
	IsCategoryBadge bool  `gorm:"not null;default:true" json:"is_category_badge"`
	SortOrder       int64 `gorm:"not null;default:0" json:"sort_order"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (b Badge) CSSClass() string {
	return "badge-" + strings.ReplaceAll(b.Slug, "_", "-")
}
