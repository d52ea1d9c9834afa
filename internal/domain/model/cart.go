package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// セッション単位のカート。永続化はCartStoreに任せる
type Cart struct {
	SessionID string     `json:"session_id"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// 追加時点の価格を必ず保存
type CartItem struct {
	ProductID     int64           `json:"product_id"`
	Quantity      int64           `json:"quantity"`
	PriceSnapshot decimal.Decimal `json:"price_snapshot"`
	AddedAt       time.Time       `json:"added_at"`
}

func (c *Cart) Find(productID int64) (int, bool) {
	for i, it := range c.Items {
		if it.ProductID == productID {
			return i, true
		}
	}
	return -1, false
}

func (c *Cart) Remove(productID int64) bool {
	i, ok := c.Find(productID)
	if !ok {
		return false
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	return true
}

func (c *Cart) Count() int64 {
	var n int64
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}
