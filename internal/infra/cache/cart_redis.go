package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gaojie/internal/domain/model"

	"github.com/redis/go-redis/v9"
)

// セッションカートをJSONで1キーに保存。保存のたびにTTLを延長
type CartRedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewCartRedisStore(client redis.UniversalClient, ttl time.Duration) *CartRedisStore {
	return &CartRedisStore{client: client, ttl: ttl}
}

func cartKey(sessionID string) string {
	return "cart:session:" + sessionID
}

func (s *CartRedisStore) Get(ctx context.Context, sessionID string) (model.Cart, error) {
	data, err := s.client.Get(ctx, cartKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Cart{SessionID: sessionID, Items: []model.CartItem{}}, nil
	}
	if err != nil {
		return model.Cart{}, err
	}

	var cart model.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return model.Cart{}, err
	}
	cart.SessionID = sessionID
	if cart.Items == nil {
		cart.Items = []model.CartItem{}
	}
	return cart, nil
}

func (s *CartRedisStore) Save(ctx context.Context, cart model.Cart) error {
	if cart.IsEmpty() {
		return s.Delete(ctx, cart.SessionID)
	}
	cart.UpdatedAt = time.Now()

	data, err := json.Marshal(cart)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, cartKey(cart.SessionID), data, s.ttl).Err()
}

func (s *CartRedisStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, cartKey(sessionID)).Err()
}
