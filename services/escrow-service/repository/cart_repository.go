package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cjsinari/marikiti-backend/services/escrow-service/models"
	"github.com/redis/go-redis/v9"
)

// CartRepository keeps session carts and checkout idempotency keys in Redis.
type CartRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCartRepository(client *redis.Client, ttl time.Duration) *CartRepository {
	return &CartRepository{
		client: client,
		ttl:    ttl,
	}
}

func (r *CartRepository) cartKey(buyerID string) string {
	return fmt.Sprintf("cart:user:%s", buyerID)
}

// GetCart returns nil, nil when the buyer has no stored cart.
func (r *CartRepository) GetCart(ctx context.Context, buyerID string) (*models.CartSnapshot, error) {
	data, err := r.client.Get(ctx, r.cartKey(buyerID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snap models.CartSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (r *CartRepository) SaveCart(ctx context.Context, snap *models.CartSnapshot) error {
	snap.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.cartKey(snap.BuyerID), data, r.ttl).Err()
}

func (r *CartRepository) DeleteCart(ctx context.Context, buyerID string) error {
	return r.client.Del(ctx, r.cartKey(buyerID)).Err()
}

func (r *CartRepository) idemKey(key string) string {
	return "idem:checkout:" + key
}

// GetIdempotency returns the order id recorded for key, or "" if none.
func (r *CartRepository) GetIdempotency(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, r.idemKey(key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// SetIdempotency records orderID for key unless one is already recorded.
// It returns the id that ends up stored.
func (r *CartRepository) SetIdempotency(ctx context.Context, key, orderID string, ttl time.Duration) (string, error) {
	ok, err := r.client.SetNX(ctx, r.idemKey(key), orderID, ttl).Result()
	if err != nil {
		return "", err
	}
	if ok {
		return orderID, nil
	}
	return r.GetIdempotency(ctx, key)
}
