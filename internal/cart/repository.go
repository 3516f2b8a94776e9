package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joao-fontenele/orderflow-saga/internal/domain"
)

type Repository interface {
	Get(ctx context.Context, customerID string) (*domain.Cart, error)
	Save(ctx context.Context, cart *domain.Cart) error
	// Delete removes the customer's cart and reports whether one existed.
	Delete(ctx context.Context, customerID string) (bool, error)
}

func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisRepository stores one JSON document per customer, expiring after ttl.
type RedisRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRepository(client *redis.Client, ttl time.Duration) *RedisRepository {
	return &RedisRepository{
		client: client,
		ttl:    ttl,
	}
}

func cartKey(customerID string) string {
	return "cart:customer:" + customerID
}

func (r *RedisRepository) Get(ctx context.Context, customerID string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cartKey(customerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return &cart, nil
}

func (r *RedisRepository) Save(ctx context.Context, cart *domain.Cart) error {
	cart.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}

	if err := r.client.Set(ctx, cartKey(cart.CustomerID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func (r *RedisRepository) Delete(ctx context.Context, customerID string) (bool, error) {
	n, err := r.client.Del(ctx, cartKey(customerID)).Result()
	if err != nil {
		return false, fmt.Errorf("delete cart: %w", err)
	}
	return n > 0, nil
}
