package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/go_loyalty/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ProductCache caches catalog products. Entries live baseTTL plus up to
// five minutes of jitter so they do not expire together.
type ProductCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewProductCache(client *redis.Client) *ProductCache {
	return &ProductCache{
		client:  client,
		baseTTL: 15 * time.Minute,
	}
}

func (r *ProductCache) Get(ctx context.Context, productID string) (*domain.Product, error) {
	data, err := r.client.Get(ctx, productKey(productID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var product domain.Product
	if err := json.Unmarshal(data, &product); err != nil {
		return nil, fmt.Errorf("unmarshal product failed: %w", err)
	}
	return &product, nil
}

func (r *ProductCache) Set(ctx context.Context, product *domain.Product) error {
	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("marshal product failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(5)) * time.Minute
	if err := r.client.Set(ctx, productKey(product.ID), data, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *ProductCache) Delete(ctx context.Context, productID string) error {
	if err := r.client.Del(ctx, productKey(productID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func productKey(productID string) string {
	return fmt.Sprintf("product:%s", productID)
}
