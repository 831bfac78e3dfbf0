package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// PredictionCache stores the provider's class codes per image digest. Codes are
// translated on read so a cached entry never outlives a change to the name table.
type PredictionCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewPredictionCache(client *redisv9.Client, ttl time.Duration) *PredictionCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &PredictionCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *PredictionCache) Get(ctx context.Context, key string) ([]string, bool, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get prediction failed: %w", err)
	}

	var codes []string
	if err := json.Unmarshal([]byte(raw), &codes); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached prediction failed: %w", err)
	}
	return codes, true, nil
}

func (c *PredictionCache) Set(ctx context.Context, key string, codes []string) error {
	payload, err := json.Marshal(codes)
	if err != nil {
		return fmt.Errorf("marshal prediction cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.key(key), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set prediction failed: %w", err)
	}
	return nil
}

func (c *PredictionCache) key(key string) string {
	return "dermascan:prediction:codes:" + key
}
