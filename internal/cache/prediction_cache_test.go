package cache

import (
	"context"
	"testing"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

func unreachable() *redisv9.Client {
	return redisv9.NewClient(&redisv9.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestNewPredictionCache_DefaultTTL(t *testing.T) {
	client := unreachable()
	defer client.Close()

	c := NewPredictionCache(client, 0)
	if c.ttl != 10*time.Minute {
		t.Errorf("ttl = %v, expected 10m", c.ttl)
	}
	if got := c.key("abc"); got != "dermascan:prediction:codes:abc" {
		t.Errorf("key() = %q", got)
	}
}

func TestPredictionCache_UnreachableReportsError(t *testing.T) {
	client := unreachable()
	defer client.Close()

	c := NewPredictionCache(client, time.Minute)
	if _, _, err := c.Get(context.Background(), "abc"); err == nil {
		t.Error("Get() expected error from unreachable redis")
	}
	if err := c.Set(context.Background(), "abc", []string{"MEL"}); err == nil {
		t.Error("Set() expected error from unreachable redis")
	}
}
