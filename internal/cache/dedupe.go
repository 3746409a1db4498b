package cache

import (
	"context"
	"time"

	"submission-workflow/internal/core/esign"

	"github.com/redis/go-redis/v9"
)

// WebhookDeduper claims webhook keys with SET NX so a redelivered
// signature event is processed once within the TTL.
type WebhookDeduper struct {
	redis  redis.Cmdable
	ttl    time.Duration
	prefix string
}

var _ esign.Deduper = (*WebhookDeduper)(nil)

func NewWebhookDeduper(client redis.Cmdable, ttl time.Duration) *WebhookDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &WebhookDeduper{redis: client, ttl: ttl, prefix: "esign:webhook:"}
}

// Claim returns true when the caller is the first to see key.
func (d *WebhookDeduper) Claim(ctx context.Context, key string) (bool, error) {
	return d.redis.SetNX(ctx, d.prefix+key, "1", d.ttl).Result()
}

// Release forgets a claim so a failed or no-op delivery can be retried.
func (d *WebhookDeduper) Release(ctx context.Context, key string) error {
	return d.redis.Del(ctx, d.prefix+key).Err()
}
