// Package cache holds the Redis-backed helpers: memoized finance
// calculations and the e-sign webhook deduplication keys.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"submission-workflow/internal/common/logger"
	"submission-workflow/internal/core/finance"
	"submission-workflow/internal/models"

	"github.com/redis/go-redis/v9"
)

// FinanceCache memoizes finance.Calculate. The calculation is pure, so a
// cached plan is identical to a recomputed one. Redis failures degrade to
// computing directly.
type FinanceCache struct {
	redis  redis.Cmdable
	ttl    time.Duration
	logger logger.Logger
}

func NewFinanceCache(client redis.Cmdable, ttl time.Duration, log logger.Logger) *FinanceCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &FinanceCache{redis: client, ttl: ttl, logger: log}
}

// FinanceKey is the cache key of an input.
func FinanceKey(in models.FinanceInput) string {
	return fmt.Sprintf("finance:v1:%s:%s:%d:%s",
		strconv.FormatFloat(in.TotalAmountUSD, 'f', -1, 64),
		strconv.FormatFloat(in.DownPaymentPercent, 'f', -1, 64),
		in.TenureMonths,
		strconv.FormatFloat(in.AnnualInterestPercent, 'f', -1, 64))
}

// Calculate returns the plan for in and whether it came from the cache.
func (c *FinanceCache) Calculate(ctx context.Context, in models.FinanceInput) (*models.FinancePlan, bool, error) {
	key := FinanceKey(in)

	val, err := c.redis.Get(ctx, key).Result()
	switch {
	case err == nil:
		var plan models.FinancePlan
		if jsonErr := json.Unmarshal([]byte(val), &plan); jsonErr == nil {
			return &plan, true, nil
		}
		c.logger.Warn("discarding unreadable cached finance plan", map[string]interface{}{"key": key})
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("finance cache read failed", map[string]interface{}{"key": key, "error": err.Error()})
	}

	plan, err := finance.Calculate(in)
	if err != nil {
		return nil, false, err
	}

	data, err := json.Marshal(plan)
	if err == nil {
		if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("finance cache write failed", map[string]interface{}{"key": key, "error": err.Error()})
		}
	}
	return plan, false, nil
}
