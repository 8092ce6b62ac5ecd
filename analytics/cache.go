package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// CacheTTL is how long a computed summary is served from Redis.
const CacheTTL = 5 * time.Minute

// CacheKey identifies a summary for an organization, window and granularity.
func CacheKey(orgID uint, r Range, g Granularity) string {
	return fmt.Sprintf("analytics:%d:%d:%d:%s", orgID, r.From.Unix(), r.To.Unix(), g)
}

// Cached returns the summary stored under key, computing and storing it on a
// miss. A nil client or a Redis failure just computes the summary.
func Cached(ctx context.Context, rdb *redis.Client, key string, compute func() (Summary, error)) (Summary, error) {
	if rdb == nil {
		return compute()
	}

	if raw, err := rdb.Get(ctx, key).Bytes(); err == nil {
		var s Summary
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, nil
		}
	} else if err != redis.Nil {
		logrus.WithError(err).WithField("key", key).Warn("analytics cache read failed")
	}

	s, err := compute()
	if err != nil {
		return s, err
	}
	if raw, err := json.Marshal(s); err == nil {
		if err := rdb.Set(ctx, key, string(raw), CacheTTL).Err(); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("analytics cache write failed")
		}
	}
	return s, nil
}
