package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// ActivitySource reports how many requests the control API observed over a
// trailing window. The idle checker is its only consumer.
type ActivitySource interface {
	CountWindow(ctx context.Context, window time.Duration) (int64, error)
}

// ActivityService tracks control API traffic in Redis as per-minute counter
// buckets. Recording is best-effort (a dropped increment is polling noise);
// reading is not, since the idle checker fails closed on error.
type ActivityService struct {
	redis  *RedisService
	prefix string
	now    func() time.Time // test hook
}

// NewActivityService creates the Redis-backed activity tracker
func NewActivityService(redis *RedisService) *ActivityService {
	return &ActivityService{
		redis:  redis,
		prefix: "aipa:activity:",
		now:    time.Now,
	}
}

// RecordRequest increments the current minute's bucket. Buckets expire on
// their own once they fall out of the largest window anyone would query.
func (a *ActivityService) RecordRequest(ctx context.Context) {
	key := a.bucketKey(a.now())

	count, err := a.redis.Incr(ctx, key)
	if err != nil {
		slog.Debug("activity increment failed", "error", err)
		return
	}

	// First write to the bucket sets its TTL
	if count == 1 {
		if err := a.redis.Expire(ctx, key, 24*time.Hour); err != nil {
			slog.Debug("activity bucket expire failed", "key", key, "error", err)
		}
	}
}

// CountWindow sums the buckets covering the trailing window. The extra
// bucket covers the partial minute at the window's far edge.
func (a *ActivityService) CountWindow(ctx context.Context, window time.Duration) (int64, error) {
	if window <= 0 {
		return 0, nil
	}

	buckets := int(window/time.Minute) + 1
	now := a.now()

	keys := make([]string, 0, buckets)
	for i := 0; i < buckets; i++ {
		keys = append(keys, a.bucketKey(now.Add(-time.Duration(i)*time.Minute)))
	}

	values, err := a.redis.MGet(ctx, keys...)
	if err != nil {
		return 0, fmt.Errorf("failed to read activity buckets: %w", err)
	}

	var total int64
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue // nil = bucket never written
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		total += n
	}

	return total, nil
}

func (a *ActivityService) bucketKey(t time.Time) string {
	return a.prefix + strconv.FormatInt(t.UTC().Unix()/60, 10)
}
