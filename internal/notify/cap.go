package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// capKeyTTL keeps counters around past the day boundary for audit, then
// lets them expire.
const capKeyTTL = 48 * time.Hour

// RedisCap counts immediate alerts per channel per JST calendar day in
// Redis, so the cap survives restarts and is shared between a scheduled run
// and an overlapping manual run.
type RedisCap struct {
	rdb *redis.Client
	max int
	loc *time.Location
	now func() time.Time
}

// NewRedisCap constructs a cap of max alerts per channel per day.
// max ≤ 0 disables the cap.
func NewRedisCap(rdb *redis.Client, max int) *RedisCap {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		loc = time.FixedZone("JST", 9*60*60)
	}
	return &RedisCap{rdb: rdb, max: max, loc: loc, now: time.Now}
}

// Allow consumes one slot for channel today and reports whether the channel
// is still under its cap. The counter resets at midnight JST simply by
// keying on the calendar day.
func (c *RedisCap) Allow(ctx context.Context, channel string) (bool, error) {
	if c.max <= 0 {
		return true, nil
	}

	day := c.now().In(c.loc).Format("20060102")
	key := fmt.Sprintf("notify:cap:%s:%s", channel, day)

	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("incr %s: %w", key, err)
	}
	// TTL refresh is best-effort; the day key rotates regardless.
	c.rdb.Expire(ctx, key, capKeyTTL)

	return n <= int64(c.max), nil
}
