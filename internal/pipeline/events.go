package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/miyazaki-CS/bidding-system/internal/model"
)

// RunEventChannel is the Redis pub/sub channel the dashboard subscribes to.
const RunEventChannel = "bidwatch:runs"

// RedisEvents publishes terminal run summaries to Redis pub/sub.
type RedisEvents struct {
	rdb *redis.Client
}

// NewRedisEvents constructs the publisher.
func NewRedisEvents(rdb *redis.Client) *RedisEvents {
	return &RedisEvents{rdb: rdb}
}

// RunCompleted publishes the summary as JSON.
func (e *RedisEvents) RunCompleted(ctx context.Context, sum model.RunSummary) error {
	payload, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}
	if err := e.rdb.Publish(ctx, RunEventChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish run event: %w", err)
	}
	return nil
}
