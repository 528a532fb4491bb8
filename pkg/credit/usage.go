package credit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// UsageSource reads how many credits a user has consumed within a period.
// Consumption is tracked by a separate usage ledger outside this module;
// the engine only reads it for the downgrade overuse check and for balance
// derivation.
type UsageSource interface {
	ConsumedCredits(ctx context.Context, userID uuid.UUID, start, end time.Time) (int64, error)
}

// UsageSourceFunc adapts a function to UsageSource.
type UsageSourceFunc func(ctx context.Context, userID uuid.UUID, start, end time.Time) (int64, error)

func (f UsageSourceFunc) ConsumedCredits(ctx context.Context, userID uuid.UUID, start, end time.Time) (int64, error) {
	return f(ctx, userID, start, end)
}

// StaticUsage is a fixed-value UsageSource for tests.
type StaticUsage int64

func (u StaticUsage) ConsumedCredits(context.Context, uuid.UUID, time.Time, time.Time) (int64, error) {
	return int64(u), nil
}

// RedisUsageSource reads per-period consumption counters maintained in Redis
// by the metering pipeline. Counters are keyed by user and period start so
// the overuse check stays a single fast read on the tier-change path.
type RedisUsageSource struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisUsageSource creates a UsageSource over the given client. Keys look
// like "<prefix>:usage:<userID>:<periodStart unix>".
func NewRedisUsageSource(client *redis.Client, keyPrefix string) *RedisUsageSource {
	if client == nil {
		panic("credit: redis client is required")
	}
	if keyPrefix == "" {
		keyPrefix = "billing"
	}
	return &RedisUsageSource{client: client, keyPrefix: keyPrefix}
}

func (s *RedisUsageSource) ConsumedCredits(ctx context.Context, userID uuid.UUID, start, _ time.Time) (int64, error) {
	key := fmt.Sprintf("%s:usage:%s:%d", s.keyPrefix, userID, start.UTC().Unix())

	val, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Join(ErrFailedToReadUsage, err)
	}
	return val, nil
}
