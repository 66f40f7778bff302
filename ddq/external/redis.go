// Package external implements ddq.Queue against a durable key-value store
// (Redis) so dedup state survives process restarts and is shared across
// dispatcher instances.
package external

import (
	"context"
	"time"

	"github.com/arielkovacs/msgbus/ddq"
	apperrors "github.com/arielkovacs/msgbus/internal/errors"
	"github.com/arielkovacs/msgbus/internal/logger"
	"github.com/redis/go-redis/v9"
)

// Redis is a DDQ backed by a Redis set (membership) plus a Redis list
// (eviction order).
type Redis struct {
	client   redis.Cmdable
	setKey   string
	listKey  string
	capacity int
	ttl      time.Duration
}

// Config configures a Redis-backed DDQ instance.
type Config struct {
	// KeyPrefix namespaces the set/list keys for this handler scope.
	KeyPrefix string
	// Capacity bounds the list length.
	Capacity int
	// TTL is refreshed on both keys after every successful Add.
	TTL time.Duration
}

// New constructs a Redis-backed DDQ.
func New(client redis.Cmdable, cfg Config) (*Redis, error) {
	if cfg.Capacity <= 0 {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "ddq capacity must be positive", nil)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &Redis{
		client:   client,
		setKey:   cfg.KeyPrefix + ":seen",
		listKey:  cfg.KeyPrefix + ":order",
		capacity: cfg.Capacity,
		ttl:      cfg.TTL,
	}, nil
}

// Contains fails open (returns false, logs) on a store error: dedup
// failure must never stop message processing.
func (r *Redis) Contains(ctx context.Context, uuid string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.setKey, uuid).Result()
	if err != nil {
		logger.L().WarnContext(ctx, "ddq contains check failed, failing open", "error", err)
		return false, nil
	}
	return ok, nil
}

// Add inserts uuid into the set, prepends it to the order list, and
// refreshes TTL on both keys in a single atomic batch, then evicts any
// list overflow past capacity, removing those members from the set before
// trimming so Contains stays consistent with the bounded list.
func (r *Redis) Add(ctx context.Context, uuid string) error {
	exists, err := r.client.SIsMember(ctx, r.setKey, uuid).Result()
	if err != nil {
		logger.L().WarnContext(ctx, "ddq pre-check failed, proceeding with add", "error", err)
	}
	if exists {
		return nil
	}

	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, r.setKey, uuid)
	pipe.LPush(ctx, r.listKey, uuid)
	pipe.Expire(ctx, r.setKey, r.ttl)
	pipe.Expire(ctx, r.listKey, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.New(apperrors.CodeInternal, "ddq redis add failed", err)
	}

	return r.evictOverflow(ctx)
}

// evictOverflow trims the order list back to capacity. The overflow tail
// is read and removed from the membership set first; a concurrent writer
// racing the trim can leave a straggler in the set, which the next Add's
// eviction pass or the TTL cleans up.
func (r *Redis) evictOverflow(ctx context.Context) error {
	overflow, err := r.client.LRange(ctx, r.listKey, int64(r.capacity), -1).Result()
	if err != nil {
		logger.L().WarnContext(ctx, "ddq overflow read failed", "error", err)
		return nil
	}
	if len(overflow) == 0 {
		return nil
	}

	members := make([]interface{}, len(overflow))
	for i, m := range overflow {
		members[i] = m
	}
	if err := r.client.SRem(ctx, r.setKey, members...).Err(); err != nil {
		logger.L().WarnContext(ctx, "ddq overflow srem failed", "error", err)
	}
	if err := r.client.LTrim(ctx, r.listKey, 0, int64(r.capacity-1)).Err(); err != nil {
		logger.L().WarnContext(ctx, "ddq overflow trim failed", "error", err)
	}
	return nil
}

func (r *Redis) StatsSnapshot(ctx context.Context) (ddq.Stats, error) {
	count, err := r.client.LLen(ctx, r.listKey).Result()
	if err != nil {
		return ddq.Stats{}, apperrors.New(apperrors.CodeInternal, "ddq redis stats failed", err)
	}
	if count > int64(r.capacity) {
		count = int64(r.capacity)
	}
	return ddq.Stats{
		Size:        r.capacity,
		Count:       int(count),
		Utilization: float64(count) / float64(r.capacity),
	}, nil
}

func (r *Redis) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.setKey, r.listKey).Err(); err != nil {
		return apperrors.New(apperrors.CodeInternal, "ddq redis clear failed", err)
	}
	return nil
}

var _ ddq.Queue = (*Redis)(nil)
