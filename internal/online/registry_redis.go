package online

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// Redis key prefixes
	advertisementKeyPrefix = "lobby:ad:" // lobby:ad:{key}
	advertisementSetKey    = "lobby:ads" // Set of all advertisement keys
	maxUpdateRetries       = 5
)

// RedisRegistry Redis-based advertisement registry
type RedisRegistry struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// RedisRegistryConfig Redis registry configuration
type RedisRegistryConfig struct {
	Client *redis.Client
	Logger *zap.Logger
	TTL    time.Duration // advertisement TTL, extended by Update and Refresh
}

// NewRedisRegistry creates a new Redis-based registry
func NewRedisRegistry(config *RedisRegistryConfig) (*RedisRegistry, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	if config.TTL == 0 {
		config.TTL = 30 * time.Minute
	}

	return &RedisRegistry{
		client: config.Client,
		logger: config.Logger,
		ttl:    config.TTL,
	}, nil
}

// Advertise stores a new advertisement
func (r *RedisRegistry) Advertise(ctx context.Context, adv *Advertisement) error {
	data, err := json.Marshal(adv)
	if err != nil {
		return fmt.Errorf("failed to marshal advertisement: %w", err)
	}

	key := advertisementKeyPrefix + adv.Key
	created, err := r.client.SetNX(ctx, key, data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to advertise session: %w", err)
	}
	if !created {
		return fmt.Errorf("%w: %s", ErrAdvertisementExists, adv.Key)
	}

	if err := r.client.SAdd(ctx, advertisementSetKey, adv.Key).Err(); err != nil {
		r.client.Del(ctx, key)
		return fmt.Errorf("failed to index advertisement: %w", err)
	}

	r.logger.Debug("Advertisement stored in Redis",
		zap.String("key", adv.Key),
		zap.Duration("ttl", r.ttl))

	return nil
}

// Get retrieves an advertisement by key
func (r *RedisRegistry) Get(ctx context.Context, key string) (*Advertisement, error) {
	data, err := r.client.Get(ctx, advertisementKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrAdvertisementNotFound, key)
		}
		return nil, fmt.Errorf("failed to get advertisement: %w", err)
	}

	return decodeAdvertisement(data)
}

// Update applies fn inside an optimistic WATCH transaction, retrying on conflict
func (r *RedisRegistry) Update(ctx context.Context, key string, fn func(*Advertisement) error) (*Advertisement, error) {
	redisKey := advertisementKeyPrefix + key

	var updated *Advertisement
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, redisKey).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("%w: %s", ErrAdvertisementNotFound, key)
			}
			return err
		}

		adv, err := decodeAdvertisement(data)
		if err != nil {
			return err
		}
		if err := fn(adv); err != nil {
			return err
		}

		out, err := json.Marshal(adv)
		if err != nil {
			return fmt.Errorf("failed to marshal advertisement: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, out, r.ttl)
			return nil
		})
		if err == nil {
			updated = adv
		}
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := r.client.Watch(ctx, txf, redisKey)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
		r.logger.Debug("Advertisement update conflict, retrying",
			zap.String("key", key),
			zap.Int("attempt", i+1))
	}

	return nil, fmt.Errorf("failed to update advertisement %s: too many conflicts", key)
}

// Remove deletes an advertisement
func (r *RedisRegistry) Remove(ctx context.Context, key string) error {
	pipe := r.client.TxPipeline()
	del := pipe.Del(ctx, advertisementKeyPrefix+key)
	pipe.SRem(ctx, advertisementSetKey, key)

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to remove advertisement from Redis",
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("failed to remove advertisement: %w", err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("%w: %s", ErrAdvertisementNotFound, key)
	}

	return nil
}

// Search lists advertisements matching q. Index entries whose record has
// expired are pruned on the way.
func (r *RedisRegistry) Search(ctx context.Context, q Query) ([]*Advertisement, error) {
	keys, err := r.client.SMembers(ctx, advertisementSetKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to list advertisements: %w", err)
	}
	if len(keys) == 0 {
		return []*Advertisement{}, nil
	}

	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = advertisementKeyPrefix + k
	}

	values, err := r.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch advertisements: %w", err)
	}

	advs := make([]*Advertisement, 0, len(values))
	var expired []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, keys[i])
			continue
		}
		adv, err := decodeAdvertisement([]byte(raw))
		if err != nil {
			r.logger.Warn("Invalid advertisement in Redis",
				zap.String("key", keys[i]),
				zap.Error(err))
			continue
		}
		advs = append(advs, adv)
	}

	if len(expired) > 0 {
		if err := r.client.SRem(ctx, advertisementSetKey, expired...).Err(); err != nil {
			r.logger.Warn("Failed to prune expired advertisements",
				zap.Int("count", len(expired)),
				zap.Error(err))
		} else {
			r.logger.Debug("Pruned expired advertisements", zap.Int("count", len(expired)))
		}
	}

	return filterAdvertisements(advs, q), nil
}

// Refresh resets the TTL of an advertisement
func (r *RedisRegistry) Refresh(ctx context.Context, key string) error {
	ok, err := r.client.Expire(ctx, advertisementKeyPrefix+key, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to refresh advertisement: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrAdvertisementNotFound, key)
	}
	return nil
}

// RefreshInterval leaves room for two missed refreshes before expiry
func (r *RedisRegistry) RefreshInterval() time.Duration {
	return r.ttl / 3
}

// Count returns the number of indexed advertisements
func (r *RedisRegistry) Count(ctx context.Context) (int, error) {
	count, err := r.client.SCard(ctx, advertisementSetKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count advertisements: %w", err)
	}
	return int(count), nil
}

// Ping checks if Redis is reachable
func (r *RedisRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Clear removes every advertisement (for testing purposes)
func (r *RedisRegistry) Clear(ctx context.Context) error {
	r.logger.Warn("Clearing all advertisements from Redis")

	keys, err := r.client.SMembers(ctx, advertisementSetKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list advertisements: %w", err)
	}

	pipe := r.client.Pipeline()
	for _, k := range keys {
		pipe.Del(ctx, advertisementKeyPrefix+k)
	}
	pipe.Del(ctx, advertisementSetKey)
	_, err = pipe.Exec(ctx)

	return err
}

// Close closes the Redis connection
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}

func decodeAdvertisement(data []byte) (*Advertisement, error) {
	var adv Advertisement
	if err := json.Unmarshal(data, &adv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal advertisement: %w", err)
	}
	return &adv, nil
}
