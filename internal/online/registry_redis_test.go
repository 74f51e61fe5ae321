package online

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aetherflow/lobby/internal/lobby"
)

// DB 15 is reserved for tests
func newTestRedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})
}

func isRedisAvailable() bool {
	client := newTestRedisClient()
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return client.Ping(ctx).Err() == nil
}

func newTestRedisRegistry(t *testing.T) *RedisRegistry {
	return newTestRedisRegistryWithTTL(t, time.Minute)
}

func newTestRedisRegistryWithTTL(t *testing.T, ttl time.Duration) *RedisRegistry {
	if !isRedisAvailable() {
		t.Skip("Redis not available, skipping test")
	}

	registry, err := NewRedisRegistry(&RedisRegistryConfig{
		Client: newTestRedisClient(),
		Logger: zaptest.NewLogger(t),
		TTL:    ttl,
	})
	require.NoError(t, err)
	require.NoError(t, registry.Clear(context.Background()))

	t.Cleanup(func() {
		registry.Clear(context.Background())
		registry.Close()
	})
	return registry
}

func TestRedisRegistry(t *testing.T) {
	runRegistryContract(t, newTestRedisRegistry(t))
}

func TestRedisRegistryConcurrentReserve(t *testing.T) {
	registry := newTestRedisRegistry(t)
	ctx := context.Background()

	adv := newTestAdvertisement("busy", "host", time.Now())
	adv.OpenSlots = 2
	require.NoError(t, registry.Advertise(ctx, adv))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		joined int
	)
	for _, user := range []string{"c1", "c2", "c3", "c4"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			_, err := registry.Update(ctx, "busy", func(a *Advertisement) error {
				return a.Reserve(lobby.UserID(user))
			})
			if err == nil {
				mu.Lock()
				joined++
				mu.Unlock()
			}
		}(user)
	}
	wg.Wait()

	stored, err := registry.Get(ctx, "busy")
	require.NoError(t, err)
	assert.LessOrEqual(t, joined, 2)
	assert.Equal(t, 2-joined, stored.OpenSlots)
	assert.Len(t, stored.Members, joined)
}

func TestRedisRegistryPrunesExpired(t *testing.T) {
	registry := newTestRedisRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.Advertise(ctx, newTestAdvertisement("a", "host", time.Now())))
	require.NoError(t, registry.client.Del(ctx, advertisementKeyPrefix+"a").Err())

	found, err := registry.Search(ctx, Query{IsLAN: true})
	require.NoError(t, err)
	assert.Empty(t, found)

	count, err := registry.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRedisRegistryRefresh(t *testing.T) {
	registry := newTestRedisRegistryWithTTL(t, 300*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, registry.Advertise(ctx, newTestAdvertisement("a", "host", time.Now())))
	for i := 0; i < 4; i++ {
		time.Sleep(150 * time.Millisecond)
		require.NoError(t, registry.Refresh(ctx, "a"))
	}
	_, err := registry.Get(ctx, "a")
	require.NoError(t, err)

	time.Sleep(500 * time.Millisecond)
	_, err = registry.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrAdvertisementNotFound)
	assert.ErrorIs(t, registry.Refresh(ctx, "a"), ErrAdvertisementNotFound)
}

func TestHostedAdvertisementOutlivesTTL(t *testing.T) {
	registry := newTestRedisRegistryWithTTL(t, 300*time.Millisecond)
	host := newPeer(t, registry, "host", "10.0.0.1:7777")

	hostGame(t, host, "room-1", 4)

	named, ok := host.sub.NamedSession(lobby.DefaultGameSessionName)
	require.True(t, ok)

	// an advertisement nobody refreshes expires within the same window
	ctx := context.Background()
	require.NoError(t, registry.Advertise(ctx, newTestAdvertisement("orphan", "other", time.Now())))

	time.Sleep(time.Second)

	_, err := registry.Get(ctx, named.Key)
	assert.NoError(t, err)
	_, err = registry.Get(ctx, "orphan")
	assert.ErrorIs(t, err, ErrAdvertisementNotFound)
}
