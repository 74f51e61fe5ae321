package online

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherflow/lobby/internal/lobby"
)

func newTestAdvertisement(key string, owner lobby.UserID, created time.Time) *Advertisement {
	return &Advertisement{
		Key:                 key,
		OwnerID:             owner,
		HostAddr:            "127.0.0.1:7777",
		Settings:            lobby.Settings{lobby.SettingSessionID: key, lobby.SettingMapName: "Arena"},
		IsLAN:               true,
		UsesPresence:        true,
		AllowJoinInProgress: true,
		MaxPlayers:          4,
		OpenSlots:           3,
		State:               StatePending,
		CreatedAt:           created,
		UpdatedAt:           created,
	}
}

// runRegistryContract exercises the behavior every Registry shares
func runRegistryContract(t *testing.T, registry Registry) {
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)

	require.NoError(t, registry.Advertise(ctx, newTestAdvertisement("b", "host-b", base.Add(time.Second))))
	require.NoError(t, registry.Advertise(ctx, newTestAdvertisement("a", "host-a", base)))

	err := registry.Advertise(ctx, newTestAdvertisement("a", "host-a", base))
	assert.ErrorIs(t, err, ErrAdvertisementExists)

	adv, err := registry.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, lobby.UserID("host-a"), adv.OwnerID)
	assert.Equal(t, "a", adv.Settings[lobby.SettingSessionID])

	_, err = registry.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrAdvertisementNotFound)

	// oldest first
	found, err := registry.Search(ctx, Query{IsLAN: true, Presence: true})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "a", found[0].Key)
	assert.Equal(t, "b", found[1].Key)

	found, err = registry.Search(ctx, Query{IsLAN: true, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, found, 1)

	found, err = registry.Search(ctx, Query{IsLAN: false})
	require.NoError(t, err)
	assert.Empty(t, found)

	updated, err := registry.Update(ctx, "a", func(adv *Advertisement) error {
		return adv.Reserve("client")
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.OpenSlots)
	assert.Equal(t, 2, updated.Participants())

	_, err = registry.Update(ctx, "a", func(adv *Advertisement) error {
		adv.OpenSlots = 0
		return ErrNoOpenSlots
	})
	assert.ErrorIs(t, err, ErrNoOpenSlots)

	adv, err = registry.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, adv.OpenSlots, "failed update must not be stored")

	_, err = registry.Update(ctx, "missing", func(*Advertisement) error { return nil })
	assert.ErrorIs(t, err, ErrAdvertisementNotFound)

	count, err := registry.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, registry.Remove(ctx, "a"))
	assert.ErrorIs(t, registry.Remove(ctx, "a"), ErrAdvertisementNotFound)

	count, err = registry.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryRegistry(t *testing.T) {
	runRegistryContract(t, NewMemoryRegistry())
}

func TestMemoryRegistryReturnsCopies(t *testing.T) {
	registry := NewMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, registry.Advertise(ctx, newTestAdvertisement("a", "host", time.Now())))

	adv, err := registry.Get(ctx, "a")
	require.NoError(t, err)
	adv.Settings[lobby.SettingMapName] = "Changed"
	adv.OpenSlots = 0

	again, err := registry.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Arena", again.Settings[lobby.SettingMapName])
	assert.Equal(t, 3, again.OpenSlots)
}

func TestMemoryRegistryClosed(t *testing.T) {
	registry := NewMemoryRegistry()
	require.NoError(t, registry.Close())

	err := registry.Advertise(context.Background(), newTestAdvertisement("a", "host", time.Now()))
	assert.ErrorIs(t, err, ErrRegistryClosed)
}

func TestAdvertisementVisibility(t *testing.T) {
	adv := newTestAdvertisement("a", "host", time.Now())
	assert.True(t, adv.Matches(Query{IsLAN: true}))
	assert.True(t, adv.Matches(Query{IsLAN: true, Presence: true}))

	adv.UsesPresence = false
	assert.False(t, adv.Matches(Query{IsLAN: true, Presence: true}))
	assert.True(t, adv.Matches(Query{IsLAN: true}))

	adv.State = StateInProgress
	assert.True(t, adv.Matches(Query{IsLAN: true}))

	adv.AllowJoinInProgress = false
	assert.False(t, adv.Matches(Query{IsLAN: true}))
}

func TestAdvertisementSlots(t *testing.T) {
	adv := newTestAdvertisement("a", "host", time.Now())
	adv.OpenSlots = 1

	require.NoError(t, adv.Reserve("c1"))
	require.NoError(t, adv.Reserve("c1"), "reserving twice is a no-op")
	assert.ErrorIs(t, adv.Reserve("c2"), ErrNoOpenSlots)
	assert.Equal(t, 0, adv.OpenSlots)

	adv.Release("c2")
	assert.Equal(t, 0, adv.OpenSlots)

	adv.Release("c1")
	assert.Equal(t, 1, adv.OpenSlots)
	assert.False(t, adv.HasMember("c1"))
}
