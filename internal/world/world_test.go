package world

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aetherflow/lobby/internal/lobby"
	"github.com/aetherflow/lobby/internal/online"
)

type stubSource struct {
	mu  sync.Mutex
	occ online.Occupancy
	err error
}

func (s *stubSource) set(occ online.Occupancy, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.occ = occ
	s.err = err
}

func (s *stubSource) Occupancy(ctx context.Context, name lobby.SessionName) (online.Occupancy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.occ, s.err
}

func TestWorldStartsIdle(t *testing.T) {
	w := New(&Config{Logger: zaptest.NewLogger(t)})
	defer w.Close()

	assert.True(t, w.Idle())
	assert.Equal(t, lobby.DefaultIdleContext, w.Current().Destination)
	assert.Equal(t, 0, w.ParticipantCount())
	assert.False(t, w.HasAuthority())
}

func TestSwitchContextAsHost(t *testing.T) {
	var traveled []Context
	w := New(&Config{
		Logger:   zaptest.NewLogger(t),
		OnTravel: func(c Context) { traveled = append(traveled, c) },
	})
	defer w.Close()

	w.SwitchContext("Arena", true)

	assert.False(t, w.Idle())
	assert.Equal(t, 1, w.ParticipantCount())
	assert.True(t, w.HasAuthority())
	require.Len(t, traveled, 1)
	assert.Equal(t, "Arena", traveled[0].Destination)
	assert.True(t, traveled[0].AsHost)

	w.SwitchContext(lobby.DefaultIdleContext, false)
	assert.True(t, w.Idle())
	assert.Equal(t, 0, w.ParticipantCount())
	assert.False(t, w.HasAuthority())
}

func TestRefreshReadsOccupancy(t *testing.T) {
	source := &stubSource{}
	w := New(&Config{
		Source:          source,
		Logger:          zaptest.NewLogger(t),
		RefreshInterval: time.Hour,
	})
	defer w.Close()
	ctx := context.Background()

	source.set(online.Occupancy{Participants: 3}, nil)
	require.NoError(t, w.Refresh(ctx))
	assert.Equal(t, 0, w.ParticipantCount(), "idle context is not refreshed")

	w.SwitchContext("10.0.0.1:7777", false)
	require.NoError(t, w.Refresh(ctx))
	assert.Equal(t, 3, w.ParticipantCount())
	assert.False(t, w.HasAuthority())

	source.set(online.Occupancy{}, fmt.Errorf("%w: GameSession", online.ErrUnknownSession))
	require.NoError(t, w.Refresh(ctx))
	assert.Equal(t, 0, w.ParticipantCount())

	boom := errors.New("registry down")
	source.set(online.Occupancy{}, boom)
	assert.ErrorIs(t, w.Refresh(ctx), boom)
}

func TestRefreshLoop(t *testing.T) {
	source := &stubSource{}
	source.set(online.Occupancy{Participants: 2, Authority: true}, nil)

	w := New(&Config{
		Source:          source,
		Logger:          zaptest.NewLogger(t),
		RefreshInterval: 10 * time.Millisecond,
	})
	defer w.Close()

	w.SwitchContext("Arena", true)

	assert.Eventually(t, func() bool { return w.ParticipantCount() == 2 },
		time.Second, 10*time.Millisecond)
	assert.True(t, w.HasAuthority())
}
