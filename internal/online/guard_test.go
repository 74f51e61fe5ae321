package online

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestGuardOpensAfterConsecutiveFailures(t *testing.T) {
	var transitions []string
	guard := NewGuard(GuardConfig{
		MaxFailures: 3,
		OpenTimeout: time.Minute,
		OnStateChange: func(from, to GuardState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	}, zaptest.NewLogger(t))

	boom := errors.New("connection refused")
	fail := func(context.Context) error { return boom }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, guard.Do(ctx, fail), boom)
	}
	assert.Equal(t, GuardOpen, guard.State())

	called := false
	err := guard.Do(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrGuardOpen)
	assert.False(t, called)
	assert.Equal(t, []string{"CLOSED->OPEN"}, transitions)
}

func TestGuardIgnoresDomainErrors(t *testing.T) {
	guard := NewGuard(GuardConfig{MaxFailures: 2}, zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		guard.Do(ctx, func(context.Context) error { return ErrAdvertisementNotFound })
		guard.Do(ctx, func(context.Context) error { return ErrNoOpenSlots })
	}
	assert.Equal(t, GuardClosed, guard.State())
}

func TestGuardSuccessResetsFailures(t *testing.T) {
	guard := NewGuard(GuardConfig{MaxFailures: 2}, zaptest.NewLogger(t))
	ctx := context.Background()
	boom := errors.New("timeout")

	guard.Do(ctx, func(context.Context) error { return boom })
	guard.Do(ctx, func(context.Context) error { return nil })
	guard.Do(ctx, func(context.Context) error { return boom })

	assert.Equal(t, GuardClosed, guard.State())
}

func TestGuardHalfOpenProbe(t *testing.T) {
	guard := NewGuard(GuardConfig{MaxFailures: 1, OpenTimeout: time.Second}, zaptest.NewLogger(t))
	now := time.Now()
	guard.now = func() time.Time { return now }
	ctx := context.Background()

	guard.Do(ctx, func(context.Context) error { return errors.New("down") })
	assert.Equal(t, GuardOpen, guard.State())

	now = now.Add(2 * time.Second)
	assert.Equal(t, GuardHalfOpen, guard.State())

	// a failed probe reopens the circuit
	guard.Do(ctx, func(context.Context) error { return errors.New("still down") })
	assert.Equal(t, GuardOpen, guard.State())

	now = now.Add(2 * time.Second)
	assert.NoError(t, guard.Do(ctx, func(context.Context) error { return nil }))
	assert.Equal(t, GuardClosed, guard.State())
}
