package online

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrGuardOpen is returned while the registry circuit is open
var ErrGuardOpen = errors.New("registry circuit open")

// GuardState is the state of a Guard
type GuardState int

const (
	// GuardClosed lets every call through
	GuardClosed GuardState = iota
	// GuardHalfOpen lets a single probe call through
	GuardHalfOpen
	// GuardOpen rejects every call
	GuardOpen
)

func (s GuardState) String() string {
	switch s {
	case GuardClosed:
		return "CLOSED"
	case GuardHalfOpen:
		return "HALF_OPEN"
	case GuardOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// GuardConfig circuit configuration
type GuardConfig struct {
	// MaxFailures is the number of consecutive registry failures that opens the circuit
	MaxFailures uint32 `json:",default=5"`
	// OpenTimeout is how long the circuit stays open before probing
	OpenTimeout time.Duration `json:",default=30s"`

	OnStateChange func(from, to GuardState) `json:"-"`
}

// Guard is a consecutive-failure circuit breaker around registry calls.
// Outcomes of the lobby domain (missing advertisement, full session) are
// answers, not failures, and never trip it.
type Guard struct {
	config GuardConfig
	logger *zap.Logger

	mu       sync.Mutex
	state    GuardState
	failures uint32
	probing  bool
	openedAt time.Time
	now      func() time.Time
}

// NewGuard creates a guard
func NewGuard(config GuardConfig, logger *zap.Logger) *Guard {
	if config.MaxFailures == 0 {
		config.MaxFailures = 5
	}
	if config.OpenTimeout == 0 {
		config.OpenTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Guard{
		config: config,
		logger: logger,
		state:  GuardClosed,
		now:    time.Now,
	}
}

// Do runs fn unless the circuit is open
func (g *Guard) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := g.before(); err != nil {
		return err
	}

	err := fn(ctx)
	g.after(err)
	return err
}

// State returns the current state
func (g *Guard) State() GuardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refresh()
	return g.state
}

func (g *Guard) before() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.refresh()

	switch g.state {
	case GuardOpen:
		return ErrGuardOpen
	case GuardHalfOpen:
		if g.probing {
			return ErrGuardOpen
		}
		g.probing = true
	}
	return nil
}

func (g *Guard) after(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	failed := isRegistryFailure(err)

	switch g.state {
	case GuardHalfOpen:
		g.probing = false
		if failed {
			g.setState(GuardOpen)
		} else {
			g.setState(GuardClosed)
		}
	case GuardClosed:
		if !failed {
			g.failures = 0
			return
		}
		g.failures++
		if g.failures >= g.config.MaxFailures {
			g.setState(GuardOpen)
		}
	}
}

// refresh moves an expired open circuit to half-open; caller holds mu
func (g *Guard) refresh() {
	if g.state == GuardOpen && g.now().Sub(g.openedAt) >= g.config.OpenTimeout {
		g.setState(GuardHalfOpen)
	}
}

// setState caller holds mu
func (g *Guard) setState(state GuardState) {
	if g.state == state {
		return
	}

	prev := g.state
	g.state = state
	g.failures = 0
	if state == GuardOpen {
		g.openedAt = g.now()
	}

	g.logger.Info("Registry circuit state changed",
		zap.String("from", prev.String()),
		zap.String("to", state.String()))

	if g.config.OnStateChange != nil {
		g.config.OnStateChange(prev, state)
	}
}

// isRegistryFailure reports whether err means the registry misbehaved
func isRegistryFailure(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrAdvertisementNotFound),
		errors.Is(err, ErrAdvertisementExists),
		errors.Is(err, ErrNoOpenSlots),
		errors.Is(err, ErrNoHostAddress):
		return false
	default:
		return true
	}
}
