/*
@Author: Lzww
@LastEditTime: 2026-10-16 10:12:31
@Description: Active game context and participant roster
@Language: Go
*/
package world

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aetherflow/lobby/internal/lobby"
	"github.com/aetherflow/lobby/internal/online"
)

const (
	// DefaultRefreshInterval is the default roster refresh period
	DefaultRefreshInterval = 2 * time.Second
)

// OccupancySource reports the participants of a local session
type OccupancySource interface {
	Occupancy(ctx context.Context, name lobby.SessionName) (online.Occupancy, error)
}

// Context is the active interactive context
type Context struct {
	Destination string    `json:"destination"`
	AsHost      bool      `json:"as_host"`
	EnteredAt   time.Time `json:"entered_at"`
}

// Config contains configuration for the world
type Config struct {
	Source          OccupancySource
	SessionName     lobby.SessionName
	IdleContext     string
	RefreshInterval time.Duration
	Logger          *zap.Logger

	// OnTravel is called after every context switch
	OnTravel func(Context)
}

// World implements lobby.Traveler and lobby.Roster. The roster is refreshed
// from the session registry on a ticker.
type World struct {
	source      OccupancySource
	sessionName lobby.SessionName
	idleContext string
	interval    time.Duration
	logger      *zap.Logger
	onTravel    func(Context)

	mu           sync.RWMutex
	current      Context
	participants int
	authority    bool

	stopRefresh chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// New creates a world in the idle context
func New(config *Config) *World {
	if config.RefreshInterval == 0 {
		config.RefreshInterval = DefaultRefreshInterval
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.IdleContext == "" {
		config.IdleContext = lobby.DefaultIdleContext
	}
	if config.SessionName == "" {
		config.SessionName = lobby.DefaultGameSessionName
	}

	w := &World{
		source:      config.Source,
		sessionName: config.SessionName,
		idleContext: config.IdleContext,
		interval:    config.RefreshInterval,
		logger:      config.Logger,
		onTravel:    config.OnTravel,
		current:     Context{Destination: config.IdleContext, EnteredAt: time.Now()},
		stopRefresh: make(chan struct{}),
	}

	if w.source != nil {
		w.wg.Add(1)
		go w.refreshLoop()
	}

	return w
}

// SwitchContext enters destination. Hosting starts a roster of one with
// authority; anything else drops authority until the next refresh.
func (w *World) SwitchContext(destination string, asHost bool) {
	ctx := Context{Destination: destination, AsHost: asHost, EnteredAt: time.Now()}

	w.mu.Lock()
	w.current = ctx
	switch {
	case asHost:
		w.participants = 1
		w.authority = true
	default:
		w.participants = 0
		w.authority = false
	}
	w.mu.Unlock()

	w.logger.Info("Switched context",
		zap.String("destination", destination),
		zap.Bool("as_host", asHost))

	if w.onTravel != nil {
		w.onTravel(ctx)
	}
}

// ParticipantCount implements lobby.Roster
func (w *World) ParticipantCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.participants
}

// HasAuthority implements lobby.Roster
func (w *World) HasAuthority() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.authority
}

// Current returns the active context
func (w *World) Current() Context {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Idle reports whether the idle context is active
func (w *World) Idle() bool {
	return w.Current().Destination == w.idleContext
}

// Refresh reads the occupancy of the game session into the roster
func (w *World) Refresh(ctx context.Context) error {
	if w.source == nil || w.Idle() {
		return nil
	}

	occ, err := w.source.Occupancy(ctx, w.sessionName)
	if errors.Is(err, online.ErrUnknownSession) {
		// session is gone but travel has not happened yet
		w.setRoster(0, false)
		return nil
	}
	if err != nil {
		return err
	}

	w.setRoster(occ.Participants, occ.Authority)
	return nil
}

func (w *World) setRoster(participants int, authority bool) {
	w.mu.Lock()
	changed := w.participants != participants || w.authority != authority
	w.participants = participants
	w.authority = authority
	w.mu.Unlock()

	if changed {
		w.logger.Debug("Roster updated",
			zap.Int("participants", participants),
			zap.Bool("authority", authority))
	}
}

// refreshLoop periodically refreshes the roster
func (w *World) refreshLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), w.interval)
			if err := w.Refresh(ctx); err != nil {
				w.logger.Warn("failed to refresh roster", zap.Error(err))
			}
			cancel()
		case <-w.stopRefresh:
			return
		}
	}
}

// Close stops the refresh loop
func (w *World) Close() {
	w.stopOnce.Do(func() {
		close(w.stopRefresh)
	})
	w.wg.Wait()
}
