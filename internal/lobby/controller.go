/*
@Author: Lzww
@LastEditTime: 2026-10-13 22:17:50
@Description: Lobby session controller
@Language: Go
*/
package lobby

import (
	"time"

	"go.uber.org/zap"
)

// DefaultIdleContext is the context traveled to after leaving a session
const DefaultIdleContext = "MainMenu"

// Config contains configuration for the session controller
type Config struct {
	// Backend is the session service; nil means unavailable
	Backend Backend

	Notifier Notifier
	Traveler Traveler
	Roster   Roster
	Player   PlayerLocator
	Observer Observer
	Logger   *zap.Logger

	// Debug raises the controller's trace messages from debug to info level
	Debug bool

	// GameSessionName is the handle used by the convenience entry points
	GameSessionName SessionName

	// IdleContext is traveled to after a session is destroyed
	IdleContext string

	// LAN and Presence are the flags used by the convenience entry points
	LAN      bool
	Presence bool
}

// Controller drives the session lifecycle: create, start, find, join and
// destroy. It is not safe for concurrent use; run every call and every
// backend completion on one Loop.
type Controller struct {
	backend  Backend
	notifier Notifier
	failures FailureNotifier
	traveler Traveler
	roster   Roster
	locate   PlayerLocator
	observer Observer
	logger   *zap.Logger
	debug    bool

	gameSessionName SessionName
	idleContext     string
	lan             bool
	presence        bool

	subs             subscriptions
	state            ConnectionState
	currentSessionID string

	// last search
	search          *Search
	searchUser      UserID
	autoJoin        bool
	targetSessionID string
}

// NewController creates a controller from config
func NewController(config *Config) *Controller {
	if config.Notifier == nil {
		config.Notifier = nopNotifier{}
	}
	if config.Traveler == nil {
		config.Traveler = nopTraveler{}
	}
	if config.Roster == nil {
		config.Roster = nopRoster{}
	}
	if config.Observer == nil {
		config.Observer = nopObserver{}
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.GameSessionName == "" {
		config.GameSessionName = DefaultGameSessionName
	}
	if config.IdleContext == "" {
		config.IdleContext = DefaultIdleContext
	}

	c := &Controller{
		backend:         config.Backend,
		notifier:        config.Notifier,
		traveler:        config.Traveler,
		roster:          config.Roster,
		locate:          config.Player,
		observer:        config.Observer,
		logger:          config.Logger,
		debug:           config.Debug,
		gameSessionName: config.GameSessionName,
		idleContext:     config.IdleContext,
		lan:             config.LAN,
		presence:        config.Presence,
		state:           ConnectionState{UpdatedAt: time.Now()},
	}
	if fn, ok := config.Notifier.(FailureNotifier); ok {
		c.failures = fn
	}

	return c
}

// State returns a snapshot of the connection state
func (c *Controller) State() ConnectionState {
	return c.state
}

// CurrentSessionID returns the id of the session this instance hosts
func (c *Controller) CurrentSessionID() string {
	return c.currentSessionID
}

// GameSessionName returns the handle used by the convenience entry points
func (c *Controller) GameSessionName() SessionName {
	return c.gameSessionName
}

// Results returns a copy of the candidates of the last completed search
func (c *Controller) Results() []SearchResult {
	if c.search == nil {
		return nil
	}
	out := make([]SearchResult, len(c.search.Results))
	copy(out, c.search.Results)
	return out
}

// Pending reports whether a completion handler for op is registered
func (c *Controller) Pending(op Operation) bool {
	return c.subs.pending(op)
}

// Reset abandons a pending operation. It is the cleanup path for callers
// that enforce their own timeout: the handler is unregistered and, for
// find and join, the connecting flag is cleared.
func (c *Controller) Reset(op Operation) bool {
	released := c.subs.release(op)
	if op == OpFind || op == OpJoin {
		c.setConnecting(false)
	}
	if released {
		c.logger.Info("pending operation reset",
			zap.String("op", op.String()))
	}
	return released
}

// acquire registers handler for op, replacing any pending one
func (c *Controller) acquire(op Operation, handler func(Completion)) {
	if c.subs.pending(op) {
		c.logger.Warn("replacing pending completion handler",
			zap.String("op", op.String()))
	}
	c.subs.acquire(c.backend, op, handler, c.stale)
	c.observer.OperationIssued(op)
}

// stale logs a completion delivered to an already released handler
func (c *Controller) stale(comp Completion) {
	c.logger.Debug("ignoring completion for released handler",
		zap.String("op", comp.Op.String()),
		zap.String("session_name", string(comp.Name)),
		zap.Bool("success", comp.Success))
}

// setConnecting updates the connecting flag
func (c *Controller) setConnecting(connecting bool) {
	if c.state.Connecting == connecting {
		return
	}
	c.state.Connecting = connecting
	c.state.UpdatedAt = time.Now()
	c.observer.ConnectingChanged(connecting)
}

// setSession records the active session handle and id
func (c *Controller) setSession(name SessionName, sessionID string) {
	c.state.SessionName = name
	c.state.SessionID = sessionID
	c.state.UpdatedAt = time.Now()
}

// fail reports a terminal asynchronous failure
func (c *Controller) fail(op Operation, err error) {
	c.logger.Warn("session operation failed",
		zap.String("op", op.String()),
		zap.Error(err))
	if c.failures != nil {
		c.failures.OnFailed(op, err)
	}
}

// trace emits a lifecycle message, at info level when debugging is on
func (c *Controller) trace(msg string, fields ...zap.Field) {
	if c.debug {
		c.logger.Info(msg, fields...)
		return
	}
	c.logger.Debug(msg, fields...)
}

// localPlayer returns the current local player, if any
func (c *Controller) localPlayer() Player {
	if c.locate == nil {
		return nil
	}
	return c.locate()
}
