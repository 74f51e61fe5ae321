package lobby

import (
	"fmt"

	"go.uber.org/zap"
)

// HostSession creates and advertises a session, then starts it and travels
// to mapName as a listen host once the backend reports it started.
func (c *Controller) HostSession(user UserID, mapName, sessionID string, name SessionName, isLAN, usesPresence bool, maxPlayers int) error {
	if c.backend == nil {
		c.logger.Warn("cannot host session, no session backend")
		return ErrBackendUnavailable
	}
	if !user.Valid() {
		return ErrInvalidUser
	}

	desc := NewSessionDescriptor(mapName, sessionID, maxPlayers, isLAN, usesPresence)

	c.trace("creating session",
		zap.String("session_name", string(name)),
		zap.String("session_id", sessionID),
		zap.String("map", mapName),
		zap.Int("max_players", maxPlayers),
		zap.Bool("lan", isLAN))

	c.acquire(OpCreate, c.onCreateComplete)
	if !c.backend.CreateSession(user, name, desc) {
		c.subs.release(OpCreate)
		return fmt.Errorf("create session %q: %w", name, ErrRequestRejected)
	}

	return nil
}

func (c *Controller) onCreateComplete(comp Completion) {
	c.trace("create session complete",
		zap.String("session_name", string(comp.Name)),
		zap.Bool("success", comp.Success))

	c.subs.release(OpCreate)
	c.observer.OperationCompleted(OpCreate, comp.Success)

	if !comp.Success {
		c.fail(OpCreate, fmt.Errorf("create session %q: %w", comp.Name, ErrOperationFailed))
		return
	}

	c.acquire(OpStart, c.onStartComplete)
	if !c.backend.StartSession(comp.Name) {
		c.subs.release(OpStart)
		c.fail(OpStart, fmt.Errorf("start session %q: %w", comp.Name, ErrRequestRejected))
	}
}

func (c *Controller) onStartComplete(comp Completion) {
	c.trace("start session complete",
		zap.String("session_name", string(comp.Name)),
		zap.Bool("success", comp.Success))

	c.subs.release(OpStart)
	c.observer.OperationCompleted(OpStart, comp.Success)

	if !comp.Success {
		c.fail(OpStart, fmt.Errorf("start session %q: %w", comp.Name, ErrOperationFailed))
		return
	}

	named, ok := c.backend.NamedSession(comp.Name)
	if !ok {
		c.logger.Warn("started session is not registered",
			zap.String("session_name", string(comp.Name)))
		return
	}

	if sessionID, ok := named.Settings.Get(SettingSessionID); ok {
		c.setSession(comp.Name, sessionID)
		c.currentSessionID = sessionID
	}

	mapName, ok := named.Settings.Get(SettingMapName)
	if !ok {
		c.logger.Warn("started session has no map setting",
			zap.String("session_name", string(comp.Name)))
		return
	}

	c.trace("traveling to hosted map", zap.String("map", mapName))
	c.traveler.SwitchContext(mapName, true)
}
