package lobby

import (
	"fmt"

	"go.uber.org/zap"
)

// JoinSession joins the candidate under name and, on success, travels to
// the host's resolved address.
func (c *Controller) JoinSession(user UserID, name SessionName, result SearchResult) error {
	c.setConnecting(false)

	if c.backend == nil {
		c.logger.Warn("cannot join session, no session backend")
		return ErrBackendUnavailable
	}
	if !user.Valid() {
		return ErrInvalidUser
	}

	c.trace("joining session",
		zap.String("session_name", string(name)),
		zap.String("key", result.Key))

	c.acquire(OpJoin, c.onJoinComplete)
	if !c.backend.JoinSession(user, name, result) {
		c.subs.release(OpJoin)
		return fmt.Errorf("join session %q: %w", name, ErrRequestRejected)
	}

	// the backend may already have completed the join
	if c.subs.pending(OpJoin) {
		c.setConnecting(true)
	}

	return nil
}

func (c *Controller) onJoinComplete(comp Completion) {
	ok := comp.Result == JoinSuccess

	c.trace("join session complete",
		zap.String("session_name", string(comp.Name)),
		zap.String("result", comp.Result.String()))

	c.subs.release(OpJoin)
	c.observer.OperationCompleted(OpJoin, ok)
	c.setConnecting(false)

	if !ok {
		c.fail(OpJoin, fmt.Errorf("join session %q: %s: %w", comp.Name, comp.Result, ErrOperationFailed))
		return
	}

	if address, found := c.backend.ResolvedConnectString(comp.Name); found {
		c.trace("traveling to host", zap.String("address", address))
		c.traveler.SwitchContext(address, false)
	} else {
		c.logger.Warn("joined session has no connect string",
			zap.String("session_name", string(comp.Name)))
	}

	named, found := c.backend.NamedSession(comp.Name)
	if !found {
		return
	}
	sessionID, found := named.Settings.Get(SettingSessionID)
	if !found {
		return
	}

	c.setSession(comp.Name, sessionID)
	c.notifier.OnConnected()
}
