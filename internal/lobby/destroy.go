package lobby

import (
	"fmt"

	"go.uber.org/zap"
)

// DestroySession tears down the current session and returns to the idle
// context once the backend confirms.
func (c *Controller) DestroySession() error {
	if c.backend == nil {
		c.logger.Warn("cannot destroy session, no session backend")
		return ErrBackendUnavailable
	}

	name := c.state.SessionName
	if name == "" {
		name = c.gameSessionName
	}

	c.trace("destroying session", zap.String("session_name", string(name)))

	c.acquire(OpDestroy, c.onDestroyComplete)
	if !c.backend.DestroySession(name) {
		c.subs.release(OpDestroy)
		return fmt.Errorf("destroy session %q: %w", name, ErrRequestRejected)
	}

	return nil
}

func (c *Controller) onDestroyComplete(comp Completion) {
	c.trace("destroy session complete",
		zap.String("session_name", string(comp.Name)),
		zap.Bool("success", comp.Success))

	c.subs.release(OpDestroy)
	c.observer.OperationCompleted(OpDestroy, comp.Success)

	c.setSession("", "")
	c.currentSessionID = ""

	// listeners learn about the departure regardless of outcome
	c.notifier.OnDisconnected()

	if !comp.Success {
		c.fail(OpDestroy, fmt.Errorf("destroy session %q: %w", comp.Name, ErrOperationFailed))
		return
	}

	c.traveler.SwitchContext(c.idleContext, false)
}
