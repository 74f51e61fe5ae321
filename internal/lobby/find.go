package lobby

import (
	"fmt"

	"go.uber.org/zap"
)

// FindSessions searches for advertised sessions. With autoJoin the first
// candidate not owned by player whose session id equals target is joined.
//
// Without a backend the completion path still runs so the connecting flag
// ends cleared.
func (c *Controller) FindSessions(player Player, isLAN, usesPresence, autoJoin bool, target string) error {
	if c.backend == nil {
		c.logger.Warn("cannot find sessions, no session backend")
		c.onFindComplete(Completion{Op: OpFind})
		return ErrBackendUnavailable
	}
	if player == nil || !player.UserID().Valid() {
		return ErrInvalidUser
	}

	c.search = &Search{Filter: NewSearchFilter(isLAN, usesPresence, target)}
	c.searchUser = player.UserID()
	c.autoJoin = autoJoin
	c.targetSessionID = target

	if autoJoin {
		c.setConnecting(true)
		c.notifier.OnConnecting()
	}

	c.trace("finding sessions",
		zap.Bool("lan", isLAN),
		zap.Bool("presence", usesPresence),
		zap.Bool("auto_join", autoJoin),
		zap.String("target", target))

	c.acquire(OpFind, c.onFindComplete)
	if !c.backend.FindSessions(c.searchUser, c.search) {
		if c.subs.pending(OpFind) {
			c.onFindComplete(Completion{Op: OpFind})
		}
		return fmt.Errorf("find sessions: %w", ErrRequestRejected)
	}

	return nil
}

func (c *Controller) onFindComplete(comp Completion) {
	c.subs.release(OpFind)
	c.observer.OperationCompleted(OpFind, comp.Success)
	c.setConnecting(false)

	autoJoin := c.autoJoin
	c.autoJoin = false

	if !comp.Success {
		c.trace("find sessions failed")
		if autoJoin {
			c.fail(OpFind, fmt.Errorf("find sessions: %w", ErrOperationFailed))
		}
		return
	}

	var results []SearchResult
	if c.search != nil {
		results = c.search.Results
	}
	c.trace("find sessions complete", zap.Int("results", len(results)))

	if !autoJoin {
		return
	}

	for _, result := range results {
		// never join our own advertisement
		if result.OwningUserID == c.searchUser {
			continue
		}
		sessionID, ok := result.SessionID()
		if !ok || sessionID != c.targetSessionID {
			continue
		}

		c.trace("joining matching session",
			zap.String("session_id", sessionID),
			zap.String("owner", string(result.OwningUserID)))

		if err := c.JoinSession(c.searchUser, c.gameSessionName, result); err != nil {
			c.fail(OpJoin, err)
		}
		return
	}

	c.fail(OpFind, fmt.Errorf("session %q: %w", c.targetSessionID, ErrNoMatchingSession))
}
