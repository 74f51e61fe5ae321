package lobby

import (
	"fmt"
)

// OnlineStatus reports whether player is in a multi-participant game and
// whether this instance is its authority.
func (c *Controller) OnlineStatus(player Player) OnlineStatus {
	if player == nil {
		return OnlineStatus{}
	}

	status := OnlineStatus{SessionName: c.state.SessionName}
	if c.backend == nil {
		return status
	}

	if c.roster.ParticipantCount() > 1 {
		status.InOnlineGame = true
		status.IsServer = c.roster.HasAuthority()
	}

	return status
}

// StartOnlineGame hosts a session for the local player under the
// controller's game session name.
func (c *Controller) StartOnlineGame(mapName string, players int, sessionID string) error {
	player := c.localPlayer()
	if player == nil {
		return ErrInvalidUser
	}
	return c.HostSession(player.UserID(), mapName, sessionID, c.gameSessionName, c.lan, c.presence, players)
}

// FindOnlineGames searches without joining; results are available from
// Results once the search completes.
func (c *Controller) FindOnlineGames(sessionID string) error {
	return c.FindSessions(c.localPlayer(), c.lan, c.presence, false, sessionID)
}

// FindAndJoinOnlineGame searches and joins the session advertising sessionID
func (c *Controller) FindAndJoinOnlineGame(sessionID string) error {
	return c.FindSessions(c.localPlayer(), c.lan, c.presence, true, sessionID)
}

// JoinOnlineGame joins the first result of the last search not owned by
// the local player.
func (c *Controller) JoinOnlineGame() error {
	player := c.localPlayer()
	if player == nil {
		return ErrInvalidUser
	}
	if c.search == nil {
		return fmt.Errorf("join online game: %w", ErrNoMatchingSession)
	}

	self := player.UserID()
	for _, result := range c.search.Results {
		if result.OwningUserID == self {
			continue
		}
		return c.JoinSession(self, c.gameSessionName, result)
	}

	return fmt.Errorf("join online game: %w", ErrNoMatchingSession)
}

// DestroySessionAndLeaveGame leaves the current session
func (c *Controller) DestroySessionAndLeaveGame() error {
	return c.DestroySession()
}
