package lobby

// Player is the local player a controller acts for
type Player interface {
	// UserID returns the player's preferred unique net id
	UserID() UserID
}

// PlayerLocator returns the current local player, or nil when none exists
type PlayerLocator func() Player

// LocalPlayer is a fixed-identity Player
type LocalPlayer UserID

// UserID implements Player
func (p LocalPlayer) UserID() UserID {
	return UserID(p)
}

// StaticPlayer returns a locator that always yields p
func StaticPlayer(p Player) PlayerLocator {
	return func() Player { return p }
}

// Traveler switches the active interactive context, e.g. loads a map as a
// listen host or connects to a remote host by address.
type Traveler interface {
	SwitchContext(destination string, asHost bool)
}

// Roster is the shared game-state participant list
type Roster interface {
	ParticipantCount() int
	HasAuthority() bool
}

// Observer receives operation lifecycle events for metrics
type Observer interface {
	OperationIssued(op Operation)
	OperationCompleted(op Operation, success bool)
	ConnectingChanged(connecting bool)
}

type nopTraveler struct{}

func (nopTraveler) SwitchContext(string, bool) {}

type nopRoster struct{}

func (nopRoster) ParticipantCount() int { return 0 }
func (nopRoster) HasAuthority() bool    { return false }

type nopObserver struct{}

func (nopObserver) OperationIssued(Operation)          {}
func (nopObserver) OperationCompleted(Operation, bool) {}
func (nopObserver) ConnectingChanged(bool)             {}
