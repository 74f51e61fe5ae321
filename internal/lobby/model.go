/*
@Author: Lzww
@LastEditTime: 2026-10-12 20:41:07
@Description: Lobby session model
@Language: Go
*/
package lobby

import "time"

const (
	// SettingMapName is the advertised settings key holding the map to travel to
	SettingMapName = "MAPNAME"

	// SettingSessionID is the advertised settings key holding the application-level session id
	SettingSessionID = "SessionId"

	// DefaultGameSessionName is the backend handle used when none is configured
	DefaultGameSessionName SessionName = "GameSession"

	// DefaultMaxSearchResults caps the number of candidates a search returns
	DefaultMaxSearchResults = 20

	// DefaultPingBucketSize groups candidates by ping in buckets of this many milliseconds
	DefaultPingBucketSize = 50
)

// UserID identifies a local or remote player. The empty UserID is invalid.
type UserID string

// Valid reports whether the id can be used for backend calls
func (u UserID) Valid() bool {
	return u != ""
}

// SessionName is the backend-level handle of a hosted or joined session
type SessionName string

// Settings is the advertised key/value map of a session
type Settings map[string]string

// Get returns the value stored under key
func (s Settings) Get(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s[key]
	return v, ok
}

// Clone returns an independent copy
func (s Settings) Clone() Settings {
	if s == nil {
		return nil
	}
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// SessionDescriptor describes the advertised properties of a hosted session
type SessionDescriptor struct {
	MapName    string
	SessionID  string
	MaxPlayers int

	// PrivateConnections are slots reserved for invites
	PrivateConnections int

	IsLAN                           bool
	UsesPresence                    bool
	Advertise                       bool
	AllowJoinInProgress             bool
	AllowInvites                    bool
	AllowJoinViaPresence            bool
	AllowJoinViaPresenceFriendsOnly bool
}

// NewSessionDescriptor builds a descriptor with the default advertisement flags
func NewSessionDescriptor(mapName, sessionID string, maxPlayers int, isLAN, usesPresence bool) SessionDescriptor {
	return SessionDescriptor{
		MapName:              mapName,
		SessionID:            sessionID,
		MaxPlayers:           maxPlayers,
		IsLAN:                isLAN,
		UsesPresence:         usesPresence,
		Advertise:            true,
		AllowJoinInProgress:  true,
		AllowInvites:         true,
		AllowJoinViaPresence: true,
	}
}

// Settings returns the advertised key/value view of the descriptor
func (d SessionDescriptor) Settings() Settings {
	return Settings{
		SettingMapName:   d.MapName,
		SettingSessionID: d.SessionID,
	}
}

// SearchFilter describes the criteria of a session search
type SearchFilter struct {
	IsLAN bool

	// PresenceOnly adds a presence equality comparison to the query
	PresenceOnly bool

	// TargetSessionID is the session the caller wants to join, if any
	TargetSessionID string

	MaxResults     int
	PingBucketSize int
}

// NewSearchFilter builds a filter with the default result cap and ping bucket
func NewSearchFilter(isLAN, presenceOnly bool, target string) SearchFilter {
	return SearchFilter{
		IsLAN:           isLAN,
		PresenceOnly:    presenceOnly,
		TargetSessionID: target,
		MaxResults:      DefaultMaxSearchResults,
		PingBucketSize:  DefaultPingBucketSize,
	}
}

// SearchResult is one candidate session reported by a search
type SearchResult struct {
	// Key is the backend's internal address of the advertised session
	Key string

	OwningUserID UserID
	Settings     Settings
	MaxPlayers   int
	OpenSlots    int
	PingMs       int
}

// SessionID returns the application-level session id advertised by the candidate
func (r SearchResult) SessionID() (string, bool) {
	return r.Settings.Get(SettingSessionID)
}

// Search is the shared holder of a single search call. The backend fills
// Results before firing the find completion.
type Search struct {
	Filter  SearchFilter
	Results []SearchResult
}

// NamedSession is the backend's view of a session this instance hosts or joined
type NamedSession struct {
	Name     SessionName
	Key      string
	OwnerID  UserID
	Settings Settings
	IsHost   bool
}

// JoinResult is the outcome reported by a join completion
type JoinResult int

const (
	// JoinSuccess means the session was joined and can be traveled to
	JoinSuccess JoinResult = iota
	// JoinAlreadyInSession means a session with the same name already exists locally
	JoinAlreadyInSession
	// JoinSessionIsFull means no open slot was left
	JoinSessionIsFull
	// JoinSessionDoesNotExist means the advertisement is gone
	JoinSessionDoesNotExist
	// JoinCouldNotRetrieveAddress means the host address could not be resolved
	JoinCouldNotRetrieveAddress
	// JoinUnknownError covers every other backend failure
	JoinUnknownError
)

// String returns string representation of the join result
func (r JoinResult) String() string {
	switch r {
	case JoinSuccess:
		return "SUCCESS"
	case JoinAlreadyInSession:
		return "ALREADY_IN_SESSION"
	case JoinSessionIsFull:
		return "SESSION_IS_FULL"
	case JoinSessionDoesNotExist:
		return "SESSION_DOES_NOT_EXIST"
	case JoinCouldNotRetrieveAddress:
		return "COULD_NOT_RETRIEVE_ADDRESS"
	default:
		return "UNKNOWN_ERROR"
	}
}

// ConnectionState is the observable connection state exposed to the UI
type ConnectionState struct {
	Connecting  bool        `json:"connecting"`
	SessionName SessionName `json:"session_name,omitempty"`
	SessionID   string      `json:"session_id,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Connected reports whether a session handle is currently held
func (s ConnectionState) Connected() bool {
	return s.SessionName != ""
}

// Phase returns "connecting", "connected" or "not_connected"
func (s ConnectionState) Phase() string {
	switch {
	case s.Connecting:
		return "connecting"
	case s.Connected():
		return "connected"
	default:
		return "not_connected"
	}
}

// OnlineStatus is the result of a status query
type OnlineStatus struct {
	InOnlineGame bool        `json:"in_online_game"`
	IsServer     bool        `json:"is_server"`
	SessionName  SessionName `json:"session_name,omitempty"`
}
