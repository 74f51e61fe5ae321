/*
@Author: Lzww
@LastEditTime: 2026-10-14 20:41:08
@Description: Session advertisement model
@Language: Go
*/
package online

import (
	"errors"
	"time"

	"github.com/aetherflow/lobby/internal/lobby"
)

var (
	// ErrAdvertisementNotFound is returned when no advertisement exists for a key
	ErrAdvertisementNotFound = errors.New("advertisement not found")
	// ErrAdvertisementExists is returned when advertising an already used key
	ErrAdvertisementExists = errors.New("advertisement already exists")
	// ErrNoOpenSlots is returned when reserving a slot in a full session
	ErrNoOpenSlots = errors.New("no open slots")
	// ErrNoHostAddress is returned when an advertisement carries no connect address
	ErrNoHostAddress = errors.New("advertisement has no host address")
	// ErrUnknownSession is returned for a session name this process does not hold
	ErrUnknownSession = errors.New("unknown session")
	// ErrRegistryClosed is returned after Close
	ErrRegistryClosed = errors.New("registry closed")
)

// State represents the lifecycle state of an advertised session
type State int

const (
	// StatePending means the session is created but not started
	StatePending State = iota
	// StateInProgress means the session has started
	StateInProgress
)

// String returns string representation of the state
func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateInProgress:
		return "IN_PROGRESS"
	default:
		return "UNKNOWN"
	}
}

// Advertisement is the registry record of a hosted session
type Advertisement struct {
	Key      string         `json:"key"`
	OwnerID  lobby.UserID   `json:"owner_id"`
	HostAddr string         `json:"host_addr"`
	Settings lobby.Settings `json:"settings"`

	IsLAN               bool `json:"is_lan"`
	UsesPresence        bool `json:"uses_presence"`
	AllowJoinInProgress bool `json:"allow_join_in_progress"`

	MaxPlayers int            `json:"max_players"`
	OpenSlots  int            `json:"open_slots"`
	Members    []lobby.UserID `json:"members,omitempty"`
	State      State          `json:"state"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the advertisement
func (a *Advertisement) Clone() *Advertisement {
	out := *a
	out.Settings = a.Settings.Clone()
	if a.Members != nil {
		out.Members = append([]lobby.UserID(nil), a.Members...)
	}
	return &out
}

// Participants returns the number of occupied slots including the host
func (a *Advertisement) Participants() int {
	return a.MaxPlayers - a.OpenSlots
}

// Searchable reports whether the advertisement may appear in search results
func (a *Advertisement) Searchable() bool {
	switch a.State {
	case StatePending:
		return true
	case StateInProgress:
		return a.AllowJoinInProgress
	default:
		return false
	}
}

// Matches reports whether the advertisement satisfies q
func (a *Advertisement) Matches(q Query) bool {
	if !a.Searchable() {
		return false
	}
	if a.IsLAN != q.IsLAN {
		return false
	}
	if q.Presence && !a.UsesPresence {
		return false
	}
	return true
}

// HasMember reports whether user holds a slot
func (a *Advertisement) HasMember(user lobby.UserID) bool {
	for _, m := range a.Members {
		if m == user {
			return true
		}
	}
	return false
}

// Reserve takes an open slot for user
func (a *Advertisement) Reserve(user lobby.UserID) error {
	if a.HasMember(user) {
		return nil
	}
	if a.OpenSlots <= 0 {
		return ErrNoOpenSlots
	}
	a.OpenSlots--
	a.Members = append(a.Members, user)
	a.UpdatedAt = time.Now()
	return nil
}

// Release frees the slot held by user, if any
func (a *Advertisement) Release(user lobby.UserID) {
	for i, m := range a.Members {
		if m != user {
			continue
		}
		a.Members = append(a.Members[:i], a.Members[i+1:]...)
		a.OpenSlots++
		a.UpdatedAt = time.Now()
		return
	}
}

// Query describes a registry search
type Query struct {
	IsLAN    bool
	Presence bool
	Limit    int
}
