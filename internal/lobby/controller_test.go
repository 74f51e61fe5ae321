package lobby

import (
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeBackend records calls and completes operations only when a test
// fires them.
type fakeBackend struct {
	reject   map[Operation]bool
	handlers map[Handle]fakeHandler
	next     Handle

	created    []SessionDescriptor
	started    []SessionName
	joined     []SearchResult
	destroyed  []SessionName
	lastSearch *Search

	named   map[SessionName]*NamedSession
	connect map[SessionName]string

	// joinInline completes joins before JoinSession returns
	joinInline *JoinResult
}

type fakeHandler struct {
	op Operation
	fn func(Completion)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		reject:   make(map[Operation]bool),
		handlers: make(map[Handle]fakeHandler),
		named:    make(map[SessionName]*NamedSession),
		connect:  make(map[SessionName]string),
	}
}

func (b *fakeBackend) CreateSession(user UserID, name SessionName, desc SessionDescriptor) bool {
	if b.reject[OpCreate] {
		return false
	}
	b.created = append(b.created, desc)
	b.named[name] = &NamedSession{Name: name, OwnerID: user, Settings: desc.Settings(), IsHost: true}
	return true
}

func (b *fakeBackend) StartSession(name SessionName) bool {
	if b.reject[OpStart] {
		return false
	}
	b.started = append(b.started, name)
	return true
}

func (b *fakeBackend) FindSessions(user UserID, search *Search) bool {
	if b.reject[OpFind] {
		return false
	}
	b.lastSearch = search
	return true
}

func (b *fakeBackend) JoinSession(user UserID, name SessionName, result SearchResult) bool {
	if b.reject[OpJoin] {
		return false
	}
	b.joined = append(b.joined, result)
	b.named[name] = &NamedSession{Name: name, Key: result.Key, OwnerID: result.OwningUserID, Settings: result.Settings.Clone()}
	if b.joinInline != nil {
		b.fire(Completion{Op: OpJoin, Name: name, Success: *b.joinInline == JoinSuccess, Result: *b.joinInline})
	}
	return true
}

func (b *fakeBackend) DestroySession(name SessionName) bool {
	if b.reject[OpDestroy] {
		return false
	}
	b.destroyed = append(b.destroyed, name)
	return true
}

func (b *fakeBackend) ResolvedConnectString(name SessionName) (string, bool) {
	address, ok := b.connect[name]
	return address, ok
}

func (b *fakeBackend) NamedSession(name SessionName) (*NamedSession, bool) {
	named, ok := b.named[name]
	return named, ok
}

func (b *fakeBackend) Subscribe(op Operation, fn func(Completion)) Handle {
	b.next++
	b.handlers[b.next] = fakeHandler{op: op, fn: fn}
	return b.next
}

func (b *fakeBackend) Unsubscribe(h Handle) {
	delete(b.handlers, h)
}

// registered returns the handlers for op in subscription order
func (b *fakeBackend) registered(op Operation) []func(Completion) {
	handles := make([]Handle, 0, len(b.handlers))
	for h, fh := range b.handlers {
		if fh.op == op {
			handles = append(handles, h)
		}
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })

	fns := make([]func(Completion), 0, len(handles))
	for _, h := range handles {
		fns = append(fns, b.handlers[h].fn)
	}
	return fns
}

func (b *fakeBackend) fire(comp Completion) {
	for _, fn := range b.registered(comp.Op) {
		fn(comp)
	}
}

func (b *fakeBackend) completeFind(success bool, results ...SearchResult) {
	if b.lastSearch != nil {
		b.lastSearch.Results = results
	}
	b.fire(Completion{Op: OpFind, Success: success})
}

type recordingNotifier struct {
	events   []string
	failures []error
}

func (n *recordingNotifier) OnConnecting()   { n.events = append(n.events, "connecting") }
func (n *recordingNotifier) OnConnected()    { n.events = append(n.events, "connected") }
func (n *recordingNotifier) OnDisconnected() { n.events = append(n.events, "disconnected") }

func (n *recordingNotifier) OnFailed(op Operation, err error) {
	n.events = append(n.events, "failed:"+op.String())
	n.failures = append(n.failures, err)
}

// plainNotifier does not implement FailureNotifier
type plainNotifier struct {
	events []string
}

func (n *plainNotifier) OnConnecting()   { n.events = append(n.events, "connecting") }
func (n *plainNotifier) OnConnected()    { n.events = append(n.events, "connected") }
func (n *plainNotifier) OnDisconnected() { n.events = append(n.events, "disconnected") }

type trip struct {
	destination string
	asHost      bool
}

type recordingTraveler struct {
	trips []trip
}

func (t *recordingTraveler) SwitchContext(destination string, asHost bool) {
	t.trips = append(t.trips, trip{destination: destination, asHost: asHost})
}

type fakeRoster struct {
	count     int
	authority bool
}

func (r *fakeRoster) ParticipantCount() int { return r.count }
func (r *fakeRoster) HasAuthority() bool    { return r.authority }

type harness struct {
	backend  *fakeBackend
	notifier *recordingNotifier
	traveler *recordingTraveler
	roster   *fakeRoster
	ctrl     *Controller
}

const (
	hostUser   UserID = "host-user"
	clientUser UserID = "client-user"
)

func newHarness(t *testing.T, player UserID) *harness {
	h := &harness{
		backend:  newFakeBackend(),
		notifier: &recordingNotifier{},
		traveler: &recordingTraveler{},
		roster:   &fakeRoster{},
	}
	h.ctrl = NewController(&Config{
		Backend:  h.backend,
		Notifier: h.notifier,
		Traveler: h.traveler,
		Roster:   h.roster,
		Player:   StaticPlayer(LocalPlayer(player)),
		Logger:   zaptest.NewLogger(t),
		Debug:    true,
		LAN:      true,
		Presence: true,
	})
	return h
}

func candidate(owner UserID, key, sessionID string) SearchResult {
	return SearchResult{
		Key:          key,
		OwningUserID: owner,
		Settings:     Settings{SettingSessionID: sessionID, SettingMapName: "Arena"},
		MaxPlayers:   4,
		OpenSlots:    3,
	}
}

func TestHostSessionCreatesStartsAndTravels(t *testing.T) {
	h := newHarness(t, hostUser)

	err := h.ctrl.HostSession(hostUser, "Arena", "room-1", "GameSession", true, true, 4)
	require.NoError(t, err)

	require.Len(t, h.backend.created, 1)
	desc := h.backend.created[0]
	assert.Equal(t, "Arena", desc.MapName)
	assert.Equal(t, "room-1", desc.SessionID)
	assert.Equal(t, 4, desc.MaxPlayers)
	assert.True(t, desc.IsLAN)
	assert.True(t, desc.Advertise)
	assert.True(t, desc.AllowJoinInProgress)
	assert.True(t, h.ctrl.Pending(OpCreate))

	h.backend.fire(Completion{Op: OpCreate, Name: "GameSession", Success: true})
	assert.False(t, h.ctrl.Pending(OpCreate))
	require.Equal(t, []SessionName{"GameSession"}, h.backend.started)
	assert.Empty(t, h.traveler.trips)

	h.backend.fire(Completion{Op: OpStart, Name: "GameSession", Success: true})
	assert.False(t, h.ctrl.Pending(OpStart))
	assert.Equal(t, []trip{{destination: "Arena", asHost: true}}, h.traveler.trips)

	state := h.ctrl.State()
	assert.Equal(t, SessionName("GameSession"), state.SessionName)
	assert.Equal(t, "room-1", state.SessionID)
	assert.Equal(t, "room-1", h.ctrl.CurrentSessionID())
	assert.Empty(t, h.backend.handlers)
}

func TestHostSessionWithoutBackend(t *testing.T) {
	notifier := &recordingNotifier{}
	ctrl := NewController(&Config{Notifier: notifier, Logger: zaptest.NewLogger(t)})

	err := ctrl.HostSession(hostUser, "Arena", "room-1", "GameSession", false, false, 4)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Empty(t, notifier.events)
}

func TestHostSessionInvalidUser(t *testing.T) {
	h := newHarness(t, hostUser)

	err := h.ctrl.HostSession("", "Arena", "room-1", "GameSession", false, false, 4)
	assert.ErrorIs(t, err, ErrInvalidUser)
	assert.Empty(t, h.backend.created)
	assert.Empty(t, h.backend.handlers)
}

func TestHostSessionRejected(t *testing.T) {
	h := newHarness(t, hostUser)
	h.backend.reject[OpCreate] = true

	err := h.ctrl.HostSession(hostUser, "Arena", "room-1", "GameSession", false, false, 4)
	assert.ErrorIs(t, err, ErrRequestRejected)
	assert.False(t, h.ctrl.Pending(OpCreate))
	assert.Empty(t, h.backend.handlers)
}

func TestHostSessionCreateFailure(t *testing.T) {
	h := newHarness(t, hostUser)

	require.NoError(t, h.ctrl.HostSession(hostUser, "Arena", "room-1", "GameSession", false, false, 4))
	h.backend.fire(Completion{Op: OpCreate, Name: "GameSession", Success: false})

	assert.Empty(t, h.backend.started)
	assert.Empty(t, h.traveler.trips)
	assert.Equal(t, []string{"failed:create"}, h.notifier.events)
	require.Len(t, h.notifier.failures, 1)
	assert.ErrorIs(t, h.notifier.failures[0], ErrOperationFailed)
	assert.Empty(t, h.backend.handlers)
}

func TestHostSessionStartFailure(t *testing.T) {
	h := newHarness(t, hostUser)

	require.NoError(t, h.ctrl.HostSession(hostUser, "Arena", "room-1", "GameSession", false, false, 4))
	h.backend.fire(Completion{Op: OpCreate, Name: "GameSession", Success: true})
	h.backend.fire(Completion{Op: OpStart, Name: "GameSession", Success: false})

	assert.Empty(t, h.traveler.trips)
	assert.Empty(t, h.ctrl.State().SessionID)
	assert.Equal(t, []string{"failed:start"}, h.notifier.events)
}

func TestDuplicateCompletionIgnored(t *testing.T) {
	h := newHarness(t, hostUser)

	require.NoError(t, h.ctrl.HostSession(hostUser, "Arena", "room-1", "GameSession", false, false, 4))
	handlers := h.backend.registered(OpCreate)
	require.Len(t, handlers, 1)

	comp := Completion{Op: OpCreate, Name: "GameSession", Success: true}
	handlers[0](comp)
	handlers[0](comp)

	assert.Len(t, h.backend.started, 1)
}

func TestFindAutoJoinSkipsSelfAndJoinsFirstMatch(t *testing.T) {
	h := newHarness(t, clientUser)

	err := h.ctrl.FindSessions(LocalPlayer(clientUser), true, true, true, "room-1")
	require.NoError(t, err)
	assert.True(t, h.ctrl.State().Connecting)
	assert.Equal(t, []string{"connecting"}, h.notifier.events)
	require.NotNil(t, h.backend.lastSearch)
	assert.Equal(t, "room-1", h.backend.lastSearch.Filter.TargetSessionID)
	assert.True(t, h.backend.lastSearch.Filter.PresenceOnly)
	assert.Equal(t, DefaultMaxSearchResults, h.backend.lastSearch.Filter.MaxResults)

	h.backend.completeFind(true,
		candidate(clientUser, "self", "room-1"),
		candidate("other-a", "wrong-id", "room-2"),
		candidate("other-b", "match-1", "room-1"),
		candidate("other-c", "match-2", "room-1"),
	)

	require.Len(t, h.backend.joined, 1)
	assert.Equal(t, "match-1", h.backend.joined[0].Key)
	assert.True(t, h.ctrl.State().Connecting)
	assert.True(t, h.ctrl.Pending(OpJoin))
	assert.False(t, h.ctrl.Pending(OpFind))
}

func TestRepeatedFindReplacesPendingHandler(t *testing.T) {
	h := newHarness(t, clientUser)

	require.NoError(t, h.ctrl.FindSessions(LocalPlayer(clientUser), true, true, true, "room-1"))
	first := h.backend.registered(OpFind)
	require.Len(t, first, 1)

	require.NoError(t, h.ctrl.FindSessions(LocalPlayer(clientUser), true, true, true, "room-1"))
	require.Len(t, h.backend.registered(OpFind), 1)
	assert.True(t, h.ctrl.Pending(OpFind))

	// a late completion for the replaced search is dropped
	h.backend.lastSearch.Results = []SearchResult{candidate(hostUser, "k1", "room-1")}
	first[0](Completion{Op: OpFind, Success: true})
	assert.Empty(t, h.backend.joined)
	assert.True(t, h.ctrl.State().Connecting)
	assert.True(t, h.ctrl.Pending(OpFind))

	h.backend.completeFind(true, candidate(hostUser, "k1", "room-1"))
	require.Len(t, h.backend.joined, 1)
	assert.Equal(t, "k1", h.backend.joined[0].Key)
	assert.Empty(t, h.backend.registered(OpFind))
	assert.False(t, h.ctrl.Pending(OpFind))
}

func TestFindAutoJoinNoMatch(t *testing.T) {
	h := newHarness(t, clientUser)
	notifier := &plainNotifier{}
	h.ctrl = NewController(&Config{
		Backend:  h.backend,
		Notifier: notifier,
		Logger:   zaptest.NewLogger(t),
	})

	require.NoError(t, h.ctrl.FindSessions(LocalPlayer(clientUser), false, false, true, "room-9"))
	h.backend.completeFind(true,
		candidate(clientUser, "self", "room-9"),
		candidate("other", "other", "room-1"),
	)

	assert.False(t, h.ctrl.State().Connecting)
	assert.Empty(t, h.backend.joined)
	assert.Equal(t, []string{"connecting"}, notifier.events)
	assert.Empty(t, h.backend.handlers)
}

func TestFindAutoJoinNoMatchReportsFailure(t *testing.T) {
	h := newHarness(t, clientUser)

	require.NoError(t, h.ctrl.FindSessions(LocalPlayer(clientUser), false, false, true, "room-9"))
	h.backend.completeFind(true)

	assert.Equal(t, []string{"connecting", "failed:find"}, h.notifier.events)
	require.Len(t, h.notifier.failures, 1)
	assert.ErrorIs(t, h.notifier.failures[0], ErrNoMatchingSession)
}

func TestFindFailureClearsConnecting(t *testing.T) {
	h := newHarness(t, clientUser)

	require.NoError(t, h.ctrl.FindSessions(LocalPlayer(clientUser), false, false, true, "room-1"))
	h.backend.completeFind(false, candidate("other", "k", "room-1"))

	assert.False(t, h.ctrl.State().Connecting)
	assert.Empty(t, h.backend.joined)
}

func TestFindWithoutBackend(t *testing.T) {
	ctrl := NewController(&Config{Logger: zaptest.NewLogger(t)})

	err := ctrl.FindSessions(LocalPlayer(clientUser), false, false, true, "room-1")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.False(t, ctrl.State().Connecting)
}

func TestFindRejectedClearsConnecting(t *testing.T) {
	h := newHarness(t, clientUser)
	h.backend.reject[OpFind] = true

	err := h.ctrl.FindSessions(LocalPlayer(clientUser), false, false, true, "room-1")
	assert.ErrorIs(t, err, ErrRequestRejected)
	assert.False(t, h.ctrl.State().Connecting)
	assert.Empty(t, h.backend.handlers)
}

func TestFindWithoutAutoJoinRetainsResults(t *testing.T) {
	h := newHarness(t, clientUser)

	require.NoError(t, h.ctrl.FindOnlineGames("room-1"))
	assert.False(t, h.ctrl.State().Connecting)
	assert.Empty(t, h.notifier.events)

	h.backend.completeFind(true,
		candidate(clientUser, "self", "room-1"),
		candidate("other", "match", "room-1"),
	)

	assert.Empty(t, h.backend.joined)
	assert.Len(t, h.ctrl.Results(), 2)

	require.NoError(t, h.ctrl.JoinOnlineGame())
	require.Len(t, h.backend.joined, 1)
	assert.Equal(t, "match", h.backend.joined[0].Key)
}

func TestJoinOnlineGameWithoutResults(t *testing.T) {
	h := newHarness(t, clientUser)

	err := h.ctrl.JoinOnlineGame()
	assert.ErrorIs(t, err, ErrNoMatchingSession)
}

func TestJoinSuccessTravelsAndNotifies(t *testing.T) {
	h := newHarness(t, clientUser)
	h.backend.connect["GameSession"] = "10.0.0.5:7777"

	require.NoError(t, h.ctrl.FindAndJoinOnlineGame("room-1"))
	h.backend.completeFind(true, candidate("host", "key-1", "room-1"))
	h.backend.fire(Completion{Op: OpJoin, Name: "GameSession", Success: true, Result: JoinSuccess})

	assert.Equal(t, []trip{{destination: "10.0.0.5:7777", asHost: false}}, h.traveler.trips)
	state := h.ctrl.State()
	assert.False(t, state.Connecting)
	assert.Equal(t, SessionName("GameSession"), state.SessionName)
	assert.Equal(t, "room-1", state.SessionID)
	assert.Equal(t, "connected", state.Phase())
	assert.Equal(t, []string{"connecting", "connected"}, h.notifier.events)
	assert.Empty(t, h.backend.handlers)
}

func TestJoinFailureDoesNotTravel(t *testing.T) {
	h := newHarness(t, clientUser)
	h.backend.connect["GameSession"] = "10.0.0.5:7777"

	require.NoError(t, h.ctrl.JoinSession(clientUser, "GameSession", candidate("host", "key-1", "room-1")))
	assert.True(t, h.ctrl.State().Connecting)

	h.backend.fire(Completion{Op: OpJoin, Name: "GameSession", Result: JoinSessionIsFull})

	assert.Empty(t, h.traveler.trips)
	assert.False(t, h.ctrl.State().Connecting)
	assert.Empty(t, h.ctrl.State().SessionID)
	assert.Equal(t, []string{"failed:join"}, h.notifier.events)
	require.Len(t, h.notifier.failures, 1)
	assert.Contains(t, h.notifier.failures[0].Error(), "SESSION_IS_FULL")
}

func TestJoinCompletedInline(t *testing.T) {
	h := newHarness(t, clientUser)
	h.backend.connect["GameSession"] = "10.0.0.5:7777"
	result := JoinSuccess
	h.backend.joinInline = &result

	require.NoError(t, h.ctrl.JoinSession(clientUser, "GameSession", candidate("host", "key-1", "room-1")))

	assert.False(t, h.ctrl.State().Connecting)
	assert.Len(t, h.traveler.trips, 1)
	assert.Equal(t, []string{"connected"}, h.notifier.events)
}

func TestJoinRejected(t *testing.T) {
	h := newHarness(t, clientUser)
	h.backend.reject[OpJoin] = true

	err := h.ctrl.JoinSession(clientUser, "GameSession", candidate("host", "key-1", "room-1"))
	assert.ErrorIs(t, err, ErrRequestRejected)
	assert.False(t, h.ctrl.State().Connecting)
	assert.Empty(t, h.backend.handlers)
}

func TestDestroyNotifiesAndReturnsToIdle(t *testing.T) {
	h := newHarness(t, hostUser)

	require.NoError(t, h.ctrl.StartOnlineGame("Arena", 4, "room-1"))
	h.backend.fire(Completion{Op: OpCreate, Name: "GameSession", Success: true})
	h.backend.fire(Completion{Op: OpStart, Name: "GameSession", Success: true})

	require.NoError(t, h.ctrl.DestroySessionAndLeaveGame())
	assert.Equal(t, []SessionName{"GameSession"}, h.backend.destroyed)

	h.backend.fire(Completion{Op: OpDestroy, Name: "GameSession", Success: true})

	assert.Equal(t, []string{"disconnected"}, h.notifier.events)
	require.Len(t, h.traveler.trips, 2)
	assert.Equal(t, trip{destination: DefaultIdleContext}, h.traveler.trips[1])
	assert.False(t, h.ctrl.State().Connected())
	assert.Empty(t, h.ctrl.CurrentSessionID())
	assert.Empty(t, h.backend.handlers)
}

func TestDestroyFailureStillNotifies(t *testing.T) {
	h := newHarness(t, hostUser)

	require.NoError(t, h.ctrl.DestroySession())
	h.backend.fire(Completion{Op: OpDestroy, Name: "GameSession", Success: false})

	assert.Equal(t, []string{"disconnected", "failed:destroy"}, h.notifier.events)
	assert.Empty(t, h.traveler.trips)
}

func TestDestroyWithoutBackend(t *testing.T) {
	ctrl := NewController(&Config{Logger: zaptest.NewLogger(t)})
	assert.ErrorIs(t, ctrl.DestroySession(), ErrBackendUnavailable)
}

func TestOnlineStatus(t *testing.T) {
	h := newHarness(t, hostUser)
	player := LocalPlayer(hostUser)

	h.roster.count = 1
	assert.Equal(t, OnlineStatus{}, h.ctrl.OnlineStatus(player))

	h.roster.count = 2
	h.roster.authority = true
	status := h.ctrl.OnlineStatus(player)
	assert.True(t, status.InOnlineGame)
	assert.True(t, status.IsServer)

	h.roster.authority = false
	status = h.ctrl.OnlineStatus(player)
	assert.True(t, status.InOnlineGame)
	assert.False(t, status.IsServer)

	assert.Equal(t, OnlineStatus{}, h.ctrl.OnlineStatus(nil))

	ctrl := NewController(&Config{Roster: h.roster, Logger: zaptest.NewLogger(t)})
	assert.Equal(t, OnlineStatus{}, ctrl.OnlineStatus(player))
}

func TestResetReleasesPendingOperation(t *testing.T) {
	h := newHarness(t, clientUser)

	require.NoError(t, h.ctrl.FindAndJoinOnlineGame("room-1"))
	handlers := h.backend.registered(OpFind)
	require.Len(t, handlers, 1)

	assert.True(t, h.ctrl.Reset(OpFind))
	assert.False(t, h.ctrl.State().Connecting)
	assert.False(t, h.ctrl.Reset(OpFind))

	// a late completion reaching the old handler is ignored
	handlers[0](Completion{Op: OpFind, Success: true})
	assert.Empty(t, h.backend.joined)
}

func TestNotifiersFanOut(t *testing.T) {
	a := &recordingNotifier{}
	b := &plainNotifier{}
	ns := Notifiers{a, b}

	ns.OnConnecting()
	ns.OnConnected()
	ns.OnDisconnected()
	ns.OnFailed(OpJoin, errors.New("boom"))

	assert.Equal(t, []string{"connecting", "connected", "disconnected", "failed:join"}, a.events)
	assert.Equal(t, []string{"connecting", "connected", "disconnected"}, b.events)
}

func TestParseOperation(t *testing.T) {
	for _, op := range Operations {
		parsed, ok := ParseOperation(op.String())
		assert.True(t, ok)
		assert.Equal(t, op, parsed)
	}

	_, ok := ParseOperation("travel")
	assert.False(t, ok)
}
