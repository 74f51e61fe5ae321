/*
@Author: Lzww
@LastEditTime: 2026-10-15 19:26:44
@Description: Online session subsystem backed by an advertisement registry
@Language: Go
*/
package online

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/aetherflow/lobby/internal/lobby"
)

// DefaultCallTimeout bounds a single registry round trip
const DefaultCallTimeout = 5 * time.Second

// CallObserver receives the outcome of every registry round trip
type CallObserver interface {
	ObserveRegistryCall(op string, duration time.Duration, err error)
}

type nopCallObserver struct{}

func (nopCallObserver) ObserveRegistryCall(string, time.Duration, error) {}

// Config contains configuration for the subsystem
type Config struct {
	Registry   Registry
	Dispatcher lobby.Dispatcher
	Guard      *Guard
	Tracer     trace.Tracer
	Observer   CallObserver
	Logger     *zap.Logger

	// HostAddr is the address clients travel to when joining our sessions
	HostAddr string

	CallTimeout time.Duration
}

type sessionPhase int

const (
	phaseCreating sessionPhase = iota
	phasePending
	phaseStarting
	phaseInProgress
	phaseJoining
	phaseJoined
	phaseDestroying
)

// localSession is this process's view of a hosted or joined session
type localSession struct {
	named      lobby.NamedSession
	user       lobby.UserID
	connect    string
	advertised bool
	phase      sessionPhase
}

type handlerEntry struct {
	op lobby.Operation
	fn func(lobby.Completion)
}

// Subsystem implements lobby.Backend on top of a Registry. Registry I/O
// runs on worker goroutines; completions are posted to the Dispatcher.
type Subsystem struct {
	registry   Registry
	dispatcher lobby.Dispatcher
	guard      *Guard
	tracer     trace.Tracer
	observer   CallObserver
	logger     *zap.Logger
	hostAddr   string
	timeout    time.Duration

	mu         sync.Mutex
	sessions   map[lobby.SessionName]*localSession
	handlers   map[lobby.Handle]handlerEntry
	nextHandle lobby.Handle

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSubsystem creates a subsystem from config
func NewSubsystem(config *Config) (*Subsystem, error) {
	if config.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if config.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Guard == nil {
		config.Guard = NewGuard(GuardConfig{}, config.Logger)
	}
	if config.Tracer == nil {
		config.Tracer = otel.Tracer("lobby/online")
	}
	if config.Observer == nil {
		config.Observer = nopCallObserver{}
	}
	if config.CallTimeout == 0 {
		config.CallTimeout = DefaultCallTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Subsystem{
		registry:   config.Registry,
		dispatcher: config.Dispatcher,
		guard:      config.Guard,
		tracer:     config.Tracer,
		observer:   config.Observer,
		logger:     config.Logger,
		hostAddr:   config.HostAddr,
		timeout:    config.CallTimeout,
		sessions:   make(map[lobby.SessionName]*localSession),
		handlers:   make(map[lobby.Handle]handlerEntry),
		ctx:        ctx,
		cancel:     cancel,
	}

	if refresher, ok := config.Registry.(Refresher); ok && refresher.RefreshInterval() > 0 {
		s.wg.Add(1)
		go s.keepAlive(refresher)
	}

	return s, nil
}

// CreateSession registers name locally and advertises it
func (s *Subsystem) CreateSession(user lobby.UserID, name lobby.SessionName, desc lobby.SessionDescriptor) bool {
	s.mu.Lock()
	if _, exists := s.sessions[name]; exists {
		s.mu.Unlock()
		s.logger.Warn("session already exists", zap.String("session_name", string(name)))
		return false
	}

	id, err := uuid.NewV7()
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("failed to generate advertisement key", zap.Error(err))
		return false
	}
	key := id.String()

	s.sessions[name] = &localSession{
		named: lobby.NamedSession{
			Name:     name,
			Key:      key,
			OwnerID:  user,
			Settings: desc.Settings(),
			IsHost:   true,
		},
		user:       user,
		connect:    s.hostAddr,
		advertised: desc.Advertise,
		phase:      phaseCreating,
	}
	s.mu.Unlock()

	now := time.Now()
	adv := &Advertisement{
		Key:                 key,
		OwnerID:             user,
		HostAddr:            s.hostAddr,
		Settings:            desc.Settings(),
		IsLAN:               desc.IsLAN,
		UsesPresence:        desc.UsesPresence,
		AllowJoinInProgress: desc.AllowJoinInProgress,
		MaxPlayers:          desc.MaxPlayers,
		OpenSlots:           max(desc.MaxPlayers-1, 0),
		State:               StatePending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	s.launch(lobby.OpCreate, name, func(ctx context.Context) error {
		if !desc.Advertise {
			return nil
		}
		return s.registry.Advertise(ctx, adv)
	}, func(err error) lobby.Completion {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			delete(s.sessions, name)
		} else if sess, ok := s.sessions[name]; ok {
			sess.phase = phasePending
		}
		return lobby.Completion{Op: lobby.OpCreate, Name: name, Success: err == nil}
	})

	return true
}

// StartSession marks a created session in progress
func (s *Subsystem) StartSession(name lobby.SessionName) bool {
	s.mu.Lock()
	sess, ok := s.sessions[name]
	if !ok || (sess.phase != phasePending && sess.phase != phaseJoined) {
		s.mu.Unlock()
		s.logger.Warn("cannot start session", zap.String("session_name", string(name)))
		return false
	}
	hosted := sess.named.IsHost && sess.advertised
	key := sess.named.Key
	prev := sess.phase
	sess.phase = phaseStarting
	s.mu.Unlock()

	s.launch(lobby.OpStart, name, func(ctx context.Context) error {
		if !hosted {
			return nil
		}
		_, err := s.registry.Update(ctx, key, func(adv *Advertisement) error {
			adv.State = StateInProgress
			adv.UpdatedAt = time.Now()
			return nil
		})
		return err
	}, func(err error) lobby.Completion {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sess, ok := s.sessions[name]; ok {
			if err != nil {
				sess.phase = prev
			} else {
				sess.phase = phaseInProgress
			}
		}
		return lobby.Completion{Op: lobby.OpStart, Name: name, Success: err == nil}
	})

	return true
}

// FindSessions searches the registry and fills search.Results
func (s *Subsystem) FindSessions(user lobby.UserID, search *lobby.Search) bool {
	if search == nil {
		return false
	}

	filter := search.Filter
	query := Query{
		IsLAN:    filter.IsLAN,
		Presence: filter.PresenceOnly,
		Limit:    filter.MaxResults,
	}

	var results []lobby.SearchResult
	s.launch(lobby.OpFind, "", func(ctx context.Context) error {
		start := time.Now()
		advs, err := s.registry.Search(ctx, query)
		if err != nil {
			return err
		}
		ping := bucketPing(time.Since(start), filter.PingBucketSize)

		results = make([]lobby.SearchResult, 0, len(advs))
		for _, adv := range advs {
			results = append(results, lobby.SearchResult{
				Key:          adv.Key,
				OwningUserID: adv.OwnerID,
				Settings:     adv.Settings.Clone(),
				MaxPlayers:   adv.MaxPlayers,
				OpenSlots:    adv.OpenSlots,
				PingMs:       ping,
			})
		}
		return nil
	}, func(err error) lobby.Completion {
		search.Results = results
		return lobby.Completion{Op: lobby.OpFind, Success: err == nil}
	})

	return true
}

// JoinSession reserves a slot in the advertised session and stores it under name
func (s *Subsystem) JoinSession(user lobby.UserID, name lobby.SessionName, result lobby.SearchResult) bool {
	s.mu.Lock()
	if _, exists := s.sessions[name]; exists {
		s.mu.Unlock()
		s.post(lobby.Completion{Op: lobby.OpJoin, Name: name, Result: lobby.JoinAlreadyInSession})
		return true
	}
	s.sessions[name] = &localSession{
		named: lobby.NamedSession{
			Name:     name,
			Key:      result.Key,
			OwnerID:  result.OwningUserID,
			Settings: result.Settings.Clone(),
		},
		user:       user,
		advertised: true,
		phase:      phaseJoining,
	}
	s.mu.Unlock()

	var joined *Advertisement
	s.launch(lobby.OpJoin, name, func(ctx context.Context) error {
		adv, err := s.registry.Update(ctx, result.Key, func(adv *Advertisement) error {
			if adv.HostAddr == "" {
				return ErrNoHostAddress
			}
			return adv.Reserve(user)
		})
		joined = adv
		return err
	}, func(err error) lobby.Completion {
		res := joinResult(err)

		s.mu.Lock()
		defer s.mu.Unlock()
		if res != lobby.JoinSuccess {
			delete(s.sessions, name)
		} else if sess, ok := s.sessions[name]; ok {
			sess.named.Settings = joined.Settings.Clone()
			sess.named.OwnerID = joined.OwnerID
			sess.connect = joined.HostAddr
			sess.phase = phaseJoined
		}
		return lobby.Completion{Op: lobby.OpJoin, Name: name, Success: res == lobby.JoinSuccess, Result: res}
	})

	return true
}

// DestroySession withdraws a hosted advertisement or releases a joined slot
func (s *Subsystem) DestroySession(name lobby.SessionName) bool {
	s.mu.Lock()
	sess, ok := s.sessions[name]
	if !ok || sess.phase == phaseDestroying {
		s.mu.Unlock()
		s.logger.Warn("destroying unknown session", zap.String("session_name", string(name)))
		s.post(lobby.Completion{Op: lobby.OpDestroy, Name: name})
		return true
	}
	prev := sess.phase
	sess.phase = phaseDestroying
	isHost := sess.named.IsHost
	advertised := sess.advertised
	key := sess.named.Key
	user := sess.user
	s.mu.Unlock()

	s.launch(lobby.OpDestroy, name, func(ctx context.Context) error {
		var err error
		switch {
		case !advertised:
			return nil
		case isHost:
			err = s.registry.Remove(ctx, key)
		default:
			_, err = s.registry.Update(ctx, key, func(adv *Advertisement) error {
				adv.Release(user)
				return nil
			})
		}
		// an expired advertisement is already gone
		if errors.Is(err, ErrAdvertisementNotFound) {
			return nil
		}
		return err
	}, func(err error) lobby.Completion {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err == nil {
			delete(s.sessions, name)
		} else if sess, ok := s.sessions[name]; ok {
			sess.phase = prev
		}
		return lobby.Completion{Op: lobby.OpDestroy, Name: name, Success: err == nil}
	})

	return true
}

// ResolvedConnectString returns the host address of a joined or hosted session
func (s *Subsystem) ResolvedConnectString(name lobby.SessionName) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[name]
	if !ok || sess.connect == "" {
		return "", false
	}
	return sess.connect, true
}

// NamedSession returns a copy of the local view of name
func (s *Subsystem) NamedSession(name lobby.SessionName) (*lobby.NamedSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[name]
	if !ok {
		return nil, false
	}
	named := sess.named
	named.Settings = sess.named.Settings.Clone()
	return &named, true
}

// Subscribe registers fn for completions of op
func (s *Subsystem) Subscribe(op lobby.Operation, fn func(lobby.Completion)) lobby.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextHandle++
	s.handlers[s.nextHandle] = handlerEntry{op: op, fn: fn}
	return s.nextHandle
}

// Unsubscribe removes a handler
func (s *Subsystem) Unsubscribe(h lobby.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, h)
}

// Occupancy is the participant view of a local session
type Occupancy struct {
	Participants int
	Authority    bool
}

// Occupancy reads the advertisement behind name
func (s *Subsystem) Occupancy(ctx context.Context, name lobby.SessionName) (Occupancy, error) {
	s.mu.Lock()
	sess, ok := s.sessions[name]
	if !ok {
		s.mu.Unlock()
		return Occupancy{}, fmt.Errorf("%w: %s", ErrUnknownSession, name)
	}
	key := sess.named.Key
	authority := sess.named.IsHost
	advertised := sess.advertised
	s.mu.Unlock()

	if !advertised {
		return Occupancy{Participants: 1, Authority: authority}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var adv *Advertisement
	err := s.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		adv, err = s.registry.Get(ctx, key)
		return err
	})
	if err != nil {
		return Occupancy{}, err
	}

	return Occupancy{Participants: adv.Participants(), Authority: authority}, nil
}

// Sessions returns the names of every local session
func (s *Subsystem) Sessions() []lobby.SessionName {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]lobby.SessionName, 0, len(s.sessions))
	for name := range s.sessions {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Close waits for in-flight calls and withdraws hosted advertisements
func (s *Subsystem) Close() error {
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	var keys []string
	for _, sess := range s.sessions {
		if sess.named.IsHost && sess.advertised {
			keys = append(keys, sess.named.Key)
		}
	}
	s.sessions = make(map[lobby.SessionName]*localSession)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var errs []error
	for _, key := range keys {
		if err := s.registry.Remove(ctx, key); err != nil && !errors.Is(err, ErrAdvertisementNotFound) {
			errs = append(errs, err)
		}
	}

	s.logger.Info("Online subsystem closed", zap.Int("withdrawn", len(keys)))
	return errors.Join(errs...)
}

// keepAlive refreshes hosted advertisements until Close
func (s *Subsystem) keepAlive(refresher Refresher) {
	defer s.wg.Done()

	ticker := time.NewTicker(refresher.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.refreshHosted(refresher)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Subsystem) refreshHosted(refresher Refresher) {
	s.mu.Lock()
	var keys []string
	for _, sess := range s.sessions {
		if sess.named.IsHost && sess.advertised && (sess.phase == phasePending || sess.phase == phaseInProgress) {
			keys = append(keys, sess.named.Key)
		}
	}
	s.mu.Unlock()

	for _, key := range keys {
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		start := time.Now()
		err := s.guard.Do(ctx, func(ctx context.Context) error {
			return refresher.Refresh(ctx, key)
		})
		cancel()
		s.observer.ObserveRegistryCall("refresh", time.Since(start), err)

		if err != nil {
			s.logger.Warn("failed to refresh advertisement",
				zap.String("key", key),
				zap.Error(err))
		}
	}
}

// launch runs call on a worker goroutine and delivers finish's completion
func (s *Subsystem) launch(op lobby.Operation, name lobby.SessionName, call func(context.Context) error, finish func(error) lobby.Completion) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()

		ctx, span := s.tracer.Start(ctx, "online."+op.String(),
			trace.WithAttributes(attribute.String("lobby.session_name", string(name))))

		start := time.Now()
		err := s.guard.Do(ctx, call)
		s.observer.ObserveRegistryCall(op.String(), time.Since(start), err)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.Warn("registry call failed",
				zap.String("op", op.String()),
				zap.String("session_name", string(name)),
				zap.Error(err))
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()

		// finish runs on the dispatcher so it may touch state the controller reads
		if postErr := s.dispatcher.Post(func() { s.fire(finish(err)) }); postErr != nil {
			comp := finish(err)
			s.logger.Warn("dropping completion",
				zap.String("op", comp.Op.String()),
				zap.Error(postErr))
		}
	}()
}

// post delivers comp to the handlers registered for its operation on the
// dispatcher. Callers run on the dispatcher, so the hand-off happens on a
// worker goroutine.
func (s *Subsystem) post(comp lobby.Completion) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.dispatcher.Post(func() { s.fire(comp) }); err != nil {
			s.logger.Warn("dropping completion",
				zap.String("op", comp.Op.String()),
				zap.Error(err))
		}
	}()
}

// fire calls every handler for comp.Op; handlers may unsubscribe while running
func (s *Subsystem) fire(comp lobby.Completion) {
	s.mu.Lock()
	handles := make([]lobby.Handle, 0, len(s.handlers))
	for h, entry := range s.handlers {
		if entry.op == comp.Op {
			handles = append(handles, h)
		}
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	fns := make([]func(lobby.Completion), 0, len(handles))
	for _, h := range handles {
		fns = append(fns, s.handlers[h].fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(comp)
	}
}

// joinResult maps a registry outcome to a join result
func joinResult(err error) lobby.JoinResult {
	switch {
	case err == nil:
		return lobby.JoinSuccess
	case errors.Is(err, ErrAdvertisementNotFound):
		return lobby.JoinSessionDoesNotExist
	case errors.Is(err, ErrNoOpenSlots):
		return lobby.JoinSessionIsFull
	case errors.Is(err, ErrNoHostAddress):
		return lobby.JoinCouldNotRetrieveAddress
	default:
		return lobby.JoinUnknownError
	}
}

// bucketPing rounds d down to a multiple of bucket milliseconds
func bucketPing(d time.Duration, bucket int) int {
	ms := int(d / time.Millisecond)
	if bucket <= 0 {
		return ms
	}
	return ms / bucket * bucket
}
