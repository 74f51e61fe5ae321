package lobby

// subscription owns one registered completion handler.
// release is safe to call any number of times.
type subscription struct {
	backend Backend
	handle  Handle
	active  bool
}

// subscribe registers fn for op on backend. Completions arriving after
// release go to stale instead of fn.
func subscribe(backend Backend, op Operation, fn, stale func(Completion)) *subscription {
	s := &subscription{backend: backend}
	s.handle = backend.Subscribe(op, func(comp Completion) {
		if !s.active {
			if stale != nil {
				stale(comp)
			}
			return
		}
		fn(comp)
	})
	s.active = true
	return s
}

// release unregisters the handler once; later calls are no-ops
func (s *subscription) release() bool {
	if s == nil || !s.active {
		return false
	}
	s.active = false
	s.backend.Unsubscribe(s.handle)
	return true
}

// pending reports whether the handler is still registered
func (s *subscription) pending() bool {
	return s != nil && s.active
}

// subscriptions holds at most one subscription per operation kind
type subscriptions [opCount]*subscription

// acquire replaces any existing subscription for op with a fresh one
func (ss *subscriptions) acquire(backend Backend, op Operation, fn, stale func(Completion)) *subscription {
	ss[op].release()
	s := subscribe(backend, op, fn, stale)
	ss[op] = s
	return s
}

// release drops the subscription for op, reporting whether one was active
func (ss *subscriptions) release(op Operation) bool {
	return ss[op].release()
}

// pending reports whether op has a registered handler
func (ss *subscriptions) pending(op Operation) bool {
	return ss[op].pending()
}
