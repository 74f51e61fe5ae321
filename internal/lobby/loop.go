package lobby

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// DefaultLoopQueueSize is the default number of queued tasks before Post blocks
const DefaultLoopQueueSize = 256

// Dispatcher schedules work onto the controller's thread of control
type Dispatcher interface {
	Post(fn func()) error
}

// Loop is the single thread of control of a controller. Controller calls
// and backend completions run on it one at a time, so the controller needs
// no locking.
type Loop struct {
	tasks  chan func()
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

// NewLoop creates a loop with the given queue size
func NewLoop(queueSize int, logger *zap.Logger) *Loop {
	if queueSize <= 0 {
		queueSize = DefaultLoopQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		tasks:  make(chan func(), queueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Run executes posted tasks until ctx is done or Close is called
func (l *Loop) Run(ctx context.Context) error {
	defer l.Close()

	for {
		select {
		case fn := <-l.tasks:
			l.exec(fn)
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		}
	}
}

// Post queues fn, blocking while the queue is full. Tasks running on the
// loop must not Post to it.
func (l *Loop) Post(fn func()) error {
	return l.enqueue(context.Background(), fn)
}

// Do runs fn on the loop and waits for it to return, giving up when ctx
// is done. Calling Do from a task running on the loop deadlocks.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := l.enqueue(ctx, func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLoopClosed
	}
}

func (l *Loop) enqueue(ctx context.Context, fn func()) error {
	select {
	case <-l.done:
		return ErrLoopClosed
	default:
	}

	select {
	case l.tasks <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLoopClosed
	}
}

// Close stops the loop. Queued tasks are dropped.
func (l *Loop) Close() {
	l.once.Do(func() {
		close(l.done)
	})
}

// Done is closed once the loop stops
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// exec runs a task, turning a panic into a log entry
func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("lobby task panicked",
				zap.String("panic", fmt.Sprint(r)),
				zap.Stack("stack"))
		}
	}()
	fn()
}
