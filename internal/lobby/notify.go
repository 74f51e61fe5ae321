package lobby

import (
	"go.uber.org/zap"
)

// Notifier receives one-way connection events. Calls are fire-and-forget.
type Notifier interface {
	OnConnecting()
	OnConnected()
	OnDisconnected()
}

// FailureNotifier is implemented by notifiers that also want terminal
// asynchronous failures. Notifiers without it observe failures only as the
// absence of OnConnected.
type FailureNotifier interface {
	OnFailed(op Operation, err error)
}

// Notifiers fans events out to every member in order
type Notifiers []Notifier

func (ns Notifiers) OnConnecting() {
	for _, n := range ns {
		n.OnConnecting()
	}
}

func (ns Notifiers) OnConnected() {
	for _, n := range ns {
		n.OnConnected()
	}
}

func (ns Notifiers) OnDisconnected() {
	for _, n := range ns {
		n.OnDisconnected()
	}
}

// OnFailed forwards to members implementing FailureNotifier
func (ns Notifiers) OnFailed(op Operation, err error) {
	for _, n := range ns {
		if fn, ok := n.(FailureNotifier); ok {
			fn.OnFailed(op, err)
		}
	}
}

// LogNotifier writes every event to a zap logger
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier backed by logger
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) OnConnecting()   { n.logger.Info("lobby connecting") }
func (n *LogNotifier) OnConnected()    { n.logger.Info("lobby connected") }
func (n *LogNotifier) OnDisconnected() { n.logger.Info("lobby disconnected") }

func (n *LogNotifier) OnFailed(op Operation, err error) {
	n.logger.Warn("lobby operation failed",
		zap.String("op", op.String()),
		zap.Error(err))
}

type nopNotifier struct{}

func (nopNotifier) OnConnecting()   {}
func (nopNotifier) OnConnected()    {}
func (nopNotifier) OnDisconnected() {}
