package lobby

import "errors"

var (
	// ErrBackendUnavailable is returned when no session backend is present
	ErrBackendUnavailable = errors.New("session backend unavailable")
	// ErrInvalidUser is returned when no valid local user identity exists
	ErrInvalidUser = errors.New("invalid user")
	// ErrRequestRejected is returned when the backend synchronously declines a call
	ErrRequestRejected = errors.New("request rejected by backend")
	// ErrOperationFailed is reported when an asynchronous completion reports failure
	ErrOperationFailed = errors.New("operation failed")
	// ErrNoMatchingSession is reported when a search completes without the target session
	ErrNoMatchingSession = errors.New("no matching session")
	// ErrLoopClosed is returned when work is submitted to a stopped loop
	ErrLoopClosed = errors.New("event loop closed")
)
