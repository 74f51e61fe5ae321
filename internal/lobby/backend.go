/*
@Author: Lzww
@LastEditTime: 2026-10-12 21:05:33
@Description: Session backend contract

┌──────────────────────────────────────┐
│          Controller                  │
│  - HostSession()                     │
│  - FindSessions()                    │
│  - JoinSession()                     │
│  - DestroySession()                  │
└──────────────┬───────────────────────┘
               │ Subscribe + call
               │
┌──────────────▼───────────────────────┐
│          Backend                     │
│  - CreateSession()  -> (name, ok)    │
│  - StartSession()   -> (name, ok)    │
│  - FindSessions()   -> (ok)          │
│  - JoinSession()    -> (name, result)│
│  - DestroySession() -> (name, ok)    │
└──────────────────────────────────────┘

@Language: Go
*/
package lobby

// Operation is the kind of an asynchronous backend call
type Operation int

const (
	OpCreate Operation = iota
	OpStart
	OpFind
	OpJoin
	OpDestroy

	opCount
)

// Operations lists every operation kind in declaration order
var Operations = []Operation{OpCreate, OpStart, OpFind, OpJoin, OpDestroy}

// String returns string representation of the operation
func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpStart:
		return "start"
	case OpFind:
		return "find"
	case OpJoin:
		return "join"
	case OpDestroy:
		return "destroy"
	default:
		return "unknown"
	}
}

// ParseOperation returns the operation named s
func ParseOperation(s string) (Operation, bool) {
	for _, op := range Operations {
		if op.String() == s {
			return op, true
		}
	}
	return 0, false
}

// Completion is the payload delivered to a completion handler.
// Result is only meaningful for OpJoin, Name is empty for OpFind.
type Completion struct {
	Op      Operation
	Name    SessionName
	Success bool
	Result  JoinResult
}

// Handle identifies a registered completion handler
type Handle uint64

// Backend is the asynchronous session service the controller drives.
//
// Every call returns whether the request was accepted. Accepted requests
// complete later through the handlers registered with Subscribe; a backend
// may also complete before the call returns.
type Backend interface {
	CreateSession(user UserID, name SessionName, desc SessionDescriptor) bool
	StartSession(name SessionName) bool
	FindSessions(user UserID, search *Search) bool
	JoinSession(user UserID, name SessionName, result SearchResult) bool
	DestroySession(name SessionName) bool

	// ResolvedConnectString returns the address a client travels to
	ResolvedConnectString(name SessionName) (string, bool)

	// NamedSession returns the local view of a hosted or joined session
	NamedSession(name SessionName) (*NamedSession, bool)

	// Subscribe registers fn for completions of op
	Subscribe(op Operation, fn func(Completion)) Handle

	// Unsubscribe removes a handler. Unknown handles are ignored.
	Unsubscribe(h Handle)
}
