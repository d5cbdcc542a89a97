package callengine

import "fmt"

// StateMismatchError is returned (and surfaced as a stateMismatch event) when
// a command is invoked from a state that does not permit it — e.g. calling
// accept() while idle, or call() while already calling.
type StateMismatchError struct {
	Op    string
	State CallState
}

func (e *StateMismatchError) Error() string {
	return fmt.Sprintf("callengine: %s not permitted in state %s", e.Op, e.State)
}

// CallError wraps a failure from the signaling or media plane, carrying the
// ErrorKind and ErrorEvent used to classify callError observations.
type CallError struct {
	Kind  ErrorKind
	Event ErrorEvent
	Code  int
	Msg   string
	Err   error
}

func (e *CallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("callengine: %s (%s/%s code=%d): %v", e.Msg, e.Kind, e.Event, e.Code, e.Err)
	}
	return fmt.Sprintf("callengine: %s (%s/%s code=%d)", e.Msg, e.Kind, e.Event, e.Code)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// newRTCError builds a CallError for a media-plane failure.
func newRTCError(event ErrorEvent, msg string, err error) *CallError {
	return &CallError{Kind: ErrorKindRTC, Event: event, Msg: msg, Err: err}
}

// newMessageError builds a CallError for a signaling-plane failure.
func newMessageError(event ErrorEvent, msg string, err error) *CallError {
	return &CallError{Kind: ErrorKindMessage, Event: event, Msg: msg, Err: err}
}
