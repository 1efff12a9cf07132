package errors

import "fmt"

// Validation errors are terminal and local: rejected before any I/O.
var (
	ErrEmptyUserID       = fmt.Errorf("empty user identifier")
	ErrSelfConversation  = fmt.Errorf("a conversation requires two distinct users")
	ErrSelfMessage       = fmt.Errorf("a user cannot message itself")
	ErrEmptyContent      = fmt.Errorf("message content is empty")
	ErrNoPeerSelected    = fmt.Errorf("no peer selected")
	ErrInvalidPassword   = fmt.Errorf("password does not meet complexity rules")
	ErrUserAlreadyExists = fmt.Errorf("user already exists")
	ErrUserNotFound      = fmt.Errorf("user not found")
	ErrEmptyWords        = fmt.Errorf("no censored words loaded")
	ErrInvalidCharacter  = fmt.Errorf("expected a single character")
)

// Authentication errors refuse the channel before any subscription.
var (
	ErrMissingToken       = fmt.Errorf("authorization token is missing")
	ErrInvalidToken       = fmt.Errorf("invalid or expired token")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
)

// Connection errors are reported to the caller, which decides on a retry.
var (
	ErrNotConnected  = fmt.Errorf("session is not connected")
	ErrChannelClosed = fmt.Errorf("channel is closed")
)

var ErrWorkerPanic = fmt.Errorf("worker panic")

// PersistenceError wraps a message-store failure. It stays distinct from
// delivery outcomes: the store write happens before any live fan-out, so
// the caller must not claim "sent" when it sees this error.
type PersistenceError struct {
	Op  string // "append" or "fetch"
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("message store %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}
