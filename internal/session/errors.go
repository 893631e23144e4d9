package session

import "fmt"

// RecoveryError means a stored session id could not be reattached. Callers
// fall back to creating a new session; it is never shown to the user.
type RecoveryError struct {
	SessionID string
	Err       error
}

func (e *RecoveryError) Error() string {
	return fmt.Sprintf("failed to recover session %s: %v", e.SessionID, e.Err)
}

func (e *RecoveryError) Unwrap() error { return e.Err }

// CreationError means no usable session could be created. It ends the
// invocation.
type CreationError struct {
	Err error
}

func (e *CreationError) Error() string { return e.Err.Error() }

func (e *CreationError) Unwrap() error { return e.Err }
