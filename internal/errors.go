package internal

import "fmt"

// CredentialError represents a failure to obtain a connection token.
// It is fatal to the connection attempt; there is no automatic retry.
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential error: %v", e.Err)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

// TransportError represents a socket error or unexpected close
type TransportError struct {
	SessionID int64
	Op        string // "dial", "read", "write", "close"
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error [session %d] %s: %v", e.SessionID, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError represents a malformed or out-of-order wire frame.
// The frame is dropped; engine state is otherwise preserved.
type ProtocolError struct {
	Reason  string
	ReplyID string
}

func (e *ProtocolError) Error() string {
	if e.ReplyID != "" {
		return fmt.Sprintf("protocol error [reply %s]: %s", e.ReplyID, e.Reason)
	}
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

// ValidationError represents input rejected before any network call
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Reason)
}

// MutationError represents a failed session create/update/delete.
// The directory cache is left at the last confirmed server state.
type MutationError struct {
	Op        string // "create", "update", "delete", "list", "load"
	SessionID int64
	Err       error
}

func (e *MutationError) Error() string {
	if e.SessionID != 0 {
		return fmt.Sprintf("mutation error: %s session %d: %v", e.Op, e.SessionID, e.Err)
	}
	return fmt.Sprintf("mutation error: %s: %v", e.Op, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}
