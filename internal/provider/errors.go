package provider

import "fmt"

// Error is a failed provider call. Message carries the provider's raw
// error text (or a synthesized transport description) for the error mapper
// and the failure-tracking sink; it must never be rendered to end users.
type Error struct {
	Status  int    // HTTP status, 0 for transport failures
	Message string // raw provider text, lowercased matching happens downstream
	Err     error  // underlying error, if any
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider: %s (status %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("provider: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// RawMessage returns the text the error mapper should match against.
func (e *Error) RawMessage() string {
	return e.Message
}

// newTransportError wraps a failure that never produced an HTTP response.
// The synthesized message deliberately contains "network error" so the
// mapper classifies it into the network bucket.
func newTransportError(err error) *Error {
	return &Error{
		Message: fmt.Sprintf("network error: %v", err),
		Err:     err,
	}
}

func newStatusError(status int, message string) *Error {
	if message == "" {
		message = fmt.Sprintf("unexpected provider response (status %d)", status)
	}
	return &Error{Status: status, Message: message}
}
