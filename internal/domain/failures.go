package domain

import "fmt"

// TransportCreationError reports that a connection handle could not be built
// for an endpoint. It is fatal for that endpoint only.
type TransportCreationError struct {
	URL   string
	Kind  TransportKind
	Cause error
}

func (e *TransportCreationError) Error() string {
	return fmt.Sprintf("create %s transport for %s: %v", e.Kind, e.URL, e.Cause)
}

func (e *TransportCreationError) Unwrap() error { return e.Cause }

// HandshakeError reports a failed initialize exchange.
type HandshakeError struct {
	URL   string
	Kind  TransportKind
	Cause error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("initialize %s session with %s: %v", e.Kind, e.URL, e.Cause)
}

func (e *HandshakeError) Unwrap() error { return e.Cause }

// InvocationError reports a failed remote call after a session existed.
type InvocationError struct {
	URL   string
	Kind  TransportKind
	Tool  string
	Cause error
}

func (e *InvocationError) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("call %s (%s): %v", e.URL, e.Kind, e.Cause)
	}
	return fmt.Sprintf("call tool %q at %s (%s): %v", e.Tool, e.URL, e.Kind, e.Cause)
}

func (e *InvocationError) Unwrap() error { return e.Cause }

// ReconciliationError aborts a single reconciliation pass. The registry is
// left at its prior state.
type ReconciliationError struct {
	URL   string
	Kind  TransportKind
	Cause error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconcile tools from %s (%s): %v", e.URL, e.Kind, e.Cause)
}

func (e *ReconciliationError) Unwrap() error { return e.Cause }

// ReleaseError is a non-fatal failure to release one cached handle.
type ReleaseError struct {
	Key   string
	Cause error
}

func (e ReleaseError) Error() string {
	return fmt.Sprintf("release %s: %v", e.Key, e.Cause)
}

func (e ReleaseError) Unwrap() error { return e.Cause }
