package adsync

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownEndpoint = errors.New("adsync: unknown endpoint")
	ErrUnknownTag      = errors.New("adsync: unknown tag")
	ErrAlreadyRun      = errors.New("adsync: optimistic update already run")
	ErrClosed          = errors.New("adsync: closed")
)

// TransportError is a network or HTTP failure reported by the Transport.
// Status is 0 when no response was received.
type TransportError struct {
	Method  string
	Path    string
	Status  int
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("adsync: %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("adsync: %s %s: status %d", e.Method, e.Path, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("adsync: %s %s: %v", e.Method, e.Path, e.Err)
	default:
		return fmt.Sprintf("adsync: %s %s: transport failure", e.Method, e.Path)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError rejects a call before any request is issued.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("adsync: invalid input: %v", e.Err)
	}
	return fmt.Sprintf("adsync: invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// invalid builds a ValidationError from a message.
func invalid(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Err: errors.New(msg)}
}

// PushParseError is a push message that could not be decoded. The event is
// dropped and the connection stays open.
type PushParseError struct {
	EventType string
	Err       error
}

func (e *PushParseError) Error() string {
	if e.EventType == "" {
		return fmt.Sprintf("adsync: malformed push event: %v", e.Err)
	}
	return fmt.Sprintf("adsync: malformed %q push event: %v", e.EventType, e.Err)
}

func (e *PushParseError) Unwrap() error { return e.Err }

// PushConnectionError is a stream-level failure. It moves the reconciler to
// ConnReconnecting.
type PushConnectionError struct {
	RoutingKey string
	Err        error
}

func (e *PushConnectionError) Error() string {
	return fmt.Sprintf("adsync: push connection %q: %v", e.RoutingKey, e.Err)
}

func (e *PushConnectionError) Unwrap() error { return e.Err }
