package push

import (
	"errors"
	"fmt"
)

// ErrorType classifies connection errors.
type ErrorType string

const (
	ErrorConnection ErrorType = "connection"
	ErrorParse      ErrorType = "parse"
	ErrorTimeout    ErrorType = "timeout"
	ErrorNetwork    ErrorType = "network"
)

var (
	ErrMaxAttempts      = errors.New("max reconnection attempts reached")
	ErrDisconnected     = errors.New("disconnected")
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")
	// ErrBadEndpoint marks failures to even build a request for the endpoint.
	ErrBadEndpoint = errors.New("invalid push endpoint")
)

// Error is delivered to OnError handlers and returned from Connect.
type Error struct {
	Type  ErrorType
	Err   error
	Fatal bool
}

func (e *Error) Error() string {
	if e.Fatal {
		return fmt.Sprintf("%s error (fatal): %v", e.Type, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Type, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func classifyDialError(err error) ErrorType {
	if errors.Is(err, ErrBadEndpoint) {
		return ErrorNetwork
	}
	return ErrorConnection
}
