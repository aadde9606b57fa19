package client

import (
	"errors"
	"fmt"
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassNetwork represents transport errors and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassClient represents 4xx responses other than 404.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNotFound represents a rejected lookup such as an unknown
	// breed. The dog API signals it with HTTP 404 or with a 200 response
	// whose body status is not "success".
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassInvalidPayload represents a body that is not the expected JSON.
	ErrorClassInvalidPayload ErrorClass = "invalid_payload"
)

// ErrInvalidConfig is returned by New for unusable configuration.
var ErrInvalidConfig = errors.New("invalid client config")

// UpstreamError is returned for every failed upstream call.
type UpstreamError struct {
	Endpoint   string
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s error (status %d) for %s: %s: %v",
			e.ErrorClass, e.StatusCode, e.Endpoint, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream %s error (status %d) for %s: %s",
		e.ErrorClass, e.StatusCode, e.Endpoint, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is an upstream "not found" failure.
func IsNotFound(err error) bool {
	var upErr *UpstreamError
	return errors.As(err, &upErr) && upErr.ErrorClass == ErrorClassNotFound
}

// IsTransient reports whether err is an upstream failure that may succeed
// on a later attempt.
func IsTransient(err error) bool {
	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		return false
	}
	switch upErr.ErrorClass {
	case ErrorClassNetwork, ErrorClassServer:
		return true
	default:
		return false
	}
}
