package domain

import (
	"errors"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
// Implementing this interface enables extensible error handling (OCP compliance).
type HTTPError interface {
	error
	StatusCode() int
}

// Domain error types implementing HTTPError interface
type (
	// NotFoundError indicates a resource was not found
	NotFoundError struct {
		Message string
	}

	// ValidationError indicates invalid input
	ValidationError struct {
		Message string
	}

	// UnauthorizedError indicates authentication failure
	UnauthorizedError struct {
		Message string
	}

	// RateLimitError indicates a chat hit its turn cap
	RateLimitError struct {
		Message string
	}
)

// Error implementations
func (e *NotFoundError) Error() string     { return e.Message }
func (e *ValidationError) Error() string   { return e.Message }
func (e *UnauthorizedError) Error() string { return e.Message }
func (e *RateLimitError) Error() string    { return e.Message }

// StatusCode implementations (HTTPError interface)
func (e *NotFoundError) StatusCode() int     { return http.StatusNotFound }
func (e *ValidationError) StatusCode() int   { return http.StatusBadRequest }
func (e *UnauthorizedError) StatusCode() int { return http.StatusUnauthorized }
func (e *RateLimitError) StatusCode() int    { return http.StatusTooManyRequests }

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrChatNotFound rejects an exchange or lifecycle call against a chat
	// that is not resident in the session registry.
	ErrChatNotFound = errors.New("chat not found")

	// ErrRateLimited rejects an exchange once a chat reaches its turn cap.
	// The cap is a hard count of prior turns, not a sliding window.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Is allows errors.Is() matching against the sentinels
func (e *NotFoundError) Is(target error) bool  { return target == ErrNotFound }
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }
