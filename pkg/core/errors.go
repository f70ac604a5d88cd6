// Package core provides the domain model and configuration for the companion
// chatbot backend.
package core

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrNotFound indicates that a requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidInput indicates that a required request field is missing or malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreUnavailable indicates that the document store is unreachable.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrCacheUnavailable indicates that the cache is unreachable or not configured.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrLLMOperation indicates that a language-model call failed.
	ErrLLMOperation = errors.New("llm operation failed")

	// ErrRateLimited indicates that a client exceeded its request quota.
	ErrRateLimited = errors.New("rate limited")
)

// ChatError wraps errors with operation context.
//
// Example:
//
//	err := &ChatError{Op: "SendMessage", Err: ErrInvalidInput}
//	// Error() returns: "companion: SendMessage: invalid input"
type ChatError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message of the form "companion: <Op>: <Err>".
func (e *ChatError) Error() string {
	return fmt.Sprintf("companion: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error, allowing errors.Is and errors.As.
func (e *ChatError) Unwrap() error {
	return e.Err
}

// NewChatError creates a new ChatError wrapping the given error.
// If err is nil, returns nil so call sites can wrap unconditionally.
func NewChatError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ChatError{Op: op, Err: err}
}
