// Package errors provides standardized error handling for the vizflow
// pipeline. It defines the stage-failure taxonomy, error classification
// (transient, invalid, fatal), and helper functions for consistent error
// wrapping across components.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes.
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried.
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration.
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing.
	ErrorFatal
)

// String returns the string representation of ErrorClass.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for pipeline stage failures.
var (
	// Dependency loading errors
	ErrDependencyLoadTimeout = errors.New("dependency load timeout")
	ErrDependencyLoadFailed  = errors.New("dependency load failed")
	ErrDependencyUnknown     = errors.New("dependency not registered")

	// Payload resolution errors
	ErrInvalidIdentifier       = errors.New("invalid identifier")
	ErrPayloadResolutionFailed = errors.New("payload resolution failed")

	// Render execution errors
	ErrRenderFailed = errors.New("render failed")

	// Instance lifecycle errors
	ErrInstanceClosed = errors.New("instance closed")
	ErrNotRetryable   = errors.New("instance not in error state")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrInvalidData   = errors.New("invalid data")
)

// RemoteFetchError reports a non-success status from the structure
// repository. It unwraps to ErrPayloadResolutionFailed so callers can match
// the whole resolution-failure family with errors.Is.
type RemoteFetchError struct {
	Status     int
	Identifier string
}

// Error implements the error interface.
func (e *RemoteFetchError) Error() string {
	return fmt.Sprintf("remote fetch for %q failed with status %d", e.Identifier, e.Status)
}

// Unwrap ties remote fetch failures into the resolution-failure family.
func (e *RemoteFetchError) Unwrap() error {
	return ErrPayloadResolutionFailed
}

// IsRemoteFetch reports whether err is a RemoteFetchError and returns it.
func IsRemoteFetch(err error) (*RemoteFetchError, bool) {
	var rfe *RemoteFetchError
	ok := errors.As(err, &rfe)
	return rfe, ok
}

// ClassifiedError wraps an error with its classification.
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface.
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error.
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsTransient checks if an error is transient and should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	return errors.Is(err, ErrDependencyLoadTimeout) ||
		errors.Is(err, ErrDependencyLoadFailed) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsInvalid checks if an error is due to invalid input.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrInvalidIdentifier) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrInvalidData)
}

// IsFatal checks if an error is fatal and should stop processing.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return false
}

// Classify returns the error class for an error.
func Classify(err error) ErrorClass {
	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}
	// Default to transient for unknown errors to allow retry.
	return ErrorTransient
}

// Reason maps a pipeline error to its taxonomy sentinel, for state reporting
// and metrics labels. Unknown errors map to their own message.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDependencyLoadTimeout):
		return "DependencyLoadTimeout"
	case errors.Is(err, ErrDependencyLoadFailed):
		return "DependencyLoadFailed"
	case errors.Is(err, ErrInvalidIdentifier):
		return "InvalidIdentifier"
	default:
		if rfe, ok := IsRemoteFetch(err); ok {
			return fmt.Sprintf("RemoteFetchError{%d}", rfe.Status)
		}
		if errors.Is(err, ErrPayloadResolutionFailed) {
			return "PayloadResolutionFailed"
		}
		if errors.Is(err, ErrRenderFailed) {
			return "RenderFailed"
		}
		return err.Error()
	}
}

// newClassified creates a new classified error.
// This is an internal helper - use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context.
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context.
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context.
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}
