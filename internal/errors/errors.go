package errors

import (
	"errors"
	"fmt"
)

// Common error types for the console session client
var (
	// Session state errors
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrNotAdmin          = errors.New("admin role required")
	ErrNotImpersonating  = errors.New("not impersonating")
	ErrSessionSuperseded = errors.New("session changed while request was in flight")

	// Token errors
	ErrNoRefreshToken    = errors.New("no refresh token stored")
	ErrIncompleteSession = errors.New("incomplete session")

	// Operation errors
	ErrOperationInProgress = errors.New("operation already in progress")
	ErrInvalidInput        = errors.New("invalid input")

	// General errors
	ErrNotFound = errors.New("not found")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
