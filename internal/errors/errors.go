package errors

import (
	"errors"
	"fmt"
)

// Common error types for the dashboard client
var (
	// Storage errors
	ErrNotFound       = errors.New("not found")
	ErrInvalidKey     = errors.New("invalid storage key")
	ErrSealKeyLength  = errors.New("seal key must be 32 bytes")
	ErrCorruptPayload = errors.New("corrupt stored payload")

	// Session errors
	ErrVerifyRejected = errors.New("identity exchange rejected")
	ErrNoAccessToken  = errors.New("verify response carried no access token")
	ErrUnsupported    = errors.New("unsupported operation")

	// API errors
	ErrMalformedPayload = errors.New("malformed payload")
	ErrInvalidRequest   = errors.New("invalid request")

	// Sync errors
	ErrRecordNotFound = errors.New("record not found")
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

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
