package license

import (
	"errors"
	"fmt"
)

// Activation rejection codes
const (
	CodeInvalidFormat  = "INVALID_FORMAT"
	CodeKeyNotFound    = "KEY_NOT_FOUND"
	CodeExpired        = "EXPIRED"
	CodeRevoked        = "REVOKED"
	CodeDeviceMismatch = "DEVICE_MISMATCH"
	CodeRateLimited    = "RATE_LIMITED"
)

// ActivationError is a typed, user-visible activation rejection. It is
// fatal to the activation attempt only; nothing is persisted.
type ActivationError struct {
	Code    string
	Message string
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("activation rejected (%s): %s", e.Code, e.Message)
}

// NewActivationError creates a typed activation rejection
func NewActivationError(code, message string) *ActivationError {
	return &ActivationError{Code: code, Message: message}
}

// AsActivationError unwraps err into an *ActivationError if it is one
func AsActivationError(err error) (*ActivationError, bool) {
	var actErr *ActivationError
	if errors.As(err, &actErr) {
		return actErr, true
	}
	return nil, false
}

var (
	// ErrKeyNotFound is returned by an authority that has no row for the key
	ErrKeyNotFound = errors.New("license key not found")

	// ErrAuthorityUnavailable wraps transport failures reaching the
	// authority; recoverable, triggers offline fallback
	ErrAuthorityUnavailable = errors.New("license authority unavailable")

	// ErrNotActivated indicates no stored license exists
	ErrNotActivated = errors.New("no license activated")
)
