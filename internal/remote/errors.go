package remote

import (
	"errors"
	"fmt"
)

// ErrMissingConfig is returned when a network-touching method is invoked
// without the configuration it requires. It is never retried
// automatically; the caller should prompt for setup.
var ErrMissingConfig = errors.New("required configuration missing")

// AuthError reports a remote rejection due to invalid or expired
// credentials. Callers branch on it to prompt for re-authentication
// instead of treating the failure as transient.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication rejected (status %d)", e.Status)
}

// ConflictError reports that the remote already holds a version of the
// entry being created. The core surfaces it without auto-resolving.
type ConflictError struct {
	IssueKey string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("remote conflict for issue %s", e.IssueKey)
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsConflict reports whether err is a conflict outcome.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsMissingConfig reports whether err is a configuration error.
func IsMissingConfig(err error) bool {
	return errors.Is(err, ErrMissingConfig)
}
