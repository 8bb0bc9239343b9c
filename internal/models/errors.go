package models

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks a malformed policy or config. Rejected at write time.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransientActionFailure marks a platform call that may succeed if retried.
	ErrTransientActionFailure = errors.New("transient action failure")
	// ErrPermanentActionFailure marks a platform call that will not succeed on retry.
	ErrPermanentActionFailure = errors.New("permanent action failure")

	ErrAlreadyResolved  = errors.New("appeal already resolved")
	ErrCooldownActive   = errors.New("appeal cooldown active")
	ErrNotFound         = errors.New("not found")
	ErrResolverRequired = errors.New("resolver id required")
	ErrNotAppealable    = errors.New("violation cannot be appealed")

	ErrMalformedEvent   = errors.New("malformed event")
	ErrUnsupportedEvent = errors.New("unsupported event")
)

// ConfigError describes why a configuration value was rejected.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// ActionError is returned by the dispatcher when an action could not be applied.
// Err wraps ErrTransientActionFailure or ErrPermanentActionFailure.
type ActionError struct {
	Action   Action
	GuildID  uint64
	UserID   uint64
	Attempts int
	Err      error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s on user %d in guild %d failed after %d attempt(s): %v",
		e.Action, e.UserID, e.GuildID, e.Attempts, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable platform failure.
func Transient(err error) error {
	return fmt.Errorf("%w: %w", ErrTransientActionFailure, err)
}

// Permanent wraps err as a non-retryable platform failure.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanentActionFailure, err)
}
