package keva

import (
	"errors"
	"fmt"
)

type ErrorCode int

const (
	Unknown ErrorCode = iota
	// EngineFailure covers I/O errors, corruption and resource exhaustion
	// reported by the storage backend. Never retried, always propagated.
	EngineFailure
	// CommitConflict signals that a read-write transaction lost the optimistic
	// commit race. The Environment handles it by re-running the unit of work;
	// callers of RunReadWrite never observe it.
	CommitConflict
	// ConfigurationMismatch is returned when a store is reopened with settings
	// different from the ones it was created with.
	ConfigurationMismatch
	// ConflictRetryExhausted is returned when Options.MaxCommitRetries is set
	// and a unit of work still conflicts after that many re-runs.
	ConflictRetryExhausted
	// EnvironmentClosed is returned on double-close or use-after-close.
	EnvironmentClosed
	// TransactionEnded is returned when a committed, conflicted or aborted
	// transaction is used again.
	TransactionEnded
	// ReadOnlyViolation is returned on a mutation attempt through a read-only
	// transaction, including lazy store creation.
	ReadOnlyViolation
)

// ErrKeyEmpty is returned when attempting to use an empty or nil key.
var ErrKeyEmpty = errors.New("key cannot be empty")

// keva custom error.
type Error struct {
	Code     ErrorCode
	Err      error
	UserData any
}

func (e Error) Error() string {
	return fmt.Errorf("error code: %d, user data: %v, details: %w", e.Code, e.UserData, e.Err).Error()
}

func (e Error) Unwrap() error {
	return e.Err
}

// IsErrorCode reports whether err is (or wraps) a keva Error with the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	var e Error
	return errors.As(err, &e) && e.Code == code
}
