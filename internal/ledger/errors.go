package ledger

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes client errors.
type ErrorCode string

const (
	// ErrCodeInitialization indicates client, store or network misconfiguration.
	ErrCodeInitialization ErrorCode = "INITIALIZATION"

	// ErrCodeInvalidAccount indicates an account builder constraint was violated.
	ErrCodeInvalidAccount ErrorCode = "INVALID_ACCOUNT"

	// ErrCodeAccountConflict indicates an id is already registered with a
	// different auth commitment.
	ErrCodeAccountConflict ErrorCode = "ACCOUNT_CONFLICT"

	// ErrCodeAccountNotFound indicates the account is not tracked locally.
	ErrCodeAccountNotFound ErrorCode = "ACCOUNT_NOT_FOUND"

	// ErrCodeNoteCreation indicates malformed note inputs.
	ErrCodeNoteCreation ErrorCode = "NOTE_CREATION"

	// ErrCodeInvalidAsset indicates a zero, oversized or wrongly issued asset.
	ErrCodeInvalidAsset ErrorCode = "INVALID_ASSET"

	// ErrCodeEmptyNoteSet indicates a consume request with no notes.
	ErrCodeEmptyNoteSet ErrorCode = "EMPTY_NOTE_SET"

	// ErrCodeNoteNotConsumable indicates a note is not unconsumed for the account.
	ErrCodeNoteNotConsumable ErrorCode = "NOTE_NOT_CONSUMABLE"

	// ErrCodeSync indicates a failed sync round. State is unchanged.
	ErrCodeSync ErrorCode = "SYNC"

	// ErrCodeSubmission indicates a rejected or timed-out transaction.
	ErrCodeSubmission ErrorCode = "SUBMISSION"

	// ErrCodeStaleUpdate indicates an account update that is not strictly newer.
	ErrCodeStaleUpdate ErrorCode = "STALE_UPDATE"

	// ErrCodeNoteAlreadyClaimed indicates a second pending-consumption claim.
	ErrCodeNoteAlreadyClaimed ErrorCode = "NOTE_ALREADY_CLAIMED"

	// ErrCodePollExhausted indicates a bounded poll ran out of attempts.
	ErrCodePollExhausted ErrorCode = "POLL_EXHAUSTED"
)

// Error is the typed error returned across notekeeper packages.
//
// Retryable is set for transient network failures (sync and submission
// timeouts, unavailable endpoints). Local validation errors are never retryable.
type Error struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf creates an Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error carrying a cause.
func Wrap(code ErrorCode, err error, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WrapRetryable creates a retryable Error carrying a cause.
func WrapRetryable(code ErrorCode, err error, message string) *Error {
	return &Error{Code: code, Message: message, Err: err, Retryable: true}
}

// IsCode reports whether any Error in err's chain has the given code.
// Uses errors.As so wrapped errors match; an outer SYNC error wrapping a
// STALE_UPDATE matches both codes.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

// IsRetryable reports whether the outermost Error in err's chain is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// CodeOf returns the code of the outermost Error, or "" if none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
