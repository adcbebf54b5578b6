package store

import (
	"context"
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Update describes a single conditional write used by CompareAndUpdate.
//
//   - Expected is the value the key must currently hold. A nil Expected means the key must not exist.
//   - Value is the value to write. A nil Value deletes the key.
type Update struct {
	Key      string
	Expected []byte
	Value    []byte
}

// IStore is the interface the coordinator uses to talk to the external key–value store.
// Implementations hold no state of their own besides the connection to the backend.
// All errors returned by an implementation are either a *Error or the (unwrapped) cancellation
// error of the passed context.
type IStore interface {
	// Get returns the value for a key. The boolean return value indicates whether a value for the key was found.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// CompareAndUpdate atomically applies all updates if, and only if, every key currently holds
	// the expected value of its update. If any comparison fails nothing is written and ok is false.
	// A failed comparison is not an error.
	CompareAndUpdate(ctx context.Context, updates ...Update) (ok bool, err error)
	// Keys returns all existing keys starting with the given prefix (in no particular order).
	Keys(ctx context.Context, prefix string) (keys []string, err error)
	// Delete removes the given keys unconditionally. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) (err error)
	// Close releases the connection to the backend.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode),
// an error message and optionally the error reported by the backend.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
	Err  error   // The underlying error (may be nil)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("StoreError (code %s): %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// Unwrap returns the underlying backend error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error with the same return code.
// This makes the sentinel errors below usable with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// WrapError creates a new store error with the given code that wraps err.
func WrapError(code RetCode, err error, format string, args ...any) *Error {
	return &Error{
		Code: code,
		Msg:  fmt.Sprintf(format, args...),
		Err:  err,
	}
}

// Unavailable classifies an error returned by a backend client.
// If the caller's context is done the context error is passed through unchanged, everything
// else (network errors, client timeouts, protocol errors) means the store could not serve the request.
func Unavailable(ctx context.Context, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return ctxErr
	}
	return WrapError(RetCStoreUnavailable, err, format, args...)
}

// Sentinel errors, match them with errors.Is.
var (
	ErrStoreUnavailable = NewError(RetCStoreUnavailable, "store unavailable")
	ErrInvalidRequest   = NewError(RetCInvalidRequest, "invalid request")
	ErrCorruptRecord    = NewError(RetCCorruptRecord, "corrupt record")
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess          RetCode = iota // 0: Command executed successfully.
	RetCInternalError                   // 1: Command failed due to an internal error.
	RetCStoreUnavailable                // 2: The backend could not be reached or timed out.
	RetCInvalidRequest                  // 3: The request was rejected before reaching the backend.
	RetCCorruptRecord                   // 4: A stored value could not be interpreted.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCStoreUnavailable:
		return "StoreUnavailable"
	case RetCInvalidRequest:
		return "InvalidRequest"
	case RetCCorruptRecord:
		return "CorruptRecord"
	default:
		return "Unknown"
	}
}
