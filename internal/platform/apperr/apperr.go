// Package apperr defines the typed failure taxonomy shared by the order,
// result, and progress domains. Business-rule failures (invalid transition,
// terminal state, validation) are returned as *Error values callers match
// with errors.Is/As; infrastructure failures keep their own kinds so handlers
// can map them to 5xx responses without string sniffing.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies a failure.
type Kind string

const (
	KindInvalidTransition Kind = "invalid_transition"
	KindNotFound          Kind = "not_found"
	KindInvalidState      Kind = "invalid_state"
	KindValidation        Kind = "validation"
	KindStoreTimeout      Kind = "store_timeout"
	KindStoreUnavailable  Kind = "store_unavailable"
)

// Error is a typed application error.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Msg }

// Is makes errors.Is(err, apperr.NotFound("")) style sentinel comparison work
// on Kind alone, ignoring the message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

func InvalidTransition(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidTransition, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func InvalidState(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidState, Msg: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func StoreTimeout(format string, args ...interface{}) *Error {
	return &Error{Kind: KindStoreTimeout, Msg: fmt.Sprintf(format, args...)}
}

func StoreUnavailable(format string, args ...interface{}) *Error {
	return &Error{Kind: KindStoreUnavailable, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, else "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps an error to the HTTP status code handlers should respond
// with. Unclassified errors are treated as internal.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidTransition, KindInvalidState:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindStoreTimeout:
		return http.StatusGatewayTimeout
	case KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromStore maps low-level store errors to the taxonomy. Context expiry
// becomes StoreTimeout and connection-class failures become
// StoreUnavailable; anything else is passed through untouched so pgx
// errors like ErrNoRows can still be inspected by the repository layer.
func FromStore(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return StoreTimeout("store call exceeded deadline: %v", err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return StoreUnavailable("database unreachable: %v", err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return StoreUnavailable("database unreachable: %v", err)
	}
	return err
}
