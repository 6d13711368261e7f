package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups domain errors into the categories callers branch on.
type Kind string

const (
	KindOrder             Kind = "ORDER_ERROR"
	KindPermission        Kind = "PERMISSION_DENIED"
	KindInsufficientStock Kind = "INSUFFICIENT_STOCK"
	KindInventory         Kind = "INVENTORY_ERROR"
	KindValidation        Kind = "VALIDATION_ERROR"
	KindNotFound          Kind = "NOT_FOUND"
)

// Error is an expected, recoverable domain failure with a stable code.
// Anything that is not an *Error is treated as an infrastructure failure.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind, and on Code when the target carries one.
// An insufficient stock error also matches ErrInventory.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	kindMatch := t.Kind == e.Kind ||
		(t.Kind == KindInventory && e.Kind == KindInsufficientStock)
	if !kindMatch {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// Sentinels for errors.Is checks by kind.
var (
	ErrOrder             = &Error{Kind: KindOrder}
	ErrPermission        = &Error{Kind: KindPermission}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock}
	ErrInventory         = &Error{Kind: KindInventory}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
)

func newf(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Order(code, format string, args ...any) *Error {
	return newf(KindOrder, code, format, args...)
}

func Permission(code, format string, args ...any) *Error {
	return newf(KindPermission, code, format, args...)
}

func InsufficientStock(code, format string, args ...any) *Error {
	return newf(KindInsufficientStock, code, format, args...)
}

func Inventory(code, format string, args ...any) *Error {
	return newf(KindInventory, code, format, args...)
}

func Validation(code, format string, args ...any) *Error {
	return newf(KindValidation, code, format, args...)
}

func NotFound(code, format string, args ...any) *Error {
	return newf(KindNotFound, code, format, args...)
}

// As extracts the domain error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsDomain reports whether err is an expected domain rejection rather than
// an infrastructure failure.
func IsDomain(err error) bool {
	_, ok := As(err)
	return ok
}

// CodeOf returns the stable code of a domain error, or "" otherwise.
func CodeOf(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

// HTTPStatus maps an error to the status code reported to callers.
func HTTPStatus(err error) int {
	e, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindPermission:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindOrder, KindInsufficientStock, KindInventory:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
