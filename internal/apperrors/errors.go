// Package apperrors defines the error kinds surfaced by benchmark operations.
// Every error returned to the HTTP layer is classified by KindOf, which walks
// the wrap chain looking for anything that reports a Kind.
package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindInvalidArgument    Kind = "InvalidArgument"
	KindBackendUnavailable Kind = "BackendUnavailable"
	KindValidationFailed   Kind = "ValidationFailed"
	KindPartialBatch       Kind = "PartialBatchFailure"
	KindQueryTranslation   Kind = "QueryTranslationError"
	KindInternal           Kind = "Internal"
)

// Error is the classified error type shared by all packages.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) ErrorKind() Kind {
	return e.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func InvalidArgument(format string, args ...any) *Error {
	return Newf(KindInvalidArgument, format, args...)
}

func BackendUnavailable(message string, cause error) *Error {
	return Wrap(KindBackendUnavailable, message, cause)
}

func ValidationFailed(message string, cause error) *Error {
	return Wrap(KindValidationFailed, message, cause)
}

func QueryTranslation(format string, args ...any) *Error {
	return Newf(KindQueryTranslation, format, args...)
}

type kinded interface {
	ErrorKind() Kind
}

// KindOf returns the kind of the outermost classified error in err's chain.
// Context expiry that was never classified is reported as BackendUnavailable.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var k kinded
	if errors.As(err, &k) {
		return k.ErrorKind()
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindBackendUnavailable
	}

	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidArgument:
		return http.StatusBadRequest
	case "":
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}
