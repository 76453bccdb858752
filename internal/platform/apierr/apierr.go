package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the closed set of error categories components translate into at
// their boundaries. Handlers map kinds onto HTTP status codes.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindValidation         Kind = "validation_error"
	KindConflict           Kind = "conflict_error"
	KindPermissionDenied   Kind = "permission_denied"
	KindFetchError         Kind = "fetch_error"
	KindExtractionError    Kind = "extraction_error"
	KindModelUnavailable   Kind = "model_unavailable"
	KindTimeout            Kind = "timeout"
	KindDependencyDegraded Kind = "dependency_degraded"
	KindInternal           Kind = "internal"
)

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the kind from an error chain, defaulting to internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindFetchError, KindExtractionError:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindDependencyDegraded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Transient reports whether a background job should retry after this error.
// Validation and parse failures are permanent; network and model hiccups are
// worth another attempt.
func Transient(err error) bool {
	switch KindOf(err) {
	case KindFetchError, KindTimeout, KindDependencyDegraded, KindModelUnavailable, KindInternal:
		return true
	default:
		return false
	}
}
