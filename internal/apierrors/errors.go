// Package apierrors provides the unified error taxonomy for the interview
// platform backend. Components raise a *ServiceError; the gateway maps it
// to a wire response once, rather than string-comparing error messages.
package apierrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the stable error strings from the platform's error taxonomy.
type Kind string

const (
	KindUnauthenticated     Kind = "unauthenticated"
	KindTokenMissing        Kind = "token_missing"
	KindTokenInvalid        Kind = "token_invalid"
	KindTokenExpired        Kind = "token_expired"
	KindTokenWrongAudience  Kind = "token_wrong_audience"
	KindTokenWrongSession   Kind = "token_wrong_session"
	KindTokenAlreadyUsed    Kind = "token_already_used"
	KindInvalidState        Kind = "invalid_state"
	KindChainBroken         Kind = "chain_broken"
	KindNotFound            Kind = "not_found"
	KindAlreadyExists       Kind = "already_exists"
	KindValidationFailed    Kind = "validation_failed"
	KindAlreadyInFlight     Kind = "already_in_flight"
	KindRateLimited         Kind = "rate_limited"
	KindInternal            Kind = "internal"
	KindProviderUnavailable Kind = "provider_unavailable"
)

var statusByKind = map[Kind]int{
	KindUnauthenticated:     http.StatusUnauthorized,
	KindTokenMissing:        http.StatusUnauthorized,
	KindTokenInvalid:        http.StatusUnauthorized,
	KindTokenExpired:        http.StatusUnauthorized,
	KindTokenWrongAudience:  http.StatusForbidden,
	KindTokenWrongSession:   http.StatusForbidden,
	KindTokenAlreadyUsed:    http.StatusForbidden,
	KindInvalidState:        http.StatusConflict,
	KindChainBroken:         http.StatusConflict,
	KindNotFound:            http.StatusNotFound,
	KindAlreadyExists:       http.StatusConflict,
	KindValidationFailed:    http.StatusBadRequest,
	KindAlreadyInFlight:     http.StatusConflict,
	KindRateLimited:         http.StatusTooManyRequests,
	KindInternal:            http.StatusInternalServerError,
	KindProviderUnavailable: http.StatusBadGateway,
}

// ServiceError is the sum type components raise at their boundary.
type ServiceError struct {
	Kind       Kind
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails attaches a detail key/value and returns the same error for chaining.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New builds a ServiceError of the given kind with the table-default HTTP status.
func New(kind Kind, message string) *ServiceError {
	return &ServiceError{Kind: kind, Message: message, HTTPStatus: statusByKind[kind]}
}

// Wrap builds a ServiceError carrying an underlying cause. The cause is never
// surfaced to the client; it is for server-side logging only.
func Wrap(kind Kind, message string, err error) *ServiceError {
	return &ServiceError{Kind: kind, Message: message, HTTPStatus: statusByKind[kind], Err: err}
}

// As extracts a *ServiceError from an error chain.
func As(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// HTTPStatusFor returns the mapped status for any error, defaulting to 500.
func HTTPStatusFor(err error) int {
	if se := As(err); se != nil {
		return se.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Convenience constructors, one per taxonomy row (spec §7).

func Unauthenticated(msg string) *ServiceError    { return New(KindUnauthenticated, msg) }
func TokenMissing() *ServiceError                 { return New(KindTokenMissing, "capability token missing") }
func TokenInvalid(err error) *ServiceError        { return Wrap(KindTokenInvalid, "capability token invalid", err) }
func TokenExpired() *ServiceError                 { return New(KindTokenExpired, "capability token expired") }
func TokenWrongAudience(want, got string) *ServiceError {
	return New(KindTokenWrongAudience, "capability token has wrong audience").
		WithDetails("want", want).WithDetails("got", got)
}
func TokenWrongSession() *ServiceError {
	return New(KindTokenWrongSession, "capability token is not bound to this session")
}
func TokenAlreadyUsed() *ServiceError {
	return New(KindTokenAlreadyUsed, "capability token already consumed")
}
func InvalidState(current, required string) *ServiceError {
	return New(KindInvalidState, "operation not allowed in current session state").
		WithDetails("current", current).WithDetails("required", required)
}
func ChainBroken(seq int64, hash string) *ServiceError {
	return New(KindChainBroken, "anti-cheat event batch failed chain verification").
		WithDetails("seq", seq).WithDetails("hash", hash)
}
func NotFound(resource, id string) *ServiceError {
	return New(KindNotFound, "resource not found").WithDetails("resource", resource).WithDetails("id", id)
}
func AlreadyExists(resource, id string) *ServiceError {
	return New(KindAlreadyExists, "resource already exists").WithDetails("resource", resource).WithDetails("id", id)
}
func ValidationFailed(field, reason string) *ServiceError {
	return New(KindValidationFailed, "validation failed").WithDetails("field", field).WithDetails("reason", reason)
}
func AlreadyInFlight() *ServiceError {
	return New(KindAlreadyInFlight, "a request of this kind is already in flight for this session")
}
func RateLimited() *ServiceError { return New(KindRateLimited, "rate limit exceeded") }
func Internal(msg string, err error) *ServiceError { return Wrap(KindInternal, msg, err) }
func ProviderUnavailable(err error) *ServiceError {
	return Wrap(KindProviderUnavailable, "ai provider unavailable", err)
}
