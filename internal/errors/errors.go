// Package errors defines the framework's closed error taxonomy.
//
// Every failure that crosses a package boundary is either an *AppError or is
// classified into one on its way out. Business modules return ordinary errors;
// the dispatch layer calls Classify to shape the response.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies the failure class. The set is closed; classification maps
// anything unrecognised to KindUnknown.
type Kind string

const (
	KindDatabase       Kind = "database"
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindRateLimit      Kind = "rate_limit"
	KindUpstream       Kind = "upstream"
	KindNetwork        Kind = "network"
	KindUnknown        Kind = "unknown"
)

// Stable error codes surfaced in response envelopes.
const (
	CodeMissingToken      = "MISSING_TOKEN"
	CodeTokenExpired      = "TOKEN_EXPIRED"
	CodeMalformedToken    = "MALFORMED_TOKEN"
	CodeInvalidToken      = "INVALID_TOKEN"
	CodeAuthRequired      = "AUTH_REQUIRED"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = "NOT_FOUND"
	CodeValidation        = "VALIDATION_ERROR"
	CodeRateLimited       = "RATE_LIMIT_EXCEEDED"
	CodeDuplicateEntry    = "DUPLICATE_ENTRY"
	CodeForeignKey        = "FOREIGN_KEY_VIOLATION"
	CodeNotNull           = "NOT_NULL_VIOLATION"
	CodeUnknownColumn     = "UNKNOWN_COLUMN"
	CodeUnknownTable      = "UNKNOWN_TABLE"
	CodeDatabase          = "DATABASE_ERROR"
	CodeUpstream          = "UPSTREAM_SERVICE_ERROR"
	CodeNetwork           = "NETWORK_ERROR"
	CodeInternal          = "INTERNAL_ERROR"
	CodeMiddlewareFailure = "MIDDLEWARE_ERROR"
)

// Sentinel errors for errors.Is checks across package boundaries.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrRateLimited  = errors.New("rate limited")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal error")
)

// FieldError carries one field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// AppError is the structured error value used throughout the framework.
// Kind drives classification, Code and HTTPStatus drive the response envelope,
// Operational marks failures that are safe to surface verbatim.
type AppError struct {
	Kind        Kind
	Code        string
	Message     string
	HTTPStatus  int
	Operational bool
	Fields      []FieldError
	Details     map[string]any
	Err         error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.sentinel()
}

// Is lets AppErrors match both their wrapped cause and the kind sentinel.
func (e *AppError) Is(target error) bool {
	return target == e.sentinel()
}

func (e *AppError) sentinel() error {
	switch e.Kind {
	case KindNotFound:
		return ErrNotFound
	case KindAuthentication:
		return ErrUnauthorized
	case KindAuthorization:
		return ErrForbidden
	case KindValidation:
		return ErrInvalidInput
	case KindRateLimit:
		return ErrRateLimited
	case KindDatabase:
		if e.Code == CodeDuplicateEntry {
			return ErrConflict
		}
		return ErrInternal
	default:
		return ErrInternal
	}
}

// WithDetails attaches a key/value pair for the response body or logs.
func (e *AppError) WithDetails(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// --- Constructors -----------------------------------------------------------

// Validation builds a client-correctable input error.
func Validation(message string, fields ...FieldError) *AppError {
	return &AppError{
		Kind:        KindValidation,
		Code:        CodeValidation,
		Message:     message,
		HTTPStatus:  http.StatusBadRequest,
		Operational: true,
		Fields:      fields,
	}
}

// Required is the most common validation failure.
func Required(field string) *AppError {
	return Validation(
		fmt.Sprintf("%s is required", field),
		FieldError{Field: field, Message: "is required"},
	)
}

// NotFound reports a missing resource without leaking what layer missed.
func NotFound(message string) *AppError {
	if message == "" {
		message = "not found"
	}
	return &AppError{
		Kind:        KindNotFound,
		Code:        CodeNotFound,
		Message:     message,
		HTTPStatus:  http.StatusNotFound,
		Operational: true,
	}
}

// Unauthorized builds a generic authentication failure.
func Unauthorized(message string) *AppError {
	return &AppError{
		Kind:        KindAuthentication,
		Code:        CodeInvalidToken,
		Message:     message,
		HTTPStatus:  http.StatusUnauthorized,
		Operational: true,
	}
}

// MissingToken reports an absent bearer credential.
func MissingToken() *AppError {
	e := Unauthorized("missing token")
	e.Code = CodeMissingToken
	return e
}

// TokenExpired reports an expired bearer credential.
func TokenExpired() *AppError {
	e := Unauthorized("token expired")
	e.Code = CodeTokenExpired
	return e
}

// MalformedToken reports a credential that could not be parsed.
func MalformedToken(err error) *AppError {
	e := Unauthorized("malformed token")
	e.Code = CodeMalformedToken
	e.Err = err
	return e
}

// InvalidToken reports a credential that parsed but failed verification.
func InvalidToken(err error) *AppError {
	e := Unauthorized("invalid token")
	e.Err = err
	return e
}

// AuthRequired reports a route that needs a principal the request never
// established. Distinct from MissingToken: this fires from the authorization
// gate when roles are configured on an otherwise unauthenticated route.
func AuthRequired() *AppError {
	e := Unauthorized("authentication required")
	e.Code = CodeAuthRequired
	return e
}

// Forbidden builds an authorization failure.
func Forbidden(message string) *AppError {
	return &AppError{
		Kind:        KindAuthorization,
		Code:        CodeForbidden,
		Message:     message,
		HTTPStatus:  http.StatusForbidden,
		Operational: true,
	}
}

// RateLimited reports a breached rate limit. retryAfterSeconds feeds the
// Retry-After hint on the response.
func RateLimited(limit int, window string, retryAfterSeconds int) *AppError {
	e := &AppError{
		Kind:        KindRateLimit,
		Code:        CodeRateLimited,
		Message:     fmt.Sprintf("rate limit exceeded: %d requests per %s", limit, window),
		HTTPStatus:  http.StatusTooManyRequests,
		Operational: true,
	}
	return e.WithDetails("retryAfter", retryAfterSeconds)
}

// Database builds a store error with an explicit code and status. The storage
// layer uses this for translated constraint violations.
func Database(code, message string, status int, err error) *AppError {
	return &AppError{
		Kind:       KindDatabase,
		Code:       code,
		Message:    message,
		HTTPStatus: status,
		// Constraint violations are client-correctable and safe to surface.
		Operational: status < http.StatusInternalServerError || code == CodeDuplicateEntry,
		Err:         err,
	}
}

// Upstream reports a failed call to a dependent service.
func Upstream(message string, err error) *AppError {
	return &AppError{
		Kind:       KindUpstream,
		Code:       CodeUpstream,
		Message:    message,
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// Network reports a transport-level failure.
func Network(message string, err error) *AppError {
	return &AppError{
		Kind:       KindNetwork,
		Code:       CodeNetwork,
		Message:    message,
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// Internal builds a non-operational server fault.
func Internal(message string, err error) *AppError {
	return &AppError{
		Kind:       KindUnknown,
		Code:       CodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// --- Inspection helpers -----------------------------------------------------

// GetAppError extracts an *AppError from an error chain, or nil.
func GetAppError(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsUnauthorized reports whether err is an authentication failure.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }

// IsForbidden reports whether err is an authorization failure.
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

// IsConflict reports whether err is a uniqueness conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsRateLimited reports whether err is a rate-limit rejection.
func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }
