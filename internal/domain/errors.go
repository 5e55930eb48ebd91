package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Stable machine-readable error codes carried on every API error envelope.
// Codes are contract: clients switch on them, so the set only ever grows.
const (
	CodeInvalidParameter    = "INVALID_PARAMETER"
	CodeTickerNotFound      = "TICKER_NOT_FOUND"
	CodeClientNotFound      = "CLIENT_NOT_FOUND"
	CodeCalculationError    = "CALCULATION_ERROR"
	CodeExternalUnavailable = "EXTERNAL_API_UNAVAILABLE"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeRateLimited         = "RATE_LIMIT_EXCEEDED"
)

// Sentinel errors for the conditions the facade maps to error codes.
var (
	ErrTickerNotFound      = errors.New("ticker not found")
	ErrClientNotFound      = errors.New("client not found or inactive")
	ErrUpstreamUnavailable = errors.New("external data unavailable")
	ErrCalculation         = errors.New("calculation failed")
)

// ValidationError rejects a malformed request parameter before any work runs
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validation builds a field-level validation error
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrorCode maps an error chain to its stable code. Unknown errors are
// reported as calculation errors rather than leaking internals.
func ErrorCode(err error) string {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return CodeInvalidParameter
	case errors.Is(err, ErrTickerNotFound):
		return CodeTickerNotFound
	case errors.Is(err, ErrClientNotFound):
		return CodeClientNotFound
	case errors.Is(err, ErrUpstreamUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return CodeExternalUnavailable
	default:
		return CodeCalculationError
	}
}

// HTTPStatus maps a stable error code to its transport status
func HTTPStatus(code string) int {
	switch code {
	case CodeInvalidParameter:
		return http.StatusBadRequest
	case CodeTickerNotFound, CodeClientNotFound:
		return http.StatusNotFound
	case CodeExternalUnavailable:
		return http.StatusServiceUnavailable
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
