package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode_Mapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code string
	}{
		{"validation", Validation("ticker", "must match ^[A-Z]{1,5}$"), CodeInvalidParameter},
		{"ticker_not_found", ErrTickerNotFound, CodeTickerNotFound},
		{"client_not_found", ErrClientNotFound, CodeClientNotFound},
		{"upstream", ErrUpstreamUnavailable, CodeExternalUnavailable},
		{"deadline", context.DeadlineExceeded, CodeExternalUnavailable},
		{"calculation", ErrCalculation, CodeCalculationError},
		{"unknown", errors.New("boom"), CodeCalculationError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, ErrorCode(tc.err))
		})
	}
}

func TestErrorCode_WrappedChains(t *testing.T) {
	wrapped := fmt.Errorf("resolve AAPL: %w", ErrUpstreamUnavailable)
	assert.Equal(t, CodeExternalUnavailable, ErrorCode(wrapped))

	deep := fmt.Errorf("facade: %w", fmt.Errorf("repo: %w", ErrTickerNotFound))
	assert.Equal(t, CodeTickerNotFound, ErrorCode(deep))

	ve := fmt.Errorf("calculate: %w", Validation("loan_days", "must be >= 1"))
	assert.Equal(t, CodeInvalidParameter, ErrorCode(ve))
	assert.True(t, IsValidation(ve))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(CodeInvalidParameter))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(CodeTickerNotFound))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(CodeClientNotFound))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(CodeExternalUnavailable))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(CodeUnauthorized))
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(CodeRateLimited))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(CodeCalculationError))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus("SOMETHING_ELSE"))
}

func TestValidationError_Message(t *testing.T) {
	err := Validation("position_value", "must be positive")
	assert.EqualError(t, err, "invalid position_value: must be positive")
}
