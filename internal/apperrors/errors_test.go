package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/polyonboard/internal/domain"
)

func TestFrom_MapsTaxonomy(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      ErrorType
		status    int
		retryable bool
	}{
		{"rpc", &domain.RpcExhaustedError{Endpoints: 2, Last: errors.New("eof")}, ErrRpcExhausted, http.StatusBadGateway, true},
		{"validation", &domain.ValidationError{Field: "size", Reason: "must be greater than 0"}, ErrValidation, http.StatusBadRequest, false},
		{"balance", &domain.InsufficientBalanceError{Available: decimal.RequireFromString("4.99"), Required: decimal.RequireFromString("5")}, ErrInsufficientBalance, http.StatusUnprocessableEntity, false},
		{"signing", &domain.SigningRejectedError{Op: "order"}, ErrSigningRejected, http.StatusForbidden, false},
		{"relayer failed", &domain.RelayerFailedError{TransactionID: "tx", State: domain.RelayerStateFailed}, ErrRelayerFailed, http.StatusBadGateway, false},
		{"relayer timeout", &domain.RelayerTimeoutError{TransactionID: "tx", Attempts: 3}, ErrRelayerTimeout, http.StatusGatewayTimeout, true},
		{"credential", &domain.CredentialExpiredError{Attempts: 2, Cause: domain.ErrUnauthorized}, ErrCredentialExpired, http.StatusUnauthorized, false},
		{"unauthorized", fmt.Errorf("clob: %w", domain.ErrUnauthorized), ErrAuthFailed, http.StatusUnauthorized, false},
		{"builder auth", fmt.Errorf("remote sign: %w", domain.ErrBuilderAuth), ErrBuilderAuth, http.StatusBadGateway, false},
		{"no credentials", fmt.Errorf("creds: %w", domain.ErrNoCredentials), ErrNotFound, http.StatusNotFound, false},
		{"unknown", errors.New("boom"), ErrInternal, http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := From(fmt.Errorf("service: op: %w", tt.err))
			assert.Equal(t, tt.code, e.Type)
			assert.Equal(t, tt.status, e.HTTPStatus)
			assert.Equal(t, tt.retryable, e.Retryable)
			assert.ErrorIs(t, e, tt.err)
		})
	}
}

func TestFrom_CarriesNumericContext(t *testing.T) {
	e := From(&domain.InsufficientBalanceError{
		Available: decimal.RequireFromString("4.99"),
		Required:  decimal.RequireFromString("5"),
	})
	assert.Equal(t, "4.99", e.Detail["available"])
	assert.Equal(t, "5.00", e.Detail["required"])

	e = From(&domain.CredentialExpiredError{Attempts: 2})
	assert.Equal(t, 2, e.Detail["attempts"])
}

func TestFrom_PassesThroughAppError(t *testing.T) {
	orig := NewInvalidRequest("bad json")
	assert.Same(t, orig, From(fmt.Errorf("wrap: %w", orig)))
	assert.Nil(t, From(nil))
}
