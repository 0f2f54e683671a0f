package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedErrorsMatchSentinelsThroughWraps(t *testing.T) {
	transport := errors.New("dial tcp: connection refused")

	cases := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"rpc exhausted", &RpcExhaustedError{Endpoints: 2, Last: transport}, ErrRpcExhausted},
		{"validation", &ValidationError{Field: "price", Reason: "out of range"}, ErrValidation},
		{"balance", &InsufficientBalanceError{Available: decimal.RequireFromString("1"), Required: decimal.RequireFromString("2")}, ErrInsufficientBalance},
		{"signing", &SigningRejectedError{Op: "order"}, ErrSigningRejected},
		{"relayer failed", &RelayerFailedError{TransactionID: "tx", State: RelayerStateFailed}, ErrRelayerFailed},
		{"relayer timeout", &RelayerTimeoutError{TransactionID: "tx", Attempts: 3, LastState: RelayerStatePending}, ErrRelayerTimeout},
		{"credential expired", &CredentialExpiredError{Attempts: 2, Cause: ErrUnauthorized}, ErrCredentialExpired},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("service: op: %w", tc.err)
			assert.ErrorIs(t, wrapped, tc.sentinel)
		})
	}
}

func TestRpcExhaustedError_CarriesLastError(t *testing.T) {
	last := errors.New("endpoint B: 502")
	err := fmt.Errorf("chain: allowance: %w", &RpcExhaustedError{Endpoints: 2, Last: last})

	assert.ErrorIs(t, err, last)

	var exhausted *RpcExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, exhausted.Endpoints)
}

func TestInsufficientBalanceError_Message(t *testing.T) {
	err := &InsufficientBalanceError{
		Available: decimal.RequireFromString("4.99"),
		Required:  decimal.RequireFromString("5"),
	}
	assert.Equal(t, "insufficient balance: available 4.99, required 5.00", err.Error())
}

func TestCredentialExpiredError_KeepsUnauthorizedCause(t *testing.T) {
	err := &CredentialExpiredError{Attempts: 2, Cause: fmt.Errorf("clob: post order: %w", ErrUnauthorized)}
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, err.Error(), "after 2 attempt(s)")
}
