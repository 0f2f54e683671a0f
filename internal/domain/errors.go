package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")
	ErrEmptyBatch    = errors.New("empty meta-transaction batch")
	ErrNoCredentials = errors.New("no trading credentials for scope")
	ErrBuilderAuth   = errors.New("builder attribution rejected")

	ErrRpcExhausted        = errors.New("all rpc endpoints failed")
	ErrValidation          = errors.New("invalid order parameters")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSigningRejected     = errors.New("signing rejected")
	ErrRelayerFailed       = errors.New("relayer transaction failed")
	ErrRelayerTimeout      = errors.New("relayer transaction timed out")
	ErrCredentialExpired   = errors.New("trading credentials expired")
)

// RpcExhaustedError is returned when every configured read endpoint failed.
// Last holds the error reported by the final endpoint tried.
type RpcExhaustedError struct {
	Endpoints int
	Last      error
}

func (e *RpcExhaustedError) Error() string {
	return fmt.Sprintf("%s (%d tried): %v", ErrRpcExhausted, e.Endpoints, e.Last)
}

func (e *RpcExhaustedError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrRpcExhausted}
	}
	return []error{ErrRpcExhausted, e.Last}
}

// ValidationError reports a malformed order parameter. It is raised before
// any network I/O.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InsufficientBalanceError reports a failed balance preflight. Amounts are
// in settlement-asset units (USDC, not minor units).
type InsufficientBalanceError struct {
	Available decimal.Decimal
	Required  decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("%s: available %s, required %s",
		ErrInsufficientBalance, e.Available.StringFixed(2), e.Required.StringFixed(2))
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// SigningRejectedError is returned when the signer declined or failed to
// produce a signature for Op.
type SigningRejectedError struct {
	Op    string
	Cause error
}

func (e *SigningRejectedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", ErrSigningRejected, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", ErrSigningRejected, e.Op, e.Cause)
}

func (e *SigningRejectedError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrSigningRejected}
	}
	return []error{ErrSigningRejected, e.Cause}
}

// RelayerFailedError covers both a rejected submission (TransactionID empty)
// and a job that reached the FAILED state.
type RelayerFailedError struct {
	TransactionID   string
	TransactionHash string
	State           RelayerState
	Cause           error
}

func (e *RelayerFailedError) Error() string {
	switch {
	case e.TransactionID == "" && e.Cause != nil:
		return fmt.Sprintf("%s: submit: %v", ErrRelayerFailed, e.Cause)
	case e.Cause != nil:
		return fmt.Sprintf("%s: job %s (%s): %v", ErrRelayerFailed, e.TransactionID, e.State, e.Cause)
	default:
		return fmt.Sprintf("%s: job %s reached %s", ErrRelayerFailed, e.TransactionID, e.State)
	}
}

func (e *RelayerFailedError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrRelayerFailed}
	}
	return []error{ErrRelayerFailed, e.Cause}
}

// RelayerTimeoutError means polling gave up before the job reached a
// terminal state. The job may still settle later.
type RelayerTimeoutError struct {
	TransactionID string
	Attempts      int
	LastState     RelayerState
	LastErr       error
}

func (e *RelayerTimeoutError) Error() string {
	msg := fmt.Sprintf("%s: job %s still %s after %d polls", ErrRelayerTimeout, e.TransactionID, e.LastState, e.Attempts)
	if e.LastErr != nil {
		msg += fmt.Sprintf(" (last poll error: %v)", e.LastErr)
	}
	return msg
}

func (e *RelayerTimeoutError) Unwrap() error { return ErrRelayerTimeout }

// CredentialExpiredError is the terminal form of an authentication
// rejection from the order book. Attempts counts submissions made.
type CredentialExpiredError struct {
	Attempts int
	Cause    error
}

func (e *CredentialExpiredError) Error() string {
	return fmt.Sprintf("%s after %d attempt(s): %v", ErrCredentialExpired, e.Attempts, e.Cause)
}

func (e *CredentialExpiredError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrCredentialExpired}
	}
	return []error{ErrCredentialExpired, e.Cause}
}
