// Package apperrors maps engine errors onto the stable codes, suggestions and
// HTTP statuses the API returns to clients.
package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/alanyoungcy/polyonboard/internal/domain"
)

type ErrorType string

const (
	ErrRpcExhausted        ErrorType = "RPC_EXHAUSTED"
	ErrValidation          ErrorType = "VALIDATION_ERROR"
	ErrInsufficientBalance ErrorType = "INSUFFICIENT_BALANCE"
	ErrSigningRejected     ErrorType = "SIGNING_REJECTED"
	ErrRelayerFailed       ErrorType = "RELAYER_FAILED"
	ErrRelayerTimeout      ErrorType = "RELAYER_TIMEOUT"
	ErrCredentialExpired   ErrorType = "CREDENTIAL_EXPIRED"
	ErrAuthFailed          ErrorType = "AUTH_FAILED"
	ErrBuilderAuth         ErrorType = "BUILDER_AUTH_FAILED"
	ErrRateLimited         ErrorType = "RATE_LIMITED"
	ErrInvalidRequest      ErrorType = "INVALID_REQUEST"
	ErrNotFound            ErrorType = "NOT_FOUND"
	ErrConflict            ErrorType = "CONFLICT"
	ErrCancelled           ErrorType = "CANCELLED"
	ErrInternal            ErrorType = "INTERNAL_ERROR"
)

// AppError is the client-facing form of an error.
type AppError struct {
	Type       ErrorType      `json:"code"`
	Message    string         `json:"message"`
	Suggestion string         `json:"suggestion,omitempty"`
	Retryable  bool           `json:"retryable"`
	Detail     map[string]any `json:"detail,omitempty"`
	HTTPStatus int            `json:"-"`
	Cause      error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
		Retryable:  mapTypeToRetryable(errType),
	}
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

// From classifies err. An *AppError anywhere in the chain is returned as is.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var (
		rpcErr     *domain.RpcExhaustedError
		valErr     *domain.ValidationError
		balErr     *domain.InsufficientBalanceError
		failErr    *domain.RelayerFailedError
		timeoutErr *domain.RelayerTimeoutError
		credErr    *domain.CredentialExpiredError
	)
	switch {
	case errors.As(err, &valErr):
		e := New(ErrValidation, err.Error(), err)
		e.Detail = map[string]any{"field": valErr.Field, "reason": valErr.Reason}
		return e
	case errors.As(err, &balErr):
		e := New(ErrInsufficientBalance, err.Error(), err)
		e.Detail = map[string]any{
			"available": balErr.Available.StringFixed(2),
			"required":  balErr.Required.StringFixed(2),
		}
		return e
	case errors.As(err, &credErr):
		e := New(ErrCredentialExpired, err.Error(), err)
		e.Detail = map[string]any{"attempts": credErr.Attempts}
		return e
	case errors.As(err, &timeoutErr):
		e := New(ErrRelayerTimeout, err.Error(), err)
		e.Detail = map[string]any{
			"transactionId": timeoutErr.TransactionID,
			"attempts":      timeoutErr.Attempts,
			"lastState":     timeoutErr.LastState,
		}
		return e
	case errors.As(err, &failErr):
		e := New(ErrRelayerFailed, err.Error(), err)
		if failErr.TransactionID != "" {
			e.Detail = map[string]any{"transactionId": failErr.TransactionID, "state": failErr.State}
		}
		return e
	case errors.Is(err, domain.ErrSigningRejected):
		return New(ErrSigningRejected, err.Error(), err)
	case errors.As(err, &rpcErr):
		e := New(ErrRpcExhausted, err.Error(), err)
		e.Detail = map[string]any{"endpoints": rpcErr.Endpoints}
		return e
	case errors.Is(err, domain.ErrRateLimited):
		return New(ErrRateLimited, err.Error(), err)
	case errors.Is(err, domain.ErrBuilderAuth):
		return New(ErrBuilderAuth, err.Error(), err)
	case errors.Is(err, domain.ErrUnauthorized):
		return New(ErrAuthFailed, err.Error(), err)
	case errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, domain.ErrLockHeld):
		return New(ErrConflict, err.Error(), err)
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNoCredentials):
		return New(ErrNotFound, err.Error(), err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return New(ErrCancelled, err.Error(), err)
	default:
		return New(ErrInternal, err.Error(), err)
	}
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrValidation, ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrAuthFailed, ErrCredentialExpired:
		return http.StatusUnauthorized
	case ErrSigningRejected:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	case ErrInsufficientBalance:
		return http.StatusUnprocessableEntity
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrRpcExhausted, ErrRelayerFailed, ErrBuilderAuth:
		return http.StatusBadGateway
	case ErrRelayerTimeout, ErrCancelled:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrRpcExhausted:
		return "All RPC endpoints failed. Try again later or add endpoints."
	case ErrValidation:
		return "Correct the order parameters and resubmit."
	case ErrInsufficientBalance:
		return "Deposit USDC to the trading wallet or reduce the order size."
	case ErrSigningRejected:
		return "Approve the signature request to continue."
	case ErrRelayerFailed:
		return "The transaction reverted or was rejected. Check wallet state before retrying."
	case ErrRelayerTimeout:
		return "The transaction may still settle. Check its status before resubmitting."
	case ErrCredentialExpired:
		return "Reset trading credentials and check the account's API access."
	case ErrAuthFailed:
		return "Check API keys and signatures."
	case ErrBuilderAuth:
		return "Refresh the bearer token used for the remote builder signer."
	case ErrRateLimited:
		return "Slow down and retry."
	default:
		return ""
	}
}

func mapTypeToRetryable(t ErrorType) bool {
	switch t {
	case ErrRpcExhausted, ErrRateLimited, ErrRelayerTimeout:
		return true
	default:
		return false
	}
}
