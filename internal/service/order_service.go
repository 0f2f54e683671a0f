package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyonboard/internal/domain"
	"github.com/alanyoungcy/polyonboard/internal/metrics"
)

// OrderPoster submits signed orders to the order book.
type OrderPoster interface {
	PostOrder(ctx context.Context, address common.Address, creds domain.TradingCredentials, order domain.SignedOrder, orderType domain.OrderType) (domain.OrderResult, error)
}

// OrderSigner signs exchange orders with the EOA key.
type OrderSigner interface {
	Address() common.Address
	SignOrder(o domain.SignedOrder, exchange common.Address) (string, error)
}

// CredentialManager reads and resets trading credentials.
type CredentialManager interface {
	Current(ctx context.Context, funder common.Address) (domain.TradingCredentials, error)
	Reset(ctx context.Context, funder common.Address, rep *Reporter) (domain.TradingCredentials, error)
}

// BalanceProvider reports the USDC available to fund new orders.
type BalanceProvider interface {
	Available(ctx context.Context, funder common.Address) (decimal.Decimal, error)
}

// OrderConfig holds the exchange addresses and per-signer throttling.
type OrderConfig struct {
	Exchange        common.Address
	NegRiskExchange common.Address
	Funder          common.Address
	FeeRateBps      int64
	RateLimit       int
	RateWindow      time.Duration
}

// attempt is the submission counter. Only firstAttempt has a successor, so
// an order can be submitted at most twice.
type attempt int

const (
	firstAttempt attempt = iota + 1
	retryAttempt
)

func (a attempt) next() (attempt, bool) {
	if a == firstAttempt {
		return retryAttempt, true
	}
	return a, false
}

// OrderService validates, signs and submits limit orders. limiter, bus, blob
// and audit may be nil.
type OrderService struct {
	poster   OrderPoster
	signer   OrderSigner
	creds    CredentialManager
	balances BalanceProvider
	cfg      OrderConfig
	limiter  domain.RateLimiter
	bus      domain.SignalBus
	blob     domain.BlobWriter
	audit    domain.AuditStore
	salt     func() int64
	now      func() time.Time
	logger   *slog.Logger
}

// NewOrderService creates an OrderService with all required dependencies.
func NewOrderService(
	poster OrderPoster,
	signer OrderSigner,
	creds CredentialManager,
	balances BalanceProvider,
	cfg OrderConfig,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	blob domain.BlobWriter,
	audit domain.AuditStore,
	logger *slog.Logger,
) *OrderService {
	if cfg.Funder == (common.Address{}) {
		cfg.Funder = signer.Address()
	}
	return &OrderService{
		poster:   poster,
		signer:   signer,
		creds:    creds,
		balances: balances,
		cfg:      cfg,
		limiter:  limiter,
		bus:      bus,
		blob:     blob,
		audit:    audit,
		salt:     func() int64 { return rand.Int64N(1 << 53) },
		now:      time.Now,
		logger:   logger.With(slog.String("component", "order_service")),
	}
}

// Funder returns the address that funds and makes every order.
func (s *OrderService) Funder() common.Address { return s.cfg.Funder }

// SubmitOrder validates req, checks the funder's balance, then signs and
// submits a new order. An authentication rejection, whether from the balance
// preflight or from the order endpoint, triggers one credential reset; the
// preflight is then repeated and a freshly built order submitted. A second
// rejection is returned as *domain.CredentialExpiredError. At most two orders
// are ever posted.
func (s *OrderService) SubmitOrder(ctx context.Context, req domain.OrderRequest, rep *Reporter) (domain.OrderResult, error) {
	if err := ValidateOrder(req); err != nil {
		metrics.OrdersTotal.WithLabelValues("invalid", string(req.Side)).Inc()
		return domain.OrderResult{}, err
	}
	if req.Type == "" {
		req.Type = domain.OrderTypeGTC
	}

	signer := s.signer.Address()
	if s.limiter != nil && s.cfg.RateLimit > 0 {
		allowed, err := s.limiter.Allow(ctx, "orders:"+signer.Hex(), s.cfg.RateLimit, s.cfg.RateWindow)
		if err != nil {
			return domain.OrderResult{}, fmt.Errorf("order_service: rate limiter: %w", err)
		}
		if !allowed {
			return domain.OrderResult{}, fmt.Errorf("order_service: %w", domain.ErrRateLimited)
		}
	}

	var creds domain.TradingCredentials
	at := firstAttempt
	for {
		result, err := s.attempt(ctx, req, creds, rep)
		if err == nil {
			result.Attempts = int(at)
			result.CredentialsReset = at == retryAttempt
			s.record(ctx, req, result)
			return result, nil
		}
		if !errors.Is(err, domain.ErrUnauthorized) {
			var ierr *domain.InsufficientBalanceError
			if !errors.As(err, &ierr) {
				metrics.OrdersTotal.WithLabelValues("failed", string(req.Side)).Inc()
			}
			return domain.OrderResult{}, err
		}

		next, ok := at.next()
		if !ok {
			metrics.OrdersTotal.WithLabelValues("credential_expired", string(req.Side)).Inc()
			return domain.OrderResult{}, &domain.CredentialExpiredError{Attempts: int(at), Cause: err}
		}

		s.logger.WarnContext(ctx, "order_service: credentials rejected, resetting",
			slog.String("token_id", req.TokenID),
			slog.String("error", err.Error()),
		)
		rep.Emit(domain.StageRetrying, "credentials rejected, issuing new API key", nil)
		if creds, err = s.creds.Reset(ctx, s.cfg.Funder, rep); err != nil {
			metrics.OrdersTotal.WithLabelValues("failed", string(req.Side)).Inc()
			return domain.OrderResult{}, fmt.Errorf("order_service: reset credentials: %w", err)
		}
		at = next
	}
}

// attempt runs the balance preflight and, if it passes, submits one order.
// Zero creds means the current credentials are looked up.
func (s *OrderService) attempt(ctx context.Context, req domain.OrderRequest, creds domain.TradingCredentials, rep *Reporter) (domain.OrderResult, error) {
	rep.Emit(domain.StageChecking, "checking available balance", nil)
	available, err := s.balances.Available(ctx, s.cfg.Funder)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("order_service: balance preflight: %w", err)
	}
	required := req.Notional()
	if available.LessThan(required) {
		metrics.OrdersTotal.WithLabelValues("insufficient_balance", string(req.Side)).Inc()
		return domain.OrderResult{}, &domain.InsufficientBalanceError{Available: available, Required: required}
	}

	if !creds.Valid() {
		if creds, err = s.creds.Current(ctx, s.cfg.Funder); err != nil {
			return domain.OrderResult{}, fmt.Errorf("order_service: credentials: %w", err)
		}
	}
	return s.submit(ctx, req, creds, rep)
}

// submit builds, signs and posts one order.
func (s *OrderService) submit(ctx context.Context, req domain.OrderRequest, creds domain.TradingCredentials, rep *Reporter) (domain.OrderResult, error) {
	signer := s.signer.Address()
	order := buildOrder(req, signer, s.cfg.Funder, s.salt(), s.cfg.FeeRateBps)

	exchange := s.cfg.Exchange
	if req.NegRisk {
		exchange = s.cfg.NegRiskExchange
	}

	rep.Emit(domain.StageSigning, "signing order", nil)
	sig, err := s.signer.SignOrder(order, exchange)
	if err != nil {
		return domain.OrderResult{}, &domain.SigningRejectedError{Op: "order", Cause: err}
	}
	order.Signature = sig

	rep.Emit(domain.StageSubmitting, "submitting order", map[string]any{
		"side":  string(req.Side),
		"price": req.Price.String(),
		"size":  req.Size.String(),
	})
	result, err := s.poster.PostOrder(ctx, signer, creds, order, req.Type)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("order_service: post order: %w", err)
	}
	result.SubmittedAt = s.now().UTC()
	return result, nil
}

// orderReceipt is the JSON document stored for every accepted order.
type orderReceipt struct {
	OrderID     string              `json:"orderId"`
	Status      string              `json:"status"`
	Funder      string              `json:"funder"`
	Signer      string              `json:"signer"`
	Request     domain.OrderRequest `json:"request"`
	Attempts    int                 `json:"attempts"`
	SubmittedAt time.Time           `json:"submittedAt"`
}

// record publishes, audits and archives an accepted order. Failures are
// logged and never change the outcome.
func (s *OrderService) record(ctx context.Context, req domain.OrderRequest, result domain.OrderResult) {
	metrics.OrdersTotal.WithLabelValues("submitted", string(req.Side)).Inc()
	s.logger.InfoContext(ctx, "order_service: order submitted",
		slog.String("order_id", result.OrderID),
		slog.String("token_id", req.TokenID),
		slog.String("side", string(req.Side)),
		slog.String("status", result.Status),
		slog.Int("attempts", result.Attempts),
	)

	receipt := orderReceipt{
		OrderID:     result.OrderID,
		Status:      result.Status,
		Funder:      s.cfg.Funder.Hex(),
		Signer:      s.signer.Address().Hex(),
		Request:     req,
		Attempts:    result.Attempts,
		SubmittedAt: result.SubmittedAt,
	}
	payload, err := json.Marshal(receipt)
	if err != nil {
		s.logger.WarnContext(ctx, "order_service: marshal receipt failed", slog.String("error", err.Error()))
		return
	}

	if s.bus != nil {
		if err := s.bus.Publish(ctx, OrdersChannel, payload); err != nil {
			s.logger.WarnContext(ctx, "order_service: publish event failed",
				slog.String("order_id", result.OrderID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.audit != nil {
		if err := s.audit.Log(ctx, "order_submitted", s.cfg.Funder.Hex(), map[string]any{
			"order_id": result.OrderID,
			"token_id": req.TokenID,
			"side":     string(req.Side),
			"price":    req.Price.String(),
			"size":     req.Size.String(),
			"attempts": result.Attempts,
		}); err != nil {
			s.logger.WarnContext(ctx, "order_service: audit log failed",
				slog.String("order_id", result.OrderID),
				slog.String("error", err.Error()),
			)
		}
	}

	if result.OrderID != "" {
		writeReceipt(ctx, s.blob, s.logger, domain.ReceiptPath(domain.ReceiptOrders, result.SubmittedAt, result.OrderID), receipt)
	}
}
