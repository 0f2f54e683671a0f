package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyonboard/internal/domain"
)

// usdcDecimals is the settlement asset's fixed-point precision.
const usdcDecimals = 6

// TokenBalanceReader reads ERC-20 balances.
type TokenBalanceReader interface {
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// CollateralReader reads collateral already deposited with the exchange.
type CollateralReader interface {
	CollateralBalance(ctx context.Context, address common.Address, creds domain.TradingCredentials, sigType domain.SignatureType) (decimal.Decimal, error)
}

// CredentialSource returns the trading credentials for a funder. Cached never
// issues a key and reports domain.ErrNoCredentials when none is held.
type CredentialSource interface {
	Current(ctx context.Context, funder common.Address) (domain.TradingCredentials, error)
	Cached(ctx context.Context, funder common.Address) (domain.TradingCredentials, error)
}

// Balances is the settlement-asset breakdown for a funder, in USDC. When
// ExchangeUnavailable is set the exchange collateral was not read and
// Available covers the on-chain balance only.
type Balances struct {
	Funder              common.Address  `json:"funder"`
	OnChain             decimal.Decimal `json:"onChain"`
	Exchange            decimal.Decimal `json:"exchange"`
	ExchangeUnavailable bool            `json:"exchangeUnavailable,omitempty"`
	Available           decimal.Decimal `json:"available"`
}

// BalanceService combines the wallet's on-chain USDC with its exchange
// collateral.
type BalanceService struct {
	chain  TokenBalanceReader
	clob   CollateralReader
	creds  CredentialSource
	usdc   common.Address
	signer common.Address
	logger *slog.Logger
}

// NewBalanceService creates a BalanceService for orders signed by signer.
func NewBalanceService(chain TokenBalanceReader, clob CollateralReader, creds CredentialSource, usdc, signer common.Address, logger *slog.Logger) *BalanceService {
	return &BalanceService{
		chain:  chain,
		clob:   clob,
		creds:  creds,
		usdc:   usdc,
		signer: signer,
		logger: logger.With(slog.String("component", "balance_service")),
	}
}

// Balances reads both balance sources concurrently without issuing
// credentials. If no credentials are held, or the held ones are rejected, the
// exchange side is reported as unavailable instead of deriving a key.
func (s *BalanceService) Balances(ctx context.Context, funder common.Address) (Balances, error) {
	return s.read(ctx, funder, false)
}

// Available returns the combined balance usable for new orders. Unlike
// Balances it derives credentials when none are held, and a failing read
// fails the preflight; a missing balance is never treated as zero.
func (s *BalanceService) Available(ctx context.Context, funder common.Address) (decimal.Decimal, error) {
	b, err := s.read(ctx, funder, true)
	if err != nil {
		return decimal.Zero, err
	}
	return b.Available, nil
}

func (s *BalanceService) read(ctx context.Context, funder common.Address, derive bool) (Balances, error) {
	b := Balances{Funder: funder}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		raw, err := s.chain.BalanceOf(gctx, s.usdc, funder)
		if err != nil {
			return fmt.Errorf("on-chain: %w", err)
		}
		b.OnChain = decimal.NewFromBigInt(raw, -usdcDecimals)
		return nil
	})
	g.Go(func() error {
		lookup := s.creds.Cached
		if derive {
			lookup = s.creds.Current
		}
		creds, err := lookup(gctx, funder)
		if err == nil {
			b.Exchange, err = s.clob.CollateralBalance(gctx, s.signer, creds, signatureTypeFor(s.signer, funder))
		}
		if err == nil {
			return nil
		}
		if !derive && (errors.Is(err, domain.ErrNoCredentials) || errors.Is(err, domain.ErrUnauthorized)) {
			b.ExchangeUnavailable = true
			return nil
		}
		return fmt.Errorf("exchange: %w", err)
	})
	if err := g.Wait(); err != nil {
		return Balances{}, fmt.Errorf("balance_service: %s: %w", funder.Hex(), err)
	}

	b.Available = b.OnChain.Add(b.Exchange)
	s.logger.DebugContext(ctx, "balance_service: balances read",
		slog.String("funder", funder.Hex()),
		slog.String("available", b.Available.String()),
		slog.Bool("exchange_unavailable", b.ExchangeUnavailable),
	)
	return b, nil
}
