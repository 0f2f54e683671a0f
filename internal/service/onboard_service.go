package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyonboard/internal/domain"
)

// WalletDeployer resolves and deploys the smart wallet.
type WalletDeployer interface {
	SmartWallet(ctx context.Context) (domain.SmartWallet, error)
	Deploy(ctx context.Context, rep *Reporter) (domain.DeployResult, error)
}

// Approver checks and grants the exchange approvals.
type Approver interface {
	CheckApprovals(ctx context.Context, wallet common.Address) (domain.ApprovalRecord, error)
	ApproveAll(ctx context.Context, wallet common.Address, current *domain.ApprovalRecord, rep *Reporter) (domain.ApproveResult, error)
}

// CredentialDeriver issues trading credentials for a funder.
type CredentialDeriver interface {
	Derive(ctx context.Context, funder common.Address, rep *Reporter) (domain.TradingCredentials, error)
}

// BalanceReader reports a funder's settlement-asset balances.
type BalanceReader interface {
	Balances(ctx context.Context, funder common.Address) (Balances, error)
}

// OnboardResult summarises a full onboarding run.
type OnboardResult struct {
	Wallet      domain.SmartWallet     `json:"wallet"`
	Deploy      domain.DeployResult    `json:"deploy"`
	Approvals   domain.ApproveResult   `json:"approvals"`
	Credentials domain.CredentialScope `json:"credentials"`
	APIKey      string                 `json:"apiKey"`
}

// Status is the read-only account state reported by the check mode.
type Status struct {
	Wallet      domain.SmartWallet    `json:"wallet"`
	Approvals   domain.ApprovalRecord `json:"approvals"`
	AllApproved bool                  `json:"allApproved"`
	Balances    *Balances             `json:"balances,omitempty"`
}

// OnboardService runs the account setup steps in order: deploy the smart
// wallet, grant the exchange approvals, then derive trading credentials
// scoped to the wallet. Each step is idempotent, so a failed run can simply
// be repeated.
type OnboardService struct {
	wallets   WalletDeployer
	approvals Approver
	creds     CredentialDeriver
	balances  BalanceReader
	logger    *slog.Logger
}

// NewOnboardService creates an OnboardService. balances may be nil, in which
// case Status omits them.
func NewOnboardService(wallets WalletDeployer, approvals Approver, creds CredentialDeriver, balances BalanceReader, logger *slog.Logger) *OnboardService {
	return &OnboardService{
		wallets:   wallets,
		approvals: approvals,
		creds:     creds,
		balances:  balances,
		logger:    logger.With(slog.String("component", "onboard_service")),
	}
}

// Onboard runs every setup step. The first failing step ends the run.
func (s *OnboardService) Onboard(ctx context.Context, rep *Reporter) (OnboardResult, error) {
	deploy, err := s.wallets.Deploy(ctx, rep)
	if err != nil {
		return OnboardResult{}, fmt.Errorf("onboard_service: deploy: %w", err)
	}
	wallet := deploy.Wallet
	res := OnboardResult{Wallet: wallet, Deploy: deploy}

	res.Approvals, err = s.approvals.ApproveAll(ctx, wallet.Address, nil, rep)
	if err != nil {
		return res, fmt.Errorf("onboard_service: approvals: %w", err)
	}

	creds, err := s.creds.Derive(ctx, wallet.Address, rep)
	if err != nil {
		return res, fmt.Errorf("onboard_service: credentials: %w", err)
	}
	res.Credentials = creds.Scope
	res.APIKey = creds.Key

	s.logger.InfoContext(ctx, "onboard_service: account ready",
		slog.String("wallet", wallet.Address.Hex()),
		slog.Bool("deployed_now", !deploy.AlreadyDeployed),
		slog.Int("approvals_sent", res.Approvals.Calls),
	)
	return res, nil
}

// Status reads the wallet, its approvals and balances without changing
// anything. Approvals of an undeployed wallet are still read; they are all
// false until deployment.
func (s *OnboardService) Status(ctx context.Context) (Status, error) {
	wallet, err := s.wallets.SmartWallet(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("onboard_service: status: %w", err)
	}
	st := Status{Wallet: wallet}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rec, err := s.approvals.CheckApprovals(gctx, wallet.Address)
		if err != nil {
			return err
		}
		st.Approvals = rec
		st.AllApproved = rec.AllApproved()
		return nil
	})
	if s.balances != nil && wallet.Deployed {
		g.Go(func() error {
			b, err := s.balances.Balances(gctx, wallet.Address)
			if err != nil {
				return err
			}
			st.Balances = &b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Status{}, fmt.Errorf("onboard_service: status: %w", err)
	}
	return st, nil
}
