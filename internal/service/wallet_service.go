package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/polyonboard/internal/domain"
)

// Deployer submits and tracks Safe deployments.
type Deployer interface {
	Wallet() common.Address
	Owner() common.Address
	Deploy(ctx context.Context) (domain.RelayerJob, error)
	Wait(ctx context.Context, kind string, job domain.RelayerJob) (domain.TerminalResult, error)
}

// CodeChecker reports whether an address has contract code.
type CodeChecker interface {
	IsDeployed(ctx context.Context, addr common.Address) (bool, error)
}

// WalletService resolves and deploys the owner's smart wallet.
type WalletService struct {
	deployer Deployer
	code     CodeChecker
	audit    domain.AuditStore
	notifier Notifier
	receipts domain.BlobWriter
	logger   *slog.Logger
}

// NewWalletService creates a WalletService. audit and notifier may be nil.
func NewWalletService(deployer Deployer, code CodeChecker, audit domain.AuditStore, notifier Notifier, logger *slog.Logger) *WalletService {
	return &WalletService{
		deployer: deployer,
		code:     code,
		audit:    audit,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "wallet_service")),
	}
}

// WithReceipts stores a JSON receipt for every settled deployment.
func (s *WalletService) WithReceipts(blob domain.BlobWriter) *WalletService {
	s.receipts = blob
	return s
}

// SmartWallet returns the counterfactual wallet and whether it has code.
func (s *WalletService) SmartWallet(ctx context.Context) (domain.SmartWallet, error) {
	w := domain.SmartWallet{Owner: s.deployer.Owner(), Address: s.deployer.Wallet()}
	deployed, err := s.code.IsDeployed(ctx, w.Address)
	if err != nil {
		return w, fmt.Errorf("wallet_service: code check %s: %w", w.Address.Hex(), err)
	}
	w.Deployed = deployed
	return w, nil
}

// Deploy creates the smart wallet through the relayer. It is a no-op when the
// wallet already has code.
func (s *WalletService) Deploy(ctx context.Context, rep *Reporter) (domain.DeployResult, error) {
	rep.Emit(domain.StageChecking, "checking wallet deployment", nil)
	w, err := s.SmartWallet(ctx)
	if err != nil {
		return domain.DeployResult{}, err
	}
	if w.Deployed {
		rep.Emit(domain.StageSkipped, "wallet already deployed", map[string]any{"wallet": w.Address.Hex()})
		return domain.DeployResult{Wallet: w, AlreadyDeployed: true}, nil
	}

	rep.Emit(domain.StageSubmitting, "submitting wallet deployment", map[string]any{"wallet": w.Address.Hex()})
	job, err := s.deployer.Deploy(ctx)
	if err != nil {
		s.alert(ctx, err)
		return domain.DeployResult{Wallet: w}, fmt.Errorf("wallet_service: deploy: %w", err)
	}

	rep.Emit(domain.StagePolling, "waiting for deployment to settle", map[string]any{"transactionId": job.TransactionID})
	res, err := s.deployer.Wait(ctx, "safe_create", job)
	if err != nil {
		s.alert(ctx, err)
		return domain.DeployResult{Wallet: w, TransactionID: job.TransactionID}, fmt.Errorf("wallet_service: deploy: %w", err)
	}

	w.Deployed = true
	s.logger.InfoContext(ctx, "wallet_service: wallet deployed",
		slog.String("wallet", w.Address.Hex()),
		slog.String("tx_hash", res.TransactionHash),
	)
	writeReceipt(ctx, s.receipts, s.logger, domain.ReceiptPath(domain.ReceiptDeployments, time.Now(), res.TransactionID), settlementReceipt{
		Kind:            "safe_create",
		Wallet:          w.Address.Hex(),
		TransactionID:   res.TransactionID,
		TransactionHash: res.TransactionHash,
		State:           res.State,
		Attempts:        res.Attempts,
		Detail:          map[string]any{"owner": w.Owner.Hex()},
		SettledAt:       time.Now().UTC(),
	})
	if s.audit != nil {
		if err := s.audit.Log(ctx, "wallet_deployed", w.Address.Hex(), map[string]any{
			"owner":          w.Owner.Hex(),
			"transaction_id": res.TransactionID,
			"tx_hash":        res.TransactionHash,
		}); err != nil {
			s.logger.WarnContext(ctx, "wallet_service: audit log failed", slog.String("error", err.Error()))
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, EventWalletDeployed, "Smart wallet deployed", w.Address.Hex()); err != nil {
			s.logger.WarnContext(ctx, "wallet_service: notify failed", slog.String("error", err.Error()))
		}
	}
	return domain.DeployResult{
		Wallet:          w,
		TransactionID:   res.TransactionID,
		TransactionHash: res.TransactionHash,
	}, nil
}

func (s *WalletService) alert(ctx context.Context, err error) {
	if s.notifier == nil {
		return
	}
	event := relayerEvent(err)
	if event == "" {
		return
	}
	if nerr := s.notifier.Notify(ctx, event, "Wallet deployment did not settle", err.Error()); nerr != nil {
		s.logger.WarnContext(ctx, "wallet_service: notify failed", slog.String("error", nerr.Error()))
	}
}
