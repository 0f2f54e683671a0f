package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyonboard/internal/chain"
	"github.com/alanyoungcy/polyonboard/internal/domain"
)

// ApprovalReader performs the on-chain reads behind an ApprovalRecord.
type ApprovalReader interface {
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	IsApprovedForAll(ctx context.Context, token, owner, operator common.Address) (bool, error)
}

// BatchRunner executes a batch through the relayer and waits for it to
// settle.
type BatchRunner interface {
	Run(ctx context.Context, batch domain.MetaTransactionBatch, description string) (domain.TerminalResult, error)
}

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// ContractSet holds the token and exchange addresses grants refer to.
type ContractSet struct {
	USDC            common.Address
	CTF             common.Address
	Exchange        common.Address
	NegRiskExchange common.Address
	NegRiskAdapter  common.Address
}

// Target returns the token contract a grant is set on and the spender or
// operator it is granted to.
func (c ContractSet) Target(g domain.Grant) (token, grantee common.Address) {
	switch g {
	case domain.GrantUSDCToCTF:
		return c.USDC, c.CTF
	case domain.GrantUSDCToExchange:
		return c.USDC, c.Exchange
	case domain.GrantUSDCToNegRiskExchange:
		return c.USDC, c.NegRiskExchange
	case domain.GrantCTFToExchange:
		return c.CTF, c.Exchange
	case domain.GrantCTFToNegRiskExchange:
		return c.CTF, c.NegRiskExchange
	default:
		return c.CTF, c.NegRiskAdapter
	}
}

// ApprovalService checks and fixes the six token permissions a trading
// wallet needs.
type ApprovalService struct {
	reader    ApprovalReader
	runner    BatchRunner
	contracts ContractSet
	threshold *big.Int
	audit     domain.AuditStore
	notifier  Notifier
	receipts  domain.BlobWriter
	logger    *slog.Logger
}

// NewApprovalService creates an ApprovalService. An ERC-20 allowance counts
// as granted only when strictly greater than threshold. audit and notifier
// may be nil.
func NewApprovalService(
	reader ApprovalReader,
	runner BatchRunner,
	contracts ContractSet,
	threshold *big.Int,
	audit domain.AuditStore,
	notifier Notifier,
	logger *slog.Logger,
) *ApprovalService {
	if threshold == nil {
		threshold = new(big.Int)
	}
	return &ApprovalService{
		reader:    reader,
		runner:    runner,
		contracts: contracts,
		threshold: threshold,
		audit:     audit,
		notifier:  notifier,
		logger:    logger.With(slog.String("component", "approval_service")),
	}
}

// WithReceipts stores a JSON receipt for every settled approval batch.
func (s *ApprovalService) WithReceipts(blob domain.BlobWriter) *ApprovalService {
	s.receipts = blob
	return s
}

// CheckApprovals reads all six grants for wallet concurrently. It has no side
// effects. Any failed read fails the whole check.
func (s *ApprovalService) CheckApprovals(ctx context.Context, wallet common.Address) (domain.ApprovalRecord, error) {
	var flags [len(domain.CanonicalGrants)]bool

	g, gctx := errgroup.WithContext(ctx)
	for i, grant := range domain.CanonicalGrants {
		token, grantee := s.contracts.Target(grant)
		g.Go(func() error {
			if grant.IsERC20() {
				allowance, err := s.reader.Allowance(gctx, token, wallet, grantee)
				if err != nil {
					return fmt.Errorf("%s: %w", grant, err)
				}
				flags[i] = allowance.Cmp(s.threshold) > 0
				return nil
			}
			ok, err := s.reader.IsApprovedForAll(gctx, token, wallet, grantee)
			if err != nil {
				return fmt.Errorf("%s: %w", grant, err)
			}
			flags[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.ApprovalRecord{}, fmt.Errorf("approval_service: check %s: %w", wallet.Hex(), err)
	}

	var rec domain.ApprovalRecord
	for i, grant := range domain.CanonicalGrants {
		rec.Set(grant, flags[i])
	}
	return rec, nil
}

// PlanApprovals returns one call per missing grant: approve(spender, max) on
// USDC, then setApprovalForAll(operator, true) on CTF, in canonical order. A
// fully approved record yields an empty batch.
func (s *ApprovalService) PlanApprovals(rec domain.ApprovalRecord) (domain.MetaTransactionBatch, error) {
	var batch domain.MetaTransactionBatch
	for _, grant := range rec.Missing() {
		token, grantee := s.contracts.Target(grant)

		var (
			data []byte
			err  error
		)
		if grant.IsERC20() {
			data, err = chain.ApproveMaxCalldata(grantee)
		} else {
			data, err = chain.SetApprovalForAllCalldata(grantee, true)
		}
		if err != nil {
			return domain.MetaTransactionBatch{}, fmt.Errorf("approval_service: encode %s: %w", grant, err)
		}
		batch.Calls = append(batch.Calls, domain.Call{To: token, Data: data, Value: new(big.Int)})
	}
	return batch, nil
}

// ApproveAll grants every missing permission in one relayer batch. When
// current is non-nil it is trusted and no chain reads are made. Nothing is
// submitted when all grants are already in place.
func (s *ApprovalService) ApproveAll(ctx context.Context, wallet common.Address, current *domain.ApprovalRecord, rep *Reporter) (domain.ApproveResult, error) {
	var rec domain.ApprovalRecord
	if current != nil {
		rec = *current
	} else {
		rep.Emit(domain.StageChecking, "reading current approvals", nil)
		var err error
		if rec, err = s.CheckApprovals(ctx, wallet); err != nil {
			return domain.ApproveResult{}, err
		}
	}

	result := domain.ApproveResult{Before: rec}
	batch, err := s.PlanApprovals(rec)
	if err != nil {
		return result, err
	}
	if batch.Empty() {
		result.Skipped = true
		rep.Emit(domain.StageSkipped, "all approvals already in place", nil)
		return result, nil
	}

	missing := make([]string, 0, batch.Len())
	for _, g := range rec.Missing() {
		missing = append(missing, g.String())
	}
	description := fmt.Sprintf("Approve %d token permissions", batch.Len())
	rep.Emit(domain.StageSubmitting, description, map[string]any{"grants": missing})

	res, err := s.runner.Run(ctx, batch, description)
	if err != nil {
		s.logger.ErrorContext(ctx, "approval_service: approve batch failed",
			slog.String("wallet", wallet.Hex()),
			slog.String("error", err.Error()),
		)
		s.alert(ctx, err)
		return result, fmt.Errorf("approval_service: approve: %w", err)
	}

	result.Calls = batch.Len()
	result.TransactionID = res.TransactionID
	result.TransactionHash = res.TransactionHash

	s.logger.InfoContext(ctx, "approval_service: approvals granted",
		slog.String("wallet", wallet.Hex()),
		slog.Int("calls", result.Calls),
		slog.String("tx_hash", res.TransactionHash),
	)
	writeReceipt(ctx, s.receipts, s.logger, domain.ReceiptPath(domain.ReceiptApprovals, time.Now(), res.TransactionID), settlementReceipt{
		Kind:            "approvals",
		Wallet:          wallet.Hex(),
		TransactionID:   res.TransactionID,
		TransactionHash: res.TransactionHash,
		State:           res.State,
		Attempts:        res.Attempts,
		Detail:          map[string]any{"grants": missing},
		SettledAt:       time.Now().UTC(),
	})
	if s.audit != nil {
		if err := s.audit.Log(ctx, "approvals_granted", wallet.Hex(), map[string]any{
			"grants":         missing,
			"transaction_id": res.TransactionID,
			"tx_hash":        res.TransactionHash,
		}); err != nil {
			s.logger.WarnContext(ctx, "approval_service: audit log failed", slog.String("error", err.Error()))
		}
	}
	return result, nil
}

func (s *ApprovalService) alert(ctx context.Context, err error) {
	if s.notifier == nil {
		return
	}
	event := relayerEvent(err)
	if event == "" {
		return
	}
	if nerr := s.notifier.Notify(ctx, event, "Approval batch did not settle", err.Error()); nerr != nil {
		s.logger.WarnContext(ctx, "approval_service: notify failed", slog.String("error", nerr.Error()))
	}
}
