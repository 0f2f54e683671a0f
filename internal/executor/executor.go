// Package executor runs meta-transaction batches through the relayer: it
// signs a Safe transaction for the batch, submits it, and polls the relayer
// until the job settles, fails, or polling gives up.
package executor

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/polyonboard/internal/crypto"
	"github.com/alanyoungcy/polyonboard/internal/domain"
	"github.com/alanyoungcy/polyonboard/internal/metrics"
	"github.com/alanyoungcy/polyonboard/internal/platform/polymarket"
)

// Relayer is the subset of the relayer API the executor needs.
type Relayer interface {
	GetNonce(ctx context.Context, owner common.Address) (*big.Int, error)
	Submit(ctx context.Context, req polymarket.SubmitRequest) (domain.RelayerJob, error)
	GetTransaction(ctx context.Context, id string) (domain.RelayerJob, error)
}

// SafeSigner signs on behalf of the Safe owner.
type SafeSigner interface {
	Address() common.Address
	SignSafeTx(tx crypto.SafeTx, safe common.Address) (string, error)
	SignCreateProxy(factory common.Address) (string, error)
}

// Config holds the Safe contract addresses and polling defaults.
type Config struct {
	SafeFactory  common.Address
	InitCodeHash common.Hash
	Multisend    common.Address
	PollInterval time.Duration
	MaxAttempts  int
}

// Executor submits batches for the Safe owned by its signer.
type Executor struct {
	relayer Relayer
	signer  SafeSigner
	cfg     Config
	wallet  common.Address
	dedup   *Dedup
	logger  *slog.Logger
}

// New creates an Executor. The Safe address is derived from the signer.
func New(relayer Relayer, signer SafeSigner, cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Executor{
		relayer: relayer,
		signer:  signer,
		cfg:     cfg,
		wallet:  crypto.SafeAddress(cfg.SafeFactory, cfg.InitCodeHash, signer.Address()),
		dedup:   NewDedup(2 * time.Minute),
		logger:  logger.With(slog.String("component", "executor")),
	}
}

// Wallet returns the Safe address batches are executed from.
func (e *Executor) Wallet() common.Address { return e.wallet }

// Dedup exposes the in-flight submission set so long-running processes can
// sweep it.
func (e *Executor) Dedup() *Dedup { return e.dedup }

// Owner returns the EOA that signs for the Safe.
func (e *Executor) Owner() common.Address { return e.signer.Address() }

// Execute signs batch as a single Safe transaction and submits it. The
// returned job is only accepted by the relayer, not mined. An empty batch is
// rejected with domain.ErrEmptyBatch; callers treat "nothing to do" as
// success before reaching this point. Submission failures are not retried.
func (e *Executor) Execute(ctx context.Context, batch domain.MetaTransactionBatch, description string) (domain.RelayerJob, error) {
	if batch.Empty() {
		return domain.RelayerJob{}, domain.ErrEmptyBatch
	}

	key := batchKey(e.wallet, batch)
	if e.dedup.IsDuplicate(key) {
		return domain.RelayerJob{}, fmt.Errorf("executor: batch %q: %w", description, domain.ErrAlreadyExists)
	}

	job, err := e.submitBatch(ctx, batch, description)
	if err != nil {
		e.dedup.Forget(key)
		metrics.RelayerJobsTotal.WithLabelValues("safe", "rejected").Inc()
		return domain.RelayerJob{}, err
	}

	e.logger.InfoContext(ctx, "executor: batch submitted",
		slog.String("transaction_id", job.TransactionID),
		slog.String("wallet", e.wallet.Hex()),
		slog.Int("calls", batch.Len()),
		slog.String("description", description),
	)
	return job, nil
}

func (e *Executor) submitBatch(ctx context.Context, batch domain.MetaTransactionBatch, description string) (domain.RelayerJob, error) {
	owner := e.signer.Address()

	nonce, err := e.relayer.GetNonce(ctx, owner)
	if err != nil {
		return domain.RelayerJob{}, &domain.RelayerFailedError{Cause: fmt.Errorf("nonce: %w", err)}
	}

	tx, err := crypto.BuildSafeTx(batch, e.cfg.Multisend, nonce)
	if err != nil {
		return domain.RelayerJob{}, fmt.Errorf("executor: build safe tx: %w", err)
	}

	sig, err := e.signer.SignSafeTx(tx, e.wallet)
	if err != nil {
		return domain.RelayerJob{}, &domain.SigningRejectedError{Op: "safe transaction", Cause: err}
	}

	zero := common.Address{}.Hex()
	job, err := e.relayer.Submit(ctx, polymarket.SubmitRequest{
		From:        owner.Hex(),
		To:          tx.To.Hex(),
		ProxyWallet: e.wallet.Hex(),
		Data:        hexutil.Encode(tx.Data),
		Nonce:       nonce.String(),
		Signature:   sig,
		SignatureParams: polymarket.SignatureParams{
			GasPrice:       "0",
			Operation:      strconv.Itoa(int(tx.Operation)),
			SafeTxnGas:     "0",
			BaseGas:        "0",
			GasToken:       zero,
			RefundReceiver: zero,
		},
		Type:     polymarket.RelayerTypeSafe,
		Metadata: description,
	})
	if err != nil {
		return domain.RelayerJob{}, &domain.RelayerFailedError{Cause: err}
	}
	return job, nil
}

// Deploy submits a sponsored SAFE-CREATE for the owner's Safe.
func (e *Executor) Deploy(ctx context.Context) (domain.RelayerJob, error) {
	sig, err := e.signer.SignCreateProxy(e.cfg.SafeFactory)
	if err != nil {
		return domain.RelayerJob{}, &domain.SigningRejectedError{Op: "create proxy", Cause: err}
	}

	zero := common.Address{}.Hex()
	job, err := e.relayer.Submit(ctx, polymarket.SubmitRequest{
		From:        e.signer.Address().Hex(),
		To:          e.cfg.SafeFactory.Hex(),
		ProxyWallet: e.wallet.Hex(),
		Data:        "0x",
		Signature:   sig,
		SignatureParams: polymarket.SignatureParams{
			PaymentToken:    zero,
			Payment:         "0",
			PaymentReceiver: zero,
		},
		Type: polymarket.RelayerTypeSafeCreate,
	})
	if err != nil {
		metrics.RelayerJobsTotal.WithLabelValues("safe_create", "rejected").Inc()
		return domain.RelayerJob{}, &domain.RelayerFailedError{Cause: err}
	}

	e.logger.InfoContext(ctx, "executor: safe deployment submitted",
		slog.String("transaction_id", job.TransactionID),
		slog.String("wallet", e.wallet.Hex()),
	)
	return job, nil
}

// Run executes batch and waits for it to settle using the configured polling
// parameters.
func (e *Executor) Run(ctx context.Context, batch domain.MetaTransactionBatch, description string) (domain.TerminalResult, error) {
	job, err := e.Execute(ctx, batch, description)
	if err != nil {
		return domain.TerminalResult{}, err
	}
	defer e.dedup.Forget(batchKey(e.wallet, batch))
	return e.Wait(ctx, "safe", job)
}

// Wait polls job with the configured interval and attempt budget until it
// reaches MINED or CONFIRMED.
func (e *Executor) Wait(ctx context.Context, kind string, job domain.RelayerJob) (domain.TerminalResult, error) {
	res, err := e.PollUntilState(ctx, job.TransactionID, domain.RelayerSuccessStates, domain.RelayerStateFailed, e.cfg.MaxAttempts, e.cfg.PollInterval)
	switch {
	case err == nil:
		metrics.RelayerJobsTotal.WithLabelValues(kind, "settled").Inc()
	case ctx.Err() != nil:
		metrics.RelayerJobsTotal.WithLabelValues(kind, "cancelled").Inc()
	default:
		metrics.RelayerJobsTotal.WithLabelValues(kind, "failed").Inc()
	}
	return res, err
}

// PollUntilState polls job id at a fixed interval. It returns as soon as the
// job reaches one of success, fails immediately when it reaches failure, and
// gives up with a *domain.RelayerTimeoutError after exactly maxAttempts polls.
// A poll that errors still counts as an attempt. Cancelling ctx stops polling;
// the submitted job itself is left alone.
func (e *Executor) PollUntilState(
	ctx context.Context,
	id string,
	success []domain.RelayerState,
	failure domain.RelayerState,
	maxAttempts int,
	interval time.Duration,
) (domain.TerminalResult, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		lastState = domain.RelayerStatePending
		lastErr   error
	)
	for attempt := 1; ; attempt++ {
		job, err := e.relayer.GetTransaction(ctx, id)
		switch {
		case err != nil:
			lastErr = err
			e.logger.WarnContext(ctx, "executor: poll failed",
				slog.String("transaction_id", id),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		case containsState(success, job.State):
			metrics.RelayerPolls.Observe(float64(attempt))
			return domain.TerminalResult{
				TransactionID:   id,
				State:           job.State,
				TransactionHash: job.TransactionHash,
				Attempts:        attempt,
			}, nil
		case job.State == failure:
			metrics.RelayerPolls.Observe(float64(attempt))
			return domain.TerminalResult{}, &domain.RelayerFailedError{
				TransactionID:   id,
				TransactionHash: job.TransactionHash,
				State:           job.State,
			}
		default:
			lastState, lastErr = job.State, nil
		}

		if attempt >= maxAttempts {
			metrics.RelayerPolls.Observe(float64(attempt))
			return domain.TerminalResult{}, &domain.RelayerTimeoutError{
				TransactionID: id,
				Attempts:      attempt,
				LastState:     lastState,
				LastErr:       lastErr,
			}
		}

		select {
		case <-ctx.Done():
			return domain.TerminalResult{}, fmt.Errorf("executor: poll %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

func containsState(states []domain.RelayerState, s domain.RelayerState) bool {
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}

// batchKey identifies a batch for a wallet by hashing its calls.
func batchKey(wallet common.Address, batch domain.MetaTransactionBatch) string {
	parts := [][]byte{wallet.Bytes()}
	for _, c := range batch.Calls {
		parts = append(parts, c.To.Bytes(), c.Data)
		if c.Value != nil {
			parts = append(parts, c.Value.Bytes())
		}
	}
	return hex.EncodeToString(ethcrypto.Keccak256(parts...))
}
