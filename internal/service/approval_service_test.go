package service

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyonboard/internal/chain"
	"github.com/alanyoungcy/polyonboard/internal/domain"
)

var testContracts = ContractSet{
	USDC:            common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"),
	CTF:             common.HexToAddress("0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"),
	Exchange:        common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"),
	NegRiskExchange: common.HexToAddress("0xC5d563A36AE78145C45a50134d48A1215220f80a"),
	NegRiskAdapter:  common.HexToAddress("0xd91E80cF2E7be2e162c6513ceD06f1dD0dA35296"),
}

var (
	testWallet    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testThreshold = big.NewInt(1_000_000_000_000)
	bigAllowance  = big.NewInt(2_000_000_000_000)
)

type fakeApprovalReader struct {
	mu         sync.Mutex
	allowances map[common.Address]*big.Int
	operators  map[common.Address]bool
	err        error
	calls      int
}

func (f *fakeApprovalReader) Allowance(_ context.Context, _, _, spender common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.allowances[spender]; ok {
		return v, nil
	}
	return new(big.Int), nil
}

func (f *fakeApprovalReader) IsApprovedForAll(_ context.Context, _, _, operator common.Address) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.operators[operator], nil
}

type fakeRunner struct {
	calls       int
	batches     []domain.MetaTransactionBatch
	description string
	err         error
}

func (f *fakeRunner) Run(_ context.Context, batch domain.MetaTransactionBatch, description string) (domain.TerminalResult, error) {
	f.calls++
	f.batches = append(f.batches, batch)
	f.description = description
	if f.err != nil {
		return domain.TerminalResult{}, f.err
	}
	return domain.TerminalResult{TransactionID: "tx-1", State: domain.RelayerStateMined, TransactionHash: "0xabc"}, nil
}

func newApprovalService(reader ApprovalReader, runner BatchRunner, audit domain.AuditStore, n Notifier) *ApprovalService {
	return NewApprovalService(reader, runner, testContracts, testThreshold, audit, n, testLogger())
}

func allGranted(value bool) domain.ApprovalRecord {
	var rec domain.ApprovalRecord
	for _, g := range domain.CanonicalGrants {
		rec.Set(g, value)
	}
	return rec
}

func TestCheckApprovals_Idempotent(t *testing.T) {
	reader := &fakeApprovalReader{
		allowances: map[common.Address]*big.Int{
			testContracts.CTF:      bigAllowance,
			testContracts.Exchange: bigAllowance,
		},
		operators: map[common.Address]bool{testContracts.NegRiskAdapter: true},
	}
	svc := newApprovalService(reader, &fakeRunner{}, nil, nil)

	first, err := svc.CheckApprovals(context.Background(), testWallet)
	require.NoError(t, err)
	second, err := svc.CheckApprovals(context.Background(), testWallet)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, first.USDCToCTF)
	assert.True(t, first.USDCToExchange)
	assert.False(t, first.USDCToNegRiskExchange)
	assert.False(t, first.CTFToExchange)
	assert.True(t, first.CTFToNegRiskAdapter)
	assert.Equal(t, 12, reader.calls)
}

func TestCheckApprovals_ThresholdIsStrict(t *testing.T) {
	reader := &fakeApprovalReader{allowances: map[common.Address]*big.Int{
		testContracts.CTF:      new(big.Int).Set(testThreshold),
		testContracts.Exchange: new(big.Int).Add(testThreshold, big.NewInt(1)),
	}}
	svc := newApprovalService(reader, &fakeRunner{}, nil, nil)

	rec, err := svc.CheckApprovals(context.Background(), testWallet)
	require.NoError(t, err)
	assert.False(t, rec.USDCToCTF, "allowance equal to the threshold is not enough")
	assert.True(t, rec.USDCToExchange)
}

func TestCheckApprovals_ReadFailureFailsCheck(t *testing.T) {
	reader := &fakeApprovalReader{err: &domain.RpcExhaustedError{Endpoints: 2, Last: errors.New("timeout")}}
	svc := newApprovalService(reader, &fakeRunner{}, nil, nil)

	_, err := svc.CheckApprovals(context.Background(), testWallet)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRpcExhausted)
}

// failoverReader is a chain.BlockchainReader for the failover scenario.
type failoverReader struct {
	name  string
	fail  bool
	calls atomic.Int32
}

func (r *failoverReader) Endpoint() string { return r.name }

func (r *failoverReader) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	r.calls.Add(1)
	if r.fail {
		return nil, errors.New("connection refused")
	}
	// allowance(owner, spender): the spender is the second argument word.
	if *msg.To == testContracts.USDC && len(msg.Data) >= 68 &&
		common.BytesToAddress(msg.Data[48:68]) == testContracts.CTF {
		return common.LeftPadBytes(bigAllowance.Bytes(), 32), nil
	}
	return make([]byte, 32), nil
}

func (r *failoverReader) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return nil, nil
}

func TestCheckApprovals_FailsOverToSecondEndpoint(t *testing.T) {
	a := &failoverReader{name: "A", fail: true}
	b := &failoverReader{name: "B"}
	contracts := chain.NewContracts(chain.NewFailover([]chain.BlockchainReader{a, b}, 0, testLogger()))
	svc := NewApprovalService(contracts, &fakeRunner{}, testContracts, testThreshold, nil, nil, testLogger())

	rec, err := svc.CheckApprovals(context.Background(), testWallet)
	require.NoError(t, err)

	assert.True(t, rec.USDCToCTF)
	assert.False(t, rec.USDCToExchange)
	assert.False(t, rec.CTFToExchange)
	assert.Equal(t, int32(6), a.calls.Load(), "A is tried once per read and always fails")
	assert.Equal(t, int32(6), b.calls.Load(), "every answer comes from B")
}

func TestPlanApprovals_CallCounts(t *testing.T) {
	svc := newApprovalService(&fakeApprovalReader{}, &fakeRunner{}, nil, nil)

	batch, err := svc.PlanApprovals(allGranted(true))
	require.NoError(t, err)
	assert.True(t, batch.Empty())

	batch, err = svc.PlanApprovals(allGranted(false))
	require.NoError(t, err)
	assert.Equal(t, 6, batch.Len())

	for mask := 0; mask < 1<<len(domain.CanonicalGrants); mask++ {
		var rec domain.ApprovalRecord
		missing := 0
		for i, g := range domain.CanonicalGrants {
			granted := mask&(1<<i) != 0
			rec.Set(g, granted)
			if !granted {
				missing++
			}
		}
		batch, err := svc.PlanApprovals(rec)
		require.NoError(t, err)
		assert.Equal(t, missing, batch.Len(), "mask %06b", mask)
	}
}

func TestPlanApprovals_CanonicalOrderAndTargets(t *testing.T) {
	svc := newApprovalService(&fakeApprovalReader{}, &fakeRunner{}, nil, nil)

	batch, err := svc.PlanApprovals(allGranted(false))
	require.NoError(t, err)
	require.Equal(t, 6, batch.Len())

	approve := []byte{0x09, 0x5e, 0xa7, 0xb3}
	setApprovalForAll := []byte{0xa2, 0x2c, 0xb4, 0x65}
	for i, c := range batch.Calls {
		if i < 3 {
			assert.Equal(t, testContracts.USDC, c.To)
			assert.Equal(t, approve, c.Data[:4])
		} else {
			assert.Equal(t, testContracts.CTF, c.To)
			assert.Equal(t, setApprovalForAll, c.Data[:4])
		}
	}
	// approve(CTF, max) comes first.
	assert.Equal(t, testContracts.CTF, common.BytesToAddress(batch.Calls[0].Data[16:36]))
	assert.Equal(t, 0, chain.MaxUint256.Cmp(new(big.Int).SetBytes(batch.Calls[0].Data[36:68])))
}

func TestApproveAll_SkipsWhenAllGranted(t *testing.T) {
	runner := &fakeRunner{}
	svc := newApprovalService(&fakeApprovalReader{}, runner, nil, nil)

	current := allGranted(true)
	res, err := svc.ApproveAll(context.Background(), testWallet, &current, nil)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 0, runner.calls)
}

func TestApproveAll_SubmitsOnlyMissingGrants(t *testing.T) {
	reader := &fakeApprovalReader{
		allowances: map[common.Address]*big.Int{
			testContracts.CTF:             bigAllowance,
			testContracts.Exchange:        bigAllowance,
			testContracts.NegRiskExchange: bigAllowance,
		},
		operators: map[common.Address]bool{testContracts.Exchange: true},
	}
	runner := &fakeRunner{}
	audit := &fakeAudit{}
	svc := newApprovalService(reader, runner, audit, nil)

	res, err := svc.ApproveAll(context.Background(), testWallet, nil, nil)
	require.NoError(t, err)

	require.Equal(t, 1, runner.calls)
	assert.Equal(t, 2, runner.batches[0].Len())
	assert.Equal(t, "Approve 2 token permissions", runner.description)
	assert.Equal(t, 2, res.Calls)
	assert.Equal(t, "0xabc", res.TransactionHash)
	assert.Equal(t, []string{"approvals_granted"}, audit.events)
}

func TestApproveAll_RelayerTimeoutNotifies(t *testing.T) {
	runner := &fakeRunner{err: &domain.RelayerTimeoutError{TransactionID: "tx-1", Attempts: 3, LastState: domain.RelayerStatePending}}
	notifier := &fakeNotifier{}
	svc := newApprovalService(&fakeApprovalReader{}, runner, nil, notifier)

	current := allGranted(false)
	_, err := svc.ApproveAll(context.Background(), testWallet, &current, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRelayerTimeout)
	assert.Equal(t, []string{EventRelayerTimeout}, notifier.events)
}

func TestApproveAll_EmitsProgress(t *testing.T) {
	runner := &fakeRunner{}
	svc := newApprovalService(&fakeApprovalReader{}, runner, nil, nil)

	op := Start(context.Background(), domain.OpApproveAll, func(ctx context.Context, rep *Reporter) (domain.ApproveResult, error) {
		return svc.ApproveAll(ctx, testWallet, nil, rep)
	})

	var stages []domain.Stage
	for ev := range op.Events() {
		stages = append(stages, ev.Stage)
	}
	res, err := op.Wait()
	require.NoError(t, err)
	assert.Equal(t, 6, res.Calls)
	assert.Equal(t, []domain.Stage{
		domain.StageStarted, domain.StageChecking, domain.StageSubmitting, domain.StageSucceeded,
	}, stages)
}
