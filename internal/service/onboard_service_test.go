package service

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyonboard/internal/domain"
)

type stubWallets struct {
	wallet    domain.SmartWallet
	deployErr error
	deploys   int
}

func (s *stubWallets) SmartWallet(context.Context) (domain.SmartWallet, error) { return s.wallet, nil }

func (s *stubWallets) Deploy(context.Context, *Reporter) (domain.DeployResult, error) {
	s.deploys++
	if s.deployErr != nil {
		return domain.DeployResult{}, s.deployErr
	}
	w := s.wallet
	w.Deployed = true
	return domain.DeployResult{Wallet: w, TransactionID: "tx-create"}, nil
}

type stubApprover struct {
	rec      domain.ApprovalRecord
	approved []common.Address
}

func (s *stubApprover) CheckApprovals(context.Context, common.Address) (domain.ApprovalRecord, error) {
	return s.rec, nil
}

func (s *stubApprover) ApproveAll(_ context.Context, wallet common.Address, _ *domain.ApprovalRecord, _ *Reporter) (domain.ApproveResult, error) {
	s.approved = append(s.approved, wallet)
	return domain.ApproveResult{Calls: 6}, nil
}

type stubDeriver struct {
	funders []common.Address
}

func (s *stubDeriver) Derive(_ context.Context, funder common.Address, _ *Reporter) (domain.TradingCredentials, error) {
	s.funders = append(s.funders, funder)
	return domain.TradingCredentials{Key: "k", Secret: "s", Passphrase: "p", Scope: domain.CredentialScope{Funder: funder}}, nil
}

type stubBalances struct{ calls int }

func (s *stubBalances) Balances(_ context.Context, funder common.Address) (Balances, error) {
	s.calls++
	return Balances{Funder: funder, Available: decimal.RequireFromString("12.5")}, nil
}

func TestOnboard_RunsStepsAgainstSmartWallet(t *testing.T) {
	safe := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	wallets := &stubWallets{wallet: domain.SmartWallet{Address: safe}}
	approver := &stubApprover{}
	deriver := &stubDeriver{}
	svc := NewOnboardService(wallets, approver, deriver, nil, testLogger())

	res, err := svc.Onboard(context.Background(), nil)
	require.NoError(t, err)

	assert.True(t, res.Wallet.Deployed)
	assert.Equal(t, []common.Address{safe}, approver.approved)
	assert.Equal(t, []common.Address{safe}, deriver.funders)
	assert.Equal(t, "k", res.APIKey)
	assert.Equal(t, 6, res.Approvals.Calls)
}

func TestOnboard_DeployFailureStopsRun(t *testing.T) {
	wallets := &stubWallets{deployErr: &domain.RelayerFailedError{TransactionID: "tx-1"}}
	approver := &stubApprover{}
	deriver := &stubDeriver{}
	svc := NewOnboardService(wallets, approver, deriver, nil, testLogger())

	_, err := svc.Onboard(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRelayerFailed))
	assert.Empty(t, approver.approved)
	assert.Empty(t, deriver.funders)
}

func TestStatus_SkipsBalancesForUndeployedWallet(t *testing.T) {
	balances := &stubBalances{}
	wallets := &stubWallets{wallet: domain.SmartWallet{Address: common.HexToAddress("0x01")}}
	svc := NewOnboardService(wallets, &stubApprover{}, &stubDeriver{}, balances, testLogger())

	st, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.AllApproved)
	assert.Nil(t, st.Balances)
	assert.Zero(t, balances.calls)

	wallets.wallet.Deployed = true
	st, err = svc.Status(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st.Balances)
	assert.Equal(t, "12.5", st.Balances.Available.String())
}
