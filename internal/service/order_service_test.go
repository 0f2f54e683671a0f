package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyonboard/internal/domain"
)

var (
	testSigner  = common.HexToAddress("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1")
	testFunder  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	errNotAuthd = fmt.Errorf("polymarket/clob: post order: %w", domain.ErrUnauthorized)
)

type fakePoster struct {
	mu     sync.Mutex
	errs   []error // consumed per call; nil means success
	orders []domain.SignedOrder
	creds  []domain.TradingCredentials
}

func (f *fakePoster) PostOrder(_ context.Context, _ common.Address, creds domain.TradingCredentials, order domain.SignedOrder, _ domain.OrderType) (domain.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.orders)
	f.orders = append(f.orders, order)
	f.creds = append(f.creds, creds)
	if n < len(f.errs) && f.errs[n] != nil {
		return domain.OrderResult{}, f.errs[n]
	}
	return domain.OrderResult{Success: true, OrderID: fmt.Sprintf("order-%d", n+1), Status: "live"}, nil
}

func (f *fakePoster) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

type fakeOrderSigner struct {
	calls     int
	exchanges []common.Address
	err       error
}

func (f *fakeOrderSigner) Address() common.Address { return testSigner }

func (f *fakeOrderSigner) SignOrder(o domain.SignedOrder, exchange common.Address) (string, error) {
	f.calls++
	f.exchanges = append(f.exchanges, exchange)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("0xsig%d", o.Salt), nil
}

type fakeCredManager struct {
	current  domain.TradingCredentials
	currents int
	resets   int
}

func (f *fakeCredManager) Current(context.Context, common.Address) (domain.TradingCredentials, error) {
	f.currents++
	return f.current, nil
}

func (f *fakeCredManager) Reset(context.Context, common.Address, *Reporter) (domain.TradingCredentials, error) {
	f.resets++
	f.current = domain.TradingCredentials{Key: fmt.Sprintf("key-%d", f.resets+1), Secret: "c2VjcmV0", Passphrase: "p"}
	return f.current, nil
}

type fakeBalances struct {
	available decimal.Decimal
	err       error
	calls     int
}

func (f *fakeBalances) Available(context.Context, common.Address) (decimal.Decimal, error) {
	f.calls++
	return f.available, f.err
}

type orderHarness struct {
	svc      *OrderService
	poster   *fakePoster
	signer   *fakeOrderSigner
	creds    *fakeCredManager
	balances *fakeBalances
	bus      *fakeBus
	blob     *fakeBlob
	audit    *fakeAudit
}

func newOrderHarness(available string) *orderHarness {
	h := &orderHarness{
		poster:   &fakePoster{},
		signer:   &fakeOrderSigner{},
		creds:    &fakeCredManager{current: domain.TradingCredentials{Key: "key-1", Secret: "c2VjcmV0", Passphrase: "p"}},
		balances: &fakeBalances{available: decimal.RequireFromString(available)},
		bus:      &fakeBus{},
		blob:     &fakeBlob{},
		audit:    &fakeAudit{},
	}
	h.svc = NewOrderService(h.poster, h.signer, h.creds, h.balances, OrderConfig{
		Exchange:        testContracts.Exchange,
		NegRiskExchange: testContracts.NegRiskExchange,
		Funder:          testFunder,
	}, nil, h.bus, h.blob, h.audit, testLogger())

	var salt int64
	h.svc.salt = func() int64 { salt++; return salt }
	return h
}

func order(price, size string, side domain.OrderSide) domain.OrderRequest {
	return domain.OrderRequest{
		TokenID:  "71321045679252212594626385532706912750332728571942532289631379312455583992563",
		Price:    decimal.RequireFromString(price),
		Size:     decimal.RequireFromString(size),
		Side:     side,
		TickSize: decimal.RequireFromString("0.01"),
	}
}

func TestSubmitOrder_ValidationMakesNoCalls(t *testing.T) {
	tests := []struct {
		name  string
		req   domain.OrderRequest
		field string
	}{
		{"price zero", order("0", "10", domain.OrderSideBuy), "price"},
		{"price one", order("1", "10", domain.OrderSideBuy), "price"},
		{"price at lower bound", order("0.001", "10", domain.OrderSideBuy), "price"},
		{"size zero", order("0.5", "0", domain.OrderSideBuy), "size"},
		{"negative size", order("0.5", "-1", domain.OrderSideBuy), "size"},
		{"size truncates to zero", order("0.5", "0.004", domain.OrderSideBuy), "size"},
		{"sell size truncates to zero", order("0.5", "0.009", domain.OrderSideSell), "size"},
		{"bad side", order("0.5", "10", "HOLD"), "side"},
		{"off tick", order("0.505", "10", domain.OrderSideBuy), "price"},
		{"empty token", func() domain.OrderRequest { r := order("0.5", "10", domain.OrderSideBuy); r.TokenID = ""; return r }(), "tokenId"},
		{"bad tick", func() domain.OrderRequest {
			r := order("0.5", "10", domain.OrderSideBuy)
			r.TickSize = decimal.RequireFromString("0.05")
			return r
		}(), "tickSize"},
		{"bad type", func() domain.OrderRequest { r := order("0.5", "10", domain.OrderSideBuy); r.Type = "IOC"; return r }(), "orderType"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newOrderHarness("1000")
			_, err := h.svc.SubmitOrder(context.Background(), tt.req, nil)

			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.ErrorIs(t, err, domain.ErrValidation)

			assert.Zero(t, h.balances.calls)
			assert.Zero(t, h.creds.currents)
			assert.Zero(t, h.signer.calls)
			assert.Zero(t, h.poster.calls())
		})
	}
}

func TestSubmitOrder_InsufficientBalanceSkipsSigning(t *testing.T) {
	h := newOrderHarness("9.99")

	_, err := h.svc.SubmitOrder(context.Background(), order("0.50", "20", domain.OrderSideBuy), nil)

	var ierr *domain.InsufficientBalanceError
	require.ErrorAs(t, err, &ierr)
	assert.True(t, ierr.Available.Equal(decimal.RequireFromString("9.99")))
	assert.True(t, ierr.Required.Equal(decimal.RequireFromString("10.00")))
	assert.Zero(t, h.signer.calls)
	assert.Zero(t, h.poster.calls())
}

func TestSubmitOrder_InsufficientBalanceReportsAmounts(t *testing.T) {
	h := newOrderHarness("4.99")

	_, err := h.svc.SubmitOrder(context.Background(), order("0.50", "10", domain.OrderSideBuy), nil)

	var ierr *domain.InsufficientBalanceError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "4.99", ierr.Available.StringFixed(2))
	assert.Equal(t, "5.00", ierr.Required.StringFixed(2))
	assert.Contains(t, err.Error(), "available 4.99, required 5.00")
}

func TestSubmitOrder_BalanceErrorPropagates(t *testing.T) {
	h := newOrderHarness("100")
	h.balances.err = &domain.RpcExhaustedError{Endpoints: 2, Last: errors.New("timeout")}

	_, err := h.svc.SubmitOrder(context.Background(), order("0.50", "10", domain.OrderSideBuy), nil)
	assert.ErrorIs(t, err, domain.ErrRpcExhausted)
	assert.Zero(t, h.signer.calls)
}

func TestSubmitOrder_Success(t *testing.T) {
	h := newOrderHarness("5.00")

	res, err := h.svc.SubmitOrder(context.Background(), order("0.50", "10", domain.OrderSideBuy), nil)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "order-1", res.OrderID)
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, res.CredentialsReset)
	assert.Zero(t, h.creds.resets)

	require.Len(t, h.poster.orders, 1)
	o := h.poster.orders[0]
	assert.Equal(t, "5000000", o.MakerAmount.String())
	assert.Equal(t, "10000000", o.TakerAmount.String())
	assert.Equal(t, testFunder, o.Maker)
	assert.Equal(t, testSigner, o.Signer)
	assert.Equal(t, domain.SignatureTypeGnosisSafe, o.SignatureType)
	assert.NotEmpty(t, o.Signature)
	assert.Equal(t, []common.Address{testContracts.Exchange}, h.signer.exchanges)

	assert.Equal(t, []string{"order_submitted"}, h.audit.events)
	require.Len(t, h.bus.published[OrdersChannel], 1)
	require.Len(t, h.blob.paths, 1)
	assert.Contains(t, h.blob.paths[0], "receipts/orders/")

	var receipt orderReceipt
	require.NoError(t, json.Unmarshal(h.blob.data[0], &receipt))
	assert.Equal(t, "order-1", receipt.OrderID)
	assert.Equal(t, testFunder.Hex(), receipt.Funder)
}

func TestSubmitOrder_NegRiskUsesNegRiskExchange(t *testing.T) {
	h := newOrderHarness("100")
	req := order("0.50", "10", domain.OrderSideSell)
	req.NegRisk = true

	_, err := h.svc.SubmitOrder(context.Background(), req, nil)
	require.NoError(t, err)

	assert.Equal(t, []common.Address{testContracts.NegRiskExchange}, h.signer.exchanges)
	o := h.poster.orders[0]
	assert.Equal(t, "10000000", o.MakerAmount.String())
	assert.Equal(t, "5000000", o.TakerAmount.String())
	assert.Equal(t, 1, o.SideIndex())
}

func TestSubmitOrder_UnauthorizedResetsOnceAndResubmits(t *testing.T) {
	h := newOrderHarness("100")
	h.poster.errs = []error{errNotAuthd, nil}

	res, err := h.svc.SubmitOrder(context.Background(), order("0.50", "10", domain.OrderSideBuy), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, h.creds.resets)
	assert.Equal(t, 2, h.poster.calls())
	assert.Equal(t, 2, res.Attempts)
	assert.True(t, res.CredentialsReset)

	assert.Equal(t, "key-1", h.poster.creds[0].Key)
	assert.Equal(t, "key-2", h.poster.creds[1].Key)
	assert.NotEqual(t, h.poster.orders[0].Salt, h.poster.orders[1].Salt, "the retry submits a freshly built order")
	assert.Equal(t, 2, h.signer.calls)
}

func TestSubmitOrder_SecondUnauthorizedIsTerminal(t *testing.T) {
	h := newOrderHarness("100")
	h.poster.errs = []error{errNotAuthd, errNotAuthd, nil}

	_, err := h.svc.SubmitOrder(context.Background(), order("0.50", "10", domain.OrderSideBuy), nil)

	var cerr *domain.CredentialExpiredError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 2, cerr.Attempts)
	assert.ErrorIs(t, err, domain.ErrCredentialExpired)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	assert.Equal(t, 1, h.creds.resets)
	assert.Equal(t, 2, h.poster.calls(), "no third attempt")
	assert.Empty(t, h.audit.events)
}

func TestSubmitOrder_OtherErrorsAreNotRetried(t *testing.T) {
	h := newOrderHarness("100")
	h.poster.errs = []error{errors.New("polymarket/clob: order rejected: not enough balance")}

	_, err := h.svc.SubmitOrder(context.Background(), order("0.50", "10", domain.OrderSideBuy), nil)
	require.Error(t, err)
	assert.Zero(t, h.creds.resets)
	assert.Equal(t, 1, h.poster.calls())
}

func TestSubmitOrder_SigningRejected(t *testing.T) {
	h := newOrderHarness("100")
	h.signer.err = errors.New("user declined")

	_, err := h.svc.SubmitOrder(context.Background(), order("0.50", "10", domain.OrderSideBuy), nil)
	assert.ErrorIs(t, err, domain.ErrSigningRejected)
	assert.Zero(t, h.poster.calls())
}

func TestAttempt_OnlyFirstHasSuccessor(t *testing.T) {
	next, ok := firstAttempt.next()
	assert.True(t, ok)
	assert.Equal(t, retryAttempt, next)

	_, ok = retryAttempt.next()
	assert.False(t, ok)
}

func TestOrderAmounts_Rounding(t *testing.T) {
	tests := []struct {
		name         string
		side         domain.OrderSide
		price, size  string
		tick         string
		maker, taker string
	}{
		{"buy whole", domain.OrderSideBuy, "0.50", "10", "0.01", "5000000", "10000000"},
		{"buy truncates size", domain.OrderSideBuy, "0.57", "12.345", "0.01", "7033800", "12340000"},
		{"sell reversed", domain.OrderSideSell, "0.57", "12.345", "0.01", "12340000", "7033800"},
		{"fine tick", domain.OrderSideBuy, "0.0123", "100", "0.0001", "1230000", "100000000"},
		{"coarse tick", domain.OrderSideBuy, "0.3", "3.333", "0.1", "999000", "3330000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, ok := roundingFor(decimal.RequireFromString(tt.tick))
			require.True(t, ok)
			maker, taker := orderAmounts(tt.side, decimal.RequireFromString(tt.price), decimal.RequireFromString(tt.size), cfg)
			assert.Equal(t, tt.maker, maker.String())
			assert.Equal(t, tt.taker, taker.String())
		})
	}
}

func TestSignatureTypeFor(t *testing.T) {
	assert.Equal(t, domain.SignatureTypeEOA, signatureTypeFor(testSigner, testSigner))
	assert.Equal(t, domain.SignatureTypeGnosisSafe, signatureTypeFor(testSigner, testFunder))
}
