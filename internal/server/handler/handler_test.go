package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyonboard/internal/domain"
	"github.com/alanyoungcy/polyonboard/internal/service"
)

var testWallet = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type response struct {
	OK          bool            `json:"ok"`
	OperationID string          `json:"operationId"`
	Data        json.RawMessage `json:"data"`
	Error       *struct {
		Code      string         `json:"code"`
		Message   string         `json:"message"`
		Retryable bool           `json:"retryable"`
		Detail    map[string]any `json:"detail"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) response {
	t.Helper()
	var r response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r), rec.Body.String())
	return r
}

type recordingBus struct {
	mu       sync.Mutex
	channels []string
}

func (b *recordingBus) Publish(_ context.Context, channel string, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels = append(b.channels, channel)
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

type stubOrders struct {
	got domain.OrderRequest
	err error
}

func (s *stubOrders) SubmitOrder(_ context.Context, req domain.OrderRequest, rep *service.Reporter) (domain.OrderResult, error) {
	s.got = req
	rep.Emit(domain.StageSubmitting, "posting", nil)
	if s.err != nil {
		return domain.OrderResult{}, s.err
	}
	return domain.OrderResult{Success: true, OrderID: "0xorder", Attempts: 1}, nil
}

func TestPlaceOrder_Success(t *testing.T) {
	orders := &stubOrders{}
	bus := &recordingBus{}
	h := NewOrderHandler(orders, bus, testLogger())

	body := `{"tokenId":"123","price":"0.50","size":"10","side":"BUY","tickSize":"0.01"}`
	rec := httptest.NewRecorder()
	h.PlaceOrder(rec, httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	r := decode(t, rec)
	assert.True(t, r.OK)
	assert.NotEmpty(t, r.OperationID)
	assert.True(t, orders.got.Price.Equal(decimal.RequireFromString("0.5")))

	// started, submitting, succeeded
	assert.Len(t, bus.channels, 3)
	for _, ch := range bus.channels {
		assert.Equal(t, service.ProgressChannel, ch)
	}
}

func TestPlaceOrder_InsufficientBalanceEnvelope(t *testing.T) {
	orders := &stubOrders{err: &domain.InsufficientBalanceError{
		Available: decimal.RequireFromString("4.99"),
		Required:  decimal.RequireFromString("5.00"),
	}}
	h := NewOrderHandler(orders, nil, testLogger())

	body := `{"tokenId":"123","price":"0.50","size":"10","side":"BUY","tickSize":"0.01"}`
	rec := httptest.NewRecorder()
	h.PlaceOrder(rec, httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body)))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	r := decode(t, rec)
	assert.False(t, r.OK)
	require.NotNil(t, r.Error)
	assert.Equal(t, "INSUFFICIENT_BALANCE", r.Error.Code)
	assert.Equal(t, "4.99", r.Error.Detail["available"])
	assert.Equal(t, "5.00", r.Error.Detail["required"])
}

func TestPlaceOrder_RejectsUnknownFieldsAndEmptyBody(t *testing.T) {
	h := NewOrderHandler(&stubOrders{}, nil, testLogger())

	for _, body := range []string{`{"tokenId":"1","bogus":true}`, ``, `not json`} {
		rec := httptest.NewRecorder()
		h.PlaceOrder(rec, httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "INVALID_REQUEST", decode(t, rec).Error.Code, body)
	}
}

type stubApprovals struct {
	rec     domain.ApprovalRecord
	current *domain.ApprovalRecord
	err     error
}

func (s *stubApprovals) CheckApprovals(context.Context, common.Address) (domain.ApprovalRecord, error) {
	return s.rec, s.err
}

func (s *stubApprovals) ApproveAll(_ context.Context, _ common.Address, current *domain.ApprovalRecord, _ *service.Reporter) (domain.ApproveResult, error) {
	s.current = current
	return domain.ApproveResult{Skipped: current != nil && current.AllApproved()}, s.err
}

func TestGetApprovals(t *testing.T) {
	approvals := &stubApprovals{rec: domain.ApprovalRecord{USDCToCTF: true}}
	h := NewApprovalHandler(approvals, testWallet, nil, testLogger())

	rec := httptest.NewRecorder()
	h.GetApprovals(rec, httptest.NewRequest(http.MethodGet, "/api/approvals", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var data approvalsResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &data))
	assert.Equal(t, testWallet, data.Wallet)
	assert.True(t, data.Approvals.USDCToCTF)
	assert.False(t, data.AllApproved)

	rec = httptest.NewRecorder()
	h.GetApprovals(rec, httptest.NewRequest(http.MethodGet, "/api/approvals?wallet=nope", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetApprovals_RpcExhaustedIsRetryable(t *testing.T) {
	approvals := &stubApprovals{err: &domain.RpcExhaustedError{Endpoints: 2, Last: errors.New("dial")}}
	h := NewApprovalHandler(approvals, testWallet, nil, testLogger())

	rec := httptest.NewRecorder()
	h.GetApprovals(rec, httptest.NewRequest(http.MethodGet, "/api/approvals", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	r := decode(t, rec)
	assert.Equal(t, "RPC_EXHAUSTED", r.Error.Code)
	assert.True(t, r.Error.Retryable)
}

func TestApproveAll_PassesCurrentAndRejectsOtherWallets(t *testing.T) {
	approvals := &stubApprovals{}
	h := NewApprovalHandler(approvals, testWallet, nil, testLogger())

	body := `{"current":{"usdcToCTF":true,"usdcToExchange":true,"usdcToNegRiskExchange":true,"ctfToExchange":true,"ctfToNegRiskExchange":true,"ctfToNegRiskAdapter":true}}`
	rec := httptest.NewRecorder()
	h.ApproveAll(rec, httptest.NewRequest(http.MethodPost, "/api/approvals", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, approvals.current)
	assert.True(t, approvals.current.AllApproved())

	rec = httptest.NewRecorder()
	h.ApproveAll(rec, httptest.NewRequest(http.MethodPost, "/api/approvals?wallet=0x00000000000000000000000000000000000000bb", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubCreds struct {
	funder common.Address
	resets int
}

func (s *stubCreds) Derive(_ context.Context, funder common.Address, _ *service.Reporter) (domain.TradingCredentials, error) {
	s.funder = funder
	return domain.TradingCredentials{Key: "key-1", Secret: "top-secret", Passphrase: "pass", Scope: domain.CredentialScope{Funder: funder}}, nil
}

func (s *stubCreds) Reset(_ context.Context, _ common.Address, _ *service.Reporter) (domain.TradingCredentials, error) {
	s.resets++
	return domain.TradingCredentials{}, domain.ErrLockHeld
}

func TestCredentials_NeverExposeSecrets(t *testing.T) {
	creds := &stubCreds{}
	h := NewCredentialHandler(creds, testWallet, nil, testLogger())

	rec := httptest.NewRecorder()
	h.Derive(rec, httptest.NewRequest(http.MethodPost, "/api/credentials/derive", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testWallet, creds.funder)
	assert.Contains(t, rec.Body.String(), "key-1")
	assert.NotContains(t, rec.Body.String(), "top-secret")
	assert.NotContains(t, rec.Body.String(), "pass\"")
}

func TestCredentials_ResetInProgressIsConflict(t *testing.T) {
	creds := &stubCreds{}
	h := NewCredentialHandler(creds, testWallet, nil, testLogger())

	rec := httptest.NewRecorder()
	h.Reset(rec, httptest.NewRequest(http.MethodPost, "/api/credentials/reset", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", decode(t, rec).Error.Code)
	assert.Equal(t, 1, creds.resets)
}

func TestHealthCheck_DegradedWhenAnyCheckFails(t *testing.T) {
	h := NewHealthHandler(map[string]Check{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}, testLogger())

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var report healthReport
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &report))
	assert.Equal(t, "degraded", report.Status)
	assert.Equal(t, "ok", report.Checks["postgres"])
	assert.Equal(t, "connection refused", report.Checks["redis"])
}

type stubAudit struct {
	wallet string
	opts   domain.ListOpts
}

func (s *stubAudit) Log(context.Context, string, string, map[string]any) error { return nil }

func (s *stubAudit) List(_ context.Context, wallet string, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.wallet, s.opts = wallet, opts
	return nil, nil
}

func TestListAudit_ParsesFilters(t *testing.T) {
	audit := &stubAudit{}
	h := NewAuditHandler(audit, testLogger())

	url := "/api/audit?wallet=" + testWallet.Hex() + "&limit=900&offset=5&since=2026-01-02T00:00:00Z"
	rec := httptest.NewRecorder()
	h.ListAudit(rec, httptest.NewRequest(http.MethodGet, url, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testWallet.Hex(), audit.wallet)
	assert.Equal(t, 500, audit.opts.Limit)
	assert.Equal(t, 5, audit.opts.Offset)
	require.NotNil(t, audit.opts.Since)
	assert.True(t, audit.opts.Since.Equal(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)))
	assert.JSONEq(t, `{"entries":[]}`, string(decode(t, rec).Data))

	rec = httptest.NewRecorder()
	h.ListAudit(rec, httptest.NewRequest(http.MethodGet, "/api/audit?until=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubReceipts struct {
	kind string
	day  time.Time
	docs map[string]string
}

func (s *stubReceipts) ListReceipts(_ context.Context, kind string, day time.Time) ([]domain.Receipt, error) {
	s.kind, s.day = kind, day
	return []domain.Receipt{{ID: "a", Kind: kind, Day: day.Format(time.DateOnly), Path: domain.ReceiptPath(kind, day, "a"), Size: 2}}, nil
}

func (s *stubReceipts) OpenReceipt(_ context.Context, kind string, day time.Time, id string) (io.ReadCloser, error) {
	doc, ok := s.docs[domain.ReceiptPath(kind, day, id)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(doc)), nil
}

func TestReceipts(t *testing.T) {
	receipts := &stubReceipts{docs: map[string]string{"receipts/orders/2026-01-02/a.json": `{"orderId":"a"}`}}
	h := NewReceiptHandler(receipts, testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/receipts", h.ListReceipts)
	mux.HandleFunc("GET /api/receipts/{kind}/{date}/{id}", h.GetReceipt)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/receipts?kind=orders&date=2026-01-02", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ReceiptOrders, receipts.kind)
	assert.Equal(t, "2026-01-02", receipts.day.Format(time.DateOnly))
	assert.Contains(t, rec.Body.String(), `"id":"a"`)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/receipts?kind=secrets", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for _, p := range []string{"/api/receipts/orders/2026-01-02/a.json", "/api/receipts/orders/2026-01-02/a"} {
		rec = httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p, nil))
		require.Equal(t, http.StatusOK, rec.Code, p)
		assert.JSONEq(t, `{"orderId":"a"}`, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/receipts/orders/2026-01-02/missing.json", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/receipts/orders/yesterday/a.json", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/receipts/orders/2026-01-02/.hidden", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
