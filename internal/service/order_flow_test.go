package service

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyonboard/internal/crypto"
	"github.com/alanyoungcy/polyonboard/internal/domain"
	"github.com/alanyoungcy/polyonboard/internal/platform/polymarket"
	"github.com/alanyoungcy/polyonboard/internal/session"
)

// clobStub is a CLOB that derives "key-1" and issues "key-2" on create.
type clobStub struct {
	mu sync.Mutex

	// rejected keys get a 401 from the matching endpoint.
	balanceRejects map[string]bool
	orderRejects   map[string]bool

	creates int
	deletes []string
	orders  []string
}

func (c *clobStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := r.Header.Get("POLY_API_KEY")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/auth/derive-api-key":
		_ = json.NewEncoder(w).Encode(polymarket.APICredentials{APIKey: "key-1", Secret: "c2VjcmV0", Passphrase: "p"})
	case r.Method == http.MethodPost && r.URL.Path == "/auth/api-key":
		c.creates++
		_ = json.NewEncoder(w).Encode(polymarket.APICredentials{APIKey: "key-2", Secret: "c2VjcmV0", Passphrase: "p"})
	case r.Method == http.MethodDelete && r.URL.Path == "/auth/api-key":
		c.deletes = append(c.deletes, key)
		w.WriteHeader(http.StatusOK)
	case r.URL.Path == "/balance-allowance":
		if c.balanceRejects[key] {
			http.Error(w, `{"error":"Unauthorized/Invalid api key"}`, http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(polymarket.APIBalanceAllowance{Balance: "100000000"})
	case r.Method == http.MethodPost && r.URL.Path == "/order":
		c.orders = append(c.orders, key)
		if c.orderRejects[key] {
			http.Error(w, `{"error":"Unauthorized/Invalid api key"}`, http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(polymarket.APIOrderResult{Success: true, OrderID: "0xabc", Status: "live"})
	default:
		http.NotFound(w, r)
	}
}

// newWiredOrderService assembles the order path on the real CLOB client,
// credential service and balance service.
func newWiredOrderService(t *testing.T, clobURL string, builder polymarket.BuilderSigner) *OrderService {
	t.Helper()
	signer, err := crypto.NewSigner(testKeyHex, 137)
	require.NoError(t, err)

	clob := polymarket.NewClobClient(clobURL, 0, builder)
	creds := NewCredentialService(clob, signer, session.New(), nil, &fakeLocks{}, nil, nil, CredentialOptions{}, testLogger())
	balances := NewBalanceService(&fakeTokenBalance{raw: big.NewInt(0)}, clob, creds, testContracts.USDC, signer.Address(), testLogger())

	return NewOrderService(clob, signer, creds, balances, OrderConfig{
		Exchange:        testContracts.Exchange,
		NegRiskExchange: testContracts.NegRiskExchange,
		Funder:          testFunder,
	}, nil, &fakeBus{}, &fakeBlob{}, &fakeAudit{}, testLogger())
}

func TestSubmitOrder_ResetsOnceWhenStaleKeyIsRejected(t *testing.T) {
	tests := []struct {
		name           string
		balanceRejects bool
		wantOrders     []string
	}{
		{"rejected by balance check", true, []string{"key-2"}},
		{"rejected by order endpoint", false, []string{"key-1", "key-2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &clobStub{
				balanceRejects: map[string]bool{"key-1": tt.balanceRejects},
				orderRejects:   map[string]bool{"key-1": true},
			}
			srv := httptest.NewServer(stub)
			defer srv.Close()

			svc := newWiredOrderService(t, srv.URL, nil)
			result, err := svc.SubmitOrder(context.Background(), order("0.5", "10", domain.OrderSideBuy), nil)

			require.NoError(t, err)
			assert.Equal(t, "0xabc", result.OrderID)
			assert.Equal(t, 2, result.Attempts)
			assert.True(t, result.CredentialsReset)
			assert.Equal(t, 1, stub.creates)
			assert.Equal(t, []string{"key-1"}, stub.deletes)
			assert.Equal(t, tt.wantOrders, stub.orders)
		})
	}
}

func TestSubmitOrder_SecondRejectionExpiresCredentials(t *testing.T) {
	stub := &clobStub{
		balanceRejects: map[string]bool{"key-1": true, "key-2": true},
	}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	svc := newWiredOrderService(t, srv.URL, nil)
	_, err := svc.SubmitOrder(context.Background(), order("0.5", "10", domain.OrderSideBuy), nil)

	var expired *domain.CredentialExpiredError
	require.ErrorAs(t, err, &expired)
	assert.Equal(t, 2, expired.Attempts)
	assert.Equal(t, 1, stub.creates)
	assert.Empty(t, stub.orders)
}

func TestSubmitOrder_BuilderRejectionKeepsCredentials(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"token expired"}`, http.StatusUnauthorized)
	}))
	defer remote.Close()

	stub := &clobStub{}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	builder := polymarket.NewRemoteBuilderSigner(remote.URL, polymarket.StaticToken("stale"))
	svc := newWiredOrderService(t, srv.URL, builder)
	_, err := svc.SubmitOrder(context.Background(), order("0.5", "10", domain.OrderSideBuy), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBuilderAuth)
	assert.NotErrorIs(t, err, domain.ErrUnauthorized)
	var expired *domain.CredentialExpiredError
	assert.False(t, errors.As(err, &expired))
	assert.Zero(t, stub.creates)
	assert.Empty(t, stub.deletes)
	assert.Empty(t, stub.orders)
}
