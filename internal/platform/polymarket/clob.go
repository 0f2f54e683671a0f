package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/polyonboard/internal/crypto"
	"github.com/alanyoungcy/polyonboard/internal/domain"
)

// AuthSigner signs the ClobAuth message for L1 requests.
type AuthSigner interface {
	Address() common.Address
	SignClobAuth(timestamp, nonce int64) (string, error)
}

// ClobClient is the REST client for the Polymarket CLOB (Central Limit
// Order Book) API: credential management, order placement and collateral
// balance queries.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	builder    BuilderSigner
	now        func() time.Time
}

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
// rps throttles outbound requests (0 disables throttling).
// builder, when non-nil, adds attribution headers to order submissions.
func NewClobClient(baseURL string, rps float64, builder BuilderSigner) *ClobClient {
	return &ClobClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: newLimiter(rps),
		builder: builder,
		now:     time.Now,
	}
}

// DeriveAPIKey returns the existing API key for signer and nonce. The CLOB
// derives it deterministically, so repeated calls return the same triple.
func (c *ClobClient) DeriveAPIKey(ctx context.Context, signer AuthSigner, nonce int64) (domain.TradingCredentials, error) {
	creds, err := c.l1Request(ctx, http.MethodGet, "/auth/derive-api-key", signer, nonce)
	if err != nil {
		return domain.TradingCredentials{}, fmt.Errorf("polymarket/clob: derive api key: %w", err)
	}
	return creds, nil
}

// CreateAPIKey issues a new API key for signer and nonce.
func (c *ClobClient) CreateAPIKey(ctx context.Context, signer AuthSigner, nonce int64) (domain.TradingCredentials, error) {
	creds, err := c.l1Request(ctx, http.MethodPost, "/auth/api-key", signer, nonce)
	if err != nil {
		return domain.TradingCredentials{}, fmt.Errorf("polymarket/clob: create api key: %w", err)
	}
	return creds, nil
}

// DeleteAPIKey revokes the key in creds.
func (c *ClobClient) DeleteAPIKey(ctx context.Context, address common.Address, creds domain.TradingCredentials) error {
	if _, err := c.l2Request(ctx, http.MethodDelete, "/auth/api-key", "", address, creds, false); err != nil {
		return fmt.Errorf("polymarket/clob: delete api key: %w", err)
	}
	return nil
}

// PostOrder submits a signed order authenticated with creds. A 401/403 is
// returned as an error matching domain.ErrUnauthorized.
func (c *ClobClient) PostOrder(ctx context.Context, address common.Address, creds domain.TradingCredentials, order domain.SignedOrder, orderType domain.OrderType) (domain.OrderResult, error) {
	ot, err := wireOrderType(orderType)
	if err != nil {
		return domain.OrderResult{}, err
	}
	body, err := json.Marshal(APIPostOrder{
		Order:     ToAPIOrder(order),
		Owner:     creds.Key,
		OrderType: string(ot),
	})
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: marshal order: %w", err)
	}

	respBody, err := c.l2Request(ctx, http.MethodPost, "/order", string(body), address, creds, true)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	var apiResult APIOrderResult
	if err := json.Unmarshal(respBody, &apiResult); err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}

	result := apiResult.ToDomainOrderResult()
	if !result.Success {
		return result, fmt.Errorf("polymarket/clob: order rejected: %s", result.Message)
	}
	return result, nil
}

// CollateralBalance returns the collateral deposited on the exchange for the
// credentials' funder, in USDC (not minor units).
func (c *ClobClient) CollateralBalance(ctx context.Context, address common.Address, creds domain.TradingCredentials, sigType domain.SignatureType) (decimal.Decimal, error) {
	query := "?asset_type=COLLATERAL&signature_type=" + strconv.Itoa(int(sigType))
	respBody, err := c.l2RequestQuery(ctx, http.MethodGet, "/balance-allowance", query, "", address, creds, false)
	if err != nil {
		return decimal.Zero, fmt.Errorf("polymarket/clob: balance allowance: %w", err)
	}

	var ba APIBalanceAllowance
	if err := json.Unmarshal(respBody, &ba); err != nil {
		return decimal.Zero, fmt.Errorf("polymarket/clob: decode balance: %w", err)
	}
	if ba.Balance == "" {
		return decimal.Zero, nil
	}
	minor, err := decimal.NewFromString(ba.Balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("polymarket/clob: parse balance %q: %w", ba.Balance, err)
	}
	return minor.Shift(-6), nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// l1Request sends a request authenticated by a ClobAuth signature:
// POLY_ADDRESS, POLY_SIGNATURE, POLY_TIMESTAMP, POLY_NONCE.
func (c *ClobClient) l1Request(ctx context.Context, method, path string, signer AuthSigner, nonce int64) (domain.TradingCredentials, error) {
	timestamp := c.now().Unix()
	sig, err := signer.SignClobAuth(timestamp, nonce)
	if err != nil {
		return domain.TradingCredentials{}, &domain.SigningRejectedError{Op: "clob auth", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return domain.TradingCredentials{}, fmt.Errorf("create request: %w", err)
	}
	setHeaders(req, map[string]string{
		"POLY_ADDRESS":   signer.Address().Hex(),
		"POLY_SIGNATURE": sig,
		"POLY_TIMESTAMP": strconv.FormatInt(timestamp, 10),
		"POLY_NONCE":     strconv.FormatInt(nonce, 10),
	})

	respBody, err := send(ctx, c.httpClient, c.limiter, req)
	if err != nil {
		return domain.TradingCredentials{}, err
	}

	var authResp APICredentials
	if err := json.Unmarshal(respBody, &authResp); err != nil {
		return domain.TradingCredentials{}, fmt.Errorf("decode auth response: %w", err)
	}
	creds := domain.TradingCredentials{
		Key:        authResp.APIKey,
		Secret:     authResp.Secret,
		Passphrase: authResp.Passphrase,
		IssuedAt:   c.now().UTC(),
	}
	if !creds.Valid() {
		return domain.TradingCredentials{}, fmt.Errorf("incomplete credentials in response")
	}
	return creds, nil
}

func (c *ClobClient) l2Request(ctx context.Context, method, path, body string, address common.Address, creds domain.TradingCredentials, withBuilder bool) ([]byte, error) {
	return c.l2RequestQuery(ctx, method, path, "", body, address, creds, withBuilder)
}

// l2RequestQuery signs method+path+body with the trading credentials. The
// query string is appended to the URL but is not part of the signed path.
func (c *ClobClient) l2RequestQuery(ctx context.Context, method, path, query, body string, address common.Address, creds domain.TradingCredentials, withBuilder bool) ([]byte, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = bytes.NewReader([]byte(body))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+query, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	setHeaders(req, crypto.FromCredentials(creds).L2HeadersAt(address.Hex(), method, path, body, c.now().Unix()))

	if withBuilder && c.builder != nil {
		bh, err := c.builder.Headers(ctx, method, path, body)
		if err != nil {
			return nil, err
		}
		setHeaders(req, bh)
	}

	return send(ctx, c.httpClient, c.limiter, req)
}
