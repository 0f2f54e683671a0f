package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/polyonboard/internal/domain"
)

// RelayerClient talks to the Polymarket relayer, which executes Safe
// transactions on the owner's behalf and pays the gas. Every submission
// carries builder attribution headers.
type RelayerClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	builder    BuilderSigner
}

// NewRelayerClient creates a relayer client for baseURL, e.g.
// "https://relayer-v2.polymarket.com".
func NewRelayerClient(baseURL string, rps float64, builder BuilderSigner) *RelayerClient {
	return &RelayerClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: newLimiter(rps),
		builder: builder,
	}
}

// GetNonce returns the current Safe nonce for owner.
func (r *RelayerClient) GetNonce(ctx context.Context, owner common.Address) (*big.Int, error) {
	q := url.Values{"address": {owner.Hex()}, "type": {RelayerTypeSafe}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/nonce?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/relayer: create nonce request: %w", err)
	}

	respBody, err := send(ctx, r.httpClient, r.limiter, req)
	if err != nil {
		return nil, fmt.Errorf("polymarket/relayer: get nonce: %w", err)
	}

	var n apiNonce
	if err := json.Unmarshal(respBody, &n); err != nil {
		return nil, fmt.Errorf("polymarket/relayer: decode nonce: %w", err)
	}
	raw, ok := n.value()
	if !ok {
		return nil, fmt.Errorf("polymarket/relayer: invalid nonce %s", string(n.Nonce))
	}
	nonce, _ := new(big.Int).SetString(raw, 10)
	return nonce, nil
}

// Submit posts a signed request and returns the accepted job. Acceptance
// does not imply the transaction has been mined.
func (r *RelayerClient) Submit(ctx context.Context, sub SubmitRequest) (domain.RelayerJob, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return domain.RelayerJob{}, fmt.Errorf("polymarket/relayer: marshal submit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/submit", bytes.NewReader(body))
	if err != nil {
		return domain.RelayerJob{}, fmt.Errorf("polymarket/relayer: create submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if r.builder != nil {
		headers, err := r.builder.Headers(ctx, http.MethodPost, "/submit", string(body))
		if err != nil {
			return domain.RelayerJob{}, fmt.Errorf("polymarket/relayer: builder headers: %w", err)
		}
		setHeaders(req, headers)
	}

	respBody, err := send(ctx, r.httpClient, r.limiter, req)
	if err != nil {
		return domain.RelayerJob{}, fmt.Errorf("polymarket/relayer: submit: %w", err)
	}

	var tx APIRelayerTransaction
	if err := json.Unmarshal(respBody, &tx); err != nil {
		return domain.RelayerJob{}, fmt.Errorf("polymarket/relayer: decode submit response: %w", err)
	}
	if tx.TransactionID == "" {
		return domain.RelayerJob{}, fmt.Errorf("polymarket/relayer: submit response has no transactionID")
	}
	return tx.ToDomainJob(), nil
}

// GetTransaction returns the current state of job id.
func (r *RelayerClient) GetTransaction(ctx context.Context, id string) (domain.RelayerJob, error) {
	q := url.Values{"id": {id}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/transaction?"+q.Encode(), nil)
	if err != nil {
		return domain.RelayerJob{}, fmt.Errorf("polymarket/relayer: create transaction request: %w", err)
	}

	respBody, err := send(ctx, r.httpClient, r.limiter, req)
	if err != nil {
		return domain.RelayerJob{}, fmt.Errorf("polymarket/relayer: get transaction %s: %w", id, err)
	}

	// The endpoint answers with a list; accept a bare object too.
	var txs []APIRelayerTransaction
	if err := json.Unmarshal(respBody, &txs); err != nil {
		var tx APIRelayerTransaction
		if err2 := json.Unmarshal(respBody, &tx); err2 != nil {
			return domain.RelayerJob{}, fmt.Errorf("polymarket/relayer: decode transaction: %w", err)
		}
		txs = []APIRelayerTransaction{tx}
	}
	if len(txs) == 0 {
		return domain.RelayerJob{}, fmt.Errorf("polymarket/relayer: transaction %s: %w", id, domain.ErrNotFound)
	}

	job := txs[0].ToDomainJob()
	if job.TransactionID == "" {
		job.TransactionID = id
	}
	return job, nil
}
