// Package chain runs read-only contract queries against a ranked list of RPC
// endpoints, moving to the next endpoint whenever one fails.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// BlockchainReader is one read endpoint.
type BlockchainReader interface {
	Endpoint() string
	CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, block *big.Int) ([]byte, error)
}

// EthReader is a BlockchainReader backed by a go-ethereum JSON-RPC client.
// The connection is dialled lazily on first use and reused afterwards.
type EthReader struct {
	url    string
	mu     sync.Mutex
	client *ethclient.Client
}

// NewEthReader returns a reader for the given RPC URL. No connection is made
// until the first call.
func NewEthReader(url string) *EthReader {
	return &EthReader{url: strings.TrimSpace(url)}
}

// Endpoint returns the RPC URL.
func (r *EthReader) Endpoint() string { return r.url }

// CallContract executes a read-only call.
func (r *EthReader) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	client, err := r.getClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.CallContract(ctx, msg, block)
}

// CodeAt returns the runtime bytecode at account.
func (r *EthReader) CodeAt(ctx context.Context, account common.Address, block *big.Int) ([]byte, error) {
	client, err := r.getClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.CodeAt(ctx, account, block)
}

// Close releases the underlying connection if one was opened.
func (r *EthReader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		r.client.Close()
		r.client = nil
	}
}

func (r *EthReader) getClient(ctx context.Context) (*ethclient.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		return r.client, nil
	}
	client, err := ethclient.DialContext(ctx, r.url)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", r.url, err)
	}
	r.client = client
	return r.client, nil
}
