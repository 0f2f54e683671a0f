package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIJSON = `[
{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

const erc1155ABIJSON = `[
{"constant":true,"inputs":[{"name":"account","type":"address"},{"name":"operator","type":"address"}],"name":"isApprovedForAll","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"},
{"constant":false,"inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],"name":"setApprovalForAll","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

var (
	erc20ABI   = mustParseABI(erc20ABIJSON)
	erc1155ABI = mustParseABI(erc1155ABIJSON)

	// MaxUint256 is the "unlimited" ERC-20 allowance.
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("chain: parse abi: %v", err))
	}
	return parsed
}

// Contracts exposes typed ERC-20 / ERC-1155 reads through a Failover.
type Contracts struct {
	rpc *Failover
}

// NewContracts wraps rpc.
func NewContracts(rpc *Failover) *Contracts {
	return &Contracts{rpc: rpc}
}

// Allowance returns token.allowance(owner, spender).
func (c *Contracts) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("chain: pack allowance: %w", err)
	}
	var out *big.Int
	err = c.rpc.Query(ctx, ethereum.CallMsg{To: &token, Data: data}, func(raw []byte) error {
		v, err := unpackUint(erc20ABI, "allowance", raw)
		out = v
		return err
	})
	return out, err
}

// BalanceOf returns token.balanceOf(owner).
func (c *Contracts) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("chain: pack balanceOf: %w", err)
	}
	var out *big.Int
	err = c.rpc.Query(ctx, ethereum.CallMsg{To: &token, Data: data}, func(raw []byte) error {
		v, err := unpackUint(erc20ABI, "balanceOf", raw)
		out = v
		return err
	})
	return out, err
}

// IsApprovedForAll returns token.isApprovedForAll(owner, operator).
func (c *Contracts) IsApprovedForAll(ctx context.Context, token, owner, operator common.Address) (bool, error) {
	data, err := erc1155ABI.Pack("isApprovedForAll", owner, operator)
	if err != nil {
		return false, fmt.Errorf("chain: pack isApprovedForAll: %w", err)
	}
	var out bool
	err = c.rpc.Query(ctx, ethereum.CallMsg{To: &token, Data: data}, func(raw []byte) error {
		vals, err := erc1155ABI.Unpack("isApprovedForAll", raw)
		if err != nil {
			return err
		}
		b, ok := vals[0].(bool)
		if !ok {
			return fmt.Errorf("unexpected isApprovedForAll output %T", vals[0])
		}
		out = b
		return nil
	})
	return out, err
}

// IsDeployed reports whether addr has contract code.
func (c *Contracts) IsDeployed(ctx context.Context, addr common.Address) (bool, error) {
	code, err := c.rpc.Code(ctx, addr)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

// ApproveMaxCalldata encodes approve(spender, 2^256-1).
func ApproveMaxCalldata(spender common.Address) ([]byte, error) {
	return erc20ABI.Pack("approve", spender, MaxUint256)
}

// SetApprovalForAllCalldata encodes setApprovalForAll(operator, approved).
func SetApprovalForAllCalldata(operator common.Address, approved bool) ([]byte, error) {
	return erc1155ABI.Pack("setApprovalForAll", operator, approved)
}

func unpackUint(parsed abi.ABI, method string, raw []byte) (*big.Int, error) {
	vals, err := parsed.Unpack(method, raw)
	if err != nil {
		return nil, err
	}
	n, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s output %T", method, vals[0])
	}
	return n, nil
}
