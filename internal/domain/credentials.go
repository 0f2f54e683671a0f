package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// CredentialScope ties trading credentials to the signing EOA and the funder
// (the smart wallet, or the EOA itself when trading directly).
type CredentialScope struct {
	Signer common.Address `json:"signer"`
	Funder common.Address `json:"funder"`
}

// Key is a stable string form used for cache and lock keys.
func (s CredentialScope) Key() string {
	return s.Signer.Hex() + ":" + s.Funder.Hex()
}

func (s CredentialScope) String() string {
	return fmt.Sprintf("signer=%s funder=%s", s.Signer.Hex(), s.Funder.Hex())
}

// TradingCredentials is the API key/secret/passphrase triple used for L2
// (HMAC) authentication against the order book.
type TradingCredentials struct {
	Key        string          `json:"apiKey"`
	Secret     string          `json:"secret"`
	Passphrase string          `json:"passphrase"`
	Scope      CredentialScope `json:"scope"`
	IssuedAt   time.Time       `json:"issuedAt"`
}

// Valid reports whether all three credential parts are present.
func (c TradingCredentials) Valid() bool {
	return c.Key != "" && c.Secret != "" && c.Passphrase != ""
}

// String redacts the secret parts.
func (c TradingCredentials) String() string {
	key := c.Key
	if len(key) > 8 {
		key = key[:8] + "…"
	}
	return fmt.Sprintf("TradingCredentials{key=%s, scope=%s}", key, c.Scope)
}
