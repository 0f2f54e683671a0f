package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/alanyoungcy/polyonboard/internal/domain"
)

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APICredentials is the body returned by the derive/create api-key endpoints.
type APICredentials struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// APIOrder is the signed order as the CLOB expects it on POST /order.
type APIOrder struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// APIPostOrder is the full POST /order body. Owner is the API key of the
// credentials used to authenticate the request.
type APIPostOrder struct {
	Order     APIOrder `json:"order"`
	Owner     string   `json:"owner"`
	OrderType string   `json:"orderType"`
}

// APIOrderResult is the response from placing an order via the CLOB API.
type APIOrderResult struct {
	Success     bool   `json:"success"`
	ErrorMsg    string `json:"errorMsg,omitempty"`
	OrderID     string `json:"orderID,omitempty"`
	Status      string `json:"status,omitempty"`
	ShouldRetry bool   `json:"shouldRetry,omitempty"`
}

// APIBalanceAllowance is the response of GET /balance-allowance. Balance is
// in collateral minor units.
type APIBalanceAllowance struct {
	Balance   string `json:"balance"`
	Allowance string `json:"allowance,omitempty"`
}

// ToAPIOrder converts a signed order to its wire form.
func ToAPIOrder(o domain.SignedOrder) APIOrder {
	return APIOrder{
		Salt:          o.Salt,
		Maker:         o.Maker.Hex(),
		Signer:        o.Signer.Hex(),
		Taker:         o.Taker.Hex(),
		TokenID:       bigString(o.TokenID),
		MakerAmount:   bigString(o.MakerAmount),
		TakerAmount:   bigString(o.TakerAmount),
		Expiration:    bigString(o.Expiration),
		Nonce:         bigString(o.Nonce),
		FeeRateBps:    bigString(o.FeeRateBps),
		Side:          string(o.Side),
		SignatureType: int(o.SignatureType),
		Signature:     o.Signature,
	}
}

// ToDomainOrderResult converts the API response to a domain OrderResult.
func (r APIOrderResult) ToDomainOrderResult() domain.OrderResult {
	return domain.OrderResult{
		Success: r.Success,
		OrderID: r.OrderID,
		Status:  r.Status,
		Message: r.ErrorMsg,
	}
}

// --------------------------------------------------------------------------
// Relayer API DTOs
// --------------------------------------------------------------------------

// Relayer transaction types.
const (
	RelayerTypeSafe       = "SAFE"
	RelayerTypeSafeCreate = "SAFE-CREATE"
)

// SignatureParams carries the Safe execution parameters for SAFE requests,
// or the payment parameters for SAFE-CREATE requests.
type SignatureParams struct {
	GasPrice        string `json:"gasPrice,omitempty"`
	Operation       string `json:"operation,omitempty"`
	SafeTxnGas      string `json:"safeTxnGas,omitempty"`
	BaseGas         string `json:"baseGas,omitempty"`
	GasToken        string `json:"gasToken,omitempty"`
	RefundReceiver  string `json:"refundReceiver,omitempty"`
	PaymentToken    string `json:"paymentToken,omitempty"`
	Payment         string `json:"payment,omitempty"`
	PaymentReceiver string `json:"paymentReceiver,omitempty"`
}

// SubmitRequest is the POST /submit body.
type SubmitRequest struct {
	From            string          `json:"from"`
	To              string          `json:"to"`
	ProxyWallet     string          `json:"proxyWallet"`
	Data            string          `json:"data"`
	Nonce           string          `json:"nonce,omitempty"`
	Signature       string          `json:"signature"`
	SignatureParams SignatureParams `json:"signatureParams"`
	Type            string          `json:"type"`
	Metadata        string          `json:"metadata,omitempty"`
}

// APIRelayerTransaction is a relayer job as returned by /submit and
// /transaction.
type APIRelayerTransaction struct {
	TransactionID   string `json:"transactionID"`
	TransactionHash string `json:"transactionHash"`
	State           string `json:"state"`
	ProxyAddress    string `json:"proxyAddress,omitempty"`
	ErrorMsg        string `json:"errorMsg,omitempty"`
}

// ToDomainJob maps the wire state onto the domain lifecycle.
func (t APIRelayerTransaction) ToDomainJob() domain.RelayerJob {
	return domain.RelayerJob{
		TransactionID:   t.TransactionID,
		State:           MapRelayerState(t.State),
		TransactionHash: t.TransactionHash,
	}
}

// MapRelayerState maps relayer wire states to the domain set. Unknown states
// are treated as still pending.
func MapRelayerState(s string) domain.RelayerState {
	switch strings.TrimPrefix(strings.ToUpper(s), "STATE_") {
	case "MINED":
		return domain.RelayerStateMined
	case "CONFIRMED":
		return domain.RelayerStateConfirmed
	case "FAILED", "INVALID":
		return domain.RelayerStateFailed
	default: // NEW, EXECUTED, PENDING
		return domain.RelayerStatePending
	}
}

// apiNonce accepts the nonce as a JSON string or number.
type apiNonce struct {
	Nonce json.RawMessage `json:"nonce"`
}

func (n apiNonce) value() (string, bool) {
	raw := strings.Trim(string(n.Nonce), `"`)
	if raw == "" {
		return "", false
	}
	if _, err := strconv.ParseUint(raw, 10, 64); err != nil {
		return "", false
	}
	return raw, true
}
