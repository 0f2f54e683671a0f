package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType indicates the time-in-force policy.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // Good-Till-Cancelled
	OrderTypeGTD OrderType = "GTD" // Good-Till-Date
	OrderTypeFOK OrderType = "FOK" // Fill-Or-Kill
	OrderTypeFAK OrderType = "FAK" // Fill-And-Kill
)

// SignatureType selects how the exchange verifies the order signature.
type SignatureType int

const (
	SignatureTypeEOA        SignatureType = 0
	SignatureTypePolyProxy  SignatureType = 1
	SignatureTypeGnosisSafe SignatureType = 2
)

// OrderRequest is a limit order as entered by the user. Price is in USDC per
// share, Size in shares.
type OrderRequest struct {
	TokenID  string          `json:"tokenId"`
	Price    decimal.Decimal `json:"price"`
	Size     decimal.Decimal `json:"size"`
	Side     OrderSide       `json:"side"`
	TickSize decimal.Decimal `json:"tickSize"`
	NegRisk  bool            `json:"negRisk"`
	Type     OrderType       `json:"orderType,omitempty"`
}

// Notional returns price * size, the USDC needed to fill the order.
func (r OrderRequest) Notional() decimal.Decimal {
	return r.Price.Mul(r.Size)
}

// SignedOrder is the exchange order struct together with its EIP-712
// signature. A new SignedOrder is built for every submission attempt.
type SignedOrder struct {
	Salt          int64
	Maker         common.Address
	Signer        common.Address
	Taker         common.Address
	TokenID       *big.Int
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    *big.Int
	Nonce         *big.Int
	FeeRateBps    *big.Int
	Side          OrderSide
	SignatureType SignatureType
	Signature     string
}

// SideIndex is the uint8 encoding of the side used in the signed struct.
func (o SignedOrder) SideIndex() int {
	if o.Side == OrderSideSell {
		return 1
	}
	return 0
}

// OrderResult wraps the API response after order submission.
type OrderResult struct {
	Success          bool      `json:"success"`
	OrderID          string    `json:"orderId"`
	Status           string    `json:"status"`
	Message          string    `json:"message,omitempty"`
	Attempts         int       `json:"attempts"`
	CredentialsReset bool      `json:"credentialsReset"`
	SubmittedAt      time.Time `json:"submittedAt"`
}
