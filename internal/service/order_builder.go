package service

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyonboard/internal/domain"
)

var (
	minPrice = decimal.RequireFromString("0.001")
	maxPrice = decimal.RequireFromString("0.999")
)

// roundConfig is the number of decimals kept for price, size and the derived
// USDC amount at a given tick size.
type roundConfig struct {
	price  int32
	size   int32
	amount int32
}

var tickRounding = []struct {
	tick decimal.Decimal
	cfg  roundConfig
}{
	{decimal.RequireFromString("0.1"), roundConfig{price: 1, size: 2, amount: 3}},
	{decimal.RequireFromString("0.01"), roundConfig{price: 2, size: 2, amount: 4}},
	{decimal.RequireFromString("0.001"), roundConfig{price: 3, size: 2, amount: 5}},
	{decimal.RequireFromString("0.0001"), roundConfig{price: 4, size: 2, amount: 6}},
}

func roundingFor(tick decimal.Decimal) (roundConfig, bool) {
	for _, r := range tickRounding {
		if r.tick.Equal(tick) {
			return r.cfg, true
		}
	}
	return roundConfig{}, false
}

// ValidateOrder checks req without any I/O. An empty order type is accepted
// and means GTC.
func ValidateOrder(req domain.OrderRequest) error {
	if req.TokenID == "" {
		return &domain.ValidationError{Field: "tokenId", Reason: "is required"}
	}
	if _, ok := new(big.Int).SetString(req.TokenID, 10); !ok {
		return &domain.ValidationError{Field: "tokenId", Reason: "must be a decimal integer"}
	}
	if req.Price.LessThanOrEqual(minPrice) || req.Price.GreaterThanOrEqual(maxPrice) {
		return &domain.ValidationError{Field: "price", Reason: "must be within (0.001, 0.999)"}
	}
	if !req.Size.IsPositive() {
		return &domain.ValidationError{Field: "size", Reason: "must be greater than 0"}
	}
	if req.Side != domain.OrderSideBuy && req.Side != domain.OrderSideSell {
		return &domain.ValidationError{Field: "side", Reason: "must be BUY or SELL"}
	}
	cfg, ok := roundingFor(req.TickSize)
	if !ok {
		return &domain.ValidationError{Field: "tickSize", Reason: "must be one of 0.1, 0.01, 0.001, 0.0001"}
	}
	if !req.Price.Mod(req.TickSize).IsZero() {
		return &domain.ValidationError{Field: "price", Reason: "must be a multiple of the tick size " + req.TickSize.String()}
	}
	// Size is truncated when the order is built; the signed amounts must stay
	// positive.
	if maker, taker := orderAmounts(req.Side, req.Price, req.Size, cfg); maker.Sign() <= 0 || taker.Sign() <= 0 {
		return &domain.ValidationError{Field: "size", Reason: "rounds to a zero amount at this tick size"}
	}
	switch req.Type {
	case "", domain.OrderTypeGTC, domain.OrderTypeGTD, domain.OrderTypeFOK, domain.OrderTypeFAK:
	default:
		return &domain.ValidationError{Field: "orderType", Reason: "must be GTC, GTD, FOK or FAK"}
	}
	return nil
}

// orderAmounts converts price and size into maker and taker amounts in USDC
// and share minor units. A BUY gives USDC for shares, a SELL the reverse.
func orderAmounts(side domain.OrderSide, price, size decimal.Decimal, cfg roundConfig) (maker, taker *big.Int) {
	p := price.Round(cfg.price)
	shares := size.Truncate(cfg.size)
	usdc := shares.Mul(p).RoundUp(cfg.amount + 4).Truncate(cfg.amount)

	if side == domain.OrderSideBuy {
		return toMinorUnits(usdc), toMinorUnits(shares)
	}
	return toMinorUnits(shares), toMinorUnits(usdc)
}

func toMinorUnits(d decimal.Decimal) *big.Int {
	return d.Shift(usdcDecimals).Truncate(0).BigInt()
}

// signatureTypeFor returns the exchange signature type for orders signed by
// signer on behalf of funder.
func signatureTypeFor(signer, funder common.Address) domain.SignatureType {
	if funder != signer {
		return domain.SignatureTypeGnosisSafe
	}
	return domain.SignatureTypeEOA
}

// buildOrder assembles an unsigned exchange order for req. req must have
// passed ValidateOrder.
func buildOrder(req domain.OrderRequest, signer, funder common.Address, salt int64, feeRateBps int64) domain.SignedOrder {
	cfg, _ := roundingFor(req.TickSize)
	maker, taker := orderAmounts(req.Side, req.Price, req.Size, cfg)
	tokenID, _ := new(big.Int).SetString(req.TokenID, 10)

	return domain.SignedOrder{
		Salt:          salt,
		Maker:         funder,
		Signer:        signer,
		Taker:         common.Address{},
		TokenID:       tokenID,
		MakerAmount:   maker,
		TakerAmount:   taker,
		Expiration:    new(big.Int),
		Nonce:         new(big.Int),
		FeeRateBps:    big.NewInt(feeRateBps),
		Side:          req.Side,
		SignatureType: signatureTypeFor(signer, funder),
	}
}
