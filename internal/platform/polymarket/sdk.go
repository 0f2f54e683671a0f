package polymarket

import (
	"fmt"
	"strings"

	"github.com/GoPolymarket/polymarket-go-sdk/pkg/auth"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob/clobtypes"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/polyonboard/internal/domain"
)

// Order-type names and the Safe derivation come from the Polymarket Go SDK,
// so they match what the exchange's own clients send. Requests still go
// through ClobClient: its errors carry the HTTP status that decides whether
// trading credentials are reset.

// wireOrderType maps t to the CLOB's orderType value. Empty means GTC.
func wireOrderType(t domain.OrderType) (clobtypes.OrderType, error) {
	switch strings.ToUpper(strings.TrimSpace(string(t))) {
	case "", string(clobtypes.OrderTypeGTC):
		return clobtypes.OrderTypeGTC, nil
	case string(clobtypes.OrderTypeGTD):
		return clobtypes.OrderTypeGTD, nil
	case string(clobtypes.OrderTypeFOK):
		return clobtypes.OrderTypeFOK, nil
	case string(clobtypes.OrderTypeFAK):
		return clobtypes.OrderTypeFAK, nil
	}
	return "", fmt.Errorf("polymarket: unknown order type %q", t)
}

// ExpectedSafe returns the Safe address Polymarket derives for owner on
// chainID. The executor computes the same address from the configured
// factory; a difference means the contracts config points elsewhere.
func ExpectedSafe(owner common.Address, chainID int64) (common.Address, error) {
	safe, err := auth.DeriveSafeWalletForChain(owner, chainID)
	if err != nil {
		return common.Address{}, fmt.Errorf("polymarket: derive safe on chain %d: %w", chainID, err)
	}
	return safe, nil
}
