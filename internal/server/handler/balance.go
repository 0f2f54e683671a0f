package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/polyonboard/internal/service"
)

// BalanceService is what the balance handler needs from the service layer.
type BalanceService interface {
	Balances(ctx context.Context, funder common.Address) (service.Balances, error)
}

// BalanceHandler serves settlement-asset balances.
type BalanceHandler struct {
	balances BalanceService
	funder   common.Address
	logger   *slog.Logger
}

// NewBalanceHandler creates a BalanceHandler. funder is used when a request
// does not name one.
func NewBalanceHandler(balances BalanceService, funder common.Address, logger *slog.Logger) *BalanceHandler {
	return &BalanceHandler{balances: balances, funder: funder, logger: logHandler(logger, "balance")}
}

// GetBalances returns on-chain and exchange USDC for a funder.
// GET /api/balances?funder=0x...
func (h *BalanceHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	funder, err := walletParam(r, "funder", h.funder)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	b, err := h.balances.Balances(r.Context(), funder)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, b)
}
