package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/polyonboard/internal/domain"
	"github.com/alanyoungcy/polyonboard/internal/service"
)

// WalletService is what the wallet handler needs from the service layer.
type WalletService interface {
	SmartWallet(ctx context.Context) (domain.SmartWallet, error)
	Deploy(ctx context.Context, rep *service.Reporter) (domain.DeployResult, error)
}

// WalletHandler serves the smart wallet endpoints.
type WalletHandler struct {
	wallets WalletService
	bus     domain.SignalBus
	logger  *slog.Logger
}

// NewWalletHandler creates a WalletHandler. bus may be nil.
func NewWalletHandler(wallets WalletService, bus domain.SignalBus, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{wallets: wallets, bus: bus, logger: logHandler(logger, "wallet")}
}

// GetWallet returns the counterfactual wallet address and deployment state.
// GET /api/wallet
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.wallets.SmartWallet(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, wallet)
}

// Deploy deploys the wallet through the relayer, or reports that it already
// exists.
// POST /api/wallet/deploy
func (h *WalletHandler) Deploy(w http.ResponseWriter, r *http.Request) {
	id, res, err := runOperation(r, domain.OpDeployWallet, h.bus, h.logger, h.wallets.Deploy)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOperation(w, id, res)
}
