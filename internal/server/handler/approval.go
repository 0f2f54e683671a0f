package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/polyonboard/internal/apperrors"
	"github.com/alanyoungcy/polyonboard/internal/domain"
	"github.com/alanyoungcy/polyonboard/internal/service"
)

// ApprovalService is what the approval handler needs from the service layer.
type ApprovalService interface {
	CheckApprovals(ctx context.Context, wallet common.Address) (domain.ApprovalRecord, error)
	ApproveAll(ctx context.Context, wallet common.Address, current *domain.ApprovalRecord, rep *service.Reporter) (domain.ApproveResult, error)
}

// ApprovalHandler serves the exchange approval endpoints.
type ApprovalHandler struct {
	approvals ApprovalService
	wallet    common.Address
	bus       domain.SignalBus
	logger    *slog.Logger
}

// NewApprovalHandler creates an ApprovalHandler. wallet is the trading wallet
// used when a request does not name one.
func NewApprovalHandler(approvals ApprovalService, wallet common.Address, bus domain.SignalBus, logger *slog.Logger) *ApprovalHandler {
	return &ApprovalHandler{approvals: approvals, wallet: wallet, bus: bus, logger: logHandler(logger, "approval")}
}

type approvalsResponse struct {
	Wallet      common.Address        `json:"wallet"`
	Approvals   domain.ApprovalRecord `json:"approvals"`
	AllApproved bool                  `json:"allApproved"`
}

// GetApprovals reads the six grants from chain.
// GET /api/approvals?wallet=0x...
func (h *ApprovalHandler) GetApprovals(w http.ResponseWriter, r *http.Request) {
	wallet, err := walletParam(r, "wallet", h.wallet)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	rec, err := h.approvals.CheckApprovals(r.Context(), wallet)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, approvalsResponse{Wallet: wallet, Approvals: rec, AllApproved: rec.AllApproved()})
}

type approveRequest struct {
	// Current, when given, is trusted as the wallet's approval state and
	// the chain is not re-read.
	Current *domain.ApprovalRecord `json:"current,omitempty"`
}

// ApproveAll grants every missing permission in one relayer batch. Only the
// configured trading wallet can be approved since the relayer executes
// through its owner's signature.
// POST /api/approvals
func (h *ApprovalHandler) ApproveAll(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	wallet, err := walletParam(r, "wallet", h.wallet)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if wallet != h.wallet {
		writeError(w, r, h.logger, apperrors.NewInvalidRequest("approvals can only be granted for "+h.wallet.Hex()))
		return
	}

	id, res, err := runOperation(r, domain.OpApproveAll, h.bus, h.logger,
		func(ctx context.Context, rep *service.Reporter) (domain.ApproveResult, error) {
			return h.approvals.ApproveAll(ctx, wallet, req.Current, rep)
		})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOperation(w, id, res)
}
