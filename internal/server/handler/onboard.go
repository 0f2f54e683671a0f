package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/polyonboard/internal/domain"
	"github.com/alanyoungcy/polyonboard/internal/service"
)

// OnboardService is what the onboarding handler needs from the service layer.
type OnboardService interface {
	Onboard(ctx context.Context, rep *service.Reporter) (service.OnboardResult, error)
	Status(ctx context.Context) (service.Status, error)
}

// OnboardHandler serves the combined account setup endpoints.
type OnboardHandler struct {
	onboard OnboardService
	bus     domain.SignalBus
	logger  *slog.Logger
}

// NewOnboardHandler creates an OnboardHandler. bus may be nil.
func NewOnboardHandler(onboard OnboardService, bus domain.SignalBus, logger *slog.Logger) *OnboardHandler {
	return &OnboardHandler{onboard: onboard, bus: bus, logger: logHandler(logger, "onboard")}
}

// GetStatus reports wallet deployment, approvals and balances.
// GET /api/status
func (h *OnboardHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.onboard.Status(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, st)
}

// Onboard deploys the wallet, grants approvals and derives credentials.
// POST /api/onboard
func (h *OnboardHandler) Onboard(w http.ResponseWriter, r *http.Request) {
	id, res, err := runOperation(r, domain.OpOnboard, h.bus, h.logger, h.onboard.Onboard)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOperation(w, id, res)
}
