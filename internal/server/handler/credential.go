package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/polyonboard/internal/domain"
	"github.com/alanyoungcy/polyonboard/internal/service"
)

// CredentialService is what the credential handler needs from the service
// layer.
type CredentialService interface {
	Derive(ctx context.Context, funder common.Address, rep *service.Reporter) (domain.TradingCredentials, error)
	Reset(ctx context.Context, funder common.Address, rep *service.Reporter) (domain.TradingCredentials, error)
}

// CredentialHandler serves the trading credential endpoints. Secrets never
// leave the process; responses carry the key ID and scope only.
type CredentialHandler struct {
	creds  CredentialService
	funder common.Address
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewCredentialHandler creates a CredentialHandler. funder is used when a
// request does not name one.
func NewCredentialHandler(creds CredentialService, funder common.Address, bus domain.SignalBus, logger *slog.Logger) *CredentialHandler {
	return &CredentialHandler{creds: creds, funder: funder, bus: bus, logger: logHandler(logger, "credential")}
}

type credentialResponse struct {
	APIKey   string                 `json:"apiKey"`
	Scope    domain.CredentialScope `json:"scope"`
	IssuedAt time.Time              `json:"issuedAt"`
}

func toCredentialResponse(c domain.TradingCredentials) credentialResponse {
	return credentialResponse{APIKey: c.Key, Scope: c.Scope, IssuedAt: c.IssuedAt}
}

// Derive returns the deterministic credentials for the signer and funder.
// POST /api/credentials/derive?funder=0x...
func (h *CredentialHandler) Derive(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, domain.OpDeriveCredentials, h.creds.Derive)
}

// Reset revokes the current credentials and issues new ones.
// POST /api/credentials/reset?funder=0x...
func (h *CredentialHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, domain.OpResetCredentials, h.creds.Reset)
}

func (h *CredentialHandler) run(w http.ResponseWriter, r *http.Request, op domain.Operation,
	fn func(context.Context, common.Address, *service.Reporter) (domain.TradingCredentials, error)) {
	funder, err := walletParam(r, "funder", h.funder)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	id, creds, err := runOperation(r, op, h.bus, h.logger,
		func(ctx context.Context, rep *service.Reporter) (domain.TradingCredentials, error) {
			return fn(ctx, funder, rep)
		})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOperation(w, id, toCredentialResponse(creds))
}
