package handler

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/polyonboard/internal/apperrors"
	"github.com/alanyoungcy/polyonboard/internal/domain"
)

// AuditHandler serves the audit log.
type AuditHandler struct {
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(audit domain.AuditStore, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logHandler(logger, "audit")}
}

type auditResponse struct {
	Entries []domain.AuditEntry `json:"entries"`
}

// ListAudit returns audit entries, newest first, optionally for one wallet.
// GET /api/audit?wallet=0x...&since=...&until=...&limit=50&offset=0
func (h *AuditHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, r, h.logger, apperrors.New(apperrors.ErrNotFound, "audit log is not configured", nil))
		return
	}
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	wallet := ""
	if r.URL.Query().Get("wallet") != "" {
		addr, err := walletParam(r, "wallet", common.Address{})
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		wallet = addr.Hex()
	}

	entries, err := h.audit.List(r.Context(), wallet, opts)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeData(w, http.StatusOK, auditResponse{Entries: entries})
}
