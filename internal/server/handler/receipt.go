package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/alanyoungcy/polyonboard/internal/apperrors"
	"github.com/alanyoungcy/polyonboard/internal/domain"
)

// ReceiptHandler serves the JSON receipts written for submitted orders and
// settled relayer jobs.
type ReceiptHandler struct {
	receipts domain.ReceiptReader
	logger   *slog.Logger
}

// NewReceiptHandler creates a ReceiptHandler.
func NewReceiptHandler(receipts domain.ReceiptReader, logger *slog.Logger) *ReceiptHandler {
	return &ReceiptHandler{receipts: receipts, logger: logHandler(logger, "receipt")}
}

type receiptsResponse struct {
	Receipts []domain.Receipt `json:"receipts"`
}

// ListReceipts lists receipts of one kind for one UTC day (default today),
// newest first.
// GET /api/receipts?kind=orders&date=2026-01-02
func (h *ReceiptHandler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	if h.receipts == nil {
		writeError(w, r, h.logger, apperrors.New(apperrors.ErrNotFound, "receipt storage is not configured", nil))
		return
	}
	q := r.URL.Query()
	kind, err := receiptKind(q.Get("kind"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	day := time.Now().UTC()
	if v := q.Get("date"); v != "" {
		if day, err = receiptDay(v); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}

	receipts, err := h.receipts.ListReceipts(r.Context(), kind, day)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if receipts == nil {
		receipts = []domain.Receipt{}
	}
	writeData(w, http.StatusOK, receiptsResponse{Receipts: receipts})
}

// GetReceipt streams one receipt document. The ".json" suffix on id is
// optional.
// GET /api/receipts/{kind}/{date}/{id}
func (h *ReceiptHandler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	if h.receipts == nil {
		writeError(w, r, h.logger, apperrors.New(apperrors.ErrNotFound, "receipt storage is not configured", nil))
		return
	}
	kind, err := receiptKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	day, err := receiptDay(r.PathValue("date"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	id := strings.TrimSuffix(r.PathValue("id"), ".json")
	if id == "" || strings.ContainsAny(id, "/\\") || strings.HasPrefix(id, ".") {
		writeError(w, r, h.logger, apperrors.NewInvalidRequest("invalid receipt id"))
		return
	}

	rc, err := h.receipts.OpenReceipt(r.Context(), kind, day, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil && !errors.Is(err, r.Context().Err()) {
		h.logger.WarnContext(r.Context(), "handler: stream receipt failed", slog.String("error", err.Error()))
	}
}

func receiptKind(kind string) (string, error) {
	if !slices.Contains(domain.ReceiptKinds, kind) {
		return "", apperrors.NewInvalidRequest("kind must be one of " + strings.Join(domain.ReceiptKinds, ", "))
	}
	return kind, nil
}

func receiptDay(v string) (time.Time, error) {
	day, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, apperrors.NewInvalidRequest("date must be YYYY-MM-DD")
	}
	return day, nil
}
