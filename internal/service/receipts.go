package service

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyonboard/internal/domain"
)

// writeReceipt stores v as JSON at path. A nil blob writer disables
// receipts; failures are logged and never change an operation's outcome.
func writeReceipt(ctx context.Context, blob domain.BlobWriter, logger *slog.Logger, path string, v any) {
	if blob == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		logger.WarnContext(ctx, "service: marshal receipt failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	if err := blob.Put(ctx, path, bytes.NewReader(payload), "application/json"); err != nil {
		logger.WarnContext(ctx, "service: receipt upload failed", slog.String("path", path), slog.String("error", err.Error()))
	}
}

// settlementReceipt records a relayer job that reached a success state.
type settlementReceipt struct {
	Kind            string              `json:"kind"`
	Wallet          string              `json:"wallet"`
	TransactionID   string              `json:"transactionId"`
	TransactionHash string              `json:"transactionHash"`
	State           domain.RelayerState `json:"state"`
	Attempts        int                 `json:"attempts"`
	Detail          map[string]any      `json:"detail,omitempty"`
	SettledAt       time.Time           `json:"settledAt"`
}
