package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/polyonboard/internal/domain"
	"github.com/alanyoungcy/polyonboard/internal/service"
)

// runOperation runs fn as a tracked operation, relays its progress events to
// the signal bus for WebSocket subscribers and blocks until it finishes.
// The operation outlives a dropped client connection: a batch already handed
// to the relayer is still polled to a terminal state.
func runOperation[T any](r *http.Request, op domain.Operation, bus domain.SignalBus, logger *slog.Logger,
	fn func(context.Context, *service.Reporter) (T, error)) (string, T, error) {
	ctx := context.WithoutCancel(r.Context())
	o := service.Start(ctx, op, fn)
	res, err := service.Publish(ctx, o, bus, logger)
	return o.ID(), res, err
}
