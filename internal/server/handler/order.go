package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/polyonboard/internal/apperrors"
	"github.com/alanyoungcy/polyonboard/internal/domain"
	"github.com/alanyoungcy/polyonboard/internal/service"
)

// OrderService defines the methods that the order handler requires from the
// service layer.
type OrderService interface {
	SubmitOrder(ctx context.Context, req domain.OrderRequest, rep *service.Reporter) (domain.OrderResult, error)
}

// OrderHandler serves order-related HTTP endpoints.
type OrderHandler struct {
	orders OrderService
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given service and logger.
func NewOrderHandler(orders OrderService, bus domain.SignalBus, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, bus: bus, logger: logHandler(logger, "order")}
}

// PlaceOrder validates, signs and submits a limit order.
// POST /api/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.TokenID == "" && req.Side == "" {
		writeError(w, r, h.logger, apperrors.NewInvalidRequest("request body is required"))
		return
	}

	id, res, err := runOperation(r, domain.OpSubmitOrder, h.bus, h.logger,
		func(ctx context.Context, rep *service.Reporter) (domain.OrderResult, error) {
			return h.orders.SubmitOrder(ctx, req, rep)
		})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{OK: true, OperationID: id, Data: res})
}
