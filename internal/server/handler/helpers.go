package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/polyonboard/internal/apperrors"
	"github.com/alanyoungcy/polyonboard/internal/domain"
)

// maxBodyBytes bounds request bodies; every request here is a small JSON
// object.
const maxBodyBytes = 64 << 10

// envelope is the response shape for every API endpoint. Exactly one of Data
// and Error is set.
type envelope struct {
	OK          bool                `json:"ok"`
	OperationID string              `json:"operationId,omitempty"`
	Data        any                 `json:"data,omitempty"`
	Error       *apperrors.AppError `json:"error,omitempty"`
}

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"ok":false,"error":{"code":"INTERNAL_ERROR","message":"encode response"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

func writeData(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, envelope{OK: true, Data: v})
}

func writeOperation(w http.ResponseWriter, id string, v any) {
	writeJSON(w, http.StatusOK, envelope{OK: true, OperationID: id, Data: v})
}

// writeError classifies err and writes the failure envelope. Only internal
// errors are logged at error level; the rest are expected outcomes.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	appErr := apperrors.From(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "handler: request failed",
			slog.String("path", r.URL.Path),
			slog.String("code", string(appErr.Type)),
			slog.String("error", err.Error()),
		)
	} else {
		logger.WarnContext(r.Context(), "handler: request rejected",
			slog.String("path", r.URL.Path),
			slog.String("code", string(appErr.Type)),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, appErr.HTTPStatus, envelope{OK: false, Error: appErr})
}

// decodeBody decodes an optional JSON body into dst. An empty body leaves dst
// untouched.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.NewInvalidRequest("invalid request body: " + err.Error())
	}
	return nil
}

// walletParam reads an address from the named query parameter, falling back
// to def when it is absent.
func walletParam(r *http.Request, name string, def common.Address) (common.Address, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	if !common.IsHexAddress(v) {
		return common.Address{}, apperrors.NewInvalidRequest(name + " is not a valid address")
	}
	return common.HexToAddress(v), nil
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0. since and until are RFC 3339.
func parseListOpts(r *http.Request) (domain.ListOpts, error) {
	q := r.URL.Query()

	opts := domain.ListOpts{Limit: 50}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Limit = n
		}
	}
	if opts.Limit > 500 {
		opts.Limit = 500
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			opts.Offset = n
		}
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"since", &opts.Since}, {"until", &opts.Until}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return domain.ListOpts{}, apperrors.NewInvalidRequest(p.name + " must be RFC 3339")
		}
		*p.dst = &t
	}
	return opts, nil
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
