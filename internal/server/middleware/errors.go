package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/alanyoungcy/polyonboard/internal/apperrors"
)

// writeError writes the same failure envelope the handlers use.
func writeError(w http.ResponseWriter, appErr *apperrors.AppError) {
	body, _ := json.Marshal(map[string]any{"ok": false, "error": appErr})
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	w.Write(body)
}
