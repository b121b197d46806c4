package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"scanbridge/internal/domain"
)

// envelope is the JSON shape every non-file response uses.
type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionBusy):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoActiveSession),
		errors.Is(err, domain.ErrInvalidCamera),
		errors.Is(err, domain.ErrInvalidSpec):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrRemoteUnavailable),
		errors.Is(err, domain.ErrConversion):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "status", code, "error", err)
	} else {
		slog.WarnContext(r.Context(), "request rejected", "status", code, "error", err)
	}
	writeJSON(w, code, envelope{Status: "error", Message: err.Error()})
}

func writeMessage(w http.ResponseWriter, code int, status, msg string) {
	writeJSON(w, code, envelope{Status: status, Message: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
