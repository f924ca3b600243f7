package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jomigata/wiz-coco-sub004/internal/notify"
	"github.com/jomigata/wiz-coco-sub004/internal/reports"
	"github.com/jomigata/wiz-coco-sub004/internal/risk"
	"github.com/jomigata/wiz-coco-sub004/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps core errors to HTTP status codes. Unrecognized
// errors become a 500 with a generic body.
func writeDomainError(w http.ResponseWriter, err error) {
	var collabErr *reports.CollaboratorError
	switch {
	case errors.Is(err, session.ErrSessionClosed):
		jsonError(w, "session is closed", http.StatusConflict)
	case errors.Is(err, session.ErrSessionNotFound):
		jsonError(w, "session not found", http.StatusNotFound)
	case errors.Is(err, risk.ErrSignalNotFound):
		jsonError(w, "signal not found", http.StatusNotFound)
	case errors.Is(err, notify.ErrNotificationNotFound):
		jsonError(w, "notification not found", http.StatusNotFound)
	case errors.Is(err, reports.ErrReportNotFound):
		jsonError(w, "no report generated yet", http.StatusNotFound)
	case errors.Is(err, risk.ErrInvalidUnit):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &collabErr):
		jsonError(w, collabErr.Error(), http.StatusBadGateway)
	default:
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}
