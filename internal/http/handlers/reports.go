package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jomigata/wiz-coco-sub004/internal/reports"
	"github.com/jomigata/wiz-coco-sub004/pkg/logging"
)

// ReportsHandler exposes integrated report generation and retrieval.
type ReportsHandler struct {
	aggregator *reports.Aggregator
	logger     *logging.Logger
}

func NewReportsHandler(aggregator *reports.Aggregator, logger *logging.Logger) *ReportsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ReportsHandler{aggregator: aggregator, logger: logger}
}

// GetReport generates a fresh snapshot for the client, or returns the
// latest stored one when ?latest=true.
// GET /reports/{clientID}
func (h *ReportsHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	if clientID == "" {
		jsonError(w, "missing clientID", http.StatusBadRequest)
		return
	}

	if r.URL.Query().Get("latest") == "true" {
		report, err := h.aggregator.Latest(r.Context(), clientID)
		if err != nil {
			if !errors.Is(err, reports.ErrReportNotFound) {
				h.logger.Error("failed to load latest report", "error", err, "client_id", clientID)
			}
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	report, err := h.aggregator.Generate(r.Context(), clientID)
	if err != nil {
		h.logger.Error("report generation failed", "error", err, "client_id", clientID)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
