package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jomigata/wiz-coco-sub004/internal/chat"
	"github.com/jomigata/wiz-coco-sub004/internal/risk"
	"github.com/jomigata/wiz-coco-sub004/pkg/logging"
)

// RiskSignalsHandler exposes the pipeline over HTTP: submitting text units
// and querying/resolving stored signals.
type RiskSignalsHandler struct {
	service *chat.Service
	signals risk.Store
	logger  *logging.Logger
}

func NewRiskSignalsHandler(service *chat.Service, signals risk.Store, logger *logging.Logger) *RiskSignalsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &RiskSignalsHandler{service: service, signals: signals, logger: logger}
}

// SubmitUnitRequest is one text unit offered to the pipeline.
type SubmitUnitRequest struct {
	ClientID   string `json:"client_id"`
	SessionID  string `json:"session_id,omitempty"`
	SourceID   string `json:"source_id"`
	SourceKind string `json:"source_kind"`
	Text       string `json:"text"`
}

// SubmitUnit runs the pipeline synchronously over one unit.
// POST /risk-signals
func (h *RiskSignalsHandler) SubmitUnit(w http.ResponseWriter, r *http.Request) {
	var req SubmitUnitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	unit := risk.TextUnit{
		ClientID:   req.ClientID,
		SessionID:  req.SessionID,
		SourceID:   req.SourceID,
		SourceKind: risk.SourceKind(req.SourceKind),
		Text:       req.Text,
	}
	result, err := h.service.Process(r.Context(), unit)
	if err != nil {
		h.logger.Error("failed to process text unit", "error", err, "client_id", req.ClientID)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListSignals queries stored signals.
// GET /risk-signals?client_id=...&min_severity=...&since=...&unresolved=true
func (h *RiskSignalsHandler) ListSignals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID := q.Get("client_id")
	if clientID == "" {
		jsonError(w, "missing client_id", http.StatusBadRequest)
		return
	}

	filter := risk.Filter{ClientID: clientID}
	if raw := q.Get("min_severity"); raw != "" {
		filter.MinSeverity = risk.ParseSeverity(raw)
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			jsonError(w, "invalid since timestamp", http.StatusBadRequest)
			return
		}
		filter.Since = since
	}
	if raw := q.Get("until"); raw != "" {
		until, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			jsonError(w, "invalid until timestamp", http.StatusBadRequest)
			return
		}
		filter.Until = until
	}
	filter.UnresolvedOnly = q.Get("unresolved") == "true"
	if raw := q.Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}

	signals, err := h.signals.Query(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to query signals", "error", err, "client_id", clientID)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if signals == nil {
		signals = []risk.RiskSignal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"signals": signals})
}

// CorrectSignalRequest carries a counselor's correction of a stored signal.
// Omitted fields keep the original value.
type CorrectSignalRequest struct {
	CounselorID string `json:"counselor_id"`
	Severity    string `json:"severity,omitempty"`
	Confidence  *int   `json:"confidence,omitempty"`
	Message     string `json:"message,omitempty"`
}

// CorrectSignal stores a replacement signal superseding the original.
// POST /risk-signals/{signalID}/correct
func (h *RiskSignalsHandler) CorrectSignal(w http.ResponseWriter, r *http.Request) {
	signalID, err := uuid.Parse(chi.URLParam(r, "signalID"))
	if err != nil {
		jsonError(w, "invalid signal id", http.StatusBadRequest)
		return
	}
	var req CorrectSignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.CounselorID == "" {
		jsonError(w, "missing counselor_id", http.StatusBadRequest)
		return
	}
	if req.Confidence != nil && (*req.Confidence < 0 || *req.Confidence > 100) {
		jsonError(w, "confidence must be between 0 and 100", http.StatusBadRequest)
		return
	}

	original, err := h.signals.GetByID(r.Context(), signalID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	corrected := original
	corrected.ID = uuid.New()
	corrected.Source = risk.SourceCounselorFlagged
	corrected.Resolved = false
	corrected.CreatedAt = time.Now().UTC()
	if req.Severity != "" {
		corrected.Severity = risk.ParseSeverity(req.Severity)
	}
	if req.Confidence != nil {
		corrected.Confidence = *req.Confidence
	}
	if req.Message != "" {
		corrected.Message = req.Message
	}
	corrected.DedupeKey = risk.CorrectionDedupeKey(signalID, corrected.Type)

	stored, err := h.signals.PutCorrection(r.Context(), signalID, corrected)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// ResolveSignalRequest carries the counselor closing out a signal.
type ResolveSignalRequest struct {
	CounselorID string `json:"counselor_id"`
}

// ResolveSignal soft-retires a signal.
// POST /risk-signals/{signalID}/resolve
func (h *RiskSignalsHandler) ResolveSignal(w http.ResponseWriter, r *http.Request) {
	signalID, err := uuid.Parse(chi.URLParam(r, "signalID"))
	if err != nil {
		jsonError(w, "invalid signal id", http.StatusBadRequest)
		return
	}
	var req ResolveSignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.CounselorID == "" {
		jsonError(w, "missing counselor_id", http.StatusBadRequest)
		return
	}

	if err := h.signals.Resolve(r.Context(), signalID, req.CounselorID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}
