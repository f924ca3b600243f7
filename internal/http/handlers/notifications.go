package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jomigata/wiz-coco-sub004/internal/notify"
	"github.com/jomigata/wiz-coco-sub004/pkg/logging"
)

// NotificationsHandler surfaces the counselor notification inbox.
type NotificationsHandler struct {
	store  notify.Store
	logger *logging.Logger
}

func NewNotificationsHandler(store notify.Store, logger *logging.Logger) *NotificationsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &NotificationsHandler{store: store, logger: logger}
}

// ListByRecipient returns a recipient's notifications, newest first.
// GET /notifications/{recipientID}?unacked=true
func (h *NotificationsHandler) ListByRecipient(w http.ResponseWriter, r *http.Request) {
	recipientID := chi.URLParam(r, "recipientID")
	if recipientID == "" {
		jsonError(w, "missing recipientID", http.StatusBadRequest)
		return
	}
	unackedOnly := r.URL.Query().Get("unacked") == "true"

	notifications, err := h.store.ListByRecipient(r.Context(), recipientID, unackedOnly)
	if err != nil {
		h.logger.Error("failed to list notifications", "error", err, "recipient", recipientID)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if notifications == nil {
		notifications = []notify.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications})
}

// Acknowledge closes a notification.
// POST /notifications/{notificationID}/ack
func (h *NotificationsHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	notificationID, err := uuid.Parse(chi.URLParam(r, "notificationID"))
	if err != nil {
		jsonError(w, "invalid notification id", http.StatusBadRequest)
		return
	}
	if err := h.store.Acknowledge(r.Context(), notificationID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}
