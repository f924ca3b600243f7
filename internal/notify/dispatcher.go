package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jomigata/wiz-coco-sub004/internal/counselor"
	"github.com/jomigata/wiz-coco-sub004/internal/observability/metrics"
	"github.com/jomigata/wiz-coco-sub004/internal/risk"
	"github.com/jomigata/wiz-coco-sub004/pkg/logging"
)

var dispatcherTracer = otel.Tracer("wizcoco/notify-dispatcher")

// ContactLookup resolves a recipient id to a deliverable email address.
// Optional: without it, notifications are stored but no email goes out.
type ContactLookup interface {
	EmailFor(ctx context.Context, recipientID string) (string, error)
}

// StaticContacts is a fixed recipient→email map.
type StaticContacts map[string]string

// EmailFor returns the mapped address or an error.
func (c StaticContacts) EmailFor(ctx context.Context, recipientID string) (string, error) {
	addr, ok := c[recipientID]
	if !ok || addr == "" {
		return "", fmt.Errorf("notify: no email for recipient %s", recipientID)
	}
	return addr, nil
}

// Dispatcher turns newly stored signals and escalations into counselor
// notifications. Writes are upserts, so repeated delivery attempts for the
// same cause refresh one row instead of flooding the recipient.
type Dispatcher struct {
	store        Store
	resolver     counselor.Resolver
	email        EmailSender
	contacts     ContactLookup
	minSeverity  risk.Severity
	supervisorID string
	metrics      *metrics.PipelineMetrics
	logger       *logging.Logger
}

// DispatcherConfig wires a Dispatcher.
type DispatcherConfig struct {
	Store        Store
	Resolver     counselor.Resolver
	Email        EmailSender
	Contacts     ContactLookup
	MinSeverity  risk.Severity
	SupervisorID string
	Metrics      *metrics.PipelineMetrics
	Logger       *logging.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Store == nil {
		panic("notify: store required")
	}
	if cfg.Resolver == nil {
		panic("notify: counselor resolver required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	minSeverity := cfg.MinSeverity
	if minSeverity == "" {
		minSeverity = risk.SeverityMedium
	}
	supervisorID := cfg.SupervisorID
	if supervisorID == "" {
		supervisorID = "supervisor-queue"
	}
	return &Dispatcher{
		store:        cfg.Store,
		resolver:     cfg.Resolver,
		email:        cfg.Email,
		contacts:     cfg.Contacts,
		minSeverity:  minSeverity,
		supervisorID: supervisorID,
		metrics:      cfg.Metrics,
		logger:       logger.Component("notify-dispatcher"),
	}
}

// OnNewSignal raises (or refreshes) a counselor notification for a stored
// signal. Fires only for new rows at or above the severity threshold;
// duplicate deliveries of the same signal are absorbed by the upsert key.
func (d *Dispatcher) OnNewSignal(ctx context.Context, signal risk.RiskSignal, isNew bool) (*Notification, error) {
	ctx, span := dispatcherTracer.Start(ctx, "notify.on_new_signal")
	defer span.End()

	if !isNew || !signal.Severity.AtLeast(d.minSeverity) {
		span.SetAttributes(attribute.Bool("notify.skipped", true))
		return nil, nil
	}

	recipientID, err := d.resolver.ResolveCounselor(ctx, signal.ClientID)
	if err != nil {
		if !errors.Is(err, counselor.ErrNoCounselor) {
			return nil, fmt.Errorf("notify: resolve recipient: %w", err)
		}
		// No assigned counselor: the alert still has to land somewhere.
		recipientID = d.supervisorID
	}

	notification := Notification{
		RecipientID: recipientID,
		Kind:        KindRiskSignal,
		Title:       fmt.Sprintf("[%s] %s risk signal", strings.ToUpper(string(signal.Severity)), signal.Type),
		Body:        formatSignalBody(signal),
		Priority:    PriorityForSeverity(signal.Severity),
		Related:     RelatedEntity{Type: "risk_signal", ID: signal.ID.String()},
	}

	stored, isNewRow, err := d.store.Upsert(ctx, notification)
	if err != nil {
		return nil, err
	}
	d.metrics.ObserveNotification(string(stored.Kind), string(stored.Priority))

	span.SetAttributes(
		attribute.String("notify.kind", string(stored.Kind)),
		attribute.String("notify.priority", string(stored.Priority)),
		attribute.Bool("notify.new_row", isNewRow),
	)
	d.logger.Info("risk signal notification",
		"recipient", stored.RecipientID,
		"priority", stored.Priority,
		"signal_id", signal.ID,
		"new_row", isNewRow,
	)

	if isNewRow {
		d.deliver(ctx, stored)
	}
	return &stored, nil
}

// NotifyEscalation raises the notification for a session handed over to a
// counselor. An empty counselorID means assignment failed: the alert goes
// to the supervisor queue as an unassigned escalation instead of being
// dropped.
func (d *Dispatcher) NotifyEscalation(ctx context.Context, sessionID, clientID, counselorID string, severity risk.Severity) (*Notification, error) {
	ctx, span := dispatcherTracer.Start(ctx, "notify.escalation")
	defer span.End()

	notification := Notification{
		RecipientID: counselorID,
		Kind:        KindEscalation,
		Title:       "Session escalated: counselor takeover requested",
		Body: fmt.Sprintf("Chat session %s for client %s was escalated (severity %s). "+
			"Please take over the conversation.", sessionID, clientID, severity),
		Priority: PriorityForSeverity(risk.MaxSeverity(severity, risk.SeverityHigh)),
		Related:  RelatedEntity{Type: "chat_session", ID: sessionID},
	}
	if counselorID == "" {
		notification.RecipientID = d.supervisorID
		notification.Kind = KindUnassignedEscalation
		notification.Title = "Unassigned escalation: no counselor available"
		notification.Priority = PriorityUrgent
	}

	stored, isNewRow, err := d.store.Upsert(ctx, notification)
	if err != nil {
		return nil, err
	}
	d.metrics.ObserveNotification(string(stored.Kind), string(stored.Priority))

	span.SetAttributes(
		attribute.String("notify.kind", string(stored.Kind)),
		attribute.Bool("notify.new_row", isNewRow),
	)
	d.logger.Info("escalation notification",
		"recipient", stored.RecipientID,
		"kind", stored.Kind,
		"session_id", sessionID,
	)

	if isNewRow {
		d.deliver(ctx, stored)
	}
	return &stored, nil
}

// deliver pushes the notification over the email channel, best effort.
// Channel failures are logged, never propagated: the stored row is the
// source of truth and delivery is at-least-once via the counselor UI.
func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	if d.email == nil || d.contacts == nil {
		return
	}
	addr, err := d.contacts.EmailFor(ctx, n.RecipientID)
	if err != nil {
		d.logger.Warn("no email contact for recipient", "recipient", n.RecipientID, "error", err)
		return
	}
	msg := EmailMessage{
		To:      addr,
		Subject: n.Title,
		Body:    n.Body,
	}
	if err := d.email.Send(ctx, msg); err != nil {
		d.logger.Error("failed to send notification email", "error", err, "notification_id", n.ID)
	}
}

func formatSignalBody(signal risk.RiskSignal) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Client: %s\n", signal.ClientID))
	sb.WriteString(fmt.Sprintf("Type: %s\n", signal.Type))
	sb.WriteString(fmt.Sprintf("Severity: %s (confidence %d%%)\n", signal.Severity, signal.Confidence))
	sb.WriteString(fmt.Sprintf("Detected: %s\n\n", signal.CreatedAt.Format(time.RFC1123)))
	sb.WriteString(signal.Message)
	if signal.Evidence.Excerpt != "" {
		sb.WriteString(fmt.Sprintf("\n\nExcerpt: %q", signal.Evidence.Excerpt))
	}
	return sb.String()
}
