package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jomigata/wiz-coco-sub004/internal/counselor"
	"github.com/jomigata/wiz-coco-sub004/internal/notify"
	"github.com/jomigata/wiz-coco-sub004/internal/observability/metrics"
	"github.com/jomigata/wiz-coco-sub004/internal/risk"
	"github.com/jomigata/wiz-coco-sub004/pkg/logging"
)

var managerTracer = otel.Tracer("wizcoco/escalation-manager")

// Notifier raises the counselor-facing alert for a handover.
type Notifier interface {
	NotifyEscalation(ctx context.Context, sessionID, clientID, counselorID string, severity risk.Severity) (*notify.Notification, error)
}

// Manager drives session escalation. It is the only component allowed to
// move a session out of the active state, either automatically when a
// severe signal lands or on an explicit counselor/client request.
type Manager struct {
	store       Store
	resolver    counselor.Resolver
	notifier    Notifier
	minSeverity risk.Severity
	metrics     *metrics.PipelineMetrics
	logger      *logging.Logger
}

// ManagerConfig wires a Manager.
type ManagerConfig struct {
	Store       Store
	Resolver    counselor.Resolver
	Notifier    Notifier
	MinSeverity risk.Severity
	Metrics     *metrics.PipelineMetrics
	Logger      *logging.Logger
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Store == nil {
		panic("session: store required")
	}
	if cfg.Resolver == nil {
		panic("session: counselor resolver required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	minSeverity := cfg.MinSeverity
	if minSeverity == "" {
		minSeverity = risk.SeverityHigh
	}
	return &Manager{
		store:       cfg.Store,
		resolver:    cfg.Resolver,
		notifier:    cfg.Notifier,
		minSeverity: minSeverity,
		metrics:     cfg.Metrics,
		logger:      logger.Component("escalation-manager"),
	}
}

// MaybeEscalate auto-escalates the session when the signal severity
// reaches the handover threshold. Signals below it, or signals with no
// session attached, leave the session untouched.
func (m *Manager) MaybeEscalate(ctx context.Context, sessionID uuid.UUID, severity risk.Severity) (*ChatSession, error) {
	if sessionID == uuid.Nil || !severity.AtLeast(m.minSeverity) {
		return nil, nil
	}
	sess, err := m.escalate(ctx, sessionID, TriggerAuto, severity)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// Escalate performs an explicit handover request. Already escalated
// sessions come back unchanged; closed sessions return ErrSessionClosed.
func (m *Manager) Escalate(ctx context.Context, sessionID uuid.UUID) (ChatSession, error) {
	return m.escalate(ctx, sessionID, TriggerManual, risk.SeverityHigh)
}

// Close ends the session. Closed is terminal.
func (m *Manager) Close(ctx context.Context, sessionID uuid.UUID) (ChatSession, error) {
	sess, err := m.store.Close(ctx, sessionID)
	if err != nil {
		return ChatSession{}, err
	}
	m.logger.Info("session closed", "session_id", sess.ID, "client_id", sess.ClientID)
	return sess, nil
}

func (m *Manager) escalate(ctx context.Context, sessionID uuid.UUID, trigger Trigger, severity risk.Severity) (ChatSession, error) {
	ctx, span := managerTracer.Start(ctx, "session.escalate")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", sessionID.String()),
		attribute.String("escalation.trigger", string(trigger)),
	)

	current, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return ChatSession{}, err
	}
	if current.State == StateClosed {
		return ChatSession{}, ErrSessionClosed
	}
	if current.Escalated() {
		return current, nil
	}

	// Assignment failure must not block the handover: escalate anyway and
	// route the alert to the supervisor queue.
	var counselorID *string
	assignee, err := m.resolver.ResolveCounselor(ctx, current.ClientID)
	switch {
	case err == nil:
		counselorID = &assignee
	case errors.Is(err, counselor.ErrNoCounselor):
		m.logger.Warn("escalating with no counselor assigned", "session_id", sessionID, "client_id", current.ClientID)
	default:
		m.logger.Error("counselor resolution failed, escalating unassigned", "error", err, "session_id", sessionID)
		m.metrics.ObserveFailure("resolve")
	}

	sess, moved, err := m.store.Escalate(ctx, sessionID, counselorID, trigger)
	if err != nil {
		return ChatSession{}, fmt.Errorf("session: escalate %s: %w", sessionID, err)
	}
	if !moved {
		// Lost the race to another escalation; its assignment stands.
		return sess, nil
	}

	assigned := sess.CounselorID != nil
	m.metrics.ObserveEscalation(string(trigger), assigned)
	m.logger.Info("session escalated",
		"session_id", sess.ID,
		"client_id", sess.ClientID,
		"trigger", trigger,
		"assigned", assigned,
	)

	if m.notifier != nil {
		recipient := ""
		if assigned {
			recipient = *sess.CounselorID
		}
		if _, err := m.notifier.NotifyEscalation(ctx, sess.ID.String(), sess.ClientID, recipient, severity); err != nil {
			// The escalation itself stands; the alert is retried by ops tooling.
			m.logger.Error("escalation notification failed", "error", err, "session_id", sess.ID)
			m.metrics.ObserveFailure("notify")
		}
	}
	return sess, nil
}
