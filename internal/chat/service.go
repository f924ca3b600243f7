package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jomigata/wiz-coco-sub004/internal/notify"
	"github.com/jomigata/wiz-coco-sub004/internal/observability/metrics"
	"github.com/jomigata/wiz-coco-sub004/internal/risk"
	"github.com/jomigata/wiz-coco-sub004/internal/session"
	"github.com/jomigata/wiz-coco-sub004/pkg/logging"
)

var serviceTracer = otel.Tracer("wizcoco/chat-service")

// Service runs the safety pipeline over incoming text units and drives
// the conversation flow around it: extract, classify, store, then fan out
// to notification and escalation.
type Service struct {
	extractor  *risk.Extractor
	classifier *risk.Classifier
	signals    risk.Store
	dispatcher *notify.Dispatcher
	manager    *session.Manager
	sessions   session.Store
	replies    ReplyProvider
	metrics    *metrics.PipelineMetrics
	logger     *logging.Logger
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Extractor  *risk.Extractor
	Classifier *risk.Classifier
	Signals    risk.Store
	Dispatcher *notify.Dispatcher
	Manager    *session.Manager
	Sessions   session.Store
	Replies    ReplyProvider
	Metrics    *metrics.PipelineMetrics
	Logger     *logging.Logger
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.Extractor == nil || cfg.Classifier == nil || cfg.Signals == nil {
		panic("chat: extractor, classifier and signal store required")
	}
	if cfg.Sessions == nil || cfg.Manager == nil {
		panic("chat: session store and manager required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	replies := cfg.Replies
	if replies == nil {
		replies = SupportiveReplyProvider{}
	}
	return &Service{
		extractor:  cfg.Extractor,
		classifier: cfg.Classifier,
		signals:    cfg.Signals,
		dispatcher: cfg.Dispatcher,
		manager:    cfg.Manager,
		sessions:   cfg.Sessions,
		replies:    replies,
		metrics:    cfg.Metrics,
		logger:     logger.Component("chat-service"),
	}
}

// ProcessResult is the outcome of running the pipeline over one unit.
type ProcessResult struct {
	Signals   []risk.RiskSignal    `json:"signals"`
	NewCount  int                  `json:"new_count"`
	Escalated *session.ChatSession `json:"escalated_session,omitempty"`
}

// Process runs extraction, classification and storage for one text unit,
// then raises notifications and escalation for the new signals. Fan-out
// failures after a successful store are logged and metered, never
// propagated: a stored signal must not be lost because an alert channel
// hiccuped.
func (s *Service) Process(ctx context.Context, unit risk.TextUnit) (ProcessResult, error) {
	ctx, span := serviceTracer.Start(ctx, "chat.process_unit")
	defer span.End()

	if err := unit.Validate(); err != nil {
		return ProcessResult{}, err
	}
	span.SetAttributes(
		attribute.String("client.id", unit.ClientID),
		attribute.String("unit.kind", string(unit.SourceKind)),
	)

	candidates := s.extractor.Extract(ctx, unit)
	classified := s.classifier.Classify(unit, candidates)

	result := ProcessResult{Signals: make([]risk.RiskSignal, 0, len(classified))}
	highestNew := risk.Severity("")
	for _, sig := range classified {
		stored, isNew, err := s.signals.Put(ctx, sig)
		if err != nil {
			s.metrics.ObserveFailure("store")
			return ProcessResult{}, fmt.Errorf("chat: store signal: %w", err)
		}
		s.metrics.ObserveSignal(string(stored.Type), string(stored.Severity), isNew)
		result.Signals = append(result.Signals, stored)
		if isNew {
			result.NewCount++
			highestNew = risk.MaxSeverity(highestNew, stored.Severity)
		}

		if s.dispatcher != nil {
			if _, err := s.dispatcher.OnNewSignal(ctx, stored, isNew); err != nil {
				s.metrics.ObserveFailure("notify")
				s.logger.Error("signal notification failed", "error", err, "signal_id", stored.ID)
			}
		}
	}

	if sessionID := parseSessionID(unit.SessionID); sessionID != uuid.Nil && highestNew != "" {
		escalated, err := s.manager.MaybeEscalate(ctx, sessionID, highestNew)
		switch {
		case err != nil:
			s.metrics.ObserveFailure("escalate")
			s.logger.Error("auto-escalation failed", "error", err, "session_id", sessionID)
		case escalated != nil:
			result.Escalated = escalated
		}
	}

	span.SetAttributes(attribute.Int("signals.new", result.NewCount))
	return result, nil
}

// SendMessageResult is the response of one chat turn.
type SendMessageResult struct {
	SessionID uuid.UUID           `json:"session_id"`
	MessageID string              `json:"message_id"`
	Reply     string              `json:"reply"`
	Signals   []risk.RiskSignal   `json:"signals"`
	Session   session.ChatSession `json:"session"`
}

// SendMessage appends one client message to a session, runs the safety
// pipeline synchronously, and returns the reply. A nil session id starts
// a new session; a closed session rejects the message.
func (s *Service) SendMessage(ctx context.Context, sessionID uuid.UUID, clientID, text string) (SendMessageResult, error) {
	ctx, span := serviceTracer.Start(ctx, "chat.send_message")
	defer span.End()

	var sess session.ChatSession
	var err error
	if sessionID == uuid.Nil {
		sess, err = s.sessions.Create(ctx, clientID)
	} else {
		sess, err = s.sessions.Get(ctx, sessionID)
	}
	if err != nil {
		return SendMessageResult{}, err
	}
	if sess.State == session.StateClosed {
		return SendMessageResult{}, session.ErrSessionClosed
	}

	messageID := uuid.NewString()
	unit := risk.TextUnit{
		ClientID:   sess.ClientID,
		SessionID:  sess.ID.String(),
		SourceID:   messageID,
		SourceKind: risk.KindChatMessage,
		Text:       text,
	}

	processed, err := s.Process(ctx, unit)
	if err != nil {
		// A pipeline failure never blocks the conversation: the client
		// still gets a reply while the failure goes to operators via the
		// log and the stage failure counters bumped inside Process.
		s.logger.Error("safety pipeline failed, replying anyway",
			"error", err, "session_id", sess.ID, "message_id", messageID)
		processed = ProcessResult{}
	}
	if processed.Escalated != nil {
		sess = *processed.Escalated
	}

	reply, err := s.replies.Reply(ctx, sess, text, processed.Signals)
	if err != nil {
		// The pipeline already ran; a reply failure degrades to a stock
		// answer rather than dropping the turn.
		s.logger.Error("reply provider failed", "error", err, "session_id", sess.ID)
		reply = "I'm having trouble responding right now, but I'm still here with you."
	}

	return SendMessageResult{
		SessionID: sess.ID,
		MessageID: messageID,
		Reply:     reply,
		Signals:   processed.Signals,
		Session:   sess,
	}, nil
}

// Escalate hands the session over to a counselor on explicit request.
func (s *Service) Escalate(ctx context.Context, sessionID uuid.UUID) (session.ChatSession, error) {
	return s.manager.Escalate(ctx, sessionID)
}

// CloseSession ends a session.
func (s *Service) CloseSession(ctx context.Context, sessionID uuid.UUID) (session.ChatSession, error) {
	return s.manager.Close(ctx, sessionID)
}

// StartSession opens a fresh active session for a client.
func (s *Service) StartSession(ctx context.Context, clientID string) (session.ChatSession, error) {
	return s.sessions.Create(ctx, clientID)
}

// GetSession fetches a session.
func (s *Service) GetSession(ctx context.Context, sessionID uuid.UUID) (session.ChatSession, error) {
	return s.sessions.Get(ctx, sessionID)
}

func parseSessionID(raw string) uuid.UUID {
	if raw == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}
	return id
}
