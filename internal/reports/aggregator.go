package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jomigata/wiz-coco-sub004/internal/observability/metrics"
	"github.com/jomigata/wiz-coco-sub004/internal/risk"
	"github.com/jomigata/wiz-coco-sub004/pkg/logging"
)

var aggregatorTracer = otel.Tracer("wizcoco/report-aggregator")

// Aggregator assembles versioned report snapshots. It only reads the
// source collections; the report row is its single write. A generation
// either produces a complete report or nothing: any unreachable source
// fails the whole call.
type Aggregator struct {
	signals     risk.Store
	assessments AssessmentStore
	counseling  CounselingStore
	goals       GoalStore
	store       Store
	timeout     time.Duration
	metrics     *metrics.PipelineMetrics
	logger      *logging.Logger
}

// AggregatorConfig wires an Aggregator.
type AggregatorConfig struct {
	Signals     risk.Store
	Assessments AssessmentStore
	Counseling  CounselingStore
	Goals       GoalStore
	Store       Store
	Timeout     time.Duration
	Metrics     *metrics.PipelineMetrics
	Logger      *logging.Logger
}

func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.Signals == nil || cfg.Assessments == nil || cfg.Counseling == nil || cfg.Goals == nil {
		panic("reports: all source stores required")
	}
	if cfg.Store == nil {
		panic("reports: report store required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Aggregator{
		signals:     cfg.Signals,
		assessments: cfg.Assessments,
		counseling:  cfg.Counseling,
		goals:       cfg.Goals,
		store:       cfg.Store,
		timeout:     timeout,
		metrics:     cfg.Metrics,
		logger:      logger.Component("report-aggregator"),
	}
}

// Generate reads every source collection for the client and persists a
// fresh snapshot. Each call produces a new version; prior versions are
// never touched.
func (a *Aggregator) Generate(ctx context.Context, clientID string) (IntegratedReport, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	ctx, span := aggregatorTracer.Start(ctx, "reports.generate")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", clientID))

	start := time.Now()

	assessments, err := a.assessments.ListAssessments(ctx, clientID)
	if err != nil {
		a.metrics.ObserveFailure("report-source")
		return IntegratedReport{}, &CollaboratorError{Name: "assessments", Err: err}
	}
	counseling, err := a.counseling.ListSessions(ctx, clientID)
	if err != nil {
		a.metrics.ObserveFailure("report-source")
		return IntegratedReport{}, &CollaboratorError{Name: "counseling-sessions", Err: err}
	}
	goals, err := a.goals.ListGoals(ctx, clientID)
	if err != nil {
		a.metrics.ObserveFailure("report-source")
		return IntegratedReport{}, &CollaboratorError{Name: "goals", Err: err}
	}
	signals, err := a.signals.Query(ctx, risk.Filter{ClientID: clientID})
	if err != nil {
		a.metrics.ObserveFailure("report-source")
		return IntegratedReport{}, &CollaboratorError{Name: "risk-signals", Err: err}
	}

	report := IntegratedReport{
		ID:       uuid.New(),
		ClientID: clientID,
		Sections: Sections{
			Assessments: assessmentRefs(assessments),
			Sessions:    counselingRefs(counseling),
			Goals:       goalRefs(goals),
			RiskSignals: signalRefs(signals),
		},
		HighestOpenSeverity: highestOpenSeverity(signals),
	}

	// All reads done; bail before the single write if the caller gave up,
	// so a timed-out generation leaves no partial report behind.
	if err := ctx.Err(); err != nil {
		return IntegratedReport{}, fmt.Errorf("reports: generation cancelled: %w", err)
	}

	stored, err := a.store.Save(ctx, report)
	if err != nil {
		a.metrics.ObserveFailure("report-save")
		return IntegratedReport{}, err
	}

	a.metrics.ObserveReportLatency(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("report.version", stored.Version))
	a.logger.Info("integrated report generated",
		"client_id", clientID,
		"version", stored.Version,
		"signals", len(stored.Sections.RiskSignals),
	)
	return stored, nil
}

// Latest returns the newest stored snapshot without generating one.
func (a *Aggregator) Latest(ctx context.Context, clientID string) (IntegratedReport, error) {
	return a.store.Latest(ctx, clientID)
}

// highestOpenSeverity is the maximum severity among unresolved signals,
// nil when every signal is resolved or none exist.
func highestOpenSeverity(signals []risk.RiskSignal) *risk.Severity {
	var highest risk.Severity
	for _, sig := range signals {
		if sig.Resolved {
			continue
		}
		highest = risk.MaxSeverity(highest, sig.Severity)
	}
	if highest == "" {
		return nil
	}
	return &highest
}

func assessmentRefs(records []AssessmentRecord) []Ref {
	refs := make([]Ref, 0, len(records))
	for _, r := range records {
		at := r.CreatedAt
		if r.CompletedAt != nil {
			at = *r.CompletedAt
		}
		refs = append(refs, Ref{ID: r.ID, Label: r.Title, OccurredAt: at})
	}
	return refs
}

func counselingRefs(records []CounselingRecord) []Ref {
	refs := make([]Ref, 0, len(records))
	for _, r := range records {
		refs = append(refs, Ref{ID: r.ID, Label: r.State, OccurredAt: r.StartedAt})
	}
	return refs
}

func goalRefs(records []GoalRecord) []Ref {
	refs := make([]Ref, 0, len(records))
	for _, r := range records {
		refs = append(refs, Ref{ID: r.ID, Label: r.Title, OccurredAt: r.UpdatedAt})
	}
	return refs
}

func signalRefs(signals []risk.RiskSignal) []Ref {
	refs := make([]Ref, 0, len(signals))
	for _, sig := range signals {
		label := fmt.Sprintf("%s/%s", sig.Type, sig.Severity)
		refs = append(refs, Ref{ID: sig.ID.String(), Label: label, OccurredAt: sig.CreatedAt})
	}
	return refs
}
