package risk

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var extractorTracer = otel.Tracer("wizcoco/risk-extractor")

// Extractor scans text units against a rule set and emits raw candidates.
// It holds no mutable state: output is a pure function of the rule set
// version and the input text, which keeps extraction reproducible in tests.
type Extractor struct {
	rules *RuleSet
}

// NewExtractor creates an extractor over the given rule set.
func NewExtractor(rules *RuleSet) *Extractor {
	if rules == nil {
		rules = DefaultRuleSet()
	}
	return &Extractor{rules: rules}
}

// RuleSetVersion reports the version of the rule table in use.
func (e *Extractor) RuleSetVersion() string {
	return e.rules.Version()
}

// Extract runs every rule against the unit in table order and returns all
// matches. Overlapping and duplicate hits are forwarded as-is; the
// classifier owns deduplication.
func (e *Extractor) Extract(ctx context.Context, unit TextUnit) []RawCandidate {
	_, span := extractorTracer.Start(ctx, "risk.extract")
	defer span.End()

	var candidates []RawCandidate
	for _, rule := range e.rules.Rules() {
		for _, m := range rule.Matcher.Match(unit.Text) {
			candidates = append(candidates, RawCandidate{
				RuleID:         rule.ID,
				Type:           rule.Type,
				Severity:       rule.Severity,
				BaseConfidence: rule.BaseConfidence,
				Excerpt:        m.Excerpt,
				Start:          m.Start,
				End:            m.End,
			})
		}
	}

	span.SetAttributes(
		attribute.String("risk.ruleset_version", e.rules.Version()),
		attribute.String("risk.source_kind", string(unit.SourceKind)),
		attribute.Int("risk.candidates", len(candidates)),
	)
	return candidates
}
