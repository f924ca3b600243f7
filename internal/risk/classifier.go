package risk

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// negationWindow is how far back (in bytes) the classifier looks for a
// negating phrase before a match.
const negationWindow = 24

// negationPenalty is subtracted from base confidence when the matched
// excerpt is negated nearby ("I would never hurt myself").
const negationPenalty = 30

var negationRe = regexp.MustCompile(`(?i)\b(not|never|no longer|don'?t|won'?t|wouldn'?t|wasn'?t|isn'?t)\b`)

// Classifier turns raw candidates into classified signals. Classification
// is pure: persistence is a separate step so outcomes are testable without
// a store.
type Classifier struct{}

// NewClassifier creates a classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify resolves duplicates and overlaps among candidates from one text
// unit and produces at most one signal per signal type. The winner per type
// is chosen by highest severity, then highest adjusted confidence, then
// lowest rule ID. Repetition of a rule within the unit never raises
// confidence. Evidence keeps the winning excerpt and every rule ID of that
// type that fired.
func (c *Classifier) Classify(unit TextUnit, candidates []RawCandidate) []RiskSignal {
	if len(candidates) == 0 {
		return nil
	}

	type scored struct {
		cand       RawCandidate
		confidence int
	}

	best := make(map[SignalType]scored)
	ruleIDs := make(map[SignalType]map[string]struct{})

	for _, cand := range candidates {
		confidence := clampConfidence(cand.BaseConfidence - negationAdjustment(unit.Text, cand))

		if ruleIDs[cand.Type] == nil {
			ruleIDs[cand.Type] = make(map[string]struct{})
		}
		ruleIDs[cand.Type][cand.RuleID] = struct{}{}

		cur, ok := best[cand.Type]
		if !ok || beats(cand, confidence, cur.cand, cur.confidence) {
			best[cand.Type] = scored{cand: cand, confidence: confidence}
		}
	}

	now := time.Now().UTC()
	signals := make([]RiskSignal, 0, len(best))
	for sigType, winner := range best {
		ids := make([]string, 0, len(ruleIDs[sigType]))
		for id := range ruleIDs[sigType] {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		signals = append(signals, RiskSignal{
			ID:         uuid.New(),
			ClientID:   unit.ClientID,
			SessionID:  unit.SessionID,
			Type:       sigType,
			Severity:   winner.cand.Severity,
			Confidence: winner.confidence,
			Message:    summaryFor(sigType, winner.cand, unit.SourceKind),
			Evidence: Evidence{
				Excerpt: winner.cand.Excerpt,
				RuleIDs: ids,
			},
			Source:    unit.SourceKind.SignalSource(),
			DedupeKey: DedupeKey(unit.SourceID, sigType),
			CreatedAt: now,
		})
	}

	// Deterministic output order: most severe first, then type name.
	sort.Slice(signals, func(i, j int) bool {
		if signals[i].Severity.Rank() != signals[j].Severity.Rank() {
			return signals[i].Severity.Rank() > signals[j].Severity.Rank()
		}
		return signals[i].Type < signals[j].Type
	})
	return signals
}

// beats reports whether candidate a (with adjusted confidence confA) wins
// over the current best b.
func beats(a RawCandidate, confA int, b RawCandidate, confB int) bool {
	if a.Severity.Rank() != b.Severity.Rank() {
		return a.Severity.Rank() > b.Severity.Rank()
	}
	if confA != confB {
		return confA > confB
	}
	return a.RuleID < b.RuleID
}

func negationAdjustment(text string, cand RawCandidate) int {
	start := cand.Start - negationWindow
	if start < 0 {
		start = 0
	}
	if cand.Start > len(text) {
		return 0
	}
	if negationRe.MatchString(text[start:cand.Start]) {
		return negationPenalty
	}
	return 0
}

func clampConfidence(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func summaryFor(sigType SignalType, cand RawCandidate, kind SourceKind) string {
	var concern string
	switch sigType {
	case SignalSuicidal:
		concern = "Possible suicidal ideation"
	case SignalSelfHarm:
		concern = "Possible self-harm risk"
	case SignalDepression:
		concern = "Signs of depression"
	case SignalAnxiety:
		concern = "Signs of acute anxiety"
	case SignalSubstance:
		concern = "Possible substance misuse"
	default:
		concern = "Safety concern"
	}
	origin := strings.ReplaceAll(string(kind), "-", " ")
	return fmt.Sprintf("%s detected in %s (rule %s): %q", concern, origin, cand.RuleID, cand.Excerpt)
}
