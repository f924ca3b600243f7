package risk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classifyText(t *testing.T, text string) []RiskSignal {
	t.Helper()
	unit := TextUnit{
		ClientID:   "client-1",
		SessionID:  "session-1",
		SourceID:   "msg-1",
		SourceKind: KindChatMessage,
		Text:       text,
	}
	extractor := NewExtractor(nil)
	return NewClassifier().Classify(unit, extractor.Extract(context.Background(), unit))
}

func TestClassifier_CriticalPhrase(t *testing.T) {
	signals := classifyText(t, "I want to end it all")

	require.Len(t, signals, 1)
	sig := signals[0]
	assert.Equal(t, SignalSuicidal, sig.Type)
	assert.Equal(t, SeverityCritical, sig.Severity)
	assert.GreaterOrEqual(t, sig.Confidence, 95)
	assert.Equal(t, SourceAIAnalysis, sig.Source)
	assert.Equal(t, DedupeKey("msg-1", SignalSuicidal), sig.DedupeKey)
	assert.Contains(t, sig.Evidence.RuleIDs, "suicidal-direct")
}

func TestClassifier_MildPhraseStaysBelowThreshold(t *testing.T) {
	signals := classifyText(t, "I feel a bit down today")

	require.Len(t, signals, 1)
	sig := signals[0]
	assert.Equal(t, SignalDepression, sig.Type)
	assert.False(t, sig.Severity.AtLeast(SeverityHigh))
}

func TestClassifier_PerUnitPerTypeCap(t *testing.T) {
	// Two suicidal rules and a repeated phrase: still exactly one suicidal signal.
	signals := classifyText(t, "I want to end it all, there is no reason to live, end it all")

	var suicidal []RiskSignal
	for _, s := range signals {
		if s.Type == SignalSuicidal {
			suicidal = append(suicidal, s)
		}
	}
	require.Len(t, suicidal, 1)
	// Tie-break keeps the highest-severity rule; both matched rules stay in evidence.
	assert.Equal(t, SeverityCritical, suicidal[0].Severity)
	assert.ElementsMatch(t, []string{"suicidal-direct", "suicidal-passive"}, suicidal[0].Evidence.RuleIDs)
}

func TestClassifier_RepetitionDoesNotRaiseConfidence(t *testing.T) {
	once := classifyText(t, "I want to end it all")
	repeated := classifyText(t, "end it all, end it all, end it all")

	require.Len(t, once, 1)
	require.Len(t, repeated, 1)
	assert.Equal(t, once[0].Confidence, repeated[0].Confidence)
}

func TestClassifier_NegationLowersConfidence(t *testing.T) {
	plain := classifyText(t, "I will hurt myself")
	negated := classifyText(t, "I would never hurt myself")

	require.Len(t, plain, 1)
	require.Len(t, negated, 1)
	assert.Less(t, negated[0].Confidence, plain[0].Confidence)
}

func TestClassifier_ConfidenceBounds(t *testing.T) {
	texts := []string{
		"I want to end it all",
		"I would never hurt myself",
		"I feel a bit down today and so anxious",
		"hopeless worthless empty inside",
	}
	for _, text := range texts {
		for _, sig := range classifyText(t, text) {
			assert.GreaterOrEqual(t, sig.Confidence, 0)
			assert.LessOrEqual(t, sig.Confidence, 100)
		}
	}
}

func TestClassifier_TieBreakDeterministic(t *testing.T) {
	unit := TextUnit{ClientID: "c", SourceID: "s", SourceKind: KindChatMessage, Text: "abc"}
	// Same severity and confidence: lowest rule ID wins, regardless of
	// candidate order.
	candidates := []RawCandidate{
		{RuleID: "b-rule", Type: SignalOther, Severity: SeverityMedium, BaseConfidence: 60, Excerpt: "abc"},
		{RuleID: "a-rule", Type: SignalOther, Severity: SeverityMedium, BaseConfidence: 60, Excerpt: "abc"},
	}
	forward := NewClassifier().Classify(unit, candidates)
	reversed := NewClassifier().Classify(unit, []RawCandidate{candidates[1], candidates[0]})

	require.Len(t, forward, 1)
	require.Len(t, reversed, 1)
	assert.Contains(t, forward[0].Message, "a-rule")
	assert.Contains(t, reversed[0].Message, "a-rule")
}

func TestClassifier_SourceMapping(t *testing.T) {
	tests := []struct {
		kind SourceKind
		want Source
	}{
		{KindChatMessage, SourceAIAnalysis},
		{KindDiaryEntry, SourceSelfReport},
		{KindAssessmentAnswer, SourceSelfReport},
		{KindCounselorNote, SourceCounselorFlagged},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.SignalSource())
	}
}

func TestClassifier_EmptyCandidates(t *testing.T) {
	unit := TextUnit{ClientID: "c", SourceID: "s", SourceKind: KindChatMessage, Text: "hello"}
	assert.Nil(t, NewClassifier().Classify(unit, nil))
}
