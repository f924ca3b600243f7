package risk

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SignalType categorizes the safety concern a signal represents.
type SignalType string

const (
	SignalSuicidal   SignalType = "suicidal"
	SignalSelfHarm   SignalType = "self-harm"
	SignalDepression SignalType = "depression"
	SignalAnxiety    SignalType = "anxiety"
	SignalSubstance  SignalType = "substance"
	SignalOther      SignalType = "other"
)

// Severity is the ordinal urgency tier of a signal.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the ordinal position of the severity, 0 for unknown values.
func (s Severity) Rank() int {
	return severityRank[s]
}

// AtLeast reports whether s is at or above the given threshold.
func (s Severity) AtLeast(threshold Severity) bool {
	return s.Rank() >= threshold.Rank()
}

// ParseSeverity maps a string to a Severity, defaulting to low.
func ParseSeverity(raw string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(raw))) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// MaxSeverity returns the higher of two severities.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Source identifies how a signal came into the system.
type Source string

const (
	SourceAIAnalysis       Source = "ai-analysis"
	SourceSelfReport       Source = "self-report"
	SourceCounselorFlagged Source = "counselor-flagged"
)

// SourceKind tags the origin of a text unit.
type SourceKind string

const (
	KindChatMessage      SourceKind = "chat-message"
	KindDiaryEntry       SourceKind = "diary-entry"
	KindAssessmentAnswer SourceKind = "assessment-answer"
	KindCounselorNote    SourceKind = "counselor-note"
)

// SignalSource maps a unit's origin to the signal source recorded on it.
func (k SourceKind) SignalSource() Source {
	switch k {
	case KindDiaryEntry, KindAssessmentAnswer:
		return SourceSelfReport
	case KindCounselorNote:
		return SourceCounselorFlagged
	default:
		return SourceAIAnalysis
	}
}

// TextUnit is one unit of client text to scan: a chat message, a diary
// entry, or a single assessment answer.
type TextUnit struct {
	ClientID   string     `json:"client_id"`
	SessionID  string     `json:"session_id,omitempty"`
	SourceID   string     `json:"source_id"`
	SourceKind SourceKind `json:"source_kind"`
	Text       string     `json:"text"`
}

// ErrInvalidUnit is returned when a text unit is missing required fields.
var ErrInvalidUnit = errors.New("risk: invalid text unit")

// Validate checks the unit carries enough identity to produce signals.
func (u TextUnit) Validate() error {
	if strings.TrimSpace(u.ClientID) == "" {
		return fmt.Errorf("%w: missing client_id", ErrInvalidUnit)
	}
	if strings.TrimSpace(u.SourceID) == "" {
		return fmt.Errorf("%w: missing source_id", ErrInvalidUnit)
	}
	if strings.TrimSpace(u.Text) == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidUnit)
	}
	return nil
}

// RawCandidate is a single rule match before classification.
type RawCandidate struct {
	RuleID         string
	Type           SignalType
	Severity       Severity
	BaseConfidence int
	Excerpt        string
	Start          int
	End            int
}

// Evidence records why a signal was raised.
type Evidence struct {
	Excerpt string   `json:"excerpt"`
	RuleIDs []string `json:"rule_ids"`
}

// RiskSignal is a classified, persisted indication of a safety concern.
// Signals are immutable once stored; corrections reference the signal they
// supersede instead of mutating it.
type RiskSignal struct {
	ID         uuid.UUID  `json:"id"`
	ClientID   string     `json:"client_id"`
	SessionID  string     `json:"session_id,omitempty"`
	Type       SignalType `json:"signal_type"`
	Severity   Severity   `json:"severity"`
	Confidence int        `json:"confidence"`
	Message    string     `json:"message"`
	Evidence   Evidence   `json:"evidence"`
	Source     Source     `json:"source"`
	DedupeKey  string     `json:"dedupe_key"`
	Supersedes *uuid.UUID `json:"supersedes,omitempty"`
	Resolved   bool       `json:"resolved"`
	CreatedAt  time.Time  `json:"created_at"`
}

// DedupeKey derives the deterministic identity of a signal from its source
// unit and type. One source unit yields at most one stored signal per type.
func DedupeKey(sourceID string, signalType SignalType) string {
	sum := sha256.Sum256([]byte(sourceID + "|" + string(signalType)))
	return hex.EncodeToString(sum[:])
}

// CorrectionDedupeKey identifies a correction of a stored signal. Keying
// on the superseded id keeps the corrected row from colliding with the
// original while still deduping a redelivered correction.
func CorrectionDedupeKey(supersedes uuid.UUID, signalType SignalType) string {
	sum := sha256.Sum256([]byte("correction|" + supersedes.String() + "|" + string(signalType)))
	return hex.EncodeToString(sum[:])
}
