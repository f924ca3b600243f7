package reports

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jomigata/wiz-coco-sub004/internal/risk"
)

// ErrReportNotFound is returned when a client has no generated report yet.
var ErrReportNotFound = errors.New("reports: not found")

// Ref points at a record in a source collection. Reports carry references,
// not copies, so the source collections stay authoritative.
type Ref struct {
	ID         string    `json:"id"`
	Label      string    `json:"label,omitempty"`
	OccurredAt time.Time `json:"occurred_at,omitempty"`
}

// Sections groups the references of one report by source collection.
type Sections struct {
	Assessments []Ref `json:"assessments"`
	Sessions    []Ref `json:"sessions"`
	Goals       []Ref `json:"goals"`
	RiskSignals []Ref `json:"risk_signals"`
}

// IntegratedReport is a versioned snapshot of one client's records.
// Immutable once generated: a fresh request always creates a new version
// so reports stay auditable over time.
type IntegratedReport struct {
	ID                  uuid.UUID      `json:"id"`
	ClientID            string         `json:"client_id"`
	Version             int            `json:"version"`
	Sections            Sections       `json:"sections"`
	HighestOpenSeverity *risk.Severity `json:"highest_open_severity,omitempty"`
	GeneratedAt         time.Time      `json:"generated_at"`
}
