package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/jomigata/wiz-coco-sub004/internal/risk"
)

// Kind distinguishes what a notification is about.
type Kind string

const (
	KindRiskSignal           Kind = "risk-signal"
	KindEscalation           Kind = "escalation"
	KindUnassignedEscalation Kind = "unassigned-escalation"
)

// Priority is the counselor-facing urgency of a notification.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// PriorityForSeverity maps signal severity to notification priority.
func PriorityForSeverity(severity risk.Severity) Priority {
	switch severity {
	case risk.SeverityCritical:
		return PriorityUrgent
	case risk.SeverityHigh:
		return PriorityHigh
	case risk.SeverityMedium:
		return PriorityNormal
	default:
		return PriorityLow
	}
}

// RelatedEntity points a notification at the record that caused it.
type RelatedEntity struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Notification is an alert surfaced to a counselor (or the supervisor
// queue). At most one unacknowledged notification exists per
// (recipient, related entity); re-triggering the same cause refreshes
// priority and body instead of duplicating.
type Notification struct {
	ID             uuid.UUID     `json:"id"`
	RecipientID    string        `json:"recipient_id"`
	Kind           Kind          `json:"kind"`
	Title          string        `json:"title"`
	Body           string        `json:"body"`
	Priority       Priority      `json:"priority"`
	Related        RelatedEntity `json:"related_entity"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	AcknowledgedAt *time.Time    `json:"acknowledged_at,omitempty"`
}
