package reports

import (
	"context"
	"fmt"
	"time"
)

// AssessmentRecord is one assessment program run for a client.
type AssessmentRecord struct {
	ID          string
	Title       string
	Status      string
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// CounselingRecord is one counseling session entry.
type CounselingRecord struct {
	ID          string
	CounselorID string
	State       string
	StartedAt   time.Time
}

// GoalRecord is one client goal.
type GoalRecord struct {
	ID        string
	Title     string
	Status    string
	UpdatedAt time.Time
}

// Collaborator stores feed report sections. They live outside this core
// and are treated as opaque read-only sources.
type (
	AssessmentStore interface {
		ListAssessments(ctx context.Context, clientID string) ([]AssessmentRecord, error)
	}
	CounselingStore interface {
		ListSessions(ctx context.Context, clientID string) ([]CounselingRecord, error)
	}
	GoalStore interface {
		ListGoals(ctx context.Context, clientID string) ([]GoalRecord, error)
	}
)

// CollaboratorError marks a failure to reach one of the source stores
// during aggregation. The HTTP layer maps it to a 502.
type CollaboratorError struct {
	Name string
	Err  error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("reports: collaborator %s unreachable: %v", e.Name, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }
