package reports

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLCollaborators reads the assessment, counseling and goal collections
// straight from their tables. The tables belong to the surrounding
// application; this core only ever reads them.
type SQLCollaborators struct {
	db *sql.DB
}

func NewSQLCollaborators(db *sql.DB) *SQLCollaborators {
	if db == nil {
		panic("reports: db required")
	}
	return &SQLCollaborators{db: db}
}

func (c *SQLCollaborators) ListAssessments(ctx context.Context, clientID string) ([]AssessmentRecord, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, title, status, completed_at, created_at
		FROM assessment_programs
		WHERE client_id = $1
		ORDER BY created_at DESC
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer rows.Close()

	var out []AssessmentRecord
	for rows.Next() {
		var r AssessmentRecord
		if err := rows.Scan(&r.ID, &r.Title, &r.Status, &r.CompletedAt, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (c *SQLCollaborators) ListSessions(ctx context.Context, clientID string) ([]CounselingRecord, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, counselor_id, state, started_at
		FROM counseling_sessions
		WHERE client_id = $1
		ORDER BY started_at DESC
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list counseling sessions: %w", err)
	}
	defer rows.Close()

	var out []CounselingRecord
	for rows.Next() {
		var r CounselingRecord
		if err := rows.Scan(&r.ID, &r.CounselorID, &r.State, &r.StartedAt); err != nil {
			return nil, fmt.Errorf("scan counseling session: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (c *SQLCollaborators) ListGoals(ctx context.Context, clientID string) ([]GoalRecord, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, title, status, updated_at
		FROM goals
		WHERE client_id = $1
		ORDER BY updated_at DESC
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var out []GoalRecord
	for rows.Next() {
		var r GoalRecord
		if err := rows.Scan(&r.ID, &r.Title, &r.Status, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

var (
	_ AssessmentStore = (*SQLCollaborators)(nil)
	_ CounselingStore = (*SQLCollaborators)(nil)
	_ GoalStore       = (*SQLCollaborators)(nil)
)
