package counselor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// ErrNoCounselor means the client has no counselor currently assigned.
// Callers decide how to degrade; the resolver never invents an assignment.
var ErrNoCounselor = errors.New("counselor: no counselor assigned")

// Resolver looks up the counselor currently responsible for a client.
type Resolver interface {
	ResolveCounselor(ctx context.Context, clientID string) (string, error)
}

// DirectoryResolver reads assignments from the relational directory.
type DirectoryResolver struct {
	db *sql.DB
}

// NewDirectoryResolver creates a resolver over the assignments table.
func NewDirectoryResolver(db *sql.DB) *DirectoryResolver {
	if db == nil {
		panic("counselor: db required")
	}
	return &DirectoryResolver{db: db}
}

// ResolveCounselor returns the active assignment for the client.
func (r *DirectoryResolver) ResolveCounselor(ctx context.Context, clientID string) (string, error) {
	query := `
		SELECT counselor_id FROM counselor_assignments
		WHERE client_id = $1 AND active = TRUE
		ORDER BY assigned_at DESC
		LIMIT 1
	`
	var counselorID string
	err := r.db.QueryRowContext(ctx, query, clientID).Scan(&counselorID)
	if err == sql.ErrNoRows {
		return "", ErrNoCounselor
	}
	if err != nil {
		return "", fmt.Errorf("counselor: resolve assignment: %w", err)
	}
	return counselorID, nil
}

// StaticResolver serves assignments from a fixed map. Used in tests and
// local development.
type StaticResolver struct {
	mu          sync.RWMutex
	assignments map[string]string
}

// NewStaticResolver creates a resolver with the given client→counselor map.
func NewStaticResolver(assignments map[string]string) *StaticResolver {
	if assignments == nil {
		assignments = make(map[string]string)
	}
	return &StaticResolver{assignments: assignments}
}

// Assign sets or replaces a client's counselor.
func (r *StaticResolver) Assign(clientID, counselorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments[clientID] = counselorID
}

// ResolveCounselor returns the mapped counselor or ErrNoCounselor.
func (r *StaticResolver) ResolveCounselor(ctx context.Context, clientID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counselorID, ok := r.assignments[clientID]
	if !ok || counselorID == "" {
		return "", ErrNoCounselor
	}
	return counselorID, nil
}

var (
	_ Resolver = (*DirectoryResolver)(nil)
	_ Resolver = (*StaticResolver)(nil)
)
