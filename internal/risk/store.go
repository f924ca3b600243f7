package risk

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSignalNotFound is returned when a signal id does not exist.
var ErrSignalNotFound = errors.New("risk: signal not found")

// Filter narrows a signal query.
type Filter struct {
	ClientID       string
	MinSeverity    Severity
	Since          time.Time
	Until          time.Time
	UnresolvedOnly bool
	Limit          int
}

// Store persists classified signals. Put is an upsert keyed by dedupe key:
// concurrent writers racing on the same key all observe exactly one stored
// row, and only one of them sees isNew=true.
type Store interface {
	Put(ctx context.Context, signal RiskSignal) (RiskSignal, bool, error)
	Query(ctx context.Context, filter Filter) ([]RiskSignal, error)
	GetByID(ctx context.Context, id uuid.UUID) (RiskSignal, error)
	Resolve(ctx context.Context, id uuid.UUID, counselorID string) error
	// PutCorrection stores a replacement for an existing signal. The
	// original row stays but is retired; the new row carries a supersedes
	// reference back to it.
	PutCorrection(ctx context.Context, supersedes uuid.UUID, corrected RiskSignal) (RiskSignal, error)
}

// InMemoryStore keeps signals in memory. Used in tests and local
// development; the production store is Postgres-backed.
type InMemoryStore struct {
	mu     sync.RWMutex
	byKey  map[string]*RiskSignal
	byID   map[uuid.UUID]*RiskSignal
	sorted []*RiskSignal
}

// NewInMemoryStore creates an empty in-memory signal store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byKey: make(map[string]*RiskSignal),
		byID:  make(map[uuid.UUID]*RiskSignal),
	}
}

// Put upserts by dedupe key.
func (s *InMemoryStore) Put(ctx context.Context, signal RiskSignal) (RiskSignal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byKey[signal.DedupeKey]; ok {
		return *existing, false, nil
	}

	stored := signal
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.byKey[stored.DedupeKey] = &stored
	s.byID[stored.ID] = &stored
	s.sorted = append(s.sorted, &stored)
	return stored, true, nil
}

// Query returns matching signals ordered by created_at descending.
func (s *InMemoryStore) Query(ctx context.Context, filter Filter) ([]RiskSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []RiskSignal
	for _, sig := range s.sorted {
		if filter.ClientID != "" && sig.ClientID != filter.ClientID {
			continue
		}
		if filter.MinSeverity != "" && !sig.Severity.AtLeast(filter.MinSeverity) {
			continue
		}
		if !filter.Since.IsZero() && sig.CreatedAt.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && sig.CreatedAt.After(filter.Until) {
			continue
		}
		if filter.UnresolvedOnly && sig.Resolved {
			continue
		}
		out = append(out, *sig)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// GetByID fetches one signal.
func (s *InMemoryStore) GetByID(ctx context.Context, id uuid.UUID) (RiskSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sig, ok := s.byID[id]
	if !ok {
		return RiskSignal{}, ErrSignalNotFound
	}
	return *sig, nil
}

// PutCorrection retires the original signal and stores the corrected one
// with a supersedes reference.
func (s *InMemoryStore) PutCorrection(ctx context.Context, supersedes uuid.UUID, corrected RiskSignal) (RiskSignal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.byID[supersedes]
	if !ok {
		return RiskSignal{}, ErrSignalNotFound
	}
	original.Resolved = true

	stored := corrected
	stored.Supersedes = &supersedes
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.byKey[stored.DedupeKey] = &stored
	s.byID[stored.ID] = &stored
	s.sorted = append(s.sorted, &stored)
	return stored, nil
}

// Resolve soft-retires a signal. Signals are never deleted.
func (s *InMemoryStore) Resolve(ctx context.Context, id uuid.UUID, counselorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, ok := s.byID[id]
	if !ok {
		return ErrSignalNotFound
	}
	sig.Resolved = true
	return nil
}

var _ Store = (*InMemoryStore)(nil)
