package reports

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists generated reports. Save assigns the next version for the
// client atomically; reports are append-only and never updated.
type Store interface {
	Save(ctx context.Context, report IntegratedReport) (IntegratedReport, error)
	Latest(ctx context.Context, clientID string) (IntegratedReport, error)
	ListVersions(ctx context.Context, clientID string) ([]IntegratedReport, error)
}

// InMemoryStore keeps reports per client, newest last.
type InMemoryStore struct {
	mu       sync.Mutex
	byClient map[string][]IntegratedReport
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byClient: make(map[string][]IntegratedReport)}
}

func (s *InMemoryStore) Save(ctx context.Context, report IntegratedReport) (IntegratedReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = time.Now().UTC()
	}
	report.Version = len(s.byClient[report.ClientID]) + 1
	s.byClient[report.ClientID] = append(s.byClient[report.ClientID], report)
	return report, nil
}

func (s *InMemoryStore) Latest(ctx context.Context, clientID string) (IntegratedReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.byClient[clientID]
	if len(versions) == 0 {
		return IntegratedReport{}, ErrReportNotFound
	}
	return versions[len(versions)-1], nil
}

func (s *InMemoryStore) ListVersions(ctx context.Context, clientID string) ([]IntegratedReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]IntegratedReport, len(s.byClient[clientID]))
	copy(out, s.byClient[clientID])
	return out, nil
}

var _ Store = (*InMemoryStore)(nil)
