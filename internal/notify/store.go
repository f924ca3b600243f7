package notify

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotificationNotFound is returned for unknown notification ids.
var ErrNotificationNotFound = errors.New("notify: notification not found")

// Store persists notifications. Upsert is keyed by
// (recipient, related type, related id) over unacknowledged rows.
type Store interface {
	Upsert(ctx context.Context, n Notification) (Notification, bool, error)
	ListByRecipient(ctx context.Context, recipientID string, unackedOnly bool) ([]Notification, error)
	Acknowledge(ctx context.Context, id uuid.UUID) error
}

type upsertKey struct {
	recipient   string
	relatedType string
	relatedID   string
}

// InMemoryStore keeps notifications in memory for tests and local runs.
type InMemoryStore struct {
	mu       sync.RWMutex
	open     map[upsertKey]*Notification
	byID     map[uuid.UUID]*Notification
	inserted []*Notification
}

// NewInMemoryStore creates an empty in-memory notification store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		open: make(map[upsertKey]*Notification),
		byID: make(map[uuid.UUID]*Notification),
	}
}

// Upsert inserts, or refreshes priority/body of the open notification for
// the same recipient and related entity.
func (s *InMemoryStore) Upsert(ctx context.Context, n Notification) (Notification, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := upsertKey{n.RecipientID, n.Related.Type, n.Related.ID}
	now := time.Now().UTC()

	if existing, ok := s.open[key]; ok {
		existing.Priority = n.Priority
		existing.Body = n.Body
		existing.UpdatedAt = now
		return *existing, false, nil
	}

	stored := n
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.open[key] = &stored
	s.byID[stored.ID] = &stored
	s.inserted = append(s.inserted, &stored)
	return stored, true, nil
}

// ListByRecipient returns notifications newest first.
func (s *InMemoryStore) ListByRecipient(ctx context.Context, recipientID string, unackedOnly bool) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Notification
	for _, n := range s.inserted {
		if n.RecipientID != recipientID {
			continue
		}
		if unackedOnly && n.AcknowledgedAt != nil {
			continue
		}
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Acknowledge closes a notification; the upsert key becomes free again so
// a later recurrence raises a fresh alert.
func (s *InMemoryStore) Acknowledge(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.byID[id]
	if !ok {
		return ErrNotificationNotFound
	}
	if n.AcknowledgedAt == nil {
		now := time.Now().UTC()
		n.AcknowledgedAt = &now
		delete(s.open, upsertKey{n.RecipientID, n.Related.Type, n.Related.ID})
	}
	return nil
}

var _ Store = (*InMemoryStore)(nil)
