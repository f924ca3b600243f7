package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists chat sessions and enforces the state machine at the
// storage layer: Escalate and Close are guarded transitions that report
// whether they actually moved the row.
type Store interface {
	Create(ctx context.Context, clientID string) (ChatSession, error)
	Get(ctx context.Context, id uuid.UUID) (ChatSession, error)
	// Escalate moves an active session to escalated. Returns the session
	// and whether this call performed the transition; an already escalated
	// session comes back unchanged with moved=false.
	Escalate(ctx context.Context, id uuid.UUID, counselorID *string, trigger Trigger) (ChatSession, bool, error)
	// Close ends a session from any non-closed state.
	Close(ctx context.Context, id uuid.UUID) (ChatSession, error)
}

// InMemoryStore keeps sessions in a map, for tests and single-node runs.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]ChatSession
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[uuid.UUID]ChatSession)}
}

func (s *InMemoryStore) Create(ctx context.Context, clientID string) (ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	sess := ChatSession{
		ID:        uuid.New(),
		ClientID:  clientID,
		Type:      TypeChat,
		State:     StateActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *InMemoryStore) Get(ctx context.Context, id uuid.UUID) (ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ChatSession{}, ErrSessionNotFound
	}
	return sess, nil
}

func (s *InMemoryStore) Escalate(ctx context.Context, id uuid.UUID, counselorID *string, trigger Trigger) (ChatSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ChatSession{}, false, ErrSessionNotFound
	}
	switch sess.State {
	case StateClosed:
		return ChatSession{}, false, ErrSessionClosed
	case StateEscalated:
		// Escalation is sticky: the original handover stands.
		return sess, false, nil
	}

	now := time.Now().UTC()
	sess.State = StateEscalated
	sess.CounselorID = counselorID
	sess.Trigger = &trigger
	sess.EscalatedAt = &now
	sess.UpdatedAt = now
	s.sessions[id] = sess
	return sess, true, nil
}

func (s *InMemoryStore) Close(ctx context.Context, id uuid.UUID) (ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ChatSession{}, ErrSessionNotFound
	}
	if sess.State == StateClosed {
		return ChatSession{}, ErrSessionClosed
	}

	now := time.Now().UTC()
	sess.State = StateClosed
	sess.ClosedAt = &now
	sess.UpdatedAt = now
	s.sessions[id] = sess
	return sess, nil
}

var _ Store = (*InMemoryStore)(nil)
