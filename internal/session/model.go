package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle phase of a chat session. Transitions are
// one-directional: active -> escalated -> closed. A session can also
// close straight from active.
type State string

const (
	StateActive    State = "active"
	StateEscalated State = "escalated"
	StateClosed    State = "closed"
)

// Type distinguishes what kind of conversation the session carries.
type Type string

const (
	TypeChat    Type = "chat"
	TypeCheckin Type = "checkin"
)

// Trigger records why a session was escalated.
type Trigger string

const (
	TriggerAuto   Trigger = "auto"
	TriggerManual Trigger = "manual"
)

var (
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionClosed rejects operations on a session that already ended.
	ErrSessionClosed = errors.New("session: closed")
)

// ChatSession is one client conversation with the AI assistant. Once
// escalated, a human counselor owns the conversation; CounselorID stays
// nil when escalation happened with nobody available to take over.
type ChatSession struct {
	ID          uuid.UUID  `json:"id"`
	ClientID    string     `json:"client_id"`
	Type        Type       `json:"session_type"`
	State       State      `json:"state"`
	CounselorID *string    `json:"counselor_id,omitempty"`
	Trigger     *Trigger   `json:"escalation_trigger,omitempty"`
	EscalatedAt *time.Time `json:"escalated_at,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Escalated reports whether a counselor handover already happened.
func (s ChatSession) Escalated() bool {
	return s.State == StateEscalated
}
