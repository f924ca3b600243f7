package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists sessions in the chat_sessions table. State
// transitions ride on guarded UPDATEs so two racing escalations cannot
// both win.
type PostgresStore struct {
	pool querier
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("session: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

// NewPostgresStoreWithQuerier wires an arbitrary querier, used by tests.
func NewPostgresStoreWithQuerier(q querier) *PostgresStore {
	if q == nil {
		panic("session: querier required")
	}
	return &PostgresStore{pool: q}
}

const sessionColumns = `
	id, client_id, session_type, state, counselor_id, escalation_trigger,
	escalated_at, closed_at, created_at, updated_at
`

func (s *PostgresStore) Create(ctx context.Context, clientID string) (ChatSession, error) {
	query := `
		INSERT INTO chat_sessions (id, client_id, session_type, state, created_at, updated_at)
		VALUES ($1, $2, $3, 'active', now(), now())
		RETURNING ` + sessionColumns
	row := s.pool.QueryRow(ctx, query, uuid.New(), clientID, TypeChat)
	sess, err := scanSession(row)
	if err != nil {
		return ChatSession{}, fmt.Errorf("session: create: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (ChatSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE id = $1`
	sess, err := scanSession(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ChatSession{}, ErrSessionNotFound
		}
		return ChatSession{}, fmt.Errorf("session: get: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) Escalate(ctx context.Context, id uuid.UUID, counselorID *string, trigger Trigger) (ChatSession, bool, error) {
	query := `
		UPDATE chat_sessions
		SET state = 'escalated',
			counselor_id = $2,
			escalation_trigger = $3,
			escalated_at = now(),
			updated_at = now()
		WHERE id = $1 AND state = 'active'
		RETURNING ` + sessionColumns
	sess, err := scanSession(s.pool.QueryRow(ctx, query, id, counselorID, trigger))
	if err == nil {
		return sess, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ChatSession{}, false, fmt.Errorf("session: escalate: %w", err)
	}

	// Transition lost: the row is missing, already escalated, or closed.
	current, err := s.Get(ctx, id)
	if err != nil {
		return ChatSession{}, false, err
	}
	if current.State == StateClosed {
		return ChatSession{}, false, ErrSessionClosed
	}
	return current, false, nil
}

func (s *PostgresStore) Close(ctx context.Context, id uuid.UUID) (ChatSession, error) {
	query := `
		UPDATE chat_sessions
		SET state = 'closed', closed_at = now(), updated_at = now()
		WHERE id = $1 AND state <> 'closed'
		RETURNING ` + sessionColumns
	sess, err := scanSession(s.pool.QueryRow(ctx, query, id))
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ChatSession{}, fmt.Errorf("session: close: %w", err)
	}
	if _, getErr := s.Get(ctx, id); getErr != nil {
		return ChatSession{}, getErr
	}
	return ChatSession{}, ErrSessionClosed
}

func scanSession(row pgx.Row) (ChatSession, error) {
	var sess ChatSession
	err := row.Scan(
		&sess.ID, &sess.ClientID, &sess.Type, &sess.State,
		&sess.CounselorID, &sess.Trigger, &sess.EscalatedAt, &sess.ClosedAt,
		&sess.CreatedAt, &sess.UpdatedAt,
	)
	return sess, err
}

var _ Store = (*PostgresStore)(nil)
