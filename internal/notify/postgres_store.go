package notify

import (
	"context"
	"fmt"
	"time"

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

// PostgresStore persists notifications in the notifications table. The
// partial unique index over unacknowledged rows enforces the
// one-open-notification-per-cause invariant at the storage layer.
type PostgresStore struct {
	pool querier
}

// NewPostgresStore initializes a store backed by pgxpool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("notify: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

// NewPostgresStoreWithQuerier wires an arbitrary querier, used by tests.
func NewPostgresStoreWithQuerier(q querier) *PostgresStore {
	if q == nil {
		panic("notify: querier required")
	}
	return &PostgresStore{pool: q}
}

// Upsert inserts or refreshes the open notification for the cause. The
// returned id tells the caller whether the row is new: an update keeps the
// existing row's id.
func (s *PostgresStore) Upsert(ctx context.Context, n Notification) (Notification, bool, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}

	query := `
		INSERT INTO notifications (
			id, recipient_id, kind, title, body, priority,
			related_type, related_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (recipient_id, related_type, related_id)
			WHERE acknowledged_at IS NULL
		DO UPDATE SET
			priority = EXCLUDED.priority,
			body = EXCLUDED.body,
			updated_at = now()
		RETURNING id, created_at, updated_at
	`
	var storedID uuid.UUID
	var createdAt, updatedAt time.Time
	err := s.pool.QueryRow(ctx, query,
		n.ID, n.RecipientID, n.Kind, n.Title, n.Body, n.Priority,
		n.Related.Type, n.Related.ID,
	).Scan(&storedID, &createdAt, &updatedAt)
	if err != nil {
		return Notification{}, false, fmt.Errorf("notify: upsert notification: %w", err)
	}

	isNew := storedID == n.ID
	n.ID = storedID
	n.CreatedAt = createdAt
	n.UpdatedAt = updatedAt
	return n, isNew, nil
}

// ListByRecipient returns notifications newest first.
func (s *PostgresStore) ListByRecipient(ctx context.Context, recipientID string, unackedOnly bool) ([]Notification, error) {
	query := `
		SELECT id, recipient_id, kind, title, body, priority,
			related_type, related_id, created_at, updated_at, acknowledged_at
		FROM notifications
		WHERE recipient_id = $1
	`
	if unackedOnly {
		query += " AND acknowledged_at IS NULL"
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.pool.Query(ctx, query, recipientID)
	if err != nil {
		return nil, fmt.Errorf("notify: list notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(
			&n.ID, &n.RecipientID, &n.Kind, &n.Title, &n.Body, &n.Priority,
			&n.Related.Type, &n.Related.ID, &n.CreatedAt, &n.UpdatedAt,
			&n.AcknowledgedAt,
		); err != nil {
			return nil, fmt.Errorf("notify: scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Acknowledge closes a notification.
func (s *PostgresStore) Acknowledge(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE notifications
		SET acknowledged_at = now()
		WHERE id = $1 AND acknowledged_at IS NULL
	`
	ct, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("notify: acknowledge notification: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
