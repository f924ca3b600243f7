package risk

import (
	"context"
	"errors"
	"fmt"
	"strings"
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

// PostgresStore persists signals in the risk_signals table.
type PostgresStore struct {
	pool querier
}

// NewPostgresStore initializes a store backed by pgxpool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("risk: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

// NewPostgresStoreWithQuerier wires an arbitrary querier, used by tests.
func NewPostgresStoreWithQuerier(q querier) *PostgresStore {
	if q == nil {
		panic("risk: querier required")
	}
	return &PostgresStore{pool: q}
}

const signalColumns = `id, client_id, session_id, signal_type, severity, confidence,
		message, evidence_excerpt, evidence_rule_ids, source, dedupe_key,
		supersedes, resolved, created_at`

// Put inserts the signal unless one with the same dedupe key exists. The
// unique constraint on dedupe_key is the only serialization point: the
// loser of a concurrent race reads the winner's row back and reports
// isNew=false, never an error.
func (s *PostgresStore) Put(ctx context.Context, signal RiskSignal) (RiskSignal, bool, error) {
	if signal.CreatedAt.IsZero() {
		signal.CreatedAt = time.Now().UTC()
	}

	insert := `
		INSERT INTO risk_signals (
			id, client_id, session_id, signal_type, severity, confidence,
			message, evidence_excerpt, evidence_rule_ids, source, dedupe_key,
			supersedes, resolved, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (dedupe_key) DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, insert,
		signal.ID, signal.ClientID, nullable(signal.SessionID), signal.Type,
		signal.Severity, signal.Confidence, signal.Message,
		signal.Evidence.Excerpt, signal.Evidence.RuleIDs, signal.Source,
		signal.DedupeKey, signal.Supersedes, signal.Resolved, signal.CreatedAt,
	)
	if err != nil {
		return RiskSignal{}, false, fmt.Errorf("risk: insert signal: %w", err)
	}
	if ct.RowsAffected() > 0 {
		return signal, true, nil
	}

	existing, err := s.getBy(ctx, "dedupe_key = $1", signal.DedupeKey)
	if err != nil {
		return RiskSignal{}, false, fmt.Errorf("risk: read back deduped signal: %w", err)
	}
	return existing, false, nil
}

// Query fetches signals ordered by created_at descending.
func (s *PostgresStore) Query(ctx context.Context, filter Filter) ([]RiskSignal, error) {
	conds := []string{"1=1"}
	var args []any

	if filter.ClientID != "" {
		args = append(args, filter.ClientID)
		conds = append(conds, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if filter.MinSeverity != "" {
		args = append(args, filter.MinSeverity.Rank())
		conds = append(conds, fmt.Sprintf(severityRankSQL+" >= $%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.Until.IsZero() {
		args = append(args, filter.Until)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.UnresolvedOnly {
		conds = append(conds, "resolved = FALSE")
	}

	query := fmt.Sprintf(`
		SELECT %s FROM risk_signals
		WHERE %s
		ORDER BY created_at DESC`, signalColumns, strings.Join(conds, " AND "))
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("risk: query signals: %w", err)
	}
	defer rows.Close()

	var signals []RiskSignal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("risk: scan signal: %w", err)
		}
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

// GetByID fetches one signal by id.
func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (RiskSignal, error) {
	sig, err := s.getBy(ctx, "id = $1", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RiskSignal{}, ErrSignalNotFound
		}
		return RiskSignal{}, fmt.Errorf("risk: get signal: %w", err)
	}
	return sig, nil
}

// PutCorrection retires the original row and inserts the corrected one in
// a single statement, so a failed insert never leaves the original retired
// without its replacement.
func (s *PostgresStore) PutCorrection(ctx context.Context, supersedes uuid.UUID, corrected RiskSignal) (RiskSignal, error) {
	if corrected.CreatedAt.IsZero() {
		corrected.CreatedAt = time.Now().UTC()
	}

	query := `
		WITH retired AS (
			UPDATE risk_signals SET resolved = TRUE
			WHERE id = $12
			RETURNING id
		)
		INSERT INTO risk_signals (
			id, client_id, session_id, signal_type, severity, confidence,
			message, evidence_excerpt, evidence_rule_ids, source, dedupe_key,
			supersedes, resolved, created_at
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, retired.id, FALSE, $13
		FROM retired
		RETURNING ` + signalColumns
	row := s.pool.QueryRow(ctx, query,
		corrected.ID, corrected.ClientID, nullable(corrected.SessionID),
		corrected.Type, corrected.Severity, corrected.Confidence,
		corrected.Message, corrected.Evidence.Excerpt, corrected.Evidence.RuleIDs,
		corrected.Source, corrected.DedupeKey, supersedes, corrected.CreatedAt,
	)
	stored, err := scanSignal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RiskSignal{}, ErrSignalNotFound
		}
		return RiskSignal{}, fmt.Errorf("risk: store correction: %w", err)
	}
	return stored, nil
}

// Resolve flips the resolved flag. The row itself is immutable otherwise
// and never deleted.
func (s *PostgresStore) Resolve(ctx context.Context, id uuid.UUID, counselorID string) error {
	query := `
		UPDATE risk_signals
		SET resolved = TRUE, resolved_by = $2, resolved_at = now()
		WHERE id = $1 AND resolved = FALSE
	`
	ct, err := s.pool.Exec(ctx, query, id, counselorID)
	if err != nil {
		return fmt.Errorf("risk: resolve signal: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrSignalNotFound
	}
	return nil
}

// severityRankSQL orders the severity enum without a lookup table.
const severityRankSQL = `CASE severity
		WHEN 'critical' THEN 4 WHEN 'high' THEN 3
		WHEN 'medium' THEN 2 ELSE 1 END`

func (s *PostgresStore) getBy(ctx context.Context, cond string, arg any) (RiskSignal, error) {
	query := fmt.Sprintf(`SELECT %s FROM risk_signals WHERE %s`, signalColumns, cond)
	return scanSignal(s.pool.QueryRow(ctx, query, arg))
}

func scanSignal(row pgx.Row) (RiskSignal, error) {
	var sig RiskSignal
	var sessionID *string
	err := row.Scan(
		&sig.ID, &sig.ClientID, &sessionID, &sig.Type, &sig.Severity,
		&sig.Confidence, &sig.Message, &sig.Evidence.Excerpt,
		&sig.Evidence.RuleIDs, &sig.Source, &sig.DedupeKey,
		&sig.Supersedes, &sig.Resolved, &sig.CreatedAt,
	)
	if err != nil {
		return RiskSignal{}, err
	}
	if sessionID != nil {
		sig.SessionID = *sessionID
	}
	return sig, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ Store = (*PostgresStore)(nil)
