package reports

import (
	"context"
	"encoding/json"
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

// PostgresStore persists reports in the integrated_reports table.
// Versions are assigned inside the INSERT and backed by a unique
// (client_id, version) index, so two racing generations cannot claim the
// same version.
type PostgresStore struct {
	pool querier
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("reports: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

// NewPostgresStoreWithQuerier wires an arbitrary querier, used by tests.
func NewPostgresStoreWithQuerier(q querier) *PostgresStore {
	if q == nil {
		panic("reports: querier required")
	}
	return &PostgresStore{pool: q}
}

func (s *PostgresStore) Save(ctx context.Context, report IntegratedReport) (IntegratedReport, error) {
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	sections, err := json.Marshal(report.Sections)
	if err != nil {
		return IntegratedReport{}, fmt.Errorf("reports: marshal sections: %w", err)
	}

	query := `
		INSERT INTO integrated_reports (id, client_id, version, sections, highest_open_severity, generated_at)
		VALUES ($1, $2,
			(SELECT COALESCE(MAX(version), 0) + 1 FROM integrated_reports WHERE client_id = $2),
			$3, $4, now())
		RETURNING version, generated_at
	`
	// Two racing generations can compute the same next version; the loser
	// hits the (client_id, version) unique index and retries with a fresh
	// subselect.
	for attempt := 0; attempt < saveAttempts; attempt++ {
		err = s.pool.QueryRow(ctx, query,
			report.ID, report.ClientID, sections, report.HighestOpenSeverity,
		).Scan(&report.Version, &report.GeneratedAt)
		if err == nil {
			return report, nil
		}
		if !isUniqueViolation(err) {
			break
		}
	}
	return IntegratedReport{}, fmt.Errorf("reports: save report: %w", err)
}

const saveAttempts = 3

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *PostgresStore) Latest(ctx context.Context, clientID string) (IntegratedReport, error) {
	query := reportSelect + ` WHERE client_id = $1 ORDER BY version DESC LIMIT 1`
	report, err := scanReport(s.pool.QueryRow(ctx, query, clientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return IntegratedReport{}, ErrReportNotFound
		}
		return IntegratedReport{}, fmt.Errorf("reports: latest report: %w", err)
	}
	return report, nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, clientID string) ([]IntegratedReport, error) {
	query := reportSelect + ` WHERE client_id = $1 ORDER BY version ASC`
	rows, err := s.pool.Query(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("reports: list reports: %w", err)
	}
	defer rows.Close()

	var out []IntegratedReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("reports: scan report: %w", err)
		}
		out = append(out, report)
	}
	return out, rows.Err()
}

const reportSelect = `
	SELECT id, client_id, version, sections, highest_open_severity, generated_at
	FROM integrated_reports
`

func scanReport(row pgx.Row) (IntegratedReport, error) {
	var report IntegratedReport
	var sections []byte
	if err := row.Scan(
		&report.ID, &report.ClientID, &report.Version,
		&sections, &report.HighestOpenSeverity, &report.GeneratedAt,
	); err != nil {
		return IntegratedReport{}, err
	}
	if err := json.Unmarshal(sections, &report.Sections); err != nil {
		return IntegratedReport{}, fmt.Errorf("decode sections: %w", err)
	}
	return report, nil
}

var _ Store = (*PostgresStore)(nil)
