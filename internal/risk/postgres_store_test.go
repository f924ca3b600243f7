package risk

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *PostgresStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPostgresStoreWithQuerier(mock)
}

func signalRows(sig RiskSignal) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "client_id", "session_id", "signal_type", "severity", "confidence",
		"message", "evidence_excerpt", "evidence_rule_ids", "source", "dedupe_key",
		"supersedes", "resolved", "created_at",
	}).AddRow(
		sig.ID, sig.ClientID, nullable(sig.SessionID), string(sig.Type), string(sig.Severity),
		sig.Confidence, sig.Message, sig.Evidence.Excerpt, sig.Evidence.RuleIDs,
		string(sig.Source), sig.DedupeKey, sig.Supersedes, sig.Resolved, sig.CreatedAt,
	)
}

func TestPostgresStore_PutNew(t *testing.T) {
	mock, store := newMockStore(t)

	sig := testSignal("client-1", "msg-1", SignalSuicidal, SeverityCritical)
	mock.ExpectExec("INSERT INTO risk_signals").
		WithArgs(
			sig.ID, sig.ClientID, nullable(sig.SessionID), sig.Type, sig.Severity,
			sig.Confidence, sig.Message, sig.Evidence.Excerpt, sig.Evidence.RuleIDs,
			sig.Source, sig.DedupeKey, sig.Supersedes, sig.Resolved, sig.CreatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	stored, isNew, err := store.Put(context.Background(), sig)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, sig.ID, stored.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutDuplicateReadsBackWinner(t *testing.T) {
	mock, store := newMockStore(t)

	existing := testSignal("client-1", "msg-1", SignalSuicidal, SeverityCritical)
	loser := testSignal("client-1", "msg-1", SignalSuicidal, SeverityCritical)

	mock.ExpectExec("INSERT INTO risk_signals").
		WithArgs(
			loser.ID, loser.ClientID, nullable(loser.SessionID), loser.Type, loser.Severity,
			loser.Confidence, loser.Message, loser.Evidence.Excerpt, loser.Evidence.RuleIDs,
			loser.Source, loser.DedupeKey, loser.Supersedes, loser.Resolved, loser.CreatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("SELECT (.+) FROM risk_signals WHERE dedupe_key").
		WithArgs(loser.DedupeKey).
		WillReturnRows(signalRows(existing))

	stored, isNew, err := store.Put(context.Background(), loser)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, existing.ID, stored.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_QueryBuildsFilter(t *testing.T) {
	mock, store := newMockStore(t)

	sig := testSignal("client-1", "msg-1", SignalSelfHarm, SeverityHigh)
	since := time.Now().UTC().Add(-24 * time.Hour)
	mock.ExpectQuery("SELECT (.+) FROM risk_signals").
		WithArgs("client-1", SeverityHigh.Rank(), since, 10).
		WillReturnRows(signalRows(sig))

	got, err := store.Query(context.Background(), Filter{
		ClientID:       "client-1",
		MinSeverity:    SeverityHigh,
		Since:          since,
		UnresolvedOnly: true,
		Limit:          10,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, sig.DedupeKey, got[0].DedupeKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Resolve(t *testing.T) {
	mock, store := newMockStore(t)

	sig := testSignal("client-1", "msg-1", SignalDepression, SeverityMedium)
	mock.ExpectExec("UPDATE risk_signals").
		WithArgs(sig.ID, "counselor-9").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.Resolve(context.Background(), sig.ID, "counselor-9"))

	mock.ExpectExec("UPDATE risk_signals").
		WithArgs(sig.ID, "counselor-9").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, store.Resolve(context.Background(), sig.ID, "counselor-9"), ErrSignalNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
