package risk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSignal(clientID, sourceID string, sigType SignalType, severity Severity) RiskSignal {
	return RiskSignal{
		ID:         uuid.New(),
		ClientID:   clientID,
		Type:       sigType,
		Severity:   severity,
		Confidence: 80,
		Message:    "test signal",
		Evidence:   Evidence{Excerpt: "excerpt", RuleIDs: []string{"rule-1"}},
		Source:     SourceAIAnalysis,
		DedupeKey:  DedupeKey(sourceID, sigType),
		CreatedAt:  time.Now().UTC(),
	}
}

func TestInMemoryStore_PutIdempotent(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	first := testSignal("client-1", "msg-1", SignalSuicidal, SeverityCritical)
	stored, isNew, err := store.Put(ctx, first)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, first.ID, stored.ID)

	// Same source unit and type: second put returns the original row.
	second := testSignal("client-1", "msg-1", SignalSuicidal, SeverityCritical)
	stored, isNew, err = store.Put(ctx, second)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, first.ID, stored.ID)

	all, err := store.Query(ctx, Filter{ClientID: "client-1"})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestInMemoryStore_PutConcurrentSameKey(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	newCount := make(chan bool, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, isNew, err := store.Put(ctx, testSignal("client-1", "msg-1", SignalSuicidal, SeverityCritical))
			assert.NoError(t, err)
			newCount <- isNew
		}()
	}
	wg.Wait()
	close(newCount)

	wins := 0
	for isNew := range newCount {
		if isNew {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one writer should win the race")
}

func TestInMemoryStore_QueryFilters(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	low := testSignal("client-1", "msg-1", SignalDepression, SeverityLow)
	high := testSignal("client-1", "msg-2", SignalSuicidal, SeverityHigh)
	other := testSignal("client-2", "msg-3", SignalAnxiety, SeverityMedium)
	for _, sig := range []RiskSignal{low, high, other} {
		_, _, err := store.Put(ctx, sig)
		require.NoError(t, err)
	}

	got, err := store.Query(ctx, Filter{ClientID: "client-1", MinSeverity: SeverityHigh})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, high.ID, got[0].ID)

	got, err = store.Query(ctx, Filter{ClientID: "client-1"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = store.Query(ctx, Filter{MinSeverity: SeverityMedium})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestInMemoryStore_QueryOrderedByCreatedAtDesc(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	older := testSignal("client-1", "msg-1", SignalDepression, SeverityLow)
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := testSignal("client-1", "msg-2", SignalAnxiety, SeverityLow)

	_, _, err := store.Put(ctx, older)
	require.NoError(t, err)
	_, _, err = store.Put(ctx, newer)
	require.NoError(t, err)

	got, err := store.Query(ctx, Filter{ClientID: "client-1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer.ID, got[0].ID)
	assert.Equal(t, older.ID, got[1].ID)
}

func TestInMemoryStore_PutCorrection(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	original := testSignal("client-1", "msg-1", SignalDepression, SeverityMedium)
	_, _, err := store.Put(ctx, original)
	require.NoError(t, err)

	corrected := original
	corrected.ID = uuid.New()
	corrected.Severity = SeverityHigh
	corrected.Source = SourceCounselorFlagged
	corrected.DedupeKey = CorrectionDedupeKey(original.ID, original.Type)

	stored, err := store.PutCorrection(ctx, original.ID, corrected)
	require.NoError(t, err)
	require.NotNil(t, stored.Supersedes)
	assert.Equal(t, original.ID, *stored.Supersedes)
	assert.Equal(t, SeverityHigh, stored.Severity)

	// The original is retired, the correction is the only open signal.
	retired, err := store.GetByID(ctx, original.ID)
	require.NoError(t, err)
	assert.True(t, retired.Resolved)

	open, err := store.Query(ctx, Filter{ClientID: "client-1", UnresolvedOnly: true})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, corrected.ID, open[0].ID)

	_, err = store.PutCorrection(ctx, uuid.New(), corrected)
	assert.ErrorIs(t, err, ErrSignalNotFound)
}

func TestInMemoryStore_Resolve(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	sig := testSignal("client-1", "msg-1", SignalDepression, SeverityMedium)
	_, _, err := store.Put(ctx, sig)
	require.NoError(t, err)

	require.NoError(t, store.Resolve(ctx, sig.ID, "counselor-9"))

	got, err := store.GetByID(ctx, sig.ID)
	require.NoError(t, err)
	assert.True(t, got.Resolved)

	unresolved, err := store.Query(ctx, Filter{ClientID: "client-1", UnresolvedOnly: true})
	require.NoError(t, err)
	assert.Empty(t, unresolved)

	assert.ErrorIs(t, store.Resolve(ctx, uuid.New(), "counselor-9"), ErrSignalNotFound)
}
