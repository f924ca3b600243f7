package notify

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jomigata/wiz-coco-sub004/internal/counselor"
	"github.com/jomigata/wiz-coco-sub004/internal/risk"
)

type recordingEmail struct {
	sent []EmailMessage
}

func (r *recordingEmail) Send(ctx context.Context, msg EmailMessage) error {
	r.sent = append(r.sent, msg)
	return nil
}

func newTestDispatcher(t *testing.T, assignments map[string]string) (*Dispatcher, *InMemoryStore, *recordingEmail) {
	t.Helper()
	store := NewInMemoryStore()
	email := &recordingEmail{}
	d := NewDispatcher(DispatcherConfig{
		Store:        store,
		Resolver:     counselor.NewStaticResolver(assignments),
		Email:        email,
		Contacts:     StaticContacts{"counselor-9": "c9@example.org", "supervisor-queue": "oncall@example.org"},
		MinSeverity:  risk.SeverityMedium,
		SupervisorID: "supervisor-queue",
	})
	return d, store, email
}

func storedSignal(clientID string, severity risk.Severity) risk.RiskSignal {
	return risk.RiskSignal{
		ID:         uuid.New(),
		ClientID:   clientID,
		Type:       risk.SignalSuicidal,
		Severity:   severity,
		Confidence: 90,
		Message:    "Possible suicidal ideation",
		Evidence:   risk.Evidence{Excerpt: "end it all", RuleIDs: []string{"suicidal-direct"}},
		Source:     risk.SourceAIAnalysis,
		DedupeKey:  risk.DedupeKey("msg-1", risk.SignalSuicidal),
		CreatedAt:  time.Now().UTC(),
	}
}

func TestDispatcher_OnNewSignalQualifying(t *testing.T) {
	d, _, email := newTestDispatcher(t, map[string]string{"client-1": "counselor-9"})

	n, err := d.OnNewSignal(context.Background(), storedSignal("client-1", risk.SeverityCritical), true)
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, "counselor-9", n.RecipientID)
	assert.Equal(t, PriorityUrgent, n.Priority)
	assert.Equal(t, KindRiskSignal, n.Kind)
	require.Len(t, email.sent, 1)
	assert.Equal(t, "c9@example.org", email.sent[0].To)
}

func TestDispatcher_SkipsBelowThreshold(t *testing.T) {
	d, store, _ := newTestDispatcher(t, map[string]string{"client-1": "counselor-9"})

	n, err := d.OnNewSignal(context.Background(), storedSignal("client-1", risk.SeverityLow), true)
	require.NoError(t, err)
	assert.Nil(t, n)

	unacked, err := store.ListByRecipient(context.Background(), "counselor-9", true)
	require.NoError(t, err)
	assert.Empty(t, unacked)
}

func TestDispatcher_SkipsDuplicateSignals(t *testing.T) {
	d, store, _ := newTestDispatcher(t, map[string]string{"client-1": "counselor-9"})

	n, err := d.OnNewSignal(context.Background(), storedSignal("client-1", risk.SeverityCritical), false)
	require.NoError(t, err)
	assert.Nil(t, n)

	unacked, err := store.ListByRecipient(context.Background(), "counselor-9", true)
	require.NoError(t, err)
	assert.Empty(t, unacked)
}

func TestDispatcher_SameCauseUpsertsNotDuplicates(t *testing.T) {
	d, store, email := newTestDispatcher(t, map[string]string{"client-1": "counselor-9"})
	sig := storedSignal("client-1", risk.SeverityHigh)

	_, err := d.OnNewSignal(context.Background(), sig, true)
	require.NoError(t, err)
	// Redelivery of the same stored signal (at-least-once semantics).
	_, err = d.OnNewSignal(context.Background(), sig, true)
	require.NoError(t, err)

	unacked, err := store.ListByRecipient(context.Background(), "counselor-9", true)
	require.NoError(t, err)
	assert.Len(t, unacked, 1)
	assert.Len(t, email.sent, 1, "email only on the first row")
}

func TestDispatcher_UnassignedFallsBackToSupervisor(t *testing.T) {
	d, _, _ := newTestDispatcher(t, nil)

	n, err := d.OnNewSignal(context.Background(), storedSignal("client-1", risk.SeverityHigh), true)
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, "supervisor-queue", n.RecipientID)
}

func TestDispatcher_NotifyEscalation(t *testing.T) {
	d, _, _ := newTestDispatcher(t, map[string]string{"client-1": "counselor-9"})

	n, err := d.NotifyEscalation(context.Background(), "session-1", "client-1", "counselor-9", risk.SeverityCritical)
	require.NoError(t, err)
	assert.Equal(t, KindEscalation, n.Kind)
	assert.Equal(t, "counselor-9", n.RecipientID)
	assert.Equal(t, RelatedEntity{Type: "chat_session", ID: "session-1"}, n.Related)
}

func TestDispatcher_NotifyEscalationUnassigned(t *testing.T) {
	d, _, _ := newTestDispatcher(t, nil)

	n, err := d.NotifyEscalation(context.Background(), "session-1", "client-1", "", risk.SeverityHigh)
	require.NoError(t, err)
	assert.Equal(t, KindUnassignedEscalation, n.Kind)
	assert.Equal(t, "supervisor-queue", n.RecipientID)
	assert.Equal(t, PriorityUrgent, n.Priority)
}
