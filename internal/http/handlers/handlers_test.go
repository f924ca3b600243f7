package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jomigata/wiz-coco-sub004/internal/api/router"
	"github.com/jomigata/wiz-coco-sub004/internal/chat"
	"github.com/jomigata/wiz-coco-sub004/internal/counselor"
	"github.com/jomigata/wiz-coco-sub004/internal/http/handlers"
	"github.com/jomigata/wiz-coco-sub004/internal/notify"
	"github.com/jomigata/wiz-coco-sub004/internal/reports"
	"github.com/jomigata/wiz-coco-sub004/internal/risk"
	"github.com/jomigata/wiz-coco-sub004/internal/session"
)

type stubSources struct {
	down bool
}

func (s *stubSources) ListAssessments(_ context.Context, clientID string) ([]reports.AssessmentRecord, error) {
	if s.down {
		return nil, errors.New("connection refused")
	}
	now := time.Now().UTC()
	return []reports.AssessmentRecord{{ID: "a-1", Title: "Depression screening", CreatedAt: now}}, nil
}

func (s *stubSources) ListSessions(_ context.Context, clientID string) ([]reports.CounselingRecord, error) {
	return nil, nil
}

func (s *stubSources) ListGoals(_ context.Context, clientID string) ([]reports.GoalRecord, error) {
	return nil, nil
}

func newTestServer(t *testing.T, sources *stubSources) *httptest.Server {
	t.Helper()

	signals := risk.NewInMemoryStore()
	notifications := notify.NewInMemoryStore()
	sessions := session.NewInMemoryStore()
	resolver := counselor.NewStaticResolver(map[string]string{"client-1": "counselor-9"})

	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		Store:       notifications,
		Resolver:    resolver,
		MinSeverity: risk.SeverityMedium,
	})
	manager := session.NewManager(session.ManagerConfig{
		Store:       sessions,
		Resolver:    resolver,
		Notifier:    dispatcher,
		MinSeverity: risk.SeverityHigh,
	})
	service := chat.NewService(chat.ServiceConfig{
		Extractor:  risk.NewExtractor(risk.DefaultRuleSet()),
		Classifier: risk.NewClassifier(),
		Signals:    signals,
		Dispatcher: dispatcher,
		Manager:    manager,
		Sessions:   sessions,
	})
	aggregator := reports.NewAggregator(reports.AggregatorConfig{
		Signals:     signals,
		Assessments: sources,
		Counseling:  sources,
		Goals:       sources,
		Store:       reports.NewInMemoryStore(),
		Timeout:     5 * time.Second,
	})

	handler := router.New(&router.Config{
		RiskSignalsHandler:   handlers.NewRiskSignalsHandler(service, signals, nil),
		ChatHandler:          handlers.NewChatHandler(service, nil),
		NotificationsHandler: handlers.NewNotificationsHandler(notifications, nil),
		ReportsHandler:       handlers.NewReportsHandler(aggregator, nil),
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestSendMessage_CriticalEscalatesOverHTTP(t *testing.T) {
	srv := newTestServer(t, &stubSources{})

	resp := postJSON(t, srv.URL+"/chat/send-message", map[string]string{
		"client_id": "client-1",
		"text":      "I want to end it all",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result chat.SendMessageResult
	decodeBody(t, resp, &result)
	require.Len(t, result.Signals, 1)
	assert.Equal(t, risk.SeverityCritical, result.Signals[0].Severity)
	assert.Equal(t, session.StateEscalated, result.Session.State)
	assert.NotEmpty(t, result.Reply)

	// The counselor inbox holds the signal alert and the takeover alert.
	listResp, err := http.Get(srv.URL + "/notifications/counselor-9?unacked=true")
	require.NoError(t, err)
	var inbox struct {
		Notifications []notify.Notification `json:"notifications"`
	}
	decodeBody(t, listResp, &inbox)
	assert.Len(t, inbox.Notifications, 2)
}

func TestSendMessage_ClosedSessionConflicts(t *testing.T) {
	srv := newTestServer(t, &stubSources{})

	createResp := postJSON(t, srv.URL+"/chat/sessions", map[string]string{"client_id": "client-1"})
	require.Equal(t, http.StatusCreated, createResp.StatusCode)
	var sess session.ChatSession
	decodeBody(t, createResp, &sess)

	closeResp := postJSON(t, srv.URL+"/chat/close-session", map[string]string{"session_id": sess.ID.String()})
	require.Equal(t, http.StatusOK, closeResp.StatusCode)
	closeResp.Body.Close()

	resp := postJSON(t, srv.URL+"/chat/send-message", map[string]string{
		"session_id": sess.ID.String(),
		"client_id":  "client-1",
		"text":       "hello",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	escResp := postJSON(t, srv.URL+"/chat/escalate-session", map[string]string{"session_id": sess.ID.String()})
	defer escResp.Body.Close()
	assert.Equal(t, http.StatusConflict, escResp.StatusCode)
}

func TestSubmitUnit_DuplicateSourceProducesNoNewSignals(t *testing.T) {
	srv := newTestServer(t, &stubSources{})

	unit := map[string]string{
		"client_id":   "client-1",
		"source_id":   "diary-42",
		"source_kind": "diary-entry",
		"text":        "I feel hopeless",
	}
	first := postJSON(t, srv.URL+"/risk-signals", unit)
	require.Equal(t, http.StatusOK, first.StatusCode)
	var firstResult chat.ProcessResult
	decodeBody(t, first, &firstResult)
	assert.Equal(t, 1, firstResult.NewCount)

	second := postJSON(t, srv.URL+"/risk-signals", unit)
	require.Equal(t, http.StatusOK, second.StatusCode)
	var secondResult chat.ProcessResult
	decodeBody(t, second, &secondResult)
	assert.Equal(t, 0, secondResult.NewCount)
}

func TestGetReport_GeneratesAndReturnsLatest(t *testing.T) {
	srv := newTestServer(t, &stubSources{})

	// No report yet.
	latestResp, err := http.Get(srv.URL + "/reports/client-1?latest=true")
	require.NoError(t, err)
	latestResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, latestResp.StatusCode)

	genResp, err := http.Get(srv.URL + "/reports/client-1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, genResp.StatusCode)
	var report reports.IntegratedReport
	decodeBody(t, genResp, &report)
	assert.Equal(t, 1, report.Version)
	assert.Len(t, report.Sections.Assessments, 1)

	latestResp, err = http.Get(srv.URL + "/reports/client-1?latest=true")
	require.NoError(t, err)
	var latest reports.IntegratedReport
	decodeBody(t, latestResp, &latest)
	assert.Equal(t, report.ID, latest.ID)
}

func TestGetReport_CollaboratorDownIsBadGateway(t *testing.T) {
	srv := newTestServer(t, &stubSources{down: true})

	resp, err := http.Get(srv.URL + "/reports/client-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestListAndResolveSignals(t *testing.T) {
	srv := newTestServer(t, &stubSources{})

	postJSON(t, srv.URL+"/risk-signals", map[string]string{
		"client_id":   "client-1",
		"source_id":   "diary-1",
		"source_kind": "diary-entry",
		"text":        "I feel worthless",
	}).Body.Close()

	listResp, err := http.Get(srv.URL + "/risk-signals/?client_id=client-1&unresolved=true")
	require.NoError(t, err)
	var listing struct {
		Signals []risk.RiskSignal `json:"signals"`
	}
	decodeBody(t, listResp, &listing)
	require.Len(t, listing.Signals, 1)

	resolveURL := fmt.Sprintf("%s/risk-signals/%s/resolve", srv.URL, listing.Signals[0].ID)
	resolveResp := postJSON(t, resolveURL, map[string]string{"counselor_id": "counselor-9"})
	defer resolveResp.Body.Close()
	assert.Equal(t, http.StatusOK, resolveResp.StatusCode)

	afterResp, err := http.Get(srv.URL + "/risk-signals/?client_id=client-1&unresolved=true")
	require.NoError(t, err)
	var after struct {
		Signals []risk.RiskSignal `json:"signals"`
	}
	decodeBody(t, afterResp, &after)
	assert.Empty(t, after.Signals)
}

func TestCorrectSignal_SupersedesOriginal(t *testing.T) {
	srv := newTestServer(t, &stubSources{})

	postJSON(t, srv.URL+"/risk-signals", map[string]string{
		"client_id":   "client-1",
		"source_id":   "diary-7",
		"source_kind": "diary-entry",
		"text":        "I feel hopeless",
	}).Body.Close()

	listResp, err := http.Get(srv.URL + "/risk-signals/?client_id=client-1")
	require.NoError(t, err)
	var listing struct {
		Signals []risk.RiskSignal `json:"signals"`
	}
	decodeBody(t, listResp, &listing)
	require.Len(t, listing.Signals, 1)
	originalID := listing.Signals[0].ID

	correctURL := fmt.Sprintf("%s/risk-signals/%s/correct", srv.URL, originalID)
	correctResp := postJSON(t, correctURL, map[string]any{
		"counselor_id": "counselor-9",
		"severity":     "high",
		"message":      "reviewed: sustained hopelessness, raising severity",
	})
	require.Equal(t, http.StatusOK, correctResp.StatusCode)
	var corrected risk.RiskSignal
	decodeBody(t, correctResp, &corrected)
	require.NotNil(t, corrected.Supersedes)
	assert.Equal(t, originalID, *corrected.Supersedes)
	assert.Equal(t, risk.SeverityHigh, corrected.Severity)
	assert.Equal(t, risk.SourceCounselorFlagged, corrected.Source)

	// Only the correction remains open; the original is retired.
	openResp, err := http.Get(srv.URL + "/risk-signals/?client_id=client-1&unresolved=true")
	require.NoError(t, err)
	var open struct {
		Signals []risk.RiskSignal `json:"signals"`
	}
	decodeBody(t, openResp, &open)
	require.Len(t, open.Signals, 1)
	assert.Equal(t, corrected.ID, open.Signals[0].ID)
}
