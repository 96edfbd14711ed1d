package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/northbeam/portal-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryLedger struct {
	mu      sync.Mutex
	claimed map[string]bool
	err     error
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{claimed: map[string]bool{}}
}

func (l *memoryLedger) Claim(ctx context.Context, sessionID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.claimed[sessionID] {
		return false, nil
	}
	l.claimed[sessionID] = true
	return true, nil
}

func (l *memoryLedger) Release(ctx context.Context, sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.claimed, sessionID)
	return nil
}

type memoryDeliveries struct {
	mu   sync.Mutex
	rows []model.WebhookDelivery
}

func (m *memoryDeliveries) SaveDelivery(ctx context.Context, d *model.WebhookDelivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, *d)
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.WebhookPayload
}

func (r *recordingNotifier) SendIntakeSummary(payload model.WebhookPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, payload)
	return nil
}

func testPayload() model.WebhookPayload {
	return model.NewWebhookPayload(testForm(), model.ConversationData{
		QualificationStatus: "qualified",
		ConversationSummary: "Strong candidate",
	}, model.CompletionFunctionCall, "thread_1", 5, fixedNow)
}

func TestWebhookService_Forward(t *testing.T) {
	var received []byte
	var contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		contentType = r.Header.Get("Content-Type")
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := &memoryDeliveries{}
	notifier := &recordingNotifier{}
	svc := NewWebhookService(WebhookConfig{URL: server.URL}, newMemoryLedger(), store, notifier, nil)

	require.NoError(t, svc.Forward(context.Background(), testPayload()))

	assert.Equal(t, "application/json", contentType)
	var body map[string]any
	require.NoError(t, json.Unmarshal(received, &body))
	assert.Equal(t, "session_123", body["sessionId"])
	assert.Equal(t, "function_call", body["completionReason"])
	assert.Equal(t, "thread_1", body["threadId"])
	assert.Equal(t, float64(5), body["messageCount"])
	assert.Equal(t, "2026-03-14T09:30:00Z", body["timestamp"])
	conversation := body["conversationData"].(map[string]any)
	assert.Equal(t, "qualified", conversation["qualification_status"])
	assert.Equal(t, []any{}, conversation["key_insights"])

	require.Len(t, store.rows, 1)
	assert.Equal(t, model.DeliveryDelivered, store.rows[0].Status)
	assert.Equal(t, http.StatusOK, store.rows[0].StatusCode)
	assert.JSONEq(t, string(received), string(store.rows[0].Payload))

	assert.Len(t, notifier.sent, 1)
}

func TestWebhookService_DuplicateIsDropped(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	store := &memoryDeliveries{}
	svc := NewWebhookService(WebhookConfig{URL: server.URL}, newMemoryLedger(), store, nil, nil)

	require.NoError(t, svc.Forward(context.Background(), testPayload()))

	closing := testPayload()
	closing.CompletionReason = model.CompletionUserClosed
	assert.ErrorIs(t, svc.Forward(context.Background(), closing), ErrAlreadyForwarded)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	require.Len(t, store.rows, 2)
	assert.Equal(t, model.DeliverySkipped, store.rows[1].Status)
}

func TestWebhookService_FailureReleasesClaim(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			io.WriteString(w, "upstream unavailable")
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	store := &memoryDeliveries{}
	notifier := &recordingNotifier{}
	svc := NewWebhookService(WebhookConfig{URL: server.URL}, newMemoryLedger(), store, notifier, nil)

	err := svc.Forward(context.Background(), testPayload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream unavailable")
	assert.Empty(t, notifier.sent)

	fail.Store(false)
	require.NoError(t, svc.Forward(context.Background(), testPayload()))

	require.Len(t, store.rows, 2)
	assert.Equal(t, model.DeliveryFailed, store.rows[0].Status)
	assert.Equal(t, http.StatusBadGateway, store.rows[0].StatusCode)
	assert.Equal(t, model.DeliveryDelivered, store.rows[1].Status)
}

func TestWebhookService_LedgerUnavailableStillDelivers(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	ledger := newMemoryLedger()
	ledger.err = errors.New("redis: connection refused")
	svc := NewWebhookService(WebhookConfig{URL: server.URL}, ledger, nil, nil, nil)

	require.NoError(t, svc.Forward(context.Background(), testPayload()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestWebhookService_NotConfigured(t *testing.T) {
	store := &memoryDeliveries{}
	svc := NewWebhookService(WebhookConfig{}, nil, store, nil, nil)

	assert.ErrorIs(t, svc.Forward(context.Background(), testPayload()), ErrWebhookNotConfigured)
	require.Len(t, store.rows, 1)
	assert.Equal(t, model.DeliverySkipped, store.rows[0].Status)
}

func TestWebhookService_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	svc := NewWebhookService(WebhookConfig{URL: server.URL, Timeout: 50 * time.Millisecond}, nil, nil, nil, nil)

	err := svc.Forward(context.Background(), testPayload())
	assert.ErrorContains(t, err, "webhook request failed")
}

func TestEmailService_SendIntakeSummary(t *testing.T) {
	svc := NewEmailService(EmailConfig{
		Username: "mailer",
		Password: "secret",
		From:     "noreply@northbeam.dev",
		NotifyTo: "talent@northbeam.dev",
	}, nil)

	var to, subject, body string
	svc.send = func(t, s, b string) error {
		to, subject, body = t, s, b
		return nil
	}

	payload := testPayload()
	payload.FormData.Name = "Jane <script>"
	payload.ConversationData.KeyInsights = []string{"Go & Rust"}

	require.NoError(t, svc.SendIntakeSummary(payload))
	assert.Equal(t, "talent@northbeam.dev", to)
	assert.Equal(t, "[Candidate] Jane <script> (qualified)", subject)
	assert.Contains(t, body, "Jane &lt;script&gt;")
	assert.Contains(t, body, "<li>Go &amp; Rust</li>")
	assert.NotContains(t, body, "<script>")
}

func TestEmailService_NotConfigured(t *testing.T) {
	svc := NewEmailService(EmailConfig{}, nil)
	assert.False(t, svc.IsConfigured())
	assert.Error(t, svc.SendIntakeSummary(testPayload()))
}
