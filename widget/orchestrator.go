package widget

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/northbeam/portal-api/model"
)

// DefaultRequestTimeout covers the orchestrator's full assistant poll window
const DefaultRequestTimeout = 90 * time.Second

// Reply is the union of every success body the orchestrator returns
type Reply struct {
	ThreadID  string `json:"threadId"`
	Message   string `json:"message"`
	Completed bool   `json:"completed"`
	FileID    string `json:"fileId"`
	FileName  string `json:"fileName"`
	Success   bool   `json:"success"`
}

// Orchestrator performs one intake action
type Orchestrator interface {
	Send(ctx context.Context, req model.IntakeChatRequest) (*Reply, error)
}

// APIError is a non-2xx answer from the portal API
type APIError struct {
	StatusCode int
	Message    string
	Details    []model.FieldViolation
}

func (e *APIError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("portal api returned %d: %s", e.StatusCode, e.Message)
	}
	fields := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		fields = append(fields, d.Field)
	}
	return fmt.Sprintf("portal api returned %d: %s (%s)", e.StatusCode, e.Message, strings.Join(fields, ", "))
}

// HTTPOrchestrator calls the portal API's intake chat endpoint
type HTTPOrchestrator struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

type HTTPOption func(*HTTPOrchestrator)

func WithHTTPClient(client *http.Client) HTTPOption {
	return func(o *HTTPOrchestrator) { o.httpClient = client }
}

func WithBearerToken(token string) HTTPOption {
	return func(o *HTTPOrchestrator) { o.token = token }
}

// NewHTTPOrchestrator creates a client for the API at baseURL
func NewHTTPOrchestrator(baseURL string, opts ...HTTPOption) *HTTPOrchestrator {
	o := &HTTPOrchestrator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultRequestTimeout},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Send posts one action to /api/v1/intake-chat
func (o *HTTPOrchestrator) Send(ctx context.Context, req model.IntakeChatRequest) (*Reply, error) {
	var reply Reply
	if err := o.post(ctx, "/api/v1/intake-chat", req, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// IssueToken registers the session with the API and keeps the returned widget
// token for subsequent calls
func (o *HTTPOrchestrator) IssueToken(ctx context.Context, form model.FormData) (string, error) {
	var envelope struct {
		Data struct {
			Token     string    `json:"token"`
			ExpiresAt time.Time `json:"expiresAt"`
		} `json:"data"`
	}
	if err := o.post(ctx, "/api/v1/widget/session", form, &envelope); err != nil {
		return "", err
	}
	if envelope.Data.Token == "" {
		return "", fmt.Errorf("session response did not include a token")
	}

	o.mu.Lock()
	o.token = envelope.Data.Token
	o.mu.Unlock()
	return envelope.Data.Token, nil
}

func (o *HTTPOrchestrator) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	o.mu.RLock()
	if o.token != "" {
		req.Header.Set("Authorization", "Bearer "+o.token)
	}
	o.mu.RUnlock()

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseAPIError understands both the orchestrator's {error, details} body and
// the {success, error: {code, message}} envelope used by the other routes.
func parseAPIError(status int, raw []byte) error {
	apiErr := &APIError{StatusCode: status, Message: http.StatusText(status)}

	var body struct {
		Error   json.RawMessage        `json:"error"`
		Details []model.FieldViolation `json:"details"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Error) == 0 {
		return apiErr
	}
	apiErr.Details = body.Details

	var message string
	if err := json.Unmarshal(body.Error, &message); err == nil {
		apiErr.Message = message
		return apiErr
	}

	var detail struct {
		Message    string                 `json:"message"`
		Violations []model.FieldViolation `json:"violations"`
	}
	if err := json.Unmarshal(body.Error, &detail); err == nil {
		if detail.Message != "" {
			apiErr.Message = detail.Message
		}
		if len(apiErr.Details) == 0 {
			apiErr.Details = detail.Violations
		}
	}
	return apiErr
}
