package widget

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/northbeam/portal-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPOrchestrator_Send(t *testing.T) {
	var got model.IntakeChatRequest
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/intake-chat", r.URL.Path)
		authHeader = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"threadId":"th_1","message":"Hi Jane!","completed":false}`))
	}))
	defer srv.Close()

	orch := NewHTTPOrchestrator(srv.URL+"/", WithHTTPClient(srv.Client()), WithBearerToken("tok"))
	reply, err := orch.Send(context.Background(), model.IntakeChatRequest{Action: model.ActionStart, FormData: testForm})

	require.NoError(t, err)
	assert.Equal(t, &Reply{ThreadID: "th_1", Message: "Hi Jane!"}, reply)
	assert.Equal(t, "Bearer tok", authHeader)
	assert.Equal(t, model.ActionStart, got.Action)
	assert.Equal(t, "s1", got.FormData.SessionID)
}

func TestHTTPOrchestrator_Errors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		wantFields  []string
	}{
		{
			name:        "orchestrator body",
			status:      http.StatusBadRequest,
			body:        `{"error":"Validation failed","details":[{"field":"formData.email","message":"Invalid email format"}]}`,
			wantMessage: "Validation failed",
			wantFields:  []string{"formData.email"},
		},
		{
			name:        "envelope body",
			status:      http.StatusUnauthorized,
			body:        `{"success":false,"error":{"code":"UNAUTHORIZED","message":"Token has expired"}}`,
			wantMessage: "Token has expired",
		},
		{
			name:        "not json",
			status:      http.StatusBadGateway,
			body:        `<html>bad gateway</html>`,
			wantMessage: "Bad Gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			orch := NewHTTPOrchestrator(srv.URL, WithHTTPClient(srv.Client()))
			_, err := orch.Send(context.Background(), model.IntakeChatRequest{Action: model.ActionStart})

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMessage, apiErr.Message)

			fields := make([]string, 0)
			for _, d := range apiErr.Details {
				fields = append(fields, d.Field)
			}
			if tt.wantFields == nil {
				assert.Empty(t, fields)
			} else {
				assert.Equal(t, tt.wantFields, fields)
			}
		})
	}
}

func TestHTTPOrchestrator_IssueToken(t *testing.T) {
	var chatAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/widget/session", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true,"data":{"sessionId":"s1","token":"issued","expiresAt":"2026-03-14T11:00:00Z"}}`))
	})
	mux.HandleFunc("/api/v1/intake-chat", func(w http.ResponseWriter, r *http.Request) {
		chatAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"success":true,"message":"Session closed"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	orch := NewHTTPOrchestrator(srv.URL, WithHTTPClient(srv.Client()))
	token, err := orch.IssueToken(context.Background(), testForm)
	require.NoError(t, err)
	assert.Equal(t, "issued", token)

	reply, err := orch.Send(context.Background(), model.IntakeChatRequest{Action: model.ActionClose, FormData: testForm})
	require.NoError(t, err)
	assert.True(t, reply.Success)
	assert.Equal(t, "Bearer issued", chatAuth)
}
