package responses

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sammcj/mcp-websearch/internal/tools/websearch/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRequest struct {
	Model  string `json:"model"`
	Input  string `json:"input"`
	Stream bool   `json:"stream,omitempty"`
}

func newTestClient(serverURL string) *Client {
	return NewClient(Options{
		Provider:   "openai",
		APIKey:     "sk-test",
		BaseURL:    serverURL + "/v1",
		HTTPClient: http.DefaultClient,
		Headers:    map[string]string{"X-Title": "mcp-websearch", "HTTP-Referer": ""},
	})
}

func TestCreate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/responses", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "mcp-websearch", r.Header.Get("X-Title"))
		assert.Empty(t, r.Header.Get("HTTP-Referer"))

		var req testRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4.1-mini", req.Model)
		assert.Equal(t, "query", req.Input)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id": "resp_1", "status": "completed", "output_text": "answer"}`)
	}))
	defer server.Close()

	resp, err := newTestClient(server.URL).Create(context.Background(), testRequest{Model: "gpt-4.1-mini", Input: "query"})
	require.NoError(t, err)

	assert.Equal(t, "resp_1", resp.ID)
	text, _ := resp.Answer()
	assert.Equal(t, "answer", text)
}

func TestCreate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType string
		wantMsg  string
	}{
		{
			name:     "unauthorised",
			status:   http.StatusUnauthorized,
			body:     `{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error"}}`,
			wantType: provider.ErrorTypeAuth,
			wantMsg:  "Incorrect API key provided",
		},
		{
			name:     "bad request",
			status:   http.StatusBadRequest,
			body:     `{"error": {"message": "Tool web_search_preview is not supported", "type": "invalid_request_error"}}`,
			wantType: provider.ErrorTypeUpstream,
			wantMsg:  "Tool web_search_preview is not supported",
		},
		{
			name:     "failed response object",
			status:   http.StatusOK,
			body:     `{"id": "resp_2", "status": "failed", "error": {"code": "server_error", "message": "search backend unavailable"}}`,
			wantType: provider.ErrorTypeUpstream,
			wantMsg:  "search backend unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).Create(context.Background(), testRequest{Model: "m", Input: "q"})
			require.Error(t, err)
			assert.Equal(t, tt.wantType, provider.ErrorType(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func writeEvents(w http.ResponseWriter, events ...[2]string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	for _, e := range events {
		_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e[0], e[1])
	}
}

func TestStream_UsesTerminalEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req testRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		writeEvents(w,
			[2]string{"response.created", `{"type":"response.created","response":{"id":"resp_3","status":"in_progress"}}`},
			[2]string{"response.output_text.delta", `{"type":"response.output_text.delta","delta":"partial"}`},
			[2]string{EventCompleted, `{"type":"response.completed","response":{"id":"resp_3","status":"completed","output":[{"type":"message","content":[{"type":"output_text","text":"full answer"}]}]}}`},
		)
	}))
	defer server.Close()

	resp, err := newTestClient(server.URL).Stream(context.Background(), testRequest{Model: "m", Input: "q", Stream: true})
	require.NoError(t, err)

	text, _ := resp.Answer()
	assert.Equal(t, "full answer", text)
	assert.Equal(t, "completed", resp.Status)
}

func TestStream_FailedEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEvents(w,
			[2]string{EventFailed, `{"type":"response.failed","response":{"status":"failed","error":{"code":"server_error","message":"model overloaded"}}}`},
		)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Stream(context.Background(), testRequest{Model: "m", Input: "q", Stream: true})
	require.Error(t, err)
	assert.Equal(t, provider.ErrorTypeUpstream, provider.ErrorType(err))
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestStream_EndsWithoutTerminalEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEvents(w,
			[2]string{"response.output_text.delta", `{"type":"response.output_text.delta","delta":"partial"}`},
		)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Stream(context.Background(), testRequest{Model: "m", Input: "q", Stream: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream ended")
}

func TestWithTrailingSlash(t *testing.T) {
	assert.Equal(t, "https://openrouter.ai/api/v1/", withTrailingSlash("https://openrouter.ai/api/v1"))
	assert.Equal(t, "https://api.openai.com/v1/", withTrailingSlash("https://api.openai.com/v1/"))
}
