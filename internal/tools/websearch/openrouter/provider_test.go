package openrouter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sammcj/mcp-websearch/internal/tools/websearch/grounding"
	"github.com/sammcj/mcp-websearch/internal/tools/websearch/provider"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestProvider(serverURL, key string) *OpenRouterProvider {
	return NewOpenRouterProvider(Options{
		Model:       "perplexity/sonar",
		BaseURL:     serverURL + "/api/v1",
		Referer:     "https://example.com",
		Credentials: provider.StaticCredential{Provider: provider.NameOpenRouter, Key: key},
		HTTPClient:  http.DefaultClient,
		Formatter:   grounding.NewFormatter(""),
	})
}

func TestSearch_DedupesByURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/responses", r.URL.Path)
		assert.Equal(t, "Bearer or-key", r.Header.Get("Authorization"))
		assert.Equal(t, "https://example.com", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, DefaultTitle, r.Header.Get("X-Title"))

		var req searchRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "perplexity/sonar", req.Model)
		assert.Equal(t, []plugin{{ID: "web"}}, req.Plugins)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
		  "output": [{"type": "message", "content": [{
		    "type": "output_text",
		    "text": "日本の首都は東京です。人口は約1400万人です。",
		    "annotations": [
		      {"type": "url_citation", "url": "https://b.example/tokyo", "start_index": 0, "end_index": 11},
		      {"type": "url_citation", "url": "https://a.example/census", "title": "Census", "start_index": 11, "end_index": 24},
		      {"type": "url_citation", "url": "https://b.example/tokyo", "title": "Tokyo", "start_index": 11, "end_index": 24}
		    ]
		  }]}]
		}`)
	}))
	defer server.Close()

	result, err := newTestProvider(server.URL, "or-key").Search(context.Background(), newTestLogger(), "東京")
	require.NoError(t, err)

	want := "Web search results for \"東京\":\n\n" +
		"日本の首都は東京です。[1]人口は約1400万人です。[1][2]\n\n" +
		"Sources:\n" +
		"[1] Tokyo (https://b.example/tokyo)\n" +
		"[2] Census (https://a.example/census)"
	assert.Equal(t, want, result.LLMContent)
	assert.Equal(t, []grounding.Source{
		{Title: "Tokyo", URI: "https://b.example/tokyo"},
		{Title: "Census", URI: "https://a.example/census"},
	}, result.Sources)
}

func TestSearch_OutputTextOnly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"output_text": "An answer without citations."}`)
	}))
	defer server.Close()

	result, err := newTestProvider(server.URL, "or-key").Search(context.Background(), newTestLogger(), "q")
	require.NoError(t, err)
	assert.Equal(t, "Web search results for \"q\":\n\nAn answer without citations.", result.LLMContent)
}

func TestSearch_Unauthorised(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error": {"message": "No auth credentials found", "code": 401}}`)
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL, "bad-key").Search(context.Background(), newTestLogger(), "q")
	require.Error(t, err)
	assert.Equal(t, provider.ErrorTypeAuth, provider.ErrorType(err))
	assert.True(t, provider.IsUnauthorised(err))
}

func TestSearch_NoNetworkOnInvalidInput(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL, "or-key").Search(context.Background(), newTestLogger(), " \t")
	assert.Equal(t, provider.ErrorTypeValidation, provider.ErrorType(err))

	noModel := NewOpenRouterProvider(Options{
		BaseURL:     server.URL,
		Credentials: provider.StaticCredential{Provider: provider.NameOpenRouter, Key: "or-key"},
		Formatter:   grounding.NewFormatter(""),
	})
	_, err = noModel.Search(context.Background(), newTestLogger(), "q")
	assert.Equal(t, provider.ErrorTypeValidation, provider.ErrorType(err))

	_, err = newTestProvider(server.URL, "").Search(context.Background(), newTestLogger(), "q")
	assert.Equal(t, provider.ErrorTypeAuth, provider.ErrorType(err))

	assert.False(t, called)
}
