package gemini

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sammcj/mcp-websearch/internal/tools/websearch/grounding"
	"github.com/sammcj/mcp-websearch/internal/tools/websearch/provider"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

const groundedBody = `{
  "candidates": [{
    "content": {"role": "model", "parts": [{"text": "Go 1.25 is out. It adds a container aware GOMAXPROCS."}]},
    "finishReason": "STOP",
    "groundingMetadata": {
      "webSearchQueries": ["latest go release"],
      "groundingChunks": [
        {"web": {"uri": "https://go.dev/doc/go1.25", "title": "go.dev"}},
        {"web": {"uri": "https://go.dev/blog", "title": "The Go Blog"}}
      ],
      "groundingSupports": [
        {"segment": {"startIndex": 0, "endIndex": 15, "text": "Go 1.25 is out."}, "groundingChunkIndices": [0]},
        {"segment": {"startIndex": 16, "endIndex": 53}, "groundingChunkIndices": [1, 0]}
      ]
    }
  }]
}`

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestProvider(serverURL, key string) *GeminiProvider {
	return NewGeminiProvider(Options{
		Model:       "gemini-2.5-flash",
		BaseURL:     serverURL + "/",
		Credentials: provider.StaticCredential{Provider: provider.NameGemini, Key: key},
		HTTPClient:  http.DefaultClient,
		Formatter:   grounding.NewFormatter(""),
	})
}

func TestSearch_Grounded(t *testing.T) {
	var gotPath, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		if gotKey == "" {
			gotKey = r.URL.Query().Get("key")
		}
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "googleSearch")
		assert.Contains(t, string(body), "latest go release")

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, groundedBody)
	}))
	defer server.Close()

	p := newTestProvider(server.URL, "test-key")
	result, err := p.Search(context.Background(), newTestLogger(), "  latest go release  ")
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(gotPath, "gemini-2.5-flash:generateContent"), gotPath)
	assert.Equal(t, "test-key", gotKey)

	want := "Web search results for \"latest go release\":\n\n" +
		"Go 1.25 is out.[1] It adds a container aware GOMAXPROCS.[1][2]\n\n" +
		"Sources:\n[1] go.dev (https://go.dev/doc/go1.25)\n[2] The Go Blog (https://go.dev/blog)"
	assert.Equal(t, want, result.LLMContent)
	assert.Equal(t, `Search results for "latest go release" returned.`, result.ReturnDisplay)
	assert.Len(t, result.Sources, 2)
}

func TestSearch_EmptyQueryMakesNoRequest(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	p := newTestProvider(server.URL, "test-key")
	_, err := p.Search(context.Background(), newTestLogger(), "   ")

	require.Error(t, err)
	assert.Equal(t, provider.ErrorTypeValidation, provider.ErrorType(err))
	assert.False(t, called)
}

func TestSearch_MissingKey(t *testing.T) {
	p := newTestProvider("http://127.0.0.1:0", "")
	_, err := p.Search(context.Background(), newTestLogger(), "query")

	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrMissingAuth)
	assert.Equal(t, provider.ErrorTypeAuth, provider.ErrorType(err))
}

func TestSearch_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error": {"code": 400, "message": "Search tool is not supported for this model", "status": "INVALID_ARGUMENT"}}`)
	}))
	defer server.Close()

	p := newTestProvider(server.URL, "test-key")
	_, err := p.Search(context.Background(), newTestLogger(), "query")

	require.Error(t, err)
	assert.Equal(t, provider.ErrorTypeUpstream, provider.ErrorType(err))
	assert.Contains(t, err.Error(), "Search tool is not supported for this model")
}

func TestSearch_NoText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates": [{"content": {"role": "model", "parts": []}}]}`)
	}))
	defer server.Close()

	p := newTestProvider(server.URL, "test-key")
	result, err := p.Search(context.Background(), newTestLogger(), "nothing")
	require.NoError(t, err)

	assert.Equal(t, `No search results or information found for query: "nothing"`, result.LLMContent)
	assert.Equal(t, "No information found.", result.ReturnDisplay)
}

func TestToResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking", Thought: true},
				{Text: "answer"},
			}},
			GroundingMetadata: &genai.GroundingMetadata{
				GroundingChunks: []*genai.GroundingChunk{{}, {Web: &genai.GroundingChunkWeb{Title: "t", URI: "u"}}},
				GroundingSupports: []*genai.GroundingSupport{
					{Segment: &genai.Segment{EndIndex: 6}, GroundingChunkIndices: []int32{1}},
					{Segment: &genai.Segment{}, GroundingChunkIndices: []int32{0}},
				},
			},
		}},
	}

	got := toResponse(resp)
	require.Len(t, got.Candidates, 1)
	assert.Equal(t, "answer", grounding.ResponseText(got))

	meta := got.Candidates[0].GroundingMetadata
	require.NotNil(t, meta)
	assert.Nil(t, meta.GroundingChunks[0].Web)
	assert.Equal(t, "u", meta.GroundingChunks[1].Web.URI)
	require.NotNil(t, meta.GroundingSupports[0].Segment.EndIndex)
	assert.Equal(t, 6, *meta.GroundingSupports[0].Segment.EndIndex)
	assert.Nil(t, meta.GroundingSupports[1].Segment.EndIndex)

	assert.Empty(t, toResponse(nil).Candidates)
}
