// Package openai searches through the OpenAI Responses API with the hosted
// web search tool.
package openai

import (
	"context"
	"net/http"

	"github.com/sammcj/mcp-websearch/internal/tools/websearch/grounding"
	"github.com/sammcj/mcp-websearch/internal/tools/websearch/provider"
	"github.com/sammcj/mcp-websearch/internal/tools/websearch/responses"
	"github.com/sirupsen/logrus"
)

// DefaultBaseURL is the public OpenAI API
const DefaultBaseURL = "https://api.openai.com/v1"

const webSearchTool = "web_search_preview"

// OpenAIProvider implements provider.Provider for OpenAI
type OpenAIProvider struct {
	model       string
	baseURL     string
	stream      bool
	credentials provider.CredentialResolver
	httpClient  *http.Client
	formatter   grounding.Formatter
}

// Options configures an OpenAIProvider
type Options struct {
	Model       string
	BaseURL     string
	Stream      bool
	Credentials provider.CredentialResolver
	HTTPClient  *http.Client
	Formatter   grounding.Formatter
}

type searchRequest struct {
	Model  string `json:"model"`
	Input  string `json:"input"`
	Tools  []tool `json:"tools"`
	Stream bool   `json:"stream,omitempty"`
}

type tool struct {
	Type string `json:"type"`
}

// NewOpenAIProvider creates an OpenAI provider
func NewOpenAIProvider(opts Options) *OpenAIProvider {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &OpenAIProvider{
		model:       opts.Model,
		baseURL:     baseURL,
		stream:      opts.Stream,
		credentials: opts.Credentials,
		httpClient:  opts.HTTPClient,
		formatter:   opts.Formatter,
	}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return provider.NameOpenAI
}

// Search asks the model to answer query using web search
func (p *OpenAIProvider) Search(ctx context.Context, logger *logrus.Logger, query string) (*grounding.Result, error) {
	query, err := provider.ValidateQuery(query)
	if err != nil {
		return nil, err
	}
	if err := provider.ValidateModel(p.model); err != nil {
		return nil, err
	}
	if p.credentials == nil {
		return nil, provider.NewAuthError(p.Name(), provider.ErrMissingAuth)
	}

	apiKey, err := p.credentials.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	client := responses.NewClient(responses.Options{
		Provider:   p.Name(),
		APIKey:     apiKey,
		BaseURL:    p.baseURL,
		HTTPClient: p.httpClient,
	})

	req := searchRequest{
		Model:  p.model,
		Input:  query,
		Tools:  []tool{{Type: webSearchTool}},
		Stream: p.stream,
	}

	logger.WithFields(logrus.Fields{
		"provider": p.Name(),
		"model":    p.model,
		"stream":   p.stream,
		"query":    query,
	}).Debug("OpenAI search request")

	var resp *responses.Response
	if p.stream {
		resp, err = client.Stream(ctx, req)
	} else {
		resp, err = client.Create(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	text, annotations := resp.Answer()
	result := p.formatter.FormatAnnotated(text, annotations, query)

	logger.WithFields(logrus.Fields{
		"provider":     p.Name(),
		"response_id":  resp.ID,
		"source_count": len(result.Sources),
	}).Debug("OpenAI search completed successfully")

	return &result, nil
}
