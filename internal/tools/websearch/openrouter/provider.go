// Package openrouter searches through OpenRouter's Responses API with the
// web plugin enabled.
package openrouter

import (
	"context"
	"net/http"

	"github.com/sammcj/mcp-websearch/internal/tools/websearch/grounding"
	"github.com/sammcj/mcp-websearch/internal/tools/websearch/provider"
	"github.com/sammcj/mcp-websearch/internal/tools/websearch/responses"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultBaseURL is the public OpenRouter API
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultTitle identifies the application to OpenRouter
	DefaultTitle = "mcp-websearch"

	webPluginID = "web"
)

// OpenRouterProvider implements provider.Provider for OpenRouter
type OpenRouterProvider struct {
	model       string
	baseURL     string
	referer     string
	title       string
	credentials provider.CredentialResolver
	httpClient  *http.Client
	formatter   grounding.Formatter
}

// Options configures an OpenRouterProvider
type Options struct {
	Model   string
	BaseURL string
	// Referer and Title are sent as HTTP-Referer and X-Title for app attribution
	Referer     string
	Title       string
	Credentials provider.CredentialResolver
	HTTPClient  *http.Client
	Formatter   grounding.Formatter
}

type searchRequest struct {
	Model   string   `json:"model"`
	Input   string   `json:"input"`
	Plugins []plugin `json:"plugins"`
}

type plugin struct {
	ID string `json:"id"`
}

// NewOpenRouterProvider creates an OpenRouter provider
func NewOpenRouterProvider(opts Options) *OpenRouterProvider {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	title := opts.Title
	if title == "" {
		title = DefaultTitle
	}
	return &OpenRouterProvider{
		model:       opts.Model,
		baseURL:     baseURL,
		referer:     opts.Referer,
		title:       title,
		credentials: opts.Credentials,
		httpClient:  opts.HTTPClient,
		formatter:   opts.Formatter,
	}
}

// Name returns the provider name
func (p *OpenRouterProvider) Name() string {
	return provider.NameOpenRouter
}

// Search asks the configured model to answer query with web results.
// Sources are numbered by first appearance of each URL among the annotations.
func (p *OpenRouterProvider) Search(ctx context.Context, logger *logrus.Logger, query string) (*grounding.Result, error) {
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
		Headers: map[string]string{
			"HTTP-Referer": p.referer,
			"X-Title":      p.title,
		},
	})

	logger.WithFields(logrus.Fields{
		"provider": p.Name(),
		"model":    p.model,
		"query":    query,
	}).Debug("OpenRouter search request")

	resp, err := client.Create(ctx, searchRequest{
		Model:   p.model,
		Input:   query,
		Plugins: []plugin{{ID: webPluginID}},
	})
	if err != nil {
		return nil, err
	}

	text, annotations := resp.Answer()
	result := p.formatter.FormatAnnotated(text, annotations, query)

	logger.WithFields(logrus.Fields{
		"provider":     p.Name(),
		"source_count": len(result.Sources),
	}).Debug("OpenRouter search completed successfully")

	return &result, nil
}
