// Package websearch provides the web_search tool, which answers a query with
// an LLM grounded in live web results and cites its sources.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/mcp-websearch/internal/config"
	"github.com/sammcj/mcp-websearch/internal/registry"
	"github.com/sammcj/mcp-websearch/internal/telemetry"
	"github.com/sammcj/mcp-websearch/internal/tools"
	"github.com/sammcj/mcp-websearch/internal/tools/websearch/grounding"
	"github.com/sammcj/mcp-websearch/internal/tools/websearch/provider"
	"github.com/sirupsen/logrus"
)

// ToolName is the MCP name of the tool
const ToolName = "web_search"

// providerCacheKey holds the configured provider in the shared tool cache so
// its HTTP client and rate limiter live across calls.
const providerCacheKey = "web_search:provider"

// ConfiguredProvider pairs a provider with the model it was built for
type ConfiguredProvider struct {
	Provider provider.Provider
	Model    string
}

// ProviderLoader resolves the provider used by a search
type ProviderLoader func(logger *logrus.Logger) (*ConfiguredProvider, error)

// WebSearchTool implements tools.Tool
type WebSearchTool struct {
	load ProviderLoader
	mu   sync.Mutex
}

func init() {
	registry.Register(NewWebSearchTool(nil))
}

// NewWebSearchTool creates the tool. A nil loader reads the configuration
// file and environment on first use.
func NewWebSearchTool(load ProviderLoader) *WebSearchTool {
	if load == nil {
		load = LoadConfiguredProvider
	}
	return &WebSearchTool{load: load}
}

// LoadConfiguredProvider builds the provider from the configuration file and
// environment variables
func LoadConfiguredProvider(logger *logrus.Logger) (*ConfiguredProvider, error) {
	return ConfigLoader("", "", "")(logger)
}

// ConfigLoader returns a ProviderLoader that reads the config file at path
// (the default location when empty) and then applies the provider and model
// overrides when they are set
func ConfigLoader(path, providerName, model string) ProviderLoader {
	return func(logger *logrus.Logger) (*ConfiguredProvider, error) {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, &provider.ValidationError{Field: "config", Message: err.Error()}
		}
		cfg.ApplyOverrides(providerName, model)

		p, err := NewProvider(cfg, logger)
		if err != nil {
			return nil, err
		}
		return &ConfiguredProvider{Provider: p, Model: cfg.Model}, nil
	}
}

// Definition returns the tool's definition for MCP registration
func (t *WebSearchTool) Definition() mcp.Tool {
	return mcp.NewTool(
		ToolName,
		mcp.WithDescription(`Search the web and get a concise answer grounded in the results, with numbered citations and a list of sources.

Use this for questions about current events, recent releases or anything that needs up to date information. The answer is written by an LLM from live search results; follow the source links to verify details.`),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The question or search query to answer"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)
}

// Execute runs a search. Validation, auth and upstream failures are returned
// as an error result rather than a Go error.
func (t *WebSearchTool) Execute(ctx context.Context, logger *logrus.Logger, cache *sync.Map, args map[string]any) (*mcp.CallToolResult, error) {
	if err := ValidateArguments(args); err != nil {
		return t.failure(logger, err)
	}
	query, _ := args["query"].(string)
	if _, err := provider.ValidateQuery(query); err != nil {
		return t.failure(logger, err)
	}

	configured, err := t.provider(logger, cache)
	if err != nil {
		return t.failure(logger, err)
	}

	logger.WithFields(logrus.Fields{
		"provider": configured.Provider.Name(),
		"model":    configured.Model,
		"query":    query,
	}).Info("Executing web search")

	ctx, span := telemetry.StartProviderSpan(ctx, configured.Provider.Name(), configured.Model)
	result, err := configured.Provider.Search(ctx, logger, query)
	if err != nil {
		telemetry.EndProviderSpan(span, 0, provider.ErrorType(err), err)
		return t.failure(logger, err)
	}
	telemetry.EndProviderSpan(span, len(result.Sources), "", nil)

	return NewToolResult(*result)
}

// provider returns the cached provider or loads and caches a new one.
// Failed loads are not cached so fixing the configuration takes effect on
// the next call.
func (t *WebSearchTool) provider(logger *logrus.Logger, cache *sync.Map) (*ConfiguredProvider, error) {
	if cache != nil {
		if cached, ok := cache.Load(providerCacheKey); ok {
			if configured, ok := cached.(*ConfiguredProvider); ok {
				return configured, nil
			}
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if cache != nil {
		if cached, ok := cache.Load(providerCacheKey); ok {
			if configured, ok := cached.(*ConfiguredProvider); ok {
				return configured, nil
			}
		}
	}

	configured, err := t.load(logger)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		cache.Store(providerCacheKey, configured)
	}
	return configured, nil
}

func (t *WebSearchTool) failure(logger *logrus.Logger, err error) (*mcp.CallToolResult, error) {
	errType := provider.ErrorType(err)
	logger.WithError(err).WithField("error_type", errType).Warn("Web search failed")
	return NewToolResult(grounding.ErrorResult(errType, err.Error()))
}

// NewToolResult serialises result as the tool's JSON text content. Results
// carrying an error are flagged with IsError.
func NewToolResult(result grounding.Result) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}

	toolResult := mcp.NewToolResultText(string(jsonBytes))
	toolResult.IsError = result.Error != nil
	return toolResult, nil
}

// ProvideExtendedInfo provides detailed usage information for the web search tool
func (t *WebSearchTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	return &tools.ExtendedHelp{
		Examples: []tools.ToolExample{
			{
				Description: "Ask about a recent release",
				Arguments: map[string]any{
					"query": "What changed in the latest Go release?",
				},
				ExpectedResult: "A short answer with [n] citation markers and a numbered Sources list",
			},
			{
				Description: "Look up current information",
				Arguments: map[string]any{
					"query": "current LTS version of Node.js",
				},
				ExpectedResult: "An answer grounded in today's search results with links to where it came from",
			},
		},
		CommonPatterns: []string{
			"Ask a complete question rather than a list of keywords, the answer is written by an LLM",
			"Check the Sources list before relying on a specific figure or date",
			"Fetch a cited source URL when you need the full text rather than the summary",
		},
		Troubleshooting: []tools.TroubleshootingTip{
			{
				Problem:  "Error type 'auth' is returned",
				Solution: "Set the API key for the configured provider (GEMINI_API_KEY, OPENAI_API_KEY or OPENROUTER_API_KEY), or sign in with the Gemini CLI for the gemini-oauth provider.",
			},
			{
				Problem:  "gemini-oauth stops working about an hour after signing in",
				Solution: "Refreshing the stored access token needs an OAuth client. Set GEMINI_OAUTH_CLIENT_ID (and GEMINI_OAUTH_CLIENT_SECRET) to the client the credentials were issued to, or sign in with the Gemini CLI again.",
			},
			{
				Problem:  "Error type 'validation' mentions the model",
				Solution: "The openrouter provider has no default model. Set WEB_SEARCH_MODEL or model in ~/.mcp-websearch/config.yaml.",
			},
			{
				Problem:  "No information found",
				Solution: "The provider returned no answer text. Rephrase the query or try a more specific question.",
			},
			{
				Problem:  "Error type 'upstream' with a 429 status",
				Solution: "The provider is rate limiting requests. Lower WEB_SEARCH_RATE_LIMIT or wait before retrying.",
			},
		},
		ParameterDetails: map[string]string{
			"query": "Natural language question or search terms. Leading and trailing whitespace is ignored; an empty query is rejected before any request is made.",
		},
		WhenToUse:    "Questions that need current or verifiable information from the web, with citations to the sources used.",
		WhenNotToUse: "Reading a specific page you already have the URL for, or questions answerable from the local codebase.",
	}
}
