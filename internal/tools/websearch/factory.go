package websearch

import (
	"fmt"

	"github.com/sammcj/mcp-websearch/internal/config"
	"github.com/sammcj/mcp-websearch/internal/telemetry"
	"github.com/sammcj/mcp-websearch/internal/tools/websearch/codeassist"
	"github.com/sammcj/mcp-websearch/internal/tools/websearch/gemini"
	"github.com/sammcj/mcp-websearch/internal/tools/websearch/grounding"
	"github.com/sammcj/mcp-websearch/internal/tools/websearch/openai"
	"github.com/sammcj/mcp-websearch/internal/tools/websearch/openrouter"
	"github.com/sammcj/mcp-websearch/internal/tools/websearch/provider"
	"github.com/sammcj/mcp-websearch/internal/utils/httpclient"
	"github.com/sirupsen/logrus"
)

// NewProvider builds the provider selected by cfg. All providers share one
// proxy aware, rate limited HTTP client.
func NewProvider(cfg *config.Config, logger *logrus.Logger) (provider.Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &provider.ValidationError{Field: "config", Message: err.Error()}
	}

	client := httpclient.New(httpclient.Options{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		Logger:    logger,
	})
	formatter := grounding.NewFormatter(cfg.Prefix)

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"provider": cfg.Provider,
			"model":    cfg.Model,
			"base_url": telemetry.SanitiseURL(baseURL(cfg)),
			"proxy":    httpclient.IsProxyConfigured(),
		}).Debug("Configuring web search provider")
	}

	switch cfg.Provider {
	case provider.NameGemini:
		return gemini.NewGeminiProvider(gemini.Options{
			Model:       cfg.Model,
			BaseURL:     cfg.Gemini.BaseURL,
			Credentials: provider.StaticCredential{Provider: provider.NameGemini, Key: cfg.Gemini.APIKey},
			HTTPClient:  client,
			Formatter:   formatter,
		}), nil

	case provider.NameCodeAssist:
		return codeassist.NewCodeAssistProvider(codeassist.Options{
			Model:           cfg.Model,
			Endpoint:        cfg.CodeAssist.Endpoint,
			CredentialsPath: cfg.CodeAssist.CredentialsPath,
			ClientID:        cfg.CodeAssist.ClientID,
			ClientSecret:    cfg.CodeAssist.ClientSecret,
			Project:         cfg.CodeAssist.Project,
			HTTPClient:      client,
			Formatter:       formatter,
		}), nil

	case provider.NameOpenAI:
		return openai.NewOpenAIProvider(openai.Options{
			Model:       cfg.Model,
			BaseURL:     cfg.OpenAI.BaseURL,
			Stream:      cfg.Stream,
			Credentials: provider.StaticCredential{Provider: provider.NameOpenAI, Key: cfg.OpenAI.APIKey},
			HTTPClient:  client,
			Formatter:   formatter,
		}), nil

	case provider.NameOpenRouter:
		return openrouter.NewOpenRouterProvider(openrouter.Options{
			Model:       cfg.Model,
			BaseURL:     cfg.OpenRouter.BaseURL,
			Referer:     cfg.OpenRouter.Referer,
			Title:       cfg.OpenRouter.Title,
			Credentials: provider.StaticCredential{Provider: provider.NameOpenRouter, Key: cfg.OpenRouter.APIKey},
			HTTPClient:  client,
			Formatter:   formatter,
		}), nil
	}

	return nil, &provider.ValidationError{Field: "provider", Message: fmt.Sprintf("unknown provider %q", cfg.Provider)}
}

// baseURL is the configured endpoint override for the selected provider,
// empty when the provider default is used
func baseURL(cfg *config.Config) string {
	switch cfg.Provider {
	case provider.NameGemini:
		return cfg.Gemini.BaseURL
	case provider.NameCodeAssist:
		return cfg.CodeAssist.Endpoint
	case provider.NameOpenAI:
		return cfg.OpenAI.BaseURL
	case provider.NameOpenRouter:
		return cfg.OpenRouter.BaseURL
	}
	return ""
}
