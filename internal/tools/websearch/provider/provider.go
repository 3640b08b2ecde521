// Package provider defines the contract shared by web search providers and
// the errors they report.
package provider

import (
	"context"
	"strings"

	"github.com/sammcj/mcp-websearch/internal/tools/websearch/grounding"
	"github.com/sirupsen/logrus"
)

// Provider names accepted in configuration
const (
	NameGemini     = "gemini"
	NameCodeAssist = "gemini-oauth"
	NameOpenAI     = "openai"
	NameOpenRouter = "openrouter"
)

// Provider performs a grounded web search for a single query
type Provider interface {
	// Name returns the configured provider name
	Name() string

	// Search validates query, calls the upstream API and returns the formatted result
	Search(ctx context.Context, logger *logrus.Logger, query string) (*grounding.Result, error)
}

// CredentialResolver returns the secret a provider authenticates with.
// Implementations return an error wrapping ErrMissingAuth when none is configured.
type CredentialResolver interface {
	Resolve(ctx context.Context) (string, error)
}

// StaticCredential resolves to a fixed API key
type StaticCredential struct {
	Provider string
	Key      string
}

// Resolve returns the key or a missing auth error when it is blank
func (s StaticCredential) Resolve(_ context.Context) (string, error) {
	key := strings.TrimSpace(s.Key)
	if key == "" {
		return "", NewAuthError(s.Provider, ErrMissingAuth)
	}
	return key, nil
}

// ValidateQuery trims and checks a query before any network activity
func ValidateQuery(query string) (string, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return "", &ValidationError{Field: "query", Message: "query cannot be empty"}
	}
	return trimmed, nil
}

// ValidateModel rejects a blank model name
func ValidateModel(model string) error {
	if strings.TrimSpace(model) == "" {
		return &ValidationError{Field: "model", Message: "model must be configured"}
	}
	return nil
}
