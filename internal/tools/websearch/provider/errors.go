package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error types reported in WebSearchResult.error.type
const (
	ErrorTypeValidation = "validation"
	ErrorTypeAuth       = "auth"
	ErrorTypeUpstream   = "upstream"
	ErrorTypeInternal   = "internal"
)

// maxBodySnippet bounds the upstream body kept in errors and logs
const maxBodySnippet = 512

// ErrMissingAuth is wrapped by AuthError when no credentials are available
var ErrMissingAuth = errors.New("missing credentials")

// ValidationError is returned before any network call for bad input or configuration
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// AuthError reports missing or rejected credentials for a provider
type AuthError struct {
	Provider string
	Err      error
}

// NewAuthError wraps err as an auth failure for provider
func NewAuthError(provider string, err error) *AuthError {
	return &AuthError{Provider: provider, Err: err}
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s authentication failed: %v", e.Provider, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// UpstreamError is a non-2xx or undecodable provider response
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s API error: %s", e.Provider, e.Message)
	}
	if e.Body != "" && e.Body != e.Message {
		return fmt.Sprintf("%s API error: status %d: %s (body: %s)", e.Provider, e.StatusCode, e.Message, e.Body)
	}
	return fmt.Sprintf("%s API error: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// NewUpstreamError builds an UpstreamError from a response status and body.
// The message is parsed from common JSON error shapes when possible and
// falls back to the HTTP status text.
func NewUpstreamError(provider string, statusCode int, body []byte) *UpstreamError {
	message := parseErrorMessage(body)
	if message == "" {
		message = http.StatusText(statusCode)
	}
	if message == "" {
		message = "unexpected response"
	}

	return &UpstreamError{
		Provider:   provider,
		StatusCode: statusCode,
		Message:    message,
		Body:       Snippet(body),
	}
}

// IsUnauthorised reports whether err is an upstream 401 or 403
func IsUnauthorised(err error) bool {
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		return false
	}
	return upstream.StatusCode == http.StatusUnauthorized || upstream.StatusCode == http.StatusForbidden
}

// ErrorType classifies err for reporting
func ErrorType(err error) string {
	var validation *ValidationError
	var auth *AuthError
	var upstream *UpstreamError

	switch {
	case errors.As(err, &validation):
		return ErrorTypeValidation
	case errors.As(err, &auth), errors.Is(err, ErrMissingAuth):
		return ErrorTypeAuth
	case errors.As(err, &upstream):
		return ErrorTypeUpstream
	default:
		return ErrorTypeInternal
	}
}

// Snippet trims body to a loggable size
func Snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= maxBodySnippet {
		return s
	}
	return strings.ToValidUTF8(s[:maxBodySnippet], "") + "..."
}

// parseErrorMessage understands {"error":{"message":...}}, {"error":"..."}
// and {"message":...}. It returns "" when none match.
func parseErrorMessage(body []byte) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}

	if len(payload.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		}
		if err := json.Unmarshal(payload.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
		var flat string
		if err := json.Unmarshal(payload.Error, &flat); err == nil && flat != "" {
			return flat
		}
	}

	return payload.Message
}
