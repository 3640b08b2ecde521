package telemetry

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
)

const (
	// strings longer than this made only of token characters are treated as secrets
	minTokenLength = 20
)

var (
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|token|secret|password|passwd|pwd|auth|authorization)[\s:=]+["']?([^\s"']+)`)

	sensitiveKeys = map[string]bool{
		"api_key":       true,
		"apikey":        true,
		"token":         true,
		"secret":        true,
		"password":      true,
		"auth":          true,
		"authorization": true,
		"client_secret": true,
		"access_token":  true,
		"refresh_token": true,
		"credentials":   true,
	}

	sensitiveQueryParams = map[string]bool{
		"api_key":      true,
		"apikey":       true,
		"token":        true,
		"access_token": true,
		"secret":       true,
		"key":          true,
		"password":     true,
		"auth":         true,
	}
)

// SanitiseURL removes credentials and sensitive query parameters from URLs
func SanitiseURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil || parsedURL.Scheme == "" {
		return "[INVALID_URL]"
	}

	parsedURL.User = nil

	if parsedURL.RawQuery != "" {
		query := parsedURL.Query()
		for key := range query {
			keyLower := strings.ToLower(key)
			if sensitiveQueryParams[keyLower] || strings.Contains(keyLower, "key") || strings.Contains(keyLower, "token") {
				query.Set(key, "[REDACTED]")
			}
		}
		parsedURL.RawQuery = query.Encode()
	}

	return parsedURL.String()
}

// SanitiseArguments returns tool arguments as JSON with sensitive values redacted
func SanitiseArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}

	jsonBytes, err := json.Marshal(sanitiseMap(args))
	if err != nil {
		return `{"error": "failed to serialise arguments"}`
	}
	return string(jsonBytes)
}

func sanitiseMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	sanitised := make(map[string]any, len(m))
	for key, value := range m {
		if isSensitiveKey(key) {
			sanitised[key] = "[REDACTED]"
			continue
		}

		switch v := value.(type) {
		case map[string]any:
			sanitised[key] = sanitiseMap(v)
		case string:
			sanitised[key] = sanitiseString(v)
		default:
			sanitised[key] = value
		}
	}
	return sanitised
}

func isSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	return sensitiveKeys[keyLower] ||
		strings.Contains(keyLower, "key") ||
		strings.Contains(keyLower, "token") ||
		strings.Contains(keyLower, "secret") ||
		strings.Contains(keyLower, "password")
}

// sanitiseString removes sensitive patterns from strings
func sanitiseString(s string) string {
	if s == "" {
		return s
	}

	if apiKeyPattern.MatchString(s) {
		return apiKeyPattern.ReplaceAllString(s, "$1=[REDACTED]")
	}

	// A long run of token characters is probably a credential
	if len(s) > minTokenLength && isTokenLike(s) {
		return s[:4] + "...[REDACTED]"
	}

	return s
}

func isTokenLike(s string) bool {
	for _, char := range s {
		isValid := (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' || char == '.'
		if !isValid {
			return false
		}
	}
	return true
}

// TruncateString truncates a string to a maximum length with ellipsis
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
