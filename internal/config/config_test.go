package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvVars = []string{
	ConfigEnvVar, "WEB_SEARCH_PROVIDER", "WEB_SEARCH_MODEL", "WEB_SEARCH_PREFIX",
	"WEB_SEARCH_TIMEOUT", "WEB_SEARCH_RATE_LIMIT", "WEB_SEARCH_STREAM",
	"GOOGLE_API_KEY", "GEMINI_API_KEY", "GEMINI_BASE_URL",
	"GEMINI_OAUTH_CREDS", "GEMINI_OAUTH_CLIENT_ID", "GEMINI_OAUTH_CLIENT_SECRET",
	"GOOGLE_CLOUD_PROJECT", "CODE_ASSIST_ENDPOINT",
	"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENROUTER_API_KEY", "OPENROUTER_BASE_URL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range configEnvVars {
		t.Setenv(v, "")
	}
	t.Setenv("HOME", t.TempDir())
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.Model)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimit)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", `
provider: openrouter
model: perplexity/sonar
prefix: "LLM-grounded search results for "
timeout: 15s
rate_limit: 0.5
openrouter:
  api_key: or-key
  referer: https://example.com
code_assist:
  project: my-project
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openrouter", cfg.Provider)
	assert.Equal(t, "perplexity/sonar", cfg.Model)
	assert.Equal(t, "LLM-grounded search results for ", cfg.Prefix)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.Equal(t, 0.5, cfg.RateLimit)
	assert.Equal(t, "or-key", cfg.OpenRouter.APIKey)
	assert.Equal(t, "https://example.com", cfg.OpenRouter.Referer)
	assert.Equal(t, "my-project", cfg.CodeAssist.Project)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", "provider: openai\nmodel: gpt-4.1\nopenai:\n  api_key: from-file\n")
	t.Setenv(ConfigEnvVar, path)
	t.Setenv("WEB_SEARCH_MODEL", "gpt-4.1-mini")
	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("WEB_SEARCH_STREAM", "true")
	t.Setenv("WEB_SEARCH_TIMEOUT", "5s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "gpt-4.1-mini", cfg.Model)
	assert.Equal(t, "from-env", cfg.OpenAI.APIKey)
	assert.True(t, cfg.Stream)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}

func TestLoad_GeminiKeyPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOOGLE_API_KEY", "google-key")
	t.Setenv("GEMINI_API_KEY", "gemini-key")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gemini-key", cfg.Gemini.APIKey)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", "provider: [unterminated")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: Config{Provider: "openai", Model: "gpt-4.1"}},
		{name: "unknown provider", cfg: Config{Provider: "bing", Model: "x"}, wantErr: true},
		{name: "blank model", cfg: Config{Provider: "openrouter", Model: "  "}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad_OpenRouterHasNoDefaultModel(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEB_SEARCH_PROVIDER", "OpenRouter")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "openrouter", cfg.Provider)
	assert.Empty(t, cfg.Model)
	assert.Error(t, cfg.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEB_SEARCH_MODEL", "already-set")
	require.NoError(t, os.Unsetenv("MCP_WEBSEARCH_DOTENV_VALUE"))
	t.Cleanup(func() { _ = os.Unsetenv("MCP_WEBSEARCH_DOTENV_VALUE") })
	path := writeFile(t, ".env", "WEB_SEARCH_MODEL=from-dotenv\nMCP_WEBSEARCH_DOTENV_VALUE=dotenv-value\n")

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))

	assert.Equal(t, "already-set", os.Getenv("WEB_SEARCH_MODEL"))
	assert.Equal(t, "dotenv-value", os.Getenv("MCP_WEBSEARCH_DOTENV_VALUE"))
}

func TestLoadDotEnv_MalformedFile(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.Unsetenv("MCP_WEBSEARCH_DOTENV_VALUE"))
	t.Cleanup(func() { _ = os.Unsetenv("MCP_WEBSEARCH_DOTENV_VALUE") })

	bad := writeFile(t, "bad.env", "NOT!VALID=1\n")
	good := writeFile(t, "good.env", "MCP_WEBSEARCH_DOTENV_VALUE=still-loaded\n")

	err := LoadDotEnv(bad, good)
	require.Error(t, err)
	assert.Contains(t, err.Error(), bad)
	assert.Equal(t, "still-loaded", os.Getenv("MCP_WEBSEARCH_DOTENV_VALUE"))
}

func TestApplyOverrides(t *testing.T) {
	t.Run("switching provider resets the model", func(t *testing.T) {
		cfg := &Config{Provider: "openrouter", Model: "perplexity/sonar"}
		cfg.ApplyOverrides("OpenAI", "")
		assert.Equal(t, "openai", cfg.Provider)
		assert.Equal(t, "gpt-4.1-mini", cfg.Model)
	})

	t.Run("model only", func(t *testing.T) {
		cfg := &Config{Provider: "openai", Model: "gpt-4.1-mini"}
		cfg.ApplyOverrides("", "gpt-4.1")
		assert.Equal(t, "openai", cfg.Provider)
		assert.Equal(t, "gpt-4.1", cfg.Model)
	})

	t.Run("same provider keeps the model", func(t *testing.T) {
		cfg := &Config{Provider: "openai", Model: "gpt-4.1"}
		cfg.ApplyOverrides("openai", "")
		assert.Equal(t, "gpt-4.1", cfg.Model)
	})
}
