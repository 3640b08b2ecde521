// Package config loads web search settings from a YAML file, an optional
// .env file and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigEnvVar overrides the config file location
	ConfigEnvVar = "WEB_SEARCH_CONFIG"

	// DefaultProvider is used when no provider is configured
	DefaultProvider = "gemini"

	// DefaultTimeout bounds a single provider request
	DefaultTimeout = 60 * time.Second

	// DefaultRateLimit is the default maximum outbound requests per second
	DefaultRateLimit = 2.0

	defaultConfigDir  = ".mcp-websearch"
	defaultConfigFile = "config.yaml"
)

// defaultModels holds the model used when none is configured. Providers
// without an entry must be given a model explicitly.
var defaultModels = map[string]string{
	"gemini":       "gemini-2.5-flash",
	"gemini-oauth": "gemini-2.5-flash",
	"openai":       "gpt-4.1-mini",
}

// Config holds the settings for the web_search tool
type Config struct {
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model"`
	Prefix    string        `yaml:"prefix"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"`
	Stream    bool          `yaml:"stream"`

	Gemini     GeminiConfig     `yaml:"gemini"`
	CodeAssist CodeAssistConfig `yaml:"code_assist"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
}

// GeminiConfig configures the API key Gemini provider
type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// CodeAssistConfig configures the OAuth Gemini provider
type CodeAssistConfig struct {
	CredentialsPath string `yaml:"credentials_path"`
	ClientID        string `yaml:"client_id"`
	ClientSecret    string `yaml:"client_secret"`
	Project         string `yaml:"project"`
	Endpoint        string `yaml:"endpoint"`
}

// OpenAIConfig configures the OpenAI provider
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// OpenRouterConfig configures the OpenRouter provider
type OpenRouterConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Referer string `yaml:"referer"`
	Title   string `yaml:"title"`
}

// Default returns a Config with built-in defaults applied
func Default() *Config {
	return &Config{
		Provider:  DefaultProvider,
		Timeout:   DefaultTimeout,
		RateLimit: DefaultRateLimit,
	}
}

// LoadDotEnv loads variables from the given .env files (default ".env").
// Variables already set in the environment are never overridden and
// missing files are ignored. A file that cannot be parsed is reported and
// the remaining files are still loaded.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var errs []error
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			errs = append(errs, fmt.Errorf("loading %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

// Load reads the config file at path, or the default location when path is
// empty, then applies environment overrides. A missing default file is not
// an error; a missing explicit file is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(ConfigEnvVar)
		explicit = path != ""
	}
	if !explicit {
		path = DefaultPath()
	}

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// DefaultPath returns ~/.mcp-websearch/config.yaml, or "" without a home directory
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, defaultConfigDir, defaultConfigFile)
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.Provider, "WEB_SEARCH_PROVIDER")
	setString(&c.Model, "WEB_SEARCH_MODEL")
	setString(&c.Prefix, "WEB_SEARCH_PREFIX")

	if v := os.Getenv("WEB_SEARCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Timeout = d
		}
	}
	if v := os.Getenv("WEB_SEARCH_RATE_LIMIT"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil && r >= 0 {
			c.RateLimit = r
		}
	}
	if v := os.Getenv("WEB_SEARCH_STREAM"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Stream = b
		}
	}

	setString(&c.Gemini.APIKey, "GOOGLE_API_KEY")
	setString(&c.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&c.Gemini.BaseURL, "GEMINI_BASE_URL")

	setString(&c.CodeAssist.CredentialsPath, "GEMINI_OAUTH_CREDS")
	setString(&c.CodeAssist.ClientID, "GEMINI_OAUTH_CLIENT_ID")
	setString(&c.CodeAssist.ClientSecret, "GEMINI_OAUTH_CLIENT_SECRET")
	setString(&c.CodeAssist.Project, "GOOGLE_CLOUD_PROJECT")
	setString(&c.CodeAssist.Endpoint, "CODE_ASSIST_ENDPOINT")

	setString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.OpenAI.BaseURL, "OPENAI_BASE_URL")

	setString(&c.OpenRouter.APIKey, "OPENROUTER_API_KEY")
	setString(&c.OpenRouter.BaseURL, "OPENROUTER_BASE_URL")
}

func (c *Config) applyDefaults() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = DefaultProvider
	}
	if c.Model == "" {
		c.Model = defaultModels[c.Provider]
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit < 0 {
		c.RateLimit = DefaultRateLimit
	}
}

// ApplyOverrides replaces the provider and model with non-empty command line
// values. Switching provider without naming a model selects that provider's
// default model.
func (c *Config) ApplyOverrides(provider, model string) {
	if provider = strings.ToLower(strings.TrimSpace(provider)); provider != "" && provider != c.Provider {
		c.Provider = provider
		c.Model = ""
	}
	if model = strings.TrimSpace(model); model != "" {
		c.Model = model
	}
	c.applyDefaults()
}

// Validate checks the provider name and model
func (c *Config) Validate() error {
	switch c.Provider {
	case "gemini", "gemini-oauth", "openai", "openrouter":
	default:
		return fmt.Errorf("unknown provider %q (expected gemini, gemini-oauth, openai or openrouter)", c.Provider)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("no model configured for provider %s (set WEB_SEARCH_MODEL or model in %s)", c.Provider, defaultConfigFile)
	}
	return nil
}

func setString(dst *string, envVar string) {
	if v := strings.TrimSpace(os.Getenv(envVar)); v != "" {
		*dst = v
	}
}
