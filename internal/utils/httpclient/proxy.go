package httpclient

import (
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/sammcj/mcp-websearch/internal/telemetry"
	"github.com/sirupsen/logrus"
)

// ProxyEnvironmentVariables defines the order of preference for proxy environment variables
// Following standard conventions used by curl, wget, and other tools
var ProxyEnvironmentVariables = []string{
	"HTTPS_PROXY",
	"https_proxy",
	"HTTP_PROXY",
	"http_proxy",
}

// Options configures the clients returned by New
type Options struct {
	// Timeout bounds each request, zero means no client timeout
	Timeout time.Duration
	// RateLimit is the maximum requests per second, zero disables limiting
	RateLimit float64
	// Logger receives proxy diagnostics, may be nil
	Logger *logrus.Logger
}

// New creates an HTTP client for provider calls.
// The transport uses proxy environment variables when set, waits on the
// rate limiter before each request and is wrapped with OTEL instrumentation
// when tracing is enabled.
func New(opts Options) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if proxyURL := getProxyURL(); proxyURL != "" {
		if parsedProxy, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(parsedProxy)
			if opts.Logger != nil {
				opts.Logger.WithField("proxy_url", redactProxyCredentials(proxyURL)).Debug("HTTP client configured with proxy")
			}
		} else if opts.Logger != nil {
			opts.Logger.WithError(err).WithField("proxy_url", redactProxyCredentials(proxyURL)).Warn("Failed to parse proxy URL, using direct connection")
		}
	}

	var rt http.RoundTripper = transport
	if opts.RateLimit > 0 {
		rt = NewRateLimitedTransport(rt, opts.RateLimit)
	}

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: telemetry.WrapHTTPTransport(rt),
	}
}

// getProxyURL returns the first valid proxy URL from environment variables
// Returns empty string if no proxy is configured
func getProxyURL() string {
	for _, envVar := range ProxyEnvironmentVariables {
		if proxyURL := os.Getenv(envVar); proxyURL != "" {
			// Skip placeholder values that some tools use
			if proxyURL != "$HTTPS_PROXY" && proxyURL != "$HTTP_PROXY" {
				return proxyURL
			}
		}
	}
	return ""
}

// redactProxyCredentials removes credentials from proxy URL for safe logging
func redactProxyCredentials(proxyURL string) string {
	if parsed, err := url.Parse(proxyURL); err == nil {
		if parsed.User != nil {
			parsed.User = url.UserPassword("***", "***")
		}
		return parsed.String()
	}
	return "[invalid-url]"
}

// IsProxyConfigured returns true if any proxy environment variable is set
func IsProxyConfigured() bool {
	return getProxyURL() != ""
}
