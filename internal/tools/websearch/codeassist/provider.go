// Package codeassist searches through Google's Code Assist backend using the
// OAuth credentials of a Gemini CLI login instead of an API key.
package codeassist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sammcj/mcp-websearch/internal/cache"
	"github.com/sammcj/mcp-websearch/internal/tools/websearch/grounding"
	"github.com/sammcj/mcp-websearch/internal/tools/websearch/provider"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// DefaultEndpoint is the Code Assist server
	DefaultEndpoint = "https://cloudcode-pa.googleapis.com"

	apiVersion = "v1internal"

	// tokens are treated as expired this long before their real expiry
	expirySkew = time.Minute

	// used when the token endpoint does not report an expiry
	defaultTokenTTL = 50 * time.Minute

	maxResponseSize = 10 * 1024 * 1024
)

var scopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// Access tokens and projects are shared by every provider in the process,
// keyed by refresh token.
var (
	sharedTokens   = cache.NewCache[*oauth2.Token](defaultTokenTTL)
	sharedProjects = cache.NewCache[string](0)
)

// CodeAssistProvider implements provider.Provider for the OAuth Gemini backend
type CodeAssistProvider struct {
	model           string
	endpoint        string
	credentialsPath string
	clientID        string
	clientSecret    string
	project         string
	tokenURL        string
	sessionID       string
	httpClient      *http.Client
	formatter       grounding.Formatter
	tokens          *cache.Cache[*oauth2.Token]
	projects        *cache.Cache[string]
	now             func() time.Time
}

// Options configures a CodeAssistProvider
type Options struct {
	Model    string
	Endpoint string
	// CredentialsPath defaults to ~/.gemini/oauth_creds.json
	CredentialsPath string
	// ClientID and ClientSecret identify the OAuth client that issued the
	// refresh token. They are only needed once the stored access token expires.
	ClientID     string
	ClientSecret string
	// Project skips loadCodeAssist when set
	Project string
	// TokenURL defaults to Google's token endpoint
	TokenURL   string
	HTTPClient *http.Client
	Formatter  grounding.Formatter
	// Tokens and Projects default to process wide caches
	Tokens   *cache.Cache[*oauth2.Token]
	Projects *cache.Cache[string]
}

// NewCodeAssistProvider creates an OAuth Gemini provider
func NewCodeAssistProvider(opts Options) *CodeAssistProvider {
	p := &CodeAssistProvider{
		model:           opts.Model,
		endpoint:        strings.TrimRight(opts.Endpoint, "/"),
		credentialsPath: opts.CredentialsPath,
		clientID:        opts.ClientID,
		clientSecret:    opts.ClientSecret,
		project:         opts.Project,
		tokenURL:        opts.TokenURL,
		sessionID:       uuid.New().String(),
		httpClient:      opts.HTTPClient,
		formatter:       opts.Formatter,
		tokens:          opts.Tokens,
		projects:        opts.Projects,
		now:             time.Now,
	}
	if p.endpoint == "" {
		p.endpoint = DefaultEndpoint
	}
	if p.credentialsPath == "" {
		p.credentialsPath = DefaultCredentialsPath()
	}
	if p.tokenURL == "" {
		p.tokenURL = google.Endpoint.TokenURL
	}
	if p.httpClient == nil {
		p.httpClient = http.DefaultClient
	}
	if p.tokens == nil {
		p.tokens = sharedTokens
	}
	if p.projects == nil {
		p.projects = sharedProjects
	}
	return p
}

// Name returns the provider name
func (p *CodeAssistProvider) Name() string {
	return provider.NameCodeAssist
}

// Search runs a grounded generateContent call through Code Assist. A 401 or
// 403 forces one token refresh followed by a single retry.
func (p *CodeAssistProvider) Search(ctx context.Context, logger *logrus.Logger, query string) (*grounding.Result, error) {
	query, err := provider.ValidateQuery(query)
	if err != nil {
		return nil, err
	}
	if err := provider.ValidateModel(p.model); err != nil {
		return nil, err
	}

	creds, err := ReadCredentials(ctx, p.credentialsPath)
	if err != nil {
		return nil, err
	}

	body, err := p.search(ctx, logger, creds, query, false)
	if rejectedToken(err) {
		logger.WithFields(logrus.Fields{
			"provider": p.Name(),
		}).Debug("Code Assist rejected the access token, refreshing and retrying")
		body, err = p.search(ctx, logger, creds, query, true)
		if rejectedToken(err) {
			err = provider.NewAuthError(p.Name(), err)
		}
	}
	if err != nil {
		return nil, err
	}

	env, err := grounding.DecodeEnvelope(body)
	if err != nil {
		return nil, &provider.UpstreamError{
			Provider:   p.Name(),
			StatusCode: http.StatusOK,
			Message:    "failed to decode response: " + err.Error(),
			Body:       provider.Snippet(body),
		}
	}

	result := p.formatter.FormatResponse(env.Response, query)

	logger.WithFields(logrus.Fields{
		"provider":     p.Name(),
		"envelope":     env.Kind.String(),
		"source_count": len(result.Sources),
	}).Debug("Code Assist search completed successfully")

	return &result, nil
}

// rejectedToken reports whether the Code Assist API refused the access
// token, as opposed to the token endpoint refusing a refresh.
func rejectedToken(err error) bool {
	var authErr *provider.AuthError
	return provider.IsUnauthorised(err) && !errors.As(err, &authErr)
}

func (p *CodeAssistProvider) search(ctx context.Context, logger *logrus.Logger, creds *Credentials, query string, forceRefresh bool) ([]byte, error) {
	token, err := p.accessToken(ctx, creds, forceRefresh)
	if err != nil {
		return nil, err
	}

	project, err := p.resolveProject(ctx, creds, token)
	if err != nil {
		return nil, err
	}

	req := generateContentRequest{
		Model:        p.model,
		Project:      project,
		UserPromptID: uuid.New().String(),
		Request: vertexRequest{
			Contents:  []content{{Role: "user", Parts: []part{{Text: query}}}},
			Tools:     []tool{{GoogleSearch: &struct{}{}}},
			SessionID: p.sessionID,
		},
	}

	logger.WithFields(logrus.Fields{
		"provider":      p.Name(),
		"model":         p.model,
		"project":       project,
		"query":         query,
		"forced_reauth": forceRefresh,
	}).Debug("Code Assist search request")

	return p.post(ctx, token, "generateContent", req)
}

// accessToken returns a cached token for the refresh token, the stored
// access token while it is still valid, or a freshly refreshed one.
func (p *CodeAssistProvider) accessToken(ctx context.Context, creds *Credentials, forceRefresh bool) (string, error) {
	key := creds.RefreshToken
	if key == "" {
		if !forceRefresh && creds.usableAt(p.now(), expirySkew) {
			return creds.AccessToken, nil
		}
		return "", provider.NewAuthError(p.Name(), fmt.Errorf("%w: access token expired and no refresh token stored", provider.ErrMissingAuth))
	}

	// A forced refresh must not join an in-flight load, which may still hand
	// back the token the API just rejected.
	if forceRefresh {
		p.tokens.Delete(key)
		tok, expires, err := p.refreshWithExpiry(ctx, key)
		if err != nil {
			return "", err
		}
		p.tokens.SetWithExpiry(key, tok, expires)
		return tok.AccessToken, nil
	}

	tok, err := p.tokens.GetOrLoad(ctx, key, func(ctx context.Context) (*oauth2.Token, time.Time, error) {
		if creds.usableAt(p.now(), expirySkew) {
			tok := creds.Token()
			return tok, tok.Expiry.Add(-expirySkew), nil
		}
		return p.refreshWithExpiry(ctx, key)
	})
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// refreshWithExpiry refreshes and returns the time the new token should
// leave the cache
func (p *CodeAssistProvider) refreshWithExpiry(ctx context.Context, refreshToken string) (*oauth2.Token, time.Time, error) {
	tok, err := p.refresh(ctx, refreshToken)
	if err != nil {
		return nil, time.Time{}, err
	}
	var expires time.Time
	if !tok.Expiry.IsZero() {
		expires = tok.Expiry.Add(-expirySkew)
	}
	return tok, expires, nil
}

func (p *CodeAssistProvider) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if p.clientID == "" {
		return nil, provider.NewAuthError(p.Name(), fmt.Errorf("%w: OAuth client id is not configured (GEMINI_OAUTH_CLIENT_ID)", provider.ErrMissingAuth))
	}

	endpoint := google.Endpoint
	endpoint.TokenURL = p.tokenURL
	conf := &oauth2.Config{
		ClientID:     p.clientID,
		ClientSecret: p.clientSecret,
		Endpoint:     endpoint,
		Scopes:       scopes,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			upstream := provider.NewUpstreamError(p.Name(), retrieveErr.Response.StatusCode, retrieveErr.Body)
			if retrieveErr.ErrorDescription != "" {
				upstream.Message = retrieveErr.ErrorDescription
			} else if retrieveErr.ErrorCode != "" {
				upstream.Message = retrieveErr.ErrorCode
			}
			return nil, provider.NewAuthError(p.Name(), upstream)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, provider.NewAuthError(p.Name(), fmt.Errorf("token refresh failed: %w", err))
	}
	return tok, nil
}

func (p *CodeAssistProvider) resolveProject(ctx context.Context, creds *Credentials, token string) (string, error) {
	if p.project != "" {
		return p.project, nil
	}

	key := creds.RefreshToken
	if key == "" {
		key = creds.AccessToken
	}

	return p.projects.GetOrLoad(ctx, key, func(ctx context.Context) (string, time.Time, error) {
		body, err := p.post(ctx, token, "loadCodeAssist", loadCodeAssistRequest{
			Metadata: clientMetadata{
				IDEType:    "IDE_UNSPECIFIED",
				Platform:   "PLATFORM_UNSPECIFIED",
				PluginType: "GEMINI",
			},
		})
		if err != nil {
			return "", time.Time{}, err
		}

		var resp loadCodeAssistResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", time.Time{}, &provider.UpstreamError{
				Provider:   p.Name(),
				StatusCode: http.StatusOK,
				Message:    "failed to decode loadCodeAssist response: " + err.Error(),
				Body:       provider.Snippet(body),
			}
		}
		if resp.CloudAICompanionProject == "" {
			return "", time.Time{}, &provider.UpstreamError{
				Provider: p.Name(),
				Message:  "no Code Assist project is associated with this account, set GOOGLE_CLOUD_PROJECT",
				Body:     provider.Snippet(body),
			}
		}
		return resp.CloudAICompanionProject, time.Time{}, nil
	})
}

func (p *CodeAssistProvider) post(ctx context.Context, token, method string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	url := fmt.Sprintf("%s/%s:%s", p.endpoint, apiVersion, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &provider.UpstreamError{Provider: p.Name(), Message: fmt.Sprintf("%s request failed: %v", method, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &provider.UpstreamError{Provider: p.Name(), StatusCode: resp.StatusCode, Message: "failed to read response: " + err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, provider.NewUpstreamError(p.Name(), resp.StatusCode, body)
	}
	return body, nil
}
