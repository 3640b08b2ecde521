package codeassist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/sammcj/mcp-websearch/internal/tools/websearch/provider"
	"golang.org/x/oauth2"
)

const (
	defaultCredentialsDir  = ".gemini"
	defaultCredentialsFile = "oauth_creds.json"

	lockRetryDelay = 50 * time.Millisecond
)

// Credentials is the OAuth token file written by the Gemini CLI login flow
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	// ExpiryDate is in milliseconds since the Unix epoch
	ExpiryDate int64 `json:"expiry_date,omitempty"`
}

// DefaultCredentialsPath returns ~/.gemini/oauth_creds.json
func DefaultCredentialsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, defaultCredentialsDir, defaultCredentialsFile)
}

// ReadCredentials loads the credentials file under a shared file lock so a
// concurrent login that rewrites it is never observed half written.
func ReadCredentials(ctx context.Context, path string) (*Credentials, error) {
	if path == "" {
		return nil, provider.NewAuthError(provider.NameCodeAssist, fmt.Errorf("%w: no credentials path", provider.ErrMissingAuth))
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, provider.NewAuthError(provider.NameCodeAssist, fmt.Errorf("%w: %s not found, sign in with the Gemini CLI first", provider.ErrMissingAuth, path))
		}
		return nil, fmt.Errorf("failed to stat credentials file: %w", err)
	}

	fileLock := flock.New(path + ".lock")
	locked, err := fileLock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire read lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("could not acquire read lock on credentials file")
	}
	defer func() { _ = fileLock.Unlock() }()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, provider.NewAuthError(provider.NameCodeAssist, fmt.Errorf("invalid credentials file %s: %w", path, err))
	}
	if strings.TrimSpace(creds.RefreshToken) == "" && strings.TrimSpace(creds.AccessToken) == "" {
		return nil, provider.NewAuthError(provider.NameCodeAssist, fmt.Errorf("%w: credentials file holds no tokens", provider.ErrMissingAuth))
	}

	return &creds, nil
}

// Token converts the stored credentials to an oauth2 token
func (c *Credentials) Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
	}
	if c.ExpiryDate > 0 {
		tok.Expiry = time.UnixMilli(c.ExpiryDate)
	}
	return tok
}

// usableAt reports whether the stored access token is still valid at now
// with skew to spare.
func (c *Credentials) usableAt(now time.Time, skew time.Duration) bool {
	if c.AccessToken == "" || c.ExpiryDate <= 0 {
		return false
	}
	return now.Add(skew).Before(time.UnixMilli(c.ExpiryDate))
}
