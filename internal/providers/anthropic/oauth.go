package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jordanhubbard/councilhub/internal/providers"
)

const (
	// OAuth client id used by the opencode anthropic auth plugin.
	oauthClientID = "9d1c250a-e61b-44d9-88ed-5944d1962f5e"

	DefaultTokenURL = "https://console.anthropic.com/v1/oauth/token"

	// Tokens within this window of expiry are refreshed before use.
	expiryBufferMs = 60_000
)

// DefaultAuthPaths returns the opencode auth.json locations, checked in order.
func DefaultAuthPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, ".local", "share", "opencode", "auth.json"),
		filepath.Join(home, ".opencode", "data", "auth.json"),
		filepath.Join(home, ".config", "opencode", "auth.json"),
	}
}

type oauthCredentials struct {
	Access  string
	Refresh string
	Expires int64 // unix millis
	path    string
}

// tokenSource loads opencode OAuth credentials from disk, refreshes them when
// close to expiry, and writes refreshed tokens back to the auth file.
type tokenSource struct {
	mu       sync.Mutex
	paths    []string
	tokenURL string
	client   *http.Client
	now      func() time.Time
}

func newTokenSource(paths []string, tokenURL string) *tokenSource {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	return &tokenSource{
		paths:    paths,
		tokenURL: tokenURL,
		client:   &http.Client{Timeout: 30 * time.Second},
		now:      time.Now,
	}
}

type authFileEntry struct {
	Type    string `json:"type"`
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	Expires int64  `json:"expires"`
}

func (ts *tokenSource) load() *oauthCredentials {
	for _, path := range ts.paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var file map[string]authFileEntry
		if err := json.Unmarshal(data, &file); err != nil {
			continue
		}
		entry, ok := file["anthropic"]
		if !ok || entry.Type != "oauth" {
			continue
		}
		return &oauthCredentials{
			Access:  entry.Access,
			Refresh: entry.Refresh,
			Expires: entry.Expires,
			path:    path,
		}
	}
	return nil
}

func (ts *tokenSource) save(creds *oauthCredentials) error {
	data, err := os.ReadFile(creds.path)
	if err != nil {
		return err
	}
	var file map[string]json.RawMessage
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	entry, err := json.Marshal(authFileEntry{
		Type:    "oauth",
		Access:  creds.Access,
		Refresh: creds.Refresh,
		Expires: creds.Expires,
	})
	if err != nil {
		return err
	}
	file["anthropic"] = entry
	out, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(creds.path, out, 0o600)
}

// Token returns a valid OAuth access token or "" when no OAuth credentials
// are available. Refresh failures are returned as errors so the caller can
// fall back to API-key auth.
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	creds := ts.load()
	if creds == nil {
		return "", nil
	}

	nowMs := ts.now().UnixMilli()
	if creds.Access != "" && creds.Expires > nowMs+expiryBufferMs {
		return creds.Access, nil
	}
	if creds.Refresh == "" {
		return "", nil
	}

	payload := map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": creds.Refresh,
		"client_id":     oauthClientID,
	}
	body, err := providers.DoRequest(ctx, ts.client, ts.tokenURL, payload, nil)
	if err != nil {
		return "", fmt.Errorf("token refresh failed: %w", err)
	}

	var refreshed struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &refreshed); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if refreshed.ExpiresIn == 0 {
		refreshed.ExpiresIn = 3600
	}

	creds.Access = refreshed.AccessToken
	creds.Refresh = refreshed.RefreshToken
	creds.Expires = ts.now().UnixMilli() + refreshed.ExpiresIn*1000
	if err := ts.save(creds); err != nil {
		// Token still works for this process; the next one will refresh again.
		return creds.Access, nil
	}
	return creds.Access, nil
}
