// Package auth manages the Personio API access token lifecycle.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultSafetyMargin is how long before expiry a cached token is considered stale.
const DefaultSafetyMargin = 60 * time.Second

// defaultTokenLifetime is assumed when the auth response carries no expires_in.
const defaultTokenLifetime = time.Hour

// Credential is an access token with its expiry time.
// It lives only in memory and is never persisted.
type Credential struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Valid reports whether the credential is usable at the given time,
// respecting the safety margin.
func (c *Credential) Valid(now time.Time, margin time.Duration) bool {
	return c != nil && c.AccessToken != "" && now.Before(c.ExpiresAt.Add(-margin))
}

// Config holds the token provider configuration.
type Config struct {
	// ClientID and ClientSecret identify this integration to Personio.
	ClientID     string
	ClientSecret string

	// BaseURL is the API root, e.g. "https://api.personio.de".
	BaseURL string

	// HTTPClient used for the token exchange (default: 10s timeout).
	HTTPClient *http.Client

	// SafetyMargin before expiry at which the token is refreshed early.
	SafetyMargin time.Duration
}

// Provider obtains and caches the Personio access token.
//
// Concurrent callers are safe: the refresh section is guarded by a mutex so
// only one token exchange happens even if several document-download workers
// detect expiry at the same time.
type Provider struct {
	clientID     string
	clientSecret string
	authURL      string
	httpClient   *http.Client
	safetyMargin time.Duration
	logger       zerolog.Logger

	mu   sync.Mutex
	cred *Credential

	// now is overridable in tests.
	now func() time.Time
}

// NewProvider creates a token provider.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client id and client secret are required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	margin := cfg.SafetyMargin
	if margin <= 0 {
		margin = DefaultSafetyMargin
	}

	return &Provider{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		authURL:      strings.TrimRight(cfg.BaseURL, "/") + "/v1/auth",
		httpClient:   httpClient,
		safetyMargin: margin,
		logger:       log.With().Str("component", "token-provider").Logger(),
		now:          time.Now,
	}, nil
}

// Token returns a valid access token, refreshing the cached credential if
// it is missing or within the safety margin of expiry.
func (p *Provider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cred.Valid(p.now(), p.safetyMargin) {
		return p.cred.AccessToken, nil
	}

	cred, err := p.exchange(ctx)
	if err != nil {
		return "", err
	}

	p.cred = cred
	return cred.AccessToken, nil
}

// Invalidate drops the cached credential so the next Token call performs a
// fresh exchange. The gateway calls this once when a request returns 401.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cred = nil
}

// authResponse is the Personio token exchange envelope.
type authResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Token     string `json:"token"`
		ExpiresIn int64  `json:"expires_in"`
	} `json:"data"`
}

// exchange performs the synchronous credential exchange. Auth failures are
// not transient by assumption, so there is no retry here.
func (p *Provider) exchange(ctx context.Context) (*Credential, error) {
	p.logger.Info().Msg("Authenticating with Personio API")

	payload, err := json.Marshal(map[string]string{
		"client_id":     p.clientID,
		"client_secret": p.clientSecret,
	})
	if err != nil {
		return nil, &AuthenticationError{Message: "encode auth payload", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.authURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &AuthenticationError{Message: "create auth request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &AuthenticationError{Message: "token exchange failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &AuthenticationError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("token exchange returned %s: %s", resp.Status, strings.TrimSpace(string(body))),
		}
	}

	var parsed authResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &AuthenticationError{Message: "malformed token response", Err: err}
	}
	if parsed.Data.Token == "" {
		return nil, &AuthenticationError{Message: "token response missing data.token"}
	}

	lifetime := defaultTokenLifetime
	if parsed.Data.ExpiresIn > 0 {
		lifetime = time.Duration(parsed.Data.ExpiresIn) * time.Second
	}

	cred := &Credential{
		AccessToken: parsed.Data.Token,
		ExpiresAt:   p.now().Add(lifetime),
	}

	p.logger.Info().
		Time("expires_at", cred.ExpiresAt).
		Msg("Successfully authenticated")

	return cred, nil
}
