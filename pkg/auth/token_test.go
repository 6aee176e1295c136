package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newAuthServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestNewProvider_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{
			name: "valid config",
			config: Config{
				ClientID:     "id",
				ClientSecret: "secret",
				BaseURL:      "https://api.personio.de",
			},
			expectError: false,
		},
		{
			name: "missing client id",
			config: Config{
				ClientSecret: "secret",
				BaseURL:      "https://api.personio.de",
			},
			expectError: true,
		},
		{
			name: "missing client secret",
			config: Config{
				ClientID: "id",
				BaseURL:  "https://api.personio.de",
			},
			expectError: true,
		},
		{
			name: "missing base url",
			config: Config{
				ClientID:     "id",
				ClientSecret: "secret",
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(tt.config)

			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if provider == nil {
				t.Error("Provider is nil")
			}
		})
	}
}

func TestToken_CachesCredential(t *testing.T) {
	var exchanges int32
	server := newAuthServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&exchanges, 1)
		if r.URL.Path != "/v1/auth" {
			t.Errorf("Auth path = %q, want /v1/auth", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Auth method = %q, want POST", r.Method)
		}
		fmt.Fprint(w, `{"success": true, "data": {"token": "tok-1", "expires_in": 3600}}`)
	})

	provider, err := NewProvider(Config{
		ClientID:     "id",
		ClientSecret: "secret",
		BaseURL:      server.URL,
	})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		token, err := provider.Token(ctx)
		if err != nil {
			t.Fatalf("Token call %d: %v", i+1, err)
		}
		if token != "tok-1" {
			t.Errorf("Token = %q, want tok-1", token)
		}
	}

	if got := atomic.LoadInt32(&exchanges); got != 1 {
		t.Errorf("Exchanges = %d, want 1 (credential should be cached)", got)
	}
}

func TestToken_RefreshesWithinSafetyMargin(t *testing.T) {
	var exchanges int32
	server := newAuthServer(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&exchanges, 1)
		fmt.Fprintf(w, `{"success": true, "data": {"token": "tok-%d", "expires_in": 3600}}`, n)
	})

	provider, err := NewProvider(Config{
		ClientID:     "id",
		ClientSecret: "secret",
		BaseURL:      server.URL,
	})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	now := time.Now()
	provider.now = func() time.Time { return now }

	ctx := context.Background()
	if _, err := provider.Token(ctx); err != nil {
		t.Fatalf("Token: %v", err)
	}

	// Move the clock into the safety margin window before expiry.
	now = now.Add(3600*time.Second - 30*time.Second)

	token, err := provider.Token(ctx)
	if err != nil {
		t.Fatalf("Token after clock advance: %v", err)
	}
	if token != "tok-2" {
		t.Errorf("Token = %q, want tok-2 (stale credential should refresh)", token)
	}
	if got := atomic.LoadInt32(&exchanges); got != 2 {
		t.Errorf("Exchanges = %d, want 2", got)
	}
}

func TestInvalidate_ForcesExchange(t *testing.T) {
	var exchanges int32
	server := newAuthServer(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&exchanges, 1)
		fmt.Fprintf(w, `{"success": true, "data": {"token": "tok-%d", "expires_in": 3600}}`, n)
	})

	provider, err := NewProvider(Config{
		ClientID:     "id",
		ClientSecret: "secret",
		BaseURL:      server.URL,
	})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	ctx := context.Background()
	if _, err := provider.Token(ctx); err != nil {
		t.Fatalf("Token: %v", err)
	}

	provider.Invalidate()

	token, err := provider.Token(ctx)
	if err != nil {
		t.Fatalf("Token after invalidate: %v", err)
	}
	if token != "tok-2" {
		t.Errorf("Token = %q, want tok-2", token)
	}
}

func TestToken_ConcurrentCallersSingleExchange(t *testing.T) {
	var exchanges int32
	server := newAuthServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&exchanges, 1)
		time.Sleep(20 * time.Millisecond)
		fmt.Fprint(w, `{"success": true, "data": {"token": "tok-1", "expires_in": 3600}}`)
	})

	provider, err := NewProvider(Config{
		ClientID:     "id",
		ClientSecret: "secret",
		BaseURL:      server.URL,
	})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := provider.Token(ctx); err != nil {
				t.Errorf("Token: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&exchanges); got != 1 {
		t.Errorf("Exchanges = %d, want 1 (refresh must be serialized)", got)
	}
}

func TestToken_ExchangeFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non-success status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"success": false}`, http.StatusForbidden)
			},
		},
		{
			name: "malformed payload",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"success": true, "data"`)
			},
		},
		{
			name: "missing token field",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"success": true, "data": {}}`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newAuthServer(t, tt.handler)

			provider, err := NewProvider(Config{
				ClientID:     "id",
				ClientSecret: "secret",
				BaseURL:      server.URL,
			})
			if err != nil {
				t.Fatalf("NewProvider: %v", err)
			}

			_, err = provider.Token(context.Background())
			if err == nil {
				t.Fatal("Expected error but got nil")
			}

			var authErr *AuthenticationError
			if !errors.As(err, &authErr) {
				t.Errorf("Error type = %T, want *AuthenticationError", err)
			}
		})
	}
}

func TestCredential_Valid(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		cred   *Credential
		margin time.Duration
		want   bool
	}{
		{
			name: "valid",
			cred: &Credential{AccessToken: "tok", ExpiresAt: now.Add(time.Hour)},
			want: true,
		},
		{
			name: "nil credential",
			cred: nil,
			want: false,
		},
		{
			name: "empty token",
			cred: &Credential{ExpiresAt: now.Add(time.Hour)},
			want: false,
		},
		{
			name:   "inside safety margin",
			cred:   &Credential{AccessToken: "tok", ExpiresAt: now.Add(30 * time.Second)},
			margin: 60 * time.Second,
			want:   false,
		},
		{
			name: "expired",
			cred: &Credential{AccessToken: "tok", ExpiresAt: now.Add(-time.Minute)},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cred.Valid(now, tt.margin); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}
