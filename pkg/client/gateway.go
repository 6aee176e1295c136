// Package client provides the Personio HTTP gateway with authentication,
// rate limiting, retry, and pagination handling. It is the single choke
// point for all outbound API calls.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Prometheus metrics for gateway operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "personio_requests_total",
		Help: "Total Personio API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "personio_request_duration_seconds",
		Help:    "Personio API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "personio_errors_total",
		Help: "Total Personio API errors by class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "personio_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "personio_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "personio_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// TokenSource supplies the bearer token for outgoing requests.
// Invalidate drops the cached credential so the next Token call refreshes it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Config holds the gateway configuration.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.personio.de".
	BaseURL string

	// Tokens supplies bearer tokens for every call.
	Tokens TokenSource

	// Timeout applies per HTTP attempt, not per logical operation.
	Timeout time.Duration

	// Retry controls backoff for transient failures.
	Retry RetryConfig

	// RequestsPerSecond paces outbound calls. Zero disables pacing.
	RequestsPerSecond float64

	// PageLimit is the records-per-page hint sent to paginated endpoints.
	PageLimit int

	// MaxPages bounds a single pagination traversal as a safety limit.
	MaxPages int
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL string, tokens TokenSource) Config {
	return Config{
		BaseURL:           baseURL,
		Tokens:            tokens,
		Timeout:           30 * time.Second,
		Retry:             DefaultRetryConfig(),
		RequestsPerSecond: 5,
		PageLimit:         100,
		MaxPages:          1000,
	}
}

// Gateway issues authenticated HTTP calls against the Personio API.
type Gateway struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	retry      RetryConfig
	limiter    *rate.Limiter
	pageLimit  int
	maxPages   int
	logger     zerolog.Logger
}

// New creates a new gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1000
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Gateway{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		tokens:     cfg.Tokens,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retry:      cfg.Retry,
		limiter:    limiter,
		pageLimit:  cfg.PageLimit,
		maxPages:   cfg.MaxPages,
		logger:     log.With().Str("component", "gateway").Logger(),
	}, nil
}

// buildURL resolves an endpoint against the base URL, defaulting to v1
// when no API version prefix is given.
func (g *Gateway) buildURL(endpoint string) string {
	endpoint = strings.TrimLeft(endpoint, "/")
	if !strings.HasPrefix(endpoint, "v1/") && !strings.HasPrefix(endpoint, "v2/") {
		endpoint = "v1/" + endpoint
	}
	return g.baseURL + "/" + endpoint
}

// Request performs a single logical API call and parses the response envelope.
// Transient failures (network errors, 5xx, 429) are retried with exponential
// backoff and jitter up to the configured attempt budget; a 429 Retry-After
// hint overrides the backoff schedule for that attempt. A 401 forces exactly
// one token refresh and one retried call.
func (g *Gateway) Request(ctx context.Context, method, endpoint string, params url.Values) (*Page, error) {
	resp, err := g.do(ctx, method, endpoint, params, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var page Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Endpoint:   endpoint,
			ErrorClass: ErrorClassServer,
			Message:    "malformed response body",
			Err:        err,
		}
	}

	return &page, nil
}

// Download streams a binary payload to w, using the same authentication and
// retry discipline as Request. Returns the number of bytes written.
func (g *Gateway) Download(ctx context.Context, endpoint string, w io.Writer) (int64, error) {
	resp, err := g.do(ctx, http.MethodGet, endpoint, nil, "*/*")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, &APIError{
			StatusCode: resp.StatusCode,
			Endpoint:   endpoint,
			ErrorClass: ErrorClassNetwork,
			Message:    "read download body",
			Err:        err,
		}
	}
	return n, nil
}

// do executes one physical call sequence with pacing, auth and retry.
// On success the caller owns the response body.
func (g *Gateway) do(ctx context.Context, method, endpoint string, params url.Values, accept string) (*http.Response, error) {
	fullURL := g.buildURL(endpoint)
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	bo := newBackoff(g.retry)
	refreshed := false

	var lastErr error
	for attempt := 1; attempt <= g.retry.MaxAttempts; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}

		token, err := g.tokens.Token(ctx)
		if err != nil {
			// Auth failures are fatal, never retried here.
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", accept)

		resp, reqErr := g.httpClient.Do(req)
		if reqErr != nil {
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			lastErr = &APIError{
				Endpoint:   endpoint,
				ErrorClass: ErrorClassNetwork,
				Message:    "request failed",
				Err:        reqErr,
			}
			g.logger.Warn().
				Err(reqErr).
				Str("endpoint", endpoint).
				Int("attempt", attempt).
				Msg("Network error")

			if err := g.waitForRetry(ctx, attempt, ErrorClassNetwork, bo.next()); err != nil {
				return nil, err
			}
			continue
		}

		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		// Success path: caller takes ownership of the body.
		if resp.StatusCode < 400 {
			if attempt > 1 {
				g.logger.Info().
					Str("endpoint", endpoint).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return resp, nil
		}

		errClass := classify(resp.StatusCode)
		errorsTotal.WithLabelValues(string(errClass)).Inc()
		resp.Body.Close()

		// A 401 forces exactly one token refresh and one retried call.
		// The refresh retry does not consume a backoff attempt.
		if resp.StatusCode == http.StatusUnauthorized {
			if !refreshed {
				refreshed = true
				g.logger.Warn().
					Str("endpoint", endpoint).
					Msg("Received 401, forcing token refresh")
				g.tokens.Invalidate()
				attempt--
				continue
			}
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Endpoint:   endpoint,
				ErrorClass: ErrorClassClient,
				Message:    "unauthorized after token refresh",
			}
		}

		if !shouldRetry(errClass) {
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Endpoint:   endpoint,
				ErrorClass: errClass,
				Message:    resp.Status,
			}
		}

		lastErr = &APIError{
			StatusCode: resp.StatusCode,
			Endpoint:   endpoint,
			ErrorClass: errClass,
			Message:    resp.Status,
		}

		delay := bo.next()
		if errClass == ErrorClassRateLimit {
			// Honor the Retry-After hint when present.
			if hint := retryAfterHint(resp.Header); hint > 0 {
				delay = hint
			}
		}

		g.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Retryable API error")

		if err := g.waitForRetry(ctx, attempt, errClass, delay); err != nil {
			return nil, err
		}
	}

	retryExhaustedTotal.WithLabelValues(string(errorClassOf(lastErr))).Inc()
	g.logger.Warn().
		Str("endpoint", endpoint).
		Int("max_attempts", g.retry.MaxAttempts).
		Msg("Retry attempts exhausted")

	return nil, &APIError{
		StatusCode: statusCodeOf(lastErr),
		Endpoint:   endpoint,
		ErrorClass: errorClassOf(lastErr),
		Message:    fmt.Sprintf("%v after %d attempts", ErrRetryExhausted, g.retry.MaxAttempts),
		Err:        ErrRetryExhausted,
	}
}

// waitForRetry sleeps before the next attempt unless the budget is spent,
// recording retry metrics.
func (g *Gateway) waitForRetry(ctx context.Context, attempt int, errClass ErrorClass, delay time.Duration) error {
	if attempt >= g.retry.MaxAttempts {
		return nil
	}

	retriesTotal.WithLabelValues(string(errClass)).Inc()
	retryBackoffSeconds.WithLabelValues(string(errClass)).Observe(delay.Seconds())

	return sleep(ctx, delay)
}

// retryAfterHint parses a Retry-After header given in seconds.
func retryAfterHint(headers http.Header) time.Duration {
	value := headers.Get("Retry-After")
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func errorClassOf(err error) ErrorClass {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr.ErrorClass
	}
	return ErrorClassNetwork
}

func statusCodeOf(err error) int {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr.StatusCode
	}
	return 0
}
