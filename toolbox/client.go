package toolbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jonwraymond/qsargate/observe"
	"github.com/jonwraymond/qsargate/resilience"
)

const (
	// DefaultBaseURL is the Toolbox WebAPI address on a local install.
	DefaultBaseURL = "http://localhost:5000"

	// DefaultHeavyConcurrency caps concurrent heavy calls.
	DefaultHeavyConcurrency = 3

	// maxErrorBody bounds the upstream body copied into errors.
	maxErrorBody = 200

	// maxResponseBody bounds a decoded response.
	maxResponseBody = 32 << 20
)

var (
	// ErrInvalidRequest is returned for requests rejected before any call,
	// such as an empty search query.
	ErrInvalidRequest = errors.New("toolbox: invalid request")

	// ErrInvalidResponse is returned when a JSON response cannot be decoded.
	ErrInvalidResponse = errors.New("toolbox: invalid response")
)

// Config configures a Client.
type Config struct {
	// BaseURL of the WebAPI.
	// Default: http://localhost:5000
	BaseURL string

	// Headers are added to every request.
	Headers map[string]string

	// HTTPClient performs requests. Per-attempt timeouts come from the
	// profiles, so the client itself should not set one.
	// Default: a fresh http.Client.
	HTTPClient *http.Client

	// Light and Heavy override the built-in timeout profiles. Zero fields
	// keep the built-in values.
	Light resilience.Profile
	Heavy resilience.Profile

	// HeavyConcurrency caps concurrent heavy calls.
	// Default: 3
	HeavyConcurrency int

	// RateLimit is the sustained requests per second across all calls.
	// Zero disables rate limiting.
	RateLimit float64
	RateBurst int

	// BreakerFailures and BreakerReset tune the shared circuit breaker.
	// Default: 5 failures, 30s.
	BreakerFailures int
	BreakerReset    time.Duration

	Logger observe.Logger
}

// Client calls the QSAR Toolbox WebAPI. It is safe for concurrent use.
type Client struct {
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
	light      *resilience.Executor
	heavy      *resilience.Executor
	breaker    *resilience.CircuitBreaker
	logger     observe.Logger
}

// NewClient creates a client. It returns an error when BaseURL is not an
// absolute http(s) URL.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("toolbox: base URL %q is not an absolute http(s) URL", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observe.NopLogger()
	}
	logger = logger.With(observe.Field{Key: "component", Value: "toolbox"})

	light := resilience.LightProfile.Merge(cfg.Light)
	heavy := resilience.HeavyProfile.Merge(cfg.Heavy)

	concurrency := cfg.HeavyConcurrency
	if concurrency <= 0 {
		concurrency = DefaultHeavyConcurrency
	}

	breaker := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		Upstream: "QSAR Toolbox",
		Failures: cfg.BreakerFailures,
		Reset:    cfg.BreakerReset,
		OnStateChange: func(from, to resilience.State) {
			logger.Warn(context.Background(), "toolbox circuit breaker state changed",
				observe.Field{Key: "from", Value: from.String()},
				observe.Field{Key: "to", Value: to.String()},
			)
		},
	})
	limiter := resilience.NewRateLimiter(cfg.RateLimit, cfg.RateBurst)

	c := &Client{
		baseURL:    base,
		headers:    cfg.Headers,
		httpClient: httpClient,
		breaker:    breaker,
		logger:     logger,
	}
	c.light = resilience.NewProfileExecutor(light, resilience.ProfileOptions{
		CircuitBreaker: breaker,
		RateLimiter:    limiter,
		OnRetry:        c.onRetry(light.Name),
	})
	c.heavy = resilience.NewProfileExecutor(heavy, resilience.ProfileOptions{
		CircuitBreaker: breaker,
		RateLimiter:    limiter,
		MaxConcurrent:  concurrency,
		OnRetry:        c.onRetry(heavy.Name),
	})
	return c, nil
}

func (c *Client) onRetry(profile string) func(int, error, time.Duration) {
	return func(attempt int, err error, delay time.Duration) {
		c.logger.Warn(context.Background(), "toolbox call failed, retrying",
			observe.Field{Key: "profile", Value: profile},
			observe.Field{Key: "attempt", Value: attempt},
			observe.Field{Key: "delay_ms", Value: delay.Milliseconds()},
			observe.Field{Key: "error", Value: err.Error()},
		)
	}
}

// BaseURL returns the WebAPI address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// BreakerState returns the shared circuit breaker state.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// HealthDetails reports the breaker state and heavy-call occupancy.
func (c *Client) HealthDetails() map[string]any {
	hb := c.heavy.Bulkhead()
	return map[string]any{
		"circuit_breaker": c.breaker.State().String(),
		"heavy_in_flight": hb.InFlight(),
		"heavy_limit":     hb.Limit(),
	}
}

// request describes one WebAPI call.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	heavy  bool
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (any, error) {
	return c.call(ctx, request{method: http.MethodGet, path: path, query: query})
}

func (c *Client) getHeavy(ctx context.Context, path string, query url.Values) (any, error) {
	return c.call(ctx, request{method: http.MethodGet, path: path, query: query, heavy: true})
}

// call runs req under its profile. A result is kept only from the attempt
// that succeeded.
func (c *Client) call(ctx context.Context, req request) (any, error) {
	exec := c.light
	if req.heavy {
		exec = c.heavy
	}

	var (
		mu  sync.Mutex
		out any
	)
	start := time.Now()
	err := exec.Execute(ctx, func(ctx context.Context) error {
		v, err := c.roundTrip(ctx, req)
		if err != nil {
			return err
		}
		mu.Lock()
		out = v
		mu.Unlock()
		return nil
	})
	if err != nil {
		c.logger.Error(ctx, "toolbox call failed",
			observe.Field{Key: "method", Value: req.method},
			observe.Field{Key: "path", Value: req.path},
			observe.Field{Key: "error", Value: err.Error()},
		)
		return nil, fmt.Errorf("toolbox %s %s: %w", req.method, req.path, err)
	}
	c.logger.Debug(ctx, "toolbox call completed",
		observe.Field{Key: "method", Value: req.method},
		observe.Field{Key: "path", Value: req.path},
		observe.Field{Key: "duration_ms", Value: time.Since(start).Milliseconds()},
	)

	mu.Lock()
	defer mu.Unlock()
	return out, nil
}

func (c *Client) roundTrip(ctx context.Context, req request) (any, error) {
	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := string(data)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return nil, &resilience.StatusError{
			StatusCode: resp.StatusCode,
			Method:     req.method,
			URL:        req.path,
			Body:       text,
		}
	}
	return decodeBody(resp.Header.Get("Content-Type"), data)
}

// decodeBody turns a response body into a Go value. Empty bodies yield
// nil. JSON content types are decoded; anything else is returned as text.
func decodeBody(contentType string, data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	mediaType = strings.ToLower(mediaType)
	if mediaType == "application/json" || strings.HasSuffix(mediaType, "+json") {
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		return v, nil
	}
	return string(data), nil
}

// Ping checks that the WebAPI answers HTTP. Any response, whatever its
// status, counts as reachable. Ping is not retried.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v6/about", nil)
	if err != nil {
		return err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.Body.Close()
}
