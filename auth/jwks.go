package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jonwraymond/qsargate/observe"
)

// Default JWKS cache settings.
const (
	DefaultJWKSCacheTTL     = 300 * time.Second
	DefaultJWKSFetchTimeout = 10 * time.Second
	DefaultJWKSRetryAfter   = 5 * time.Second

	// maxJWKSBody caps the size of a fetched key set document.
	maxJWKSBody = 1 << 20
)

// JWKSConfig configures a JWKSCache.
type JWKSConfig struct {
	// URL is the JWKS endpoint of the identity provider.
	URL string

	// CacheTTL is how long a fetched key set stays fresh.
	// Default: 300s. Non-positive values use the default.
	CacheTTL time.Duration

	// FetchTimeout bounds a single fetch, independent of the caller's
	// request deadline.
	// Default: 10s.
	FetchTimeout time.Duration

	// RetryAfter is how long a failed fetch suppresses further fetches,
	// forced or not. Callers get the cached keys, or ErrKeySetUnavailable
	// when there are none, until it elapses.
	// Default: 5s.
	RetryAfter time.Duration

	// HTTPClient performs the fetch.
	// Default: http.Client with FetchTimeout.
	HTTPClient *http.Client

	// Logger receives refresh failures and stale-key warnings.
	Logger observe.Logger

	// Metrics records fetch outcomes. Optional.
	Metrics *observe.AuthMetrics
}

// JWKSStatus is a point-in-time view of the cache, used by health checks.
type JWKSStatus struct {
	Keys        int
	KeyIDs      []string
	FetchedAt   time.Time
	ExpiresAt   time.Time
	Stale       bool
	LastError   string
	LastErrorAt time.Time
}

// JWKSCache holds the identity provider's signing keys and refreshes them
// lazily once they expire. A failed refresh never discards cached keys;
// callers keep verifying against the stale set until a fetch succeeds.
//
// All read-check-refresh-write sequences run under a single mutex, so
// concurrent misses result in one network fetch.
type JWKSCache struct {
	config JWKSConfig
	client *http.Client
	logger observe.Logger
	now    func() time.Time

	mu          sync.Mutex
	keys        *KeySet
	fetchedAt   time.Time
	expiresAt   time.Time
	retryAt     time.Time
	lastErr     error
	lastErrorAt time.Time
}

// NewJWKSCache creates a cache for the given endpoint. No fetch happens
// until the first Get.
func NewJWKSCache(cfg JWKSConfig) *JWKSCache {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultJWKSCacheTTL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultJWKSFetchTimeout
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = DefaultJWKSRetryAfter
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.FetchTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &JWKSCache{
		config: cfg,
		client: client,
		logger: logger.With(observe.Field{Key: "component", Value: "jwks"}),
		now:    time.Now,
	}
}

// URL returns the endpoint the cache fetches from.
func (c *JWKSCache) URL() string {
	return c.config.URL
}

// Get returns the current key set, fetching when the cache is empty,
// expired, or forceRefresh is set. If the fetch fails and keys are cached,
// the stale keys are returned with a nil error. ErrKeySetUnavailable is
// returned only when nothing has ever been fetched successfully. After a
// failed fetch no other fetch starts until RetryAfter elapses.
func (c *JWKSCache) Get(ctx context.Context, forceRefresh bool) (*KeySet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !forceRefresh && c.keys != nil && now.Before(c.expiresAt) {
		return c.keys, nil
	}
	if now.Before(c.retryAt) {
		if c.keys != nil {
			return c.keys, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrKeySetUnavailable, sanitize(c.lastErr))
	}

	keys, err := c.fetch(ctx)
	if err != nil {
		c.lastErr = err
		c.lastErrorAt = now
		c.retryAt = now.Add(c.config.RetryAfter)
		c.config.Metrics.RecordKeySetFetch(ctx, "error")

		if c.keys != nil {
			c.logger.Warn(ctx, "JWKS refresh failed, using cached keys",
				observe.Field{Key: "url", Value: c.config.URL},
				observe.Field{Key: "error", Value: sanitize(err)},
				observe.Field{Key: "cached_keys", Value: c.keys.Len()},
			)
			return c.keys, nil
		}
		c.logger.Error(ctx, "JWKS fetch failed and no cached keys available",
			observe.Field{Key: "url", Value: c.config.URL},
			observe.Field{Key: "error", Value: sanitize(err)},
		)
		return nil, fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	}

	c.config.Metrics.RecordKeySetFetch(ctx, "success")
	c.keys = keys
	c.fetchedAt = now
	c.expiresAt = now.Add(c.config.CacheTTL)
	c.retryAt = time.Time{}
	c.lastErr = nil
	c.logger.Debug(ctx, "JWKS refreshed",
		observe.Field{Key: "keys", Value: keys.Len()},
		observe.Field{Key: "forced", Value: forceRefresh},
	)
	return keys, nil
}

// fetch retrieves and parses the key set. The caller's cancellation is
// detached so one abandoned request cannot fail a refresh shared by others.
func (c *JWKSCache) fetch(ctx context.Context) (*KeySet, error) {
	if c.config.URL == "" {
		return nil, errors.New("JWKS URL not configured")
	}

	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, c.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create JWKS request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch JWKS: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBody))
	if err != nil {
		return nil, fmt.Errorf("read JWKS: %w", err)
	}
	return ParseKeySet(body)
}

// Status reports the cache state without triggering a fetch.
func (c *JWKSCache) Status() JWKSStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := JWKSStatus{
		Keys:        c.keys.Len(),
		KeyIDs:      c.keys.KeyIDs(),
		FetchedAt:   c.fetchedAt,
		ExpiresAt:   c.expiresAt,
		LastErrorAt: c.lastErrorAt,
	}
	if c.keys != nil && !c.now().Before(c.expiresAt) {
		st.Stale = true
	}
	if c.lastErr != nil {
		st.LastError = sanitize(c.lastErr)
	}
	return st
}

// Invalidate marks the cached keys expired and lifts any retry delay.
// They remain available as a fallback until the next successful fetch
// replaces them.
func (c *JWKSCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expiresAt = time.Time{}
	c.retryAt = time.Time{}
}
