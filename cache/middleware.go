package cache

import (
	"context"
	"slices"
)

// ReadOnlyTag marks a tool whose result depends only on its arguments.
const ReadOnlyTag = "read_only"

// ExecutorFunc runs a tool and returns its serialized result.
type ExecutorFunc func(ctx context.Context, tool string, args any) ([]byte, error)

// CacheRule decides whether a tool's results may be cached.
type CacheRule func(tool string, tags []string) bool

// ReadOnlyRule caches only tools tagged ReadOnlyTag.
func ReadOnlyRule(_ string, tags []string) bool {
	return slices.Contains(tags, ReadOnlyTag)
}

// Middleware wraps tool execution with result caching.
type Middleware struct {
	cache  Cache
	keyer  Keyer
	policy Policy
	rule   CacheRule
}

// NewMiddleware creates a caching middleware. A nil keyer uses
// DefaultKeyer; a nil rule uses ReadOnlyRule.
func NewMiddleware(cache Cache, keyer Keyer, policy Policy, rule CacheRule) *Middleware {
	if keyer == nil {
		keyer = NewDefaultKeyer()
	}
	if rule == nil {
		rule = ReadOnlyRule
	}
	return &Middleware{cache: cache, keyer: keyer, policy: policy, rule: rule}
}

// Cacheable reports whether results for a tool with these tags are cached.
func (m *Middleware) Cacheable(tool string, tags []string) bool {
	return m != nil && m.cache != nil && m.policy.ShouldCache() && m.rule(tool, tags)
}

// Execute returns a cached result when present; otherwise it runs exec and
// caches a successful result. Errors are never cached. The second return
// reports whether the result came from the cache.
func (m *Middleware) Execute(ctx context.Context, tool string, args any, tags []string, exec ExecutorFunc) ([]byte, bool, error) {
	if !m.Cacheable(tool, tags) {
		out, err := exec(ctx, tool, args)
		return out, false, err
	}

	key, err := m.keyer.Key(tool, args)
	if err != nil {
		out, err := exec(ctx, tool, args)
		return out, false, err
	}

	if cached, ok := m.cache.Get(ctx, key); ok {
		return cached, true, nil
	}

	out, err := exec(ctx, tool, args)
	if err != nil {
		return out, false, err
	}
	_ = m.cache.Set(ctx, key, out, m.policy.EffectiveTTL(0))
	return out, false, nil
}
