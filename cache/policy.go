package cache

import "time"

// Policy configures caching behavior.
type Policy struct {
	// DefaultTTL is applied to every cached result. Zero disables caching.
	DefaultTTL time.Duration

	// MaxTTL clamps override TTLs. Zero means no maximum.
	MaxTTL time.Duration

	// MaxEntries bounds the cache. Least recently used entries are evicted.
	// Default: 1024
	MaxEntries int
}

// DefaultMaxEntries is used when Policy.MaxEntries is not positive.
const DefaultMaxEntries = 1024

// DefaultPolicy caches for 5 minutes, clamps at 1 hour and keeps up to
// DefaultMaxEntries results.
func DefaultPolicy() Policy {
	return Policy{
		DefaultTTL: 5 * time.Minute,
		MaxTTL:     time.Hour,
		MaxEntries: DefaultMaxEntries,
	}
}

// NoCachePolicy disables caching.
func NoCachePolicy() Policy {
	return Policy{}
}

// ShouldCache reports whether caching is enabled.
func (p Policy) ShouldCache() bool {
	return p.DefaultTTL > 0
}

// EffectiveTTL returns override, or DefaultTTL when override is not
// positive, clamped to MaxTTL.
func (p Policy) EffectiveTTL(override time.Duration) time.Duration {
	ttl := override
	if ttl <= 0 {
		ttl = p.DefaultTTL
	}
	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}
	return ttl
}

func (p Policy) maxEntries() int {
	if p.MaxEntries <= 0 {
		return DefaultMaxEntries
	}
	return p.MaxEntries
}
