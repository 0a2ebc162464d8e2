package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxKeyLength bounds a key. Keys built by DefaultKeyer stay far below it
// for any tool name the registry accepts.
const MaxKeyLength = 512

// ErrInvalidKey is returned for keys that are blank, span lines or exceed
// MaxKeyLength.
var ErrInvalidKey = errors.New("cache: invalid key")

// Cache holds encoded results of read-only toolbox tools. Implementations
// must be safe for concurrent use. A lookup never fails: a miss, an
// expired entry and an evicted entry all read as (nil, false).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores value for ttl. A non-positive ttl stores nothing.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete drops key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// ValidateKey reports whether key can be stored.
func ValidateKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return fmt.Errorf("%w: blank", ErrInvalidKey)
	case strings.ContainsAny(key, "\r\n"):
		return fmt.Errorf("%w: contains a line break", ErrInvalidKey)
	case len(key) > MaxKeyLength:
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidKey, len(key), MaxKeyLength)
	}
	return nil
}
