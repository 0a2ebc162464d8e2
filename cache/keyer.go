package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Keyer derives cache keys from a tool name and its arguments.
//
// Contract:
// - Determinism: equal arguments produce equal keys regardless of map order.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	Key(tool string, args any) (string, error)
}

// DefaultKeyer produces keys of the form tool:<name>:<hash>, where hash is
// the first 16 hex characters of SHA-256 over the canonical JSON of args.
type DefaultKeyer struct{}

// NewDefaultKeyer creates a new default keyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// Key implements Keyer.
func (k *DefaultKeyer) Key(tool string, args any) (string, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, args); err != nil {
		return "", fmt.Errorf("cache: canonicalize arguments: %w", err)
	}
	sum := sha256.Sum256(buf.Bytes())
	key := "tool:" + tool + ":" + hex.EncodeToString(sum[:8])
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// writeCanonical writes v as JSON with object keys sorted at every level.
// Array order is preserved.
func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

// Ensure DefaultKeyer implements Keyer
var _ Keyer = (*DefaultKeyer)(nil)
