package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/go-jose/go-jose/v4"
)

// KeySet is an immutable set of public signing keys indexed by key id.
type KeySet struct {
	keys map[string]jose.JSONWebKey
}

// ParseKeySet decodes a JWKS document. Keys marked for encryption are
// skipped. A document without any usable signing key is an error, so a
// successful parse always yields a non-empty set.
func ParseKeySet(data []byte) (*KeySet, error) {
	var raw jose.JSONWebKeySet
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode JWKS: %w", err)
	}

	keys := make(map[string]jose.JSONWebKey, len(raw.Keys))
	for _, k := range raw.Keys {
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		if !k.Valid() {
			continue
		}
		if !k.IsPublic() {
			k = k.Public()
		}
		keys[k.KeyID] = k
	}
	if len(keys) == 0 {
		return nil, errors.New("decode JWKS: no usable signing keys")
	}
	return &KeySet{keys: keys}, nil
}

// Len returns the number of keys in the set.
func (ks *KeySet) Len() int {
	if ks == nil {
		return 0
	}
	return len(ks.keys)
}

// Lookup returns the public key for keyID. A token without a key id
// resolves only when the set holds exactly one key.
func (ks *KeySet) Lookup(keyID string) (any, bool) {
	if ks == nil {
		return nil, false
	}
	if keyID == "" {
		if len(ks.keys) != 1 {
			return nil, false
		}
		for _, k := range ks.keys {
			return k.Key, true
		}
	}
	k, ok := ks.keys[keyID]
	if !ok {
		return nil, false
	}
	return k.Key, true
}

// KeyIDs returns the sorted key ids in the set.
func (ks *KeySet) KeyIDs() []string {
	if ks == nil {
		return nil
	}
	ids := make([]string, 0, len(ks.keys))
	for id := range ks.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
