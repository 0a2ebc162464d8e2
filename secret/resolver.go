package secret

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const refPrefix = "secretref:"

var embeddedRef = regexp.MustCompile(`secretref:([^:\s]+):(\S+)`)

// Resolver turns configuration strings into their final values. A value is
// expanded against the environment first; a value that is a whole
// secretref, or contains one after a scheme such as "Bearer ", is then
// resolved through the named Provider.
type Resolver struct {
	providers map[string]Provider
}

// NewResolver creates a resolver over providers. A provider returning an
// empty value is an error.
func NewResolver(providers ...Provider) *Resolver {
	r := &Resolver{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}
	return r
}

// NewDefaultResolver creates a resolver backed by every provider in
// DefaultRegistry.
func NewDefaultResolver() (*Resolver, error) {
	providers, err := DefaultRegistry.CreateAll(nil)
	if err != nil {
		return nil, err
	}
	return NewResolver(providers...), nil
}

// ResolveValue returns value with environment references expanded and
// secret references replaced. A nil Resolver only expands the environment.
func (r *Resolver) ResolveValue(ctx context.Context, value string) (string, error) {
	expanded, err := ExpandEnvStrict(value)
	if err != nil || r == nil {
		return expanded, err
	}
	if name, ref, ok := ParseSecretRef(expanded); ok {
		return r.lookup(ctx, name, ref)
	}

	locs := embeddedRef.FindAllStringSubmatchIndex(expanded, -1)
	if len(locs) == 0 {
		return expanded, nil
	}
	var b strings.Builder
	last := 0
	for _, loc := range locs {
		secret, err := r.lookup(ctx, expanded[loc[2]:loc[3]], expanded[loc[4]:loc[5]])
		if err != nil {
			return "", err
		}
		b.WriteString(expanded[last:loc[0]])
		b.WriteString(secret)
		last = loc[1]
	}
	b.WriteString(expanded[last:])
	return b.String(), nil
}

// ResolveMap resolves every value of input in key order, so the first
// failing key is reported deterministically.
func (r *Resolver) ResolveMap(ctx context.Context, input map[string]string) (map[string]string, error) {
	if input == nil {
		return nil, nil
	}
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string, len(input))
	for _, k := range keys {
		v, err := r.ResolveValue(ctx, input[k])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// Close closes every provider.
func (r *Resolver) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ParseSecretRef splits a value of the exact form secretref:<provider>:<ref>.
func ParseSecretRef(value string) (provider, ref string, ok bool) {
	rest, found := strings.CutPrefix(value, refPrefix)
	if !found {
		return "", "", false
	}
	provider, ref, found = strings.Cut(rest, ":")
	if !found || provider == "" || ref == "" {
		return "", "", false
	}
	return provider, ref, true
}

func (r *Resolver) lookup(ctx context.Context, name, ref string) (string, error) {
	p, ok := r.providers[name]
	if !ok {
		return "", fmt.Errorf("secret provider %q is not registered", name)
	}
	v, err := p.Resolve(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("%s%s: %w", refPrefix, name, err)
	}
	if v == "" {
		return "", fmt.Errorf("%s%s: empty value", refPrefix, name)
	}
	return v, nil
}
