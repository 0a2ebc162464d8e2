package auth

import (
	"context"
	"sync"
)

// Context keys for auth-related values.
type contextKey int

const (
	principalKey contextKey = iota
	slotKey
)

// WithPrincipal returns a new context with the given principal attached.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext retrieves the principal from the context. It
// checks the directly attached principal first, then the request slot.
// Returns nil if neither is present.
func PrincipalFromContext(ctx context.Context) *Principal {
	if p, ok := ctx.Value(principalKey).(*Principal); ok && p != nil {
		return p
	}
	if s := SlotFromContext(ctx); s != nil {
		return s.Principal()
	}
	return nil
}

// SubjectFromContext returns the authenticated subject, or "" if none.
func SubjectFromContext(ctx context.Context) string {
	return PrincipalFromContext(ctx).Subject()
}

// Slot is a per-request holder for the principal. Outer middleware installs
// an empty slot; the authentication gate fills it so that middleware
// running after the handler (request auditing) can see who called.
type Slot struct {
	mu        sync.Mutex
	principal *Principal
}

// Set stores p in the slot.
func (s *Slot) Set(p *Principal) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.principal = p
	s.mu.Unlock()
}

// Principal returns the stored principal, or nil.
func (s *Slot) Principal() *Principal {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal
}

// WithSlot returns a context carrying a fresh, empty slot.
func WithSlot(ctx context.Context) (context.Context, *Slot) {
	s := &Slot{}
	return context.WithValue(ctx, slotKey, s), s
}

// SlotFromContext returns the request slot, or nil if none was installed.
func SlotFromContext(ctx context.Context) *Slot {
	s, _ := ctx.Value(slotKey).(*Slot)
	return s
}
