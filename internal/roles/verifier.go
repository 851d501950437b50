// Package roles implements the Role Verifier: an async, TTL-cached,
// in-flight-deduplicated lookup from a carrier client identifier to
// the set of meeting roles that client holds.
package roles

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/liveshare-oss/synccore/internal/domain"
)

// Lookup resolves a client identifier to its role set. Implementations
// are supplied by the host application; see jwt_lookup.go for a demo
// binding.
type Lookup interface {
	RolesForClient(ctx context.Context, clientID domain.ClientID) (domain.RoleSet, error)
}

// LookupFunc adapts a plain function to the Lookup interface.
type LookupFunc func(ctx context.Context, clientID domain.ClientID) (domain.RoleSet, error)

func (f LookupFunc) RolesForClient(ctx context.Context, clientID domain.ClientID) (domain.RoleSet, error) {
	return f(ctx, clientID)
}

type cacheEntry struct {
	roles     domain.RoleSet
	expiresAt time.Time
}

// Verifier caches role lookups with a TTL and de-duplicates concurrent
// lookups for the same client identifier to a single underlying call.
type Verifier struct {
	lookup Lookup
	ttl    time.Duration

	mu    sync.RWMutex
	cache map[domain.ClientID]cacheEntry

	group singleflight.Group
}

// DefaultTTL is a few seconds, long enough to absorb bursts of
// concurrent lookups without leaving a stale role cached for long.
const DefaultTTL = 5 * time.Second

func NewVerifier(lookup Lookup, ttl time.Duration) *Verifier {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Verifier{
		lookup: lookup,
		ttl:    ttl,
		cache:  make(map[domain.ClientID]cacheEntry),
	}
}

// RolesForClient returns the cached role set if fresh, otherwise
// performs (or joins an in-flight) lookup and caches the result.
func (v *Verifier) RolesForClient(ctx context.Context, clientID domain.ClientID) (domain.RoleSet, error) {
	if roles, ok := v.fromCache(clientID); ok {
		return roles, nil
	}

	result, err, _ := v.group.Do(string(clientID), func() (any, error) {
		// Re-check the cache: a sibling call may have populated it
		// while we were waiting to enter the singleflight critical
		// section.
		if roles, ok := v.fromCache(clientID); ok {
			return roles, nil
		}
		roles, err := v.lookup.RolesForClient(ctx, clientID)
		if err != nil {
			return nil, err
		}
		v.mu.Lock()
		v.cache[clientID] = cacheEntry{roles: roles, expiresAt: time.Now().Add(v.ttl)}
		v.mu.Unlock()
		return roles, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(domain.RoleSet), nil
}

func (v *Verifier) fromCache(clientID domain.ClientID) (domain.RoleSet, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	entry, ok := v.cache[clientID]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.roles, true
}

// VerifyAllowed returns true if allowed is empty, otherwise whether
// the client's roles intersect allowed. A lookup failure is surfaced
// to the caller rather than silently treated as allowed or denied.
func (v *Verifier) VerifyAllowed(ctx context.Context, clientID domain.ClientID, allowed domain.RoleSet) (bool, error) {
	if len(allowed) == 0 {
		return true, nil
	}
	roles, err := v.RolesForClient(ctx, clientID)
	if err != nil {
		return false, err
	}
	return roles.Intersects(allowed), nil
}

// Invalidate drops any cached entry for clientID, forcing the next
// lookup to hit the underlying source. Useful when a host application
// learns a role changed out of band.
func (v *Verifier) Invalidate(clientID domain.ClientID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.cache, clientID)
}
