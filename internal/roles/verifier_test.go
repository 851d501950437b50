package roles

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/liveshare-oss/synccore/internal/domain"
)

func TestVerifyAllowedEmptySetAllowsEverything(t *testing.T) {
	v := NewVerifier(LookupFunc(func(context.Context, domain.ClientID) (domain.RoleSet, error) {
		t.Fatal("lookup must not be called when allowed is empty")
		return nil, nil
	}), time.Second)

	ok, err := v.VerifyAllowed(context.Background(), "client-A", nil)
	if err != nil || !ok {
		t.Fatalf("expected allowed=true, err=nil; got allowed=%v err=%v", ok, err)
	}
}

func TestVerifyAllowedIntersects(t *testing.T) {
	lookup := LookupFunc(func(_ context.Context, clientID domain.ClientID) (domain.RoleSet, error) {
		if clientID == "presenter" {
			return domain.NewRoleSet(domain.RolePresenter), nil
		}
		return domain.NewRoleSet(domain.RoleAttendee), nil
	})
	v := NewVerifier(lookup, time.Second)

	allowed := domain.NewRoleSet(domain.RolePresenter)

	ok, err := v.VerifyAllowed(context.Background(), "presenter", allowed)
	if err != nil || !ok {
		t.Fatalf("presenter should be allowed, got ok=%v err=%v", ok, err)
	}

	ok, err = v.VerifyAllowed(context.Background(), "attendee", allowed)
	if err != nil || ok {
		t.Fatalf("attendee should not be allowed, got ok=%v err=%v", ok, err)
	}
}

func TestRoleLookupFailurePropagates(t *testing.T) {
	wantErr := errors.New("boom")
	lookup := LookupFunc(func(context.Context, domain.ClientID) (domain.RoleSet, error) {
		return nil, wantErr
	})
	v := NewVerifier(lookup, time.Second)

	_, err := v.VerifyAllowed(context.Background(), "client-A", domain.NewRoleSet(domain.RolePresenter))
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected lookup error to propagate, got %v", err)
	}
}

func TestCacheServesWithinTTL(t *testing.T) {
	var calls int32
	lookup := LookupFunc(func(context.Context, domain.ClientID) (domain.RoleSet, error) {
		atomic.AddInt32(&calls, 1)
		return domain.NewRoleSet(domain.RolePresenter), nil
	})
	v := NewVerifier(lookup, time.Hour)

	for i := 0; i < 5; i++ {
		if _, err := v.RolesForClient(context.Background(), "client-A"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 underlying lookup within TTL, got %d", got)
	}
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	var calls int32
	lookup := LookupFunc(func(context.Context, domain.ClientID) (domain.RoleSet, error) {
		atomic.AddInt32(&calls, 1)
		return domain.NewRoleSet(domain.RolePresenter), nil
	})
	v := NewVerifier(lookup, 10*time.Millisecond)

	if _, err := v.RolesForClient(context.Background(), "client-A"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if _, err := v.RolesForClient(context.Background(), "client-A"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected a fresh lookup after TTL expiry, got %d calls", got)
	}
}

func TestConcurrentLookupsAreDeduplicated(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	lookup := LookupFunc(func(context.Context, domain.ClientID) (domain.RoleSet, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return domain.NewRoleSet(domain.RoleAttendee), nil
	})
	v := NewVerifier(lookup, time.Minute)

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := v.RolesForClient(context.Background(), "client-A"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	// Give every goroutine a chance to reach the in-flight lookup
	// before releasing it, so they all join the same singleflight call.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected concurrent lookups for the same client to collapse into 1 call, got %d", got)
	}
}

func TestInvalidateForcesFreshLookup(t *testing.T) {
	var calls int32
	lookup := LookupFunc(func(context.Context, domain.ClientID) (domain.RoleSet, error) {
		atomic.AddInt32(&calls, 1)
		return domain.NewRoleSet(domain.RoleGuest), nil
	})
	v := NewVerifier(lookup, time.Hour)

	if _, err := v.RolesForClient(context.Background(), "client-A"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v.Invalidate("client-A")
	if _, err := v.RolesForClient(context.Background(), "client-A"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected invalidate to force a second lookup, got %d calls", got)
	}
}
