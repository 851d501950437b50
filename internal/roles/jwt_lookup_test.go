package roles

import (
	"context"
	"errors"
	"testing"

	"github.com/liveshare-oss/synccore/internal/domain"
)

func TestJWTLookupRoundTrip(t *testing.T) {
	lookup := NewJWTLookup([]byte("test-secret"))

	if _, err := lookup.Issue("client-A", domain.NewRoleSet(domain.RolePresenter, domain.RoleAttendee)); err != nil {
		t.Fatalf("issue: %v", err)
	}

	roles, err := lookup.RolesForClient(context.Background(), "client-A")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !roles.Contains(domain.RolePresenter) || !roles.Contains(domain.RoleAttendee) {
		t.Fatalf("expected both issued roles present, got %+v", roles)
	}
}

func TestJWTLookupUnknownClient(t *testing.T) {
	lookup := NewJWTLookup([]byte("test-secret"))
	_, err := lookup.RolesForClient(context.Background(), "never-issued")
	if !errors.Is(err, ErrUnknownClient) {
		t.Fatalf("expected ErrUnknownClient, got %v", err)
	}
}

func TestJWTLookupRejectsTokenSignedWithDifferentSecret(t *testing.T) {
	issuer := NewJWTLookup([]byte("secret-one"))
	if _, err := issuer.Issue("client-A", domain.NewRoleSet(domain.RoleGuest)); err != nil {
		t.Fatalf("issue: %v", err)
	}

	verifier := NewJWTLookup([]byte("secret-two"))
	verifier.tokens["client-A"] = issuer.tokens["client-A"]

	if _, err := verifier.RolesForClient(context.Background(), "client-A"); err == nil {
		t.Fatal("expected verification to fail for a token signed with a different secret")
	}
}
