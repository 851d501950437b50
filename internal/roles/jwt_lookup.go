package roles

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/liveshare-oss/synccore/internal/domain"
)

// ErrUnknownClient is returned when the JWT store has never seen the
// given client identifier issued a token.
var ErrUnknownClient = errors.New("roles: unknown client")

// JWTClaims is the shape this demo lookup expects in a token's custom
// claims.
type JWTClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// JWTLookup resolves roles from signed tokens the host application
// issued at meeting-join time and registered here keyed by the
// carrier's client identifier. It stands in for whatever role source
// a real deployment would bind in production.
type JWTLookup struct {
	secret []byte

	mu     sync.Mutex
	tokens map[domain.ClientID]string
}

func NewJWTLookup(secret []byte) *JWTLookup {
	return &JWTLookup{secret: secret, tokens: make(map[domain.ClientID]string)}
}

// Issue signs a token carrying roles and binds it to clientID for
// later lookup. In a real deployment the token would be issued by the
// host application and handed to the client out of band; Issue exists
// so the demo carrier and tests can populate the lookup without a
// separate identity service.
func (j *JWTLookup) Issue(clientID domain.ClientID, roles domain.RoleSet) (string, error) {
	claims := JWTClaims{Roles: roleStrings(roles)}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("roles: sign token: %w", err)
	}
	j.mu.Lock()
	j.tokens[clientID] = signed
	j.mu.Unlock()
	return signed, nil
}

func (j *JWTLookup) RolesForClient(_ context.Context, clientID domain.ClientID) (domain.RoleSet, error) {
	j.mu.Lock()
	signed, ok := j.tokens[clientID]
	j.mu.Unlock()
	if !ok {
		return nil, ErrUnknownClient
	}

	var claims JWTClaims
	_, err := jwt.ParseWithClaims(signed, &claims, func(t *jwt.Token) (any, error) {
		return j.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("roles: parse token for %s: %w", clientID, err)
	}

	out := make(domain.RoleSet, len(claims.Roles))
	for _, r := range claims.Roles {
		out[domain.Role(r)] = struct{}{}
	}
	return out, nil
}

func roleStrings(roles domain.RoleSet) []string {
	out := make([]string, 0, len(roles))
	for r := range roles {
		out = append(out, string(r))
	}
	return out
}
