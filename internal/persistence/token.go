package persistence

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenRefresher fetches a fresh bearer token, e.g. internal/secrets's
// Resolver.GetPersistenceToken re-invoked against Vault.
type TokenRefresher func(ctx context.Context) (string, error)

// tokenGuard tracks the current persistence bearer token and, when it is
// itself a JWT (the session service can mint short-lived ones instead of
// a static API key — §2b), proactively re-fetches it shortly before it
// expires rather than waiting for the service to reject a stale one.
type tokenGuard struct {
	mu        sync.Mutex
	current   string
	expiresAt time.Time // zero if current isn't a parseable JWT
	refresh   TokenRefresher
}

// refreshSkew is how far ahead of expiry a token is considered stale.
const refreshSkew = 30 * time.Second

func newTokenGuard(token string) *tokenGuard {
	g := &tokenGuard{current: token}
	g.expiresAt = expiryOf(token)
	return g
}

// SetRefresher installs the callback used to mint a new token once the
// current one is within refreshSkew of expiring. Without one, an
// expiring JWT is used as-is until the service itself rejects it.
func (g *tokenGuard) SetRefresher(refresh TokenRefresher) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refresh = refresh
}

// Token returns the current bearer token, refreshing it first if it is a
// JWT nearing expiry and a refresher is installed.
func (g *tokenGuard) Token(ctx context.Context) (string, error) {
	g.mu.Lock()
	needsRefresh := g.refresh != nil && !g.expiresAt.IsZero() && time.Now().Add(refreshSkew).After(g.expiresAt)
	refresh := g.refresh
	current := g.current
	g.mu.Unlock()

	if !needsRefresh {
		return current, nil
	}

	fresh, err := refresh(ctx)
	if err != nil {
		// Fall back to the token in hand; the request may still succeed if
		// the old one hasn't actually expired yet.
		return current, nil
	}

	g.mu.Lock()
	g.current = fresh
	g.expiresAt = expiryOf(fresh)
	g.mu.Unlock()
	return fresh, nil
}

// expiryOf reads the `exp` claim without verifying the signature: the
// persistence service is the one that verifies the token on each
// request, this client only needs to know when to ask for a new one.
// Returns the zero time for anything that isn't a parseable three-part
// JWT (a static API key, for instance).
func expiryOf(token string) time.Time {
	if strings.Count(token, ".") != 2 {
		return time.Time{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
