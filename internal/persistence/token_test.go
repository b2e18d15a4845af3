package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"exp": exp.Unix()}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)
	return signed
}

func TestTokenGuardStaticAPIKeyNeverRefreshes(t *testing.T) {
	g := newTokenGuard("static-api-key")
	calls := 0
	g.SetRefresher(func(ctx context.Context) (string, error) {
		calls++
		return "should-not-be-used", nil
	})

	token, err := g.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "static-api-key", token)
	assert.Zero(t, calls)
}

func TestTokenGuardRefreshesExpiringJWT(t *testing.T) {
	expiring := signedToken(t, time.Now().Add(5*time.Second))
	g := newTokenGuard(expiring)

	fresh := signedToken(t, time.Now().Add(time.Hour))
	calls := 0
	g.SetRefresher(func(ctx context.Context) (string, error) {
		calls++
		return fresh, nil
	})

	token, err := g.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fresh, token)
	assert.Equal(t, 1, calls)

	// A second call shouldn't refresh again: the new token is far from expiry.
	token, err = g.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fresh, token)
	assert.Equal(t, 1, calls)
}

func TestTokenGuardFallsBackOnRefreshFailure(t *testing.T) {
	expiring := signedToken(t, time.Now().Add(5*time.Second))
	g := newTokenGuard(expiring)
	g.SetRefresher(func(ctx context.Context) (string, error) {
		return "", errors.New("refresh unavailable")
	})

	token, err := g.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, expiring, token)
}
