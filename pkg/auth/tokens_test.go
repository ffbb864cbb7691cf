package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T, ttl time.Duration) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer("test-secret", "mindmesh", ttl)
	require.NoError(t, err)
	return issuer
}

func TestIssueAndParse(t *testing.T) {
	issuer := newTestIssuer(t, time.Hour)

	token, err := issuer.Issue("doc-1", "u-1", "editor")
	require.NoError(t, err)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", claims.DocumentID)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, "editor", claims.Role)
}

func TestParseRejectsExpired(t *testing.T) {
	issuer := newTestIssuer(t, -time.Minute)

	token, err := issuer.Issue("doc-1", "u-1", "editor")
	require.NoError(t, err)

	_, err = issuer.Parse(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	issuer := newTestIssuer(t, time.Hour)
	other, err := NewTokenIssuer("other-secret", "mindmesh", time.Hour)
	require.NoError(t, err)

	token, err := other.Issue("doc-1", "u-1", "editor")
	require.NoError(t, err)

	_, err = issuer.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	issuer := newTestIssuer(t, time.Hour)
	foreign, err := NewTokenIssuer("test-secret", "someone-else", time.Hour)
	require.NoError(t, err)

	token, err := foreign.Issue("doc-1", "u-1", "editor")
	require.NoError(t, err)

	_, err = issuer.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsIncompleteClaims(t *testing.T) {
	issuer := newTestIssuer(t, time.Hour)

	t.Run("missing document", func(t *testing.T) {
		token, err := issuer.Issue("", "u-1", "editor")
		require.NoError(t, err)
		_, err = issuer.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing subject", func(t *testing.T) {
		token, err := issuer.Issue("doc-1", "", "editor")
		require.NoError(t, err)
		_, err = issuer.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestParseUser(t *testing.T) {
	issuer := newTestIssuer(t, time.Hour)

	// User API tokens come from the identity provider with the shared secret
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, UserClaims{
		Role: "member",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	claims, err := issuer.ParseUser(signed)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, "member", claims.Role)

	_, err = issuer.ParseUser("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestUserContext(t *testing.T) {
	ctx := context.Background()

	_, err := GetUserFromContext(ctx)
	assert.Error(t, err)

	ctx = SetUserInContext(ctx, &UserContext{UserID: "u-1", Role: "member"})
	user, err := GetUserFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.UserID)
}
