package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuth(t *testing.T) *LocalJWTAuth {
	t.Helper()
	a, err := NewLocalJWTAuth("test-secret", time.Minute, time.Hour)
	require.NoError(t, err)
	return a
}

func TestNewLocalJWTAuth_RequiresSecret(t *testing.T) {
	_, err := NewLocalJWTAuth("", 0, 0)
	assert.Error(t, err)
}

func TestNewLocalJWTAuth_Defaults(t *testing.T) {
	a, err := NewLocalJWTAuth("s", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, a.AccessTokenExpiry)
	assert.Equal(t, 7*24*time.Hour, a.RefreshTokenExpiry)
}

func TestGenerateAndVerifyTokens(t *testing.T) {
	a := newTestAuth(t)
	user := User{ID: "u1", Email: "a@b.c", Role: "admin", EmailVerified: true}

	access, refresh, err := a.GenerateTokens(user, 3)
	require.NoError(t, err)

	got, err := a.VerifyAccessToken(access)
	require.NoError(t, err)
	assert.Equal(t, &user, got)

	claims, err := a.VerifyRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, 3, claims.Version)
	assert.NotEmpty(t, claims.TokenID)
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	a := newTestAuth(t)
	access, refresh, err := a.GenerateTokens(User{ID: "u1"}, 0)
	require.NoError(t, err)

	_, err = a.VerifyAccessToken(refresh)
	assert.True(t, errors.Is(err, ErrInvalidToken))

	_, err = a.VerifyRefreshToken(access)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestVerifyAccessToken_Rejects(t *testing.T) {
	a := newTestAuth(t)
	other, err := NewLocalJWTAuth("other-secret", time.Minute, time.Hour)
	require.NoError(t, err)

	foreign, _, err := other.GenerateTokens(User{ID: "u1"}, 0)
	require.NoError(t, err)

	expired, err := a.sign(JWTClaims{
		UserID:           "u1",
		Type:             TokenTypeAccess,
		RegisteredClaims: registered(time.Now().Add(-2*time.Hour), time.Hour),
	})
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, JWTClaims{
		UserID:           "u1",
		Type:             TokenTypeAccess,
		RegisteredClaims: registered(time.Now(), time.Hour),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": foreign,
		"expired":      expired,
		"alg none":     none,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := a.VerifyAccessToken(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	a := newTestAuth(t)

	hash, err := a.HashPassword("secret1")
	require.NoError(t, err)
	assert.NotContains(t, hash, "secret1")

	ok, err := a.VerifyPassword(hash, "secret1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.VerifyPassword(hash, "secret2")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = a.VerifyPassword("bcrypt$abc", "secret1")
	assert.Error(t, err)
}

func TestValidatePassword(t *testing.T) {
	assert.ErrorIs(t, ValidatePassword("12345"), ErrWeakPassword)
	assert.NoError(t, ValidatePassword("123456"))
}

func TestExtractToken(t *testing.T) {
	tok, err := ExtractToken("Bearer abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	for _, h := range []string{"", "Basic abc", "Bearer ", "abc"} {
		_, err := ExtractToken(h)
		assert.Error(t, err, h)
	}
}

func TestRandomToken(t *testing.T) {
	a, err := RandomToken(16)
	require.NoError(t, err)
	b, err := RandomToken(16)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 22)
}
