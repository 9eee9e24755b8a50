package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/idtoken"
)

func stubVerifier(clientID string, payload *idtoken.Payload, err error) *IDTokenVerifier {
	v := NewIDTokenVerifier(clientID)
	v.validate = func(ctx context.Context, idToken, audience string) (*idtoken.Payload, error) {
		if audience != "client-123" {
			return nil, errors.New("audience provided does not match aud claim in the JWT")
		}
		return payload, err
	}
	return v
}

func TestIDTokenVerifier(t *testing.T) {
	valid := func() *idtoken.Payload {
		return &idtoken.Payload{
			Issuer:   "https://accounts.google.com",
			Audience: "client-123",
			Subject:  "10987",
			Claims: map[string]interface{}{
				"email":          "Student@Gmail.com",
				"email_verified": true,
			},
		}
	}

	t.Run("valid", func(t *testing.T) {
		id, err := stubVerifier("client-123", valid(), nil).Verify(context.Background(), "the-id-token")
		require.NoError(t, err)
		assert.Equal(t, &GoogleIdentity{Subject: "10987", Email: "student@gmail.com", EmailVerified: true}, id)
	})

	t.Run("unverified email is reported", func(t *testing.T) {
		p := valid()
		p.Claims["email_verified"] = false

		id, err := stubVerifier("client-123", p, nil).Verify(context.Background(), "the-id-token")
		require.NoError(t, err)
		assert.False(t, id.EmailVerified)
	})

	t.Run("string email_verified", func(t *testing.T) {
		p := valid()
		p.Claims["email_verified"] = "true"

		id, err := stubVerifier("client-123", p, nil).Verify(context.Background(), "the-id-token")
		require.NoError(t, err)
		assert.True(t, id.EmailVerified)
	})

	t.Run("other audience", func(t *testing.T) {
		_, err := stubVerifier("client-456", valid(), nil).Verify(context.Background(), "the-id-token")
		assert.Error(t, err)
	})

	t.Run("other issuer", func(t *testing.T) {
		p := valid()
		p.Issuer = "https://evil.example.com"

		_, err := stubVerifier("client-123", p, nil).Verify(context.Background(), "the-id-token")
		assert.Error(t, err)
	})

	t.Run("missing email", func(t *testing.T) {
		p := valid()
		delete(p.Claims, "email")

		_, err := stubVerifier("client-123", p, nil).Verify(context.Background(), "the-id-token")
		assert.Error(t, err)
	})

	t.Run("rejected", func(t *testing.T) {
		_, err := stubVerifier("client-123", nil, errors.New("idtoken: token expired")).Verify(context.Background(), "the-id-token")
		assert.Error(t, err)
	})

	t.Run("not configured", func(t *testing.T) {
		_, err := NewIDTokenVerifier("").Verify(context.Background(), "the-id-token")
		assert.Error(t, err)
	})
}
