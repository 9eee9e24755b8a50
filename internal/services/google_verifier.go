package services

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/idtoken"
)

// GoogleIdentity is the verified subject of a Google ID token
type GoogleIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
}

// GoogleVerifier checks Google ID tokens
type GoogleVerifier interface {
	Verify(ctx context.Context, idToken string) (*GoogleIdentity, error)
}

// IDTokenVerifier validates Google ID tokens locally against Google's
// published signing keys. idtoken checks signature, audience, expiry and issuer.
type IDTokenVerifier struct {
	clientID string
	validate func(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)
}

// NewIDTokenVerifier creates a verifier for the given OAuth client id
func NewIDTokenVerifier(clientID string) *IDTokenVerifier {
	return &IDTokenVerifier{
		clientID: clientID,
		validate: idtoken.Validate,
	}
}

func (v *IDTokenVerifier) Verify(ctx context.Context, idToken string) (*GoogleIdentity, error) {
	if v.clientID == "" {
		return nil, fmt.Errorf("google sign-in is not configured")
	}

	payload, err := v.validate(ctx, idToken, v.clientID)
	if err != nil {
		return nil, fmt.Errorf("invalid google id token: %w", err)
	}
	return identityFromPayload(payload)
}

func identityFromPayload(p *idtoken.Payload) (*GoogleIdentity, error) {
	if p.Issuer != "accounts.google.com" && p.Issuer != "https://accounts.google.com" {
		return nil, fmt.Errorf("unexpected token issuer %q", p.Issuer)
	}

	email, _ := p.Claims["email"].(string)
	if p.Subject == "" || email == "" {
		return nil, fmt.Errorf("token has no subject or email")
	}

	// Google sends a JSON bool; some older tokens carry the string form
	var verified bool
	switch v := p.Claims["email_verified"].(type) {
	case bool:
		verified = v
	case string:
		verified = v == "true"
	}

	return &GoogleIdentity{
		Subject:       p.Subject,
		Email:         strings.ToLower(email),
		EmailVerified: verified,
	}, nil
}
