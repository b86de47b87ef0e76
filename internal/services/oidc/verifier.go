package oidc

import (
	"context"
	"errors"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/okhabit/okhabit/internal/models"
)

// ErrInvalidToken marks bearer tokens that failed verification.
var ErrInvalidToken = errors.New("invalid or expired token")

// Verifier verifies JWT tokens
type Verifier struct {
	keys   KeySource
	issuer string
}

// NewVerifier creates a new JWT verifier
func NewVerifier(keys KeySource, issuer string) *Verifier {
	return &Verifier{keys: keys, issuer: issuer}
}

// Verify checks signature, expiry and issuer, then extracts the identity claims.
func (v *Verifier) Verify(ctx context.Context, tokenString string, jwksURL string) (*models.JWTClaims, error) {
	keys, err := v.keys.GetJWKS(ctx, jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}

	token, err := jwt.Parse([]byte(tokenString),
		jwt.WithKeySet(keys),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if token.Subject() == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	claims := &models.JWTClaims{
		Sub: token.Subject(),
		Iss: token.Issuer(),
		Exp: token.Expiration().Unix(),
		Iat: token.IssuedAt().Unix(),
	}
	if aud := token.Audience(); len(aud) > 0 {
		claims.Aud = aud[0]
	}
	private := token.PrivateClaims()
	if s, ok := private["email"].(string); ok {
		claims.Email = s
	}
	if s, ok := private["name"].(string); ok {
		claims.Name = s
	}
	if b, ok := private["email_verified"].(bool); ok {
		claims.EmailVerified = b
	}
	return claims, nil
}
