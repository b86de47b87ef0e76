package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// OIDCConfig describes an identity provider the API trusts.
type OIDCConfig struct {
	ID           uuid.UUID `json:"id"`
	Provider     string    `json:"provider"`
	Issuer       string    `json:"issuer"`
	Domain       *string   `json:"domain,omitempty"` // hosted login domain, when it differs from the issuer
	ClientID     string    `json:"client_id"`
	ClientSecret *string   `json:"-"`
	RedirectURI  string    `json:"redirect_uri"`
	JWKSUrl      *string   `json:"jwks_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IssuerURL returns the issuer without a trailing slash.
func (c *OIDCConfig) IssuerURL() string {
	return strings.TrimRight(c.Issuer, "/")
}

// DefaultJWKSURL is the conventional key set location under the issuer.
func (c *OIDCConfig) DefaultJWKSURL() string {
	return c.IssuerURL() + "/.well-known/jwks.json"
}

// JWTClaims are the identity claims read from a verified bearer token.
type JWTClaims struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Exp           int64  `json:"exp"`
	Iat           int64  `json:"iat"`
	Iss           string `json:"iss"`
	Aud           string `json:"aud"`
}
