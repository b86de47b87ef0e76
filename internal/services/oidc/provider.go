package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/okhabit/okhabit/internal/models"
)

// ConfigSource loads a provider's stored configuration.
type ConfigSource interface {
	GetByProvider(ctx context.Context, provider string) (*models.OIDCConfig, error)
}

// Provider resolves the configured identity provider and its endpoints.
type Provider struct {
	source ConfigSource
	name   string
	client *http.Client
}

// NewProvider creates a provider resolver for the provider stored under name.
func NewProvider(source ConfigSource, name string) *Provider {
	return &Provider{
		source: source,
		name:   name,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Name is the provider key in oidc_config.
func (p *Provider) Name() string { return p.name }

// GetConfig retrieves the stored configuration.
func (p *Provider) GetConfig(ctx context.Context) (*models.OIDCConfig, error) {
	config, err := p.source.GetByProvider(ctx, p.name)
	if err != nil {
		return nil, fmt.Errorf("failed to get OIDC config for %s: %w", p.name, err)
	}
	return config, nil
}

// Endpoints are the OAuth2 endpoints of the provider.
type Endpoints struct {
	Authorization string
	Token         string
}

// LoginConfig contains OIDC login configuration for frontend
type LoginConfig struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	ClientID              string `json:"client_id"`
	RedirectURI           string `json:"redirect_uri"`
	Scope                 string `json:"scope"`
}

// Scope requested at login.
const Scope = "openid email profile"

// Endpoints resolves OAuth2 endpoints. A hosted-login domain wins; otherwise the
// discovery document is consulted, falling back to {issuer}/oauth2/*.
func (p *Provider) Endpoints(ctx context.Context, config *models.OIDCConfig) Endpoints {
	if config.Domain != nil && strings.TrimSpace(*config.Domain) != "" {
		base := strings.TrimRight(strings.TrimSpace(*config.Domain), "/")
		if !strings.HasPrefix(base, "https://") && !strings.HasPrefix(base, "http://") {
			base = "https://" + base
		}
		return Endpoints{Authorization: base + "/oauth2/authorize", Token: base + "/oauth2/token"}
	}

	ep := Endpoints{
		Authorization: config.IssuerURL() + "/oauth2/authorize",
		Token:         config.IssuerURL() + "/oauth2/token",
	}
	if d, err := p.discover(ctx, config.IssuerURL()); err == nil {
		if d.AuthorizationEndpoint != "" {
			ep.Authorization = d.AuthorizationEndpoint
		}
		if d.TokenEndpoint != "" {
			ep.Token = d.TokenEndpoint
		}
	}
	return ep
}

type discovery struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
}

func (p *Provider) discover(ctx context.Context, issuer string) (*discovery, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, issuer+"/.well-known/openid-configuration", nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery returned status %d", resp.StatusCode)
	}
	var d discovery
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to decode discovery document: %w", err)
	}
	return &d, nil
}

// GetLoginConfig returns the configuration needed for frontend OIDC login
func (p *Provider) GetLoginConfig(ctx context.Context) (*LoginConfig, error) {
	config, err := p.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	ep := p.Endpoints(ctx, config)
	return &LoginConfig{
		AuthorizationEndpoint: ep.Authorization,
		TokenEndpoint:         ep.Token,
		ClientID:              config.ClientID,
		RedirectURI:           config.RedirectURI,
		Scope:                 Scope,
	}, nil
}

// Client builds the OAuth2 client for the configured provider.
func (p *Provider) Client(ctx context.Context) (*Client, error) {
	config, err := p.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	return NewClient(config, p.Endpoints(ctx, config)), nil
}
