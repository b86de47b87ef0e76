package oidc

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// KeySource returns the verification keys published at a JWKS URL.
type KeySource interface {
	GetJWKS(ctx context.Context, jwksURL string) (jwk.Set, error)
}

type cachedSet struct {
	keys    jwk.Set
	expires time.Time
}

// JWKSManager fetches key sets and caches them per URL.
type JWKSManager struct {
	mu     sync.Mutex
	cache  map[string]cachedSet
	ttl    time.Duration
	client *http.Client
	now    func() time.Time
}

// NewJWKSManager creates a new JWKS manager caching sets for an hour.
func NewJWKSManager() *JWKSManager {
	return &JWKSManager{
		cache:  make(map[string]cachedSet),
		ttl:    time.Hour,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// GetJWKS retrieves JWKS for a given JWKS URL, with caching
func (m *JWKSManager) GetJWKS(ctx context.Context, jwksURL string) (jwk.Set, error) {
	m.mu.Lock()
	c, ok := m.cache[jwksURL]
	m.mu.Unlock()
	if ok && m.now().Before(c.expires) {
		return c.keys, nil
	}

	keys, err := jwk.Fetch(ctx, jwksURL, jwk.WithHTTPClient(m.client))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}

	m.mu.Lock()
	m.cache[jwksURL] = cachedSet{keys: keys, expires: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return keys, nil
}
