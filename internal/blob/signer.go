package blob

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// DefaultURLTTL is how long a signed media link stays valid.
const DefaultURLTTL = time.Hour

const (
	claimBucket = "bkt"
	claimPath   = "obj"
	tokenIssuer = "okhabit-media"
)

// ErrInvalidToken is returned for expired, tampered or mismatched tokens.
var ErrInvalidToken = errors.New("invalid media token")

// Signer issues HS256 tokens that grant read access to one object.
type Signer struct {
	key     []byte
	ttl     time.Duration
	baseURL string
	now     func() time.Time
}

// NewSigner creates a signer. baseURL is the public API origin used to build links.
func NewSigner(key []byte, ttl time.Duration, baseURL string) (*Signer, error) {
	if len(key) < 32 {
		return nil, fmt.Errorf("media signing key must be at least 32 bytes")
	}
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	return &Signer{key: key, ttl: ttl, baseURL: strings.TrimRight(baseURL, "/"), now: time.Now}, nil
}

// Token signs access to bucket/path until the TTL elapses.
func (s *Signer) Token(bucket, path string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	tok, err := jwt.NewBuilder().
		Issuer(tokenIssuer).
		IssuedAt(now).
		Expiration(exp).
		Claim(claimBucket, bucket).
		Claim(claimPath, path).
		Build()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to build media token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, s.key))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign media token: %w", err)
	}
	return string(signed), exp, nil
}

// URL returns a signed download link for bucket/path.
func (s *Signer) URL(bucket, path string) (string, error) {
	token, _, err := s.Token(bucket, path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/media/%s/%s?token=%s", s.baseURL, url.PathEscape(bucket), escapePath(path), url.QueryEscape(token)), nil
}

// Verify checks that token grants access to bucket/path now.
func (s *Signer) Verify(token, bucket, path string) error {
	tok, err := jwt.Parse([]byte(token),
		jwt.WithKey(jwa.HS256, s.key),
		jwt.WithValidate(true),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithClock(jwt.ClockFunc(s.now)),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	b, _ := tok.PrivateClaims()[claimBucket].(string)
	p, _ := tok.PrivateClaims()[claimPath].(string)
	if b != bucket || p != path {
		return fmt.Errorf("%w: token is for a different object", ErrInvalidToken)
	}
	return nil
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
