// Package signer issues short-lived write capabilities for the configured
// operator account.
package signer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"certledger/internal/certificate/ports"
	dErrors "certledger/pkg/domain-errors"
)

const defaultTTL = 2 * time.Minute

// Claims are the claims of a write capability token. The subject is the
// signing account address.
type Claims struct {
	Action string `json:"act,omitempty"`
	jwt.RegisteredClaims
}

// Provider hands out the operator signer.
type Provider struct {
	address    string
	signingKey []byte
	issuer     string
	audience   string
	ttl        time.Duration
	now        func() time.Time
}

// Option configures a Provider.
type Option func(*Provider)

// WithTTL sets how long issued tokens stay valid.
func WithTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

// NewProvider creates a provider for address. An empty address or key
// yields a provider with no session; GetSigner then fails.
func NewProvider(address, signingKey, issuer, audience string, opts ...Option) *Provider {
	p := &Provider{
		address:    strings.TrimSpace(address),
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		ttl:        defaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ ports.SignerProvider = (*Provider)(nil)

// GetSigner returns the operator signer.
func (p *Provider) GetSigner(ctx context.Context) (ports.Signer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.address == "" || len(p.signingKey) == 0 {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "no operator signer configured")
	}
	return &tokenSigner{provider: p}, nil
}

// Validate parses a token issued by this provider and returns its claims.
func (p *Provider) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return p.signingKey, nil
	},
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "signer token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid signer token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid signer token")
	}
	return claims, nil
}

type tokenSigner struct {
	provider *Provider
}

func (s *tokenSigner) Address() string {
	return s.provider.address
}

// Token mints a fresh capability token bound to the signer address.
func (s *tokenSigner) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p := s.provider
	now := p.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Action: "ledger:write",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.address,
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    p.issuer,
			Audience:  []string{p.audience},
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(p.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign capability token")
	}
	return signed, nil
}
