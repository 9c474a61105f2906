package jwtinfra

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/go-futureme/internal/config"
	"github.com/go-futureme/internal/pkg/id"
	"github.com/golang-jwt/jwt/v5"
)

const issuer = "futureme"

// Claims binds an access grant to the lock epoch it was issued in. A grant
// from an earlier epoch is stale once the app has re-locked.
type Claims struct {
	Epoch uint64 `json:"epoch"`
	jwt.RegisteredClaims
}

// Provider signs and verifies HS256 access grants.
type Provider struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewProvider uses cfg.GrantSecret, or a random per-process secret when it is
// empty, which invalidates all grants on restart.
func NewProvider(cfg *config.Config) (*Provider, error) {
	secret := []byte(cfg.GrantSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate grant secret: %w", err)
		}
	}
	expiry := cfg.GrantTTL
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &Provider{secret: secret, expiry: expiry, now: time.Now}, nil
}

func (p *Provider) Sign(epoch uint64) (string, time.Time, error) {
	now := p.now()
	exp := now.Add(p.expiry)
	claims := Claims{
		Epoch: epoch,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id.New(),
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign grant: %w", err)
	}
	return signed, exp, nil
}

func (p *Provider) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(p.now))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
