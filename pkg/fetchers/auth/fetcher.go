// Package auth wraps a querycache.FetchFn so it only runs for a caller
// holding a valid bearer token, for backends where the fetch itself needs
// an authenticated identity rather than just a connection.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/resyncio/querysync/pkg/querycache"
)

// Sentinel errors surfaced by token validation.
var (
	ErrInvalidToken        = errors.New("auth: invalid token")
	ErrExpiredToken        = errors.New("auth: token has expired")
	ErrMissingToken        = errors.New("auth: FetchContext.Meta carries no bearer token")
	ErrInvalidSecretLength = errors.New("auth: signing key must be at least 32 characters")
)

// Claims is the minimal claim set this package issues and validates.
type Claims struct {
	jwt.RegisteredClaims
	Subject string `json:"sub"`
}

// Config configures token issuance.
type Config struct {
	SigningKey string
	Issuer     string
	TokenTTL   time.Duration
}

// Issuer mints bearer tokens for a subject.
type Issuer struct {
	cfg Config
}

// NewIssuer validates cfg and returns an Issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.SigningKey) < 32 {
		return nil, ErrInvalidSecretLength
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "querysync"
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 15 * time.Minute
	}
	return &Issuer{cfg: cfg}, nil
}

// IssueToken mints a signed token for subject.
func (i *Issuer) IssueToken(subject string) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.TokenTTL)),
		},
		Subject: subject,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(i.cfg.SigningKey))
}

// validate parses and checks a token string, returning its claims.
func (i *Issuer) validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(i.cfg.SigningKey), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Meta is the FetchContext.Meta shape the wrapped fetch function expects:
// a bearer token plus whatever payload the inner fetch needs.
type Meta struct {
	Token   string
	Payload any
}

// Gate wraps inner so it only executes once Meta.Token has been validated;
// the inner FetchFn receives a FetchContext whose Meta is Meta.Payload, so
// it never has to know about tokens at all.
func (i *Issuer) Gate(inner querycache.FetchFn) querycache.FetchFn {
	return func(ctx context.Context, fc querycache.FetchContext) (any, error) {
		meta, ok := fc.Meta.(Meta)
		if !ok {
			return nil, ErrMissingToken
		}
		if _, err := i.validate(meta.Token); err != nil {
			return nil, err
		}
		return inner(ctx, querycache.FetchContext{Key: fc.Key, Meta: meta.Payload})
	}
}
