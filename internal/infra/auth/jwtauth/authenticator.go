package jwtauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

// Authenticator validates HS256 bearer tokens and maps the sub claim to the
// caller id used by the role sets.
type Authenticator struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

type Config struct {
	Secret   string
	Issuer   string
	Audience string
	Leeway   time.Duration
	Now      func() time.Time
}

func New(cfg Config) (*Authenticator, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if len(secret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Authenticator{
		secret:   []byte(secret),
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
		leeway:   cfg.Leeway,
		now:      cfg.Now,
	}, nil
}

func (a *Authenticator) parser() *jwt.Parser {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.leeway),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}
	return jwt.NewParser(opts...)
}

func (a *Authenticator) Authenticate(_ context.Context, bearerToken string) (domain.Principal, error) {
	if a == nil {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	tokenString := strings.TrimSpace(bearerToken)
	if tokenString == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	claims := jwt.MapClaims{}
	_, err := a.parser().ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	subject, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	return domain.Principal{Subject: subject, RawClaims: claims}, nil
}

// Issue mints a token for subject. Used by tests and local tooling.
func (a *Authenticator) Issue(subject string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if a.issuer != "" {
		claims.Issuer = a.issuer
	}
	if a.audience != "" {
		claims.Audience = jwt.ClaimStrings{a.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

var _ domain.Authenticator = (*Authenticator)(nil)
