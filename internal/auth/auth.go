// Package auth verifies identity tokens issued by the external identity
// provider. A token is an HS256 JWT whose subject is the stable user id.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/c-pro/geche"
	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultTokenExpiry = 12 * time.Hour
	cacheTTL           = 5 * time.Minute
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

type Config struct {
	Secret      string        `json:"secret"`
	Issuer      string        `json:"issuer"`
	TokenExpiry time.Duration `json:"tokenExpiry"`
}

func (c *Config) Validate() error {
	if c.Secret == "" {
		return errors.New("secret is required")
	}
	if c.TokenExpiry == 0 {
		c.TokenExpiry = DefaultTokenExpiry
	}
	return nil
}

type verified struct {
	userID    string
	expiresAt time.Time
}

type Verifier struct {
	Config
	cache geche.Geche[string, verified]
	now   func() time.Time
}

func NewVerifier(ctx context.Context, config Config) (*Verifier, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Verifier{
		Config: config,
		cache:  geche.NewMapTTLCache[string, verified](ctx, cacheTTL, time.Minute),
		now:    time.Now,
	}, nil
}

// Issue signs a token for userID. The identity provider does this in
// production, the function exists for tooling and tests.
func Issue(config Config, userID string, now time.Time) (string, error) {
	if err := config.Validate(); err != nil {
		return "", err
	}
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    config.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(config.TokenExpiry)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(config.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// GetUserID returns the user id carried by a valid token.
func (v *Verifier) GetUserID(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}

	now := v.now()
	if hit, err := v.cache.Get(token); err == nil {
		if now.Before(hit.expiresAt) {
			return hit.userID, nil
		}
		_ = v.cache.Del(token)
		return "", fmt.Errorf("%w: expired", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(v.Secret), nil
	}, opts...)
	if err != nil {
		slog.Debug("token rejected", "error", err)
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	v.cache.Set(token, verified{userID: claims.Subject, expiresAt: claims.ExpiresAt.Time})
	return claims.Subject, nil
}
