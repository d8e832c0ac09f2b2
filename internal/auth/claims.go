// Package auth verifies bearer tokens issued by the identity provider.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds signer verification parameters.
type Config struct {
	Secret string
	Issuer string
}

// Claims represents the payload extracted from a JWT. Subject is the user id.
type Claims struct {
	Subject   string
	Scopes    map[string]struct{}
	ExpiresAt time.Time
}

var (
	// ErrMissingToken is returned when the Authorization header is absent.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken wraps parsing and validation errors.
	ErrInvalidToken = errors.New("invalid bearer token")
)

// ParseClaims validates an HS256 JWT and returns normalized claims.
func ParseClaims(token string, cfg Config) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return &Claims{
		Subject:   subject,
		Scopes:    normalizeScopes(claims["scopes"]),
		ExpiresAt: exp.Time,
	}, nil
}

func normalizeScopes(value any) map[string]struct{} {
	out := make(map[string]struct{})
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out[s] = struct{}{}
		}
	}
	switch v := value.(type) {
	case []any:
		for _, item := range v {
			if str, ok := item.(string); ok {
				add(str)
			}
		}
	case []string:
		for _, str := range v {
			add(str)
		}
	case string:
		for _, str := range strings.Fields(v) {
			add(str)
		}
	}
	return out
}

// HasScope reports whether the claim set includes the provided scope.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	_, ok := c.Scopes[scope]
	return ok
}

// HasAnyScope reports whether the claim set includes at least one of scopes.
func (c *Claims) HasAnyScope(scopes ...string) bool {
	for _, s := range scopes {
		if c.HasScope(s) {
			return true
		}
	}
	return false
}

type contextKey string

const claimsKey contextKey = "studystreak-auth-claims"

// WithClaims stores the claims in the request context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// FromContext retrieves claims stored by WithClaims.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok && claims != nil
}
