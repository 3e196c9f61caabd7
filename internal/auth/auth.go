// Package auth verifies bearer tokens issued by the identity service and
// turns them into domain actors.
package auth

import (
	"context"
	"crypto/rsa"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
)

type Claims struct {
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// subject prefers the registered sub claim and falls back to user_id.
func (c Claims) subject() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.UserID
}

type Verifier struct {
	key    *rsa.PublicKey
	parser *jwt.Parser
}

func NewVerifier(publicKeyPEM []byte) (*Verifier, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, errors.Wrap(err, "parse jwt public key")
	}
	return &Verifier{
		key:    key,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithExpirationRequired()),
	}, nil
}

// Verify checks the signature and expiry of token and returns its actor.
func (v *Verifier) Verify(token string) (domain.Actor, error) {
	var claims Claims
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return v.key, nil
	})
	if err != nil {
		return domain.Actor{}, errors.Mark(errors.Wrap(err, "verify token"), domain.ErrUnauthenticated)
	}
	id, err := uuid.Parse(claims.subject())
	if err != nil || id == uuid.Nil {
		return domain.Actor{}, errors.Wrap(domain.ErrUnauthenticated, "token subject is not a user id")
	}
	role := domain.Role(strings.ToLower(claims.Role))
	if role == "" {
		role = domain.RoleUser
	}
	if !role.Valid() {
		return domain.Actor{}, errors.Wrapf(domain.ErrUnauthenticated, "unknown role %q", claims.Role)
	}
	return domain.Actor{UserID: id, Role: role}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

type ctxKey struct{}

func WithActor(ctx context.Context, a domain.Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

func ActorFrom(ctx context.Context) (domain.Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(domain.Actor)
	return a, ok
}
