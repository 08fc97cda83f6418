// Package identity turns an HTTP request into a store.Identity: a signed
// bearer token for authenticated users, or an anonymous browser token.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/JakeFAU/learner-progress/internal/store"
)

// AnonymousTokenHeader carries the anonymous browser token.
const AnonymousTokenHeader = "X-Anonymous-Token"

// ErrUnauthenticated is returned when a request carries no usable identity.
var ErrUnauthenticated = errors.New("authentication required")

// Resolver extracts the caller's identity from a request.
type Resolver interface {
	Resolve(r *http.Request) (store.Identity, error)
}

// Claims are the JWT claims issued to learners. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
}

// HeaderResolver resolves a bearer token when an Authorization header is
// sent and the anonymous token header otherwise. A bearer token that fails
// verification is rejected rather than downgraded to the anonymous identity.
type HeaderResolver struct {
	secret []byte
	leeway time.Duration
}

// NewHeaderResolver builds a resolver. An empty secret disables bearer
// tokens entirely.
func NewHeaderResolver(secret []byte, leeway time.Duration) *HeaderResolver {
	return &HeaderResolver{secret: secret, leeway: leeway}
}

// Resolve implements Resolver.
func (h *HeaderResolver) Resolve(r *http.Request) (store.Identity, error) {
	if authz := strings.TrimSpace(r.Header.Get("Authorization")); authz != "" {
		userID, err := h.bearerSubject(authz)
		if err != nil {
			return store.Identity{}, err
		}
		return store.UserIdentity(userID)
	}
	if raw := strings.TrimSpace(r.Header.Get(AnonymousTokenHeader)); raw != "" {
		if id, err := store.ParseAnonymousIdentity(raw); err == nil {
			return id, nil
		}
	}
	return store.Identity{}, ErrUnauthenticated
}

func (h *HeaderResolver) bearerSubject(authz string) (string, error) {
	if len(h.secret) == 0 {
		return "", fmt.Errorf("%w: bearer tokens are not accepted", ErrUnauthenticated)
	}
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", fmt.Errorf("%w: unsupported authorization scheme", ErrUnauthenticated)
	}
	claims, err := h.Parse(strings.TrimSpace(parts[1]))
	if err != nil {
		return "", fmt.Errorf("%w: invalid bearer token", ErrUnauthenticated)
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", fmt.Errorf("%w: bearer token has no subject", ErrUnauthenticated)
	}
	return subject, nil
}

// Parse verifies an HS256 token and returns its claims.
func (h *HeaderResolver) Parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return h.secret, nil
	}, jwt.WithLeeway(h.leeway), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Sign issues a token for userID. Used by tooling and tests.
func Sign(secret []byte, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

type ctxKeyIdentity struct{}

// WithIdentity stores id on ctx.
func WithIdentity(ctx context.Context, id store.Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity{}, id)
}

// FromContext returns the identity stored by Middleware.
func FromContext(ctx context.Context) (store.Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity{}).(store.Identity)
	return id, ok && !id.IsZero()
}

// Middleware resolves the identity once per request; unauthenticated
// requests are handed to onError.
func Middleware(resolver Resolver, onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := resolver.Resolve(r)
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
