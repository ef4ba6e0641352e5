// Package auth is the access guard: it resolves a request's bearer token into
// a local user record and nothing more. Identity issuance lives with the
// external auth collaborator; this package only verifies and maps.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/peerdesk/peerdesk/internal/apperr"
	"github.com/peerdesk/peerdesk/internal/user"
)

type ctxKey struct{}

// Guard verifies HS256 bearer tokens from the auth collaborator and loads the
// matching local user. It carries no state beyond its dependencies.
type Guard struct {
	secret []byte
	users  user.Store
}

func NewGuard(jwtSecret string, users user.Store) (*Guard, error) {
	if strings.TrimSpace(jwtSecret) == "" {
		return nil, errors.New("auth jwt secret is required")
	}
	return &Guard{secret: []byte(jwtSecret), users: users}, nil
}

// Authenticate resolves the Authorization header into a local user.
func (g *Guard) Authenticate(ctx context.Context, authorization string) (*user.User, error) {
	externalID, err := g.verify(authorization)
	if err != nil {
		return nil, err
	}
	u, err := g.users.GetByExternalID(ctx, externalID)
	if errors.Is(err, user.ErrNotFound) {
		return nil, apperr.New(apperr.KindUnauthorized, "user_not_found", "user not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "store_error", "could not load user", err)
	}
	return u, nil
}

// ExternalIdentity verifies the token without requiring a local record; the
// user sync endpoint uses it to bootstrap first-time users.
func (g *Guard) ExternalIdentity(authorization string) (string, error) {
	return g.verify(authorization)
}

func (g *Guard) verify(authorization string) (string, error) {
	raw := strings.TrimSpace(authorization)
	if raw == "" {
		return "", apperr.New(apperr.KindUnauthenticated, "missing_token", "authorization header is required")
	}
	if after, ok := strings.CutPrefix(raw, "Bearer "); ok {
		raw = strings.TrimSpace(after)
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return g.secret, nil
	})
	if err != nil || !token.Valid {
		return "", apperr.Wrap(apperr.KindUnauthenticated, "invalid_token", "invalid or expired token", err)
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return "", apperr.New(apperr.KindUnauthenticated, "invalid_token", "token has no subject")
	}
	return sub, nil
}

// Middleware rejects unauthenticated requests and attaches the resolved user
// to the request context.
func (g *Guard) Middleware(onError func(http.ResponseWriter, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, err := g.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				onError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// WithUser returns ctx carrying the authenticated user.
func WithUser(ctx context.Context, u *user.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFrom extracts the authenticated user from ctx.
func UserFrom(ctx context.Context) (*user.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*user.User)
	return u, ok
}
