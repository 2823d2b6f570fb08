// Package session resolves a raw session credential into a verified caller
// identity.
package session

import (
	"context"
	"errors"
	"strings"

	"github.com/greenway-eco/backend/internal/identity"
	"github.com/greenway-eco/backend/internal/models"
)

// CookieName is the cookie carrying the session token for browser clients.
const CookieName = "greenway_session"

// ErrUnauthenticated is returned for absent, invalid, expired or stale credentials.
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is the resolved caller.
type Identity struct {
	UserID string
	Email  string
	Role   models.Role
}

// Verifier checks a token and returns its claims.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) (*identity.Claims, error)
}

// Resolver turns credentials into identities. The role always comes from the
// verified token, never from client state.
type Resolver struct {
	verifier Verifier
}

// NewResolver creates a resolver.
func NewResolver(verifier Verifier) *Resolver {
	return &Resolver{verifier: verifier}
}

// Resolve verifies raw and returns the caller. Tokens without a role claim
// resolve to the user role.
func (r *Resolver) Resolve(ctx context.Context, raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, ErrUnauthenticated
	}
	claims, err := r.verifier.VerifyToken(ctx, raw)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidToken) || errors.Is(err, identity.ErrStaleClaims) {
			return Identity{}, ErrUnauthenticated
		}
		return Identity{}, err
	}
	role := models.ParseRole(claims.Role)
	if role == models.RolePerson {
		role = models.RoleUser
	}
	return Identity{UserID: claims.UserID, Email: claims.Email, Role: role}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
