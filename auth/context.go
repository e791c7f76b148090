// Package auth provides request context helpers for verified Auth0 claims.
package auth

import (
	"context"
	"slices"
	"strings"
	"time"
)

type ctxKey int

const claimsKey ctxKey = iota

// localIssuer marks the synthetic claims issued when auth is disabled.
const localIssuer = "local"

// Claims contains the verified Auth0 token details we care about.
type Claims struct {
	Subject   string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	Scope     string
	// Permissions holds Auth0 RBAC grants. Operators usually carry
	// admin:reviews here instead of in scope.
	Permissions []string
	Raw         map[string]any
}

// Grants reports whether the token carries scope either as an OAuth scope or
// as an RBAC permission. Local development claims grant everything.
func (c *Claims) Grants(scope string) bool {
	if c == nil || scope == "" {
		return false
	}
	if c.Issuer == localIssuer {
		return true
	}
	return slices.Contains(strings.Fields(c.Scope), scope) || slices.Contains(c.Permissions, scope)
}

// WithClaims stores auth claims in a context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns claims from a context.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}

// SubjectFromContext returns the verified user id, or false when the request
// carries no subject.
func SubjectFromContext(ctx context.Context) (string, bool) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}
