// Package auth provides request context helpers for verified caller identity.
package auth

import (
	"context"
	"strings"
	"time"
)

type ctxKey int

const claimsKey ctxKey = iota

// devicePrefix marks subjects derived from an X-Device-ID header rather than
// a verified token.
const devicePrefix = "device:"

// Claims is the caller identity attached to a request. Device callers only
// carry Subject and Issuer.
type Claims struct {
	Subject   string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	Scope     string
	Email     string
	Name      string
	Raw       map[string]any
}

// IsDevice reports whether the subject came from a device id.
func (c *Claims) IsDevice() bool {
	return strings.HasPrefix(c.Subject, devicePrefix)
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

// SubjectFromContext returns the non-empty subject of the caller.
func SubjectFromContext(ctx context.Context) (string, bool) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok || claims == nil || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}
