// Package app provides user persistence helpers for authenticated requests.
package app

import (
	"context"

	"github.com/adityadaniel/flora-friend/auth"
)

// UpsertUserFromClaims creates a user row if it does not already exist and
// refreshes its last login and profile.
func UpsertUserFromClaims(ctx context.Context, claims *auth.Claims) error {
	if db == nil {
		return nil
	}
	if claims == nil || claims.Subject == "" {
		return nil
	}
	return db.UpsertUser(ctx, claims.Subject, claims.Email, claims.Name)
}
