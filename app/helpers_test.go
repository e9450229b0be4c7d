package app

import (
	"context"
	"runtime"
	"testing"

	"github.com/adityadaniel/flora-friend/auth"
)

func TestParsePositiveInt(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		got, err := parsePositiveInt("42")
		if err != nil || got != 42 {
			t.Fatalf("parsePositiveInt valid = (%d,%v), want (42,nil)", got, err)
		}
	})
	t.Run("invalid", func(t *testing.T) {
		if _, err := parsePositiveInt("not-an-int"); err == nil {
			t.Fatalf("parsePositiveInt should error for invalid input")
		}
	})
}

func TestGetWorkerCount(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv("WORKERS", "")
		if got, want := GetWorkerCount(), runtime.NumCPU(); got != want {
			t.Fatalf("GetWorkerCount default = %d, want %d", got, want)
		}
	})

	t.Run("override", func(t *testing.T) {
		t.Setenv("WORKERS", "5")
		if got := GetWorkerCount(); got != 5 {
			t.Fatalf("GetWorkerCount override = %d, want 5", got)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		t.Setenv("WORKERS", "not-a-number")
		if got, want := GetWorkerCount(), runtime.NumCPU(); got != want {
			t.Fatalf("GetWorkerCount invalid fallback = %d, want %d", got, want)
		}
	})
}

func TestUpsertUserFromClaims(t *testing.T) {
	setupApp(t, 1)
	ctx := context.Background()

	claims := &auth.Claims{Subject: "auth0|fern", Email: "fern@example.test", Name: "Fern"}
	if err := UpsertUserFromClaims(ctx, claims); err != nil {
		t.Fatalf("UpsertUserFromClaims error = %v", err)
	}
	// A later login without profile claims keeps the stored ones.
	if err := UpsertUserFromClaims(ctx, &auth.Claims{Subject: "auth0|fern"}); err != nil {
		t.Fatalf("second UpsertUserFromClaims error = %v", err)
	}

	user, err := db.GetUser(ctx, "auth0|fern")
	if err != nil {
		t.Fatalf("GetUser error = %v", err)
	}
	if user.Email == nil || *user.Email != "fern@example.test" || user.Name == nil || *user.Name != "Fern" {
		t.Fatalf("user = %+v", user)
	}
	if err := UpsertUserFromClaims(ctx, nil); err != nil {
		t.Fatalf("nil claims error = %v", err)
	}
}
