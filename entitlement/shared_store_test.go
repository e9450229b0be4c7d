package entitlement

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/adityadaniel/flora-friend/store"
)

// Two managers over one database stand in for the API server and the
// identify worker.
func TestManagersShareOneStore(t *testing.T) {
	ctx := context.Background()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "flora.db"))
	if err != nil {
		t.Fatalf("OpenSQLite error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	server := NewManager(s, nil, 1, 0)
	worker := NewManager(s, nil, 1, 0)

	if _, err := server.Gate(ctx, "u1"); err != nil {
		t.Fatalf("server Gate error = %v", err)
	}
	wg, err := worker.Gate(ctx, "u1")
	if err != nil {
		t.Fatalf("worker Gate error = %v", err)
	}
	if !wg.Consume(ctx) {
		t.Fatalf("worker should charge the free use")
	}

	sg, err := server.Gate(ctx, "u1")
	if err != nil {
		t.Fatalf("server Gate error = %v", err)
	}
	if sg.CanProceed() {
		t.Fatalf("server should deny after the worker used the free identification")
	}
	if sg.Consume(ctx) {
		t.Fatalf("server should not charge past the limit")
	}

	st, err := s.LoadState(ctx, "u1")
	if err != nil {
		t.Fatalf("LoadState error = %v", err)
	}
	if st.FreeUsesConsumed != 1 {
		t.Fatalf("persisted consumed = %d, want 1", st.FreeUsesConsumed)
	}

	// A plan change written by one instance reaches the other.
	if err := s.SaveSubscription(ctx, "u1", true); err != nil {
		t.Fatalf("SaveSubscription error = %v", err)
	}
	if sg, _ = server.Gate(ctx, "u1"); !sg.CanProceed() {
		t.Fatalf("server should see the subscription")
	}
	if err := s.SaveSubscription(ctx, "u1", false); err != nil {
		t.Fatalf("SaveSubscription error = %v", err)
	}
	if wg, _ = worker.Gate(ctx, "u1"); wg.CanProceed() {
		t.Fatalf("worker should see the lapsed subscription")
	}
}
