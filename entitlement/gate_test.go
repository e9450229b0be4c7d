package entitlement

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/adityadaniel/flora-friend/app/models"
)

type memStore struct {
	mu        sync.Mutex
	states    map[string]models.EntitlementState
	saveErr   error
	loadErr   error
	freeSaves int
	subSaves  int
}

func newMemStore() *memStore {
	return &memStore{states: map[string]models.EntitlementState{}}
}

func (s *memStore) LoadState(_ context.Context, subject string) (models.EntitlementState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return models.EntitlementState{}, s.loadErr
	}
	return s.states[subject], nil
}

func (s *memStore) SaveFreeUses(_ context.Context, subject string, consumed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freeSaves++
	if s.saveErr != nil {
		return s.saveErr
	}
	st := s.states[subject]
	st.FreeUsesConsumed = consumed
	s.states[subject] = st
	return nil
}

func (s *memStore) ChargeFreeUse(_ context.Context, subject string, maxFreeUses int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freeSaves++
	if s.saveErr != nil {
		return 0, false, s.saveErr
	}
	st := s.states[subject]
	if st.FreeUsesConsumed >= maxFreeUses {
		return st.FreeUsesConsumed, false, nil
	}
	st.FreeUsesConsumed++
	s.states[subject] = st
	return st.FreeUsesConsumed, true, nil
}

func (s *memStore) set(subject string, st models.EntitlementState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[subject] = st
}

func (s *memStore) SaveSubscription(_ context.Context, subject string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subSaves++
	if s.saveErr != nil {
		return s.saveErr
	}
	st := s.states[subject]
	st.HasSubscription = active
	s.states[subject] = st
	return nil
}

type fakeProvider struct {
	active bool
	err    error
}

func (p *fakeProvider) EntitlementStatus(context.Context, string) (bool, error) {
	return p.active, p.err
}

func TestCanProceedWhenQuotaExhausted(t *testing.T) {
	for consumed := 1; consumed <= 3; consumed++ {
		g := NewGate("u", 1, models.EntitlementState{FreeUsesConsumed: consumed}, nil, nil)
		if g.CanProceed() {
			t.Fatalf("CanProceed with consumed=%d and no subscription should be false", consumed)
		}
		if g.RemainingFreeUses() != 0 {
			t.Fatalf("RemainingFreeUses = %d, want 0", g.RemainingFreeUses())
		}
	}
}

func TestCanProceedWhenSubscribed(t *testing.T) {
	for _, consumed := range []int{0, 1, 50} {
		g := NewGate("u", 1, models.EntitlementState{FreeUsesConsumed: consumed, HasSubscription: true}, nil, nil)
		if !g.CanProceed() {
			t.Fatalf("CanProceed with subscription and consumed=%d should be true", consumed)
		}
	}
}

func TestConsumeIncrementsByOneAndPersists(t *testing.T) {
	store := newMemStore()
	g := NewGate("u", 3, models.EntitlementState{}, store, nil)

	if !g.Consume(context.Background()) {
		t.Fatalf("Consume should charge a free use")
	}
	if got := g.State().FreeUsesConsumed; got != 1 {
		t.Fatalf("FreeUsesConsumed = %d, want 1", got)
	}
	if got := store.states["u"].FreeUsesConsumed; got != 1 {
		t.Fatalf("persisted FreeUsesConsumed = %d, want 1", got)
	}
	if g.RemainingFreeUses() != 2 {
		t.Fatalf("RemainingFreeUses = %d, want 2", g.RemainingFreeUses())
	}
}

func TestConsumeNoopWhenSubscribedOrExhausted(t *testing.T) {
	store := newMemStore()
	subscribed := NewGate("a", 1, models.EntitlementState{HasSubscription: true}, store, nil)
	if subscribed.Consume(context.Background()) {
		t.Fatalf("Consume should not charge a subscribed subject")
	}
	if subscribed.State().FreeUsesConsumed != 0 {
		t.Fatalf("subscribed counter changed: %+v", subscribed.State())
	}

	exhausted := NewGate("b", 1, models.EntitlementState{FreeUsesConsumed: 1}, store, nil)
	if exhausted.Consume(context.Background()) {
		t.Fatalf("Consume should not charge past the limit")
	}
	if exhausted.State().FreeUsesConsumed != 1 {
		t.Fatalf("exhausted counter changed: %+v", exhausted.State())
	}
	if store.freeSaves != 0 {
		t.Fatalf("no writes expected, got %d", store.freeSaves)
	}
}

func TestConsumeKeepsInMemoryStateWhenSaveFails(t *testing.T) {
	store := newMemStore()
	store.saveErr = errors.New("disk full")
	g := NewGate("u", 1, models.EntitlementState{}, store, nil)

	if !g.Consume(context.Background()) {
		t.Fatalf("Consume should still charge when the write fails")
	}
	if g.CanProceed() {
		t.Fatalf("in-memory state should be authoritative after a failed write")
	}
}

func TestResetClearsCounter(t *testing.T) {
	store := newMemStore()
	g := NewGate("u", 1, models.EntitlementState{FreeUsesConsumed: 1}, store, nil)
	g.Reset(context.Background())
	if !g.CanProceed() || store.states["u"].FreeUsesConsumed != 0 {
		t.Fatalf("Reset did not clear counter: %+v / %+v", g.State(), store.states["u"])
	}
}

func TestRefreshSubscriptionStatus(t *testing.T) {
	t.Run("success overwrites", func(t *testing.T) {
		store := newMemStore()
		provider := &fakeProvider{active: true}
		g := NewGate("u", 1, models.EntitlementState{FreeUsesConsumed: 1}, store, provider)
		if err := g.RefreshSubscriptionStatus(context.Background()); err != nil {
			t.Fatalf("refresh error = %v", err)
		}
		if !g.State().HasSubscription || !store.states["u"].HasSubscription {
			t.Fatalf("subscription not applied")
		}

		provider.active = false
		if err := g.RefreshSubscriptionStatus(context.Background()); err != nil {
			t.Fatalf("refresh error = %v", err)
		}
		if g.State().HasSubscription {
			t.Fatalf("lapsed subscription should be applied")
		}
	})

	t.Run("failure keeps cached value", func(t *testing.T) {
		provider := &fakeProvider{err: errors.New("network down")}
		g := NewGate("u", 1, models.EntitlementState{HasSubscription: true}, nil, provider)
		if err := g.RefreshSubscriptionStatus(context.Background()); err == nil {
			t.Fatalf("expected provider error")
		}
		if !g.State().HasSubscription {
			t.Fatalf("cached subscription should survive a failed refresh")
		}
	})

	t.Run("no provider", func(t *testing.T) {
		g := NewGate("u", 1, models.EntitlementState{}, nil, nil)
		if err := g.RefreshSubscriptionStatus(context.Background()); !errors.Is(err, ErrNoProvider) {
			t.Fatalf("expected ErrNoProvider, got %v", err)
		}
	})
}

func TestFreeTrialThenSubscribe(t *testing.T) {
	ctx := context.Background()
	g := NewGate("u", 1, models.EntitlementState{}, newMemStore(), nil)

	if !g.CanProceed() {
		t.Fatalf("fresh state should allow one identification")
	}
	g.Consume(ctx)
	if g.RemainingFreeUses() != 0 {
		t.Fatalf("RemainingFreeUses = %d, want 0", g.RemainingFreeUses())
	}
	if g.CanProceed() {
		t.Fatalf("exhausted free state should deny")
	}
	g.SetSubscription(ctx, true)
	if !g.CanProceed() {
		t.Fatalf("subscription should allow")
	}
}

func TestManagerLoadsAndCachesGates(t *testing.T) {
	store := newMemStore()
	store.states["u"] = models.EntitlementState{FreeUsesConsumed: 1}
	m := NewManager(store, nil, 1, 0)

	g1, err := m.Gate(context.Background(), "u")
	if err != nil {
		t.Fatalf("Gate error = %v", err)
	}
	if g1.CanProceed() {
		t.Fatalf("loaded state should be exhausted")
	}
	g2, _ := m.Gate(context.Background(), "u")
	if g1 != g2 {
		t.Fatalf("Manager should cache gates per subject")
	}

	m.Forget("u")
	g3, _ := m.Gate(context.Background(), "u")
	if g3 == g1 {
		t.Fatalf("Forget should drop the cached gate")
	}
}

func TestManagerRereadsStore(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	m := NewManager(store, nil, 1, 0)

	g, err := m.Gate(ctx, "u")
	if err != nil || !g.CanProceed() {
		t.Fatalf("fresh gate should allow: err=%v", err)
	}

	// Another process charges the only free use.
	store.set("u", models.EntitlementState{FreeUsesConsumed: 1})
	g, _ = m.Gate(ctx, "u")
	if g.CanProceed() {
		t.Fatalf("gate should see the use charged elsewhere: %+v", g.State())
	}

	store.set("u", models.EntitlementState{FreeUsesConsumed: 1, HasSubscription: true})
	g, _ = m.Gate(ctx, "u")
	if !g.CanProceed() {
		t.Fatalf("gate should see the subscription granted elsewhere")
	}

	store.set("u", models.EntitlementState{FreeUsesConsumed: 1})
	g, _ = m.Gate(ctx, "u")
	if g.CanProceed() {
		t.Fatalf("gate should see the subscription revoked elsewhere")
	}
}

func TestConsumeAdoptsStoredCounter(t *testing.T) {
	store := newMemStore()
	g := NewGate("u", 2, models.EntitlementState{}, store, nil)

	// The stored counter moved on without this gate noticing.
	store.set("u", models.EntitlementState{FreeUsesConsumed: 1})
	if !g.Consume(context.Background()) {
		t.Fatalf("Consume should charge the last use")
	}
	if got := g.State().FreeUsesConsumed; got != 2 {
		t.Fatalf("FreeUsesConsumed = %d, want 2", got)
	}

	store.set("u", models.EntitlementState{FreeUsesConsumed: 2})
	stale := NewGate("u", 2, models.EntitlementState{}, store, nil)
	if stale.Consume(context.Background()) {
		t.Fatalf("Consume should not charge once the stored counter is at the limit")
	}
	if stale.CanProceed() {
		t.Fatalf("gate should adopt the stored counter after a refused charge")
	}
}

func TestManagerPropagatesLoadError(t *testing.T) {
	store := newMemStore()
	store.loadErr = errors.New("db down")
	m := NewManager(store, nil, 1, 0)
	if _, err := m.Gate(context.Background(), "u"); err == nil {
		t.Fatalf("expected load error")
	}
	if _, err := m.Gate(context.Background(), ""); err == nil {
		t.Fatalf("expected empty subject error")
	}
}
