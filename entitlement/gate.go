// Package entitlement merges the free-use counter and the subscription flag
// into a single allow/deny decision per subject.
package entitlement

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/adityadaniel/flora-friend/app/models"
)

// Store persists entitlement state. Implementations must make writes durable
// before returning. ChargeFreeUse must be atomic across processes: it charges
// one use only while the stored counter is below maxFreeUses and returns the
// stored counter afterwards.
type Store interface {
	LoadState(ctx context.Context, subject string) (models.EntitlementState, error)
	ChargeFreeUse(ctx context.Context, subject string, maxFreeUses int) (consumed int, charged bool, err error)
	SaveFreeUses(ctx context.Context, subject string, consumed int) error
	SaveSubscription(ctx context.Context, subject string, active bool) error
}

// StatusProvider answers whether a subject currently holds an active
// subscription with the payments provider.
type StatusProvider interface {
	EntitlementStatus(ctx context.Context, subject string) (bool, error)
}

var ErrNoProvider = errors.New("entitlement: no status provider configured")

// Gate holds the entitlement state of one subject as last read from the
// Store. CanProceed never leaves the process; Consume charges through the
// Store and the subscription setters write through to it.
type Gate struct {
	subject     string
	maxFreeUses int
	store       Store
	provider    StatusProvider

	mu    sync.Mutex
	state models.EntitlementState
}

// NewGate builds a gate around an already loaded state.
func NewGate(subject string, maxFreeUses int, state models.EntitlementState, store Store, provider StatusProvider) *Gate {
	if maxFreeUses < 0 {
		maxFreeUses = 0
	}
	if state.FreeUsesConsumed < 0 {
		state.FreeUsesConsumed = 0
	}
	return &Gate{
		subject:     subject,
		maxFreeUses: maxFreeUses,
		store:       store,
		provider:    provider,
		state:       state,
	}
}

func (g *Gate) Subject() string { return g.subject }

func (g *Gate) MaxFreeUses() int { return g.maxFreeUses }

// CanProceed reports hasSubscription || remainingFreeUses > 0.
func (g *Gate) CanProceed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.CanProceed(g.maxFreeUses)
}

func (g *Gate) RemainingFreeUses() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.RemainingFreeUses(g.maxFreeUses)
}

func (g *Gate) State() models.EntitlementState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Consume charges one free use when the subject is not subscribed and has
// uses left. It reports whether a use was charged. The stored counter is
// adopted after the charge, so a use charged by another process counts here
// too. A failed durable write is logged; the in-memory counter still advances.
func (g *Gate) Consume(ctx context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state.HasSubscription || g.state.RemainingFreeUses(g.maxFreeUses) == 0 {
		return false
	}
	if g.store == nil {
		g.state.FreeUsesConsumed++
		return true
	}

	consumed, charged, err := g.store.ChargeFreeUse(ctx, g.subject, g.maxFreeUses)
	if err != nil {
		g.state.FreeUsesConsumed++
		log.Printf("entitlement: charge free use failed subject=%s consumed=%d err=%v", g.subject, g.state.FreeUsesConsumed, err)
		return true
	}
	if consumed > g.state.FreeUsesConsumed {
		g.state.FreeUsesConsumed = consumed
	}
	return charged
}

// adopt replaces the cached state with what the Store holds. The counter
// never moves backwards here, so a use charged while the Store was failing
// still counts; Reset is the only way down.
func (g *Gate) adopt(st models.EntitlementState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st.FreeUsesConsumed < g.state.FreeUsesConsumed {
		st.FreeUsesConsumed = g.state.FreeUsesConsumed
	}
	g.state = st
}

// Reset clears the free-use counter. Not reachable from the public API.
func (g *Gate) Reset(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state.FreeUsesConsumed = 0
	if g.store != nil {
		if err := g.store.SaveFreeUses(ctx, g.subject, 0); err != nil {
			log.Printf("entitlement: reset free uses failed subject=%s err=%v", g.subject, err)
		}
	}
}

// SetSubscription applies entitlement truth pushed by the provider.
func (g *Gate) SetSubscription(ctx context.Context, active bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.setSubscriptionLocked(ctx, active)
}

func (g *Gate) setSubscriptionLocked(ctx context.Context, active bool) {
	changed := g.state.HasSubscription != active
	g.state.HasSubscription = active
	if !changed || g.store == nil {
		return
	}
	if err := g.store.SaveSubscription(ctx, g.subject, active); err != nil {
		log.Printf("entitlement: save subscription failed subject=%s active=%t err=%v", g.subject, active, err)
	}
}

// RefreshSubscriptionStatus asks the provider for the latest truth. On error
// the cached value is left as it was.
func (g *Gate) RefreshSubscriptionStatus(ctx context.Context) error {
	if g.provider == nil {
		return ErrNoProvider
	}
	active, err := g.provider.EntitlementStatus(ctx, g.subject)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.setSubscriptionLocked(ctx, active)
	return nil
}

// Manager hands out one Gate per subject. Every call rereads the Store, so
// processes sharing one database agree on the counter and the plan.
type Manager struct {
	store          Store
	provider       StatusProvider
	maxFreeUses    int
	refreshTimeout time.Duration

	mu    sync.Mutex
	gates map[string]*Gate
}

func NewManager(store Store, provider StatusProvider, maxFreeUses int, refreshTimeout time.Duration) *Manager {
	if refreshTimeout <= 0 {
		refreshTimeout = 10 * time.Second
	}
	return &Manager{
		store:          store,
		provider:       provider,
		maxFreeUses:    maxFreeUses,
		refreshTimeout: refreshTimeout,
		gates:          make(map[string]*Gate),
	}
}

func (m *Manager) MaxFreeUses() int { return m.maxFreeUses }

// Gate returns the gate for subject with its state reloaded from the store.
// A load failure is returned rather than defaulting to a fresh quota. New
// gates get one background subscription refresh.
func (m *Manager) Gate(ctx context.Context, subject string) (*Gate, error) {
	if subject == "" {
		return nil, errors.New("entitlement: empty subject")
	}

	var state models.EntitlementState
	if m.store != nil {
		loaded, err := m.store.LoadState(ctx, subject)
		if err != nil {
			return nil, err
		}
		state = loaded
	}

	m.mu.Lock()
	if g, ok := m.gates[subject]; ok {
		m.mu.Unlock()
		if m.store != nil {
			g.adopt(state)
		}
		return g, nil
	}
	g := NewGate(subject, m.maxFreeUses, state, m.store, m.provider)
	m.gates[subject] = g
	m.mu.Unlock()

	if m.provider != nil {
		go m.refreshInBackground(g)
	}
	return g, nil
}

// Forget drops the cached gate so the next call reloads from the store.
func (m *Manager) Forget(subject string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.gates, subject)
}

func (m *Manager) refreshInBackground(g *Gate) {
	ctx, cancel := context.WithTimeout(context.Background(), m.refreshTimeout)
	defer cancel()
	if err := g.RefreshSubscriptionStatus(ctx); err != nil {
		log.Printf("entitlement: background refresh failed subject=%s err=%v", g.subject, err)
	}
}
