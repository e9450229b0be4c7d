package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v79"

	"github.com/adityadaniel/flora-friend/app/models"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]models.User
}

func newMemUsers() *memUsers { return &memUsers{users: map[string]models.User{}} }

func (m *memUsers) GetUser(_ context.Context, subject string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[subject]
	if !ok {
		return models.User{}, errors.New("not found")
	}
	return u, nil
}

func (m *memUsers) UpsertUser(_ context.Context, subject, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[subject]; !ok {
		m.users[subject] = models.User{Subject: subject, Plan: models.PlanFree}
	}
	return nil
}

func (m *memUsers) SetStripeCustomer(_ context.Context, subject, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[subject]
	u.StripeCustomerID = &customerID
	m.users[subject] = u
	return nil
}

func withCustomer(users *memUsers, subject, customerID string) {
	users.users[subject] = models.User{Subject: subject, Plan: models.PlanFree, StripeCustomerID: &customerID}
}

// fakeStripe serves just enough of the Stripe REST API for the provider.
func fakeStripe(t *testing.T, routes map[string]string) (*httptest.Server, *[]string) {
	t.Helper()
	var mu sync.Mutex
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.Path)
		mu.Unlock()
		body, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"type":"invalid_request_error","message":"no route"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func testProvider(srv *httptest.Server, users Users, frontend string) *Provider {
	backends := stripe.NewBackendsWithConfig(&stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return NewWithBackends("sk_test_123", backends, users, frontend, 5*time.Second)
}

func TestEntitlementStatus(t *testing.T) {
	cases := []struct {
		name   string
		status string
		want   bool
	}{
		{"active", "active", true},
		{"trialing", "trialing", true},
		{"canceled", "canceled", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := fakeStripe(t, map[string]string{
				"GET /v1/subscriptions": `{"object":"list","url":"/v1/subscriptions","has_more":false,"data":[{"id":"sub_1","object":"subscription","status":"` + tc.status + `"}]}`,
			})
			users := newMemUsers()
			withCustomer(users, "alice", "cus_1")

			got, err := testProvider(srv, users, "").EntitlementStatus(context.Background(), "alice")
			if err != nil {
				t.Fatalf("EntitlementStatus error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("EntitlementStatus = %t, want %t", got, tc.want)
			}
		})
	}
}

func TestEntitlementStatusWithoutCustomer(t *testing.T) {
	srv, seen := fakeStripe(t, nil)
	users := newMemUsers()
	users.users["bob"] = models.User{Subject: "bob"}

	got, err := testProvider(srv, users, "").EntitlementStatus(context.Background(), "bob")
	if err != nil || got {
		t.Fatalf("EntitlementStatus = (%t, %v), want (false, nil)", got, err)
	}
	if len(*seen) != 0 {
		t.Fatalf("no Stripe calls expected, got %v", *seen)
	}
}

func TestEntitlementStatusProviderError(t *testing.T) {
	srv, _ := fakeStripe(t, nil)
	users := newMemUsers()
	withCustomer(users, "alice", "cus_1")
	if _, err := testProvider(srv, users, "").EntitlementStatus(context.Background(), "alice"); err == nil {
		t.Fatalf("expected error from failing Stripe")
	}
}

func TestOfferingsMarksWeeklyDefault(t *testing.T) {
	srv, _ := fakeStripe(t, map[string]string{
		"GET /v1/prices": `{"object":"list","url":"/v1/prices","has_more":false,"data":[
			{"id":"price_year","object":"price","unit_amount":2999,"currency":"usd","recurring":{"interval":"year","interval_count":1},"product":{"id":"prod_1","object":"product","name":"Annual"}},
			{"id":"price_week","object":"price","unit_amount":499,"currency":"usd","lookup_key":"weekly","recurring":{"interval":"week","interval_count":1},"product":{"id":"prod_2","object":"product","name":"Weekly"}}
		]}`,
	})

	pkgs, err := testProvider(srv, newMemUsers(), "").Offerings(context.Background())
	if err != nil {
		t.Fatalf("Offerings error = %v", err)
	}
	if len(pkgs) != 2 {
		t.Fatalf("len = %d, want 2", len(pkgs))
	}
	if pkgs[0].ID != "price_week" || !pkgs[0].Default || pkgs[0].Title != "Weekly" || pkgs[0].Interval != "week" {
		t.Fatalf("weekly package = %+v", pkgs[0])
	}
	if pkgs[1].Default {
		t.Fatalf("annual package should not be default")
	}
}

func TestPurchaseCreatesCustomerAndCheckout(t *testing.T) {
	srv, seen := fakeStripe(t, map[string]string{
		"POST /v1/customers":         `{"id":"cus_new","object":"customer"}`,
		"POST /v1/checkout/sessions": `{"id":"cs_1","object":"checkout.session","url":"https://checkout.example/cs_1"}`,
	})
	users := newMemUsers()

	res, err := testProvider(srv, users, "https://app.example/").Purchase(context.Background(), "alice", "price_week")
	if err != nil {
		t.Fatalf("Purchase error = %v", err)
	}
	if res.CheckoutURL != "https://checkout.example/cs_1" || res.SessionID != "cs_1" {
		t.Fatalf("Purchase result = %+v", res)
	}
	u := users.users["alice"]
	if u.StripeCustomerID == nil || *u.StripeCustomerID != "cus_new" {
		t.Fatalf("customer not linked: %+v", u)
	}
	if strings.Join(*seen, ",") != "POST /v1/customers,POST /v1/checkout/sessions" {
		t.Fatalf("calls = %v", *seen)
	}
}

func TestPurchaseRequiresConfiguration(t *testing.T) {
	srv, _ := fakeStripe(t, nil)
	p := testProvider(srv, newMemUsers(), "")
	if _, err := p.Purchase(context.Background(), "alice", "price_week"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Purchase err = %v, want ErrNotConfigured", err)
	}
	p = testProvider(srv, newMemUsers(), "https://app.example")
	if _, err := p.Purchase(context.Background(), "alice", " "); !errors.Is(err, ErrUnknownPackage) {
		t.Fatalf("Purchase err = %v, want ErrUnknownPackage", err)
	}
}

func TestPortalURL(t *testing.T) {
	srv, _ := fakeStripe(t, map[string]string{
		"POST /v1/billing_portal/sessions": `{"id":"bps_1","object":"billing_portal.session","url":"https://portal.example/bps_1"}`,
	})
	users := newMemUsers()
	withCustomer(users, "alice", "cus_1")
	users.users["bob"] = models.User{Subject: "bob"}
	p := testProvider(srv, users, "https://app.example")

	got, err := p.PortalURL(context.Background(), "alice")
	if err != nil || got != "https://portal.example/bps_1" {
		t.Fatalf("PortalURL = (%q, %v)", got, err)
	}
	if _, err := p.PortalURL(context.Background(), "bob"); !errors.Is(err, ErrNoCustomer) {
		t.Fatalf("PortalURL without customer err = %v", err)
	}
}

// signPayload produces a Stripe-Signature header for payload.
func signPayload(payload []byte, secret string, at time.Time) string {
	ts := fmt.Sprintf("%d", at.Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "." + string(payload)))
	return "t=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

func eventPayload(eventType, object string) []byte {
	return []byte(`{"id":"evt_1","object":"event","api_version":"2024-06-20","type":"` + eventType + `","data":{"object":` + object + `}}`)
}

func TestParseWebhook(t *testing.T) {
	const secret = "whsec_test"
	cases := []struct {
		name      string
		eventType string
		object    string
		handled   bool
		active    bool
		subject   string
	}{
		{"checkout completed", "checkout.session.completed", `{"id":"cs_1","object":"checkout.session","customer":"cus_1","client_reference_id":"alice"}`, true, true, "alice"},
		{"subscription updated active", "customer.subscription.updated", `{"id":"sub_1","object":"subscription","customer":"cus_1","status":"active"}`, true, true, ""},
		{"subscription updated past due", "customer.subscription.updated", `{"id":"sub_1","object":"subscription","customer":"cus_1","status":"past_due"}`, true, false, ""},
		{"subscription deleted", "customer.subscription.deleted", `{"id":"sub_1","object":"subscription","customer":"cus_1","status":"canceled"}`, true, false, ""},
		{"unrelated", "invoice.created", `{"id":"in_1","object":"invoice"}`, false, false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := eventPayload(tc.eventType, tc.object)
			change, handled, err := ParseWebhook(payload, signPayload(payload, secret, time.Now()), secret)
			if err != nil {
				t.Fatalf("ParseWebhook error = %v", err)
			}
			if handled != tc.handled {
				t.Fatalf("handled = %t, want %t", handled, tc.handled)
			}
			if !handled {
				return
			}
			if change.CustomerID != "cus_1" || change.Active != tc.active || change.Subject != tc.subject {
				t.Fatalf("change = %+v", change)
			}
		})
	}
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	payload := eventPayload("checkout.session.completed", `{"id":"cs_1","object":"checkout.session","customer":"cus_1"}`)
	if _, _, err := ParseWebhook(payload, signPayload(payload, "other", time.Now()), "whsec_test"); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestParseWebhookRequiresCustomer(t *testing.T) {
	payload := eventPayload("checkout.session.completed", `{"id":"cs_1","object":"checkout.session"}`)
	if _, _, err := ParseWebhook(payload, signPayload(payload, "s", time.Now()), "s"); !errors.Is(err, ErrMissingCustomer) {
		t.Fatalf("err = %v, want ErrMissingCustomer", err)
	}
}
