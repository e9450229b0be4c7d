// Package billing is the Stripe side of subscriptions: status lookups,
// offerings, checkout and webhook parsing.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/adityadaniel/flora-friend/app/config"
	"github.com/adityadaniel/flora-friend/app/models"
)

var (
	ErrNotConfigured   = errors.New("billing: not configured")
	ErrNoCustomer      = errors.New("billing: no stripe customer for subject")
	ErrUnknownPackage  = errors.New("billing: unknown package")
	ErrSubjectRequired = errors.New("billing: missing subject")
)

// Users is the slice of persistence the provider needs to link subjects to
// Stripe customers.
type Users interface {
	GetUser(ctx context.Context, subject string) (models.User, error)
	UpsertUser(ctx context.Context, subject, email, name string) error
	SetStripeCustomer(ctx context.Context, subject, customerID string) error
}

type Provider struct {
	api         *client.API
	users       Users
	frontendURL string
	timeout     time.Duration
}

// New builds a provider against the live Stripe API.
func New(cfg config.StripeConfig, users Users) *Provider {
	backends := stripe.NewBackendsWithConfig(&stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripe.Int64(0),
	})
	return NewWithBackends(cfg.SecretKey, backends, users, cfg.FrontendURL, cfg.Timeout)
}

// NewWithBackends lets callers point the client somewhere other than
// api.stripe.com.
func NewWithBackends(key string, backends *stripe.Backends, users Users, frontendURL string, timeout time.Duration) *Provider {
	api := &client.API{}
	api.Init(key, backends)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Provider{
		api:         api,
		users:       users,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		timeout:     timeout,
	}
}

func (p *Provider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.timeout)
}

func (p *Provider) customerID(ctx context.Context, subject string) (string, error) {
	if subject == "" {
		return "", ErrSubjectRequired
	}
	u, err := p.users.GetUser(ctx, subject)
	if err != nil {
		return "", err
	}
	if u.StripeCustomerID == nil || *u.StripeCustomerID == "" {
		return "", ErrNoCustomer
	}
	return *u.StripeCustomerID, nil
}

// EntitlementStatus reports whether subject has an active or trialing
// subscription. A subject never linked to Stripe is simply not subscribed.
func (p *Provider) EntitlementStatus(ctx context.Context, subject string) (bool, error) {
	custID, err := p.customerID(ctx, subject)
	if errors.Is(err, ErrNoCustomer) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(custID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(20)

	it := p.api.Subscriptions.List(params)
	for it.Next() {
		if SubscriptionActive(it.Subscription().Status) {
			return true, nil
		}
	}
	if err := it.Err(); err != nil {
		return false, fmt.Errorf("list subscriptions: %w", err)
	}
	return false, nil
}

// RestorePurchases re-queries the provider. Stripe has no receipts to
// replay, so this is a fresh status lookup.
func (p *Provider) RestorePurchases(ctx context.Context, subject string) (bool, error) {
	return p.EntitlementStatus(ctx, subject)
}

func SubscriptionActive(status stripe.SubscriptionStatus) bool {
	return status == stripe.SubscriptionStatusActive || status == stripe.SubscriptionStatusTrialing
}

// Offerings lists active recurring prices. The weekly package, when present,
// is marked default.
func (p *Provider) Offerings(ctx context.Context) ([]models.Package, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	params := &stripe.PriceListParams{
		Active: stripe.Bool(true),
		Type:   stripe.String(string(stripe.PriceTypeRecurring)),
	}
	params.Context = ctx
	params.AddExpand("data.product")

	out := []models.Package{}
	it := p.api.Prices.List(params)
	for it.Next() {
		out = append(out, packageFromPrice(it.Price()))
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("list prices: %w", err)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].UnitAmount < out[j].UnitAmount })
	markDefault(out)
	return out, nil
}

func packageFromPrice(pr *stripe.Price) models.Package {
	pkg := models.Package{
		ID:         pr.ID,
		LookupKey:  pr.LookupKey,
		UnitAmount: pr.UnitAmount,
		Currency:   string(pr.Currency),
		Title:      pr.Nickname,
	}
	if pr.Product != nil && pr.Product.Name != "" {
		pkg.Title = pr.Product.Name
	}
	if pr.Recurring != nil {
		pkg.Interval = string(pr.Recurring.Interval)
		pkg.IntervalCount = pr.Recurring.IntervalCount
	}
	return pkg
}

func markDefault(pkgs []models.Package) {
	if len(pkgs) == 0 {
		return
	}
	for i := range pkgs {
		if pkgs[i].Interval == string(stripe.PriceRecurringIntervalWeek) {
			pkgs[i].Default = true
			return
		}
	}
	pkgs[0].Default = true
}

// EnsureCustomer returns the subject's Stripe customer, creating and linking
// one on first use.
func (p *Provider) EnsureCustomer(ctx context.Context, subject string) (string, error) {
	custID, err := p.customerID(ctx, subject)
	if err == nil {
		return custID, nil
	}
	if !errors.Is(err, ErrNoCustomer) {
		return "", err
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	params := &stripe.CustomerParams{
		Metadata: map[string]string{"subject": subject},
	}
	params.Context = ctx
	cust, err := p.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	if err := p.users.SetStripeCustomer(ctx, subject, cust.ID); err != nil {
		return "", err
	}
	log.Printf("billing: created stripe customer=%s subject=%s", cust.ID, subject)
	return cust.ID, nil
}

// Purchase opens a subscription checkout for priceID. The entitlement flips
// when the completed session arrives on the webhook.
func (p *Provider) Purchase(ctx context.Context, subject, priceID string) (models.PurchaseResult, error) {
	if p.frontendURL == "" {
		return models.PurchaseResult{}, ErrNotConfigured
	}
	if strings.TrimSpace(priceID) == "" {
		return models.PurchaseResult{}, ErrUnknownPackage
	}
	if err := p.users.UpsertUser(ctx, subject, "", ""); err != nil {
		return models.PurchaseResult{}, err
	}
	custID, err := p.EnsureCustomer(ctx, subject)
	if err != nil {
		return models.PurchaseResult{}, err
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          stripe.String(custID),
		ClientReferenceID: stripe.String(subject),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(p.frontendURL + "/billing/success"),
		CancelURL:  stripe.String(p.frontendURL + "/billing/cancel"),
	}
	params.Context = ctx

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return models.PurchaseResult{}, fmt.Errorf("create checkout session: %w", err)
	}
	return models.PurchaseResult{CheckoutURL: sess.URL, SessionID: sess.ID}, nil
}

// PortalURL opens the Stripe customer portal for managing the subscription.
func (p *Provider) PortalURL(ctx context.Context, subject string) (string, error) {
	if p.frontendURL == "" {
		return "", ErrNotConfigured
	}
	custID, err := p.customerID(ctx, subject)
	if err != nil {
		return "", err
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(custID),
		ReturnURL: stripe.String(p.frontendURL + "/settings/billing"),
	}
	params.Context = ctx
	sess, err := p.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return sess.URL, nil
}
