package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/adityadaniel/flora-friend/app/config"
	"github.com/adityadaniel/flora-friend/app/models"
	"github.com/adityadaniel/flora-friend/billing"
	"github.com/adityadaniel/flora-friend/store"

	"github.com/gin-gonic/gin"
)

type purchaseRequest struct {
	PackageID string `json:"packageId"`
}

func requirePayments(c *gin.Context) bool {
	if payments == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "billing not configured"})
		return false
	}
	return true
}

// GetOfferings lists the purchasable subscription packages.
func GetOfferings(c *gin.Context) {
	if !requirePayments(c) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), paymentsTimeout)
	defer cancel()

	pkgs, err := payments.Offerings(ctx)
	if err != nil {
		log.Printf("stripe offerings failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load offerings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"packages": pkgs})
}

// CreateCheckoutSession starts a Stripe Checkout Session for the chosen
// package. An empty packageId picks the default offering.
func CreateCheckoutSession(c *gin.Context) {
	subject, ok := subjectFrom(c)
	if !ok {
		return
	}
	if !requirePayments(c) {
		return
	}

	var req purchaseRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), paymentsTimeout)
	defer cancel()

	priceID := req.PackageID
	if priceID == "" {
		pkgs, err := payments.Offerings(ctx)
		if err != nil {
			log.Printf("stripe offerings failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load offerings"})
			return
		}
		priceID = defaultPackageID(pkgs)
		if priceID == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no offerings available"})
			return
		}
	}

	result, err := payments.Purchase(ctx, subject, priceID)
	if err != nil {
		if errors.Is(err, billing.ErrUnknownPackage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown package"})
			return
		}
		if errors.Is(err, billing.ErrNotConfigured) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "billing not configured"})
			return
		}
		log.Printf("stripe checkout session failed sub=%s: %v", subject, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to create checkout session"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func defaultPackageID(pkgs []models.Package) string {
	for _, p := range pkgs {
		if p.Default {
			return p.ID
		}
	}
	if len(pkgs) > 0 {
		return pkgs[0].ID
	}
	return ""
}

// RestorePurchases re-reads the caller's subscription from Stripe and
// applies it to the gate.
func RestorePurchases(c *gin.Context) {
	g, ok := gateFor(c)
	if !ok {
		return
	}
	if !requirePayments(c) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), paymentsTimeout)
	defer cancel()

	active, err := payments.RestorePurchases(ctx, g.Subject())
	if err != nil {
		log.Printf("stripe restore failed sub=%s: %v", g.Subject(), err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to restore purchases"})
		return
	}
	g.SetSubscription(context.WithoutCancel(ctx), active)
	c.JSON(http.StatusOK, entitlementView(g))
}

// CreatePortalSession creates a Stripe Customer Portal session for the authenticated user.
func CreatePortalSession(c *gin.Context) {
	subject, ok := subjectFrom(c)
	if !ok {
		return
	}
	if !requirePayments(c) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), paymentsTimeout)
	defer cancel()

	url, err := payments.PortalURL(ctx, subject)
	if err != nil {
		if errors.Is(err, billing.ErrNoCustomer) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "stripe customer missing for user"})
			return
		}
		if errors.Is(err, billing.ErrNotConfigured) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "billing not configured"})
			return
		}
		log.Printf("stripe portal session failed sub=%s: %v", subject, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to create portal session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// StripeWebhook handles Stripe subscription events and updates user plans.
func StripeWebhook(c *gin.Context) {
	const maxBodyBytes = int64(65536)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		log.Printf("stripe webhook read failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("stripe webhook config load failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}
	if cfg.Stripe.WebhookSecret == "" {
		log.Printf("stripe webhook secret missing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	change, handled, err := billing.ParseWebhook(body, c.GetHeader("Stripe-Signature"), cfg.Stripe.WebhookSecret)
	if err != nil {
		if errors.Is(err, billing.ErrMissingCustomer) {
			log.Printf("stripe webhook missing customer id")
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing customer id"})
			return
		}
		log.Printf("stripe webhook rejected: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		return
	}
	if !handled {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if err := applyPlanChange(c.Request.Context(), change); err != nil {
		log.Printf("stripe plan update failed event=%s customer=%s err=%v", change.EventType, change.CustomerID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// applyPlanChange persists the plan and updates the cached gate, if any.
// A lapsed subscription only downgrades a customer that holds no other active
// or trialing subscription.
func applyPlanChange(ctx context.Context, change billing.Change) error {
	if db == nil {
		return errors.New("db not initialized")
	}

	if !change.Active && payments != nil {
		subject, err := db.SubjectByCustomer(ctx, change.CustomerID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return err
		default:
			active, err := payments.EntitlementStatus(ctx, subject)
			if err != nil {
				return fmt.Errorf("recheck subscriptions: %w", err)
			}
			change.Active = active
		}
	}

	plan := models.PlanFree
	if change.Active {
		plan = models.PlanPro
	}

	subject, err := db.SetPlanByCustomer(ctx, change.CustomerID, plan)
	if errors.Is(err, store.ErrNotFound) && change.Subject != "" {
		if err := db.UpsertUser(ctx, change.Subject, "", ""); err != nil {
			return err
		}
		if err := db.SetStripeCustomer(ctx, change.Subject, change.CustomerID); err != nil {
			return err
		}
		subject, err = change.Subject, db.SetPlan(ctx, change.Subject, plan)
	}
	if err != nil {
		return err
	}

	log.Printf("stripe plan updated sub=%s customer=%s plan=%s event=%s", subject, change.CustomerID, plan, change.EventType)
	if gates != nil {
		g, err := gates.Gate(ctx, subject)
		if err != nil {
			return err
		}
		g.SetSubscription(ctx, change.Active)
	}
	return nil
}
