package app

import (
	"log"

	"github.com/stripe/stripe-go/v79"

	"github.com/adityadaniel/flora-friend/app/config"
	"github.com/adityadaniel/flora-friend/billing"
)

// InitStripe wires the Stripe provider from the environment. Without a
// secret key billing stays disabled and subscription refreshes are skipped.
func InitStripe() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config for stripe: %v", err)
	}
	if cfg.Stripe.SecretKey == "" {
		log.Printf("STRIPE_SECRET_KEY missing; billing disabled")
		return
	}
	if db == nil {
		log.Printf("db not initialized; billing disabled")
		return
	}
	stripe.Key = cfg.Stripe.SecretKey
	payments = billing.New(cfg.Stripe, db)
}
