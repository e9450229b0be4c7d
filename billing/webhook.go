package billing

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

var ErrMissingCustomer = errors.New("billing: event has no customer id")

// Change is the entitlement consequence of one webhook event.
type Change struct {
	EventType  string
	CustomerID string
	// Subject comes from the checkout's client reference, when present.
	Subject string
	// Active is the state of the object in the event only. A false value
	// does not rule out another subscription held by the same customer.
	Active bool
}

// ParseWebhook verifies the signature and extracts the entitlement change.
// handled is false for event types that do not affect entitlements.
func ParseWebhook(payload []byte, sigHeader, secret string) (change Change, handled bool, err error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Change{}, false, err
	}
	return changeFromEvent(event)
}

func changeFromEvent(event stripe.Event) (Change, bool, error) {
	change := Change{EventType: string(event.Type)}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return Change{}, false, fmt.Errorf("invalid session payload: %w", err)
		}
		if sess.Customer != nil {
			change.CustomerID = sess.Customer.ID
		}
		change.Subject = sess.ClientReferenceID
		change.Active = true

	case "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return Change{}, false, fmt.Errorf("invalid subscription payload: %w", err)
		}
		if sub.Customer != nil {
			change.CustomerID = sub.Customer.ID
		}
		change.Active = event.Type == "customer.subscription.updated" && SubscriptionActive(sub.Status)

	default:
		return change, false, nil
	}

	if change.CustomerID == "" {
		return Change{}, false, ErrMissingCustomer
	}
	return change, true, nil
}
