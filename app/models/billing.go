package models

// Package is one purchasable subscription offering.
type Package struct {
	ID            string `json:"id"`
	LookupKey     string `json:"lookupKey,omitempty"`
	Title         string `json:"title"`
	UnitAmount    int64  `json:"unitAmount"`
	Currency      string `json:"currency"`
	Interval      string `json:"interval"`
	IntervalCount int64  `json:"intervalCount"`
	Default       bool   `json:"default"`
}

// PurchaseResult points the client at the provider-hosted checkout. The
// entitlement flips once the provider confirms payment via webhook.
type PurchaseResult struct {
	CheckoutURL string `json:"url"`
	SessionID   string `json:"sessionId"`
}
