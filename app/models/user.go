// Package models defines user plan and entitlement fields.
package models

import "time"

type Plan string

const (
	PlanFree Plan = "FREE"
	PlanPro  Plan = "PRO"
)

type User struct {
	Subject          string    `gorm:"type:varchar(128);primaryKey"`
	Email            *string   `gorm:"type:varchar(320)"`
	Name             *string   `gorm:"type:varchar(256)"`
	Plan             Plan      `gorm:"type:varchar(16);not null;default:FREE"`
	StripeCustomerID *string   `gorm:"type:varchar(64);uniqueIndex"`
	LastLogin        time.Time `gorm:"not null"`
	CreatedAt        time.Time `gorm:"not null"`
}

func (User) TableName() string { return "users" }

// KeyValue is a namespaced durable entry, the server-side stand-in for the
// device keychain the free-use counter originally lived in.
type KeyValue struct {
	Namespace string    `gorm:"type:varchar(128);primaryKey"`
	Subject   string    `gorm:"type:varchar(128);primaryKey"`
	Key       string    `gorm:"type:varchar(64);primaryKey"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (KeyValue) TableName() string { return "key_values" }

// EntitlementState is the cached quota and subscription truth for a subject.
type EntitlementState struct {
	FreeUsesConsumed int  `json:"freeUsesConsumed"`
	HasSubscription  bool `json:"hasSubscription"`
}

// RemainingFreeUses returns max(0, maxFreeUses - FreeUsesConsumed).
func (s EntitlementState) RemainingFreeUses(maxFreeUses int) int {
	remaining := maxFreeUses - s.FreeUsesConsumed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CanProceed reports whether one more identification is allowed.
func (s EntitlementState) CanProceed(maxFreeUses int) bool {
	return s.HasSubscription || s.RemainingFreeUses(maxFreeUses) > 0
}
