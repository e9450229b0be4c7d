package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/adityadaniel/flora-friend/app/models"
)

const (
	Namespace = "com.florafriend.app"

	KeyFreeScansUsed   = "free_scans_used"
	KeyHasUsedFreeScan = "has_used_free_scan"
)

// GetValue reads one namespaced key. ok is false when the key was never set.
func (s *Store) GetValue(ctx context.Context, subject, key string) (value string, ok bool, err error) {
	var kv models.KeyValue
	err = s.db.WithContext(ctx).
		Where("namespace = ? AND subject = ? AND key = ?", Namespace, subject, key).
		First(&kv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return kv.Value, true, nil
}

func (s *Store) SetValue(ctx context.Context, subject, key, value string) error {
	return setValue(s.db.WithContext(ctx), subject, key, value)
}

func setValue(tx *gorm.DB, subject, key, value string) error {
	kv := models.KeyValue{
		Namespace: Namespace,
		Subject:   subject,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "subject"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&kv).Error
}

// LoadState reads the free-use counter from the key-value table and the
// cached subscription flag from the user's plan.
func (s *Store) LoadState(ctx context.Context, subject string) (models.EntitlementState, error) {
	var st models.EntitlementState

	raw, ok, err := s.GetValue(ctx, subject, KeyFreeScansUsed)
	if err != nil {
		return st, err
	}
	if ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return st, fmt.Errorf("load state: corrupt %s=%q: %w", KeyFreeScansUsed, raw, err)
		}
		if n > 0 {
			st.FreeUsesConsumed = n
		}
	}

	var u models.User
	err = s.db.WithContext(ctx).Select("plan").Where("subject = ?", subject).First(&u).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return st, err
	default:
		st.HasSubscription = u.Plan == models.PlanPro
	}
	return st, nil
}

// SaveFreeUses writes the counter and the derived has-used flag together.
func (s *Store) SaveFreeUses(ctx context.Context, subject string, consumed int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := setValue(tx, subject, KeyFreeScansUsed, strconv.Itoa(consumed)); err != nil {
			return err
		}
		return setValue(tx, subject, KeyHasUsedFreeScan, strconv.FormatBool(consumed > 0))
	})
}

// ChargeFreeUse adds one to the stored counter when it is below maxFreeUses.
// The conditional UPDATE is the only write, so concurrent callers in any
// process cannot both take the last use. It returns the counter after the
// attempt and whether this call charged it.
func (s *Store) ChargeFreeUse(ctx context.Context, subject string, maxFreeUses int) (consumed int, charged bool, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		seed := models.KeyValue{Namespace: Namespace, Subject: subject, Key: KeyFreeScansUsed, Value: "0", UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return err
		}

		res := tx.Model(&models.KeyValue{}).
			Where("namespace = ? AND subject = ? AND key = ?", Namespace, subject, KeyFreeScansUsed).
			Where("CAST(value AS INTEGER) < ?", maxFreeUses).
			Updates(map[string]any{
				"value":      gorm.Expr("CAST(CAST(value AS INTEGER) + 1 AS TEXT)"),
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		charged = res.RowsAffected == 1

		var kv models.KeyValue
		if err := tx.Where("namespace = ? AND subject = ? AND key = ?", Namespace, subject, KeyFreeScansUsed).
			First(&kv).Error; err != nil {
			return err
		}
		n, err := strconv.Atoi(kv.Value)
		if err != nil {
			return fmt.Errorf("charge free use: corrupt %s=%q: %w", KeyFreeScansUsed, kv.Value, err)
		}
		consumed = n
		if !charged {
			return nil
		}
		return setValue(tx, subject, KeyHasUsedFreeScan, strconv.FormatBool(true))
	})
	if err != nil {
		return 0, false, err
	}
	return consumed, charged, nil
}

// SaveSubscription caches the subscription flag as the user's plan, creating
// the user row when needed.
func (s *Store) SaveSubscription(ctx context.Context, subject string, active bool) error {
	plan := models.PlanFree
	if active {
		plan = models.PlanPro
	}
	return s.SetPlan(ctx, subject, plan)
}
