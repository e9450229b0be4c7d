package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/adityadaniel/flora-friend/app/models"
)

// ListMessages returns a record's chat log in insertion order.
func (s *Store) ListMessages(ctx context.Context, plantID string) ([]models.ChatMessage, error) {
	out := []models.ChatMessage{}
	err := s.db.WithContext(ctx).
		Where("plant_id = ?", plantID).
		Order("seq ASC").
		Find(&out).Error
	return out, err
}

// StartLog stores msg as the first entry of an empty log and returns the
// whole log. When another writer got there first the existing log is returned
// unchanged, so concurrent openers share one first message.
func (s *Store) StartLog(ctx context.Context, msg *models.ChatMessage) ([]models.ChatMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.Seq = 1

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockRecord(tx, msg.PlantID); err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "plant_id"}, {Name: "seq"}},
			DoNothing: true,
		}).Create(msg).Error
	})
	if err != nil {
		return nil, err
	}
	return s.ListMessages(ctx, msg.PlantID)
}

// AppendMessage stores msg at the end of its record's log, assigning ID and
// Seq. The owning record must exist. Appends to one record are serialized on
// the record row.
func (s *Store) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockRecord(tx, msg.PlantID); err != nil {
			return err
		}

		var last int64
		if err := tx.Model(&models.ChatMessage{}).
			Where("plant_id = ?", msg.PlantID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&last).Error; err != nil {
			return err
		}
		msg.Seq = last + 1
		return tx.Create(msg).Error
	})
}

// lockRecord takes a row lock on the record for the rest of tx.
func lockRecord(tx *gorm.DB, id string) error {
	var rec models.PlantRecord
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", id).
		First(&rec).Error
	return notFound(err)
}
