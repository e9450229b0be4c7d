package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adityadaniel/flora-friend/app/models"
)

func (s *Store) CreateRecord(ctx context.Context, rec *models.PlantRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Uses == nil {
		rec.Uses = models.PlantUses{}
	}
	return s.db.WithContext(ctx).Omit("Messages").Create(rec).Error
}

// GetRecord returns one record owned by subject, without image bytes.
func (s *Store) GetRecord(ctx context.Context, subject, id string) (models.PlantRecord, error) {
	var rec models.PlantRecord
	err := s.db.WithContext(ctx).
		Omit("image_data").
		Where("id = ? AND subject = ?", id, subject).
		First(&rec).Error
	return rec, notFound(err)
}

// RecordImage returns the stored JPEG of a record; nil when none was kept.
func (s *Store) RecordImage(ctx context.Context, subject, id string) ([]byte, error) {
	var rec models.PlantRecord
	err := s.db.WithContext(ctx).
		Select("id", "image_data").
		Where("id = ? AND subject = ?", id, subject).
		First(&rec).Error
	if err != nil {
		return nil, notFound(err)
	}
	return rec.ImageData, nil
}

// ListRecords returns a page of subject's records, newest first. Image bytes
// are left out.
func (s *Store) ListRecords(ctx context.Context, subject string, limit, offset int) ([]models.PlantRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	out := []models.PlantRecord{}
	err := s.db.WithContext(ctx).
		Omit("image_data").
		Where("subject = ?", subject).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	return out, err
}

// DeleteRecord removes a record and its chat log in one transaction.
func (s *Store) DeleteRecord(ctx context.Context, subject, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.PlantRecord{}).Where("id = ? AND subject = ?", id, subject).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		if err := tx.Where("plant_id = ?", id).Delete(&models.ChatMessage{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ? AND subject = ?", id, subject).Delete(&models.PlantRecord{}).Error
	})
}
