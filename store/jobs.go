package store

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/adityadaniel/flora-friend/app/models"
)

func (s *Store) CreateJob(ctx context.Context, subject string, image []byte) (models.IdentificationJob, error) {
	now := time.Now().UTC()
	job := models.IdentificationJob{
		ID:        uuid.NewString(),
		Subject:   subject,
		Status:    models.JobQueued,
		ImageData: image,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		return models.IdentificationJob{}, err
	}
	log.Printf("Created job %s for subject=%s bytes=%d", job.ID, subject, len(image))
	return job, nil
}

// FindJob loads a job including its image bytes.
func (s *Store) FindJob(ctx context.Context, id string) (models.IdentificationJob, error) {
	var job models.IdentificationJob
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	return job, notFound(err)
}

// FindJobStatus returns the poll view of a job owned by subject.
func (s *Store) FindJobStatus(ctx context.Context, subject, id string) (models.JobStatus, error) {
	var job models.IdentificationJob
	err := s.db.WithContext(ctx).
		Omit("image_data").
		Where("id = ? AND subject = ?", id, subject).
		First(&job).Error
	if err != nil {
		return models.JobStatus{}, notFound(err)
	}
	return job.Summary(), nil
}

func (s *Store) MarkJobRunning(ctx context.Context, id string) error {
	return s.updateJob(ctx, id, map[string]any{"status": models.JobRunning})
}

func (s *Store) CompleteJob(ctx context.Context, id, recordID string) error {
	return s.updateJob(ctx, id, map[string]any{"status": models.JobCompleted, "record_id": recordID})
}

func (s *Store) FailJob(ctx context.Context, id, reason string) error {
	return s.updateJob(ctx, id, map[string]any{"status": models.JobFailed, "error": reason})
}

func (s *Store) updateJob(ctx context.Context, id string, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&models.IdentificationJob{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		log.Printf("updateJob: no job row found for id=%s", id)
		return ErrNotFound
	}
	return nil
}
