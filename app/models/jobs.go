package models

import "time"

type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// IdentificationJob tracks one asynchronous identification request.
type IdentificationJob struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	Subject   string    `gorm:"type:varchar(128);not null;index"`
	Status    JobState  `gorm:"type:varchar(16);not null"`
	ImageData []byte    `gorm:"not null"`
	RecordID  *string   `gorm:"type:char(36)"`
	Error     *string   `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (IdentificationJob) TableName() string { return "identification_jobs" }

// JobStatus summarizes a job for polling clients.
type JobStatus struct {
	ID       string   `json:"id"`
	Status   JobState `json:"status"`
	RecordID string   `json:"plantId,omitempty"`
	Error    string   `json:"error,omitempty"`
}

func (j IdentificationJob) Summary() JobStatus {
	s := JobStatus{ID: j.ID, Status: j.Status}
	if j.RecordID != nil {
		s.RecordID = *j.RecordID
	}
	if j.Error != nil {
		s.Error = *j.Error
	}
	return s
}
