package models

// JobMessage is the SQS body for an asynchronous identification.
type JobMessage struct {
	JobID   string `json:"job_id"`
	Subject string `json:"subject"`
}
