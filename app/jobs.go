package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/adityadaniel/flora-friend/app/models"
	"github.com/adityadaniel/flora-friend/store"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Queue hands identification jobs to a worker.
type Queue interface {
	Enqueue(ctx context.Context, msg models.JobMessage) error
}

// SQSAPI is the subset of the SQS client used here.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type SQSQueue struct {
	client   SQSAPI
	queueURL string
}

func NewSQSQueue(client SQSAPI, queueURL string) *SQSQueue {
	return &SQSQueue{client: client, queueURL: queueURL}
}

// NewSQSClient builds an SQS client from the default AWS credential chain.
func NewSQSClient(ctx context.Context) (*sqs.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return sqs.NewFromConfig(awsCfg), nil
}

func (q *SQSQueue) Enqueue(ctx context.Context, msg models.JobMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	return err
}

// UseQueue routes new jobs to q. A nil queue runs jobs in-process.
func UseQueue(q Queue) {
	queue = q
}

// InitQueue connects to SQS when QUEUE_URL is set.
func InitQueue(ctx context.Context, queueURL string) {
	if queueURL == "" {
		log.Printf("QUEUE_URL missing; identification jobs run in-process")
		return
	}
	client, err := NewSQSClient(ctx)
	if err != nil {
		log.Printf("failed to init SQS, jobs run in-process: %v", err)
		return
	}
	queue = NewSQSQueue(client, queueURL)
}

// ProcessJob runs one queued identification. It returns an error only when
// the message should be redelivered; terminal outcomes are recorded on the
// job row and return nil.
func ProcessJob(ctx context.Context, msg models.JobMessage) error {
	if db == nil {
		return errors.New("db not initialized")
	}
	if gates == nil {
		return errors.New("entitlements not initialized")
	}

	job, err := db.FindJob(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Printf("job not found, dropping job_id=%s", msg.JobID)
			return nil
		}
		return err
	}
	if job.Status == models.JobCompleted || job.Status == models.JobFailed {
		log.Printf("job already finished job_id=%s status=%s", job.ID, job.Status)
		return nil
	}
	if msg.Subject != "" && msg.Subject != job.Subject {
		log.Printf("job subject mismatch job_id=%s msg_sub=%s job_sub=%s", job.ID, msg.Subject, job.Subject)
	}

	g, err := gates.Gate(ctx, job.Subject)
	if err != nil {
		return err
	}
	if err := db.MarkJobRunning(ctx, job.ID); err != nil {
		return err
	}

	start := time.Now()
	result, saved, err := runIdentification(ctx, g, job.ImageData)
	persistCtx := context.WithoutCancel(ctx)
	if err != nil {
		reason := quotaError{}.Error()
		if !IsQuotaExceeded(err) {
			_, reason = identifyErrorStatus(err)
		}
		return db.FailJob(persistCtx, job.ID, reason)
	}
	if !saved {
		return db.FailJob(persistCtx, job.ID, "failed to save result")
	}

	log.Printf("Job complete: job_id=%s sub=%s plant=%s took=%s", job.ID, job.Subject, result.Record.ID, time.Since(start))
	return db.CompleteJob(persistCtx, job.ID, result.Record.ID)
}

// ProcessMessages handles one received batch with a bounded worker pool.
// Undecodable bodies and finished jobs are deleted; retryable failures are
// left for SQS to redeliver after the visibility timeout.
func ProcessMessages(ctx context.Context, client SQSAPI, queueURL string, msgs []sqstypes.Message) {
	numWorkers := GetWorkerCount()
	if numWorkers > len(msgs) {
		numWorkers = len(msgs)
	}

	jobs := make(chan sqstypes.Message, len(msgs))
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for m := range jobs {
				handleMessage(ctx, id, client, queueURL, m)
			}
		}(i)
	}

	for _, m := range msgs {
		jobs <- m
	}
	close(jobs)
	wg.Wait()
}

func handleMessage(ctx context.Context, worker int, client SQSAPI, queueURL string, m sqstypes.Message) {
	if m.Body == nil {
		log.Printf("worker %d: received message with empty body, deleting", worker)
		deleteMessage(client, queueURL, m)
		return
	}

	var job models.JobMessage
	if err := json.Unmarshal([]byte(*m.Body), &job); err != nil || job.JobID == "" {
		log.Printf("worker %d: bad job message, deleting: err=%v body=%s", worker, err, *m.Body)
		deleteMessage(client, queueURL, m)
		return
	}

	log.Printf("worker %d: received job job_id=%s sub=%s", worker, job.JobID, job.Subject)

	jobCtx, cancel := context.WithTimeout(ctx, identifyTimeout+30*time.Second)
	err := ProcessJob(jobCtx, job)
	cancel()
	if err != nil {
		log.Printf("worker %d: error processing job job_id=%s: %v", worker, job.JobID, err)
		return
	}
	deleteMessage(client, queueURL, m)
}

// RunWorker long-polls queueURL until ctx is cancelled.
func RunWorker(ctx context.Context, client SQSAPI, queueURL string) {
	log.Printf("Worker started, listening on SQS queue: %s", queueURL)

	for ctx.Err() == nil {
		recvCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		resp, err := client.ReceiveMessage(recvCtx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(queueURL),
			MaxNumberOfMessages: 5,
			WaitTimeSeconds:     20,
			// must exceed the per-job timeout
			VisibilityTimeout: 180,
		})
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Printf("ReceiveMessage error: %v", err)
			sleepCtx(ctx, 5*time.Second)
			continue
		}
		if len(resp.Messages) == 0 {
			sleepCtx(ctx, 2*time.Second)
			continue
		}

		ProcessMessages(ctx, client, queueURL, resp.Messages)
	}
	log.Printf("Worker stopped")
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func deleteMessage(client SQSAPI, queueURL string, m sqstypes.Message) {
	if m.ReceiptHandle == nil {
		return
	}
	_, err := client.DeleteMessage(context.Background(), &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: m.ReceiptHandle,
	})
	if err != nil {
		log.Printf("failed to delete SQS message: %v", err)
	}
}
