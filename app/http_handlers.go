package app

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/adityadaniel/flora-friend/app/models"
	"github.com/adityadaniel/flora-friend/entitlement"
	"github.com/adityadaniel/flora-friend/identify"
	"github.com/adityadaniel/flora-friend/store"

	"github.com/gin-gonic/gin"
)

const maxImageBytes = 10 << 20

var errIdentifierMissing = errors.New("identifier not configured")

// IdentifyPlant runs one synchronous identification for the caller. The
// free-use counter is charged only after the provider returned a valid
// record.
func IdentifyPlant(c *gin.Context) {
	g, ok := gateFor(c)
	if !ok {
		return
	}
	if !g.CanProceed() {
		respondQuota(c, g)
		return
	}

	image, ok := readImage(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), identifyTimeout)
	defer cancel()

	result, saved, err := runIdentification(ctx, g, image)
	if err != nil {
		if IsQuotaExceeded(err) {
			respondQuota(c, g)
			return
		}
		status, msg := identifyErrorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"plant":             result.Record,
		"confidence":        result.Confidence,
		"priceRange":        result.PriceRange,
		"careLevel":         result.CareLevel,
		"saved":             saved,
		"remainingFreeUses": g.RemainingFreeUses(),
		"hasSubscription":   g.State().HasSubscription,
	})
}

// runIdentification is shared by the synchronous endpoint and the job
// worker. saved reports whether the record reached the store.
func runIdentification(ctx context.Context, g *entitlement.Gate, image []byte) (models.Identification, bool, error) {
	if !g.CanProceed() {
		return models.Identification{}, false, quotaFor(g)
	}
	if identifier == nil {
		return models.Identification{}, false, errIdentifierMissing
	}

	start := time.Now()
	result, err := identifier.Identify(ctx, image)
	if err != nil {
		log.Printf("identify failed sub=%s took=%s err=%v", g.Subject(), time.Since(start), err)
		return models.Identification{}, false, err
	}
	result.Record.Subject = g.Subject()

	// The provider call already succeeded; a cancelled caller must not skip
	// the charge or the save.
	persistCtx := context.WithoutCancel(ctx)
	g.Consume(persistCtx)

	saved := false
	if db != nil {
		if err := db.CreateRecord(persistCtx, &result.Record); err != nil {
			log.Printf("save record failed sub=%s plant=%s err=%v", g.Subject(), result.Record.ID, err)
		} else {
			saved = true
		}
	}

	log.Printf("identify ok sub=%s plant=%s name=%q confidence=%.2f took=%s",
		g.Subject(), result.Record.ID, result.Record.CommonName, result.Confidence, time.Since(start))
	return result, saved, nil
}

func identifyErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, identify.ErrImageEncodingFailed):
		return http.StatusUnprocessableEntity, "image could not be processed"
	case errors.Is(err, identify.ErrRateLimitExceeded):
		return http.StatusTooManyRequests, "rate limit exceeded, try again later"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "identification timed out"
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, "identification cancelled"
	case errors.Is(err, identify.ErrDecoding):
		return http.StatusBadGateway, "identification response was malformed"
	case errors.Is(err, identify.ErrAuthenticationFailed):
		return http.StatusBadGateway, "identification provider rejected credentials"
	case errors.Is(err, identify.ErrProvider):
		return http.StatusBadGateway, "identification provider error"
	case errors.Is(err, errIdentifierMissing):
		return http.StatusServiceUnavailable, "identification not configured"
	default:
		return http.StatusInternalServerError, "identification failed"
	}
}

// readImage accepts either a multipart "image" field or a raw image body.
func readImage(c *gin.Context) ([]byte, bool) {
	var r io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("image")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing image field"})
			return nil, false
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable image"})
			return nil, false
		}
		defer f.Close()
		r = f
	}

	image, err := io.ReadAll(io.LimitReader(r, maxImageBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable image"})
		return nil, false
	}
	if len(image) > maxImageBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return nil, false
	}
	if len(image) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing image"})
		return nil, false
	}
	return image, true
}

// CreateIdentifyJob stores the image and hands it to the queue. Without a
// queue the job runs in-process.
func CreateIdentifyJob(c *gin.Context) {
	g, ok := gateFor(c)
	if !ok {
		return
	}
	if !g.CanProceed() {
		respondQuota(c, g)
		return
	}
	if db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db not initialized"})
		return
	}

	image, ok := readImage(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	job, err := db.CreateJob(ctx, g.Subject(), image)
	if err != nil {
		log.Printf("failed to create job for sub=%s: %v", g.Subject(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create job"})
		return
	}

	msg := models.JobMessage{JobID: job.ID, Subject: g.Subject()}
	if queue == nil {
		go func() {
			jobCtx, jobCancel := context.WithTimeout(context.Background(), identifyTimeout)
			defer jobCancel()
			if err := ProcessJob(jobCtx, msg); err != nil {
				log.Printf("in-process job failed job_id=%s: %v", msg.JobID, err)
			}
		}()
	} else if err := queue.Enqueue(ctx, msg); err != nil {
		log.Printf("failed to enqueue job job_id=%s sub=%s: %v", job.ID, g.Subject(), err)
		if ferr := db.FailJob(context.WithoutCancel(ctx), job.ID, "failed to enqueue"); ferr != nil {
			log.Printf("failed to mark job failed job_id=%s: %v", job.ID, ferr)
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to enqueue job"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job": job.Summary(),
	})
}

// GetJobStatus returns the state of one of the caller's identification jobs.
func GetJobStatus(c *gin.Context) {
	subject, ok := subjectFrom(c)
	if !ok {
		return
	}
	jobID := c.Param("jobid")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing job id"})
		return
	}
	if db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db not initialized"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status, err := db.FindJobStatus(ctx, subject, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job": status,
	})
}
