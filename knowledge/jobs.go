package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"supportdesk_back/apperr"
)

const (
	defaultStaleAfter = 10 * time.Minute
	claimAttempts     = 5
	staleJobMessage   = "reclaimed after exceeding the processing window"
)

// JobQueue hands out ingest jobs. ClaimOne is the only way a job enters
// processing, and at most one caller wins any given job.
type JobQueue interface {
	Enqueue(ctx context.Context, documentID string) (*IngestJob, error)
	ClaimOne(ctx context.Context) (*IngestJob, error)
	MarkDone(ctx context.Context, jobID string) error
	MarkError(ctx context.Context, jobID string, message string) error
}

type gormJobQueue struct {
	db         *gorm.DB
	staleAfter time.Duration
	now        func() time.Time
}

func NewGormJobQueue(db *gorm.DB, staleAfter time.Duration) JobQueue {
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &gormJobQueue{db: db, staleAfter: staleAfter, now: func() time.Time { return time.Now().UTC() }}
}

func (q *gormJobQueue) Enqueue(ctx context.Context, documentID string) (*IngestJob, error) {
	now := q.now()
	job := &IngestJob{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Status:     JobPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := q.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("knowledge: enqueue job: %w", err)
	}
	return job, nil
}

// ClaimOne requeues stale processing jobs, then moves the oldest pending job
// to processing with a conditional update. A lost race retries with the next
// candidate; nil, nil means the queue is empty.
func (q *gormJobQueue) ClaimOne(ctx context.Context) (*IngestJob, error) {
	db := q.db.WithContext(ctx)
	now := q.now()

	reclaimed := db.Model(&IngestJob{}).
		Where("status = ? AND updated_at < ?", JobProcessing, now.Add(-q.staleAfter)).
		Updates(map[string]interface{}{
			"status":     JobPending,
			"last_error": staleJobMessage,
			"updated_at": now,
		})
	if reclaimed.Error != nil {
		return nil, fmt.Errorf("knowledge: reclaim stale jobs: %w", reclaimed.Error)
	}

	for attempt := 0; attempt < claimAttempts; attempt++ {
		var candidates []IngestJob
		err := db.Where("status = ?", JobPending).Order("created_at ASC").Order("id ASC").Limit(1).Find(&candidates).Error
		if err != nil {
			return nil, fmt.Errorf("knowledge: find pending job: %w", err)
		}
		if len(candidates) == 0 {
			return nil, nil
		}
		candidate := candidates[0]

		claimedAt := q.now()
		result := db.Model(&IngestJob{}).
			Where("id = ? AND status = ?", candidate.ID, JobPending).
			Updates(map[string]interface{}{
				"status":     JobProcessing,
				"attempts":   gorm.Expr("attempts + 1"),
				"updated_at": claimedAt,
			})
		if result.Error != nil {
			return nil, fmt.Errorf("knowledge: claim job: %w", result.Error)
		}
		if result.RowsAffected == 1 {
			candidate.Status = JobProcessing
			candidate.Attempts++
			candidate.UpdatedAt = claimedAt
			return &candidate, nil
		}
	}
	return nil, nil
}

func (q *gormJobQueue) MarkDone(ctx context.Context, jobID string) error {
	return q.finish(ctx, jobID, map[string]interface{}{"status": JobDone, "last_error": nil})
}

func (q *gormJobQueue) MarkError(ctx context.Context, jobID string, message string) error {
	return q.finish(ctx, jobID, map[string]interface{}{"status": JobError, "last_error": message})
}

func (q *gormJobQueue) finish(ctx context.Context, jobID string, updates map[string]interface{}) error {
	updates["updated_at"] = q.now()
	result := q.db.WithContext(ctx).Model(&IngestJob{}).Where("id = ?", jobID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("knowledge: update job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("knowledge: job %s: %w", jobID, apperr.ErrNotFound)
	}
	return nil
}
