package knowledge

import (
	"context"

	"github.com/rs/zerolog/log"

	"supportdesk_back/metrics"
)

// DefaultMaxJobsPerRun keeps one invocation inside a scheduler's wall-clock
// budget.
const DefaultMaxJobsPerRun = 2

// Ingester runs the pipeline for one document.
type Ingester interface {
	Ingest(ctx context.Context, documentID string, raw []byte) error
}

// WorkerResult summarises one RunOnce call.
type WorkerResult struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

// Worker drains a bounded number of ingest jobs per invocation.
type Worker struct {
	queue    JobQueue
	ingester Ingester
	maxJobs  int
	metrics  *metrics.Metrics
}

func NewWorker(queue JobQueue, ingester Ingester, maxJobs int, m *metrics.Metrics) *Worker {
	if maxJobs <= 0 {
		maxJobs = DefaultMaxJobsPerRun
	}
	return &Worker{queue: queue, ingester: ingester, maxJobs: maxJobs, metrics: m}
}

// RunOnce claims and processes up to maxJobs jobs, then returns. A
// pipeline failure marks the job as error and counts toward Errors; a claim
// failure ends the run early.
func (w *Worker) RunOnce(ctx context.Context) WorkerResult {
	var result WorkerResult
	for i := 0; i < w.maxJobs; i++ {
		job, err := w.queue.ClaimOne(ctx)
		if err != nil {
			log.Error().Err(err).Msg("claim ingest job")
			break
		}
		if job == nil {
			break
		}

		logger := log.With().Str("job_id", job.ID).Str("document_id", job.DocumentID).Int("attempt", job.Attempts).Logger()
		if ingestErr := w.ingester.Ingest(ctx, job.DocumentID, nil); ingestErr != nil {
			result.Errors++
			w.metrics.ObserveWorkerJob(JobError)
			writeCtx, cancel := detached(ctx)
			if err := w.queue.MarkError(writeCtx, job.ID, ingestErr.Error()); err != nil {
				logger.Error().Err(err).Msg("mark job error")
			}
			cancel()
			logger.Warn().Err(ingestErr).Msg("ingest job failed")
		} else {
			w.metrics.ObserveWorkerJob(JobDone)
			writeCtx, cancel := detached(ctx)
			if err := w.queue.MarkDone(writeCtx, job.ID); err != nil {
				logger.Error().Err(err).Msg("mark job done")
			}
			cancel()
			logger.Info().Msg("ingest job done")
			result.Processed++
		}
	}
	return result
}
