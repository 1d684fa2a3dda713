package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/classdeck/recordings-backend/internal/models"
	"github.com/classdeck/recordings-backend/pkg/queue"
)

const (
	// queueWait is how long a worker blocks on the queue before falling
	// back to draining the database backlog.
	queueWait = 5 * time.Second

	// dequeueErrorBackoff avoids a hot loop while redis is unreachable.
	dequeueErrorBackoff = 5 * time.Second
)

// Claimer atomically claims pending recordings for processing.
type Claimer interface {
	ClaimNextPending(ctx context.Context) (*models.Recording, error)
	ClaimByID(ctx context.Context, id uuid.UUID) (*models.Recording, error)
}

// JobQueue is the redis-backed job channel the runner listens on.
type JobQueue interface {
	Dequeue(ctx context.Context, wait time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// RecordingProcessor processes one claimed recording.
type RecordingProcessor interface {
	Process(ctx context.Context, rec *models.Recording) error
}

// Runner drives N workers. Each worker alternates between queue nudges and
// draining the database backlog, so recordings flow even when queue
// messages are lost. Claims, not jobs, grant ownership.
type Runner struct {
	workers   int
	queue     JobQueue
	claims    Claimer
	processor RecordingProcessor
	logger    *zap.Logger
}

// NewRunner creates a runner with the given worker count.
func NewRunner(workers int, jobs JobQueue, claims Claimer, processor RecordingProcessor, logger *zap.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		workers:   workers,
		queue:     jobs,
		claims:    claims,
		processor: processor,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled, then returns ctx's error.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("starting recording workers", zap.Int("workers", r.workers))
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < r.workers; i++ {
		id := i
		g.Go(func() error {
			return r.workerLoop(ctx, id)
		})
	}
	return g.Wait()
}

func (r *Runner) workerLoop(ctx context.Context, id int) error {
	log := r.logger.With(zap.Int("worker", id))
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		job, err := r.queue.Dequeue(ctx, queueWait)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(dequeueErrorBackoff):
			}
			continue
		}
		if job != nil {
			r.handleJob(ctx, log, job)
			continue
		}

		// Queue idle: drain any pending backlog the nudges missed.
		for {
			rec, err := r.claims.ClaimNextPending(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Error("claim next pending failed", zap.Error(err))
				break
			}
			if rec == nil {
				break
			}
			r.processClaimed(ctx, log, rec)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

// handleJob resolves a queue nudge to a claim. Losing the claim is normal
// (another worker or a duplicate nudge); claim infrastructure errors retry
// through the queue and eventually land in the DLQ.
func (r *Runner) handleJob(ctx context.Context, log *zap.Logger, job *queue.Job) {
	if job.Type != queue.JobTypeProcessRecording {
		log.Warn("unknown job type", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		return
	}
	var payload queue.ProcessRecordingPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		log.Warn("undecodable job payload", zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	rec, err := r.claims.ClaimByID(ctx, payload.RecordingID)
	if err != nil {
		log.Error("claim failed, retrying job",
			zap.String("job_id", job.ID),
			zap.String("recording_id", payload.RecordingID.String()),
			zap.Error(err))
		if rerr := r.queue.Retry(ctx, job); rerr != nil {
			log.Error("job retry failed", zap.String("job_id", job.ID), zap.Error(rerr))
		}
		return
	}
	if rec == nil {
		log.Debug("recording not pending, skipping nudge",
			zap.String("recording_id", payload.RecordingID.String()))
		return
	}
	r.processClaimed(ctx, log, rec)
}

func (r *Runner) processClaimed(ctx context.Context, log *zap.Logger, rec *models.Recording) {
	if err := r.processor.Process(ctx, rec); err != nil {
		log.Error("recording processing failed",
			zap.String("recording_id", rec.ID.String()),
			zap.Error(err))
	}
}
