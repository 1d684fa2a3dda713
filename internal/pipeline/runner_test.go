package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classdeck/recordings-backend/internal/models"
	"github.com/classdeck/recordings-backend/pkg/queue"
)

type runnerClaims struct {
	mu      sync.Mutex
	pending []*models.Recording
	byID    map[uuid.UUID]*models.Recording
	nextErr error
	byIDErr error
	claimed []uuid.UUID
}

func (c *runnerClaims) ClaimNextPending(_ context.Context) (*models.Recording, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nextErr != nil {
		return nil, c.nextErr
	}
	if len(c.pending) == 0 {
		return nil, nil
	}
	rec := c.pending[0]
	c.pending = c.pending[1:]
	c.claimed = append(c.claimed, rec.ID)
	return rec, nil
}

func (c *runnerClaims) ClaimByID(_ context.Context, id uuid.UUID) (*models.Recording, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.byIDErr != nil {
		return nil, c.byIDErr
	}
	rec := c.byID[id]
	if rec != nil {
		c.claimed = append(c.claimed, rec.ID)
	}
	return rec, nil
}

type runnerQueue struct {
	mu      sync.Mutex
	jobs    []*queue.Job
	retried []*queue.Job
}

func (q *runnerQueue) Dequeue(ctx context.Context, _ time.Duration) (*queue.Job, error) {
	q.mu.Lock()
	if len(q.jobs) > 0 {
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()
		return job, nil
	}
	q.mu.Unlock()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Millisecond):
	}
	return nil, nil
}

func (q *runnerQueue) Retry(_ context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retried = append(q.retried, job)
	return nil
}

type countingProcessor struct {
	mu        sync.Mutex
	err       error
	processed []uuid.UUID
}

func (p *countingProcessor) Process(_ context.Context, rec *models.Recording) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed = append(p.processed, rec.ID)
	return p.err
}

func (p *countingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.processed)
}

func processJob(t *testing.T, recordingID uuid.UUID) *queue.Job {
	t.Helper()
	payload, err := json.Marshal(queue.ProcessRecordingPayload{RecordingID: recordingID})
	require.NoError(t, err)
	return &queue.Job{
		ID:      uuid.New().String(),
		Type:    queue.JobTypeProcessRecording,
		Payload: payload,
	}
}

func TestHandleJob(t *testing.T) {
	rec := &models.Recording{ID: uuid.New(), Status: models.RecordingStatusPending}
	claims := &runnerClaims{byID: map[uuid.UUID]*models.Recording{rec.ID: rec}}
	jobs := &runnerQueue{}
	proc := &countingProcessor{}
	r := NewRunner(1, jobs, claims, proc, nil)

	r.handleJob(context.Background(), zap.NewNop(), processJob(t, rec.ID))
	assert.Equal(t, []uuid.UUID{rec.ID}, proc.processed)
}

func TestHandleJobUnknownType(t *testing.T) {
	claims := &runnerClaims{byID: map[uuid.UUID]*models.Recording{}}
	proc := &countingProcessor{}
	r := NewRunner(1, &runnerQueue{}, claims, proc, nil)

	r.handleJob(context.Background(), zap.NewNop(), &queue.Job{ID: "j1", Type: "send_email"})
	assert.Empty(t, proc.processed)
	assert.Empty(t, claims.claimed)
}

func TestHandleJobBadPayload(t *testing.T) {
	claims := &runnerClaims{byID: map[uuid.UUID]*models.Recording{}}
	proc := &countingProcessor{}
	r := NewRunner(1, &runnerQueue{}, claims, proc, nil)

	r.handleJob(context.Background(), zap.NewNop(), &queue.Job{
		ID:      "j1",
		Type:    queue.JobTypeProcessRecording,
		Payload: json.RawMessage(`{"recording_id": 42}`),
	})
	assert.Empty(t, proc.processed)
	assert.Empty(t, claims.claimed)
}

func TestHandleJobLostClaim(t *testing.T) {
	claims := &runnerClaims{byID: map[uuid.UUID]*models.Recording{}}
	jobs := &runnerQueue{}
	proc := &countingProcessor{}
	r := NewRunner(1, jobs, claims, proc, nil)

	r.handleJob(context.Background(), zap.NewNop(), processJob(t, uuid.New()))
	assert.Empty(t, proc.processed, "a nudge for a non-pending recording is dropped")
	assert.Empty(t, jobs.retried)
}

func TestHandleJobClaimErrorRetries(t *testing.T) {
	claims := &runnerClaims{byIDErr: errors.New("db down")}
	jobs := &runnerQueue{}
	proc := &countingProcessor{}
	r := NewRunner(1, jobs, claims, proc, nil)

	job := processJob(t, uuid.New())
	r.handleJob(context.Background(), zap.NewNop(), job)
	assert.Empty(t, proc.processed)
	require.Len(t, jobs.retried, 1)
	assert.Equal(t, job.ID, jobs.retried[0].ID)
}

func TestRunnerDrainsQueueAndBacklog(t *testing.T) {
	nudged := &models.Recording{ID: uuid.New(), Status: models.RecordingStatusPending}
	backlogged := &models.Recording{ID: uuid.New(), Status: models.RecordingStatusPending}

	claims := &runnerClaims{
		byID:    map[uuid.UUID]*models.Recording{nudged.ID: nudged},
		pending: []*models.Recording{backlogged},
	}
	jobs := &runnerQueue{jobs: []*queue.Job{processJob(t, nudged.ID)}}
	proc := &countingProcessor{}
	r := NewRunner(2, jobs, claims, proc, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return proc.count() == 2 },
		2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop on cancel")
	}

	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.ElementsMatch(t, []uuid.UUID{nudged.ID, backlogged.ID}, proc.processed)
}

func TestRunnerProcessFailureDoesNotStopWorker(t *testing.T) {
	recA := &models.Recording{ID: uuid.New(), Status: models.RecordingStatusPending}
	recB := &models.Recording{ID: uuid.New(), Status: models.RecordingStatusPending}

	claims := &runnerClaims{pending: []*models.Recording{recA, recB}}
	proc := &countingProcessor{err: errors.New("process recording: download failed")}
	r := NewRunner(1, &runnerQueue{}, claims, proc, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return proc.count() == 2 },
		2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
