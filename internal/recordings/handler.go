package recordings

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classdeck/recordings-backend/internal/models"
	"github.com/classdeck/recordings-backend/internal/pipeline"
	"github.com/classdeck/recordings-backend/pkg/response"
	"github.com/classdeck/recordings-backend/pkg/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	dateLayout = "2006-01-02"
)

// Enqueuer nudges the worker pool about a pending recording.
type Enqueuer interface {
	EnqueueProcessRecording(ctx context.Context, recordingID uuid.UUID) error
}

// Syncer runs a date-range reconciliation against the provider.
type Syncer interface {
	SyncRange(ctx context.Context, from, to time.Time) (pipeline.SyncResult, error)
}

// ObjectStore deletes stored media when a recording is removed with cascade.
type ObjectStore interface {
	DeleteObject(ctx context.Context, key string) error
}

// Handler handles recording admin endpoints.
type Handler struct {
	repo       *Repository
	queue      Enqueuer
	syncer     Syncer
	store      ObjectStore
	stuckAfter time.Duration
	syncDays   int
	logger     *zap.Logger
}

// NewHandler creates a recordings handler. store may be nil when object
// storage is not configured; delete_from_storage is then rejected.
func NewHandler(repo *Repository, queue Enqueuer, syncer Syncer, store ObjectStore, stuckAfter time.Duration, syncDays int, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		repo:       repo,
		queue:      queue,
		syncer:     syncer,
		store:      store,
		stuckAfter: stuckAfter,
		syncDays:   syncDays,
		logger:     logger,
	}
}

// List handles GET /recordings with status/meeting_id filters and pagination.
func (h *Handler) List(c *gin.Context) {
	status := c.Query("status")
	if status != "" && !models.ValidRecordingStatus(status) {
		response.BadRequest(c, "invalid status filter")
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	list, total, err := h.repo.List(c.Request.Context(), ListFilter{
		Status:    status,
		MeetingID: c.Query("meeting_id"),
		Limit:     pageSize,
		Offset:    (page - 1) * pageSize,
	})
	if err != nil {
		h.logger.Error("failed to list recordings", zap.Error(err))
		response.Internal(c, "failed to load recordings")
		return
	}
	if list == nil {
		list = []models.Recording{}
	}
	response.Paginated(c, list, response.NewPage(page, pageSize, total))
}

// Stats handles GET /recordings/stats.
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.repo.GetStats(c.Request.Context(), time.Now().Add(-h.stuckAfter))
	if err != nil {
		h.logger.Error("failed to compute recording stats", zap.Error(err))
		response.Internal(c, "failed to load statistics")
		return
	}
	response.OK(c, stats)
}

// Get handles GET /recordings/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}
	rec, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load recording")
		return
	}
	if rec == nil {
		response.NotFound(c, "Recording not found")
		return
	}
	response.OK(c, rec)
}

// Process handles POST /recordings/:id/process: the explicit retry/kick
// endpoint. Completed recordings are refused, in-flight ones conflict,
// failed ones are reset to pending first, then the job is queued.
func (h *Handler) Process(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}
	ctx := c.Request.Context()
	rec, err := h.repo.GetByID(ctx, id)
	if err != nil {
		response.Internal(c, "failed to load recording")
		return
	}
	if rec == nil {
		response.NotFound(c, "Recording not found")
		return
	}

	switch rec.Status {
	case models.RecordingStatusCompleted:
		response.BadRequest(c, "Recording already processed")
		return
	case models.RecordingStatusProcessing:
		response.Conflict(c, "Recording is currently being processed")
		return
	case models.RecordingStatusFailed:
		if _, err := h.repo.Transition(ctx, rec.ID, models.RecordingStatusFailed, models.RecordingStatusPending, models.TransitionFields{}); err != nil {
			if errors.Is(err, models.ErrStatusConflict) {
				response.Conflict(c, "Recording status changed, try again")
				return
			}
			response.Internal(c, "failed to reset recording")
			return
		}
	}

	if err := h.queue.EnqueueProcessRecording(ctx, rec.ID); err != nil {
		// The backlog drain will still pick the pending row up.
		h.logger.Warn("enqueue failed for manual process request",
			zap.String("recording_id", rec.ID.String()),
			zap.Error(err))
	}
	response.Accepted(c, gin.H{"recording_id": rec.ID, "queued": true})
}

// ProcessPending handles POST /recordings/process-pending: queues a job for
// every pending recording.
func (h *Handler) ProcessPending(c *gin.Context) {
	ctx := c.Request.Context()
	ids, err := h.repo.ListPendingIDs(ctx)
	if err != nil {
		response.Internal(c, "failed to load pending recordings")
		return
	}
	queued := 0
	for _, id := range ids {
		if err := h.queue.EnqueueProcessRecording(ctx, id); err != nil {
			h.logger.Warn("enqueue failed", zap.String("recording_id", id.String()), zap.Error(err))
			continue
		}
		queued++
	}
	response.Accepted(c, gin.H{"pending": len(ids), "queued": queued})
}

// SyncRequest is the body for POST /recordings/sync.
type SyncRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// Sync handles POST /recordings/sync: pulls the provider's cloud recording
// listing for a date window through the normal admission path.
func (h *Handler) Sync(c *gin.Context) {
	startStr := c.Query("start_date")
	endStr := c.Query("end_date")
	if startStr == "" && endStr == "" {
		var body SyncRequest
		if err := c.ShouldBindJSON(&body); err == nil {
			startStr, endStr = body.StartDate, body.EndDate
		}
	}

	end := time.Now().UTC().Truncate(24 * time.Hour)
	if endStr != "" {
		t, err := time.Parse(dateLayout, endStr)
		if err != nil {
			response.BadRequest(c, "end_date must be YYYY-MM-DD")
			return
		}
		end = t
	}
	start := end.AddDate(0, 0, -h.syncDays)
	if startStr != "" {
		t, err := time.Parse(dateLayout, startStr)
		if err != nil {
			response.BadRequest(c, "start_date must be YYYY-MM-DD")
			return
		}
		start = t
	}
	if start.After(end) {
		response.BadRequest(c, "start_date must not be after end_date")
		return
	}

	res, err := h.syncer.SyncRange(c.Request.Context(), start, end)
	if err != nil {
		h.logger.Error("recording sync failed",
			zap.Time("start", start), zap.Time("end", end), zap.Error(err))
		response.Internal(c, "sync failed")
		return
	}
	response.OK(c, res)
}

// Delete handles DELETE /recordings/:id with an optional
// delete_from_storage cascade.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}
	ctx := c.Request.Context()
	rec, err := h.repo.GetByID(ctx, id)
	if err != nil {
		response.Internal(c, "failed to load recording")
		return
	}
	if rec == nil {
		response.NotFound(c, "Recording not found")
		return
	}

	cascade := c.Query("delete_from_storage") == "true"
	if cascade {
		if h.store == nil {
			response.BadRequest(c, "object storage is not configured")
			return
		}
		if rec.StorageKey != "" {
			if err := h.store.DeleteObject(ctx, rec.StorageKey); err != nil {
				h.logger.Error("failed to delete stored media",
					zap.String("recording_id", rec.ID.String()),
					zap.String("storage_key", rec.StorageKey),
					zap.Error(err))
				response.Internal(c, "failed to delete stored media")
				return
			}
			// The thumbnail shares the key convention; deleting a missing
			// object is a no-op.
			thumbKey := storage.ThumbnailKey(rec.KeyTime(), rec.ProviderRecordingID)
			if err := h.store.DeleteObject(ctx, thumbKey); err != nil {
				h.logger.Warn("failed to delete thumbnail object",
					zap.String("storage_key", thumbKey), zap.Error(err))
			}
		}
	}

	if err := h.repo.Delete(ctx, id); err != nil {
		response.Internal(c, "failed to delete recording")
		return
	}
	h.logger.Info("recording deleted",
		zap.String("recording_id", id.String()),
		zap.Bool("storage_cascade", cascade))
	response.OK(c, gin.H{"deleted": true})
}
