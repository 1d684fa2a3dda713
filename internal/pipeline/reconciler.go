package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classdeck/recordings-backend/internal/models"
	"github.com/classdeck/recordings-backend/internal/zoom"
	"github.com/classdeck/recordings-backend/pkg/storage"
)

const (
	retentionInterval = 24 * time.Hour
	retentionBatch    = 100
)

// jobTicker and tickerFactory let tests drive the periodic loops.
type jobTicker interface {
	C() <-chan time.Time
	Stop()
}

type tickerFactory func(time.Duration) jobTicker

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) jobTicker {
	return timeTicker{t: time.NewTicker(d)}
}

// ReconcilerRegistry is the registry access reconciliation needs.
type ReconcilerRegistry interface {
	ResetStuck(ctx context.Context, cutoff time.Time, message string) (int64, error)
	ListCompletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Recording, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// CloudLister walks the provider's cloud recording listing.
type CloudLister interface {
	ListAllRecordings(ctx context.Context, userID string, from, to time.Time) ([]zoom.Meeting, error)
}

// ObjectDeleter removes stored objects during retention cleanup.
type ObjectDeleter interface {
	DeleteObject(ctx context.Context, key string) error
}

// ReconcilerConfig tunes the recovery jobs.
type ReconcilerConfig struct {
	SyncUserID string
	StuckAfter time.Duration
	CheckEvery time.Duration
	Retention  time.Duration // 0 disables retention cleanup
}

// SyncResult summarizes a date-range sync.
type SyncResult struct {
	Meetings int `json:"meetings"`
	AdmitResult
}

// Reconciler owns the recovery paths around the pipeline: pulling missed
// recordings from the provider listing, resetting stuck processing rows,
// and expiring old completed recordings.
type Reconciler struct {
	cfg       ReconcilerConfig
	registry  ReconcilerRegistry
	admission *Admission
	cloud     CloudLister
	store     ObjectDeleter
	newTicker tickerFactory
	logger    *zap.Logger
}

// NewReconciler creates a reconciler. store may be nil when object storage
// is not configured; retention then removes only the rows.
func NewReconciler(cfg ReconcilerConfig, registry ReconcilerRegistry, admission *Admission, cloud CloudLister, store ObjectDeleter, logger *zap.Logger) *Reconciler {
	if cfg.SyncUserID == "" {
		cfg.SyncUserID = "me"
	}
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = 2 * time.Hour
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		cfg:       cfg,
		registry:  registry,
		admission: admission,
		cloud:     cloud,
		store:     store,
		newTicker: newTimeTicker,
		logger:    logger,
	}
}

// SyncRange lists the provider's cloud recordings in [from, to] and feeds
// every meeting through the same admission path webhooks use. Duplicates
// make re-running a window safe.
func (r *Reconciler) SyncRange(ctx context.Context, from, to time.Time) (SyncResult, error) {
	meetings, err := r.cloud.ListAllRecordings(ctx, r.cfg.SyncUserID, from, to)
	if err != nil {
		return SyncResult{}, fmt.Errorf("list cloud recordings: %w", err)
	}
	res := SyncResult{Meetings: len(meetings)}
	for i := range meetings {
		ar, err := r.admission.AdmitMeeting(ctx, &meetings[i], "")
		if err != nil {
			return res, fmt.Errorf("admit meeting %s: %w", meetings[i].ID, err)
		}
		res.add(ar)
	}
	r.logger.Info("date-range sync finished",
		zap.Time("from", from), zap.Time("to", to),
		zap.Int("meetings", res.Meetings),
		zap.Int("created", res.Created),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("skipped", res.Skipped))
	return res, nil
}

// ResetStuckOnce returns processing rows older than the threshold to
// pending.
func (r *Reconciler) ResetStuckOnce(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-r.cfg.StuckAfter)
	message := fmt.Sprintf("Auto-reset: was stuck in processing for more than %g hours", r.cfg.StuckAfter.Hours())
	return r.registry.ResetStuck(ctx, cutoff, message)
}

// RunRetentionOnce deletes completed recordings older than the retention
// window, stored objects first. Returns how many rows were removed.
func (r *Reconciler) RunRetentionOnce(ctx context.Context) (int, error) {
	if r.cfg.Retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-r.cfg.Retention)
	deleted := 0
	for {
		batch, err := r.registry.ListCompletedBefore(ctx, cutoff, retentionBatch)
		if err != nil {
			return deleted, fmt.Errorf("list expired recordings: %w", err)
		}
		if len(batch) == 0 {
			return deleted, nil
		}
		progress := false
		for i := range batch {
			if r.removeExpired(ctx, &batch[i]) {
				deleted++
				progress = true
			}
		}
		if !progress || len(batch) < retentionBatch {
			return deleted, nil
		}
	}
}

// removeExpired deletes one recording's objects and row. A storage failure
// keeps the row so the next pass retries.
func (r *Reconciler) removeExpired(ctx context.Context, rec *models.Recording) bool {
	if r.store != nil && rec.StorageKey != "" {
		if err := r.store.DeleteObject(ctx, rec.StorageKey); err != nil {
			r.logger.Error("retention: failed to delete stored media",
				zap.String("recording_id", rec.ID.String()),
				zap.String("storage_key", rec.StorageKey),
				zap.Error(err))
			return false
		}
		thumbKey := storage.ThumbnailKey(rec.KeyTime(), rec.ProviderRecordingID)
		if err := r.store.DeleteObject(ctx, thumbKey); err != nil {
			r.logger.Warn("retention: failed to delete thumbnail object",
				zap.String("storage_key", thumbKey), zap.Error(err))
		}
	}
	if err := r.registry.Delete(ctx, rec.ID); err != nil {
		r.logger.Error("retention: failed to delete recording row",
			zap.String("recording_id", rec.ID.String()), zap.Error(err))
		return false
	}
	r.logger.Info("retention: recording expired",
		zap.String("recording_id", rec.ID.String()),
		zap.Time("created_at", rec.CreatedAt))
	return true
}

// Run drives the periodic jobs until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	stuck := r.newTicker(r.cfg.CheckEvery)
	defer stuck.Stop()

	var retentionCh <-chan time.Time
	if r.cfg.Retention > 0 {
		retention := r.newTicker(retentionInterval)
		defer retention.Stop()
		retentionCh = retention.C()
	}

	r.logger.Info("reconciler started",
		zap.Duration("stuck_after", r.cfg.StuckAfter),
		zap.Duration("check_every", r.cfg.CheckEvery),
		zap.Duration("retention", r.cfg.Retention))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stuck.C():
			n, err := r.ResetStuckOnce(ctx)
			if err != nil {
				r.logger.Error("stuck reset failed", zap.Error(err))
			} else if n > 0 {
				r.logger.Warn("reset stuck recordings to pending", zap.Int64("count", n))
			}
		case <-retentionCh:
			n, err := r.RunRetentionOnce(ctx)
			if err != nil {
				r.logger.Error("retention cleanup failed", zap.Int("deleted", n), zap.Error(err))
			} else if n > 0 {
				r.logger.Info("retention cleanup removed recordings", zap.Int("deleted", n))
			}
		}
	}
}
