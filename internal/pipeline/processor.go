package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classdeck/recordings-backend/internal/catalog"
	"github.com/classdeck/recordings-backend/internal/models"
	"github.com/classdeck/recordings-backend/internal/thumbnail"
	"github.com/classdeck/recordings-backend/pkg/storage"
)

// Registry is the transition/link access the processor needs.
type Registry interface {
	Transition(ctx context.Context, id uuid.UUID, from, to string, fields models.TransitionFields) (*models.Recording, error)
	SetPlayableVideo(ctx context.Context, recordingID, videoID uuid.UUID) error
}

// MediaDownloader fetches recording media from the provider.
type MediaDownloader interface {
	Download(ctx context.Context, downloadURL, downloadToken string) ([]byte, error)
}

// MediaStore uploads media to durable object storage and returns its public
// URL.
type MediaStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) (string, error)
}

// Thumbnailer extracts a frame from media. Errors are non-fatal.
type Thumbnailer interface {
	Extract(ctx context.Context, media []byte) (*thumbnail.Result, error)
}

// VideoPublisher publishes a completed ingest as a playable video.
type VideoPublisher interface {
	Publish(ctx context.Context, rec *models.Recording, in catalog.PublishInput) (*models.PlayableVideo, error)
}

// Processor runs one claimed recording through download → upload →
// thumbnail → publish → completed. The input row must already be in
// processing (claimed); every exit path leaves it in completed or failed
// except a lost status race, which is logged and surfaced.
type Processor struct {
	registry   Registry
	downloader MediaDownloader
	store      MediaStore
	thumbs     Thumbnailer
	publisher  VideoPublisher
	logger     *zap.Logger
}

// NewProcessor creates a processor. thumbs may be nil to disable thumbnail
// extraction.
func NewProcessor(registry Registry, downloader MediaDownloader, store MediaStore, thumbs Thumbnailer, publisher VideoPublisher, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		registry:   registry,
		downloader: downloader,
		store:      store,
		thumbs:     thumbs,
		publisher:  publisher,
		logger:     logger,
	}
}

// Process ingests one claimed recording.
func (p *Processor) Process(ctx context.Context, rec *models.Recording) error {
	start := time.Now()
	log := p.logger.With(
		zap.String("recording_id", rec.ID.String()),
		zap.String("provider_recording_id", rec.ProviderRecordingID))

	if rec.DownloadURL == "" {
		return p.fail(ctx, rec, "recording has no download url")
	}

	media, err := p.downloader.Download(ctx, rec.DownloadURL, rec.DownloadToken)
	if err != nil {
		return p.fail(ctx, rec, fmt.Sprintf("download failed: %v", err))
	}
	if len(media) == 0 {
		return p.fail(ctx, rec, "download returned no data")
	}
	log.Info("media downloaded", zap.Int("bytes", len(media)))

	key := storage.RecordingKey(rec.KeyTime(), rec.ProviderRecordingID, rec.FileType)
	videoURL, err := p.store.Upload(ctx, key, "video/mp4", bytes.NewReader(media), int64(len(media)))
	if err != nil {
		return p.fail(ctx, rec, fmt.Sprintf("upload failed: %v", err))
	}
	log.Info("media uploaded", zap.String("storage_key", key))

	thumbnailURL := ""
	durationSeconds := rec.DurationSeconds
	if p.thumbs != nil {
		res, terr := p.thumbs.Extract(ctx, media)
		if terr != nil {
			log.Warn("thumbnail extraction failed, continuing without one", zap.Error(terr))
		} else {
			if res.Duration > 0 {
				durationSeconds = int(math.Round(res.Duration))
			}
			thumbKey := storage.ThumbnailKey(rec.KeyTime(), rec.ProviderRecordingID)
			url, uerr := p.store.Upload(ctx, thumbKey, "image/jpeg", bytes.NewReader(res.JPEG), int64(len(res.JPEG)))
			if uerr != nil {
				log.Warn("thumbnail upload failed, continuing without one", zap.Error(uerr))
			} else {
				thumbnailURL = url
			}
		}
	}

	video, err := p.publisher.Publish(ctx, rec, catalog.PublishInput{
		VideoURL:        videoURL,
		DurationSeconds: durationSeconds,
		ThumbnailURL:    thumbnailURL,
	})
	if err != nil {
		return p.fail(ctx, rec, fmt.Sprintf("publish failed: %v", err))
	}
	if err := p.registry.SetPlayableVideo(ctx, rec.ID, video.ID); err != nil {
		return p.fail(ctx, rec, fmt.Sprintf("link playable video: %v", err))
	}

	if _, err := p.registry.Transition(ctx, rec.ID, models.RecordingStatusProcessing, models.RecordingStatusCompleted,
		models.TransitionFields{StorageKey: key, StorageURL: videoURL}); err != nil {
		log.Error("failed to mark recording completed", zap.Error(err))
		return fmt.Errorf("complete recording %s: %w", rec.ID, err)
	}

	log.Info("recording processed",
		zap.String("video_id", video.ID.String()),
		zap.Bool("thumbnail", thumbnailURL != ""),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// fail records the error on the recording and moves it to failed. The
// returned error carries the original message for the caller's log.
func (p *Processor) fail(ctx context.Context, rec *models.Recording, msg string) error {
	if _, err := p.registry.Transition(ctx, rec.ID, models.RecordingStatusProcessing, models.RecordingStatusFailed,
		models.TransitionFields{ErrorMessage: msg}); err != nil {
		p.logger.Error("failed to mark recording failed",
			zap.String("recording_id", rec.ID.String()),
			zap.String("cause", msg),
			zap.Error(err))
	}
	return fmt.Errorf("process recording %s: %s", rec.ID, msg)
}
