package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/classdeck/recordings-backend/internal/models"
)

// Store is the catalog access the publisher needs.
type Store interface {
	GetCategoryByName(ctx context.Context, name string) (*models.Category, error)
	GetLiveSessionByID(ctx context.Context, id uuid.UUID) (*models.LiveSession, error)
	CreatePlayableVideo(ctx context.Context, v *models.PlayableVideo) error
	GetPlayableVideoByID(ctx context.Context, id uuid.UUID) (*models.PlayableVideo, error)
	UpdateVideoMedia(ctx context.Context, id uuid.UUID, videoURL string, durationSeconds int, thumbnailURL string) error
}

// PublishInput is the media result being published.
type PublishInput struct {
	VideoURL        string
	DurationSeconds int
	ThumbnailURL    string // empty when thumbnail extraction failed
}

// Publisher turns a completed ingest into a playable video: updating the
// already-linked video in place, or creating one titled and categorized from
// the recording's live session (when linked) or the fallback category.
type Publisher struct {
	store  Store
	logger *zap.Logger
}

// NewPublisher creates a publisher.
func NewPublisher(store Store, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{store: store, logger: logger}
}

// Publish creates or refreshes the playable video for a recording and
// returns it. The caller owns linking the video id back onto the recording.
func (p *Publisher) Publish(ctx context.Context, rec *models.Recording, in PublishInput) (*models.PlayableVideo, error) {
	if in.VideoURL == "" {
		return nil, fmt.Errorf("publish requires a video url")
	}

	if rec.PlayableVideoID != nil {
		err := p.store.UpdateVideoMedia(ctx, *rec.PlayableVideoID, in.VideoURL, in.DurationSeconds, in.ThumbnailURL)
		if err == nil {
			p.logger.Info("playable video refreshed",
				zap.String("video_id", rec.PlayableVideoID.String()),
				zap.String("recording_id", rec.ID.String()))
			return p.store.GetPlayableVideoByID(ctx, *rec.PlayableVideoID)
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("update playable video: %w", err)
		}
		// Stale link; fall through and create a fresh video.
		p.logger.Warn("linked playable video no longer exists, creating a new one",
			zap.String("video_id", rec.PlayableVideoID.String()),
			zap.String("recording_id", rec.ID.String()))
	}

	video := &models.PlayableVideo{
		VideoURL:             in.VideoURL,
		VideoDurationSeconds: in.DurationSeconds,
		ThumbnailURL:         in.ThumbnailURL,
		AutoCreated:          true,
	}

	var session *models.LiveSession
	if rec.LiveSessionID != nil {
		var err error
		session, err = p.store.GetLiveSessionByID(ctx, *rec.LiveSessionID)
		if err != nil {
			return nil, fmt.Errorf("load live session: %w", err)
		}
	}
	if session != nil {
		video.Title = session.Title + " - Recording"
		video.CategoryID = session.CategoryID
		video.IsActive = session.IsActive
		video.IsFree = session.IsFree
	} else {
		cat, err := p.store.GetCategoryByName(ctx, models.UnassignedCategoryName)
		if err != nil {
			return nil, fmt.Errorf("load fallback category: %w", err)
		}
		if cat == nil {
			return nil, fmt.Errorf("fallback category %q is not provisioned", models.UnassignedCategoryName)
		}
		video.Title = "Zoom Recording - " + rec.ProviderMeetingID
		video.CategoryID = cat.ID
	}

	if err := p.store.CreatePlayableVideo(ctx, video); err != nil {
		return nil, fmt.Errorf("create playable video: %w", err)
	}
	p.logger.Info("playable video published",
		zap.String("video_id", video.ID.String()),
		zap.String("recording_id", rec.ID.String()),
		zap.String("title", video.Title),
		zap.Bool("linked_session", session != nil))
	return video, nil
}
