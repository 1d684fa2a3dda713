package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classdeck/recordings-backend/internal/models"
)

// Repository reads and writes the platform catalog tables the pipeline
// collaborates with: categories, live sessions, playable videos.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a catalog repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetCategoryByName returns a category, or nil when absent.
func (r *Repository) GetCategoryByName(ctx context.Context, name string) (*models.Category, error) {
	const q = `SELECT id, name, COALESCE(description,''), created_at, updated_at
		FROM categories WHERE name = $1`
	var cat models.Category
	err := r.pool.QueryRow(ctx, q, name).Scan(&cat.ID, &cat.Name, &cat.Description, &cat.CreatedAt, &cat.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &cat, nil
}

// GetLiveSessionByID returns a live session, or nil when absent.
func (r *Repository) GetLiveSessionByID(ctx context.Context, id uuid.UUID) (*models.LiveSession, error) {
	const q = `SELECT id, category_id, title, COALESCE(provider_meeting_id,''), is_free, is_active,
			scheduled_start, scheduled_end, created_at, updated_at
		FROM live_sessions WHERE id = $1`
	var s models.LiveSession
	err := r.pool.QueryRow(ctx, q, id).Scan(&s.ID, &s.CategoryID, &s.Title, &s.ProviderMeetingID,
		&s.IsFree, &s.IsActive, &s.ScheduledStart, &s.ScheduledEnd, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// GetLiveSessionByProviderMeetingID returns the most recent live session
// scheduled for a provider meeting id, or nil when none is.
func (r *Repository) GetLiveSessionByProviderMeetingID(ctx context.Context, providerMeetingID string) (*models.LiveSession, error) {
	const q = `SELECT id, category_id, title, COALESCE(provider_meeting_id,''), is_free, is_active,
			scheduled_start, scheduled_end, created_at, updated_at
		FROM live_sessions WHERE provider_meeting_id = $1
		ORDER BY created_at DESC LIMIT 1`
	var s models.LiveSession
	err := r.pool.QueryRow(ctx, q, providerMeetingID).Scan(&s.ID, &s.CategoryID, &s.Title, &s.ProviderMeetingID,
		&s.IsFree, &s.IsActive, &s.ScheduledStart, &s.ScheduledEnd, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// CreatePlayableVideo inserts a playable video.
func (r *Repository) CreatePlayableVideo(ctx context.Context, v *models.PlayableVideo) error {
	const q = `INSERT INTO playable_videos (id, category_id, title, video_url, video_duration_seconds,
			thumbnail_url, is_active, is_free, auto_created)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, v.CategoryID, v.Title, v.VideoURL, v.VideoDurationSeconds,
		v.ThumbnailURL, v.IsActive, v.IsFree, v.AutoCreated).
		Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
}

// GetPlayableVideoByID returns a playable video, or nil when absent.
func (r *Repository) GetPlayableVideoByID(ctx context.Context, id uuid.UUID) (*models.PlayableVideo, error) {
	const q = `SELECT id, category_id, title, video_url, video_duration_seconds,
			COALESCE(thumbnail_url,''), is_active, is_free, auto_created, created_at, updated_at
		FROM playable_videos WHERE id = $1`
	var v models.PlayableVideo
	err := r.pool.QueryRow(ctx, q, id).Scan(&v.ID, &v.CategoryID, &v.Title, &v.VideoURL, &v.VideoDurationSeconds,
		&v.ThumbnailURL, &v.IsActive, &v.IsFree, &v.AutoCreated, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

// UpdateVideoMedia refreshes the media fields of an existing playable video.
// The thumbnail is only replaced when a new one is given. Returns
// pgx.ErrNoRows when the video no longer exists.
func (r *Repository) UpdateVideoMedia(ctx context.Context, id uuid.UUID, videoURL string, durationSeconds int, thumbnailURL string) error {
	const q = `UPDATE playable_videos SET video_url = $1, video_duration_seconds = $2,
			thumbnail_url = CASE WHEN $3 <> '' THEN $3 ELSE thumbnail_url END,
			updated_at = now()
		WHERE id = $4`
	ct, err := r.pool.Exec(ctx, q, videoURL, durationSeconds, thumbnailURL, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
