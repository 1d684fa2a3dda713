package recordings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classdeck/recordings-backend/internal/models"
)

const recordingColumns = `id, provider_meeting_id, provider_recording_id, provider_meeting_uuid,
	host_email, start_time, end_time, duration_seconds, file_size_bytes, file_type,
	download_url, download_token, storage_key, storage_url, status,
	processing_started_at, processing_completed_at, error_message,
	live_session_id, playable_video_id, created_at, updated_at`

func scanRecording(row pgx.Row) (*models.Recording, error) {
	var rec models.Recording
	err := row.Scan(&rec.ID, &rec.ProviderMeetingID, &rec.ProviderRecordingID, &rec.ProviderMeetingUUID,
		&rec.HostEmail, &rec.StartTime, &rec.EndTime, &rec.DurationSeconds, &rec.FileSizeBytes, &rec.FileType,
		&rec.DownloadURL, &rec.DownloadToken, &rec.StorageKey, &rec.StorageURL, &rec.Status,
		&rec.ProcessingStartedAt, &rec.ProcessingCompletedAt, &rec.ErrorMessage,
		&rec.LiveSessionID, &rec.PlayableVideoID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Repository is the recording registry: the single owner of recording rows
// and their status transitions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a recordings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a pending recording. The provider recording id is the
// idempotency key: an existing row makes this a no-op and Create reports
// false.
func (r *Repository) Create(ctx context.Context, rec *models.Recording) (bool, error) {
	if rec.Status == "" {
		rec.Status = models.RecordingStatusPending
	}
	const q = `INSERT INTO recordings (id, provider_meeting_id, provider_recording_id, provider_meeting_uuid,
			host_email, start_time, end_time, duration_seconds, file_size_bytes, file_type,
			download_url, download_token, status, live_session_id)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (provider_recording_id) DO NOTHING
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q,
		rec.ProviderMeetingID, rec.ProviderRecordingID, rec.ProviderMeetingUUID,
		rec.HostEmail, rec.StartTime, rec.EndTime, rec.DurationSeconds, rec.FileSizeBytes, rec.FileType,
		rec.DownloadURL, rec.DownloadToken, rec.Status, rec.LiveSessionID).
		Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetByID returns a recording, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings WHERE id = $1`
	rec, err := scanRecording(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// GetByProviderRecordingID returns a recording by its provider identity, or
// nil when absent.
func (r *Repository) GetByProviderRecordingID(ctx context.Context, providerRecordingID string) (*models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings WHERE provider_recording_id = $1`
	rec, err := scanRecording(r.pool.QueryRow(ctx, q, providerRecordingID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// ListFilter narrows and pages the recordings listing.
type ListFilter struct {
	Status    string
	MeetingID string
	Limit     int
	Offset    int
}

// List returns one page of recordings newest-first plus the total count for
// the same filter.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]models.Recording, int64, error) {
	var conds []string
	var args []interface{}
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.MeetingID != "" {
		args = append(args, f.MeetingID)
		conds = append(conds, fmt.Sprintf("provider_meeting_id = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM recordings`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset)
	q := `SELECT ` + recordingColumns + ` FROM recordings` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var list []models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *rec)
	}
	return list, total, rows.Err()
}

// Transition moves a recording along one state-machine edge with a single
// conditional update. The edge is validated first; a valid edge whose
// conditional update matches no row returns models.ErrStatusConflict.
//
// Entering processing stamps processing_started_at and clears the error.
// Entering completed requires storage key+URL and stamps completion.
// Entering failed requires an error message and stamps completion.
// Entering pending clears both timestamps and sets the error message from
// fields (empty for a manual retry).
func (r *Repository) Transition(ctx context.Context, id uuid.UUID, from, to string, fields models.TransitionFields) (*models.Recording, error) {
	if !models.ValidTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, to)
	}

	var q string
	var args []interface{}
	switch to {
	case models.RecordingStatusProcessing:
		q = `UPDATE recordings SET status = $1, processing_started_at = now(),
				processing_completed_at = NULL, error_message = '', updated_at = now()
			WHERE id = $2 AND status = $3 RETURNING ` + recordingColumns
		args = []interface{}{to, id, from}
	case models.RecordingStatusCompleted:
		if fields.StorageKey == "" || fields.StorageURL == "" {
			return nil, fmt.Errorf("transition to completed requires storage key and url")
		}
		q = `UPDATE recordings SET status = $1, storage_key = $2, storage_url = $3,
				processing_completed_at = now(), error_message = '', updated_at = now()
			WHERE id = $4 AND status = $5 RETURNING ` + recordingColumns
		args = []interface{}{to, fields.StorageKey, fields.StorageURL, id, from}
	case models.RecordingStatusFailed:
		if fields.ErrorMessage == "" {
			return nil, fmt.Errorf("transition to failed requires an error message")
		}
		q = `UPDATE recordings SET status = $1, error_message = $2,
				processing_completed_at = now(), updated_at = now()
			WHERE id = $3 AND status = $4 RETURNING ` + recordingColumns
		args = []interface{}{to, fields.ErrorMessage, id, from}
	case models.RecordingStatusPending:
		q = `UPDATE recordings SET status = $1, processing_started_at = NULL,
				processing_completed_at = NULL, error_message = $2, updated_at = now()
			WHERE id = $3 AND status = $4 RETURNING ` + recordingColumns
		args = []interface{}{to, fields.ErrorMessage, id, from}
	default:
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrInvalidTransition, to)
	}

	rec, err := scanRecording(r.pool.QueryRow(ctx, q, args...))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, models.ErrStatusConflict
		}
		return nil, err
	}
	return rec, nil
}

// ClaimNextPending atomically claims the oldest pending recording for
// processing. Concurrent claimers skip each other's locked row. Returns nil
// when no pending work exists.
func (r *Repository) ClaimNextPending(ctx context.Context) (*models.Recording, error) {
	q := `UPDATE recordings SET status = $1, processing_started_at = now(),
			processing_completed_at = NULL, error_message = '', updated_at = now()
		WHERE id = (
			SELECT id FROM recordings WHERE status = $2
			ORDER BY created_at LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + recordingColumns
	rec, err := scanRecording(r.pool.QueryRow(ctx, q, models.RecordingStatusProcessing, models.RecordingStatusPending))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// ClaimByID atomically claims one specific recording if it is still pending.
// Returns nil when the row is absent or no longer pending (someone else won).
func (r *Repository) ClaimByID(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	q := `UPDATE recordings SET status = $1, processing_started_at = now(),
			processing_completed_at = NULL, error_message = '', updated_at = now()
		WHERE id = $2 AND status = $3
		RETURNING ` + recordingColumns
	rec, err := scanRecording(r.pool.QueryRow(ctx, q, models.RecordingStatusProcessing, id, models.RecordingStatusPending))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// ListPendingIDs returns every pending recording id, oldest first.
func (r *Repository) ListPendingIDs(ctx context.Context) ([]uuid.UUID, error) {
	const q = `SELECT id FROM recordings WHERE status = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q, models.RecordingStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetPlayableVideo links a recording to its published playable video.
func (r *Repository) SetPlayableVideo(ctx context.Context, recordingID, videoID uuid.UUID) error {
	const q = `UPDATE recordings SET playable_video_id = $1, updated_at = now() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, videoID, recordingID)
	return err
}

// ResetStuck returns processing rows that started strictly before cutoff to
// pending, recording why. Rows claimed after the cutoff are untouched, so a
// live claim cannot be raced.
func (r *Repository) ResetStuck(ctx context.Context, cutoff time.Time, message string) (int64, error) {
	const q = `UPDATE recordings SET status = $1, processing_started_at = NULL,
			processing_completed_at = NULL, error_message = $2, updated_at = now()
		WHERE status = $3 AND processing_started_at < $4`
	ct, err := r.pool.Exec(ctx, q,
		models.RecordingStatusPending, message, models.RecordingStatusProcessing, cutoff)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

// ListCompletedBefore returns completed recordings created before cutoff,
// oldest first, for retention cleanup.
func (r *Repository) ListCompletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings
		WHERE status = $1 AND created_at < $2 ORDER BY created_at LIMIT $3`
	rows, err := r.pool.Query(ctx, q, models.RecordingStatusCompleted, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}

// Stats is the shape of the registry statistics view.
type Stats struct {
	Total            int64            `json:"total"`
	ByStatus         map[string]int64 `json:"by_status"`
	PotentiallyStuck int64            `json:"potentially_stuck"`
}

// GetStats counts recordings per status plus processing rows older than
// stuckCutoff.
func (r *Repository) GetStats(ctx context.Context, stuckCutoff time.Time) (*Stats, error) {
	stats := &Stats{ByStatus: map[string]int64{
		models.RecordingStatusPending:    0,
		models.RecordingStatusProcessing: 0,
		models.RecordingStatusCompleted:  0,
		models.RecordingStatusFailed:     0,
	}}

	const countsQ = `SELECT status, COUNT(*) FROM recordings GROUP BY status`
	rows, err := r.pool.Query(ctx, countsQ)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats.ByStatus[status] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const stuckQ = `SELECT COUNT(*) FROM recordings WHERE status = $1 AND processing_started_at < $2`
	if err := r.pool.QueryRow(ctx, stuckQ, models.RecordingStatusProcessing, stuckCutoff).Scan(&stats.PotentiallyStuck); err != nil {
		return nil, err
	}
	return stats, nil
}

// Delete removes a recording row.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM recordings WHERE id = $1`
	ct, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
