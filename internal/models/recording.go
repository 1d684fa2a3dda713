package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Recording lifecycle statuses.
const (
	RecordingStatusPending    = "pending"
	RecordingStatusProcessing = "processing"
	RecordingStatusCompleted  = "completed"
	RecordingStatusFailed     = "failed"
)

// ErrInvalidTransition means the requested status edge is not in the state
// machine.
var ErrInvalidTransition = errors.New("invalid recording status transition")

// ErrStatusConflict means a recording's status changed concurrently and a
// conditional update matched nothing.
var ErrStatusConflict = errors.New("recording status changed concurrently")

// TransitionFields carries the per-edge payload for a status transition:
// storage results when entering completed, the error message when entering
// failed (or the stuck-reset explanation when returning to pending).
type TransitionFields struct {
	StorageKey   string
	StorageURL   string
	ErrorMessage string
}

// validTransitions enumerates the allowed status edges. pending→processing
// is the worker claim, failed→pending the explicit retry, and
// processing→pending the stuck-job reset.
var validTransitions = map[string][]string{
	RecordingStatusPending:    {RecordingStatusProcessing},
	RecordingStatusProcessing: {RecordingStatusCompleted, RecordingStatusFailed, RecordingStatusPending},
	RecordingStatusFailed:     {RecordingStatusPending},
	RecordingStatusCompleted:  {},
}

// ValidTransition reports whether the status edge from→to is allowed.
func ValidTransition(from, to string) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidRecordingStatus reports whether s is one of the lifecycle statuses.
func ValidRecordingStatus(s string) bool {
	_, ok := validTransitions[s]
	return ok
}

// Recording is one source media file for one provider meeting occurrence
// (provider cloud recording → object storage).
type Recording struct {
	ID                    uuid.UUID  `json:"id"`
	ProviderMeetingID     string     `json:"provider_meeting_id"`
	ProviderRecordingID   string     `json:"provider_recording_id"`
	ProviderMeetingUUID   string     `json:"provider_meeting_uuid,omitempty"`
	HostEmail             string     `json:"host_email,omitempty"`
	StartTime             *time.Time `json:"start_time,omitempty"`
	EndTime               *time.Time `json:"end_time,omitempty"`
	DurationSeconds       int        `json:"duration_seconds"`
	FileSizeBytes         int64      `json:"file_size_bytes"`
	FileType              string     `json:"file_type"`
	DownloadURL           string     `json:"download_url,omitempty"`
	DownloadToken         string     `json:"-"`
	StorageKey            string     `json:"storage_key,omitempty"`
	StorageURL            string     `json:"storage_url,omitempty"`
	Status                string     `json:"status"`
	ProcessingStartedAt   *time.Time `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at,omitempty"`
	ErrorMessage          string     `json:"error_message,omitempty"`
	LiveSessionID         *uuid.UUID `json:"live_session_id,omitempty"`
	PlayableVideoID       *uuid.UUID `json:"playable_video_id,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// KeyTime returns the timestamp used in storage object keys: the recording
// start time when known, else the row creation time.
func (r *Recording) KeyTime() time.Time {
	if r.StartTime != nil && !r.StartTime.IsZero() {
		return *r.StartTime
	}
	return r.CreatedAt
}
