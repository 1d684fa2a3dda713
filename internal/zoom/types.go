package zoom

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Webhook event types the intake cares about.
const (
	EventRecordingCompleted = "recording.completed"
	EventURLValidation      = "endpoint.url_validation"
)

// MeetingID tolerates the provider sending meeting ids as JSON numbers
// (recording payloads) or strings (meeting payloads).
type MeetingID string

// UnmarshalJSON accepts both `123` and `"123"`.
func (m *MeetingID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*m = MeetingID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*m = MeetingID(n.String())
	return nil
}

func (m MeetingID) String() string { return string(m) }

// RecordingFile is a single recorded asset of a meeting.
type RecordingFile struct {
	ID             string    `json:"id"`
	MeetingID      string    `json:"meeting_id,omitempty"`
	RecordingStart time.Time `json:"recording_start"`
	RecordingEnd   time.Time `json:"recording_end"`
	FileType       string    `json:"file_type"`
	FileExtension  string    `json:"file_extension,omitempty"`
	FileSize       int64     `json:"file_size"`
	DownloadURL    string    `json:"download_url"`
	Status         string    `json:"status,omitempty"`
	RecordingType  string    `json:"recording_type,omitempty"`
}

// IsVideo reports whether the file is the playable MP4 asset (as opposed
// to audio-only, chat transcripts, etc.).
func (f RecordingFile) IsVideo() bool {
	return strings.EqualFold(f.FileType, "MP4")
}

// Meeting is one cloud-recorded meeting occurrence, as returned by the
// recordings API or carried in a recording.completed webhook payload.
type Meeting struct {
	UUID           string          `json:"uuid"`
	ID             MeetingID       `json:"id"`
	HostID         string          `json:"host_id,omitempty"`
	HostEmail      string          `json:"host_email,omitempty"`
	Topic          string          `json:"topic,omitempty"`
	StartTime      time.Time       `json:"start_time"`
	Duration       int             `json:"duration,omitempty"` // minutes
	TotalSize      int64           `json:"total_size,omitempty"`
	RecordingCount int             `json:"recording_count,omitempty"`
	RecordingFiles []RecordingFile `json:"recording_files"`
}

// ListRecordingsResponse is one page of the user recordings listing.
type ListRecordingsResponse struct {
	From          string    `json:"from"`
	To            string    `json:"to"`
	PageCount     int       `json:"page_count,omitempty"`
	PageSize      int       `json:"page_size,omitempty"`
	TotalRecords  int       `json:"total_records,omitempty"`
	NextPageToken string    `json:"next_page_token,omitempty"`
	Meetings      []Meeting `json:"meetings"`
}

// WebhookPayload is the payload block of a webhook envelope.
type WebhookPayload struct {
	AccountID  string   `json:"account_id,omitempty"`
	PlainToken string   `json:"plainToken,omitempty"`
	Object     *Meeting `json:"object,omitempty"`
}

// WebhookEnvelope is the provider webhook body. The download token sits at
// the top level: its scope is the whole event, not a single file.
type WebhookEnvelope struct {
	Event         string         `json:"event"`
	EventTS       int64          `json:"event_ts,omitempty"`
	Payload       WebhookPayload `json:"payload"`
	DownloadToken string         `json:"download_token,omitempty"`
	Challenge     string         `json:"challenge,omitempty"`
}

// Config holds provider credentials and endpoints.
type Config struct {
	AccountID     string
	ClientID      string
	ClientSecret  string
	WebhookSecret string
	APIBaseURL    string
	TokenURL      string
	SyncUserID    string
}
