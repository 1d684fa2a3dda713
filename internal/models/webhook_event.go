package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WebhookEvent is the immutable audit record of one received provider
// event. Only the processed flag is ever updated after insert.
type WebhookEvent struct {
	ID         uuid.UUID       `json:"id"`
	EventType  string          `json:"event_type"`
	MeetingID  string          `json:"meeting_id,omitempty"`
	HostEmail  string          `json:"host_email,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	Processed  bool            `json:"processed"`
	ReceivedAt time.Time       `json:"received_at"`
}
