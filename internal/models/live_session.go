package models

import (
	"time"

	"github.com/google/uuid"
)

// LiveSession is the scheduled class a provider meeting belongs to. The
// pipeline only reads it: the provider meeting id lookup supplies title,
// category, and publish flags for the recording's playable video.
type LiveSession struct {
	ID                uuid.UUID  `json:"id"`
	CategoryID        uuid.UUID  `json:"category_id"`
	Title             string     `json:"title"`
	ProviderMeetingID string     `json:"provider_meeting_id,omitempty"`
	IsFree            bool       `json:"is_free"`
	IsActive          bool       `json:"is_active"`
	ScheduledStart    *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd      *time.Time `json:"scheduled_end,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
