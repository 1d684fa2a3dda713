package models

import (
	"time"

	"github.com/google/uuid"
)

// PlayableVideo is the externally-visible streamable asset published once
// a recording finishes processing. Unassigned videos stay inactive and
// paid until an operator reviews them.
type PlayableVideo struct {
	ID                   uuid.UUID `json:"id"`
	CategoryID           uuid.UUID `json:"category_id"`
	Title                string    `json:"title"`
	VideoURL             string    `json:"video_url"`
	VideoDurationSeconds int       `json:"video_duration_seconds"`
	ThumbnailURL         string    `json:"thumbnail_url,omitempty"`
	IsActive             bool      `json:"is_active"`
	IsFree               bool      `json:"is_free"`
	AutoCreated          bool      `json:"auto_created"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}
