package models

import (
	"time"

	"github.com/google/uuid"
)

// UnassignedCategoryName is the fallback bucket for recordings without a
// linked live session. The row is provisioned by migration, never created
// lazily.
const UnassignedCategoryName = "Unassigned Recordings"

// Category is a catalog bucket that live sessions and playable videos
// belong to.
type Category struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
