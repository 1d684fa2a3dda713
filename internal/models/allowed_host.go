package models

import (
	"time"

	"github.com/google/uuid"
)

// AllowedHost gates which meeting hosts' recordings are eligible for
// ingestion. A host is allowed only when a row exists with enabled=true.
type AllowedHost struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Enabled   bool      `json:"enabled"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
