package hosts

import (
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/classdeck/recordings-backend/internal/models"
	"github.com/classdeck/recordings-backend/pkg/response"
)

// Loose shape check only; the allowlist compares exact strings.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Handler handles allowed-host admin endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates a hosts handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// CreateHostRequest is the body for POST /hosts.
type CreateHostRequest struct {
	Email   string `json:"email" binding:"required"`
	Name    string `json:"name"`
	Enabled *bool  `json:"enabled"`
	Notes   string `json:"notes"`
}

// UpdateHostRequest is the body for PATCH /hosts/:id. Absent fields keep
// their current values.
type UpdateHostRequest struct {
	Name    *string `json:"name"`
	Enabled *bool   `json:"enabled"`
	Notes   *string `json:"notes"`
}

// List handles GET /hosts.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to load allowed hosts")
		return
	}
	if list == nil {
		list = []models.AllowedHost{}
	}
	response.OK(c, list)
}

// Create handles POST /hosts.
func (h *Handler) Create(c *gin.Context) {
	var body CreateHostRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "email required")
		return
	}
	email := NormalizeEmail(body.Email)
	if !emailRegex.MatchString(email) {
		response.BadRequest(c, "invalid email address")
		return
	}
	enabled := true
	if body.Enabled != nil {
		enabled = *body.Enabled
	}
	host := &models.AllowedHost{
		Email:   email,
		Name:    strings.TrimSpace(body.Name),
		Enabled: enabled,
		Notes:   strings.TrimSpace(body.Notes),
	}
	created, err := h.repo.Create(c.Request.Context(), host)
	if err != nil {
		response.Internal(c, "failed to create allowed host")
		return
	}
	if !created {
		response.Conflict(c, "This host email is already registered")
		return
	}
	response.Created(c, host)
}

// Update handles PATCH /hosts/:id.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid host id")
		return
	}
	var body UpdateHostRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	host, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load allowed host")
		return
	}
	if host == nil {
		response.NotFound(c, "Allowed host not found")
		return
	}
	if body.Name != nil {
		host.Name = strings.TrimSpace(*body.Name)
	}
	if body.Enabled != nil {
		host.Enabled = *body.Enabled
	}
	if body.Notes != nil {
		host.Notes = strings.TrimSpace(*body.Notes)
	}
	if err := h.repo.Update(c.Request.Context(), host); err != nil {
		response.Internal(c, "failed to update allowed host")
		return
	}
	response.OK(c, host)
}

// Delete handles DELETE /hosts/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid host id")
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		response.NotFound(c, "Allowed host not found")
		return
	}
	response.OK(c, gin.H{"deleted": true})
}

// Extract handles POST /hosts/extract. Seeds allowlist rows from host emails
// observed in the webhook event log; new rows are disabled unless
// enable=true.
func (h *Handler) Extract(c *gin.Context) {
	enable := c.Query("enable") == "true"
	created, err := h.repo.SeedFromEvents(c.Request.Context(), enable)
	if err != nil {
		response.Internal(c, "failed to extract hosts from webhook events")
		return
	}
	response.OK(c, gin.H{"created": created, "enabled": enable})
}
