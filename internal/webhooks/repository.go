package webhooks

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classdeck/recordings-backend/internal/models"
)

// Repository persists the webhook event audit log. Rows are insert-only
// except the processed flag.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a webhooks repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores a received event with its raw payload.
func (r *Repository) Insert(ctx context.Context, ev *models.WebhookEvent) error {
	const q = `INSERT INTO webhook_events (id, event_type, meeting_id, host_email, payload)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		RETURNING id, received_at`
	return r.pool.QueryRow(ctx, q, ev.EventType, ev.MeetingID, ev.HostEmail, ev.Payload).
		Scan(&ev.ID, &ev.ReceivedAt)
}

// MarkProcessed flips the processed flag on an event.
func (r *Repository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE webhook_events SET processed = TRUE WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}
