package hosts

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classdeck/recordings-backend/internal/models"
)

// Repository handles allowed-host persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a hosts repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts an allowed host. Returns false when the email is already
// registered.
func (r *Repository) Create(ctx context.Context, host *models.AllowedHost) (bool, error) {
	const q = `INSERT INTO allowed_hosts (id, email, name, enabled, notes)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		ON CONFLICT (email) DO NOTHING
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, host.Email, host.Name, host.Enabled, host.Notes).
		Scan(&host.ID, &host.CreatedAt, &host.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetByID returns an allowed host by ID, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.AllowedHost, error) {
	const q = `SELECT id, email, COALESCE(name,''), enabled, COALESCE(notes,''), created_at, updated_at
		FROM allowed_hosts WHERE id = $1`
	var host models.AllowedHost
	err := r.pool.QueryRow(ctx, q, id).Scan(&host.ID, &host.Email, &host.Name, &host.Enabled, &host.Notes, &host.CreatedAt, &host.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &host, nil
}

// GetByEmail returns an allowed host by exact email, or nil when absent.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.AllowedHost, error) {
	const q = `SELECT id, email, COALESCE(name,''), enabled, COALESCE(notes,''), created_at, updated_at
		FROM allowed_hosts WHERE email = $1`
	var host models.AllowedHost
	err := r.pool.QueryRow(ctx, q, email).Scan(&host.ID, &host.Email, &host.Name, &host.Enabled, &host.Notes, &host.CreatedAt, &host.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &host, nil
}

// List returns all allowed hosts ordered by email.
func (r *Repository) List(ctx context.Context) ([]models.AllowedHost, error) {
	const q = `SELECT id, email, COALESCE(name,''), enabled, COALESCE(notes,''), created_at, updated_at
		FROM allowed_hosts ORDER BY email`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.AllowedHost
	for rows.Next() {
		var host models.AllowedHost
		if err := rows.Scan(&host.ID, &host.Email, &host.Name, &host.Enabled, &host.Notes, &host.CreatedAt, &host.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, host)
	}
	return list, rows.Err()
}

// Update sets mutable fields on an allowed host.
func (r *Repository) Update(ctx context.Context, host *models.AllowedHost) error {
	const q = `UPDATE allowed_hosts SET name = $1, enabled = $2, notes = $3, updated_at = NOW()
		WHERE id = $4`
	ct, err := r.pool.Exec(ctx, q, host.Name, host.Enabled, host.Notes, host.ID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Delete removes an allowed host.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM allowed_hosts WHERE id = $1`
	ct, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Count returns the number of allowlist rows (enabled or not).
func (r *Repository) Count(ctx context.Context) (int64, error) {
	const q = `SELECT COUNT(*) FROM allowed_hosts`
	var n int64
	err := r.pool.QueryRow(ctx, q).Scan(&n)
	return n, err
}

// SeedFromEvents inserts one allowlist row per distinct host email seen in
// webhook events that is not already registered. Returns the number created.
func (r *Repository) SeedFromEvents(ctx context.Context, enabled bool) (int64, error) {
	const q = `INSERT INTO allowed_hosts (id, email, name, enabled, notes)
		SELECT gen_random_uuid(), LOWER(TRIM(host_email)), '', $1, 'Seeded from webhook events'
		FROM webhook_events
		WHERE TRIM(host_email) <> ''
		GROUP BY LOWER(TRIM(host_email))
		ON CONFLICT (email) DO NOTHING`
	ct, err := r.pool.Exec(ctx, q, enabled)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
