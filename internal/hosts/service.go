package hosts

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/classdeck/recordings-backend/internal/models"
)

// AllowlistStore is the repository access the service needs.
type AllowlistStore interface {
	GetByEmail(ctx context.Context, email string) (*models.AllowedHost, error)
	Count(ctx context.Context) (int64, error)
}

// Service decides whether a meeting host may create recordings.
type Service struct {
	repo                  AllowlistStore
	allowWhenUnconfigured bool
	logger                *zap.Logger
}

// NewService creates a hosts service. allowWhenUnconfigured controls the
// decision when the allowlist table is completely empty.
func NewService(repo AllowlistStore, allowWhenUnconfigured bool, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, allowWhenUnconfigured: allowWhenUnconfigured, logger: logger}
}

// NormalizeEmail lowercases and trims an email for allowlist comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsAllowed reports whether recordings from this host email are admitted.
// An empty email is never admitted. An email with no allowlist row is
// admitted only when the whole table is empty and the service was configured
// to allow that.
func (s *Service) IsAllowed(ctx context.Context, email string) (bool, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return false, nil
	}
	host, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	if host != nil {
		return host.Enabled, nil
	}
	n, err := s.repo.Count(ctx)
	if err != nil {
		return false, err
	}
	if n == 0 && s.allowWhenUnconfigured {
		s.logger.Warn("allowlist is empty, admitting host by configuration",
			zap.String("email", email))
		return true, nil
	}
	return false, nil
}
