// Package quota tracks per-user acquisition quotas consumed by the
// routing approval gate.
package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/media"
	"github.com/helmarr/helmarr/internal/routing"
)

// Quota period types.
const (
	TypeDaily         = "daily"
	TypeWeeklyRolling = "weekly_rolling"
	TypeMonthly       = "monthly"
)

var ErrQuotaNotFound = errors.New("quota not found")

// Limit is a configured per-user, per-content-type quota.
type Limit struct {
	UserID         int64  `json:"userId"`
	ContentType    string `json:"contentType"`
	QuotaType      string `json:"quotaType"`
	QuotaLimit     int64  `json:"quotaLimit"`
	BypassApproval bool   `json:"bypassApproval"`
}

// Service provides quota accounting. A user without a configured limit
// is unlimited.
type Service struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates a quota service.
func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "quota").Logger(),
		now:    time.Now,
	}
}

// Status returns the user's quota state for a content type. Implements
// the routing engine's QuotaChecker.
func (s *Service) Status(ctx context.Context, userID int64, t media.ContentType) (*routing.QuotaStatus, error) {
	limit, err := s.limit(ctx, userID, string(t))
	if err != nil {
		if errors.Is(err, ErrQuotaNotFound) {
			return &routing.QuotaStatus{Exceeded: false}, nil
		}
		return nil, err
	}

	usage, err := s.usageSince(ctx, userID, string(t), s.periodStart(limit.QuotaType))
	if err != nil {
		return nil, err
	}

	return &routing.QuotaStatus{
		Exceeded:     limit.QuotaLimit > 0 && usage >= limit.QuotaLimit,
		QuotaType:    limit.QuotaType,
		CurrentUsage: usage,
		QuotaLimit:   limit.QuotaLimit,
	}, nil
}

// BypassesQuotas reports whether any of the user's quota configurations
// carries the bypass-approval flag.
func (s *Service) BypassesQuotas(ctx context.Context, userID int64) (bool, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM user_quotas WHERE user_id = ? AND bypass_approval = 1", userID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check quota bypass: %w", err)
	}
	return count > 0, nil
}

// RecordUsage counts one acquisition against the user's quota.
func (s *Service) RecordUsage(ctx context.Context, userID int64, t media.ContentType) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO quota_usage (user_id, content_type, recorded_at) VALUES (?, ?, ?)",
		userID, string(t), s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record quota usage: %w", err)
	}
	return nil
}

// SetLimit configures or replaces a user's quota for a content type.
func (s *Service) SetLimit(ctx context.Context, limit Limit) error {
	switch limit.QuotaType {
	case TypeDaily, TypeWeeklyRolling, TypeMonthly:
	default:
		return fmt.Errorf("unknown quota type %q", limit.QuotaType)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_quotas (user_id, content_type, quota_type, quota_limit, bypass_approval)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, content_type) DO UPDATE SET
			quota_type = excluded.quota_type,
			quota_limit = excluded.quota_limit,
			bypass_approval = excluded.bypass_approval,
			updated_at = CURRENT_TIMESTAMP`,
		limit.UserID, limit.ContentType, limit.QuotaType, limit.QuotaLimit, boolToInt(limit.BypassApproval))
	if err != nil {
		return fmt.Errorf("failed to set quota limit: %w", err)
	}
	return nil
}

// ClearLimit removes a user's quota configuration, making them
// unlimited again.
func (s *Service) ClearLimit(ctx context.Context, userID int64, contentType string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM user_quotas WHERE user_id = ? AND content_type = ?", userID, contentType)
	if err != nil {
		return fmt.Errorf("failed to clear quota limit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrQuotaNotFound
	}
	return nil
}

// Limits returns all configured quotas for one user.
func (s *Service) Limits(ctx context.Context, userID int64) ([]Limit, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id, content_type, quota_type, quota_limit, bypass_approval FROM user_quotas WHERE user_id = ?",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query quotas: %w", err)
	}
	defer rows.Close()

	var limits []Limit
	for rows.Next() {
		var (
			limit  Limit
			bypass int64
		)
		if err := rows.Scan(&limit.UserID, &limit.ContentType, &limit.QuotaType, &limit.QuotaLimit, &bypass); err != nil {
			return nil, err
		}
		limit.BypassApproval = bypass == 1
		limits = append(limits, limit)
	}
	return limits, rows.Err()
}

// PruneUsage deletes usage rows older than any live quota window.
// Run periodically by the scheduler; 62 days covers the monthly window
// with slack.
func (s *Service) PruneUsage(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -62)
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM quota_usage WHERE recorded_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune quota usage: %w", err)
	}
	pruned, _ := res.RowsAffected()
	if pruned > 0 {
		s.logger.Info().Int64("rows", pruned).Msg("pruned old quota usage")
	}
	return pruned, nil
}

func (s *Service) limit(ctx context.Context, userID int64, contentType string) (*Limit, error) {
	var (
		limit  Limit
		bypass int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id, content_type, quota_type, quota_limit, bypass_approval FROM user_quotas WHERE user_id = ? AND content_type = ?",
		userID, contentType).Scan(&limit.UserID, &limit.ContentType, &limit.QuotaType, &limit.QuotaLimit, &bypass)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuotaNotFound
		}
		return nil, fmt.Errorf("failed to get quota limit: %w", err)
	}
	limit.BypassApproval = bypass == 1
	return &limit, nil
}

func (s *Service) usageSince(ctx context.Context, userID int64, contentType string, since time.Time) (int64, error) {
	var usage int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM quota_usage WHERE user_id = ? AND content_type = ? AND recorded_at >= ?",
		userID, contentType, since).Scan(&usage)
	if err != nil {
		return 0, fmt.Errorf("failed to count quota usage: %w", err)
	}
	return usage, nil
}

// periodStart computes the lower bound of the active quota window.
func (s *Service) periodStart(quotaType string) time.Time {
	now := s.now().UTC()
	switch quotaType {
	case TypeDaily:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	case TypeWeeklyRolling:
		return now.AddDate(0, 0, -7)
	case TypeMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return now.AddDate(0, 0, -30)
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
