// Package store implements SQLite-backed persistence for rules,
// instances, users, approvals, and watchlist items.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/routing"
)

var ErrNotFound = errors.New("not found")

const ruleColumns = `id, name, type, content_type, enabled, condition, instance_id,
	quality_profile_id, root_folder, tags, priority, search_on_add,
	season_monitoring, series_type, minimum_availability,
	always_require_approval, bypass_quotas, approval_reason, created_at, updated_at`

// RuleStore persists routing rules.
type RuleStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewRuleStore creates a rule store.
func NewRuleStore(db *sql.DB, logger zerolog.Logger) *RuleStore {
	return &RuleStore{
		db:     db,
		logger: logger.With().Str("component", "rule-store").Logger(),
	}
}

// HasAnyRule reports whether any rule exists, enabled or not.
func (s *RuleStore) HasAnyRule(ctx context.Context) (bool, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM router_rules").Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count rules: %w", err)
	}
	return count > 0, nil
}

// EnabledRules returns all enabled rules. Rules with malformed stored
// condition trees are skipped with a warning rather than failing the
// whole read.
func (s *RuleStore) EnabledRules(ctx context.Context) ([]routing.Rule, error) {
	return s.list(ctx, "SELECT "+ruleColumns+" FROM router_rules WHERE enabled = 1 ORDER BY priority DESC, id")
}

// List returns all rules.
func (s *RuleStore) List(ctx context.Context) ([]routing.Rule, error) {
	return s.list(ctx, "SELECT "+ruleColumns+" FROM router_rules ORDER BY priority DESC, id")
}

func (s *RuleStore) list(ctx context.Context, query string) ([]routing.Rule, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []routing.Rule
	for rows.Next() {
		rule, err := s.scanRule(rows)
		if err != nil {
			s.logger.Warn().Err(err).Msg("skipping malformed rule row")
			continue
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// Get returns one rule by id.
func (s *RuleStore) Get(ctx context.Context, id int64) (*routing.Rule, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+ruleColumns+" FROM router_rules WHERE id = ?", id)
	rule, err := s.scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rule, nil
}

// Create inserts a rule and returns it with its assigned id.
func (s *RuleStore) Create(ctx context.Context, rule routing.Rule) (*routing.Rule, error) {
	condition, err := json.Marshal(rule.Condition)
	if err != nil {
		return nil, fmt.Errorf("failed to encode condition: %w", err)
	}
	tags, err := json.Marshal(emptyIfNil(rule.Tags))
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}
	if rule.Priority == 0 {
		rule.Priority = routing.DefaultPriority
	}
	if rule.ContentType == "" {
		rule.ContentType = "both"
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO router_rules (
			name, type, content_type, enabled, condition, instance_id,
			quality_profile_id, root_folder, tags, priority, search_on_add,
			season_monitoring, series_type, minimum_availability,
			always_require_approval, bypass_quotas, approval_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.Name, rule.Type, rule.ContentType, boolToInt(rule.Enabled), string(condition), rule.InstanceID,
		rule.QualityProfileID, rule.RootFolder, string(tags), rule.Priority, boolPtrToNull(rule.SearchOnAdd),
		rule.SeasonMonitoring, rule.SeriesType, rule.MinimumAvailability,
		boolToInt(rule.AlwaysRequireApproval), boolToInt(rule.BypassQuotas), nullIfEmpty(rule.ApprovalReason),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Update replaces a rule's settings.
func (s *RuleStore) Update(ctx context.Context, rule routing.Rule) (*routing.Rule, error) {
	condition, err := json.Marshal(rule.Condition)
	if err != nil {
		return nil, fmt.Errorf("failed to encode condition: %w", err)
	}
	tags, err := json.Marshal(emptyIfNil(rule.Tags))
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE router_rules SET
			name = ?, type = ?, content_type = ?, enabled = ?, condition = ?, instance_id = ?,
			quality_profile_id = ?, root_folder = ?, tags = ?, priority = ?, search_on_add = ?,
			season_monitoring = ?, series_type = ?, minimum_availability = ?,
			always_require_approval = ?, bypass_quotas = ?, approval_reason = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		rule.Name, rule.Type, rule.ContentType, boolToInt(rule.Enabled), string(condition), rule.InstanceID,
		rule.QualityProfileID, rule.RootFolder, string(tags), rule.Priority, boolPtrToNull(rule.SearchOnAdd),
		rule.SeasonMonitoring, rule.SeriesType, rule.MinimumAvailability,
		boolToInt(rule.AlwaysRequireApproval), boolToInt(rule.BypassQuotas), nullIfEmpty(rule.ApprovalReason),
		rule.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, rule.ID)
}

// Delete removes a rule.
func (s *RuleStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM router_rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *RuleStore) scanRule(row rowScanner) (*routing.Rule, error) {
	var (
		rule             routing.Rule
		enabled          int64
		condition        string
		qualityProfileID sql.NullInt64
		rootFolder       sql.NullString
		tags             string
		searchOnAdd      sql.NullInt64
		seasonMonitoring sql.NullString
		seriesType       sql.NullString
		minAvailability  sql.NullString
		alwaysRequire    int64
		bypassQuotas     int64
		approvalReason   sql.NullString
	)

	err := row.Scan(
		&rule.ID, &rule.Name, &rule.Type, &rule.ContentType, &enabled, &condition, &rule.InstanceID,
		&qualityProfileID, &rootFolder, &tags, &rule.Priority, &searchOnAdd,
		&seasonMonitoring, &seriesType, &minAvailability,
		&alwaysRequire, &bypassQuotas, &approvalReason, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1
	rule.AlwaysRequireApproval = alwaysRequire == 1
	rule.BypassQuotas = bypassQuotas == 1
	rule.QualityProfileID = nullInt64Ptr(qualityProfileID)
	rule.RootFolder = nullStringPtr(rootFolder)
	rule.SeasonMonitoring = nullStringPtr(seasonMonitoring)
	rule.SeriesType = nullStringPtr(seriesType)
	rule.MinimumAvailability = nullStringPtr(minAvailability)
	rule.SearchOnAdd = nullBoolPtr(searchOnAdd)
	if approvalReason.Valid {
		rule.ApprovalReason = approvalReason.String
	}

	node, err := routing.ParseConditionNode([]byte(condition))
	if err != nil {
		return nil, fmt.Errorf("rule %d has malformed condition: %w", rule.ID, err)
	}
	rule.Condition = node

	if err := json.Unmarshal([]byte(tags), &rule.Tags); err != nil {
		return nil, fmt.Errorf("rule %d has malformed tags: %w", rule.ID, err)
	}

	return &rule, nil
}
