package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/media"
	"github.com/helmarr/helmarr/internal/routing"
)

const instanceColumns = `id, name, content_type, base_url, api_key, quality_profile_id,
	root_folder, tags, is_default, synced_instance_ids, search_on_add,
	season_monitoring, series_type, minimum_availability, enabled`

// InstanceStore persists acquisition-backend instance configuration.
type InstanceStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewInstanceStore creates an instance store.
func NewInstanceStore(db *sql.DB, logger zerolog.Logger) *InstanceStore {
	return &InstanceStore{
		db:     db,
		logger: logger.With().Str("component", "instance-store").Logger(),
	}
}

// Instance returns one instance by id, or nil when it does not exist.
func (s *InstanceStore) Instance(ctx context.Context, id int64) (*routing.Instance, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+instanceColumns+" FROM instances WHERE id = ?", id)
	inst, err := s.scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return inst, nil
}

// DefaultInstance returns the default instance for a content type, or
// nil when none is configured.
func (s *InstanceStore) DefaultInstance(ctx context.Context, t media.ContentType) (*routing.Instance, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+instanceColumns+" FROM instances WHERE content_type = ? AND is_default = 1 AND enabled = 1 LIMIT 1",
		string(t))
	inst, err := s.scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return inst, nil
}

// Instances returns all enabled instances for a content type.
func (s *InstanceStore) Instances(ctx context.Context, t media.ContentType) ([]routing.Instance, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+instanceColumns+" FROM instances WHERE content_type = ? AND enabled = 1 ORDER BY id", string(t))
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}
	defer rows.Close()

	var instances []routing.Instance
	for rows.Next() {
		inst, err := s.scanInstance(rows)
		if err != nil {
			s.logger.Warn().Err(err).Msg("skipping malformed instance row")
			continue
		}
		instances = append(instances, *inst)
	}
	return instances, rows.Err()
}

// List returns all instances regardless of state.
func (s *InstanceStore) List(ctx context.Context) ([]routing.Instance, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+instanceColumns+" FROM instances ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}
	defer rows.Close()

	var instances []routing.Instance
	for rows.Next() {
		inst, err := s.scanInstance(rows)
		if err != nil {
			s.logger.Warn().Err(err).Msg("skipping malformed instance row")
			continue
		}
		instances = append(instances, *inst)
	}
	return instances, rows.Err()
}

// Create inserts an instance. Marking it default clears the previous
// default for the same content type.
func (s *InstanceStore) Create(ctx context.Context, inst routing.Instance) (*routing.Instance, error) {
	tags, err := json.Marshal(emptyIfNil(inst.Tags))
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}
	synced, err := json.Marshal(emptyInt64sIfNil(inst.SyncedInstanceIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to encode synced instance ids: %w", err)
	}

	if inst.IsDefault {
		if err := s.clearDefault(ctx, inst.Type); err != nil {
			return nil, err
		}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO instances (
			name, content_type, base_url, api_key, quality_profile_id, root_folder,
			tags, is_default, synced_instance_ids, search_on_add,
			season_monitoring, series_type, minimum_availability, enabled
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.Name, string(inst.Type), inst.BaseURL, inst.APIKey, inst.QualityProfileID, inst.RootFolder,
		string(tags), boolToInt(inst.IsDefault), string(synced), boolToInt(inst.SearchOnAdd),
		inst.SeasonMonitoring, inst.SeriesType, inst.MinimumAvailability, boolToInt(inst.Enabled),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create instance: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.Instance(ctx, id)
}

// Update replaces an instance's configuration.
func (s *InstanceStore) Update(ctx context.Context, inst routing.Instance) (*routing.Instance, error) {
	tags, err := json.Marshal(emptyIfNil(inst.Tags))
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}
	synced, err := json.Marshal(emptyInt64sIfNil(inst.SyncedInstanceIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to encode synced instance ids: %w", err)
	}

	if inst.IsDefault {
		if err := s.clearDefault(ctx, inst.Type); err != nil {
			return nil, err
		}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE instances SET
			name = ?, content_type = ?, base_url = ?, api_key = ?, quality_profile_id = ?,
			root_folder = ?, tags = ?, is_default = ?, synced_instance_ids = ?, search_on_add = ?,
			season_monitoring = ?, series_type = ?, minimum_availability = ?, enabled = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		inst.Name, string(inst.Type), inst.BaseURL, inst.APIKey, inst.QualityProfileID,
		inst.RootFolder, string(tags), boolToInt(inst.IsDefault), string(synced), boolToInt(inst.SearchOnAdd),
		inst.SeasonMonitoring, inst.SeriesType, inst.MinimumAvailability, boolToInt(inst.Enabled),
		inst.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update instance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.Instance(ctx, inst.ID)
}

// Delete removes an instance.
func (s *InstanceStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM instances WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete instance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *InstanceStore) clearDefault(ctx context.Context, t media.ContentType) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE instances SET is_default = 0 WHERE content_type = ?", string(t))
	if err != nil {
		return fmt.Errorf("failed to clear default instance: %w", err)
	}
	return nil
}

func (s *InstanceStore) scanInstance(row rowScanner) (*routing.Instance, error) {
	var (
		inst             routing.Instance
		contentType      string
		qualityProfileID sql.NullInt64
		rootFolder       sql.NullString
		tags             string
		isDefault        int64
		synced           string
		searchOnAdd      int64
		seasonMonitoring sql.NullString
		seriesType       sql.NullString
		minAvailability  sql.NullString
		enabled          int64
	)

	err := row.Scan(
		&inst.ID, &inst.Name, &contentType, &inst.BaseURL, &inst.APIKey, &qualityProfileID,
		&rootFolder, &tags, &isDefault, &synced, &searchOnAdd,
		&seasonMonitoring, &seriesType, &minAvailability, &enabled,
	)
	if err != nil {
		return nil, err
	}

	inst.Type = media.ContentType(contentType)
	inst.QualityProfileID = nullInt64Ptr(qualityProfileID)
	inst.RootFolder = nullStringPtr(rootFolder)
	inst.IsDefault = isDefault == 1
	inst.SearchOnAdd = searchOnAdd == 1
	inst.SeasonMonitoring = nullStringPtr(seasonMonitoring)
	inst.SeriesType = nullStringPtr(seriesType)
	inst.MinimumAvailability = nullStringPtr(minAvailability)
	inst.Enabled = enabled == 1

	if err := json.Unmarshal([]byte(tags), &inst.Tags); err != nil {
		return nil, fmt.Errorf("instance %d has malformed tags: %w", inst.ID, err)
	}
	if err := json.Unmarshal([]byte(synced), &inst.SyncedInstanceIDs); err != nil {
		return nil, fmt.Errorf("instance %d has malformed synced ids: %w", inst.ID, err)
	}

	return &inst, nil
}

func emptyInt64sIfNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
