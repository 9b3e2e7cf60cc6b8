package dispatch

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/media"
	"github.com/helmarr/helmarr/internal/routing"
	"github.com/helmarr/helmarr/internal/sonarr"
)

// SeriesBackend is the subset of the Sonarr client used by dispatch.
type SeriesBackend interface {
	AddSeries(ctx context.Context, series sonarr.Series) error
	EnsureTags(ctx context.Context, labels []string) ([]int64, error)
}

// SeriesDispatcher sends series decisions to Sonarr instances.
type SeriesDispatcher struct {
	instances routing.InstanceStore
	quotas    QuotaRecorder
	logger    zerolog.Logger

	newBackend func(inst *routing.Instance) (SeriesBackend, error)
}

// NewSeriesDispatcher creates a dispatcher for series content.
func NewSeriesDispatcher(instances routing.InstanceStore, quotas QuotaRecorder, logger zerolog.Logger) *SeriesDispatcher {
	d := &SeriesDispatcher{
		instances: instances,
		quotas:    quotas,
		logger:    logger.With().Str("component", "series-dispatch").Logger(),
	}
	d.newBackend = func(inst *routing.Instance) (SeriesBackend, error) {
		return sonarr.NewClient(sonarr.ClientConfig{
			URL:    inst.BaseURL,
			APIKey: inst.APIKey,
			Logger: &d.logger,
		})
	}
	return d
}

// Dispatch implements routing.Dispatcher for series.
func (d *SeriesDispatcher) Dispatch(ctx context.Context, item *media.Item, key string, userID int64, dec routing.Decision, syncing bool) error {
	inst, err := d.instances.Instance(ctx, dec.InstanceID)
	if err != nil {
		return fmt.Errorf("failed to load instance %d: %w", dec.InstanceID, err)
	}
	if inst == nil {
		return fmt.Errorf("instance %d not found", dec.InstanceID)
	}
	if inst.Type != media.TypeShow {
		return fmt.Errorf("instance %q does not accept series", inst.Name)
	}

	tvdbID := seriesTvdbID(item)
	if tvdbID == 0 {
		return fmt.Errorf("%w: series %q has no tvdb id", ErrNoGUID, item.Title)
	}

	backend, err := d.newBackend(inst)
	if err != nil {
		return fmt.Errorf("failed to create client for %q: %w", inst.Name, err)
	}

	series, err := d.buildPayload(ctx, backend, item, inst, dec, tvdbID)
	if err != nil {
		return err
	}

	if err := backend.AddSeries(ctx, series); err != nil {
		return fmt.Errorf("failed to add series to %q: %w", inst.Name, err)
	}

	d.logger.Info().
		Str("title", item.Title).
		Str("instance", inst.Name).
		Int64("tvdbId", tvdbID).
		Bool("syncing", syncing).
		Msg("series dispatched")

	if userID != 0 && !syncing && d.quotas != nil {
		if err := d.quotas.RecordUsage(ctx, userID, media.TypeShow); err != nil {
			d.logger.Warn().Err(err).Int64("userId", userID).Msg("failed to record quota usage")
		}
	}
	return nil
}

func (d *SeriesDispatcher) buildPayload(ctx context.Context, backend SeriesBackend, item *media.Item, inst *routing.Instance, dec routing.Decision, tvdbID int64) (sonarr.Series, error) {
	profileID := firstInt64(dec.QualityProfileID, inst.QualityProfileID)
	if profileID == 0 {
		return sonarr.Series{}, fmt.Errorf("no quality profile configured for instance %q", inst.Name)
	}
	rootFolder := firstString(dec.RootFolder, inst.RootFolder)
	if rootFolder == "" {
		return sonarr.Series{}, fmt.Errorf("no root folder configured for instance %q", inst.Name)
	}

	labels := dec.Tags
	if len(labels) == 0 {
		labels = inst.Tags
	}
	tagIDs, err := backend.EnsureTags(ctx, labels)
	if err != nil {
		d.logger.Warn().Err(err).Str("instance", inst.Name).Msg("failed to resolve tags, adding without")
		tagIDs = nil
	}

	monitor := firstString(dec.SeasonMonitoring, inst.SeasonMonitoring)
	if monitor == "" {
		monitor = "all"
	}
	seriesType := firstString(dec.SeriesType, inst.SeriesType)
	if seriesType == "" {
		seriesType = "standard"
	}

	search := inst.SearchOnAdd
	if dec.SearchOnAdd != nil {
		search = *dec.SearchOnAdd
	}

	return sonarr.Series{
		Title:            item.Title,
		TvdbID:           tvdbID,
		Year:             item.Year(),
		QualityProfileID: profileID,
		RootFolderPath:   rootFolder,
		SeriesType:       seriesType,
		SeasonFolder:     true,
		Monitored:        true,
		Tags:             tagIDs,
		AddOptions: &sonarr.AddOptions{
			Monitor:                  monitor,
			SearchForMissingEpisodes: search,
		},
	}, nil
}

func seriesTvdbID(item *media.Item) int64 {
	if item.Metadata != nil && item.Metadata.TvdbID != 0 {
		return item.Metadata.TvdbID
	}
	if raw := item.GUID("tvdb"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return id
		}
	}
	return 0
}
