package dispatch

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/media"
	"github.com/helmarr/helmarr/internal/radarr"
	"github.com/helmarr/helmarr/internal/routing"
)

// MovieBackend is the subset of the Radarr client used by dispatch.
type MovieBackend interface {
	AddMovie(ctx context.Context, movie radarr.Movie) error
	EnsureTags(ctx context.Context, labels []string) ([]int64, error)
}

// MovieDispatcher sends movie decisions to Radarr instances.
type MovieDispatcher struct {
	instances routing.InstanceStore
	quotas    QuotaRecorder
	logger    zerolog.Logger

	// newBackend is swappable for tests.
	newBackend func(inst *routing.Instance) (MovieBackend, error)
}

// NewMovieDispatcher creates a dispatcher for movie content.
func NewMovieDispatcher(instances routing.InstanceStore, quotas QuotaRecorder, logger zerolog.Logger) *MovieDispatcher {
	d := &MovieDispatcher{
		instances: instances,
		quotas:    quotas,
		logger:    logger.With().Str("component", "movie-dispatch").Logger(),
	}
	d.newBackend = func(inst *routing.Instance) (MovieBackend, error) {
		return radarr.NewClient(radarr.ClientConfig{
			URL:    inst.BaseURL,
			APIKey: inst.APIKey,
			Logger: &d.logger,
		})
	}
	return d
}

// Dispatch implements routing.Dispatcher for movies.
func (d *MovieDispatcher) Dispatch(ctx context.Context, item *media.Item, key string, userID int64, dec routing.Decision, syncing bool) error {
	inst, err := d.instances.Instance(ctx, dec.InstanceID)
	if err != nil {
		return fmt.Errorf("failed to load instance %d: %w", dec.InstanceID, err)
	}
	if inst == nil {
		return fmt.Errorf("instance %d not found", dec.InstanceID)
	}
	if inst.Type != media.TypeMovie {
		return fmt.Errorf("instance %q does not accept movies", inst.Name)
	}

	tmdbID := movieTmdbID(item)
	if tmdbID == 0 {
		return fmt.Errorf("%w: movie %q has no tmdb id", ErrNoGUID, item.Title)
	}

	backend, err := d.newBackend(inst)
	if err != nil {
		return fmt.Errorf("failed to create client for %q: %w", inst.Name, err)
	}

	movie, err := d.buildPayload(ctx, backend, item, inst, dec, tmdbID)
	if err != nil {
		return err
	}

	if err := backend.AddMovie(ctx, movie); err != nil {
		return fmt.Errorf("failed to add movie to %q: %w", inst.Name, err)
	}

	d.logger.Info().
		Str("title", item.Title).
		Str("instance", inst.Name).
		Int64("tmdbId", tmdbID).
		Bool("syncing", syncing).
		Msg("movie dispatched")

	if userID != 0 && !syncing && d.quotas != nil {
		if err := d.quotas.RecordUsage(ctx, userID, media.TypeMovie); err != nil {
			d.logger.Warn().Err(err).Int64("userId", userID).Msg("failed to record quota usage")
		}
	}
	return nil
}

func (d *MovieDispatcher) buildPayload(ctx context.Context, backend MovieBackend, item *media.Item, inst *routing.Instance, dec routing.Decision, tmdbID int64) (radarr.Movie, error) {
	profileID := firstInt64(dec.QualityProfileID, inst.QualityProfileID)
	if profileID == 0 {
		return radarr.Movie{}, fmt.Errorf("no quality profile configured for instance %q", inst.Name)
	}
	rootFolder := firstString(dec.RootFolder, inst.RootFolder)
	if rootFolder == "" {
		return radarr.Movie{}, fmt.Errorf("no root folder configured for instance %q", inst.Name)
	}

	labels := dec.Tags
	if len(labels) == 0 {
		labels = inst.Tags
	}
	tagIDs, err := backend.EnsureTags(ctx, labels)
	if err != nil {
		// Tags are cosmetic; dropping them is better than losing the add.
		d.logger.Warn().Err(err).Str("instance", inst.Name).Msg("failed to resolve tags, adding without")
		tagIDs = nil
	}

	availability := "released"
	if dec.MinimumAvailability != nil && *dec.MinimumAvailability != "" {
		availability = *dec.MinimumAvailability
	} else if inst.MinimumAvailability != nil && *inst.MinimumAvailability != "" {
		availability = *inst.MinimumAvailability
	}

	search := inst.SearchOnAdd
	if dec.SearchOnAdd != nil {
		search = *dec.SearchOnAdd
	}

	return radarr.Movie{
		Title:               item.Title,
		TmdbID:              tmdbID,
		Year:                item.Year(),
		QualityProfileID:    profileID,
		RootFolderPath:      rootFolder,
		MinimumAvailability: availability,
		Monitored:           true,
		Tags:                tagIDs,
		AddOptions:          &radarr.AddOptions{SearchForMovie: search},
	}, nil
}

func movieTmdbID(item *media.Item) int64 {
	if item.Metadata != nil && item.Metadata.TmdbID != 0 {
		return item.Metadata.TmdbID
	}
	if raw := item.GUID("tmdb"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return id
		}
	}
	return 0
}

func firstInt64(ptrs ...*int64) int64 {
	for _, p := range ptrs {
		if p != nil && *p != 0 {
			return *p
		}
	}
	return 0
}

func firstString(ptrs ...*string) string {
	for _, p := range ptrs {
		if p != nil && *p != "" {
			return *p
		}
	}
	return ""
}
