// Package metadata enriches watchlist items with the lookup payloads of
// the configured default backend instances. Enrichment is best-effort:
// routing proceeds without it.
package metadata

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/media"
	"github.com/helmarr/helmarr/internal/radarr"
	"github.com/helmarr/helmarr/internal/routing"
	"github.com/helmarr/helmarr/internal/sonarr"
)

// movieLookup is the Radarr lookup surface the service uses.
type movieLookup interface {
	Lookup(ctx context.Context, term string) ([]radarr.LookupResult, error)
}

// seriesLookup is the Sonarr lookup surface the service uses.
type seriesLookup interface {
	Lookup(ctx context.Context, term string) ([]sonarr.LookupResult, error)
}

// Service implements routing.MetadataLookup against the default backend
// instance of each content type.
type Service struct {
	instances routing.InstanceStore
	logger    zerolog.Logger

	newMovieLookup  func(inst *routing.Instance) (movieLookup, error)
	newSeriesLookup func(inst *routing.Instance) (seriesLookup, error)
}

// NewService creates a metadata enrichment service.
func NewService(instances routing.InstanceStore, logger zerolog.Logger) *Service {
	s := &Service{
		instances: instances,
		logger:    logger.With().Str("component", "metadata").Logger(),
	}
	s.newMovieLookup = func(inst *routing.Instance) (movieLookup, error) {
		return radarr.NewClient(radarr.ClientConfig{
			URL:    inst.BaseURL,
			APIKey: inst.APIKey,
			Logger: &s.logger,
		})
	}
	s.newSeriesLookup = func(inst *routing.Instance) (seriesLookup, error) {
		return sonarr.NewClient(sonarr.ClientConfig{
			URL:    inst.BaseURL,
			APIKey: inst.APIKey,
			Logger: &s.logger,
		})
	}
	return s
}

// Lookup fetches the backend lookup payload for an item. A nil result
// with nil error means nothing was found.
func (s *Service) Lookup(ctx context.Context, item *media.Item) (*media.Metadata, error) {
	inst, err := s.instances.DefaultInstance(ctx, item.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to load default instance: %w", err)
	}
	if inst == nil {
		s.logger.Debug().Str("type", string(item.Type)).Msg("no default instance, skipping enrichment")
		return nil, nil
	}

	switch item.Type {
	case media.TypeMovie:
		return s.lookupMovie(ctx, inst, item)
	case media.TypeShow:
		return s.lookupSeries(ctx, inst, item)
	default:
		return nil, fmt.Errorf("unknown content type %q", item.Type)
	}
}

func (s *Service) lookupMovie(ctx context.Context, inst *routing.Instance, item *media.Item) (*media.Metadata, error) {
	term := lookupTerm(item, "tmdb")
	if term == "" {
		return nil, nil
	}

	client, err := s.newMovieLookup(inst)
	if err != nil {
		return nil, err
	}
	results, err := client.Lookup(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("movie lookup failed: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	r := results[0]
	return &media.Metadata{
		TmdbID:   r.TmdbID,
		ImdbID:   r.ImdbID,
		Year:     r.Year,
		Language: r.OriginalLanguage.Name,
		Genres:   r.Genres,
	}, nil
}

func (s *Service) lookupSeries(ctx context.Context, inst *routing.Instance, item *media.Item) (*media.Metadata, error) {
	term := lookupTerm(item, "tvdb")
	if term == "" {
		return nil, nil
	}

	client, err := s.newSeriesLookup(inst)
	if err != nil {
		return nil, err
	}
	results, err := client.Lookup(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("series lookup failed: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	r := results[0]
	return &media.Metadata{
		TvdbID:   r.TvdbID,
		ImdbID:   r.ImdbID,
		Year:     r.Year,
		Language: r.OriginalLanguage.Name,
		Genres:   r.Genres,
	}, nil
}

// lookupTerm prefers an exact id term and falls back to title search.
func lookupTerm(item *media.Item, idPrefix string) string {
	if raw := item.GUID(idPrefix); raw != "" {
		if _, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return idPrefix + ":" + raw
		}
	}
	if raw := item.GUID("imdb"); raw != "" {
		return "imdb:" + raw
	}
	return item.Title
}
