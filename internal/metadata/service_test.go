package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/media"
	"github.com/helmarr/helmarr/internal/radarr"
	"github.com/helmarr/helmarr/internal/routing"
	"github.com/helmarr/helmarr/internal/sonarr"
)

type stubInstances struct {
	movieDefault  *routing.Instance
	seriesDefault *routing.Instance
	err           error
}

func (s *stubInstances) Instance(ctx context.Context, id int64) (*routing.Instance, error) {
	return nil, nil
}

func (s *stubInstances) DefaultInstance(ctx context.Context, t media.ContentType) (*routing.Instance, error) {
	if s.err != nil {
		return nil, s.err
	}
	if t == media.TypeMovie {
		return s.movieDefault, nil
	}
	return s.seriesDefault, nil
}

func (s *stubInstances) Instances(ctx context.Context, t media.ContentType) ([]routing.Instance, error) {
	return nil, nil
}

type stubMovieLookup struct {
	term    string
	results []radarr.LookupResult
	err     error
}

func (s *stubMovieLookup) Lookup(ctx context.Context, term string) ([]radarr.LookupResult, error) {
	s.term = term
	return s.results, s.err
}

type stubSeriesLookup struct {
	term    string
	results []sonarr.LookupResult
	err     error
}

func (s *stubSeriesLookup) Lookup(ctx context.Context, term string) ([]sonarr.LookupResult, error) {
	s.term = term
	return s.results, s.err
}

func newLookupService(movie *stubMovieLookup, series *stubSeriesLookup) *Service {
	instances := &stubInstances{
		movieDefault:  &routing.Instance{ID: 1, Type: media.TypeMovie},
		seriesDefault: &routing.Instance{ID: 2, Type: media.TypeShow},
	}
	svc := NewService(instances, zerolog.Nop())
	svc.newMovieLookup = func(inst *routing.Instance) (movieLookup, error) { return movie, nil }
	svc.newSeriesLookup = func(inst *routing.Instance) (seriesLookup, error) { return series, nil }
	return svc
}

func TestLookup_MovieByTmdbID(t *testing.T) {
	movie := &stubMovieLookup{results: []radarr.LookupResult{{
		Title:            "Heat",
		TmdbID:           949,
		ImdbID:           "tt0113277",
		Year:             1995,
		OriginalLanguage: radarr.Language{Name: "en"},
		Genres:           []string{"Crime", "Drama"},
	}}}
	svc := newLookupService(movie, &stubSeriesLookup{})

	item := &media.Item{Title: "Heat", Type: media.TypeMovie, GUIDs: []string{"tmdb://949"}}
	meta, err := svc.Lookup(context.Background(), item)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if movie.term != "tmdb:949" {
		t.Errorf("term = %q, want tmdb:949", movie.term)
	}
	if meta == nil || meta.TmdbID != 949 || meta.Year != 1995 || meta.Language != "en" {
		t.Fatalf("meta = %+v", meta)
	}
	if len(meta.Genres) != 2 {
		t.Errorf("genres = %v", meta.Genres)
	}
}

func TestLookup_SeriesByTvdbID(t *testing.T) {
	series := &stubSeriesLookup{results: []sonarr.LookupResult{{
		Title:            "Severance",
		TvdbID:           371980,
		Year:             2022,
		OriginalLanguage: sonarr.Language{Name: "en"},
	}}}
	svc := newLookupService(&stubMovieLookup{}, series)

	item := &media.Item{Title: "Severance", Type: media.TypeShow, GUIDs: []string{"tvdb://371980"}}
	meta, err := svc.Lookup(context.Background(), item)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if series.term != "tvdb:371980" {
		t.Errorf("term = %q, want tvdb:371980", series.term)
	}
	if meta == nil || meta.TvdbID != 371980 {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestLookup_FallsBackToImdbThenTitle(t *testing.T) {
	movie := &stubMovieLookup{}
	svc := newLookupService(movie, &stubSeriesLookup{})

	item := &media.Item{Title: "Heat", Type: media.TypeMovie, GUIDs: []string{"imdb://tt0113277"}}
	if _, err := svc.Lookup(context.Background(), item); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if movie.term != "imdb:tt0113277" {
		t.Errorf("term = %q, want imdb fallback", movie.term)
	}

	item = &media.Item{Title: "Heat", Type: media.TypeMovie}
	if _, err := svc.Lookup(context.Background(), item); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if movie.term != "Heat" {
		t.Errorf("term = %q, want title fallback", movie.term)
	}
}

func TestLookup_NoResultsIsNotAnError(t *testing.T) {
	svc := newLookupService(&stubMovieLookup{}, &stubSeriesLookup{})

	item := &media.Item{Title: "Obscure", Type: media.TypeMovie, GUIDs: []string{"tmdb://1"}}
	meta, err := svc.Lookup(context.Background(), item)
	if err != nil || meta != nil {
		t.Fatalf("meta = %+v, err = %v, want nil/nil", meta, err)
	}
}

func TestLookup_NoDefaultInstanceSkipsEnrichment(t *testing.T) {
	svc := NewService(&stubInstances{}, zerolog.Nop())

	item := &media.Item{Title: "Heat", Type: media.TypeMovie, GUIDs: []string{"tmdb://949"}}
	meta, err := svc.Lookup(context.Background(), item)
	if err != nil || meta != nil {
		t.Fatalf("meta = %+v, err = %v, want nil/nil", meta, err)
	}
}

func TestLookup_BackendErrorPropagates(t *testing.T) {
	movie := &stubMovieLookup{err: errors.New("connection refused")}
	svc := newLookupService(movie, &stubSeriesLookup{})

	item := &media.Item{Title: "Heat", Type: media.TypeMovie, GUIDs: []string{"tmdb://949"}}
	if _, err := svc.Lookup(context.Background(), item); err == nil {
		t.Fatal("expected error from failing backend")
	}
}
