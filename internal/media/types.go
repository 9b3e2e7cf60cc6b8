// Package media defines the content item model shared by the watchlist
// and routing subsystems.
package media

import "strings"

// ContentType identifies the kind of content an item represents.
type ContentType string

const (
	TypeMovie ContentType = "movie"
	TypeShow  ContentType = "show"
)

// Valid reports whether the content type is one of the known kinds.
func (t ContentType) Valid() bool {
	return t == TypeMovie || t == TypeShow
}

// Metadata is the backend lookup payload attached to an item during
// enrichment. It is always optional; routing must work without it.
type Metadata struct {
	TmdbID   int64    `json:"tmdbId,omitempty"`
	TvdbID   int64    `json:"tvdbId,omitempty"`
	ImdbID   string   `json:"imdbId,omitempty"`
	Year     int      `json:"year,omitempty"`
	Language string   `json:"originalLanguage,omitempty"`
	Genres   []string `json:"genres,omitempty"`
}

// Item is one piece of content moving through the system. Identity is the
// GUID set; at least one GUID is required for dispatch.
type Item struct {
	Title    string      `json:"title"`
	Type     ContentType `json:"type"`
	GUIDs    []string    `json:"guids"`
	Genres   []string    `json:"genres,omitempty"`
	Metadata *Metadata   `json:"metadata,omitempty"`
}

// EffectiveGenres returns enrichment genres when present, falling back to
// the genres carried by the watchlist entry.
func (i *Item) EffectiveGenres() []string {
	if i.Metadata != nil && len(i.Metadata.Genres) > 0 {
		return i.Metadata.Genres
	}
	return i.Genres
}

// Year returns the enriched release year, or 0 when unknown.
func (i *Item) Year() int {
	if i.Metadata != nil {
		return i.Metadata.Year
	}
	return 0
}

// Language returns the enriched original language, or "" when unknown.
func (i *Item) Language() string {
	if i.Metadata != nil {
		return i.Metadata.Language
	}
	return ""
}

// GUID returns the first GUID matching the given prefix (e.g. "tmdb"),
// without the prefix, or "" if none matches.
func (i *Item) GUID(prefix string) string {
	for _, g := range i.GUIDs {
		if rest, ok := strings.CutPrefix(g, prefix+"://"); ok {
			return rest
		}
	}
	return ""
}
