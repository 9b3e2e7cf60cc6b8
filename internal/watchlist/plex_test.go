package watchlist

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/media"
)

const watchlistJSON = `{
	"MediaContainer": {
		"Metadata": [
			{
				"ratingKey": "5d776825880197001ec90e8f",
				"title": "The Matrix",
				"type": "movie",
				"Guid": [{"id": "imdb://tt0133093"}, {"id": "tmdb://603"}],
				"Genre": [{"tag": "Action"}, {"tag": "Science Fiction"}]
			},
			{
				"key": "/library/metadata/371980",
				"title": "Severance",
				"type": "show",
				"Guid": [{"id": "tvdb://371980"}]
			},
			{
				"ratingKey": "abc",
				"title": "Some Album",
				"type": "album"
			},
			{
				"title": "Keyless",
				"type": "movie"
			}
		]
	}
}`

func newPlexFixture(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := zerolog.Nop()
	client, err := NewClient(ClientConfig{URL: server.URL, Logger: &logger})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestWatchlist_ParsesEntries(t *testing.T) {
	var gotToken, gotAccept string
	client := newPlexFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/library/sections/watchlist/all" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotToken = r.Header.Get("X-Plex-Token")
		gotAccept = r.Header.Get("Accept")
		w.Write([]byte(watchlistJSON))
	}))

	entries, err := client.Watchlist(context.Background(), "user-token")
	if err != nil {
		t.Fatalf("Watchlist: %v", err)
	}
	if gotToken != "user-token" || gotAccept != "application/json" {
		t.Errorf("token = %q accept = %q", gotToken, gotAccept)
	}

	// The album and the keyless entry are skipped.
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	matrix := entries[0]
	if matrix.Key != "5d776825880197001ec90e8f" || matrix.Type != media.TypeMovie {
		t.Errorf("entry = %+v", matrix)
	}
	if len(matrix.GUIDs) != 2 || matrix.GUIDs[1] != "tmdb://603" {
		t.Errorf("guids = %v", matrix.GUIDs)
	}
	if len(matrix.Genres) != 2 {
		t.Errorf("genres = %v", matrix.Genres)
	}

	// The show entry has no ratingKey and falls back to key.
	severance := entries[1]
	if severance.Key != "/library/metadata/371980" || severance.Type != media.TypeShow {
		t.Errorf("entry = %+v", severance)
	}
}

func TestWatchlist_ErrorStatus(t *testing.T) {
	client := newPlexFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	if _, err := client.Watchlist(context.Background(), "bad-token"); err == nil {
		t.Fatal("expected error for unauthorized response")
	}
}

func TestWatchlist_EmptyContainer(t *testing.T) {
	client := newPlexFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"MediaContainer":{}}`))
	}))

	entries, err := client.Watchlist(context.Background(), "user-token")
	if err != nil {
		t.Fatalf("Watchlist: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries = %+v, want none", entries)
	}
}
