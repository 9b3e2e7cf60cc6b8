// Package watchlist pulls user watchlists from the Plex metadata
// provider and routes new entries through the decision engine.
package watchlist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/media"
)

const (
	defaultTimeout = 30 * time.Second
	tokenHeader    = "X-Plex-Token"
)

// Client fetches watchlists from a Plex metadata provider endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zerolog.Logger
}

// ClientConfig contains configuration for creating a watchlist client.
type ClientConfig struct {
	URL     string
	Timeout int
	Logger  *zerolog.Logger
}

// NewClient creates a watchlist provider client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("provider URL is required")
	}

	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	logger := cfg.Logger.With().
		Str("component", "watchlist-client").
		Logger()

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     &logger,
	}, nil
}

// Entry is one watchlist item as reported by the provider.
type Entry struct {
	Key    string
	Title  string
	Type   media.ContentType
	GUIDs  []string
	Genres []string
}

type mediaContainer struct {
	MediaContainer struct {
		Metadata []struct {
			RatingKey string `json:"ratingKey"`
			Key       string `json:"key"`
			Title     string `json:"title"`
			Type      string `json:"type"`
			Guid      []struct {
				ID string `json:"id"`
			} `json:"Guid"`
			Genre []struct {
				Tag string `json:"tag"`
			} `json:"Genre"`
		} `json:"Metadata"`
	} `json:"MediaContainer"`
}

// Watchlist fetches the watchlist readable by the given user token.
func (c *Client) Watchlist(ctx context.Context, token string) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/library/sections/watchlist/all", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(tokenHeader, token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("watchlist request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error().
			Int("status", resp.StatusCode).
			Str("body", string(body)).
			Msg("watchlist request returned error status")
		return nil, fmt.Errorf("watchlist request failed with status %d", resp.StatusCode)
	}

	var container mediaContainer
	if err := json.NewDecoder(resp.Body).Decode(&container); err != nil {
		return nil, fmt.Errorf("failed to decode watchlist response: %w", err)
	}

	entries := make([]Entry, 0, len(container.MediaContainer.Metadata))
	for _, m := range container.MediaContainer.Metadata {
		t, ok := contentType(m.Type)
		if !ok {
			c.logger.Debug().Str("type", m.Type).Str("title", m.Title).
				Msg("skipping unsupported watchlist entry type")
			continue
		}
		key := m.RatingKey
		if key == "" {
			key = m.Key
		}
		if key == "" {
			continue
		}

		entry := Entry{Key: key, Title: m.Title, Type: t}
		for _, g := range m.Guid {
			entry.GUIDs = append(entry.GUIDs, g.ID)
		}
		for _, g := range m.Genre {
			entry.Genres = append(entry.Genres, g.Tag)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func contentType(providerType string) (media.ContentType, bool) {
	switch providerType {
	case "movie":
		return media.TypeMovie, true
	case "show":
		return media.TypeShow, true
	default:
		return "", false
	}
}
