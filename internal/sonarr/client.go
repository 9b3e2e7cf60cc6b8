// Package sonarr provides an HTTP client for Sonarr-compatible series
// acquisition backends.
package sonarr

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultTimeout = 60 * time.Second
	apiKeyHeader   = "X-Api-Key"
)

// Client provides HTTP communication with a Sonarr server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zerolog.Logger
}

// ClientConfig contains configuration for creating a new Sonarr client.
type ClientConfig struct {
	URL           string
	APIKey        string
	Timeout       int
	SkipSSLVerify bool
	Logger        *zerolog.Logger
}

// NewClient creates a new Sonarr HTTP client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("sonarr URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("sonarr API key is required")
	}

	baseURL := strings.TrimSuffix(cfg.URL, "/")

	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	transport := &http.Transport{}
	if cfg.SkipSSLVerify {
		//nolint:gosec // admin-configured endpoint, TLS verification optional
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	logger := cfg.Logger.With().
		Str("component", "sonarr-client").
		Str("url", baseURL).
		Logger()

	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: &logger,
	}, nil
}

// Series is the payload for adding a series to Sonarr.
type Series struct {
	Title            string         `json:"title"`
	TvdbID           int64          `json:"tvdbId"`
	Year             int            `json:"year,omitempty"`
	QualityProfileID int64          `json:"qualityProfileId"`
	RootFolderPath   string         `json:"rootFolderPath"`
	SeriesType       string         `json:"seriesType,omitempty"`
	SeasonFolder     bool           `json:"seasonFolder"`
	Monitored        bool           `json:"monitored"`
	Tags             []int64        `json:"tags,omitempty"`
	Seasons          []SeasonStatus `json:"seasons,omitempty"`
	AddOptions       *AddOptions    `json:"addOptions,omitempty"`
}

// SeasonStatus sets per-season monitoring on an added series.
type SeasonStatus struct {
	SeasonNumber int  `json:"seasonNumber"`
	Monitored    bool `json:"monitored"`
}

// AddOptions controls Sonarr's behavior when adding a series.
type AddOptions struct {
	Monitor                   string `json:"monitor,omitempty"`
	SearchForMissingEpisodes  bool   `json:"searchForMissingEpisodes"`
	SearchForCutoffUnmetItems bool   `json:"searchForCutoffUnmetEpisodes"`
}

// LookupResult is one series returned by the lookup endpoint.
type LookupResult struct {
	Title            string   `json:"title"`
	TvdbID           int64    `json:"tvdbId"`
	ImdbID           string   `json:"imdbId,omitempty"`
	Year             int      `json:"year,omitempty"`
	OriginalLanguage Language `json:"originalLanguage"`
	Genres           []string `json:"genres,omitempty"`
}

// Language is Sonarr's language object.
type Language struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Tag is a Sonarr tag.
type Tag struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// AddSeries adds a series to the Sonarr instance.
func (c *Client) AddSeries(ctx context.Context, series Series) error {
	c.logger.Debug().
		Str("title", series.Title).
		Int64("tvdbId", series.TvdbID).
		Msg("adding series")
	return c.postJSON(ctx, "/api/v3/series", series, nil)
}

// Lookup searches Sonarr's metadata for a term such as "tvdb:81189".
func (c *Client) Lookup(ctx context.Context, term string) ([]LookupResult, error) {
	var results []LookupResult
	path := "/api/v3/series/lookup?term=" + url.QueryEscape(term)
	if err := c.getJSON(ctx, path, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Tags lists the instance's tags.
func (c *Client) Tags(ctx context.Context) ([]Tag, error) {
	var tags []Tag
	if err := c.getJSON(ctx, "/api/v3/tag", &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// EnsureTags resolves tag labels to ids, creating missing tags.
func (c *Client) EnsureTags(ctx context.Context, labels []string) ([]int64, error) {
	if len(labels) == 0 {
		return nil, nil
	}

	existing, err := c.Tags(ctx)
	if err != nil {
		return nil, err
	}
	byLabel := make(map[string]int64, len(existing))
	for _, t := range existing {
		byLabel[strings.ToLower(t.Label)] = t.ID
	}

	ids := make([]int64, 0, len(labels))
	for _, label := range labels {
		if id, ok := byLabel[strings.ToLower(label)]; ok {
			ids = append(ids, id)
			continue
		}
		var created Tag
		if err := c.postJSON(ctx, "/api/v3/tag", Tag{Label: label}, &created); err != nil {
			return nil, fmt.Errorf("failed to create tag %q: %w", label, err)
		}
		ids = append(ids, created.ID)
	}
	return ids, nil
}

// Ping verifies connectivity and credentials.
func (c *Client) Ping(ctx context.Context) error {
	return c.getJSON(ctx, "/api/v3/system/status", nil)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set(apiKeyHeader, c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).
			Str("method", method).
			Str("path", path).
			Msg("request failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, result any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.decode(resp, result)
}

func (c *Client) postJSON(ctx context.Context, path string, body, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.decode(resp, result)
}

func (c *Client) decode(resp *http.Response, result any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		c.logger.Error().
			Int("status", resp.StatusCode).
			Str("body", string(bodyBytes)).
			Msg("request returned error status")
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
