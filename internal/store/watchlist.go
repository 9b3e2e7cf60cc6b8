package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/media"
)

// Watchlist item statuses.
const (
	WatchlistPending = "pending"
	WatchlistRouted  = "routed"
	WatchlistHeld    = "held"
	WatchlistRemoved = "removed"
)

// WatchlistItem is one tracked watchlist entry for one user.
type WatchlistItem struct {
	ID        int64             `json:"id"`
	UserID    int64             `json:"userId"`
	Key       string            `json:"key"`
	Title     string            `json:"title"`
	Type      media.ContentType `json:"contentType"`
	GUIDs     []string          `json:"guids"`
	Genres    []string          `json:"genres,omitempty"`
	Status    string            `json:"status"`
	AddedAt   time.Time         `json:"addedAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Item converts the watchlist entry to a routable media item.
func (w *WatchlistItem) Item() *media.Item {
	return &media.Item{
		Title:  w.Title,
		Type:   w.Type,
		GUIDs:  w.GUIDs,
		Genres: w.Genres,
	}
}

// WatchlistStore persists watchlist diff bookkeeping.
type WatchlistStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewWatchlistStore creates a watchlist store.
func NewWatchlistStore(db *sql.DB, logger zerolog.Logger) *WatchlistStore {
	return &WatchlistStore{
		db:     db,
		logger: logger.With().Str("component", "watchlist-store").Logger(),
	}
}

const watchlistColumns = "id, user_id, key, title, content_type, guids, genres, status, added_at, updated_at"

// Upsert records a watchlist entry, preserving routing status for
// entries already known.
func (s *WatchlistStore) Upsert(ctx context.Context, item WatchlistItem) (*WatchlistItem, error) {
	guids, err := json.Marshal(emptyIfNil(item.GUIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to encode guids: %w", err)
	}
	genres, err := json.Marshal(emptyIfNil(item.Genres))
	if err != nil {
		return nil, fmt.Errorf("failed to encode genres: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO watchlist_items (user_id, key, title, content_type, guids, genres)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET
			title = excluded.title,
			guids = excluded.guids,
			genres = excluded.genres,
			updated_at = CURRENT_TIMESTAMP`,
		item.UserID, item.Key, item.Title, string(item.Type), string(guids), string(genres))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert watchlist item: %w", err)
	}
	return s.Get(ctx, item.UserID, item.Key)
}

// Get returns one entry by (user, key).
func (s *WatchlistStore) Get(ctx context.Context, userID int64, key string) (*WatchlistItem, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+watchlistColumns+" FROM watchlist_items WHERE user_id = ? AND key = ?", userID, key)
	item, err := s.scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return item, nil
}

// Pending returns entries not yet routed, across all users.
func (s *WatchlistStore) Pending(ctx context.Context) ([]WatchlistItem, error) {
	return s.listByStatus(ctx, WatchlistPending)
}

// ListByUser returns all live entries for one user.
func (s *WatchlistStore) ListByUser(ctx context.Context, userID int64) ([]WatchlistItem, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+watchlistColumns+" FROM watchlist_items WHERE user_id = ? AND status != ? ORDER BY added_at DESC",
		userID, WatchlistRemoved)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist items: %w", err)
	}
	defer rows.Close()
	return s.collect(rows)
}

// All returns every live entry.
func (s *WatchlistStore) All(ctx context.Context) ([]WatchlistItem, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+watchlistColumns+" FROM watchlist_items WHERE status != ? ORDER BY added_at DESC",
		WatchlistRemoved)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist items: %w", err)
	}
	defer rows.Close()
	return s.collect(rows)
}

func (s *WatchlistStore) listByStatus(ctx context.Context, status string) ([]WatchlistItem, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+watchlistColumns+" FROM watchlist_items WHERE status = ? ORDER BY added_at", status)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist items: %w", err)
	}
	defer rows.Close()
	return s.collect(rows)
}

// SetStatus updates an entry's routing status.
func (s *WatchlistStore) SetStatus(ctx context.Context, id int64, status string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE watchlist_items SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("failed to update watchlist item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRemoved flags entries for a user that are no longer on the
// upstream watchlist. keys holds the keys still present.
func (s *WatchlistStore) MarkRemoved(ctx context.Context, userID int64, keys map[string]bool) (int64, error) {
	items, err := s.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	var removed int64
	for _, item := range items {
		if keys[item.Key] {
			continue
		}
		if err := s.SetStatus(ctx, item.ID, WatchlistRemoved); err != nil {
			s.logger.Warn().Err(err).Int64("itemId", item.ID).Msg("failed to mark item removed")
			continue
		}
		removed++
	}
	return removed, nil
}

func (s *WatchlistStore) collect(rows *sql.Rows) ([]WatchlistItem, error) {
	var items []WatchlistItem
	for rows.Next() {
		item, err := s.scanItem(rows)
		if err != nil {
			s.logger.Warn().Err(err).Msg("skipping malformed watchlist row")
			continue
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (s *WatchlistStore) scanItem(row rowScanner) (*WatchlistItem, error) {
	var (
		item        WatchlistItem
		contentType string
		guids       string
		genres      string
	)
	err := row.Scan(&item.ID, &item.UserID, &item.Key, &item.Title, &contentType,
		&guids, &genres, &item.Status, &item.AddedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	item.Type = media.ContentType(contentType)
	if err := json.Unmarshal([]byte(guids), &item.GUIDs); err != nil {
		return nil, fmt.Errorf("watchlist item %d has malformed guids: %w", item.ID, err)
	}
	if err := json.Unmarshal([]byte(genres), &item.Genres); err != nil {
		return nil, fmt.Errorf("watchlist item %d has malformed genres: %w", item.ID, err)
	}
	return &item, nil
}
