package watchlist

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/media"
	"github.com/helmarr/helmarr/internal/routing"
	"github.com/helmarr/helmarr/internal/store"
	"github.com/helmarr/helmarr/internal/websocket"
)

// ErrSyncRunning is returned when a sync is requested while one is
// already in flight.
var ErrSyncRunning = errors.New("watchlist sync already running")

// Router is the routing surface the sync service drives. The routing
// engine implements it.
type Router interface {
	Route(ctx context.Context, item *media.Item, key string, opts routing.RouteOptions) ([]int64, error)
}

// SyncStats summarizes one sync pass.
type SyncStats struct {
	Users   int `json:"users"`
	Items   int `json:"items"`
	Added   int `json:"added"`
	Routed  int `json:"routed"`
	Removed int `json:"removed"`
	Errors  int `json:"errors"`
}

// Service runs watchlist synchronization: diffing provider watchlists
// against local state and routing new entries.
type Service struct {
	client *Client
	users  *store.UserStore
	items  *store.WatchlistStore
	router Router
	hub    *websocket.Hub
	logger zerolog.Logger

	mu sync.Mutex
}

// NewService creates a watchlist sync service.
func NewService(client *Client, users *store.UserStore, items *store.WatchlistStore, router Router, hub *websocket.Hub, logger zerolog.Logger) *Service {
	return &Service{
		client: client,
		users:  users,
		items:  items,
		router: router,
		hub:    hub,
		logger: logger.With().Str("component", "watchlist-sync").Logger(),
	}
}

// Sync runs one full synchronization pass over all users that carry a
// watchlist token. Only one pass runs at a time.
func (s *Service) Sync(ctx context.Context) (*SyncStats, error) {
	if !s.mu.TryLock() {
		return nil, ErrSyncRunning
	}
	defer s.mu.Unlock()

	users, err := s.users.WithTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync users: %w", err)
	}

	stats := &SyncStats{Users: len(users)}
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		s.syncUser(ctx, user, stats)
	}

	s.logger.Info().
		Int("users", stats.Users).
		Int("items", stats.Items).
		Int("added", stats.Added).
		Int("routed", stats.Routed).
		Int("removed", stats.Removed).
		Int("errors", stats.Errors).
		Msg("watchlist sync completed")

	if s.hub != nil {
		if err := s.hub.Broadcast(websocket.EventSyncCompleted, stats); err != nil {
			s.logger.Warn().Err(err).Msg("failed to broadcast sync completion")
		}
	}
	return stats, nil
}

func (s *Service) syncUser(ctx context.Context, user store.User, stats *SyncStats) {
	log := s.logger.With().Str("user", user.Name).Logger()

	entries, err := s.client.Watchlist(ctx, user.PlexToken)
	if err != nil {
		// A failed fetch must not look like an emptied watchlist.
		log.Error().Err(err).Msg("watchlist fetch failed, skipping user")
		stats.Errors++
		return
	}
	stats.Items += len(entries)

	present := make(map[string]bool, len(entries))
	for _, entry := range entries {
		present[entry.Key] = true

		item, err := s.items.Upsert(ctx, store.WatchlistItem{
			UserID: user.ID,
			Key:    entry.Key,
			Title:  entry.Title,
			Type:   entry.Type,
			GUIDs:  entry.GUIDs,
			Genres: entry.Genres,
		})
		if err != nil {
			log.Error().Err(err).Str("key", entry.Key).Msg("failed to record watchlist entry")
			stats.Errors++
			continue
		}
		if item.Status != store.WatchlistPending {
			continue
		}
		stats.Added++

		dispatched, err := s.router.Route(ctx, item.Item(), item.Key, routing.RouteOptions{
			UserID:   user.ID,
			UserName: user.Name,
		})
		if err != nil {
			log.Error().Err(err).Str("title", item.Title).Msg("routing failed")
			stats.Errors++
			continue
		}
		if len(dispatched) > 0 {
			if err := s.items.SetStatus(ctx, item.ID, store.WatchlistRouted); err != nil {
				log.Warn().Err(err).Str("key", item.Key).Msg("failed to mark entry routed")
			}
			stats.Routed++
			if s.hub != nil {
				s.hub.Broadcast(websocket.EventItemRouted, item) //nolint:errcheck
			}
		}
	}

	removed, err := s.items.MarkRemoved(ctx, user.ID, present)
	if err != nil {
		log.Error().Err(err).Msg("failed to mark removed entries")
		stats.Errors++
		return
	}
	stats.Removed += int(removed)
}

// SyncInstance re-routes every live watchlist entry with the given
// instance as the sync target. Used to backfill an instance added after
// items were originally routed.
func (s *Service) SyncInstance(ctx context.Context, instanceID int64) (*SyncStats, error) {
	if !s.mu.TryLock() {
		return nil, ErrSyncRunning
	}
	defer s.mu.Unlock()

	items, err := s.items.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list watchlist items: %w", err)
	}

	stats := &SyncStats{Items: len(items)}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		user, err := s.users.Get(ctx, item.UserID)
		if err != nil {
			s.logger.Warn().Err(err).Int64("userId", item.UserID).Msg("failed to load item owner, routing without name")
			user = &store.User{ID: item.UserID}
		}

		dispatched, err := s.router.Route(ctx, item.Item(), item.Key, routing.RouteOptions{
			UserID:               item.UserID,
			UserName:             user.Name,
			Syncing:              true,
			SyncTargetInstanceID: instanceID,
		})
		if err != nil {
			s.logger.Error().Err(err).Str("title", item.Title).Msg("instance sync routing failed")
			stats.Errors++
			continue
		}
		if len(dispatched) > 0 {
			stats.Routed++
		}
	}

	s.logger.Info().
		Int64("instanceId", instanceID).
		Int("items", stats.Items).
		Int("routed", stats.Routed).
		Int("errors", stats.Errors).
		Msg("instance sync completed")
	return stats, nil
}
