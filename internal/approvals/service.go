// Package approvals manages the lifecycle of held routing actions:
// creation events, admin resolution, and re-dispatch of approved
// requests.
package approvals

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/routing"
	"github.com/helmarr/helmarr/internal/store"
	"github.com/helmarr/helmarr/internal/websocket"
)

// ErrNotPending is returned when resolving a request that was already
// decided.
var ErrNotPending = errors.New("approval request is not pending")

// Executor dispatches the stored routing of an approved request. The
// routing engine implements this.
type Executor interface {
	ExecuteApproval(ctx context.Context, req *routing.ApprovalRequest) ([]int64, error)
}

// Service coordinates approval persistence, resolution, and events. It
// also implements routing.ApprovalStore so the engine's holds surface as
// creation events.
type Service struct {
	store     *store.ApprovalStore
	watchlist *store.WatchlistStore
	executor  Executor
	hub       *websocket.Hub
	logger    zerolog.Logger
}

// NewService creates an approvals service.
func NewService(approvalStore *store.ApprovalStore, watchlist *store.WatchlistStore, hub *websocket.Hub, logger zerolog.Logger) *Service {
	return &Service{
		store:     approvalStore,
		watchlist: watchlist,
		hub:       hub,
		logger:    logger.With().Str("component", "approvals").Logger(),
	}
}

// SetExecutor wires the routing engine in after construction; the engine
// itself depends on this service as its approval store.
func (s *Service) SetExecutor(executor Executor) {
	s.executor = executor
}

// FindExisting implements routing.ApprovalStore.
func (s *Service) FindExisting(ctx context.Context, userID int64, contentKey string) (*routing.ApprovalRequest, error) {
	return s.store.FindExisting(ctx, userID, contentKey)
}

// Create implements routing.ApprovalStore, broadcasting the new request
// to connected clients.
func (s *Service) Create(ctx context.Context, params routing.CreateApprovalParams) (*routing.ApprovalRequest, error) {
	req, err := s.store.Create(ctx, params)
	if err != nil {
		return nil, err
	}

	s.markWatchlist(ctx, req.UserID, req.ContentKey, store.WatchlistHeld)

	if s.hub != nil {
		if err := s.hub.Broadcast(websocket.EventApprovalCreated, req); err != nil {
			s.logger.Warn().Err(err).Int64("requestId", req.ID).Msg("failed to broadcast approval creation")
		}
	}
	return req, nil
}

// Approve implements routing.ApprovalStore. Used both by the engine's
// auto-approve path and by admin resolution.
func (s *Service) Approve(ctx context.Context, id, approverID int64, notes string) (*routing.ApprovalRequest, error) {
	req, err := s.store.Approve(ctx, id, approverID, notes)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotPending
		}
		return nil, err
	}
	return req, nil
}

// Get returns one approval request.
func (s *Service) Get(ctx context.Context, id int64) (*routing.ApprovalRequest, error) {
	return s.store.Get(ctx, id)
}

// List returns approval requests, optionally filtered by status.
func (s *Service) List(ctx context.Context, status routing.ApprovalStatus) ([]routing.ApprovalRequest, error) {
	return s.store.List(ctx, status)
}

// Resolve approves or rejects a pending request as the given admin. On
// approval the stored proposed routing is dispatched.
func (s *Service) Resolve(ctx context.Context, id, approverID int64, approve bool, notes string) (*routing.ApprovalRequest, error) {
	var (
		req *routing.ApprovalRequest
		err error
	)
	if approve {
		req, err = s.Approve(ctx, id, approverID, notes)
	} else {
		req, err = s.store.Reject(ctx, id, approverID, notes)
		if errors.Is(err, store.ErrNotFound) {
			err = ErrNotPending
		}
	}
	if err != nil {
		return nil, err
	}

	if approve {
		if s.executor == nil {
			return nil, fmt.Errorf("no executor configured for approval dispatch")
		}
		dispatched, execErr := s.executor.ExecuteApproval(ctx, req)
		if execErr != nil {
			s.logger.Error().Err(execErr).Int64("requestId", req.ID).
				Msg("approved request failed to dispatch")
		} else if len(dispatched) > 0 {
			s.markWatchlist(ctx, req.UserID, req.ContentKey, store.WatchlistRouted)
		}
	}

	if s.hub != nil {
		if err := s.hub.Broadcast(websocket.EventApprovalResolved, req); err != nil {
			s.logger.Warn().Err(err).Int64("requestId", req.ID).Msg("failed to broadcast approval resolution")
		}
	}

	s.logger.Info().
		Int64("requestId", req.ID).
		Int64("approverId", approverID).
		Str("status", string(req.Status)).
		Msg("approval request resolved")
	return req, nil
}

func (s *Service) markWatchlist(ctx context.Context, userID int64, key, status string) {
	if s.watchlist == nil {
		return
	}
	item, err := s.watchlist.Get(ctx, userID, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn().Err(err).Str("key", key).Msg("failed to load watchlist entry for status update")
		}
		return
	}
	if err := s.watchlist.SetStatus(ctx, item.ID, status); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to update watchlist status")
	}
}
