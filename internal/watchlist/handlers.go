package watchlist

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/helmarr/helmarr/internal/store"
)

// Handlers provides HTTP handlers for watchlist operations
type Handlers struct {
	service *Service
	items   *store.WatchlistStore
}

// NewHandlers creates new watchlist handlers
func NewHandlers(service *Service, items *store.WatchlistStore) *Handlers {
	return &Handlers{service: service, items: items}
}

// RegisterRoutes registers watchlist routes
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/user/:userId", h.ListByUser)
	g.POST("/sync", h.Sync)
	g.POST("/sync/instance/:instanceId", h.SyncInstance)
}

// List returns all live watchlist entries
// GET /api/v1/watchlist
func (h *Handlers) List(c echo.Context) error {
	items, err := h.items.All(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

// ListByUser returns one user's live watchlist entries
// GET /api/v1/watchlist/user/:userId
func (h *Handlers) ListByUser(c echo.Context) error {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}

	items, err := h.items.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

// Sync triggers a full watchlist sync pass
// POST /api/v1/watchlist/sync
func (h *Handlers) Sync(c echo.Context) error {
	stats, err := h.service.Sync(c.Request().Context())
	if err != nil {
		if errors.Is(err, ErrSyncRunning) {
			return echo.NewHTTPError(http.StatusConflict, "sync already running")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

// SyncInstance backfills one instance from the tracked watchlist
// POST /api/v1/watchlist/sync/instance/:instanceId
func (h *Handlers) SyncInstance(c echo.Context) error {
	instanceID, err := strconv.ParseInt(c.Param("instanceId"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid instance id")
	}

	stats, err := h.service.SyncInstance(c.Request().Context(), instanceID)
	if err != nil {
		if errors.Is(err, ErrSyncRunning) {
			return echo.NewHTTPError(http.StatusConflict, "sync already running")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}
