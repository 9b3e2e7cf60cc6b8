// Package users exposes watchlist user management over HTTP: identity,
// approval flags, watchlist tokens, and quota limits.
package users

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/helmarr/helmarr/internal/media"
	"github.com/helmarr/helmarr/internal/quota"
	"github.com/helmarr/helmarr/internal/store"
)

// Handlers provides HTTP handlers for user management
type Handlers struct {
	users  *store.UserStore
	quotas *quota.Service
}

// NewHandlers creates new user handlers
func NewHandlers(users *store.UserStore, quotas *quota.Service) *Handlers {
	return &Handlers{users: users, quotas: quotas}
}

// RegisterRoutes registers user routes
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.GET("/:id/quotas", h.ListQuotas)
	g.PUT("/:id/quotas", h.SetQuota)
	g.DELETE("/:id/quotas/:contentType", h.ClearQuota)
	g.GET("/:id/quotas/:contentType/status", h.QuotaStatus)
}

// List returns all users
// GET /api/v1/users
func (h *Handlers) List(c echo.Context) error {
	users, err := h.users.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, users)
}

// Get returns one user
// GET /api/v1/users/:id
func (h *Handlers) Get(c echo.Context) error {
	id, err := userID(c)
	if err != nil {
		return err
	}

	user, err := h.users.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, user)
}

type userRequest struct {
	Name             string  `json:"name"`
	Email            string  `json:"email"`
	PlexToken        *string `json:"plexToken"`
	RequiresApproval *bool   `json:"requiresApproval"`
}

// Create registers a user
// POST /api/v1/users
func (h *Handlers) Create(c echo.Context) error {
	var req userRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}

	ctx := c.Request().Context()
	user, err := h.users.Upsert(ctx, req.Name, req.Email)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if req.PlexToken != nil {
		if err := h.users.SetPlexToken(ctx, user.ID, *req.PlexToken); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	if req.RequiresApproval != nil {
		if err := h.users.SetRequiresApproval(ctx, user.ID, *req.RequiresApproval); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	user, err = h.users.Get(ctx, user.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, user)
}

// Update changes a user's token or approval flag
// PUT /api/v1/users/:id
func (h *Handlers) Update(c echo.Context) error {
	id, err := userID(c)
	if err != nil {
		return err
	}

	var req userRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	if req.PlexToken != nil {
		if err := h.users.SetPlexToken(ctx, id, *req.PlexToken); err != nil {
			return userError(err)
		}
	}
	if req.RequiresApproval != nil {
		if err := h.users.SetRequiresApproval(ctx, id, *req.RequiresApproval); err != nil {
			return userError(err)
		}
	}

	user, err := h.users.Get(ctx, id)
	if err != nil {
		return userError(err)
	}
	return c.JSON(http.StatusOK, user)
}

// ListQuotas returns a user's configured quota limits
// GET /api/v1/users/:id/quotas
func (h *Handlers) ListQuotas(c echo.Context) error {
	id, err := userID(c)
	if err != nil {
		return err
	}

	limits, err := h.quotas.Limits(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, limits)
}

// SetQuota creates or replaces one quota limit
// PUT /api/v1/users/:id/quotas
func (h *Handlers) SetQuota(c echo.Context) error {
	id, err := userID(c)
	if err != nil {
		return err
	}

	var limit quota.Limit
	if err := c.Bind(&limit); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	limit.UserID = id

	if err := h.quotas.SetLimit(c.Request().Context(), limit); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, limit)
}

// ClearQuota removes one quota limit
// DELETE /api/v1/users/:id/quotas/:contentType
func (h *Handlers) ClearQuota(c echo.Context) error {
	id, err := userID(c)
	if err != nil {
		return err
	}

	if err := h.quotas.ClearLimit(c.Request().Context(), id, c.Param("contentType")); err != nil {
		if errors.Is(err, quota.ErrQuotaNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "no quota configured")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// QuotaStatus returns current usage against the configured limit
// GET /api/v1/users/:id/quotas/:contentType/status
func (h *Handlers) QuotaStatus(c echo.Context) error {
	id, err := userID(c)
	if err != nil {
		return err
	}

	t := media.ContentType(c.Param("contentType"))
	if !t.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid content type")
	}

	status, err := h.quotas.Status(c.Request().Context(), id, t)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, status)
}

func userID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	return id, nil
}

func userError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
