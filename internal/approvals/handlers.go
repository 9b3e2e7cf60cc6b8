package approvals

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/helmarr/helmarr/internal/routing"
	"github.com/helmarr/helmarr/internal/store"
)

// Handlers provides HTTP handlers for approval operations
type Handlers struct {
	service *Service
}

// NewHandlers creates new approval handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers approval routes
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/approve", h.Approve)
	g.POST("/:id/reject", h.Reject)
}

// List returns approval requests, optionally filtered by ?status=
// GET /api/v1/approvals
func (h *Handlers) List(c echo.Context) error {
	status := routing.ApprovalStatus(c.QueryParam("status"))
	switch status {
	case "", routing.ApprovalPending, routing.ApprovalApproved, routing.ApprovalRejected:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status filter")
	}

	requests, err := h.service.List(c.Request().Context(), status)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, requests)
}

// Get returns one approval request
// GET /api/v1/approvals/:id
func (h *Handlers) Get(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request id")
	}

	req, err := h.service.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "approval request not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, req)
}

type resolveRequest struct {
	Notes string `json:"notes"`
}

// Approve approves a pending request and dispatches its routing
// POST /api/v1/approvals/:id/approve
func (h *Handlers) Approve(c echo.Context) error {
	return h.resolve(c, true)
}

// Reject rejects a pending request
// POST /api/v1/approvals/:id/reject
func (h *Handlers) Reject(c echo.Context) error {
	return h.resolve(c, false)
}

func (h *Handlers) resolve(c echo.Context, approve bool) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request id")
	}

	var body resolveRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	approverID := adminUserID(c)
	req, err := h.service.Resolve(c.Request().Context(), id, approverID, approve, body.Notes)
	if err != nil {
		if errors.Is(err, ErrNotPending) {
			return echo.NewHTTPError(http.StatusConflict, "approval request is not pending")
		}
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "approval request not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, req)
}

// adminUserID extracts the resolving admin's id from the auth context.
func adminUserID(c echo.Context) int64 {
	if v, ok := c.Get("user_id").(int64); ok {
		return v
	}
	return 0
}
