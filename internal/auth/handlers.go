package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Handlers provides HTTP handlers for authentication
type Handlers struct {
	service *Service
}

// NewHandlers creates new auth handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterPublicRoutes registers the unauthenticated auth routes
func (h *Handlers) RegisterPublicRoutes(g *echo.Group) {
	g.GET("/status", h.Status)
	g.POST("/setup", h.Setup)
	g.POST("/login", h.Login)
	g.POST("/logout", h.Logout)
}

// RegisterProtectedRoutes registers routes behind the auth middleware
func (h *Handlers) RegisterProtectedRoutes(g *echo.Group) {
	g.GET("/apikeys", h.ListAPIKeys)
	g.POST("/apikeys", h.CreateAPIKey)
	g.DELETE("/apikeys/:id", h.DeleteAPIKey)
}

type passwordRequest struct {
	Password string `json:"password"`
}

// Status reports whether initial setup has happened
// GET /api/v1/auth/status
func (h *Handlers) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{
		"configured": h.service.IsPasswordSet(c.Request().Context()),
	})
}

// Setup sets the admin password on first run
// POST /api/v1/auth/setup
func (h *Handlers) Setup(c echo.Context) error {
	if h.service.IsPasswordSet(c.Request().Context()) {
		return echo.NewHTTPError(http.StatusConflict, "password already configured")
	}

	var req passwordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.service.SetPassword(c.Request().Context(), req.Password); err != nil {
		if errors.Is(err, ErrPasswordRequired) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return h.issueSession(c)
}

// Login validates the admin password and issues a session token
// POST /api/v1/auth/login
func (h *Handlers) Login(c echo.Context) error {
	var req passwordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := h.service.ValidatePassword(c.Request().Context(), req.Password); err != nil {
		switch {
		case errors.Is(err, ErrNoPasswordSet):
			return echo.NewHTTPError(http.StatusPreconditionFailed, "setup required")
		case errors.Is(err, ErrInvalidCredentials):
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return h.issueSession(c)
}

// Logout clears the session cookie
// POST /api/v1/auth/logout
func (h *Handlers) Logout(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     "helmarr_session",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) issueSession(c echo.Context) error {
	token, err := h.service.GenerateToken()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create session")
	}

	c.SetCookie(&http.Cookie{
		Name:     "helmarr_session",
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(TokenExpiry),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

type createKeyRequest struct {
	Name string `json:"name"`
}

// ListAPIKeys returns the stored API keys, secrets redacted
// GET /api/v1/auth/apikeys
func (h *Handlers) ListAPIKeys(c echo.Context) error {
	keys, err := h.service.ListAPIKeys(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, keys)
}

// CreateAPIKey creates a named API key; the secret is returned once
// POST /api/v1/auth/apikeys
func (h *Handlers) CreateAPIKey(c echo.Context) error {
	var req createKeyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	key, err := h.service.CreateAPIKey(c.Request().Context(), req.Name)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, key)
}

// DeleteAPIKey removes an API key
// DELETE /api/v1/auth/apikeys/:id
func (h *Handlers) DeleteAPIKey(c echo.Context) error {
	if err := h.service.DeleteAPIKey(c.Request().Context(), c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
