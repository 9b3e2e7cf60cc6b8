package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const apiKeyHeader = "X-Api-Key"

// Middleware returns an echo middleware that accepts either a valid
// session token or a stored API key.
func (s *Service) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if key := c.Request().Header.Get(apiKeyHeader); key != "" {
				if err := s.ValidateAPIKey(c.Request().Context(), key); err == nil {
					return next(c)
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid API key")
			}

			token := bearerToken(c)
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if _, err := s.ValidateToken(token); err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}
			return next(c)
		}
	}
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	// Browser clients carry the token in a cookie instead.
	if cookie, err := c.Cookie("helmarr_session"); err == nil {
		return cookie.Value
	}
	return ""
}
