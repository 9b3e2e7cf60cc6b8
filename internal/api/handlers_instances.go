package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/helmarr/helmarr/internal/media"
	"github.com/helmarr/helmarr/internal/radarr"
	"github.com/helmarr/helmarr/internal/routing"
	"github.com/helmarr/helmarr/internal/sonarr"
	"github.com/helmarr/helmarr/internal/store"
)

func (s *Server) listInstances(c echo.Context) error {
	instances, err := s.instanceStore.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, instances)
}

func (s *Server) getInstance(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	inst, err := s.instanceStore.Instance(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if inst == nil {
		return echo.NewHTTPError(http.StatusNotFound, "instance not found")
	}
	return c.JSON(http.StatusOK, inst)
}

// instanceRequest carries the API key on writes; reads redact it.
type instanceRequest struct {
	routing.Instance
	APIKey string `json:"apiKey"`
}

func (s *Server) createInstance(c echo.Context) error {
	var req instanceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid instance: "+err.Error())
	}
	req.Instance.APIKey = req.APIKey
	if err := validateInstance(&req.Instance); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	created, err := s.instanceStore.Create(c.Request().Context(), req.Instance)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, created)
}

func (s *Server) updateInstance(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	var req instanceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid instance: "+err.Error())
	}
	req.Instance.ID = id
	req.Instance.APIKey = req.APIKey
	if err := validateInstance(&req.Instance); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	updated, err := s.instanceStore.Update(c.Request().Context(), req.Instance)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "instance not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, updated)
}

func (s *Server) deleteInstance(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	if err := s.instanceStore.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "instance not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// testInstance checks connectivity and credentials against the backend.
func (s *Server) testInstance(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	inst, err := s.instanceStore.Instance(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if inst == nil {
		return echo.NewHTTPError(http.StatusNotFound, "instance not found")
	}

	switch inst.Type {
	case media.TypeMovie:
		client, err := radarr.NewClient(radarr.ClientConfig{URL: inst.BaseURL, APIKey: inst.APIKey, Logger: &s.logger})
		if err == nil {
			err = client.Ping(ctx)
		}
		if err != nil {
			return c.JSON(http.StatusOK, map[string]interface{}{"ok": false, "error": err.Error()})
		}
	case media.TypeShow:
		client, err := sonarr.NewClient(sonarr.ClientConfig{URL: inst.BaseURL, APIKey: inst.APIKey, Logger: &s.logger})
		if err == nil {
			err = client.Ping(ctx)
		}
		if err != nil {
			return c.JSON(http.StatusOK, map[string]interface{}{"ok": false, "error": err.Error()})
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}

func validateInstance(inst *routing.Instance) error {
	if inst.Name == "" {
		return errors.New("instance name is required")
	}
	if inst.BaseURL == "" {
		return errors.New("instance baseUrl is required")
	}
	if !inst.Type.Valid() {
		return errors.New("contentType must be movie or show")
	}
	return nil
}
