package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/helmarr/helmarr/internal/media"
	"github.com/helmarr/helmarr/internal/routing"
	"github.com/helmarr/helmarr/internal/store"
)

func (s *Server) listRules(c echo.Context) error {
	rules, err := s.ruleStore.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rules)
}

func (s *Server) getRule(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	rule, err := s.ruleStore.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "rule not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rule)
}

func (s *Server) createRule(c echo.Context) error {
	var rule routing.Rule
	if err := c.Bind(&rule); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid rule: "+err.Error())
	}
	if err := validateRule(&rule); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	created, err := s.ruleStore.Create(c.Request().Context(), rule)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, created)
}

func (s *Server) updateRule(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	var rule routing.Rule
	if err := c.Bind(&rule); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid rule: "+err.Error())
	}
	rule.ID = id
	if err := validateRule(&rule); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	updated, err := s.ruleStore.Update(c.Request().Context(), rule)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "rule not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, updated)
}

func (s *Server) deleteRule(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	if err := s.ruleStore.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "rule not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// evaluatorInfo is the discovery payload for the rule editor.
type evaluatorInfo struct {
	Name               string              `json:"name"`
	Description        string              `json:"description"`
	Priority           int                 `json:"priority"`
	SupportedFields    []string            `json:"supportedFields,omitempty"`
	SupportedOperators map[string][]string `json:"supportedOperators,omitempty"`
}

func (s *Server) listEvaluators(c echo.Context) error {
	evs := s.registry.Evaluators()
	infos := make([]evaluatorInfo, 0, len(evs))
	for _, ev := range evs {
		infos = append(infos, evaluatorInfo{
			Name:               ev.Name(),
			Description:        ev.Description(),
			Priority:           ev.Priority(),
			SupportedFields:    ev.SupportedFields(),
			SupportedOperators: ev.SupportedOperators(),
		})
	}
	return c.JSON(http.StatusOK, infos)
}

// testRouteRequest is a dry-run routing probe: the item is evaluated
// against the live rule set but nothing is dispatched.
type testRouteRequest struct {
	Title    string            `json:"title"`
	Type     media.ContentType `json:"type"`
	GUIDs    []string          `json:"guids"`
	Genres   []string          `json:"genres"`
	Metadata *media.Metadata   `json:"metadata"`
	UserID   int64             `json:"userId"`
	UserName string            `json:"userName"`
}

func (s *Server) testRoute(c echo.Context) error {
	var req testRouteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if !req.Type.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "type must be movie or show")
	}

	ctx := c.Request().Context()
	item := &media.Item{
		Title:    req.Title,
		Type:     req.Type,
		GUIDs:    req.GUIDs,
		Genres:   req.Genres,
		Metadata: req.Metadata,
	}
	rctx := &routing.Context{
		UserID:   req.UserID,
		UserName: req.UserName,
		Type:     req.Type,
	}

	var decisions []routing.Decision
	matched := make([]string, 0)
	for _, ev := range s.registry.Evaluators() {
		can, err := ev.CanEvaluate(ctx, item, rctx)
		if err != nil || !can {
			continue
		}
		ds, err := ev.Evaluate(ctx, item, rctx)
		if err != nil {
			continue
		}
		if len(ds) > 0 {
			matched = append(matched, ev.Name())
		}
		decisions = append(decisions, ds...)
	}

	routing.SortDecisions(decisions)
	resolved := routing.ResolveDecisions(decisions, s.logger)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"matchedEvaluators": matched,
		"decisions":         resolved,
	})
}

func validateRule(rule *routing.Rule) error {
	if rule.Name == "" {
		return errors.New("rule name is required")
	}
	if rule.InstanceID == 0 {
		return errors.New("rule instanceId is required")
	}
	switch rule.ContentType {
	case "", "movie", "show", "both":
	default:
		return errors.New("contentType must be movie, show, or both")
	}
	return nil
}

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}
