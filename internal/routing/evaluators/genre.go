package evaluators

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/media"
	"github.com/helmarr/helmarr/internal/routing"
)

var genreOperators = []string{"equals", "notEquals", "contains", "notContains", "in", "notIn"}

// Genre routes content by its genre list and serves as the leaf oracle
// for genre fields.
type Genre struct {
	ruleEvaluator
}

// NewGenre creates the genre evaluator.
func NewGenre(rules routing.RuleStore, trees routing.TreeEvaluator, logger zerolog.Logger) *Genre {
	return &Genre{ruleEvaluator{
		name:        "genre",
		description: "Routes content based on its genres",
		priority:    priorityGenre,
		ruleType:    "genre",
		rules:       rules,
		trees:       trees,
		logger:      logger.With().Str("component", "evaluator-genre").Logger(),
	}}
}

func (e *Genre) SupportedFields() []string { return []string{"genre", "genres"} }

func (e *Genre) SupportedOperators() map[string][]string {
	return map[string][]string{"genre": genreOperators, "genres": genreOperators}
}

func (e *Genre) CanEvaluateConditionField(field string) bool {
	return field == "genre" || field == "genres"
}

func (e *Genre) EvaluateCondition(_ context.Context, cond *routing.Condition, item *media.Item, _ *routing.Context) (bool, error) {
	genres := item.EffectiveGenres()

	switch cond.Operator {
	case "equals", "contains":
		want, err := cond.StringValue()
		if err != nil {
			return false, err
		}
		return containsFold(genres, want), nil
	case "notEquals", "notContains":
		want, err := cond.StringValue()
		if err != nil {
			return false, err
		}
		return !containsFold(genres, want), nil
	case "in":
		wanted, err := cond.StringValues()
		if err != nil {
			return false, err
		}
		for _, w := range wanted {
			if containsFold(genres, w) {
				return true, nil
			}
		}
		return false, nil
	case "notIn":
		wanted, err := cond.StringValues()
		if err != nil {
			return false, err
		}
		for _, w := range wanted {
			if containsFold(genres, w) {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, fmt.Errorf("genre evaluator: unsupported operator %q", cond.Operator)
	}
}
