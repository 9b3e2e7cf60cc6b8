package evaluators

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/media"
	"github.com/helmarr/helmarr/internal/routing"
)

var languageOperators = []string{"equals", "notEquals", "in", "notIn"}

// Language routes content by its original language.
type Language struct {
	ruleEvaluator
}

// NewLanguage creates the language evaluator.
func NewLanguage(rules routing.RuleStore, trees routing.TreeEvaluator, logger zerolog.Logger) *Language {
	return &Language{ruleEvaluator{
		name:        "language",
		description: "Routes content based on its original language",
		priority:    priorityLanguage,
		ruleType:    "language",
		rules:       rules,
		trees:       trees,
		logger:      logger.With().Str("component", "evaluator-language").Logger(),
	}}
}

func (e *Language) SupportedFields() []string { return []string{"language", "originalLanguage"} }

func (e *Language) SupportedOperators() map[string][]string {
	return map[string][]string{"language": languageOperators, "originalLanguage": languageOperators}
}

func (e *Language) CanEvaluateConditionField(field string) bool {
	return field == "language" || field == "originalLanguage"
}

func (e *Language) EvaluateCondition(_ context.Context, cond *routing.Condition, item *media.Item, _ *routing.Context) (bool, error) {
	language := item.Language()
	if language == "" {
		return false, nil
	}

	switch cond.Operator {
	case "equals":
		want, err := cond.StringValue()
		if err != nil {
			return false, err
		}
		return strings.EqualFold(language, want), nil
	case "notEquals":
		want, err := cond.StringValue()
		if err != nil {
			return false, err
		}
		return !strings.EqualFold(language, want), nil
	case "in":
		wanted, err := cond.StringValues()
		if err != nil {
			return false, err
		}
		return containsFold(wanted, language), nil
	case "notIn":
		wanted, err := cond.StringValues()
		if err != nil {
			return false, err
		}
		return !containsFold(wanted, language), nil
	default:
		return false, fmt.Errorf("language evaluator: unsupported operator %q", cond.Operator)
	}
}
