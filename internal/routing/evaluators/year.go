package evaluators

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/media"
	"github.com/helmarr/helmarr/internal/routing"
)

var yearOperators = []string{"equals", "notEquals", "greaterThan", "lessThan", "between", "in"}

// Year routes content by release year.
type Year struct {
	ruleEvaluator
}

// NewYear creates the year evaluator.
func NewYear(rules routing.RuleStore, trees routing.TreeEvaluator, logger zerolog.Logger) *Year {
	return &Year{ruleEvaluator{
		name:        "year",
		description: "Routes content based on its release year",
		priority:    priorityYear,
		ruleType:    "year",
		rules:       rules,
		trees:       trees,
		logger:      logger.With().Str("component", "evaluator-year").Logger(),
	}}
}

func (e *Year) SupportedFields() []string { return []string{"year"} }

func (e *Year) SupportedOperators() map[string][]string {
	return map[string][]string{"year": yearOperators}
}

func (e *Year) CanEvaluateConditionField(field string) bool { return field == "year" }

func (e *Year) EvaluateCondition(_ context.Context, cond *routing.Condition, item *media.Item, _ *routing.Context) (bool, error) {
	year := int64(item.Year())
	if year == 0 {
		// Unknown year matches nothing.
		return false, nil
	}

	switch cond.Operator {
	case "equals":
		want, err := cond.IntValue()
		if err != nil {
			return false, err
		}
		return year == want, nil
	case "notEquals":
		want, err := cond.IntValue()
		if err != nil {
			return false, err
		}
		return year != want, nil
	case "greaterThan":
		want, err := cond.IntValue()
		if err != nil {
			return false, err
		}
		return year > want, nil
	case "lessThan":
		want, err := cond.IntValue()
		if err != nil {
			return false, err
		}
		return year < want, nil
	case "between":
		min, max, err := cond.IntRange()
		if err != nil {
			return false, err
		}
		if min != nil && year < *min {
			return false, nil
		}
		if max != nil && year > *max {
			return false, nil
		}
		return true, nil
	case "in":
		wanted, err := cond.IntValues()
		if err != nil {
			return false, err
		}
		for _, w := range wanted {
			if year == w {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("year evaluator: unsupported operator %q", cond.Operator)
	}
}
