package evaluators

import (
	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/routing"
)

// Conditional evaluates rules whose condition trees may mix fields from
// any evaluator; leaf conditions are delegated back through the registry
// to whichever evaluator claims the field. It owns no fields itself.
type Conditional struct {
	ruleEvaluator
}

// NewConditional creates the conditional evaluator.
func NewConditional(rules routing.RuleStore, trees routing.TreeEvaluator, logger zerolog.Logger) *Conditional {
	return &Conditional{ruleEvaluator{
		name:        "conditional",
		description: "Routes content by arbitrary condition trees combining any supported fields",
		priority:    priorityConditional,
		ruleType:    "conditional",
		rules:       rules,
		trees:       trees,
		logger:      logger.With().Str("component", "evaluator-conditional").Logger(),
	}}
}

func (e *Conditional) SupportedFields() []string { return nil }

func (e *Conditional) SupportedOperators() map[string][]string { return nil }
