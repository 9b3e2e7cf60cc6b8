// Package evaluators contains the statically registered routing
// evaluator plugins. Discovery happens once at startup via NewRegistry;
// the set is immutable for the process lifetime.
package evaluators

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/media"
	"github.com/helmarr/helmarr/internal/routing"
)

// Evaluation order is priority-descending: the conditional evaluator
// runs first, field-specific evaluators after it.
const (
	priorityConditional = 100
	priorityGenre       = 85
	priorityYear        = 80
	priorityLanguage    = 75
	priorityUser        = 70
)

// NewRegistry builds the evaluator registry with the full plugin set.
// The registry is handed to each rule-backed evaluator as the tree
// evaluator for its rules' conditions.
func NewRegistry(rules routing.RuleStore, logger zerolog.Logger) *routing.Registry {
	reg := routing.NewRegistry(logger)
	reg.Load(
		NewConditional(rules, reg, logger),
		NewGenre(rules, reg, logger),
		NewYear(rules, reg, logger),
		NewLanguage(rules, reg, logger),
		NewUser(rules, reg, logger),
	)
	return reg
}

// ruleEvaluator is the shared behavior of all rule-backed evaluators:
// it applies when enabled rules of its type exist for the item's content
// type, and produces one decision per rule whose condition tree matches.
type ruleEvaluator struct {
	name        string
	description string
	priority    int
	ruleType    string
	rules       routing.RuleStore
	trees       routing.TreeEvaluator
	logger      zerolog.Logger
}

func (e *ruleEvaluator) Name() string        { return e.name }
func (e *ruleEvaluator) Description() string { return e.description }
func (e *ruleEvaluator) Priority() int       { return e.priority }

func (e *ruleEvaluator) matchingRules(ctx context.Context, rctx *routing.Context) ([]routing.Rule, error) {
	all, err := e.rules.EnabledRules(ctx)
	if err != nil {
		return nil, err
	}
	matched := make([]routing.Rule, 0, len(all))
	for _, rule := range all {
		if rule.Type != e.ruleType || !rule.AppliesTo(rctx.Type) {
			continue
		}
		matched = append(matched, rule)
	}
	return matched, nil
}

func (e *ruleEvaluator) CanEvaluate(ctx context.Context, _ *media.Item, rctx *routing.Context) (bool, error) {
	rules, err := e.matchingRules(ctx, rctx)
	if err != nil {
		return false, err
	}
	return len(rules) > 0, nil
}

func (e *ruleEvaluator) Evaluate(ctx context.Context, item *media.Item, rctx *routing.Context) ([]routing.Decision, error) {
	rules, err := e.matchingRules(ctx, rctx)
	if err != nil {
		return nil, err
	}

	var decisions []routing.Decision
	for i := range rules {
		rule := &rules[i]
		if !e.trees.EvaluateTree(ctx, rule.Condition, item, rctx) {
			continue
		}
		e.logger.Debug().
			Str("evaluator", e.name).
			Str("rule", rule.Name).
			Int64("instanceId", rule.InstanceID).
			Msg("rule matched")
		decisions = append(decisions, rule.Decision())
	}
	return decisions, nil
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}
