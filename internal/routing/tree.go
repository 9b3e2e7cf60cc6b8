package routing

import (
	"context"

	"github.com/helmarr/helmarr/internal/media"
)

// EvaluateTree recursively evaluates a condition tree against an item.
// Pure with respect to the tree: evaluators are the only leaf oracles.
//
// Semantics:
//   - an empty or nil group evaluates to false regardless of operator
//   - AND short-circuits on the first false member, OR on the first true
//   - a node's negate wraps the whole subtree result, applied last
func (r *Registry) EvaluateTree(ctx context.Context, node *ConditionNode, item *media.Item, rctx *Context) bool {
	if node == nil {
		return false
	}

	var result bool
	switch {
	case node.Group != nil:
		result = r.evaluateGroup(ctx, node.Group, item, rctx)
		if node.Group.Negate {
			result = !result
		}
	case node.Leaf != nil:
		result = r.evaluateLeaf(ctx, node.Leaf, item, rctx)
		if node.Leaf.Negate {
			result = !result
		}
	default:
		r.logger.Warn().Msg("empty condition node, evaluating to false")
	}
	return result
}

func (r *Registry) evaluateGroup(ctx context.Context, group *ConditionGroup, item *media.Item, rctx *Context) bool {
	if len(group.Conditions) == 0 {
		return false
	}

	switch group.Operator {
	case OpAnd:
		for i := range group.Conditions {
			if !r.EvaluateTree(ctx, &group.Conditions[i], item, rctx) {
				return false
			}
		}
		return true
	case OpOr:
		for i := range group.Conditions {
			if r.EvaluateTree(ctx, &group.Conditions[i], item, rctx) {
				return true
			}
		}
		return false
	default:
		r.logger.Warn().Str("operator", string(group.Operator)).
			Msg("unknown group operator, evaluating to false")
		return false
	}
}

// evaluateLeaf delegates a leaf to the first evaluator claiming its
// field. When no evaluator claims the field, it falls back to the first
// evaluator that can judge conditions at all; results for unclaimed
// fields are therefore best-effort.
func (r *Registry) evaluateLeaf(ctx context.Context, cond *Condition, item *media.Item, rctx *Context) bool {
	for _, ev := range r.evaluators {
		ce, ok := ev.(ConditionEvaluator)
		if !ok || !ce.CanEvaluateConditionField(cond.Field) {
			continue
		}
		result, err := ce.EvaluateCondition(ctx, cond, item, rctx)
		if err != nil {
			r.logger.Error().Err(err).
				Str("evaluator", ev.Name()).
				Str("field", cond.Field).
				Msg("condition evaluation failed")
			return false
		}
		return result
	}

	for _, ev := range r.evaluators {
		ce, ok := ev.(ConditionEvaluator)
		if !ok {
			continue
		}
		result, err := ce.EvaluateCondition(ctx, cond, item, rctx)
		if err != nil {
			r.logger.Error().Err(err).
				Str("evaluator", ev.Name()).
				Str("field", cond.Field).
				Msg("fallback condition evaluation failed")
			return false
		}
		r.logger.Debug().
			Str("evaluator", ev.Name()).
			Str("field", cond.Field).
			Msg("field unclaimed, used fallback evaluator")
		return result
	}

	r.logger.Warn().Str("field", cond.Field).Str("operator", cond.Operator).
		Msg("no evaluator can judge condition field")
	return false
}
