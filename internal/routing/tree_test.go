package routing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/media"
)

func condEvaluator(name string, priority int, fields []string, fn func(cond *Condition, item *media.Item, rctx *Context) (bool, error)) *fakeCondEvaluator {
	fieldSet := make(map[string]bool, len(fields))
	for _, f := range fields {
		fieldSet[f] = true
	}
	return &fakeCondEvaluator{
		fakeEvaluator: fakeEvaluator{name: name, priority: priority},
		fields:        fieldSet,
		condFn:        fn,
	}
}

// alwaysTrue/alwaysFalse judge any condition they are handed.
func verdictFn(v bool) func(cond *Condition, item *media.Item, rctx *Context) (bool, error) {
	return func(*Condition, *media.Item, *Context) (bool, error) { return v, nil }
}

func loadRegistry(t *testing.T, evaluators ...Evaluator) *Registry {
	t.Helper()
	reg := NewRegistry(zerolog.Nop())
	reg.Load(evaluators...)
	return reg
}

func leaf(field string) ConditionNode {
	return ConditionNode{Leaf: &Condition{Field: field, Operator: "eq", Value: json.RawMessage(`true`)}}
}

func TestEvaluateTree_NilNodeIsFalse(t *testing.T) {
	reg := loadRegistry(t)
	if reg.EvaluateTree(context.Background(), nil, movieItem(), &Context{}) {
		t.Error("nil node must evaluate to false")
	}
}

func TestEvaluateTree_EmptyNodeIsFalse(t *testing.T) {
	reg := loadRegistry(t)
	if reg.EvaluateTree(context.Background(), &ConditionNode{}, movieItem(), &Context{}) {
		t.Error("empty node must evaluate to false")
	}
}

func TestEvaluateTree_EmptyGroupIsFalse(t *testing.T) {
	reg := loadRegistry(t)
	for _, op := range []GroupOperator{OpAnd, OpOr} {
		node := &ConditionNode{Group: &ConditionGroup{Operator: op}}
		if reg.EvaluateTree(context.Background(), node, movieItem(), &Context{}) {
			t.Errorf("empty %s group must evaluate to false", op)
		}
	}
}

func TestEvaluateTree_LeafDelegatesToClaimingEvaluator(t *testing.T) {
	genre := condEvaluator("genre", 50, []string{"genre"}, verdictFn(true))
	year := condEvaluator("year", 40, []string{"year"}, verdictFn(false))
	reg := loadRegistry(t, genre, year)

	n := leaf("genre")
	if !reg.EvaluateTree(context.Background(), &n, movieItem(), &Context{}) {
		t.Error("claimed field should use the claiming evaluator's verdict")
	}
	if genre.condN != 1 || year.condN != 0 {
		t.Errorf("genre called %d times, year %d; want 1 and 0", genre.condN, year.condN)
	}
}

func TestEvaluateTree_UnclaimedFieldFallsBackToFirstConditionEvaluator(t *testing.T) {
	plain := &fakeEvaluator{name: "plain", priority: 90}
	fallback := condEvaluator("fallback", 50, []string{"genre"}, verdictFn(true))
	reg := loadRegistry(t, plain, fallback)

	n := leaf("codec")
	if !reg.EvaluateTree(context.Background(), &n, movieItem(), &Context{}) {
		t.Error("unclaimed field should fall back to the first condition evaluator")
	}
	if fallback.condN != 1 {
		t.Errorf("fallback called %d times, want 1", fallback.condN)
	}
}

func TestEvaluateTree_NoConditionEvaluatorIsFalse(t *testing.T) {
	plain := &fakeEvaluator{name: "plain", priority: 90}
	reg := loadRegistry(t, plain)

	n := leaf("genre")
	if reg.EvaluateTree(context.Background(), &n, movieItem(), &Context{}) {
		t.Error("no condition evaluator at all must yield false")
	}
}

func TestEvaluateTree_EvaluationErrorIsFalse(t *testing.T) {
	broken := condEvaluator("broken", 50, []string{"genre"},
		func(*Condition, *media.Item, *Context) (bool, error) { return true, errors.New("boom") })
	reg := loadRegistry(t, broken)

	n := leaf("genre")
	if reg.EvaluateTree(context.Background(), &n, movieItem(), &Context{}) {
		t.Error("evaluation error must yield false")
	}
}

func TestEvaluateTree_AndShortCircuits(t *testing.T) {
	no := condEvaluator("no", 60, []string{"a"}, verdictFn(false))
	yes := condEvaluator("yes", 50, []string{"b"}, verdictFn(true))
	reg := loadRegistry(t, no, yes)

	node := &ConditionNode{Group: &ConditionGroup{
		Operator:   OpAnd,
		Conditions: []ConditionNode{leaf("a"), leaf("b")},
	}}
	if reg.EvaluateTree(context.Background(), node, movieItem(), &Context{}) {
		t.Error("AND with a false member must be false")
	}
	if yes.condN != 0 {
		t.Errorf("AND should short-circuit, second evaluator called %d times", yes.condN)
	}
}

func TestEvaluateTree_OrShortCircuits(t *testing.T) {
	yes := condEvaluator("yes", 60, []string{"a"}, verdictFn(true))
	no := condEvaluator("no", 50, []string{"b"}, verdictFn(false))
	reg := loadRegistry(t, yes, no)

	node := &ConditionNode{Group: &ConditionGroup{
		Operator:   OpOr,
		Conditions: []ConditionNode{leaf("a"), leaf("b")},
	}}
	if !reg.EvaluateTree(context.Background(), node, movieItem(), &Context{}) {
		t.Error("OR with a true member must be true")
	}
	if no.condN != 0 {
		t.Errorf("OR should short-circuit, second evaluator called %d times", no.condN)
	}
}

func TestEvaluateTree_NegateWrapsSubtree(t *testing.T) {
	yes := condEvaluator("yes", 50, []string{"a"}, verdictFn(true))
	reg := loadRegistry(t, yes)

	negLeaf := leaf("a")
	negLeaf.Leaf.Negate = true
	if reg.EvaluateTree(context.Background(), &negLeaf, movieItem(), &Context{}) {
		t.Error("negated true leaf must be false")
	}

	group := &ConditionNode{Group: &ConditionGroup{
		Operator:   OpOr,
		Negate:     true,
		Conditions: []ConditionNode{leaf("a")},
	}}
	if reg.EvaluateTree(context.Background(), group, movieItem(), &Context{}) {
		t.Error("negated true group must be false")
	}

	// Negation applies to the empty-group rule as well: NOT(false) = true.
	emptyNeg := &ConditionNode{Group: &ConditionGroup{Operator: OpAnd, Negate: true}}
	if !reg.EvaluateTree(context.Background(), emptyNeg, movieItem(), &Context{}) {
		t.Error("negated empty group must be true")
	}
}

func TestEvaluateTree_UnknownGroupOperatorIsFalse(t *testing.T) {
	yes := condEvaluator("yes", 50, []string{"a"}, verdictFn(true))
	reg := loadRegistry(t, yes)

	node := &ConditionNode{Group: &ConditionGroup{
		Operator:   GroupOperator("xor"),
		Conditions: []ConditionNode{leaf("a")},
	}}
	if reg.EvaluateTree(context.Background(), node, movieItem(), &Context{}) {
		t.Error("unknown operator must evaluate to false")
	}
}
