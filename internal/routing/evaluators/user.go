package evaluators

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/media"
	"github.com/helmarr/helmarr/internal/routing"
)

var userOperators = []string{"equals", "notEquals", "in", "notIn"}

// User routes content by the requesting user's identity. Values may be
// numeric ids or user names.
type User struct {
	ruleEvaluator
}

// NewUser creates the user evaluator.
func NewUser(rules routing.RuleStore, trees routing.TreeEvaluator, logger zerolog.Logger) *User {
	return &User{ruleEvaluator{
		name:        "user",
		description: "Routes content based on the requesting user",
		priority:    priorityUser,
		ruleType:    "user",
		rules:       rules,
		trees:       trees,
		logger:      logger.With().Str("component", "evaluator-user").Logger(),
	}}
}

func (e *User) SupportedFields() []string { return []string{"user", "userId", "userName"} }

func (e *User) SupportedOperators() map[string][]string {
	return map[string][]string{
		"user":     userOperators,
		"userId":   userOperators,
		"userName": userOperators,
	}
}

func (e *User) CanEvaluateConditionField(field string) bool {
	return field == "user" || field == "userId" || field == "userName"
}

func (e *User) EvaluateCondition(_ context.Context, cond *routing.Condition, _ *media.Item, rctx *routing.Context) (bool, error) {
	if rctx.UserID == 0 && rctx.UserName == "" {
		return false, nil
	}

	wanted, err := userValues(cond)
	if err != nil {
		return false, err
	}

	switch cond.Operator {
	case "equals", "in":
		for _, w := range wanted {
			if e.matchesUser(w, rctx) {
				return true, nil
			}
		}
		return false, nil
	case "notEquals", "notIn":
		for _, w := range wanted {
			if e.matchesUser(w, rctx) {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, fmt.Errorf("user evaluator: unsupported operator %q", cond.Operator)
	}
}

// userValues accepts string names, numeric ids, or lists of either.
func userValues(cond *routing.Condition) ([]string, error) {
	if vals, err := cond.StringValues(); err == nil {
		return vals, nil
	}
	ints, err := cond.IntValues()
	if err != nil {
		return nil, err
	}
	vals := make([]string, len(ints))
	for i, v := range ints {
		vals[i] = strconv.FormatInt(v, 10)
	}
	return vals, nil
}

// matchesUser accepts either a numeric user id or a user name.
func (e *User) matchesUser(value string, rctx *routing.Context) bool {
	if id, err := strconv.ParseInt(value, 10, 64); err == nil {
		return rctx.UserID != 0 && rctx.UserID == id
	}
	return rctx.UserName != "" && strings.EqualFold(rctx.UserName, value)
}
