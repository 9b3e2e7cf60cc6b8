package routing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// GroupOperator combines the members of a condition group.
type GroupOperator string

const (
	OpAnd GroupOperator = "and"
	OpOr  GroupOperator = "or"
)

var (
	ErrEmptyCondition   = errors.New("condition node is empty")
	ErrInvalidCondition = errors.New("invalid condition")
)

// Condition is a leaf condition. Field and operator vocabularies are
// owned by the evaluators, not the engine.
type Condition struct {
	Field    string          `json:"field"`
	Operator string          `json:"operator"`
	Value    json.RawMessage `json:"value,omitempty"`
	Negate   bool            `json:"negate,omitempty"`
}

// ConditionGroup combines child nodes with AND/OR and optional negation.
type ConditionGroup struct {
	Operator   GroupOperator   `json:"operator"`
	Conditions []ConditionNode `json:"conditions"`
	Negate     bool            `json:"negate,omitempty"`
}

// ConditionNode is a tagged union: exactly one of Leaf or Group is set.
// Rules are stored as JSON; validation happens here, at the persistence
// boundary, so the engine never sees malformed trees.
type ConditionNode struct {
	Leaf  *Condition
	Group *ConditionGroup
}

// UnmarshalJSON decodes and validates a node. An object with a "field"
// key is a leaf; an object with "conditions" is a group.
func (n *ConditionNode) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCondition, err)
	}

	if _, isGroup := probe["conditions"]; isGroup {
		var group ConditionGroup
		if err := json.Unmarshal(data, &group); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCondition, err)
		}
		switch GroupOperator(strings.ToLower(string(group.Operator))) {
		case OpAnd:
			group.Operator = OpAnd
		case OpOr:
			group.Operator = OpOr
		default:
			return fmt.Errorf("%w: unknown group operator %q", ErrInvalidCondition, group.Operator)
		}
		n.Group = &group
		n.Leaf = nil
		return nil
	}

	if _, isLeaf := probe["field"]; isLeaf {
		var leaf Condition
		if err := json.Unmarshal(data, &leaf); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCondition, err)
		}
		if leaf.Field == "" {
			return fmt.Errorf("%w: leaf condition requires a field", ErrInvalidCondition)
		}
		if leaf.Operator == "" {
			return fmt.Errorf("%w: leaf condition requires an operator", ErrInvalidCondition)
		}
		n.Leaf = &leaf
		n.Group = nil
		return nil
	}

	return fmt.Errorf("%w: node is neither a leaf nor a group", ErrInvalidCondition)
}

// MarshalJSON emits the underlying leaf or group object.
func (n ConditionNode) MarshalJSON() ([]byte, error) {
	switch {
	case n.Leaf != nil:
		return json.Marshal(n.Leaf)
	case n.Group != nil:
		return json.Marshal(n.Group)
	default:
		return nil, ErrEmptyCondition
	}
}

// ParseConditionNode decodes a stored condition tree.
func ParseConditionNode(data []byte) (*ConditionNode, error) {
	var node ConditionNode
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// StringValue decodes the condition value as a single string.
func (c *Condition) StringValue() (string, error) {
	var s string
	if err := json.Unmarshal(c.Value, &s); err != nil {
		return "", fmt.Errorf("condition %q: value is not a string: %w", c.Field, err)
	}
	return s, nil
}

// StringValues decodes the value as a list of strings, accepting a bare
// string as a one-element list.
func (c *Condition) StringValues() ([]string, error) {
	var list []string
	if err := json.Unmarshal(c.Value, &list); err == nil {
		return list, nil
	}
	s, err := c.StringValue()
	if err != nil {
		return nil, err
	}
	return []string{s}, nil
}

// IntValue decodes the value as a single integer.
func (c *Condition) IntValue() (int64, error) {
	var v int64
	if err := json.Unmarshal(c.Value, &v); err != nil {
		return 0, fmt.Errorf("condition %q: value is not an integer: %w", c.Field, err)
	}
	return v, nil
}

// IntValues decodes the value as a list of integers, accepting a bare
// integer as a one-element list.
func (c *Condition) IntValues() ([]int64, error) {
	var list []int64
	if err := json.Unmarshal(c.Value, &list); err == nil {
		return list, nil
	}
	v, err := c.IntValue()
	if err != nil {
		return nil, err
	}
	return []int64{v}, nil
}

// IntRange decodes the value as a {min, max} object. Either bound may be
// omitted; ok reports which bounds are present via non-nil pointers.
func (c *Condition) IntRange() (min, max *int64, err error) {
	var r struct {
		Min *int64 `json:"min"`
		Max *int64 `json:"max"`
	}
	if err := json.Unmarshal(c.Value, &r); err != nil {
		return nil, nil, fmt.Errorf("condition %q: value is not a range: %w", c.Field, err)
	}
	if r.Min == nil && r.Max == nil {
		return nil, nil, fmt.Errorf("condition %q: range requires min or max", c.Field)
	}
	return r.Min, r.Max, nil
}
