package dto

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/noah-isme/advanced-filters-api/pkg/query"
)

const (
	valueTypeDate     = "date"
	valueTypeDateTime = "datetime"
)

// ErrInvalidQueryNode is returned for request trees that do not describe an expression.
var ErrInvalidQueryNode = errors.New("invalid query node")

// QueryNode is the JSON form of a query tree used by the HTTP API. A node with a field is
// a comparison; any other node groups its children.
type QueryNode struct {
	Connector string      `json:"connector,omitempty"`
	Negated   bool        `json:"negated,omitempty"`
	Children  []QueryNode `json:"children,omitempty"`
	Field     string      `json:"field,omitempty"`
	Lookup    string      `json:"lookup,omitempty"`
	Value     any         `json:"value"`
	// Type marks string values as "date" or "datetime".
	Type string `json:"type,omitempty"`
}

// ToExpression converts the node into a query expression.
func (n *QueryNode) ToExpression() (query.Expression, error) {
	return n.toExpression(0)
}

func (n *QueryNode) toExpression(depth int) (query.Expression, error) {
	if depth > 32 {
		return nil, fmt.Errorf("%w: nested too deeply", ErrInvalidQueryNode)
	}
	if n.Field != "" {
		lookup := query.Lookup(n.Lookup)
		if lookup == "" {
			lookup = query.LookupExact
		}
		if !lookup.Valid() {
			return nil, fmt.Errorf("%w: unknown lookup %q", ErrInvalidQueryNode, n.Lookup)
		}
		value, err := requestValue(n.Value, n.Type, true)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidQueryNode, n.Field, err)
		}
		return &query.Leaf{Field: n.Field, Lookup: lookup, Value: value}, nil
	}

	connector := query.Connector(n.Connector)
	if connector == "" {
		connector = query.ConnectorAnd
	}
	if connector != query.ConnectorAnd && connector != query.ConnectorOr {
		return nil, fmt.Errorf("%w: unknown connector %q", ErrInvalidQueryNode, n.Connector)
	}
	if len(n.Children) == 0 {
		return nil, fmt.Errorf("%w: group without conditions", ErrInvalidQueryNode)
	}
	children := make([]query.Expression, 0, len(n.Children))
	for i := range n.Children {
		child, err := n.Children[i].toExpression(depth + 1)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return &query.Combinator{Connector: connector, Negated: n.Negated, Children: children}, nil
}

func requestValue(raw any, typ string, allowList bool) (any, error) {
	switch v := raw.(type) {
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return int64(v), nil
		}
		return v, nil
	case string:
		switch typ {
		case valueTypeDate:
			return query.ParseDate(v)
		case valueTypeDateTime:
			return time.Parse(time.RFC3339Nano, v)
		}
		return v, nil
	case []any:
		if !allowList {
			return nil, errors.New("nested lists are not supported")
		}
		out := make([]any, len(v))
		for i, item := range v {
			converted, err := requestValue(item, typ, false)
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	}
	return raw, nil
}

// NewQueryNode renders an expression in its JSON form.
func NewQueryNode(expr query.Expression) *QueryNode {
	switch node := expr.(type) {
	case *query.Leaf:
		value, typ := responseValue(node.Value)
		return &QueryNode{Field: node.Field, Lookup: string(node.Lookup), Value: value, Type: typ}
	case *query.Combinator:
		out := &QueryNode{Connector: string(node.Connector), Negated: node.Negated}
		for _, child := range node.Children {
			if c := NewQueryNode(child); c != nil {
				out.Children = append(out.Children, *c)
			}
		}
		return out
	}
	return nil
}

func responseValue(v any) (any, string) {
	switch x := v.(type) {
	case query.Date:
		return x.String(), valueTypeDate
	case time.Time:
		return x.Format(time.RFC3339Nano), valueTypeDateTime
	case []any:
		out := make([]any, len(x))
		typ := ""
		for i, item := range x {
			var itemType string
			out[i], itemType = responseValue(item)
			if itemType != "" {
				typ = itemType
			}
		}
		return out, typ
	}
	return v, ""
}
