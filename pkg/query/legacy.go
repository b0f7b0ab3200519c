package query

import (
	"encoding/json"
	"math"
	"time"
)

// Legacy payloads are untyped JSON objects of the form
//
//	{"connector": "AND", "negated": false, "children": [["age__gte", 18], {...}]}
//
// where datetimes inside range lookups were written as unix timestamps.

func decodeLegacyNode(m map[string]any, depth int) (Expression, error) {
	if depth > maxDepth {
		return nil, decodeErrorf("nesting deeper than %d", maxDepth)
	}
	connector := ConnectorAnd
	if raw, present := m["connector"]; present && raw != nil {
		op, _ := raw.(string)
		connector = Connector(op)
		if connector != ConnectorAnd && connector != ConnectorOr {
			return nil, decodeErrorf("unknown connector %q", op)
		}
	}
	negated := false
	if raw, present := m["negated"]; present && raw != nil {
		b, ok := raw.(bool)
		if !ok {
			return nil, decodeErrorf("negation flag has type %T", raw)
		}
		negated = b
	}

	var items []any
	if raw, present := m["children"]; present && raw != nil {
		var ok bool
		if items, ok = raw.([]any); !ok {
			return nil, decodeErrorf("children have type %T", raw)
		}
	}
	children := make([]Expression, 0, len(items))
	for _, item := range items {
		switch child := item.(type) {
		case []any:
			leaf, err := decodeLegacyLeaf(child)
			if err != nil {
				return nil, err
			}
			children = append(children, leaf)
		case map[string]any:
			sub, err := decodeLegacyNode(child, depth+1)
			if err != nil {
				return nil, err
			}
			if sub != nil {
				children = append(children, sub)
			}
		default:
			return nil, decodeErrorf("unexpected child of type %T", item)
		}
	}
	if len(children) == 0 {
		return nil, nil
	}
	return &Combinator{Connector: connector, Negated: negated, Children: children}, nil
}

func decodeLegacyLeaf(pair []any) (*Leaf, error) {
	if len(pair) != 2 {
		return nil, decodeErrorf("lookup pair has %d elements", len(pair))
	}
	key, ok := pair[0].(string)
	if !ok || key == "" {
		return nil, decodeErrorf("lookup key has type %T", pair[0])
	}
	field, lookup := SplitLookup(key)
	value, err := legacyValue(pair[1], true)
	if err != nil {
		return nil, err
	}
	if lookup == LookupRange {
		value = legacyRangeBounds(value)
	}
	return &Leaf{Field: field, Lookup: lookup, Value: value}, nil
}

func legacyValue(raw any, allowList bool) (any, error) {
	switch x := raw.(type) {
	case nil, string, bool:
		return x, nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, &DecodeError{Reason: "invalid number", Err: err}
		}
		return f, nil
	case []any:
		if !allowList {
			return nil, decodeErrorf("nested lists are not supported")
		}
		out := make([]any, len(x))
		for i, item := range x {
			v, err := legacyValue(item, false)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
	return nil, decodeErrorf("unsupported legacy value of type %T", raw)
}

// legacyRangeBounds turns numeric range bounds back into UTC datetimes.
func legacyRangeBounds(value any) any {
	bounds, ok := value.([]any)
	if !ok {
		return value
	}
	out := make([]any, len(bounds))
	for i, b := range bounds {
		switch ts := b.(type) {
		case int64:
			out[i] = time.Unix(ts, 0).UTC()
		case float64:
			sec, frac := math.Modf(ts)
			out[i] = time.Unix(int64(sec), int64(frac*1e9)).UTC()
		default:
			out[i] = b
		}
	}
	return out
}

func (c *fieldCollector) legacy(m map[string]any, depth int) error {
	if depth > maxDepth {
		return decodeErrorf("nesting deeper than %d", maxDepth)
	}
	items, _ := m["children"].([]any)
	for _, item := range items {
		switch child := item.(type) {
		case []any:
			if len(child) == 0 {
				return decodeErrorf("empty lookup pair")
			}
			key, ok := child[0].(string)
			if !ok || key == "" {
				return decodeErrorf("lookup key has type %T", child[0])
			}
			field, _ := SplitLookup(key)
			c.add(field)
		case map[string]any:
			if err := c.legacy(child, depth+1); err != nil {
				return err
			}
		default:
			return decodeErrorf("unexpected child of type %T", item)
		}
	}
	return nil
}
