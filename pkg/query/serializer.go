package query

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// FormatVersion is written into every payload produced by Encode.
const FormatVersion = 1

// maxDepth bounds recursion while decoding untrusted payloads.
const maxDepth = 64

// Format selects the wire codec wrapped inside the base64 envelope.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

var (
	// ErrDecode matches every *DecodeError.
	ErrDecode = errors.New("query: decode error")
	// ErrNotExpression is returned when Encode receives no expression.
	ErrNotExpression = errors.New("query: value is not an expression")
	// ErrInvalidExpression is returned when Encode receives a structurally invalid tree.
	ErrInvalidExpression = errors.New("query: invalid expression")
	// ErrUnsupportedValue is returned for leaf values outside the supported value set.
	ErrUnsupportedValue = errors.New("query: unsupported value")
)

// DecodeError describes a malformed or unrecognised encoded query.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("query: decode: %s: %v", e.Reason, e.Err)
	}
	return "query: decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrDecode) match.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

func decodeErrorf(format string, args ...any) *DecodeError {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

// Serializer converts expressions to and from their base64 encoded form.
type Serializer struct {
	format Format
}

// NewSerializer returns a serializer writing the given format. Unknown formats fall back to
// JSON. Decoding accepts every supported format regardless of this setting.
func NewSerializer(format Format) *Serializer {
	if format != FormatMsgpack {
		format = FormatJSON
	}
	return &Serializer{format: format}
}

// Format reports the codec used by Encode.
func (s *Serializer) Format() Format { return s.format }

var defaultSerializer = NewSerializer(FormatJSON)

// Encode serializes expr with the default JSON codec.
func Encode(expr Expression) (string, error) { return defaultSerializer.Encode(expr) }

// Decode parses any supported encoded query.
func Decode(encoded string) (Expression, error) { return defaultSerializer.Decode(encoded) }

// ListFields lists the field paths referenced by an encoded query.
func ListFields(encoded string) ([]string, error) { return defaultSerializer.ListFields(encoded) }

// Encode serializes expr into a base64 string.
func (s *Serializer) Encode(expr Expression) (string, error) {
	if isNilExpression(expr) {
		return "", ErrNotExpression
	}
	node, err := encodeNode(expr, 0)
	if err != nil {
		return "", err
	}
	doc := map[string]any{"v": FormatVersion, "q": node}

	var payload []byte
	switch s.format {
	case FormatMsgpack:
		payload, err = marshalMsgpack(doc)
	default:
		payload, err = json.Marshal(doc)
	}
	if err != nil {
		return "", fmt.Errorf("marshal query: %w", err)
	}
	return base64.StdEncoding.EncodeToString(payload), nil
}

// marshalMsgpack sorts map keys so equal trees produce equal payloads. Integers are
// written in their smallest encoding.
func marshalMsgpack(doc map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	enc.UseCompactInts(true)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses an encoded query into an expression tree.
func (s *Serializer) Decode(encoded string) (Expression, error) {
	doc, legacy, err := unwrap(encoded)
	if err != nil {
		return nil, err
	}
	var expr Expression
	if legacy {
		expr, err = decodeLegacyNode(doc, 0)
	} else {
		expr, err = decodeNode(doc["q"], 0)
	}
	if err != nil {
		return nil, err
	}
	if expr == nil {
		return nil, decodeErrorf("query has no conditions")
	}
	return expr, nil
}

// ListFields returns the field paths referenced anywhere in the encoded query, in
// first-seen order. Lookups and values are not interpreted.
func (s *Serializer) ListFields(encoded string) ([]string, error) {
	doc, legacy, err := unwrap(encoded)
	if err != nil {
		return nil, err
	}
	c := &fieldCollector{seen: map[string]struct{}{}}
	if legacy {
		err = c.legacy(doc, 0)
	} else {
		err = c.node(doc["q"], 0)
	}
	if err != nil {
		return nil, err
	}
	return c.fields, nil
}

// FieldValue is one row of the editor form rebuilt from a saved query.
type FieldValue struct {
	Field  string `json:"field"`
	Lookup Lookup `json:"operator,omitempty"`
	Value  any    `json:"value"`
	From   any    `json:"value_from,omitempty"`
	To     any    `json:"value_to,omitempty"`
	Negate bool   `json:"negate"`
}

// ORMarker is the pseudo field appended after an OR group with more than one member.
const ORMarker = "_OR"

// FieldValues flattens the encoded query into editor rows.
func (s *Serializer) FieldValues(encoded string) ([]FieldValue, error) {
	expr, err := s.Decode(encoded)
	if err != nil {
		return nil, err
	}
	if leaf, ok := expr.(*Leaf); ok {
		return []FieldValue{leafFieldValue(leaf, false)}, nil
	}
	return combinatorFieldValues(expr.(*Combinator)), nil
}

func combinatorFieldValues(c *Combinator) []FieldValue {
	var rows []FieldValue
	for _, child := range c.Children {
		switch node := child.(type) {
		case *Leaf:
			rows = append(rows, leafFieldValue(node, c.Negated))
		case *Combinator:
			rows = append(rows, combinatorFieldValues(node)...)
		}
	}
	if len(c.Children) > 1 && c.Connector == ConnectorOr {
		rows = append(rows, FieldValue{Field: ORMarker, Value: "null"})
	}
	return rows
}

func leafFieldValue(l *Leaf, negate bool) FieldValue {
	row := FieldValue{Field: l.Field, Lookup: l.Lookup, Value: l.Value, Negate: negate}
	if l.Lookup == LookupRange {
		if bounds, ok := l.Value.([]any); ok && len(bounds) == 2 {
			row.From, row.To = bounds[0], bounds[1]
		}
	}
	return row
}

func isNilExpression(expr Expression) bool {
	switch e := expr.(type) {
	case nil:
		return true
	case *Leaf:
		return e == nil
	case *Combinator:
		return e == nil
	}
	return false
}

func encodeNode(expr Expression, depth int) (map[string]any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d", ErrInvalidExpression, maxDepth)
	}
	switch e := expr.(type) {
	case *Leaf:
		if e == nil {
			return nil, ErrNotExpression
		}
		if e.Field == "" {
			return nil, fmt.Errorf("%w: leaf without field", ErrInvalidExpression)
		}
		if !e.Lookup.Valid() {
			return nil, fmt.Errorf("%w: unknown lookup %q", ErrInvalidExpression, e.Lookup)
		}
		v, err := NormalizeValue(e.Value)
		if err != nil {
			return nil, err
		}
		return map[string]any{"k": "l", "f": e.Field, "op": string(e.Lookup), "val": encodeValue(v)}, nil
	case *Combinator:
		if e == nil {
			return nil, ErrNotExpression
		}
		if e.Connector != ConnectorAnd && e.Connector != ConnectorOr {
			return nil, fmt.Errorf("%w: unknown connector %q", ErrInvalidExpression, e.Connector)
		}
		if len(e.Children) == 0 {
			return nil, fmt.Errorf("%w: empty %s group", ErrInvalidExpression, e.Connector)
		}
		children := make([]any, 0, len(e.Children))
		for _, child := range e.Children {
			if isNilExpression(child) {
				return nil, fmt.Errorf("%w: nil child", ErrInvalidExpression)
			}
			node, err := encodeNode(child, depth+1)
			if err != nil {
				return nil, err
			}
			children = append(children, node)
		}
		return map[string]any{"k": "c", "op": string(e.Connector), "neg": e.Negated, "ch": children}, nil
	}
	return nil, ErrNotExpression
}

// decodeNode returns nil for combinators left empty after normalisation.
func decodeNode(raw any, depth int) (Expression, error) {
	if depth > maxDepth {
		return nil, decodeErrorf("nesting deeper than %d", maxDepth)
	}
	m, ok := asMap(raw)
	if !ok {
		return nil, decodeErrorf("node must be an object, got %T", raw)
	}
	kind, _ := m["k"].(string)
	switch kind {
	case "l":
		field, _ := m["f"].(string)
		if field == "" {
			return nil, decodeErrorf("leaf without field")
		}
		op, _ := m["op"].(string)
		lookup := Lookup(op)
		if !lookup.Valid() {
			return nil, decodeErrorf("unknown lookup %q", op)
		}
		value, err := decodeValue(m["val"], true)
		if err != nil {
			return nil, err
		}
		return &Leaf{Field: field, Lookup: lookup, Value: value}, nil
	case "c":
		op, _ := m["op"].(string)
		connector := Connector(op)
		if connector != ConnectorAnd && connector != ConnectorOr {
			return nil, decodeErrorf("unknown connector %q", op)
		}
		negated := false
		if raw, present := m["neg"]; present {
			b, ok := raw.(bool)
			if !ok {
				return nil, decodeErrorf("negation flag has type %T", raw)
			}
			negated = b
		}
		var items []any
		if raw, present := m["ch"]; present && raw != nil {
			items, ok = raw.([]any)
			if !ok {
				return nil, decodeErrorf("children have type %T", raw)
			}
		}
		children := make([]Expression, 0, len(items))
		for _, item := range items {
			child, err := decodeNode(item, depth+1)
			if err != nil {
				return nil, err
			}
			if child != nil {
				children = append(children, child)
			}
		}
		if len(children) == 0 {
			return nil, nil
		}
		return &Combinator{Connector: connector, Negated: negated, Children: children}, nil
	}
	return nil, decodeErrorf("unknown node kind %q", kind)
}

// unwrap strips the base64 envelope and sniffs the codec. legacy is true for payloads
// written by the original plugin.
func unwrap(encoded string) (map[string]any, bool, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, false, decodeErrorf("empty payload")
	}
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, false, &DecodeError{Reason: "invalid base64", Err: err}
	}
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, false, decodeErrorf("empty payload")
	}

	var raw any
	switch first := payload[0]; {
	case first == '{':
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, false, &DecodeError{Reason: "invalid json", Err: err}
		}
		if dec.More() {
			return nil, false, decodeErrorf("trailing data after json document")
		}
	case first >= 0x80 && first <= 0x8f, first == 0xde, first == 0xdf:
		if err := msgpack.Unmarshal(payload, &raw); err != nil {
			return nil, false, &DecodeError{Reason: "invalid msgpack", Err: err}
		}
	default:
		return nil, false, decodeErrorf("unrecognised payload encoding")
	}

	doc, ok := asMap(raw)
	if !ok {
		return nil, false, decodeErrorf("payload must be an object")
	}
	if version, present := doc["v"]; present {
		n, err := toInt64(version)
		if err != nil || n != FormatVersion {
			return nil, false, decodeErrorf("unsupported format version %v", version)
		}
		return doc, false, nil
	}
	if _, ok := doc["children"]; ok {
		return doc, true, nil
	}
	if _, ok := doc["connector"]; ok {
		return doc, true, nil
	}
	return nil, false, decodeErrorf("payload has no query")
}

type fieldCollector struct {
	fields []string
	seen   map[string]struct{}
}

func (c *fieldCollector) add(field string) {
	if _, dup := c.seen[field]; dup {
		return
	}
	c.seen[field] = struct{}{}
	c.fields = append(c.fields, field)
}

func (c *fieldCollector) node(raw any, depth int) error {
	if depth > maxDepth {
		return decodeErrorf("nesting deeper than %d", maxDepth)
	}
	m, ok := asMap(raw)
	if !ok {
		return decodeErrorf("node must be an object, got %T", raw)
	}
	switch kind, _ := m["k"].(string); kind {
	case "l":
		field, _ := m["f"].(string)
		if field == "" {
			return decodeErrorf("leaf without field")
		}
		c.add(field)
		return nil
	case "c":
		items, _ := m["ch"].([]any)
		for _, item := range items {
			if err := c.node(item, depth+1); err != nil {
				return err
			}
		}
		return nil
	default:
		return decodeErrorf("unknown node kind %q", kind)
	}
}
