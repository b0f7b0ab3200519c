package collection

import (
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/noah-isme/advanced-filters-api/pkg/query"
)

// Record is a single in-memory row. Nested maps back multi-segment field paths.
type Record = map[string]any

type memorySource struct {
	rows []Record
}

// Memory is a Collection over a fixed slice of records.
type Memory struct {
	src *memorySource
	idx []int
}

// NewMemory wraps rows. The slice is not copied.
func NewMemory(rows []Record) *Memory {
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	return &Memory{src: &memorySource{rows: rows}, idx: idx}
}

// Rows returns the records currently in the collection.
func (m *Memory) Rows() []Record {
	out := make([]Record, len(m.idx))
	for i, j := range m.idx {
		out[i] = m.src.rows[j]
	}
	return out
}

// Len reports the number of records.
func (m *Memory) Len() int { return len(m.idx) }

// Filter keeps the records matching expr.
func (m *Memory) Filter(e query.Expression) (Collection, error) {
	pred, err := compilePredicate(e)
	if err != nil {
		return nil, err
	}
	kept := make([]int, 0, len(m.idx))
	for _, j := range m.idx {
		ok, err := pred.match(m.src.rows[j])
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, j)
		}
	}
	return &Memory{src: m.src, idx: kept}, nil
}

// Intersect keeps the records present in both collections, in receiver order.
func (m *Memory) Intersect(other Collection) (Collection, error) {
	o, ok := other.(*Memory)
	if !ok || o.src != m.src {
		return nil, ErrIncompatible
	}
	in := make(map[int]struct{}, len(o.idx))
	for _, j := range o.idx {
		in[j] = struct{}{}
	}
	kept := make([]int, 0, len(m.idx))
	for _, j := range m.idx {
		if _, ok := in[j]; ok {
			kept = append(kept, j)
		}
	}
	return &Memory{src: m.src, idx: kept}, nil
}

// Distinct drops repeated records.
func (m *Memory) Distinct() Collection {
	seen := make(map[int]struct{}, len(m.idx))
	kept := make([]int, 0, len(m.idx))
	for _, j := range m.idx {
		if _, dup := seen[j]; dup {
			continue
		}
		seen[j] = struct{}{}
		kept = append(kept, j)
	}
	return &Memory{src: m.src, idx: kept}
}

// predicate is an expr program plus the field paths it reads. Field values and lookup
// operands are bound through the f and p arrays, never spliced into the source.
type predicate struct {
	program *vm.Program
	fields  [][]string
	params  []any
}

func compilePredicate(e query.Expression) (*predicate, error) {
	b := &exprBuilder{}
	src, err := b.build(e)
	if err != nil {
		return nil, err
	}
	program, err := expr.Compile(src, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile predicate: %w", err)
	}
	return &predicate{program: program, fields: b.fields, params: b.params}, nil
}

func (p *predicate) match(r Record) (bool, error) {
	values := make([]any, len(p.fields))
	for i, path := range p.fields {
		values[i] = resolve(r, path)
	}
	out, err := expr.Run(p.program, map[string]any{"f": values, "p": p.params})
	if err != nil {
		return false, fmt.Errorf("evaluate predicate: %w", err)
	}
	return out.(bool), nil
}

func resolve(r Record, path []string) any {
	var cur any = r
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[seg]
	}
	return cur
}

type exprBuilder struct {
	fields [][]string
	params []any
}

func (b *exprBuilder) field(l *query.Leaf) string {
	b.fields = append(b.fields, l.Segments())
	return fmt.Sprintf("f[%d]", len(b.fields)-1)
}

func (b *exprBuilder) param(v any) string {
	if d, ok := v.(query.Date); ok {
		v = d.In(time.UTC)
	}
	b.params = append(b.params, v)
	return fmt.Sprintf("p[%d]", len(b.params)-1)
}

func (b *exprBuilder) build(e query.Expression) (string, error) {
	switch node := e.(type) {
	case *query.Leaf:
		return b.leaf(node)
	case *query.Combinator:
		if len(node.Children) == 0 {
			return "", fmt.Errorf("%w: empty group", ErrInvalidLookupValue)
		}
		parts := make([]string, 0, len(node.Children))
		for _, child := range node.Children {
			part, err := b.build(child)
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		}
		joiner := " and "
		if node.Connector == query.ConnectorOr {
			joiner = " or "
		}
		src := "(" + strings.Join(parts, joiner) + ")"
		if node.Negated {
			src = "not " + src
		}
		return src, nil
	}
	return "", fmt.Errorf("unsupported expression %T", e)
}

func (b *exprBuilder) leaf(l *query.Leaf) (string, error) {
	x := b.field(l)
	switch l.Lookup {
	case query.LookupExact:
		if l.Value == nil {
			return x + " == nil", nil
		}
		return fmt.Sprintf("%s == %s", x, b.param(l.Value)), nil
	case query.LookupIExact:
		return fmt.Sprintf("(%s != nil && lower(string(%s)) == lower(string(%s)))", x, x, b.param(l.Value)), nil
	case query.LookupContains:
		return fmt.Sprintf("(%s != nil && string(%s) contains string(%s))", x, x, b.param(l.Value)), nil
	case query.LookupIContains:
		return fmt.Sprintf("(%s != nil && lower(string(%s)) contains lower(string(%s)))", x, x, b.param(l.Value)), nil
	case query.LookupStartsWith:
		return fmt.Sprintf("(%s != nil && string(%s) startsWith string(%s))", x, x, b.param(l.Value)), nil
	case query.LookupIStartsWith:
		return fmt.Sprintf("(%s != nil && lower(string(%s)) startsWith lower(string(%s)))", x, x, b.param(l.Value)), nil
	case query.LookupEndsWith:
		return fmt.Sprintf("(%s != nil && string(%s) endsWith string(%s))", x, x, b.param(l.Value)), nil
	case query.LookupIEndsWith:
		return fmt.Sprintf("(%s != nil && lower(string(%s)) endsWith lower(string(%s)))", x, x, b.param(l.Value)), nil
	case query.LookupIn:
		items, err := listValue(l.Value)
		if err != nil {
			return "", fmt.Errorf("%s__in: %w", l.Field, err)
		}
		bound := make([]any, len(items))
		for i, item := range items {
			if d, ok := item.(query.Date); ok {
				item = d.In(time.UTC)
			}
			bound[i] = item
		}
		return fmt.Sprintf("(%s in %s)", x, b.param(bound)), nil
	case query.LookupGT:
		return fmt.Sprintf("(%s != nil && %s > %s)", x, x, b.param(l.Value)), nil
	case query.LookupGTE:
		return fmt.Sprintf("(%s != nil && %s >= %s)", x, x, b.param(l.Value)), nil
	case query.LookupLT:
		return fmt.Sprintf("(%s != nil && %s < %s)", x, x, b.param(l.Value)), nil
	case query.LookupLTE:
		return fmt.Sprintf("(%s != nil && %s <= %s)", x, x, b.param(l.Value)), nil
	case query.LookupRange:
		lo, hi, err := rangeBounds(l.Value)
		if err != nil {
			return "", fmt.Errorf("%s__range: %w", l.Field, err)
		}
		return fmt.Sprintf("(%s != nil && %s >= %s && %s <= %s)", x, x, b.param(lo), x, b.param(hi)), nil
	case query.LookupIsNull:
		isNull, ok := l.Value.(bool)
		if !ok {
			return "", fmt.Errorf("%s__isnull: %w", l.Field, ErrInvalidLookupValue)
		}
		if isNull {
			return x + " == nil", nil
		}
		return x + " != nil", nil
	}
	return "", fmt.Errorf("unsupported lookup %q", l.Lookup)
}
