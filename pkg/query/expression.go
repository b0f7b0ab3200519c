// Package query models saved filter expressions and their compact string encoding.
package query

import (
	"fmt"
	"strings"
	"time"
)

// Connector joins the children of a Combinator.
type Connector string

const (
	ConnectorAnd Connector = "AND"
	ConnectorOr  Connector = "OR"
)

// Lookup is the comparison applied by a Leaf.
type Lookup string

const (
	LookupExact       Lookup = "exact"
	LookupIExact      Lookup = "iexact"
	LookupContains    Lookup = "contains"
	LookupIContains   Lookup = "icontains"
	LookupIn          Lookup = "in"
	LookupGT          Lookup = "gt"
	LookupGTE         Lookup = "gte"
	LookupLT          Lookup = "lt"
	LookupLTE         Lookup = "lte"
	LookupStartsWith  Lookup = "startswith"
	LookupIStartsWith Lookup = "istartswith"
	LookupEndsWith    Lookup = "endswith"
	LookupIEndsWith   Lookup = "iendswith"
	LookupRange       Lookup = "range"
	LookupIsNull      Lookup = "isnull"
)

var knownLookups = map[Lookup]struct{}{
	LookupExact: {}, LookupIExact: {}, LookupContains: {}, LookupIContains: {},
	LookupIn: {}, LookupGT: {}, LookupGTE: {}, LookupLT: {}, LookupLTE: {},
	LookupStartsWith: {}, LookupIStartsWith: {}, LookupEndsWith: {}, LookupIEndsWith: {},
	LookupRange: {}, LookupIsNull: {},
}

// Valid reports whether l belongs to the supported lookup set.
func (l Lookup) Valid() bool {
	_, ok := knownLookups[l]
	return ok
}

// PathSeparator joins the segments of a field path, e.g. author__name.
const PathSeparator = "__"

// Expression is either a *Leaf or a *Combinator.
type Expression interface {
	expression()
}

// Leaf is a single field comparison.
type Leaf struct {
	Field  string
	Lookup Lookup
	Value  any
}

func (*Leaf) expression() {}

// Segments splits the field path into its relation segments.
func (l *Leaf) Segments() []string {
	return strings.Split(l.Field, PathSeparator)
}

// Combinator joins child expressions with a connector, optionally negated.
type Combinator struct {
	Connector Connector
	Negated   bool
	Children  []Expression
}

func (*Combinator) expression() {}

// Q builds a leaf from a Django style lookup key ("age__gte") and a value.
func Q(key string, value any) *Leaf {
	field, lookup := SplitLookup(key)
	return &Leaf{Field: field, Lookup: lookup, Value: value}
}

// And joins children with AND.
func And(children ...Expression) *Combinator {
	return &Combinator{Connector: ConnectorAnd, Children: children}
}

// Or joins children with OR.
func Or(children ...Expression) *Combinator {
	return &Combinator{Connector: ConnectorOr, Children: children}
}

// Not wraps expr in a negated AND combinator.
func Not(expr Expression) *Combinator {
	return &Combinator{Connector: ConnectorAnd, Negated: true, Children: []Expression{expr}}
}

// SplitLookup separates a trailing lookup suffix from a field path.
// Keys without a recognised suffix default to an exact match.
func SplitLookup(key string) (string, Lookup) {
	idx := strings.LastIndex(key, PathSeparator)
	if idx <= 0 {
		return key, LookupExact
	}
	suffix := Lookup(key[idx+len(PathSeparator):])
	if suffix.Valid() {
		return key[:idx], suffix
	}
	return key, LookupExact
}

// Date is a calendar date without time of day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in its own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses an ISO 8601 date (YYYY-MM-DD).
func ParseDate(raw string) (Date, error) {
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Walk visits expr depth first, calling fn on every node. Returning false stops descent
// into the current node's children.
func Walk(expr Expression, fn func(Expression) bool) {
	if expr == nil || !fn(expr) {
		return
	}
	if c, ok := expr.(*Combinator); ok {
		for _, child := range c.Children {
			Walk(child, fn)
		}
	}
}

// Fields returns the field paths referenced by expr in first-seen order.
func Fields(expr Expression) []string {
	var fields []string
	seen := map[string]struct{}{}
	Walk(expr, func(node Expression) bool {
		if leaf, ok := node.(*Leaf); ok {
			if _, dup := seen[leaf.Field]; !dup {
				seen[leaf.Field] = struct{}{}
				fields = append(fields, leaf.Field)
			}
		}
		return true
	})
	return fields
}
