// Package collection narrows sets of records with saved filter expressions.
package collection

import (
	"errors"

	"github.com/noah-isme/advanced-filters-api/pkg/query"
)

var (
	// ErrIncompatible is returned when intersecting collections over different sources.
	ErrIncompatible = errors.New("collections do not share a source")
	// ErrUnsupportedField is returned for field paths a collection cannot resolve.
	ErrUnsupportedField = errors.New("unsupported field")
	// ErrInvalidLookupValue is returned when a lookup receives a value of the wrong shape.
	ErrInvalidLookupValue = errors.New("invalid lookup value")
)

// Collection is the minimal capability set saved filters need from a record source.
// Implementations are immutable: every method returns a new collection.
type Collection interface {
	Filter(expr query.Expression) (Collection, error)
	Intersect(other Collection) (Collection, error)
	Distinct() Collection
}

// rangeBounds validates the value of a range lookup.
func rangeBounds(v any) (any, any, error) {
	bounds, ok := v.([]any)
	if !ok || len(bounds) != 2 {
		return nil, nil, ErrInvalidLookupValue
	}
	return bounds[0], bounds[1], nil
}

func listValue(v any) ([]any, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, ErrInvalidLookupValue
	}
	return items, nil
}
