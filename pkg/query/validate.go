package query

import (
	"errors"
	"fmt"
)

// ErrValueShape is returned when a leaf value cannot be evaluated by its lookup.
var ErrValueShape = errors.New("query: value does not fit lookup")

// CheckValues returns an error for the first leaf whose value has the wrong shape for
// its lookup: isnull takes a bool, in takes a list, range takes exactly two bounds and
// every other lookup takes a scalar.
func CheckValues(expr Expression) error {
	var err error
	Walk(expr, func(node Expression) bool {
		if err != nil {
			return false
		}
		if leaf, ok := node.(*Leaf); ok {
			err = checkLeafValue(leaf)
		}
		return true
	})
	return err
}

func checkLeafValue(l *Leaf) error {
	items, isList := l.Value.([]any)
	switch l.Lookup {
	case LookupIsNull:
		if _, ok := l.Value.(bool); !ok {
			return fmt.Errorf("%w: %s__isnull takes true or false", ErrValueShape, l.Field)
		}
	case LookupIn:
		if !isList {
			return fmt.Errorf("%w: %s__in takes a list", ErrValueShape, l.Field)
		}
	case LookupRange:
		if !isList || len(items) != 2 {
			return fmt.Errorf("%w: %s__range takes two bounds", ErrValueShape, l.Field)
		}
	default:
		if isList {
			return fmt.Errorf("%w: %s__%s does not take a list", ErrValueShape, l.Field, l.Lookup)
		}
	}
	return nil
}
