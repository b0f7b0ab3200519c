package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckValues(t *testing.T) {
	cases := []struct {
		name string
		expr Expression
		ok   bool
	}{
		{"isnull bool", Q("deleted_at__isnull", true), true},
		{"isnull string", Q("deleted_at__isnull", "yes"), false},
		{"in list", Q("status__in", []any{"a", "b"}), true},
		{"in scalar", Q("status__in", "a"), false},
		{"range pair", Q("pages__range", []any{int64(1), int64(9)}), true},
		{"range triple", Q("pages__range", []any{int64(1), int64(2), int64(3)}), false},
		{"range scalar", Q("pages__range", int64(1)), false},
		{"exact list", Q("status", []any{"a"}), false},
		{"nested", And(Q("status", "a"), Not(Q("pages__in", int64(3)))), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckValues(tc.expr)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrValueShape)
			}
		})
	}
}
