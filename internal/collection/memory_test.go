package collection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/advanced-filters-api/pkg/query"
)

func sampleRecords() []Record {
	return []Record{
		{
			"id": 1, "status": "active", "age": 30, "name": "Alice Smith", "score": 4.2,
			"author":     map[string]any{"name": "Bob"},
			"deleted_at": nil,
			"published":  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			"id": 2, "status": "inactive", "age": 17, "name": "bob jones", "score": 3.0,
			"author":     map[string]any{"name": "Carol"},
			"deleted_at": time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			"published":  time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			"id": 3, "status": "active", "age": 45, "name": "Carl", "score": nil,
			"author": nil, "deleted_at": nil, "published": nil,
		},
	}
}

func ids(t *testing.T, c Collection) []int {
	t.Helper()
	m, ok := c.(*Memory)
	require.True(t, ok)
	out := make([]int, 0, m.Len())
	for _, r := range m.Rows() {
		out = append(out, r["id"].(int))
	}
	return out
}

func TestMemoryFilterLookups(t *testing.T) {
	cases := []struct {
		name string
		expr query.Expression
		want []int
	}{
		{"exact", query.Q("status", "active"), []int{1, 3}},
		{"exact nil", query.Q("published", nil), []int{3}},
		{"icontains", query.Q("name__icontains", "BOB"), []int{2}},
		{"contains is case sensitive", query.Q("name__contains", "bob"), []int{2}},
		{"iexact", query.Q("status__iexact", "ACTIVE"), []int{1, 3}},
		{"startswith", query.Q("name__startswith", "Car"), []int{3}},
		{"iendswith", query.Q("name__iendswith", "SMITH"), []int{1}},
		{"nested path", query.Q("author__name", "Bob"), []int{1}},
		{"or", query.Or(query.Q("age__lt", int64(18)), query.Q("age__gt", int64(40))), []int{2, 3}},
		{"not", query.Not(query.Q("status", "active")), []int{2}},
		{"in", query.Q("status__in", []any{"inactive", "archived"}), []int{2}},
		{"gte skips nulls", query.Q("score__gte", int64(4)), []int{1}},
		{"isnull", query.Q("deleted_at__isnull", true), []int{1, 3}},
		{"isnull false", query.Q("deleted_at__isnull", false), []int{2}},
		{"date range", query.Q("published__range", []any{
			query.Date{Year: 2024, Month: time.January, Day: 1},
			query.Date{Year: 2024, Month: time.June, Day: 30},
		}), []int{1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := NewMemory(sampleRecords()).Filter(tc.expr)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids(t, out))
		})
	}
}

func TestMemoryFilterRejectsBadValues(t *testing.T) {
	base := NewMemory(sampleRecords())

	_, err := base.Filter(query.Q("age__range", []any{int64(1)}))
	assert.ErrorIs(t, err, ErrInvalidLookupValue)

	_, err = base.Filter(query.Q("age__isnull", "yes"))
	assert.ErrorIs(t, err, ErrInvalidLookupValue)

	_, err = base.Filter(query.Q("age__gt", "thirty"))
	assert.Error(t, err)
}

func TestMemoryIntersectAndDistinct(t *testing.T) {
	base := NewMemory(sampleRecords())
	active, err := base.Filter(query.Q("status", "active"))
	require.NoError(t, err)
	older, err := base.Filter(query.Q("age__gt", int64(40)))
	require.NoError(t, err)

	both, err := active.Intersect(older)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, ids(t, both.Distinct()))

	_, err = active.Intersect(NewMemory(sampleRecords()))
	assert.ErrorIs(t, err, ErrIncompatible)
}

func TestMemoryFilterDoesNotMutateReceiver(t *testing.T) {
	base := NewMemory(sampleRecords())
	_, err := base.Filter(query.Q("status", "inactive"))
	require.NoError(t, err)
	assert.Equal(t, 3, base.Len())
}
