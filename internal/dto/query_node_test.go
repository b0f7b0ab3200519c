package dto

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/advanced-filters-api/pkg/query"
)

func TestQueryNodeFromJSON(t *testing.T) {
	payload := `{
		"connector": "AND",
		"children": [
			{"field": "status", "value": "active"},
			{"field": "age", "lookup": "gte", "value": 18},
			{"connector": "OR", "negated": true, "children": [
				{"field": "score", "lookup": "lt", "value": 4.5},
				{"field": "published", "lookup": "range", "type": "date", "value": ["2024-01-01", "2024-06-30"]}
			]}
		]
	}`
	var node QueryNode
	require.NoError(t, json.Unmarshal([]byte(payload), &node))

	expr, err := node.ToExpression()
	require.NoError(t, err)

	want := query.And(
		query.Q("status", "active"),
		query.Q("age__gte", int64(18)),
		&query.Combinator{Connector: query.ConnectorOr, Negated: true, Children: []query.Expression{
			query.Q("score__lt", 4.5),
			query.Q("published__range", []any{
				query.Date{Year: 2024, Month: time.January, Day: 1},
				query.Date{Year: 2024, Month: time.June, Day: 30},
			}),
		}},
	)
	assert.Equal(t, want, expr)

	back := NewQueryNode(expr)
	again, err := back.ToExpression()
	require.NoError(t, err)
	assert.Equal(t, want, again)
}

func TestQueryNodeRejectsInvalidTrees(t *testing.T) {
	cases := []QueryNode{
		{Connector: "AND"},
		{Connector: "XOR", Children: []QueryNode{{Field: "a", Value: "b"}}},
		{Field: "a", Lookup: "regex", Value: "x"},
		{Field: "a", Lookup: "range", Type: "date", Value: []any{"not-a-date", "2024-01-01"}},
		{Field: "a", Lookup: "in", Value: []any{[]any{"nested"}}},
	}
	for _, node := range cases {
		_, err := node.ToExpression()
		assert.ErrorIs(t, err, ErrInvalidQueryNode)
	}
}

func TestQueryNodeKeepsFalseIsNull(t *testing.T) {
	raw, err := json.Marshal(NewQueryNode(query.Q("deleted_at__isnull", false)))
	require.NoError(t, err)

	var node QueryNode
	require.NoError(t, json.Unmarshal(raw, &node))
	expr, err := node.ToExpression()
	require.NoError(t, err)
	assert.NoError(t, query.CheckValues(expr))
	assert.Equal(t, &query.Leaf{Field: "deleted_at", Lookup: query.LookupIsNull, Value: false}, expr)
}
