package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/advanced-filters-api/internal/collection"
	"github.com/noah-isme/advanced-filters-api/internal/models"
	"github.com/noah-isme/advanced-filters-api/pkg/query"
)

func people() []collection.Record {
	return []collection.Record{
		{"name": "a", "status": "active", "age": 20},
		{"name": "b", "status": "inactive", "age": 30},
		{"name": "c", "status": "active", "age": 10},
	}
}

func names(c collection.Collection) []string {
	rows := c.(*collection.Memory).Rows()
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r["name"].(string)
	}
	return out
}

func storedFilter(t *testing.T, expr query.Expression) *models.AdvancedFilter {
	t.Helper()
	f := &models.AdvancedFilter{ID: "f1"}
	require.NoError(t, f.SetQuery(nil, expr))
	return f
}

func TestApplyWithoutQueryReturnsInput(t *testing.T) {
	rows := []collection.Record{{"name": "1"}, {"name": "2"}, {"name": "3"}, {"name": "4"}, {"name": "5"}}
	base := collection.NewMemory(rows)

	out := NewFilterApplier(nil, nil).Apply(context.Background(), &models.AdvancedFilter{B64Query: ""}, base)
	assert.Same(t, base, out)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, names(out))
}

func TestApplyEndToEnd(t *testing.T) {
	f := storedFilter(t, query.And(query.Q("status", "active"), query.Q("age__gte", 18)))

	out := NewFilterApplier(nil, nil).Apply(context.Background(), f, collection.NewMemory(people()))
	assert.Equal(t, []string{"a"}, names(out))
}

func TestApplyIntersectsRootChildrenWhateverTheConnector(t *testing.T) {
	f := storedFilter(t, &query.Combinator{
		Connector: query.ConnectorOr,
		Negated:   true,
		Children:  []query.Expression{query.Q("status", "active"), query.Q("age__gte", 18)},
	})

	out := NewFilterApplier(nil, nil).Apply(context.Background(), f, collection.NewMemory(people()))
	assert.Equal(t, []string{"a"}, names(out))
}

func TestApplyNestedGroupsAreEvaluatedWhole(t *testing.T) {
	f := storedFilter(t, query.And(
		query.Or(query.Q("age__lt", 15), query.Q("status", "inactive")),
	))

	out := NewFilterApplier(nil, nil).Apply(context.Background(), f, collection.NewMemory(people()))
	assert.Equal(t, []string{"b", "c"}, names(out))
}

func TestApplyRootLeaf(t *testing.T) {
	f := storedFilter(t, query.Q("status", "inactive"))

	out := NewFilterApplier(nil, nil).Apply(context.Background(), f, collection.NewMemory(people()))
	assert.Equal(t, []string{"b"}, names(out))
}

func TestApplyDecodeFailureFallsBack(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	metrics := NewMetricsService()
	base := collection.NewMemory(people())

	out := NewFilterApplier(zap.New(core), metrics).Apply(context.Background(), &models.AdvancedFilter{ID: "broken", B64Query: "not-a-query"}, base)
	assert.Same(t, base, out)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "saved filter query could not be decoded", logs.All()[0].Message)

	snapshot := metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.DecodeErrors)
	assert.Equal(t, uint64(1), snapshot.FilterApplications[ApplyOutcomeDecode])
}

func TestApplyEvaluationFailureFallsBack(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	f := storedFilter(t, query.And(query.Q("age__gt", "twenty")))
	base := collection.NewMemory(people())

	out := NewFilterApplier(zap.New(core), nil).Apply(context.Background(), f, base)
	assert.Same(t, base, out)
	assert.Equal(t, 1, logs.FilterMessage("saved filter could not be applied").Len())
}
