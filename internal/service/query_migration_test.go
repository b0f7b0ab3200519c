package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/advanced-filters-api/internal/models"
	"github.com/noah-isme/advanced-filters-api/pkg/query"
)

type stubStoredQueries struct {
	filters []models.AdvancedFilter
	writes  map[string]string
	err     error
}

func (s *stubStoredQueries) ListQueries(ctx context.Context) ([]models.AdvancedFilter, error) {
	return s.filters, nil
}

func (s *stubStoredQueries) UpdateQuery(ctx context.Context, id, encoded string) error {
	if s.err != nil {
		return s.err
	}
	if s.writes == nil {
		s.writes = map[string]string{}
	}
	s.writes[id] = encoded
	return nil
}

func migrationFixture(t *testing.T) *stubStoredQueries {
	t.Helper()
	current, err := query.NewSerializer(query.FormatJSON).Encode(query.Q("status", "active"))
	require.NoError(t, err)
	legacy := base64.StdEncoding.EncodeToString([]byte(`{"connector": "AND", "negated": false, "children": [["age__gte", 18]]}`))
	return &stubStoredQueries{filters: []models.AdvancedFilter{
		{ID: "current", B64Query: current},
		{ID: "legacy", B64Query: legacy},
		{ID: "heading"},
		{ID: "broken", B64Query: "%%%"},
	}}
}

func TestQueryMigratorUpgradesLegacyRows(t *testing.T) {
	repo := migrationFixture(t)

	report, err := NewQueryMigrator(repo, query.FormatJSON, 0, nil).Reencode(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, &ReencodeReport{Scanned: 4, Rewritten: 1, Unchanged: 1, Empty: 1, Failed: []string{"broken"}}, report)
	require.Contains(t, repo.writes, "legacy")

	expr, err := query.Decode(repo.writes["legacy"])
	require.NoError(t, err)
	assert.Equal(t, query.And(query.Q("age__gte", int64(18))), expr)
}

func TestQueryMigratorDryRunAndFormatSwitch(t *testing.T) {
	repo := migrationFixture(t)

	report, err := NewQueryMigrator(repo, query.FormatMsgpack, 0, nil).Reencode(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Rewritten)
	assert.Empty(t, repo.writes)
}

func TestQueryMigratorStopsOnWriteFailure(t *testing.T) {
	repo := migrationFixture(t)
	repo.err = errors.New("connection reset")

	report, err := NewQueryMigrator(repo, query.FormatMsgpack, 0, nil).Reencode(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, 1, report.Rewritten)
}

func TestQueryMigratorLeavesMsgpackRowsUnchanged(t *testing.T) {
	stored, err := query.NewSerializer(query.FormatMsgpack).Encode(query.And(query.Q("a", "x"), query.Q("b__gte", 3)))
	require.NoError(t, err)
	repo := &stubStoredQueries{filters: []models.AdvancedFilter{{ID: "packed", B64Query: stored}}}

	report, err := NewQueryMigrator(repo, query.FormatMsgpack, 0, nil).Reencode(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, &ReencodeReport{Scanned: 1, Unchanged: 1}, report)
	assert.Empty(t, repo.writes)
}

func longLegacyQuery(n int) string {
	values := make([]string, n)
	for i := range values {
		values[i] = fmt.Sprint(i % 10)
	}
	raw := fmt.Sprintf(`{"connector": "AND", "negated": false, "children": [["kind__in", [%s]]]}`, strings.Join(values, ", "))
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

func TestQueryMigratorCompactsOversizedRows(t *testing.T) {
	repo := &stubStoredQueries{filters: []models.AdvancedFilter{{ID: "kinds", B64Query: longLegacyQuery(300)}}}

	report, err := NewQueryMigrator(repo, query.FormatJSON, 4000, nil).Reencode(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, &ReencodeReport{Scanned: 1, Rewritten: 1, Compacted: 1}, report)

	written := repo.writes["kinds"]
	require.NotEmpty(t, written)
	assert.LessOrEqual(t, len(written), 4000)
	expr, err := query.Decode(written)
	require.NoError(t, err)
	leaf := expr.(*query.Combinator).Children[0].(*query.Leaf)
	assert.Len(t, leaf.Value, 300)
}

func TestQueryMigratorSkipsRowsOverTheLimit(t *testing.T) {
	repo := &stubStoredQueries{filters: []models.AdvancedFilter{{ID: "kinds", B64Query: longLegacyQuery(300)}}}

	report, err := NewQueryMigrator(repo, query.FormatJSON, 2048, nil).Reencode(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"kinds"}, report.Failed)
	assert.Zero(t, report.Rewritten)
	assert.Empty(t, repo.writes)
}
