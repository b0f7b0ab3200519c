package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/advanced-filters-api/pkg/query"
)

func TestAdvancedFilterQueryUnset(t *testing.T) {
	f := &AdvancedFilter{}
	expr, err := f.Query()
	require.NoError(t, err)
	assert.Nil(t, expr)

	fields, err := f.ListFields()
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestAdvancedFilterSetQuery(t *testing.T) {
	f := &AdvancedFilter{}
	tree := query.And(query.Q("status", "active"), query.Q("age__gte", int64(18)))

	require.NoError(t, f.SetQuery(query.NewSerializer(query.FormatMsgpack), tree))
	assert.NotEmpty(t, f.B64Query)

	decoded, err := f.Query()
	require.NoError(t, err)
	assert.Equal(t, tree, decoded)

	fields, err := f.ListFields()
	require.NoError(t, err)
	assert.Equal(t, []string{"status", "age"}, fields)
}

func TestAdvancedFilterSetQueryRejectsNil(t *testing.T) {
	f := &AdvancedFilter{B64Query: "kept"}
	err := f.SetQuery(nil, nil)
	assert.ErrorIs(t, err, query.ErrNotExpression)
	assert.Equal(t, "kept", f.B64Query)
}

func TestAdvancedFilterString(t *testing.T) {
	name := "Book"
	f := &AdvancedFilter{Title: "Active", ModelName: &name}
	assert.Equal(t, "Book / Active", f.String())
	assert.True(t, (&AdvancedFilter{UserIDs: []string{"u1"}}).HasUser("u1"))
}
