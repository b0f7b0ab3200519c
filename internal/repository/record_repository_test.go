package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/advanced-filters-api/internal/collection"
	"github.com/noah-isme/advanced-filters-api/internal/entity"
	"github.com/noah-isme/advanced-filters-api/pkg/query"
)

func TestRecordRepositoryFetchMemoryPages(t *testing.T) {
	repo := NewRecordRepository(nil)
	rows := collection.NewMemory([]collection.Record{{"id": 1}, {"id": 2}, {"id": 3}})

	page, total, err := repo.Fetch(context.Background(), rows, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page, 2)

	page, _, err = repo.Fetch(context.Background(), rows, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"id": 3}}, page)

	page, _, err = repo.Fetch(context.Background(), rows, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestRecordRepositoryFetchSQL(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	registry, err := entity.NewRegistry(entity.Entity{Label: "library.Book", Table: "library_book", Ordering: "title", Fields: []string{"title", "status"}})
	require.NoError(t, err)
	book, err := registry.Resolve("library.Book")
	require.NoError(t, err)

	filtered, err := collection.NewSQL(book).Filter(query.Q("status", "active"))
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "library_book" WHERE "status" = \?`).
		WithArgs("active").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT "id", "title", "status" FROM "library_book" WHERE "status" = \? ORDER BY "title" ASC, "id" ASC LIMIT \? OFFSET \?`).
		WithArgs("active", 20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "status"}).AddRow(7, []byte("Go"), "active"))

	rows, total, err := repo.Fetch(context.Background(), filtered, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, rows, 1)
	assert.Equal(t, "Go", rows[0]["title"])
	require.NoError(t, mock.ExpectationsWereMet())
}
