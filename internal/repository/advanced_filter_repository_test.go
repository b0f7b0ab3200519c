package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/advanced-filters-api/internal/models"
)

var advancedFilterRowColumns = []string{"id", "title", "created_by_id", "created_at", "url", "is_heading", "b64_query", "model", "model_name", "sort_order", "user_ids", "group_ids"}

func strPtr(s string) *string { return &s }

func TestAdvancedFilterRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAdvancedFilterRepository(db)

	now := time.Now()
	mock.ExpectQuery(`SELECT f\.id, f\.title.* FROM advanced_filters f WHERE f\.id = \$1 LIMIT 1`).
		WithArgs("f1").
		WillReturnRows(sqlmock.NewRows(advancedFilterRowColumns).
			AddRow("f1", "Active", "u1", now, "/admin/library/book/", false, "eyJ9", "library.Book", "Book", 2, "{u1,u2}", "{}"))

	filter, err := repo.FindByID(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, "Active", filter.Title)
	assert.Equal(t, "library.Book", filter.ModelLabel())
	assert.Equal(t, 2, filter.Order)
	assert.Equal(t, []string{"u1", "u2"}, []string(filter.UserIDs))
	assert.Empty(t, filter.GroupIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvancedFilterRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAdvancedFilterRepository(db)

	mock.ExpectQuery("FROM advanced_filters f WHERE f.id").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestAdvancedFilterRepositoryListRestrictsToAudience(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAdvancedFilterRepository(db)

	now := time.Now()
	mock.ExpectQuery(`SELECT f\.id.*FROM advanced_filters f WHERE \(f\.id IN \(SELECT filter_id FROM advanced_filter_users WHERE user_id::text = \$1\) OR f\.id IN \(SELECT filter_id FROM advanced_filter_groups WHERE group_id::text = ANY\(\$2\)\)\) AND \(LOWER\(f\.title\) LIKE \$3 OR LOWER\(f\.model_name\) LIKE \$3\) ORDER BY f\.sort_order ASC, f\.created_at ASC LIMIT 20 OFFSET 0`).
		WithArgs("u1", sqlmock.AnyArg(), "%book%").
		WillReturnRows(sqlmock.NewRows(advancedFilterRowColumns).
			AddRow("f1", "First", "u1", now, "", false, "", "library.Book", "Book", 1, "{u1}", "{}").
			AddRow("f2", "Second", "u1", now, "", false, "", "library.Book", "Book", 2, "{u1}", "{}"))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM advanced_filters f WHERE`).
		WithArgs("u1", sqlmock.AnyArg(), "%book%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	filters, total, err := repo.List(context.Background(), models.AdvancedFilterListParams{Search: "Book"}, &Audience{UserID: "u1", GroupIDs: []string{"g1"}})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, filters, 2)
	assert.Equal(t, 1, filters[0].Order)
	assert.Equal(t, 2, filters[1].Order)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvancedFilterRepositoryListAJAXSkipsHeadings(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAdvancedFilterRepository(db)

	mock.ExpectQuery(`WHERE f\.is_heading = FALSE ORDER BY f\.model_name ASC, f\.sort_order ASC`).
		WillReturnRows(sqlmock.NewRows(advancedFilterRowColumns))
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	filters, total, err := repo.List(context.Background(), models.AdvancedFilterListParams{AJAX: true}, nil)
	require.NoError(t, err)
	assert.Empty(t, filters)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvancedFilterRepositoryLookups(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAdvancedFilterRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT f.id, f.title, f.is_heading FROM advanced_filters f WHERE LOWER(f.model) = LOWER($1) ORDER BY f.sort_order ASC`)).
		WithArgs("library.Book").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "is_heading"}).
			AddRow("h1", "Reading lists", true).
			AddRow("f1", "Active", false))

	choices, err := repo.Lookups(context.Background(), "library.Book", nil)
	require.NoError(t, err)
	require.Len(t, choices, 2)
	assert.True(t, choices[0].IsHeading)
	assert.Equal(t, "f1", choices[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvancedFilterRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAdvancedFilterRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO advanced_filters").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM advanced_filter_users").WithArgs(sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM advanced_filter_groups").WithArgs(sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO advanced_filter_users \(filter_id, user_id\) SELECT \$1, unnest\(\$2::uuid\[\]\)`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	filter := &models.AdvancedFilter{
		Title:       "Active",
		CreatedByID: "u1",
		Model:       strPtr("library.Book"),
		ModelName:   strPtr("Book"),
		UserIDs:     []string{"u1"},
	}
	require.NoError(t, repo.Create(context.Background(), filter))
	assert.NotEmpty(t, filter.ID)
	assert.False(t, filter.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvancedFilterRepositoryUpdateMissingRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAdvancedFilterRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE advanced_filters SET title").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Update(context.Background(), &models.AdvancedFilter{ID: "missing", Title: "x"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvancedFilterRepositoryReorder(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAdvancedFilterRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE advanced_filters SET sort_order").WithArgs(0, "f2", "library.Book").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE advanced_filters SET sort_order").WithArgs(1, "f1", "library.Book").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Reorder(context.Background(), "library.Book", []models.FilterOrder{{ID: "f2", Order: 0}, {ID: "f1", Order: 1}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvancedFilterRepositoryReorderUnknownRowRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAdvancedFilterRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE advanced_filters SET sort_order").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE advanced_filters SET sort_order").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Reorder(context.Background(), "library.Book", []models.FilterOrder{{ID: "f1", Order: 0}, {ID: "other", Order: 1}})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvancedFilterRepositoryBackfillModelNames(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAdvancedFilterRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE advanced_filters SET model_name = COALESCE(NULLIF(split_part(model, '.', 2), ''), model)")).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.BackfillModelNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
