package collection

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/advanced-filters-api/internal/entity"
	"github.com/noah-isme/advanced-filters-api/pkg/query"
)

func bookEntity() *entity.Entity {
	return &entity.Entity{
		Label:      "library.Book",
		Table:      "library_book",
		PrimaryKey: "id",
		Ordering:   "-published",
		Fields:     []string{"id", "title", "status", "pages", "published"},
	}
}

func TestSQLFilterBuildsParameterisedWhere(t *testing.T) {
	out, err := NewSQL(bookEntity()).Filter(query.And(
		query.Q("status", "active"),
		query.Or(query.Q("pages__gte", int64(100)), query.Q("title__icontains", "50%")),
	))
	require.NoError(t, err)

	where, args := out.(*SQL).Where()
	assert.Equal(t, `("status" = ? AND ("pages" >= ? OR UPPER("title"::text) LIKE UPPER(?)))`, where)
	assert.Equal(t, []any{"active", int64(100), `%50\%%`}, args)
}

func TestSQLLookups(t *testing.T) {
	cases := []struct {
		name  string
		expr  query.Expression
		where string
		args  []any
	}{
		{"null exact", query.Q("published", nil), `"published" IS NULL`, nil},
		{"not null", query.Q("published__isnull", false), `"published" IS NOT NULL`, nil},
		{"empty in", query.Q("status__in", []any{nil}), `FALSE`, nil},
		{"in", query.Q("status__in", []any{"a", "b"}), `"status" IN (?, ?)`, []any{"a", "b"}},
		{"startswith", query.Q("title__startswith", "Go_"), `"title"::text LIKE ?`, []any{`Go\_%`}},
		{"date range", query.Q("published__range", []any{
			query.Date{Year: 2024, Month: 1, Day: 1},
			query.Date{Year: 2024, Month: 2, Day: 1},
		}), `"published" BETWEEN ? AND ?`, []any{"2024-01-01", "2024-02-01"}},
		{"negated", query.Not(query.Q("status", "x")), `NOT ("status" = ?)`, []any{"x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := NewSQL(bookEntity()).Filter(tc.expr)
			require.NoError(t, err)
			where, args := out.(*SQL).Where()
			assert.Equal(t, tc.where, where)
			assert.Equal(t, tc.args, args)
		})
	}
}

func TestSQLRejectsUnknownAndRelatedFields(t *testing.T) {
	_, err := NewSQL(bookEntity()).Filter(query.Q("author__name", "x"))
	assert.ErrorIs(t, err, ErrUnsupportedField)

	_, err = NewSQL(bookEntity()).Filter(query.Q("isbn", "x"))
	assert.ErrorIs(t, err, ErrUnsupportedField)
}

func TestSQLIntersectDistinctSelect(t *testing.T) {
	base := NewSQL(bookEntity())
	left, err := base.Filter(query.Q("status", "active"))
	require.NoError(t, err)
	right, err := base.Filter(query.Q("pages__lt", int64(50)))
	require.NoError(t, err)

	both, err := left.Intersect(right)
	require.NoError(t, err)
	q, args := both.Distinct().(*SQL).SelectQuery(20, 40)
	assert.Equal(t, `SELECT DISTINCT "id", "title", "status", "pages", "published" FROM "library_book"`+
		` WHERE "status" = ? AND "pages" < ? ORDER BY "published" DESC, "id" DESC LIMIT ? OFFSET ?`, q)
	assert.Equal(t, []any{"active", int64(50), 20, 40}, args)

	_, err = left.Intersect(NewMemory(nil))
	assert.ErrorIs(t, err, ErrIncompatible)
}

func TestSQLFetch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	defer sqlxDB.Close()

	out, err := NewSQL(bookEntity()).Filter(query.Q("status", "active"))
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "library_book" WHERE "status" = \$1`).
		WithArgs("active").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT "id", "title", "status", "pages", "published" FROM "library_book" WHERE "status" = \$1 ORDER BY .* LIMIT \$2 OFFSET \$3`).
		WithArgs("active", 10, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "status", "pages", "published"}).
			AddRow(int64(7), []byte("Go"), []byte("active"), int64(120), nil))

	rows, total, err := out.(*SQL).Fetch(context.Background(), sqlxDB, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, rows, 1)
	assert.Equal(t, "Go", rows[0]["title"])
	assert.Equal(t, int64(7), rows[0]["id"])
	require.NoError(t, mock.ExpectationsWereMet())
}
