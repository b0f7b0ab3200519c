package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/advanced-filters-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "email", "full_name", "role", "active", "created_at", "updated_at"}).
		AddRow("u1", "staff@example.com", "Staff", string(models.RoleStaff), true, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, full_name, role, active, created_at, updated_at FROM users WHERE id = $1 LIMIT 1")).
		WithArgs("u1").
		WillReturnRows(rows)

	user, err := repo.FindByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleStaff, user.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupIDs(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("SELECT group_id::text FROM user_groups").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"group_id"}).AddRow("g1").AddRow("g2"))

	ids, err := repo.GroupIDs(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"g1", "g2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAuditLog(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	userID := "u1"
	err := repo.CreateAuditLog(context.Background(), &models.AuditLog{UserID: &userID, Action: models.AuditActionFilterCreate, Resource: "advanced_filters"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
