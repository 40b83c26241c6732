package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oliskey-School/School-app--sub008/internal/models"
)

func newTimetableRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var timetableColumns = []string{"id", "class_name", "version", "status", "meta", "created_at", "updated_at"}

func TestTimetableRepositoryCreateVersioned(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) + 1 FROM timetables WHERE LOWER(class_name) = LOWER($1)")).
		WithArgs("JSS1").
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(3))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetables")).
		WithArgs(sqlmock.AnyArg(), "JSS1", 3, string(models.TimetableStatusDraft), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	payload := &models.Timetable{ClassName: "JSS1", Meta: types.JSONText(`{"score":4.5}`)}
	require.NoError(t, repo.CreateVersioned(context.Background(), nil, payload))
	assert.Equal(t, 3, payload.Version)
	assert.NotEmpty(t, payload.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryCreateVersionedRequiresClass(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	assert.Error(t, repo.CreateVersioned(context.Background(), nil, &models.Timetable{ClassName: " "}))
	assert.Error(t, repo.CreateVersioned(context.Background(), nil, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryList(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	rows := sqlmock.NewRows(timetableColumns).
		AddRow("tt-2", "JSS1", 2, string(models.TimetableStatusDraft), types.JSONText(`{}`), time.Now(), time.Now()).
		AddRow("tt-1", "JSS1", 1, string(models.TimetableStatusDraft), types.JSONText(`{}`), time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, class_name, version, status, meta, created_at, updated_at FROM timetables WHERE 1=1 AND LOWER(class_name) = LOWER($1) ORDER BY class_name ASC, version DESC LIMIT 10 OFFSET 10")).
		WithArgs("jss1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM timetables WHERE 1=1 AND LOWER(class_name) = LOWER($1)")).
		WithArgs("jss1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	list, total, err := repo.List(context.Background(), models.TimetableFilter{ClassName: "jss1", Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 12, total)
	assert.Equal(t, 2, list[0].Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, class_name, version, status, meta, created_at, updated_at FROM timetables WHERE id = $1")).
		WithArgs("tt-1").
		WillReturnRows(sqlmock.NewRows(timetableColumns).AddRow("tt-1", "JSS1", 1, "PUBLISHED", types.JSONText(`{}`), time.Now(), time.Now()))

	timetable, err := repo.FindByID(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.Equal(t, models.TimetableStatusPublished, timetable.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryDeleteNotFound(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetables WHERE id = $1")).
		WithArgs("tt-1").
		WillReturnResult(sqlmock.NewResult(1, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "tt-1"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetables SET status = $1, updated_at = $2 WHERE id = $3")).
		WithArgs(string(models.TimetableStatusPublished), sqlmock.AnyArg(), "tt-1").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), nil, "tt-1", models.TimetableStatusPublished, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}
