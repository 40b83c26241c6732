package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oliskey-School/School-app--sub008/internal/models"
)

var slotColumns = []string{"id", "timetable_id", "day", "day_index", "period", "subject", "teacher_id", "teacher_name", "created_at"}

func TestTimetableSlotRepositoryUpsertBatch(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableSlotRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_slots")).
		WithArgs(sqlmock.AnyArg(), "tt-1", "Monday", 0, 0, "Mathematics", "bayo", "Mr. Bayo", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_slots")).
		WithArgs(sqlmock.AnyArg(), "tt-1", "Monday", 0, 1, "Mathematics", "bayo", "Mr. Bayo", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	slots := []models.TimetableSlot{
		{TimetableID: "tt-1", Day: "Monday", Period: 0, Subject: "Mathematics", TeacherID: "bayo", TeacherName: "Mr. Bayo"},
		{TimetableID: "tt-1", Day: "Monday", Period: 1, Subject: "Mathematics", TeacherID: "bayo", TeacherName: "Mr. Bayo"},
	}
	require.NoError(t, repo.UpsertBatch(context.Background(), nil, slots))
	assert.NotEmpty(t, slots[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableSlotRepositoryUpsertEmptyBatch(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()

	require.NoError(t, NewTimetableSlotRepository(db).UpsertBatch(context.Background(), nil, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableSlotRepositoryListByTimetable(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableSlotRepository(db)

	rows := sqlmock.NewRows(slotColumns).
		AddRow("s-1", "tt-1", "Monday", 0, 0, "Mathematics", "bayo", "Mr. Bayo", time.Now()).
		AddRow("s-2", "tt-1", "Tuesday", 1, 2, "English", "x", "Mrs. X", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, timetable_id, day, day_index, period, subject, teacher_id, teacher_name, created_at FROM timetable_slots WHERE timetable_id = $1 ORDER BY day_index ASC, period ASC")).
		WithArgs("tt-1").
		WillReturnRows(rows)

	slots, err := repo.ListByTimetable(context.Background(), "tt-1")
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "Mrs. X", slots[1].TeacherName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableSlotRepositoryListPublished(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableSlotRepository(db)

	columns := []string{"id", "timetable_id", "day", "day_index", "period", "subject", "teacher_id", "teacher_name", "class_name", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM timetable_slots s JOIN timetables t ON t.id = s.timetable_id WHERE t.status = 'PUBLISHED'")).
		WillReturnRows(sqlmock.NewRows(columns).AddRow("s-1", "tt-1", "Monday", 0, 0, "Mathematics", "bayo", "Mr. Bayo", "JSS3", time.Now()))

	slots, err := repo.ListPublished(context.Background())
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "JSS3", slots[0].ClassName)
	assert.NoError(t, mock.ExpectationsWereMet())
}
