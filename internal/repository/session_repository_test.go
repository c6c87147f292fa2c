package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facetrack/facetrack-api/internal/models"
)

func newSessionMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func sessionSummaryRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "class_id", "teacher_id", "name", "date", "start_time", "end_time", "created_at", "class_name", "attendance_count", "total_students"})
}

func TestSessionRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newSessionMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(sqlmock.AnyArg(), "class-1", "teacher-1", "Lecture 1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	session := &models.Session{
		ClassID:   "class-1",
		TeacherID: "teacher-1",
		Name:      "Lecture 1",
		Date:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		StartTime: models.NewClock(9, 0, 0),
	}
	require.NoError(t, repo.Create(context.Background(), session))
	assert.NotEmpty(t, session.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryFindInScopeForeignTeacher(t *testing.T) {
	db, mock, cleanup := newSessionMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	// A session owned by another teacher is indistinguishable from a
	// missing one.
	mock.ExpectQuery("SELECT id, class_id").
		WithArgs("session-1", "teacher-2").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindInScope(context.Background(), models.TeacherScope("teacher-2"), "session-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryListInScope(t *testing.T) {
	db, mock, cleanup := newSessionMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery("SELECT sn.id, sn.class_id").
		WithArgs("teacher-1").
		WillReturnRows(sessionSummaryRows().
			AddRow("session-1", "class-1", "teacher-1", "Lecture 1", time.Now(), "09:00:00", nil, time.Now(), "Math 101", 18, 25))

	sessions, err := repo.ListInScope(context.Background(), models.TeacherScope("teacher-1"))
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 18, sessions[0].AttendanceCount)
	assert.Equal(t, 25, sessions[0].TotalStudents)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryListUpcoming(t *testing.T) {
	db, mock, cleanup := newSessionMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)
	mock.ExpectQuery("SELECT sn.id, sn.class_id").
		WithArgs("teacher-1", from, to).
		WillReturnRows(sessionSummaryRows())

	sessions, err := repo.ListUpcoming(context.Background(), "teacher-1", from, to)
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryEligibleSessionIDs(t *testing.T) {
	db, mock, cleanup := newSessionMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery("SELECT sn.id FROM sessions").
		WithArgs("student-1", "teacher-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("session-1").AddRow("session-2").AddRow("session-3"))

	ids, err := repo.EligibleSessionIDs(context.Background(), models.TeacherScope("teacher-1"), "student-1")
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryEligibleSessionCounts(t *testing.T) {
	db, mock, cleanup := newSessionMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery("SELECT cs.student_id, COUNT").
		WithArgs("teacher-1").
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "session_count"}).
			AddRow("student-1", 6).
			AddRow("student-2", 2))

	counts, err := repo.EligibleSessionCounts(context.Background(), models.TeacherScope("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"student-1": 6, "student-2": 2}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}
