package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facetrack/facetrack-api/internal/models"
)

func newClassMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestClassRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newClassMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectExec("INSERT INTO classes").
		WithArgs(sqlmock.AnyArg(), "teacher-1", "Math 101", "MATH101", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	class := &models.Class{TeacherID: "teacher-1", Name: "Math 101", Code: "MATH101", Active: true}
	require.NoError(t, repo.Create(context.Background(), class))
	assert.NotEmpty(t, class.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryExistsByCode(t *testing.T) {
	db, mock, cleanup := newClassMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectQuery("SELECT 1 FROM classes").
		WithArgs("teacher-1", "MATH101").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(1))

	exists, err := repo.ExistsByCode(context.Background(), "teacher-1", "MATH101")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryListForTeacher(t *testing.T) {
	db, mock, cleanup := newClassMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	rows := sqlmock.NewRows([]string{"id", "teacher_id", "name", "code", "description", "academic_year", "semester", "active", "created_at", "student_count", "session_count"}).
		AddRow("class-1", "teacher-1", "Math 101", "MATH101", nil, "2025/2026", "1", true, time.Now(), 25, 8)
	mock.ExpectQuery("SELECT c.id, c.teacher_id").
		WithArgs("teacher-1").
		WillReturnRows(rows)

	classes, err := repo.ListForTeacher(context.Background(), "teacher-1")
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, 25, classes[0].StudentCount)
	assert.Equal(t, 8, classes[0].SessionCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryAddStudentIdempotent(t *testing.T) {
	db, mock, cleanup := newClassMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	// A repeat add hits the conflict clause and affects zero rows.
	mock.ExpectExec("INSERT INTO class_students").
		WithArgs("class-1", "student-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.AddStudent(context.Background(), "class-1", "student-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryRemoveStudentFromTeacherClasses(t *testing.T) {
	db, mock, cleanup := newClassMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectQuery("DELETE FROM class_students").
		WithArgs("student-1", "teacher-1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Math 101").AddRow("Physics 201"))

	names, err := repo.RemoveStudentFromTeacherClasses(context.Background(), "student-1", "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Math 101", "Physics 201"}, names)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryRoster(t *testing.T) {
	db, mock, cleanup := newClassMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	rows := sqlmock.NewRows([]string{"id", "name", "code", "email", "phone", "image_path", "active", "created_at"}).
		AddRow("student-1", "Ada", "S001", nil, nil, nil, true, time.Now()).
		AddRow("student-2", "Grace", "S002", nil, nil, nil, true, time.Now())
	mock.ExpectQuery("SELECT s.id, s.name").
		WithArgs("class-1").
		WillReturnRows(rows)

	roster, err := repo.Roster(context.Background(), "class-1")
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, "Ada", roster[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryIsEnrolledFalse(t *testing.T) {
	db, mock, cleanup := newClassMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectQuery("SELECT 1 FROM class_students").
		WithArgs("class-1", "student-9").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}))

	enrolled, err := repo.IsEnrolled(context.Background(), "class-1", "student-9")
	require.NoError(t, err)
	assert.False(t, enrolled)
	assert.NoError(t, mock.ExpectationsWereMet())
}
