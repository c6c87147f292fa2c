package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/facetrack/facetrack-api/internal/models"
	appErrors "github.com/facetrack/facetrack-api/pkg/errors"
)

type fakeAttendanceRepo struct {
	existing    *models.AttendanceRecord
	loseRace    bool
	createCalls int
}

func (f *fakeAttendanceRepo) CreateIfAbsent(_ context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, bool, error) {
	f.createCalls++
	if f.existing != nil {
		return nil, false, nil
	}
	if f.loseRace {
		// Simulate a concurrent capture winning between our insert attempt
		// and the conflict check.
		f.existing = &models.AttendanceRecord{
			ID:          "winner",
			StudentID:   record.StudentID,
			SessionID:   record.SessionID,
			ArrivalTime: models.NewClock(9, 0, 0),
			IsLate:      false,
		}
		return nil, false, nil
	}
	stored := *record
	stored.ID = "rec-1"
	f.existing = &stored
	return &stored, true, nil
}

func (f *fakeAttendanceRepo) FindByStudentSession(_ context.Context, studentID, sessionID string) (*models.AttendanceRecord, error) {
	if f.existing == nil {
		return nil, sql.ErrNoRows
	}
	return f.existing, nil
}

func (f *fakeAttendanceRepo) ListInScope(_ context.Context, _ models.Scope, _, _ *time.Time) ([]models.AttendanceRecordDetail, error) {
	return nil, nil
}

type fakeSessionLookup struct {
	session *models.Session
}

func (f *fakeSessionLookup) FindInScope(_ context.Context, _ models.Scope, id string) (*models.Session, error) {
	if f.session == nil || f.session.ID != id {
		return nil, sql.ErrNoRows
	}
	return f.session, nil
}

type fakeStudentLookup struct {
	student *models.Student
}

func (f *fakeStudentLookup) FindByID(_ context.Context, id string) (*models.Student, error) {
	if f.student == nil || f.student.ID != id {
		return nil, sql.ErrNoRows
	}
	return f.student, nil
}

type fakeEnrollment struct {
	enrolled bool
}

func (f *fakeEnrollment) IsEnrolled(_ context.Context, _, _ string) (bool, error) {
	return f.enrolled, nil
}

type fakeInvalidator struct {
	calls int
}

func (f *fakeInvalidator) Invalidate(_ context.Context, _ models.Scope) {
	f.calls++
}

func newRecorderFixture() (*AttendanceService, *fakeAttendanceRepo, *fakeSessionLookup, *fakeStudentLookup, *fakeEnrollment, *fakeInvalidator) {
	attendance := &fakeAttendanceRepo{}
	sessions := &fakeSessionLookup{session: &models.Session{
		ID:        "sess1",
		ClassID:   "class1",
		TeacherID: "t1",
		Date:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		StartTime: models.NewClock(9, 0, 0),
	}}
	students := &fakeStudentLookup{student: &models.Student{ID: "s1", Name: "Ada", Active: true}}
	enrollment := &fakeEnrollment{enrolled: true}
	stats := &fakeInvalidator{}
	svc := NewAttendanceService(attendance, sessions, students, enrollment, stats, nil, zap.NewNop())
	return svc, attendance, sessions, students, enrollment, stats
}

func arrival(hour, min, sec int) time.Time {
	return time.Date(2026, 3, 2, hour, min, sec, 0, time.UTC)
}

func TestRecordOnTimeAtExactStart(t *testing.T) {
	svc, _, _, _, _, stats := newRecorderFixture()

	outcome, err := svc.Record(context.Background(), models.TeacherScope("t1"), "s1", "sess1", arrival(9, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceMarked, outcome.Status)
	assert.False(t, outcome.IsLate, "arriving exactly at start is on time")
	assert.Equal(t, 1, stats.calls)
}

func TestRecordLateOneSecondAfterStart(t *testing.T) {
	svc, _, _, _, _, _ := newRecorderFixture()

	outcome, err := svc.Record(context.Background(), models.TeacherScope("t1"), "s1", "sess1", arrival(9, 0, 1))
	require.NoError(t, err)
	assert.True(t, outcome.IsLate)
}

func TestRecordRepeatResolvesToAlreadyMarked(t *testing.T) {
	svc, attendance, _, _, _, stats := newRecorderFixture()
	attendance.existing = &models.AttendanceRecord{
		StudentID:   "s1",
		SessionID:   "sess1",
		ArrivalTime: models.NewClock(8, 55, 0),
		IsLate:      false,
	}

	outcome, err := svc.Record(context.Background(), models.TeacherScope("t1"), "s1", "sess1", arrival(9, 30, 0))
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceAlreadyMarked, outcome.Status)
	// The original arrival time is reported, not the repeat capture's.
	assert.Equal(t, models.NewClock(8, 55, 0), outcome.ArrivalTime)
	assert.False(t, outcome.IsLate)
	assert.Equal(t, 0, stats.calls)
}

func TestRecordRaceLoserReadsWinnersRecord(t *testing.T) {
	svc, attendance, _, _, _, _ := newRecorderFixture()
	attendance.loseRace = true

	outcome, err := svc.Record(context.Background(), models.TeacherScope("t1"), "s1", "sess1", arrival(9, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceAlreadyMarked, outcome.Status)
	assert.Equal(t, models.NewClock(9, 0, 0), outcome.ArrivalTime)
	assert.Equal(t, 1, attendance.createCalls)
}

func TestRecordRejectsUnenrolledStudent(t *testing.T) {
	svc, attendance, _, _, enrollment, _ := newRecorderFixture()
	enrollment.enrolled = false

	_, err := svc.Record(context.Background(), models.TeacherScope("t1"), "s1", "sess1", arrival(9, 0, 0))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotEnrolled.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, attendance.createCalls)
}

func TestRecordUnknownSessionIsNotFound(t *testing.T) {
	svc, _, _, _, _, _ := newRecorderFixture()

	_, err := svc.Record(context.Background(), models.TeacherScope("t1"), "s1", "missing", arrival(9, 0, 0))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRecordInactiveStudentIsNotFound(t *testing.T) {
	svc, _, _, students, _, _ := newRecorderFixture()
	students.student.Active = false

	_, err := svc.Record(context.Background(), models.TeacherScope("t1"), "s1", "sess1", arrival(9, 0, 0))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
