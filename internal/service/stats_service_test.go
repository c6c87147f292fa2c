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

type fakeStatsStudentRepo struct {
	students []models.Student
}

func (f *fakeStatsStudentRepo) FindByID(_ context.Context, id string) (*models.Student, error) {
	for i := range f.students {
		if f.students[i].ID == id {
			return &f.students[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStatsStudentRepo) ListInScope(_ context.Context, _ models.Scope) ([]models.Student, error) {
	return f.students, nil
}

type fakeStatsSessionRepo struct {
	sessions []models.SessionSummary
	eligible map[string][]string
}

func (f *fakeStatsSessionRepo) ListInScope(_ context.Context, _ models.Scope) ([]models.SessionSummary, error) {
	return f.sessions, nil
}

func (f *fakeStatsSessionRepo) FindSummaryInScope(_ context.Context, _ models.Scope, id string) (*models.SessionSummary, error) {
	for i := range f.sessions {
		if f.sessions[i].ID == id {
			return &f.sessions[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStatsSessionRepo) EligibleSessionIDs(_ context.Context, _ models.Scope, studentID string) ([]string, error) {
	return f.eligible[studentID], nil
}

func (f *fakeStatsSessionRepo) EligibleSessionCounts(_ context.Context, _ models.Scope) (map[string]int, error) {
	counts := make(map[string]int, len(f.eligible))
	for studentID, ids := range f.eligible {
		counts[studentID] = len(ids)
	}
	return counts, nil
}

type fakeStatsAttendanceRepo struct {
	records []models.AttendanceRecordDetail
}

func (f *fakeStatsAttendanceRepo) ListInScope(_ context.Context, _ models.Scope, _, _ *time.Time) ([]models.AttendanceRecordDetail, error) {
	return f.records, nil
}

func (f *fakeStatsAttendanceRepo) ListBySession(_ context.Context, sessionID string) ([]models.AttendanceRecordDetail, error) {
	var out []models.AttendanceRecordDetail
	for _, record := range f.records {
		if record.SessionID == sessionID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (f *fakeStatsAttendanceRepo) DistinctAttendedSessionIDs(_ context.Context, _ models.Scope, studentID string) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, record := range f.records {
		if record.StudentID != studentID {
			continue
		}
		if _, ok := seen[record.SessionID]; ok {
			continue
		}
		seen[record.SessionID] = struct{}{}
		out = append(out, record.SessionID)
	}
	return out, nil
}

type fakeStatsRosterRepo struct {
	rosters map[string][]models.Student
}

func (f *fakeStatsRosterRepo) Roster(_ context.Context, classID string) ([]models.Student, error) {
	return f.rosters[classID], nil
}

func record(studentID, studentName, sessionID string, late bool) models.AttendanceRecordDetail {
	return models.AttendanceRecordDetail{
		AttendanceRecord: models.AttendanceRecord{
			ID:        studentID + "-" + sessionID,
			StudentID: studentID,
			SessionID: sessionID,
			IsLate:    late,
		},
		StudentName: studentName,
	}
}

func sessionSummary(id, classID, name string) models.SessionSummary {
	return models.SessionSummary{
		Session: models.Session{
			ID:        id,
			ClassID:   classID,
			Name:      name,
			Date:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
			StartTime: models.NewClock(9, 0, 0),
		},
		ClassName: "Math 101",
	}
}

func newStatsFixture() (*StatsService, *fakeStatsStudentRepo, *fakeStatsSessionRepo, *fakeStatsAttendanceRepo, *fakeStatsRosterRepo) {
	students := &fakeStatsStudentRepo{}
	sessions := &fakeStatsSessionRepo{eligible: map[string][]string{}}
	attendance := &fakeStatsAttendanceRepo{}
	rosters := &fakeStatsRosterRepo{rosters: map[string][]models.Student{}}
	svc := NewStatsService(students, sessions, attendance, rosters, nil, 0, zap.NewNop())
	return svc, students, sessions, attendance, rosters
}

func TestForStudentTwoThirdsRoundsToOneDecimal(t *testing.T) {
	svc, students, sessions, attendance, _ := newStatsFixture()
	students.students = []models.Student{{ID: "s1", Name: "Ada", Active: true}}
	sessions.eligible["s1"] = []string{"a", "b", "c", "d", "e", "f"}
	attendance.records = []models.AttendanceRecordDetail{
		record("s1", "Ada", "a", false),
		record("s1", "Ada", "b", true),
		record("s1", "Ada", "c", false),
		record("s1", "Ada", "d", false),
	}

	stats, err := svc.ForStudent(context.Background(), models.AdminScope(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.SessionsAttended)
	assert.Equal(t, 6, stats.EligibleSessions)
	assert.Equal(t, 1, stats.TimesLate)
	assert.Equal(t, 3, stats.TimesOnTime)
	assert.Equal(t, 66.7, stats.AttendancePercentage)
}

func TestForStudentRemovedFromClassKeepsFullHistory(t *testing.T) {
	svc, students, sessions, attendance, _ := newStatsFixture()
	students.students = []models.Student{{ID: "s1", Name: "Ada", Active: true}}
	// No current membership, but three attended sessions: the attended
	// count becomes the denominator, never more than 100%.
	sessions.eligible["s1"] = nil
	attendance.records = []models.AttendanceRecordDetail{
		record("s1", "Ada", "a", false),
		record("s1", "Ada", "b", false),
		record("s1", "Ada", "c", false),
	}

	stats, err := svc.ForStudent(context.Background(), models.AdminScope(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.SessionsAttended)
	assert.Equal(t, 3, stats.EligibleSessions)
	assert.Equal(t, 100.0, stats.AttendancePercentage)
}

func TestForStudentNoSessionsYieldsZeroPercent(t *testing.T) {
	svc, students, _, _, _ := newStatsFixture()
	students.students = []models.Student{{ID: "s1", Name: "Ada", Active: true}}

	stats, err := svc.ForStudent(context.Background(), models.AdminScope(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.EligibleSessions)
	assert.Equal(t, 0.0, stats.AttendancePercentage)
}

func TestForStudentUnrelatedToTeacherScopeIsNotFound(t *testing.T) {
	svc, students, _, _, _ := newStatsFixture()
	students.students = []models.Student{{ID: "s1", Name: "Ada", Active: true}}

	_, err := svc.ForStudent(context.Background(), models.TeacherScope("t2"), "s1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestForSessionPartitionsEligibleSet(t *testing.T) {
	svc, _, sessions, attendance, rosters := newStatsFixture()
	sessions.sessions = []models.SessionSummary{sessionSummary("sess1", "class1", "Lecture 1")}
	rosters.rosters["class1"] = []models.Student{
		{ID: "s1", Name: "Ada"},
		{ID: "s2", Name: "Grace"},
		{ID: "s3", Name: "Linus"},
	}
	attendance.records = []models.AttendanceRecordDetail{
		record("s1", "Ada", "sess1", false),
		record("s2", "Grace", "sess1", true),
	}

	stats, err := svc.ForSession(context.Background(), models.AdminScope(), "sess1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Ada", "Grace"}, stats.PresentStudents)
	assert.Equal(t, []string{"Linus"}, stats.AbsentStudents)
	assert.Equal(t, []string{"Grace"}, stats.LateStudents)
	assert.Equal(t, []string{"Ada"}, stats.OnTimeStudents)
	// Present and absent are disjoint and cover the eligible set; late and
	// on-time partition present.
	assert.Equal(t, stats.EligibleCount, stats.PresentCount+stats.AbsentCount)
	assert.Equal(t, stats.PresentCount, len(stats.LateStudents)+len(stats.OnTimeStudents))
	assert.Equal(t, 66.7, stats.AttendancePercentage)
}

func TestForSessionEmptyRosterFallsBackToAttendees(t *testing.T) {
	svc, _, sessions, attendance, _ := newStatsFixture()
	sessions.sessions = []models.SessionSummary{sessionSummary("sess1", "class1", "Lecture 1")}
	attendance.records = []models.AttendanceRecordDetail{
		record("s9", "Zoe", "sess1", false),
	}

	stats, err := svc.ForSession(context.Background(), models.AdminScope(), "sess1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EligibleCount)
	assert.Equal(t, 1, stats.PresentCount)
	assert.Equal(t, 0, stats.AbsentCount)
	assert.Equal(t, 100.0, stats.AttendancePercentage)
}

func TestAggregateLatePercentageAndExtremes(t *testing.T) {
	svc, students, sessions, attendance, rosters := newStatsFixture()
	students.students = []models.Student{
		{ID: "s1", Name: "Ada", Active: true},
		{ID: "s2", Name: "Grace", Active: true},
	}
	sessions.sessions = []models.SessionSummary{
		sessionSummary("sess1", "class1", "Lecture 1"),
		sessionSummary("sess2", "class1", "Lecture 2"),
	}
	sessions.eligible["s1"] = []string{"sess1", "sess2"}
	sessions.eligible["s2"] = []string{"sess1", "sess2"}
	rosters.rosters["class1"] = []models.Student{
		{ID: "s1", Name: "Ada"},
		{ID: "s2", Name: "Grace"},
	}
	attendance.records = []models.AttendanceRecordDetail{
		record("s1", "Ada", "sess1", false),
		record("s1", "Ada", "sess2", true),
		record("s2", "Grace", "sess1", false),
	}

	aggregate, err := svc.Aggregate(context.Background(), models.AdminScope())
	require.NoError(t, err)
	assert.Equal(t, 3, aggregate.TotalRecords)
	assert.Equal(t, 33.33, aggregate.LatePercentage)
	require.NotNil(t, aggregate.BestPerformingStudent)
	assert.Equal(t, "Ada", aggregate.BestPerformingStudent.StudentName)
	require.NotNil(t, aggregate.WorstPerformingStudent)
	assert.Equal(t, "Grace", aggregate.WorstPerformingStudent.StudentName)
	require.NotNil(t, aggregate.MostAttendedSession)
	assert.Equal(t, "sess1", aggregate.MostAttendedSession.SessionID)
	require.NotNil(t, aggregate.LeastAttendedSession)
	assert.Equal(t, "sess2", aggregate.LeastAttendedSession.SessionID)
}

func TestAggregateSessionExtremesRankByPercentageNotHeadCount(t *testing.T) {
	svc, _, sessions, attendance, rosters := newStatsFixture()
	big := sessionSummary("sessBig", "classBig", "Lecture Hall")
	small := sessionSummary("sessSmall", "classSmall", "Seminar")
	sessions.sessions = []models.SessionSummary{big, small}

	// Ten enrolled, five present: 50%.
	for i := 0; i < 10; i++ {
		name := "Big" + string(rune('A'+i))
		id := "b" + string(rune('0'+i))
		rosters.rosters["classBig"] = append(rosters.rosters["classBig"], models.Student{ID: id, Name: name})
		if i < 5 {
			attendance.records = append(attendance.records, record(id, name, "sessBig", false))
		}
	}
	// Three enrolled, all present: 100%.
	for i := 0; i < 3; i++ {
		name := "Small" + string(rune('A'+i))
		id := "m" + string(rune('0'+i))
		rosters.rosters["classSmall"] = append(rosters.rosters["classSmall"], models.Student{ID: id, Name: name})
		attendance.records = append(attendance.records, record(id, name, "sessSmall", false))
	}

	aggregate, err := svc.Aggregate(context.Background(), models.AdminScope())
	require.NoError(t, err)
	// The full seminar outranks the half-empty hall even though the hall
	// has more bodies in the room.
	require.NotNil(t, aggregate.MostAttendedSession)
	assert.Equal(t, "sessSmall", aggregate.MostAttendedSession.SessionID)
	assert.Equal(t, 100.0, aggregate.MostAttendedSession.AttendancePercentage)
	require.NotNil(t, aggregate.LeastAttendedSession)
	assert.Equal(t, "sessBig", aggregate.LeastAttendedSession.SessionID)
	assert.Equal(t, 50.0, aggregate.LeastAttendedSession.AttendancePercentage)
}

func TestAggregateTiesGoToFirstInNameOrder(t *testing.T) {
	svc, students, sessions, attendance, rosters := newStatsFixture()
	students.students = []models.Student{
		{ID: "s1", Name: "Ada", Active: true},
		{ID: "s2", Name: "Grace", Active: true},
	}
	sessions.sessions = []models.SessionSummary{sessionSummary("sess1", "class1", "Lecture 1")}
	sessions.eligible["s1"] = []string{"sess1"}
	sessions.eligible["s2"] = []string{"sess1"}
	rosters.rosters["class1"] = []models.Student{
		{ID: "s1", Name: "Ada"},
		{ID: "s2", Name: "Grace"},
	}
	attendance.records = []models.AttendanceRecordDetail{
		record("s1", "Ada", "sess1", false),
		record("s2", "Grace", "sess1", false),
	}

	aggregate, err := svc.Aggregate(context.Background(), models.AdminScope())
	require.NoError(t, err)
	assert.Equal(t, "Ada", aggregate.BestPerformingStudent.StudentName)
	assert.Equal(t, "Ada", aggregate.WorstPerformingStudent.StudentName)
}

func TestOverviewSnapshotConsistency(t *testing.T) {
	svc, students, sessions, attendance, rosters := newStatsFixture()
	students.students = []models.Student{{ID: "s1", Name: "Ada", Active: true}}
	sessions.sessions = []models.SessionSummary{sessionSummary("sess1", "class1", "Lecture 1")}
	sessions.eligible["s1"] = []string{"sess1"}
	rosters.rosters["class1"] = []models.Student{{ID: "s1", Name: "Ada"}}
	attendance.records = []models.AttendanceRecordDetail{record("s1", "Ada", "sess1", false)}

	overview, err := svc.Overview(context.Background(), models.AdminScope())
	require.NoError(t, err)
	assert.Equal(t, 1, overview.TotalStudents)
	assert.Equal(t, 1, overview.TotalSessions)
	require.Len(t, overview.StudentStats, 1)
	assert.Equal(t, 100.0, overview.StudentStats[0].AttendancePercentage)
	require.Len(t, overview.SessionStats, 1)
	assert.Equal(t, 1, overview.SessionStats[0].PresentCount)
}

func TestPercentageClampAndZero(t *testing.T) {
	assert.Equal(t, 0.0, percentage(3, 0))
	assert.Equal(t, 100.0, percentage(5, 5))
	assert.Equal(t, 66.7, percentage(2, 3))
	assert.Equal(t, 33.3, percentage(1, 3))
}
