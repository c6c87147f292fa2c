package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/facetrack/facetrack-api/internal/models"
	appErrors "github.com/facetrack/facetrack-api/pkg/errors"
)

type statsStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ListInScope(ctx context.Context, scope models.Scope) ([]models.Student, error)
}

type statsSessionRepository interface {
	ListInScope(ctx context.Context, scope models.Scope) ([]models.SessionSummary, error)
	FindSummaryInScope(ctx context.Context, scope models.Scope, id string) (*models.SessionSummary, error)
	EligibleSessionIDs(ctx context.Context, scope models.Scope, studentID string) ([]string, error)
	EligibleSessionCounts(ctx context.Context, scope models.Scope) (map[string]int, error)
}

type statsAttendanceRepository interface {
	ListInScope(ctx context.Context, scope models.Scope, from, to *time.Time) ([]models.AttendanceRecordDetail, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecordDetail, error)
	DistinctAttendedSessionIDs(ctx context.Context, scope models.Scope, studentID string) ([]string, error)
}

type statsRosterRepository interface {
	Roster(ctx context.Context, classID string) ([]models.Student, error)
}

type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// StatsService derives all attendance statistics on demand from stored
// entities. Nothing here is persisted; a computed percentage is always
// consistent with the records at the moment of the read.
type StatsService struct {
	studentRepo    statsStudentRepository
	sessionRepo    statsSessionRepository
	attendanceRepo statsAttendanceRepository
	rosterRepo     statsRosterRepository
	cache          statsCache
	cacheTTL       time.Duration
	logger         *zap.Logger
}

// NewStatsService constructs the statistics service. A nil cache disables
// caching entirely.
func NewStatsService(students statsStudentRepository, sessions statsSessionRepository, attendance statsAttendanceRepository, rosters statsRosterRepository, cache statsCache, cacheTTL time.Duration, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsService{
		studentRepo:    students,
		sessionRepo:    sessions,
		attendanceRepo: attendance,
		rosterRepo:     rosters,
		cache:          cache,
		cacheTTL:       cacheTTL,
		logger:         logger,
	}
}

// round1 rounds to one decimal place.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// round2 rounds to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// percentage computes round1(100*part/whole) capped at 100. A zero whole
// yields 0, never a division error.
func percentage(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	pct := round1(float64(part) / float64(whole) * 100)
	if pct > 100 {
		pct = 100
	}
	return pct
}

// ForStudent computes one student's statistics across the scope.
func (s *StatsService) ForStudent(ctx context.Context, scope models.Scope, studentID string) (*models.StudentStats, error) {
	student, err := s.studentRepo.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}

	attended, err := s.attendanceRepo.DistinctAttendedSessionIDs(ctx, scope, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	eligible, err := s.sessionRepo.EligibleSessionIDs(ctx, scope, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	if _, teacherBound := scope.TeacherID(); teacherBound && len(attended) == 0 && len(eligible) == 0 {
		// A student with no relation to this teacher is indistinguishable
		// from a missing one.
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	records, err := s.attendanceRepo.ListInScope(ctx, scope, nil, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}

	late, onTime := 0, 0
	for _, record := range records {
		if record.StudentID != student.ID {
			continue
		}
		if record.IsLate {
			late++
		} else {
			onTime++
		}
	}
	return buildStudentStats(student.ID, student.Name, len(attended), len(eligible), late, onTime), nil
}

// buildStudentStats applies the denominator policy: a student is eligible
// for the larger of the sessions they attended and the sessions of their
// current classes. Attending a session always counts toward the denominator
// even after leaving the class, so removal never erases history and the
// percentage stays within 0..100.
func buildStudentStats(id, name string, attended, enrolledSessions, late, onTime int) *models.StudentStats {
	eligible := enrolledSessions
	if attended > eligible {
		eligible = attended
	}
	return &models.StudentStats{
		StudentID:            id,
		StudentName:          name,
		SessionsAttended:     attended,
		EligibleSessions:     eligible,
		TimesLate:            late,
		TimesOnTime:          onTime,
		AttendancePercentage: percentage(attended, eligible),
	}
}

// ForSession computes the presence partition for one session.
func (s *StatsService) ForSession(ctx context.Context, scope models.Scope, sessionID string) (*models.SessionStats, error) {
	session, err := s.sessionRepo.FindSummaryInScope(ctx, scope, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}

	records, err := s.attendanceRepo.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	roster, err := s.rosterRepo.Roster(ctx, session.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	return buildSessionStats(session, roster, records), nil
}

// buildSessionStats partitions the eligible set. Eligibility follows the
// current active roster of the session's class; when that roster is empty
// the recorded attendees stand in, so a session never reports both
// attendance and zero eligibility.
func buildSessionStats(session *models.SessionSummary, roster []models.Student, records []models.AttendanceRecordDetail) *models.SessionStats {
	stats := &models.SessionStats{
		SessionID:      session.ID,
		SessionName:    session.Name,
		ClassName:      session.ClassName,
		Date:           session.Date.Format("2006-01-02"),
		StartTime:      session.StartTime,
		EndTime:        session.EndTime,
		PresentStudents: []string{},
		AbsentStudents:  []string{},
		LateStudents:    []string{},
		OnTimeStudents:  []string{},
	}

	recordByStudent := make(map[string]models.AttendanceRecordDetail, len(records))
	for _, record := range records {
		recordByStudent[record.StudentID] = record
	}

	eligible := make([]models.Student, 0, len(roster))
	eligible = append(eligible, roster...)
	if len(eligible) == 0 {
		for _, record := range records {
			eligible = append(eligible, models.Student{ID: record.StudentID, Name: record.StudentName})
		}
	}

	for _, student := range eligible {
		record, present := recordByStudent[student.ID]
		if !present {
			stats.AbsentStudents = append(stats.AbsentStudents, student.Name)
			continue
		}
		stats.PresentStudents = append(stats.PresentStudents, student.Name)
		if record.IsLate {
			stats.LateStudents = append(stats.LateStudents, student.Name)
		} else {
			stats.OnTimeStudents = append(stats.OnTimeStudents, student.Name)
		}
	}

	stats.PresentCount = len(stats.PresentStudents)
	stats.AbsentCount = len(stats.AbsentStudents)
	stats.EligibleCount = len(eligible)
	stats.AttendancePercentage = percentage(stats.PresentCount, stats.EligibleCount)
	return stats
}

// Aggregate computes the scope-wide summary: total records, late rate and
// the extreme students and sessions. Extremes are ranked by attendance
// percentage, not head count. Ties go to the first candidate in name order
// for students and list order for sessions.
func (s *StatsService) Aggregate(ctx context.Context, scope models.Scope) (*models.AggregateStats, error) {
	overview, err := s.Overview(ctx, scope)
	if err != nil {
		return nil, err
	}

	aggregate := &models.AggregateStats{TotalRecords: len(overview.Records)}

	late := 0
	for _, record := range overview.Records {
		if record.IsLate {
			late++
		}
	}
	if len(overview.Records) > 0 {
		aggregate.LatePercentage = round2(float64(late) / float64(len(overview.Records)) * 100)
	}

	for i := range overview.StudentStats {
		stat := overview.StudentStats[i]
		if aggregate.BestPerformingStudent == nil || stat.AttendancePercentage > aggregate.BestPerformingStudent.AttendancePercentage {
			aggregate.BestPerformingStudent = &stat
		}
		if aggregate.WorstPerformingStudent == nil || stat.AttendancePercentage < aggregate.WorstPerformingStudent.AttendancePercentage {
			aggregate.WorstPerformingStudent = &stat
		}
	}
	for i := range overview.SessionStats {
		stat := overview.SessionStats[i]
		if aggregate.MostAttendedSession == nil || stat.AttendancePercentage > aggregate.MostAttendedSession.AttendancePercentage {
			aggregate.MostAttendedSession = &stat
		}
		if aggregate.LeastAttendedSession == nil || stat.AttendancePercentage < aggregate.LeastAttendedSession.AttendancePercentage {
			aggregate.LeastAttendedSession = &stat
		}
	}
	return aggregate, nil
}

// Overview assembles the full dashboard payload for the scope from one
// snapshot read, caching the result per scope.
func (s *StatsService) Overview(ctx context.Context, scope models.Scope) (*models.Overview, error) {
	cacheKey := "stats:overview:" + scope.CacheKey()
	if s.cache != nil {
		var cached models.Overview
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("overview cache read failed", zap.Error(err))
		}
	}

	students, err := s.studentRepo.ListInScope(ctx, scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	sessions, err := s.sessionRepo.ListInScope(ctx, scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	records, err := s.attendanceRepo.ListInScope(ctx, scope, nil, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}

	attendedByStudent := make(map[string]map[string]struct{})
	lateByStudent := make(map[string]int)
	onTimeByStudent := make(map[string]int)
	recordsBySession := make(map[string][]models.AttendanceRecordDetail)
	for _, record := range records {
		set, ok := attendedByStudent[record.StudentID]
		if !ok {
			set = make(map[string]struct{})
			attendedByStudent[record.StudentID] = set
		}
		set[record.SessionID] = struct{}{}
		if record.IsLate {
			lateByStudent[record.StudentID]++
		} else {
			onTimeByStudent[record.StudentID]++
		}
		recordsBySession[record.SessionID] = append(recordsBySession[record.SessionID], record)
	}

	overview := &models.Overview{
		TotalStudents: len(students),
		TotalSessions: len(sessions),
		TodayDate:     time.Now().Format("2006-01-02"),
		Students:      students,
		Sessions:      sessions,
		Records:       records,
		StudentStats:  make([]models.StudentStats, 0, len(students)),
		SessionStats:  make([]models.SessionStats, 0, len(sessions)),
	}
	if overview.Records == nil {
		overview.Records = []models.AttendanceRecordDetail{}
	}

	eligibleCounts, err := s.sessionRepo.EligibleSessionCounts(ctx, scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}

	// Students arrive name-ordered from the repository, which fixes the
	// tie-break order for aggregate extremes.
	for _, student := range students {
		stat := buildStudentStats(student.ID, student.Name, len(attendedByStudent[student.ID]), eligibleCounts[student.ID], lateByStudent[student.ID], onTimeByStudent[student.ID])
		overview.StudentStats = append(overview.StudentStats, *stat)
	}

	for i := range sessions {
		roster, err := s.rosterRepo.Roster(ctx, sessions[i].ClassID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
		}
		stat := buildSessionStats(&sessions[i], roster, recordsBySession[sessions[i].ID])
		overview.SessionStats = append(overview.SessionStats, *stat)
	}

	if s.cache != nil && s.cacheTTL > 0 {
		if err := s.cache.Set(ctx, cacheKey, overview, s.cacheTTL); err != nil {
			s.logger.Warn("overview cache write failed", zap.Error(err))
		}
	}
	return overview, nil
}

// Invalidate drops cached statistics for the scope and for admins, who see
// a superset of every teacher's data.
func (s *StatsService) Invalidate(ctx context.Context, scope models.Scope) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "stats:overview:"+scope.CacheKey()); err != nil {
		s.logger.Warn("stats cache invalidation failed", zap.Error(err))
	}
	if !scope.IsAdmin() {
		if err := s.cache.DeleteByPattern(ctx, "stats:overview:admin"); err != nil {
			s.logger.Warn("stats cache invalidation failed", zap.Error(err))
		}
	}
}
