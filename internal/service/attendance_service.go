package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/facetrack/facetrack-api/internal/models"
	appErrors "github.com/facetrack/facetrack-api/pkg/errors"
)

type attendanceRepository interface {
	CreateIfAbsent(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, bool, error)
	FindByStudentSession(ctx context.Context, studentID, sessionID string) (*models.AttendanceRecord, error)
	ListInScope(ctx context.Context, scope models.Scope, from, to *time.Time) ([]models.AttendanceRecordDetail, error)
}

type attendanceSessionRepository interface {
	FindInScope(ctx context.Context, scope models.Scope, id string) (*models.Session, error)
}

type attendanceStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type enrollmentChecker interface {
	IsEnrolled(ctx context.Context, classID, studentID string) (bool, error)
}

type statsInvalidator interface {
	Invalidate(ctx context.Context, scope models.Scope)
}

// AttendanceService owns the write path for attendance records. It enforces
// the at-most-one-record-per-pair rule and the lateness classification; no
// other component writes records.
type AttendanceService struct {
	attendanceRepo attendanceRepository
	sessionRepo    attendanceSessionRepository
	studentRepo    attendanceStudentRepository
	enrollments    enrollmentChecker
	stats          statsInvalidator
	validator      *validator.Validate
	logger         *zap.Logger
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(attendance attendanceRepository, sessions attendanceSessionRepository, students attendanceStudentRepository, enrollments enrollmentChecker, stats statsInvalidator, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		attendanceRepo: attendance,
		sessionRepo:    sessions,
		studentRepo:    students,
		enrollments:    enrollments,
		stats:          stats,
		validator:      validate,
		logger:         logger,
	}
}

// RecordRequest describes a manual attendance marking.
type RecordRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	SessionID string `json:"session_id" validate:"required"`
}

// Record marks the student present for the session. Arrival is strictly
// later than the session start means late; arriving exactly at the start is
// on time. A repeat marking resolves to an already-marked outcome carrying
// the original arrival time, never an error and never a second record.
func (s *AttendanceService) Record(ctx context.Context, scope models.Scope, studentID, sessionID string, arrivedAt time.Time) (*models.AttendanceOutcome, error) {
	session, err := s.sessionRepo.FindInScope(ctx, scope, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}

	student, err := s.studentRepo.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	enrolled, err := s.enrollments.IsEnrolled(ctx, session.ClassID, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	if !enrolled {
		return nil, appErrors.ErrNotEnrolled
	}

	arrival := models.ClockOf(arrivedAt)
	record := &models.AttendanceRecord{
		StudentID:   student.ID,
		SessionID:   session.ID,
		RecordedAt:  arrivedAt.UTC(),
		Date:        session.Date,
		ArrivalTime: arrival,
		IsLate:      arrival.After(session.StartTime),
	}

	stored, inserted, err := s.attendanceRepo.CreateIfAbsent(ctx, record)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	if !inserted {
		// A record already existed or a concurrent capture won the race.
		// Either way the stored record is authoritative.
		existing, err := s.attendanceRepo.FindByStudentSession(ctx, student.ID, session.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
		}
		return &models.AttendanceOutcome{
			Status:      models.AttendanceAlreadyMarked,
			StudentID:   existing.StudentID,
			SessionID:   existing.SessionID,
			ArrivalTime: existing.ArrivalTime,
			IsLate:      existing.IsLate,
		}, nil
	}

	s.logger.Info("attendance recorded",
		zap.String("student_id", stored.StudentID),
		zap.String("session_id", stored.SessionID),
		zap.Bool("is_late", stored.IsLate))
	if s.stats != nil {
		s.stats.Invalidate(ctx, scope)
	}

	return &models.AttendanceOutcome{
		Status:      models.AttendanceMarked,
		StudentID:   stored.StudentID,
		SessionID:   stored.SessionID,
		ArrivalTime: stored.ArrivalTime,
		IsLate:      stored.IsLate,
	}, nil
}

// RecordManual validates a manual marking request and records it with the
// current time as arrival.
func (s *AttendanceService) RecordManual(ctx context.Context, scope models.Scope, req RecordRequest) (*models.AttendanceOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid attendance request: %v", err))
	}
	return s.Record(ctx, scope, req.StudentID, req.SessionID, time.Now())
}

// List returns attendance records visible in the scope, optionally limited
// to a date range.
func (s *AttendanceService) List(ctx context.Context, scope models.Scope, from, to *time.Time) ([]models.AttendanceRecordDetail, error) {
	records, err := s.attendanceRepo.ListInScope(ctx, scope, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	if records == nil {
		records = []models.AttendanceRecordDetail{}
	}
	return records, nil
}
