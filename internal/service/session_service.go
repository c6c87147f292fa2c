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

type sessionRepositoryIface interface {
	Create(ctx context.Context, session *models.Session) error
	FindSummaryInScope(ctx context.Context, scope models.Scope, id string) (*models.SessionSummary, error)
	ListInScope(ctx context.Context, scope models.Scope) ([]models.SessionSummary, error)
	ListUpcoming(ctx context.Context, teacherID string, from, to time.Time) ([]models.SessionSummary, error)
}

type sessionClassLookup interface {
	FindForTeacher(ctx context.Context, id, teacherID string) (*models.Class, error)
}

// SessionService manages attendance sessions.
type SessionService struct {
	sessionRepo sessionRepositoryIface
	classRepo   sessionClassLookup
	stats       statsInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewSessionService constructs the session service.
func NewSessionService(sessions sessionRepositoryIface, classes sessionClassLookup, stats statsInvalidator, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		sessionRepo: sessions,
		classRepo:   classes,
		stats:       stats,
		validator:   validate,
		logger:      logger,
	}
}

// CreateSessionRequest schedules one class meeting. Times are time-of-day
// strings, "HH:MM" or "HH:MM:SS".
type CreateSessionRequest struct {
	ClassID   string `json:"class_id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Date      string `json:"date" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time"`
}

// Create schedules a session for one of the teacher's classes.
func (s *SessionService) Create(ctx context.Context, teacherID string, req CreateSessionRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid session: %v", err))
	}

	class, err := s.classRepo.FindForTeacher(ctx, req.ClassID, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date, expected YYYY-MM-DD")
	}
	start, err := models.ParseClock(req.StartTime)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid start time")
	}
	var end *models.Clock
	if req.EndTime != "" {
		parsed, err := models.ParseClock(req.EndTime)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid end time")
		}
		if !parsed.After(start) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "end time must be after start time")
		}
		end = &parsed
	}

	session := &models.Session{
		ClassID:   class.ID,
		TeacherID: teacherID,
		Name:      req.Name,
		Date:      date,
		StartTime: start,
		EndTime:   end,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	if s.stats != nil {
		s.stats.Invalidate(ctx, models.TeacherScope(teacherID))
	}
	s.logger.Info("session created",
		zap.String("session_id", session.ID),
		zap.String("class_id", class.ID),
		zap.String("date", req.Date))
	return session, nil
}

// Get returns one session summary within the scope.
func (s *SessionService) Get(ctx context.Context, scope models.Scope, id string) (*models.SessionSummary, error) {
	session, err := s.sessionRepo.FindSummaryInScope(ctx, scope, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	return session, nil
}

// List returns sessions visible in the scope, most recent first.
func (s *SessionService) List(ctx context.Context, scope models.Scope) ([]models.SessionSummary, error) {
	sessions, err := s.sessionRepo.ListInScope(ctx, scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	if sessions == nil {
		sessions = []models.SessionSummary{}
	}
	return sessions, nil
}

// Upcoming returns the teacher's sessions for the next seven days, today
// included, for the capture session picker.
func (s *SessionService) Upcoming(ctx context.Context, teacherID string) ([]models.SessionSummary, error) {
	today := time.Now().Truncate(24 * time.Hour)
	sessions, err := s.sessionRepo.ListUpcoming(ctx, teacherID, today, today.AddDate(0, 0, 7))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	if sessions == nil {
		sessions = []models.SessionSummary{}
	}
	return sessions, nil
}
