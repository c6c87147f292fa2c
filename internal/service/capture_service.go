package service

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/facetrack/facetrack-api/internal/facegate"
	"github.com/facetrack/facetrack-api/internal/models"
	appErrors "github.com/facetrack/facetrack-api/pkg/errors"
)

type recognitionGateway interface {
	Search(ctx context.Context, imageBase64 string) (*facegate.Match, error)
	Skipped() bool
}

type captureStudentRepository interface {
	FindActiveByCode(ctx context.Context, code string) (*models.Student, error)
}

type captureSessionRepository interface {
	FindSummaryInScope(ctx context.Context, scope models.Scope, id string) (*models.SessionSummary, error)
}

type attendanceRecorder interface {
	Record(ctx context.Context, scope models.Scope, studentID, sessionID string, arrivedAt time.Time) (*models.AttendanceOutcome, error)
}

type searchObserver interface {
	ObserveFaceSearch(duration time.Duration)
}

// CaptureStatus classifies the result of a capture frame.
type CaptureStatus string

const (
	CaptureNoMatch        CaptureStatus = "no_match"
	CaptureUnknownStudent CaptureStatus = "unknown_student"
	CaptureMarked         CaptureStatus = "marked"
	CaptureAlreadyMarked  CaptureStatus = "already_marked"
)

// CaptureResult reports what a single frame produced, plus the session's
// running attendance counts so the capture UI can update live.
type CaptureResult struct {
	Status          CaptureStatus             `json:"status"`
	SubjectID       string                    `json:"subject_id,omitempty"`
	Similarity      float64                   `json:"similarity,omitempty"`
	Student         *models.Student           `json:"student,omitempty"`
	Outcome         *models.AttendanceOutcome `json:"outcome,omitempty"`
	AttendanceCount int                       `json:"attendance_count"`
	TotalStudents   int                       `json:"total_students"`
}

// CaptureService drives the camera-to-record flow: decode the frame, ask
// the recognition gateway who it is, and hand the verdict to the
// attendance recorder. Nothing is written before the gateway answers, so a
// gateway failure leaves no partial state.
type CaptureService struct {
	gateway     recognitionGateway
	studentRepo captureStudentRepository
	sessionRepo captureSessionRepository
	recorder    attendanceRecorder
	observer    searchObserver
	logger      *zap.Logger
}

// NewCaptureService constructs the capture service. A nil observer disables
// search latency instrumentation.
func NewCaptureService(gateway recognitionGateway, students captureStudentRepository, sessions captureSessionRepository, recorder attendanceRecorder, observer searchObserver, logger *zap.Logger) *CaptureService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CaptureService{
		gateway:     gateway,
		studentRepo: students,
		sessionRepo: sessions,
		recorder:    recorder,
		observer:    observer,
		logger:      logger,
	}
}

// CaptureRequest is one camera frame aimed at a session.
type CaptureRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	Image     string `json:"image" validate:"required"`
}

// Capture processes one frame against the session.
func (s *CaptureService) Capture(ctx context.Context, scope models.Scope, req CaptureRequest) (*CaptureResult, error) {
	if s.gateway.Skipped() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "face recognition is disabled; mark attendance manually")
	}

	image, err := decodeImagePayload(req.Image)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid image payload")
	}

	session, err := s.sessionRepo.FindSummaryInScope(ctx, scope, req.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}

	searchStart := time.Now()
	match, err := s.gateway.Search(ctx, image)
	if s.observer != nil {
		s.observer.ObserveFaceSearch(time.Since(searchStart))
	}
	if err != nil {
		return nil, err
	}
	if match == nil {
		return &CaptureResult{
			Status:          CaptureNoMatch,
			AttendanceCount: session.AttendanceCount,
			TotalStudents:   session.TotalStudents,
		}, nil
	}

	student, err := s.studentRepo.FindActiveByCode(ctx, match.SubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The gateway knows a face this system has no active student
			// for, typically after a deactivation that outlived the
			// enrolled signature.
			s.logger.Warn("recognized subject has no active student",
				zap.String("subject_id", match.SubjectID))
			return &CaptureResult{
				Status:          CaptureUnknownStudent,
				SubjectID:       match.SubjectID,
				Similarity:      match.Similarity,
				AttendanceCount: session.AttendanceCount,
				TotalStudents:   session.TotalStudents,
			}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}

	outcome, err := s.recorder.Record(ctx, scope, student.ID, session.ID, time.Now())
	if err != nil {
		return nil, err
	}

	result := &CaptureResult{
		SubjectID:       match.SubjectID,
		Similarity:      match.Similarity,
		Student:         student,
		Outcome:         outcome,
		AttendanceCount: session.AttendanceCount,
		TotalStudents:   session.TotalStudents,
	}
	switch outcome.Status {
	case models.AttendanceMarked:
		result.Status = CaptureMarked
		result.AttendanceCount++
	default:
		result.Status = CaptureAlreadyMarked
	}
	return result, nil
}

// decodeImagePayload accepts a raw base64 string or a browser data URL and
// returns the bare base64 content after verifying it decodes.
func decodeImagePayload(payload string) (string, error) {
	payload = strings.TrimSpace(payload)
	if idx := strings.Index(payload, ";base64,"); idx >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[idx+len(";base64,"):]
	}
	if payload == "" {
		return "", errors.New("empty image")
	}
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return "", err
	}
	return payload, nil
}
