package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/facetrack/facetrack-api/internal/models"
	"github.com/facetrack/facetrack-api/internal/repository"
	appErrors "github.com/facetrack/facetrack-api/pkg/errors"
)

type studentRepositoryIface interface {
	Create(ctx context.Context, student *models.Student) error
	FindByID(ctx context.Context, id string) (*models.Student, error)
	List(ctx context.Context, scope models.Scope, filter models.StudentFilter) ([]models.Student, int, error)
	Deactivate(ctx context.Context, id string) error
	DeletePermanently(ctx context.Context, id string) error
	AddToTeacherClasses(ctx context.Context, studentID, teacherID string) error
}

type faceEnroller interface {
	Enroll(ctx context.Context, subjectID, imageBase64 string) error
	Delete(ctx context.Context, subjectID string) error
}

// StudentService manages the student lifecycle, keeping the recognition
// gateway's subject set in step with the student roster.
type StudentService struct {
	studentRepo studentRepositoryIface
	gateway     faceEnroller
	stats       statsInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(students studentRepositoryIface, gateway faceEnroller, stats statsInvalidator, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		studentRepo: students,
		gateway:     gateway,
		stats:       stats,
		validator:   validate,
		logger:      logger,
	}
}

// CreateStudentRequest registers a new student, optionally with a face
// image to enroll at the gateway.
type CreateStudentRequest struct {
	Name  string  `json:"name" validate:"required"`
	Code  string  `json:"code" validate:"required"`
	Email *string `json:"email" validate:"omitempty,email"`
	Phone *string `json:"phone"`
	Image string  `json:"image"`
}

// Create registers the student, enrolls the face when an image is given,
// and places the student into every active class of the creating teacher.
func (s *StudentService) Create(ctx context.Context, scope models.Scope, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid student: %v", err))
	}

	student := &models.Student{
		Name:   req.Name,
		Code:   &req.Code,
		Email:  req.Email,
		Phone:  req.Phone,
		Active: true,
	}
	if err := s.studentRepo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}

	if req.Image != "" {
		image, err := decodeImagePayload(req.Image)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid face image")
		}
		if err := s.gateway.Enroll(ctx, req.Code, image); err != nil {
			s.logger.Warn("face enrollment failed, student created without signature",
				zap.String("student_id", student.ID),
				zap.Error(err))
		}
	}

	if teacherID, ok := scope.TeacherID(); ok {
		if err := s.studentRepo.AddToTeacherClasses(ctx, student.ID, teacherID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
		}
	}

	if s.stats != nil {
		s.stats.Invalidate(ctx, scope)
	}
	s.logger.Info("student created", zap.String("student_id", student.ID), zap.String("code", req.Code))
	return student, nil
}

// Get returns one student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.studentRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	return student, nil
}

// List returns students in the scope with pagination metadata.
func (s *StudentService) List(ctx context.Context, scope models.Scope, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.studentRepo.List(ctx, scope, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	if students == nil {
		students = []models.Student{}
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Deactivate soft-deletes the student. Attendance history and the derived
// statistics stay intact; only future captures stop matching.
func (s *StudentService) Deactivate(ctx context.Context, scope models.Scope, id string) error {
	if err := s.studentRepo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNoRowsAffected) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	if s.stats != nil {
		s.stats.Invalidate(ctx, scope)
	}
	return nil
}

// DeletePermanently removes the student, their memberships, their records
// and their face signature. Admin only; the normal path is Deactivate.
func (s *StudentService) DeletePermanently(ctx context.Context, scope models.Scope, id string) error {
	student, err := s.studentRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}

	if err := s.studentRepo.DeletePermanently(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	if student.Code != nil {
		if err := s.gateway.Delete(ctx, *student.Code); err != nil {
			s.logger.Warn("face signature cleanup failed",
				zap.String("student_id", id),
				zap.Error(err))
		}
	}
	if s.stats != nil {
		s.stats.Invalidate(ctx, scope)
	}
	s.logger.Info("student permanently deleted", zap.String("student_id", id))
	return nil
}
