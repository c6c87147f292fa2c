package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/facetrack/facetrack-api/internal/models"
	appErrors "github.com/facetrack/facetrack-api/pkg/errors"
)

type classRepositoryIface interface {
	Create(ctx context.Context, class *models.Class) error
	FindForTeacher(ctx context.Context, id, teacherID string) (*models.Class, error)
	ExistsByCode(ctx context.Context, teacherID, code string) (bool, error)
	ListForTeacher(ctx context.Context, teacherID string) ([]models.ClassSummary, error)
	AddStudent(ctx context.Context, classID, studentID string) error
	RemoveStudent(ctx context.Context, classID, studentID string) error
	RemoveStudentFromTeacherClasses(ctx context.Context, studentID, teacherID string) ([]string, error)
	Roster(ctx context.Context, classID string) ([]models.Student, error)
}

type classStudentLookup interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// ClassService manages classes and their membership sets. Membership edits
// never touch attendance records; history survives roster changes.
type ClassService struct {
	classRepo   classRepositoryIface
	studentRepo classStudentLookup
	stats       statsInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewClassService constructs the class service.
func NewClassService(classes classRepositoryIface, students classStudentLookup, stats statsInvalidator, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{
		classRepo:   classes,
		studentRepo: students,
		stats:       stats,
		validator:   validate,
		logger:      logger,
	}
}

// CreateClassRequest describes a new class.
type CreateClassRequest struct {
	Name         string  `json:"name" validate:"required"`
	Code         string  `json:"code" validate:"required"`
	Description  *string `json:"description"`
	AcademicYear string  `json:"academic_year" validate:"required"`
	Semester     string  `json:"semester" validate:"required"`
}

// Create registers a class for the teacher. Codes are unique per teacher.
func (s *ClassService) Create(ctx context.Context, teacherID string, req CreateClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid class: %v", err))
	}

	exists, err := s.classRepo.ExistsByCode(ctx, teacherID, req.Code)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "class code already in use")
	}

	class := &models.Class{
		TeacherID:    teacherID,
		Name:         req.Name,
		Code:         req.Code,
		Description:  req.Description,
		AcademicYear: req.AcademicYear,
		Semester:     req.Semester,
		Active:       true,
	}
	if err := s.classRepo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	s.logger.Info("class created", zap.String("class_id", class.ID), zap.String("teacher_id", teacherID))
	return class, nil
}

// Get returns the teacher's class or not-found.
func (s *ClassService) Get(ctx context.Context, id, teacherID string) (*models.Class, error) {
	class, err := s.classRepo.FindForTeacher(ctx, id, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	return class, nil
}

// List returns the teacher's classes with counts.
func (s *ClassService) List(ctx context.Context, teacherID string) ([]models.ClassSummary, error) {
	classes, err := s.classRepo.ListForTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	if classes == nil {
		classes = []models.ClassSummary{}
	}
	return classes, nil
}

// Roster returns the class's current active members.
func (s *ClassService) Roster(ctx context.Context, id, teacherID string) ([]models.Student, error) {
	if _, err := s.Get(ctx, id, teacherID); err != nil {
		return nil, err
	}
	roster, err := s.classRepo.Roster(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	if roster == nil {
		roster = []models.Student{}
	}
	return roster, nil
}

// AssignStudent places a student into the class. Assigning an existing
// member succeeds without change.
func (s *ClassService) AssignStudent(ctx context.Context, classID, studentID, teacherID string) error {
	if _, err := s.Get(ctx, classID, teacherID); err != nil {
		return err
	}
	student, err := s.studentRepo.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	if !student.Active {
		return appErrors.Clone(appErrors.ErrValidation, "cannot assign an inactive student")
	}
	if err := s.classRepo.AddStudent(ctx, classID, studentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	if s.stats != nil {
		s.stats.Invalidate(ctx, models.TeacherScope(teacherID))
	}
	return nil
}

// RemoveStudent drops a student from the class. Their attendance records
// for past sessions of this class remain and keep counting.
func (s *ClassService) RemoveStudent(ctx context.Context, classID, studentID, teacherID string) error {
	if _, err := s.Get(ctx, classID, teacherID); err != nil {
		return err
	}
	if err := s.classRepo.RemoveStudent(ctx, classID, studentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	if s.stats != nil {
		s.stats.Invalidate(ctx, models.TeacherScope(teacherID))
	}
	return nil
}

// RemoveStudentEverywhere drops the student from every class the teacher
// owns and reports which classes were affected.
func (s *ClassService) RemoveStudentEverywhere(ctx context.Context, studentID, teacherID string) ([]string, error) {
	names, err := s.classRepo.RemoveStudentFromTeacherClasses(ctx, studentID, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	if names == nil {
		names = []string{}
	}
	if s.stats != nil {
		s.stats.Invalidate(ctx, models.TeacherScope(teacherID))
	}
	return names, nil
}
