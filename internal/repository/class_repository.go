package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/facetrack/facetrack-api/internal/models"
)

// ClassRepository manages classes and their student membership set.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

const classColumns = "id, teacher_id, name, code, description, academic_year, semester, active, created_at"

// Create inserts a new class.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	if class.CreatedAt.IsZero() {
		class.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO classes (id, teacher_id, name, code, description, academic_year, semester, active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(ctx, query, class.ID, class.TeacherID, class.Name, class.Code, class.Description, class.AcademicYear, class.Semester, class.Active, class.CreatedAt); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// FindForTeacher returns the class only when owned by the teacher.
func (r *ClassRepository) FindForTeacher(ctx context.Context, id, teacherID string) (*models.Class, error) {
	var class models.Class
	const query = "SELECT " + classColumns + " FROM classes WHERE id = $1 AND teacher_id = $2"
	if err := r.db.GetContext(ctx, &class, query, id, teacherID); err != nil {
		return nil, err
	}
	return &class, nil
}

// ExistsByCode checks code uniqueness within one teacher's classes.
func (r *ClassRepository) ExistsByCode(ctx context.Context, teacherID, code string) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists, "SELECT 1 FROM classes WHERE teacher_id = $1 AND code = $2 LIMIT 1", teacherID, code)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check class code: %w", err)
	}
	return true, nil
}

// ListForTeacher returns the teacher's active classes with roster and
// session counts.
func (r *ClassRepository) ListForTeacher(ctx context.Context, teacherID string) ([]models.ClassSummary, error) {
	const query = `SELECT c.id, c.teacher_id, c.name, c.code, c.description, c.academic_year, c.semester, c.active, c.created_at,
        (SELECT COUNT(*) FROM class_students cs JOIN students s ON s.id = cs.student_id WHERE cs.class_id = c.id AND s.active = TRUE) AS student_count,
        (SELECT COUNT(*) FROM sessions sn WHERE sn.class_id = c.id) AS session_count
        FROM classes c WHERE c.teacher_id = $1 AND c.active = TRUE ORDER BY c.created_at DESC`
	var classes []models.ClassSummary
	if err := r.db.SelectContext(ctx, &classes, query, teacherID); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}

// AddStudent places a student into the class membership set. Adding an
// existing member is a no-op.
func (r *ClassRepository) AddStudent(ctx context.Context, classID, studentID string) error {
	const query = `INSERT INTO class_students (class_id, student_id) VALUES ($1, $2)
ON CONFLICT (class_id, student_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, classID, studentID); err != nil {
		return fmt.Errorf("add student to class: %w", err)
	}
	return nil
}

// RemoveStudent drops a student from the class membership set.
func (r *ClassRepository) RemoveStudent(ctx context.Context, classID, studentID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM class_students WHERE class_id = $1 AND student_id = $2", classID, studentID); err != nil {
		return fmt.Errorf("remove student from class: %w", err)
	}
	return nil
}

// RemoveStudentFromTeacherClasses drops the student from every class owned
// by the teacher and returns the names of the classes left.
func (r *ClassRepository) RemoveStudentFromTeacherClasses(ctx context.Context, studentID, teacherID string) ([]string, error) {
	const query = `DELETE FROM class_students cs
USING classes c
WHERE cs.class_id = c.id AND cs.student_id = $1 AND c.teacher_id = $2
RETURNING c.name`
	var names []string
	if err := r.db.SelectContext(ctx, &names, query, studentID, teacherID); err != nil {
		return nil, fmt.Errorf("remove student from teacher classes: %w", err)
	}
	return names, nil
}

// Roster returns the current active membership of a class in name order.
func (r *ClassRepository) Roster(ctx context.Context, classID string) ([]models.Student, error) {
	const query = `SELECT s.id, s.name, s.code, s.email, s.phone, s.image_path, s.active, s.created_at
FROM students s
JOIN class_students cs ON cs.student_id = s.id
WHERE cs.class_id = $1 AND s.active = TRUE
ORDER BY s.name ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, classID); err != nil {
		return nil, fmt.Errorf("class roster: %w", err)
	}
	return students, nil
}

// IsEnrolled reports whether the active student is currently a member of
// the class.
func (r *ClassRepository) IsEnrolled(ctx context.Context, classID, studentID string) (bool, error) {
	const query = `SELECT 1 FROM class_students cs
JOIN students s ON s.id = cs.student_id
WHERE cs.class_id = $1 AND cs.student_id = $2 AND s.active = TRUE LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, classID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}
