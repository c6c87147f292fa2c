package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/facetrack/facetrack-api/internal/models"
)

// StudentRepository manages persistence for students.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = "id, name, code, email, phone, image_path, active, created_at"

// Create inserts a new student.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	if student.CreatedAt.IsZero() {
		student.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO students (id, name, code, email, phone, image_path, active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(ctx, query, student.ID, student.Name, student.Code, student.Email, student.Phone, student.ImagePath, student.Active, student.CreatedAt); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// FindByID returns a student by id.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	if err := r.db.GetContext(ctx, &student, "SELECT "+studentColumns+" FROM students WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindActiveByCode resolves a recognition gateway verdict to a student.
func (r *StudentRepository) FindActiveByCode(ctx context.Context, code string) (*models.Student, error) {
	var student models.Student
	if err := r.db.GetContext(ctx, &student, "SELECT "+studentColumns+" FROM students WHERE code = $1 AND active = TRUE", code); err != nil {
		return nil, err
	}
	return &student, nil
}

// List returns students visible in the scope, paginated. Teacher scopes see
// students enrolled in any of their classes; admins see everyone.
func (r *StudentRepository) List(ctx context.Context, scope models.Scope, filter models.StudentFilter) ([]models.Student, int, error) {
	base := "FROM students s"
	where := []string{"1=1"}
	args := []interface{}{}

	if teacherID, ok := scope.TeacherID(); ok {
		base += ` JOIN class_students cs ON cs.student_id = s.id
JOIN classes c ON c.id = cs.class_id`
		where = append(where, fmt.Sprintf("c.teacher_id = $%d", len(args)+1))
		args = append(args, teacherID)
	}
	if filter.Active != nil {
		where = append(where, fmt.Sprintf("s.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("LOWER(s.name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT DISTINCT s.id, s.name, s.code, s.email, s.phone, s.image_path, s.active, s.created_at
        %s WHERE %s ORDER BY s.name ASC LIMIT %d OFFSET %d`, base, whereClause, size, offset)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(DISTINCT s.id) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// ListInScope returns every active student in the scope ordered by name.
// Name order makes downstream statistics iteration stable.
func (r *StudentRepository) ListInScope(ctx context.Context, scope models.Scope) ([]models.Student, error) {
	var students []models.Student
	if teacherID, ok := scope.TeacherID(); ok {
		const query = `SELECT DISTINCT s.id, s.name, s.code, s.email, s.phone, s.image_path, s.active, s.created_at
FROM students s
JOIN class_students cs ON cs.student_id = s.id
JOIN classes c ON c.id = cs.class_id
WHERE s.active = TRUE AND c.teacher_id = $1
ORDER BY s.name ASC`
		if err := r.db.SelectContext(ctx, &students, query, teacherID); err != nil {
			return nil, fmt.Errorf("list scoped students: %w", err)
		}
		return students, nil
	}
	const query = "SELECT " + studentColumns + " FROM students WHERE active = TRUE ORDER BY name ASC"
	if err := r.db.SelectContext(ctx, &students, query); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// Deactivate soft-deletes a student, preserving attendance history.
func (r *StudentRepository) Deactivate(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "UPDATE students SET active = FALSE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deactivate student: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

// DeletePermanently removes a student and, by cascade of the transaction,
// their memberships and attendance records. Used only for hard removal; the
// normal path is Deactivate.
func (r *StudentRepository) DeletePermanently(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete student: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM attendance_records WHERE student_id = $1", id); err != nil {
		return fmt.Errorf("delete student attendance: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM class_students WHERE student_id = $1", id); err != nil {
		return fmt.Errorf("delete student memberships: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM students WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete student: %w", err)
	}
	committed = true
	return nil
}

// AddToTeacherClasses enrolls the student into every active class owned by
// the teacher. Existing memberships are left untouched.
func (r *StudentRepository) AddToTeacherClasses(ctx context.Context, studentID, teacherID string) error {
	const query = `INSERT INTO class_students (class_id, student_id)
SELECT id, $1 FROM classes WHERE teacher_id = $2 AND active = TRUE
ON CONFLICT (class_id, student_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, studentID, teacherID); err != nil {
		return fmt.Errorf("enroll student in teacher classes: %w", err)
	}
	return nil
}
