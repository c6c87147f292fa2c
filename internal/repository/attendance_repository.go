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

// AttendanceRepository persists attendance records. All writes go through
// CreateIfAbsent, which relies on the (student_id, session_id) unique
// constraint for serialization under concurrent captures.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const attendanceColumns = "id, student_id, session_id, recorded_at, date, arrival_time, is_late"

// CreateIfAbsent writes the record unless one already exists for the same
// (student, session) pair. The boolean reports whether this call inserted;
// when false with a nil record, a concurrent writer won the race and the
// caller should re-read.
func (r *AttendanceRepository) CreateIfAbsent(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, bool, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}
	const query = `INSERT INTO attendance_records (id, student_id, session_id, recorded_at, date, arrival_time, is_late)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (student_id, session_id) DO NOTHING
RETURNING ` + attendanceColumns
	var stored models.AttendanceRecord
	err := r.db.GetContext(ctx, &stored, query, record.ID, record.StudentID, record.SessionID, record.RecordedAt, record.Date, record.ArrivalTime, record.IsLate)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("insert attendance record: %w", err)
	}
	return &stored, true, nil
}

// FindByStudentSession returns the record for the pair, or sql.ErrNoRows.
func (r *AttendanceRepository) FindByStudentSession(ctx context.Context, studentID, sessionID string) (*models.AttendanceRecord, error) {
	const query = "SELECT " + attendanceColumns + " FROM attendance_records WHERE student_id = $1 AND session_id = $2"
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, studentID, sessionID); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListInScope returns all records visible in the scope with student and
// session context, optionally restricted to a date range.
func (r *AttendanceRepository) ListInScope(ctx context.Context, scope models.Scope, from, to *time.Time) ([]models.AttendanceRecordDetail, error) {
	query := `SELECT ar.id, ar.student_id, ar.session_id, ar.recorded_at, ar.date, ar.arrival_time, ar.is_late,
        s.name AS student_name, s.code AS student_code, sn.name AS session_name, c.name AS class_name
        FROM attendance_records ar
        JOIN students s ON s.id = ar.student_id
        JOIN sessions sn ON sn.id = ar.session_id
        JOIN classes c ON c.id = sn.class_id
        WHERE 1=1`
	args := []interface{}{}
	if teacherID, ok := scope.TeacherID(); ok {
		query += fmt.Sprintf(" AND sn.teacher_id = $%d", len(args)+1)
		args = append(args, teacherID)
	}
	if from != nil {
		query += fmt.Sprintf(" AND ar.date >= $%d", len(args)+1)
		args = append(args, *from)
	}
	if to != nil {
		query += fmt.Sprintf(" AND ar.date <= $%d", len(args)+1)
		args = append(args, *to)
	}
	query += " ORDER BY ar.recorded_at ASC"

	var records []models.AttendanceRecordDetail
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance records: %w", err)
	}
	return records, nil
}

// ListBySession returns the records for one session with student context.
func (r *AttendanceRepository) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecordDetail, error) {
	const query = `SELECT ar.id, ar.student_id, ar.session_id, ar.recorded_at, ar.date, ar.arrival_time, ar.is_late,
        s.name AS student_name, s.code AS student_code, sn.name AS session_name, c.name AS class_name
        FROM attendance_records ar
        JOIN students s ON s.id = ar.student_id
        JOIN sessions sn ON sn.id = ar.session_id
        JOIN classes c ON c.id = sn.class_id
        WHERE ar.session_id = $1
        ORDER BY s.name ASC`
	var records []models.AttendanceRecordDetail
	if err := r.db.SelectContext(ctx, &records, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session attendance: %w", err)
	}
	return records, nil
}

// DistinctAttendedSessionIDs returns the distinct sessions a student holds
// records for within the scope. The uniqueness constraint makes this equal
// to the raw record count, but distinct is computed defensively.
func (r *AttendanceRepository) DistinctAttendedSessionIDs(ctx context.Context, scope models.Scope, studentID string) ([]string, error) {
	query := `SELECT DISTINCT ar.session_id FROM attendance_records ar
JOIN sessions sn ON sn.id = ar.session_id
WHERE ar.student_id = $1`
	args := []interface{}{studentID}
	if teacherID, ok := scope.TeacherID(); ok {
		query += fmt.Sprintf(" AND sn.teacher_id = $%d", len(args)+1)
		args = append(args, teacherID)
	}
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("distinct attended sessions: %w", err)
	}
	return ids, nil
}

// CountBySession returns the number of distinct students recorded for a
// session.
func (r *AttendanceRepository) CountBySession(ctx context.Context, sessionID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(DISTINCT student_id) FROM attendance_records WHERE session_id = $1", sessionID); err != nil {
		return 0, fmt.Errorf("count session attendance: %w", err)
	}
	return count, nil
}
