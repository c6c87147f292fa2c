package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/facetrack/facetrack-api/internal/models"
)

// SessionRepository manages attendance sessions. Sessions are insert-only;
// there is no update path.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionSummarySelect = `SELECT sn.id, sn.class_id, sn.teacher_id, sn.name, sn.date, sn.start_time, sn.end_time, sn.created_at,
        c.name AS class_name,
        (SELECT COUNT(DISTINCT ar.student_id) FROM attendance_records ar WHERE ar.session_id = sn.id) AS attendance_count,
        (SELECT COUNT(*) FROM class_students cs JOIN students s ON s.id = cs.student_id WHERE cs.class_id = sn.class_id AND s.active = TRUE) AS total_students
        FROM sessions sn JOIN classes c ON c.id = sn.class_id`

// Create inserts a new session.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO sessions (id, class_id, teacher_id, name, date, start_time, end_time, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(ctx, query, session.ID, session.ClassID, session.TeacherID, session.Name, session.Date, session.StartTime, session.EndTime, session.CreatedAt); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// FindInScope returns the session when it is visible in the scope. For a
// teacher scope the session must be owned by that teacher; not-found
// otherwise, so foreign sessions stay invisible.
func (r *SessionRepository) FindInScope(ctx context.Context, scope models.Scope, id string) (*models.Session, error) {
	const columns = "id, class_id, teacher_id, name, date, start_time, end_time, created_at"
	var session models.Session
	if teacherID, ok := scope.TeacherID(); ok {
		err := r.db.GetContext(ctx, &session, "SELECT "+columns+" FROM sessions WHERE id = $1 AND teacher_id = $2", id, teacherID)
		if err != nil {
			return nil, err
		}
		return &session, nil
	}
	if err := r.db.GetContext(ctx, &session, "SELECT "+columns+" FROM sessions WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindSummaryInScope returns one session with class context and counts,
// under the same visibility rule as FindInScope.
func (r *SessionRepository) FindSummaryInScope(ctx context.Context, scope models.Scope, id string) (*models.SessionSummary, error) {
	query := sessionSummarySelect + " WHERE sn.id = $1"
	args := []interface{}{id}
	if teacherID, ok := scope.TeacherID(); ok {
		query += " AND sn.teacher_id = $2"
		args = append(args, teacherID)
	}
	var summary models.SessionSummary
	if err := r.db.GetContext(ctx, &summary, query, args...); err != nil {
		return nil, err
	}
	return &summary, nil
}

// ListInScope returns every session in the scope, most recent first, with
// class context and live counts.
func (r *SessionRepository) ListInScope(ctx context.Context, scope models.Scope) ([]models.SessionSummary, error) {
	query := sessionSummarySelect
	args := []interface{}{}
	if teacherID, ok := scope.TeacherID(); ok {
		query += " WHERE sn.teacher_id = $1"
		args = append(args, teacherID)
	}
	query += " ORDER BY sn.date DESC, sn.start_time DESC"

	var sessions []models.SessionSummary
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// ListUpcoming returns a teacher's sessions between the two dates inclusive,
// soonest first. Used by the session picker ahead of a capture.
func (r *SessionRepository) ListUpcoming(ctx context.Context, teacherID string, from, to time.Time) ([]models.SessionSummary, error) {
	query := sessionSummarySelect + ` WHERE sn.teacher_id = $1 AND sn.date >= $2 AND sn.date <= $3
        ORDER BY sn.date ASC, sn.start_time ASC`
	var sessions []models.SessionSummary
	if err := r.db.SelectContext(ctx, &sessions, query, teacherID, from, to); err != nil {
		return nil, fmt.Errorf("list upcoming sessions: %w", err)
	}
	return sessions, nil
}

// EligibleSessionIDs returns the ids of sessions belonging to classes the
// student is currently a member of, restricted to the scope. This is the
// "current membership" half of the eligibility denominator.
func (r *SessionRepository) EligibleSessionIDs(ctx context.Context, scope models.Scope, studentID string) ([]string, error) {
	base := `SELECT sn.id FROM sessions sn
JOIN class_students cs ON cs.class_id = sn.class_id
WHERE cs.student_id = $1`
	args := []interface{}{studentID}
	if teacherID, ok := scope.TeacherID(); ok {
		base += fmt.Sprintf(" AND sn.teacher_id = $%d", len(args)+1)
		args = append(args, teacherID)
	}
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, base, args...); err != nil {
		return nil, fmt.Errorf("eligible session ids: %w", err)
	}
	return ids, nil
}

// EligibleSessionCounts returns, per student, the number of sessions their
// current class memberships cover, restricted to the scope. One grouped
// read backs the dashboard regardless of roster size.
func (r *SessionRepository) EligibleSessionCounts(ctx context.Context, scope models.Scope) (map[string]int, error) {
	base := `SELECT cs.student_id, COUNT(sn.id) AS session_count FROM class_students cs
JOIN sessions sn ON sn.class_id = cs.class_id`
	args := []interface{}{}
	if teacherID, ok := scope.TeacherID(); ok {
		base += " WHERE sn.teacher_id = $1"
		args = append(args, teacherID)
	}
	base += " GROUP BY cs.student_id"

	var rows []struct {
		StudentID    string `db:"student_id"`
		SessionCount int    `db:"session_count"`
	}
	if err := r.db.SelectContext(ctx, &rows, base, args...); err != nil {
		return nil, fmt.Errorf("eligible session counts: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.StudentID] = row.SessionCount
	}
	return counts, nil
}
