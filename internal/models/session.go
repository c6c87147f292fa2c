package models

import "time"

// Session is a single scheduled meeting of a class. Sessions are immutable
// once created; there is no reschedule operation.
type Session struct {
	ID        string    `db:"id" json:"id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	Name      string    `db:"name" json:"name"`
	Date      time.Time `db:"date" json:"date"`
	StartTime Clock     `db:"start_time" json:"start_time"`
	EndTime   *Clock    `db:"end_time" json:"end_time,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SessionSummary extends a session with class context and live attendance
// counts for the session picker.
type SessionSummary struct {
	Session
	ClassName       string `db:"class_name" json:"class_name"`
	AttendanceCount int    `db:"attendance_count" json:"attendance_count"`
	TotalStudents   int    `db:"total_students" json:"total_students"`
}
