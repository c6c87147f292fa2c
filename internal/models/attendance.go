package models

import "time"

// AttendanceRecord links one student to one session. At most one record may
// exist per (student, session) pair; the database enforces this with a
// unique constraint so concurrent captures cannot double-book. Records are
// immutable once written.
type AttendanceRecord struct {
	ID          string    `db:"id" json:"id"`
	StudentID   string    `db:"student_id" json:"student_id"`
	SessionID   string    `db:"session_id" json:"session_id"`
	RecordedAt  time.Time `db:"recorded_at" json:"recorded_at"`
	Date        time.Time `db:"date" json:"date"`
	ArrivalTime Clock     `db:"arrival_time" json:"arrival_time"`
	IsLate      bool      `db:"is_late" json:"is_late"`
}

// AttendanceRecordDetail joins student and session context onto a record.
type AttendanceRecordDetail struct {
	AttendanceRecord
	StudentName string  `db:"student_name" json:"student_name"`
	StudentCode *string `db:"student_code" json:"student_code,omitempty"`
	SessionName string  `db:"session_name" json:"session_name"`
	ClassName   string  `db:"class_name" json:"class_name"`
}

// AttendanceStatus is the outcome kind of a record operation.
type AttendanceStatus string

const (
	// AttendanceMarked means a new record was written by this call.
	AttendanceMarked AttendanceStatus = "marked"
	// AttendanceAlreadyMarked means a record already existed; nothing was
	// written and the original arrival time is reported.
	AttendanceAlreadyMarked AttendanceStatus = "already_marked"
)

// AttendanceOutcome is the result of recording attendance. Repeat captures
// of an already-marked student resolve to AlreadyMarked, never an error.
type AttendanceOutcome struct {
	Status      AttendanceStatus `json:"status"`
	StudentID   string           `json:"student_id"`
	SessionID   string           `json:"session_id"`
	ArrivalTime Clock            `json:"arrival_time"`
	IsLate      bool             `json:"is_late"`
}
