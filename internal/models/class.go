package models

import "time"

// Class groups students under one teacher. Membership is a mutable set;
// there is no historical record of when a student joined or left, which is
// why the statistics engine clamps percentages (see service.StatsService).
type Class struct {
	ID           string    `db:"id" json:"id"`
	TeacherID    string    `db:"teacher_id" json:"teacher_id"`
	Name         string    `db:"name" json:"name"`
	Code         string    `db:"code" json:"code"`
	Description  *string   `db:"description" json:"description,omitempty"`
	AcademicYear string    `db:"academic_year" json:"academic_year"`
	Semester     string    `db:"semester" json:"semester"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// ClassSummary extends a class with roster and session counts.
type ClassSummary struct {
	Class
	StudentCount int `db:"student_count" json:"student_count"`
	SessionCount int `db:"session_count" json:"session_count"`
}
