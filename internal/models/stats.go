package models

// StudentStats summarises one student's attendance across a scope.
//
// EligibleSessions is the denominator policy for the whole system: the
// larger of the distinct sessions the student actually attended and the
// sessions of classes the student is currently enrolled in. It is never
// smaller than SessionsAttended, so the percentage can never exceed 100.
type StudentStats struct {
	StudentID            string  `json:"student_id"`
	StudentName          string  `json:"student_name"`
	SessionsAttended     int     `json:"sessions_attended"`
	EligibleSessions     int     `json:"eligible_sessions"`
	TimesLate            int     `json:"times_late"`
	TimesOnTime          int     `json:"times_on_time"`
	AttendancePercentage float64 `json:"attendance_percentage"`
}

// SessionStats partitions a session's eligible students by presence and
// punctuality. PresentStudents and AbsentStudents are disjoint and their
// union is the eligible set; LateStudents and OnTimeStudents partition
// PresentStudents.
type SessionStats struct {
	SessionID            string   `json:"session_id"`
	SessionName          string   `json:"session_name"`
	ClassName            string   `json:"class_name"`
	Date                 string   `json:"date"`
	StartTime            Clock    `json:"start_time"`
	EndTime              *Clock   `json:"end_time,omitempty"`
	PresentStudents      []string `json:"present_students"`
	AbsentStudents       []string `json:"absent_students"`
	LateStudents         []string `json:"late_students"`
	OnTimeStudents       []string `json:"on_time_students"`
	PresentCount         int      `json:"present_count"`
	AbsentCount          int      `json:"absent_count"`
	EligibleCount        int      `json:"eligible_count"`
	AttendancePercentage float64  `json:"attendance_percentage"`
}

// AggregateStats is the system-wide, on-demand view over a scope. Ties on
// best/worst and most/least are broken by first encountered in name order.
type AggregateStats struct {
	TotalRecords           int           `json:"total_records"`
	LatePercentage         float64       `json:"late_percentage"`
	BestPerformingStudent  *StudentStats `json:"best_performing_student,omitempty"`
	WorstPerformingStudent *StudentStats `json:"worst_performing_student,omitempty"`
	MostAttendedSession    *SessionStats `json:"most_attended_session,omitempty"`
	LeastAttendedSession   *SessionStats `json:"least_attended_session,omitempty"`
}

// Overview is the complete dashboard payload for a scope: raw entities plus
// derived statistics, computed from one snapshot read.
type Overview struct {
	TotalStudents int                      `json:"total_students"`
	TotalSessions int                      `json:"total_sessions"`
	TodayDate     string                   `json:"today_date"`
	Students      []Student                `json:"students"`
	Sessions      []SessionSummary         `json:"sessions"`
	Records       []AttendanceRecordDetail `json:"records"`
	StudentStats  []StudentStats           `json:"student_statistics"`
	SessionStats  []SessionStats           `json:"session_details"`
}
