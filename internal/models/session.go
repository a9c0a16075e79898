package models

import "time"

// AttendanceSession represents one day's attendance-taking window for a
// course. At most one session exists per (course, date) pair; the
// constraint is enforced by a unique index.
type AttendanceSession struct {
	ID              string     `db:"id" json:"id"`
	CourseID        string     `db:"course_id" json:"course_id"`
	Date            time.Time  `db:"date" json:"date"`
	AnchorLatitude  *float64   `db:"anchor_latitude" json:"anchor_latitude,omitempty"`
	AnchorLongitude *float64   `db:"anchor_longitude" json:"anchor_longitude,omitempty"`
	Active          bool       `db:"active" json:"active"`
	EndedAt         *time.Time `db:"ended_at" json:"ended_at,omitempty"`
	CreatedBy       *string    `db:"created_by" json:"created_by,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// HasAnchor reports whether the session recorded anchor coordinates.
func (s *AttendanceSession) HasAnchor() bool {
	return s.AnchorLatitude != nil && s.AnchorLongitude != nil
}

// IsOpen reports whether the session still accepts check-ins at the
// given instant: the active flag holds, the session has not been ended,
// and the hard duration cap since creation has not elapsed.
func (s *AttendanceSession) IsOpen(now time.Time, maxDuration time.Duration) bool {
	if !s.Active {
		return false
	}
	if s.EndedAt != nil && !s.EndedAt.After(now) {
		return false
	}
	return now.Before(s.CreatedAt.Add(maxDuration))
}

// PresenceRecord marks a student present in a session. Writes are
// idempotent: inserting the same pair twice has no additional effect.
type PresenceRecord struct {
	SessionID string    `db:"session_id" json:"session_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	MarkedAt  time.Time `db:"marked_at" json:"marked_at"`
}

// RosterStatusRow reports one enrolled student's presence for a session.
type RosterStatusRow struct {
	StudentID     string `db:"student_id" json:"student_id"`
	StudentNumber string `db:"student_number" json:"student_number"`
	StudentName   string `db:"student_name" json:"student_name"`
	Present       bool   `db:"present" json:"present"`
}

// AttendanceHistoryRow is one session a student attended or a lecturer
// ran, grouped by course code in history responses.
type AttendanceHistoryRow struct {
	CourseCode string    `db:"course_code" json:"course_code"`
	Date       time.Time `db:"date" json:"date"`
}

// CourseHistory groups attendance dates under a course code.
type CourseHistory struct {
	CourseCode  string   `json:"course_code"`
	Attendances []string `json:"attendances"`
}
