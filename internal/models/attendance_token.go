package models

import "time"

// AttendanceToken is a short-lived shared secret that students enter or
// scan to check in to a course's open session. Token strings are
// globally unique across all courses.
type AttendanceToken struct {
	ID          string    `db:"id" json:"id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	Token       string    `db:"token" json:"token"`
	GeneratedAt time.Time `db:"generated_at" json:"generated_at"`
	ExpiresAt   time.Time `db:"expires_at" json:"expires_at"`
	Active      bool      `db:"active" json:"active"`
	QRPNG       *string   `db:"qr_png" json:"qr_png,omitempty"`
}

// Usable reports whether the token may still authorize check-ins at the
// given instant. Expiry is evaluated against now on every read, not
// just against the stored flag.
func (t *AttendanceToken) Usable(now time.Time) bool {
	return t.Active && t.ExpiresAt.After(now)
}
