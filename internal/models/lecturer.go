package models

import "time"

// Lecturer represents teaching staff who own courses and run sessions.
// Latitude/Longitude hold the last-known location recorded when the
// lecturer issues a check-in token; they anchor the proximity check.
type Lecturer struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	StaffID    string    `db:"staff_id" json:"staff_id"`
	FullName   string    `db:"full_name" json:"full_name"`
	Department *string   `db:"department" json:"department,omitempty"`
	Phone      *string   `db:"phone" json:"phone,omitempty"`
	Latitude   *float64  `db:"latitude" json:"latitude,omitempty"`
	Longitude  *float64  `db:"longitude" json:"longitude,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// HasLocation reports whether the lecturer has recorded coordinates.
func (l *Lecturer) HasLocation() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// LecturerFilter encapsulates search parameters for listing lecturers.
type LecturerFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
