package models

import "time"

// Course represents a taught unit identified by its unique code.
// Active is forced true whenever an attendance session for the course
// is started; it is not cleared when a session ends.
type Course struct {
	ID         string    `db:"id" json:"id"`
	Code       string    `db:"code" json:"code"`
	Name       string    `db:"name" json:"name"`
	LecturerID string    `db:"lecturer_id" json:"lecturer_id"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// CourseDetail extends Course with lecturer metadata.
type CourseDetail struct {
	Course
	LecturerName    *string `db:"lecturer_name" json:"lecturer_name,omitempty"`
	LecturerStaffID *string `db:"lecturer_staff_id" json:"lecturer_staff_id,omitempty"`
}

// CourseFilter encapsulates search parameters for listing courses.
type CourseFilter struct {
	Search     string
	LecturerID string
	Active     *bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
