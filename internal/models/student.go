package models

import "time"

// Student represents a learner who can be enrolled in courses.
type Student struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	FullName  string    `db:"full_name" json:"full_name"`
	Programme *string   `db:"programme" json:"programme,omitempty"`
	Year      *string   `db:"year" json:"year,omitempty"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates search parameters for listing students.
type StudentFilter struct {
	Search    string
	Programme string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
