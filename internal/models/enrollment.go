package models

import "time"

// Enrollment is the membership edge between a student and a course.
type Enrollment struct {
	ID         string    `db:"id" json:"id"`
	CourseID   string    `db:"course_id" json:"course_id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
}

// EnrollmentDetail adds student metadata to the enrollment edge.
type EnrollmentDetail struct {
	Enrollment
	StudentNumber string  `db:"student_number" json:"student_number"`
	StudentName   string  `db:"student_name" json:"student_name"`
	Programme     *string `db:"programme" json:"programme,omitempty"`
}
