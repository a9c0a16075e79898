package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unihall/attendance-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryIsEnrolled(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE course_id = $1 AND student_id = $2 LIMIT 1")).
		WithArgs("course-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	enrolled, err := repo.IsEnrolled(context.Background(), "course-1", "stu-1")
	require.NoError(t, err)
	assert.True(t, enrolled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryIsEnrolledMissing(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE course_id = $1 AND student_id = $2 LIMIT 1")).
		WithArgs("course-1", "stu-9").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	enrolled, err := repo.IsEnrolled(context.Background(), "course-1", "stu-9")
	require.NoError(t, err)
	assert.False(t, enrolled)
}

func TestEnrollmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnResult(sqlmock.NewResult(0, 1))

	enrollment := &models.Enrollment{CourseID: "course-1", StudentID: "stu-1"}
	err := repo.Create(context.Background(), enrollment)
	require.NoError(t, err)
	assert.NotEmpty(t, enrollment.ID)
	assert.False(t, enrollment.EnrolledAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListByCourse(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "course_id", "student_id", "enrolled_at", "student_number", "student_name", "programme"}).
		AddRow("enr-1", "course-1", "stu-1", time.Now(), "S1001", "Ada", nil).
		AddRow("enr-2", "course-1", "stu-2", time.Now(), "S1002", "Ben", nil)
	mock.ExpectQuery("SELECT e.id, e.course_id, e.student_id, e.enrolled_at").
		WithArgs("course-1").
		WillReturnRows(rows)

	roster, err := repo.ListByCourse(context.Background(), "course-1")
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, "S1001", roster[0].StudentNumber)
}

func TestEnrollmentRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enrollments WHERE course_id = $1 AND student_id = $2")).
		WithArgs("course-1", "stu-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Delete(context.Background(), "course-1", "stu-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
