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

func newSessionMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSessionRepositoryCreateTxInserts(t *testing.T) {
	db, mock, cleanup := newSessionMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO attendance_sessions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := repo.BeginTx(context.Background())
	require.NoError(t, err)

	session := &models.AttendanceSession{CourseID: "c1", Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), Active: true}
	require.NoError(t, repo.CreateTx(context.Background(), tx, session))
	assert.NotEmpty(t, session.ID)
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryCreateTxConflict(t *testing.T) {
	db, mock, cleanup := newSessionMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	// Conflicting insert affects zero rows; the existing row wins.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO attendance_sessions").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	tx, err := repo.BeginTx(context.Background())
	require.NoError(t, err)

	session := &models.AttendanceSession{CourseID: "c1", Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), Active: true}
	err = repo.CreateTx(context.Background(), tx, session)
	require.ErrorIs(t, err, ErrSessionExists)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryFindLatestActive(t *testing.T) {
	db, mock, cleanup := newSessionMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	rows := sqlmock.NewRows([]string{"id", "course_id", "date", "anchor_latitude", "anchor_longitude", "active", "ended_at", "created_by", "created_at", "updated_at"}).
		AddRow("s1", "c1", time.Now(), 5.6037, -0.187, true, nil, nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY date DESC, created_at DESC LIMIT 1")).
		WithArgs("c1").
		WillReturnRows(rows)

	session, err := repo.FindLatestActive(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "s1", session.ID)
	assert.True(t, session.HasAnchor())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryAddPresenceIdempotent(t *testing.T) {
	db, mock, cleanup := newSessionMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec("INSERT INTO presence_records").
		WithArgs("s1", "stu1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO presence_records").
		WithArgs("s1", "stu1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	added, err := repo.AddPresence(context.Background(), "s1", "stu1")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repo.AddPresence(context.Background(), "s1", "stu1")
	require.NoError(t, err)
	assert.False(t, added)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryRosterStatus(t *testing.T) {
	db, mock, cleanup := newSessionMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	rows := sqlmock.NewRows([]string{"student_id", "student_number", "student_name", "present"}).
		AddRow("stu1", "S001", "Named Present", true).
		AddRow("stu2", "S002", "Named Absent", false)
	mock.ExpectQuery("SELECT .+ FROM attendance_sessions a").
		WithArgs("s1").
		WillReturnRows(rows)

	roster, err := repo.RosterStatus(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.True(t, roster[0].Present)
	assert.False(t, roster[1].Present)
	assert.NoError(t, mock.ExpectationsWereMet())
}
