package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/unihall/attendance-api/internal/models"
)

// SessionRepository manages attendance sessions and their presence sets.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs a SessionRepository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, course_id, date, anchor_latitude, anchor_longitude, active, ended_at, created_by, created_at, updated_at`

// FindByID fetches a session by ID.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.AttendanceSession, error) {
	query := fmt.Sprintf("SELECT %s FROM attendance_sessions WHERE id = $1 LIMIT 1", sessionColumns)
	var session models.AttendanceSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session by id: %w", err)
	}
	return &session, nil
}

// FindByCourseAndDate fetches the session dated exactly date for a course.
func (r *SessionRepository) FindByCourseAndDate(ctx context.Context, courseID string, date time.Time) (*models.AttendanceSession, error) {
	query := fmt.Sprintf("SELECT %s FROM attendance_sessions WHERE course_id = $1 AND date = $2 LIMIT 1", sessionColumns)
	var session models.AttendanceSession
	if err := r.db.GetContext(ctx, &session, query, courseID, date); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session by course and date: %w", err)
	}
	return &session, nil
}

// FindLatestActive returns the most recent still-active session for a
// course, newest date first, then newest creation timestamp.
func (r *SessionRepository) FindLatestActive(ctx context.Context, courseID string) (*models.AttendanceSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_sessions
        WHERE course_id = $1 AND active = TRUE
        ORDER BY date DESC, created_at DESC LIMIT 1`, sessionColumns)
	var session models.AttendanceSession
	if err := r.db.GetContext(ctx, &session, query, courseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find latest active session: %w", err)
	}
	return &session, nil
}

// End closes a session and, in the same transaction, leaves the course
// activity flag to the caller via the returned transaction helpers.
func (r *SessionRepository) End(ctx context.Context, tx *sqlx.Tx, id string, endedAt time.Time) error {
	const query = `UPDATE attendance_sessions SET active = FALSE, ended_at = $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, id, endedAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// CreateTx inserts a session inside an existing transaction.
func (r *SessionRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, session *models.AttendanceSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	const insert = `INSERT INTO attendance_sessions (id, course_id, date, anchor_latitude, anchor_longitude, active, ended_at, created_by, created_at, updated_at)
        VALUES (:id, :course_id, :date, :anchor_latitude, :anchor_longitude, :active, :ended_at, :created_by, :created_at, :updated_at)
        ON CONFLICT (course_id, date) DO NOTHING`
	result, err := tx.NamedExecContext(ctx, insert, session)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert session result: %w", err)
	}
	if inserted == 0 {
		return ErrSessionExists
	}
	return nil
}

// ErrSessionExists signals a (course, date) pair already has a session.
var ErrSessionExists = fmt.Errorf("session already exists for course and date")

// UpdateAnchor records fresh anchor coordinates on a session.
func (r *SessionRepository) UpdateAnchor(ctx context.Context, id string, lat, lon float64) error {
	const query = `UPDATE attendance_sessions SET anchor_latitude = $2, anchor_longitude = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, lat, lon, time.Now().UTC()); err != nil {
		return fmt.Errorf("update session anchor: %w", err)
	}
	return nil
}

// AddPresence marks a student present. The insert is idempotent:
// repeated submissions leave the presence set unchanged.
func (r *SessionRepository) AddPresence(ctx context.Context, sessionID, studentID string) (bool, error) {
	const query = `INSERT INTO presence_records (session_id, student_id, marked_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (session_id, student_id) DO NOTHING`
	result, err := r.db.ExecContext(ctx, query, sessionID, studentID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("add presence: %w", err)
	}
	added, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add presence result: %w", err)
	}
	return added > 0, nil
}

// RemovePresence clears a student's presence mark.
func (r *SessionRepository) RemovePresence(ctx context.Context, sessionID, studentID string) (bool, error) {
	const query = `DELETE FROM presence_records WHERE session_id = $1 AND student_id = $2`
	result, err := r.db.ExecContext(ctx, query, sessionID, studentID)
	if err != nil {
		return false, fmt.Errorf("remove presence: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove presence result: %w", err)
	}
	return removed > 0, nil
}

// RosterStatus lists every enrolled student with a present flag.
func (r *SessionRepository) RosterStatus(ctx context.Context, sessionID string) ([]models.RosterStatusRow, error) {
	const query = `SELECT s.id AS student_id, s.student_id AS student_number, s.full_name AS student_name,
        (p.student_id IS NOT NULL) AS present
        FROM attendance_sessions a
        JOIN enrollments e ON e.course_id = a.course_id
        JOIN students s ON s.id = e.student_id
        LEFT JOIN presence_records p ON p.session_id = a.id AND p.student_id = s.id
        WHERE a.id = $1
        ORDER BY present DESC, s.student_id ASC`
	var rows []models.RosterStatusRow
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("roster status: %w", err)
	}
	return rows, nil
}

// StudentHistory lists sessions where the student was marked present,
// newest first.
func (r *SessionRepository) StudentHistory(ctx context.Context, studentID string) ([]models.AttendanceHistoryRow, error) {
	const query = `SELECT c.code AS course_code, a.date
        FROM presence_records p
        JOIN attendance_sessions a ON a.id = p.session_id
        JOIN courses c ON c.id = a.course_id
        WHERE p.student_id = $1
        ORDER BY a.date DESC, a.created_at DESC`
	var rows []models.AttendanceHistoryRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("student history: %w", err)
	}
	return rows, nil
}

// LecturerHistory lists sessions across a lecturer's courses, newest first.
func (r *SessionRepository) LecturerHistory(ctx context.Context, lecturerID string) ([]models.AttendanceHistoryRow, error) {
	const query = `SELECT c.code AS course_code, a.date
        FROM attendance_sessions a
        JOIN courses c ON c.id = a.course_id
        WHERE c.lecturer_id = $1
        ORDER BY a.date DESC, a.created_at DESC`
	var rows []models.AttendanceHistoryRow
	if err := r.db.SelectContext(ctx, &rows, query, lecturerID); err != nil {
		return nil, fmt.Errorf("lecturer history: %w", err)
	}
	return rows, nil
}

// BeginTx opens a transaction for multi-step session/course updates.
func (r *SessionRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return tx, nil
}
