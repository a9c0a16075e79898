package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/unihall/attendance-api/internal/audit"
	"github.com/unihall/attendance-api/internal/dto"
	"github.com/unihall/attendance-api/internal/models"
	"github.com/unihall/attendance-api/internal/repository"
	appErrors "github.com/unihall/attendance-api/pkg/errors"
	"github.com/unihall/attendance-api/pkg/geo"
)

type sessionStore interface {
	FindByID(ctx context.Context, id string) (*models.AttendanceSession, error)
	FindLatestActive(ctx context.Context, courseID string) (*models.AttendanceSession, error)
	FindByCourseAndDate(ctx context.Context, courseID string, date time.Time) (*models.AttendanceSession, error)
	CreateTx(ctx context.Context, tx *sqlx.Tx, session *models.AttendanceSession) error
	End(ctx context.Context, tx *sqlx.Tx, id string, endedAt time.Time) error
	UpdateAnchor(ctx context.Context, id string, lat, lon float64) error
	AddPresence(ctx context.Context, sessionID, studentID string) (bool, error)
	RemovePresence(ctx context.Context, sessionID, studentID string) (bool, error)
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
}

type sessionCourseStore interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	SetActiveTx(ctx context.Context, tx *sqlx.Tx, id string, active bool) error
}

type sessionLecturerReader interface {
	FindByUserID(ctx context.Context, userID string) (*models.Lecturer, error)
}

// SessionServiceConfig bounds session lifetimes.
type SessionServiceConfig struct {
	MaxDuration time.Duration
}

// SessionService manages the attendance session lifecycle. Starting a
// session marks its course active; both writes happen in one
// transaction so a crash cannot leave the pair half applied.
type SessionService struct {
	sessions  sessionStore
	courses   sessionCourseStore
	lecturers sessionLecturerReader
	auditor   audit.Recorder
	validator *validator.Validate
	logger    *zap.Logger
	config    SessionServiceConfig
}

// NewSessionService constructs a SessionService.
func NewSessionService(sessions sessionStore, courses sessionCourseStore, lecturers sessionLecturerReader, auditor audit.Recorder, validate *validator.Validate, logger *zap.Logger, config SessionServiceConfig) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if auditor == nil {
		auditor = audit.Nop()
	}
	if config.MaxDuration <= 0 {
		config.MaxDuration = 4 * time.Hour
	}
	return &SessionService{sessions: sessions, courses: courses, lecturers: lecturers, auditor: auditor, validator: validate, logger: logger, config: config}
}

// Start opens a session for the lecturer's course dated today and
// marks the course active. If today's session already exists and is
// still open it is returned as is; a closed one is a conflict.
func (s *SessionService) Start(ctx context.Context, userID string, req dto.StartSessionRequest) (*models.AttendanceSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session request")
	}

	lecturer, err := s.lecturers.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "no lecturer profile for this account")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lecturer")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.LecturerID != lecturer.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course belongs to another lecturer")
	}

	if req.Latitude != nil && req.Longitude != nil {
		anchor := geo.Point{Lat: *req.Latitude, Lon: *req.Longitude}
		if !anchor.Valid() {
			return nil, appErrors.Clone(appErrors.ErrInvalidCoordinate, "invalid anchor coordinates")
		}
	}

	now := time.Now().UTC()
	session := &models.AttendanceSession{
		CourseID:        course.ID,
		Date:            now.Truncate(24 * time.Hour),
		AnchorLatitude:  req.Latitude,
		AnchorLongitude: req.Longitude,
		Active:          true,
		CreatedBy:       &userID,
	}

	tx, err := s.sessions.BeginTx(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.sessions.CreateTx(ctx, tx, session); err != nil {
		if errors.Is(err, repository.ErrSessionExists) {
			return s.reuseExistingSession(ctx, course.ID, session.Date, now, req.Latitude, req.Longitude)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}

	if err := s.courses.SetActiveTx(ctx, tx, course.ID, true); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate course")
	}

	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit session start")
	}

	s.auditor.Record(ctx, audit.Event{
		Component:  models.AuditComponentSession,
		Action:     models.AuditActionSessionStarted,
		ActorID:    &userID,
		TargetType: "attendance_session",
		TargetID:   session.ID,
		Detail:     map[string]interface{}{"course_id": course.ID, "date": session.Date.Format("2006-01-02")},
	})

	return session, nil
}

// reuseExistingSession hands back today's still-open session. Anchor
// coordinates submitted with the restart replace the stored ones, so a
// lecturer who moved rooms can re-anchor by starting again.
func (s *SessionService) reuseExistingSession(ctx context.Context, courseID string, date time.Time, now time.Time, lat, lon *float64) (*models.AttendanceSession, error) {
	existing, err := s.sessions.FindByCourseAndDate(ctx, courseID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load existing session")
	}
	if !existing.IsOpen(now, s.config.MaxDuration) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a session for this course already ran today")
	}
	if lat != nil && lon != nil {
		if err := s.sessions.UpdateAnchor(ctx, existing.ID, *lat, *lon); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session anchor")
		}
		existing.AnchorLatitude = lat
		existing.AnchorLongitude = lon
	}
	return existing, nil
}

// End closes the latest active session for the lecturer's course. The
// course activity flag is left alone; a course stays listed as active
// between sessions until it is archived explicitly.
func (s *SessionService) End(ctx context.Context, userID string, req dto.EndSessionRequest) (*models.AttendanceSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session request")
	}

	lecturer, err := s.lecturers.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "no lecturer profile for this account")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lecturer")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.LecturerID != lecturer.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course belongs to another lecturer")
	}

	session, err := s.sessions.FindLatestActive(ctx, course.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNoActiveSession, "no active session for this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	now := time.Now().UTC()

	tx, err := s.sessions.BeginTx(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.sessions.End(ctx, tx, session.ID, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to end session")
	}

	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit session end")
	}

	session.Active = false
	session.EndedAt = &now

	s.auditor.Record(ctx, audit.Event{
		Component:  models.AuditComponentSession,
		Action:     models.AuditActionSessionEnded,
		ActorID:    &userID,
		TargetType: "attendance_session",
		TargetID:   session.ID,
		Detail:     map[string]interface{}{"course_id": course.ID},
	})

	return session, nil
}

// FindOpen returns the most recent session for a course that still
// accepts check-ins, honoring both the active flag and the duration cap.
func (s *SessionService) FindOpen(ctx context.Context, courseID string) (*models.AttendanceSession, error) {
	session, err := s.sessions.FindLatestActive(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNoOpenSession, "no open session for this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if !session.IsOpen(time.Now().UTC(), s.config.MaxDuration) {
		return nil, appErrors.Clone(appErrors.ErrNoOpenSession, "no open session for this course")
	}
	return session, nil
}

// Get fetches a session by ID.
func (s *SessionService) Get(ctx context.Context, id string) (*models.AttendanceSession, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// UpdateAnchor records fresh anchor coordinates on an open session.
func (s *SessionService) UpdateAnchor(ctx context.Context, sessionID string, lat, lon float64) error {
	anchor := geo.Point{Lat: lat, Lon: lon}
	if !anchor.Valid() {
		return appErrors.Clone(appErrors.ErrInvalidCoordinate, "invalid anchor coordinates")
	}
	if err := s.sessions.UpdateAnchor(ctx, sessionID, lat, lon); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update anchor")
	}
	return nil
}

// AddPresence marks a student present manually, bypassing the token
// and proximity checks. Restricted to staff at the transport layer.
func (s *SessionService) AddPresence(ctx context.Context, actorID string, req dto.PresenceMutationRequest) (bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid presence request")
	}

	added, err := s.sessions.AddPresence(ctx, req.SessionID, req.StudentID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add presence")
	}
	if added {
		s.auditor.Record(ctx, audit.Event{
			Component:  models.AuditComponentRoster,
			Action:     models.AuditActionPresenceAdded,
			ActorID:    &actorID,
			TargetType: "attendance_session",
			TargetID:   req.SessionID,
			Detail:     map[string]interface{}{"student_id": req.StudentID, "manual": true},
		})
	}
	return added, nil
}

// RemovePresence clears a student's presence mark.
func (s *SessionService) RemovePresence(ctx context.Context, actorID string, req dto.PresenceMutationRequest) (bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid presence request")
	}

	removed, err := s.sessions.RemovePresence(ctx, req.SessionID, req.StudentID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove presence")
	}
	if removed {
		s.auditor.Record(ctx, audit.Event{
			Component:  models.AuditComponentRoster,
			Action:     models.AuditActionPresenceRemoved,
			ActorID:    &actorID,
			TargetType: "attendance_session",
			TargetID:   req.SessionID,
			Detail:     map[string]interface{}{"student_id": req.StudentID, "manual": true},
		})
	}
	return removed, nil
}
