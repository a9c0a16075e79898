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
	"github.com/unihall/attendance-api/pkg/config"
	appErrors "github.com/unihall/attendance-api/pkg/errors"
	"github.com/unihall/attendance-api/pkg/geo"
)

type checkinTokenResolver interface {
	ResolveAttendanceToken(ctx context.Context, tokenString string) (*models.AttendanceToken, error)
}

type checkinSessionStore interface {
	FindLatestActive(ctx context.Context, courseID string) (*models.AttendanceSession, error)
	FindByCourseAndDate(ctx context.Context, courseID string, date time.Time) (*models.AttendanceSession, error)
	CreateTx(ctx context.Context, tx *sqlx.Tx, session *models.AttendanceSession) error
	AddPresence(ctx context.Context, sessionID, studentID string) (bool, error)
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
}

type checkinStudentReader interface {
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
}

type checkinEnrollmentChecker interface {
	IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error)
}

type checkinCourseStore interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	SetActiveTx(ctx context.Context, tx *sqlx.Tx, id string, active bool) error
}

type checkinLecturerReader interface {
	FindByID(ctx context.Context, id string) (*models.Lecturer, error)
}

// CheckinServiceConfig tunes the check-in authorizer.
type CheckinServiceConfig struct {
	RadiusMeters float64
	// OnMissingAnchor decides the proximity outcome when neither the
	// session nor the course's lecturer has recorded coordinates.
	OnMissingAnchor    string
	SessionMaxDuration time.Duration
}

// CheckinService authorizes student check-ins. The proximity-gated
// path verifies token validity, enrollment, an open session, and
// distance from the session's anchor in that order; the token-only
// path skips location entirely and creates today's session on demand,
// marking the course active when it does.
type CheckinService struct {
	tokens      checkinTokenResolver
	sessions    checkinSessionStore
	students    checkinStudentReader
	enrollments checkinEnrollmentChecker
	courses     checkinCourseStore
	lecturers   checkinLecturerReader
	auditor     audit.Recorder
	validator   *validator.Validate
	logger      *zap.Logger
	config      CheckinServiceConfig
}

// NewCheckinService constructs a CheckinService.
func NewCheckinService(tokens checkinTokenResolver, sessions checkinSessionStore, students checkinStudentReader, enrollments checkinEnrollmentChecker, courses checkinCourseStore, lecturers checkinLecturerReader, auditor audit.Recorder, validate *validator.Validate, logger *zap.Logger, cfg CheckinServiceConfig) *CheckinService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if auditor == nil {
		auditor = audit.Nop()
	}
	if cfg.RadiusMeters <= 0 {
		cfg.RadiusMeters = 50
	}
	if cfg.OnMissingAnchor == "" {
		cfg.OnMissingAnchor = config.MissingAnchorPermit
	}
	if cfg.SessionMaxDuration <= 0 {
		cfg.SessionMaxDuration = 4 * time.Hour
	}
	return &CheckinService{tokens: tokens, sessions: sessions, students: students, enrollments: enrollments, courses: courses, lecturers: lecturers, auditor: auditor, validator: validate, logger: logger, config: cfg}
}

// CheckinWithProximity records a presence mark after the full check
// sequence: usable token, student enrollment, an open session for the
// token's course, and the student's distance from the anchor.
func (s *CheckinService) CheckinWithProximity(ctx context.Context, userID string, req dto.CheckinRequest) (*dto.CheckinResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid check-in request")
	}
	if req.Latitude == nil || req.Longitude == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "latitude and longitude are required")
	}

	token, err := s.tokens.ResolveAttendanceToken(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	student, err := s.loadStudent(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.requireEnrollment(ctx, token.CourseID, student.ID); err != nil {
		return nil, err
	}

	session, err := s.findOpenSession(ctx, token.CourseID)
	if err != nil {
		return nil, err
	}

	location := geo.Point{Lat: *req.Latitude, Lon: *req.Longitude}
	if !location.Valid() {
		return nil, appErrors.Clone(appErrors.ErrInvalidCoordinate, "invalid check-in coordinates")
	}

	distance, err := s.verifyProximity(ctx, session, location)
	if err != nil {
		return nil, err
	}

	return s.recordPresence(ctx, session, student, distance)
}

// CheckinTokenOnly records a presence mark on token validity and
// enrollment alone. Today's session is created on first check-in; the
// unique (course, date) constraint collapses concurrent creations.
func (s *CheckinService) CheckinTokenOnly(ctx context.Context, userID string, req dto.CheckinRequest) (*dto.CheckinResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid check-in request")
	}

	token, err := s.tokens.ResolveAttendanceToken(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	student, err := s.loadStudent(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.requireEnrollment(ctx, token.CourseID, student.ID); err != nil {
		return nil, err
	}

	session, created, err := s.openOrGetSession(ctx, token.CourseID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Info("session created by first check-in",
			zap.String("session_id", session.ID),
			zap.String("course_id", token.CourseID))
	}

	return s.recordPresence(ctx, session, student, nil)
}

// openOrGetSession returns today's session for the course, creating it
// on first check-in. Creation also forces the owning course active, and
// both writes commit in one transaction; concurrent first check-ins
// converge on a single row through the unique (course, date) index.
func (s *CheckinService) openOrGetSession(ctx context.Context, courseID string, now time.Time) (*models.AttendanceSession, bool, error) {
	session := &models.AttendanceSession{
		CourseID: courseID,
		Date:     now.Truncate(24 * time.Hour),
		Active:   true,
	}

	tx, err := s.sessions.BeginTx(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.sessions.CreateTx(ctx, tx, session); err != nil {
		if errors.Is(err, repository.ErrSessionExists) {
			existing, err := s.sessions.FindByCourseAndDate(ctx, courseID, session.Date)
			if err != nil {
				return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
			}
			return existing, false, nil
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open session")
	}

	if err := s.courses.SetActiveTx(ctx, tx, courseID, true); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate course")
	}

	if err := tx.Commit(); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit session open")
	}

	return session, true, nil
}

func (s *CheckinService) loadStudent(ctx context.Context, userID string) (*models.Student, error) {
	student, err := s.students.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrStudentProfileMissing, "no student profile for this account")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

func (s *CheckinService) requireEnrollment(ctx context.Context, courseID, studentID string) error {
	enrolled, err := s.enrollments.IsEnrolled(ctx, courseID, studentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return appErrors.Clone(appErrors.ErrNotEnrolled, "you are not enrolled in this course")
	}
	return nil
}

func (s *CheckinService) findOpenSession(ctx context.Context, courseID string) (*models.AttendanceSession, error) {
	session, err := s.sessions.FindLatestActive(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNoOpenSession, "no open session for this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if !session.IsOpen(time.Now().UTC(), s.config.SessionMaxDuration) {
		return nil, appErrors.Clone(appErrors.ErrNoOpenSession, "no open session for this course")
	}
	return session, nil
}

// verifyProximity resolves the anchor and checks the distance. The
// session's own coordinates win; a session without them falls back to
// the lecturer's last recorded location. With no anchor at all the
// configured policy decides, and a permitted check-in carries no
// distance.
func (s *CheckinService) verifyProximity(ctx context.Context, session *models.AttendanceSession, location geo.Point) (*float64, error) {
	anchor, found, err := s.resolveAnchor(ctx, session)
	if err != nil {
		return nil, err
	}
	if !found {
		if s.config.OnMissingAnchor == config.MissingAnchorDeny {
			return nil, appErrors.Clone(appErrors.ErrOutOfRange, "no location anchor recorded for this session")
		}
		s.logger.Warn("check-in permitted without anchor",
			zap.String("session_id", session.ID),
			zap.String("policy", s.config.OnMissingAnchor))
		return nil, nil
	}

	distance, err := geo.Distance(anchor, location)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCoordinate, "invalid coordinates")
	}
	if distance > s.config.RadiusMeters {
		return nil, appErrors.Clone(appErrors.ErrOutOfRange, "you are too far from the class location")
	}
	return &distance, nil
}

func (s *CheckinService) resolveAnchor(ctx context.Context, session *models.AttendanceSession) (geo.Point, bool, error) {
	if session.HasAnchor() {
		return geo.Point{Lat: *session.AnchorLatitude, Lon: *session.AnchorLongitude}, true, nil
	}

	course, err := s.courses.FindByID(ctx, session.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return geo.Point{}, false, nil
		}
		return geo.Point{}, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	lecturer, err := s.lecturers.FindByID(ctx, course.LecturerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return geo.Point{}, false, nil
		}
		return geo.Point{}, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lecturer")
	}
	if !lecturer.HasLocation() {
		return geo.Point{}, false, nil
	}
	return geo.Point{Lat: *lecturer.Latitude, Lon: *lecturer.Longitude}, true, nil
}

func (s *CheckinService) recordPresence(ctx context.Context, session *models.AttendanceSession, student *models.Student, distance *float64) (*dto.CheckinResponse, error) {
	added, err := s.sessions.AddPresence(ctx, session.ID, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record presence")
	}

	status := dto.CheckinStatusAlreadyRecorded
	if added {
		status = dto.CheckinStatusRecorded
		detail := map[string]interface{}{"student_id": student.ID}
		if distance != nil {
			detail["distance_meters"] = *distance
		}
		s.auditor.Record(ctx, audit.Event{
			Component:  models.AuditComponentCheckin,
			Action:     models.AuditActionPresenceAdded,
			ActorID:    &student.UserID,
			TargetType: "attendance_session",
			TargetID:   session.ID,
			Detail:     detail,
		})
	}

	return &dto.CheckinResponse{
		SessionID:      session.ID,
		CourseID:       session.CourseID,
		Status:         status,
		DistanceMeters: distance,
	}, nil
}
