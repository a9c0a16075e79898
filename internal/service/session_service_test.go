package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unihall/attendance-api/internal/dto"
	"github.com/unihall/attendance-api/internal/models"
	"github.com/unihall/attendance-api/internal/repository"
	appErrors "github.com/unihall/attendance-api/pkg/errors"
)

type mockSessionStore struct {
	db           *sqlx.DB
	latest       *models.AttendanceSession
	byDate       *models.AttendanceSession
	createErr    error
	created      *models.AttendanceSession
	ended        []string
	anchor       [2]float64
	anchorSet    bool
	presence     map[string]bool
	presenceErr  error
	removedPairs []string
}

func (m *mockSessionStore) FindByID(ctx context.Context, id string) (*models.AttendanceSession, error) {
	if m.latest != nil && m.latest.ID == id {
		return m.latest, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSessionStore) FindLatestActive(ctx context.Context, courseID string) (*models.AttendanceSession, error) {
	if m.latest == nil {
		return nil, sql.ErrNoRows
	}
	return m.latest, nil
}

func (m *mockSessionStore) FindByCourseAndDate(ctx context.Context, courseID string, date time.Time) (*models.AttendanceSession, error) {
	if m.byDate == nil {
		return nil, sql.ErrNoRows
	}
	return m.byDate, nil
}

func (m *mockSessionStore) CreateTx(ctx context.Context, tx *sqlx.Tx, session *models.AttendanceSession) error {
	if m.createErr != nil {
		return m.createErr
	}
	session.ID = "session-new"
	session.CreatedAt = time.Now().UTC()
	m.created = session
	return nil
}

func (m *mockSessionStore) End(ctx context.Context, tx *sqlx.Tx, id string, endedAt time.Time) error {
	m.ended = append(m.ended, id)
	return nil
}

func (m *mockSessionStore) UpdateAnchor(ctx context.Context, id string, lat, lon float64) error {
	m.anchor = [2]float64{lat, lon}
	m.anchorSet = true
	return nil
}

func (m *mockSessionStore) AddPresence(ctx context.Context, sessionID, studentID string) (bool, error) {
	if m.presenceErr != nil {
		return false, m.presenceErr
	}
	if m.presence == nil {
		m.presence = make(map[string]bool)
	}
	key := sessionID + ":" + studentID
	if m.presence[key] {
		return false, nil
	}
	m.presence[key] = true
	return true, nil
}

func (m *mockSessionStore) RemovePresence(ctx context.Context, sessionID, studentID string) (bool, error) {
	key := sessionID + ":" + studentID
	if m.presence[key] {
		delete(m.presence, key)
		m.removedPairs = append(m.removedPairs, key)
		return true, nil
	}
	return false, nil
}

func (m *mockSessionStore) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return m.db.BeginTxx(ctx, nil)
}

type mockSessionCourses struct {
	course     *models.Course
	activated  []string
	activeFlag []bool
}

func (m *mockSessionCourses) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if m.course == nil || m.course.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.course, nil
}

func (m *mockSessionCourses) SetActiveTx(ctx context.Context, tx *sqlx.Tx, id string, active bool) error {
	m.activated = append(m.activated, id)
	m.activeFlag = append(m.activeFlag, active)
	return nil
}

type mockSessionLecturers struct {
	lecturer *models.Lecturer
}

func (m *mockSessionLecturers) FindByUserID(ctx context.Context, userID string) (*models.Lecturer, error) {
	if m.lecturer == nil || m.lecturer.UserID != userID {
		return nil, sql.ErrNoRows
	}
	return m.lecturer, nil
}

func newSessionFixture(t *testing.T) (*SessionService, *mockSessionStore, *mockSessionCourses, sqlmock.Sqlmock) {
	t.Helper()
	rawDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { rawDB.Close() })

	store := &mockSessionStore{db: sqlx.NewDb(rawDB, "sqlmock")}
	courses := &mockSessionCourses{course: &models.Course{ID: "b6f1a2c4-0000-4000-8000-000000000001", Code: "CS101", LecturerID: "lect-1"}}
	lecturers := &mockSessionLecturers{lecturer: &models.Lecturer{ID: "lect-1", UserID: "user-1"}}
	svc := NewSessionService(store, courses, lecturers, nil, nil, nil, SessionServiceConfig{MaxDuration: 4 * time.Hour})
	return svc, store, courses, mock
}

func TestSessionStartCreatesSessionAndActivatesCourse(t *testing.T) {
	svc, store, courses, mock := newSessionFixture(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	lat, lon := 1.5, 2.5
	session, err := svc.Start(context.Background(), "user-1", dto.StartSessionRequest{
		CourseID:  "b6f1a2c4-0000-4000-8000-000000000001",
		Latitude:  &lat,
		Longitude: &lon,
	})

	require.NoError(t, err)
	assert.Equal(t, "session-new", session.ID)
	assert.True(t, session.Active)
	require.NotNil(t, store.created)
	assert.Equal(t, lat, *store.created.AnchorLatitude)
	assert.Equal(t, []string{"b6f1a2c4-0000-4000-8000-000000000001"}, courses.activated)
	assert.Equal(t, []bool{true}, courses.activeFlag)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStartReturnsExistingOpenSession(t *testing.T) {
	svc, store, _, mock := newSessionFixture(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	store.createErr = repository.ErrSessionExists
	store.byDate = &models.AttendanceSession{
		ID:        "session-today",
		CourseID:  "b6f1a2c4-0000-4000-8000-000000000001",
		Active:    true,
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}

	session, err := svc.Start(context.Background(), "user-1", dto.StartSessionRequest{CourseID: "b6f1a2c4-0000-4000-8000-000000000001"})

	require.NoError(t, err)
	assert.Equal(t, "session-today", session.ID)
	assert.False(t, store.anchorSet)
}

func TestSessionStartReanchorsExistingOpenSession(t *testing.T) {
	svc, store, _, mock := newSessionFixture(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	staleLat, staleLon := 9.0, 9.0
	store.createErr = repository.ErrSessionExists
	store.byDate = &models.AttendanceSession{
		ID:              "session-today",
		CourseID:        "b6f1a2c4-0000-4000-8000-000000000001",
		Active:          true,
		AnchorLatitude:  &staleLat,
		AnchorLongitude: &staleLon,
		CreatedAt:       time.Now().UTC().Add(-time.Hour),
	}

	lat, lon := 2.5, -3.5
	session, err := svc.Start(context.Background(), "user-1", dto.StartSessionRequest{CourseID: "b6f1a2c4-0000-4000-8000-000000000001", Latitude: &lat, Longitude: &lon})

	require.NoError(t, err)
	require.True(t, store.anchorSet)
	assert.Equal(t, [2]float64{2.5, -3.5}, store.anchor)
	require.NotNil(t, session.AnchorLatitude)
	assert.Equal(t, 2.5, *session.AnchorLatitude)
	assert.Equal(t, -3.5, *session.AnchorLongitude)
}

func TestSessionStartConflictsWithClosedSession(t *testing.T) {
	svc, store, _, mock := newSessionFixture(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	ended := time.Now().UTC().Add(-time.Hour)
	store.createErr = repository.ErrSessionExists
	store.byDate = &models.AttendanceSession{
		ID:        "session-today",
		CourseID:  "b6f1a2c4-0000-4000-8000-000000000001",
		Active:    false,
		EndedAt:   &ended,
		CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
	}

	_, err := svc.Start(context.Background(), "user-1", dto.StartSessionRequest{CourseID: "b6f1a2c4-0000-4000-8000-000000000001"})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSessionStartRejectsForeignCourse(t *testing.T) {
	svc, _, courses, _ := newSessionFixture(t)
	courses.course.LecturerID = "someone-else"

	_, err := svc.Start(context.Background(), "user-1", dto.StartSessionRequest{CourseID: "b6f1a2c4-0000-4000-8000-000000000001"})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSessionStartRejectsInvalidAnchor(t *testing.T) {
	svc, _, _, _ := newSessionFixture(t)

	lat, lon := 95.0, 10.0
	_, err := svc.Start(context.Background(), "user-1", dto.StartSessionRequest{CourseID: "b6f1a2c4-0000-4000-8000-000000000001", Latitude: &lat, Longitude: &lon})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCoordinate.Code, appErrors.FromError(err).Code)
}

func TestSessionEndClosesLatestActive(t *testing.T) {
	svc, store, courses, mock := newSessionFixture(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	store.latest = &models.AttendanceSession{
		ID:        "session-1",
		CourseID:  "b6f1a2c4-0000-4000-8000-000000000001",
		Active:    true,
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}

	session, err := svc.End(context.Background(), "user-1", dto.EndSessionRequest{CourseID: "b6f1a2c4-0000-4000-8000-000000000001"})

	require.NoError(t, err)
	assert.False(t, session.Active)
	require.NotNil(t, session.EndedAt)
	assert.Equal(t, []string{"session-1"}, store.ended)
	// Ending a session leaves the course flag untouched.
	assert.Empty(t, courses.activated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionEndWithoutActiveSession(t *testing.T) {
	svc, _, _, _ := newSessionFixture(t)

	_, err := svc.End(context.Background(), "user-1", dto.EndSessionRequest{CourseID: "b6f1a2c4-0000-4000-8000-000000000001"})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoActiveSession.Code, appErrors.FromError(err).Code)
}

func TestSessionFindOpenHonorsDurationCap(t *testing.T) {
	svc, store, _, _ := newSessionFixture(t)
	store.latest = &models.AttendanceSession{
		ID:        "session-1",
		CourseID:  "b6f1a2c4-0000-4000-8000-000000000001",
		Active:    true,
		CreatedAt: time.Now().UTC().Add(-5 * time.Hour),
	}

	_, err := svc.FindOpen(context.Background(), "b6f1a2c4-0000-4000-8000-000000000001")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoOpenSession.Code, appErrors.FromError(err).Code)
}

func TestSessionPresenceMutations(t *testing.T) {
	svc, _, _, _ := newSessionFixture(t)

	req := dto.PresenceMutationRequest{SessionID: "b6f1a2c4-1111-4222-8333-444455556666", StudentID: "b6f1a2c4-7777-4888-9999-000011112222"}

	added, err := svc.AddPresence(context.Background(), "admin-1", req)
	require.NoError(t, err)
	assert.True(t, added)

	again, err := svc.AddPresence(context.Background(), "admin-1", req)
	require.NoError(t, err)
	assert.False(t, again)

	removed, err := svc.RemovePresence(context.Background(), "admin-1", req)
	require.NoError(t, err)
	assert.True(t, removed)

	missing, err := svc.RemovePresence(context.Background(), "admin-1", req)
	require.NoError(t, err)
	assert.False(t, missing)
}
