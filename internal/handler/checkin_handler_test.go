package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unihall/attendance-api/internal/middleware"
	"github.com/unihall/attendance-api/internal/models"
	"github.com/unihall/attendance-api/internal/repository"
	"github.com/unihall/attendance-api/internal/service"
)

type responseEnvelope struct {
	Data  map[string]interface{} `json:"data"`
	Error map[string]interface{} `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func postJSON(t *testing.T, body interface{}) (*httptest.ResponseRecorder, *gin.Context) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/checkin", bytes.NewReader(raw))
	c.Request.Header.Set("Content-Type", "application/json")
	return rec, c
}

func authenticate(c *gin.Context, userID string, role models.UserRole) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: userID, Role: role})
}

type fakeTokenResolver struct {
	token *models.AttendanceToken
	err   error
}

func (f *fakeTokenResolver) ResolveAttendanceToken(context.Context, string) (*models.AttendanceToken, error) {
	return f.token, f.err
}

type fakeCheckinSessions struct {
	db      *sqlx.DB
	session *models.AttendanceSession
	added   bool
}

func (f *fakeCheckinSessions) FindLatestActive(context.Context, string) (*models.AttendanceSession, error) {
	return f.session, nil
}

func (f *fakeCheckinSessions) FindByCourseAndDate(context.Context, string, time.Time) (*models.AttendanceSession, error) {
	return f.session, nil
}

func (f *fakeCheckinSessions) CreateTx(_ context.Context, _ *sqlx.Tx, session *models.AttendanceSession) error {
	if f.session != nil {
		return repository.ErrSessionExists
	}
	session.ID = "sess-created"
	return nil
}

func (f *fakeCheckinSessions) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return f.db.BeginTxx(ctx, nil)
}

func (f *fakeCheckinSessions) AddPresence(context.Context, string, string) (bool, error) {
	return f.added, nil
}

type fakeCheckinStudents struct {
	student *models.Student
}

func (f *fakeCheckinStudents) FindByUserID(context.Context, string) (*models.Student, error) {
	return f.student, nil
}

type fakeEnrollmentChecker struct {
	enrolled bool
}

func (f *fakeEnrollmentChecker) IsEnrolled(context.Context, string, string) (bool, error) {
	return f.enrolled, nil
}

type fakeCourseReader struct {
	course *models.Course
}

func (f *fakeCourseReader) FindByID(context.Context, string) (*models.Course, error) {
	return f.course, nil
}

func (f *fakeCourseReader) SetActiveTx(_ context.Context, _ *sqlx.Tx, _ string, active bool) error {
	f.course.Active = active
	return nil
}

type fakeLecturerReader struct {
	lecturer *models.Lecturer
}

func (f *fakeLecturerReader) FindByID(context.Context, string) (*models.Lecturer, error) {
	return f.lecturer, nil
}

func newCheckinHandlerFixture(t *testing.T) *CheckinHandler {
	t.Helper()
	now := time.Now().UTC()

	rawDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { rawDB.Close() })
	mock.ExpectBegin()
	mock.ExpectRollback()
	anchorLat, anchorLon := 1.0, 1.0

	tokens := &fakeTokenResolver{token: &models.AttendanceToken{
		ID:        "tok-1",
		CourseID:  "course-1",
		Token:     "AB12CD",
		Active:    true,
		ExpiresAt: now.Add(time.Hour),
	}}
	sessions := &fakeCheckinSessions{
		db: sqlx.NewDb(rawDB, "sqlmock"),
		session: &models.AttendanceSession{
			ID:              "sess-1",
			CourseID:        "course-1",
			Date:            now,
			Active:          true,
			AnchorLatitude:  &anchorLat,
			AnchorLongitude: &anchorLon,
			CreatedAt:       now,
		},
		added: true,
	}
	students := &fakeCheckinStudents{student: &models.Student{ID: "stu-1", UserID: "user-1", StudentID: "S1234"}}
	enrollments := &fakeEnrollmentChecker{enrolled: true}
	courses := &fakeCourseReader{course: &models.Course{ID: "course-1", Code: "CS101", LecturerID: "lec-1", Active: true}}
	lecturers := &fakeLecturerReader{}

	svc := service.NewCheckinService(tokens, sessions, students, enrollments, courses, lecturers, nil, nil, nil, service.CheckinServiceConfig{RadiusMeters: 50})
	return NewCheckinHandler(svc, nil)
}

func TestCheckinHandlerRequiresAuth(t *testing.T) {
	h := newCheckinHandlerFixture(t)
	rec, c := postJSON(t, gin.H{"token": "AB12CD"})

	h.Checkin(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckinHandlerRejectsMalformedPayload(t *testing.T) {
	h := newCheckinHandlerFixture(t)
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/checkin", bytes.NewReader([]byte("{")))
	c.Request.Header.Set("Content-Type", "application/json")
	authenticate(c, "user-1", models.RoleStudent)

	h.Checkin(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckinHandlerProximitySuccess(t *testing.T) {
	h := newCheckinHandlerFixture(t)
	rec, c := postJSON(t, gin.H{"token": "AB12CD", "latitude": 1.0, "longitude": 1.0})
	authenticate(c, "user-1", models.RoleStudent)

	h.Checkin(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "recorded", envelope.Data["status"])
	assert.Equal(t, "sess-1", envelope.Data["session_id"])
}

func TestCheckinHandlerMissingCoordinates(t *testing.T) {
	h := newCheckinHandlerFixture(t)
	rec, c := postJSON(t, gin.H{"token": "AB12CD"})
	authenticate(c, "user-1", models.RoleStudent)

	h.Checkin(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.NotNil(t, envelope.Error)
}

func TestCheckinHandlerTokenOnlyIgnoresCoordinates(t *testing.T) {
	h := newCheckinHandlerFixture(t)
	rec, c := postJSON(t, gin.H{"token": "AB12CD"})
	authenticate(c, "user-1", models.RoleStudent)

	h.CheckinTokenOnly(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "recorded", envelope.Data["status"])
	assert.Nil(t, envelope.Data["distance_meters"])
}
