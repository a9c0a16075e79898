package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unihall/attendance-api/internal/dto"
	"github.com/unihall/attendance-api/internal/models"
	"github.com/unihall/attendance-api/internal/repository"
	appErrors "github.com/unihall/attendance-api/pkg/errors"
)

type mockTokenStore struct {
	tokens      map[string]*models.AttendanceToken
	takenFirstN int
	createCalls int
	deactivated []string
	sweptCount  int64
}

func (m *mockTokenStore) Create(ctx context.Context, token *models.AttendanceToken) error {
	m.createCalls++
	if m.createCalls <= m.takenFirstN {
		return repository.ErrTokenTaken
	}
	if m.tokens == nil {
		m.tokens = make(map[string]*models.AttendanceToken)
	}
	if token.ID == "" {
		token.ID = "token-new"
	}
	copied := *token
	m.tokens[token.Token] = &copied
	return nil
}

func (m *mockTokenStore) FindByID(ctx context.Context, id string) (*models.AttendanceToken, error) {
	for _, t := range m.tokens {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockTokenStore) FindActiveByString(ctx context.Context, tokenString string) (*models.AttendanceToken, error) {
	t, ok := m.tokens[tokenString]
	if !ok || !t.Active {
		return nil, sql.ErrNoRows
	}
	return t, nil
}

func (m *mockTokenStore) Deactivate(ctx context.Context, id string) error {
	m.deactivated = append(m.deactivated, id)
	for _, t := range m.tokens {
		if t.ID == id {
			t.Active = false
		}
	}
	return nil
}

func (m *mockTokenStore) ListByCourse(ctx context.Context, courseID string) ([]models.AttendanceToken, error) {
	var list []models.AttendanceToken
	for _, t := range m.tokens {
		if t.CourseID == courseID {
			list = append(list, *t)
		}
	}
	return list, nil
}

func (m *mockTokenStore) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	return m.sweptCount, nil
}

type mockTokenCourses struct {
	course *models.Course
}

func (m *mockTokenCourses) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if m.course == nil || m.course.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.course, nil
}

type mockTokenLecturers struct {
	lecturer    *models.Lecturer
	locationSet bool
	lastLat     float64
	lastLon     float64
}

func (m *mockTokenLecturers) FindByID(ctx context.Context, id string) (*models.Lecturer, error) {
	if m.lecturer == nil || m.lecturer.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.lecturer, nil
}

func (m *mockTokenLecturers) FindByUserID(ctx context.Context, userID string) (*models.Lecturer, error) {
	if m.lecturer == nil || m.lecturer.UserID != userID {
		return nil, sql.ErrNoRows
	}
	return m.lecturer, nil
}

func (m *mockTokenLecturers) UpdateLocation(ctx context.Context, id string, lat, lon float64) error {
	m.locationSet = true
	m.lastLat = lat
	m.lastLon = lon
	return nil
}

type mockQRRenderer struct {
	fail bool
}

func (m *mockQRRenderer) RenderBase64(token string) (string, error) {
	if m.fail {
		return "", assert.AnError
	}
	return "base64:" + token, nil
}

func newTokenFixture() (*mockTokenStore, *mockTokenCourses, *mockTokenLecturers) {
	store := &mockTokenStore{}
	courses := &mockTokenCourses{course: &models.Course{ID: "b6f1a2c4-0000-4000-8000-000000000001", Code: "CS101", LecturerID: "lect-1"}}
	lecturers := &mockTokenLecturers{lecturer: &models.Lecturer{ID: "lect-1", UserID: "user-1", StaffID: "L100"}}
	return store, courses, lecturers
}

func TestTokenIssueGeneratesUniqueToken(t *testing.T) {
	store, courses, lecturers := newTokenFixture()
	svc := NewTokenService(store, courses, lecturers, &mockQRRenderer{}, nil, nil, nil, TokenServiceConfig{TTL: 2 * time.Hour, Length: 6})

	resp, err := svc.Issue(context.Background(), "user-1", dto.IssueTokenRequest{CourseID: "b6f1a2c4-0000-4000-8000-000000000001"})

	require.NoError(t, err)
	assert.Len(t, resp.Token, 6)
	assert.Equal(t, "b6f1a2c4-0000-4000-8000-000000000001", resp.CourseID)
	assert.Equal(t, "base64:"+resp.Token, resp.QRBase64)
	assert.WithinDuration(t, time.Now().UTC().Add(2*time.Hour), resp.ExpiresAt, time.Minute)
	assert.False(t, lecturers.locationSet)
}

func TestTokenIssuePersistsQRImage(t *testing.T) {
	store, courses, lecturers := newTokenFixture()
	svc := NewTokenService(store, courses, lecturers, &mockQRRenderer{}, nil, nil, nil, TokenServiceConfig{})

	resp, err := svc.Issue(context.Background(), "user-1", dto.IssueTokenRequest{CourseID: "b6f1a2c4-0000-4000-8000-000000000001"})

	require.NoError(t, err)
	stored := store.tokens[resp.Token]
	require.NotNil(t, stored)
	require.NotNil(t, stored.QRPNG)
	assert.Equal(t, "base64:"+resp.Token, *stored.QRPNG)
	assert.Equal(t, *stored.QRPNG, resp.QRBase64)
}

func TestTokenIssueAcceptsClientToken(t *testing.T) {
	store, courses, lecturers := newTokenFixture()
	svc := NewTokenService(store, courses, lecturers, &mockQRRenderer{}, nil, nil, nil, TokenServiceConfig{})

	resp, err := svc.Issue(context.Background(), "user-1", dto.IssueTokenRequest{CourseID: "b6f1a2c4-0000-4000-8000-000000000001", Token: "math101"})

	require.NoError(t, err)
	assert.Equal(t, "MATH101", resp.Token)
	assert.Equal(t, 1, store.createCalls)
	stored := store.tokens["MATH101"]
	require.NotNil(t, stored)
	require.NotNil(t, stored.QRPNG)
	assert.Equal(t, "base64:MATH101", *stored.QRPNG)
}

func TestTokenIssueClientTokenCollision(t *testing.T) {
	store, courses, lecturers := newTokenFixture()
	store.takenFirstN = 1
	svc := NewTokenService(store, courses, lecturers, nil, nil, nil, nil, TokenServiceConfig{})

	_, err := svc.Issue(context.Background(), "user-1", dto.IssueTokenRequest{CourseID: "b6f1a2c4-0000-4000-8000-000000000001", Token: "MATH101"})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateToken.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 1, store.createCalls)
}

func TestTokenIssueRecordsLecturerLocation(t *testing.T) {
	store, courses, lecturers := newTokenFixture()
	svc := NewTokenService(store, courses, lecturers, nil, nil, nil, nil, TokenServiceConfig{})

	lat, lon := 3.14, -6.28
	_, err := svc.Issue(context.Background(), "user-1", dto.IssueTokenRequest{CourseID: "b6f1a2c4-0000-4000-8000-000000000001", Latitude: &lat, Longitude: &lon})

	require.NoError(t, err)
	assert.True(t, lecturers.locationSet)
	assert.Equal(t, lat, lecturers.lastLat)
	assert.Equal(t, lon, lecturers.lastLon)
}

func TestTokenIssueRetriesOnCollision(t *testing.T) {
	store, courses, lecturers := newTokenFixture()
	store.takenFirstN = 2
	svc := NewTokenService(store, courses, lecturers, nil, nil, nil, nil, TokenServiceConfig{})

	resp, err := svc.Issue(context.Background(), "user-1", dto.IssueTokenRequest{CourseID: "b6f1a2c4-0000-4000-8000-000000000001"})

	require.NoError(t, err)
	assert.Equal(t, 3, store.createCalls)
	assert.NotEmpty(t, resp.Token)
}

func TestTokenIssueGivesUpAfterRepeatedCollisions(t *testing.T) {
	store, courses, lecturers := newTokenFixture()
	store.takenFirstN = tokenCreateAttempts
	svc := NewTokenService(store, courses, lecturers, nil, nil, nil, nil, TokenServiceConfig{})

	_, err := svc.Issue(context.Background(), "user-1", dto.IssueTokenRequest{CourseID: "b6f1a2c4-0000-4000-8000-000000000001"})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateToken.Code, appErrors.FromError(err).Code)
}

func TestTokenIssueRejectsForeignCourse(t *testing.T) {
	store, courses, lecturers := newTokenFixture()
	courses.course.LecturerID = "someone-else"
	svc := NewTokenService(store, courses, lecturers, nil, nil, nil, nil, TokenServiceConfig{})

	_, err := svc.Issue(context.Background(), "user-1", dto.IssueTokenRequest{CourseID: "b6f1a2c4-0000-4000-8000-000000000001"})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestTokenResolveHappyPath(t *testing.T) {
	store, courses, lecturers := newTokenFixture()
	store.tokens = map[string]*models.AttendanceToken{
		"ABC123": {ID: "token-1", CourseID: "b6f1a2c4-0000-4000-8000-000000000001", Token: "ABC123", Active: true, ExpiresAt: time.Now().UTC().Add(time.Hour)},
	}
	svc := NewTokenService(store, courses, lecturers, nil, nil, nil, nil, TokenServiceConfig{})

	resp, err := svc.Resolve(context.Background(), "ABC123")

	require.NoError(t, err)
	assert.Equal(t, "b6f1a2c4-0000-4000-8000-000000000001", resp.CourseID)
	assert.Equal(t, "CS101", resp.CourseCode)
}

func TestTokenResolveUnknownToken(t *testing.T) {
	store, courses, lecturers := newTokenFixture()
	svc := NewTokenService(store, courses, lecturers, nil, nil, nil, nil, TokenServiceConfig{})

	_, err := svc.Resolve(context.Background(), "NOPE00")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidOrExpiredToken.Code, appErrors.FromError(err).Code)
}

func TestTokenResolveExpiredAtReadTime(t *testing.T) {
	store, courses, lecturers := newTokenFixture()
	// Still flagged active in storage but past its expiry.
	store.tokens = map[string]*models.AttendanceToken{
		"OLD000": {ID: "token-old", CourseID: "b6f1a2c4-0000-4000-8000-000000000001", Token: "OLD000", Active: true, ExpiresAt: time.Now().UTC().Add(-time.Minute)},
	}
	svc := NewTokenService(store, courses, lecturers, nil, nil, nil, nil, TokenServiceConfig{})

	_, err := svc.Resolve(context.Background(), "OLD000")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidOrExpiredToken.Code, appErrors.FromError(err).Code)
	assert.Contains(t, store.deactivated, "token-old")
}

func TestTokenAnchorReturnsLecturerCoordinates(t *testing.T) {
	store, courses, lecturers := newTokenFixture()
	lat, lon := 3.14, -6.28
	lecturers.lecturer.Latitude = &lat
	lecturers.lecturer.Longitude = &lon
	store.tokens = map[string]*models.AttendanceToken{
		"ABC123": {ID: "token-1", CourseID: "b6f1a2c4-0000-4000-8000-000000000001", Token: "ABC123", Active: true, ExpiresAt: time.Now().UTC().Add(time.Hour)},
	}
	svc := NewTokenService(store, courses, lecturers, nil, nil, nil, nil, TokenServiceConfig{})

	resp, err := svc.Anchor(context.Background(), "ABC123")

	require.NoError(t, err)
	assert.Equal(t, "b6f1a2c4-0000-4000-8000-000000000001", resp.CourseID)
	assert.Equal(t, lat, resp.Latitude)
	assert.Equal(t, lon, resp.Longitude)
}

func TestTokenAnchorWithoutCoordinates(t *testing.T) {
	store, courses, lecturers := newTokenFixture()
	store.tokens = map[string]*models.AttendanceToken{
		"ABC123": {ID: "token-1", CourseID: "b6f1a2c4-0000-4000-8000-000000000001", Token: "ABC123", Active: true, ExpiresAt: time.Now().UTC().Add(time.Hour)},
	}
	svc := NewTokenService(store, courses, lecturers, nil, nil, nil, nil, TokenServiceConfig{})

	_, err := svc.Anchor(context.Background(), "ABC123")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTokenDeactivate(t *testing.T) {
	store, courses, lecturers := newTokenFixture()
	store.tokens = map[string]*models.AttendanceToken{
		"ABC123": {ID: "token-1", CourseID: "b6f1a2c4-0000-4000-8000-000000000001", Token: "ABC123", Active: true, ExpiresAt: time.Now().UTC().Add(time.Hour)},
	}
	svc := NewTokenService(store, courses, lecturers, nil, nil, nil, nil, TokenServiceConfig{})

	err := svc.Deactivate(context.Background(), "user-1", "token-1")

	require.NoError(t, err)
	assert.Contains(t, store.deactivated, "token-1")
}

func TestGenerateTokenStringAlphabet(t *testing.T) {
	store, courses, lecturers := newTokenFixture()
	svc := NewTokenService(store, courses, lecturers, nil, nil, nil, nil, TokenServiceConfig{Length: 6})

	for i := 0; i < 20; i++ {
		value, err := svc.generateTokenString()
		require.NoError(t, err)
		assert.Len(t, value, 6)
		for _, ch := range value {
			assert.Contains(t, tokenAlphabet, string(ch))
		}
	}
}
