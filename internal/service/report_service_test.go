package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unihall/attendance-api/internal/models"
	appErrors "github.com/unihall/attendance-api/pkg/errors"
	"github.com/unihall/attendance-api/pkg/export"
)

type mockReportSessions struct {
	session     *models.AttendanceSession
	roster      []models.RosterStatusRow
	rosterCalls int
	studentHist []models.AttendanceHistoryRow
	lectHist    []models.AttendanceHistoryRow
}

func (m *mockReportSessions) FindByID(ctx context.Context, id string) (*models.AttendanceSession, error) {
	if m.session == nil || m.session.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.session, nil
}

func (m *mockReportSessions) RosterStatus(ctx context.Context, sessionID string) ([]models.RosterStatusRow, error) {
	m.rosterCalls++
	return m.roster, nil
}

func (m *mockReportSessions) StudentHistory(ctx context.Context, studentID string) ([]models.AttendanceHistoryRow, error) {
	return m.studentHist, nil
}

func (m *mockReportSessions) LecturerHistory(ctx context.Context, lecturerID string) ([]models.AttendanceHistoryRow, error) {
	return m.lectHist, nil
}

type mockReportCourses struct {
	course *models.Course
}

func (m *mockReportCourses) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if m.course == nil || m.course.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.course, nil
}

type mockReportStudents struct {
	student *models.Student
}

func (m *mockReportStudents) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	if m.student == nil || m.student.UserID != userID {
		return nil, sql.ErrNoRows
	}
	return m.student, nil
}

type mockReportLecturers struct {
	lecturer *models.Lecturer
}

func (m *mockReportLecturers) FindByUserID(ctx context.Context, userID string) (*models.Lecturer, error) {
	if m.lecturer == nil || m.lecturer.UserID != userID {
		return nil, sql.ErrNoRows
	}
	return m.lecturer, nil
}

type memoryCache struct {
	entries map[string][]byte
	sets    int
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	rows := dest.(*[]models.RosterStatusRow)
	// Deterministic fixture decoding keeps the mock simple.
	_ = raw
	*rows = []models.RosterStatusRow{{StudentID: "cached", Present: true}}
	return nil
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.entries == nil {
		c.entries = make(map[string][]byte)
	}
	c.entries[key] = []byte("set")
	c.sets++
	return nil
}

func date(value string) time.Time {
	d, _ := time.Parse("2006-01-02", value)
	return d
}

func newReportFixture() (*mockReportSessions, *mockReportCourses, *mockReportStudents, *mockReportLecturers) {
	sessions := &mockReportSessions{
		session: &models.AttendanceSession{ID: "session-1", CourseID: "course-1", Date: date("2026-03-02")},
		roster: []models.RosterStatusRow{
			{StudentID: "s1", StudentNumber: "S1001", StudentName: "Ada", Present: true},
			{StudentID: "s2", StudentNumber: "S1002", StudentName: "Ben", Present: true},
			{StudentID: "s3", StudentNumber: "S1003", StudentName: "Cy", Present: false},
		},
	}
	courses := &mockReportCourses{course: &models.Course{ID: "course-1", Code: "CS101", Name: "Algorithms"}}
	students := &mockReportStudents{student: &models.Student{ID: "stu-1", UserID: "user-1"}}
	lecturers := &mockReportLecturers{lecturer: &models.Lecturer{ID: "lect-1", UserID: "user-9"}}
	return sessions, courses, students, lecturers
}

func TestRosterStatusCachesResult(t *testing.T) {
	sessions, courses, students, lecturers := newReportFixture()
	cache := &memoryCache{}
	svc := NewReportService(sessions, courses, students, lecturers, cache, export.NewCSVExporter(), export.NewXLSXExporter(), export.NewPDFExporter(), nil, ReportServiceConfig{CacheTTL: time.Minute})

	rows, err := svc.RosterStatus(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, 1, sessions.rosterCalls)
	assert.Equal(t, 1, cache.sets)

	cached, err := svc.RosterStatus(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Equal(t, "cached", cached[0].StudentID)
	assert.Equal(t, 1, sessions.rosterCalls)
}

func TestRosterStatusUnknownSession(t *testing.T) {
	sessions, courses, students, lecturers := newReportFixture()
	svc := NewReportService(sessions, courses, students, lecturers, nil, export.NewCSVExporter(), export.NewXLSXExporter(), export.NewPDFExporter(), nil, ReportServiceConfig{})

	_, err := svc.RosterStatus(context.Background(), "missing")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExportRosterCSV(t *testing.T) {
	sessions, courses, students, lecturers := newReportFixture()
	svc := NewReportService(sessions, courses, students, lecturers, nil, export.NewCSVExporter(), export.NewXLSXExporter(), export.NewPDFExporter(), nil, ReportServiceConfig{})

	result, err := svc.ExportRoster(context.Background(), "session-1", FormatCSV)

	require.NoError(t, err)
	assert.Equal(t, "CS101_attendance_2026-03-02.csv", result.Filename)
	assert.Equal(t, "text/csv", result.ContentType)

	lines := strings.Split(strings.TrimSpace(string(result.Data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "No,Student ID,Name,Status", lines[0])
	assert.Contains(t, lines[1], "Present")
	assert.Contains(t, lines[3], "Absent")
}

func TestExportRosterXLSXAndPDF(t *testing.T) {
	sessions, courses, students, lecturers := newReportFixture()
	svc := NewReportService(sessions, courses, students, lecturers, nil, export.NewCSVExporter(), export.NewXLSXExporter(), export.NewPDFExporter(), nil, ReportServiceConfig{})

	xlsx, err := svc.ExportRoster(context.Background(), "session-1", FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, "CS101_attendance_2026-03-02.xlsx", xlsx.Filename)
	assert.NotEmpty(t, xlsx.Data)

	pdf, err := svc.ExportRoster(context.Background(), "session-1", FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", pdf.ContentType)
	assert.NotEmpty(t, pdf.Data)
}

func TestExportRosterUnsupportedFormat(t *testing.T) {
	sessions, courses, students, lecturers := newReportFixture()
	svc := NewReportService(sessions, courses, students, lecturers, nil, export.NewCSVExporter(), export.NewXLSXExporter(), export.NewPDFExporter(), nil, ReportServiceConfig{})

	_, err := svc.ExportRoster(context.Background(), "session-1", "docx")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStudentHistoryGroupsByCourse(t *testing.T) {
	sessions, courses, students, lecturers := newReportFixture()
	sessions.studentHist = []models.AttendanceHistoryRow{
		{CourseCode: "CS101", Date: date("2026-03-02")},
		{CourseCode: "MA201", Date: date("2026-03-01")},
		{CourseCode: "CS101", Date: date("2026-02-23")},
	}
	svc := NewReportService(sessions, courses, students, lecturers, nil, export.NewCSVExporter(), export.NewXLSXExporter(), export.NewPDFExporter(), nil, ReportServiceConfig{})

	history, err := svc.StudentHistory(context.Background(), "user-1")

	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "CS101", history[0].CourseCode)
	assert.Equal(t, []string{"2026-03-02", "2026-02-23"}, history[0].Attendances)
	assert.Equal(t, "MA201", history[1].CourseCode)
	assert.Equal(t, []string{"2026-03-01"}, history[1].Attendances)
}

func TestStudentHistoryWithoutProfile(t *testing.T) {
	sessions, courses, _, lecturers := newReportFixture()
	students := &mockReportStudents{}
	svc := NewReportService(sessions, courses, students, lecturers, nil, export.NewCSVExporter(), export.NewXLSXExporter(), export.NewPDFExporter(), nil, ReportServiceConfig{})

	_, err := svc.StudentHistory(context.Background(), "user-1")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStudentProfileMissing.Code, appErrors.FromError(err).Code)
}

func TestLecturerHistoryGroupsByCourse(t *testing.T) {
	sessions, courses, students, lecturers := newReportFixture()
	sessions.lectHist = []models.AttendanceHistoryRow{
		{CourseCode: "CS101", Date: date("2026-03-02")},
		{CourseCode: "CS101", Date: date("2026-02-23")},
	}
	svc := NewReportService(sessions, courses, students, lecturers, nil, export.NewCSVExporter(), export.NewXLSXExporter(), export.NewPDFExporter(), nil, ReportServiceConfig{})

	history, err := svc.LecturerHistory(context.Background(), "user-9")

	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, []string{"2026-03-02", "2026-02-23"}, history[0].Attendances)
}
