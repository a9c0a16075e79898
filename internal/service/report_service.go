package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/unihall/attendance-api/internal/models"
	appErrors "github.com/unihall/attendance-api/pkg/errors"
	"github.com/unihall/attendance-api/pkg/export"
)

type reportSessionReader interface {
	FindByID(ctx context.Context, id string) (*models.AttendanceSession, error)
	RosterStatus(ctx context.Context, sessionID string) ([]models.RosterStatusRow, error)
	StudentHistory(ctx context.Context, studentID string) ([]models.AttendanceHistoryRow, error)
	LecturerHistory(ctx context.Context, lecturerID string) ([]models.AttendanceHistoryRow, error)
}

type reportCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type reportStudentReader interface {
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
}

type reportLecturerReader interface {
	FindByUserID(ctx context.Context, userID string) (*models.Lecturer, error)
}

type reportCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type xlsxRenderer interface {
	Render(data export.Dataset, sheet string) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// Roster export formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
)

// ReportServiceConfig tunes roster report caching.
type ReportServiceConfig struct {
	CacheTTL time.Duration
}

// ExportResult carries rendered report bytes with download metadata.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ReportService builds roster reports and attendance histories.
// Rosters list present students first, then absent, each block ordered
// by student number.
type ReportService struct {
	sessions  reportSessionReader
	courses   reportCourseReader
	students  reportStudentReader
	lecturers reportLecturerReader
	cache     reportCache
	csv       csvRenderer
	xlsx      xlsxRenderer
	pdf       pdfRenderer
	logger    *zap.Logger
	config    ReportServiceConfig
}

// NewReportService constructs a ReportService. A nil cache disables
// roster caching.
func NewReportService(sessions reportSessionReader, courses reportCourseReader, students reportStudentReader, lecturers reportLecturerReader, cache reportCache, csv csvRenderer, xlsx xlsxRenderer, pdf pdfRenderer, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	return &ReportService{sessions: sessions, courses: courses, students: students, lecturers: lecturers, cache: cache, csv: csv, xlsx: xlsx, pdf: pdf, logger: logger, config: cfg}
}

// RosterStatus returns every enrolled student's presence for a session.
// Results are cached briefly; a live session's roster tolerates a few
// seconds of staleness.
func (s *ReportService) RosterStatus(ctx context.Context, sessionID string) ([]models.RosterStatusRow, error) {
	cacheKey := fmt.Sprintf("roster:%s", sessionID)
	if s.cache != nil {
		var cached []models.RosterStatusRow
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("roster cache read failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	if _, err := s.sessions.FindByID(ctx, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	rows, err := s.sessions.RosterStatus(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build roster")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, rows, s.config.CacheTTL); err != nil {
			s.logger.Warn("roster cache write failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	return rows, nil
}

// ExportRoster renders a session's roster in the requested format.
func (s *ReportService) ExportRoster(ctx context.Context, sessionID, format string) (*ExportResult, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	course, err := s.courses.FindByID(ctx, session.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	rows, err := s.RosterStatus(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	dataset := buildRosterDataset(rows)
	title := fmt.Sprintf("%s attendance %s", course.Code, session.Date.Format("2006-01-02"))
	base := fmt.Sprintf("%s_attendance_%s", course.Code, session.Date.Format("2006-01-02"))

	switch format {
	case FormatCSV:
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{Filename: base + ".csv", ContentType: "text/csv", Data: data}, nil
	case FormatXLSX:
		data, err := s.xlsx.Render(dataset, "Attendance")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render xlsx")
		}
		return &ExportResult{Filename: base + ".xlsx", ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", Data: data}, nil
	case FormatPDF:
		data, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportResult{Filename: base + ".pdf", ContentType: "application/pdf", Data: data}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

// StudentHistory lists the courses and dates where the calling
// student was marked present, grouped by course code.
func (s *ReportService) StudentHistory(ctx context.Context, userID string) ([]models.CourseHistory, error) {
	student, err := s.students.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrStudentProfileMissing, "no student profile for this account")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	rows, err := s.sessions.StudentHistory(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load history")
	}
	return groupHistory(rows), nil
}

// LecturerHistory lists sessions across the calling lecturer's
// courses, grouped by course code.
func (s *ReportService) LecturerHistory(ctx context.Context, userID string) ([]models.CourseHistory, error) {
	lecturer, err := s.lecturers.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "no lecturer profile for this account")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lecturer")
	}

	rows, err := s.sessions.LecturerHistory(ctx, lecturer.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load history")
	}
	return groupHistory(rows), nil
}

func buildRosterDataset(rows []models.RosterStatusRow) export.Dataset {
	headers := []string{"No", "Student ID", "Name", "Status"}
	records := make([]map[string]string, 0, len(rows))
	for i, row := range rows {
		status := "Absent"
		if row.Present {
			status = "Present"
		}
		records = append(records, map[string]string{
			"No":         strconv.Itoa(i + 1),
			"Student ID": row.StudentNumber,
			"Name":       row.StudentName,
			"Status":     status,
		})
	}
	return export.Dataset{Headers: headers, Rows: records}
}

// groupHistory folds ordered history rows into per-course buckets,
// preserving the rows' newest-first ordering within each course.
func groupHistory(rows []models.AttendanceHistoryRow) []models.CourseHistory {
	index := make(map[string]int)
	grouped := make([]models.CourseHistory, 0)
	for _, row := range rows {
		date := row.Date.Format("2006-01-02")
		if i, ok := index[row.CourseCode]; ok {
			grouped[i].Attendances = append(grouped[i].Attendances, date)
			continue
		}
		index[row.CourseCode] = len(grouped)
		grouped = append(grouped, models.CourseHistory{CourseCode: row.CourseCode, Attendances: []string{date}})
	}
	return grouped
}
