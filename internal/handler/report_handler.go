package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unihall/attendance-api/internal/service"
	appErrors "github.com/unihall/attendance-api/pkg/errors"
	"github.com/unihall/attendance-api/pkg/response"
)

// ReportHandler exposes roster and history endpoints.
type ReportHandler struct {
	reports *service.ReportService
	exports *service.ExportJobService
}

// NewReportHandler constructs ReportHandler. A nil export service
// disables archived downloads.
func NewReportHandler(reports *service.ReportService, exports *service.ExportJobService) *ReportHandler {
	return &ReportHandler{reports: reports, exports: exports}
}

// Roster godoc
// @Summary Per-student roster status for a session
// @Description Lists every enrolled student with a present or absent flag.
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/roster [get]
func (h *ReportHandler) Roster(c *gin.Context) {
	rows, err := h.reports.RosterStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Export godoc
// @Summary Export a session roster
// @Description Streams the roster as a CSV, XLSX, or PDF download.
// @Tags Reports
// @Produce octet-stream
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param format query string false "csv, xlsx, or pdf" default(csv)
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Router /sessions/{id}/roster/export [get]
func (h *ReportHandler) Export(c *gin.Context) {
	format := c.DefaultQuery("format", service.FormatCSV)

	result, err := h.reports.ExportRoster(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(http.StatusOK, result.ContentType, result.Data)
}

// ArchiveExport godoc
// @Summary Archive a session roster export
// @Description Stores the rendered roster and returns a signed download token.
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param format query string false "csv, xlsx, or pdf" default(csv)
// @Success 201 {object} response.Envelope
// @Router /reports/sessions/{id}/archive [post]
func (h *ReportHandler) ArchiveExport(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrPreconditionFailed, "export archiving is disabled"))
		return
	}

	format := c.DefaultQuery("format", service.FormatCSV)
	result, err := h.reports.ExportRoster(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	archived, err := h.exports.Archive(result)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, archived)
}

// DownloadExport godoc
// @Summary Download an archived export
// @Tags Reports
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *ReportHandler) DownloadExport(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrPreconditionFailed, "export archiving is disabled"))
		return
	}

	file, filename, err := h.exports.Open(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", "application/octet-stream")
	if _, err := io.Copy(c.Writer, file); err != nil {
		c.Abort()
	}
}

// MyHistory godoc
// @Summary Attendance history for the authenticated student
// @Description Groups the student's recorded attendance by course.
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /reports/me/history [get]
func (h *ReportHandler) MyHistory(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	history, err := h.reports.StudentHistory(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}

// TeachingHistory godoc
// @Summary Session history for the authenticated lecturer
// @Description Groups the lecturer's sessions by course with attendance counts.
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /reports/me/teaching [get]
func (h *ReportHandler) TeachingHistory(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	history, err := h.reports.LecturerHistory(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}
