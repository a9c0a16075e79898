package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unihall/attendance-api/internal/dto"
	"github.com/unihall/attendance-api/internal/service"
	appErrors "github.com/unihall/attendance-api/pkg/errors"
	"github.com/unihall/attendance-api/pkg/response"
)

// CheckinHandler exposes student check-in endpoints.
type CheckinHandler struct {
	checkins *service.CheckinService
	metrics  *service.MetricsService
}

// NewCheckinHandler constructs CheckinHandler.
func NewCheckinHandler(checkins *service.CheckinService, metrics *service.MetricsService) *CheckinHandler {
	return &CheckinHandler{checkins: checkins, metrics: metrics}
}

// Checkin godoc
// @Summary Check in with proximity verification
// @Description Records attendance when the submitted coordinates fall within the session's radius.
// @Tags Checkin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CheckinRequest true "Check-in payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /checkin [post]
func (h *CheckinHandler) Checkin(c *gin.Context) {
	h.handle(c, h.checkins.CheckinWithProximity)
}

// CheckinTokenOnly godoc
// @Summary Check in by token alone
// @Description Records attendance against today's session without a location check. Creates the session on demand.
// @Tags Checkin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CheckinRequest true "Check-in payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /checkin/token [post]
func (h *CheckinHandler) CheckinTokenOnly(c *gin.Context) {
	h.handle(c, h.checkins.CheckinTokenOnly)
}

type checkinFn func(ctx context.Context, userID string, req dto.CheckinRequest) (*dto.CheckinResponse, error)

func (h *CheckinHandler) handle(c *gin.Context, fn checkinFn) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.CheckinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	res, err := fn(c.Request.Context(), claims.UserID, req)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordCheckin("rejected")
		}
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordCheckin(res.Status)
	}
	response.JSON(c, http.StatusOK, res, nil)
}
