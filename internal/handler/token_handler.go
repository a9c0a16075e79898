package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unihall/attendance-api/internal/dto"
	"github.com/unihall/attendance-api/internal/service"
	appErrors "github.com/unihall/attendance-api/pkg/errors"
	"github.com/unihall/attendance-api/pkg/response"
)

// TokenHandler exposes check-in token endpoints for lecturers.
type TokenHandler struct {
	tokens  *service.TokenService
	metrics *service.MetricsService
}

// NewTokenHandler constructs TokenHandler.
func NewTokenHandler(tokens *service.TokenService, metrics *service.MetricsService) *TokenHandler {
	return &TokenHandler{tokens: tokens, metrics: metrics}
}

// Issue godoc
// @Summary Issue a check-in token
// @Description Issues a short code for one of the lecturer's courses, client-chosen or server-generated. Optional coordinates update the lecturer's location.
// @Tags Tokens
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.IssueTokenRequest true "Token payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /tokens [post]
func (h *TokenHandler) Issue(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	res, err := h.tokens.Issue(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordTokenIssued()
	}
	response.Created(c, res)
}

// Resolve godoc
// @Summary Resolve a token to its course
// @Description Looks up an active token and returns the course it belongs to. Expired tokens are rejected.
// @Tags Tokens
// @Produce json
// @Security BearerAuth
// @Param token path string true "Token string"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /tokens/{token} [get]
func (h *TokenHandler) Resolve(c *gin.Context) {
	res, err := h.tokens.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Anchor godoc
// @Summary Anchor coordinates for a token
// @Description Returns the lecturer coordinates bound to an active token so clients can show their distance before checking in.
// @Tags Tokens
// @Produce json
// @Security BearerAuth
// @Param token path string true "Token string"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /tokens/{token}/anchor [get]
func (h *TokenHandler) Anchor(c *gin.Context) {
	res, err := h.tokens.Anchor(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Deactivate godoc
// @Summary Deactivate a token
// @Description Revokes a token before its natural expiry. Only the owning lecturer may revoke.
// @Tags Tokens
// @Produce json
// @Security BearerAuth
// @Param id path string true "Token ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Router /tokens/{id} [delete]
func (h *TokenHandler) Deactivate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.tokens.Deactivate(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListByCourse godoc
// @Summary List tokens for a course
// @Tags Tokens
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/tokens [get]
func (h *TokenHandler) ListByCourse(c *gin.Context) {
	tokens, err := h.tokens.ListByCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tokens, nil)
}
