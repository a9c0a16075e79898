package dto

import (
	"time"
)

// IssueTokenRequest creates a new check-in token for a course. A
// client may pick the token string itself (announced verbally, written
// on a board); left empty the server generates one. The optional
// coordinates record the lecturer's current location, which anchors
// the proximity check for sessions without their own anchor.
type IssueTokenRequest struct {
	CourseID  string   `json:"course_id" validate:"required,uuid"`
	Token     string   `json:"token,omitempty" validate:"omitempty,alphanum,min=4,max=16"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// IssueTokenResponse returns the issued token with its QR rendering.
type IssueTokenResponse struct {
	TokenID   string    `json:"token_id"`
	Token     string    `json:"token"`
	CourseID  string    `json:"course_id"`
	ExpiresAt time.Time `json:"expires_at"`
	QRBase64  string    `json:"qr_base64,omitempty"`
}

// ResolveTokenResponse describes the course a valid token belongs to.
type ResolveTokenResponse struct {
	TokenID    string    `json:"token_id"`
	CourseID   string    `json:"course_id"`
	CourseCode string    `json:"course_code"`
	CourseName string    `json:"course_name"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// TokenAnchorResponse carries the proximity anchor bound to a token.
type TokenAnchorResponse struct {
	TokenID   string  `json:"token_id"`
	CourseID  string  `json:"course_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// StartSessionRequest opens an attendance session for a course. The
// optional coordinates become the session's proximity anchor.
type StartSessionRequest struct {
	CourseID  string   `json:"course_id" validate:"required,uuid"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// EndSessionRequest closes the latest active session for a course.
type EndSessionRequest struct {
	CourseID string `json:"course_id" validate:"required,uuid"`
}

// CheckinRequest submits a student check-in. Coordinates are required
// on the proximity-gated path and ignored on the token-only path.
type CheckinRequest struct {
	Token     string   `json:"token" validate:"required"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Check-in outcome statuses.
const (
	CheckinStatusRecorded        = "recorded"
	CheckinStatusAlreadyRecorded = "already_recorded"
)

// CheckinResponse reports the outcome of a check-in attempt.
type CheckinResponse struct {
	SessionID      string   `json:"session_id"`
	CourseID       string   `json:"course_id"`
	Status         string   `json:"status"`
	DistanceMeters *float64 `json:"distance_meters,omitempty"`
}

// PresenceMutationRequest adds or removes a presence mark manually.
type PresenceMutationRequest struct {
	SessionID string `json:"session_id" validate:"required,uuid"`
	StudentID string `json:"student_id" validate:"required,uuid"`
}
