package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/unihall/attendance-api/internal/audit"
	"github.com/unihall/attendance-api/internal/dto"
	"github.com/unihall/attendance-api/internal/models"
	"github.com/unihall/attendance-api/internal/repository"
	appErrors "github.com/unihall/attendance-api/pkg/errors"
)

type tokenStore interface {
	Create(ctx context.Context, token *models.AttendanceToken) error
	FindByID(ctx context.Context, id string) (*models.AttendanceToken, error)
	FindActiveByString(ctx context.Context, tokenString string) (*models.AttendanceToken, error)
	Deactivate(ctx context.Context, id string) error
	ListByCourse(ctx context.Context, courseID string) ([]models.AttendanceToken, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

type tokenCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type tokenLecturerStore interface {
	FindByID(ctx context.Context, id string) (*models.Lecturer, error)
	FindByUserID(ctx context.Context, userID string) (*models.Lecturer, error)
	UpdateLocation(ctx context.Context, id string, lat, lon float64) error
}

type qrRenderer interface {
	RenderBase64(token string) (string, error)
}

// TokenServiceConfig bounds token issuance.
type TokenServiceConfig struct {
	TTL    time.Duration
	Length int
}

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Token creation retries on a string collision before giving up. With
// a 36-character alphabet and 6 positions the space is ~2.1 billion,
// so more than one retry is already unusual.
const tokenCreateAttempts = 5

// TokenService issues and resolves check-in tokens. Issuing a token
// also records the lecturer's location when coordinates accompany the
// request, keeping the proximity anchor fresh.
type TokenService struct {
	tokens    tokenStore
	courses   tokenCourseReader
	lecturers tokenLecturerStore
	qr        qrRenderer
	auditor   audit.Recorder
	validator *validator.Validate
	logger    *zap.Logger
	config    TokenServiceConfig
}

// NewTokenService constructs a TokenService.
func NewTokenService(tokens tokenStore, courses tokenCourseReader, lecturers tokenLecturerStore, qr qrRenderer, auditor audit.Recorder, validate *validator.Validate, logger *zap.Logger, config TokenServiceConfig) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if auditor == nil {
		auditor = audit.Nop()
	}
	if config.TTL <= 0 {
		config.TTL = 4 * time.Hour
	}
	if config.Length <= 0 {
		config.Length = 6
	}
	return &TokenService{tokens: tokens, courses: courses, lecturers: lecturers, qr: qr, auditor: auditor, validator: validate, logger: logger, config: config}
}

// Issue creates a fresh token for the lecturer's course. The caller
// may supply the token string; when it is taken the call fails with
// DuplicateToken. Without one the string is generated server side,
// retrying on collision until a unique value lands.
func (s *TokenService) Issue(ctx context.Context, userID string, req dto.IssueTokenRequest) (*dto.IssueTokenResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid token request")
	}

	lecturer, err := s.lecturers.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "no lecturer profile for this account")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lecturer")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.LecturerID != lecturer.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course belongs to another lecturer")
	}

	if req.Latitude != nil && req.Longitude != nil {
		if err := s.lecturers.UpdateLocation(ctx, lecturer.ID, *req.Latitude, *req.Longitude); err != nil {
			s.logger.Warn("failed to update lecturer location", zap.String("lecturer_id", lecturer.ID), zap.Error(err))
		}
	}

	now := time.Now().UTC()
	token := &models.AttendanceToken{
		CourseID:    course.ID,
		GeneratedAt: now,
		ExpiresAt:   now.Add(s.config.TTL),
		Active:      true,
	}

	if req.Token != "" {
		token.Token = strings.ToUpper(req.Token)
		s.renderQR(token)
		if err := s.tokens.Create(ctx, token); err != nil {
			if errors.Is(err, repository.ErrTokenTaken) {
				return nil, appErrors.Clone(appErrors.ErrDuplicateToken, "token string already in use")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist token")
		}
	} else {
		var created bool
		for attempt := 0; attempt < tokenCreateAttempts; attempt++ {
			value, err := s.generateTokenString()
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate token")
			}
			token.Token = value
			s.renderQR(token)

			err = s.tokens.Create(ctx, token)
			if err == nil {
				created = true
				break
			}
			if errors.Is(err, repository.ErrTokenTaken) {
				s.logger.Debug("token string collision, retrying", zap.Int("attempt", attempt+1))
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist token")
		}
		if !created {
			return nil, appErrors.Clone(appErrors.ErrDuplicateToken, "could not allocate a unique token")
		}
	}

	resp := &dto.IssueTokenResponse{
		TokenID:   token.ID,
		Token:     token.Token,
		CourseID:  course.ID,
		ExpiresAt: token.ExpiresAt,
	}
	if token.QRPNG != nil {
		resp.QRBase64 = *token.QRPNG
	}

	s.auditor.Record(ctx, audit.Event{
		Component:  models.AuditComponentToken,
		Action:     models.AuditActionTokenIssued,
		ActorID:    &userID,
		TargetType: "attendance_token",
		TargetID:   token.ID,
		Detail:     map[string]interface{}{"course_id": course.ID, "expires_at": token.ExpiresAt},
	})

	return resp, nil
}

// Resolve maps a token string to its course. Expiry is re-checked
// against the clock on every call; a token whose stored flag lags its
// expiry is deactivated opportunistically.
func (s *TokenService) Resolve(ctx context.Context, tokenString string) (*dto.ResolveTokenResponse, error) {
	token, err := s.resolveToken(ctx, tokenString)
	if err != nil {
		return nil, err
	}

	course, err := s.courses.FindByID(ctx, token.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidOrExpiredToken, "invalid or expired token")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	return &dto.ResolveTokenResponse{
		TokenID:    token.ID,
		CourseID:   course.ID,
		CourseCode: course.Code,
		CourseName: course.Name,
		ExpiresAt:  token.ExpiresAt,
	}, nil
}

// Anchor returns the lecturer coordinates bound to a usable token.
// Clients poll this before a proximity check-in to display how far
// they are from the room.
func (s *TokenService) Anchor(ctx context.Context, tokenString string) (*dto.TokenAnchorResponse, error) {
	token, err := s.resolveToken(ctx, tokenString)
	if err != nil {
		return nil, err
	}

	course, err := s.courses.FindByID(ctx, token.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidOrExpiredToken, "invalid or expired token")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	lecturer, err := s.lecturers.FindByID(ctx, course.LecturerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no lecturer bound to this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lecturer")
	}
	if !lecturer.HasLocation() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no anchor recorded for this token")
	}

	return &dto.TokenAnchorResponse{
		TokenID:   token.ID,
		CourseID:  course.ID,
		Latitude:  *lecturer.Latitude,
		Longitude: *lecturer.Longitude,
	}, nil
}

// ResolveAttendanceToken returns the raw token record for a usable
// token string. Check-in flows use this to reach the course directly.
func (s *TokenService) ResolveAttendanceToken(ctx context.Context, tokenString string) (*models.AttendanceToken, error) {
	return s.resolveToken(ctx, tokenString)
}

func (s *TokenService) resolveToken(ctx context.Context, tokenString string) (*models.AttendanceToken, error) {
	if tokenString == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidOrExpiredToken, "invalid or expired token")
	}

	token, err := s.tokens.FindActiveByString(ctx, tokenString)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidOrExpiredToken, "invalid or expired token")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve token")
	}

	if !token.Usable(time.Now().UTC()) {
		if err := s.tokens.Deactivate(ctx, token.ID); err != nil {
			s.logger.Warn("failed to deactivate expired token", zap.String("token_id", token.ID), zap.Error(err))
		}
		return nil, appErrors.Clone(appErrors.ErrInvalidOrExpiredToken, "invalid or expired token")
	}

	return token, nil
}

// Deactivate disables a token ahead of its expiry.
func (s *TokenService) Deactivate(ctx context.Context, userID, tokenID string) error {
	token, err := s.tokens.FindByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "token not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load token")
	}

	if err := s.tokens.Deactivate(ctx, token.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate token")
	}

	s.auditor.Record(ctx, audit.Event{
		Component:  models.AuditComponentToken,
		Action:     models.AuditActionTokenRevoked,
		ActorID:    &userID,
		TargetType: "attendance_token",
		TargetID:   token.ID,
	})

	return nil
}

// ListByCourse returns tokens issued for a course, newest first.
func (s *TokenService) ListByCourse(ctx context.Context, courseID string) ([]models.AttendanceToken, error) {
	tokens, err := s.tokens.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tokens")
	}
	return tokens, nil
}

// SweepExpired flips the stored active flag on tokens past expiry.
// Intended to run periodically; correctness does not depend on it
// because Resolve re-checks expiry on every read.
func (s *TokenService) SweepExpired(ctx context.Context) (int64, error) {
	swept, err := s.tokens.DeactivateExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sweep expired tokens")
	}
	if swept > 0 {
		s.logger.Info("deactivated expired tokens", zap.Int64("count", swept))
	}
	return swept, nil
}

// renderQR encodes the token string as a QR image and stores it on the
// record so it persists alongside the token. Rendering failures are
// logged and skipped; the token still works typed by hand.
func (s *TokenService) renderQR(token *models.AttendanceToken) {
	if s.qr == nil {
		return
	}
	encoded, err := s.qr.RenderBase64(token.Token)
	if err != nil {
		s.logger.Warn("failed to render qr code", zap.String("token", token.Token), zap.Error(err))
		token.QRPNG = nil
		return
	}
	token.QRPNG = &encoded
}

func (s *TokenService) generateTokenString() (string, error) {
	buf := make([]byte, s.config.Length)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = tokenAlphabet[n.Int64()]
	}
	return string(buf), nil
}
