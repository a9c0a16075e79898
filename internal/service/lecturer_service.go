package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/unihall/attendance-api/internal/models"
	appErrors "github.com/unihall/attendance-api/pkg/errors"
	"github.com/unihall/attendance-api/pkg/geo"
)

type lecturerRepository interface {
	List(ctx context.Context, filter models.LecturerFilter) ([]models.Lecturer, int, error)
	FindByID(ctx context.Context, id string) (*models.Lecturer, error)
	FindByUserID(ctx context.Context, userID string) (*models.Lecturer, error)
	ExistsByStaffID(ctx context.Context, staffID string, excludeID string) (bool, error)
	Create(ctx context.Context, lecturer *models.Lecturer) error
	Update(ctx context.Context, lecturer *models.Lecturer) error
	UpdateLocation(ctx context.Context, id string, lat, lon float64) error
}

// CreateLecturerRequest captures fields for creating lecturer profiles.
type CreateLecturerRequest struct {
	UserID     string  `json:"user_id" validate:"required,uuid"`
	StaffID    string  `json:"staff_id" validate:"required"`
	FullName   string  `json:"full_name" validate:"required"`
	Department *string `json:"department,omitempty"`
	Phone      *string `json:"phone,omitempty"`
}

// UpdateLecturerRequest modifies lecturer profile fields.
type UpdateLecturerRequest struct {
	FullName   string  `json:"full_name" validate:"required"`
	Department *string `json:"department,omitempty"`
	Phone      *string `json:"phone,omitempty"`
}

// LecturerService handles lecturer profile workflows.
type LecturerService struct {
	repo      lecturerRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLecturerService creates a new lecturer service.
func NewLecturerService(repo lecturerRepository, validate *validator.Validate, logger *zap.Logger) *LecturerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LecturerService{repo: repo, validator: validate, logger: logger}
}

// List returns paginated lecturers.
func (s *LecturerService) List(ctx context.Context, filter models.LecturerFilter) ([]models.Lecturer, *models.Pagination, error) {
	lecturers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lecturers")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return lecturers, pagination, nil
}

// Get returns a lecturer by identifier.
func (s *LecturerService) Get(ctx context.Context, id string) (*models.Lecturer, error) {
	lecturer, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lecturer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lecturer")
	}
	return lecturer, nil
}

// Profile returns the lecturer profile bound to a user account.
func (s *LecturerService) Profile(ctx context.Context, userID string) (*models.Lecturer, error) {
	lecturer, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no lecturer profile for this account")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lecturer")
	}
	return lecturer, nil
}

// Create adds a lecturer profile ensuring staff ID uniqueness.
func (s *LecturerService) Create(ctx context.Context, req CreateLecturerRequest) (*models.Lecturer, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lecturer payload")
	}

	staffID := strings.TrimSpace(req.StaffID)
	exists, err := s.repo.ExistsByStaffID(ctx, staffID, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check staff ID")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "staff ID already in use")
	}

	lecturer := &models.Lecturer{
		UserID:     req.UserID,
		StaffID:    staffID,
		FullName:   strings.TrimSpace(req.FullName),
		Department: req.Department,
		Phone:      req.Phone,
	}
	if err := s.repo.Create(ctx, lecturer); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lecturer")
	}
	return lecturer, nil
}

// Update modifies a lecturer profile. The staff ID is immutable once
// assigned.
func (s *LecturerService) Update(ctx context.Context, id string, req UpdateLecturerRequest) (*models.Lecturer, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lecturer payload")
	}

	lecturer, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	lecturer.FullName = strings.TrimSpace(req.FullName)
	lecturer.Department = req.Department
	lecturer.Phone = req.Phone
	if err := s.repo.Update(ctx, lecturer); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lecturer")
	}
	return lecturer, nil
}

// UpdateLocation records the calling lecturer's current coordinates,
// which anchor proximity checks for their sessions.
func (s *LecturerService) UpdateLocation(ctx context.Context, userID string, lat, lon float64) error {
	point := geo.Point{Lat: lat, Lon: lon}
	if !point.Valid() {
		return appErrors.Clone(appErrors.ErrInvalidCoordinate, "invalid coordinates")
	}

	lecturer, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.repo.UpdateLocation(ctx, lecturer.ID, lat, lon); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update location")
	}
	return nil
}
