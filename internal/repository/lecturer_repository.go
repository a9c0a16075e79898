package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/unihall/attendance-api/internal/models"
)

// LecturerRepository manages persistence for lecturer profiles.
type LecturerRepository struct {
	db *sqlx.DB
}

// NewLecturerRepository constructs a LecturerRepository.
func NewLecturerRepository(db *sqlx.DB) *LecturerRepository {
	return &LecturerRepository{db: db}
}

const lecturerColumns = `id, user_id, staff_id, full_name, department, phone, latitude, longitude, created_at, updated_at`

// List returns lecturers matching the provided filters.
func (r *LecturerRepository) List(ctx context.Context, filter models.LecturerFilter) ([]models.Lecturer, int, error) {
	base := "FROM lecturers WHERE 1=1"
	var args []interface{}

	if filter.Search != "" {
		base += fmt.Sprintf(" AND (LOWER(full_name) LIKE $%d OR LOWER(staff_id) LIKE $%d)", len(args)+1, len(args)+1)
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{"full_name": true, "staff_id": true, "created_at": true}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", lecturerColumns, base, sortBy, order, size, offset)

	var lecturers []models.Lecturer
	if err := r.db.SelectContext(ctx, &lecturers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list lecturers: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count lecturers: %w", err)
	}
	return lecturers, total, nil
}

// FindByID fetches a lecturer by ID.
func (r *LecturerRepository) FindByID(ctx context.Context, id string) (*models.Lecturer, error) {
	query := fmt.Sprintf("SELECT %s FROM lecturers WHERE id = $1 LIMIT 1", lecturerColumns)
	var lecturer models.Lecturer
	if err := r.db.GetContext(ctx, &lecturer, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find lecturer by id: %w", err)
	}
	return &lecturer, nil
}

// FindByUserID fetches the lecturer profile bound to a user account.
func (r *LecturerRepository) FindByUserID(ctx context.Context, userID string) (*models.Lecturer, error) {
	query := fmt.Sprintf("SELECT %s FROM lecturers WHERE user_id = $1 LIMIT 1", lecturerColumns)
	var lecturer models.Lecturer
	if err := r.db.GetContext(ctx, &lecturer, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find lecturer by user id: %w", err)
	}
	return &lecturer, nil
}

// ExistsByStaffID checks staff ID uniqueness, optionally excluding an ID.
func (r *LecturerRepository) ExistsByStaffID(ctx context.Context, staffID string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM lecturers WHERE staff_id = $1"
	args := []interface{}{staffID}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check staff id: %w", err)
	}
	return true, nil
}

// Create inserts a new lecturer profile.
func (r *LecturerRepository) Create(ctx context.Context, lecturer *models.Lecturer) error {
	if lecturer.ID == "" {
		lecturer.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if lecturer.CreatedAt.IsZero() {
		lecturer.CreatedAt = now
	}
	lecturer.UpdatedAt = now
	const query = `INSERT INTO lecturers (id, user_id, staff_id, full_name, department, phone, latitude, longitude, created_at, updated_at)
        VALUES (:id, :user_id, :staff_id, :full_name, :department, :phone, :latitude, :longitude, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, lecturer); err != nil {
		return fmt.Errorf("create lecturer: %w", err)
	}
	return nil
}

// Update modifies an existing lecturer profile.
func (r *LecturerRepository) Update(ctx context.Context, lecturer *models.Lecturer) error {
	lecturer.UpdatedAt = time.Now().UTC()
	const query = `UPDATE lecturers SET staff_id = :staff_id, full_name = :full_name, department = :department, phone = :phone, latitude = :latitude, longitude = :longitude, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, lecturer); err != nil {
		return fmt.Errorf("update lecturer: %w", err)
	}
	return nil
}

// UpdateLocation overwrites the lecturer's last-known coordinates.
func (r *LecturerRepository) UpdateLocation(ctx context.Context, id string, lat, lon float64) error {
	const query = `UPDATE lecturers SET latitude = $2, longitude = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, lat, lon, time.Now().UTC()); err != nil {
		return fmt.Errorf("update lecturer location: %w", err)
	}
	return nil
}
