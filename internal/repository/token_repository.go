package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/unihall/attendance-api/internal/models"
)

// ErrTokenTaken signals a unique-index collision on the token string.
var ErrTokenTaken = errors.New("token string already in use")

const pqUniqueViolation = "23505"

// TokenRepository manages persistence for attendance tokens.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository constructs a TokenRepository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

const tokenColumns = `id, course_id, token, generated_at, expires_at, active, qr_png`

// Create inserts a new token. Collisions on the globally unique token
// string surface as ErrTokenTaken rather than overwriting.
func (r *TokenRepository) Create(ctx context.Context, token *models.AttendanceToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	const query = `INSERT INTO attendance_tokens (id, course_id, token, generated_at, expires_at, active, qr_png)
        VALUES (:id, :course_id, :token, :generated_at, :expires_at, :active, :qr_png)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return ErrTokenTaken
		}
		return fmt.Errorf("create token: %w", err)
	}
	return nil
}

// FindByID fetches a token by its identifier.
func (r *TokenRepository) FindByID(ctx context.Context, id string) (*models.AttendanceToken, error) {
	query := fmt.Sprintf("SELECT %s FROM attendance_tokens WHERE id = $1 LIMIT 1", tokenColumns)
	var token models.AttendanceToken
	if err := r.db.GetContext(ctx, &token, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find token by id: %w", err)
	}
	return &token, nil
}

// FindActiveByString fetches an active token by its token string.
// Expiry against the clock is the service's concern; this only honors
// the stored flag.
func (r *TokenRepository) FindActiveByString(ctx context.Context, tokenString string) (*models.AttendanceToken, error) {
	query := fmt.Sprintf("SELECT %s FROM attendance_tokens WHERE token = $1 AND active = TRUE LIMIT 1", tokenColumns)
	var token models.AttendanceToken
	if err := r.db.GetContext(ctx, &token, query, tokenString); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find token by string: %w", err)
	}
	return &token, nil
}

// Deactivate permanently disables a token.
func (r *TokenRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE attendance_tokens SET active = FALSE WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("deactivate token: %w", err)
	}
	return nil
}

// ListByCourse returns tokens issued for a course, newest first.
func (r *TokenRepository) ListByCourse(ctx context.Context, courseID string) ([]models.AttendanceToken, error) {
	query := fmt.Sprintf("SELECT %s FROM attendance_tokens WHERE course_id = $1 ORDER BY generated_at DESC", tokenColumns)
	var tokens []models.AttendanceToken
	if err := r.db.SelectContext(ctx, &tokens, query, courseID); err != nil {
		return nil, fmt.Errorf("list tokens by course: %w", err)
	}
	return tokens, nil
}

// DeactivateExpired flips the stored flag for tokens past their expiry.
// Lets reads rely on the flag without a background sweeper being load
// bearing; resolve still re-checks expiry against the clock.
func (r *TokenRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `UPDATE attendance_tokens SET active = FALSE WHERE active = TRUE AND expires_at <= $1`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("deactivate expired tokens: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate expired result: %w", err)
	}
	return affected, nil
}
