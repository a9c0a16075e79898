package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unihall/attendance-api/internal/models"
	appErrors "github.com/unihall/attendance-api/pkg/errors"
)

type mockUserRepo struct {
	users   map[string]*models.User
	deleted []string
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var users []models.User
	for _, u := range m.users {
		users = append(users, *u)
	}
	return users, len(users), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.users == nil {
		m.users = make(map[string]*models.User)
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func TestUserCreateHashesPassword(t *testing.T) {
	repo := &mockUserRepo{}
	svc := NewUserService(repo, nil, nil, nil)

	user, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "Ada@Uni.Test",
		FullName: "Ada",
		Role:     models.RoleStudent,
		Active:   true,
		Password: "secret1",
	}, "admin-1")

	require.NoError(t, err)
	assert.Equal(t, "ada@uni.test", user.Email)
	assert.NotEqual(t, "secret1", user.PasswordHash)
	assert.NotEmpty(t, user.ID)
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"u1": {ID: "u1", Email: "ada@uni.test"},
	}}
	svc := NewUserService(repo, nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "ada@uni.test",
		FullName: "Ada",
		Role:     models.RoleStudent,
		Password: "secret1",
	}, "admin-1")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUserCreateRejectsUnknownRole(t *testing.T) {
	svc := NewUserService(&mockUserRepo{}, nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "ada@uni.test",
		FullName: "Ada",
		Role:     "WIZARD",
		Password: "secret1",
	}, "admin-1")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserUpdateTogglesActive(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"u1": {ID: "u1", Email: "ada@uni.test", FullName: "Ada", Role: models.RoleStudent, Active: true},
	}}
	svc := NewUserService(repo, nil, nil, nil)

	inactive := false
	user, err := svc.Update(context.Background(), "u1", UpdateUserRequest{
		FullName: "Ada L.",
		Role:     models.RoleStudent,
		Active:   &inactive,
	}, "admin-1")

	require.NoError(t, err)
	assert.Equal(t, "Ada L.", user.FullName)
	assert.False(t, user.Active)
}

func TestUserDelete(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"u1": {ID: "u1", Email: "ada@uni.test", Active: true},
	}}
	svc := NewUserService(repo, nil, nil, nil)

	err := svc.Delete(context.Background(), "u1", "admin-1")

	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, repo.deleted)
}

func TestUserDeleteMissing(t *testing.T) {
	svc := NewUserService(&mockUserRepo{}, nil, nil, nil)

	err := svc.Delete(context.Background(), "nope", "admin-1")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
