package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/umscc/permit-api/internal/models"
)

func newUserRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func userRows(user models.User) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "username", "password_hash", "full_name", "role", "active", "last_login", "created_at", "updated_at"}).
		AddRow(user.ID, user.Username, user.PasswordHash, user.FullName, user.Role, user.Active, user.LastLogin, user.CreatedAt, user.UpdatedAt)
}

func TestUserRepositoryCreateAndFind(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	user := &models.User{
		Username:     "officer1",
		PasswordHash: "$2a$10$hash",
		FullName:     "Officer One",
		Role:         models.RolePermittingOfficer,
		Active:       true,
	}
	require.NoError(t, repo.Create(context.Background(), user))
	require.NotEmpty(t, user.ID)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, username, password_hash")).
		WithArgs("officer1").
		WillReturnRows(userRows(*user))

	found, err := repo.FindByUsername(context.Background(), "officer1")
	require.NoError(t, err)
	require.Equal(t, user.ID, found.ID)
	require.Equal(t, models.RolePermittingOfficer, found.Role)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	role := models.RoleChairperson
	active := true
	user := models.User{ID: "u1", Username: "chair", Role: role, Active: true, CreatedAt: time.Now(), UpdatedAt: time.Now()}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, username, password_hash")).
		WithArgs(role, active, "%chair%").
		WillReturnRows(userRows(user))

	list, err := repo.List(context.Background(), models.UserFilter{Role: &role, Active: &active, Search: "Chair"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "u1", list[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryRefreshTokenLifecycle(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO refresh_tokens")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, repo.CreateRefreshToken(context.Background(), &models.RefreshToken{
		ID:        "t1",
		UserID:    "u1",
		Token:     "opaque",
		ExpiresAt: now.Add(24 * time.Hour),
		CreatedAt: now,
	}))

	rows := sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "created_at", "revoked", "revoked_at", "ip_address", "user_agent"}).
		AddRow("t1", "u1", "opaque", now.Add(24*time.Hour), now, false, nil, "", "")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, token")).
		WithArgs("opaque").
		WillReturnRows(rows)

	found, err := repo.FindRefreshToken(context.Background(), "opaque")
	require.NoError(t, err)
	require.Equal(t, "u1", found.UserID)
	require.False(t, found.Revoked)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $1")).
		WithArgs(sqlmock.AnyArg(), "t1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.RevokeRefreshToken(context.Background(), "t1", now))
	require.NoError(t, mock.ExpectationsWereMet())
}
