package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/technosupport/ts-vms/internal/data"
	"github.com/technosupport/ts-vms/internal/session"
)

func newManager(t *testing.T) (*session.Manager, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := data.NewStore(db)
	mgr := session.NewManager(rdb, store)
	return mgr, mock, func() { db.Close(); mr.Close() }
}

func TestCreateAndValidateSession(t *testing.T) {
	mgr, mock, cleanup := newManager(t)
	defer cleanup()

	userID := uuid.New()
	companyID := uuid.New()
	uc := &data.UserCtx{UserID: userID, CompanyID: companyID, Role: data.RoleAdmin}

	mock.ExpectExec("INSERT INTO sessions").WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := mgr.Create(context.Background(), userID, companyID, "127.0.0.1", "test-agent", uc)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// Validate hits the warmed Redis cache; the only store queries are the
	// user and company status re-checks that gate every cache hit.
	now := time.Now()
	mock.ExpectQuery("SELECT id, company_id, username").WillReturnRows(
		sqlmock.NewRows([]string{"id", "company_id", "username", "email", "password_hash", "role", "permissions", "last_login", "status", "created_at"}).
			AddRow(userID.String(), companyID.String(), "admin", "admin@acme.io", "x", "admin", "{}", nil, "active", now))
	mock.ExpectQuery("SELECT id, company_name").WillReturnRows(
		sqlmock.NewRows([]string{"id", "company_name", "sector", "contact", "email", "phone", "address", "max_cameras", "subscription_type", "subscription_start", "subscription_end", "status", "api_key", "required_ppe", "optional_ppe", "created_at"}).
			AddRow(companyID.String(), "Acme", "construction", "", "billing@acme.io", "", "", 10, "standard", now, now, "active", "k", "{}", "{}", now))

	got, err := mgr.Validate(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, userID, got.UserID)
	require.Equal(t, companyID, got.CompanyID)
}

func TestValidateFallsBackToStoreOnCacheMiss(t *testing.T) {
	mgr, mock, cleanup := newManager(t)
	defer cleanup()

	userID := uuid.New()
	companyID := uuid.New()

	rows := sqlmock.NewRows([]string{"id", "company_id", "role", "permissions", "status", "status"}).
		AddRow(userID.String(), companyID.String(), "admin", "{}", "active", "active")
	mock.ExpectQuery("SELECT u.id, u.company_id").WillReturnRows(rows)

	got, err := mgr.Validate(context.Background(), "some-opaque-id-not-cached")
	require.NoError(t, err)
	require.Equal(t, userID, got.UserID)
}

func TestLockoutAfterThreshold(t *testing.T) {
	mgr, _, cleanup := newManager(t)
	defer cleanup()

	ctx := context.Background()
	for i := 0; i < session.LockoutThreshold-1; i++ {
		require.NoError(t, mgr.RecordFailedAttempt(ctx, "c1", "a@acme.io"))
		locked, err := mgr.CheckLockout(ctx, "c1", "a@acme.io")
		require.NoError(t, err)
		require.False(t, locked)
	}
	require.NoError(t, mgr.RecordFailedAttempt(ctx, "c1", "a@acme.io"))
	locked, err := mgr.CheckLockout(ctx, "c1", "a@acme.io")
	require.NoError(t, err)
	require.True(t, locked)
}
