package tenant_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/technosupport/ts-vms/internal/data"
	"github.com/technosupport/ts-vms/internal/session"
	"github.com/technosupport/ts-vms/internal/tenant"
)

func newService(t *testing.T) (*tenant.Service, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := data.NewStore(db)
	sess := session.NewManager(rdb, store)
	svc := tenant.NewService(db, store, sess)
	return svc, mock, func() { db.Close(); mr.Close() }
}

func TestCreateCompanyInsertsCompanyAndAdminInOneTransaction(t *testing.T) {
	svc, mock, cleanup := newService(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO companies").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	id, apiKey, err := svc.CreateCompany(context.Background(), tenant.CreateCompanyRequest{
		CompanyName: "Acme Yards",
		Email:       "billing@acme.io",
		MaxCameras:  10,
		AdminEmail:  "admin@acme.io",
		AdminName:   "admin",
		Password:    "Sup3rSecret!",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NotEmpty(t, apiKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCompanyRollsBackOnAdminInsertFailure(t *testing.T) {
	svc, mock, cleanup := newService(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO companies").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO users").WillReturnError(sqlmock.ErrCancelled)
	mock.ExpectRollback()

	_, _, err := svc.CreateCompany(context.Background(), tenant.CreateCompanyRequest{
		CompanyName: "Acme Yards",
		Email:       "billing@acme.io",
		MaxCameras:  10,
		AdminEmail:  "admin@acme.io",
		AdminName:   "admin",
		Password:    "Sup3rSecret!",
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCompanyRejectsMissingFields(t *testing.T) {
	svc, _, cleanup := newService(t)
	defer cleanup()

	_, _, err := svc.CreateCompany(context.Background(), tenant.CreateCompanyRequest{})
	require.ErrorIs(t, err, data.ErrInvalid)
}
