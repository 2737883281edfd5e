// Package data implements the tenant store (C1): durable, company-scoped
// state for companies, users, cameras, detections, violations and sessions.
package data

import (
	"context"
	"database/sql"
	"errors"
)

var (
	// ErrRecordNotFound is returned by Get/Update/Delete operations that
	// target a row which does not exist or is not visible to the caller's
	// tenant scope.
	ErrRecordNotFound  = errors.New("record not found")
	ErrDuplicateEmail  = errors.New("email already exists")
	ErrNameTaken       = errors.New("name already in use for this company")
	ErrLimitExceeded   = errors.New("camera limit exceeded")
	ErrOptimisticLock  = errors.New("optimistic lock failure")
	ErrInvalid         = errors.New("invalid input")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// DBTX is a common interface for *sql.DB and *sql.Tx, letting model methods
// run either directly against the pool or inside a caller-managed
// transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Store bundles one model per entity over a shared DBTX. Handlers and
// services depend on *Store (or its narrower per-entity models) rather than
// on *sql.DB directly, so tests can substitute sqlmock-backed DBTX values.
type Store struct {
	DB         DBTX
	Companies  CompanyModel
	Users      UserModel
	Sessions   SessionModel
	Cameras    CameraModel
	Detections DetectionModel
	Violations ViolationModel
}

// NewStore wires every model over the same underlying DBTX.
func NewStore(db DBTX) *Store {
	return &Store{
		DB:         db,
		Companies:  CompanyModel{DB: db},
		Users:      UserModel{DB: db},
		Sessions:   SessionModel{DB: db},
		Cameras:    CameraModel{DB: db},
		Detections: DetectionModel{DB: db},
		Violations: ViolationModel{DB: db},
	}
}

// isRetryable reports whether err looks like a transient connection
// failure worth an internal bounded retry, as opposed to a constraint
// violation which must surface immediately (spec.md §4.1 failure semantics).
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded)
}
