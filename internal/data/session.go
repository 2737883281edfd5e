package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionRevoked SessionStatus = "revoked"
)

// Session is stored keyed by the raw opaque session id, with a row-level
// status flag for revocation; see internal/session for id generation
// (spec.md §4.7: "stored only by reference (hashed or raw with a row-level
// status flag)").
type Session struct {
	ID        string        `json:"session_id"`
	UserID    uuid.UUID     `json:"user_id"`
	CompanyID uuid.UUID     `json:"company_id"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
	IPAddress string        `json:"ip_address"`
	UserAgent string        `json:"user_agent"`
	Status    SessionStatus `json:"status"`
}

type SessionModel struct {
	DB DBTX
}

func (m SessionModel) Create(ctx context.Context, s *Session) error {
	query := `
		INSERT INTO sessions (id, user_id, company_id, created_at, expires_at, ip_address, user_agent, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := m.DB.ExecContext(ctx, query, s.ID, s.UserID, s.CompanyID, s.CreatedAt, s.ExpiresAt, s.IPAddress, s.UserAgent, s.Status)
	return err
}

// UserCtx is the joined view returned by session/credential validation:
// everything a handler needs to authorize a request without a second query.
type UserCtx struct {
	UserID      uuid.UUID
	CompanyID   uuid.UUID
	Role        UserRole
	Permissions []string
	CompanyStat CompanyStatus
	UserStat    UserStatus
}

// ValidateSession implements spec.md §3's Session invariant: a user is
// returned only if the session is active, not expired, its user is active
// and the user's company is active. A session exactly at expires_at is
// treated as expired (spec.md §8 boundary behavior).
func (m SessionModel) ValidateSession(ctx context.Context, id string) (*UserCtx, error) {
	query := `
		SELECT u.id, u.company_id, u.role, u.permissions, c.status, u.status
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		JOIN companies c ON c.id = s.company_id
		WHERE s.id = $1 AND s.status = 'active' AND s.expires_at > NOW()`
	var uc UserCtx
	var perms []string
	row := m.DB.QueryRowContext(ctx, query, id)
	err := row.Scan(&uc.UserID, &uc.CompanyID, &uc.Role, pq.Array(&perms), &uc.CompanyStat, &uc.UserStat)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	uc.Permissions = perms
	if uc.CompanyStat != CompanyActive || uc.UserStat != UserActive {
		return nil, ErrRecordNotFound
	}
	return &uc, nil
}

func (m SessionModel) Revoke(ctx context.Context, id string) error {
	_, err := m.DB.ExecContext(ctx, `UPDATE sessions SET status = 'revoked' WHERE id = $1`, id)
	return err
}

func (m SessionModel) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := m.DB.ExecContext(ctx, `UPDATE sessions SET status = 'revoked' WHERE user_id = $1 AND status = 'active'`, userID)
	return err
}
