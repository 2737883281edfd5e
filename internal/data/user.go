package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type UserRole string

const (
	RoleAdmin    UserRole = "admin"
	RoleManager  UserRole = "manager"
	RoleOperator UserRole = "operator"
	RoleViewer   UserRole = "viewer"
)

type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserDisabled UserStatus = "disabled"
)

type User struct {
	ID           uuid.UUID  `json:"user_id"`
	CompanyID    uuid.UUID  `json:"company_id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         UserRole   `json:"role"`
	Permissions  []string   `json:"permissions"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
}

type UserModel struct {
	DB DBTX
}

func (m UserModel) Create(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (id, company_id, username, email, password_hash, role, permissions, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := m.DB.ExecContext(ctx, query,
		u.ID, u.CompanyID, u.Username, u.Email, u.PasswordHash, u.Role, pq.Array(u.Permissions), u.Status, u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

func (m UserModel) scan(row *sql.Row) (*User, error) {
	var u User
	var perms []string
	var lastLogin sql.NullTime
	err := row.Scan(&u.ID, &u.CompanyID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, pq.Array(&perms), &lastLogin, &u.Status, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Permissions = perms
	if lastLogin.Valid {
		u.LastLogin = &lastLogin.Time
	}
	return &u, nil
}

const userSelect = `SELECT id, company_id, username, email, password_hash, role, permissions, last_login, status, created_at FROM users`

func (m UserModel) GetByEmail(ctx context.Context, email string) (*User, error) {
	return m.scan(m.DB.QueryRowContext(ctx, userSelect+` WHERE email = $1`, email))
}

func (m UserModel) GetByID(ctx context.Context, companyID, id uuid.UUID) (*User, error) {
	return m.scan(m.DB.QueryRowContext(ctx, userSelect+` WHERE id = $1 AND company_id = $2`, id, companyID))
}

func (m UserModel) List(ctx context.Context, companyID uuid.UUID) ([]*User, error) {
	rows, err := m.DB.QueryContext(ctx, userSelect+` WHERE company_id = $1 ORDER BY created_at`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		var u User
		var perms []string
		var lastLogin sql.NullTime
		if err := rows.Scan(&u.ID, &u.CompanyID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, pq.Array(&perms), &lastLogin, &u.Status, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Permissions = perms
		if lastLogin.Valid {
			u.LastLogin = &lastLogin.Time
		}
		out = append(out, &u)
	}
	return out, nil
}

func (m UserModel) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	_, err := m.DB.ExecContext(ctx, `UPDATE users SET last_login = NOW() WHERE id = $1`, id)
	return err
}

func (m UserModel) SetStatus(ctx context.Context, companyID, id uuid.UUID, status UserStatus) error {
	res, err := m.DB.ExecContext(ctx, `UPDATE users SET status = $1 WHERE id = $2 AND company_id = $3`, status, id, companyID)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}
