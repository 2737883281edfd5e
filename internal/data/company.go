package data

import (
	"database/sql"
	"time"

	"context"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type CompanyStatus string

const (
	CompanyActive    CompanyStatus = "active"
	CompanySuspended CompanyStatus = "suspended"
)

// RequiredPPE mirrors spec.md §3's `required_ppe: {required:[...], optional:[...]}`.
type RequiredPPE struct {
	Required []PPEClass `json:"required"`
	Optional []PPEClass `json:"optional"`
}

type Company struct {
	ID                 uuid.UUID     `json:"company_id"`
	CompanyName        string        `json:"company_name"`
	Sector             string        `json:"sector"`
	Contact            string        `json:"contact"`
	Email              string        `json:"email"`
	Phone              string        `json:"phone"`
	Address            string        `json:"address"`
	MaxCameras         int           `json:"max_cameras"`
	SubscriptionType   string        `json:"subscription_type"`
	SubscriptionStart  time.Time     `json:"subscription_start"`
	SubscriptionEnd    time.Time     `json:"subscription_end"`
	Status             CompanyStatus `json:"status"`
	APIKey             string        `json:"api_key"`
	RequiredPPE        RequiredPPE   `json:"required_ppe"`
	CreatedAt          time.Time     `json:"created_at"`
}

type CompanyModel struct {
	DB DBTX
}

// Create inserts a new company row. Callers (the tenant service) are
// responsible for generating ID and APIKey and defaulting the subscription
// window to [now, now+365d] per spec.md §4.1.
func (m CompanyModel) Create(ctx context.Context, c *Company) error {
	query := `
		INSERT INTO companies (
			id, company_name, sector, contact, email, phone, address,
			max_cameras, subscription_type, subscription_start, subscription_end,
			status, api_key, required_ppe, optional_ppe, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`
	_, err := m.DB.ExecContext(ctx, query,
		c.ID, c.CompanyName, c.Sector, c.Contact, c.Email, c.Phone, c.Address,
		c.MaxCameras, c.SubscriptionType, c.SubscriptionStart, c.SubscriptionEnd,
		c.Status, c.APIKey, pq.Array(ppeStrings(c.RequiredPPE.Required)), pq.Array(ppeStrings(c.RequiredPPE.Optional)),
		c.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

func (m CompanyModel) GetByID(ctx context.Context, id uuid.UUID) (*Company, error) {
	query := `
		SELECT id, company_name, sector, contact, email, phone, address,
		       max_cameras, subscription_type, subscription_start, subscription_end,
		       status, api_key, required_ppe, optional_ppe, created_at
		FROM companies WHERE id = $1`
	return m.scanOne(m.DB.QueryRowContext(ctx, query, id))
}

func (m CompanyModel) GetByEmail(ctx context.Context, email string) (*Company, error) {
	query := `
		SELECT id, company_name, sector, contact, email, phone, address,
		       max_cameras, subscription_type, subscription_start, subscription_end,
		       status, api_key, required_ppe, optional_ppe, created_at
		FROM companies WHERE email = $1`
	return m.scanOne(m.DB.QueryRowContext(ctx, query, email))
}

func (m CompanyModel) scanOne(row *sql.Row) (*Company, error) {
	var c Company
	var required, optional []string
	err := row.Scan(
		&c.ID, &c.CompanyName, &c.Sector, &c.Contact, &c.Email, &c.Phone, &c.Address,
		&c.MaxCameras, &c.SubscriptionType, &c.SubscriptionStart, &c.SubscriptionEnd,
		&c.Status, &c.APIKey, pq.Array(&required), pq.Array(&optional), &c.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	c.RequiredPPE = RequiredPPE{Required: ppeClasses(required), Optional: ppeClasses(optional)}
	return &c, nil
}

// UpdateRequiredPPE is the store side of PUT /ppe-config.
func (m CompanyModel) UpdateRequiredPPE(ctx context.Context, id uuid.UUID, ppe RequiredPPE) error {
	query := `UPDATE companies SET required_ppe = $1, optional_ppe = $2 WHERE id = $3`
	res, err := m.DB.ExecContext(ctx, query, pq.Array(ppeStrings(ppe.Required)), pq.Array(ppeStrings(ppe.Optional)), id)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (m CompanyModel) SetStatus(ctx context.Context, id uuid.UUID, status CompanyStatus) error {
	_, err := m.DB.ExecContext(ctx, `UPDATE companies SET status = $1 WHERE id = $2`, status, id)
	return err
}

// RenewSubscription extends the subscription window and appends a row to
// subscription_history (SPEC_FULL.md §3).
func (m CompanyModel) RenewSubscription(ctx context.Context, id uuid.UUID, subType string, start, end time.Time) error {
	_, err := m.DB.ExecContext(ctx,
		`UPDATE companies SET subscription_type = $1, subscription_start = $2, subscription_end = $3 WHERE id = $4`,
		subType, start, end, id)
	if err != nil {
		return err
	}
	_, err = m.DB.ExecContext(ctx,
		`INSERT INTO subscription_history (id, company_id, subscription_type, window_start, window_end, created_at)
		 VALUES ($1,$2,$3,$4,$5,NOW())`,
		uuid.New(), id, subType, start, end)
	return err
}

func ppeStrings(classes []PPEClass) []string {
	out := make([]string, len(classes))
	for i, c := range classes {
		out[i] = string(c)
	}
	return out
}

func ppeClasses(strs []string) []PPEClass {
	out := make([]PPEClass, len(strs))
	for i, s := range strs {
		out[i] = PPEClass(s)
	}
	return out
}
