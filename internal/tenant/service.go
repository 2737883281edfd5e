// Package tenant implements C1's two operations that don't live naturally
// inside a single internal/data model: CreateCompany (which spans the
// companies and users tables in one transaction) and Authenticate (which
// joins a password check onto a company/user lookup). Everything else C1
// names (CreateSession/ValidateSession/RevokeSession, AddCamera/..., stats)
// is either a thin pass-through to internal/data or lives in
// internal/session and internal/cameras; this package is the seam that
// wires them together behind the operation names spec.md §4.1 gives C1.
//
// Transaction handling is grounded on the teacher's
// internal/api/auth_handlers.go `h.DB.BeginTx(...)` pattern.
package tenant

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/technosupport/ts-vms/internal/auth"
	"github.com/technosupport/ts-vms/internal/data"
	"github.com/technosupport/ts-vms/internal/session"
)

var (
	ErrBadCredentials = errors.New("invalid email or password")
	ErrSuspended      = errors.New("account or company suspended")
)

// CreateCompanyRequest bundles the new company's profile plus its bootstrap
// admin user's credentials (spec.md §4.1: "also inserts the bootstrap admin
// user").
type CreateCompanyRequest struct {
	CompanyName string
	Sector      string
	Contact     string
	Email       string
	Phone       string
	Address     string
	MaxCameras  int
	AdminEmail  string
	AdminName   string
	Password    string
}

type Service struct {
	db    *sql.DB
	store *data.Store
	sess  *session.Manager
}

func NewService(db *sql.DB, store *data.Store, sess *session.Manager) *Service {
	return &Service{db: db, store: store, sess: sess}
}

// apiKeyBytes gives 256 bits of entropy before base64 encoding, matching
// spec.md's ">= 256 bits" floor for api_key.
const apiKeyBytes = 32

func newAPIKey() (string, error) {
	buf := make([]byte, apiKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CreateCompany inserts the company row and its bootstrap admin user in one
// transaction: either both rows exist or neither does.
func (s *Service) CreateCompany(ctx context.Context, req CreateCompanyRequest) (companyID uuid.UUID, apiKey string, err error) {
	if req.CompanyName == "" || req.Email == "" || req.AdminEmail == "" || req.Password == "" {
		return uuid.Nil, "", data.ErrInvalid
	}

	apiKey, err = newAPIKey()
	if err != nil {
		return uuid.Nil, "", err
	}
	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		return uuid.Nil, "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, "", data.ErrStoreUnavailable
	}
	defer tx.Rollback()

	companies := data.CompanyModel{DB: tx}
	users := data.UserModel{DB: tx}

	now := time.Now().UTC()
	company := &data.Company{
		ID:                uuid.New(),
		CompanyName:       req.CompanyName,
		Sector:            req.Sector,
		Contact:           req.Contact,
		Email:             req.Email,
		Phone:             req.Phone,
		Address:           req.Address,
		MaxCameras:        req.MaxCameras,
		SubscriptionType:  "standard",
		SubscriptionStart: now,
		SubscriptionEnd:   now.AddDate(1, 0, 0),
		Status:            data.CompanyActive,
		APIKey:            apiKey,
		CreatedAt:         now,
	}
	if err := companies.Create(ctx, company); err != nil {
		return uuid.Nil, "", err
	}

	admin := &data.User{
		ID:           uuid.New(),
		CompanyID:    company.ID,
		Username:     req.AdminName,
		Email:        req.AdminEmail,
		PasswordHash: passwordHash,
		Role:         data.RoleAdmin,
		Status:       data.UserActive,
		CreatedAt:    now,
	}
	if err := users.Create(ctx, admin); err != nil {
		return uuid.Nil, "", err
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, "", data.ErrStoreUnavailable
	}
	log.Printf("[tenant:%s] company created with bootstrap admin %s", company.ID, admin.Email)
	return company.ID, apiKey, nil
}

// Authenticate implements spec.md §4.1: a constant-time bcrypt compare,
// returning a UserCtx only when both the user and its company are active.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*data.UserCtx, uuid.UUID, error) {
	u, err := s.store.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			return nil, uuid.Nil, ErrBadCredentials
		}
		return nil, uuid.Nil, err
	}
	if !auth.CheckPassword(password, u.PasswordHash) {
		return nil, uuid.Nil, ErrBadCredentials
	}
	if u.Status != data.UserActive {
		return nil, uuid.Nil, ErrSuspended
	}

	company, err := s.store.Companies.GetByID(ctx, u.CompanyID)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if company.Status != data.CompanyActive {
		return nil, uuid.Nil, ErrSuspended
	}

	_ = s.store.Users.TouchLastLogin(ctx, u.ID)
	return &data.UserCtx{
		UserID: u.ID, CompanyID: u.CompanyID, Role: u.Role, Permissions: u.Permissions,
		CompanyStat: company.Status, UserStat: u.Status,
	}, u.ID, nil
}

// GetStats implements spec.md §4.1's company-scoped dashboard aggregate.
// The trend formula ((today-avg7)/avg7*100, 0 when avg7=0, where avg7 is
// the mean daily detection count of the six days before today) resolves
// spec.md §9 Open Question 4; see DESIGN.md.
func (s *Service) GetStats(ctx context.Context, companyID uuid.UUID) (*data.StatsCounts, float64, error) {
	now := time.Now().UTC()

	active, err := s.store.Cameras.CountActive(ctx, companyID)
	if err != nil {
		return nil, 0, err
	}
	todayViolations, err := s.store.Violations.CountToday(ctx, companyID, now)
	if err != nil {
		return nil, 0, err
	}
	todayDetections, err := s.store.Detections.DailyCount(ctx, companyID, now)
	if err != nil {
		return nil, 0, err
	}
	monthly, err := s.store.Detections.MonthlyCount(ctx, companyID, now)
	if err != nil {
		return nil, 0, err
	}

	daily := make([]int, 7)
	var sum int
	for i := 6; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		n, err := s.store.Detections.DailyCount(ctx, companyID, day)
		if err != nil {
			return nil, 0, err
		}
		daily[6-i] = n
		if i != 0 {
			sum += n
		}
	}

	avg7 := float64(sum) / 6
	var trend float64
	if avg7 != 0 {
		trend = (float64(todayDetections) - avg7) / avg7 * 100
	}

	return &data.StatsCounts{
		ActiveCameras:   active,
		TodayViolations: todayViolations,
		TodayDetections: todayDetections,
		Last7DayDaily:   daily,
		MonthlyTotal:    monthly,
	}, trend, nil
}

// CreateSession, ValidateSession and RevokeSession delegate to
// internal/session.Manager, which owns the opaque-id and Redis-cache
// concerns (spec.md §4.7).
func (s *Service) CreateSession(ctx context.Context, userID, companyID uuid.UUID, ip, ua string, uc *data.UserCtx) (string, error) {
	return s.sess.Create(ctx, userID, companyID, ip, ua, uc)
}

func (s *Service) ValidateSession(ctx context.Context, id string) (*data.UserCtx, error) {
	return s.sess.Validate(ctx, id)
}

func (s *Service) RevokeSession(ctx context.Context, id string) error {
	return s.sess.Revoke(ctx, id)
}

// RecordDetection and RecordViolation are append-only passthroughs
// (spec.md §4.1).
func (s *Service) RecordDetection(ctx context.Context, d *data.Detection) error {
	return s.store.Detections.Record(ctx, d)
}

func (s *Service) RecordViolation(ctx context.Context, v *data.Violation) error {
	return s.store.Violations.Record(ctx, v)
}
