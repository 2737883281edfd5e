// Package session implements C7's opaque session issuance, Redis-backed
// caching, and login-lockout bookkeeping. Session ids are random and
// opaque (spec.md §4.7: "not a JWT; never contains the company_id in
// plaintext"); the Postgres sessions table (internal/data) is the durable
// source of truth, Redis is a cache and a fast lockout counter, modeled on
// the teacher's internal/session/redis.go pipeline idioms.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/technosupport/ts-vms/internal/data"
)

const (
	// TTL matches spec.md §3: sessions are valid for 24h.
	TTL = 24 * time.Hour

	LockoutTTL       = 15 * time.Minute
	LockoutThreshold = 5

	// idBytes gives 256 bits of entropy, comfortably over spec.md's
	// required >=192-bit floor.
	idBytes = 32

	// statusTTL bounds how long a cache hit can trust a user/company's
	// active status without re-asking Postgres. Kept far shorter than the
	// 24h session TTL so a suspend via UserModel.SetStatus/
	// CompanyModel.SetStatus takes effect within one minute instead of
	// staying valid for the life of the cached session.
	statusTTL = 60 * time.Second
)

// NewSessionID returns a random, opaque, hex-encoded identifier. It never
// embeds any identifying information.
func NewSessionID() (string, error) {
	buf := make([]byte, idBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

type cachedCtx struct {
	UserID      string   `json:"user_id"`
	CompanyID   string   `json:"company_id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// Manager issues and validates sessions, caching validated UserCtx values
// in Redis so that most requests never touch Postgres.
type Manager struct {
	rdb   *redis.Client
	store *data.Store
}

func NewManager(rdb *redis.Client, store *data.Store) *Manager {
	return &Manager{rdb: rdb, store: store}
}

func sessionKey(id string) string       { return fmt.Sprintf("session:%s", id) }
func userStatusKey(id string) string    { return fmt.Sprintf("userstatus:%s", id) }
func companyStatusKey(id string) string { return fmt.Sprintf("companystatus:%s", id) }

// Create persists the session row in Postgres and warms the Redis cache.
func (m *Manager) Create(ctx context.Context, userID, companyID uuid.UUID, ip, ua string, uc *data.UserCtx) (string, error) {
	id, err := NewSessionID()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	s := &data.Session{
		ID: id, UserID: userID, CompanyID: companyID,
		CreatedAt: now, ExpiresAt: now.Add(TTL), IPAddress: ip, UserAgent: ua,
		Status: data.SessionActive,
	}
	if err := m.store.Sessions.Create(ctx, s); err != nil {
		return "", err
	}
	if m.rdb != nil {
		m.warmCache(ctx, id, uc)
	}
	return id, nil
}

func (m *Manager) warmCache(ctx context.Context, id string, uc *data.UserCtx) {
	payload, err := json.Marshal(cachedCtx{
		UserID: uc.UserID.String(), CompanyID: uc.CompanyID.String(),
		Role: string(uc.Role), Permissions: uc.Permissions,
	})
	if err != nil {
		return
	}
	m.rdb.Set(ctx, sessionKey(id), payload, TTL)
}

// activeStatus reports whether userID and companyID are both still active,
// consulting a short-TTL status cache before Postgres. The cache entry for
// a given id is refreshed from the DB whenever it's missing or expired, so
// a suspension via UserModel.SetStatus/CompanyModel.SetStatus is visible
// here within statusTTL regardless of how long the surrounding session
// cache entry has left to live.
func (m *Manager) activeStatus(ctx context.Context, userID, companyID uuid.UUID) (bool, error) {
	userActive, err := m.cachedStatus(ctx, userStatusKey(userID.String()), string(data.UserActive), func() (string, error) {
		u, err := m.store.Users.GetByID(ctx, companyID, userID)
		if err != nil {
			return "", err
		}
		return string(u.Status), nil
	})
	if err != nil {
		return false, err
	}
	if !userActive {
		return false, nil
	}

	companyActive, err := m.cachedStatus(ctx, companyStatusKey(companyID.String()), string(data.CompanyActive), func() (string, error) {
		c, err := m.store.Companies.GetByID(ctx, companyID)
		if err != nil {
			return "", err
		}
		return string(c.Status), nil
	})
	if err != nil {
		return false, err
	}
	return companyActive, nil
}

// cachedStatus returns whether the status stored at key equals active,
// loading it from refresh and caching the result (with statusTTL) on a
// cache miss.
func (m *Manager) cachedStatus(ctx context.Context, key, active string, refresh func() (string, error)) (bool, error) {
	if m.rdb != nil {
		if got, err := m.rdb.Get(ctx, key).Result(); err == nil {
			return got == active, nil
		}
	}
	status, err := refresh()
	if err != nil {
		return false, err
	}
	if m.rdb != nil {
		m.rdb.Set(ctx, key, status, statusTTL)
	}
	return status == active, nil
}

// Validate implements spec.md §4.7 Authorize: checks the Redis cache first,
// falling back to Postgres (and repopulating the cache) on a miss or when
// Redis is unavailable — store errors never block authentication, they
// just cost an extra round trip (spec.md §7 StoreUnavailable semantics
// apply only to mutating calls, not to this read path degrading to DB).
//
// A session-cache hit does not return immediately: it still re-checks the
// user's and company's current status via activeStatus before trusting the
// cached UserCtx, since UserModel.SetStatus/CompanyModel.SetStatus never
// touch the session cache directly and a session can otherwise stay valid
// for up to TTL after a suspend.
func (m *Manager) Validate(ctx context.Context, id string) (*data.UserCtx, error) {
	if m.rdb != nil {
		if raw, err := m.rdb.Get(ctx, sessionKey(id)).Result(); err == nil {
			var c cachedCtx
			if jsonErr := json.Unmarshal([]byte(raw), &c); jsonErr == nil {
				userID, companyID := parseUUID(c.UserID), parseUUID(c.CompanyID)
				active, statusErr := m.activeStatus(ctx, userID, companyID)
				if statusErr == nil {
					if !active {
						m.rdb.Del(ctx, sessionKey(id))
						return nil, data.ErrRecordNotFound
					}
					return &data.UserCtx{
						UserID: userID, CompanyID: companyID,
						Role: data.UserRole(c.Role), Permissions: c.Permissions,
					}, nil
				}
				// Status check itself failed (e.g. store unavailable); fall
				// through to the full DB validate below rather than trusting
				// a cached entry we couldn't verify.
			}
		}
	}

	uc, err := m.store.Sessions.ValidateSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.rdb != nil {
		m.warmCache(ctx, id, uc)
	}
	return uc, nil
}

func (m *Manager) Revoke(ctx context.Context, id string) error {
	if m.rdb != nil {
		m.rdb.Del(ctx, sessionKey(id))
	}
	return m.store.Sessions.Revoke(ctx, id)
}

func (m *Manager) RevokeAllForUser(ctx context.Context, userID string) error {
	return m.store.Sessions.RevokeAllForUser(ctx, parseUUID(userID))
}

// --- login lockout (teacher: internal/session/redis.go CheckLockout/RecordFailedAttempt) ---

func lockoutKey(companyID, email string) string { return fmt.Sprintf("lockout:%s:%s", companyID, email) }
func attemptKey(companyID, email string) string { return fmt.Sprintf("lockout_count:%s:%s", companyID, email) }

func (m *Manager) CheckLockout(ctx context.Context, companyID, email string) (bool, error) {
	if m.rdb == nil {
		return false, nil
	}
	val, err := m.rdb.Get(ctx, lockoutKey(companyID, email)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == "locked", nil
}

func (m *Manager) RecordFailedAttempt(ctx context.Context, companyID, email string) error {
	if m.rdb == nil {
		return nil
	}
	key := attemptKey(companyID, email)
	count, err := m.rdb.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if count == 1 {
		m.rdb.Expire(ctx, key, LockoutTTL)
	}
	if count >= LockoutThreshold {
		m.rdb.Set(ctx, lockoutKey(companyID, email), "locked", LockoutTTL)
		m.rdb.Del(ctx, key)
	}
	return nil
}

func (m *Manager) ClearFailedAttempts(ctx context.Context, companyID, email string) {
	if m.rdb == nil {
		return
	}
	m.rdb.Del(ctx, attemptKey(companyID, email), lockoutKey(companyID, email))
}

func parseUUID(s string) uuid.UUID {
	u, _ := uuid.Parse(s)
	return u
}
