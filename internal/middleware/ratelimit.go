package middleware

import (
	"crypto/subtle"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/technosupport/ts-vms/internal/ratelimit"
)

// InternalServiceKey, when set, lets a trusted internal caller bypass rate
// limiting by presenting it verbatim in X-Internal-Service-Key. The
// teacher's equivalent bypass was a scoped JWT service token; that
// required the now-dropped tokens package (see DESIGN.md), so this is a
// shared-secret header instead — the same bypass, without the JWT
// machinery.
var InternalServiceKey = os.Getenv("INTERNAL_SERVICE_KEY")

type RateLimitMiddleware struct {
	limiter         *ratelimit.Limiter
	config          *Config
	endpointsLimits map[string]ratelimit.LimitConfig
}

type Config struct {
	GlobalIP  ratelimit.LimitConfig            `yaml:"global_ip"`
	User      ratelimit.LimitConfig            `yaml:"user"`
	Login     ratelimit.LimitConfig            `yaml:"login"`
	Endpoints map[string]ratelimit.LimitConfig `yaml:"endpoints"`
}

func NewRateLimitMiddleware(l *ratelimit.Limiter, c Config, epLimits map[string]ratelimit.LimitConfig) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter:         l,
		config:          &c,
		endpointsLimits: epLimits,
	}
}

// isInternalService reports whether the request carries the configured
// shared secret.
func (m *RateLimitMiddleware) isInternalService(r *http.Request) bool {
	if InternalServiceKey == "" {
		return false
	}
	got := r.Header.Get("X-Internal-Service-Key")
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(InternalServiceKey)) == 1
}

// clientIP extracts the caller's address, preferring X-Forwarded-For (set
// by the reverse proxy in front of this service) over RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	return strings.Split(r.RemoteAddr, ":")[0]
}

// isAuthPath reports whether path is one of this API's unauthenticated
// auth routes (router.go: POST /api/register, POST /company/{cid}/login,
// POST /logout) — the routes a Redis outage should fail closed on rather
// than silently admitting unlimited login/registration attempts.
func isAuthPath(path string) bool {
	if path == "/api/register" || path == "/logout" {
		return true
	}
	return strings.HasPrefix(path, "/company/") && strings.HasSuffix(path, "/login")
}

func (m *RateLimitMiddleware) GlobalLimiter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 1. Internal Bypass
		if m.isInternalService(r) {
			// Log Bypass
			log.Println("RateLimit Bypass: Internal Service")
			// Add Header for debugging?
			next.ServeHTTP(w, r)
			return
		}

		// 2. Global IP Limit
		ip := clientIP(r)
		ipHash := m.limiter.HashIP(ip)
		key := fmt.Sprintf("rl:ip:%s", ipHash)

		decision, err := m.limiter.CheckRateLimit(r.Context(), key, m.config.GlobalIP)

		if err == ratelimit.ErrRedisUnavailable {
			// Failure Policy:
			// Auth Endpoints -> Fail Closed (503)
			// Others -> Fail Open (Log Only)
			if isAuthPath(r.URL.Path) {
				log.Printf("RateLimit Redis Error (Auth, Fail Closed): %v", err)
				http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
				return
			}

			// Fail Open for API
			log.Printf("RateLimit Redis Error (API, Fail Open): %v", err)
			next.ServeHTTP(w, r)
			return
		} else if err != nil {
			log.Printf("RateLimit Error: %v", err)
			next.ServeHTTP(w, r) // Fail Open on unknown error
			return
		}

		if !decision.Allowed {
			m.writeRateLimitHeaders(w, decision)
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		// 3. User Limit (if authenticated)
		uc, ok := GetAuthContext(r.Context())
		if ok {
			userKey := fmt.Sprintf("rl:user:%s:%s", uc.CompanyID, uc.UserID)
			uDecision, err := m.limiter.CheckRateLimit(r.Context(), userKey, m.config.User)
			if err == nil && !uDecision.Allowed {
				m.writeRateLimitHeaders(w, uDecision)
				http.Error(w, "User rate limit exceeded", http.StatusTooManyRequests)
				return
			}
		}

		// 4. Endpoint-specific limit, keyed by IP hash + path.
		path := r.URL.Path
		if limitConfig, found := m.endpointsLimits[path]; found {
			epKey := fmt.Sprintf("rl:ep:%s:%s", ipHash, path)

			epDecision, err := m.limiter.CheckRateLimit(r.Context(), epKey, limitConfig)
			if err == nil && !epDecision.Allowed {
				m.writeRateLimitHeaders(w, epDecision)
				http.Error(w, "Endpoint rate limit exceeded", http.StatusTooManyRequests)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// LoginLimiter applies the configured RATE_LIMIT_LOGIN budget (m.config.
// Login) per source IP, ahead of the handler and independent of
// internal/session.Manager.CheckLockout's per-company+email counter: this
// one bounds raw request volume from a single caller regardless of which
// email it's trying, the lockout bounds repeated guesses against one
// email regardless of source IP. The two are complementary, not
// redundant.
func (m *RateLimitMiddleware) LoginLimiter(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.isInternalService(r) {
			next(w, r)
			return
		}

		key := fmt.Sprintf("rl:login:%s", m.limiter.HashIP(clientIP(r)))
		decision, err := m.limiter.CheckRateLimit(r.Context(), key, m.config.Login)

		if err == ratelimit.ErrRedisUnavailable {
			log.Printf("RateLimit Redis Error (Login, Fail Closed): %v", err)
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}
		if err != nil {
			log.Printf("RateLimit Error (Login): %v", err)
			next(w, r)
			return
		}
		if !decision.Allowed {
			m.writeRateLimitHeaders(w, decision)
			http.Error(w, "Login rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next(w, r)
	}
}

func (m *RateLimitMiddleware) writeRateLimitHeaders(w http.ResponseWriter, d *ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
	if !d.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter))
	}
}
