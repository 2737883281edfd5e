// Package api implements the HTTP surface (C8 Control Plane, C9 Data
// Plane): chi-routed handlers binding HTTP requests to the tenant store,
// camera service, discovery scanner, probe, and runtime supervisor.
// Grounded on the teacher's internal/api handler package: the
// respondJSON/respondError helper pair and the validate -> store-call ->
// respond shape are kept, generalized onto this spec's narrower surface.
package api

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"

	"github.com/technosupport/ts-vms/internal/data"
	"github.com/technosupport/ts-vms/internal/middleware"
)

// Config defaults named in spec.md §6, read directly from the environment
// the way the teacher's cmd/server/main.go reads its own DB_HOST/DB_USER/…
// rather than through a config struct.
var (
	defaultMaxCamerasPerCompany = envInt("MAX_CAMERAS_PER_COMPANY_DEFAULT", 10)
	defaultDiscoveryRange       = envString("DISCOVERY_DEFAULT_RANGE", "192.168.1.0/24")
	defaultSampleEveryN         = envInt("DETECTION_SAMPLE_EVERY_N", 5)
	defaultConfidence           = envFloat("DETECTION_DEFAULT_CONFIDENCE", 0.5)
)

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// authContext fetches the request's UserCtx, writing a 401 and reporting
// failure if one isn't present. Every handler below calls this first.
func authContext(w http.ResponseWriter, r *http.Request) (*data.UserCtx, bool) {
	uc, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}
	return uc, true
}

// requireCompanyPath checks the path's {cid} against the caller's
// company_id (spec.md §6: "must match user_ctx.company_id"), writing a 403
// and reporting failure on mismatch.
func requireCompanyPath(w http.ResponseWriter, uc *data.UserCtx, pathCID string) bool {
	if pathCID != uc.CompanyID.String() {
		respondError(w, http.StatusForbidden, "Forbidden")
		return false
	}
	return true
}
