package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/technosupport/ts-vms/internal/data"
	"github.com/technosupport/ts-vms/internal/metrics"
	"github.com/technosupport/ts-vms/internal/middleware"
)

// Deps bundles every handler and middleware the router wires together,
// built once in cmd/server/main.go and passed in here. Mirrors the
// teacher's cmd/server composition-root-builds-router shape, just with a
// single struct instead of a dozen positional constructor args.
type Deps struct {
	Auth       *AuthHandler
	Company    *CompanyHandler
	Camera     *CameraHandler
	DataPlane  *DataPlaneHandler
	Session    *middleware.SessionAuth
	RateLimit  *middleware.RateLimitMiddleware
	Collector  *metrics.Collector
}

func companyIDFromPath(r *http.Request) string { return chi.URLParam(r, "cid") }

// NewRouter assembles the full HTTP surface named in spec.md §6: public
// auth routes, then the company-scoped control plane and data plane
// behind session auth + company-match, plus /health, /healthz and
// /metrics for operational tooling.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.CORS)
	r.Use(middleware.RequestLogger)
	if d.RateLimit != nil {
		r.Use(d.RateLimit.GlobalLimiter)
	}

	r.Get("/health", healthHandler)
	r.Get("/healthz", healthHandler)
	if d.Collector != nil {
		r.Handle("/metrics", d.Collector.Handler())
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Post("/api/register", d.Auth.Register)
	if d.RateLimit != nil {
		r.Post("/company/{cid}/login", d.RateLimit.LoginLimiter(d.Auth.Login))
	} else {
		r.Post("/company/{cid}/login", d.Auth.Login)
	}
	r.Post("/logout", d.Auth.Logout)

	r.Route("/api/company/{cid}", func(cr chi.Router) {
		cr.Use(d.Session.Middleware)
		cr.Use(middleware.RequireCompanyMatch(companyIDFromPath))

		cr.Get("/stats", d.Company.Stats)
		cr.Put("/ppe-config", middleware.RequireRole(data.RoleAdmin, data.RoleManager)(http.HandlerFunc(d.Company.UpdatePPEConfig)).ServeHTTP)

		cr.Get("/cameras", d.Camera.List)
		cr.With(requireManagerOrAdmin).Post("/cameras", d.Camera.Create)
		cr.With(requireManagerOrAdmin).Put("/cameras/{camid}", d.Camera.Update)
		cr.With(requireManagerOrAdmin).Delete("/cameras/{camid}", d.Camera.Delete)
		cr.With(requireManagerOrAdmin).Post("/cameras/test", d.Camera.Test)
		cr.With(requireManagerOrAdmin).Post("/cameras/discover", d.Camera.Discover)
		cr.With(requireManagerOrAdmin).Post("/cameras/sync", d.Camera.Sync)
		cr.With(requireOperatorOrAbove).Post("/cameras/{camid}/start-detection", d.Camera.StartDetection)
		cr.With(requireOperatorOrAbove).Post("/cameras/{camid}/stop-detection", d.Camera.StopDetectionOne)
		cr.With(requireOperatorOrAbove).Post("/stop-detection", d.Camera.StopDetection)

		cr.Get("/video-feed/{camid}", d.DataPlane.VideoFeed)
		cr.Get("/detection-results/{camid}", d.DataPlane.DetectionResults)
	})

	r.Route("/violations/{cid}", func(vr chi.Router) {
		vr.Use(d.Session.Middleware)
		vr.Get("/*", d.DataPlane.ServeSnapshot)
	})

	return r
}

func requireManagerOrAdmin(next http.Handler) http.Handler {
	return middleware.RequireRole(data.RoleAdmin, data.RoleManager)(next)
}

func requireOperatorOrAbove(next http.Handler) http.Handler {
	return middleware.RequireRole(data.RoleAdmin, data.RoleManager, data.RoleOperator)(next)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
