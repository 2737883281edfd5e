package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/google/uuid"
	"github.com/technosupport/ts-vms/internal/api"
	"github.com/technosupport/ts-vms/internal/cameras"
	"github.com/technosupport/ts-vms/internal/data"
	"github.com/technosupport/ts-vms/internal/discovery"
	"github.com/technosupport/ts-vms/internal/events"
	"github.com/technosupport/ts-vms/internal/metrics"
	"github.com/technosupport/ts-vms/internal/middleware"
	"github.com/technosupport/ts-vms/internal/platform/paths"
	"github.com/technosupport/ts-vms/internal/probe"
	"github.com/technosupport/ts-vms/internal/ratelimit"
	"github.com/technosupport/ts-vms/internal/runtime"
	"github.com/technosupport/ts-vms/internal/session"
	"github.com/technosupport/ts-vms/internal/snapshot"
	"github.com/technosupport/ts-vms/internal/tenant"
)

const serviceName = "ts-vms-control"

func main() {
	if err := paths.EnsureDirs(); err != nil {
		log.Fatalf("platform init error: %v", err)
	}

	dbHost := getEnv("DB_HOST", "localhost")
	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER", "vms")
	dbPass := os.Getenv("DB_PASSWORD")
	dbName := getEnv("DB_NAME", "vms")
	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	natsURL := getEnv("NATS_URL", nats.DefaultURL)
	vendorProfilesPath := getEnv("DISCOVERY_VENDOR_PROFILES_PATH", "internal/discovery/vendors.yaml")
	port := getEnv("PORT", "8080")
	shutdownGrace := getEnvDuration("SHUTDOWN_GRACE_SECONDS", 5*time.Second)

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", dbUser, dbPass, dbHost, dbPort, dbName)
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatalf("db open error: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("db ping error: %v", err)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()

	store := data.NewStore(db)
	sessions := session.NewManager(rdb, store)
	tenantSvc := tenant.NewService(db, store, sessions)

	// Snapshots live under <data root>/violations/<company_id>/<camera_id>/...
	// (internal/platform/paths.EnsureDirs creates this subdirectory at
	// startup); DataPlaneHandler.ServeSnapshot reads from the same layout.
	snapStore := snapshot.NewStore(filepath.Join(paths.ResolveDataRoot(), "violations"))

	sup := runtime.NewSupervisor(nil, snapStore, store)

	if nc, err := events.Connect(natsURL, serviceName); err != nil {
		log.Printf("[main] NATS connect failed: %v (event fan-out disabled)", err)
	} else {
		sup.SetEventPublisher(nc)
		defer nc.Close()
		log.Printf("[main] connected to NATS at %s", natsURL)
	}

	camLookup := companyCameraLookup{store: store}
	camSvc := cameras.NewService(store.Cameras, camLookup, sup)

	profiles, err := discovery.LoadProfiles(vendorProfilesPath)
	if err != nil {
		log.Fatalf("load vendor profiles: %v", err)
	}
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	profiles.WatchProfiles(watchCtx, vendorProfilesPath)

	scanner := discovery.NewScanner(profiles)
	prober := probe.New()

	limiter := ratelimit.NewLimiter(rdb, getEnv("RATE_LIMIT_SALT", "dev-salt-change-me"))
	rlCfg := middleware.Config{
		GlobalIP: ratelimit.LimitConfig{Rate: getEnvInt("RATE_LIMIT_GLOBAL_IP", 300), Window: time.Minute, Burst: 50},
		User:     ratelimit.LimitConfig{Rate: getEnvInt("RATE_LIMIT_USER", 600), Window: time.Minute, Burst: 100},
		Login:    ratelimit.LimitConfig{Rate: getEnvInt("RATE_LIMIT_LOGIN", 5), Window: 15 * time.Minute, Burst: 5},
	}
	rlMiddleware := middleware.NewRateLimitMiddleware(limiter, rlCfg, rlCfg.Endpoints)

	sessionAuth := middleware.NewSessionAuth(sessions)

	collector := metrics.NewCollector(metrics.Config{Supervisor: sup})
	collectorCtx, cancelCollector := context.WithCancel(context.Background())
	defer cancelCollector()
	collector.Start(collectorCtx)

	reconcileCtx, cancelReconcile := context.WithCancel(context.Background())
	defer cancelReconcile()
	reconcileActive(reconcileCtx, store, sup)

	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()
	startSnapshotCleanup(cleanupCtx, snapStore)

	router := api.NewRouter(api.Deps{
		Auth:      api.NewAuthHandler(tenantSvc, sessions),
		Company:   api.NewCompanyHandler(tenantSvc, store),
		Camera:    api.NewCameraHandler(camSvc, store, sup, prober, scanner),
		DataPlane: api.NewDataPlaneHandler(sup),
		Session:   sessionAuth,
		RateLimit: rlMiddleware,
		Collector: collector,
	})

	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Printf("[main] listening on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Printf("[main] shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] http shutdown error: %v", err)
	}
	sup.StopAll()
	log.Printf("[main] stopped gracefully")
}

// companyCameraLookup adapts data.Store to cameras.CompanyLookup.
type companyCameraLookup struct {
	store *data.Store
}

func (l companyCameraLookup) MaxCameras(ctx context.Context, companyID uuid.UUID) (int, error) {
	c, err := l.store.Companies.GetByID(ctx, companyID)
	if err != nil {
		return 0, err
	}
	return c.MaxCameras, nil
}

// reconcileActive starts a runtime for every camera already marked active
// (SPEC_FULL.md startup reconciliation, spec.md §9), resolving each
// camera's company's required_ppe/sector via the store.
func reconcileActive(ctx context.Context, store *data.Store, sup *runtime.Supervisor) {
	rows, err := store.DB.QueryContext(ctx, `SELECT company_id FROM cameras WHERE status = 'active'`)
	if err != nil {
		log.Printf("[main] reconcile query failed: %v", err)
		return
	}
	companyIDs := map[uuid.UUID]bool{}
	for rows.Next() {
		var cid uuid.UUID
		if err := rows.Scan(&cid); err == nil {
			companyIDs[cid] = true
		}
	}
	rows.Close()

	var active []*data.Camera
	for cid := range companyIDs {
		cams, err := store.Cameras.List(ctx, cid)
		if err != nil {
			log.Printf("[main] reconcile list cameras for %s failed: %v", cid, err)
			continue
		}
		active = append(active, cams...)
	}

	sup.Reconcile(ctx, active, func(companyID uuid.UUID) ([]data.PPEClass, string) {
		c, err := store.Companies.GetByID(ctx, companyID)
		if err != nil {
			return nil, ""
		}
		return c.RequiredPPE.Required, c.Sector
	})
}

// startSnapshotCleanup runs the saved-snapshot retention sweep on a daily
// tick (SPEC_FULL.md snapshot lifecycle).
func startSnapshotCleanup(ctx context.Context, s *snapshot.Store) {
	maxAgeDays := getEnvInt("SNAPSHOT_RETENTION_DAYS", 30)
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.Cleanup(ctx, maxAgeDays)
				if err != nil {
					log.Printf("[main] snapshot cleanup failed: %v", err)
					continue
				}
				log.Printf("[main] snapshot cleanup removed %d expired date directories", n)
			}
		}
	}()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var secs int
	if _, err := fmt.Sscanf(v, "%d", &secs); err != nil {
		return fallback
	}
	return time.Duration(secs) * time.Second
}
