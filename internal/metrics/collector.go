package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/technosupport/ts-vms/internal/runtime"
)

// Snapshotter is the subset of runtime.Supervisor the collector polls. A
// narrow interface keeps this package free of a hard runtime.Supervisor
// dependency for tests.
type Snapshotter interface {
	Snapshot() []runtime.Status
}

// Config holds the collector's dependencies. Adapted from the teacher's
// media/SFU Config (gRPC client + SFU URL/secret): this domain has no
// media plane or SFU, so the only thing worth polling on a timer is the
// camera runtime supervisor.
type Config struct {
	Supervisor Snapshotter
}

// Collector periodically snapshots the running camera runtimes and exposes
// them on its own Prometheus registry (spec.md's ambient metrics surface).
// Re-adapted from the teacher's nvr_health.go gauge set (NVRsOnline,
// ChannelsUnreachable, QueueDepth) into per-state camera counts plus
// per-camera queue depth and derived FPS, the closest domain equivalent.
type Collector struct {
	config   Config
	registry *prometheus.Registry

	mu           sync.RWMutex
	lastSnapshot time.Time

	up          prometheus.Gauge
	snapshotAge prometheus.Gauge

	camerasByState   *prometheus.GaugeVec
	cameraQueueDepth *prometheus.GaugeVec
	cameraFPS        *prometheus.GaugeVec
	framesCaptured   *prometheus.GaugeVec
	connectionDrops  *prometheus.GaugeVec
}

func NewCollector(cfg Config) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		config:   cfg,
		registry: reg,
	}

	c.up = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vms_metrics_up",
		Help: "Whether the metrics collector's last poll succeeded (1=up, 0=down)",
	})
	reg.MustRegister(c.up)

	c.snapshotAge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vms_metrics_snapshot_age_seconds",
		Help: "Age of the last successful collector poll",
	})
	reg.MustRegister(c.snapshotAge)

	c.camerasByState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vms_cameras_by_state",
		Help: "Number of camera runtimes currently in each state",
	}, []string{"state"})
	reg.MustRegister(c.camerasByState)

	c.cameraQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vms_camera_detection_queue_depth",
		Help: "Current depth of a camera's bounded detection result queue",
	}, []string{"camera_id"})
	reg.MustRegister(c.cameraQueueDepth)

	c.cameraFPS = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vms_camera_derived_fps",
		Help: "Rolling derived FPS for a camera's capture loop",
	}, []string{"camera_id"})
	reg.MustRegister(c.cameraFPS)

	c.framesCaptured = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vms_camera_frames_captured_total",
		Help: "Total frames captured by a camera's capture loop",
	}, []string{"camera_id"})
	reg.MustRegister(c.framesCaptured)

	c.connectionDrops = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vms_camera_connection_drops_total",
		Help: "Total connection drops observed by a camera's capture loop",
	}, []string{"camera_id"})
	reg.MustRegister(c.connectionDrops)

	return c
}

func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

// Handler serves this collector's own camera-runtime gauges together with
// the detection-runtime counters/histogram registered via promauto's
// default registerer (detection_metrics.go) — those are genuinely
// incremented per sampled frame by internal/runtime/detection.go but live
// on a separate registry, so both must be gathered here or they'd never
// reach /metrics.
func (c *Collector) Handler() http.Handler {
	gatherers := prometheus.Gatherers{c.registry, prometheus.DefaultGatherer}
	return promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})
}

func (c *Collector) collect() {
	if c.config.Supervisor == nil {
		c.up.Set(0)
		return
	}

	statuses := c.config.Supervisor.Snapshot()

	c.camerasByState.Reset()
	c.cameraQueueDepth.Reset()
	c.cameraFPS.Reset()
	c.framesCaptured.Reset()
	c.connectionDrops.Reset()

	counts := map[string]int{}
	for _, st := range statuses {
		counts[st.State.String()]++
		id := st.CameraID.String()
		c.cameraQueueDepth.WithLabelValues(id).Set(float64(st.QueueDepth))
		c.cameraFPS.WithLabelValues(id).Set(st.DerivedFPS)
		c.framesCaptured.WithLabelValues(id).Set(float64(st.FramesCaptured))
		c.connectionDrops.WithLabelValues(id).Set(float64(st.ConnectionDrops))
	}
	for state, n := range counts {
		c.camerasByState.WithLabelValues(state).Set(float64(n))
	}

	c.up.Set(1)
	c.mu.Lock()
	c.lastSnapshot = time.Now()
	c.mu.Unlock()
	c.snapshotAge.Set(0)
}
