package runtime

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/technosupport/ts-vms/internal/data"
)

// entry pairs a camera's capture loop with its detection loop; both are
// started and stopped together (spec.md §3 Ownership: "each is owned by
// the runtime supervisor for the duration the camera is active").
type entry struct {
	camera    *CameraRuntime
	detection *DetectionRuntime
}

// Supervisor is the one-per-process registry of running camera runtimes,
// keyed by camera_id (spec.md §5). Modeled on internal/nvr/adapters'
// Registry map+factory shape, generalized from vendor-adapter construction
// into camera_id-keyed runtime lifecycle management, and on the
// reconciliation note in spec.md §9 ("on startup, reconcile desired vs.
// running state").
type Supervisor struct {
	mu       sync.Mutex
	entries  map[uuid.UUID]*entry
	detector DetectorFactory
	snap     SnapshotSaver
	store    Recorder
	events   EventPublisher
}

func NewSupervisor(det DetectorFactory, snap SnapshotSaver, store Recorder) *Supervisor {
	return &Supervisor{
		entries:  make(map[uuid.UUID]*entry),
		detector: det,
		snap:     snap,
		store:    store,
	}
}

// SetEventPublisher attaches the optional external fan-out sink every
// future Start call wires into its DetectionRuntime (SPEC_FULL.md's
// best-effort NATS publishing). Call once during startup, before
// Reconcile.
func (s *Supervisor) SetEventPublisher(p EventPublisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = p
}

// StartOptions carries the per-start parameters spec.md §6's
// POST .../start-detection body supplies (mode selects detector_sector,
// confidence the confidence_threshold) on top of the company's configured
// required_ppe.
type StartOptions struct {
	RequiredPPE []data.PPEClass
	Sector      string
	Confidence  float64
	SampleEveryN int
}

// Start launches a camera+detection runtime pair for cam unless one is
// already running (spec.md §4.5: "starting an already-running camera is a
// no-op, not an error"). requiredPPE comes from the owning company's
// configuration (spec.md §3 required_ppe).
func (s *Supervisor) Start(ctx context.Context, cam *data.Camera, opts StartOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[cam.ID]; ok && e.camera.State() != StateStopped && e.camera.State() != StateFailed {
		return
	}

	src := NewFrameSource(CameraSourceDescriptor{
		CameraID:   cam.ID.String(),
		IPAddress:  cam.IPAddress,
		Port:       cam.Port,
		Protocol:   cam.Protocol,
		StreamPath: cam.StreamPath,
		AuthType:   cam.AuthType,
		Username:   cam.Username,
		Password:   cam.Password,
	})

	camRuntime := NewCameraRuntime(cam.ID.String(), src, cam.FPS)

	var det Detector
	if s.detector != nil {
		if d, err := s.detector(opts.Sector); err == nil {
			det = d
		} else {
			log.Printf("[supervisor:%s] detector factory failed for sector %q, falling back to simulation: %v", cam.ID, opts.Sector, err)
		}
	}

	detRuntime := NewDetectionRuntime(cam.CompanyID, cam.ID, camRuntime, det, s.snap, s.store, DetectionConfig{
		RequiredPPE:         opts.RequiredPPE,
		ConfidenceThreshold: opts.Confidence,
		SampleEveryN:        opts.SampleEveryN,
	})

	detRuntime.SetEventPublisher(s.events)

	s.entries[cam.ID] = &entry{camera: camRuntime, detection: detRuntime}
	camRuntime.Start(ctx)
	detRuntime.Start(ctx)
	log.Printf("[supervisor:%s] started camera runtime", cam.ID)
}

// Stop tears down cam's runtime pair if one is running; a no-op if none
// exists (spec.md §3 Ownership: "when the row's status becomes deleted or
// inactive, the runtime must be torn down").
func (s *Supervisor) Stop(cameraID uuid.UUID) {
	s.mu.Lock()
	e, ok := s.entries[cameraID]
	if ok {
		delete(s.entries, cameraID)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	e.detection.Stop()
	e.camera.Stop()
	log.Printf("[supervisor:%s] stopped camera runtime", cameraID)
}

// StopAll tears down every running runtime, used during graceful shutdown
// (spec.md §5 shutdown ordering: runtimes stop before the store closes).
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	ids := make([]uuid.UUID, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.Stop(id)
	}
}

// CameraRuntime returns the running capture loop for cameraID, or nil if
// none is active.
func (s *Supervisor) CameraRuntime(cameraID uuid.UUID) *CameraRuntime {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[cameraID]
	if !ok {
		return nil
	}
	return e.camera
}

// DetectionRuntime returns the running detection loop for cameraID, or nil
// if none is active.
func (s *Supervisor) DetectionRuntime(cameraID uuid.UUID) *DetectionRuntime {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[cameraID]
	if !ok {
		return nil
	}
	return e.detection
}

// IsRunning reports whether cameraID has an active runtime pair, used by
// the control plane to overlay live status onto the durable row (spec.md
// §4.1 ListCameras: "must recompute live status if a runtime is
// attached").
func (s *Supervisor) IsRunning(cameraID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[cameraID]
	return ok
}

// Status summarizes one running camera's runtime pair for /metrics and the
// control plane's live-status overlay.
type Status struct {
	CameraID            uuid.UUID
	State               State
	FramesCaptured      int64
	ConnectionDrops     int64
	ConsecutiveFailures int64
	DerivedFPS          float64
	QueueDepth          int
}

// Snapshot returns a point-in-time summary of every running camera, used by
// the metrics collector (no internal lock is held while the caller reads
// it).
func (s *Supervisor) Snapshot() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, 0, len(s.entries))
	for id, e := range s.entries {
		out = append(out, Status{
			CameraID:            id,
			State:               e.camera.State(),
			FramesCaptured:      e.camera.FramesCaptured(),
			ConnectionDrops:     e.camera.ConnectionDrops(),
			ConsecutiveFailures: e.camera.ConsecutiveFailures(),
			DerivedFPS:          e.camera.DerivedFPS(),
			QueueDepth:          e.detection.Results().Len(),
		})
	}
	return out
}

// Reconcile starts a runtime for every camera in active whose status is
// CameraStatusActive, matching spec.md §9's startup-reconciliation note.
// Called once at boot after the store is ready and before the HTTP
// listener starts accepting connections.
func (s *Supervisor) Reconcile(ctx context.Context, active []*data.Camera, ppeFor func(companyID uuid.UUID) ([]data.PPEClass, string)) {
	for _, cam := range active {
		if cam.Status != data.CameraStatusActive {
			continue
		}
		required, sector := ppeFor(cam.CompanyID)
		s.Start(ctx, cam, StartOptions{RequiredPPE: required, Sector: sector})
	}
}
