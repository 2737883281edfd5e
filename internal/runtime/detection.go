package runtime

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"
	"github.com/technosupport/ts-vms/internal/data"
	"github.com/technosupport/ts-vms/internal/metrics"
	"github.com/technosupport/ts-vms/internal/snapshot"
)

const (
	DefaultSampleEveryN          = 5
	DefaultConfidenceThreshold   = 0.5
	trackStateCacheSize          = 4096
	headerHeight                 = 24
)

// SnapshotSaver is the subset of snapshot.Store the detection runtime
// depends on (spec.md §4.2 Save).
type SnapshotSaver interface {
	Save(ctx context.Context, frame image.Image, companyID, cameraID, personID, violationType string, bbox snapshot.BBox, eventID string) (string, error)
}

// Recorder is the subset of the tenant store the detection runtime writes
// to (spec.md §4.6 steps 6-7).
type Recorder interface {
	RecordDetection(ctx context.Context, d *data.Detection) error
	RecordViolation(ctx context.Context, v *data.Violation) error
}

// EventPublisher fans a DetectionResult or Violation out to external
// subscribers on a best-effort basis (SPEC_FULL.md's optional NATS
// wiring). A nil EventPublisher on DetectionRuntime disables publishing
// entirely rather than erroring.
type EventPublisher interface {
	PublishDetection(companyID uuid.UUID, result DetectionResult)
	PublishViolation(companyID uuid.UUID, v *data.Violation)
}

// DetectionConfig bundles the per-camera parameters spec.md §4.6 lists.
type DetectionConfig struct {
	SampleEveryN        int
	ConfidenceThreshold float64
	RequiredPPE         []data.PPEClass
}

// DetectionRuntime is the one-per-active-camera sampling worker (C6).
type DetectionRuntime struct {
	CompanyID uuid.UUID
	CameraID  uuid.UUID
	cfg       DetectionConfig

	camera   *CameraRuntime
	detector Detector
	snap     SnapshotSaver
	store    Recorder
	events   EventPublisher

	queue *ResultQueue

	trackState *lru.Cache[string, bool]

	frameCount int64
	lastTS     time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func NewDetectionRuntime(companyID, cameraID uuid.UUID, cam *CameraRuntime, det Detector, snap SnapshotSaver, store Recorder, cfg DetectionConfig) *DetectionRuntime {
	if cfg.SampleEveryN <= 0 {
		cfg.SampleEveryN = DefaultSampleEveryN
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if det == nil {
		det = NewSimulationDetector()
		log.Printf("[detection:%s] no detector configured, running in SIMULATION mode", cameraID)
	}
	cache, _ := lru.New[string, bool](trackStateCacheSize)
	return &DetectionRuntime{
		CompanyID:  companyID,
		CameraID:   cameraID,
		cfg:        cfg,
		camera:     cam,
		detector:   det,
		snap:       snap,
		store:      store,
		queue:      NewResultQueue(10),
		trackState: cache,
		done:       make(chan struct{}),
	}
}

// Results returns the per-camera bounded result queue the data plane
// polls (spec.md §4.9 GET /detection-results/{camid}).
func (d *DetectionRuntime) Results() *ResultQueue { return d.queue }

// SetEventPublisher attaches the optional external fan-out sink. Called by
// the supervisor right after construction, never concurrently with Start.
func (d *DetectionRuntime) SetEventPublisher(p EventPublisher) { d.events = p }

func (d *DetectionRuntime) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	go d.run(ctx)
}

// Stop cancels the sampling loop; the worker finishes its current
// iteration, discards any partial result, and exits (spec.md §4.6
// Cancellation).
func (d *DetectionRuntime) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	select {
	case <-d.done:
	case <-time.After(2 * time.Second):
		log.Printf("[detection:%s] stop grace period elapsed before loop exit", d.CameraID)
	}
	d.queue.Drain()
}

func (d *DetectionRuntime) run(ctx context.Context) {
	defer close(d.done)
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[detection:%s] recovered panic in detection loop: %v", d.CameraID, rec)
			d.camera.Stop()
			d.camera.state.Store(int32(StateFailed))
		}
	}()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame := d.camera.Slot.Load()
		if frame == nil {
			continue
		}

		d.frameCount++
		if d.frameCount%int64(d.cfg.SampleEveryN) != 0 {
			continue
		}

		if err := d.sample(ctx, frame); err != nil {
			log.Printf("[detection:%s] sample failed: %v", d.CameraID, err)
		}
	}
}

// sample implements spec.md §4.6 steps 3-7 for a single sampled frame.
func (d *DetectionRuntime) sample(ctx context.Context, frame *Frame) error {
	start := time.Now()
	result, err := d.detector.Detect(frame.Image, d.cfg.RequiredPPE, d.cfg.ConfidenceThreshold)
	metrics.DetectionLatency.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return err
	}
	result.Timestamp = frame.CapturedAt
	result.CameraID = d.CameraID.String()

	mode := "real"
	if result.Simulated {
		mode = "simulated"
	}
	metrics.DetectionSamplesTotal.WithLabelValues(mode).Inc()

	// spec.md §8: "within one camera, detection results are observed in
	// frame order" / "the timestamp of consecutive enqueued
	// DetectionResults is strictly increasing". CapturedAt is already
	// monotonic from the capture loop; guard against a duplicate tick.
	if !result.Timestamp.After(d.lastTS) {
		result.Timestamp = d.lastTS.Add(time.Nanosecond)
	}
	d.lastTS = result.Timestamp

	annotated := annotate(frame.Image, result)
	d.camera.Slot.Store(&Frame{Image: annotated, CapturedAt: frame.CapturedAt})

	if dropped := d.queue.Offer(result); dropped {
		metrics.DetectionQueueDropsTotal.Inc()
	}
	if d.events != nil {
		d.events.PublishDetection(d.CompanyID, result)
	}

	for _, p := range result.People {
		if p.Compliant {
			d.trackState.Add(d.trackKey(p.TrackID), true)
			continue
		}
		prevCompliant, known := d.trackState.Get(d.trackKey(p.TrackID))
		d.trackState.Add(d.trackKey(p.TrackID), false)
		if known && !prevCompliant {
			continue // already non-compliant last time; no new transition
		}
		d.emitViolation(ctx, frame, result.Timestamp, p)
	}

	return d.recordDetection(ctx, result)
}

func (d *DetectionRuntime) trackKey(trackID string) string {
	return d.CameraID.String() + ":" + trackID
}

// emitViolation implements spec.md §4.6 step 6: a compliant->non-compliant
// transition writes a snapshot (best-effort) and a Violation row.
func (d *DetectionRuntime) emitViolation(ctx context.Context, frame *Frame, ts time.Time, p PersonResult) {
	violationType := violationTypeFor(p.Missing)
	metrics.ViolationsTotal.WithLabelValues(violationType).Inc()
	eventID := fmt.Sprintf("%s-%s-%d", d.CameraID, p.TrackID, ts.UnixNano())

	var imagePath *string
	if d.snap != nil {
		bbox := snapshot.BBox{X1: p.BBox.X1, Y1: p.BBox.Y1, X2: p.BBox.X2, Y2: p.BBox.Y2}
		rel, err := d.snap.Save(ctx, frame.Image, d.CompanyID.String(), d.CameraID.String(), p.TrackID, violationType, bbox, eventID)
		if err != nil {
			// spec.md §4.2 failure semantics: never block the violation
			// record, null the path, log a warning.
			log.Printf("[detection:%s] snapshot save failed for %s: %v", d.CameraID, violationType, err)
		} else {
			imagePath = &rel
		}
	}

	v := &data.Violation{
		CompanyID:     d.CompanyID,
		CameraID:      d.CameraID,
		Timestamp:     ts,
		ViolationType: violationType,
		MissingPPE:    p.Missing,
		Severity:      severityFor(p.Missing),
		PenaltyAmount: penaltyFor(p.Missing),
		ImagePath:     imagePath,
	}
	if d.store != nil {
		if err := d.store.RecordViolation(ctx, v); err != nil {
			log.Printf("[detection:%s] record violation failed: %v", d.CameraID, err)
		}
	}
	if d.events != nil {
		d.events.PublishViolation(d.CompanyID, v)
	}
}

func (d *DetectionRuntime) recordDetection(ctx context.Context, result DetectionResult) error {
	if d.store == nil {
		return nil
	}
	det := &data.Detection{
		CompanyID:       d.CompanyID,
		CameraID:        d.CameraID,
		Timestamp:       result.Timestamp,
		TotalPeople:     result.TotalPeople,
		CompliantPeople: result.CompliantPeople,
		ViolationPeople: result.TotalPeople - result.CompliantPeople,
		ComplianceRate:  result.ComplianceRate,
		ConfidenceScore: result.Confidence,
	}
	return d.store.RecordDetection(ctx, det)
}

var violationLabels = map[data.PPEClass]string{
	data.PPEHelmet:      "no_helmet",
	data.PPESafetyVest:  "no_vest",
	data.PPESafetyShoes: "no_shoes",
}

func violationTypeFor(missing []data.PPEClass) string {
	if len(missing) == 0 {
		return "non_compliant"
	}
	if label, ok := violationLabels[missing[0]]; ok {
		return label
	}
	return "no_" + string(missing[0])
}

func severityFor(missing []data.PPEClass) data.ViolationSeverity {
	for _, c := range missing {
		if c == data.PPEHelmet {
			return data.SeverityHigh
		}
	}
	if len(missing) > 1 {
		return data.SeverityMedium
	}
	return data.SeverityLow
}

func penaltyFor(missing []data.PPEClass) float64 {
	return float64(len(missing)) * 50
}

// annotate draws a bounding box per person plus a header summary bar onto
// a copy of frame, matching spec.md §4.6 step 4. Labels are conveyed by box
// color (green=compliant, red=violation) and the header strip's color; no
// text is drawn (unlike snapshot.withBanner, which renders its label and
// timestamp with golang.org/x/image/font).
func annotate(frame image.Image, result DetectionResult) image.Image {
	bounds := frame.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()+headerHeight))

	headerColor := color.RGBA{R: 0, G: 120, B: 0, A: 255}
	if result.TotalPeople > result.CompliantPeople {
		headerColor = color.RGBA{R: 180, G: 0, B: 0, A: 255}
	}
	draw.Draw(out, image.Rect(0, 0, bounds.Dx(), headerHeight), &image.Uniform{C: headerColor}, image.Point{}, draw.Src)
	draw.Draw(out, image.Rect(0, headerHeight, bounds.Dx(), headerHeight+bounds.Dy()), frame, bounds.Min, draw.Src)

	for _, p := range result.People {
		boxColor := color.RGBA{R: 0, G: 200, B: 0, A: 255}
		if !p.Compliant {
			boxColor = color.RGBA{R: 220, G: 0, B: 0, A: 255}
		}
		drawRectOutline(out, p.BBox, headerHeight, boxColor)
	}

	if result.Simulated {
		draw.Draw(out, image.Rect(0, 0, 6, headerHeight), &image.Uniform{C: color.RGBA{R: 255, G: 200, B: 0, A: 255}}, image.Point{}, draw.Src)
	}

	return out
}

// drawRectOutline draws a 2px border around bbox, offset by yOffset (the
// header strip height).
func drawRectOutline(img draw.Image, b BBox, yOffset int, c color.Color) {
	const thickness = 2
	x1, y1, x2, y2 := b.X1, b.Y1+yOffset, b.X2, b.Y2+yOffset
	bounds := img.Bounds()
	for x := x1; x < x2; x++ {
		for t := 0; t < thickness; t++ {
			setIfIn(img, bounds, x, y1+t, c)
			setIfIn(img, bounds, x, y2-t, c)
		}
	}
	for y := y1; y < y2; y++ {
		for t := 0; t < thickness; t++ {
			setIfIn(img, bounds, x1+t, y, c)
			setIfIn(img, bounds, x2-t, y, c)
		}
	}
}

func setIfIn(img draw.Image, bounds image.Rectangle, x, y int, c color.Color) {
	if x >= bounds.Min.X && x < bounds.Max.X && y >= bounds.Min.Y && y < bounds.Max.Y {
		img.Set(x, y, c)
	}
}
