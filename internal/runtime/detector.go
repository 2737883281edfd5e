package runtime

import (
	"image"
	"math/rand"
	"time"

	"github.com/technosupport/ts-vms/internal/data"
)

// PersonResult is one detected person within a DetectionResult (spec.md
// glossary).
type PersonResult struct {
	TrackID   string         `json:"track_id"`
	BBox      BBox           `json:"bbox"`
	Compliant bool           `json:"compliant"`
	Missing   []data.PPEClass `json:"missing"`
}

type BBox struct {
	X1, Y1, X2, Y2 int
}

// DetectionResult is spec.md's glossary DetectionResult, the unit both the
// result queue and TenantStore.RecordDetection deal in.
type DetectionResult struct {
	Timestamp       time.Time      `json:"timestamp"`
	CameraID        string         `json:"camera_id"`
	TotalPeople     int            `json:"total_people"`
	CompliantPeople int            `json:"compliant_people"`
	ComplianceRate  float64        `json:"compliance_rate"`
	Confidence      float64        `json:"confidence_score"`
	People          []PersonResult `json:"people"`
	Simulated       bool           `json:"simulated,omitempty"`
}

// Detector is the consumed-not-defined interface named in spec.md §1/§6:
// "the core consumes a Detector interface that returns bounding boxes and a
// compliance verdict".
type Detector interface {
	Detect(frame image.Image, requiredPPE []data.PPEClass, confidenceThreshold float64) (DetectionResult, error)
}

// DetectorFactory resolves a Detector implementation by sector, per spec.md
// §9's "model this as a DetectorFactory that returns a trait/interface
// object". Returning (nil, err) is expected and handled: the caller falls
// back to SimulationDetector (spec.md §4.6).
type DetectorFactory func(sector string) (Detector, error)

// SimulationDetector stands in when no real Detector is configured or
// construction fails (spec.md §4.6: "the control plane must be able to
// start a camera even when the detector is absent"). It emits plausible
// synthetic results and is itself a valid Detector, so the rest of the
// system (annotation, violation logic, recording) is unchanged when
// running in simulation — grounded on cmd/ai-service/main.go's
// InitDetector-fails-then-log-and-use-mock fallback pattern.
type SimulationDetector struct {
	rng *rand.Rand
}

func NewSimulationDetector() *SimulationDetector {
	return &SimulationDetector{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (d *SimulationDetector) Detect(frame image.Image, requiredPPE []data.PPEClass, confidenceThreshold float64) (DetectionResult, error) {
	bounds := frame.Bounds()
	total := 1 + d.rng.Intn(3)
	complianceRate := 60 + d.rng.Float64()*35 // spec.md §4.6: "random compliance in [60,95]%"

	people := make([]PersonResult, total)
	compliant := 0
	for i := 0; i < total; i++ {
		isCompliant := d.rng.Float64()*100 < complianceRate
		if isCompliant {
			compliant++
		}
		var missing []data.PPEClass
		if !isCompliant && len(requiredPPE) > 0 {
			missing = []data.PPEClass{requiredPPE[d.rng.Intn(len(requiredPPE))]}
		}
		w, h := bounds.Dx()/total, bounds.Dy()
		people[i] = PersonResult{
			TrackID:   randomTrackID(d.rng),
			BBox:      BBox{X1: i * w, Y1: 0, X2: (i + 1) * w, Y2: h},
			Compliant: isCompliant,
			Missing:   missing,
		}
	}

	rate := 0.0
	if total > 0 {
		rate = float64(compliant) / float64(total) * 100
	}
	return DetectionResult{
		TotalPeople:     total,
		CompliantPeople: compliant,
		ComplianceRate:  rate,
		Confidence:      0.5,
		People:          people,
		Simulated:       true,
	}, nil
}

func randomTrackID(rng *rand.Rand) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 8)
	for i := range b {
		b[i] = letters[rng.Intn(len(letters))]
	}
	return "sim_" + string(b)
}
