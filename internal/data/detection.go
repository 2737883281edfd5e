package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Detection is the append-only aggregate log row written once per sample
// (spec.md §3, §4.6 step 7). DetectionData carries the opaque structured
// per-person payload (bounding boxes, track ids, missing PPE) as JSON.
type Detection struct {
	ID               uuid.UUID       `json:"detection_id"`
	CompanyID        uuid.UUID       `json:"company_id"`
	CameraID         uuid.UUID       `json:"camera_id"`
	Timestamp        time.Time       `json:"timestamp"`
	TotalPeople      int             `json:"total_people"`
	CompliantPeople  int             `json:"compliant_people"`
	ViolationPeople  int             `json:"violation_people"`
	ComplianceRate   float64         `json:"compliance_rate"`
	ConfidenceScore  float64         `json:"confidence_score"`
	ImagePath        *string         `json:"image_path,omitempty"`
	DetectionData    json.RawMessage `json:"detection_data"`
	TrackID          *string         `json:"track_id,omitempty"`
}

type DetectionModel struct {
	DB DBTX
}

func (m DetectionModel) Record(ctx context.Context, d *Detection) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	query := `
		INSERT INTO detections (
			id, company_id, camera_id, timestamp, total_people, compliant_people,
			violation_people, compliance_rate, confidence_score, image_path, detection_data, track_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err := m.DB.ExecContext(ctx, query,
		d.ID, d.CompanyID, d.CameraID, d.Timestamp, d.TotalPeople, d.CompliantPeople,
		d.ViolationPeople, d.ComplianceRate, d.ConfidenceScore, d.ImagePath, d.DetectionData, d.TrackID)
	return err
}

// StatsCounts is the aggregate shape behind GET /stats (spec.md §4.1).
type StatsCounts struct {
	ActiveCameras    int
	TodayViolations  int
	TodayDetections  int
	Last7DayDaily    []int // oldest first, 7 entries
	MonthlyTotal     int
}

// DailyCount computes the count of detections for companyID on the UTC
// calendar day `day`.
func (m DetectionModel) DailyCount(ctx context.Context, companyID uuid.UUID, day time.Time) (int, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	var n int
	err := m.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM detections WHERE company_id = $1 AND timestamp >= $2 AND timestamp < $3`,
		companyID, start, end).Scan(&n)
	return n, err
}

func (m DetectionModel) MonthlyCount(ctx context.Context, companyID uuid.UUID, month time.Time) (int, error) {
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	var n int
	err := m.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM detections WHERE company_id = $1 AND timestamp >= $2 AND timestamp < $3`,
		companyID, start, end).Scan(&n)
	return n, err
}

// Latest returns the most recent detection for a camera, or
// ErrRecordNotFound if none exist yet.
func (m DetectionModel) Latest(ctx context.Context, companyID, cameraID uuid.UUID) (*Detection, error) {
	row := m.DB.QueryRowContext(ctx, `
		SELECT id, company_id, camera_id, timestamp, total_people, compliant_people,
		       violation_people, compliance_rate, confidence_score, image_path, detection_data, track_id
		FROM detections WHERE company_id = $1 AND camera_id = $2 ORDER BY timestamp DESC LIMIT 1`,
		companyID, cameraID)
	var d Detection
	var imagePath, trackID sql.NullString
	err := row.Scan(&d.ID, &d.CompanyID, &d.CameraID, &d.Timestamp, &d.TotalPeople, &d.CompliantPeople,
		&d.ViolationPeople, &d.ComplianceRate, &d.ConfidenceScore, &imagePath, &d.DetectionData, &trackID)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	if imagePath.Valid {
		d.ImagePath = &imagePath.String
	}
	if trackID.Valid {
		d.TrackID = &trackID.String
	}
	return &d, nil
}
