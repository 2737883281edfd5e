package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type ViolationSeverity string

const (
	SeverityLow    ViolationSeverity = "low"
	SeverityMedium ViolationSeverity = "medium"
	SeverityHigh   ViolationSeverity = "high"
)

// Violation is written once per (camera, person, violation_type) transition
// from compliant to non-compliant (spec.md §3, §4.6 step 6, §9 Open
// Question 1).
type Violation struct {
	ID             uuid.UUID         `json:"violation_id"`
	CompanyID      uuid.UUID         `json:"company_id"`
	CameraID       uuid.UUID         `json:"camera_id"`
	UserID         *uuid.UUID        `json:"user_id,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	ViolationType  string            `json:"violation_type"`
	MissingPPE     []PPEClass        `json:"missing_ppe"`
	Severity       ViolationSeverity `json:"severity"`
	PenaltyAmount  float64           `json:"penalty_amount"`
	ImagePath      *string           `json:"image_path,omitempty"`
	Resolved       bool              `json:"resolved"`
	ResolvedBy     *uuid.UUID        `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time        `json:"resolved_at,omitempty"`
}

type ViolationModel struct {
	DB DBTX
}

func (m ViolationModel) Record(ctx context.Context, v *Violation) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	query := `
		INSERT INTO violations (
			id, company_id, camera_id, user_id, timestamp, violation_type, missing_ppe,
			severity, penalty_amount, image_path, resolved
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,false)`
	_, err := m.DB.ExecContext(ctx, query,
		v.ID, v.CompanyID, v.CameraID, v.UserID, v.Timestamp, v.ViolationType, pq.Array(ppeStrings(v.MissingPPE)),
		v.Severity, v.PenaltyAmount, v.ImagePath)
	return err
}

func (m ViolationModel) CountToday(ctx context.Context, companyID uuid.UUID, day time.Time) (int, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	var n int
	err := m.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM violations WHERE company_id = $1 AND timestamp >= $2 AND timestamp < $3`,
		companyID, start, end).Scan(&n)
	return n, err
}

func (m ViolationModel) Resolve(ctx context.Context, companyID, id, resolvedBy uuid.UUID) error {
	res, err := m.DB.ExecContext(ctx,
		`UPDATE violations SET resolved = true, resolved_by = $1, resolved_at = NOW()
		 WHERE id = $2 AND company_id = $3 AND resolved = false`,
		resolvedBy, id, companyID)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (m ViolationModel) List(ctx context.Context, companyID, cameraID uuid.UUID, limit int) ([]*Violation, error) {
	rows, err := m.DB.QueryContext(ctx, `
		SELECT id, company_id, camera_id, user_id, timestamp, violation_type, missing_ppe,
		       severity, penalty_amount, image_path, resolved, resolved_by, resolved_at
		FROM violations WHERE company_id = $1 AND camera_id = $2 ORDER BY timestamp DESC LIMIT $3`,
		companyID, cameraID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Violation
	for rows.Next() {
		var v Violation
		var userID, resolvedBy sql.NullString
		var imagePath sql.NullString
		var resolvedAt sql.NullTime
		var missing []string
		if err := rows.Scan(&v.ID, &v.CompanyID, &v.CameraID, &userID, &v.Timestamp, &v.ViolationType, pq.Array(&missing),
			&v.Severity, &v.PenaltyAmount, &imagePath, &v.Resolved, &resolvedBy, &resolvedAt); err != nil {
			return nil, err
		}
		v.MissingPPE = ppeClasses(missing)
		if userID.Valid {
			uid := uuid.MustParse(userID.String)
			v.UserID = &uid
		}
		if imagePath.Valid {
			v.ImagePath = &imagePath.String
		}
		if resolvedBy.Valid {
			rb := uuid.MustParse(resolvedBy.String)
			v.ResolvedBy = &rb
		}
		if resolvedAt.Valid {
			v.ResolvedAt = &resolvedAt.Time
		}
		out = append(out, &v)
	}
	return out, nil
}
