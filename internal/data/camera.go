package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type CameraProtocol string

const (
	ProtocolHTTP     CameraProtocol = "http"
	ProtocolRTSP     CameraProtocol = "rtsp"
	ProtocolLocal    CameraProtocol = "local"
	ProtocolUSB      CameraProtocol = "usb"
	ProtocolIPWebcam CameraProtocol = "ip_webcam"
)

type CameraAuthType string

const (
	AuthNone   CameraAuthType = "none"
	AuthBasic  CameraAuthType = "basic"
	AuthDigest CameraAuthType = "digest"
)

type CameraStatus string

const (
	CameraStatusActive     CameraStatus = "active"
	CameraStatusInactive   CameraStatus = "inactive"
	CameraStatusError      CameraStatus = "error"
	CameraStatusDiscovered CameraStatus = "discovered"
	CameraStatusDeleted    CameraStatus = "deleted"
)

type Camera struct {
	ID            uuid.UUID      `json:"camera_id"`
	CompanyID     uuid.UUID      `json:"company_id"`
	Name          string         `json:"name"`
	Location      string         `json:"location"`
	IPAddress     string         `json:"ip_address"`
	Port          int            `json:"port"`
	Protocol      CameraProtocol `json:"protocol"`
	StreamPath    string         `json:"stream_path"`
	AuthType      CameraAuthType `json:"auth_type"`
	Username      string         `json:"username,omitempty"`
	Password      string         `json:"-"`
	ResolutionW   int            `json:"resolution_w"`
	ResolutionH   int            `json:"resolution_h"`
	FPS           int            `json:"fps"`
	Status        CameraStatus   `json:"status"`
	LastDetection *time.Time     `json:"last_detection,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

type CameraModel struct {
	DB DBTX
}

const cameraSelect = `
	SELECT id, company_id, name, location, ip_address, port, protocol, stream_path,
	       auth_type, username, password, resolution_w, resolution_h, fps, status,
	       last_detection, created_at, updated_at
	FROM cameras`

func (m CameraModel) scan(row *sql.Row) (*Camera, error) {
	var c Camera
	var lastDetection sql.NullTime
	err := row.Scan(&c.ID, &c.CompanyID, &c.Name, &c.Location, &c.IPAddress, &c.Port, &c.Protocol, &c.StreamPath,
		&c.AuthType, &c.Username, &c.Password, &c.ResolutionW, &c.ResolutionH, &c.FPS, &c.Status,
		&lastDetection, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastDetection.Valid {
		c.LastDetection = &lastDetection.Time
	}
	return &c, nil
}

// Create inserts the camera in a single transaction-free round trip. Of the
// two invariants from spec.md §3, it does not check the camera-count quota
// (the caller, the internal/cameras service, does); the unique-name
// constraint is backed by a DB unique index
// on (company_id, name) WHERE status <> 'deleted', surfaced here as
// ErrNameTaken.
func (m CameraModel) Create(ctx context.Context, c *Camera) error {
	insert := `
		INSERT INTO cameras (
			id, company_id, name, location, ip_address, port, protocol, stream_path,
			auth_type, username, password, resolution_w, resolution_h, fps, status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,NOW(),NOW())
		RETURNING created_at, updated_at`
	err := m.DB.QueryRowContext(ctx, insert,
		c.ID, c.CompanyID, c.Name, c.Location, c.IPAddress, c.Port, c.Protocol, c.StreamPath,
		c.AuthType, c.Username, c.Password, c.ResolutionW, c.ResolutionH, c.FPS, c.Status,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrNameTaken
	}
	return err
}

func (m CameraModel) GetByID(ctx context.Context, companyID, id uuid.UUID) (*Camera, error) {
	return m.scan(m.DB.QueryRowContext(ctx, cameraSelect+` WHERE id = $1 AND company_id = $2 AND status <> 'deleted'`, id, companyID))
}

// List returns every non-deleted camera for companyID (spec.md §4.1
// ListCameras). Business-level "recompute live status if a runtime is
// attached" happens in internal/api (CameraHandler), which overlays
// supervisor state.
func (m CameraModel) List(ctx context.Context, companyID uuid.UUID) ([]*Camera, error) {
	rows, err := m.DB.QueryContext(ctx, cameraSelect+` WHERE company_id = $1 AND status <> 'deleted' ORDER BY created_at`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Camera
	for rows.Next() {
		var c Camera
		var lastDetection sql.NullTime
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.Name, &c.Location, &c.IPAddress, &c.Port, &c.Protocol, &c.StreamPath,
			&c.AuthType, &c.Username, &c.Password, &c.ResolutionW, &c.ResolutionH, &c.FPS, &c.Status,
			&lastDetection, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if lastDetection.Valid {
			c.LastDetection = &lastDetection.Time
		}
		out = append(out, &c)
	}
	return out, nil
}

// CountActive backs the camera-limit invariant (spec.md §3, §8): count of
// cameras whose status is not "deleted".
func (m CameraModel) CountActive(ctx context.Context, companyID uuid.UUID) (int, error) {
	var n int
	err := m.DB.QueryRowContext(ctx, `SELECT count(*) FROM cameras WHERE company_id = $1 AND status <> 'deleted'`, companyID).Scan(&n)
	return n, err
}

func (m CameraModel) Update(ctx context.Context, c *Camera) error {
	query := `
		UPDATE cameras SET
			name = $1, location = $2, ip_address = $3, port = $4, protocol = $5, stream_path = $6,
			auth_type = $7, username = $8, password = $9, resolution_w = $10, resolution_h = $11, fps = $12,
			updated_at = NOW()
		WHERE id = $13 AND company_id = $14 AND status <> 'deleted'
		RETURNING updated_at`
	err := m.DB.QueryRowContext(ctx, query,
		c.Name, c.Location, c.IPAddress, c.Port, c.Protocol, c.StreamPath,
		c.AuthType, c.Username, c.Password, c.ResolutionW, c.ResolutionH, c.FPS,
		c.ID, c.CompanyID,
	).Scan(&c.UpdatedAt)
	if err == sql.ErrNoRows {
		return ErrRecordNotFound
	}
	if isUniqueViolation(err) {
		return ErrNameTaken
	}
	return err
}

func (m CameraModel) SetStatus(ctx context.Context, companyID, id uuid.UUID, status CameraStatus) error {
	res, err := m.DB.ExecContext(ctx, `UPDATE cameras SET status = $1, updated_at = NOW() WHERE id = $2 AND company_id = $3`, status, id, companyID)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// SoftDelete marks status='deleted'; the row and its historic
// detections/violations remain queryable (spec.md §3, §8).
func (m CameraModel) SoftDelete(ctx context.Context, companyID, id uuid.UUID) error {
	return m.SetStatus(ctx, companyID, id, CameraStatusDeleted)
}

func (m CameraModel) TouchLastDetection(ctx context.Context, id uuid.UUID) error {
	_, err := m.DB.ExecContext(ctx, `UPDATE cameras SET last_detection = NOW() WHERE id = $1`, id)
	return err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	type pqError interface{ SQLState() string }
	if pe, ok := err.(pqError); ok {
		return pe.SQLState() == "23505"
	}
	return false
}
