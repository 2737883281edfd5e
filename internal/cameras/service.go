// Package cameras implements the camera-management half of the tenant
// store's operations (spec.md §4.1 AddCamera/UpdateCamera/SoftDeleteCamera/
// ListCameras): validation, the camera-count quota, and unique-name
// enforcement, layered over internal/data.CameraModel. Structurally
// modeled on the teacher's internal/cameras/service.go validate ->
// quota-check -> repo-call shape, with the teacher's separate audit side
// effect replaced by the ambient request logger (no audit requirement in
// this spec; see DESIGN.md).
package cameras

import (
	"context"
	"errors"
	"log"
	"net"

	"github.com/google/uuid"
	"github.com/technosupport/ts-vms/internal/data"
)

var (
	ErrInvalidName = errors.New("camera name is required")
	ErrInvalidIP   = errors.New("camera ip address is required for non-local protocols")
)

// Repository is the subset of data.CameraModel the service depends on,
// narrowed so tests can substitute an in-memory fake.
type Repository interface {
	Create(ctx context.Context, c *data.Camera) error
	GetByID(ctx context.Context, companyID, id uuid.UUID) (*data.Camera, error)
	Update(ctx context.Context, c *data.Camera) error
	SetStatus(ctx context.Context, companyID, id uuid.UUID, status data.CameraStatus) error
	SoftDelete(ctx context.Context, companyID, id uuid.UUID) error
	CountActive(ctx context.Context, companyID uuid.UUID) (int, error)
	List(ctx context.Context, companyID uuid.UUID) ([]*data.Camera, error)
}

// CompanyLookup resolves a company's camera quota without this package
// depending on the full tenant service.
type CompanyLookup interface {
	MaxCameras(ctx context.Context, companyID uuid.UUID) (int, error)
}

// Supervisor is the subset of the runtime supervisor this service notifies
// when a camera's durable status changes out from under a running camera
// (spec.md §4.8 step 4).
type Supervisor interface {
	Stop(cameraID uuid.UUID)
}

type Service struct {
	repo    Repository
	company CompanyLookup
	sup     Supervisor
}

func NewService(repo Repository, company CompanyLookup, sup Supervisor) *Service {
	return &Service{repo: repo, company: company, sup: sup}
}

// AddCamera enforces spec.md §3's invariant
// count(cameras where company_id=C and status<>deleted) <= C.max_cameras
// and the per-tenant unique-name constraint (surfaced by the repository as
// data.ErrNameTaken on the subsequent insert).
func (s *Service) AddCamera(ctx context.Context, c *data.Camera) error {
	if c.Name == "" {
		return ErrInvalidName
	}
	if c.Protocol != data.ProtocolLocal && c.Protocol != data.ProtocolUSB && net.ParseIP(c.IPAddress) == nil {
		return ErrInvalidIP
	}

	max, err := s.company.MaxCameras(ctx, c.CompanyID)
	if err != nil {
		return err
	}
	count, err := s.repo.CountActive(ctx, c.CompanyID)
	if err != nil {
		return err
	}
	if count >= max {
		return data.ErrLimitExceeded
	}

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = data.CameraStatusInactive
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return err
	}
	log.Printf("[cameras:%s] created camera %s for company %s", c.ID, c.Name, c.CompanyID)
	return nil
}

func (s *Service) UpdateCamera(ctx context.Context, c *data.Camera) error {
	if err := s.repo.Update(ctx, c); err != nil {
		return err
	}
	log.Printf("[cameras:%s] updated camera", c.ID)
	return nil
}

// SoftDeleteCamera marks the camera deleted and tears down any attached
// runtime (spec.md §3 Ownership: "when the row's status becomes deleted or
// inactive, the runtime must be torn down").
func (s *Service) SoftDeleteCamera(ctx context.Context, companyID, id uuid.UUID) error {
	if err := s.repo.SoftDelete(ctx, companyID, id); err != nil {
		return err
	}
	s.sup.Stop(id)
	log.Printf("[cameras:%s] soft-deleted", id)
	return nil
}

// Deactivate stops a camera's runtime without deleting the row
// (spec.md §3: status becomes inactive also tears down the runtime).
func (s *Service) Deactivate(ctx context.Context, companyID, id uuid.UUID) error {
	if err := s.repo.SetStatus(ctx, companyID, id, data.CameraStatusInactive); err != nil {
		return err
	}
	s.sup.Stop(id)
	return nil
}

// Activate marks a camera active ahead of the caller starting its runtime
// (spec.md §4.8 start-detection step 4: the handler notifies the
// supervisor separately once it has resolved required_ppe/sector).
func (s *Service) Activate(ctx context.Context, companyID, id uuid.UUID) error {
	return s.repo.SetStatus(ctx, companyID, id, data.CameraStatusActive)
}

func (s *Service) GetByID(ctx context.Context, companyID, id uuid.UUID) (*data.Camera, error) {
	return s.repo.GetByID(ctx, companyID, id)
}

// List implements spec.md §4.1's ListCameras, which "must recompute live
// status if a runtime is attached" — overlaying the supervisor's in-memory
// running state onto the durable row's status is done by the caller
// (internal/api), which has direct access to the supervisor's read view;
// this keeps Repository/Supervisor coupling one-directional.
func (s *Service) List(ctx context.Context, companyID uuid.UUID) ([]*data.Camera, error) {
	return s.repo.List(ctx, companyID)
}
