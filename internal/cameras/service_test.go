package cameras_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/technosupport/ts-vms/internal/cameras"
	"github.com/technosupport/ts-vms/internal/data"
)

// fakeRepo is a hand-rolled stand-in for data.CameraModel, tracking call
// counts the way the teacher's internal/cameras/service_test.go mocks do.
type fakeRepo struct {
	Calls     map[string]int
	byID      map[uuid.UUID]*data.Camera
	active    int
	createErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{Calls: map[string]int{}, byID: map[uuid.UUID]*data.Camera{}}
}

func (f *fakeRepo) Create(ctx context.Context, c *data.Camera) error {
	f.Calls["Create"]++
	if f.createErr != nil {
		return f.createErr
	}
	f.byID[c.ID] = c
	f.active++
	return nil
}

func (f *fakeRepo) GetByID(ctx context.Context, companyID, id uuid.UUID) (*data.Camera, error) {
	f.Calls["GetByID"]++
	c, ok := f.byID[id]
	if !ok {
		return nil, data.ErrRecordNotFound
	}
	return c, nil
}

func (f *fakeRepo) Update(ctx context.Context, c *data.Camera) error {
	f.Calls["Update"]++
	f.byID[c.ID] = c
	return nil
}

func (f *fakeRepo) SetStatus(ctx context.Context, companyID, id uuid.UUID, status data.CameraStatus) error {
	f.Calls["SetStatus"]++
	c, ok := f.byID[id]
	if !ok {
		return data.ErrRecordNotFound
	}
	c.Status = status
	return nil
}

func (f *fakeRepo) SoftDelete(ctx context.Context, companyID, id uuid.UUID) error {
	f.Calls["SoftDelete"]++
	if _, ok := f.byID[id]; !ok {
		return data.ErrRecordNotFound
	}
	f.active--
	return f.SetStatus(ctx, companyID, id, data.CameraStatusDeleted)
}

func (f *fakeRepo) CountActive(ctx context.Context, companyID uuid.UUID) (int, error) {
	f.Calls["CountActive"]++
	return f.active, nil
}

func (f *fakeRepo) List(ctx context.Context, companyID uuid.UUID) ([]*data.Camera, error) {
	f.Calls["List"]++
	var out []*data.Camera
	for _, c := range f.byID {
		out = append(out, c)
	}
	return out, nil
}

type fakeCompany struct{ max int }

func (f fakeCompany) MaxCameras(ctx context.Context, companyID uuid.UUID) (int, error) {
	return f.max, nil
}

type fakeSupervisor struct{ stopped []uuid.UUID }

func (f *fakeSupervisor) Stop(cameraID uuid.UUID) { f.stopped = append(f.stopped, cameraID) }

func TestAddCameraEnforcesQuota(t *testing.T) {
	repo := newFakeRepo()
	company := fakeCompany{max: 1}
	sup := &fakeSupervisor{}
	svc := cameras.NewService(repo, company, sup)

	companyID := uuid.New()
	first := &data.Camera{CompanyID: companyID, Name: "lobby", IPAddress: "10.0.0.5", Protocol: data.ProtocolHTTP}
	require.NoError(t, svc.AddCamera(context.Background(), first))

	second := &data.Camera{CompanyID: companyID, Name: "dock", IPAddress: "10.0.0.6", Protocol: data.ProtocolHTTP}
	err := svc.AddCamera(context.Background(), second)
	assert.ErrorIs(t, err, data.ErrLimitExceeded)
	assert.Equal(t, 1, repo.Calls["Create"])
}

func TestAddCameraRejectsMissingName(t *testing.T) {
	repo := newFakeRepo()
	svc := cameras.NewService(repo, fakeCompany{max: 10}, &fakeSupervisor{})

	err := svc.AddCamera(context.Background(), &data.Camera{CompanyID: uuid.New(), IPAddress: "10.0.0.5", Protocol: data.ProtocolHTTP})
	assert.ErrorIs(t, err, cameras.ErrInvalidName)
	assert.Equal(t, 0, repo.Calls["Create"])
}

func TestAddCameraAllowsLocalWithoutIP(t *testing.T) {
	repo := newFakeRepo()
	svc := cameras.NewService(repo, fakeCompany{max: 10}, &fakeSupervisor{})

	err := svc.AddCamera(context.Background(), &data.Camera{CompanyID: uuid.New(), Name: "usb-cam", Protocol: data.ProtocolUSB})
	require.NoError(t, err)
}

func TestSoftDeleteCameraStopsRuntime(t *testing.T) {
	repo := newFakeRepo()
	sup := &fakeSupervisor{}
	svc := cameras.NewService(repo, fakeCompany{max: 10}, sup)

	companyID := uuid.New()
	cam := &data.Camera{CompanyID: companyID, Name: "lobby", IPAddress: "10.0.0.5", Protocol: data.ProtocolHTTP}
	require.NoError(t, svc.AddCamera(context.Background(), cam))

	require.NoError(t, svc.SoftDeleteCamera(context.Background(), companyID, cam.ID))
	require.Len(t, sup.stopped, 1)
	assert.Equal(t, cam.ID, sup.stopped[0])
	assert.Equal(t, data.CameraStatusDeleted, repo.byID[cam.ID].Status)
}
