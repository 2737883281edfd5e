package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/technosupport/ts-vms/internal/cameras"
	"github.com/technosupport/ts-vms/internal/data"
	"github.com/technosupport/ts-vms/internal/discovery"
	"github.com/technosupport/ts-vms/internal/probe"
	"github.com/technosupport/ts-vms/internal/runtime"
)

type CameraHandler struct {
	Service    *cameras.Service
	Store      *data.Store
	Supervisor *runtime.Supervisor
	Prober     *probe.Prober
	Scanner    *discovery.Scanner
}

func NewCameraHandler(svc *cameras.Service, store *data.Store, sup *runtime.Supervisor, prober *probe.Prober, scanner *discovery.Scanner) *CameraHandler {
	return &CameraHandler{Service: svc, Store: store, Supervisor: sup, Prober: prober, Scanner: scanner}
}

// cameraFields is the JSON shape accepted by create/update/test requests,
// decoded into or applied onto a data.Camera rather than exposing the
// persistence model's full field set directly to callers.
type cameraFields struct {
	Name       string                `json:"name"`
	Location   string                `json:"location"`
	IPAddress  string                `json:"ip_address"`
	Port       int                   `json:"port"`
	Protocol   data.CameraProtocol   `json:"protocol"`
	StreamPath string                `json:"stream_path"`
	AuthType   data.CameraAuthType   `json:"auth_type"`
	Username   string                `json:"username"`
	Password   string                `json:"password"`
	FPS        int                   `json:"fps"`
}

func (f cameraFields) toCamera(companyID uuid.UUID) *data.Camera {
	c := &data.Camera{CompanyID: companyID}
	f.applyTo(c)
	return c
}

func (f cameraFields) applyTo(c *data.Camera) {
	c.Name = f.Name
	c.Location = f.Location
	c.IPAddress = f.IPAddress
	c.Port = f.Port
	c.Protocol = f.Protocol
	c.StreamPath = f.StreamPath
	c.AuthType = f.AuthType
	c.Username = f.Username
	if f.Password != "" {
		c.Password = f.Password
	}
	if f.FPS > 0 {
		c.FPS = f.FPS
	}
}

func writeCameraError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, data.ErrRecordNotFound):
		respondError(w, http.StatusNotFound, "camera not found")
	case errors.Is(err, data.ErrNameTaken):
		respondError(w, http.StatusConflict, "camera name already in use")
	case errors.Is(err, data.ErrLimitExceeded):
		respondError(w, http.StatusForbidden, "camera limit exceeded")
	case errors.Is(err, cameras.ErrInvalidName), errors.Is(err, cameras.ErrInvalidIP):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

type cameraView struct {
	*data.Camera
	LiveState string `json:"live_state,omitempty"`
}

func (h *CameraHandler) view(c *data.Camera) cameraView {
	v := cameraView{Camera: c}
	if h.Supervisor.IsRunning(c.ID) {
		v.LiveState = h.Supervisor.CameraRuntime(c.ID).State().String()
	}
	return v
}

// GET /api/company/{cid}/cameras
func (h *CameraHandler) List(w http.ResponseWriter, r *http.Request) {
	uc, ok := authContext(w, r)
	if !ok {
		return
	}
	if !requireCompanyPath(w, uc, chi.URLParam(r, "cid")) {
		return
	}

	cams, err := h.Service.List(r.Context(), uc.CompanyID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not list cameras")
		return
	}

	views := make([]cameraView, 0, len(cams))
	running := 0
	for _, c := range cams {
		views = append(views, h.view(c))
		if h.Supervisor.IsRunning(c.ID) {
			running++
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"cameras": views,
		"summary": map[string]int{"total": len(views), "running": running},
	})
}

// POST /api/company/{cid}/cameras
func (h *CameraHandler) Create(w http.ResponseWriter, r *http.Request) {
	uc, ok := authContext(w, r)
	if !ok {
		return
	}
	if !requireCompanyPath(w, uc, chi.URLParam(r, "cid")) {
		return
	}

	var req cameraFields
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cam := req.toCamera(uc.CompanyID)
	if err := h.Service.AddCamera(r.Context(), cam); err != nil {
		writeCameraError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"camera_id": cam.ID.String()})
}

// PUT /api/company/{cid}/cameras/{camid}
func (h *CameraHandler) Update(w http.ResponseWriter, r *http.Request) {
	uc, ok := authContext(w, r)
	if !ok {
		return
	}
	if !requireCompanyPath(w, uc, chi.URLParam(r, "cid")) {
		return
	}
	camID, err := uuid.Parse(chi.URLParam(r, "camid"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid camera id")
		return
	}

	existing, err := h.Service.GetByID(r.Context(), uc.CompanyID, camID)
	if err != nil {
		writeCameraError(w, err)
		return
	}

	var req cameraFields
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.applyTo(existing)

	if err := h.Service.UpdateCamera(r.Context(), existing); err != nil {
		writeCameraError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/company/{cid}/cameras/{camid}
func (h *CameraHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uc, ok := authContext(w, r)
	if !ok {
		return
	}
	if !requireCompanyPath(w, uc, chi.URLParam(r, "cid")) {
		return
	}
	camID, err := uuid.Parse(chi.URLParam(r, "camid"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid camera id")
		return
	}

	if err := h.Service.SoftDeleteCamera(r.Context(), uc.CompanyID, camID); err != nil {
		writeCameraError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/company/{cid}/cameras/test
func (h *CameraHandler) Test(w http.ResponseWriter, r *http.Request) {
	uc, ok := authContext(w, r)
	if !ok {
		return
	}
	if !requireCompanyPath(w, uc, chi.URLParam(r, "cid")) {
		return
	}

	var req cameraFields
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result := h.Prober.Probe(r.Context(), probe.CameraSource{
		IPAddress: req.IPAddress, Port: req.Port, Protocol: req.Protocol,
		StreamPath: req.StreamPath, AuthType: req.AuthType, Username: req.Username, Password: req.Password,
	})
	respondJSON(w, http.StatusOK, result)
}

// POST /api/company/{cid}/cameras/discover
func (h *CameraHandler) Discover(w http.ResponseWriter, r *http.Request) {
	uc, ok := authContext(w, r)
	if !ok {
		return
	}
	if !requireCompanyPath(w, uc, chi.URLParam(r, "cid")) {
		return
	}

	var req struct {
		NetworkRange string `json:"network_range"`
		AutoSync     bool   `json:"auto_sync"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.NetworkRange == "" {
		req.NetworkRange = defaultDiscoveryRange
	}

	candidates, err := h.Scanner.Scan(r.Context(), req.NetworkRange, discovery.DefaultPerHostDeadline*10)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid network range")
		return
	}

	if req.AutoSync {
		h.syncCandidates(r.Context(), uc.CompanyID, candidates)
	}
	respondJSON(w, http.StatusOK, map[string]any{"cameras": candidates})
}

// POST /api/company/{cid}/cameras/sync
func (h *CameraHandler) Sync(w http.ResponseWriter, r *http.Request) {
	uc, ok := authContext(w, r)
	if !ok {
		return
	}
	if !requireCompanyPath(w, uc, chi.URLParam(r, "cid")) {
		return
	}

	var req struct {
		NetworkRange string `json:"network_range"`
		ForceSync    bool   `json:"force_sync"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.NetworkRange == "" {
		req.NetworkRange = defaultDiscoveryRange
	}

	candidates, err := h.Scanner.Scan(r.Context(), req.NetworkRange, discovery.DefaultPerHostDeadline*10)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid network range")
		return
	}

	report := h.syncCandidates(r.Context(), uc.CompanyID, candidates)
	respondJSON(w, http.StatusOK, report)
}

// POST /api/company/{cid}/cameras/{camid}/start-detection
func (h *CameraHandler) StartDetection(w http.ResponseWriter, r *http.Request) {
	uc, ok := authContext(w, r)
	if !ok {
		return
	}
	if !requireCompanyPath(w, uc, chi.URLParam(r, "cid")) {
		return
	}
	camID, err := uuid.Parse(chi.URLParam(r, "camid"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid camera id")
		return
	}

	var req struct {
		Mode       string  `json:"mode"`
		Confidence float64 `json:"confidence"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Confidence <= 0 {
		req.Confidence = defaultConfidence
	}

	cam, err := h.Service.GetByID(r.Context(), uc.CompanyID, camID)
	if err != nil {
		writeCameraError(w, err)
		return
	}
	company, err := h.Store.Companies.GetByID(r.Context(), uc.CompanyID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not resolve company config")
		return
	}
	sector := req.Mode
	if sector == "" {
		sector = company.Sector
	}

	if err := h.Service.Activate(r.Context(), uc.CompanyID, camID); err != nil {
		writeCameraError(w, err)
		return
	}
	cam.Status = data.CameraStatusActive
	h.Supervisor.Start(r.Context(), cam, runtime.StartOptions{
		RequiredPPE:  company.RequiredPPE.Required,
		Sector:       sector,
		Confidence:   req.Confidence,
		SampleEveryN: defaultSampleEveryN,
	})
	respondJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// POST /api/company/{cid}/cameras/{camid}/stop-detection
func (h *CameraHandler) StopDetectionOne(w http.ResponseWriter, r *http.Request) {
	uc, ok := authContext(w, r)
	if !ok {
		return
	}
	if !requireCompanyPath(w, uc, chi.URLParam(r, "cid")) {
		return
	}
	camID, err := uuid.Parse(chi.URLParam(r, "camid"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid camera id")
		return
	}
	if err := h.Service.Deactivate(r.Context(), uc.CompanyID, camID); err != nil {
		writeCameraError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// POST /api/company/{cid}/stop-detection
//
// Stops every running camera owned by the company (spec.md §6: tenant-wide
// stop, distinct from the single-camera stop route above).
func (h *CameraHandler) StopDetection(w http.ResponseWriter, r *http.Request) {
	uc, ok := authContext(w, r)
	if !ok {
		return
	}
	if !requireCompanyPath(w, uc, chi.URLParam(r, "cid")) {
		return
	}

	cams, err := h.Service.List(r.Context(), uc.CompanyID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not list cameras")
		return
	}
	stopped := 0
	for _, c := range cams {
		if !h.Supervisor.IsRunning(c.ID) {
			continue
		}
		if err := h.Service.Deactivate(r.Context(), uc.CompanyID, c.ID); err != nil {
			continue
		}
		stopped++
	}
	respondJSON(w, http.StatusOK, map[string]int{"stopped": stopped})
}

type syncReport struct {
	Discovered int      `json:"discovered"`
	Inserted   int      `json:"inserted"`
	Skipped    int      `json:"skipped"`
	Errors     []string `json:"errors,omitempty"`
}

// syncCandidates probes each discovered candidate and inserts it as a new
// camera row (spec.md §6: sync is "combined discover+probe+insert").
// Per-candidate failures are collected, never abort the batch.
func (h *CameraHandler) syncCandidates(ctx context.Context, companyID uuid.UUID, candidates []discovery.Candidate) *syncReport {
	report := &syncReport{Discovered: len(candidates)}
	for _, c := range candidates {
		src := probe.CameraSource{IPAddress: c.IPAddress, Port: c.Port, Protocol: data.ProtocolHTTP, AuthType: data.AuthNone}
		result := h.Prober.Probe(ctx, src)
		if !result.Success {
			report.Skipped++
			if result.Err != nil {
				report.Errors = append(report.Errors, c.IPAddress+": "+result.Err.Error())
			}
			continue
		}

		cam := &data.Camera{
			CompanyID: companyID,
			Name:      c.Vendor + "-" + c.IPAddress,
			IPAddress: c.IPAddress,
			Port:      c.Port,
			Protocol:  data.ProtocolHTTP,
			AuthType:  data.AuthNone,
			Status:    data.CameraStatusDiscovered,
		}
		if err := h.Service.AddCamera(ctx, cam); err != nil {
			report.Skipped++
			report.Errors = append(report.Errors, c.IPAddress+": "+err.Error())
			continue
		}
		report.Inserted++
	}
	return report
}
