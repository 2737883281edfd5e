package api

import (
	"fmt"
	"image/jpeg"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/technosupport/ts-vms/internal/platform/paths"
	"github.com/technosupport/ts-vms/internal/runtime"
)

// DataPlaneHandler implements C9: the MJPEG live-video stream and the
// non-blocking detection-result poll, plus snapshot file serving. Kept
// separate from CameraHandler since these routes serve bytes, not JSON.
type DataPlaneHandler struct {
	Supervisor  *runtime.Supervisor
	SnapshotDir string
}

func NewDataPlaneHandler(sup *runtime.Supervisor) *DataPlaneHandler {
	return &DataPlaneHandler{Supervisor: sup, SnapshotDir: paths.ResolveDataRoot()}
}

const mjpegBoundary = "vmsframe"

// GET /api/company/{cid}/video-feed/{camid}
//
// Streams the camera's single-slot frame buffer as
// multipart/x-mixed-replace (spec.md §4.9), polling at the camera's
// configured fps until the client disconnects.
func (h *DataPlaneHandler) VideoFeed(w http.ResponseWriter, r *http.Request) {
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

	cam := h.Supervisor.CameraRuntime(camID)
	if cam == nil {
		respondError(w, http.StatusNotFound, "camera has no active runtime")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(time.Second / time.Duration(max(cam.FPS, 1)))
	defer ticker.Stop()

	var lastCaptured time.Time
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		frame := cam.Slot.Load()
		if frame == nil || frame.CapturedAt.Equal(lastCaptured) {
			continue
		}
		lastCaptured = frame.CapturedAt

		fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\n\r\n", mjpegBoundary)
		if err := jpeg.Encode(w, frame.Image, &jpeg.Options{Quality: 80}); err != nil {
			return
		}
		fmt.Fprint(w, "\r\n")
		flusher.Flush()
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// GET /api/company/{cid}/detection-results/{camid}
//
// Never blocks (spec.md §4.9): returns the oldest queued result or a
// no-content marker if none is waiting.
func (h *DataPlaneHandler) DetectionResults(w http.ResponseWriter, r *http.Request) {
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

	det := h.Supervisor.DetectionRuntime(camID)
	if det == nil {
		respondJSON(w, http.StatusOK, map[string]any{"result": nil})
		return
	}
	result, ok := det.Results().Poll()
	if !ok {
		respondJSON(w, http.StatusOK, map[string]any{"result": nil})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"result": result})
}

// GET /violations/{cid}/{filename}
//
// Serves a saved violation snapshot. The {cid} segment is checked against
// the caller's company before any filesystem access, and paths.SafeJoin
// keeps the resolved path inside the snapshot root regardless of what the
// filename segment contains (spec.md §4.7 snapshot storage layout is
// <root>/violations/<company_id>/<camera_id>/...).
func (h *DataPlaneHandler) ServeSnapshot(w http.ResponseWriter, r *http.Request) {
	uc, ok := authContext(w, r)
	if !ok {
		return
	}
	cid := chi.URLParam(r, "cid")
	if !requireCompanyPath(w, uc, cid) {
		return
	}
	rest := chi.URLParam(r, "*")

	full, err := paths.SafeJoin(h.SnapshotDir, "violations", cid, rest)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	f, err := os.Open(full)
	if err != nil {
		respondError(w, http.StatusNotFound, "snapshot not found")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeContent(w, r, full, time.Time{}, f)
}
