package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/technosupport/ts-vms/internal/data"
	"github.com/technosupport/ts-vms/internal/tenant"
)

type CompanyHandler struct {
	Tenant  *tenant.Service
	Store   *data.Store
}

func NewCompanyHandler(t *tenant.Service, store *data.Store) *CompanyHandler {
	return &CompanyHandler{Tenant: t, Store: store}
}

// GET /api/company/{cid}/stats
func (h *CompanyHandler) Stats(w http.ResponseWriter, r *http.Request) {
	uc, ok := authContext(w, r)
	if !ok {
		return
	}
	if !requireCompanyPath(w, uc, chi.URLParam(r, "cid")) {
		return
	}

	counts, trend, err := h.Tenant.GetStats(r.Context(), uc.CompanyID)
	if err != nil {
		log.Printf("[company:%s] stats failed: %v", uc.CompanyID, err)
		respondError(w, http.StatusInternalServerError, "could not compute stats")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"active_cameras":    counts.ActiveCameras,
		"today_violations":  counts.TodayViolations,
		"today_detections":  counts.TodayDetections,
		"last_7_day_daily":  counts.Last7DayDaily,
		"monthly_total":     counts.MonthlyTotal,
		"detections_trend":  trend,
	})
}

// PUT /api/company/{cid}/ppe-config
func (h *CompanyHandler) UpdatePPEConfig(w http.ResponseWriter, r *http.Request) {
	uc, ok := authContext(w, r)
	if !ok {
		return
	}
	if !requireCompanyPath(w, uc, chi.URLParam(r, "cid")) {
		return
	}

	var req struct {
		RequiredPPE []data.PPEClass `json:"required_ppe"`
		OptionalPPE []data.PPEClass `json:"optional_ppe"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for _, c := range append(append([]data.PPEClass{}, req.RequiredPPE...), req.OptionalPPE...) {
		if !data.IsValidPPEClass(c) {
			respondError(w, http.StatusBadRequest, "unknown ppe class: "+string(c))
			return
		}
	}

	ppe := data.RequiredPPE{Required: req.RequiredPPE, Optional: req.OptionalPPE}
	if err := h.Store.Companies.UpdateRequiredPPE(r.Context(), uc.CompanyID, ppe); err != nil {
		respondError(w, http.StatusInternalServerError, "could not update ppe config")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
