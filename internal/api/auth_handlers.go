package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/technosupport/ts-vms/internal/data"
	"github.com/technosupport/ts-vms/internal/middleware"
	"github.com/technosupport/ts-vms/internal/session"
	"github.com/technosupport/ts-vms/internal/tenant"
)

type AuthHandler struct {
	Tenant   *tenant.Service
	Sessions *session.Manager
}

func NewAuthHandler(t *tenant.Service, sess *session.Manager) *AuthHandler {
	return &AuthHandler{Tenant: t, Sessions: sess}
}

// POST /api/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CompanyName string `json:"company_name"`
		Sector      string `json:"sector"`
		Contact     string `json:"contact"`
		Email       string `json:"email"`
		Phone       string `json:"phone"`
		Address     string `json:"address"`
		MaxCameras  int    `json:"max_cameras"`
		AdminEmail  string `json:"admin_email"`
		AdminName   string `json:"admin_name"`
		Password    string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MaxCameras <= 0 {
		req.MaxCameras = defaultMaxCamerasPerCompany
	}

	companyID, _, err := h.Tenant.CreateCompany(r.Context(), tenant.CreateCompanyRequest{
		CompanyName: req.CompanyName,
		Sector:      req.Sector,
		Contact:     req.Contact,
		Email:       req.Email,
		Phone:       req.Phone,
		Address:     req.Address,
		MaxCameras:  req.MaxCameras,
		AdminEmail:  req.AdminEmail,
		AdminName:   req.AdminName,
		Password:    req.Password,
	})
	if err != nil {
		writeTenantError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"company_id": companyID.String(),
		"login_url":  "/company/" + companyID.String() + "/login",
	})
}

// POST /company/{cid}/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "cid")

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	locked, err := h.Sessions.CheckLockout(r.Context(), companyID, req.Email)
	if err != nil {
		log.Printf("[auth] lockout check failed for %s: %v", req.Email, err)
	}
	if locked {
		respondError(w, http.StatusForbidden, "account temporarily locked")
		return
	}

	uc, userID, err := h.Tenant.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		_ = h.Sessions.RecordFailedAttempt(r.Context(), companyID, req.Email)
		if errors.Is(err, tenant.ErrBadCredentials) {
			respondError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		if errors.Is(err, tenant.ErrSuspended) {
			respondError(w, http.StatusForbidden, "account or company suspended")
			return
		}
		respondError(w, http.StatusInternalServerError, "login failed")
		return
	}
	if companyID != uc.CompanyID.String() {
		respondError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	h.Sessions.ClearFailedAttempts(r.Context(), companyID, req.Email)

	sid, err := h.Tenant.CreateSession(r.Context(), userID, uc.CompanyID, r.RemoteAddr, r.UserAgent(), uc)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(w, http.StatusOK, map[string]string{"redirect": "/company/" + companyID + "/dashboard"})
}

// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(middleware.SessionCookieName); err == nil {
		if err := h.Tenant.RevokeSession(r.Context(), c.Value); err != nil {
			log.Printf("[auth] revoke session failed: %v", err)
		}
	}
	http.SetCookie(w, &http.Cookie{Name: middleware.SessionCookieName, Value: "", Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}

func writeTenantError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, data.ErrInvalid):
		respondError(w, http.StatusBadRequest, "invalid request")
	case errors.Is(err, data.ErrDuplicateEmail):
		respondError(w, http.StatusConflict, "email already registered")
	case errors.Is(err, data.ErrStoreUnavailable):
		respondError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		log.Printf("[auth] internal error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
