package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/technosupport/ts-vms/internal/data"
	"github.com/technosupport/ts-vms/internal/middleware"
)

type mockValidator struct {
	uc  *data.UserCtx
	err error
}

func (m mockValidator) Validate(ctx context.Context, id string) (*data.UserCtx, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.uc, nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSessionAuth_ValidCookie(t *testing.T) {
	uc := &data.UserCtx{UserID: uuid.New(), CompanyID: uuid.New(), Role: data.RoleAdmin}
	auth := middleware.NewSessionAuth(mockValidator{uc: uc})

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "sess-1"})
	w := httptest.NewRecorder()

	auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := middleware.GetAuthContext(r.Context())
		if !ok || got.UserID != uc.UserID {
			t.Errorf("auth context missing or wrong user")
		}
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestSessionAuth_BearerHeader(t *testing.T) {
	uc := &data.UserCtx{UserID: uuid.New(), CompanyID: uuid.New(), Role: data.RoleViewer}
	auth := middleware.NewSessionAuth(mockValidator{uc: uc})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer sess-2")
	w := httptest.NewRecorder()

	auth.Middleware(okHandler()).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestSessionAuth_MissingSessionID(t *testing.T) {
	auth := middleware.NewSessionAuth(mockValidator{})
	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()

	auth.Middleware(okHandler()).ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestSessionAuth_InvalidSession(t *testing.T) {
	auth := middleware.NewSessionAuth(mockValidator{err: context.DeadlineExceeded})
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "sess-3"})
	w := httptest.NewRecorder()

	auth.Middleware(okHandler()).ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestRequireRole_Allowed(t *testing.T) {
	uc := &data.UserCtx{UserID: uuid.New(), CompanyID: uuid.New(), Role: data.RoleManager}
	ctx := middleware.WithAuthContext(context.Background(), uc)
	req := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	middleware.RequireRole(data.RoleAdmin, data.RoleManager)(okHandler()).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	uc := &data.UserCtx{UserID: uuid.New(), CompanyID: uuid.New(), Role: data.RoleViewer}
	ctx := middleware.WithAuthContext(context.Background(), uc)
	req := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	middleware.RequireRole(data.RoleAdmin)(okHandler()).ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestRequireRole_NoAuthContext(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()

	middleware.RequireRole(data.RoleAdmin)(okHandler()).ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestRequirePermission_AdminBypasses(t *testing.T) {
	uc := &data.UserCtx{UserID: uuid.New(), CompanyID: uuid.New(), Role: data.RoleAdmin}
	ctx := middleware.WithAuthContext(context.Background(), uc)
	req := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	middleware.RequirePermission("cameras.delete")(okHandler()).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestRequirePermission_GrantedSlug(t *testing.T) {
	uc := &data.UserCtx{UserID: uuid.New(), CompanyID: uuid.New(), Role: data.RoleOperator, Permissions: []string{"cameras.view"}}
	ctx := middleware.WithAuthContext(context.Background(), uc)
	req := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	middleware.RequirePermission("cameras.view")(okHandler()).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestRequirePermission_MissingSlug(t *testing.T) {
	uc := &data.UserCtx{UserID: uuid.New(), CompanyID: uuid.New(), Role: data.RoleOperator, Permissions: []string{"cameras.view"}}
	ctx := middleware.WithAuthContext(context.Background(), uc)
	req := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	middleware.RequirePermission("cameras.delete")(okHandler()).ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestRequireCompanyMatch(t *testing.T) {
	companyID := uuid.New()
	uc := &data.UserCtx{UserID: uuid.New(), CompanyID: companyID, Role: data.RoleAdmin}
	ctx := middleware.WithAuthContext(context.Background(), uc)

	fromPath := func(r *http.Request) string { return r.URL.Query().Get("company_id") }

	t.Run("matches", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/?company_id="+companyID.String(), nil).WithContext(ctx)
		w := httptest.NewRecorder()
		middleware.RequireCompanyMatch(fromPath)(okHandler()).ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", w.Code)
		}
	})

	t.Run("mismatches", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/?company_id="+uuid.New().String(), nil).WithContext(ctx)
		w := httptest.NewRecorder()
		middleware.RequireCompanyMatch(fromPath)(okHandler()).ServeHTTP(w, req)
		if w.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", w.Code)
		}
	})
}
