package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/chorly/internal/auth"
	"github.com/dukerupert/chorly/internal/database"
	"github.com/dukerupert/chorly/internal/model"
	"github.com/dukerupert/chorly/internal/store"
)

type authFixture struct {
	tenants *store.TenantStore
	members *store.MemberStore
	tenant  *model.Tenant
	admin   *model.Member
	child   *model.Member
}

func setupAuthMiddlewareDB(t *testing.T) *authFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &authFixture{tenants: store.NewTenantStore(db), members: store.NewMemberStore(db)}
	ctx := context.Background()
	if f.tenant, err = f.tenants.Create(ctx, "Levi"); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	f.admin = &model.Member{TenantID: f.tenant.ID, DisplayName: "Dana", IsAdmin: true, IsActive: true}
	f.child = &model.Member{TenantID: f.tenant.ID, DisplayName: "Avi", IsActive: true}
	for _, m := range []*model.Member{f.admin, f.child} {
		if err := f.members.Create(ctx, m); err != nil {
			t.Fatalf("create member: %v", err)
		}
	}
	return f
}

// serve routes the request through a mux so {tenant} is populated.
func (f *authFixture) serve(t *testing.T, tenantID, memberID string, h http.Handler) (*httptest.ResponseRecorder, auth.AuthContext) {
	t.Helper()
	var got auth.AuthContext
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.FromContext(r.Context())
		h.ServeHTTP(w, r)
	})
	mux := http.NewServeMux()
	mux.Handle("GET /api/tenants/{tenant}/chores", RequireTenant(f.tenants, f.members)(inner))

	req := httptest.NewRequest("GET", "/api/tenants/"+tenantID+"/chores", nil)
	if memberID != "" {
		req.Header.Set(MemberHeader, memberID)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec, got
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRequireTenant(t *testing.T) {
	f := setupAuthMiddlewareDB(t)

	tests := []struct {
		name      string
		tenant    string
		member    string
		wantCode  int
		wantAdmin bool
	}{
		{"anonymous", f.tenant.ID, "", http.StatusOK, false},
		{"admin", f.tenant.ID, f.admin.ID, http.StatusOK, true},
		{"child", f.tenant.ID, f.child.ID, http.StatusOK, false},
		{"unknown tenant", "nope", "", http.StatusNotFound, false},
		{"unknown member", f.tenant.ID, "nope", http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ac := f.serve(t, tt.tenant, tt.member, okHandler)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			if ac.TenantID != f.tenant.ID || ac.MemberID != tt.member || ac.IsAdmin != tt.wantAdmin {
				t.Errorf("auth = %+v", ac)
			}
		})
	}
}

func TestRequireTenantInactiveMember(t *testing.T) {
	f := setupAuthMiddlewareDB(t)
	if _, err := f.members.SetAvailability(context.Background(), f.tenant.ID, f.child.ID, false, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	rec, _ := f.serve(t, f.tenant.ID, f.child.ID, okHandler)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireMember(t *testing.T) {
	f := setupAuthMiddlewareDB(t)

	rec, _ := f.serve(t, f.tenant.ID, "", RequireMember(okHandler))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	rec, _ = f.serve(t, f.tenant.ID, f.child.ID, RequireMember(okHandler))
	if rec.Code != http.StatusOK {
		t.Errorf("member status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRequireAdminAllowed(t *testing.T) {
	ctx := auth.WithAuth(context.Background(), auth.AuthContext{IsAdmin: true})
	req := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	RequireAdmin(okHandler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRequireAdminForbidden(t *testing.T) {
	ctx := auth.WithAuth(context.Background(), auth.AuthContext{MemberID: "m1"})
	req := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	RequireAdmin(okHandler).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}
