package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dukerupert/chorly/internal/auth"
	"github.com/dukerupert/chorly/internal/model"
)

// MemberHeader names the acting member of a request.
const MemberHeader = "X-Member-ID"

type TenantGetter interface {
	Get(ctx context.Context, id string) (*model.Tenant, error)
}

type MemberGetter interface {
	GetMember(ctx context.Context, tenantID, id string) (*model.Member, error)
}

// RequireTenant resolves the {tenant} path value and populates AuthContext.
// When the X-Member-ID header is present the member must belong to the
// tenant. Requests without the header pass through anonymously.
func RequireTenant(tenants TenantGetter, members MemberGetter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			t, err := tenants.Get(ctx, r.PathValue("tenant"))
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to load tenant")
				return
			}
			if t == nil {
				writeError(w, http.StatusNotFound, "tenant not found")
				return
			}
			ac := auth.AuthContext{TenantID: t.ID}

			if id := r.Header.Get(MemberHeader); id != "" {
				m, err := members.GetMember(ctx, t.ID, id)
				if err != nil {
					writeError(w, http.StatusInternalServerError, "failed to load member")
					return
				}
				if m == nil || !m.IsActive {
					writeError(w, http.StatusUnauthorized, "unknown member")
					return
				}
				ac.MemberID = m.ID
				ac.IsAdmin = m.IsAdmin
			}

			next.ServeHTTP(w, r.WithContext(auth.WithAuth(ctx, ac)))
		})
	}
}

// RequireMember rejects requests that name no acting member.
func RequireMember(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.MemberID(r.Context()) == "" {
			writeError(w, http.StatusUnauthorized, MemberHeader+" header required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin checks that the acting member is an admin.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			writeError(w, http.StatusForbidden, "admin required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
