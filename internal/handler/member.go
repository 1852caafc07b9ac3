package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/chorly/internal/auth"
	"github.com/dukerupert/chorly/internal/chore"
	"github.com/dukerupert/chorly/internal/model"
	"github.com/dukerupert/chorly/internal/store"
)

type MemberHandler struct {
	members *store.MemberStore
	ledger  *store.LedgerStore
	logger  *slog.Logger
}

func NewMemberHandler(ms *store.MemberStore, ls *store.LedgerStore, logger *slog.Logger) *MemberHandler {
	return &MemberHandler{members: ms, ledger: ls, logger: logger}
}

type memberRequest struct {
	DisplayName string     `json:"display_name"`
	Email       string     `json:"email"`
	Role        model.Role `json:"role"`
	IsAdmin     bool       `json:"is_admin"`
}

func (r *memberRequest) validate() string {
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	r.Email = strings.TrimSpace(r.Email)
	if r.DisplayName == "" {
		return "display_name is required"
	}
	if len(r.DisplayName) > 50 {
		return "display_name must be 50 characters or less"
	}
	switch r.Role {
	case "", model.RoleParent, model.RoleChild:
	default:
		return "role must be parent or child"
	}
	if r.Email != "" && !strings.Contains(r.Email, "@") {
		return "email is invalid"
	}
	return ""
}

func (h *MemberHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeMessage(w, http.StatusBadRequest, msg)
		return
	}

	m := &model.Member{
		TenantID:    auth.TenantID(r.Context()),
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Role:        req.Role,
		IsAdmin:     req.IsAdmin,
		IsActive:    true,
	}
	if err := h.members.Create(r.Context(), m); err != nil {
		writeError(w, h.logger, "create member", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	members, err := h.members.List(r.Context(), auth.TenantID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "list members", err)
		return
	}
	if members == nil {
		members = []model.Member{}
	}
	writeJSON(w, http.StatusOK, members)
}

// SetAvailability updates the active and away flags that drive assignment
// eligibility.
func (h *MemberHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsActive *bool `json:"is_active"`
		IsAway   *bool `json:"is_away"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	ctx := r.Context()
	tenantID := auth.TenantID(ctx)
	m, err := h.members.GetMember(ctx, tenantID, r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, "get member", err)
		return
	}
	if m == nil {
		writeMessage(w, http.StatusNotFound, "member not found")
		return
	}
	active, away := m.IsActive, m.IsAway
	if req.IsActive != nil {
		active = *req.IsActive
	}
	if req.IsAway != nil {
		away = *req.IsAway
	}

	m, err = h.members.SetAvailability(ctx, tenantID, m.ID, active, away)
	if err != nil {
		writeError(w, h.logger, "update member", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type ledgerResponse struct {
	BalanceCents int64               `json:"balance_cents"`
	Entries      []model.LedgerEntry `json:"entries"`
}

// Ledger returns a member's reward entries, newest first, and their sum.
func (h *MemberHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := auth.TenantID(ctx)
	id := r.PathValue("id")

	m, err := h.members.GetMember(ctx, tenantID, id)
	if err != nil {
		writeError(w, h.logger, "get member", err)
		return
	}
	if m == nil {
		writeMessage(w, http.StatusNotFound, "member not found")
		return
	}
	entries, err := h.ledger.List(ctx, tenantID, id)
	if err != nil {
		writeError(w, h.logger, "list ledger", err)
		return
	}
	balance, err := h.ledger.Balance(ctx, tenantID, id)
	if err != nil {
		writeError(w, h.logger, "ledger balance", err)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, ledgerResponse{BalanceCents: balance, Entries: entries})
}

type TenantHandler struct {
	tenants *store.TenantStore
	members *store.MemberStore
	svc     *chore.Service
	logger  *slog.Logger
}

func NewTenantHandler(ts *store.TenantStore, ms *store.MemberStore, svc *chore.Service, logger *slog.Logger) *TenantHandler {
	return &TenantHandler{tenants: ts, members: ms, svc: svc, logger: logger}
}

type tenantRequest struct {
	Name  string        `json:"name"`
	Admin memberRequest `json:"admin"`
}

type tenantResponse struct {
	Tenant    *model.Tenant `json:"tenant"`
	Admin     *model.Member `json:"admin"`
	Templates int           `json:"templates"`
}

// Create registers a tenant together with its first admin member and seeds
// the built-in templates, assigned to that admin. A failed seed is logged;
// the admin can run it again from the templates endpoint.
func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req tenantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeMessage(w, http.StatusBadRequest, "name is required")
		return
	}
	if msg := req.Admin.validate(); msg != "" {
		writeMessage(w, http.StatusBadRequest, "admin: "+msg)
		return
	}

	ctx := r.Context()
	t, err := h.tenants.Create(ctx, req.Name)
	if err != nil {
		writeError(w, h.logger, "create tenant", err)
		return
	}
	admin := &model.Member{
		TenantID:    t.ID,
		DisplayName: req.Admin.DisplayName,
		Email:       req.Admin.Email,
		Role:        model.RoleParent,
		IsAdmin:     true,
		IsActive:    true,
	}
	if err := h.members.Create(ctx, admin); err != nil {
		writeError(w, h.logger, "create admin", err)
		return
	}
	templates, err := h.svc.SeedTemplates(ctx, t.ID, admin.ID)
	if err != nil {
		h.logger.Warn("seed templates", "tenant_id", t.ID, "error", err)
	}
	writeJSON(w, http.StatusCreated, tenantResponse{Tenant: t, Admin: admin, Templates: len(templates)})
}
