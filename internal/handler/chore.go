package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/chorly/internal/auth"
	"github.com/dukerupert/chorly/internal/chore"
	"github.com/dukerupert/chorly/internal/model"
)

type ChoreHandler struct {
	svc    *chore.Service
	logger *slog.Logger
}

func NewChoreHandler(svc *chore.Service, logger *slog.Logger) *ChoreHandler {
	return &ChoreHandler{svc: svc, logger: logger}
}

// choreRequest is a new definition. allow_notes defaults to true.
type choreRequest struct {
	Title           string          `json:"title"`
	Schedule        json.RawMessage `json:"schedule"`
	Assignment      json.RawMessage `json:"assignment"`
	HasReward       bool            `json:"has_reward"`
	RewardCents     int64           `json:"reward_cents"`
	AllowNotes      *bool           `json:"allow_notes"`
	AllowPhotoProof bool            `json:"allow_photo_proof"`
	IsTemplate      bool            `json:"is_template"`
}

type chorePatchRequest struct {
	Title           *string         `json:"title"`
	Schedule        json.RawMessage `json:"schedule"`
	Assignment      json.RawMessage `json:"assignment"`
	HasReward       *bool           `json:"has_reward"`
	RewardCents     *int64          `json:"reward_cents"`
	AllowNotes      *bool           `json:"allow_notes"`
	AllowPhotoProof *bool           `json:"allow_photo_proof"`
}

func (h *ChoreHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req choreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	sched, err := model.UnmarshalSchedule(req.Schedule)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	asg, err := model.UnmarshalAssignment(req.Assignment)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	allowNotes := true
	if req.AllowNotes != nil {
		allowNotes = *req.AllowNotes
	}

	c, err := h.svc.CreateChore(r.Context(), auth.TenantID(r.Context()), chore.ChoreInput{
		Title:           strings.TrimSpace(req.Title),
		Schedule:        sched,
		Assignment:      asg,
		HasReward:       req.HasReward,
		RewardCents:     req.RewardCents,
		AllowNotes:      allowNotes,
		AllowPhotoProof: req.AllowPhotoProof,
		IsTemplate:      req.IsTemplate,
	})
	if err != nil {
		writeError(w, h.logger, "create chore", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// List returns live chores, or templates with ?templates=true.
func (h *ChoreHandler) List(w http.ResponseWriter, r *http.Request) {
	templates := r.URL.Query().Get("templates") == "true"
	chores, err := h.svc.ListChores(r.Context(), auth.TenantID(r.Context()), templates)
	if err != nil {
		writeError(w, h.logger, "list chores", err)
		return
	}
	if chores == nil {
		chores = []model.ChoreDefinition{}
	}
	writeJSON(w, http.StatusOK, chores)
}

func (h *ChoreHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetChore(r.Context(), auth.TenantID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, "get chore", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ChoreHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req chorePatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	patch := chore.ChorePatch{
		HasReward:       req.HasReward,
		RewardCents:     req.RewardCents,
		AllowNotes:      req.AllowNotes,
		AllowPhotoProof: req.AllowPhotoProof,
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		patch.Title = &title
	}
	if len(req.Schedule) > 0 {
		sched, err := model.UnmarshalSchedule(req.Schedule)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		patch.Schedule = sched
	}
	if len(req.Assignment) > 0 {
		asg, err := model.UnmarshalAssignment(req.Assignment)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		patch.Assignment = &asg
	}

	c, err := h.svc.UpdateChore(r.Context(), auth.TenantID(r.Context()), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, h.logger, "update chore", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ChoreHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteChore(r.Context(), auth.TenantID(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, h.logger, "delete chore", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clone creates a live chore from the template {id}.
func (h *ChoreHandler) Clone(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.CloneTemplate(r.Context(), auth.TenantID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, "clone template", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// Catalog lists the built-in templates.
func (h *ChoreHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, chore.Catalog())
}

// SeedTemplates adds the missing catalog templates, assigned to the acting
// admin.
func (h *ChoreHandler) SeedTemplates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	created, err := h.svc.SeedTemplates(ctx, auth.TenantID(ctx), auth.MemberID(ctx))
	if err != nil {
		writeError(w, h.logger, "seed templates", err)
		return
	}
	if created == nil {
		created = []model.ChoreDefinition{}
	}
	writeJSON(w, http.StatusOK, created)
}

type materializeResponse struct {
	Created     int                `json:"created"`
	Skipped     int                `json:"skipped"`
	Occurrences []model.Occurrence `json:"occurrences"`
}

// Materialize generates the chore's occurrences for ?days local days
// starting today (default 7).
func (h *ChoreHandler) Materialize(w http.ResponseWriter, r *http.Request) {
	days, err := parseDays(r, 7, maxWindowDays)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	win := h.svc.Zone().Days(h.svc.Now(), days)
	res, err := h.svc.Materialize(r.Context(), auth.TenantID(r.Context()), r.PathValue("id"), win)
	if err != nil {
		writeError(w, h.logger, "materialize chore", err)
		return
	}
	occs := res.Created
	if occs == nil {
		occs = []model.Occurrence{}
	}
	writeJSON(w, http.StatusOK, materializeResponse{Created: len(res.Created), Skipped: res.Skipped, Occurrences: occs})
}
