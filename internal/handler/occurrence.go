package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/chorly/internal/auth"
	"github.com/dukerupert/chorly/internal/chore"
	"github.com/dukerupert/chorly/internal/model"
)

type OccurrenceHandler struct {
	svc    *chore.Service
	logger *slog.Logger
}

func NewOccurrenceHandler(svc *chore.Service, logger *slog.Logger) *OccurrenceHandler {
	return &OccurrenceHandler{svc: svc, logger: logger}
}

// List returns occurrences due in the from/to window, optionally only those
// assigned to ?member.
func (h *OccurrenceHandler) List(w http.ResponseWriter, r *http.Request) {
	win, err := parseWindow(r, h.svc.Zone(), h.svc.Now())
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	occs, err := h.svc.ListOccurrences(r.Context(), auth.TenantID(r.Context()), win, r.URL.Query().Get("member"))
	if err != nil {
		writeError(w, h.logger, "list occurrences", err)
		return
	}
	if occs == nil {
		occs = []model.Occurrence{}
	}
	writeJSON(w, http.StatusOK, occs)
}

func (h *OccurrenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.GetOccurrence(r.Context(), auth.TenantID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, "get occurrence", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

const maxNoteLength = 500

// Done marks the occurrence done by the acting member. An optional body
// {"note": "...", "photo_keys": [...]} attaches proof.
func (h *OccurrenceHandler) Done(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Note      string   `json:"note"`
		PhotoKeys []string `json:"photo_keys"`
	}
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Note = strings.TrimSpace(req.Note)
	if len(req.Note) > maxNoteLength {
		writeMessage(w, http.StatusBadRequest, "note must be 500 characters or less")
		return
	}

	ctx := r.Context()
	o, err := h.svc.MarkDone(ctx, auth.TenantID(ctx), r.PathValue("id"), auth.MemberID(ctx),
		chore.Proof{Note: req.Note, PhotoKeys: req.PhotoKeys})
	if err != nil {
		writeError(w, h.logger, "mark done", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// Undo withdraws the acting member's completion.
func (h *OccurrenceHandler) Undo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	o, err := h.svc.Undo(ctx, auth.TenantID(ctx), r.PathValue("id"), auth.MemberID(ctx))
	if err != nil {
		writeError(w, h.logger, "undo completion", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// Approve approves the occurrence as the acting member. An optional body
// {"reward_cents": n} overrides the reward.
func (h *OccurrenceHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RewardCents *int64 `json:"reward_cents"`
	}
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.RewardCents != nil && *req.RewardCents < 0 {
		writeMessage(w, http.StatusBadRequest, "reward_cents must not be negative")
		return
	}

	ctx := r.Context()
	o, err := h.svc.Approve(ctx, auth.TenantID(ctx), r.PathValue("id"), auth.MemberID(ctx), req.RewardCents)
	if err != nil {
		writeError(w, h.logger, "approve occurrence", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// Update reschedules the occurrence and/or replaces its assignees:
// {"due_at": RFC 3339, "assignee_ids": [...]}.
func (h *OccurrenceHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DueAt       *time.Time `json:"due_at"`
		AssigneeIDs []string   `json:"assignee_ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	ctx := r.Context()
	o, err := h.svc.RescheduleOccurrence(ctx, auth.TenantID(ctx), r.PathValue("id"), req.DueAt, req.AssigneeIDs)
	if err != nil {
		writeError(w, h.logger, "update occurrence", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OccurrenceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.svc.DeleteOccurrence(ctx, auth.TenantID(ctx), r.PathValue("id")); err != nil {
		writeError(w, h.logger, "delete occurrence", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
