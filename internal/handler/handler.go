// Package handler exposes the chore engine as a JSON API scoped by tenant.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/chorly/internal/chore"
	"github.com/dukerupert/chorly/internal/lease"
	"github.com/dukerupert/chorly/internal/localtime"
	"github.com/dukerupert/chorly/internal/model"
)

const maxWindowDays = 62

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps service errors to status codes. Unexpected errors are
// logged and reported as 500 with a generic message.
func writeError(w http.ResponseWriter, logger *slog.Logger, action string, err error) {
	var status int
	switch {
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrInvalidDefinition), errors.Is(err, chore.ErrInvalidChange):
		status = http.StatusBadRequest
	case errors.Is(err, chore.ErrNotAssigned), errors.Is(err, chore.ErrNotAdmin):
		status = http.StatusForbidden
	case errors.Is(err, chore.ErrAlreadyApproved), errors.Is(err, chore.ErrNotDone),
		errors.Is(err, chore.ErrTemplate), errors.Is(err, lease.ErrHeld),
		errors.Is(err, model.ErrDuplicateOccurrence):
		status = http.StatusConflict
	case errors.Is(err, chore.ErrRewardRequired), errors.Is(err, chore.ErrProofNotAllowed):
		status = http.StatusUnprocessableEntity
	default:
		logger.Error("request failed", "action", action, "error", err)
		writeMessage(w, http.StatusInternalServerError, "failed to "+action)
		return
	}
	writeMessage(w, status, err.Error())
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// parseWindow reads the from/to query parameters. Each accepts RFC 3339 or a
// local date; a date means the whole local day. Missing bounds default to
// the seven local days starting today.
func parseWindow(r *http.Request, zone localtime.Zone, now time.Time) (localtime.Window, error) {
	w := zone.Week(now)
	q := r.URL.Query()
	if s := q.Get("from"); s != "" {
		t, err := parseBound(s, zone, false)
		if err != nil {
			return w, err
		}
		w.From = t
	}
	if s := q.Get("to"); s != "" {
		t, err := parseBound(s, zone, true)
		if err != nil {
			return w, err
		}
		w.To = t
	}
	if w.Empty() {
		return w, fmt.Errorf("from must not be after to")
	}
	if w.To.Sub(w.From) > maxWindowDays*24*time.Hour {
		return w, fmt.Errorf("window must not exceed %d days", maxWindowDays)
	}
	return w, nil
}

func parseBound(s string, zone localtime.Zone, end bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	d, err := time.ParseInLocation("2006-01-02", s, zone.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339 or YYYY-MM-DD", s)
	}
	if end {
		return zone.EndOfDay(d), nil
	}
	return zone.StartOfDay(d), nil
}

// parseDays reads a positive day count from the query, bounded by max.
func parseDays(r *http.Request, def, max int) (int, error) {
	s := r.URL.Query().Get("days")
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > max {
		return 0, fmt.Errorf("days must be between 1 and %d", max)
	}
	return n, nil
}
