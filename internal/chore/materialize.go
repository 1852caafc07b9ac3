package chore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/chorly/internal/lease"
	"github.com/dukerupert/chorly/internal/localtime"
	"github.com/dukerupert/chorly/internal/model"
	"github.com/dukerupert/chorly/internal/rotation"
	"github.com/dukerupert/chorly/internal/schedule"
)

// Materializer creates the missing occurrences of a chore inside a window.
// It never modifies or duplicates an existing occurrence.
type Materializer struct {
	chores      ChoreRepo
	members     MemberRepo
	occurrences OccurrenceRepo
	expander    *schedule.Expander
	logger      *slog.Logger

	notifier Notifier
	events   Events
	locker   Locker
	recorder Recorder
	now      func() time.Time
}

type Option func(*Materializer)

func WithNotifier(n Notifier) Option { return func(m *Materializer) { m.notifier = n } }
func WithEvents(e Events) Option     { return func(m *Materializer) { m.events = e } }
func WithRecorder(r Recorder) Option { return func(m *Materializer) { m.recorder = r } }

// WithLocker wraps every pass in a per-chore lease.
func WithLocker(l Locker) Option { return func(m *Materializer) { m.locker = l } }

// WithClock overrides time.Now, which anchors never-approved
// repeating_after_completion chores.
func WithClock(now func() time.Time) Option { return func(m *Materializer) { m.now = now } }

func NewMaterializer(chores ChoreRepo, members MemberRepo, occurrences OccurrenceRepo, expander *schedule.Expander, logger *slog.Logger, opts ...Option) *Materializer {
	m := &Materializer{
		chores:      chores,
		members:     members,
		occurrences: occurrences,
		expander:    expander,
		logger:      logger.With("component", "materializer"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Result describes one materialization pass.
type Result struct {
	Chore   model.ChoreDefinition
	Created []model.Occurrence
	// Assignees holds every member referenced by Created, by id.
	Assignees map[string]model.Member
	// Skipped counts due dates that already had an occurrence.
	Skipped int
}

// LeaseKey names the lease held while a chore is materialized.
func LeaseKey(tenantID, choreID string) string {
	return "materialize:" + tenantID + ":" + choreID
}

// Materialize brings the persisted occurrences of one chore in line with its
// schedule inside w. Missing, deleted and template chores are a no-op, as is
// an empty eligible pool. A definition that cannot be evaluated returns an
// error wrapping model.ErrInvalidDefinition.
func (m *Materializer) Materialize(ctx context.Context, tenantID, choreID string, w localtime.Window) (Result, error) {
	start := time.Now()
	res, err := m.materialize(ctx, tenantID, choreID, w)
	if m.recorder != nil {
		m.recorder.MaterializeDuration(ctx, time.Since(start))
		if err != nil && !errors.Is(err, lease.ErrHeld) {
			m.recorder.MaterializeFailed(ctx, tenantID)
		}
		if len(res.Created) > 0 {
			m.recorder.OccurrencesCreated(ctx, tenantID, len(res.Created))
		}
	}
	return res, err
}

func (m *Materializer) materialize(ctx context.Context, tenantID, choreID string, w localtime.Window) (res Result, err error) {
	if m.locker != nil {
		release, err := m.locker.Acquire(ctx, LeaseKey(tenantID, choreID))
		if err != nil {
			return Result{}, fmt.Errorf("acquire chore lease: %w", err)
		}
		defer release()
	}

	c, err := m.chores.GetChore(ctx, tenantID, choreID)
	if err != nil {
		return Result{}, fmt.Errorf("get chore: %w", err)
	}
	if c == nil || !c.Materializable() {
		return Result{}, nil
	}
	res = Result{Chore: *c}
	if err := c.Validate(); err != nil {
		return res, err
	}

	members, err := m.members.FindMembers(ctx, tenantID, MemberFilter{
		IDs:         c.Assignment.AssigneeIDs,
		ActiveOnly:  true,
		ExcludeAway: c.Assignment.SkipAwayUsers,
	})
	if err != nil {
		return res, fmt.Errorf("find members: %w", err)
	}
	pool := rotation.Eligible(c.Assignment, members)
	if len(pool) == 0 {
		m.logger.Info("no eligible members", "tenant_id", tenantID, "chore_id", choreID)
		return res, nil
	}

	anchor := m.now()
	if _, ok := c.Schedule.(model.RepeatingAfterCompletion); ok {
		if anchor, err = m.completionAnchor(ctx, c); err != nil {
			return res, err
		}
	}

	dates, err := m.expander.DueDates(c.Schedule, w, anchor)
	if err != nil {
		return res, err
	}

	byID := make(map[string]model.Member, len(pool))
	for _, p := range pool {
		byID[p.ID] = p
	}

	// The pointer is threaded through the loop and written once at the end,
	// also when a later date fails, so created occurrences stay accounted for.
	pointer := c.LastAssignedMemberID
	defer func() {
		if pointer == c.LastAssignedMemberID {
			return
		}
		if perr := m.chores.UpdateRotationPointer(ctx, tenantID, choreID, pointer); perr != nil {
			m.logger.Error("update rotation pointer", "tenant_id", tenantID, "chore_id", choreID, "error", perr)
			return
		}
		res.Chore.LastAssignedMemberID = pointer
	}()

	for _, due := range dates {
		existing, err := m.occurrences.FindOccurrence(ctx, tenantID, choreID, due)
		if err != nil {
			return res, fmt.Errorf("find occurrence at %s: %w", due.Format(time.RFC3339), err)
		}
		if existing != nil {
			res.Skipped++
			continue
		}

		sel := rotation.Next(c.Assignment, pool, pointer)
		if len(sel.AssigneeIDs) == 0 {
			continue
		}

		occ := model.Occurrence{
			TenantID:    tenantID,
			ChoreID:     choreID,
			DueAt:       due,
			Status:      model.StatusAssigned,
			AssigneeIDs: sel.AssigneeIDs,
			RewardCents: c.RewardCents,
		}
		if err := m.occurrences.CreateOccurrence(ctx, &occ); err != nil {
			if errors.Is(err, model.ErrOccurrenceCleared) {
				res.Skipped++
				continue
			}
			if errors.Is(err, model.ErrDuplicateOccurrence) {
				// Lost a race with a concurrent pass; the winner owns the rotation step.
				m.logger.Warn("occurrence created concurrently", "tenant_id", tenantID, "chore_id", choreID, "due_at", due)
				res.Skipped++
				continue
			}
			return res, fmt.Errorf("create occurrence at %s: %w", due.Format(time.RFC3339), err)
		}
		pointer = sel.LastAssignedID

		m.logger.Info("occurrence created",
			"tenant_id", tenantID,
			"chore_id", choreID,
			"occurrence_id", occ.ID,
			"due_at", occ.DueAt,
			"assignees", occ.AssigneeIDs,
		)
		res.Created = append(res.Created, occ)
		if m.events != nil {
			m.events.OccurrenceCreated(tenantID, occ)
		}
	}

	if len(res.Created) > 0 {
		res.Assignees = make(map[string]model.Member)
		for _, occ := range res.Created {
			for _, id := range occ.AssigneeIDs {
				res.Assignees[id] = byID[id]
			}
		}
	}
	return res, nil
}

// completionAnchor is the instant an after-completion series counts from:
// the latest approval, or the chore's creation while it was never approved.
// Both are fixed between passes, so repeated passes agree on the due dates.
func (m *Materializer) completionAnchor(ctx context.Context, c *model.ChoreDefinition) (time.Time, error) {
	last, err := m.occurrences.FindLastApproval(ctx, c.TenantID, c.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("find last approval: %w", err)
	}
	switch {
	case last != nil:
		return *last, nil
	case !c.CreatedAt.IsZero():
		return c.CreatedAt, nil
	}
	return m.now(), nil
}

// NotifyCreated sends one assignment notice per assignee of every occurrence
// in res. Delivery failures are logged and skipped.
func (m *Materializer) NotifyCreated(ctx context.Context, res Result) int {
	if m.notifier == nil {
		return 0
	}
	sent := 0
	for _, occ := range res.Created {
		for _, id := range occ.AssigneeIDs {
			member, ok := res.Assignees[id]
			if !ok {
				continue
			}
			if err := m.notifier.NotifyAssigned(ctx, member, res.Chore, occ); err != nil {
				m.logger.Error("notify assigned", "tenant_id", occ.TenantID, "occurrence_id", occ.ID, "member_id", id, "error", err)
				continue
			}
			sent++
		}
	}
	return sent
}
