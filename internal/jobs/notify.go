package jobs

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dukerupert/chorly/internal/chore"
	"github.com/dukerupert/chorly/internal/email"
	"github.com/dukerupert/chorly/internal/model"
)

// Notification kinds recorded in the sent log.
const (
	KindReminder = "reminder"
	KindOverdue  = "overdue"
	KindSummary  = "summary"
)

const previewLimit = 5

// digest collects notification lines per member in first-seen order.
type digest struct {
	order  []string
	lines  map[string][]email.Line
	claims map[string][]string // sent-log subjects taken per member
}

func newDigest() *digest {
	return &digest{lines: make(map[string][]email.Line), claims: make(map[string][]string)}
}

func (d *digest) add(memberID string, l email.Line) {
	if _, ok := d.lines[memberID]; !ok {
		d.order = append(d.order, memberID)
	}
	d.lines[memberID] = append(d.lines[memberID], l)
}

// choreCache resolves chores by id once per tenant pass.
type choreCache struct {
	r        *Runner
	tenantID string
	byID     map[string]*model.ChoreDefinition
}

func (r *Runner) newChoreCache(tenantID string) *choreCache {
	return &choreCache{r: r, tenantID: tenantID, byID: make(map[string]*model.ChoreDefinition)}
}

// get returns nil when the chore is missing or cannot be decoded.
func (c *choreCache) get(ctx context.Context, id string) *model.ChoreDefinition {
	if ch, ok := c.byID[id]; ok {
		return ch
	}
	ch, err := c.r.Chores.GetChore(ctx, c.tenantID, id)
	if err != nil {
		c.r.logger.Warn("load chore", "tenant_id", c.tenantID, "chore_id", id, "error", err)
		ch = nil
	}
	c.byID[id] = ch
	return ch
}

func (c *choreCache) title(ctx context.Context, id string) string {
	if ch := c.get(ctx, id); ch != nil {
		return ch.Title
	}
	return "Chore"
}

// Reminders sends every member one email listing today's occurrences they
// have not completed yet. Each member gets at most one reminder per local
// day.
func (r *Runner) Reminders(ctx context.Context) (Report, error) {
	now := r.now()
	today := r.zone.Today(now)
	day := r.zone.In(now).Format("2006-01-02")

	return r.forEachTenant(ctx, "reminders", func(ctx context.Context, tenantID string) TenantReport {
		occs, err := r.Occurrences.ListOccurrences(ctx, tenantID, today, "")
		if err != nil {
			return TenantReport{Err: err}
		}
		members, err := r.membersByID(ctx, tenantID)
		if err != nil {
			return TenantReport{Err: err}
		}

		chores := r.newChoreCache(tenantID)
		d := newDigest()
		for _, occ := range occs {
			if occ.Status != model.StatusAssigned && occ.Status != model.StatusDone {
				continue
			}
			for _, id := range chore.Outstanding(occ) {
				d.add(id, email.Line{Title: chores.title(ctx, occ.ChoreID), DueAt: occ.DueAt})
			}
		}

		var tr TenantReport
		for _, id := range d.order {
			m, ok := members[id]
			if !ok {
				continue
			}
			if r.deliverOnce(ctx, KindReminder, tenantID, day, m, email.ReminderMessage(d.lines[id])) {
				tr.Sent++
			}
		}
		return tr
	})
}

// Overdue nags each assignee without an active completion about
// occurrences past their due time plus grace period. A given occurrence is
// nagged about once per member.
func (r *Runner) Overdue(ctx context.Context) (Report, error) {
	now := r.now()

	return r.forEachTenant(ctx, "overdue", func(ctx context.Context, tenantID string) TenantReport {
		occs, err := r.Occurrences.ListOpen(ctx, tenantID, now)
		if err != nil {
			return TenantReport{Err: err}
		}
		members, err := r.membersByID(ctx, tenantID)
		if err != nil {
			return TenantReport{Err: err}
		}

		chores := r.newChoreCache(tenantID)
		d := newDigest()
		for _, occ := range occs {
			grace := time.Duration(model.DefaultGracePeriodMinutes) * time.Minute
			title := "Chore"
			if ch := chores.get(ctx, occ.ChoreID); ch != nil {
				grace = ch.Schedule.GracePeriod()
				title = ch.Title
			}
			if !chore.IsOverdue(occ, grace, now) {
				continue
			}
			for _, id := range chore.Outstanding(occ) {
				if _, ok := members[id]; !ok {
					continue
				}
				claimed, err := r.Sent.MarkSent(ctx, KindOverdue, tenantID, occ.ID, id, now)
				if err != nil {
					r.logger.Error("mark nag sent", "tenant_id", tenantID, "occurrence_id", occ.ID, "member_id", id, "error", err)
					continue
				}
				if !claimed {
					continue
				}
				d.add(id, email.Line{Title: title, DueAt: occ.DueAt})
				d.claims[id] = append(d.claims[id], occ.ID)
			}
		}

		var tr TenantReport
		for _, id := range d.order {
			sent, err := r.Sender.Send(ctx, members[id], email.OverdueMessage(d.lines[id]))
			if err != nil {
				r.logger.Error("send overdue nag", "tenant_id", tenantID, "member_id", id, "error", err)
				for _, subject := range d.claims[id] {
					r.forget(ctx, KindOverdue, tenantID, subject, id)
				}
				continue
			}
			if sent {
				tr.Sent++
			}
		}
		return tr
	})
}

// Summary sends each active member last week's approved-chore count and
// earnings plus a preview of their next occurrences. It runs at most once
// per member per local day it is invoked on.
func (r *Runner) Summary(ctx context.Context) (Report, error) {
	now := r.now()
	lastWeek := r.zone.LastDays(now, 7)
	nextWeek := r.zone.Days(now, 7)
	day := r.zone.In(now).Format("2006-01-02")

	return r.forEachTenant(ctx, "summary", func(ctx context.Context, tenantID string) TenantReport {
		members, err := r.Members.FindMembers(ctx, tenantID, chore.MemberFilter{ActiveOnly: true})
		if err != nil {
			return TenantReport{Err: fmt.Errorf("find members: %w", err)}
		}
		approved, err := r.Occurrences.ListApproved(ctx, tenantID, lastWeek)
		if err != nil {
			return TenantReport{Err: err}
		}
		earned, err := r.Ledger.EarnedBetween(ctx, tenantID, lastWeek)
		if err != nil {
			return TenantReport{Err: err}
		}
		upcoming, err := r.Occurrences.ListOccurrences(ctx, tenantID, nextWeek, "")
		if err != nil {
			return TenantReport{Err: err}
		}

		chores := r.newChoreCache(tenantID)
		var tr TenantReport
		for _, m := range members {
			count := 0
			for _, occ := range approved {
				if slices.Contains(chore.ActiveCompleters(occ.Completions), m.ID) {
					count++
				}
			}
			var preview []email.Line
			for _, occ := range upcoming {
				if len(preview) == previewLimit {
					break
				}
				if occ.IsAssigned(m.ID) {
					preview = append(preview, email.Line{Title: chores.title(ctx, occ.ChoreID), DueAt: occ.DueAt})
				}
			}
			msg := email.SummaryMessage(count, earned[m.ID], preview)
			if r.deliverOnce(ctx, KindSummary, tenantID, day, m, msg) {
				tr.Sent++
			}
		}
		return tr
	})
}

// deliverOnce claims (kind, subject, member) in the sent log and sends msg.
// A failed delivery releases the claim so the next run retries.
func (r *Runner) deliverOnce(ctx context.Context, kind, tenantID, subject string, m model.Member, msg email.Message) bool {
	claimed, err := r.Sent.MarkSent(ctx, kind, tenantID, subject, m.ID, r.now())
	if err != nil {
		r.logger.Error("mark sent", "kind", kind, "tenant_id", tenantID, "member_id", m.ID, "error", err)
		return false
	}
	if !claimed {
		return false
	}
	sent, err := r.Sender.Send(ctx, m, msg)
	if err != nil {
		r.logger.Error("send notification", "kind", kind, "tenant_id", tenantID, "member_id", m.ID, "error", err)
		r.forget(ctx, kind, tenantID, subject, m.ID)
		return false
	}
	return sent
}

func (r *Runner) forget(ctx context.Context, kind, tenantID, subject, memberID string) {
	if err := r.Sent.Forget(ctx, kind, tenantID, subject, memberID); err != nil {
		r.logger.Error("forget notification", "kind", kind, "tenant_id", tenantID, "member_id", memberID, "error", err)
	}
}
