// Package jobs runs the periodic batch work: occurrence generation ahead of
// a rolling horizon, morning reminders, overdue nags and the weekly summary.
// Every job isolates failures per tenant and per chore and keeps going.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/chorly/internal/chore"
	"github.com/dukerupert/chorly/internal/email"
	"github.com/dukerupert/chorly/internal/localtime"
	"github.com/dukerupert/chorly/internal/model"
)

type TenantLister interface {
	List(ctx context.Context, onlyID string) ([]model.Tenant, error)
}

type ChoreLister interface {
	ListMaterializableIDs(ctx context.Context, tenantID string) ([]string, error)
	GetChore(ctx context.Context, tenantID, id string) (*model.ChoreDefinition, error)
}

type MemberLister interface {
	FindMembers(ctx context.Context, tenantID string, f chore.MemberFilter) ([]model.Member, error)
}

type OccurrenceReader interface {
	ListOccurrences(ctx context.Context, tenantID string, w localtime.Window, memberID string) ([]model.Occurrence, error)
	ListOpen(ctx context.Context, tenantID string, before time.Time) ([]model.Occurrence, error)
	ListApproved(ctx context.Context, tenantID string, w localtime.Window) ([]model.Occurrence, error)
}

type Earnings interface {
	EarnedBetween(ctx context.Context, tenantID string, w localtime.Window) (map[string]int64, error)
}

// SentLog remembers delivered notifications so each is sent once.
type SentLog interface {
	MarkSent(ctx context.Context, kind, tenantID, subject, memberID string, at time.Time) (bool, error)
	Forget(ctx context.Context, kind, tenantID, subject, memberID string) error
}

// Sender delivers a message and reports whether it went out.
type Sender interface {
	Send(ctx context.Context, member model.Member, msg email.Message) (bool, error)
}

type Materializer interface {
	Materialize(ctx context.Context, tenantID, choreID string, w localtime.Window) (chore.Result, error)
	NotifyCreated(ctx context.Context, res chore.Result) int
}

// Deps are the collaborators of a Runner.
type Deps struct {
	Tenants      TenantLister
	Chores       ChoreLister
	Members      MemberLister
	Occurrences  OccurrenceReader
	Ledger       Earnings
	Sent         SentLog
	Sender       Sender
	Materializer Materializer
}

type Runner struct {
	Deps
	zone      localtime.Zone
	daysAhead int
	tenantID  string
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Runner)

// WithTenant restricts every job to one tenant.
func WithTenant(id string) Option { return func(r *Runner) { r.tenantID = id } }

func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

func NewRunner(deps Deps, zone localtime.Zone, daysAhead int, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		Deps:      deps,
		zone:      zone,
		daysAhead: daysAhead,
		logger:    logger.With("component", "jobs"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Report is the outcome of one job run.
type Report struct {
	Job      string
	Started  time.Time
	Finished time.Time
	Tenants  []TenantReport
}

// TenantReport is the outcome for one tenant. Err is set when the tenant
// could not be processed at all.
type TenantReport struct {
	TenantID string
	Chores   []ChoreOutcome
	Sent     int
	Err      error
}

// ChoreOutcome is the generation result of one chore.
type ChoreOutcome struct {
	ChoreID  string
	Created  int
	Skipped  int
	Notified int
	// Held is set when another pass owned the chore lease.
	Held bool
	Err  error
}

func (r Report) Created() int {
	n := 0
	for _, t := range r.Tenants {
		for _, c := range t.Chores {
			n += c.Created
		}
	}
	return n
}

func (r Report) Sent() int {
	n := 0
	for _, t := range r.Tenants {
		n += t.Sent
	}
	return n
}

// Failures counts failed tenants and failed chores.
func (r Report) Failures() int {
	n := 0
	for _, t := range r.Tenants {
		if t.Err != nil {
			n++
		}
		for _, c := range t.Chores {
			if c.Err != nil {
				n++
			}
		}
	}
	return n
}

// forEachTenant runs fn for every tenant in scope and collects the results.
// Only a failure to list tenants is returned as an error.
func (r *Runner) forEachTenant(ctx context.Context, job string, fn func(ctx context.Context, tenantID string) TenantReport) (Report, error) {
	rep := Report{Job: job, Started: r.now()}
	tenants, err := r.Tenants.List(ctx, r.tenantID)
	if err != nil {
		return rep, fmt.Errorf("list tenants: %w", err)
	}

	for _, t := range tenants {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		tr := fn(ctx, t.ID)
		tr.TenantID = t.ID
		if tr.Err != nil {
			r.logger.Error("tenant failed", "job", job, "tenant_id", t.ID, "error", tr.Err)
		}
		rep.Tenants = append(rep.Tenants, tr)
	}
	rep.Finished = r.now()

	r.logger.Info("job done",
		"job", job,
		"tenants", len(rep.Tenants),
		"created", rep.Created(),
		"sent", rep.Sent(),
		"failures", rep.Failures(),
	)
	return rep, nil
}

// membersByID loads every member of a tenant.
func (r *Runner) membersByID(ctx context.Context, tenantID string) (map[string]model.Member, error) {
	members, err := r.Members.FindMembers(ctx, tenantID, chore.MemberFilter{})
	if err != nil {
		return nil, fmt.Errorf("find members: %w", err)
	}
	byID := make(map[string]model.Member, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}
	return byID, nil
}
