package jobs

import (
	"context"
	"errors"

	"github.com/dukerupert/chorly/internal/lease"
	"github.com/dukerupert/chorly/internal/localtime"
)

// Generate materializes every live chore of every tenant in scope from now
// until the end of the local day daysAhead days out, and notifies the
// assignees of what was created.
func (r *Runner) Generate(ctx context.Context) (Report, error) {
	w := r.zone.DaysAhead(r.now(), r.daysAhead)
	return r.forEachTenant(ctx, "generate", func(ctx context.Context, tenantID string) TenantReport {
		ids, err := r.Chores.ListMaterializableIDs(ctx, tenantID)
		if err != nil {
			return TenantReport{Err: err}
		}
		var tr TenantReport
		for _, id := range ids {
			if ctx.Err() != nil {
				tr.Err = ctx.Err()
				break
			}
			tr.Chores = append(tr.Chores, r.generateChore(ctx, tenantID, id, w))
		}
		return tr
	})
}

// GenerateChore runs the generation pass for a single chore.
func (r *Runner) GenerateChore(ctx context.Context, tenantID, choreID string) ChoreOutcome {
	return r.generateChore(ctx, tenantID, choreID, r.zone.DaysAhead(r.now(), r.daysAhead))
}

func (r *Runner) generateChore(ctx context.Context, tenantID, choreID string, w localtime.Window) ChoreOutcome {
	out := ChoreOutcome{ChoreID: choreID}
	res, err := r.Materializer.Materialize(ctx, tenantID, choreID, w)
	out.Created = len(res.Created)
	out.Skipped = res.Skipped

	switch {
	case errors.Is(err, lease.ErrHeld):
		r.logger.Info("chore busy, skipped", "tenant_id", tenantID, "chore_id", choreID)
		out.Held = true
		return out
	case err != nil:
		r.logger.Error("generate chore", "tenant_id", tenantID, "chore_id", choreID, "error", err)
		out.Err = err
	}
	// Occurrences created before a failure still get their notices.
	out.Notified = r.Materializer.NotifyCreated(ctx, res)
	return out
}
