package chore

import (
	"errors"
	"time"

	"github.com/dukerupert/chorly/internal/model"
)

var (
	ErrNotAssigned     = errors.New("member is not assigned to this occurrence")
	ErrAlreadyApproved = model.ErrAlreadyApproved
	ErrNotDone         = errors.New("only done occurrences can be approved")
	ErrNotAdmin        = errors.New("approval requires an admin")
	ErrRewardRequired  = errors.New("reward amount is required for reward chores")
	ErrTemplate        = errors.New("templates cannot be materialized")
	ErrProofNotAllowed = errors.New("chore does not accept this proof")
	ErrInvalidChange   = errors.New("invalid occurrence change")
)

// ResolveStatus maps the members holding an active completion to the
// aggregate status of an occurrence. Shared chores are done once any assignee
// is done; other chores only when the primary (first) assignee is.
//
// It never returns StatusApproved.
func ResolveStatus(cfg model.AssignmentConfig, assigneeIDs, activeCompleters []string) model.OccurrenceStatus {
	active := make(map[string]bool, len(activeCompleters))
	for _, id := range activeCompleters {
		active[id] = true
	}

	if cfg.Shared {
		for _, id := range assigneeIDs {
			if active[id] {
				return model.StatusDone
			}
		}
		return model.StatusAssigned
	}

	if len(assigneeIDs) > 0 && active[assigneeIDs[0]] {
		return model.StatusDone
	}
	return model.StatusAssigned
}

// ActiveCompleters returns the members whose completion has not been undone.
func ActiveCompleters(completions []model.Completion) []string {
	var ids []string
	for _, c := range completions {
		if c.Active() {
			ids = append(ids, c.MemberID)
		}
	}
	return ids
}

// Credited returns the members an approval pays out to: every assignee with
// an active completion for shared chores, otherwise the primary assignee if
// they are done.
func Credited(cfg model.AssignmentConfig, assigneeIDs, activeCompleters []string) []string {
	active := make(map[string]bool, len(activeCompleters))
	for _, id := range activeCompleters {
		active[id] = true
	}

	var out []string
	if cfg.Shared {
		for _, id := range assigneeIDs {
			if active[id] {
				out = append(out, id)
			}
		}
		return out
	}
	if len(assigneeIDs) > 0 && active[assigneeIDs[0]] {
		out = append(out, assigneeIDs[0])
	}
	return out
}

// CheckMutable rejects completion changes on an approved occurrence.
func CheckMutable(o model.Occurrence) error {
	if o.Status == model.StatusApproved || o.ApprovedAt != nil {
		return ErrAlreadyApproved
	}
	return nil
}

// CheckApprovable allows only the done -> approved transition.
func CheckApprovable(o model.Occurrence) error {
	if err := CheckMutable(o); err != nil {
		return err
	}
	if o.Status != model.StatusDone {
		return ErrNotDone
	}
	return nil
}

// Outstanding lists the assignees without an active completion, in
// assignment order.
func Outstanding(o model.Occurrence) []string {
	active := make(map[string]bool)
	for _, id := range ActiveCompleters(o.Completions) {
		active[id] = true
	}
	var out []string
	for _, id := range o.AssigneeIDs {
		if !active[id] {
			out = append(out, id)
		}
	}
	return out
}

// IsOverdue reports whether an unapproved occurrence is past its due time
// plus grace.
func IsOverdue(o model.Occurrence, grace time.Duration, now time.Time) bool {
	if o.Status == model.StatusApproved {
		return false
	}
	return !o.DueAt.Add(grace).After(now)
}
