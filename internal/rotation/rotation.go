// Package rotation picks who is responsible for the next occurrence of a
// chore.
package rotation

import "github.com/dukerupert/chorly/internal/model"

// Selection is the outcome of one rotation step.
type Selection struct {
	// AssigneeIDs is empty when nobody is eligible; the caller must not
	// create an occurrence in that case.
	AssigneeIDs []string
	// LastAssignedID is the pointer value to persist after this step.
	LastAssignedID string
}

// Eligible filters members down to the chore's configured assignees, in
// the configured assigneeIds order. Unknown ids and inactive members are
// dropped, as are away members when SkipAwayUsers is set.
func Eligible(cfg model.AssignmentConfig, members []model.Member) []model.Member {
	byID := make(map[string]model.Member, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}

	seen := make(map[string]bool, len(cfg.AssigneeIDs))
	var out []model.Member
	for _, id := range cfg.AssigneeIDs {
		m, ok := byID[id]
		if !ok || seen[id] || !m.IsActive {
			continue
		}
		if cfg.SkipAwayUsers && m.IsAway {
			continue
		}
		seen[id] = true
		out = append(out, m)
	}
	return out
}

// Next selects the assignee of the next occurrence. Rotating chores take the
// member after last in eligible order, wrapping around, or the first member
// when last is not in the pool. Fixed chores always take the first member.
func Next(cfg model.AssignmentConfig, eligible []model.Member, last string) Selection {
	if len(eligible) == 0 {
		return Selection{LastAssignedID: last}
	}

	chosen := eligible[0]
	if cfg.Rotates() {
		for i, m := range eligible {
			if m.ID == last {
				chosen = eligible[(i+1)%len(eligible)]
				break
			}
		}
	}
	return Selection{AssigneeIDs: []string{chosen.ID}, LastAssignedID: chosen.ID}
}
