package model

import "time"

type OccurrenceStatus string

const (
	StatusAssigned OccurrenceStatus = "assigned"
	StatusDone     OccurrenceStatus = "done"
	StatusApproved OccurrenceStatus = "approved"
)

// Occurrence is one materialized unit of work, unique per
// (TenantID, ChoreID, DueAt).
type Occurrence struct {
	ID       string           `json:"id"`
	TenantID string           `json:"tenant_id"`
	ChoreID  string           `json:"chore_id"`
	DueAt    time.Time        `json:"due_at"`
	Status   OccurrenceStatus `json:"status"`
	// AssigneeIDs keeps assignment order; the first entry is the primary.
	AssigneeIDs      []string     `json:"assignee_ids"`
	Completions      []Completion `json:"completions,omitempty"`
	RewardCents      int64        `json:"reward_cents"`
	ApprovedAt       *time.Time   `json:"approved_at,omitempty"`
	ApprovedByMember string       `json:"approved_by,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// IsAssigned reports whether memberID is one of the occurrence assignees.
func (o Occurrence) IsAssigned(memberID string) bool {
	for _, id := range o.AssigneeIDs {
		if id == memberID {
			return true
		}
	}
	return false
}

// Completion records one member marking an occurrence done. Undo stamps
// UndoneAt instead of deleting the row.
type Completion struct {
	ID           string     `json:"id"`
	OccurrenceID string     `json:"occurrence_id"`
	MemberID     string     `json:"member_id"`
	DoneAt       time.Time  `json:"done_at"`
	UndoneAt     *time.Time `json:"undone_at,omitempty"`
	Note         string     `json:"note,omitempty"`
	PhotoKeys    []string   `json:"photo_keys,omitempty"`
}

func (c Completion) Active() bool {
	return c.UndoneAt == nil
}
