package model

import (
	"encoding/json"
	"fmt"
	"time"
)

type AssignmentMode string

const (
	ModeFixed      AssignmentMode = "fixed"
	ModeRoundRobin AssignmentMode = "round_robin"
)

// AssignmentConfig is the assignment policy of a chore. AssigneeIDs order is
// significant: it drives rotation order and the fixed-mode choice.
type AssignmentConfig struct {
	Mode          AssignmentMode `json:"mode"`
	Shared        bool           `json:"shared"`
	SkipAwayUsers bool           `json:"skipAwayUsers"`
	AssigneeIDs   []string       `json:"assigneeIds"`
}

// Rotates reports whether each occurrence advances the rotation pointer.
// Shared chores rotate regardless of the stated mode.
func (a AssignmentConfig) Rotates() bool {
	return a.Shared || a.Mode == ModeRoundRobin
}

func (a AssignmentConfig) Validate() error {
	switch a.Mode {
	case ModeFixed, ModeRoundRobin:
	default:
		return fmt.Errorf("%w: unknown assignment mode %q", ErrInvalidDefinition, a.Mode)
	}
	if len(a.AssigneeIDs) == 0 {
		return fmt.Errorf("%w: assigneeIds must not be empty", ErrInvalidDefinition)
	}
	for _, id := range a.AssigneeIDs {
		if id == "" {
			return fmt.Errorf("%w: empty assignee id", ErrInvalidDefinition)
		}
	}
	return nil
}

// UnmarshalAssignment decodes and validates an assignment payload.
// skipAwayUsers defaults to true when absent.
func UnmarshalAssignment(data []byte) (AssignmentConfig, error) {
	if len(data) == 0 {
		return AssignmentConfig{}, fmt.Errorf("%w: empty assignment", ErrInvalidDefinition)
	}
	var in struct {
		Mode          AssignmentMode `json:"mode"`
		Shared        bool           `json:"shared"`
		SkipAwayUsers *bool          `json:"skipAwayUsers"`
		AssigneeIDs   []string       `json:"assigneeIds"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return AssignmentConfig{}, fmt.Errorf("%w: decode assignment: %v", ErrInvalidDefinition, err)
	}
	a := AssignmentConfig{
		Mode:          in.Mode,
		Shared:        in.Shared,
		SkipAwayUsers: true,
		AssigneeIDs:   in.AssigneeIDs,
	}
	if in.SkipAwayUsers != nil {
		a.SkipAwayUsers = *in.SkipAwayUsers
	}
	if err := a.Validate(); err != nil {
		return AssignmentConfig{}, err
	}
	return a, nil
}

// ChoreDefinition is the recurring template occurrences are generated from.
type ChoreDefinition struct {
	ID         string
	TenantID   string
	Title      string
	Schedule   Schedule
	Assignment AssignmentConfig
	// LastAssignedMemberID is the rotation pointer; empty when unset.
	LastAssignedMemberID string
	HasReward            bool
	RewardCents          int64
	// AllowNotes and AllowPhotoProof gate what a member may attach when
	// marking an occurrence done.
	AllowNotes      bool
	AllowPhotoProof bool
	IsTemplate      bool
	DeletedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Materializable reports whether occurrences may be generated for the chore.
func (c ChoreDefinition) Materializable() bool {
	return !c.IsTemplate && c.DeletedAt == nil
}

func (c ChoreDefinition) Validate() error {
	if c.Schedule == nil {
		return fmt.Errorf("%w: missing schedule", ErrInvalidDefinition)
	}
	if err := c.Schedule.Validate(); err != nil {
		return err
	}
	if err := c.Assignment.Validate(); err != nil {
		return err
	}
	if c.RewardCents < 0 {
		return fmt.Errorf("%w: negative reward", ErrInvalidDefinition)
	}
	return nil
}

type choreJSON struct {
	ID                   string           `json:"id"`
	TenantID             string           `json:"tenant_id"`
	Title                string           `json:"title"`
	Schedule             json.RawMessage  `json:"schedule"`
	Assignment           AssignmentConfig `json:"assignment"`
	LastAssignedMemberID string           `json:"last_assigned_member_id,omitempty"`
	HasReward            bool             `json:"has_reward"`
	RewardCents          int64            `json:"reward_cents"`
	AllowNotes           bool             `json:"allow_notes"`
	AllowPhotoProof      bool             `json:"allow_photo_proof"`
	IsTemplate           bool             `json:"is_template"`
	DeletedAt            *time.Time       `json:"deleted_at,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

func (c ChoreDefinition) MarshalJSON() ([]byte, error) {
	sched, err := MarshalSchedule(c.Schedule)
	if err != nil {
		return nil, err
	}
	return json.Marshal(choreJSON{
		ID:                   c.ID,
		TenantID:             c.TenantID,
		Title:                c.Title,
		Schedule:             sched,
		Assignment:           c.Assignment,
		LastAssignedMemberID: c.LastAssignedMemberID,
		HasReward:            c.HasReward,
		RewardCents:          c.RewardCents,
		AllowNotes:           c.AllowNotes,
		AllowPhotoProof:      c.AllowPhotoProof,
		IsTemplate:           c.IsTemplate,
		DeletedAt:            c.DeletedAt,
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            c.UpdatedAt,
	})
}
