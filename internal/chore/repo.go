package chore

import (
	"context"
	"time"

	"github.com/dukerupert/chorly/internal/localtime"
	"github.com/dukerupert/chorly/internal/model"
)

// Single-row lookups return nil, nil when the row does not exist.

type ChoreRepo interface {
	GetChore(ctx context.Context, tenantID, id string) (*model.ChoreDefinition, error)
	UpdateRotationPointer(ctx context.Context, tenantID, choreID, memberID string) error
}

// MemberFilter narrows a member lookup. Empty IDs means every member.
type MemberFilter struct {
	IDs         []string
	ActiveOnly  bool
	ExcludeAway bool
}

type MemberRepo interface {
	FindMembers(ctx context.Context, tenantID string, f MemberFilter) ([]model.Member, error)
}

type OccurrenceRepo interface {
	FindOccurrence(ctx context.Context, tenantID, choreID string, dueAt time.Time) (*model.Occurrence, error)
	FindLastApproval(ctx context.Context, tenantID, choreID string) (*time.Time, error)
	// CreateOccurrence persists o with its assignees and fills in o.ID.
	// It returns model.ErrDuplicateOccurrence when (tenant, chore, due_at)
	// is taken.
	CreateOccurrence(ctx context.Context, o *model.Occurrence) error
}

// ChoreStore is the full chore persistence surface used by Service.
type ChoreStore interface {
	ChoreRepo
	CreateChore(ctx context.Context, c *model.ChoreDefinition) error
	UpdateChore(ctx context.Context, c *model.ChoreDefinition) error
	// DeleteChore soft-deletes the chore and removes its unapproved
	// occurrences due at or after `at`, atomically.
	DeleteChore(ctx context.Context, tenantID, id string, at time.Time) error
	ListChores(ctx context.Context, tenantID string, templates bool) ([]model.ChoreDefinition, error)
}

type MemberStore interface {
	MemberRepo
	GetMember(ctx context.Context, tenantID, id string) (*model.Member, error)
}

// OccurrenceStore is the full occurrence persistence surface used by Service.
type OccurrenceStore interface {
	OccurrenceRepo
	GetOccurrence(ctx context.Context, tenantID, id string) (*model.Occurrence, error)
	ListOccurrences(ctx context.Context, tenantID string, w localtime.Window, memberID string) ([]model.Occurrence, error)
	UpsertCompletion(ctx context.Context, occurrenceID, memberID string, at time.Time) error
	// SetCompletionProof attaches p to memberID's completion. Empty fields
	// keep what was stored before.
	SetCompletionProof(ctx context.Context, occurrenceID, memberID string, p Proof) error
	// UndoCompletion stamps undone_at on an active completion and reports
	// whether one existed.
	UndoCompletion(ctx context.Context, occurrenceID, memberID string, at time.Time) (bool, error)
	// SetStatus never overwrites an approved occurrence.
	SetStatus(ctx context.Context, occurrenceID string, status model.OccurrenceStatus) error
	// Approve marks the occurrence approved and writes one ledger entry per
	// credited member in a single transaction. It returns
	// model.ErrAlreadyApproved if the occurrence was approved concurrently.
	Approve(ctx context.Context, a Approval) error
	// RescheduleOccurrence moves an unapproved occurrence to c.DueAt and/or
	// replaces its assignees. The vacated due date is recorded as cleared.
	// It returns model.ErrDuplicateOccurrence when the chore already has an
	// occurrence at the new due date.
	RescheduleOccurrence(ctx context.Context, c OccurrenceChange) error
	// DeleteOccurrence removes an unapproved occurrence and records its due
	// date as cleared so generation does not bring it back.
	DeleteOccurrence(ctx context.Context, tenantID, id string, at time.Time) error
}

// OccurrenceChange is an admin edit of one occurrence. Nil DueAt and empty
// AssigneeIDs leave those fields alone.
type OccurrenceChange struct {
	TenantID     string
	OccurrenceID string
	DueAt        *time.Time
	AssigneeIDs  []string
	At           time.Time
}

// Proof is what a member attaches when marking an occurrence done.
type Proof struct {
	Note      string
	PhotoKeys []string
}

func (p Proof) Empty() bool {
	return p.Note == "" && len(p.PhotoKeys) == 0
}

// Approval is the outcome of an approve action, ready to persist.
type Approval struct {
	TenantID     string
	OccurrenceID string
	ApproverID   string
	At           time.Time
	RewardCents  int64
	Credited     []string
}

// Notifier tells a member about a newly assigned occurrence. Failures are
// logged by the caller and never abort materialization.
type Notifier interface {
	NotifyAssigned(ctx context.Context, member model.Member, chore model.ChoreDefinition, occ model.Occurrence) error
}

// Events receives occurrence changes for realtime fan-out.
type Events interface {
	OccurrenceCreated(tenantID string, occ model.Occurrence)
	OccurrenceUpdated(tenantID string, occ model.Occurrence)
	OccurrenceDeleted(tenantID string, occ model.Occurrence)
}

// Locker serializes materialization passes of one chore.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Recorder receives materialization measurements.
type Recorder interface {
	OccurrencesCreated(ctx context.Context, tenantID string, n int)
	MaterializeFailed(ctx context.Context, tenantID string)
	MaterializeDuration(ctx context.Context, d time.Duration)
}
