package chore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/chorly/internal/localtime"
	"github.com/dukerupert/chorly/internal/model"
)

// Service implements the chore and occurrence actions callers perform:
// definition CRUD with inline materialization, and the
// assigned -> done -> approved lifecycle of occurrences.
type Service struct {
	chores       ChoreStore
	members      MemberStore
	occurrences  OccurrenceStore
	materializer *Materializer
	zone         localtime.Zone
	logger       *slog.Logger
	events       Events
	inlineDays   int
	now          func() time.Time
}

type ServiceOption func(*Service)

func WithServiceEvents(e Events) ServiceOption { return func(s *Service) { s.events = e } }

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithInlineDays sets how many local days, starting today, are materialized
// after a chore is created or changed. Defaults to 7.
func WithInlineDays(days int) ServiceOption {
	return func(s *Service) {
		if days > 0 {
			s.inlineDays = days
		}
	}
}

func NewService(chores ChoreStore, members MemberStore, occurrences OccurrenceStore, materializer *Materializer, zone localtime.Zone, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		chores:       chores,
		members:      members,
		occurrences:  occurrences,
		materializer: materializer,
		zone:         zone,
		logger:       logger.With("component", "chore_service"),
		inlineDays:   7,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ChoreInput carries the user-editable fields of a definition.
type ChoreInput struct {
	Title           string
	Schedule        model.Schedule
	Assignment      model.AssignmentConfig
	HasReward       bool
	RewardCents     int64
	AllowNotes      bool
	AllowPhotoProof bool
	IsTemplate      bool
}

// ChorePatch replaces only the non-nil fields. Schedule and Assignment are
// replaced wholesale.
type ChorePatch struct {
	Title           *string
	Schedule        model.Schedule
	Assignment      *model.AssignmentConfig
	HasReward       *bool
	RewardCents     *int64
	AllowNotes      *bool
	AllowPhotoProof *bool
}

func (s *Service) ListChores(ctx context.Context, tenantID string, templates bool) ([]model.ChoreDefinition, error) {
	return s.chores.ListChores(ctx, tenantID, templates)
}

func (s *Service) GetChore(ctx context.Context, tenantID, id string) (*model.ChoreDefinition, error) {
	c, err := s.chores.GetChore(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if c == nil || c.DeletedAt != nil {
		return nil, model.ErrNotFound
	}
	return c, nil
}

// CreateChore validates and stores a definition, then materializes the
// current week for live chores.
func (s *Service) CreateChore(ctx context.Context, tenantID string, in ChoreInput) (*model.ChoreDefinition, error) {
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", model.ErrInvalidDefinition)
	}
	c := &model.ChoreDefinition{
		TenantID:        tenantID,
		Title:           in.Title,
		Schedule:        in.Schedule,
		Assignment:      in.Assignment,
		HasReward:       in.HasReward,
		RewardCents:     in.RewardCents,
		AllowNotes:      in.AllowNotes,
		AllowPhotoProof: in.AllowPhotoProof,
		IsTemplate:      in.IsTemplate,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.chores.CreateChore(ctx, c); err != nil {
		return nil, fmt.Errorf("create chore: %w", err)
	}
	if !c.IsTemplate {
		s.materializeInline(ctx, c)
	}
	return s.reload(ctx, c)
}

// UpdateChore applies patch and materializes the current week with the new
// configuration. Existing occurrences are left as they are.
func (s *Service) UpdateChore(ctx context.Context, tenantID, id string, patch ChorePatch) (*model.ChoreDefinition, error) {
	c, err := s.GetChore(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if patch.Title != nil {
		c.Title = *patch.Title
	}
	if patch.Schedule != nil {
		c.Schedule = patch.Schedule
	}
	if patch.Assignment != nil {
		c.Assignment = *patch.Assignment
	}
	if patch.HasReward != nil {
		c.HasReward = *patch.HasReward
		if !c.HasReward {
			c.RewardCents = 0
		}
	}
	if patch.RewardCents != nil {
		c.RewardCents = *patch.RewardCents
	}
	if patch.AllowNotes != nil {
		c.AllowNotes = *patch.AllowNotes
	}
	if patch.AllowPhotoProof != nil {
		c.AllowPhotoProof = *patch.AllowPhotoProof
	}
	if c.Title == "" {
		return nil, fmt.Errorf("%w: title is required", model.ErrInvalidDefinition)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.chores.UpdateChore(ctx, c); err != nil {
		return nil, fmt.Errorf("update chore: %w", err)
	}
	if !c.IsTemplate {
		s.materializeInline(ctx, c)
	}
	return s.reload(ctx, c)
}

// CloneTemplate copies a template into a live chore and materializes it.
func (s *Service) CloneTemplate(ctx context.Context, tenantID, templateID string) (*model.ChoreDefinition, error) {
	tpl, err := s.GetChore(ctx, tenantID, templateID)
	if err != nil {
		return nil, err
	}
	if !tpl.IsTemplate {
		return nil, fmt.Errorf("chore %s is not a template: %w", templateID, model.ErrNotFound)
	}
	return s.CreateChore(ctx, tenantID, ChoreInput{
		Title:           tpl.Title,
		Schedule:        tpl.Schedule,
		Assignment:      tpl.Assignment,
		HasReward:       tpl.HasReward,
		RewardCents:     tpl.RewardCents,
		AllowNotes:      tpl.AllowNotes,
		AllowPhotoProof: tpl.AllowPhotoProof,
	})
}

// DeleteChore soft-deletes a chore and drops its future unapproved
// occurrences. Past and approved occurrences are kept.
func (s *Service) DeleteChore(ctx context.Context, tenantID, id string) error {
	if _, err := s.GetChore(ctx, tenantID, id); err != nil {
		return err
	}
	if err := s.chores.DeleteChore(ctx, tenantID, id, s.now().UTC()); err != nil {
		return fmt.Errorf("delete chore: %w", err)
	}
	return nil
}

// Materialize runs a pass for one chore over the given window and notifies
// the assignees of what it created.
func (s *Service) Materialize(ctx context.Context, tenantID, choreID string, w localtime.Window) (Result, error) {
	c, err := s.GetChore(ctx, tenantID, choreID)
	if err != nil {
		return Result{}, err
	}
	if c.IsTemplate {
		return Result{}, ErrTemplate
	}
	res, err := s.materializer.Materialize(ctx, tenantID, choreID, w)
	s.materializer.NotifyCreated(ctx, res)
	return res, err
}

// Zone is the zone local windows are computed in.
func (s *Service) Zone() localtime.Zone { return s.zone }

// Now is the service clock.
func (s *Service) Now() time.Time { return s.now() }

func (s *Service) materializeInline(ctx context.Context, c *model.ChoreDefinition) {
	w := s.zone.Days(s.now(), s.inlineDays)
	res, err := s.materializer.Materialize(ctx, c.TenantID, c.ID, w)
	if err != nil {
		// The batch job picks the chore up on its next pass.
		s.logger.Warn("inline materialization failed", "tenant_id", c.TenantID, "chore_id", c.ID, "error", err)
		return
	}
	sent := s.materializer.NotifyCreated(ctx, res)
	s.logger.Debug("inline materialization", "tenant_id", c.TenantID, "chore_id", c.ID, "created", len(res.Created), "notified", sent)
}

func (s *Service) reload(ctx context.Context, c *model.ChoreDefinition) (*model.ChoreDefinition, error) {
	fresh, err := s.chores.GetChore(ctx, c.TenantID, c.ID)
	if err != nil {
		return nil, fmt.Errorf("reload chore: %w", err)
	}
	if fresh == nil {
		return c, nil
	}
	return fresh, nil
}

func (s *Service) ListOccurrences(ctx context.Context, tenantID string, w localtime.Window, memberID string) ([]model.Occurrence, error) {
	return s.occurrences.ListOccurrences(ctx, tenantID, w, memberID)
}

func (s *Service) GetOccurrence(ctx context.Context, tenantID, id string) (*model.Occurrence, error) {
	o, err := s.occurrences.GetOccurrence(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, model.ErrNotFound
	}
	return o, nil
}

// MarkDone records memberID's completion with an optional note and photo
// keys, then recomputes the status. The chore decides which proof it takes.
func (s *Service) MarkDone(ctx context.Context, tenantID, occurrenceID, memberID string, proof Proof) (*model.Occurrence, error) {
	o, c, err := s.mutableOccurrence(ctx, tenantID, occurrenceID, memberID)
	if err != nil {
		return nil, err
	}
	if err := checkProof(c, proof); err != nil {
		return nil, err
	}
	if err := s.occurrences.UpsertCompletion(ctx, o.ID, memberID, s.now().UTC()); err != nil {
		return nil, fmt.Errorf("record completion: %w", err)
	}
	if !proof.Empty() {
		if err := s.occurrences.SetCompletionProof(ctx, o.ID, memberID, proof); err != nil {
			return nil, fmt.Errorf("record proof: %w", err)
		}
	}
	return s.recompute(ctx, tenantID, o.ID, c)
}

func checkProof(c *model.ChoreDefinition, p Proof) error {
	if p.Note != "" && !c.AllowNotes {
		return fmt.Errorf("%w: notes are disabled for %q", ErrProofNotAllowed, c.Title)
	}
	if len(p.PhotoKeys) > 0 && !c.AllowPhotoProof {
		return fmt.Errorf("%w: photo proof is disabled for %q", ErrProofNotAllowed, c.Title)
	}
	for _, k := range p.PhotoKeys {
		if k == "" {
			return fmt.Errorf("%w: empty photo key", ErrInvalidChange)
		}
	}
	return nil
}

// Undo withdraws memberID's active completion, if any, and recomputes the
// status.
func (s *Service) Undo(ctx context.Context, tenantID, occurrenceID, memberID string) (*model.Occurrence, error) {
	o, c, err := s.mutableOccurrence(ctx, tenantID, occurrenceID, memberID)
	if err != nil {
		return nil, err
	}
	if _, err := s.occurrences.UndoCompletion(ctx, o.ID, memberID, s.now().UTC()); err != nil {
		return nil, fmt.Errorf("undo completion: %w", err)
	}
	return s.recompute(ctx, tenantID, o.ID, c)
}

func (s *Service) mutableOccurrence(ctx context.Context, tenantID, occurrenceID, memberID string) (*model.Occurrence, *model.ChoreDefinition, error) {
	o, err := s.GetOccurrence(ctx, tenantID, occurrenceID)
	if err != nil {
		return nil, nil, err
	}
	if !o.IsAssigned(memberID) {
		return nil, nil, ErrNotAssigned
	}
	if err := CheckMutable(*o); err != nil {
		return nil, nil, err
	}
	c, err := s.occurrenceChore(ctx, o)
	if err != nil {
		return nil, nil, err
	}
	return o, c, nil
}

// occurrenceChore loads the owning definition even when it was deleted
// after the occurrence was generated.
func (s *Service) occurrenceChore(ctx context.Context, o *model.Occurrence) (*model.ChoreDefinition, error) {
	c, err := s.chores.GetChore(ctx, o.TenantID, o.ChoreID)
	if err != nil {
		return nil, fmt.Errorf("get chore: %w", err)
	}
	if c == nil {
		return nil, fmt.Errorf("chore %s: %w", o.ChoreID, model.ErrNotFound)
	}
	return c, nil
}

func (s *Service) recompute(ctx context.Context, tenantID, occurrenceID string, c *model.ChoreDefinition) (*model.Occurrence, error) {
	o, err := s.GetOccurrence(ctx, tenantID, occurrenceID)
	if err != nil {
		return nil, err
	}
	status := ResolveStatus(c.Assignment, o.AssigneeIDs, ActiveCompleters(o.Completions))
	if status != o.Status {
		if err := s.occurrences.SetStatus(ctx, o.ID, status); err != nil {
			return nil, fmt.Errorf("set status: %w", err)
		}
		o.Status = status
	}
	if s.events != nil {
		s.events.OccurrenceUpdated(tenantID, *o)
	}
	return o, nil
}

// RescheduleOccurrence moves an unapproved occurrence to a new due date,
// replaces its assignees, or both. Assignees must be active members of the
// tenant. The vacated due date is not generated again.
func (s *Service) RescheduleOccurrence(ctx context.Context, tenantID, occurrenceID string, dueAt *time.Time, assigneeIDs []string) (*model.Occurrence, error) {
	if dueAt == nil && len(assigneeIDs) == 0 {
		return nil, fmt.Errorf("%w: nothing to change", ErrInvalidChange)
	}
	o, err := s.GetOccurrence(ctx, tenantID, occurrenceID)
	if err != nil {
		return nil, err
	}
	if err := CheckMutable(*o); err != nil {
		return nil, err
	}
	c, err := s.occurrenceChore(ctx, o)
	if err != nil {
		return nil, err
	}
	if err := s.checkAssignees(ctx, tenantID, assigneeIDs); err != nil {
		return nil, err
	}

	change := OccurrenceChange{
		TenantID:     tenantID,
		OccurrenceID: o.ID,
		AssigneeIDs:  assigneeIDs,
		At:           s.now().UTC(),
	}
	if dueAt != nil {
		due := dueAt.UTC()
		change.DueAt = &due
	}
	if err := s.occurrences.RescheduleOccurrence(ctx, change); err != nil {
		switch {
		case errors.Is(err, model.ErrDuplicateOccurrence):
			return nil, fmt.Errorf("chore %s already has an occurrence at %s: %w", c.ID, change.DueAt.Format(time.RFC3339), err)
		case errors.Is(err, model.ErrAlreadyApproved), errors.Is(err, model.ErrNotFound):
			return nil, err
		}
		return nil, fmt.Errorf("reschedule occurrence: %w", err)
	}
	s.logger.Info("occurrence rescheduled",
		"tenant_id", tenantID,
		"occurrence_id", o.ID,
		"due_at", change.DueAt,
		"assignees", assigneeIDs,
	)
	return s.recompute(ctx, tenantID, o.ID, c)
}

func (s *Service) checkAssignees(ctx context.Context, tenantID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			return fmt.Errorf("%w: assignees must be distinct member ids", ErrInvalidChange)
		}
		seen[id] = true
	}
	found, err := s.members.FindMembers(ctx, tenantID, MemberFilter{IDs: ids, ActiveOnly: true})
	if err != nil {
		return fmt.Errorf("find members: %w", err)
	}
	if len(found) != len(ids) {
		return fmt.Errorf("%w: assignees must be active members", ErrInvalidChange)
	}
	return nil
}

// DeleteOccurrence removes an unapproved occurrence. Its due date is not
// generated again.
func (s *Service) DeleteOccurrence(ctx context.Context, tenantID, occurrenceID string) error {
	o, err := s.GetOccurrence(ctx, tenantID, occurrenceID)
	if err != nil {
		return err
	}
	if err := CheckMutable(*o); err != nil {
		return err
	}
	if err := s.occurrences.DeleteOccurrence(ctx, tenantID, o.ID, s.now().UTC()); err != nil {
		if errors.Is(err, model.ErrAlreadyApproved) || errors.Is(err, model.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete occurrence: %w", err)
	}
	s.logger.Info("occurrence deleted", "tenant_id", tenantID, "occurrence_id", o.ID, "chore_id", o.ChoreID, "due_at", o.DueAt)
	if s.events != nil {
		s.events.OccurrenceDeleted(tenantID, *o)
	}
	return nil
}

// Approve moves a done occurrence to approved and credits the reward.
// rewardOverride replaces the amount copied from the chore when set.
func (s *Service) Approve(ctx context.Context, tenantID, occurrenceID, approverID string, rewardOverride *int64) (*model.Occurrence, error) {
	approver, err := s.members.GetMember(ctx, tenantID, approverID)
	if err != nil {
		return nil, fmt.Errorf("get approver: %w", err)
	}
	if approver == nil {
		return nil, fmt.Errorf("approver %s: %w", approverID, model.ErrNotFound)
	}
	if !approver.IsAdmin {
		return nil, ErrNotAdmin
	}

	o, err := s.GetOccurrence(ctx, tenantID, occurrenceID)
	if err != nil {
		return nil, err
	}
	if err := CheckApprovable(*o); err != nil {
		return nil, err
	}
	c, err := s.occurrenceChore(ctx, o)
	if err != nil {
		return nil, err
	}

	var reward int64
	if c.HasReward {
		reward = o.RewardCents
		if reward == 0 {
			reward = c.RewardCents
		}
		if rewardOverride != nil {
			reward = *rewardOverride
		}
		if reward <= 0 {
			return nil, ErrRewardRequired
		}
	}

	a := Approval{
		TenantID:     tenantID,
		OccurrenceID: o.ID,
		ApproverID:   approverID,
		At:           s.now().UTC(),
		RewardCents:  reward,
	}
	if reward > 0 {
		a.Credited = Credited(c.Assignment, o.AssigneeIDs, ActiveCompleters(o.Completions))
	}
	if err := s.occurrences.Approve(ctx, a); err != nil {
		if errors.Is(err, model.ErrAlreadyApproved) {
			return nil, ErrAlreadyApproved
		}
		return nil, fmt.Errorf("approve occurrence: %w", err)
	}

	s.logger.Info("occurrence approved",
		"tenant_id", tenantID,
		"occurrence_id", o.ID,
		"approver_id", approverID,
		"reward_cents", reward,
		"credited", a.Credited,
	)

	o, err = s.GetOccurrence(ctx, tenantID, o.ID)
	if err != nil {
		return nil, err
	}
	if s.events != nil {
		s.events.OccurrenceUpdated(tenantID, *o)
	}
	return o, nil
}
