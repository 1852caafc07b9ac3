package chore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/chorly/internal/model"
	"github.com/dukerupert/chorly/internal/schedule"
)

func newTestService(t *testing.T) (*Service, *memStore, *recordingEvents) {
	t.Helper()
	s := newMemStore()
	seedMembers(s, "A", "B")
	s.addMember(model.Member{ID: "P", TenantID: tenant, DisplayName: "Parent", Role: model.RoleParent, IsAdmin: true, IsActive: true})

	clock := func() time.Time { return fixedNow }
	events := &recordingEvents{}
	m := NewMaterializer(s, s, s, schedule.NewExpander(zone), discardLogger(), WithClock(clock))
	svc := NewService(s, s, s, m, zone, discardLogger(), WithServiceClock(clock), WithServiceEvents(events))
	return svc, s, events
}

func dailyInput(shared bool, ids ...string) ChoreInput {
	return ChoreInput{
		Title:      "Set the table",
		Schedule:   model.RepeatingCalendar{RRule: "FREQ=DAILY", DueTime: "19:00", GracePeriodMinutes: 60},
		Assignment: model.AssignmentConfig{Mode: model.ModeRoundRobin, Shared: shared, AssigneeIDs: ids},
	}
}

func TestCreateChoreMaterializesWeek(t *testing.T) {
	svc, s, _ := newTestService(t)

	c, err := svc.CreateChore(context.Background(), tenant, dailyInput(false, "A", "B"))
	if err != nil {
		t.Fatalf("CreateChore error: %v", err)
	}
	// Feb 4 through Feb 10, all after 08:00 local on Feb 4.
	occs := s.occurrencesOf(c.ID)
	if len(occs) != 7 {
		t.Fatalf("occurrences = %d, want 7", len(occs))
	}
	if c.LastAssignedMemberID != "A" {
		t.Errorf("returned pointer = %q, want A (seven steps from empty)", c.LastAssignedMemberID)
	}
}

func TestCreateTemplateDoesNotMaterialize(t *testing.T) {
	svc, s, _ := newTestService(t)
	in := dailyInput(false, "A")
	in.IsTemplate = true

	c, err := svc.CreateChore(context.Background(), tenant, in)
	if err != nil {
		t.Fatalf("CreateChore error: %v", err)
	}
	if n := len(s.occurrencesOf(c.ID)); n != 0 {
		t.Errorf("template produced %d occurrences", n)
	}

	clone, err := svc.CloneTemplate(context.Background(), tenant, c.ID)
	if err != nil {
		t.Fatalf("CloneTemplate error: %v", err)
	}
	if clone.IsTemplate || clone.ID == c.ID {
		t.Errorf("clone = %+v", clone)
	}
	if n := len(s.occurrencesOf(clone.ID)); n != 7 {
		t.Errorf("clone occurrences = %d, want 7", n)
	}

	if _, err := svc.Materialize(context.Background(), tenant, c.ID, zone.Week(fixedNow)); !errors.Is(err, ErrTemplate) {
		t.Errorf("Materialize(template) error = %v, want ErrTemplate", err)
	}
	if _, err := svc.CloneTemplate(context.Background(), tenant, clone.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("cloning a live chore error = %v, want ErrNotFound", err)
	}
}

func TestCreateChoreRejectsInvalid(t *testing.T) {
	svc, _, _ := newTestService(t)
	tests := []struct {
		name string
		in   ChoreInput
	}{
		{"no title", ChoreInput{Schedule: model.OneTime{DueAt: fixedNow}, Assignment: model.AssignmentConfig{Mode: model.ModeFixed, AssigneeIDs: []string{"A"}}}},
		{"no assignees", ChoreInput{Title: "x", Schedule: model.OneTime{DueAt: fixedNow}, Assignment: model.AssignmentConfig{Mode: model.ModeFixed}}},
		{"bad due time", ChoreInput{Title: "x", Schedule: model.RepeatingAfterCompletion{IntervalDays: 1, DueTime: "7:5"}, Assignment: model.AssignmentConfig{Mode: model.ModeFixed, AssigneeIDs: []string{"A"}}}},
		{"missing schedule", ChoreInput{Title: "x", Assignment: model.AssignmentConfig{Mode: model.ModeFixed, AssigneeIDs: []string{"A"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateChore(context.Background(), tenant, tt.in); !errors.Is(err, model.ErrInvalidDefinition) {
				t.Errorf("error = %v, want ErrInvalidDefinition", err)
			}
		})
	}
}

func TestUpdateChoreKeepsExistingOccurrences(t *testing.T) {
	svc, s, _ := newTestService(t)
	ctx := context.Background()
	c, err := svc.CreateChore(ctx, tenant, dailyInput(false, "A", "B"))
	if err != nil {
		t.Fatalf("CreateChore error: %v", err)
	}
	before := s.occurrencesOf(c.ID)

	title := "Clear the table"
	updated, err := svc.UpdateChore(ctx, tenant, c.ID, ChorePatch{
		Title:    &title,
		Schedule: model.RepeatingCalendar{RRule: "FREQ=DAILY", DueTime: "21:00"},
	})
	if err != nil {
		t.Fatalf("UpdateChore error: %v", err)
	}
	if updated.Title != title {
		t.Errorf("title = %q", updated.Title)
	}

	after := s.occurrencesOf(c.ID)
	if len(after) != len(before)+7 {
		t.Errorf("occurrences after update = %d, want %d", len(after), len(before)+7)
	}
	for _, o := range before {
		got, _ := s.GetOccurrence(ctx, tenant, o.ID)
		if got == nil || !got.DueAt.Equal(o.DueAt) || !equalStrings(got.AssigneeIDs, o.AssigneeIDs) {
			t.Errorf("existing occurrence %s changed", o.ID)
		}
	}
}

func TestDeleteChoreRemovesFutureUnapproved(t *testing.T) {
	svc, s, _ := newTestService(t)
	ctx := context.Background()
	c, err := svc.CreateChore(ctx, tenant, dailyInput(false, "A"))
	if err != nil {
		t.Fatalf("CreateChore error: %v", err)
	}

	past := fixedNow.Add(-48 * time.Hour)
	s.occurrences["past"] = &model.Occurrence{ID: "past", TenantID: tenant, ChoreID: c.ID, DueAt: past, Status: model.StatusAssigned, AssigneeIDs: []string{"A"}}
	occs := s.occurrencesOf(c.ID)
	approvedAt := fixedNow
	s.occurrences[occs[len(occs)-1].ID].Status = model.StatusApproved
	s.occurrences[occs[len(occs)-1].ID].ApprovedAt = &approvedAt

	if err := svc.DeleteChore(ctx, tenant, c.ID); err != nil {
		t.Fatalf("DeleteChore error: %v", err)
	}
	left := s.occurrencesOf(c.ID)
	if len(left) != 2 {
		t.Errorf("remaining occurrences = %d, want past + approved", len(left))
	}
	if _, err := svc.GetChore(ctx, tenant, c.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("GetChore after delete error = %v, want ErrNotFound", err)
	}
	if err := svc.DeleteChore(ctx, tenant, c.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}

func firstOccurrence(t *testing.T, s *memStore, choreID string) model.Occurrence {
	t.Helper()
	occs := s.occurrencesOf(choreID)
	if len(occs) == 0 {
		t.Fatal("no occurrences")
	}
	return occs[0]
}

func TestMarkDoneAndUndo(t *testing.T) {
	svc, s, events := newTestService(t)
	ctx := context.Background()
	c, err := svc.CreateChore(ctx, tenant, dailyInput(false, "A", "B"))
	if err != nil {
		t.Fatalf("CreateChore error: %v", err)
	}
	occ := firstOccurrence(t, s, c.ID) // assigned to A

	if _, err := svc.MarkDone(ctx, tenant, occ.ID, "B", Proof{}); !errors.Is(err, ErrNotAssigned) {
		t.Errorf("MarkDone by B error = %v, want ErrNotAssigned", err)
	}

	got, err := svc.MarkDone(ctx, tenant, occ.ID, "A", Proof{})
	if err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}
	if got.Status != model.StatusDone {
		t.Errorf("status after done = %q", got.Status)
	}

	got, err = svc.Undo(ctx, tenant, occ.ID, "A")
	if err != nil {
		t.Fatalf("Undo error: %v", err)
	}
	if got.Status != model.StatusAssigned {
		t.Errorf("status after undo = %q", got.Status)
	}

	// Undo without an active completion is harmless.
	if _, err := svc.Undo(ctx, tenant, occ.ID, "A"); err != nil {
		t.Errorf("second Undo error: %v", err)
	}
	if len(events.updated) != 3 {
		t.Errorf("update events = %d, want 3", len(events.updated))
	}
	if _, err := svc.MarkDone(ctx, tenant, "nope", "A", Proof{}); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("MarkDone(missing) error = %v, want ErrNotFound", err)
	}
}

func TestApprove(t *testing.T) {
	svc, s, _ := newTestService(t)
	ctx := context.Background()
	in := dailyInput(false, "A", "B")
	in.HasReward = true
	in.RewardCents = 250
	c, err := svc.CreateChore(ctx, tenant, in)
	if err != nil {
		t.Fatalf("CreateChore error: %v", err)
	}
	occ := firstOccurrence(t, s, c.ID)

	if _, err := svc.Approve(ctx, tenant, occ.ID, "P", nil); !errors.Is(err, ErrNotDone) {
		t.Errorf("approve assigned error = %v, want ErrNotDone", err)
	}
	if _, err := svc.MarkDone(ctx, tenant, occ.ID, "A", Proof{}); err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}
	if _, err := svc.Approve(ctx, tenant, occ.ID, "A", nil); !errors.Is(err, ErrNotAdmin) {
		t.Errorf("approve by child error = %v, want ErrNotAdmin", err)
	}

	got, err := svc.Approve(ctx, tenant, occ.ID, "P", nil)
	if err != nil {
		t.Fatalf("Approve error: %v", err)
	}
	if got.Status != model.StatusApproved || got.ApprovedAt == nil || got.ApprovedByMember != "P" {
		t.Errorf("approved occurrence = %+v", got)
	}
	if len(s.ledger) != 1 || s.ledger[0].MemberID != "A" || s.ledger[0].AmountCents != 250 {
		t.Errorf("ledger = %+v", s.ledger)
	}

	if _, err := svc.Approve(ctx, tenant, occ.ID, "P", nil); !errors.Is(err, ErrAlreadyApproved) {
		t.Errorf("re-approve error = %v, want ErrAlreadyApproved", err)
	}
	if _, err := svc.Undo(ctx, tenant, occ.ID, "A"); !errors.Is(err, ErrAlreadyApproved) {
		t.Errorf("undo approved error = %v, want ErrAlreadyApproved", err)
	}
	if _, err := svc.MarkDone(ctx, tenant, occ.ID, "A", Proof{}); !errors.Is(err, ErrAlreadyApproved) {
		t.Errorf("mark approved done error = %v, want ErrAlreadyApproved", err)
	}
}

func TestApproveSharedCreditsEveryCompleterWithOverride(t *testing.T) {
	svc, s, _ := newTestService(t)
	ctx := context.Background()
	in := dailyInput(true, "A", "B")
	in.HasReward = true
	in.RewardCents = 100
	c, err := svc.CreateChore(ctx, tenant, in)
	if err != nil {
		t.Fatalf("CreateChore error: %v", err)
	}

	// Shared occurrences carry a single rotated assignee; add the sibling
	// to exercise multi-member credit.
	occ := firstOccurrence(t, s, c.ID)
	s.occurrences[occ.ID].AssigneeIDs = []string{"A", "B"}

	if _, err := svc.MarkDone(ctx, tenant, occ.ID, "B", Proof{}); err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}
	if _, err := svc.MarkDone(ctx, tenant, occ.ID, "A", Proof{}); err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}

	override := int64(300)
	got, err := svc.Approve(ctx, tenant, occ.ID, "P", &override)
	if err != nil {
		t.Fatalf("Approve error: %v", err)
	}
	if got.RewardCents != 300 || len(s.ledger) != 2 {
		t.Errorf("reward %d, ledger %+v", got.RewardCents, s.ledger)
	}
}

func TestApproveRewardRequired(t *testing.T) {
	svc, s, _ := newTestService(t)
	ctx := context.Background()
	in := dailyInput(false, "A")
	in.HasReward = true
	c, err := svc.CreateChore(ctx, tenant, in)
	if err != nil {
		t.Fatalf("CreateChore error: %v", err)
	}
	occ := firstOccurrence(t, s, c.ID)
	if _, err := svc.MarkDone(ctx, tenant, occ.ID, "A", Proof{}); err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}
	if _, err := svc.Approve(ctx, tenant, occ.ID, "P", nil); !errors.Is(err, ErrRewardRequired) {
		t.Errorf("error = %v, want ErrRewardRequired", err)
	}
}

func TestMarkDoneProof(t *testing.T) {
	svc, s, _ := newTestService(t)
	ctx := context.Background()
	in := dailyInput(false, "A")
	in.AllowNotes = true
	c, err := svc.CreateChore(ctx, tenant, in)
	if err != nil {
		t.Fatalf("CreateChore error: %v", err)
	}
	occ := firstOccurrence(t, s, c.ID)

	_, err = svc.MarkDone(ctx, tenant, occ.ID, "A", Proof{PhotoKeys: []string{"uploads/a.jpg"}})
	if !errors.Is(err, ErrProofNotAllowed) {
		t.Fatalf("photo on a notes-only chore error = %v, want ErrProofNotAllowed", err)
	}
	if got := firstOccurrence(t, s, c.ID); len(got.Completions) != 0 {
		t.Errorf("rejected proof still recorded a completion: %+v", got.Completions)
	}

	got, err := svc.MarkDone(ctx, tenant, occ.ID, "A", Proof{Note: "used the blue cloth"})
	if err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}
	if len(got.Completions) != 1 || got.Completions[0].Note != "used the blue cloth" {
		t.Fatalf("completions = %+v", got.Completions)
	}

	// A later completion without a note keeps the earlier one.
	if _, err := svc.Undo(ctx, tenant, occ.ID, "A"); err != nil {
		t.Fatalf("Undo error: %v", err)
	}
	got, err = svc.MarkDone(ctx, tenant, occ.ID, "A", Proof{})
	if err != nil {
		t.Fatalf("second MarkDone error: %v", err)
	}
	if got.Completions[0].Note != "used the blue cloth" {
		t.Errorf("note = %q after a bare completion", got.Completions[0].Note)
	}

	allow := true
	noNotes := false
	if _, err := svc.UpdateChore(ctx, tenant, c.ID, ChorePatch{AllowPhotoProof: &allow, AllowNotes: &noNotes}); err != nil {
		t.Fatalf("UpdateChore error: %v", err)
	}
	if _, err := svc.MarkDone(ctx, tenant, occ.ID, "A", Proof{Note: "again"}); !errors.Is(err, ErrProofNotAllowed) {
		t.Errorf("note after notes were disabled error = %v, want ErrProofNotAllowed", err)
	}
	got, err = svc.MarkDone(ctx, tenant, occ.ID, "A", Proof{PhotoKeys: []string{"uploads/a.jpg", "uploads/b.jpg"}})
	if err != nil {
		t.Fatalf("MarkDone with photos error: %v", err)
	}
	if keys := got.Completions[0].PhotoKeys; len(keys) != 2 || keys[1] != "uploads/b.jpg" {
		t.Errorf("photo keys = %v", keys)
	}
	if _, err := svc.MarkDone(ctx, tenant, occ.ID, "A", Proof{PhotoKeys: []string{""}}); !errors.Is(err, ErrInvalidChange) {
		t.Errorf("empty photo key error = %v, want ErrInvalidChange", err)
	}
}

func TestRescheduleOccurrence(t *testing.T) {
	svc, s, events := newTestService(t)
	ctx := context.Background()
	c, err := svc.CreateChore(ctx, tenant, dailyInput(false, "A", "B"))
	if err != nil {
		t.Fatalf("CreateChore error: %v", err)
	}
	occs := s.occurrencesOf(c.ID)
	first, second := occs[0], occs[1]

	if _, err := svc.RescheduleOccurrence(ctx, tenant, first.ID, nil, nil); !errors.Is(err, ErrInvalidChange) {
		t.Errorf("empty change error = %v, want ErrInvalidChange", err)
	}
	taken := second.DueAt
	if _, err := svc.RescheduleOccurrence(ctx, tenant, first.ID, &taken, nil); !errors.Is(err, model.ErrDuplicateOccurrence) {
		t.Errorf("move onto a taken slot error = %v, want ErrDuplicateOccurrence", err)
	}
	if _, err := svc.RescheduleOccurrence(ctx, tenant, first.ID, nil, []string{"Z"}); !errors.Is(err, ErrInvalidChange) {
		t.Errorf("unknown assignee error = %v, want ErrInvalidChange", err)
	}

	later := first.DueAt.Add(time.Hour)
	got, err := svc.RescheduleOccurrence(ctx, tenant, first.ID, &later, []string{"B"})
	if err != nil {
		t.Fatalf("RescheduleOccurrence error: %v", err)
	}
	if !got.DueAt.Equal(later) {
		t.Errorf("due = %v, want %v", got.DueAt, later)
	}
	if len(got.AssigneeIDs) != 1 || got.AssigneeIDs[0] != "B" {
		t.Errorf("assignees = %v, want [B]", got.AssigneeIDs)
	}
	if n := len(events.updated); n != 1 {
		t.Errorf("update events = %d, want 1", n)
	}

	// The vacated slot stays empty on the next pass.
	res, err := svc.Materialize(ctx, tenant, c.ID, zone.Days(fixedNow, 7))
	if err != nil {
		t.Fatalf("Materialize error: %v", err)
	}
	if len(res.Created) != 0 {
		t.Errorf("created = %d after reschedule, want 0", len(res.Created))
	}
	if n := len(s.occurrencesOf(c.ID)); n != 7 {
		t.Errorf("occurrences = %d, want 7", n)
	}

	if _, err := svc.MarkDone(ctx, tenant, first.ID, "B", Proof{}); err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}
	if _, err := svc.Approve(ctx, tenant, first.ID, "P", nil); err != nil {
		t.Fatalf("Approve error: %v", err)
	}
	if _, err := svc.RescheduleOccurrence(ctx, tenant, first.ID, &later, nil); !errors.Is(err, ErrAlreadyApproved) {
		t.Errorf("reschedule approved error = %v, want ErrAlreadyApproved", err)
	}
}

func TestDeleteOccurrence(t *testing.T) {
	svc, s, events := newTestService(t)
	ctx := context.Background()
	c, err := svc.CreateChore(ctx, tenant, dailyInput(false, "A", "B"))
	if err != nil {
		t.Fatalf("CreateChore error: %v", err)
	}
	occs := s.occurrencesOf(c.ID)

	if err := svc.DeleteOccurrence(ctx, tenant, occs[0].ID); err != nil {
		t.Fatalf("DeleteOccurrence error: %v", err)
	}
	if n := len(s.occurrencesOf(c.ID)); n != 6 {
		t.Errorf("occurrences = %d, want 6", n)
	}
	if len(events.deleted) != 1 || events.deleted[0].ID != occs[0].ID {
		t.Errorf("deleted events = %+v", events.deleted)
	}
	if err := svc.DeleteOccurrence(ctx, tenant, occs[0].ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}

	res, err := svc.Materialize(ctx, tenant, c.ID, zone.Days(fixedNow, 7))
	if err != nil {
		t.Fatalf("Materialize error: %v", err)
	}
	if len(res.Created) != 0 {
		t.Errorf("deleted occurrence came back: created = %d", len(res.Created))
	}

	approved := occs[1]
	if _, err := svc.MarkDone(ctx, tenant, approved.ID, approved.AssigneeIDs[0], Proof{}); err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}
	if _, err := svc.Approve(ctx, tenant, approved.ID, "P", nil); err != nil {
		t.Fatalf("Approve error: %v", err)
	}
	if err := svc.DeleteOccurrence(ctx, tenant, approved.ID); !errors.Is(err, ErrAlreadyApproved) {
		t.Errorf("delete approved error = %v, want ErrAlreadyApproved", err)
	}
}
