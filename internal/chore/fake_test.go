package chore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dukerupert/chorly/internal/localtime"
	"github.com/dukerupert/chorly/internal/model"
)

// memStore is an in-memory ChoreStore, MemberStore and OccurrenceStore.
type memStore struct {
	mu          sync.Mutex
	seq         int
	chores      map[string]*model.ChoreDefinition
	members     map[string]model.Member
	occurrences map[string]*model.Occurrence
	ledger      []model.LedgerEntry
	cleared     map[string]bool
	pointerSets int

	// failCreateAt makes CreateOccurrence fail for one due date.
	failCreateAt time.Time
	// raceAt makes CreateOccurrence report a duplicate for one due date,
	// as if another pass inserted it between the lookup and the insert.
	raceAt time.Time
}

func newMemStore() *memStore {
	return &memStore{
		chores:      make(map[string]*model.ChoreDefinition),
		members:     make(map[string]model.Member),
		occurrences: make(map[string]*model.Occurrence),
		cleared:     make(map[string]bool),
	}
}

func slotKey(choreID string, due time.Time) string {
	return choreID + "@" + due.UTC().Format(time.RFC3339Nano)
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *memStore) addMember(m model.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.ID] = m
}

func (s *memStore) addChore(c model.ChoreDefinition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := c
	s.chores[c.ID] = &cp
}

func (s *memStore) GetChore(ctx context.Context, tenantID, id string) (*model.ChoreDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chores[id]
	if !ok || c.TenantID != tenantID {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) UpdateRotationPointer(ctx context.Context, tenantID, choreID, memberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pointerSets++
	s.chores[choreID].LastAssignedMemberID = memberID
	return nil
}

func (s *memStore) CreateChore(ctx context.Context, c *model.ChoreDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.nextID("chore")
	cp := *c
	s.chores[c.ID] = &cp
	return nil
}

func (s *memStore) UpdateChore(ctx context.Context, c *model.ChoreDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.chores[c.ID] = &cp
	return nil
}

func (s *memStore) DeleteChore(ctx context.Context, tenantID, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chores[id].DeletedAt = &at
	for oid, o := range s.occurrences {
		if o.ChoreID == id && !o.DueAt.Before(at) && o.Status != model.StatusApproved {
			delete(s.occurrences, oid)
		}
	}
	return nil
}

func (s *memStore) ListChores(ctx context.Context, tenantID string, templates bool) ([]model.ChoreDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ChoreDefinition
	for _, c := range s.chores {
		if c.TenantID == tenantID && c.IsTemplate == templates && c.DeletedAt == nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *memStore) FindMembers(ctx context.Context, tenantID string, f MemberFilter) ([]model.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Member
	for _, id := range f.IDs {
		m, ok := s.members[id]
		if !ok || m.TenantID != tenantID {
			continue
		}
		if f.ActiveOnly && !m.IsActive {
			continue
		}
		if f.ExcludeAway && m.IsAway {
			continue
		}
		out = append(out, m)
	}
	// Return in reverse so callers cannot rely on store order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *memStore) GetMember(ctx context.Context, tenantID, id string) (*model.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok || m.TenantID != tenantID {
		return nil, nil
	}
	return &m, nil
}

func (s *memStore) FindOccurrence(ctx context.Context, tenantID, choreID string, dueAt time.Time) (*model.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.occurrences {
		if o.TenantID == tenantID && o.ChoreID == choreID && o.DueAt.Equal(dueAt) {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindLastApproval(ctx context.Context, tenantID, choreID string) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *time.Time
	for _, o := range s.occurrences {
		if o.ChoreID == choreID && o.ApprovedAt != nil && (last == nil || o.ApprovedAt.After(*last)) {
			t := *o.ApprovedAt
			last = &t
		}
	}
	return last, nil
}

func (s *memStore) CreateOccurrence(ctx context.Context, o *model.Occurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.failCreateAt.IsZero() && o.DueAt.Equal(s.failCreateAt) {
		return fmt.Errorf("disk full")
	}
	if !s.raceAt.IsZero() && o.DueAt.Equal(s.raceAt) {
		return model.ErrDuplicateOccurrence
	}
	if s.cleared[slotKey(o.ChoreID, o.DueAt)] {
		return model.ErrOccurrenceCleared
	}
	for _, existing := range s.occurrences {
		if existing.TenantID == o.TenantID && existing.ChoreID == o.ChoreID && existing.DueAt.Equal(o.DueAt) {
			return model.ErrDuplicateOccurrence
		}
	}
	o.ID = s.nextID("occ")
	cp := *o
	s.occurrences[o.ID] = &cp
	return nil
}

func (s *memStore) GetOccurrence(ctx context.Context, tenantID, id string) (*model.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.occurrences[id]
	if !ok || o.TenantID != tenantID {
		return nil, nil
	}
	cp := *o
	cp.Completions = append([]model.Completion(nil), o.Completions...)
	return &cp, nil
}

func (s *memStore) ListOccurrences(ctx context.Context, tenantID string, w localtime.Window, memberID string) ([]model.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Occurrence
	for _, o := range s.occurrences {
		if o.TenantID != tenantID || !w.Contains(o.DueAt) {
			continue
		}
		if memberID != "" && !o.IsAssigned(memberID) {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

func (s *memStore) UpsertCompletion(ctx context.Context, occurrenceID, memberID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.occurrences[occurrenceID]
	for i := range o.Completions {
		if o.Completions[i].MemberID == memberID {
			o.Completions[i].DoneAt = at
			o.Completions[i].UndoneAt = nil
			return nil
		}
	}
	o.Completions = append(o.Completions, model.Completion{ID: s.nextID("cmp"), OccurrenceID: occurrenceID, MemberID: memberID, DoneAt: at})
	return nil
}

func (s *memStore) SetCompletionProof(ctx context.Context, occurrenceID, memberID string, p Proof) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.occurrences[occurrenceID]
	for i := range o.Completions {
		if o.Completions[i].MemberID != memberID {
			continue
		}
		if p.Note != "" {
			o.Completions[i].Note = p.Note
		}
		if len(p.PhotoKeys) > 0 {
			o.Completions[i].PhotoKeys = p.PhotoKeys
		}
	}
	return nil
}

func (s *memStore) UndoCompletion(ctx context.Context, occurrenceID, memberID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.occurrences[occurrenceID]
	for i := range o.Completions {
		if o.Completions[i].MemberID == memberID && o.Completions[i].Active() {
			o.Completions[i].UndoneAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) SetStatus(ctx context.Context, occurrenceID string, status model.OccurrenceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o := s.occurrences[occurrenceID]; o.Status != model.StatusApproved {
		o.Status = status
	}
	return nil
}

func (s *memStore) Approve(ctx context.Context, a Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.occurrences[a.OccurrenceID]
	if o.ApprovedAt != nil {
		return model.ErrAlreadyApproved
	}
	if o.Status != model.StatusDone {
		return ErrNotDone
	}
	at := a.At
	o.Status = model.StatusApproved
	o.ApprovedAt = &at
	o.ApprovedByMember = a.ApproverID
	o.RewardCents = a.RewardCents
	for _, id := range a.Credited {
		s.ledger = append(s.ledger, model.LedgerEntry{
			ID: s.nextID("ledger"), TenantID: a.TenantID, MemberID: id, OccurrenceID: a.OccurrenceID, AmountCents: a.RewardCents, CreatedAt: at,
		})
	}
	return nil
}

func (s *memStore) RescheduleOccurrence(ctx context.Context, c OccurrenceChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.occurrences[c.OccurrenceID]
	if !ok || o.TenantID != c.TenantID {
		return model.ErrNotFound
	}
	if o.ApprovedAt != nil {
		return model.ErrAlreadyApproved
	}
	if c.DueAt != nil && !c.DueAt.Equal(o.DueAt) {
		for _, other := range s.occurrences {
			if other.ChoreID == o.ChoreID && other.DueAt.Equal(*c.DueAt) {
				return model.ErrDuplicateOccurrence
			}
		}
		s.cleared[slotKey(o.ChoreID, o.DueAt)] = true
		o.DueAt = *c.DueAt
	}
	if len(c.AssigneeIDs) > 0 {
		o.AssigneeIDs = append([]string(nil), c.AssigneeIDs...)
	}
	return nil
}

func (s *memStore) DeleteOccurrence(ctx context.Context, tenantID, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.occurrences[id]
	if !ok || o.TenantID != tenantID {
		return model.ErrNotFound
	}
	if o.ApprovedAt != nil {
		return model.ErrAlreadyApproved
	}
	s.cleared[slotKey(o.ChoreID, o.DueAt)] = true
	delete(s.occurrences, id)
	return nil
}

// occurrencesOf returns a chore's occurrences ordered by due date.
func (s *memStore) occurrencesOf(choreID string) []model.Occurrence {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Occurrence
	for _, o := range s.occurrences {
		if o.ChoreID == choreID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (n *recordingNotifier) NotifyAssigned(ctx context.Context, member model.Member, c model.ChoreDefinition, occ model.Occurrence) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return fmt.Errorf("smtp down")
	}
	n.calls = append(n.calls, member.ID+"@"+occ.DueAt.Format(time.RFC3339))
	return nil
}

type recordingEvents struct {
	created []model.Occurrence
	updated []model.Occurrence
	deleted []model.Occurrence
}

func (e *recordingEvents) OccurrenceCreated(tenantID string, occ model.Occurrence) {
	e.created = append(e.created, occ)
}

func (e *recordingEvents) OccurrenceUpdated(tenantID string, occ model.Occurrence) {
	e.updated = append(e.updated, occ)
}

func (e *recordingEvents) OccurrenceDeleted(tenantID string, occ model.Occurrence) {
	e.deleted = append(e.deleted, occ)
}

type stubLocker struct {
	err      error
	acquired []string
	released int
}

func (l *stubLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired = append(l.acquired, key)
	return func() { l.released++ }, nil
}

type countingRecorder struct {
	created  int
	failures int
	passes   int
}

func (r *countingRecorder) OccurrencesCreated(ctx context.Context, tenantID string, n int) {
	r.created += n
}

func (r *countingRecorder) MaterializeFailed(ctx context.Context, tenantID string) { r.failures++ }

func (r *countingRecorder) MaterializeDuration(ctx context.Context, d time.Duration) { r.passes++ }
