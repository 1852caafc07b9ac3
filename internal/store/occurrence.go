package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/chorly/internal/chore"
	"github.com/dukerupert/chorly/internal/localtime"
	"github.com/dukerupert/chorly/internal/model"
)

type OccurrenceStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewOccurrenceStore(db *sql.DB) *OccurrenceStore {
	return &OccurrenceStore{db: db, now: time.Now}
}

const occurrenceCols = `o.id, o.tenant_id, o.chore_id, o.due_at, o.status, o.reward_cents,
	o.approved_at, o.approved_by_member, o.created_at, o.updated_at`

func scanOccurrence(sc scanner) (*model.Occurrence, error) {
	var (
		o                     model.Occurrence
		due, created, updated string
		approvedAt, approver  sql.NullString
	)
	err := sc.Scan(&o.ID, &o.TenantID, &o.ChoreID, &due, &o.Status, &o.RewardCents,
		&approvedAt, &approver, &created, &updated)
	if err != nil {
		return nil, err
	}
	if o.DueAt, err = parseTime(due); err != nil {
		return nil, err
	}
	if o.ApprovedAt, err = parseNullTime(approvedAt); err != nil {
		return nil, err
	}
	o.ApprovedByMember = approver.String
	if o.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if o.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateOccurrence inserts o and its ordered assignees in one transaction.
// The (tenant_id, chore_id, due_at) constraint makes a concurrent duplicate
// insert a no-op reported as model.ErrDuplicateOccurrence. A due date an
// admin cleared reports model.ErrOccurrenceCleared.
func (s *OccurrenceStore) CreateOccurrence(ctx context.Context, o *model.Occurrence) error {
	if len(o.AssigneeIDs) == 0 {
		return fmt.Errorf("create occurrence: no assignees")
	}
	now := s.now().UTC()
	id := newID()
	status := o.Status
	if status == "" {
		status = model.StatusAssigned
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	cleared, err := isCleared(ctx, tx, o.TenantID, o.ChoreID, o.DueAt)
	if err != nil {
		return err
	}
	if cleared {
		return model.ErrOccurrenceCleared
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO occurrences (id, tenant_id, chore_id, due_at, status, reward_cents, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, chore_id, due_at) DO NOTHING`,
		id, o.TenantID, o.ChoreID, formatTime(o.DueAt), status, o.RewardCents, formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert occurrence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return model.ErrDuplicateOccurrence
	}

	if err := insertAssignments(ctx, tx, id, o.AssigneeIDs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit occurrence: %w", err)
	}

	o.ID = id
	o.Status = status
	o.DueAt = o.DueAt.UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	return nil
}

func insertAssignments(ctx context.Context, tx *sql.Tx, occurrenceID string, memberIDs []string) error {
	for i, memberID := range memberIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO occurrence_assignments (occurrence_id, member_id, position) VALUES (?, ?, ?)`,
			occurrenceID, memberID, i,
		); err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}
	}
	return nil
}

func isCleared(ctx context.Context, tx *sql.Tx, tenantID, choreID string, dueAt time.Time) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM occurrence_skips WHERE tenant_id = ? AND chore_id = ? AND due_at = ?`,
		tenantID, choreID, formatTime(dueAt),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check cleared slot: %w", err)
	}
	return n > 0, nil
}

func clearSlot(ctx context.Context, tx *sql.Tx, tenantID, choreID, dueAt string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO occurrence_skips (tenant_id, chore_id, due_at, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (tenant_id, chore_id, due_at) DO NOTHING`,
		tenantID, choreID, dueAt, formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("clear slot: %w", err)
	}
	return nil
}

func (s *OccurrenceStore) FindOccurrence(ctx context.Context, tenantID, choreID string, dueAt time.Time) (*model.Occurrence, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+occurrenceCols+` FROM occurrences o WHERE o.tenant_id = ? AND o.chore_id = ? AND o.due_at = ?`,
		tenantID, choreID, formatTime(dueAt),
	)
	return s.one(ctx, row)
}

func (s *OccurrenceStore) GetOccurrence(ctx context.Context, tenantID, id string) (*model.Occurrence, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+occurrenceCols+` FROM occurrences o WHERE o.tenant_id = ? AND o.id = ?`,
		tenantID, id,
	)
	return s.one(ctx, row)
}

func (s *OccurrenceStore) one(ctx context.Context, row *sql.Row) (*model.Occurrence, error) {
	o, err := scanOccurrence(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get occurrence: %w", err)
	}
	if err := s.loadDetails(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// ListOccurrences returns a tenant's occurrences due inside w, optionally
// only those assigned to memberID, ascending by due date.
func (s *OccurrenceStore) ListOccurrences(ctx context.Context, tenantID string, w localtime.Window, memberID string) ([]model.Occurrence, error) {
	query := `SELECT ` + occurrenceCols + ` FROM occurrences o WHERE o.tenant_id = ? AND o.due_at >= ? AND o.due_at <= ?`
	args := []any{tenantID, formatTime(w.From), formatTime(w.To)}
	if memberID != "" {
		query += ` AND EXISTS (SELECT 1 FROM occurrence_assignments a WHERE a.occurrence_id = o.id AND a.member_id = ?)`
		args = append(args, memberID)
	}
	query += ` ORDER BY o.due_at ASC, o.id ASC`
	return s.list(ctx, query, args...)
}

// ListOpen returns unapproved occurrences due at or before `before`.
func (s *OccurrenceStore) ListOpen(ctx context.Context, tenantID string, before time.Time) ([]model.Occurrence, error) {
	return s.list(ctx,
		`SELECT `+occurrenceCols+` FROM occurrences o
		 WHERE o.tenant_id = ? AND o.status IN ('assigned', 'done') AND o.due_at <= ?
		 ORDER BY o.due_at ASC, o.id ASC`,
		tenantID, formatTime(before),
	)
}

// ListApproved returns occurrences approved inside w.
func (s *OccurrenceStore) ListApproved(ctx context.Context, tenantID string, w localtime.Window) ([]model.Occurrence, error) {
	return s.list(ctx,
		`SELECT `+occurrenceCols+` FROM occurrences o
		 WHERE o.tenant_id = ? AND o.approved_at >= ? AND o.approved_at <= ?
		 ORDER BY o.approved_at ASC, o.id ASC`,
		tenantID, formatTime(w.From), formatTime(w.To),
	)
}

func (s *OccurrenceStore) list(ctx context.Context, query string, args ...any) ([]model.Occurrence, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list occurrences: %w", err)
	}
	var occs []model.Occurrence
	for rows.Next() {
		o, err := scanOccurrence(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan occurrence: %w", err)
		}
		occs = append(occs, *o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// Close before issuing the detail queries; in-memory databases run on
	// a single connection.
	rows.Close()

	for i := range occs {
		if err := s.loadDetails(ctx, &occs[i]); err != nil {
			return nil, err
		}
	}
	return occs, nil
}

func (s *OccurrenceStore) loadDetails(ctx context.Context, o *model.Occurrence) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT member_id FROM occurrence_assignments WHERE occurrence_id = ? ORDER BY position ASC`, o.ID)
	if err != nil {
		return fmt.Errorf("query assignments: %w", err)
	}
	o.AssigneeIDs = nil
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan assignment: %w", err)
		}
		o.AssigneeIDs = append(o.AssigneeIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT id, occurrence_id, member_id, done_at, undone_at, note, photo_keys FROM completions
		 WHERE occurrence_id = ? ORDER BY done_at ASC, id ASC`, o.ID)
	if err != nil {
		return fmt.Errorf("query completions: %w", err)
	}
	defer rows.Close()

	o.Completions = nil
	for rows.Next() {
		var (
			c      model.Completion
			doneAt string
			undone sql.NullString
			photos string
		)
		if err := rows.Scan(&c.ID, &c.OccurrenceID, &c.MemberID, &doneAt, &undone, &c.Note, &photos); err != nil {
			return fmt.Errorf("scan completion: %w", err)
		}
		if err := json.Unmarshal([]byte(photos), &c.PhotoKeys); err != nil {
			return fmt.Errorf("decode photo keys: %w", err)
		}
		if len(c.PhotoKeys) == 0 {
			c.PhotoKeys = nil
		}
		if c.DoneAt, err = parseTime(doneAt); err != nil {
			return err
		}
		if c.UndoneAt, err = parseNullTime(undone); err != nil {
			return err
		}
		o.Completions = append(o.Completions, c)
	}
	return rows.Err()
}

func (s *OccurrenceStore) FindLastApproval(ctx context.Context, tenantID, choreID string) (*time.Time, error) {
	var at sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT approved_at FROM occurrences
		 WHERE tenant_id = ? AND chore_id = ? AND approved_at IS NOT NULL
		 ORDER BY approved_at DESC LIMIT 1`,
		tenantID, choreID,
	).Scan(&at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find last approval: %w", err)
	}
	return parseNullTime(at)
}

// UpsertCompletion marks memberID done at `at`, reviving an undone
// completion if one exists.
func (s *OccurrenceStore) UpsertCompletion(ctx context.Context, occurrenceID, memberID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO completions (id, occurrence_id, member_id, done_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (occurrence_id, member_id) DO UPDATE SET done_at = excluded.done_at, undone_at = NULL`,
		newID(), occurrenceID, memberID, formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("upsert completion: %w", err)
	}
	return nil
}

func (s *OccurrenceStore) SetCompletionProof(ctx context.Context, occurrenceID, memberID string, p chore.Proof) error {
	photos := ""
	if len(p.PhotoKeys) > 0 {
		b, err := json.Marshal(p.PhotoKeys)
		if err != nil {
			return fmt.Errorf("encode photo keys: %w", err)
		}
		photos = string(b)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE completions
		 SET note = CASE WHEN ? != '' THEN ? ELSE note END,
		     photo_keys = CASE WHEN ? != '' THEN ? ELSE photo_keys END
		 WHERE occurrence_id = ? AND member_id = ?`,
		p.Note, p.Note, photos, photos, occurrenceID, memberID,
	)
	if err != nil {
		return fmt.Errorf("set completion proof: %w", err)
	}
	return nil
}

func (s *OccurrenceStore) UndoCompletion(ctx context.Context, occurrenceID, memberID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE completions SET undone_at = ? WHERE occurrence_id = ? AND member_id = ? AND undone_at IS NULL`,
		formatTime(at), occurrenceID, memberID,
	)
	if err != nil {
		return false, fmt.Errorf("undo completion: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *OccurrenceStore) SetStatus(ctx context.Context, occurrenceID string, status model.OccurrenceStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE occurrences SET status = ?, updated_at = ? WHERE id = ? AND status != 'approved'`,
		status, formatTime(s.now()), occurrenceID,
	)
	if err != nil {
		return fmt.Errorf("set occurrence status: %w", err)
	}
	return nil
}

// Approve moves a done occurrence to approved and credits the reward to
// each member in a.Credited. Only the first approval of a done occurrence
// wins; anything else reports model.ErrAlreadyApproved, chore.ErrNotDone or
// model.ErrNotFound from the row as it stands inside the transaction.
func (s *OccurrenceStore) Approve(ctx context.Context, a chore.Approval) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ts := formatTime(a.At)
	res, err := tx.ExecContext(ctx,
		`UPDATE occurrences
		 SET status = 'approved', approved_at = ?, approved_by_member = ?, reward_cents = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ? AND status = 'done' AND approved_at IS NULL`,
		ts, nullString(a.ApproverID), a.RewardCents, ts, a.TenantID, a.OccurrenceID,
	)
	if err != nil {
		return fmt.Errorf("approve occurrence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return approveConflict(ctx, tx, a.TenantID, a.OccurrenceID)
	}

	for _, memberID := range a.Credited {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_entries (id, tenant_id, member_id, occurrence_id, amount_cents, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			newID(), a.TenantID, memberID, a.OccurrenceID, a.RewardCents, ts,
		); err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}
	}
	return tx.Commit()
}

// approveConflict explains why an approval matched no row.
func approveConflict(ctx context.Context, tx *sql.Tx, tenantID, id string) error {
	var (
		status     model.OccurrenceStatus
		approvedAt sql.NullString
	)
	err := tx.QueryRowContext(ctx,
		`SELECT status, approved_at FROM occurrences WHERE tenant_id = ? AND id = ?`,
		tenantID, id,
	).Scan(&status, &approvedAt)
	switch {
	case err == sql.ErrNoRows:
		return model.ErrNotFound
	case err != nil:
		return fmt.Errorf("read occurrence: %w", err)
	case approvedAt.Valid || status == model.StatusApproved:
		return model.ErrAlreadyApproved
	}
	return chore.ErrNotDone
}

// RescheduleOccurrence applies an admin edit to an unapproved occurrence in
// one transaction. Moving the due date clears the old slot.
func (s *OccurrenceStore) RescheduleOccurrence(ctx context.Context, c chore.OccurrenceChange) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	choreID, due, err := openOccurrence(ctx, tx, c.TenantID, c.OccurrenceID)
	if err != nil {
		return err
	}
	ts := formatTime(c.At)

	if c.DueAt != nil && formatTime(*c.DueAt) != due {
		newDue := formatTime(*c.DueAt)
		var taken int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM occurrences WHERE tenant_id = ? AND chore_id = ? AND due_at = ?`,
			c.TenantID, choreID, newDue,
		).Scan(&taken); err != nil {
			return fmt.Errorf("check due date: %w", err)
		}
		if taken > 0 {
			return model.ErrDuplicateOccurrence
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE occurrences SET due_at = ?, updated_at = ? WHERE id = ?`,
			newDue, ts, c.OccurrenceID,
		); err != nil {
			return fmt.Errorf("move occurrence: %w", err)
		}
		if err := clearSlot(ctx, tx, c.TenantID, choreID, due, c.At); err != nil {
			return err
		}
	}

	if len(c.AssigneeIDs) > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM occurrence_assignments WHERE occurrence_id = ?`, c.OccurrenceID,
		); err != nil {
			return fmt.Errorf("clear assignments: %w", err)
		}
		if err := insertAssignments(ctx, tx, c.OccurrenceID, c.AssigneeIDs); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE occurrences SET updated_at = ? WHERE id = ?`, ts, c.OccurrenceID,
		); err != nil {
			return fmt.Errorf("touch occurrence: %w", err)
		}
	}
	return tx.Commit()
}

// DeleteOccurrence removes an unapproved occurrence and clears its slot.
func (s *OccurrenceStore) DeleteOccurrence(ctx context.Context, tenantID, id string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	choreID, due, err := openOccurrence(ctx, tx, tenantID, id)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM occurrences WHERE tenant_id = ? AND id = ?`, tenantID, id,
	); err != nil {
		return fmt.Errorf("delete occurrence: %w", err)
	}
	if err := clearSlot(ctx, tx, tenantID, choreID, due, at); err != nil {
		return err
	}
	return tx.Commit()
}

// openOccurrence reads the chore and stored due date of an occurrence that
// may still change.
func openOccurrence(ctx context.Context, tx *sql.Tx, tenantID, id string) (choreID, due string, err error) {
	var approvedAt sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT chore_id, due_at, approved_at FROM occurrences WHERE tenant_id = ? AND id = ?`,
		tenantID, id,
	).Scan(&choreID, &due, &approvedAt)
	switch {
	case err == sql.ErrNoRows:
		return "", "", model.ErrNotFound
	case err != nil:
		return "", "", fmt.Errorf("read occurrence: %w", err)
	case approvedAt.Valid:
		return "", "", model.ErrAlreadyApproved
	}
	return choreID, due, nil
}
